// internal/browser/session/context_utils.go
package session

import (
	"context"
)

// CombineContext derives a context from ctx1 that is also canceled when ctx2
// is. It keeps ctx1's values, which is where chromedp keeps the CDP target,
// while ctx2 usually carries the operation's deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)
	stop := context.AfterFunc(ctx2, cancel)
	return combinedCtx, func() {
		stop()
		cancel()
	}
}
