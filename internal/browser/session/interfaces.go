// internal/browser/session/interfaces.go
package session

import (
	"context"

	"github.com/chromedp/chromedp"
)

// ActionExecutor runs chromedp actions against a tab. The implementation
// combines the operational context with the long-lived tab context so the
// actions carry the CDP target while honouring the caller's deadline.
type ActionExecutor interface {
	RunActions(ctx context.Context, actions ...chromedp.Action) error
}
