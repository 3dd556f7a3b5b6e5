// internal/browser/session/cdp_executor.go
package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

// point is the viewport center of an element.
type point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

type formResult struct {
	OK      bool   `json:"ok"`
	Missing bool   `json:"missing"`
	Reason  string `json:"reason"`
}

// namedKeys maps key names used in press steps to the runes chromedp sends.
var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"tab":       kb.Tab,
	"escape":    kb.Escape,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"arrowup":   kb.ArrowUp,
	"arrowdown": kb.ArrowDown,
}

// Navigate loads url and waits for the body to be ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.guard(ctx); err != nil {
		return err
	}
	if p.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.NavigationTimeout)
		defer cancel()
	}
	if err := p.dispatch(ctx, chromedp.Navigate(url), chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		return p.classify(ctx, "navigate "+url, err)
	}
	p.logger.Debug("Navigated", zap.String("url", url))
	return nil
}

// Click dispatches a pointer interaction at the center of the single
// element d resolves to.
func (p *Page) Click(ctx context.Context, d schemas.SelectorDescriptor, details schemas.ClickDetails) error {
	marker, err := p.single(ctx, d)
	if err != nil {
		return err
	}
	pt, err := p.point(ctx, marker)
	if err != nil {
		return err
	}

	move := input.DispatchMouseEvent(input.MouseMoved, pt.X, pt.Y)
	var actions []chromedp.Action
	switch details.ClickType {
	case schemas.ClickHover:
		actions = []chromedp.Action{move}
	case schemas.ClickRight:
		actions = append([]chromedp.Action{move}, pressRelease(pt, input.Right, 1)...)
	case schemas.ClickDouble:
		actions = append([]chromedp.Action{move}, pressRelease(pt, input.Left, 1)...)
		actions = append(actions, pressRelease(pt, input.Left, 2)...)
	case schemas.ClickLeft, "":
		actions = append([]chromedp.Action{move}, pressRelease(pt, input.Left, 1)...)
	default:
		return fmt.Errorf("unsupported click type %q", details.ClickType)
	}
	if err := p.dispatch(ctx, actions...); err != nil {
		return p.classify(ctx, "click", err)
	}
	return nil
}

func pressRelease(pt *point, button input.MouseButton, count int64) []chromedp.Action {
	return []chromedp.Action{
		input.DispatchMouseEvent(input.MousePressed, pt.X, pt.Y).WithButton(button).WithClickCount(count),
		input.DispatchMouseEvent(input.MouseReleased, pt.X, pt.Y).WithButton(button).WithClickCount(count),
	}
}

// UpdateForm applies a form operation to the single element d resolves to.
// Value operations run in the page and fire input and change events; type
// and press send real key events to the focused element.
func (p *Page) UpdateForm(ctx context.Context, d schemas.SelectorDescriptor, details schemas.FormDetails) error {
	marker, err := p.single(ctx, d)
	if err != nil {
		return err
	}

	switch details.Operation {
	case schemas.FormFill, schemas.FormClear, schemas.FormSelect, schemas.FormCheck, schemas.FormUncheck:
		return p.form(ctx, marker, string(details.Operation), details.Value)
	case schemas.FormType:
		if err := p.form(ctx, marker, "focus", ""); err != nil {
			return err
		}
		return p.keys(ctx, details.Value)
	case schemas.FormPress:
		if err := p.form(ctx, marker, "focus", ""); err != nil {
			return err
		}
		key := details.Value
		if named, ok := namedKeys[strings.ToLower(key)]; ok {
			key = named
		}
		return p.keys(ctx, key)
	}
	return fmt.Errorf("unsupported form operation %q", details.Operation)
}

func (p *Page) form(ctx context.Context, marker, op, value string) error {
	raw, err := p.eval(ctx, buildFormScript(p.prefix, marker, op, value))
	if err != nil {
		return p.classify(ctx, "form "+op, err)
	}
	var res formResult
	if err := codec.Unmarshal(raw, &res); err != nil {
		return fmt.Errorf("form %s: decoding result: %w", op, err)
	}
	switch {
	case res.OK:
		return nil
	case res.Missing:
		return fmt.Errorf("form %s: %s: %w", op, res.Reason, selector.ErrNotFound)
	}
	return fmt.Errorf("form %s: %s", op, res.Reason)
}

func (p *Page) keys(ctx context.Context, keys string) error {
	timeout := 10 * time.Second
	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := p.dispatch(opCtx, chromedp.KeyEvent(keys)); err != nil {
		return p.classify(opCtx, "send keys", err)
	}
	return nil
}

// point scrolls the element into view and returns its center.
func (p *Page) point(ctx context.Context, marker string) (*point, error) {
	raw, err := p.eval(ctx, buildPointScript(p.prefix, marker))
	if err != nil {
		return nil, p.classify(ctx, "geometry", err)
	}
	if string(raw) == "null" || len(raw) == 0 {
		return nil, fmt.Errorf("marker %q: %w", marker, selector.ErrNotFound)
	}
	var pt point
	if err := codec.Unmarshal(raw, &pt); err != nil {
		return nil, fmt.Errorf("geometry: decoding result: %w", err)
	}
	if pt.W <= 0 || pt.H <= 0 {
		p.logger.Debug("Element has no box", zap.String("marker", marker), zap.Float64("width", pt.W), zap.Float64("height", pt.H))
		return nil, fmt.Errorf("marker %q is not rendered: %w", marker, selector.ErrNotFound)
	}
	return &pt, nil
}
