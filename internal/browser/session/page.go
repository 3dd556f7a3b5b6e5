// internal/browser/session/page.go
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// maxTextRunes caps the text reported per element.
const maxTextRunes = 2000

// PageConfig configures a live page.
type PageConfig struct {
	TestIDAttribute   string
	NavigationTimeout time.Duration
}

// Page is one Chrome tab. It answers selector queries through a fresh DOM
// snapshot per query and performs actions with CDP input events.
type Page struct {
	ctx    context.Context // tab context; carries the CDP target
	cancel context.CancelFunc
	logger *zap.Logger
	cfg    PageConfig
	prefix string
	closed atomic.Bool

	// eval and dispatch are swapped out in tests.
	eval     func(ctx context.Context, script string) ([]byte, error)
	dispatch func(ctx context.Context, actions ...chromedp.Action) error
	onClose  func()
}

var (
	_ selector.PageQuery = (*Page)(nil)
	_ ActionExecutor     = (*Page)(nil)
)

func newPage(tabCtx context.Context, cancel context.CancelFunc, cfg PageConfig, logger *zap.Logger) *Page {
	if cfg.TestIDAttribute == "" {
		cfg.TestIDAttribute = "data-testid"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Page{
		ctx:    tabCtx,
		cancel: cancel,
		logger: logger.Named("live_page"),
		cfg:    cfg,
		prefix: uuid.NewString()[:8],
	}
	p.eval = p.evaluate
	p.dispatch = p.RunActions
	return p
}

// RunActions executes actions in the tab under ctx's deadline.
func (p *Page) RunActions(ctx context.Context, actions ...chromedp.Action) error {
	combined, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(combined, actions...)
}

func (p *Page) evaluate(ctx context.Context, script string) ([]byte, error) {
	var res []byte
	err := p.RunActions(ctx, chromedp.Evaluate(script, &res, func(ep *runtime.EvaluateParams) *runtime.EvaluateParams {
		return ep.WithReturnByValue(true).WithAwaitPromise(true)
	}))
	return res, err
}

// Close closes the tab. Later queries fail with ErrPageClosed.
func (p *Page) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	defer func() {
		if p.onClose != nil {
			p.onClose()
		}
	}()
	if err := chromedp.Cancel(p.ctx); err != nil && !errors.Is(err, context.Canceled) {
		p.cancel()
		return fmt.Errorf("failed to close tab: %w", err)
	}
	p.cancel()
	return nil
}

// Closed reports whether the tab or its browser went away.
func (p *Page) Closed() bool {
	return p.closed.Load() || p.ctx.Err() != nil
}

func (p *Page) guard(ctx context.Context) error {
	if p.Closed() {
		return selector.ErrPageClosed
	}
	return ctx.Err()
}

// classify maps a CDP failure onto the selector error taxonomy.
func (p *Page) classify(ctx context.Context, op string, err error) error {
	switch {
	case p.Closed():
		return fmt.Errorf("%s: %w: %v", op, selector.ErrPageClosed, err)
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return fmt.Errorf("%s: %w", op, err)
}

// load takes a snapshot able to resolve every css level in css.
func (p *Page) load(ctx context.Context, css []string) (*document, error) {
	if err := p.guard(ctx); err != nil {
		return nil, err
	}
	raw, err := p.eval(ctx, buildSnapshotScript(p.prefix, p.cfg.TestIDAttribute, css, maxTextRunes))
	if err != nil {
		return nil, p.classify(ctx, "snapshot", err)
	}
	var payload snapshotPayload
	if err := codec.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("snapshot: decoding payload: %w", err)
	}
	return newDocument(payload, css, p.cfg.TestIDAttribute)
}

func (p *Page) resolve(ctx context.Context, d schemas.SelectorDescriptor) (*document, []int, error) {
	if err := selector.Validate(d); err != nil {
		return nil, nil, err
	}
	doc, err := p.load(ctx, cssSelectors(d))
	if err != nil {
		return nil, nil, err
	}
	matches, err := doc.resolve(d)
	if err != nil {
		return nil, nil, err
	}
	return doc, matches, nil
}

// -- selector.PageQuery --

// CountMatches resolves d and returns the number of matches.
func (p *Page) CountMatches(ctx context.Context, d schemas.SelectorDescriptor) (int, error) {
	_, matches, err := p.resolve(ctx, d)
	return len(matches), err
}

// IdentityMarkers resolves d and returns the markers of the matches in document order.
func (p *Page) IdentityMarkers(ctx context.Context, d schemas.SelectorDescriptor) ([]string, error) {
	doc, matches, err := p.resolve(ctx, d)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = doc.elements[m].Marker
	}
	return out, nil
}

// ResolveMarker returns the marker of the first match of d.
func (p *Page) ResolveMarker(ctx context.Context, d schemas.SelectorDescriptor) (string, error) {
	doc, matches, err := p.resolve(ctx, d)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("%s: %w", selector.String(d), selector.ErrNotFound)
	}
	return doc.elements[matches[0]].Marker, nil
}

// ElementMetadata reads the element carrying marker.
func (p *Page) ElementMetadata(ctx context.Context, marker string) (*selector.ElementSnapshot, error) {
	doc, err := p.load(ctx, nil)
	if err != nil {
		return nil, err
	}
	i, err := doc.index(marker)
	if err != nil {
		return nil, err
	}
	return doc.describe(i), nil
}

// Ancestors returns the markers of the element's ancestors, nearest first.
func (p *Page) Ancestors(ctx context.Context, marker string, limit int) ([]string, error) {
	doc, err := p.load(ctx, nil)
	if err != nil {
		return nil, err
	}
	i, err := doc.index(marker)
	if err != nil {
		return nil, err
	}
	chain := doc.ancestors(i, limit)
	out := make([]string, len(chain))
	for k, a := range chain {
		out[k] = doc.elements[a].Marker
	}
	return out, nil
}

// single resolves d to exactly one element and returns its marker.
func (p *Page) single(ctx context.Context, d schemas.SelectorDescriptor) (string, error) {
	doc, matches, err := p.resolve(ctx, d)
	if err != nil {
		return "", err
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s: %w", selector.String(d), selector.ErrNotFound)
	case 1:
		return doc.elements[matches[0]].Marker, nil
	}
	return "", fmt.Errorf("%s matched %d elements: %w", selector.String(d), len(matches), selector.ErrAmbiguousMatch)
}
