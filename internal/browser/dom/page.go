// browser/dom/page.go
package dom

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/antchfx/htmlquery"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

// Page is a parsed HTML document that answers the same queries as a live
// browser page. It is safe for concurrent use.
type Page struct {
	cfg    Config
	logger *zap.Logger
	closed atomic.Bool

	mu       sync.Mutex
	url      string
	doc      *html.Node
	order    map[*html.Node]int
	ids      map[string]*html.Node
	markers  map[*html.Node]string
	byMarker map[string]*html.Node
	actions  []Action
}

var _ selector.PageQuery = (*Page)(nil)

// NewPage parses r into a page.
func NewPage(r io.Reader, cfg Config) (*Page, error) {
	cfg = cfg.withDefaults()
	p := &Page{cfg: cfg, logger: cfg.Logger.Named("dom_page")}
	if err := p.load(r); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseHTML is NewPage over a string.
func ParseHTML(src string, cfg Config) (*Page, error) {
	return NewPage(strings.NewReader(src), cfg)
}

// load replaces the document. Callers hold mu or own p exclusively.
func (p *Page) load(r io.Reader) error {
	doc, err := htmlquery.Parse(r)
	if err != nil {
		return fmt.Errorf("failed to parse html: %w", err)
	}
	p.doc = doc
	p.order = make(map[*html.Node]int)
	p.ids = make(map[string]*html.Node)
	p.markers = make(map[*html.Node]string)
	p.byMarker = make(map[string]*html.Node)

	i := 0
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			p.order[n] = i
			i++
			if id := htmlquery.SelectAttr(n, "id"); id != "" {
				if _, seen := p.ids[id]; !seen {
					p.ids[id] = n
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return nil
}

// Close marks the page as torn down; every later query fails with ErrPageClosed.
func (p *Page) Close() {
	p.closed.Store(true)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	return p.closed.Load()
}

// URL returns the last navigated URL.
func (p *Page) URL() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.url
}

func (p *Page) guard(ctx context.Context) error {
	if p.Closed() {
		return selector.ErrPageClosed
	}
	return ctx.Err()
}

// -- selector.PageQuery --

// CountMatches resolves d and returns the number of matches.
func (p *Page) CountMatches(ctx context.Context, d schemas.SelectorDescriptor) (int, error) {
	if err := p.guard(ctx); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes, err := p.resolve(d)
	if err != nil {
		return 0, err
	}
	return len(nodes), nil
}

// IdentityMarkers resolves d and returns the markers of the matches in document order.
func (p *Page) IdentityMarkers(ctx context.Context, d schemas.SelectorDescriptor) ([]string, error) {
	if err := p.guard(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes, err := p.resolve(d)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = p.markerLocked(n)
	}
	return out, nil
}

// ResolveMarker returns the marker of the first match of d.
func (p *Page) ResolveMarker(ctx context.Context, d schemas.SelectorDescriptor) (string, error) {
	if err := p.guard(ctx); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	nodes, err := p.resolve(d)
	if err != nil {
		return "", err
	}
	if len(nodes) == 0 {
		return "", fmt.Errorf("%s: %w", selector.String(d), selector.ErrNotFound)
	}
	return p.markerLocked(nodes[0]), nil
}

// ElementMetadata reads the element carrying marker.
func (p *Page) ElementMetadata(ctx context.Context, marker string) (*selector.ElementSnapshot, error) {
	if err := p.guard(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.nodeLocked(marker)
	if err != nil {
		return nil, err
	}
	return p.snapshot(n), nil
}

// Ancestors returns the markers of the element's ancestors, nearest first.
func (p *Page) Ancestors(ctx context.Context, marker string, limit int) ([]string, error) {
	if err := p.guard(ctx); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.nodeLocked(marker)
	if err != nil {
		return nil, err
	}
	chain := elementAncestors(n)
	if limit > 0 && len(chain) > limit {
		chain = chain[:limit]
	}
	out := make([]string, len(chain))
	for i, a := range chain {
		out[i] = p.markerLocked(a)
	}
	return out, nil
}

// -- markers --

// MarkerByXPath tags the first node matching expr and returns its marker.
func (p *Page) MarkerByXPath(expr string) (string, error) {
	if p.Closed() {
		return "", selector.ErrPageClosed
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := htmlquery.Query(p.doc, expr)
	if err != nil {
		return "", fmt.Errorf("invalid xpath %q: %w", expr, err)
	}
	if n == nil || n.Type != html.ElementNode {
		return "", fmt.Errorf("xpath %q: %w", expr, selector.ErrNotFound)
	}
	return p.markerLocked(n), nil
}

// XPathOf returns an XPath naming the element carrying marker.
func (p *Page) XPathOf(marker string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.nodeLocked(marker)
	if err != nil {
		return "", err
	}
	return GenerateUniqueXPath(n), nil
}

func (p *Page) markerLocked(n *html.Node) string {
	if m, ok := p.markers[n]; ok {
		return m
	}
	m := uuid.NewString()
	p.markers[n] = m
	p.byMarker[m] = n
	return m
}

func (p *Page) nodeLocked(marker string) (*html.Node, error) {
	n, ok := p.byMarker[marker]
	if !ok {
		return nil, fmt.Errorf("marker %q: %w", marker, selector.ErrNotFound)
	}
	return n, nil
}

// snapshot collects the descriptive facts of n and tags it.
func (p *Page) snapshot(n *html.Node) *selector.ElementSnapshot {
	el := p.describe(n)
	el.Marker = p.markerLocked(n)
	return el
}

// describe collects the descriptive facts of n without tagging it.
func (p *Page) describe(n *html.Node) *selector.ElementSnapshot {
	attr := attrLookup(n)
	tag := strings.ToLower(n.Data)
	el := &selector.ElementSnapshot{
		Visible:   isVisible(n),
		ValueAttr: htmlquery.SelectAttr(n, "value"),
	}
	el.Tag = tag
	el.Text = visibleText(n)
	el.ID = htmlquery.SelectAttr(n, "id")
	el.Role = selector.ResolveRole(tag, attr)
	el.Label = p.labelText(n)
	el.AriaLabel = p.ariaLabel(n)
	el.Placeholder = htmlquery.SelectAttr(n, "placeholder")
	el.Alt = htmlquery.SelectAttr(n, "alt")
	el.Title = htmlquery.SelectAttr(n, "title")
	el.InputType = strings.ToLower(htmlquery.SelectAttr(n, "type"))
	el.NameAttr = htmlquery.SelectAttr(n, "name")
	el.NthOfType = NthOfType(n)
	for _, a := range n.Attr {
		key := strings.ToLower(a.Key)
		if !strings.HasPrefix(key, "data-") {
			continue
		}
		if el.Dataset == nil {
			el.Dataset = make(map[string]string)
		}
		el.Dataset[selector.DatasetKey(key)] = a.Val
	}
	return el
}

// ariaLabel resolves aria-labelledby first, then aria-label.
func (p *Page) ariaLabel(n *html.Node) string {
	if refs := htmlquery.SelectAttr(n, "aria-labelledby"); refs != "" {
		var parts []string
		for _, id := range strings.Fields(refs) {
			if ref, ok := p.ids[id]; ok {
				if t := textContent(ref, nil); t != "" {
					parts = append(parts, t)
				}
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, " ")
		}
	}
	return selector.NormalizeWhitespace(htmlquery.SelectAttr(n, "aria-label"))
}

// labelText returns the text of the <label> associated with a labelable element.
func (p *Page) labelText(n *html.Node) string {
	if !isLabelable(n) {
		return ""
	}
	if id := htmlquery.SelectAttr(n, "id"); id != "" {
		var found string
		forEachElement(p.doc, func(l *html.Node) bool {
			if strings.EqualFold(l.Data, "label") && htmlquery.SelectAttr(l, "for") == id {
				found = textContent(l, isLabelable)
				return false
			}
			return true
		})
		if found != "" {
			return found
		}
	}
	for a := n.Parent; a != nil && a.Type == html.ElementNode; a = a.Parent {
		if strings.EqualFold(a.Data, "label") {
			return textContent(a, isLabelable)
		}
	}
	return ""
}
