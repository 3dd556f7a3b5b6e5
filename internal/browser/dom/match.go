// browser/dom/match.go
package dom

import (
	"fmt"
	"sort"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

// resolve evaluates a descriptor chain. Each level is searched inside every
// match of the previous level and the union is kept in document order; nth
// picks from the union of the level that carries it. Callers hold mu.
func (p *Page) resolve(d schemas.SelectorDescriptor) ([]*html.Node, error) {
	if err := selector.Validate(d); err != nil {
		return nil, err
	}
	scopes := []*html.Node{p.doc}
	for level := &d; level != nil; level = level.Child {
		var matched []*html.Node
		seen := make(map[*html.Node]struct{})
		for _, scope := range scopes {
			nodes, err := p.matchLevel(*level, scope)
			if err != nil {
				return nil, err
			}
			for _, n := range nodes {
				if _, dup := seen[n]; dup {
					continue
				}
				seen[n] = struct{}{}
				matched = append(matched, n)
			}
		}
		sort.SliceStable(matched, func(i, j int) bool { return p.order[matched[i]] < p.order[matched[j]] })

		if level.Nth != nil {
			if *level.Nth >= len(matched) {
				return nil, nil
			}
			matched = matched[*level.Nth : *level.Nth+1]
		}
		if len(matched) == 0 {
			return nil, nil
		}
		scopes = matched
	}
	return scopes, nil
}

// matchLevel returns the descendants of scope matching one descriptor level.
func (p *Page) matchLevel(d schemas.SelectorDescriptor, scope *html.Node) ([]*html.Node, error) {
	if d.Type == schemas.SelectorCSS {
		sel, err := cascadia.Compile(d.Selector)
		if err != nil {
			return nil, fmt.Errorf("%w: css %q: %v", selector.ErrInvalidDescriptor, d.Selector, err)
		}
		var out []*html.Node
		for _, n := range sel.MatchAll(scope) {
			if n != scope {
				out = append(out, n)
			}
		}
		return out, nil
	}

	var pred func(n *html.Node) bool
	switch d.Type {
	case schemas.SelectorTestID:
		pred = func(n *html.Node) bool {
			return strings.TrimSpace(htmlquery.SelectAttr(n, p.cfg.TestIDAttribute)) == d.Value
		}
	case schemas.SelectorRole:
		pred = func(n *html.Node) bool {
			if !isVisible(n) || selector.ResolveRole(n.Data, attrLookup(n)) != d.Role {
				return false
			}
			if d.Name == "" {
				return true
			}
			return selector.MatchText(selector.AccessibleName(p.describe(n)), d.Name, d.IsExact())
		}
	case schemas.SelectorLabel:
		pred = func(n *html.Node) bool {
			if !isVisible(n) {
				return false
			}
			label := p.labelText(n)
			if label == "" {
				label = p.ariaLabel(n)
			}
			return selector.MatchText(label, d.Value, d.IsExact())
		}
	case schemas.SelectorPlaceholder, schemas.SelectorAlt, schemas.SelectorTitle:
		name := string(d.Type)
		pred = func(n *html.Node) bool {
			v, ok := attrLookup(n)(name)
			return ok && isVisible(n) && selector.MatchText(v, d.Value, d.IsExact())
		}
	case schemas.SelectorText:
		return p.matchText(d, scope), nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", selector.ErrInvalidDescriptor, d.Type)
	}

	var out []*html.Node
	forEachElement(scope, func(n *html.Node) bool {
		if n != scope && pred(n) {
			out = append(out, n)
		}
		return true
	})
	return out, nil
}

// matchText returns the innermost visible elements whose text matches.
func (p *Page) matchText(d schemas.SelectorDescriptor, scope *html.Node) []*html.Node {
	var out []*html.Node
	var visit func(n *html.Node) bool
	visit = func(n *html.Node) bool {
		found := false
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode && visit(c) {
				found = true
			}
		}
		if found {
			return true
		}
		if n == scope || n.Type != html.ElementNode || skipText(n) || !isVisible(n) {
			return false
		}
		if selector.MatchText(visibleText(n), d.Value, d.IsExact()) {
			out = append(out, n)
			return true
		}
		return false
	}
	visit(scope)
	return out
}

// -- node helpers --

func attrLookup(n *html.Node) func(string) (string, bool) {
	return func(name string) (string, bool) {
		for _, a := range n.Attr {
			if strings.EqualFold(a.Key, name) {
				return a.Val, true
			}
		}
		return "", false
	}
}

// forEachElement walks element descendants of root (root included) in
// document order until fn returns false.
func forEachElement(root *html.Node, fn func(n *html.Node) bool) {
	var walk func(n *html.Node) bool
	walk = func(n *html.Node) bool {
		if n.Type == html.ElementNode && !fn(n) {
			return false
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if !walk(c) {
				return false
			}
		}
		return true
	}
	walk(root)
}

func skipText(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "script", "style", "template", "noscript", "head", "title", "meta", "link":
		return true
	}
	return false
}

func hiddenSelf(n *html.Node) bool {
	if skipText(n) {
		return true
	}
	attr := attrLookup(n)
	if _, ok := attr("hidden"); ok {
		return true
	}
	if v, _ := attr("aria-hidden"); strings.EqualFold(strings.TrimSpace(v), "true") {
		return true
	}
	if strings.EqualFold(n.Data, "input") {
		if v, _ := attr("type"); strings.EqualFold(strings.TrimSpace(v), "hidden") {
			return true
		}
	}
	style, _ := attr("style")
	style = strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(style, "display:none") || strings.Contains(style, "visibility:hidden")
}

// isVisible reports whether neither n nor any ancestor hides it.
func isVisible(n *html.Node) bool {
	for cur := n; cur != nil && cur.Type == html.ElementNode; cur = cur.Parent {
		if hiddenSelf(cur) {
			return false
		}
	}
	return true
}

// visibleText is the normalised text of n, skipping hidden subtrees.
func visibleText(n *html.Node) string {
	return textContent(n, nil)
}

// textContent concatenates visible text under n. Subtrees for which skip
// returns true are left out.
func textContent(n *html.Node, skip func(*html.Node) bool) string {
	var sb strings.Builder
	var walk func(c *html.Node)
	walk = func(c *html.Node) {
		switch c.Type {
		case html.TextNode:
			sb.WriteString(c.Data)
			return
		case html.ElementNode:
			if c != n && (hiddenSelf(c) || (skip != nil && skip(c))) {
				return
			}
		}
		block := c.Type == html.ElementNode && !isInline(c)
		if block {
			sb.WriteByte(' ')
		}
		for ch := c.FirstChild; ch != nil; ch = ch.NextSibling {
			walk(ch)
		}
		if block {
			sb.WriteByte(' ')
		}
	}
	walk(n)
	return selector.NormalizeWhitespace(sb.String())
}

func isInline(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "a", "abbr", "b", "bdi", "bdo", "cite", "code", "data", "dfn", "em", "i", "kbd",
		"mark", "q", "s", "samp", "small", "span", "strong", "sub", "sup", "time", "u", "var":
		return true
	}
	return false
}

func isLabelable(n *html.Node) bool {
	switch strings.ToLower(n.Data) {
	case "input":
		v, _ := attrLookup(n)("type")
		return !strings.EqualFold(v, "hidden")
	case "select", "textarea", "button", "meter", "output", "progress":
		return true
	}
	return false
}
