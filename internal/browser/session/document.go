// internal/browser/session/document.go
package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

// elementFacts is one element as reported by the snapshot script.
type elementFacts struct {
	Marker    string            `json:"m"`
	Parent    int               `json:"p"`
	Tag       string            `json:"t"`
	Attrs     map[string]string `json:"a"`
	Hidden    bool              `json:"h"`
	Text      string            `json:"x"`
	Label     string            `json:"l"`
	AriaLabel string            `json:"al"`
	NthOfType int               `json:"n"`
}

type cssResult struct {
	Matches []int  `json:"matches"`
	Error   string `json:"error,omitempty"`
}

type snapshotPayload struct {
	Elements []elementFacts `json:"elements"`
	CSS      []cssResult    `json:"css"`
}

// document is a point-in-time view of the live DOM. Indices are document
// order, so a parent always precedes its children.
type document struct {
	elements   []elementFacts
	visible    []bool
	css        map[string]cssResult
	byMarker   map[string]int
	testIDAttr string
}

func newDocument(payload snapshotPayload, cssList []string, testIDAttr string) (*document, error) {
	doc := &document{
		elements:   payload.Elements,
		visible:    make([]bool, len(payload.Elements)),
		css:        make(map[string]cssResult, len(cssList)),
		byMarker:   make(map[string]int, len(payload.Elements)),
		testIDAttr: strings.ToLower(testIDAttr),
	}
	if len(payload.CSS) != len(cssList) {
		return nil, fmt.Errorf("snapshot returned %d css results for %d selectors", len(payload.CSS), len(cssList))
	}
	for i, sel := range cssList {
		doc.css[sel] = payload.CSS[i]
	}
	for i, el := range doc.elements {
		if el.Parent >= i {
			return nil, fmt.Errorf("snapshot element %d has parent %d out of document order", i, el.Parent)
		}
		doc.visible[i] = !el.Hidden && (el.Parent < 0 || doc.visible[el.Parent])
		doc.byMarker[el.Marker] = i
	}
	return doc, nil
}

func (d *document) attr(i int) func(string) (string, bool) {
	attrs := d.elements[i].Attrs
	return func(name string) (string, bool) {
		v, ok := attrs[strings.ToLower(name)]
		return v, ok
	}
}

// within reports whether i is a strict descendant of scope; scope -1 is the document.
func (d *document) within(i, scope int) bool {
	if scope < 0 {
		return true
	}
	for p := d.elements[i].Parent; p >= 0; p = d.elements[p].Parent {
		if p == scope {
			return true
		}
	}
	return false
}

func (d *document) index(marker string) (int, error) {
	i, ok := d.byMarker[marker]
	if !ok {
		return 0, fmt.Errorf("marker %q: %w", marker, selector.ErrNotFound)
	}
	return i, nil
}

// describe builds the snapshot the selector package reasons about.
func (d *document) describe(i int) *selector.ElementSnapshot {
	el := d.elements[i]
	attr := d.attr(i)
	get := func(name string) string { v, _ := attr(name); return v }

	snap := &selector.ElementSnapshot{
		Marker:    el.Marker,
		Visible:   d.visible[i],
		ValueAttr: get("value"),
	}
	snap.Tag = el.Tag
	snap.Text = el.Text
	snap.ID = get("id")
	snap.Role = selector.ResolveRole(el.Tag, attr)
	snap.Label = el.Label
	snap.AriaLabel = el.AriaLabel
	snap.Placeholder = get("placeholder")
	snap.Alt = get("alt")
	snap.Title = get("title")
	snap.InputType = strings.ToLower(get("type"))
	snap.NameAttr = get("name")
	snap.NthOfType = el.NthOfType
	for name, v := range el.Attrs {
		if !strings.HasPrefix(name, "data-") {
			continue
		}
		if snap.Dataset == nil {
			snap.Dataset = make(map[string]string)
		}
		snap.Dataset[selector.DatasetKey(name)] = v
	}
	return snap
}

// ancestors returns the element ancestors of i, nearest first, without html.
func (d *document) ancestors(i, limit int) []int {
	var out []int
	for p := d.elements[i].Parent; p >= 0; p = d.elements[p].Parent {
		if d.elements[p].Tag == "html" {
			break
		}
		out = append(out, p)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// resolve evaluates a descriptor chain the same way the static page does:
// each level is searched inside every match of the previous one, the union
// is kept in document order and nth picks from that union.
func (d *document) resolve(desc schemas.SelectorDescriptor) ([]int, error) {
	if err := selector.Validate(desc); err != nil {
		return nil, err
	}
	scopes := []int{-1}
	for level := &desc; level != nil; level = level.Child {
		seen := make(map[int]struct{})
		var matched []int
		for _, scope := range scopes {
			found, err := d.matchLevel(*level, scope)
			if err != nil {
				return nil, err
			}
			for _, i := range found {
				if _, dup := seen[i]; !dup {
					seen[i] = struct{}{}
					matched = append(matched, i)
				}
			}
		}
		sort.Ints(matched)

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

func (d *document) matchLevel(desc schemas.SelectorDescriptor, scope int) ([]int, error) {
	var pred func(i int) bool
	switch desc.Type {
	case schemas.SelectorCSS:
		res, ok := d.css[desc.Selector]
		if !ok {
			return nil, fmt.Errorf("css %q was not evaluated", desc.Selector)
		}
		if res.Error != "" {
			return nil, fmt.Errorf("%w: css %q: %s", selector.ErrInvalidDescriptor, desc.Selector, res.Error)
		}
		var out []int
		for _, i := range res.Matches {
			if i >= 0 && i < len(d.elements) && d.within(i, scope) {
				out = append(out, i)
			}
		}
		return out, nil
	case schemas.SelectorTestID:
		pred = func(i int) bool {
			v, _ := d.attr(i)(d.testIDAttr)
			return strings.TrimSpace(v) == desc.Value
		}
	case schemas.SelectorRole:
		pred = func(i int) bool {
			if !d.visible[i] || selector.ResolveRole(d.elements[i].Tag, d.attr(i)) != desc.Role {
				return false
			}
			if desc.Name == "" {
				return true
			}
			return selector.MatchText(selector.AccessibleName(d.describe(i)), desc.Name, desc.IsExact())
		}
	case schemas.SelectorLabel:
		pred = func(i int) bool {
			return d.visible[i] && selector.MatchText(selector.LabelText(d.describe(i)), desc.Value, desc.IsExact())
		}
	case schemas.SelectorPlaceholder, schemas.SelectorAlt, schemas.SelectorTitle:
		name := string(desc.Type)
		pred = func(i int) bool {
			v, ok := d.attr(i)(name)
			return ok && d.visible[i] && selector.MatchText(v, desc.Value, desc.IsExact())
		}
	case schemas.SelectorText:
		return d.matchText(desc, scope), nil
	default:
		return nil, fmt.Errorf("%w: unknown type %q", selector.ErrInvalidDescriptor, desc.Type)
	}

	var out []int
	for i := range d.elements {
		if i != scope && d.within(i, scope) && pred(i) {
			out = append(out, i)
		}
	}
	return out, nil
}

// matchText keeps the innermost visible elements whose text matches.
func (d *document) matchText(desc schemas.SelectorDescriptor, scope int) []int {
	self := make([]bool, len(d.elements))
	inner := make([]bool, len(d.elements))
	for i := range d.elements {
		if i == scope || !d.within(i, scope) || !d.visible[i] {
			continue
		}
		if selector.MatchText(d.elements[i].Text, desc.Value, desc.IsExact()) {
			self[i] = true
			for p := d.elements[i].Parent; p >= 0 && !inner[p]; p = d.elements[p].Parent {
				inner[p] = true
			}
		}
	}
	var out []int
	for i := range d.elements {
		if self[i] && !inner[i] {
			out = append(out, i)
		}
	}
	return out
}

// cssSelectors lists the raw CSS selectors in a descriptor chain.
func cssSelectors(desc schemas.SelectorDescriptor) []string {
	var out []string
	for level := &desc; level != nil; level = level.Child {
		if level.Type == schemas.SelectorCSS {
			out = append(out, level.Selector)
		}
	}
	return out
}
