// browser/dom/interactor.go
package dom

import (
	"context"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

// Action is one interaction applied to a static page.
type Action struct {
	Kind   schemas.ActionKind
	Target string // XPath of the element, empty for navigation
	Detail string
	Value  string
}

// Actions returns a copy of the interaction log.
func (p *Page) Actions() []Action {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Action, len(p.actions))
	copy(out, p.actions)
	return out
}

// Navigate loads url through the configured Loader, or only records it
// when there is none.
func (p *Page) Navigate(ctx context.Context, url string) error {
	if err := p.guard(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.Loader != nil {
		r, err := p.cfg.Loader(ctx, url)
		if err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		if err := p.load(r); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
	}
	p.url = url
	p.actions = append(p.actions, Action{Kind: schemas.ActionNavigation, Value: url})
	p.logger.Debug("Navigated", zap.String("url", url))
	return nil
}

// Click applies a pointer interaction to the single element d resolves to.
func (p *Page) Click(ctx context.Context, d schemas.SelectorDescriptor, details schemas.ClickDetails) error {
	if err := p.guard(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.single(d)
	if err != nil {
		return err
	}
	clickType := details.ClickType
	if clickType == "" {
		clickType = schemas.ClickLeft
	}
	if clickType == schemas.ClickLeft && strings.EqualFold(n.Data, "input") {
		switch strings.ToLower(htmlquery.SelectAttr(n, "type")) {
		case "checkbox":
			setChecked(n, !hasAttr(n, "checked"))
		case "radio":
			p.checkRadio(n)
		}
	}
	p.actions = append(p.actions, Action{Kind: schemas.ActionClick, Target: GenerateUniqueXPath(n), Detail: string(clickType)})
	return nil
}

// UpdateForm applies a form operation to the single element d resolves to.
func (p *Page) UpdateForm(ctx context.Context, d schemas.SelectorDescriptor, details schemas.FormDetails) error {
	if err := p.guard(ctx); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.single(d)
	if err != nil {
		return err
	}

	switch details.Operation {
	case schemas.FormFill:
		setAttr(n, "value", details.Value)
	case schemas.FormType:
		setAttr(n, "value", htmlquery.SelectAttr(n, "value")+details.Value)
	case schemas.FormClear:
		setAttr(n, "value", "")
	case schemas.FormSelect:
		if !selectOption(n, details.Value) {
			return fmt.Errorf("select %q: %w", details.Value, selector.ErrNotFound)
		}
	case schemas.FormCheck:
		if strings.EqualFold(htmlquery.SelectAttr(n, "type"), "radio") {
			p.checkRadio(n)
		} else {
			setChecked(n, true)
		}
	case schemas.FormUncheck:
		setChecked(n, false)
	case schemas.FormPress:
	default:
		return fmt.Errorf("unsupported form operation %q", details.Operation)
	}
	p.actions = append(p.actions, Action{
		Kind:   schemas.ActionFormUpdate,
		Target: GenerateUniqueXPath(n),
		Detail: string(details.Operation),
		Value:  details.Value,
	})
	return nil
}

// Value returns the current value attribute of the element carrying marker.
func (p *Page) Value(marker string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.nodeLocked(marker)
	if err != nil {
		return "", err
	}
	return htmlquery.SelectAttr(n, "value"), nil
}

// Checked reports whether the element carrying marker is checked.
func (p *Page) Checked(marker string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n, err := p.nodeLocked(marker)
	if err != nil {
		return false, err
	}
	return hasAttr(n, "checked"), nil
}

// single resolves d to exactly one node.
func (p *Page) single(d schemas.SelectorDescriptor) (*html.Node, error) {
	nodes, err := p.resolve(d)
	if err != nil {
		return nil, err
	}
	switch len(nodes) {
	case 0:
		return nil, fmt.Errorf("%s: %w", selector.String(d), selector.ErrNotFound)
	case 1:
		return nodes[0], nil
	default:
		return nil, fmt.Errorf("%s matched %d elements: %w", selector.String(d), len(nodes), selector.ErrAmbiguousMatch)
	}
}

func (p *Page) checkRadio(n *html.Node) {
	name := htmlquery.SelectAttr(n, "name")
	if name != "" {
		forEachElement(p.doc, func(other *html.Node) bool {
			if strings.EqualFold(other.Data, "input") &&
				strings.EqualFold(htmlquery.SelectAttr(other, "type"), "radio") &&
				htmlquery.SelectAttr(other, "name") == name {
				setChecked(other, false)
			}
			return true
		})
	}
	setChecked(n, true)
}

func selectOption(n *html.Node, value string) bool {
	var target *html.Node
	forEachElement(n, func(opt *html.Node) bool {
		if !strings.EqualFold(opt.Data, "option") {
			return true
		}
		v, ok := attrLookup(opt)("value")
		if !ok {
			v = visibleText(opt)
		}
		if v == value || visibleText(opt) == value {
			target = opt
			return false
		}
		return true
	})
	if target == nil {
		return false
	}
	forEachElement(n, func(opt *html.Node) bool {
		if strings.EqualFold(opt.Data, "option") {
			removeAttr(opt, "selected")
		}
		return true
	})
	setAttr(target, "selected", "")
	return true
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attrLookup(n)(key)
	return ok
}

func setChecked(n *html.Node, checked bool) {
	if checked {
		setAttr(n, "checked", "")
		return
	}
	removeAttr(n, "checked")
}

func setAttr(n *html.Node, key, val string) {
	for i := range n.Attr {
		if strings.EqualFold(n.Attr[i].Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if !strings.EqualFold(a.Key, key) {
			out = append(out, a)
		}
	}
	n.Attr = out
}
