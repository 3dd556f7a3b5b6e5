// internal/selector/descriptor.go
package selector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
)

// -- Constructors --

func boolPtr(b bool) *bool { return &b }

func exactPtr(exact bool) *bool {
	if !exact {
		return nil
	}
	return boolPtr(true)
}

// TestID builds a descriptor matching the stable test identifier attribute.
func TestID(value string) schemas.SelectorDescriptor {
	return schemas.SelectorDescriptor{Type: schemas.SelectorTestID, Value: value}
}

// Role builds a role descriptor. An empty name matches every element with the role.
func Role(role, name string, exact bool) schemas.SelectorDescriptor {
	d := schemas.SelectorDescriptor{Type: schemas.SelectorRole, Role: role, Name: name}
	if name != "" {
		d.Exact = exactPtr(exact)
	}
	return d
}

// Label builds a descriptor matching associated label text.
func Label(value string, exact bool) schemas.SelectorDescriptor {
	return schemas.SelectorDescriptor{Type: schemas.SelectorLabel, Value: value, Exact: exactPtr(exact)}
}

// Placeholder builds a descriptor matching the placeholder attribute.
func Placeholder(value string, exact bool) schemas.SelectorDescriptor {
	return schemas.SelectorDescriptor{Type: schemas.SelectorPlaceholder, Value: value, Exact: exactPtr(exact)}
}

// Alt builds a descriptor matching the alt attribute.
func Alt(value string, exact bool) schemas.SelectorDescriptor {
	return schemas.SelectorDescriptor{Type: schemas.SelectorAlt, Value: value, Exact: exactPtr(exact)}
}

// Title builds a descriptor matching the title attribute.
func Title(value string, exact bool) schemas.SelectorDescriptor {
	return schemas.SelectorDescriptor{Type: schemas.SelectorTitle, Value: value, Exact: exactPtr(exact)}
}

// Text builds a descriptor matching visible text.
func Text(value string, exact bool) schemas.SelectorDescriptor {
	return schemas.SelectorDescriptor{Type: schemas.SelectorText, Value: value, Exact: exactPtr(exact)}
}

// CSS builds a raw structural descriptor.
func CSS(selector string) schemas.SelectorDescriptor {
	return schemas.SelectorDescriptor{Type: schemas.SelectorCSS, Selector: selector}
}

// -- Composition --

// Clone returns a deep copy of d.
func Clone(d schemas.SelectorDescriptor) schemas.SelectorDescriptor {
	out := d
	if d.Exact != nil {
		out.Exact = boolPtr(*d.Exact)
	}
	if d.Nth != nil {
		n := *d.Nth
		out.Nth = &n
	}
	if d.Child != nil {
		child := Clone(*d.Child)
		out.Child = &child
	}
	return out
}

// WithNth returns a copy of d that picks the nth (0-based) match.
func WithNth(d schemas.SelectorDescriptor, nth int) schemas.SelectorDescriptor {
	out := Clone(d)
	out.Nth = &nth
	return out
}

// WithChild returns a copy of parent that resolves child inside its matches.
// An existing child chain is extended at its innermost level.
func WithChild(parent, child schemas.SelectorDescriptor) schemas.SelectorDescriptor {
	out := Clone(parent)
	c := Clone(child)
	last := &out
	for last.Child != nil {
		last = last.Child
	}
	last.Child = &c
	return out
}

// WithInnermostNth sets nth on the deepest level of the chain, which is the
// level whose match set is the final result.
func WithInnermostNth(d schemas.SelectorDescriptor, nth int) schemas.SelectorDescriptor {
	out := Clone(d)
	last := &out
	for last.Child != nil {
		last = last.Child
	}
	last.Nth = &nth
	return out
}

// Depth returns the number of levels in the descriptor chain.
func Depth(d schemas.SelectorDescriptor) int {
	n := 1
	for c := d.Child; c != nil; c = c.Child {
		n++
	}
	return n
}

// CanIndex reports whether descriptors of the given kind may carry nth.
func CanIndex(kind schemas.SelectorKind) bool {
	return kind != schemas.SelectorCSS && kind != schemas.SelectorTestID
}

// -- Validation --

// Validate checks that d and its children carry the fields their kind requires.
func Validate(d schemas.SelectorDescriptor) error {
	for level, cur := 0, &d; cur != nil; level, cur = level+1, cur.Child {
		if err := validateLevel(*cur); err != nil {
			if level == 0 {
				return err
			}
			return fmt.Errorf("child level %d: %w", level, err)
		}
	}
	return nil
}

// validateLevel checks one level of a chain in isolation. Each kind has its
// own required field, and only the semantic kinds may carry an index: a css
// selector can express position itself, and a test id is unique by contract.
func validateLevel(d schemas.SelectorDescriptor) error {
	switch d.Type {
	case schemas.SelectorTestID, schemas.SelectorLabel, schemas.SelectorPlaceholder,
		schemas.SelectorAlt, schemas.SelectorTitle, schemas.SelectorText:
		if d.Value == "" {
			return fmt.Errorf("%w: %s descriptor requires a value", ErrInvalidDescriptor, d.Type)
		}
	case schemas.SelectorRole:
		if d.Role == "" {
			return fmt.Errorf("%w: role descriptor requires a role", ErrInvalidDescriptor)
		}
	case schemas.SelectorCSS:
		if strings.TrimSpace(d.Selector) == "" {
			return fmt.Errorf("%w: css descriptor requires a selector", ErrInvalidDescriptor)
		}
	case "":
		return fmt.Errorf("%w: missing type", ErrInvalidDescriptor)
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidDescriptor, d.Type)
	}
	if d.Nth != nil {
		if !CanIndex(d.Type) {
			return fmt.Errorf("%w: %s descriptor cannot carry nth", ErrInvalidDescriptor, d.Type)
		}
		if *d.Nth < 0 {
			return fmt.Errorf("%w: negative nth %d", ErrInvalidDescriptor, *d.Nth)
		}
	}
	return nil
}

// -- Formatting --

// String renders d as a readable locator chain, e.g.
// role=button[name="Save"] >> nth=1 >> text="OK"s.
func String(d schemas.SelectorDescriptor) string {
	var sb strings.Builder
	for cur := &d; cur != nil; cur = cur.Child {
		if sb.Len() > 0 {
			sb.WriteString(" >> ")
		}
		sb.WriteString(levelString(*cur))
		if cur.Nth != nil {
			sb.WriteString(" >> nth=")
			sb.WriteString(strconv.Itoa(*cur.Nth))
		}
	}
	return sb.String()
}

// levelString renders a single level. An "s" suffix marks exact matching.
func levelString(d schemas.SelectorDescriptor) string {
	suffix := ""
	if d.IsExact() {
		suffix = "s"
	}
	switch d.Type {
	case schemas.SelectorRole:
		if d.Name == "" {
			return "role=" + d.Role
		}
		return fmt.Sprintf("role=%s[name=%s%s]", d.Role, strconv.Quote(d.Name), suffix)
	case schemas.SelectorCSS:
		return "css=" + d.Selector
	case schemas.SelectorTestID:
		return "testid=" + strconv.Quote(d.Value)
	default:
		return fmt.Sprintf("%s=%s%s", d.Type, strconv.Quote(d.Value), suffix)
	}
}
