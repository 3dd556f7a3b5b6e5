// internal/selector/metadata.go
package selector

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
)

// ElementSnapshot is what a page reports about one element.
type ElementSnapshot struct {
	schemas.ElementMetadata

	// Marker is the element's identity marker.
	Marker string
	// Visible is false for elements that are hidden from the user.
	Visible bool
	// ValueAttr is the value attribute of input buttons, which names them.
	ValueAttr string
}

// Metadata returns the persisted part of the snapshot.
func (e *ElementSnapshot) Metadata() *schemas.ElementMetadata {
	if e == nil {
		return nil
	}
	md := e.ElementMetadata
	if len(e.Dataset) > 0 {
		md.Dataset = make(map[string]string, len(e.Dataset))
		for k, v := range e.Dataset {
			md.Dataset[k] = v
		}
	}
	return &md
}

// extractor reads one candidate value off an element; empty means absent.
type extractor func(el *ElementSnapshot) string

// firstNonEmpty returns the first non-empty value produced by the chain.
func firstNonEmpty(el *ElementSnapshot, chain ...extractor) string {
	if el == nil {
		return ""
	}
	for _, fn := range chain {
		if v := NormalizeWhitespace(fn(el)); v != "" {
			return v
		}
	}
	return ""
}

var (
	fromAriaLabel   extractor = func(el *ElementSnapshot) string { return el.AriaLabel }
	fromLabel       extractor = func(el *ElementSnapshot) string { return el.Label }
	fromAlt         extractor = func(el *ElementSnapshot) string { return el.Alt }
	fromTitle       extractor = func(el *ElementSnapshot) string { return el.Title }
	fromPlaceholder extractor = func(el *ElementSnapshot) string { return el.Placeholder }
	fromContent     extractor = func(el *ElementSnapshot) string {
		if !NameFromContent(el.Role) {
			return ""
		}
		return el.Text
	}
	fromButtonValue extractor = func(el *ElementSnapshot) string {
		if el.Tag != "input" {
			return ""
		}
		switch strings.ToLower(el.InputType) {
		case "submit":
			if el.ValueAttr == "" {
				return "Submit"
			}
			return el.ValueAttr
		case "reset":
			if el.ValueAttr == "" {
				return "Reset"
			}
			return el.ValueAttr
		case "button", "image":
			return el.ValueAttr
		}
		return ""
	}
)

// AccessibleName computes the name an element is announced by. Both page
// implementations resolve role descriptors against this value.
func AccessibleName(el *ElementSnapshot) string {
	return firstNonEmpty(el, fromAriaLabel, fromLabel, fromButtonValue, fromContent, fromAlt, fromTitle, fromPlaceholder)
}

// LabelText returns the text a label descriptor matches: the associated label,
// falling back to aria-label.
func LabelText(el *ElementSnapshot) string {
	return firstNonEmpty(el, fromLabel, fromAriaLabel)
}

// HasExplicitName reports whether the element is named by a label or aria-label.
func HasExplicitName(el *ElementSnapshot) bool {
	return LabelText(el) != ""
}

// TestIDValue returns the element's test identifier for the configured attribute.
func TestIDValue(el *ElementSnapshot, attribute string) string {
	if el == nil || len(el.Dataset) == 0 {
		return ""
	}
	return strings.TrimSpace(el.Dataset[DatasetKey(attribute)])
}

// DatasetKey converts a data-* attribute name to its dataset key, e.g.
// data-test-id becomes testId.
func DatasetKey(attribute string) string {
	name := strings.TrimPrefix(strings.ToLower(attribute), "data-")
	var sb strings.Builder
	upper := false
	for _, r := range name {
		if r == '-' {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// -- Text matching --

// NormalizeWhitespace collapses runs of whitespace and trims the ends.
func NormalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// MatchText applies the descriptor text rule: exact means equality after
// whitespace normalisation, otherwise a case-insensitive substring test.
func MatchText(candidate, value string, exact bool) bool {
	c := NormalizeWhitespace(candidate)
	v := NormalizeWhitespace(value)
	if v == "" {
		return false
	}
	if exact {
		return c == v
	}
	return strings.Contains(strings.ToLower(c), strings.ToLower(v))
}

// TruncateRunes returns the first n runes of s.
func TruncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return strings.TrimSpace(s[:pos])
		}
		i++
	}
	return s
}
