package schemas

// -- Selector Descriptor Schemas --

// SelectorKind is the discriminant of a SelectorDescriptor.
type SelectorKind string

const (
	// SelectorTestID matches a stable test identifier attribute (data-testid by default).
	SelectorTestID SelectorKind = "testid"
	// SelectorRole matches by accessibility role and optional accessible name.
	SelectorRole SelectorKind = "role"
	// SelectorLabel matches by associated form label text.
	SelectorLabel SelectorKind = "label"
	// SelectorPlaceholder matches the placeholder attribute.
	SelectorPlaceholder SelectorKind = "placeholder"
	// SelectorAlt matches the alt attribute.
	SelectorAlt SelectorKind = "alt"
	// SelectorTitle matches the title attribute.
	SelectorTitle SelectorKind = "title"
	// SelectorText matches visible text content.
	SelectorText SelectorKind = "text"
	// SelectorCSS is the raw structural fallback.
	SelectorCSS SelectorKind = "css"
)

// SelectorDescriptor is a serializable, re-resolvable description of how to
// find one DOM element again later. Only the fields relevant to Type are set.
//
// A descriptor carrying Child is resolved by first resolving the descriptor
// itself and then resolving Child inside every match. Nth (0-based) picks one
// element out of the match set of the level that carries it.
type SelectorDescriptor struct {
	Type SelectorKind `json:"type"`

	// Value is used by testid, label, placeholder, alt, title and text.
	Value string `json:"value,omitempty"`
	// Role and Name are used by role.
	Role string `json:"role,omitempty"`
	Name string `json:"name,omitempty"`
	// Selector is used by css.
	Selector string `json:"selector,omitempty"`

	// Exact requests whitespace-normalised equality instead of
	// case-insensitive substring matching. Nil means non-exact.
	Exact *bool `json:"exact,omitempty"`
	Nth   *int  `json:"nth,omitempty"`

	Child *SelectorDescriptor `json:"child,omitempty"`
}

// IsExact reports whether the descriptor requests exact matching.
func (d SelectorDescriptor) IsExact() bool {
	return d.Exact != nil && *d.Exact
}

// ElementMetadata is the descriptive part of an element captured at the time
// a descriptor was synthesized. It is stored alongside the descriptor purely
// for humans and diagnostics; replay never reads it.
type ElementMetadata struct {
	Tag         string            `json:"tag"`
	Text        string            `json:"text,omitempty"`
	ID          string            `json:"id,omitempty"`
	Role        string            `json:"role,omitempty"`
	Label       string            `json:"label,omitempty"`
	AriaLabel   string            `json:"ariaLabel,omitempty"`
	Placeholder string            `json:"placeholder,omitempty"`
	Alt         string            `json:"alt,omitempty"`
	Title       string            `json:"title,omitempty"`
	InputType   string            `json:"type,omitempty"`
	NameAttr    string            `json:"name,omitempty"`
	Dataset     map[string]string `json:"dataset,omitempty"`
	NthOfType   int               `json:"nthOfType,omitempty"`
}
