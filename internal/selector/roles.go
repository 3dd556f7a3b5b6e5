package selector

import "strings"

// ImplicitRole returns the ARIA role an element has without an explicit role
// attribute. attr looks up an attribute by lower-case name. Generic containers
// return the empty string.
func ImplicitRole(tag string, attr func(name string) (string, bool)) string {
	has := func(name string) bool {
		_, ok := attr(name)
		return ok
	}
	get := func(name string) string {
		v, _ := attr(name)
		return strings.ToLower(strings.TrimSpace(v))
	}

	switch strings.ToLower(tag) {
	case "a", "area":
		if has("href") {
			return "link"
		}
	case "button":
		return "button"
	case "input":
		switch get("type") {
		case "button", "submit", "reset", "image":
			return "button"
		case "checkbox":
			return "checkbox"
		case "radio":
			return "radio"
		case "range":
			return "slider"
		case "number":
			return "spinbutton"
		case "search":
			if has("list") {
				return "combobox"
			}
			return "searchbox"
		case "", "text", "email", "tel", "url":
			if has("list") {
				return "combobox"
			}
			return "textbox"
		}
	case "textarea":
		return "textbox"
	case "select":
		if has("multiple") {
			return "listbox"
		}
		if size := get("size"); size != "" && size != "0" && size != "1" {
			return "listbox"
		}
		return "combobox"
	case "option":
		return "option"
	case "img":
		if v, ok := attr("alt"); ok && v == "" {
			return "presentation"
		}
		return "img"
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return "heading"
	case "ul", "ol", "menu":
		return "list"
	case "li":
		return "listitem"
	case "nav":
		return "navigation"
	case "main":
		return "main"
	case "header":
		return "banner"
	case "footer":
		return "contentinfo"
	case "aside":
		return "complementary"
	case "form":
		return "form"
	case "table":
		return "table"
	case "tr":
		return "row"
	case "td":
		return "cell"
	case "th":
		return "columnheader"
	case "dialog":
		return "dialog"
	case "article":
		return "article"
	case "fieldset":
		return "group"
	case "progress":
		return "progressbar"
	case "hr":
		return "separator"
	case "summary":
		return "button"
	}
	return ""
}

// ResolveRole returns the explicit role if present, else the implicit one.
func ResolveRole(tag string, attr func(name string) (string, bool)) string {
	if explicit, ok := attr("role"); ok {
		if fields := strings.Fields(strings.ToLower(explicit)); len(fields) > 0 {
			return fields[0]
		}
	}
	return ImplicitRole(tag, attr)
}

var contentNamedRoles = map[string]struct{}{
	"button": {}, "link": {}, "heading": {}, "option": {}, "tab": {},
	"menuitem": {}, "menuitemcheckbox": {}, "menuitemradio": {},
	"checkbox": {}, "radio": {}, "switch": {}, "cell": {}, "gridcell": {},
	"columnheader": {}, "rowheader": {}, "row": {}, "treeitem": {}, "tooltip": {},
}

// NameFromContent reports whether the role takes its accessible name from
// the element's text content.
func NameFromContent(role string) bool {
	_, ok := contentNamedRoles[role]
	return ok
}

// IsFormControl reports whether the tag is an editable or selectable control.
func IsFormControl(tag string) bool {
	switch strings.ToLower(tag) {
	case "input", "textarea", "select":
		return true
	}
	return false
}
