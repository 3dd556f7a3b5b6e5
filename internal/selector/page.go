// internal/selector/page.go
package selector

import (
	"context"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
)

// PageQuery is the narrow view of a rendered page the verifier and the
// synthesizer need. Identity markers are opaque strings assigned by the page;
// the same element always reports the same marker for the lifetime of the page.
type PageQuery interface {
	// CountMatches resolves d and returns the number of matches.
	CountMatches(ctx context.Context, d schemas.SelectorDescriptor) (int, error)
	// IdentityMarkers resolves d and returns the marker of every match in
	// document order, tagging untagged elements on the way.
	IdentityMarkers(ctx context.Context, d schemas.SelectorDescriptor) ([]string, error)
	// ResolveMarker resolves d to exactly one element and returns its marker.
	// Zero matches yield ErrNotFound.
	ResolveMarker(ctx context.Context, d schemas.SelectorDescriptor) (string, error)
	// ElementMetadata reads the descriptive facts of the element carrying marker.
	ElementMetadata(ctx context.Context, marker string) (*ElementSnapshot, error)
	// Ancestors returns the markers of the element's ancestors, nearest first,
	// ending at body. A limit of zero returns all of them.
	Ancestors(ctx context.Context, marker string, limit int) ([]string, error)
	// Closed reports whether the page or its browser context was torn down.
	Closed() bool
}

// Target identifies the element a descriptor is synthesized for. Exactly one
// of Locator or Marker is set.
type Target struct {
	// Locator is resolved on the page; it must match at least one element.
	// The first match is taken.
	Locator *schemas.SelectorDescriptor
	// Marker names an element that was already tagged by the page.
	Marker string
}

// TargetLocator returns a Target resolved through d.
func TargetLocator(d schemas.SelectorDescriptor) Target {
	return Target{Locator: &d}
}

// TargetMarker returns a Target for an already tagged element.
func TargetMarker(marker string) Target {
	return Target{Marker: marker}
}
