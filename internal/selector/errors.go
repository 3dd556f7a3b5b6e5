package selector

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a locator or descriptor matched zero elements.
	ErrNotFound = errors.New("element not found")
	// ErrAmbiguousMatch indicates more than one match where exactly one was required.
	ErrAmbiguousMatch = errors.New("ambiguous match")
	// ErrPageClosed indicates the page or its browser context was torn down mid-operation.
	ErrPageClosed = errors.New("page or browser context closed")
	// ErrTimeout indicates a page operation exceeded its deadline.
	ErrTimeout = errors.New("page operation timed out")
	// ErrInvalidDescriptor indicates a structurally invalid descriptor.
	ErrInvalidDescriptor = errors.New("invalid selector descriptor")
)

// ensureOpen converts a torn-down page into ErrPageClosed.
func ensureOpen(page PageQuery) error {
	if page == nil || page.Closed() {
		return ErrPageClosed
	}
	return nil
}

// classifyProbeError maps an error from a page probe onto the taxonomy.
// opCtx is the per-operation context; parent is the caller's context.
func classifyProbeError(parent, opCtx context.Context, page PageQuery, op string, err error) error {
	switch {
	case errors.Is(err, ErrPageClosed), page != nil && page.Closed():
		return fmt.Errorf("%s: %w", op, ErrPageClosed)
	case errors.Is(err, ErrNotFound):
		return fmt.Errorf("%s: %w", op, err)
	case parent.Err() != nil:
		return fmt.Errorf("%s: %w", op, parent.Err())
	case errors.Is(opCtx.Err(), context.DeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%s: %w", op, ErrTimeout)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
