package snapshot

import (
	"context"
	"errors"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
)

var (
	// ErrCreateDir is returned when the snapshot directory cannot be created.
	// It is the only write-path failure that aborts a run.
	ErrCreateDir = errors.New("snapshot directory could not be created")
	// ErrCorrupt marks a stored document that exists but cannot be decoded.
	ErrCorrupt = errors.New("snapshot document is corrupt")
	// ErrNoSnapshot is returned by operations that need an existing record.
	ErrNoSnapshot = errors.New("no snapshot recorded for test")
)

// Backend persists one MimicFile per test file location.
type Backend interface {
	// Load returns the stored file, or nil with no error when none exists.
	Load(ctx context.Context, location string) (*schemas.MimicFile, error)
	// Store replaces the stored file for location.
	Store(ctx context.Context, location string, file *schemas.MimicFile) error
}

// LegacyReader is implemented by backends that can still read snapshots
// written one per test hash.
type LegacyReader interface {
	LoadLegacy(ctx context.Context, location, testHash string) (*schemas.Snapshot, error)
}
