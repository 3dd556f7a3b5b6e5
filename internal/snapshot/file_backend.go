package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
)

const (
	// DefaultDirName is the sibling directory holding .mimic.json files.
	DefaultDirName = "__mimic__"
	// DefaultLegacyDirName holds snapshots written one file per test hash.
	DefaultLegacyDirName = ".mimic-snapshots"
	fileSuffix           = ".mimic.json"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// FileBackend stores snapshots as JSON next to the test files they describe.
type FileBackend struct {
	logger        *zap.Logger
	dirName       string
	legacyDirName string
}

// NewFileBackend creates a file backend. Empty directory names fall back to
// the defaults.
func NewFileBackend(logger *zap.Logger, dirName, legacyDirName string) *FileBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dirName == "" {
		dirName = DefaultDirName
	}
	if legacyDirName == "" {
		legacyDirName = DefaultLegacyDirName
	}
	return &FileBackend{
		logger:        logger.Named("file_backend"),
		dirName:       dirName,
		legacyDirName: legacyDirName,
	}
}

// Path returns the .mimic.json path for a test file location.
func (b *FileBackend) Path(location string) string {
	return filepath.Join(filepath.Dir(location), b.dirName, filepath.Base(location)+fileSuffix)
}

// LegacyPath returns the per-hash path used by the old layout.
func (b *FileBackend) LegacyPath(location, testHash string) string {
	return filepath.Join(filepath.Dir(location), b.legacyDirName, testHash+".json")
}

func (b *FileBackend) Load(ctx context.Context, location string) (*schemas.MimicFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := b.Path(location)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var file schemas.MimicFile
	if err := codec.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return &file, nil
}

func (b *FileBackend) LoadLegacy(ctx context.Context, location, testHash string) (*schemas.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := b.LegacyPath(location, testHash)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var snap schemas.Snapshot
	if err := codec.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	if snap.TestHash == "" {
		snap.TestHash = testHash
	}
	b.logger.Debug("Read legacy snapshot", zap.String("path", path), zap.Int("steps", snap.StepCount()))
	return &snap, nil
}

// Store writes the file through a temporary file and a rename so a crash
// never leaves a truncated document behind.
func (b *FileBackend) Store(ctx context.Context, location string, file *schemas.MimicFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := b.Path(location)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCreateDir, dir, err)
	}

	data, err := codec.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshots: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op after a successful rename
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	b.logger.Debug("Wrote snapshot file", zap.String("path", path), zap.Int("tests", len(file.Tests)))
	return nil
}
