package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/jsoncompare"
)

// SaveResult reports what a Save did.
type SaveResult struct {
	// Written is false when nothing changed and the write was skipped.
	Written bool
	// ChangedSteps lists the hashes whose content was added or replaced.
	ChangedSteps []string
}

// Failure describes a failed run for RecordFailure. All fields are optional.
type Failure struct {
	TestText  string
	StepIndex *int
	StepText  string
	Err       error
}

// Store is the snapshot store. Reads that fail degrade to "no snapshot";
// writes fail only when the snapshot directory cannot be created.
type Store struct {
	backend  Backend
	logger   *zap.Logger
	comparer *jsoncompare.Comparer
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a store over backend.
func NewStore(backend Backend, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		backend:  backend,
		logger:   logger.Named("snapshot"),
		comparer: jsoncompare.NewComparer(logger, jsoncompare.DefaultOptions()),
		now:      time.Now,
		locks:    make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock serializes read-modify-write cycles per location within this process.
func (s *Store) lock(location string) func() {
	s.mu.Lock()
	l, ok := s.locks[location]
	if !ok {
		l = &sync.Mutex{}
		s.locks[location] = l
	}
	s.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// load reads the file for location. Unreadable or corrupt files are logged
// and treated as absent.
func (s *Store) load(ctx context.Context, location string) *schemas.MimicFile {
	file, err := s.backend.Load(ctx, location)
	if err != nil {
		s.logger.Warn("Snapshot file unreadable, treating as empty",
			zap.String("location", location), zap.Error(err))
		return nil
	}
	return file
}

// loadForUpdate is load for the read-modify-write paths. It always returns a
// file, and reports whether it stands in for an unreadable document that the
// coming write will overwrite.
func (s *Store) loadForUpdate(ctx context.Context, location string) (*schemas.MimicFile, bool) {
	file, err := s.backend.Load(ctx, location)
	if err != nil {
		s.logger.Warn("Snapshot file unreadable, treating as empty",
			zap.String("location", location), zap.Error(err))
		return &schemas.MimicFile{}, true
	}
	if file == nil {
		return &schemas.MimicFile{}, false
	}
	return file, false
}

// Get returns the stored record for testHash, or nil. A record that only
// exists in the legacy layout is returned migrated but is not rewritten.
func (s *Store) Get(ctx context.Context, location, testHash string) *schemas.Snapshot {
	if snap := s.load(ctx, location).Find(testHash); snap != nil {
		return snap
	}
	return s.loadLegacy(ctx, location, testHash)
}

// loadLegacy falls back to the per-hash layout when the backend has one.
func (s *Store) loadLegacy(ctx context.Context, location, testHash string) *schemas.Snapshot {
	legacy, ok := s.backend.(LegacyReader)
	if !ok {
		return nil
	}
	snap, err := legacy.LoadLegacy(ctx, location, testHash)
	if err != nil {
		s.logger.Warn("Legacy snapshot unreadable, treating as absent",
			zap.String("location", location), zap.String("test_hash", testHash), zap.Error(err))
		return nil
	}
	return snap
}

// List returns every record stored for location, legacy records excluded.
func (s *Store) List(ctx context.Context, location string) ([]*schemas.Snapshot, error) {
	file, err := s.backend.Load(ctx, location)
	if err != nil {
		return nil, err
	}
	if file == nil {
		return nil, nil
	}
	return file.Tests, nil
}

// ShouldUse reports whether the stored record can be replayed instead of
// regenerating the test.
func (s *Store) ShouldUse(ctx context.Context, location, testHash string, expectedSteps int) bool {
	return trusted(s.Get(ctx, location, testHash), expectedSteps)
}

// Save merges a passing run into the stored record. Unchanged steps keep
// their executedAt, steps not in snap are kept, and the write is skipped when
// the merge changes nothing.
func (s *Store) Save(ctx context.Context, location string, snap *schemas.Snapshot) (*SaveResult, error) {
	if snap == nil || snap.TestHash == "" {
		return nil, fmt.Errorf("snapshot without test hash")
	}
	unlock := s.lock(location)
	defer unlock()

	file, replaced := s.loadForUpdate(ctx, location)
	stored := file.Find(snap.TestHash)
	migrated := false
	if stored == nil {
		stored = s.loadLegacy(ctx, location, snap.TestHash)
		migrated = stored != nil
	}

	now := s.now()
	var record *schemas.Snapshot
	var outcome mergeOutcome
	if stored == nil {
		record = schemas.NewSnapshot(snap.TestHash, snap.TestText)
		record.Flags.CreatedAt = now.UTC()
		record.Flags.SkipSnapshot = snap.Flags.SkipSnapshot
		outcome = mergeSteps(s.comparer, record, snap, now.UTC())
		outcome.firstPass = true
	} else {
		record = cloneSnapshot(stored)
		outcome = mergeSteps(s.comparer, record, snap, now.UTC())
		f := record.Flags
		outcome.flagsChanged = f.ForceRegenerate || f.NeedsRetry || f.HasErrors
		outcome.firstPass = !passedSinceFailure(f)
		if snap.TestText != "" && record.TestText != snap.TestText {
			record.TestText = snap.TestText
			outcome.reindexed = true
		}
	}

	result := &SaveResult{ChangedSteps: outcome.changedSteps}
	if !outcome.dirty() && !migrated {
		s.logger.Debug("Snapshot unchanged, skipping write",
			zap.String("location", location), zap.String("test_hash", snap.TestHash))
		return result, nil
	}

	if outcome.advancesPass() {
		record.Flags.LastPassedAt = stampPtr(monotonic(now, record.Flags.LastPassedAt, record.Flags.LastFailedAt))
	}
	record.Flags.ForceRegenerate = false
	record.Flags.NeedsRetry = false
	record.Flags.HasErrors = false
	if record.Flags.CreatedAt.IsZero() {
		record.Flags.CreatedAt = now.UTC()
	}
	file.Upsert(record)

	written, err := s.write(ctx, location, file, replaced)
	if err != nil || !written {
		return result, err
	}
	result.Written = true
	s.logger.Info("Snapshot saved",
		zap.String("location", location),
		zap.String("test_hash", snap.TestHash),
		zap.Int("changed_steps", len(outcome.changedSteps)),
		zap.Int("total_steps", record.StepCount()))
	return result, nil
}

// RecordFailure marks the record stale. A failure-only record is created when
// the test has never passed.
func (s *Store) RecordFailure(ctx context.Context, location, testHash string, failure Failure) error {
	unlock := s.lock(location)
	defer unlock()

	file, replaced := s.loadForUpdate(ctx, location)
	now := s.now()

	var record *schemas.Snapshot
	if stored := file.Find(testHash); stored != nil {
		record = cloneSnapshot(stored)
	} else if legacy := s.loadLegacy(ctx, location, testHash); legacy != nil {
		record = cloneSnapshot(legacy)
	} else {
		record = schemas.NewSnapshot(testHash, failure.TestText)
		record.Flags.CreatedAt = now.UTC()
	}

	at := monotonic(now, record.Flags.LastPassedAt, record.Flags.LastFailedAt)
	record.Flags.LastFailedAt = stampPtr(at)
	record.Flags.NeedsRetry = true
	record.Flags.HasErrors = true
	record.LastFailure = &schemas.FailureRecord{
		StepIndex: failure.StepIndex,
		StepText:  failure.StepText,
		At:        at,
	}
	if failure.Err != nil {
		record.LastFailure.Message = failure.Err.Error()
	}
	file.Upsert(record)

	s.logger.Info("Recording snapshot failure",
		zap.String("location", location), zap.String("test_hash", testHash), zap.Error(failure.Err))
	_, err := s.write(ctx, location, file, replaced)
	return err
}

// SetFlags applies mutate to the flags of an existing record and writes it.
func (s *Store) SetFlags(ctx context.Context, location, testHash string, mutate func(*schemas.SnapshotFlags)) error {
	unlock := s.lock(location)
	defer unlock()

	file, replaced := s.loadForUpdate(ctx, location)
	stored := file.Find(testHash)
	if stored == nil {
		stored = s.loadLegacy(ctx, location, testHash)
	}
	if stored == nil {
		return fmt.Errorf("%w: %s", ErrNoSnapshot, testHash)
	}
	record := cloneSnapshot(stored)
	mutate(&record.Flags)
	file.Upsert(record)
	_, err := s.write(ctx, location, file, replaced)
	return err
}

// write persists file. Only a failure to create the snapshot directory is
// returned; anything else is logged so a broken cache never fails a run.
// replaced is set when file stands in for a document that could not be read;
// the records that document held are gone once the write succeeds.
func (s *Store) write(ctx context.Context, location string, file *schemas.MimicFile, replaced bool) (bool, error) {
	if replaced {
		s.logger.Warn("Replacing unreadable snapshot file, records it held are dropped",
			zap.String("location", location), zap.Int("records_written", len(file.Tests)))
	}
	file.Version = schemas.CurrentMimicFileVersion
	err := s.backend.Store(ctx, location, file)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrCreateDir) {
		return false, err
	}
	s.logger.Error("Failed to persist snapshots", zap.String("location", location), zap.Error(err))
	return false, nil
}

func stampPtr(t time.Time) *time.Time {
	return &t
}
