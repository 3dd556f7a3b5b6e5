package snapshot

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/jsoncompare"
)

// mergeOutcome describes what merging an incoming pass into a stored record did.
type mergeOutcome struct {
	changedSteps []string
	reindexed    bool
	flagsChanged bool
	firstPass    bool
}

// dirty reports whether the merged record differs from what is stored.
func (o mergeOutcome) dirty() bool {
	return len(o.changedSteps) > 0 || o.reindexed || o.flagsChanged || o.firstPass
}

// advancesPass reports whether the pass stamp moves forward. A step that only
// moved within the test body is bookkeeping, not a new pass.
func (o mergeOutcome) advancesPass() bool {
	return len(o.changedSteps) > 0 || o.flagsChanged || o.firstPass
}

// mergeSteps folds incoming steps into stored. Steps absent from incoming are
// kept. A step whose content is structurally unchanged keeps its stored
// executedAt.
func mergeSteps(cmp *jsoncompare.Comparer, stored, incoming *schemas.Snapshot, now time.Time) mergeOutcome {
	var out mergeOutcome
	hashes := make([]string, 0, len(incoming.StepsByHash))
	for h := range incoming.StepsByHash {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	for _, h := range hashes {
		next := incoming.StepsByHash[h]
		if next == nil {
			continue
		}
		prev := stored.StepsByHash[h]
		if prev == nil || !sameContent(cmp, prev, next) {
			step := *next
			step.StepHash = h
			if step.ExecutedAt.IsZero() {
				step.ExecutedAt = now
			}
			stored.PutStep(&step)
			out.changedSteps = append(out.changedSteps, h)
			continue
		}
		if prev.StepIndex != next.StepIndex || prev.StepText != next.StepText {
			prev.StepIndex = next.StepIndex
			prev.StepText = next.StepText
			out.reindexed = true
		}
	}
	return out
}

// sameContent compares the replayable part of two steps. Key order inside the
// action payload and the target is not significant.
func sameContent(cmp *jsoncompare.Comparer, a, b *schemas.SnapshotStep) bool {
	if a.ActionKind != b.ActionKind {
		return false
	}
	if !cmp.Equal(rawOrNull(a.ActionDetails), rawOrNull(b.ActionDetails)) {
		return false
	}
	return cmp.Equal(a.TargetElement, b.TargetElement)
}

func rawOrNull(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return json.RawMessage(raw)
}

// cloneSnapshot copies the record and its step map. Steps themselves are
// copied shallowly since merge replaces rather than edits their content.
func cloneSnapshot(s *schemas.Snapshot) *schemas.Snapshot {
	c := *s
	c.StepsByHash = make(map[string]*schemas.SnapshotStep, len(s.StepsByHash))
	for h, step := range s.StepsByHash {
		cp := *step
		c.StepsByHash[h] = &cp
	}
	if s.LastFailure != nil {
		lf := *s.LastFailure
		c.LastFailure = &lf
	}
	return &c
}

// trusted is the replay-versus-regenerate decision for one record.
func trusted(s *schemas.Snapshot, expectedSteps int) bool {
	if s == nil {
		return false
	}
	f := s.Flags
	if f.SkipSnapshot || f.ForceRegenerate {
		return false
	}
	if s.StepCount() < expectedSteps {
		return false
	}
	if f.LastPassedAt == nil {
		return false
	}
	return f.LastFailedAt == nil || f.LastPassedAt.After(*f.LastFailedAt)
}

// passedSinceFailure reports whether the last recorded event is a pass.
func passedSinceFailure(f schemas.SnapshotFlags) bool {
	return f.LastPassedAt != nil && (f.LastFailedAt == nil || f.LastPassedAt.After(*f.LastFailedAt))
}

// monotonic returns now, or one microsecond past the latest of after when the
// clock has not moved beyond it. Microseconds survive a round trip through
// Postgres timestamps.
func monotonic(now time.Time, after ...*time.Time) time.Time {
	stamp := now.UTC().Truncate(time.Microsecond)
	for _, t := range after {
		if t != nil && !stamp.After(*t) {
			stamp = t.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
		}
	}
	return stamp
}
