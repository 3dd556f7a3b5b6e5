package schemas

import (
	"encoding/json"
	"sort"
	"time"
)

// -- Snapshot Schemas --

// ActionKind identifies the kind of a resolved step action.
type ActionKind string

const (
	ActionNavigation ActionKind = "navigation"
	ActionClick      ActionKind = "click"
	ActionFormUpdate ActionKind = "form-update"
)

// RequiresTarget reports whether actions of this kind operate on an element.
func (k ActionKind) RequiresTarget() bool {
	return k == ActionClick || k == ActionFormUpdate
}

// NavigationDetails is the payload of a navigation action.
type NavigationDetails struct {
	URL string `json:"url"`
}

// ClickType enumerates the supported pointer interactions.
type ClickType string

const (
	ClickLeft   ClickType = "click"
	ClickDouble ClickType = "double"
	ClickRight  ClickType = "right"
	ClickHover  ClickType = "hover"
)

// ClickDetails is the payload of a click action.
type ClickDetails struct {
	ClickType ClickType `json:"clickType,omitempty"`
}

// FormOperation enumerates the supported form updates.
type FormOperation string

const (
	FormFill    FormOperation = "fill"
	FormType    FormOperation = "type"
	FormSelect  FormOperation = "select"
	FormCheck   FormOperation = "check"
	FormUncheck FormOperation = "uncheck"
	FormClear   FormOperation = "clear"
	FormPress   FormOperation = "press"
)

// FormDetails is the payload of a form-update action.
type FormDetails struct {
	Operation FormOperation `json:"operation"`
	Value     string        `json:"value,omitempty"`
}

// TargetElement couples the descriptor used to find an element with the
// metadata observed when it was synthesized.
type TargetElement struct {
	Metadata *ElementMetadata   `json:"metadata,omitempty"`
	Selector SelectorDescriptor `json:"selector"`
}

// SnapshotStep is one resolved, replayable action for one distinct input step.
type SnapshotStep struct {
	StepHash      string          `json:"stepHash"`
	StepIndex     int             `json:"stepIndex"`
	StepText      string          `json:"stepText"`
	ActionKind    ActionKind      `json:"actionKind"`
	ActionDetails json.RawMessage `json:"actionDetails,omitempty"`
	TargetElement *TargetElement  `json:"targetElement,omitempty"`
	ExecutedAt    time.Time       `json:"executedAt"`
}

// SnapshotFlags carries the trust state of a Snapshot.
type SnapshotFlags struct {
	CreatedAt       time.Time  `json:"createdAt"`
	LastPassedAt    *time.Time `json:"lastPassedAt"`
	LastFailedAt    *time.Time `json:"lastFailedAt"`
	NeedsRetry      bool       `json:"needsRetry"`
	HasErrors       bool       `json:"hasErrors"`
	SkipSnapshot    bool       `json:"skipSnapshot"`
	ForceRegenerate bool       `json:"forceRegenerate"`
}

// FailureRecord describes the most recent failure recorded for a test.
type FailureRecord struct {
	StepIndex *int      `json:"stepIndex,omitempty"`
	StepText  string    `json:"stepText,omitempty"`
	Message   string    `json:"message,omitempty"`
	At        time.Time `json:"at"`
}

// Snapshot is the stored, replayable record of one test body. StepsByHash is
// the authoritative store; Steps derives the ordered view.
type Snapshot struct {
	TestHash    string                   `json:"testHash"`
	TestText    string                   `json:"testText"`
	StepsByHash map[string]*SnapshotStep `json:"stepsByHash"`
	Flags       SnapshotFlags            `json:"flags"`
	LastFailure *FailureRecord           `json:"lastFailure,omitempty"`
}

// NewSnapshot returns an empty snapshot for the given test.
func NewSnapshot(testHash, testText string) *Snapshot {
	return &Snapshot{
		TestHash:    testHash,
		TestText:    testText,
		StepsByHash: make(map[string]*SnapshotStep),
	}
}

// PutStep stores a step, superseding any step with the same hash.
func (s *Snapshot) PutStep(step *SnapshotStep) {
	if s.StepsByHash == nil {
		s.StepsByHash = make(map[string]*SnapshotStep)
	}
	s.StepsByHash[step.StepHash] = step
}

// StepCount returns the number of distinct recorded steps.
func (s *Snapshot) StepCount() int {
	return len(s.StepsByHash)
}

// Steps returns the recorded steps ordered by StepIndex. Ties are broken by
// hash so the order is deterministic.
func (s *Snapshot) Steps() []*SnapshotStep {
	steps := make([]*SnapshotStep, 0, len(s.StepsByHash))
	for _, step := range s.StepsByHash {
		steps = append(steps, step)
	}
	sort.Slice(steps, func(i, j int) bool {
		if steps[i].StepIndex != steps[j].StepIndex {
			return steps[i].StepIndex < steps[j].StepIndex
		}
		return steps[i].StepHash < steps[j].StepHash
	})
	return steps
}

// legacySnapshot is the on-disk shape written before steps were keyed by hash
// and before the trust flags were grouped.
type legacySnapshot struct {
	Steps        []*SnapshotStep `json:"steps"`
	CreatedAt    *time.Time      `json:"createdAt"`
	LastPassedAt *time.Time      `json:"lastPassedAt"`
	LastFailedAt *time.Time      `json:"lastFailedAt"`
	NeedsRetry   bool            `json:"needsRetry"`
	HasErrors    bool            `json:"hasErrors"`
}

// UnmarshalJSON decodes both the current and the legacy shape.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	type current Snapshot
	var cur current
	if err := json.Unmarshal(data, &cur); err != nil {
		return err
	}
	*s = Snapshot(cur)

	var legacy legacySnapshot
	if err := json.Unmarshal(data, &legacy); err != nil {
		return err
	}
	if len(s.StepsByHash) == 0 && len(legacy.Steps) > 0 {
		s.StepsByHash = make(map[string]*SnapshotStep, len(legacy.Steps))
		for i, step := range legacy.Steps {
			if step == nil || step.StepHash == "" {
				continue
			}
			if step.StepIndex == 0 && i > 0 {
				step.StepIndex = i
			}
			s.StepsByHash[step.StepHash] = step
		}
	}
	if s.Flags.CreatedAt.IsZero() && legacy.CreatedAt != nil {
		s.Flags.CreatedAt = *legacy.CreatedAt
		s.Flags.LastPassedAt = legacy.LastPassedAt
		s.Flags.LastFailedAt = legacy.LastFailedAt
		s.Flags.NeedsRetry = legacy.NeedsRetry
		s.Flags.HasErrors = legacy.HasErrors
	}
	if s.StepsByHash == nil {
		s.StepsByHash = make(map[string]*SnapshotStep)
	}
	return nil
}

// MimicFile is the file-level collection of snapshots for one test source file.
type MimicFile struct {
	Version int         `json:"version"`
	Tests   []*Snapshot `json:"tests"`
}

// CurrentMimicFileVersion is written into every saved MimicFile.
const CurrentMimicFileVersion = 2

// Find returns the snapshot for testHash, or nil.
func (f *MimicFile) Find(testHash string) *Snapshot {
	if f == nil {
		return nil
	}
	for _, t := range f.Tests {
		if t != nil && t.TestHash == testHash {
			return t
		}
	}
	return nil
}

// Upsert replaces the snapshot with the same hash or appends it.
func (f *MimicFile) Upsert(snap *Snapshot) {
	for i, t := range f.Tests {
		if t != nil && t.TestHash == snap.TestHash {
			f.Tests[i] = snap
			return
		}
	}
	f.Tests = append(f.Tests, snap)
}
