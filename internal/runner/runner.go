// Package runner executes one test body: replaying its snapshot when the
// store trusts it, regenerating it live through a decider otherwise.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/decider"
	"github.com/xkilldash9x/mimic-cli/internal/replay"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
	"github.com/xkilldash9x/mimic-cli/internal/snapshot"
)

// ErrEmptyTest is returned for a test body without steps.
var ErrEmptyTest = errors.New("test has no steps")

// Mode says how a test was executed.
type Mode string

const (
	ModeReplayed    Mode = "replayed"
	ModeRegenerated Mode = "regenerated"
)

// Page is a page the runner can query, synthesize against and drive.
type Page interface {
	selector.PageQuery
	replay.Executor
}

// StepError reports the live step that failed.
type StepError struct {
	StepIndex int
	StepText  string
	Cause     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%q) failed: %v", e.StepIndex, e.StepText, e.Cause)
}

func (e *StepError) Unwrap() error {
	return e.Cause
}

// Options configures a Runner.
type Options struct {
	// Regenerate ignores stored snapshots and always runs live.
	Regenerate bool
	// NoFallback returns a replay divergence instead of regenerating.
	NoFallback bool
	// Reset puts page back into the state the test starts from. It runs
	// before a diverged replay falls back to a live run, so steps the replay
	// already performed are not applied twice. Without it the live run
	// starts from whatever the partial replay left behind.
	Reset      func(ctx context.Context, page Page) error
	Synthesis  selector.Options
	Verifier   selector.VerifierOptions
	Replay     replay.Options
}

// DefaultOptions returns the options used by the CLI.
func DefaultOptions() Options {
	return Options{
		Synthesis: selector.DefaultOptions(),
		Verifier:  selector.DefaultVerifierOptions(),
		Replay:    replay.DefaultOptions(),
	}
}

// RunResult is the outcome of one test.
type RunResult struct {
	Mode Mode
	// Steps is the number of actions executed by the mode that finished.
	Steps    int
	Snapshot *schemas.Snapshot
	// Saved reports whether the snapshot file was written.
	Saved bool
	// Divergence is the replay failure that caused a regeneration, if any.
	Divergence error
	Duration   time.Duration
}

// Runner ties the snapshot store, the replay engine and a decider together.
type Runner struct {
	store   *snapshot.Store
	decider decider.Decider
	engine  *replay.Engine
	logger  *zap.Logger
	opts    Options
	now     func() time.Time
}

// New creates a runner.
func New(store *snapshot.Store, d decider.Decider, logger *zap.Logger, opts Options) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		store:   store,
		decider: d,
		engine:  replay.NewEngine(logger, opts.Replay),
		logger:  logger.Named("runner"),
		opts:    opts,
		now:     time.Now,
	}
}

// Run executes testText from the test file at location against page.
func (r *Runner) Run(ctx context.Context, page Page, location, testText string) (*RunResult, error) {
	start := r.now()
	steps := snapshot.SplitSteps(testText)
	if len(steps) == 0 {
		return nil, ErrEmptyTest
	}
	testHash := snapshot.Hash(testText)
	distinct := snapshot.DistinctSteps(steps)
	logger := r.logger.With(zap.String("location", location), zap.String("test_hash", testHash[:12]))

	var divergence error
	if !r.opts.Regenerate && r.store.ShouldUse(ctx, location, testHash, distinct) {
		snap := r.store.Get(ctx, location, testHash)
		res, err := r.engine.Replay(ctx, page, snap)
		if err == nil {
			logger.Info("Replayed snapshot", zap.Int("steps", len(res.Steps)))
			return &RunResult{Mode: ModeReplayed, Steps: len(res.Steps), Snapshot: snap, Duration: r.now().Sub(start)}, nil
		}

		failure := snapshot.Failure{TestText: testText, Err: err}
		var div *replay.DivergenceError
		if errors.As(err, &div) {
			failure.StepIndex = &div.StepIndex
			failure.StepText = div.StepText
		}
		if recErr := r.store.RecordFailure(ctx, location, testHash, failure); recErr != nil {
			return nil, recErr
		}
		if errors.Is(err, selector.ErrPageClosed) || ctx.Err() != nil || r.opts.NoFallback {
			return &RunResult{Mode: ModeReplayed, Steps: len(res.Steps), Snapshot: snap, Divergence: err}, err
		}
		logger.Warn("Replay diverged, regenerating", zap.Error(err))
		divergence = err

		if r.opts.Reset != nil {
			if resetErr := r.opts.Reset(ctx, page); resetErr != nil {
				return &RunResult{Mode: ModeReplayed, Steps: len(res.Steps), Snapshot: snap, Divergence: err},
					fmt.Errorf("failed to reset page before regenerating: %w", resetErr)
			}
		} else {
			logger.Debug("No reset configured, regenerating on the replayed page state")
		}
	}

	result, err := r.live(ctx, page, location, testHash, testText, steps, distinct)
	if result != nil {
		result.Divergence = divergence
		result.Duration = r.now().Sub(start)
	}
	return result, err
}

// live runs every step through the decider and records a snapshot.
func (r *Runner) live(ctx context.Context, page Page, location, testHash, testText string, steps []string, distinct int) (*RunResult, error) {
	verifier := selector.NewVerifier(page, r.logger, r.opts.Verifier)
	synth := selector.NewSynthesizer(page, verifier, r.logger, r.opts.Synthesis)
	snap := schemas.NewSnapshot(testHash, testText)
	result := &RunResult{Mode: ModeRegenerated, Snapshot: snap}

	for i, text := range steps {
		step, err := r.liveStep(ctx, page, synth, i, text)
		if err != nil {
			stepErr := &StepError{StepIndex: i, StepText: text, Cause: err}
			idx := i
			if recErr := r.store.RecordFailure(ctx, location, testHash, snapshot.Failure{
				TestText: testText, StepIndex: &idx, StepText: text, Err: err,
			}); recErr != nil {
				r.logger.Error("Failed to record failure", zap.Error(recErr))
			}
			return result, stepErr
		}
		snap.PutStep(step)
		result.Steps++
	}

	if snap.StepCount() < distinct {
		r.logger.Warn("Run recorded fewer steps than the test has, not saving",
			zap.Int("recorded", snap.StepCount()), zap.Int("distinct", distinct))
		return result, nil
	}
	saved, err := r.store.Save(ctx, location, snap)
	if err != nil {
		return result, err
	}
	result.Saved = saved.Written
	if stored := r.store.Get(ctx, location, testHash); stored != nil {
		result.Snapshot = stored
	}
	return result, nil
}

func (r *Runner) liveStep(ctx context.Context, page Page, synth *selector.Synthesizer, index int, text string) (*schemas.SnapshotStep, error) {
	decision, err := r.decider.DecideAction(ctx, page, text)
	if err != nil {
		return nil, err
	}
	action := &replay.Action{
		Kind:       decision.Kind,
		Navigation: decision.Navigation,
		Click:      decision.Click,
		Form:       decision.Form,
	}

	var target *schemas.TargetElement
	if decision.Kind.RequiresTarget() {
		if decision.Locator == nil {
			return nil, replay.ErrMissingTarget
		}
		res, err := synth.Resolve(ctx, selector.TargetLocator(*decision.Locator))
		if err != nil {
			return nil, err
		}
		action.Target = &res.Descriptor
		target = &schemas.TargetElement{Metadata: res.Element.Metadata(), Selector: res.Descriptor}
		r.logger.Debug("Synthesized target",
			zap.String("step", text),
			zap.String("descriptor", selector.String(res.Descriptor)),
			zap.String("strategy", res.Strategy))
	}

	details, err := action.EncodeDetails()
	if err != nil {
		return nil, err
	}
	if err := action.Execute(ctx, page); err != nil {
		return nil, err
	}
	return &schemas.SnapshotStep{
		StepHash:      snapshot.Hash(text),
		StepIndex:     index,
		StepText:      text,
		ActionKind:    action.Kind,
		ActionDetails: details,
		TargetElement: target,
		ExecutedAt:    r.now().UTC(),
	}, nil
}
