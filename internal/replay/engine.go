package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

// Page is what replay drives: an executor that can also count matches.
type Page interface {
	Executor
	CountMatches(ctx context.Context, d schemas.SelectorDescriptor) (int, error)
	Closed() bool
}

// DivergenceError reports the first step a replay could not perform.
type DivergenceError struct {
	StepIndex int
	StepText  string
	Cause     error
}

func (e *DivergenceError) Error() string {
	return fmt.Sprintf("replay diverged at step %d (%q): %v", e.StepIndex, e.StepText, e.Cause)
}

func (e *DivergenceError) Unwrap() error {
	return e.Cause
}

// Options configures an Engine.
type Options struct {
	// StepTimeout bounds resolving and executing one step. Zero disables it.
	StepTimeout time.Duration
}

// DefaultOptions returns the defaults used by the CLI.
func DefaultOptions() Options {
	return Options{StepTimeout: 30 * time.Second}
}

// StepOutcome records one executed step.
type StepOutcome struct {
	StepIndex int
	StepText  string
	Kind      schemas.ActionKind
	Duration  time.Duration
}

// Result is the outcome of a successful replay.
type Result struct {
	Steps []StepOutcome
}

// Engine re-executes stored snapshots without consulting any decider.
type Engine struct {
	logger *zap.Logger
	opts   Options
}

// NewEngine creates a replay engine.
func NewEngine(logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger.Named("replay"), opts: opts}
}

// Replay executes every step of snap in index order and stops at the first
// one that cannot be resolved or performed. That failure is returned as a
// *DivergenceError.
func (e *Engine) Replay(ctx context.Context, page Page, snap *schemas.Snapshot) (*Result, error) {
	steps := snap.Steps()
	e.logger.Info("Replaying snapshot", zap.String("test_hash", snap.TestHash), zap.Int("steps", len(steps)))

	result := &Result{Steps: make([]StepOutcome, 0, len(steps))}
	for _, step := range steps {
		start := time.Now()
		if err := e.step(ctx, page, step); err != nil {
			e.logger.Warn("Replay diverged",
				zap.Int("step_index", step.StepIndex),
				zap.String("step_text", step.StepText),
				zap.Error(err))
			return result, &DivergenceError{StepIndex: step.StepIndex, StepText: step.StepText, Cause: err}
		}
		result.Steps = append(result.Steps, StepOutcome{
			StepIndex: step.StepIndex,
			StepText:  step.StepText,
			Kind:      step.ActionKind,
			Duration:  time.Since(start),
		})
	}
	return result, nil
}

func (e *Engine) step(ctx context.Context, page Page, step *schemas.SnapshotStep) error {
	if page.Closed() {
		return selector.ErrPageClosed
	}
	action, err := DecodeAction(step)
	if err != nil {
		return err
	}

	stepCtx, cancel := e.stepContext(ctx)
	defer cancel()

	if action.Target != nil {
		if err := e.resolve(ctx, stepCtx, page, *action.Target); err != nil {
			return err
		}
	}
	e.logger.Debug("Executing step", zap.Int("step_index", step.StepIndex), zap.String("kind", string(action.Kind)))
	if err := action.Execute(stepCtx, page); err != nil {
		return classify(ctx, stepCtx, page, err)
	}
	if page.Closed() {
		return selector.ErrPageClosed
	}
	return nil
}

// resolve requires the stored descriptor to match exactly one element.
func (e *Engine) resolve(parent, stepCtx context.Context, page Page, d schemas.SelectorDescriptor) error {
	if err := selector.Validate(d); err != nil {
		return err
	}
	n, err := page.CountMatches(stepCtx, d)
	if err != nil {
		return classify(parent, stepCtx, page, err)
	}
	switch {
	case n == 0:
		return fmt.Errorf("%s: %w", selector.String(d), selector.ErrNotFound)
	case n > 1:
		return fmt.Errorf("%s matched %d elements: %w", selector.String(d), n, selector.ErrAmbiguousMatch)
	}
	return nil
}

func (e *Engine) stepContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.opts.StepTimeout > 0 {
		return context.WithTimeout(ctx, e.opts.StepTimeout)
	}
	return context.WithCancel(ctx)
}

// classify maps a step failure onto the selector error taxonomy so callers
// can tell a closed page or a step timeout from everything else.
func classify(parent, stepCtx context.Context, page Page, err error) error {
	switch {
	case page.Closed() && !errors.Is(err, selector.ErrPageClosed):
		return fmt.Errorf("%w: %v", selector.ErrPageClosed, err)
	case parent.Err() != nil:
		return err
	case errors.Is(stepCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, selector.ErrTimeout):
		return fmt.Errorf("step: %w: %v", selector.ErrTimeout, err)
	}
	return err
}
