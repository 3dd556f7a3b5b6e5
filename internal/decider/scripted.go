package decider

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/internal/selector"
)

// Scripted answers every step from a fixed table.
type Scripted struct {
	entries map[string]Entry
	logger  *zap.Logger
	calls   atomic.Int64
}

// NewScripted creates a decider over entries keyed by step text.
func NewScripted(entries map[string]Entry, logger *zap.Logger) *Scripted {
	if logger == nil {
		logger = zap.NewNop()
	}
	trimmed := make(map[string]Entry, len(entries))
	for k, v := range entries {
		trimmed[strings.TrimSpace(k)] = v
	}
	return &Scripted{entries: trimmed, logger: logger.Named("decider")}
}

func (s *Scripted) DecideAction(ctx context.Context, _ selector.PageQuery, step string) (*Decision, error) {
	s.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entry, ok := s.entries[strings.TrimSpace(step)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoDecision, step)
	}
	d, err := entry.Decision()
	if err != nil {
		return nil, fmt.Errorf("decision for %q: %w", step, err)
	}
	s.logger.Debug("Decided step", zap.String("step", step), zap.String("kind", string(d.Kind)))
	return d, nil
}

// Calls returns how many decisions were requested.
func (s *Scripted) Calls() int64 {
	return s.calls.Load()
}
