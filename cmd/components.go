package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/internal/config"
	"github.com/xkilldash9x/mimic-cli/internal/replay"
	"github.com/xkilldash9x/mimic-cli/internal/runner"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
	"github.com/xkilldash9x/mimic-cli/internal/snapshot"
)

// openStore builds the snapshot store for the configured backend. The
// returned close func releases the backend's resources.
func openStore(ctx context.Context, cfg config.SnapshotConfig, logger *zap.Logger) (*snapshot.Store, func(), error) {
	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		backend, err := snapshot.NewPostgresBackend(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("failed to initialize postgres snapshot backend: %w", err)
		}
		return snapshot.NewStore(backend, logger), pool.Close, nil
	case config.BackendFile, "":
		backend := snapshot.NewFileBackend(logger, cfg.DirName, cfg.LegacyDirName)
		return snapshot.NewStore(backend, logger), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown snapshot backend %q", cfg.Backend)
}

// synthesisOptions maps the synthesis config onto selector options.
func synthesisOptions(cfg config.SynthesisConfig) (selector.Options, selector.VerifierOptions) {
	return selector.Options{
			Timeout:          cfg.Timeout,
			MaxAncestorDepth: cfg.MaxAncestorDepth,
			ShortTextLimit:   cfg.ShortTextLimit,
			TestIDAttribute:  cfg.TestIDAttribute,
		}, selector.VerifierOptions{
			ProbeTimeout:       cfg.ProbeTimeout,
			MaxProbesPerSecond: cfg.MaxProbesPerSecond,
		}
}

// runnerOptions assembles the runner options from the loaded config.
func runnerOptions(cfg config.Interface) runner.Options {
	synth, verifier := synthesisOptions(cfg.Synthesis())
	return runner.Options{
		Regenerate: cfg.Run().Regenerate,
		NoFallback: cfg.Replay().NoFallback,
		Synthesis:  synth,
		Verifier:   verifier,
		Replay:     replay.Options{StepTimeout: cfg.Replay().StepTimeout},
	}
}
