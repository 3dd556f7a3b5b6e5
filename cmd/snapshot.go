package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/mimic-cli/api/schemas"
	"github.com/xkilldash9x/mimic-cli/internal/decider"
	"github.com/xkilldash9x/mimic-cli/internal/observability"
	"github.com/xkilldash9x/mimic-cli/internal/snapshot"
)

func newSnapshotCmd() *cobra.Command {
	snapCmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Inspect and manage the stored snapshots of a suite",
	}

	snapCmd.AddCommand(&cobra.Command{
		Use:   "show <suite.yaml>",
		Short: "List the snapshots stored for a suite",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(ctx context.Context, store *snapshot.Store) error {
				snaps, err := store.List(ctx, args[0])
				if err != nil {
					return err
				}
				suite, _ := decider.LoadSuite(args[0])
				printSnapshots(cmd.OutOrStdout(), suite, snaps)
				return nil
			})
		},
	})

	flagCmd := func(use, short string, mutate func(*schemas.SnapshotFlags)) *cobra.Command {
		var test string
		c := &cobra.Command{
			Use:   use + " <suite.yaml>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				suite, err := decider.LoadSuite(args[0])
				if err != nil {
					return err
				}
				return withStore(cmd, func(ctx context.Context, store *snapshot.Store) error {
					n := 0
					for _, t := range suite.Tests {
						if test != "" && t.Name != test {
							continue
						}
						hash := snapshot.Hash(t.Steps)
						if store.Get(ctx, suite.Path, hash) == nil {
							continue
						}
						if err := store.SetFlags(ctx, suite.Path, hash, mutate); err != nil {
							return err
						}
						n++
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: updated %d snapshot(s)\n", use, n)
					return nil
				})
			},
		}
		c.Flags().StringVar(&test, "test", "", "Only the test with this name.")
		return c
	}

	snapCmd.AddCommand(flagCmd("invalidate", "Force the next run of a suite to regenerate its snapshots",
		func(f *schemas.SnapshotFlags) { f.ForceRegenerate = true }))
	snapCmd.AddCommand(flagCmd("skip", "Stop using the stored snapshots of a suite",
		func(f *schemas.SnapshotFlags) { f.SkipSnapshot = true }))
	snapCmd.AddCommand(flagCmd("unskip", "Resume using the stored snapshots of a suite",
		func(f *schemas.SnapshotFlags) { f.SkipSnapshot = false }))
	return snapCmd
}

// withStore opens the configured snapshot store for the duration of fn.
func withStore(cmd *cobra.Command, fn func(ctx context.Context, store *snapshot.Store) error) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	store, closeStore, err := openStore(ctx, cfg.Snapshot(), observability.GetLogger())
	if err != nil {
		return err
	}
	defer closeStore()
	return fn(ctx, store)
}

func printSnapshots(out io.Writer, suite *decider.Suite, snaps []*schemas.Snapshot) {
	names := make(map[string]string)
	if suite != nil {
		for _, t := range suite.Tests {
			names[snapshot.Hash(t.Steps)] = t.Name
		}
	}

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TEST\tHASH\tSTEPS\tLAST PASSED\tSTATUS")
	for _, s := range snaps {
		name, ok := names[s.TestHash]
		if !ok {
			name = "(stale)"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", name, shortHash(s.TestHash), s.StepCount(), stamp(s.Flags.LastPassedAt), status(s))
	}
	w.Flush()
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func stamp(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func status(s *schemas.Snapshot) string {
	switch {
	case s.Flags.SkipSnapshot:
		return "skipped"
	case s.Flags.ForceRegenerate:
		return "invalidated"
	case s.Flags.HasErrors || s.Flags.NeedsRetry:
		return "failing"
	}
	return "ok"
}
