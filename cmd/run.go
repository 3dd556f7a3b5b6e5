package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/mimic-cli/internal/browser/session"
	"github.com/xkilldash9x/mimic-cli/internal/config"
	"github.com/xkilldash9x/mimic-cli/internal/decider"
	"github.com/xkilldash9x/mimic-cli/internal/observability"
	"github.com/xkilldash9x/mimic-cli/internal/reporting"
	"github.com/xkilldash9x/mimic-cli/internal/runner"
	"github.com/xkilldash9x/mimic-cli/internal/selector"
	"github.com/xkilldash9x/mimic-cli/internal/snapshot"
)

// tab is one browser page a suite runs in.
type tab interface {
	runner.Page
	Close() error
}

// pageSource hands out tabs for suites.
type pageSource interface {
	NewTab(ctx context.Context) (tab, error)
	Shutdown(ctx context.Context) error
}

// chromeSource opens tabs in a local Chrome.
type chromeSource struct {
	mgr *session.Manager
}

func (c *chromeSource) NewTab(ctx context.Context) (tab, error) {
	page, err := c.mgr.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (c *chromeSource) Shutdown(ctx context.Context) error {
	return c.mgr.Shutdown(ctx)
}

// newPageSource is replaced in tests to run suites without a browser.
var newPageSource = func(ctx context.Context, cfg config.Interface, logger *zap.Logger) (pageSource, error) {
	mgr, err := session.NewManager(ctx, cfg.Browser(), cfg.Synthesis().TestIDAttribute, logger)
	if err != nil {
		return nil, err
	}
	return &chromeSource{mgr: mgr}, nil
}

// ErrTestsFailed is returned by run when at least one test failed.
var ErrTestsFailed = errors.New("tests failed")

func newRunCmd() *cobra.Command {
	var (
		parallel   int
		report     string
		format     string
		regenerate bool
		noFallback bool
		headed     bool
	)

	runCmd := &cobra.Command{
		Use:   "run <suite.yaml...>",
		Short: "Run test suites, replaying snapshots and regenerating them when the page changed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := getConfigFromContext(ctx)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("parallel") {
				cfg.SetBrowserConcurrency(parallel)
			}
			if cmd.Flags().Changed("no-fallback") {
				cfg.SetReplayNoFallback(noFallback)
			}
			if headed {
				cfg.SetBrowserHeadless(false)
			}
			cfg.SetRunConfig(config.RunConfig{
				Suites:     args,
				Report:     report,
				Format:     format,
				Parallel:   cfg.Browser().Concurrency,
				Regenerate: regenerate,
			})
			return runSuites(ctx, cfg, cmd.OutOrStdout(), observability.GetLogger())
		},
	}

	runCmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "Number of suite files run at once. (Overrides browser.concurrency)")
	runCmd.Flags().StringVarP(&report, "report", "o", "", "Write a report to this file.")
	runCmd.Flags().StringVarP(&format, "format", "f", "junit", "Report format ('junit' or 'json').")
	runCmd.Flags().BoolVar(&regenerate, "regenerate", false, "Ignore stored snapshots and run every step live.")
	runCmd.Flags().BoolVar(&noFallback, "no-fallback", false, "Fail on a replay divergence instead of regenerating.")
	runCmd.Flags().BoolVar(&headed, "headed", false, "Show the browser window.")
	return runCmd
}

// runSuites executes every suite of cfg.Run() and reports the outcome.
func runSuites(ctx context.Context, cfg config.Interface, out io.Writer, logger *zap.Logger) error {
	runCfg := cfg.Run()

	suites := make([]*decider.Suite, 0, len(runCfg.Suites))
	for _, path := range runCfg.Suites {
		suite, err := decider.LoadSuite(path)
		if err != nil {
			return err
		}
		suites = append(suites, suite)
	}

	var rep reporting.Reporter
	if runCfg.Report != "" {
		r, err := reporting.New(runCfg.Format, runCfg.Report, Version, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize reporter: %w", err)
		}
		rep = r
		defer func() {
			if err := rep.Close(); err != nil {
				logger.Error("Failed to close reporter", zap.Error(err))
			}
		}()
	}

	store, closeStore, err := openStore(ctx, cfg.Snapshot(), logger)
	if err != nil {
		return err
	}
	defer closeStore()

	source, err := newPageSource(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := source.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Error during browser shutdown", zap.Error(err))
		}
	}()

	sr := &suiteRunner{
		store:  store,
		source: source,
		opts:   runnerOptions(cfg),
		rep:    rep,
		out:    out,
		logger: logger,
	}

	g, gctx := errgroup.WithContext(ctx)
	if runCfg.Parallel > 0 {
		g.SetLimit(runCfg.Parallel)
	}
	for _, suite := range suites {
		g.Go(func() error {
			return sr.run(gctx, suite)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	total, failed := sr.total.Load(), sr.failed.Load()
	fmt.Fprintf(out, "\n%d tests, %d failed\n", total, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d: %w", failed, total, ErrTestsFailed)
	}
	return nil
}

// suiteRunner runs suites against tabs from one page source.
type suiteRunner struct {
	store  *snapshot.Store
	source pageSource
	opts   runner.Options
	rep    reporting.Reporter
	logger *zap.Logger

	outMu  sync.Mutex
	out    io.Writer
	total  atomic.Int64
	failed atomic.Int64
}

// run executes the tests of one suite in order in a single tab. Test
// failures are reported; only infrastructure errors are returned.
func (s *suiteRunner) run(ctx context.Context, suite *decider.Suite) error {
	logger := s.logger.With(zap.String("suite", suite.Path))
	page, err := s.source.NewTab(ctx)
	if err != nil {
		return fmt.Errorf("%s: %w", suite.Path, err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			logger.Debug("Failed to close tab", zap.Error(err))
		}
	}()

	opts := s.opts
	if suite.URL != "" {
		opts.Reset = func(ctx context.Context, p runner.Page) error {
			return p.Navigate(ctx, suite.URL)
		}
	}
	r := runner.New(s.store, decider.NewScripted(suite.Decisions, logger), logger, opts)
	for _, test := range suite.Tests {
		tc := reporting.TestCase{Suite: suite.Path, Name: test.Name}
		start := time.Now()

		err := ctx.Err()
		if err == nil && suite.URL != "" {
			err = page.Navigate(ctx, suite.URL)
		}
		if err == nil {
			var res *runner.RunResult
			res, err = r.Run(ctx, page, suite.Path, test.Steps)
			if res != nil {
				tc.Mode = string(res.Mode)
				tc.Steps = res.Steps
				tc.Saved = res.Saved
				if res.Divergence != nil {
					tc.Divergence = res.Divergence.Error()
				}
			}
		}
		tc.Err = err
		tc.Duration = time.Since(start)
		if err := s.record(tc); err != nil {
			return err
		}

		if errors.Is(err, selector.ErrPageClosed) || ctx.Err() != nil {
			logger.Error("Aborting suite", zap.Error(err))
			return nil
		}
	}
	return nil
}

func (s *suiteRunner) record(tc reporting.TestCase) error {
	s.total.Add(1)
	status := "ok"
	if tc.Failed() {
		s.failed.Add(1)
		status = "FAIL"
	}

	s.outMu.Lock()
	fmt.Fprintf(s.out, "%-4s %s :: %s (%s, %d steps, %s)\n",
		status, tc.Suite, tc.Name, tc.Mode, tc.Steps, tc.Duration.Round(time.Millisecond))
	if tc.Err != nil {
		fmt.Fprintf(s.out, "     %v\n", tc.Err)
	}
	s.outMu.Unlock()

	if s.rep == nil {
		return nil
	}
	if err := s.rep.Write(tc); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
