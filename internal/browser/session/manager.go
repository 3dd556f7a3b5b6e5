// internal/browser/session/manager.go
package session

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mimic-cli/internal/config"
)

// Manager owns the Chrome process. Every page is a tab derived from its
// allocator context.
type Manager struct {
	logger  *zap.Logger
	cfg     config.BrowserConfig
	pageCfg PageConfig

	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	browserCtx      context.Context
	browserCancel   context.CancelFunc

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches Chrome and checks that it responds.
func NewManager(ctx context.Context, cfg config.BrowserConfig, testIDAttribute string, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
		pageCfg: PageConfig{
			TestIDAttribute:   testIDAttribute,
			NavigationTimeout: cfg.NavigationTimeout,
		},
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Headless))
	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, m.buildAllocatorOptions()...)

	// The first context starts the browser; tabs are created next to it.
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx,
		chromedp.WithLogf(m.logger.Sugar().Debugf),
		chromedp.WithErrorf(m.logger.Sugar().Errorf))

	testCtx, cancelTest := context.WithTimeout(m.browserCtx, 30*time.Second)
	defer cancelTest()
	if err := chromedp.Run(testCtx, chromedp.Navigate("about:blank")); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}
	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// buildAllocatorOptions assembles the Chrome flags from the browser config.
func (m *Manager) buildAllocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", m.cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", m.cfg.Headless),
	)
	if m.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ExecPath))
	}
	if w, h := m.cfg.Viewport["width"], m.cfg.Viewport["height"]; w > 0 && h > 0 {
		opts = append(opts, chromedp.WindowSize(w, h))
	}

	// Custom arguments from the config file, e.g. "--lang=sv".
	for _, arg := range m.cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(flagName, parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(flagName, true))
		}
	}

	// Required inside containers.
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
		)
	}
	return opts
}

// NewPage opens a tab.
func (m *Manager) NewPage(ctx context.Context) (*Page, error) {
	tabCtx, cancel := chromedp.NewContext(m.browserCtx)
	page := newPage(tabCtx, cancel, m.pageCfg, m.logger)

	setup := []chromedp.Action{chromedp.Navigate("about:blank")}
	if w, h := m.cfg.Viewport["width"], m.cfg.Viewport["height"]; w > 0 && h > 0 {
		setup = append(setup, emulation.SetDeviceMetricsOverride(int64(w), int64(h), 1, false))
	}
	if err := page.RunActions(ctx, setup...); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	m.wg.Add(1)
	var once sync.Once
	page.onClose = func() { once.Do(m.wg.Done) }
	return page, nil
}

// Shutdown waits for open pages, bounded by ctx, and then stops Chrome.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated. Waiting for open pages to close...")
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All pages have closed.")
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if m.browserCancel != nil {
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return nil
}
