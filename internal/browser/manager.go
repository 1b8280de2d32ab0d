// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formsurge/internal/browser/stealth"
	"github.com/xkilldash9x/formsurge/internal/config"
)

const (
	DefaultLaunchTimeout     = 30 * time.Second
	DefaultNavigationTimeout = 60 * time.Second
	DefaultCloseTimeout      = 5 * time.Second
)

// Manager owns the headless Chrome process. Each Open call gets its own tab.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx owns the Chrome process.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	// browserCtx is the first chromedp context, allocated once and never run
	// with a deadline. Every tab is derived from it.
	browserCtx    context.Context
	browserCancel context.CancelFunc

	persona stealth.Persona

	// wg tracks open pages for a graceful shutdown.
	wg sync.WaitGroup
}

// NewManager launches the browser and checks that it responds.
func NewManager(ctx context.Context, logger *zap.Logger, cfg config.BrowserConfig) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	persona := stealth.DefaultPersona
	if cfg.UserAgent != "" {
		persona.UserAgent = cfg.UserAgent
	}
	m := &Manager{
		logger:  logger.Named("browser_manager"),
		cfg:     cfg,
		persona: persona,
	}

	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Headless))

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, allocatorOptions(m.cfg, m.persona)...)
	m.browserCtx, m.browserCancel = chromedp.NewContext(m.allocatorCtx)

	// The first Run allocates the process for the lifetime of browserCtx, so
	// the launch is bounded from outside instead of with a context deadline.
	if err := runBounded(ctx, m.browserCtx, DefaultLaunchTimeout, m.browserCancel); err != nil {
		m.browserCancel()
		m.allocatorCancel()
		return fmt.Errorf("browser failed to start or respond: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.")
	return nil
}

// runBounded performs the first chromedp.Run on target. chromedp ties the
// lifetime of whatever that Run creates to the context it is given, so target
// itself is used and abort is called if the launch takes longer than timeout
// or the caller gives up.
func runBounded(ctx, target context.Context, timeout time.Duration, abort context.CancelFunc) error {
	errc := make(chan error, 1)
	go func() { errc <- chromedp.Run(target) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		return err
	case <-timer.C:
		abort()
		<-errc
		return fmt.Errorf("no response within %s", timeout)
	case <-ctx.Done():
		abort()
		<-errc
		return ctx.Err()
	}
}

// launchFlags assembles the Chrome command-line switches. A false value removes
// a switch that chromedp would otherwise pass by default.
func launchFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"enable-automation":         false,
		"headless":                  cfg.Headless,
		"ignore-certificate-errors": cfg.IgnoreTLSErrors,
		"disable-blink-features":    "AutomationControlled",
		"disable-extensions":        true,
		"disable-gpu":               cfg.Headless,
	}

	for _, arg := range cfg.Args {
		parts := strings.SplitN(arg, "=", 2)
		flagName := strings.TrimPrefix(parts[0], "--")
		if flagName == "" {
			continue
		}
		if len(parts) == 2 {
			flags[flagName] = parts[1]
		} else {
			flags[flagName] = true
		}
	}

	// Needed inside containers.
	if runtime.GOOS == "linux" {
		flags["no-sandbox"] = true
		flags["disable-dev-shm-usage"] = true
	}
	return flags
}

func allocatorOptions(cfg config.BrowserConfig, persona stealth.Persona) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	flags := launchFlags(cfg)
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		opts = append(opts, chromedp.Flag(name, flags[name]))
	}
	return append(opts, chromedp.UserAgent(persona.UserAgent))
}

// Open creates a stealth tab, navigates to pageURL and waits for the load event.
// The caller must Close the returned page.
func (m *Manager) Open(ctx context.Context, pageURL string) (*Page, error) {
	tabCtx, cancelTab := chromedp.NewContext(m.browserCtx)

	// Attach the tab on its own context; the target's event loop lives as
	// long as the context of its first Run.
	if err := runBounded(ctx, tabCtx, DefaultLaunchTimeout, cancelTab); err != nil {
		cancelTab()
		return nil, fmt.Errorf("failed to open tab: %w", err)
	}

	navTimeout := m.cfg.NavigationTimeout
	if navTimeout <= 0 {
		navTimeout = DefaultNavigationTimeout
	}
	opCtx, cancelOp := context.WithTimeout(ctx, navTimeout)
	defer cancelOp()
	runCtx, cancelRun := CombineContext(tabCtx, opCtx)
	defer cancelRun()

	var location, title string
	err := chromedp.Run(runCtx,
		stealth.Apply(m.persona, m.logger),
		chromedp.Navigate(pageURL),
		chromedp.Location(&location),
		chromedp.Title(&title),
	)
	if err != nil {
		cancelTab()
		return nil, fmt.Errorf("failed to load %s: %w", pageURL, err)
	}

	m.logger.Debug("Page loaded.", zap.String("url", location), zap.String("title", title))

	m.wg.Add(1)
	return &Page{
		tabCtx:       tabCtx,
		cancel:       cancelTab,
		queryTimeout: DefaultQueryTimeout,
		url:          location,
		title:        title,
		onClose:      m.wg.Done,
	}, nil
}

// Shutdown waits for open pages to close, then terminates the browser process.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Debug("Browser manager shutdown initiated.")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	var err error
	if m.browserCtx != nil {
		closeCtx, cancel := context.WithTimeout(m.browserCtx, DefaultCloseTimeout)
		if cerr := chromedp.Cancel(closeCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = fmt.Errorf("closing browser: %w", cerr)
		}
		cancel()
		m.browserCancel()
	}
	if m.allocatorCancel != nil {
		m.allocatorCancel()
		<-m.allocatorCtx.Done()
	}
	return err
}
