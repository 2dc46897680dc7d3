package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// ChromeManager manages a Chromium/Chrome instance launched by rod.
type ChromeManager struct {
	opts     Options
	logger   *zap.Logger
	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	wsURL    string
	running  bool
}

// NewChromeManager creates a new Chrome manager.
func NewChromeManager(opts Options, logger *zap.Logger) *ChromeManager {
	return &ChromeManager{
		opts:   opts,
		logger: logger,
	}
}

// Start launches Chrome and connects via CDP.
func (m *ChromeManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}

	bin, err := chromeBin(ctx, m.opts)
	if err != nil {
		return err
	}
	l := launcher.New().Context(ctx).Headless(m.opts.Headless)
	if bin != "" {
		l.Bin(bin)
	}

	wsURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("failed to launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		l.Cleanup()
		return fmt.Errorf("failed to connect to chrome: %w", err)
	}

	m.launcher = l
	m.browser = browser
	m.wsURL = wsURL
	m.running = true

	m.logger.Info("Chrome started", zap.String("endpoint", wsURL), zap.Bool("headless", m.opts.Headless))
	return nil
}

// downloadChrome fetches a revision, or returns the cached copy.
var downloadChrome = func(ctx context.Context, revision int) (string, error) {
	return InstallChrome(ctx, revision, false)
}

// chromeBin picks the executable to launch. An explicit path wins over a
// pinned revision. Empty leaves the lookup to rod.
func chromeBin(ctx context.Context, opts Options) (string, error) {
	if opts.ChromeBin != "" {
		return opts.ChromeBin, nil
	}
	if opts.ChromeRevision <= 0 {
		return "", nil
	}
	path, err := downloadChrome(ctx, opts.ChromeRevision)
	if err != nil {
		return "", fmt.Errorf("failed to resolve chrome revision %d: %w", opts.ChromeRevision, err)
	}
	return path, nil
}

// Stop closes the browser and kills the process. Safe to call twice.
func (m *ChromeManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Warn("failed to close chrome", zap.Error(err))
		}
	}

	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher.Cleanup()
	}

	m.launcher = nil
	m.browser = nil
	m.wsURL = ""
	m.running = false

	m.logger.Info("Chrome stopped")
	return nil
}

// IsRunning reports whether Chrome is running.
func (m *ChromeManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetEndpoint returns the Chrome DevTools endpoint.
func (m *ChromeManager) GetEndpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wsURL
}

// NewDriver opens a page sized to the configured viewport.
func (m *ChromeManager) NewDriver(ctx context.Context) (Driver, error) {
	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()

	if browser == nil {
		return nil, fmt.Errorf("chrome is not running")
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             m.opts.ViewportWidth,
		Height:            m.opts.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		_ = page.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	// Drop the launch context so later calls only honour per-call contexts.
	return NewRodDriver(page.Context(context.Background()), m.opts.ActionTimeout), nil
}
