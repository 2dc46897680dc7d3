package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
	"go.uber.org/zap"
)

// PlaywrightManager runs Chromium through the playwright driver.
type PlaywrightManager struct {
	opts    Options
	logger  *zap.Logger
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	running bool
}

// NewPlaywrightManager creates a new playwright-backed launcher.
func NewPlaywrightManager(opts Options, logger *zap.Logger) *PlaywrightManager {
	return &PlaywrightManager{
		opts:   opts,
		logger: logger,
	}
}

// Start boots the driver and launches Chromium.
func (m *PlaywrightManager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pw, err := playwright.Run()
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(m.opts.Headless),
	}
	if m.opts.ChromeBin != "" {
		launchOpts.ExecutablePath = playwright.String(m.opts.ChromeBin)
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		_ = pw.Stop()
		return fmt.Errorf("failed to launch chromium: %w", err)
	}

	m.pw = pw
	m.browser = browser
	m.running = true

	m.logger.Info("Playwright chromium started", zap.String("version", browser.Version()), zap.Bool("headless", m.opts.Headless))
	return nil
}

// Stop closes the browser and the driver. Safe to call twice.
func (m *PlaywrightManager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}

	if err := m.browser.Close(); err != nil {
		m.logger.Warn("failed to close chromium", zap.Error(err))
	}
	if err := m.pw.Stop(); err != nil {
		m.logger.Warn("failed to stop playwright", zap.Error(err))
	}

	m.browser = nil
	m.pw = nil
	m.running = false

	m.logger.Info("Playwright chromium stopped")
	return nil
}

// IsRunning reports whether the browser is up.
func (m *PlaywrightManager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// GetEndpoint has no CDP endpoint to expose; playwright owns the pipe.
func (m *PlaywrightManager) GetEndpoint() string {
	return "playwright://chromium"
}

// NewDriver opens a page in a fresh context.
func (m *PlaywrightManager) NewDriver(ctx context.Context) (Driver, error) {
	m.mu.Lock()
	browser := m.browser
	m.mu.Unlock()

	if browser == nil {
		return nil, fmt.Errorf("chromium is not running")
	}

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		Viewport: &playwright.Size{
			Width:  m.opts.ViewportWidth,
			Height: m.opts.ViewportHeight,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(m.opts.ActionTimeout.Milliseconds()))

	return &PlaywrightDriver{page: page, actionTimeout: m.opts.ActionTimeout}, nil
}

// PlaywrightDriver drives one playwright page. Locators keep playwright's
// strictness: an action on a locator matching several elements fails.
type PlaywrightDriver struct {
	page          playwright.Page
	actionTimeout time.Duration
}

func (d *PlaywrightDriver) locator(loc Locator) playwright.Locator {
	if loc.Role != "" {
		opts := playwright.PageGetByRoleOptions{}
		if loc.Name != "" {
			opts.Name = loc.Name
			opts.Exact = playwright.Bool(loc.Exact)
		}
		return d.page.GetByRole(playwright.AriaRole(loc.Role), opts)
	}
	return d.page.GetByLabel(loc.Label, playwright.PageGetByLabelOptions{
		Exact: playwright.Bool(loc.Exact),
	})
}

// timeoutFor converts the remaining context budget into playwright's
// millisecond timeout, capped at the action timeout.
func (d *PlaywrightDriver) timeoutFor(ctx context.Context) *float64 {
	timeout := d.actionTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < timeout {
			timeout = left
		}
	}
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	return playwright.Float(float64(timeout.Milliseconds()))
}

func (d *PlaywrightDriver) Goto(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.page.Goto(url, playwright.PageGotoOptions{
		Timeout:   d.timeoutFor(ctx),
		WaitUntil: playwright.WaitUntilStateLoad,
	}); err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", url, err)
	}
	return nil
}

func (d *PlaywrightDriver) Visit(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := d.page.Evaluate(visitScript, url); err != nil {
		return fmt.Errorf("failed to visit %s: %w", url, err)
	}
	return nil
}

func (d *PlaywrightDriver) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return d.page.URL(), nil
}

func (d *PlaywrightDriver) Fill(ctx context.Context, loc Locator, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.locator(loc).Fill(value, playwright.LocatorFillOptions{Timeout: d.timeoutFor(ctx)}); err != nil {
		return fmt.Errorf("failed to fill %s: %w", loc, err)
	}
	return nil
}

func (d *PlaywrightDriver) Click(ctx context.Context, loc Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.locator(loc).Click(playwright.LocatorClickOptions{Timeout: d.timeoutFor(ctx)}); err != nil {
		return fmt.Errorf("failed to click %s: %w", loc, err)
	}
	return nil
}

// Visible checks every match, so it never trips over strictness.
func (d *PlaywrightDriver) Visible(ctx context.Context, loc Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	all, err := d.locator(loc).All()
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", loc, err)
	}
	for _, l := range all {
		ok, err := l.IsVisible()
		if err != nil {
			return false, fmt.Errorf("failed to query %s: %w", loc, err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (d *PlaywrightDriver) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	png, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		Type:    playwright.ScreenshotTypePng,
		Timeout: d.timeoutFor(ctx),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to take screenshot: %w", err)
	}
	return png, nil
}

func (d *PlaywrightDriver) Close() error {
	return d.page.Close()
}
