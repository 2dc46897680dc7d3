// Package browsertest provides an in-memory browser.Driver for tests that
// exercise navigation and assertions without launching Chromium.
package browsertest

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/ahrdadan/clinicprobe/internal/browser"
)

// PNG is the payload returned by Screenshot.
var PNG = []byte("\x89PNG\r\n\x1a\nfake")

// Element is one node of a fake screen.
type Element struct {
	Role   string
	Name   string
	Label  string
	Hidden bool
	// OnClick runs with the page lock released.
	OnClick func(p *Page)
}

func (e Element) matches(loc browser.Locator) bool {
	if loc.Role != "" {
		return e.Role == loc.Role && loc.Matches(e.Name)
	}
	return e.Label != "" && loc.Matches(e.Label)
}

// Screen renders the elements for a path given the current page state.
type Screen func(p *Page) []Element

// Page is a fake Driver. Screens are keyed by URL path. Visit and in-app
// navigation consult Route to allow redirects; Goto is a full page load and
// consults Load, falling back to Route.
type Page struct {
	mu      sync.Mutex
	origin  string
	path    string
	screens map[string]Screen
	values  map[string]string
	state   map[string]string
	log     []string
	closed  bool

	// Route maps a requested path to the path actually rendered.
	Route func(p *Page, path string) string
	// Load is Route for a full page load, when in-memory app state is gone.
	Load func(p *Page, path string) string
	// FailScreenshot makes Screenshot return an error.
	FailScreenshot error
}

// NewPage creates an empty fake page served at origin.
func NewPage(origin string) *Page {
	return &Page{
		origin:  strings.TrimRight(origin, "/"),
		path:    "about:blank",
		screens: make(map[string]Screen),
		values:  make(map[string]string),
		state:   make(map[string]string),
	}
}

// Handle registers the screen rendered at path.
func (p *Page) Handle(path string, s Screen) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.screens[path] = s
}

// Navigate performs a client-side route change, as a SPA link would.
func (p *Page) Navigate(path string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.path = p.route(path)
}

// Set stores a piece of application state (e.g. the signed-in role).
func (p *Page) Set(key, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state[key] = value
}

// Get reads application state.
func (p *Page) Get(key string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state[key]
}

// Value returns what was last filled into the control labelled label.
func (p *Page) Value(label string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.values[label]
}

// ClearValues drops filled values, as a remounted form would.
func (p *Page) ClearValues() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.values = make(map[string]string)
}

// Log returns the actions performed so far.
func (p *Page) Log() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.log...)
}

// Closed reports whether Close was called.
func (p *Page) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *Page) route(path string) string {
	if p.Route != nil {
		return p.Route(p, path)
	}
	return path
}

func (p *Page) elements() []Element {
	s, ok := p.screens[p.path]
	if !ok {
		return nil
	}
	p.mu.Unlock()
	defer p.mu.Lock()
	return s(p)
}

func (p *Page) find(loc browser.Locator) (Element, bool) {
	for _, e := range p.elements() {
		if !e.Hidden && e.matches(loc) {
			return e, true
		}
	}
	return Element{}, false
}

func (p *Page) Goto(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", rawURL, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = append(p.log, "goto "+u.Path)
	if p.Load != nil {
		p.path = p.Load(p, u.Path)
	} else {
		p.path = p.route(u.Path)
	}
	return nil
}

func (p *Page) Visit(ctx context.Context, rawURL string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to visit %s: %w", rawURL, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.HasPrefix(p.path, "about:") {
		return fmt.Errorf("failed to visit %s: no app loaded", rawURL)
	}
	if u.Host != "" && u.Scheme+"://"+u.Host != p.origin {
		return fmt.Errorf("failed to visit %s: cross-origin", rawURL)
	}
	p.log = append(p.log, "visit "+u.Path)
	p.path = p.route(u.Path)
	return nil
}

func (p *Page) URL(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if strings.HasPrefix(p.path, "about:") {
		return p.path, nil
	}
	return p.origin + p.path, nil
}

func (p *Page) Fill(ctx context.Context, loc browser.Locator, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.find(loc); !ok {
		return fmt.Errorf("failed to fill %s: element not found on %s", loc, p.path)
	}
	p.log = append(p.log, "fill "+loc.String())
	p.values[loc.Label] = value
	return nil
}

func (p *Page) Click(ctx context.Context, loc browser.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	e, ok := p.find(loc)
	if !ok {
		path := p.path
		p.mu.Unlock()
		return fmt.Errorf("failed to click %s: element not found on %s", loc, path)
	}
	p.log = append(p.log, "click "+loc.String())
	p.mu.Unlock()

	if e.OnClick != nil {
		e.OnClick(p)
	}
	return nil
}

func (p *Page) Visible(ctx context.Context, loc browser.Locator) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.find(loc)
	return ok, nil
}

func (p *Page) Screenshot(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if p.FailScreenshot != nil {
		return nil, p.FailScreenshot
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = append(p.log, "screenshot "+p.path)
	return PNG, nil
}

func (p *Page) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// Launcher hands out a single fake page.
type Launcher struct {
	Page     *Page
	StartErr error

	mu      sync.Mutex
	running bool
	starts  int
}

func (l *Launcher) Start(ctx context.Context) error {
	if l.StartErr != nil {
		return l.StartErr
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = true
	l.starts++
	return nil
}

func (l *Launcher) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.running = false
	return nil
}

func (l *Launcher) IsRunning() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running
}

// Starts counts successful Start calls.
func (l *Launcher) Starts() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.starts
}

func (l *Launcher) GetEndpoint() string { return "fake://" }

func (l *Launcher) NewDriver(ctx context.Context) (browser.Driver, error) {
	if !l.IsRunning() {
		return nil, fmt.Errorf("fake browser is not running")
	}
	return l.Page, nil
}
