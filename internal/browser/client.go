package browser

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Engine selects the automation library that drives Chromium.
type Engine string

const (
	EngineRod        Engine = "rod"
	EnginePlaywright Engine = "playwright"
)

// Locator identifies elements the way a user perceives them: by ARIA role and
// accessible name, or by the text of the label attached to a form control.
type Locator struct {
	Role  string `json:"role,omitempty" yaml:"role,omitempty"`
	Name  string `json:"name,omitempty" yaml:"name,omitempty"`
	Label string `json:"label,omitempty" yaml:"label,omitempty"`
	// Exact requires the whole name or label to match, case included.
	Exact bool `json:"exact,omitempty" yaml:"exact,omitempty"`
}

// ByRole locates elements with the given role whose accessible name contains name.
func ByRole(role, name string) Locator {
	return Locator{Role: role, Name: name}
}

// ByLabel locates form controls whose label contains text.
func ByLabel(text string) Locator {
	return Locator{Label: text}
}

// ExactLabel locates form controls whose label is exactly text.
func ExactLabel(text string) Locator {
	return Locator{Label: text, Exact: true}
}

func (l Locator) String() string {
	switch {
	case l.Role != "" && l.Name != "":
		return fmt.Sprintf("%s %q", l.Role, l.Name)
	case l.Role != "":
		return l.Role
	case l.Exact:
		return fmt.Sprintf("exact label %q", l.Label)
	default:
		return fmt.Sprintf("label %q", l.Label)
	}
}

// Driver is a single page under automation.
type Driver interface {
	Goto(ctx context.Context, url string) error
	// Visit changes the route inside the running app without a reload, so
	// in-memory app state such as the signed-in user survives.
	Visit(ctx context.Context, url string) error
	URL(ctx context.Context) (string, error)
	Fill(ctx context.Context, loc Locator, value string) error
	Click(ctx context.Context, loc Locator) error
	// Visible reports whether any element matching loc is currently rendered
	// and visible. It does not wait.
	Visible(ctx context.Context, loc Locator) (bool, error)
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher owns a browser process and hands out pages.
type Launcher interface {
	Start(ctx context.Context) error
	Stop() error
	IsRunning() bool
	GetEndpoint() string
	NewDriver(ctx context.Context) (Driver, error)
}

// Options configures a launcher.
type Options struct {
	Engine         Engine
	Headless       bool
	ChromeBin      string
	ChromeRevision int
	ActionTimeout  time.Duration
	ViewportWidth  int
	ViewportHeight int
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		Engine:         EngineRod,
		Headless:       true,
		ActionTimeout:  30 * time.Second,
		ViewportWidth:  1280,
		ViewportHeight: 720,
	}
}

// MatchName reports whether an accessible name or label text satisfies want.
// Matching is case-insensitive, ignores runs of whitespace, and accepts
// substrings. An empty want matches everything. locateScript applies the same rule.
func MatchName(text, want string) bool {
	want = normalizeText(want)
	if want == "" {
		return true
	}
	return strings.Contains(normalizeText(text), want)
}

// MatchExact is the Exact counterpart of MatchName: whitespace is collapsed
// and trimmed, everything else must be equal.
func MatchExact(text, want string) bool {
	return strings.Join(strings.Fields(text), " ") == strings.Join(strings.Fields(want), " ")
}

// Matches applies the locator's name rule to text.
func (l Locator) Matches(text string) bool {
	want := l.Name
	if l.Role == "" {
		want = l.Label
	}
	if l.Exact {
		return MatchExact(text, want)
	}
	return MatchName(text, want)
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
