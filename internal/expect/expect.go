// Package expect implements web-first assertions: each check polls the page
// until it holds or the expect timeout runs out.
package expect

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/ahrdadan/clinicprobe/internal/browser"
)

const (
	DefaultTimeout  = 5 * time.Second
	DefaultInterval = 100 * time.Millisecond
)

// Kind names the assertion that failed.
type Kind string

const (
	KindURL     Kind = "url"
	KindVisible Kind = "visible"
	KindHidden  Kind = "hidden"
)

// Page is the part of browser.Driver assertions need.
type Page interface {
	URL(ctx context.Context) (string, error)
	Visible(ctx context.Context, loc browser.Locator) (bool, error)
}

// AssertionError reports an expectation that did not hold in time.
type AssertionError struct {
	Kind   Kind
	Target string
	Want   string
	Got    string
}

func (e *AssertionError) Error() string {
	switch e.Kind {
	case KindURL:
		return fmt.Sprintf("expected page url to match %s, got %q", e.Want, e.Got)
	default:
		return fmt.Sprintf("expected %s to be %s, but it was %s", e.Target, e.Want, e.Got)
	}
}

// IsAssertion reports whether err carries an AssertionError.
func IsAssertion(err error) bool {
	var ae *AssertionError
	return errors.As(err, &ae)
}

// URLMatcher decides whether a page URL is the expected one.
type URLMatcher interface {
	Match(url string) bool
	String() string
}

type exactURL string

func (u exactURL) Match(url string) bool { return string(u) == url }
func (u exactURL) String() string        { return fmt.Sprintf("%q", string(u)) }

// ExactURL matches one URL literally.
func ExactURL(url string) URLMatcher { return exactURL(url) }

type patternURL struct {
	re *regexp.Regexp
}

func (p patternURL) Match(url string) bool { return p.re.MatchString(url) }
func (p patternURL) String() string        { return "/" + p.re.String() + "/" }

// URLPattern matches URLs containing a match of the regular expression.
func URLPattern(expr string) (URLMatcher, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid url pattern %q: %w", expr, err)
	}
	return patternURL{re: re}, nil
}

// MustURLPattern is URLPattern for expressions known at compile time.
func MustURLPattern(expr string) URLMatcher {
	m, err := URLPattern(expr)
	if err != nil {
		panic(err)
	}
	return m
}

// Expecter runs assertions against a Page.
type Expecter struct {
	Timeout  time.Duration
	Interval time.Duration
}

// New returns an Expecter with the given timeout and the default interval.
func New(timeout time.Duration) *Expecter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Expecter{Timeout: timeout, Interval: DefaultInterval}
}

// URL waits for the page URL to satisfy m.
func (e *Expecter) URL(ctx context.Context, page Page, m URLMatcher) error {
	var last string
	err := e.poll(ctx, func(ctx context.Context) (bool, error) {
		u, err := page.URL(ctx)
		if err != nil {
			return false, err
		}
		last = u
		return m.Match(u), nil
	})
	if errors.Is(err, errTimeout) {
		return &AssertionError{Kind: KindURL, Target: "page", Want: m.String(), Got: last}
	}
	return err
}

// Visible waits for at least one visible element matching loc.
func (e *Expecter) Visible(ctx context.Context, page Page, loc browser.Locator) error {
	err := e.poll(ctx, func(ctx context.Context) (bool, error) {
		return page.Visible(ctx, loc)
	})
	if errors.Is(err, errTimeout) {
		return &AssertionError{Kind: KindVisible, Target: loc.String(), Want: "visible", Got: "not visible"}
	}
	return err
}

// Hidden waits until no element matching loc is visible. Absent counts as hidden.
func (e *Expecter) Hidden(ctx context.Context, page Page, loc browser.Locator) error {
	err := e.poll(ctx, func(ctx context.Context) (bool, error) {
		ok, err := page.Visible(ctx, loc)
		return !ok, err
	})
	if errors.Is(err, errTimeout) {
		return &AssertionError{Kind: KindHidden, Target: loc.String(), Want: "hidden", Got: "visible"}
	}
	return err
}

var errTimeout = errors.New("expectation timed out")

// poll evaluates check immediately and then every Interval. A check error
// aborts the wait.
func (e *Expecter) poll(ctx context.Context, check func(context.Context) (bool, error)) error {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	interval := e.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := check(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return errTimeout
		case <-ticker.C:
		}
	}
}
