package journey

import (
	"fmt"

	"github.com/ahrdadan/clinicprobe/internal/browser"
	"github.com/ahrdadan/clinicprobe/internal/expect"
)

// StepKind identifies what a step does.
type StepKind string

const (
	KindGoto          StepKind = "goto"
	KindVisit         StepKind = "visit"
	KindFill          StepKind = "fill"
	KindClick         StepKind = "click"
	KindExpectURL     StepKind = "expect-url"
	KindExpectVisible StepKind = "expect-visible"
	KindExpectHidden  StepKind = "expect-hidden"
	KindScreenshot    StepKind = "screenshot"
)

// Step is one action or assertion of a scenario.
type Step struct {
	Kind   StepKind
	Target browser.Locator
	// Value is the URL for goto and visit, the text for fill and the file name for
	// screenshot.
	Value string
	URL   expect.URLMatcher
	// Secret keeps Value out of logs and manifests.
	Secret bool
}

// Goto loads url from scratch, as typing it in the address bar would.
func Goto(url string) Step { return Step{Kind: KindGoto, Value: url} }

// Visit routes to url inside the running app, keeping the signed-in session.
func Visit(url string) Step { return Step{Kind: KindVisit, Value: url} }

func Fill(loc browser.Locator, value string) Step {
	return Step{Kind: KindFill, Target: loc, Value: value}
}

// FillSecret is Fill for values that must not be logged.
func FillSecret(loc browser.Locator, value string) Step {
	return Step{Kind: KindFill, Target: loc, Value: value, Secret: true}
}

func Click(loc browser.Locator) Step { return Step{Kind: KindClick, Target: loc} }

func ExpectURL(m expect.URLMatcher) Step { return Step{Kind: KindExpectURL, URL: m} }

func ExpectVisible(loc browser.Locator) Step {
	return Step{Kind: KindExpectVisible, Target: loc}
}

func ExpectHidden(loc browser.Locator) Step {
	return Step{Kind: KindExpectHidden, Target: loc}
}

// Screenshot saves the viewport under name in the artifacts directory.
func Screenshot(name string) Step { return Step{Kind: KindScreenshot, Value: name} }

// DisplayValue is Value with secrets masked.
func (s Step) DisplayValue() string {
	if s.Secret && s.Value != "" {
		return "********"
	}
	return s.Value
}

func (s Step) String() string {
	switch s.Kind {
	case KindGoto, KindVisit, KindScreenshot:
		return fmt.Sprintf("%s %s", s.Kind, s.Value)
	case KindFill:
		return fmt.Sprintf("fill %s with %q", s.Target, s.DisplayValue())
	case KindExpectURL:
		if s.URL == nil {
			return string(s.Kind)
		}
		return fmt.Sprintf("expect url %s", s.URL)
	case KindExpectVisible:
		return fmt.Sprintf("expect %s visible", s.Target)
	case KindExpectHidden:
		return fmt.Sprintf("expect %s hidden", s.Target)
	default:
		return fmt.Sprintf("%s %s", s.Kind, s.Target)
	}
}
