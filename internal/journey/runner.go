// Package journey holds the clinic verification scenarios and the runner that
// plays them against a browser, one scenario after another.
package journey

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ahrdadan/clinicprobe/internal/browser"
	"github.com/ahrdadan/clinicprobe/internal/expect"
)

// StepError is returned when a step fails. It stops the run.
type StepError struct {
	Scenario string
	Index    int
	Step     Step
	Err      error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %d (%s): %v", e.Scenario, e.Index+1, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// Progress describes one step of a run as it starts or finishes.
type Progress struct {
	Scenario string
	Step     Step
	// Index is the position within the scenario, Current within the whole run.
	Index   int
	Current int
	Total   int
	Elapsed time.Duration
	// Artifact is the file a screenshot step wrote.
	Artifact string
	Err      error
}

// Observer is notified around every step. Calls happen on the runner's
// goroutine and must not block for long.
type Observer interface {
	StepStarted(p Progress)
	StepFinished(p Progress)
}

// MultiObserver fans notifications out in order.
type MultiObserver []Observer

func (m MultiObserver) StepStarted(p Progress) {
	for _, o := range m {
		if o != nil {
			o.StepStarted(p)
		}
	}
}

func (m MultiObserver) StepFinished(p Progress) {
	for _, o := range m {
		if o != nil {
			o.StepFinished(p)
		}
	}
}

// ScenarioResult summarises one scenario of a report.
type ScenarioResult struct {
	Name     string        `yaml:"name"`
	Persona  string        `yaml:"persona"`
	Steps    int           `yaml:"steps"`
	Passed   int           `yaml:"passed"`
	Duration time.Duration `yaml:"duration"`
	Error    string        `yaml:"error,omitempty"`
}

// Report is what a run produced, also when it failed.
type Report struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	Scenarios   []ScenarioResult
	Screenshots []string
	Err         error
}

// OK reports whether every scenario passed.
func (r *Report) OK() bool { return r.Err == nil }

// Options configures a Runner.
type Options struct {
	ArtifactsDir  string
	ExpectTimeout time.Duration
	Observer      Observer
	Logger        *zap.Logger
}

// Runner plays scenarios on a single page of a browser it starts and stops.
type Runner struct {
	launcher  browser.Launcher
	expect    *expect.Expecter
	artifacts string
	observer  Observer
	logger    *zap.Logger
}

// NewRunner creates a runner around launcher.
func NewRunner(launcher browser.Launcher, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	observer := opts.Observer
	if observer == nil {
		observer = MultiObserver(nil)
	}
	return &Runner{
		launcher:  launcher,
		expect:    expect.New(opts.ExpectTimeout),
		artifacts: opts.ArtifactsDir,
		observer:  observer,
		logger:    logger,
	}
}

// Run starts the browser, runs scenarios in order and stops at the first
// failing step. The browser is stopped before Run returns.
func (r *Runner) Run(ctx context.Context, scenarios []Scenario) (*Report, error) {
	report := &Report{StartedAt: time.Now()}
	defer func() { report.FinishedAt = time.Now() }()

	err := r.run(ctx, scenarios, report)
	report.Err = err
	return report, err
}

func (r *Runner) run(ctx context.Context, scenarios []Scenario, report *Report) (err error) {
	if err := r.launcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		if stopErr := r.launcher.Stop(); stopErr != nil {
			r.logger.Warn("failed to stop browser", zap.Error(stopErr))
		}
	}()

	driver, err := r.launcher.NewDriver(ctx)
	if err != nil {
		return fmt.Errorf("failed to open page: %w", err)
	}
	defer func() {
		if closeErr := driver.Close(); closeErr != nil {
			r.logger.Debug("failed to close page", zap.Error(closeErr))
		}
	}()

	total := 0
	for _, sc := range scenarios {
		total += len(sc.Steps)
	}

	current := 0
	for _, sc := range scenarios {
		result := ScenarioResult{Name: sc.Name, Persona: sc.Persona.Email, Steps: len(sc.Steps)}
		start := time.Now()
		log := r.logger.With(zap.String("scenario", sc.Name))
		log.Info("Scenario started", zap.Int("steps", len(sc.Steps)))

		for i, step := range sc.Steps {
			current++
			p := Progress{Scenario: sc.Name, Step: step, Index: i, Current: current, Total: total}
			r.observer.StepStarted(p)

			stepStart := time.Now()
			artifact, stepErr := r.exec(ctx, driver, step)
			p.Elapsed = time.Since(stepStart)
			p.Artifact = artifact
			p.Err = stepErr
			r.observer.StepFinished(p)

			if stepErr != nil {
				result.Duration = time.Since(start)
				result.Error = stepErr.Error()
				report.Scenarios = append(report.Scenarios, result)
				log.Error("Step failed", zap.Int("step", i+1), zap.Stringer("action", step), zap.Error(stepErr))
				return &StepError{Scenario: sc.Name, Index: i, Step: step, Err: stepErr}
			}

			result.Passed++
			if artifact != "" {
				report.Screenshots = append(report.Screenshots, artifact)
			}
			log.Debug("Step passed", zap.Int("step", i+1), zap.Stringer("action", step), zap.Duration("elapsed", p.Elapsed))
		}

		result.Duration = time.Since(start)
		report.Scenarios = append(report.Scenarios, result)
		log.Info("Scenario passed", zap.Duration("duration", result.Duration))
	}
	return nil
}

func (r *Runner) exec(ctx context.Context, d browser.Driver, s Step) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	switch s.Kind {
	case KindGoto:
		return "", d.Goto(ctx, s.Value)
	case KindVisit:
		return "", d.Visit(ctx, s.Value)
	case KindFill:
		return "", d.Fill(ctx, s.Target, s.Value)
	case KindClick:
		return "", d.Click(ctx, s.Target)
	case KindExpectURL:
		if s.URL == nil {
			return "", errors.New("expect-url step without a matcher")
		}
		return "", r.expect.URL(ctx, d, s.URL)
	case KindExpectVisible:
		return "", r.expect.Visible(ctx, d, s.Target)
	case KindExpectHidden:
		return "", r.expect.Hidden(ctx, d, s.Target)
	case KindScreenshot:
		return r.screenshot(ctx, d, s.Value)
	default:
		return "", fmt.Errorf("unknown step kind %q", s.Kind)
	}
}

func (r *Runner) screenshot(ctx context.Context, d browser.Driver, name string) (string, error) {
	png, err := d.Screenshot(ctx)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(r.artifacts, 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifacts directory: %w", err)
	}
	path := filepath.Join(r.artifacts, name)
	if err := os.WriteFile(path, png, 0o644); err != nil {
		return "", fmt.Errorf("failed to write screenshot: %w", err)
	}
	return path, nil
}
