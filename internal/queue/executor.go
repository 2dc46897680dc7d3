package queue

import (
	"context"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/ahrdadan/clinicprobe/internal/browser"
	"github.com/ahrdadan/clinicprobe/internal/journey"
)

// RunObserver is told about every step and about the finished report.
type RunObserver interface {
	journey.Observer
	RunFinished(report *journey.Report)
}

// VerificationExecutor plays the scenario catalogue for a queued run. Each
// run writes its screenshots to ArtifactsRoot/<run id>.
type VerificationExecutor struct {
	Launcher      browser.Launcher
	Plan          journey.Plan
	ArtifactsRoot string
	ExpectTimeout time.Duration
	Observer      RunObserver
	Logger        *zap.Logger
}

// ArtifactsDir returns where a run's screenshots live.
func (e *VerificationExecutor) ArtifactsDir(runID string) string {
	return filepath.Join(e.ArtifactsRoot, runID)
}

// Execute runs the scenarios and returns the screenshot file names written,
// also when the run fails part way.
func (e *VerificationExecutor) Execute(ctx context.Context, run *Run, progress func(ProgressInfo, string)) ([]string, error) {
	logger := e.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	plan := e.Plan
	plan.ProbeRoutes = plan.ProbeRoutes || run.Request.ProbeRoutes

	observers := journey.MultiObserver{&progressReporter{report: progress}}
	if e.Observer != nil {
		observers = append(observers, e.Observer)
	}

	runner := journey.NewRunner(e.Launcher, journey.Options{
		ArtifactsDir:  e.ArtifactsDir(run.ID),
		ExpectTimeout: e.ExpectTimeout,
		Observer:      observers,
		Logger:        logger.With(zap.String("run_id", run.ID)),
	})

	report, err := runner.Run(ctx, plan.Scenarios())
	if e.Observer != nil {
		e.Observer.RunFinished(report)
	}

	names := make([]string, 0, len(report.Screenshots))
	for _, p := range report.Screenshots {
		names = append(names, filepath.Base(p))
	}
	return names, err
}

// progressReporter turns runner notifications into run progress updates.
type progressReporter struct {
	report func(ProgressInfo, string)
}

func (r *progressReporter) StepStarted(p journey.Progress) {
	r.report(ProgressInfo{
		Current:  p.Current - 1,
		Total:    p.Total,
		Scenario: p.Scenario,
		Step:     p.Step.String(),
	}, "Running "+p.Step.String())
}

func (r *progressReporter) StepFinished(p journey.Progress) {
	if p.Err != nil {
		return
	}
	r.report(ProgressInfo{
		Current:  p.Current,
		Total:    p.Total,
		Scenario: p.Scenario,
		Step:     p.Step.String(),
	}, "Passed "+p.Step.String())
}
