package queue

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/clinicprobe/internal/browser/browsertest"
	"github.com/ahrdadan/clinicprobe/internal/journey"
)

type fakeExecutor struct {
	mu        sync.Mutex
	active    int
	maxActive int
	order     []string
	release   chan struct{}
	err       error
	shots     []string
}

func (f *fakeExecutor) Execute(ctx context.Context, run *Run, progress func(ProgressInfo, string)) ([]string, error) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.order = append(f.order, run.ID)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	progress(ProgressInfo{Current: 1, Total: 2, Scenario: "patient-signup", Step: "goto /login"}, "Passed goto /login")

	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	} else {
		time.Sleep(5 * time.Millisecond)
	}
	return f.shots, f.err
}

func (f *fakeExecutor) Order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.order...)
}

func startManager(t *testing.T, exec Executor, opts ManagerOptions) *Manager {
	t.Helper()
	m := NewManager(exec, opts)
	require.NoError(t, m.Start())
	t.Cleanup(m.Stop)
	return m
}

func waitStatus(t *testing.T, m *Manager, id string, want RunStatus) *Run {
	t.Helper()
	var run *Run
	require.Eventually(t, func() bool {
		r, err := m.Get(id)
		if err != nil {
			return false
		}
		run = r
		return r.Status == want
	}, 2*time.Second, 5*time.Millisecond, "run %s never reached %s", id, want)
	return run
}

func TestManagerRunsOneAtATime(t *testing.T) {
	exec := &fakeExecutor{shots: []string{"01_complete_profile_page.png"}}
	m := startManager(t, exec, ManagerOptions{})

	var ids []string
	for i := 0; i < 4; i++ {
		run, dup, err := m.Enqueue(RunRequest{})
		require.NoError(t, err)
		assert.False(t, dup)
		ids = append(ids, run.ID)
	}

	for _, id := range ids {
		run := waitStatus(t, m, id, RunStatusSucceeded)
		assert.Equal(t, 100, run.Progress)
		assert.Equal(t, []string{"01_complete_profile_page.png"}, run.Screenshots)
	}

	assert.Equal(t, ids, exec.Order())
	exec.mu.Lock()
	assert.Equal(t, 1, exec.maxActive)
	exec.mu.Unlock()
}

func TestManagerIdempotencyKey(t *testing.T) {
	exec := &fakeExecutor{release: make(chan struct{})}
	m := startManager(t, exec, ManagerOptions{})
	defer close(exec.release)

	first, dup, err := m.Enqueue(RunRequest{IdempotencyKey: "nightly"})
	require.NoError(t, err)
	assert.False(t, dup)

	second, dup, err := m.Enqueue(RunRequest{IdempotencyKey: "nightly"})
	require.NoError(t, err)
	assert.True(t, dup)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, m.List(), 1)
}

func TestManagerCancel(t *testing.T) {
	exec := &fakeExecutor{release: make(chan struct{})}
	m := startManager(t, exec, ManagerOptions{})

	a, _, err := m.Enqueue(RunRequest{})
	require.NoError(t, err)
	b, _, err := m.Enqueue(RunRequest{})
	require.NoError(t, err)

	waitStatus(t, m, a.ID, RunStatusRunning)

	_, err = m.Cancel(a.ID)
	assert.ErrorIs(t, err, ErrNotCancelable)

	canceled, err := m.Cancel(b.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCanceled, canceled.Status)

	_, err = m.Cancel("run_nope")
	assert.ErrorIs(t, err, ErrNotFound)

	close(exec.release)
	waitStatus(t, m, a.ID, RunStatusSucceeded)

	// b is skipped by the worker.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{a.ID}, exec.Order())
	got, err := m.Get(b.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCanceled, got.Status)
}

func TestManagerFailedRun(t *testing.T) {
	exec := &fakeExecutor{
		err:   errors.New("doctor-view: step 5: expected page url to match /.*/dashboard/"),
		shots: []string{"01_complete_profile_page.png", "02_patient_landing_page.png"},
	}
	m := startManager(t, exec, ManagerOptions{})

	run, _, err := m.Enqueue(RunRequest{})
	require.NoError(t, err)

	got := waitStatus(t, m, run.ID, RunStatusFailed)
	assert.Contains(t, got.Error, "doctor-view")
	assert.Len(t, got.Screenshots, 2)
	assert.NotZero(t, got.CompletedAt)
}

func TestManagerEvents(t *testing.T) {
	exec := &fakeExecutor{release: make(chan struct{})}
	sink := &memorySink{}
	m := startManager(t, exec, ManagerOptions{Sink: sink})

	run, _, err := m.Enqueue(RunRequest{})
	require.NoError(t, err)
	events := m.Subscribe(run.ID)
	defer m.Unsubscribe(run.ID, events)

	close(exec.release)

	var seen []RunStatus
	timeout := time.After(2 * time.Second)
	for done := false; !done; {
		select {
		case e := <-events:
			seen = append(seen, e.Status)
			done = e.Status.IsTerminal()
		case <-timeout:
			t.Fatalf("no terminal event, saw %v", seen)
		}
	}
	assert.Equal(t, RunStatusSucceeded, seen[len(seen)-1])

	m.Stop()
	var exported []RunStatus
	for _, e := range sink.Events() {
		exported = append(exported, e.Status)
	}
	require.NotEmpty(t, exported)
	assert.Equal(t, RunStatusQueued, exported[0])
	assert.Contains(t, exported, RunStatusRunning)
	assert.Equal(t, RunStatusSucceeded, exported[len(exported)-1])
}

func TestManagerStopInterruptsRun(t *testing.T) {
	exec := &fakeExecutor{release: make(chan struct{})}
	m := NewManager(exec, ManagerOptions{})
	require.NoError(t, m.Start())

	run, _, err := m.Enqueue(RunRequest{})
	require.NoError(t, err)
	waitStatus(t, m, run.ID, RunStatusRunning)

	m.Stop()

	got, err := m.Store().Get(run.ID)
	require.NoError(t, err)
	assert.Equal(t, RunStatusCanceled, got.Status)

	_, _, err = m.Enqueue(RunRequest{})
	assert.ErrorIs(t, err, ErrStopped)
	assert.ErrorIs(t, m.Start(), ErrStopped)
}

func TestManagerQueueFull(t *testing.T) {
	exec := &fakeExecutor{release: make(chan struct{})}
	m := startManager(t, exec, ManagerOptions{QueueSize: 1})
	defer close(exec.release)

	a, _, err := m.Enqueue(RunRequest{})
	require.NoError(t, err)
	waitStatus(t, m, a.ID, RunStatusRunning)

	_, _, err = m.Enqueue(RunRequest{})
	require.NoError(t, err)

	_, _, err = m.Enqueue(RunRequest{})
	assert.ErrorIs(t, err, ErrQueueFull)
}

func TestVerificationExecutor(t *testing.T) {
	page := browsertest.NewClinic("http://localhost:5173")
	root := t.TempDir()
	exec := &VerificationExecutor{
		Launcher:      &browsertest.Launcher{Page: page},
		Plan:          journey.DefaultPlan(),
		ArtifactsRoot: root,
		ExpectTimeout: 50 * time.Millisecond,
	}

	run := NewRun(RunRequest{ProbeRoutes: true}, time.Hour)
	var last ProgressInfo
	calls := 0
	shots, err := exec.Execute(t.Context(), run, func(info ProgressInfo, _ string) {
		calls++
		last = info
	})
	require.NoError(t, err)

	assert.Equal(t, []string{
		journey.ShotCompleteProfile,
		journey.ShotPatientLanding,
		journey.ShotDoctorView,
		journey.ShotNurseView,
	}, shots)
	for _, name := range shots {
		_, err := os.Stat(filepath.Join(root, run.ID, name))
		assert.NoError(t, err)
	}

	assert.Equal(t, last.Total, last.Current)
	assert.Equal(t, "route-probes", last.Scenario)
	assert.Equal(t, 2*last.Total, calls)
}
