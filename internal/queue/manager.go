package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when the pending queue has no room
	ErrQueueFull = errors.New("run queue is full")
	// ErrNotCancelable is returned when canceling a run that already started
	ErrNotCancelable = errors.New("run can no longer be canceled")
	// ErrStopped is returned when enqueuing after Stop
	ErrStopped = errors.New("run queue is stopped")
)

// Executor performs one verification run. progress is called for every step.
type Executor interface {
	Execute(ctx context.Context, run *Run, progress func(ProgressInfo, string)) ([]string, error)
}

// ManagerOptions configures a Manager
type ManagerOptions struct {
	QueueSize int
	ResultTTL time.Duration
	Sink      Sink
	Logger    *zap.Logger
}

// Manager runs verifications one at a time in FIFO order. The clinic
// application under test keeps shared state, so runs never overlap.
type Manager struct {
	store    *Store
	events   *EventHub
	executor Executor
	pending  chan string
	ttl      time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	stopped   bool
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager creates a new run manager
func NewManager(executor Executor, opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		store:    NewStore(logger),
		events:   NewEventHub(opts.Sink, logger),
		executor: executor,
		pending:  make(chan string, size),
		ttl:      opts.ResultTTL,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start starts the worker
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stopped {
		return ErrStopped
	}
	if m.isRunning {
		return nil
	}
	m.isRunning = true

	m.logger.Info("Starting verification worker")

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-m.ctx.Done():
				return
			case id := <-m.pending:
				m.process(id)
			}
		}
	}()

	return nil
}

// Stop cancels the active run, waits for the worker and releases resources
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return
	}
	m.stopped = true
	m.isRunning = false
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.store.Stop()
	m.events.Close()
	m.logger.Info("Verification worker stopped")
}

// Enqueue queues a new run for req. When req carries an idempotency key that
// a live run already used, that run is returned and duplicate is true.
func (m *Manager) Enqueue(req RunRequest) (run *Run, duplicate bool, err error) {
	m.mu.Lock()
	stopped := m.stopped
	m.mu.Unlock()
	if stopped {
		return nil, false, ErrStopped
	}

	run, duplicate, err = m.store.SaveIdempotent(NewRun(req, m.ttl))
	if err != nil {
		return nil, false, fmt.Errorf("failed to save run: %w", err)
	}
	if duplicate {
		return run, true, nil
	}

	m.events.Emit(Event{RunID: run.ID, Status: run.Status, Message: "Run queued"})

	select {
	case m.pending <- run.ID:
	default:
		if failed, err := m.store.Transition(run.ID, func(r *Run) error {
			r.SetError(ErrQueueFull.Error(), nil)
			return nil
		}); err == nil {
			m.emit(failed, "", "")
		}
		return nil, false, ErrQueueFull
	}

	m.logger.Info("Run queued", zap.String("run_id", run.ID), zap.Bool("probe_routes", req.ProbeRoutes))
	return run, false, nil
}

// Get retrieves a run by ID
func (m *Manager) Get(id string) (*Run, error) {
	return m.store.Get(id)
}

// List returns all live runs
func (m *Manager) List() []*Run {
	return m.store.List()
}

// Cancel cancels a queued run
func (m *Manager) Cancel(id string) (*Run, error) {
	run, err := m.store.Transition(id, func(r *Run) error {
		if r.Status != RunStatusQueued {
			return fmt.Errorf("%w: status is %s", ErrNotCancelable, r.Status)
		}
		r.SetStatus(RunStatusCanceled)
		r.Message = "Run canceled"
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.events.Emit(Event{RunID: run.ID, Status: run.Status, Message: run.Message})
	return run, nil
}

// Subscribe subscribes to run events
func (m *Manager) Subscribe(id string) <-chan Event {
	return m.events.Subscribe(id)
}

// Unsubscribe unsubscribes from run events
func (m *Manager) Unsubscribe(id string, ch <-chan Event) {
	m.events.Unsubscribe(id, ch)
}

// Events returns the event hub
func (m *Manager) Events() *EventHub {
	return m.events
}

// Store returns the run store
func (m *Manager) Store() *Store {
	return m.store
}

func (m *Manager) process(id string) {
	run, err := m.store.Transition(id, func(r *Run) error {
		if r.Status != RunStatusQueued {
			return ErrNotCancelable
		}
		r.SetStatus(RunStatusRunning)
		r.Message = "Verification started"
		return nil
	})
	if err != nil {
		// Canceled or expired while waiting.
		return
	}

	log := m.logger.With(zap.String("run_id", run.ID))
	log.Info("Run started")
	m.emit(run, "", "")

	start := time.Now()
	screenshots, err := m.executor.Execute(m.ctx, run, func(info ProgressInfo, message string) {
		run.SetProgress(info, message)
		m.update(run)
		m.emit(run, info.Scenario, info.Step)
	})

	switch {
	case err != nil && m.ctx.Err() != nil:
		run.Screenshots = screenshots
		run.Error = err.Error()
		run.Message = "Run interrupted"
		run.SetStatus(RunStatusCanceled)
	case err != nil:
		run.SetError(err.Error(), screenshots)
	default:
		run.SetResult(screenshots)
	}
	m.update(run)
	m.emit(run, "", "")

	log.Info("Run finished", zap.String("status", string(run.Status)), zap.Duration("duration", time.Since(start)))
}

func (m *Manager) update(run *Run) {
	if err := m.store.Update(run); err != nil {
		m.logger.Warn("failed to update run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

func (m *Manager) emit(run *Run, scenario, step string) {
	m.events.Emit(Event{
		RunID:    run.ID,
		Status:   run.Status,
		Scenario: scenario,
		Step:     step,
		Progress: run.Progress,
		Message:  run.Message,
	})
}
