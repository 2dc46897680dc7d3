package queue

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	subscriberBuffer = 16
	exportBuffer     = 256
)

// Event represents a run event
type Event struct {
	// Seq increases by one per event emitted by a hub.
	Seq      uint64    `json:"seq"`
	RunID    string    `json:"run_id"`
	Status   RunStatus `json:"status"`
	Scenario string    `json:"scenario,omitempty"`
	Step     string    `json:"step,omitempty"`
	Progress int       `json:"progress,omitempty"`
	Message  string    `json:"message,omitempty"`
	Time     int64     `json:"time"`
}

// Sink receives every emitted event, e.g. to export it. Publish runs on the
// hub's export goroutine, never on the emitter's.
type Sink interface {
	Publish(event Event) error
}

// EventHub manages event subscriptions
type EventHub struct {
	subscribers map[string][]chan Event
	mu          sync.Mutex
	seq         atomic.Uint64
	closed      bool

	sink    Sink
	exports chan Event
	done    chan struct{}
	logger  *zap.Logger
}

// NewEventHub creates a new event hub. sink may be nil; when set, events are
// handed to it in order from a dedicated goroutine until Close.
func NewEventHub(sink Sink, logger *zap.Logger) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &EventHub{
		subscribers: make(map[string][]chan Event),
		sink:        sink,
		logger:      logger,
	}
	if sink != nil {
		h.exports = make(chan Event, exportBuffer)
		h.done = make(chan struct{})
		go h.export()
	}
	return h
}

func (h *EventHub) export() {
	defer close(h.done)
	for event := range h.exports {
		if err := h.sink.Publish(event); err != nil {
			h.logger.Warn("failed to export event", zap.String("run_id", event.RunID), zap.Uint64("seq", event.Seq), zap.Error(err))
		}
	}
}

// Subscribe creates a subscription for run events
func (h *EventHub) Subscribe(runID string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[runID] = append(h.subscribers[runID], ch)
	return ch
}

// Unsubscribe removes a subscription
func (h *EventHub) Unsubscribe(runID string, ch <-chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[runID]
	for i, sub := range subs {
		if sub == ch {
			h.subscribers[runID] = append(subs[:i], subs[i+1:]...)
			close(sub)
			break
		}
	}

	if len(h.subscribers[runID]) == 0 {
		delete(h.subscribers, runID)
	}
}

// Emit sends an event to all subscribers of a run and queues it for the sink.
// It never blocks. A subscriber that is behind loses progress events, but a
// terminal event replaces the oldest buffered one so every stream can end.
func (h *EventHub) Emit(event Event) {
	if event.Time == 0 {
		event.Time = time.Now().UnixMilli()
	}
	event.Seq = h.seq.Add(1)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}

	for _, ch := range h.subscribers[event.RunID] {
		select {
		case ch <- event:
			continue
		default:
		}
		if !event.Status.IsTerminal() {
			continue
		}
		// Only emitters send, and they hold mu, so one receive frees a slot.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	}

	if h.exports != nil {
		select {
		case h.exports <- event:
		default:
			h.logger.Warn("event export queue full, dropping event", zap.String("run_id", event.RunID), zap.Uint64("seq", event.Seq))
		}
	}
}

// Subscribers returns the number of open subscriptions for a run
func (h *EventHub) Subscribers(runID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[runID])
}

// Close closes all subscriptions and waits for queued exports to finish
func (h *EventHub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	for runID, subs := range h.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(h.subscribers, runID)
	}
	if h.exports != nil {
		close(h.exports)
	}
	h.mu.Unlock()

	if h.done != nil {
		<-h.done
	}
}
