package nats

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/clinicprobe/internal/browser/browsertest"
	"github.com/ahrdadan/clinicprobe/internal/journey"
	"github.com/ahrdadan/clinicprobe/internal/queue"
)

func TestSubject(t *testing.T) {
	tests := []struct {
		name  string
		event queue.Event
		want  string
	}{
		{"running", queue.Event{RunID: "run_1a2b3c4d", Status: queue.RunStatusRunning}, "clinicprobe.runs.run_1a2b3c4d.running"},
		{"no status", queue.Event{RunID: "run_1"}, "clinicprobe.runs.run_1._"},
		{"wildcards", queue.Event{RunID: "a.b*c>d e", Status: queue.RunStatusFailed}, "clinicprobe.runs.a_b_c_d_e.failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Subject(DefaultSubjectPrefix, tt.event))
		})
	}
}

func TestMsgIDFollowsSeq(t *testing.T) {
	a := queue.Event{RunID: "run_1", Status: queue.RunStatusRunning, Progress: 10, Time: 1, Seq: 4}
	b := a
	b.Seq = 5
	assert.NotEqual(t, MsgID(a), MsgID(b))
	assert.Equal(t, MsgID(a), MsgID(a))
	assert.Equal(t, "run_1-4", MsgID(a))
}

type recordingSink struct {
	mu     sync.Mutex
	events []queue.Event
}

func (s *recordingSink) Publish(e queue.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) Events() []queue.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]queue.Event(nil), s.events...)
}

// Several steps of a run can finish in the same millisecond with the same
// progress; their IDs must still differ or the stream discards them.
func TestMsgIDUniqueAcrossRun(t *testing.T) {
	sink := &recordingSink{}
	exec := &queue.VerificationExecutor{
		Launcher:      &browsertest.Launcher{Page: browsertest.NewClinic("http://localhost:5173")},
		Plan:          journey.DefaultPlan(),
		ArtifactsRoot: t.TempDir(),
		ExpectTimeout: 50 * time.Millisecond,
	}
	m := queue.NewManager(exec, queue.ManagerOptions{Sink: sink})
	require.NoError(t, m.Start())

	run, _, err := m.Enqueue(queue.RunRequest{ProbeRoutes: true})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		r, err := m.Get(run.ID)
		return err == nil && r.Status.IsTerminal()
	}, 5*time.Second, 5*time.Millisecond)
	m.Stop()

	events := sink.Events()
	require.NotEmpty(t, events)
	assert.Equal(t, queue.RunStatusSucceeded, events[len(events)-1].Status)

	ids := make(map[string]queue.Event, len(events))
	for _, e := range events {
		id := MsgID(e)
		prev, dup := ids[id]
		require.False(t, dup, "events %+v and %+v share msg id %s", prev, e, id)
		ids[id] = e
	}
}

func TestConnectUnreachable(t *testing.T) {
	_, err := Connect(t.Context(), Config{URL: "nats://127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to NATS")
}
