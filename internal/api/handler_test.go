package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrdadan/clinicprobe/internal/api"
	"github.com/ahrdadan/clinicprobe/internal/metrics"
	"github.com/ahrdadan/clinicprobe/internal/queue"
	"github.com/ahrdadan/clinicprobe/internal/security"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n")

// stubExecutor writes one screenshot per run. When gate is set each run
// waits for it to be closed.
type stubExecutor struct {
	root string
	gate chan struct{}
}

func (e *stubExecutor) dir(runID string) string {
	return filepath.Join(e.root, runID)
}

func (e *stubExecutor) Execute(ctx context.Context, run *queue.Run, progress func(queue.ProgressInfo, string)) ([]string, error) {
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	progress(queue.ProgressInfo{Current: 1, Total: 1, Percent: 100, Scenario: "patient-signup", Step: "screenshot"}, "1/1")

	if err := os.MkdirAll(e.dir(run.ID), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(e.dir(run.ID), "verification_complete_profile.png"), pngHeader, 0o644); err != nil {
		return nil, err
	}
	return []string{"verification_complete_profile.png"}, nil
}

type staticBrowser struct{}

func (staticBrowser) IsRunning() bool     { return false }
func (staticBrowser) GetEndpoint() string { return "" }

type fixture struct {
	app      *fiber.App
	manager  *queue.Manager
	executor *stubExecutor
}

func setup(t *testing.T, gated bool, limiter *security.RateLimiter) *fixture {
	t.Helper()

	exec := &stubExecutor{root: t.TempDir()}
	if gated {
		exec.gate = make(chan struct{})
	}
	manager := queue.NewManager(exec, queue.ManagerOptions{QueueSize: 4})
	require.NoError(t, manager.Start())
	t.Cleanup(manager.Stop)

	app := fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler})
	api.SetupRoutes(app, manager, staticBrowser{}, api.RouteConfig{
		BaseURL:      "http://localhost:8000",
		Engine:       "rod",
		ArtifactsDir: exec.dir,
		Metrics:      metrics.NewRecorder().Handler(),
		RateLimiter:  limiter,
	})

	return &fixture{app: app, manager: manager, executor: exec}
}

func do(t *testing.T, app *fiber.App, method, target, body string, headers ...string) (int, api.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	resp, err := app.Test(req, 2000)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope api.Response
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &envelope))
	}
	return resp.StatusCode, envelope, raw
}

func createRun(t *testing.T, app *fiber.App, body string, headers ...string) (int, queue.RunCreatedResponse) {
	t.Helper()

	status, envelope, _ := do(t, app, "POST", "/runs", body, headers...)
	var created queue.RunCreatedResponse
	if envelope.Data != nil {
		data, err := json.Marshal(envelope.Data)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, &created))
	}
	return status, created
}

func waitStatus(t *testing.T, m *queue.Manager, id string, want queue.RunStatus) {
	t.Helper()
	require.Eventually(t, func() bool {
		run, err := m.Get(id)
		return err == nil && run.Status == want
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthCheck(t *testing.T) {
	f := setup(t, false, nil)

	status, envelope, _ := do(t, f.app, "GET", "/health", "")
	assert.Equal(t, fiber.StatusOK, status)
	assert.True(t, envelope.Success)
	assert.Equal(t, "ok", envelope.Data.(map[string]interface{})["status"])
}

func TestBrowserStatus(t *testing.T) {
	f := setup(t, false, nil)

	status, envelope, _ := do(t, f.app, "GET", "/browser/status", "")
	assert.Equal(t, fiber.StatusOK, status)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "rod", data["engine"])
	assert.Equal(t, false, data["running"])
}

func TestCreateRunAndFetchScreenshot(t *testing.T) {
	f := setup(t, false, nil)

	status, created := createRun(t, f.app, `{"probe_routes": true}`)
	require.Equal(t, fiber.StatusAccepted, status)
	assert.True(t, strings.HasPrefix(created.RunID, "run_"))
	assert.Equal(t, "http://localhost:8000/runs/"+created.RunID, created.StatusURL)
	assert.Equal(t, "http://localhost:8000/runs/"+created.RunID+"/events", created.Events.SSEURL)
	assert.Equal(t, "ws://localhost:8000/ws?run_id="+created.RunID, created.Events.WSURL)

	waitStatus(t, f.manager, created.RunID, queue.RunStatusSucceeded)

	status, envelope, _ := do(t, f.app, "GET", "/runs/"+created.RunID, "")
	require.Equal(t, fiber.StatusOK, status)
	data := envelope.Data.(map[string]interface{})
	assert.Equal(t, "succeeded", data["status"])
	assert.Equal(t, true, data["request"].(map[string]interface{})["probe_routes"])
	assert.Equal(t, []interface{}{"verification_complete_profile.png"}, data["screenshots"])

	status, _, raw := do(t, f.app, "GET", "/runs/"+created.RunID+"/screenshots/verification_complete_profile.png", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, pngHeader, raw)

	status, envelope, _ = do(t, f.app, "GET", "/runs/"+created.RunID+"/screenshots/other.png", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.False(t, envelope.Success)
}

func TestCreateRunWithoutBody(t *testing.T) {
	f := setup(t, false, nil)

	status, created := createRun(t, f.app, "")
	require.Equal(t, fiber.StatusAccepted, status)
	waitStatus(t, f.manager, created.RunID, queue.RunStatusSucceeded)
}

func TestCreateRunRejectsBadBody(t *testing.T) {
	f := setup(t, false, nil)

	status, envelope, _ := do(t, f.app, "POST", "/runs", `{"probe_routes":`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "Invalid request body", envelope.Error)
}

func TestCreateRunIdempotent(t *testing.T) {
	f := setup(t, true, nil)
	defer close(f.executor.gate)

	status, first := createRun(t, f.app, "", "Idempotency-Key", "nightly-1")
	require.Equal(t, fiber.StatusAccepted, status)

	status, second := createRun(t, f.app, "", "Idempotency-Key", "nightly-1")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, first.RunID, second.RunID)
	assert.True(t, second.Duplicate)

	status, third := createRun(t, f.app, "", "Idempotency-Key", "nightly-2")
	require.Equal(t, fiber.StatusAccepted, status)
	assert.NotEqual(t, first.RunID, third.RunID)
}

func TestGetUnknownRun(t *testing.T) {
	f := setup(t, false, nil)

	status, envelope, _ := do(t, f.app, "GET", "/runs/run_missing", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.False(t, envelope.Success)
	assert.NotEmpty(t, envelope.Error)
}

func TestCancelRun(t *testing.T) {
	f := setup(t, true, nil)

	_, running := createRun(t, f.app, "")
	waitStatus(t, f.manager, running.RunID, queue.RunStatusRunning)
	_, queued := createRun(t, f.app, "")

	status, envelope, _ := do(t, f.app, "POST", "/runs/"+queued.RunID+"/cancel", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "canceled", envelope.Data.(map[string]interface{})["status"])

	status, envelope, _ = do(t, f.app, "POST", "/runs/"+running.RunID+"/cancel", "")
	assert.Equal(t, fiber.StatusConflict, status)
	assert.False(t, envelope.Success)

	close(f.executor.gate)
	waitStatus(t, f.manager, running.RunID, queue.RunStatusSucceeded)

	run, err := f.manager.Get(queued.RunID)
	require.NoError(t, err)
	assert.Equal(t, queue.RunStatusCanceled, run.Status)
}

func TestListRuns(t *testing.T) {
	f := setup(t, false, nil)

	_, a := createRun(t, f.app, "")
	waitStatus(t, f.manager, a.RunID, queue.RunStatusSucceeded)

	status, envelope, _ := do(t, f.app, "GET", "/runs", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, envelope.Data, 1)
}

func TestCreateRunRateLimited(t *testing.T) {
	limiter := security.NewRateLimiter(security.RateLimitConfig{RequestsPerMinute: 1, Burst: 1})
	f := setup(t, false, limiter)

	status, _ := createRun(t, f.app, "")
	require.Equal(t, fiber.StatusAccepted, status)

	status, envelope, _ := do(t, f.app, "POST", "/runs", "")
	assert.Equal(t, fiber.StatusTooManyRequests, status)
	assert.Equal(t, "Rate limit exceeded", envelope.Error)

	// Reads are not limited.
	status, _, _ = do(t, f.app, "GET", "/runs", "")
	assert.Equal(t, fiber.StatusOK, status)
}

func TestStreamEventsOfFinishedRun(t *testing.T) {
	f := setup(t, false, nil)

	_, created := createRun(t, f.app, "")
	waitStatus(t, f.manager, created.RunID, queue.RunStatusSucceeded)

	status, _, raw := do(t, f.app, "GET", "/runs/"+created.RunID+"/events", "")
	require.Equal(t, fiber.StatusOK, status)

	body := string(raw)
	require.True(t, strings.HasPrefix(body, "data: "), body)
	var event queue.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(strings.TrimPrefix(body, "data: "))), &event))
	assert.Equal(t, created.RunID, event.RunID)
	assert.Equal(t, queue.RunStatusSucceeded, event.Status)
}

func TestStreamEventsUnknownRun(t *testing.T) {
	f := setup(t, false, nil)

	status, _, _ := do(t, f.app, "GET", "/runs/run_missing/events", "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Equal(t, 0, f.manager.Events().Subscribers("run_missing"))
}

func TestWebSocketRequiresUpgrade(t *testing.T) {
	f := setup(t, false, nil)

	status, _, _ := do(t, f.app, "GET", "/ws?run_id=run_x", "")
	assert.Equal(t, fiber.StatusUpgradeRequired, status)
}

func TestMetricsEndpoint(t *testing.T) {
	f := setup(t, false, nil)

	status, _, raw := do(t, f.app, "GET", "/metrics", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), "clinicprobe_screenshots_total")
}

func TestSecurityHeaders(t *testing.T) {
	f := setup(t, false, nil)

	resp, err := f.app.Test(httptest.NewRequest("GET", "/health", nil))
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
	assert.Equal(t, "DENY", resp.Header.Get("X-Frame-Options"))
}
