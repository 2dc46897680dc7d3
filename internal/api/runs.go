package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/ahrdadan/clinicprobe/internal/queue"
)

// RunService is the part of queue.Manager the handlers use.
type RunService interface {
	Enqueue(req queue.RunRequest) (*queue.Run, bool, error)
	Get(id string) (*queue.Run, error)
	List() []*queue.Run
	Cancel(id string) (*queue.Run, error)
	Subscribe(id string) <-chan queue.Event
	Unsubscribe(id string, ch <-chan queue.Event)
}

// RunHandler handles run-related API requests
type RunHandler struct {
	runs         RunService
	artifactsDir func(runID string) string
	baseURL      string
}

// NewRunHandler creates a new run handler. artifactsDir maps a run ID to the
// directory holding its screenshots.
func NewRunHandler(runs RunService, artifactsDir func(string) string, baseURL string) *RunHandler {
	return &RunHandler{
		runs:         runs,
		artifactsDir: artifactsDir,
		baseURL:      strings.TrimRight(baseURL, "/"),
	}
}

// CreateRunRequest is the optional body of POST /runs
type CreateRunRequest struct {
	ProbeRoutes    bool   `json:"probe_routes"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// CreateRun queues a verification run
// POST /runs
func (h *RunHandler) CreateRun(c *fiber.Ctx) error {
	var req CreateRunRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
		}
	}

	// Header takes precedence over body
	if key := c.Get("Idempotency-Key"); key != "" {
		req.IdempotencyKey = key
	}
	if len(req.IdempotencyKey) > 128 {
		return fiber.NewError(fiber.StatusBadRequest, "Idempotency key too long")
	}

	run, duplicate, err := h.runs.Enqueue(queue.RunRequest{
		ProbeRoutes:    req.ProbeRoutes,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return err
	}

	resp := queue.RunCreatedResponse{
		RunID:     run.ID,
		Status:    run.Status,
		StatusURL: fmt.Sprintf("%s/runs/%s", h.baseURL, run.ID),
		Duplicate: duplicate,
	}
	resp.Events.SSEURL = fmt.Sprintf("%s/runs/%s/events", h.baseURL, run.ID)
	resp.Events.WSURL = fmt.Sprintf("%s/ws?run_id=%s", wsBase(h.baseURL), run.ID)

	status := fiber.StatusAccepted
	if duplicate {
		status = fiber.StatusOK
	}
	return c.Status(status).JSON(Response{
		Success: true,
		Data:    resp,
	})
}

// ListRuns returns all live runs, newest first
// GET /runs
func (h *RunHandler) ListRuns(c *fiber.Ctx) error {
	return c.JSON(Response{
		Success: true,
		Data:    h.runs.List(),
	})
}

// GetRun returns a run record
// GET /runs/:id
func (h *RunHandler) GetRun(c *fiber.Ctx) error {
	run, err := h.runs.Get(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(Response{
		Success: true,
		Data:    run,
	})
}

// CancelRun cancels a queued run
// POST /runs/:id/cancel
func (h *RunHandler) CancelRun(c *fiber.Ctx) error {
	run, err := h.runs.Cancel(c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(Response{
		Success: true,
		Data: map[string]interface{}{
			"run_id": run.ID,
			"status": run.Status,
		},
	})
}

// Screenshot serves one PNG of a run
// GET /runs/:id/screenshots/:name
func (h *RunHandler) Screenshot(c *fiber.Ctx) error {
	run, err := h.runs.Get(c.Params("id"))
	if err != nil {
		return err
	}

	name := filepath.Base(c.Params("name"))
	for _, shot := range run.Screenshots {
		if shot == name {
			c.Type("png")
			return c.SendFile(filepath.Join(h.artifactsDir(run.ID), name))
		}
	}
	return fiber.NewError(fiber.StatusNotFound, "Screenshot not found")
}

// StreamEvents streams run events via SSE
// GET /runs/:id/events
func (h *RunHandler) StreamEvents(c *fiber.Ctx) error {
	id := c.Params("id")

	// Subscribe before reading the run so no transition is missed.
	events := h.runs.Subscribe(id)
	run, err := h.runs.Get(id)
	if err != nil {
		h.runs.Unsubscribe(id, events)
		return err
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer h.runs.Unsubscribe(id, events)

		if err := writeSSE(w, snapshot(run)); err != nil || run.Status.IsTerminal() {
			return
		}

		for event := range events {
			if err := writeSSE(w, event); err != nil {
				return
			}
			if event.Status.IsTerminal() {
				return
			}
		}
	})

	return nil
}

// HandleWebSocket streams run events over a WebSocket
// GET /ws?run_id=
func (h *RunHandler) HandleWebSocket(c *websocket.Conn) {
	defer c.Close()

	id := c.Query("run_id")
	if id == "" {
		_ = c.WriteJSON(Response{Success: false, Error: "run_id is required"})
		return
	}

	events := h.runs.Subscribe(id)
	defer h.runs.Unsubscribe(id, events)

	run, err := h.runs.Get(id)
	if err != nil {
		_ = c.WriteJSON(Response{Success: false, Error: "run not found"})
		return
	}

	if err := c.WriteJSON(snapshot(run)); err != nil || run.Status.IsTerminal() {
		return
	}

	for event := range events {
		if err := c.WriteJSON(event); err != nil {
			return
		}
		if event.Status.IsTerminal() {
			return
		}
	}
}

func snapshot(run *queue.Run) queue.Event {
	return queue.Event{
		RunID:    run.ID,
		Status:   run.Status,
		Progress: run.Progress,
		Message:  run.Message,
		Time:     run.UpdatedAt,
	}
}

func writeSSE(w *bufio.Writer, event queue.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return w.Flush()
}

func wsBase(baseURL string) string {
	switch {
	case strings.HasPrefix(baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(baseURL, "https://")
	case strings.HasPrefix(baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(baseURL, "http://")
	default:
		return baseURL
	}
}
