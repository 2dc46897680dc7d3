package queue

import (
	"time"

	"github.com/google/uuid"
)

// Default values for run records
const (
	DefaultResultTTL = 24 * time.Hour
	DefaultQueueSize = 32
)

// RunStatus represents the status of a verification run
type RunStatus string

const (
	RunStatusQueued    RunStatus = "queued"
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCanceled  RunStatus = "canceled"
)

// IsTerminal reports whether no further transitions can happen.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusSucceeded || s == RunStatusFailed || s == RunStatusCanceled
}

// RunRequest represents a run creation request
type RunRequest struct {
	ProbeRoutes    bool   `json:"probe_routes"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// ProgressInfo holds step progress (step X of Y)
type ProgressInfo struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	Percent  int    `json:"percent"`
	Scenario string `json:"scenario,omitempty"`
	Step     string `json:"step,omitempty"`
}

// Run is the record of one verification run
type Run struct {
	ID             string        `json:"run_id"`
	Status         RunStatus     `json:"status"`
	Progress       int           `json:"progress"`
	ProgressInfo   *ProgressInfo `json:"progress_info,omitempty"`
	Message        string        `json:"message,omitempty"`
	Request        RunRequest    `json:"request"`
	Screenshots    []string      `json:"screenshots,omitempty"`
	Error          string        `json:"error,omitempty"`
	CreatedAt      int64         `json:"created_at"`
	UpdatedAt      int64         `json:"updated_at"`
	StartedAt      int64         `json:"started_at,omitempty"`
	CompletedAt    int64         `json:"completed_at,omitempty"`
	ExpiresAt      int64         `json:"expires_at,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// NewRun creates a queued run from a request
func NewRun(req RunRequest, ttl time.Duration) *Run {
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	now := time.Now()

	return &Run{
		ID:             generateRunID(),
		Status:         RunStatusQueued,
		Request:        req,
		CreatedAt:      now.Unix(),
		UpdatedAt:      now.Unix(),
		ExpiresAt:      now.Add(ttl).Unix(),
		IdempotencyKey: req.IdempotencyKey,
	}
}

// SetStatus updates the run status
func (r *Run) SetStatus(status RunStatus) {
	now := time.Now().Unix()
	r.Status = status
	r.UpdatedAt = now

	if status == RunStatusRunning && r.StartedAt == 0 {
		r.StartedAt = now
	}
	if status.IsTerminal() {
		r.CompletedAt = now
	}
}

// SetProgress records the step about to run or just finished
func (r *Run) SetProgress(info ProgressInfo, message string) {
	if info.Total > 0 {
		info.Percent = (info.Current * 100) / info.Total
	}
	r.Progress = info.Percent
	r.Message = message
	r.ProgressInfo = &info
	r.UpdatedAt = time.Now().Unix()
}

// SetResult marks the run succeeded with the screenshots it wrote
func (r *Run) SetResult(screenshots []string) {
	r.Screenshots = screenshots
	r.Progress = 100
	r.Message = "Verification finished"
	r.SetStatus(RunStatusSucceeded)
}

// SetError marks the run failed. Screenshots written before the failure are kept.
func (r *Run) SetError(err string, screenshots []string) {
	r.Error = err
	r.Screenshots = screenshots
	r.Message = "Verification failed"
	r.SetStatus(RunStatusFailed)
}

// IsExpired checks if the run record has expired
func (r *Run) IsExpired() bool {
	if r.ExpiresAt == 0 {
		return false
	}
	return time.Now().Unix() > r.ExpiresAt
}

// Clone returns a deep copy
func (r *Run) Clone() *Run {
	c := *r
	if r.ProgressInfo != nil {
		pi := *r.ProgressInfo
		c.ProgressInfo = &pi
	}
	if r.Screenshots != nil {
		c.Screenshots = append([]string(nil), r.Screenshots...)
	}
	return &c
}

// RunCreatedResponse represents the response when a run is created
type RunCreatedResponse struct {
	RunID     string    `json:"run_id"`
	Status    RunStatus `json:"status"`
	StatusURL string    `json:"status_url"`
	Duplicate bool      `json:"duplicate,omitempty"`
	Events    struct {
		SSEURL string `json:"sse_url"`
		WSURL  string `json:"ws_url"`
	} `json:"events"`
}

func generateRunID() string {
	return "run_" + uuid.New().String()[:8]
}
