// Package jobs tracks asynchronous analysis runs: submission, progress,
// result and cancellation.
package jobs

import (
	"context"
	"time"

	"github.com/jackzampolin/proposer/internal/analysis"
)

// Status represents the current state of a run.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// RunFunc performs one run. It must honor ctx and report progress through
// onProgress.
type RunFunc func(ctx context.Context, onProgress func(analysis.ProgressEvent)) (*analysis.Result, error)

// Record is a snapshot of one run.
type Record struct {
	ID          string                  `json:"id"`
	JobType     string                  `json:"job_type"`
	Status      Status                  `json:"status"`
	CreatedAt   time.Time               `json:"created_at"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
	Error       string                  `json:"error,omitempty"`
	Progress    *analysis.ProgressEvent `json:"progress,omitempty"`
	Result      *analysis.Result        `json:"result,omitempty"`
	Metadata    map[string]any          `json:"metadata,omitempty"`
}

// ListFilter specifies criteria for listing runs.
type ListFilter struct {
	Status  Status // Filter by status (empty = all)
	JobType string // Filter by job type (empty = all)
	Limit   int    // Max results (0 = default 100, negative = all)
}
