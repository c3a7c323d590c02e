package models

import "time"

// RunStatus represents the lifecycle state of one workflow run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusWaiting   RunStatus = "waiting"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// IsTerminal reports whether the run can no longer advance.
func (s RunStatus) IsTerminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// WorkflowRun is one execution of a workflow for one subscriber.
//
// The run carries its own copy of the graph definition, captured when the
// trigger matched. Replacing a workflow's steps never retrofits in-flight
// runs; they finish on the shape they started with.
type WorkflowRun struct {
	ID            string `json:"id"`
	WorkflowID    string `json:"workflow_id"`
	PublicationID string `json:"publication_id"`
	SubscriberID  string `json:"subscriber_id"`

	CurrentNodeID string    `json:"current_node_id"`
	Status        RunStatus `json:"status"`

	// ResumeAt is set while Status is waiting; the scheduler picks the run
	// back up at or after this time.
	ResumeAt *time.Time `json:"resume_at,omitempty"`

	// StepCount is the number of committed advancements. The engine uses it
	// as an optimistic-concurrency check so a crash-recovered worker skips
	// replayed steps instead of executing a node twice.
	StepCount int `json:"step_count"`

	// Context is the event payload captured at trigger time, used for
	// personalization and condition evaluation.
	Context map[string]any `json:"context,omitempty"`

	// Definition is the graph snapshot this run executes against.
	Definition *Definition `json:"definition,omitempty"`

	// ClaimedBy and ClaimExpiresAt implement the per-run lease. A run is
	// only advanced by the worker holding an unexpired claim.
	ClaimedBy      string     `json:"claimed_by,omitempty"`
	ClaimExpiresAt *time.Time `json:"claim_expires_at,omitempty"`

	LastError string `json:"last_error,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// Claimed reports whether the run holds an unexpired claim at now.
func (r *WorkflowRun) Claimed(now time.Time) bool {
	return r.ClaimedBy != "" && r.ClaimExpiresAt != nil && r.ClaimExpiresAt.After(now)
}

// Due reports whether a waiting run is ready to resume at now.
func (r *WorkflowRun) Due(now time.Time) bool {
	if r.Status != RunStatusWaiting {
		return r.Status == RunStatusRunning
	}

	return r.ResumeAt != nil && !r.ResumeAt.After(now)
}

// RunStats is the aggregate signal surfaced to publishers when many runs of
// the same workflow fail, instead of one alert per run.
type RunStats struct {
	WorkflowID string `json:"workflow_id"`
	Total      int64  `json:"total"`
	Running    int64  `json:"running"`
	Waiting    int64  `json:"waiting"`
	Completed  int64  `json:"completed"`
	Failed     int64  `json:"failed"`
}
