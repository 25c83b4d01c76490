package model

import "time"

// RunStatus tracks a persisted analysis job.
type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Run is a persisted analysis job.
type Run struct {
	ID        string          `json:"id"`
	Source    string          `json:"source"`
	Status    RunStatus       `json:"status"`
	Result    *AnalysisResult `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status RunStatus
	Limit  int
	Offset int
}
