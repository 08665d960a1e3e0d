package models

import (
	"encoding/json"
	"time"
)

// JobType names an asynchronous engine workload.
type JobType string

const (
	JobRobustness JobType = "robustness"
	JobMonteCarlo JobType = "montecarlo"
)

// JobStatus is the lifecycle state of a job.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether no further transitions will happen.
func (s JobStatus) Terminal() bool { return s == JobDone || s == JobFailed }

// JobRecord is the externally visible state of a job.
type JobRecord struct {
	ID        string          `json:"id"`
	Type      JobType         `json:"type"`
	Status    JobStatus       `json:"status"`
	Progress  float64         `json:"progress"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// CreateJobRequest submits a job. Payload is a RobustnessRequest or a
// MonteCarloRequest depending on Type.
type CreateJobRequest struct {
	ID      string          `json:"id,omitempty" validate:"omitempty,uuid"`
	Type    JobType         `json:"type" validate:"required,oneof=robustness montecarlo"`
	Payload json.RawMessage `json:"payload" validate:"required"`
}

// JobResultEvent is published once a job reaches a terminal state.
type JobResultEvent struct {
	ID         string          `json:"id"`
	Type       JobType         `json:"type"`
	Status     JobStatus       `json:"status"`
	Result     json.RawMessage `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	FinishedAt time.Time       `json:"finishedAt"`
}
