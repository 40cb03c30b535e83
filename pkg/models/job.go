package models

import "time"

// JobType identifies the handler for a background job.
type JobType string

const (
	JobTypeConvertWexBim     JobType = "convert_wexbim"
	JobTypeExtractProperties JobType = "extract_properties"
)

// JobStatus is the delivery state of an outbox job row.
type JobStatus string

const (
	JobStatusPending   JobStatus = "pending"
	JobStatusInflight  JobStatus = "inflight"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Job is a durable outbox row. Jobs are inserted in the same transaction as
// the domain write that requires them, so readers never observe a pending
// model version without its jobs (or an orphan job without its version).
//
// Delivery is at-least-once: a dispatcher moves pending rows into the
// in-process queue, and a crash re-delivers inflight rows on restart.
type Job struct {
	ID        string     `gorm:"primaryKey;size:36" json:"id"`
	Type      JobType    `gorm:"not null;size:64;index" json:"type"`
	Payload   string     `gorm:"not null" json:"payload"`
	Status    JobStatus  `gorm:"not null;size:20;index:idx_job_due" json:"status"`
	Attempt   int        `gorm:"not null;default:0" json:"attempt"`
	RunAfter  time.Time  `gorm:"not null;index:idx_job_due" json:"run_after"`
	LastError string     `gorm:"size:2048" json:"last_error,omitempty"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	DoneAt    *time.Time `json:"done_at,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}
