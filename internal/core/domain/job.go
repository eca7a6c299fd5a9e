package domain

import (
	"io"
	"time"
)

type TaskID string

// FileStatus is the state of a single FileJob.
type FileStatus string

const (
	FileStatusPending    FileStatus = "pending"
	FileStatusProcessing FileStatus = "processing"
	FileStatusCompleted  FileStatus = "completed"
	FileStatusFailed     FileStatus = "failed"
	FileStatusCancelled  FileStatus = "cancelled"
)

// Settled reports whether the job has produced an outcome (completed or failed).
// Cancelled is not settled: a paused-out job can come back to pending.
func (s FileStatus) Settled() bool {
	return s == FileStatusCompleted || s == FileStatusFailed
}

// TaskState is the task-level state of a BatchTask.
type TaskState string

const (
	TaskStateRunning   TaskState = "running"
	TaskStatePaused    TaskState = "paused"
	TaskStateCancelled TaskState = "cancelled"
	TaskStateCompleted TaskState = "completed"
	TaskStateFailed    TaskState = "failed"
)

// Terminal reports whether no control operation can move the task anymore.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskStateCancelled, TaskStateCompleted, TaskStateFailed:
		return true
	}
	return false
}

// FileJob represents the conversion of one input document within a task.
type FileJob struct {
	Index      int        `json:"index"`
	Name       string     `json:"name"`
	SourcePath string     `json:"-"`
	OutputDir  string     `json:"-"` // planned artifact directory
	Status     FileStatus `json:"status"`
	Error      *string    `json:"error,omitempty"`       // set iff Failed
	OutputPath *string    `json:"output_path,omitempty"` // set iff Completed
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ConversionResult describes the artifacts produced for one document.
type ConversionResult struct {
	OutputDir    string `json:"output_dir"`
	MarkdownPath string `json:"markdown_path"`
	Pages        int    `json:"pages"`
	Images       int    `json:"images"`
}

// Upload is a named input document handed to task creation.
type Upload struct {
	Name string
	Open func() (io.ReadCloser, error)
}
