package domain

import (
	"math"
	"time"
)

// SnapshotStatusError is reported instead of a TaskState when a snapshot could
// not be produced, e.g. for an unknown task id.
const SnapshotStatusError = "error"

// FileSnapshot is the wire form of a FileJob.
type FileSnapshot struct {
	Index     int        `json:"index"`
	Name      string     `json:"name"`
	Status    FileStatus `json:"status"`
	Error     string     `json:"error,omitempty"`
	OutputDir string     `json:"output_dir,omitempty"`
}

// Progress holds aggregate counters over the files of a task.
// Completed+Failed+Cancelled+Pending+Processing always equals Total.
type Progress struct {
	Completed  int     `json:"completed"`
	Failed     int     `json:"failed"`
	Cancelled  int     `json:"cancelled"`
	Pending    int     `json:"pending"`
	Processing int     `json:"processing"`
	Total      int     `json:"total"`
	Percent    float64 `json:"percent"`
}

// Count adds one file with the given status.
func (p *Progress) Count(status FileStatus) {
	p.Total++
	switch status {
	case FileStatusCompleted:
		p.Completed++
	case FileStatusFailed:
		p.Failed++
	case FileStatusCancelled:
		p.Cancelled++
	case FileStatusPending:
		p.Pending++
	case FileStatusProcessing:
		p.Processing++
	}
	if p.Total > 0 {
		p.Percent = math.Round(float64(p.Completed+p.Failed)*1000/float64(p.Total)) / 10
	}
}

// TaskSnapshot is a point-in-time copy of a task, safe to share.
type TaskSnapshot struct {
	TaskID    TaskID         `json:"task_id"`
	Status    string         `json:"status"`
	Error     string         `json:"error,omitempty"`
	Files     []FileSnapshot `json:"files"`
	Progress  Progress       `json:"progress"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Terminal reports whether no further snapshot will differ in task state.
func (s TaskSnapshot) Terminal() bool {
	return s.Status == SnapshotStatusError || TaskState(s.Status).Terminal()
}

// TaskSummary is the list form of a task.
type TaskSummary struct {
	TaskID    TaskID    `json:"task_id"`
	Status    TaskState `json:"status"`
	Files     int       `json:"files"`
	Progress  Progress  `json:"progress"`
	CreatedAt time.Time `json:"created_at"`
}
