package domain

import "time"

// ConversionRecord is one audited conversion attempt.
type ConversionRecord struct {
	ID         string     `json:"id"`
	TaskID     TaskID     `json:"task_id"`
	FileIndex  int        `json:"file_index"`
	FileName   string     `json:"file_name"`
	Status     FileStatus `json:"status"`
	ErrorKind  string     `json:"error_kind,omitempty"`
	Error      string     `json:"error,omitempty"`
	OutputDir  string     `json:"output_dir,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt time.Time  `json:"finished_at"`
	DurationMs int64      `json:"duration_ms"`
}
