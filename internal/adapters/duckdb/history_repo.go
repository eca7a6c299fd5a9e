package duckdb

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/manthysbr/ocrflow/internal/core/domain"
)

// SaveConversion upserts one audited conversion attempt.
func (r *Repository) SaveConversion(ctx context.Context, rec domain.ConversionRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversions (id, task_id, file_index, file_name, status, error_kind,
		                         error, output_dir, started_at, finished_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			status      = excluded.status,
			error_kind  = excluded.error_kind,
			error       = excluded.error,
			output_dir  = excluded.output_dir,
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms`,
		rec.ID,
		string(rec.TaskID),
		rec.FileIndex,
		rec.FileName,
		string(rec.Status),
		rec.ErrorKind,
		rec.Error,
		rec.OutputDir,
		rec.StartedAt,
		rec.FinishedAt,
		rec.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("save conversion: %w", err)
	}
	return nil
}

// ListConversions returns the most recent conversions (newest first).
func (r *Repository) ListConversions(ctx context.Context, limit int) ([]domain.ConversionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, file_index, file_name, status, error_kind, error,
		       output_dir, started_at, finished_at, duration_ms
		FROM conversions
		ORDER BY finished_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	return scanConversions(rows)
}

// ListTaskConversions returns the conversions of one task in file order.
func (r *Repository) ListTaskConversions(ctx context.Context, taskID domain.TaskID) ([]domain.ConversionRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, task_id, file_index, file_name, status, error_kind, error,
		       output_dir, started_at, finished_at, duration_ms
		FROM conversions
		WHERE task_id = ?
		ORDER BY file_index ASC, finished_at ASC`, string(taskID))
	if err != nil {
		return nil, fmt.Errorf("list task conversions: %w", err)
	}
	return scanConversions(rows)
}

func scanConversions(rows *sql.Rows) ([]domain.ConversionRecord, error) {
	defer rows.Close()

	out := []domain.ConversionRecord{}
	for rows.Next() {
		var rec domain.ConversionRecord
		var taskID, status string
		err := rows.Scan(
			&rec.ID, &taskID, &rec.FileIndex, &rec.FileName, &status,
			&rec.ErrorKind, &rec.Error, &rec.OutputDir,
			&rec.StartedAt, &rec.FinishedAt, &rec.DurationMs,
		)
		if err != nil {
			return nil, err
		}
		rec.TaskID = domain.TaskID(taskID)
		rec.Status = domain.FileStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}
