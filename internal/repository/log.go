package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/trahn-agent/internal/models"
)

const logColumns = `id::text, type, content, raw_data, job_id, thread_id, created_at`

type LogRepo struct {
	pool *pgxpool.Pool
}

func NewLogRepo(pool *pgxpool.Pool) *LogRepo {
	return &LogRepo{pool: pool}
}

func (r *LogRepo) Append(ctx context.Context, e models.LogEntry) (*models.LogEntry, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO agent_logs (type, content, raw_data, job_id, thread_id)
		 VALUES ($1,$2,$3,$4,$5)
		 RETURNING `+logColumns,
		e.Type, e.Content, nullJSON(e.RawData), e.JobID, e.CorrelationID,
	)
	return scanLog(row)
}

// Recent returns the newest limit entries in chronological order.
func (r *LogRepo) Recent(ctx context.Context, limit int) ([]models.LogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT * FROM (
			SELECT `+logColumns+` FROM agent_logs ORDER BY created_at DESC LIMIT $1
		 ) recent ORDER BY created_at ASC`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, scanLog)
}

// After returns every entry created strictly after ts, oldest first.
func (r *LogRepo) After(ctx context.Context, ts time.Time) ([]models.LogEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+logColumns+` FROM agent_logs WHERE created_at > $1 ORDER BY created_at ASC`,
		ts,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, scanLog)
}

// LatestAt returns the timestamp of the newest entry, or nil when empty.
func (r *LogRepo) LatestAt(ctx context.Context) (*time.Time, error) {
	var ts *time.Time
	err := r.pool.QueryRow(ctx, `SELECT MAX(created_at) FROM agent_logs`).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return ts, err
}

func scanLog(row scannable) (*models.LogEntry, error) {
	var e models.LogEntry
	var raw []byte
	if err := row.Scan(&e.ID, &e.Type, &e.Content, &raw, &e.JobID, &e.CorrelationID, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.RawData = raw
	return &e, nil
}

// nullJSON maps an empty payload to SQL NULL.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
