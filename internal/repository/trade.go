package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/trahn-agent/internal/models"
)

const tradeColumns = `id::text, token_in, token_out, amount_in, amount_out, tx_hash,
	status, job_id, raw_response, trading_day, created_at`

type TradeRepo struct {
	pool *pgxpool.Pool
}

func NewTradeRepo(pool *pgxpool.Pool) *TradeRepo {
	return &TradeRepo{pool: pool}
}

func (r *TradeRepo) Create(ctx context.Context, t models.TradeRecord) (*models.TradeRecord, error) {
	ts := t.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	status := t.Status
	if status == "" {
		status = models.TradePending
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO trades
		 (token_in, token_out, amount_in, amount_out, tx_hash, status, job_id, raw_response, trading_day, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 RETURNING `+tradeColumns,
		t.TokenIn, t.TokenOut, t.AmountIn, t.AmountOut, t.TxHash,
		status, t.JobID, nullJSON(t.RawResponse), TradingDay(ts), ts,
	)
	return scanTrade(row)
}

// Update writes the terminal fields of a trade. Nil fields are left untouched.
func (r *TradeRepo) Update(ctx context.Context, id string, u models.TradeUpdate) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE trades SET
			status       = $2,
			amount_out   = COALESCE($3, amount_out),
			tx_hash      = COALESCE($4, tx_hash),
			job_id       = COALESCE($5, job_id),
			raw_response = COALESCE($6::jsonb, raw_response)
		 WHERE id = $1::uuid`,
		id, u.Status, u.AmountOut, u.TxHash, u.JobID, nullJSON(u.RawResponse),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("trade %s not found", id)
	}
	return nil
}

// Recent returns the newest trades first.
func (r *TradeRepo) Recent(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+tradeColumns+` FROM trades ORDER BY created_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows, scanTrade)
}

func (r *TradeRepo) Stats(ctx context.Context) (models.TradeStats, error) {
	var s models.TradeStats
	err := r.pool.QueryRow(ctx,
		`SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE status = 'pending'),
			MAX(created_at)
		 FROM trades`,
	).Scan(&s.TotalTrades, &s.Completed, &s.Failed, &s.Pending, &s.LastTrade)
	return s, err
}

// CountSince counts trades opened at or after since that did not fail.
func (r *TradeRepo) CountSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM trades WHERE created_at >= $1 AND status <> 'failed'`,
		since,
	).Scan(&count)
	return count, err
}

func scanTrade(row scannable) (*models.TradeRecord, error) {
	var t models.TradeRecord
	var raw []byte
	var td time.Time
	err := row.Scan(
		&t.ID, &t.TokenIn, &t.TokenOut, &t.AmountIn, &t.AmountOut, &t.TxHash,
		&t.Status, &t.JobID, &raw, &td, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	t.RawResponse = raw
	t.TradingDay = td.Format("2006-01-02")
	return &t, nil
}
