package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/shopspring/decimal"
)

type BalanceRepo struct {
	pool *pgxpool.Pool
}

func NewBalanceRepo(pool *pgxpool.Pool) *BalanceRepo {
	return &BalanceRepo{pool: pool}
}

func (r *BalanceRepo) Append(ctx context.Context, b models.BalanceSnapshot) (*models.BalanceSnapshot, error) {
	breakdown, err := encodeBreakdown(b.Breakdown)
	if err != nil {
		return nil, err
	}
	row := r.pool.QueryRow(ctx,
		`INSERT INTO balances (total_usd, breakdown)
		 VALUES ($1::numeric, $2::jsonb)
		 RETURNING id::text, total_usd::text, breakdown, created_at`,
		b.TotalUSD.StringFixed(2), breakdown,
	)
	return scanBalance(row)
}

// Latest returns the newest snapshot, or nil when none exist.
func (r *BalanceRepo) Latest(ctx context.Context) (*models.BalanceSnapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id::text, total_usd::text, breakdown, created_at
		 FROM balances ORDER BY created_at DESC LIMIT 1`,
	)
	b, err := scanBalance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return b, err
}

// encodeBreakdown stores values as JSON numbers.
func encodeBreakdown(m map[string]decimal.Decimal) (string, error) {
	out := make(map[string]json.Number, len(m))
	for k, v := range m {
		out[k] = json.Number(v.String())
	}
	buf, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encode breakdown: %w", err)
	}
	return string(buf), nil
}

func scanBalance(row scannable) (*models.BalanceSnapshot, error) {
	var b models.BalanceSnapshot
	var total string
	var raw []byte
	if err := row.Scan(&b.ID, &total, &raw, &b.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(total)
	if err != nil {
		return nil, fmt.Errorf("parse total_usd %q: %w", total, err)
	}
	b.TotalUSD = d
	b.Breakdown = map[string]decimal.Decimal{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &b.Breakdown); err != nil {
			return nil, fmt.Errorf("decode breakdown: %w", err)
		}
	}
	return &b, nil
}
