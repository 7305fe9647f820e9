package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS agent_logs (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    type        TEXT NOT NULL,
    content     TEXT NOT NULL,
    raw_data    JSONB,
    job_id      TEXT,
    thread_id   TEXT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_agent_logs_created_at ON agent_logs(created_at);

CREATE TABLE IF NOT EXISTS trades (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    token_in      TEXT NOT NULL,
    token_out     TEXT NOT NULL,
    amount_in     TEXT NOT NULL,
    amount_out    TEXT,
    tx_hash       TEXT,
    status        TEXT NOT NULL DEFAULT 'pending',
    job_id        TEXT,
    raw_response  JSONB,
    trading_day   DATE NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_trades_created_at ON trades(created_at);

CREATE TABLE IF NOT EXISTS balances (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    total_usd   NUMERIC(20, 2) NOT NULL,
    breakdown   JSONB,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_balances_created_at ON balances(created_at);
`

// Migrate creates the agent tables when they are missing.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
