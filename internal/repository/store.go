package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/trahn-agent/internal/models"
)

// Store is the Postgres-backed persistence used by the agent and the API.
type Store struct {
	pool     *pgxpool.Pool
	logs     *LogRepo
	trades   *TradeRepo
	balances *BalanceRepo
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{
		pool:     pool,
		logs:     NewLogRepo(pool),
		trades:   NewTradeRepo(pool),
		balances: NewBalanceRepo(pool),
	}
}

func (s *Store) AppendLog(ctx context.Context, e models.LogEntry) (*models.LogEntry, error) {
	return s.logs.Append(ctx, e)
}

func (s *Store) RecentLogs(ctx context.Context, limit int) ([]models.LogEntry, error) {
	return s.logs.Recent(ctx, limit)
}

func (s *Store) LogsAfter(ctx context.Context, ts time.Time) ([]models.LogEntry, error) {
	return s.logs.After(ctx, ts)
}

func (s *Store) LatestLogAt(ctx context.Context) (*time.Time, error) {
	return s.logs.LatestAt(ctx)
}

func (s *Store) CreateTrade(ctx context.Context, t models.TradeRecord) (*models.TradeRecord, error) {
	return s.trades.Create(ctx, t)
}

func (s *Store) UpdateTrade(ctx context.Context, id string, u models.TradeUpdate) error {
	return s.trades.Update(ctx, id, u)
}

func (s *Store) RecentTrades(ctx context.Context, limit int) ([]models.TradeRecord, error) {
	return s.trades.Recent(ctx, limit)
}

func (s *Store) TradeStats(ctx context.Context) (models.TradeStats, error) {
	return s.trades.Stats(ctx)
}

func (s *Store) CountTradesSince(ctx context.Context, since time.Time) (int, error) {
	return s.trades.CountSince(ctx, since)
}

func (s *Store) AppendBalance(ctx context.Context, b models.BalanceSnapshot) (*models.BalanceSnapshot, error) {
	return s.balances.Append(ctx, b)
}

func (s *Store) LatestBalance(ctx context.Context) (*models.BalanceSnapshot, error) {
	return s.balances.Latest(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
