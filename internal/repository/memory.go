package repository

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/shopspring/decimal"
)

// MemoryStore keeps everything in process. It backs STORE_DRIVER=memory and
// the tests; contents are lost on exit.
type MemoryStore struct {
	mu       sync.RWMutex
	logs     []models.LogEntry
	trades   []models.TradeRecord
	balances []models.BalanceSnapshot
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (m *MemoryStore) AppendLog(_ context.Context, e models.LogEntry) (*models.LogEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e.ID = uuid.NewString()
	e.CreatedAt = m.stamp(e.CreatedAt)
	m.logs = append(m.logs, e)
	return &e, nil
}

func (m *MemoryStore) RecentLogs(_ context.Context, limit int) ([]models.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := max(0, len(m.logs)-limit)
	return slices.Clone(m.logs[start:]), nil
}

func (m *MemoryStore) LogsAfter(_ context.Context, ts time.Time) ([]models.LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []models.LogEntry{}
	for _, e := range m.logs {
		if e.CreatedAt.After(ts) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStore) LatestLogAt(_ context.Context) (*time.Time, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.logs) == 0 {
		return nil, nil
	}
	ts := m.logs[len(m.logs)-1].CreatedAt
	return &ts, nil
}

// Logs returns a copy of every entry, oldest first.
func (m *MemoryStore) Logs() []models.LogEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.logs)
}

func (m *MemoryStore) CreateTrade(_ context.Context, t models.TradeRecord) (*models.TradeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = uuid.NewString()
	t.CreatedAt = m.stamp(t.CreatedAt)
	if t.Status == "" {
		t.Status = models.TradePending
	}
	t.TradingDay = TradingDay(t.CreatedAt)
	m.trades = append(m.trades, t)
	return &t, nil
}

func (m *MemoryStore) UpdateTrade(_ context.Context, id string, u models.TradeUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.trades {
		t := &m.trades[i]
		if t.ID != id {
			continue
		}
		t.Status = u.Status
		if u.AmountOut != nil {
			t.AmountOut = u.AmountOut
		}
		if u.TxHash != nil {
			t.TxHash = u.TxHash
		}
		if u.JobID != nil {
			t.JobID = u.JobID
		}
		if u.RawResponse != nil {
			t.RawResponse = u.RawResponse
		}
		return nil
	}
	return fmt.Errorf("trade %s not found", id)
}

func (m *MemoryStore) RecentTrades(_ context.Context, limit int) ([]models.TradeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.TradeRecord, 0, min(limit, len(m.trades)))
	for i := len(m.trades) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.trades[i])
	}
	return out, nil
}

func (m *MemoryStore) TradeStats(_ context.Context) (models.TradeStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s models.TradeStats
	for _, t := range m.trades {
		s.TotalTrades++
		switch t.Status {
		case models.TradeCompleted:
			s.Completed++
		case models.TradeFailed:
			s.Failed++
		case models.TradePending:
			s.Pending++
		}
		if s.LastTrade == nil || t.CreatedAt.After(*s.LastTrade) {
			ts := t.CreatedAt
			s.LastTrade = &ts
		}
	}
	return s, nil
}

func (m *MemoryStore) CountTradesSince(_ context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, t := range m.trades {
		if !t.CreatedAt.Before(since) && t.Status != models.TradeFailed {
			n++
		}
	}
	return n, nil
}

// Trades returns a copy of every trade, oldest first.
func (m *MemoryStore) Trades() []models.TradeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.trades)
}

func (m *MemoryStore) AppendBalance(_ context.Context, b models.BalanceSnapshot) (*models.BalanceSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b.ID = uuid.NewString()
	b.CreatedAt = m.stamp(b.CreatedAt)
	b.TotalUSD = b.TotalUSD.Round(2)
	b.Breakdown = maps.Clone(b.Breakdown)
	if b.Breakdown == nil {
		b.Breakdown = map[string]decimal.Decimal{}
	}
	m.balances = append(m.balances, b)
	return &b, nil
}

func (m *MemoryStore) LatestBalance(_ context.Context) (*models.BalanceSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.balances) == 0 {
		return nil, nil
	}
	b := m.balances[len(m.balances)-1]
	return &b, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

// stamp fills in a missing creation time.
func (m *MemoryStore) stamp(ts time.Time) time.Time {
	if ts.IsZero() {
		ts = m.now()
	}
	return ts
}
