// Package ledger tracks each trade from intent to outcome. An Entry is
// opened as pending before the swap is requested and settles exactly once.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/rs/zerolog"
)

var ErrAlreadyFinalized = errors.New("ledger: trade already finalized")

type Store interface {
	CreateTrade(ctx context.Context, t models.TradeRecord) (*models.TradeRecord, error)
	UpdateTrade(ctx context.Context, id string, u models.TradeUpdate) error
}

type Ledger struct {
	store Store
	log   zerolog.Logger
}

func New(store Store, logger zerolog.Logger) *Ledger {
	return &Ledger{store: store, log: logger.With().Str("component", "ledger").Logger()}
}

// Entry is one open trade.
type Entry struct {
	ledger    *Ledger
	mu        sync.Mutex
	record    models.TradeRecord
	persisted bool
}

// Completion is what a successful swap reports back.
type Completion struct {
	JobID     string
	TxHash    string
	AmountOut string
	Raw       json.RawMessage
}

// Open records a pending trade. A store failure is logged and the entry
// keeps working in memory; its settlement is then not persisted either.
func (l *Ledger) Open(ctx context.Context, d models.TradeDecision) *Entry {
	e := &Entry{
		ledger: l,
		record: models.TradeRecord{
			TokenIn:   d.TokenIn,
			TokenOut:  d.TokenOut,
			AmountIn:  d.AmountIn,
			Status:    models.TradePending,
			CreatedAt: time.Now(),
		},
	}
	stored, err := l.store.CreateTrade(ctx, e.record)
	if err != nil {
		l.log.Error().Err(err).Str("token_out", d.TokenOut).Msg("failed to insert trade")
		return e
	}
	e.record = *stored
	e.persisted = true
	return e
}

func (e *Entry) Complete(ctx context.Context, c Completion) error {
	return e.settle(ctx, models.TradeUpdate{
		Status:      models.TradeCompleted,
		AmountOut:   optional(c.AmountOut),
		TxHash:      optional(c.TxHash),
		JobID:       optional(c.JobID),
		RawResponse: c.Raw,
	})
}

func (e *Entry) Fail(ctx context.Context, cause error) error {
	msg := "unknown"
	if cause != nil {
		msg = cause.Error()
	}
	raw, _ := json.Marshal(map[string]string{"error": msg})
	return e.settle(ctx, models.TradeUpdate{Status: models.TradeFailed, RawResponse: raw})
}

func (e *Entry) settle(ctx context.Context, u models.TradeUpdate) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.record.Status.Terminal() {
		return ErrAlreadyFinalized
	}
	e.record.Status = u.Status
	if u.AmountOut != nil {
		e.record.AmountOut = u.AmountOut
	}
	if u.TxHash != nil {
		e.record.TxHash = u.TxHash
	}
	if u.JobID != nil {
		e.record.JobID = u.JobID
	}
	e.record.RawResponse = u.RawResponse

	if !e.persisted {
		return nil
	}
	if err := e.ledger.store.UpdateTrade(context.WithoutCancel(ctx), e.record.ID, u); err != nil {
		e.ledger.log.Error().Err(err).Str("trade_id", e.record.ID).Str("status", string(u.Status)).Msg("failed to update trade")
	}
	return nil
}

// Record returns a snapshot of the trade.
func (e *Entry) Record() models.TradeRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record
}

// Persisted reports whether the pending row reached the store.
func (e *Entry) Persisted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.persisted
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
