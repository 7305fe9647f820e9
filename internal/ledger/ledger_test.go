package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/kjannette/trahn-agent/internal/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var decision = models.TradeDecision{TokenIn: "USDC", TokenOut: "FOO", AmountIn: "15.00"}

type brokenStore struct {
	updates int
}

func (b *brokenStore) CreateTrade(context.Context, models.TradeRecord) (*models.TradeRecord, error) {
	return nil, errors.New("insert failed")
}

func (b *brokenStore) UpdateTrade(context.Context, string, models.TradeUpdate) error {
	b.updates++
	return nil
}

func TestOpenThenComplete(t *testing.T) {
	store := repository.NewMemoryStore()
	l := New(store, zerolog.Nop())
	ctx := context.Background()

	e := l.Open(ctx, decision)
	require.True(t, e.Persisted())
	require.Len(t, store.Trades(), 1)
	assert.Equal(t, models.TradePending, store.Trades()[0].Status)

	require.NoError(t, e.Complete(ctx, Completion{JobID: "job-2", TxHash: "0xabc", AmountOut: "42", Raw: []byte(`{"ok":true}`)}))

	got := store.Trades()[0]
	assert.Equal(t, models.TradeCompleted, got.Status)
	assert.Equal(t, "0xabc", *got.TxHash)
	assert.Equal(t, "42", *got.AmountOut)
	assert.Equal(t, "job-2", *got.JobID)
	assert.Equal(t, models.TradeCompleted, e.Record().Status)
}

func TestOpenThenFail(t *testing.T) {
	store := repository.NewMemoryStore()
	l := New(store, zerolog.Nop())
	ctx := context.Background()

	e := l.Open(ctx, decision)
	require.NoError(t, e.Fail(ctx, errors.New("Job failed: slippage")))

	got := store.Trades()[0]
	assert.Equal(t, models.TradeFailed, got.Status)
	assert.JSONEq(t, `{"error":"Job failed: slippage"}`, string(got.RawResponse))
	assert.Nil(t, got.TxHash)
}

func TestExactlyOneTerminalUpdate(t *testing.T) {
	store := repository.NewMemoryStore()
	l := New(store, zerolog.Nop())
	ctx := context.Background()

	e := l.Open(ctx, decision)
	require.NoError(t, e.Fail(ctx, errors.New("boom")))
	assert.ErrorIs(t, e.Complete(ctx, Completion{TxHash: "0xabc"}), ErrAlreadyFinalized)
	assert.ErrorIs(t, e.Fail(ctx, errors.New("again")), ErrAlreadyFinalized)
	assert.Equal(t, models.TradeFailed, store.Trades()[0].Status)
}

func TestInsertFailureSkipsUpdate(t *testing.T) {
	store := &brokenStore{}
	l := New(store, zerolog.Nop())
	ctx := context.Background()

	e := l.Open(ctx, decision)
	assert.False(t, e.Persisted())
	require.NoError(t, e.Complete(ctx, Completion{TxHash: "0xabc"}))
	assert.Equal(t, 0, store.updates)
	assert.Equal(t, models.TradeCompleted, e.Record().Status)
}
