package eventlog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/kjannette/trahn-agent/internal/repository"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingStore struct{ calls int }

func (f *failingStore) AppendLog(context.Context, models.LogEntry) (*models.LogEntry, error) {
	f.calls++
	return nil, errors.New("db down")
}

type captureSink struct {
	mu      sync.Mutex
	entries []models.LogEntry
}

func (c *captureSink) Publish(e models.LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func TestRecord_PersistsAndPublishes(t *testing.T) {
	store := repository.NewMemoryStore()
	sink := &captureSink{}
	l := New(store, zerolog.Nop(), sink)

	l.Record(context.Background(), models.LogPrompt, "Checking wallet balance...",
		WithRaw(map[string]string{"prompt": "What is my current wallet balance?"}),
		WithJob("job-1"),
		WithCorrelation("thread-1"),
	)

	logs := store.Logs()
	require.Len(t, logs, 1)
	assert.Equal(t, models.LogPrompt, logs[0].Type)
	assert.JSONEq(t, `{"prompt":"What is my current wallet balance?"}`, string(logs[0].RawData))
	assert.Equal(t, "job-1", *logs[0].JobID)
	assert.Equal(t, "thread-1", *logs[0].CorrelationID)

	require.Len(t, sink.entries, 1)
	assert.Equal(t, logs[0].ID, sink.entries[0].ID)
}

func TestRecord_StoreFailureIsSwallowed(t *testing.T) {
	store := &failingStore{}
	sink := &captureSink{}
	l := New(store, zerolog.Nop(), sink)

	assert.NotPanics(t, func() {
		l.Record(context.Background(), models.LogError, "Cycle error: boom")
	})
	assert.Equal(t, 1, store.calls)
	require.Len(t, sink.entries, 1)
	assert.False(t, sink.entries[0].CreatedAt.IsZero())
}

func TestRecord_CancelledContextStillWrites(t *testing.T) {
	store := repository.NewMemoryStore()
	l := New(store, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	l.Record(ctx, models.LogSystem, "Agent shutting down (SIGTERM)")

	require.Len(t, store.Logs(), 1)
}

func TestOptions_IgnoreEmpty(t *testing.T) {
	store := repository.NewMemoryStore()
	l := New(store, zerolog.Nop())
	l.Record(context.Background(), models.LogSystem, "x", WithJob(""), WithCorrelation(""), WithRawJSON([]byte("{not json")))

	e := store.Logs()[0]
	assert.Nil(t, e.JobID)
	assert.Nil(t, e.CorrelationID)
	assert.Nil(t, e.RawData)
}
