// Package eventlog records the agent's audit trail. Writes are best-effort:
// a failing store never interrupts the caller.
package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/rs/zerolog"
)

const writeTimeout = 10 * time.Second

// Appender persists log entries.
type Appender interface {
	AppendLog(ctx context.Context, e models.LogEntry) (*models.LogEntry, error)
}

// Sink receives every recorded entry after the store write.
type Sink interface {
	Publish(e models.LogEntry)
}

type Log struct {
	store Appender
	sinks []Sink
	log   zerolog.Logger
	now   func() time.Time
}

func New(store Appender, logger zerolog.Logger, sinks ...Sink) *Log {
	return &Log{
		store: store,
		sinks: sinks,
		log:   logger.With().Str("component", "eventlog").Logger(),
		now:   time.Now,
	}
}

// AddSink attaches another subscriber. Not safe to call concurrently with Record.
func (l *Log) AddSink(s Sink) {
	l.sinks = append(l.sinks, s)
}

type Option func(*models.LogEntry)

// WithRaw attaches a JSON-encodable payload.
func WithRaw(v any) Option {
	return func(e *models.LogEntry) {
		buf, err := json.Marshal(v)
		if err != nil {
			buf, _ = json.Marshal(map[string]string{"unencodable": err.Error()})
		}
		e.RawData = buf
	}
}

// WithRawJSON attaches an already-encoded payload.
func WithRawJSON(raw json.RawMessage) Option {
	return func(e *models.LogEntry) {
		if json.Valid(raw) {
			e.RawData = raw
		}
	}
}

func WithJob(id string) Option {
	return func(e *models.LogEntry) {
		if id != "" {
			e.JobID = &id
		}
	}
}

func WithCorrelation(id string) Option {
	return func(e *models.LogEntry) {
		if id != "" {
			e.CorrelationID = &id
		}
	}
}

// Record writes one entry. Cancellation of ctx does not abort the write, so
// shutdown messages still land.
func (l *Log) Record(ctx context.Context, typ models.LogType, content string, opts ...Option) {
	e := models.LogEntry{Type: typ, Content: content}
	for _, o := range opts {
		o(&e)
	}

	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	stored, err := l.store.AppendLog(wctx, e)
	if err != nil {
		l.log.Error().Err(err).Str("type", string(typ)).Msg("failed to persist log entry")
		e.CreatedAt = l.now()
	} else if stored != nil {
		e = *stored
	}

	l.log.Debug().Str("type", string(typ)).Msg(content)
	for _, s := range l.sinks {
		s.Publish(e)
	}
}
