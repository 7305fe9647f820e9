package notifications

import (
	"fmt"
	"sync"

	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/rs/zerolog"
)

// forwarded lists the audit entry types operators are told about.
var forwarded = map[models.LogType]string{
	models.LogTrade:         "💱",
	models.LogError:         "⚠️",
	models.LogBalanceUpdate: "💰",
	models.LogSystem:        "ℹ️",
}

// Forwarder relays selected audit entries to a Notifier from a background
// goroutine. When the queue is full new entries are dropped.
type Forwarder struct {
	notify Notifier
	queue  chan string
	log    zerolog.Logger
	wg     sync.WaitGroup
	once   sync.Once
}

func NewForwarder(n Notifier, buffer int, logger zerolog.Logger) *Forwarder {
	if buffer <= 0 {
		buffer = 64
	}
	f := &Forwarder{
		notify: n,
		queue:  make(chan string, buffer),
		log:    logger.With().Str("component", "forwarder").Logger(),
	}
	f.wg.Add(1)
	go f.run()
	return f
}

// Publish implements eventlog.Sink.
func (f *Forwarder) Publish(e models.LogEntry) {
	icon, ok := forwarded[e.Type]
	if !ok {
		return
	}
	select {
	case f.queue <- fmt.Sprintf("%s %s", icon, e.Content):
	default:
		f.log.Warn().Str("type", string(e.Type)).Msg("notification queue full, dropping message")
	}
}

// Close drains the queue and stops the worker. Publish must not be called afterwards.
func (f *Forwarder) Close() {
	f.once.Do(func() { close(f.queue) })
	f.wg.Wait()
}

func (f *Forwarder) run() {
	defer f.wg.Done()
	for msg := range f.queue {
		f.notify.Send(msg)
	}
}
