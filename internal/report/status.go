package report

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/kjannette/trahn-agent/internal/notifications"
	"github.com/kjannette/trahn-agent/internal/scheduler"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

type Source interface {
	TradeStats(ctx context.Context) (models.TradeStats, error)
	LatestBalance(ctx context.Context) (*models.BalanceSnapshot, error)
}

// Agent is the read side of the cycle scheduler.
type Agent interface {
	State() scheduler.State
	Cycles() int
	LastCycleAt() *time.Time
}

// Reporter sends a periodic status line to the operator channel.
type Reporter struct {
	src    Source
	agent  Agent
	notify notifications.Notifier
	cron   *cron.Cron
	log    zerolog.Logger
}

func New(src Source, agent Agent, notify notifications.Notifier, logger zerolog.Logger) *Reporter {
	return &Reporter{
		src:    src,
		agent:  agent,
		notify: notify,
		cron:   cron.New(),
		log:    logger.With().Str("component", "report").Logger(),
	}
}

// Start registers the report on a cron schedule ("@every 1h", "0 * * * *")
// and starts the cron runner.
func (r *Reporter) Start(schedule string) error {
	if _, err := r.cron.AddFunc(schedule, r.run); err != nil {
		return fmt.Errorf("status report schedule %q: %w", schedule, err)
	}
	r.cron.Start()
	r.log.Info().Str("schedule", schedule).Msg("status reporter started")
	return nil
}

// Stop waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reporter) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	msg, err := r.Compose(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("status report failed")
		return
	}
	r.notify.Send(msg)
}

// Compose builds the status line without sending it.
func (r *Reporter) Compose(ctx context.Context) (string, error) {
	stats, err := r.src.TradeStats(ctx)
	if err != nil {
		return "", fmt.Errorf("trade stats: %w", err)
	}
	bal, err := r.src.LatestBalance(ctx)
	if err != nil {
		return "", fmt.Errorf("latest balance: %w", err)
	}

	parts := []string{
		fmt.Sprintf("Status: %s", r.agent.State()),
		fmt.Sprintf("Cycles: %d", r.agent.Cycles()),
		fmt.Sprintf("Trades: %d (%d completed, %d failed, %d pending)",
			stats.TotalTrades, stats.Completed, stats.Failed, stats.Pending),
		fmt.Sprintf("Win rate: %.0f%%", math.Round(stats.WinRate())),
	}
	if bal != nil {
		parts = append(parts, "Balance: $"+bal.TotalUSD.StringFixed(2))
	}
	if last := r.agent.LastCycleAt(); last != nil {
		parts = append(parts, "Last cycle: "+last.UTC().Format(time.RFC3339))
	}
	return strings.Join(parts, " | "), nil
}
