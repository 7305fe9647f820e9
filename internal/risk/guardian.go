package risk

import (
	"context"
	"fmt"
	"time"

	"github.com/kjannette/trahn-agent/internal/repository"
	"github.com/shopspring/decimal"
)

// TradeCounter abstracts the trade-counting dependency so Guardian
// can be tested without a real database.
type TradeCounter interface {
	CountTradesSince(ctx context.Context, since time.Time) (int, error)
}

// Limits holds the risk thresholds from config.
// A zero value for any field means that check is disabled.
type Limits struct {
	MaxDailyTrades     int
	MaxPositionSizeUSD float64
	StopLossPercent    float64
	TakeProfitPercent  float64
}

// BlockedError is returned when a check refuses a trade.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string { return "trade blocked: " + e.Reason }

// BreakerError is returned when a portfolio circuit breaker trips.
type BreakerError struct {
	Kind       string
	PnLPercent float64
	Threshold  float64
}

func (e *BreakerError) Error() string {
	return fmt.Sprintf("%s triggered: portfolio %+.2f%% (threshold: %+.2f%%)", e.Kind, e.PnLPercent, e.Threshold)
}

type Guardian struct {
	limits  Limits
	counter TradeCounter
	now     func() time.Time
}

func NewGuardian(limits Limits, counter TradeCounter) *Guardian {
	return &Guardian{limits: limits, counter: counter, now: time.Now}
}

func (g *Guardian) Limits() Limits { return g.limits }

// PreTradeCheck validates per-trade constraints before execution.
// Returns nil if the trade is allowed.
func (g *Guardian) PreTradeCheck(ctx context.Context, tradeUSDValue decimal.Decimal) error {
	if g.limits.MaxPositionSizeUSD > 0 && tradeUSDValue.GreaterThan(decimal.NewFromFloat(g.limits.MaxPositionSizeUSD)) {
		return &BlockedError{Reason: fmt.Sprintf("position size $%s exceeds max $%.2f",
			tradeUSDValue.StringFixed(2), g.limits.MaxPositionSizeUSD)}
	}

	if g.limits.MaxDailyTrades > 0 && g.counter != nil {
		count, err := g.counter.CountTradesSince(ctx, repository.TradingDayStart(g.now()))
		if err != nil {
			return &BlockedError{Reason: fmt.Sprintf("unable to verify daily trade count: %v", err)}
		}
		if count >= g.limits.MaxDailyTrades {
			return &BlockedError{Reason: fmt.Sprintf("daily limit of %d trades reached (%d executed today)",
				g.limits.MaxDailyTrades, count)}
		}
	}

	return nil
}

// PortfolioCheck evaluates portfolio-level circuit breakers.
// pnlPercent is the P&L as a percentage (e.g. -8.5 means down 8.5%).
func (g *Guardian) PortfolioCheck(pnlPercent float64) error {
	if g.limits.StopLossPercent > 0 && pnlPercent <= -g.limits.StopLossPercent {
		return &BreakerError{Kind: "STOP-LOSS", PnLPercent: pnlPercent, Threshold: -g.limits.StopLossPercent}
	}

	if g.limits.TakeProfitPercent > 0 && pnlPercent >= g.limits.TakeProfitPercent {
		return &BreakerError{Kind: "TAKE-PROFIT", PnLPercent: pnlPercent, Threshold: g.limits.TakeProfitPercent}
	}

	return nil
}

// PnLPercent is the change from baseline to current, in percent.
func PnLPercent(baseline, current decimal.Decimal) float64 {
	if !baseline.IsPositive() {
		return 0
	}
	pct, _ := current.Sub(baseline).Div(baseline).Mul(decimal.NewFromInt(100)).Float64()
	return pct
}
