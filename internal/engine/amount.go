package engine

import (
	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/shopspring/decimal"
)

// capAmount clamps an upstream-chosen amount to the configured maximum.
// Unparseable amounts are replaced by the maximum.
func capAmount(d models.TradeDecision, maxAmount string) models.TradeDecision {
	limit, err := decimal.NewFromString(maxAmount)
	if err != nil {
		return d
	}
	amt, err := decimal.NewFromString(d.AmountIn)
	if err != nil || !amt.IsPositive() || amt.GreaterThan(limit) {
		d.AmountIn = limit.StringFixed(2)
	}
	return d
}
