package parser

import (
	"iter"
	"regexp"
	"strings"

	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/shopspring/decimal"
)

var minTradeAmount = decimal.RequireFromString("0.5")

// TradeAmount converts a percentage cap into the fixed amount of base asset
// to spend: floor to cents, never below 0.5, two decimals.
func TradeAmount(maxPct float64) string {
	amt := decimal.NewFromFloat(maxPct).Mul(decimal.NewFromInt(100)).Floor().Div(decimal.NewFromInt(100))
	if amt.LessThan(minTradeAmount) {
		amt = minTradeAmount
	}
	return amt.StringFixed(2)
}

// Choose returns the first high conviction candidate, or the first
// candidate when none is high.
func Choose(candidates []models.TrendPick) (models.TrendPick, bool) {
	if len(candidates) == 0 {
		return models.TrendPick{}, false
	}
	for _, c := range candidates {
		if c.Conviction == models.ConvictionHigh {
			return c, true
		}
	}
	return candidates[0], true
}

// DeriveDecision chooses among the buyable picks and sizes the trade.
// ok is false when nothing qualifies.
func DeriveDecision(picks iter.Seq[models.TrendPick], skip SkipSet, maxPct float64, baseAsset string) (models.TradeDecision, bool) {
	p, ok := Choose(Candidates(picks, skip))
	if !ok {
		return models.TradeDecision{}, false
	}
	return models.TradeDecision{
		TokenIn:  strings.ToUpper(baseAsset),
		TokenOut: p.Token,
		AmountIn: TradeAmount(maxPct),
	}, true
}

const noTradeMarker = "NO_TRADE"

const (
	MatchExplicitSwap = "explicit-swap"
	MatchBaseAmount   = "base-amount"
	MatchLoose        = "loose"
)

// Freeform extracts a trade from an upstream-written recommendation.
type Freeform struct {
	base     string
	matchers []Matcher[models.TradeDecision]
}

func NewFreeform(baseAsset string) *Freeform {
	base := strings.ToUpper(baseAsset)
	q := regexp.QuoteMeta(base)

	explicit := regexp.MustCompile(`(?i)\bswap\s+(\d+(?:\.\d+)?)\s+\$?([A-Za-z][A-Za-z0-9]{1,9})\s+(?:to|for|into)\s+\$?([A-Za-z][A-Za-z0-9]{1,9})\b`)
	baseAmt := regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s+` + q + `\s+(?:to|for|into)\s+\$?([A-Za-z][A-Za-z0-9]{1,9})\b`)
	looseAmt := regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)\s*` + q + `\b`)
	looseTok := regexp.MustCompile(`(?i:\b(?:buy|swap)\b)[^\n]*?(?i:\b(?:to|for|into)\b)\s+\$?([A-Z][A-Z0-9]{1,9})\b`)

	f := &Freeform{base: base}
	f.matchers = []Matcher[models.TradeDecision]{
		{Name: MatchExplicitSwap, Match: func(text string) (models.TradeDecision, bool) {
			m := explicit.FindStringSubmatch(text)
			if m == nil {
				return models.TradeDecision{}, false
			}
			return models.TradeDecision{
				TokenIn:  strings.ToUpper(m[2]),
				TokenOut: strings.ToUpper(m[3]),
				AmountIn: m[1],
			}, true
		}},
		{Name: MatchBaseAmount, Match: func(text string) (models.TradeDecision, bool) {
			m := baseAmt.FindStringSubmatch(text)
			if m == nil {
				return models.TradeDecision{}, false
			}
			return models.TradeDecision{TokenIn: base, TokenOut: strings.ToUpper(m[2]), AmountIn: m[1]}, true
		}},
		{Name: MatchLoose, Match: func(text string) (models.TradeDecision, bool) {
			amt := looseAmt.FindStringSubmatch(text)
			tok := looseTok.FindStringSubmatch(text)
			if amt == nil || tok == nil || strings.EqualFold(tok[1], base) {
				return models.TradeDecision{}, false
			}
			return models.TradeDecision{TokenIn: base, TokenOut: tok[1], AmountIn: amt[1]}, true
		}},
	}
	return f
}

// Decide returns the decision and the name of the matcher that produced it.
// Any mention of NO_TRADE wins over every pattern.
func (f *Freeform) Decide(text string) (models.TradeDecision, string, bool) {
	if strings.Contains(strings.ToUpper(text), noTradeMarker) {
		return models.TradeDecision{}, "", false
	}
	return FirstMatch(text, f.matchers...)
}

// FreeformDecision is a one-shot form of Freeform.Decide.
func FreeformDecision(text, baseAsset string) (models.TradeDecision, bool) {
	d, _, ok := NewFreeform(baseAsset).Decide(text)
	return d, ok
}
