package parser

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// "USD Coin - 97.99 USDC $97.99"
	balanceLineRe = regexp.MustCompile(`(?m)^(.+?)\s*[-–—]\s*[\d,.]+\s+\w+\s+\$([\d,.]+)`)
	// "USD Coin - 97.99 $97.99"
	balanceLineFallbackRe = regexp.MustCompile(`(?m)^(.+?)\s*[-–—]\s*[\d,.]+\s+\$([\d,.]+)`)
)

// Balance is a parsed wallet valuation.
type Balance struct {
	TotalUSD  decimal.Decimal
	Breakdown map[string]decimal.Decimal
}

// ParseBalance sums the USD value of every recognised holding line. The
// fallback layout is only consulted when the primary one finds nothing.
// Lines with zero or unparseable values are ignored.
func ParseBalance(text string) Balance {
	b := sumLines(balanceLineRe, text)
	if len(b.Breakdown) == 0 {
		b = sumLines(balanceLineFallbackRe, text)
	}
	return b
}

func sumLines(re *regexp.Regexp, text string) Balance {
	b := Balance{TotalUSD: decimal.Zero, Breakdown: map[string]decimal.Decimal{}}
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		name := strings.TrimSpace(strings.TrimLeft(m[1], "-*•> \t"))
		if name == "" {
			continue
		}
		usd, err := decimal.NewFromString(strings.TrimRight(strings.ReplaceAll(m[2], ",", ""), "."))
		if err != nil || !usd.IsPositive() {
			continue
		}
		b.Breakdown[name] = b.Breakdown[name].Add(usd)
		b.TotalUSD = b.TotalUSD.Add(usd)
	}
	return b
}
