package parser

import (
	"iter"
	"regexp"
	"strings"

	"github.com/kjannette/trahn-agent/internal/models"
)

// SYMBOL - direction - conviction, with hyphen, en dash or em dash separators.
var trendPickRe = regexp.MustCompile(
	`\b([A-Z][A-Z0-9]{1,9})\b\s*[-–—]\s*(?i:(up|down))\s*[-–—]\s*(?i:(high|medium|low))\b`,
)

// TrendPicks lazily yields every pick in text, in order of appearance.
// The sequence can be ranged over more than once.
func TrendPicks(text string) iter.Seq[models.TrendPick] {
	return func(yield func(models.TrendPick) bool) {
		rest := text
		for {
			loc := trendPickRe.FindStringSubmatchIndex(rest)
			if loc == nil {
				return
			}
			pick := models.TrendPick{
				Token:      strings.ToUpper(rest[loc[2]:loc[3]]),
				Direction:  models.Direction(strings.ToLower(rest[loc[4]:loc[5]])),
				Conviction: models.Conviction(strings.ToLower(rest[loc[6]:loc[7]])),
			}
			if !yield(pick) {
				return
			}
			rest = rest[loc[1]:]
		}
	}
}

// SkipSet holds upper-cased symbols that are never bought.
type SkipSet map[string]struct{}

func NewSkipSet(tokens ...string) SkipSet {
	s := make(SkipSet, len(tokens))
	for _, t := range tokens {
		t = strings.ToUpper(strings.TrimSpace(t))
		if t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}

func (s SkipSet) Contains(token string) bool {
	_, ok := s[strings.ToUpper(token)]
	return ok
}

// Candidates filters picks down to buyable ones: trending up, high or
// medium conviction, and not in skip. Order is preserved.
func Candidates(picks iter.Seq[models.TrendPick], skip SkipSet) []models.TrendPick {
	var out []models.TrendPick
	for p := range picks {
		if buyable(p, skip) {
			out = append(out, p)
		}
	}
	return out
}

func buyable(p models.TrendPick, skip SkipSet) bool {
	if p.Direction != models.DirectionUp {
		return false
	}
	if p.Conviction != models.ConvictionHigh && p.Conviction != models.ConvictionMedium {
		return false
	}
	return !skip.Contains(p.Token)
}
