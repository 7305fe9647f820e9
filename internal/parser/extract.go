package parser

import (
	"regexp"
	"strings"
)

var (
	txHashRe = regexp.MustCompile(`0x[a-fA-F0-9]{64}`)

	// "received 1,234.5 FOO", "for 12 tokens of FOO"
	receivedRe = regexp.MustCompile(`(?i)\b(?:received?|got|gets?|out|for)\b[^\d\n]{0,24}?(\d[\d,]*(?:\.\d+)?)\s*(?:tokens?\s+|units?\s+)?(?:of\s+)?\$?[A-Za-z][A-Za-z0-9]*\b`)
	// first "<number> <word>" pair in the text
	quantityRe = regexp.MustCompile(`(?i)(?:^|[^\w.])(\d[\d,]*(?:\.\d+)?)\s+(?:tokens?\s+|units?\s+)?(?:of\s+)?\$?[A-Za-z][A-Za-z0-9]*\b`)
)

// TxHash returns the first 32-byte hex transaction hash in text.
func TxHash(text string) (string, bool) {
	h := txHashRe.FindString(text)
	return h, h != ""
}

// AmountOut makes a best-effort guess at the received quantity of a swap.
func AmountOut(text string) (string, bool) {
	v, _, ok := FirstMatch(text,
		Matcher[string]{Name: "received", Match: submatch(receivedRe)},
		Matcher[string]{Name: "quantity", Match: submatch(quantityRe)},
	)
	return v, ok
}

func submatch(re *regexp.Regexp) func(string) (string, bool) {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		return strings.ReplaceAll(m[1], ",", ""), true
	}
}
