package engine

import (
	"fmt"
	"strings"
)

func chainTitle(chain string) string {
	if chain == "" {
		return chain
	}
	return strings.ToUpper(chain[:1]) + chain[1:]
}

func scanPrompt(chain string) string {
	return fmt.Sprintf("What tokens are trending on %s right now? Analyze the top movers, their momentum, and any notable signals. "+
		"Give me your top 3 picks with conviction levels (high/medium/low). "+
		"Format each as: TOKEN_SYMBOL - direction (up/down) - conviction (high/medium/low) - brief reason.", chainTitle(chain))
}

func scanLabel(chain string) string {
	return fmt.Sprintf("Scanning trending tokens on %s...", chainTitle(chain))
}

func swapPrompt(amount, tokenIn, tokenOut, chain string) string {
	return fmt.Sprintf("swap %s %s to %s on %s", amount, tokenIn, tokenOut, chain)
}

const balancePrompt = "What is my current wallet balance? Show all tokens and their USD values."

func decisionPrompt(analysis, baseAsset, maxAmount string) string {
	return fmt.Sprintf("Here is the latest market scan:\n\n%s\n\n"+
		"Based on this, recommend at most one token to buy with %s. "+
		"Reply with exactly one line in the form: swap AMOUNT %s to TOKEN_SYMBOL, where AMOUNT is at most %s. "+
		"Never pick a stablecoin or ETH. If nothing is worth buying, reply NO_TRADE.",
		analysis, baseAsset, baseAsset, maxAmount)
}

// head returns at most the first n runes of s.
func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
