// Package startup checks the upstream credentials before the agent loop starts.
package startup

import (
	"context"
	"errors"
	"fmt"

	"github.com/kjannette/trahn-agent/internal/eventlog"
	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/kjannette/trahn-agent/internal/promptjob"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FatalStartupError means the process must exit without entering the loop.
type FatalStartupError struct {
	Reason string
	Err    error
}

func (e *FatalStartupError) Error() string {
	if e.Err != nil {
		return e.Reason + ": " + e.Err.Error()
	}
	return e.Reason
}

func (e *FatalStartupError) Unwrap() error { return e.Err }

type Identity interface {
	UserInfo(ctx context.Context) (promptjob.UserInfo, error)
}

// NativeBalancer reads the gas-token balance of an address.
type NativeBalancer interface {
	NativeBalance(ctx context.Context, address string) (decimal.Decimal, error)
}

type Checker struct {
	id      Identity
	events  *eventlog.Log
	chain   string
	balance NativeBalancer
	log     zerolog.Logger
}

type Option func(*Checker)

func WithNativeBalance(b NativeBalancer) Option {
	return func(c *Checker) { c.balance = b }
}

func New(id Identity, events *eventlog.Log, chain string, logger zerolog.Logger, opts ...Option) *Checker {
	c := &Checker{
		id:     id,
		events: events,
		chain:  chain,
		log:    logger.With().Str("component", "startup").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Validate confirms the API key and records the connected wallet. Any
// failure is a *FatalStartupError.
func (c *Checker) Validate(ctx context.Context) (promptjob.Wallet, error) {
	info, err := c.id.UserInfo(ctx)
	switch {
	case errors.Is(err, promptjob.ErrUnauthorized):
		return promptjob.Wallet{}, &FatalStartupError{Reason: "Invalid Bankr API key. Set BANKR_API_KEY env var.", Err: err}
	case err != nil:
		return promptjob.Wallet{}, &FatalStartupError{Reason: "could not reach the agent service", Err: err}
	}

	c.events.Record(ctx, models.LogSystem, "Agent starting up — validating API key...")

	wallet, ok := info.WalletFor(c.chain)
	chain := "unknown"
	if ok && wallet.Chain != "" {
		chain = wallet.Chain
	}
	c.events.Record(ctx, models.LogSystem,
		fmt.Sprintf("Connected: %s on %s", ShortAddress(wallet.Address), chain),
		eventlog.WithRaw(info))
	c.log.Info().Str("wallet", wallet.Address).Str("chain", chain).Msg("agent service connected")

	if c.balance != nil && ok && wallet.Address != "" {
		bal, err := c.balance.NativeBalance(ctx, wallet.Address)
		if err != nil {
			c.log.Warn().Err(err).Msg("native balance unavailable")
		} else {
			c.log.Info().Str("native_balance", bal.StringFixed(6)).Msg("wallet gas balance")
		}
	}
	return wallet, nil
}

// ShortAddress keeps the first six and last four characters.
func ShortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
