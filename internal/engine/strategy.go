package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/kjannette/trahn-agent/internal/eventlog"
	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/kjannette/trahn-agent/internal/parser"
)

const (
	StrategyLocal    = "local"
	StrategyUpstream = "upstream"
)

// DecisionStrategy turns a scan analysis into at most one trade.
type DecisionStrategy interface {
	Name() string
	Decide(ctx context.Context, cc *CycleContext, analysis string) (models.TradeDecision, bool, error)
}

// NewStrategy builds the named strategy on top of e. An empty name selects
// the local heuristic.
func NewStrategy(name string, e *Engine) (DecisionStrategy, error) {
	switch strings.ToLower(name) {
	case "", StrategyLocal:
		return &LocalHeuristic{events: e.events, skip: e.cfg.Skip, maxPct: e.cfg.MaxTradePct, base: e.cfg.BaseAsset}, nil
	case StrategyUpstream:
		return &UpstreamDelegated{engine: e, freeform: parser.NewFreeform(e.cfg.BaseAsset)}, nil
	default:
		return nil, fmt.Errorf("unknown decision strategy %q", name)
	}
}

// LocalHeuristic buys an uptrend pick, preferring the first high conviction
// one and otherwise taking the first medium one.
type LocalHeuristic struct {
	events *eventlog.Log
	skip   parser.SkipSet
	maxPct float64
	base   string
}

func (h *LocalHeuristic) Name() string { return StrategyLocal }

func (h *LocalHeuristic) Decide(ctx context.Context, cc *CycleContext, analysis string) (models.TradeDecision, bool, error) {
	picks := parser.TrendPicks(analysis)
	all := slices.Collect(picks)
	candidates := parser.Candidates(picks, h.skip)

	d, ok := parser.DeriveDecision(picks, h.skip, h.maxPct, h.base)
	raw := eventlog.WithRaw(map[string]any{"picks": all, "candidates": candidates})
	if !ok {
		h.events.Record(ctx, models.LogAnalysis, "No high/medium conviction 'up' picks found, skipping trade",
			raw, eventlog.WithCorrelation(cc.CorrelationID))
		return models.TradeDecision{}, false, nil
	}

	top, _ := parser.Choose(candidates)
	h.events.Record(ctx, models.LogAnalysis,
		fmt.Sprintf("Picked %s (%s conviction, trending %s). Trading %s %s.", top.Token, top.Conviction, top.Direction, d.AmountIn, d.TokenIn),
		raw, eventlog.WithCorrelation(cc.CorrelationID))
	return d, true, nil
}

// UpstreamDelegated asks the upstream agent for the trade and parses its
// freeform reply.
type UpstreamDelegated struct {
	engine   *Engine
	freeform *parser.Freeform
}

func (u *UpstreamDelegated) Name() string { return StrategyUpstream }

func (u *UpstreamDelegated) Decide(ctx context.Context, cc *CycleContext, analysis string) (models.TradeDecision, bool, error) {
	e := u.engine
	maxAmount := parser.TradeAmount(e.cfg.MaxTradePct)

	ex, err := e.promptAndPoll(ctx, cc, decisionPrompt(analysis, e.cfg.BaseAsset, maxAmount), "Asking for a trade decision...")
	if err != nil {
		return models.TradeDecision{}, false, err
	}

	d, matched, ok := u.freeform.Decide(ex.Response)
	if !ok {
		e.events.Record(ctx, models.LogAnalysis, "Upstream recommended no trade, skipping",
			eventlog.WithJob(ex.JobID), eventlog.WithCorrelation(cc.CorrelationID))
		return models.TradeDecision{}, false, nil
	}
	if e.cfg.Skip.Contains(d.TokenOut) {
		e.events.Record(ctx, models.LogAnalysis, fmt.Sprintf("Upstream picked %s which is on the skip list, skipping trade", d.TokenOut),
			eventlog.WithJob(ex.JobID), eventlog.WithCorrelation(cc.CorrelationID))
		return models.TradeDecision{}, false, nil
	}
	if !strings.EqualFold(d.TokenIn, e.cfg.BaseAsset) {
		e.events.Record(ctx, models.LogAnalysis, fmt.Sprintf("Upstream proposed spending %s instead of %s, skipping trade", d.TokenIn, e.cfg.BaseAsset),
			eventlog.WithJob(ex.JobID), eventlog.WithCorrelation(cc.CorrelationID))
		return models.TradeDecision{}, false, nil
	}
	d.TokenIn = strings.ToUpper(e.cfg.BaseAsset)
	d = capAmount(d, maxAmount)

	e.events.Record(ctx, models.LogAnalysis,
		fmt.Sprintf("Upstream picked %s. Trading %s %s.", d.TokenOut, d.AmountIn, d.TokenIn),
		eventlog.WithRaw(map[string]any{"decision": d, "matched": matched}),
		eventlog.WithJob(ex.JobID), eventlog.WithCorrelation(cc.CorrelationID))
	return d, true, nil
}
