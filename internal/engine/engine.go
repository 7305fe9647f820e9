// Package engine runs one trading cycle: scan the market, decide, execute a
// swap when warranted, and record the wallet balance.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kjannette/trahn-agent/internal/chain"
	"github.com/kjannette/trahn-agent/internal/eventlog"
	"github.com/kjannette/trahn-agent/internal/ledger"
	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/kjannette/trahn-agent/internal/parser"
	"github.com/kjannette/trahn-agent/internal/promptjob"
	"github.com/kjannette/trahn-agent/internal/risk"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	promptLogLimit   = 80
	responseLogLimit = 500
)

type BalanceStore interface {
	AppendBalance(ctx context.Context, b models.BalanceSnapshot) (*models.BalanceSnapshot, error)
}

// TxVerifier confirms a swap transaction on chain.
type TxVerifier interface {
	Verify(ctx context.Context, txHash string) (chain.Receipt, error)
}

type Config struct {
	ChainName   string
	BaseAsset   string
	Skip        parser.SkipSet
	MaxTradePct float64
	Strategy    string
	Poll        promptjob.PollOptions
}

type Engine struct {
	jobs     promptjob.Client
	events   *eventlog.Log
	ledger   *ledger.Ledger
	balances BalanceStore
	strategy DecisionStrategy
	guardian *risk.Guardian
	verifier TxVerifier
	cfg      Config
	log      zerolog.Logger

	mu       sync.Mutex
	baseline *decimal.Decimal
	halted   error
}

type Option func(*Engine)

func WithGuardian(g *risk.Guardian) Option { return func(e *Engine) { e.guardian = g } }

func WithVerifier(v TxVerifier) Option { return func(e *Engine) { e.verifier = v } }

func WithStrategy(s DecisionStrategy) Option { return func(e *Engine) { e.strategy = s } }

func New(jobs promptjob.Client, events *eventlog.Log, l *ledger.Ledger, balances BalanceStore, cfg Config, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if cfg.BaseAsset == "" {
		cfg.BaseAsset = "USDC"
	}
	if cfg.ChainName == "" {
		cfg.ChainName = "base"
	}
	if cfg.Skip == nil {
		cfg.Skip = parser.NewSkipSet(cfg.BaseAsset)
	}
	e := &Engine{
		jobs:     jobs,
		events:   events,
		ledger:   l,
		balances: balances,
		cfg:      cfg,
		log:      logger.With().Str("component", "engine").Logger(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.strategy == nil {
		s, err := NewStrategy(cfg.Strategy, e)
		if err != nil {
			return nil, err
		}
		e.strategy = s
	}
	return e, nil
}

// Strategy names the active decision strategy.
func (e *Engine) Strategy() string { return e.strategy.Name() }

// RunCycle performs scan, decide, execute and balance check in order. Any
// step error aborts the rest of the cycle and is returned as *CycleError;
// recording it is the caller's job.
func (e *Engine) RunCycle(ctx context.Context) error {
	cc := &CycleContext{}
	e.events.Record(ctx, models.LogScanning, "Starting new scan cycle...")

	analysis, err := e.ScanTrends(ctx, cc)
	if err != nil {
		return &CycleError{Step: "scan", CorrelationID: cc.CorrelationID, Err: err}
	}

	decision, ok, err := e.Decide(ctx, cc, analysis)
	if err != nil {
		return &CycleError{Step: "decide", CorrelationID: cc.CorrelationID, Err: err}
	}
	if ok {
		if _, err := e.ExecuteTrade(ctx, cc, decision); err != nil {
			return &CycleError{Step: "execute", CorrelationID: cc.CorrelationID, Err: err}
		}
	}

	if _, err := e.CheckBalance(ctx, cc); err != nil {
		return &CycleError{Step: "balance", CorrelationID: cc.CorrelationID, Err: err}
	}
	return nil
}

// ScanTrends asks the upstream for trending tokens and returns its analysis text.
func (e *Engine) ScanTrends(ctx context.Context, cc *CycleContext) (string, error) {
	label := scanLabel(e.cfg.ChainName)
	e.events.Record(ctx, models.LogScanning, label, eventlog.WithCorrelation(cc.CorrelationID))

	ex, err := e.promptAndPoll(ctx, cc, scanPrompt(e.cfg.ChainName), label)
	if err != nil {
		return "", err
	}
	e.events.Record(ctx, models.LogAnalysis, "Trend analysis complete",
		eventlog.WithJob(ex.JobID), eventlog.WithCorrelation(cc.CorrelationID))
	return ex.Response, nil
}

// Decide turns an analysis into at most one trade. ok is false when the
// cycle should not trade; that is not an error.
func (e *Engine) Decide(ctx context.Context, cc *CycleContext, analysis string) (models.TradeDecision, bool, error) {
	if reason := e.haltReason(); reason != nil {
		e.events.Record(ctx, models.LogAnalysis, fmt.Sprintf("Trading halted (%v), skipping trade", reason),
			eventlog.WithCorrelation(cc.CorrelationID))
		return models.TradeDecision{}, false, nil
	}

	d, ok, err := e.strategy.Decide(ctx, cc, analysis)
	if err != nil || !ok {
		return models.TradeDecision{}, false, err
	}

	if e.guardian != nil {
		amount, perr := decimal.NewFromString(d.AmountIn)
		if perr != nil {
			e.events.Record(ctx, models.LogAnalysis, fmt.Sprintf("Unusable trade amount %q, skipping trade", d.AmountIn),
				eventlog.WithCorrelation(cc.CorrelationID))
			return models.TradeDecision{}, false, nil
		}
		if gerr := e.guardian.PreTradeCheck(ctx, amount); gerr != nil {
			e.events.Record(ctx, models.LogAnalysis, fmt.Sprintf("Risk check refused %s: %v", d.TokenOut, gerr),
				eventlog.WithCorrelation(cc.CorrelationID))
			return models.TradeDecision{}, false, nil
		}
	}
	return d, true, nil
}

// ExecuteTrade requests the swap and settles its ledger entry. On failure
// the entry is marked failed and the error is returned.
func (e *Engine) ExecuteTrade(ctx context.Context, cc *CycleContext, d models.TradeDecision) (models.TradeRecord, error) {
	e.events.Record(ctx, models.LogTrade, fmt.Sprintf("Executing swap: %s %s → %s", d.AmountIn, d.TokenIn, d.TokenOut),
		eventlog.WithRaw(d), eventlog.WithCorrelation(cc.CorrelationID))

	entry := e.ledger.Open(ctx, d)

	label := fmt.Sprintf("Swapping %s %s → %s", d.AmountIn, d.TokenIn, d.TokenOut)
	ex, err := e.promptAndPoll(ctx, cc, swapPrompt(d.AmountIn, d.TokenIn, d.TokenOut, e.cfg.ChainName), label)
	if err != nil {
		if ferr := entry.Fail(ctx, err); ferr != nil {
			e.log.Warn().Err(ferr).Msg("trade already settled")
		}
		return entry.Record(), err
	}

	txHash, _ := parser.TxHash(ex.Response)
	amountOut, _ := parser.AmountOut(ex.Response)
	if err := entry.Complete(ctx, ledger.Completion{JobID: ex.JobID, TxHash: txHash, AmountOut: amountOut, Raw: ex.Raw}); err != nil {
		e.log.Warn().Err(err).Msg("trade already settled")
	}

	msg := fmt.Sprintf("Swap complete: %s %s → %s", d.AmountIn, d.TokenIn, d.TokenOut)
	if amountOut != "" {
		msg += fmt.Sprintf(" (received %s %s)", amountOut, d.TokenOut)
	}
	if txHash != "" {
		msg += fmt.Sprintf(" (tx: %s...)", head(txHash, 10))
	}
	e.events.Record(ctx, models.LogTrade, msg, eventlog.WithJob(ex.JobID), eventlog.WithCorrelation(cc.CorrelationID))

	if txHash != "" && e.verifier != nil {
		e.verify(ctx, cc, txHash)
	}
	return entry.Record(), nil
}

func (e *Engine) verify(ctx context.Context, cc *CycleContext, txHash string) {
	r, err := e.verifier.Verify(ctx, txHash)
	if err != nil {
		e.log.Warn().Err(err).Str("tx", txHash).Msg("could not verify swap on chain")
		return
	}
	e.events.Record(ctx, models.LogSystem, fmt.Sprintf("On-chain status for %s...: %s", head(txHash, 10), r.Status),
		eventlog.WithRaw(r), eventlog.WithCorrelation(cc.CorrelationID))
}

// CheckBalance asks for the wallet valuation and records it.
func (e *Engine) CheckBalance(ctx context.Context, cc *CycleContext) (models.BalanceSnapshot, error) {
	ex, err := e.promptAndPoll(ctx, cc, balancePrompt, "Checking wallet balance...")
	if err != nil {
		return models.BalanceSnapshot{}, err
	}

	b := parser.ParseBalance(ex.Response)
	snap := models.BalanceSnapshot{TotalUSD: b.TotalUSD, Breakdown: b.Breakdown}
	if stored, err := e.balances.AppendBalance(ctx, snap); err != nil {
		e.log.Error().Err(err).Msg("failed to insert balance")
	} else if stored != nil {
		snap = *stored
	}

	e.events.Record(ctx, models.LogBalanceUpdate, fmt.Sprintf("Balance: $%s", b.TotalUSD.StringFixed(2)),
		eventlog.WithRaw(map[string]any{"total_usd": b.TotalUSD, "breakdown": b.Breakdown}),
		eventlog.WithJob(ex.JobID), eventlog.WithCorrelation(cc.CorrelationID))

	e.trackPortfolio(ctx, b.TotalUSD)
	return snap, nil
}

// trackPortfolio compares the balance with the first one seen and halts
// trading once a circuit breaker trips. Halting is sticky for the process.
func (e *Engine) trackPortfolio(ctx context.Context, total decimal.Decimal) {
	if e.guardian == nil || !total.IsPositive() {
		return
	}
	e.mu.Lock()
	if e.baseline == nil {
		e.baseline = &total
		e.mu.Unlock()
		return
	}
	pnl := risk.PnLPercent(*e.baseline, total)
	already := e.halted != nil
	var tripped error
	if !already {
		tripped = e.guardian.PortfolioCheck(pnl)
		e.halted = tripped
	}
	e.mu.Unlock()

	if tripped != nil {
		e.events.Record(ctx, models.LogSystem, fmt.Sprintf("%v. New trades are paused.", tripped), eventlog.WithRaw(map[string]float64{"pnl_percent": pnl}))
	}
}

func (e *Engine) haltReason() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.halted
}

// exchange is one completed prompt/response round trip.
type exchange struct {
	JobID    string
	Response string
	Raw      []byte
}

// promptAndPoll submits prompt, waits for the job and records both ends of
// the exchange. Submission and job failures come back as
// *promptjob.SubmissionError and *promptjob.JobFailedError.
func (e *Engine) promptAndPoll(ctx context.Context, cc *CycleContext, prompt, label string) (exchange, error) {
	content := label
	if content == "" {
		content = head(prompt, promptLogLimit) + "..."
	}
	e.events.Record(ctx, models.LogPrompt, content,
		eventlog.WithRaw(map[string]string{"prompt": prompt}), eventlog.WithCorrelation(cc.CorrelationID))

	sub, err := e.jobs.Submit(ctx, prompt, cc.CorrelationID)
	if err != nil {
		var se *promptjob.SubmissionError
		if !errors.As(err, &se) {
			err = &promptjob.SubmissionError{Message: "request failed", Err: err}
		}
		return exchange{}, err
	}
	cc.adopt(sub.CorrelationID)

	opts := e.cfg.Poll
	opts.OnTransient = func(attempt int, st promptjob.JobStatus) {
		switch st.Status {
		case promptjob.StatusProcessing:
			e.events.Record(ctx, models.LogSystem, fmt.Sprintf("Job %s processing...", sub.JobID),
				eventlog.WithJob(sub.JobID), eventlog.WithCorrelation(cc.CorrelationID))
		case promptjob.StatusError:
			e.log.Warn().Str("job_id", sub.JobID).Int("attempt", attempt).Str("error", st.Error).Msg("job status fetch failed")
		default:
			e.log.Debug().Str("job_id", sub.JobID).Int("attempt", attempt).Str("status", string(st.Status)).Msg("job waiting")
		}
	}

	res := e.jobs.Poll(ctx, sub.JobID, opts)
	if err := res.AsError(); err != nil {
		return exchange{}, err
	}
	cc.adopt(res.CorrelationID)

	raw := eventlog.WithRawJSON(res.Raw)
	if len(res.Raw) == 0 {
		raw = eventlog.WithRaw(map[string]string{"status": string(res.Status), "response": res.Response})
	}
	e.events.Record(ctx, models.LogResponse, head(res.Response, responseLogLimit),
		raw, eventlog.WithJob(sub.JobID), eventlog.WithCorrelation(cc.CorrelationID))

	return exchange{JobID: sub.JobID, Response: res.Response, Raw: res.Raw}, nil
}
