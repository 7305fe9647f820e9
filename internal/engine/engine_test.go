package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kjannette/trahn-agent/internal/chain"
	"github.com/kjannette/trahn-agent/internal/eventlog"
	"github.com/kjannette/trahn-agent/internal/ledger"
	"github.com/kjannette/trahn-agent/internal/models"
	"github.com/kjannette/trahn-agent/internal/parser"
	"github.com/kjannette/trahn-agent/internal/promptjob"
	"github.com/kjannette/trahn-agent/internal/repository"
	"github.com/kjannette/trahn-agent/internal/risk"
	"github.com/kjannette/trahn-agent/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	scanReply    = "1. FOO - up - high - breakout\n2. BAR - down - high - dumping\n3. USDC - up - high - inflows"
	balanceReply = "USD Coin - 97.99 USDC $97.99\nEthereum - 0.00258 ETH $4.81"
)

var txHash = "0x" + strings.Repeat("9f", 32)

type harness struct {
	jobs   *testutil.ScriptedJobs
	store  *repository.MemoryStore
	engine *Engine
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	store := repository.NewMemoryStore()
	jobs := testutil.NewScriptedJobs()
	events := eventlog.New(store, zerolog.Nop())
	if cfg.Skip == nil {
		cfg.Skip = parser.NewSkipSet("USDC", "USDT", "DAI", "ETH", "WETH")
	}
	if cfg.MaxTradePct == 0 {
		cfg.MaxTradePct = 15
	}
	cfg.Poll = promptjob.PollOptions{Interval: time.Millisecond, MaxAttempts: 3}
	e, err := New(jobs, events, ledger.New(store, zerolog.Nop()), store, cfg, zerolog.Nop(), opts...)
	require.NoError(t, err)
	return &harness{jobs: jobs, store: store, engine: e}
}

func (h *harness) logsOf(typ models.LogType) []models.LogEntry {
	var out []models.LogEntry
	for _, e := range h.store.Logs() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func TestRunCycle_TradesFirstCandidate(t *testing.T) {
	h := newHarness(t, Config{})
	h.jobs.On("trending", testutil.Completed(scanReply)).
		On("swap 15.00 USDC to FOO on base", testutil.Completed("Swapped 15.00 USDC for 1,234.5 FOO. tx "+txHash)).
		On("wallet balance", testutil.Completed(balanceReply))

	require.NoError(t, h.engine.RunCycle(context.Background()))

	trades := h.store.Trades()
	require.Len(t, trades, 1)
	tr := trades[0]
	assert.Equal(t, "USDC", tr.TokenIn)
	assert.Equal(t, "FOO", tr.TokenOut)
	assert.Equal(t, "15.00", tr.AmountIn)
	assert.Equal(t, models.TradeCompleted, tr.Status)
	assert.Equal(t, txHash, *tr.TxHash)
	assert.Equal(t, "1234.5", *tr.AmountOut)

	b, _ := h.store.LatestBalance(context.Background())
	require.NotNil(t, b)
	assert.Equal(t, "102.80", b.TotalUSD.StringFixed(2))

	assert.Empty(t, h.logsOf(models.LogError))
	balanceLogs := h.logsOf(models.LogBalanceUpdate)
	require.Len(t, balanceLogs, 1)
	assert.Equal(t, "Balance: $102.80", balanceLogs[0].Content)

	analysis := h.logsOf(models.LogAnalysis)
	require.Len(t, analysis, 2)
	assert.Equal(t, "Picked FOO (high conviction, trending up). Trading 15.00 USDC.", analysis[1].Content)
}

func TestRunCycle_PrefersHighConviction(t *testing.T) {
	tests := []struct {
		name     string
		scan     string
		want     string
		analysis string
	}{
		{
			name:     "high after medium",
			scan:     "1. FOO - up - medium - drifting\n2. BAR - up - high - breakout",
			want:     "BAR",
			analysis: "Picked BAR (high conviction, trending up). Trading 15.00 USDC.",
		},
		{
			name:     "medium only",
			scan:     "1. FOO - up - medium - drifting\n2. BAZ - up - medium - steady",
			want:     "FOO",
			analysis: "Picked FOO (medium conviction, trending up). Trading 15.00 USDC.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, Config{})
			h.jobs.On("trending", testutil.Completed(tt.scan)).
				On("swap 15.00 USDC to "+tt.want+" on base", testutil.Completed("Swapped 15.00 USDC. tx "+txHash)).
				On("wallet balance", testutil.Completed(balanceReply))

			require.NoError(t, h.engine.RunCycle(context.Background()))

			trades := h.store.Trades()
			require.Len(t, trades, 1)
			assert.Equal(t, tt.want, trades[0].TokenOut)
			assert.Equal(t, models.TradeCompleted, trades[0].Status)

			analysis := h.logsOf(models.LogAnalysis)
			require.Len(t, analysis, 2)
			assert.Equal(t, tt.analysis, analysis[1].Content)
		})
	}
}

func TestRunCycle_CorrelationThreadsThroughSteps(t *testing.T) {
	h := newHarness(t, Config{})
	scan := testutil.Completed("nothing to see")
	scan.CorrelationID = "thread-42"
	h.jobs.On("trending", scan).On("wallet balance", testutil.Completed(balanceReply))

	require.NoError(t, h.engine.RunCycle(context.Background()))

	for _, e := range h.logsOf(models.LogResponse) {
		require.NotNil(t, e.CorrelationID)
		assert.Equal(t, "thread-42", *e.CorrelationID)
	}
	assert.Empty(t, h.store.Trades())
}

func TestRunCycle_NoCandidateSkipsTrade(t *testing.T) {
	h := newHarness(t, Config{})
	h.jobs.On("trending", testutil.Completed("BAR - down - high\nBAZ - up - low")).
		On("wallet balance", testutil.Completed(balanceReply))

	require.NoError(t, h.engine.RunCycle(context.Background()))
	assert.Empty(t, h.store.Trades())

	analysis := h.logsOf(models.LogAnalysis)
	require.NotEmpty(t, analysis)
	assert.Equal(t, "No high/medium conviction 'up' picks found, skipping trade", analysis[len(analysis)-1].Content)
	for _, p := range h.jobs.SubmittedPrompts() {
		assert.NotContains(t, p, "swap ")
	}
}

func TestRunCycle_SwapTimeoutFailsTrade(t *testing.T) {
	h := newHarness(t, Config{})
	h.jobs.On("trending", testutil.Completed(scanReply)).
		On("swap", testutil.Hanging()).
		On("wallet balance", testutil.Completed(balanceReply))

	err := h.engine.RunCycle(context.Background())
	require.Error(t, err)

	var ce *CycleError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "execute", ce.Step)

	var jf *promptjob.JobFailedError
	require.ErrorAs(t, err, &jf)
	assert.True(t, jf.TimedOut)
	assert.Equal(t, 3, h.jobs.Polls(jf.JobID))

	trades := h.store.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, models.TradeFailed, trades[0].Status)

	for _, p := range h.jobs.SubmittedPrompts() {
		assert.NotContains(t, p, "wallet balance", "balance check must not run after a failed step")
	}
	assert.Empty(t, h.logsOf(models.LogError), "engine leaves error logging to the scheduler")
	assert.NotEmpty(t, h.logsOf(models.LogSystem), "processing progress is logged")
}

func TestRunCycle_SubmissionError(t *testing.T) {
	h := newHarness(t, Config{})
	h.jobs.On("trending", testutil.ScriptedReply{SubmitErr: "rate limited"})

	err := h.engine.RunCycle(context.Background())
	var se *promptjob.SubmissionError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "submitPrompt failed: rate limited", err.Error())
}

func TestRunCycle_JobFailed(t *testing.T) {
	h := newHarness(t, Config{})
	h.jobs.On("trending", testutil.Failed("model overloaded"))

	err := h.engine.RunCycle(context.Background())
	require.Error(t, err)
	assert.Equal(t, "Job failed: model overloaded", err.Error())
}

func TestPromptAndPoll_LogsPromptAndResponse(t *testing.T) {
	h := newHarness(t, Config{})
	long := strings.Repeat("x", 600)
	h.jobs.On("hello", testutil.Completed(long))

	cc := &CycleContext{}
	prompt := "hello " + strings.Repeat("y", 100)
	_, err := h.engine.promptAndPoll(context.Background(), cc, prompt, "")
	require.NoError(t, err)

	prompts := h.logsOf(models.LogPrompt)
	require.Len(t, prompts, 1)
	assert.Equal(t, prompt[:80]+"...", prompts[0].Content)

	responses := h.logsOf(models.LogResponse)
	require.Len(t, responses, 1)
	assert.Len(t, responses[0].Content, 500)
	assert.NotNil(t, responses[0].JobID)
	assert.NotEmpty(t, cc.CorrelationID)
}

func TestUpstreamStrategy(t *testing.T) {
	h := newHarness(t, Config{Strategy: StrategyUpstream, MaxTradePct: 10})
	h.jobs.On("trending", testutil.Completed(scanReply)).
		On("recommend at most one token", testutil.Completed("swap 25 USDC to FOO")).
		On("swap 10.00 USDC to FOO on base", testutil.Completed("done "+txHash)).
		On("wallet balance", testutil.Completed(balanceReply))

	require.Equal(t, StrategyUpstream, h.engine.Strategy())
	require.NoError(t, h.engine.RunCycle(context.Background()))

	trades := h.store.Trades()
	require.Len(t, trades, 1)
	assert.Equal(t, "10.00", trades[0].AmountIn, "amount is capped at the configured maximum")
	assert.Equal(t, "FOO", trades[0].TokenOut)
}

func TestUpstreamStrategy_NoTrade(t *testing.T) {
	h := newHarness(t, Config{Strategy: StrategyUpstream})
	h.jobs.On("trending", testutil.Completed(scanReply)).
		On("recommend at most one token", testutil.Completed("NO_TRADE. I'd swap 5 USDC to FOO only on a breakout.")).
		On("wallet balance", testutil.Completed(balanceReply))

	require.NoError(t, h.engine.RunCycle(context.Background()))
	assert.Empty(t, h.store.Trades())
}

func TestUpstreamStrategy_SkipListed(t *testing.T) {
	h := newHarness(t, Config{Strategy: StrategyUpstream})
	h.jobs.On("trending", testutil.Completed(scanReply)).
		On("recommend at most one token", testutil.Completed("swap 5 USDC to WETH")).
		On("wallet balance", testutil.Completed(balanceReply))

	require.NoError(t, h.engine.RunCycle(context.Background()))
	assert.Empty(t, h.store.Trades())
}

func TestNew_UnknownStrategy(t *testing.T) {
	_, err := New(testutil.NewScriptedJobs(), eventlog.New(repository.NewMemoryStore(), zerolog.Nop()), nil, nil,
		Config{Strategy: "magic"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestGuardianBlocksTrade(t *testing.T) {
	g := risk.NewGuardian(risk.Limits{MaxPositionSizeUSD: 5}, nil)
	h := newHarness(t, Config{}, WithGuardian(g))
	h.jobs.On("trending", testutil.Completed(scanReply)).
		On("wallet balance", testutil.Completed(balanceReply))

	require.NoError(t, h.engine.RunCycle(context.Background()))
	assert.Empty(t, h.store.Trades())

	analysis := h.logsOf(models.LogAnalysis)
	assert.Contains(t, analysis[len(analysis)-1].Content, "Risk check refused FOO")
}

func TestCircuitBreakerHaltsTrading(t *testing.T) {
	g := risk.NewGuardian(risk.Limits{StopLossPercent: 10}, nil)
	h := newHarness(t, Config{}, WithGuardian(g))
	ctx := context.Background()
	cc := &CycleContext{}

	for _, reply := range []string{"USD Coin - 100 USDC $100.00", "USD Coin - 85 USDC $85.00"} {
		jobs := testutil.NewScriptedJobs().On("wallet balance", testutil.Completed(reply))
		h.engine.jobs = jobs
		_, err := h.engine.CheckBalance(ctx, cc)
		require.NoError(t, err)
	}

	_, ok, err := h.engine.Decide(ctx, cc, scanReply)
	require.NoError(t, err)
	assert.False(t, ok)

	system := h.logsOf(models.LogSystem)
	require.NotEmpty(t, system)
	assert.Contains(t, system[len(system)-1].Content, "STOP-LOSS")
}

type fakeVerifier struct{ calls []string }

func (f *fakeVerifier) Verify(_ context.Context, hash string) (chain.Receipt, error) {
	f.calls = append(f.calls, hash)
	return chain.Receipt{TxHash: hash, Status: chain.StatusSuccess}, nil
}

func TestExecuteTrade_VerifiesOnChain(t *testing.T) {
	v := &fakeVerifier{}
	h := newHarness(t, Config{}, WithVerifier(v))
	h.jobs.On("swap", testutil.Completed("Swapped. Tx: "+txHash))

	rec, err := h.engine.ExecuteTrade(context.Background(), &CycleContext{}, models.TradeDecision{TokenIn: "USDC", TokenOut: "FOO", AmountIn: "1.00"})
	require.NoError(t, err)
	assert.Equal(t, models.TradeCompleted, rec.Status)
	assert.Equal(t, []string{txHash}, v.calls)

	system := h.logsOf(models.LogSystem)
	require.NotEmpty(t, system)
	assert.Contains(t, system[len(system)-1].Content, "success")
}

func TestExecuteTrade_NoHashSkipsVerify(t *testing.T) {
	v := &fakeVerifier{}
	h := newHarness(t, Config{}, WithVerifier(v))
	h.jobs.On("swap", testutil.Completed("Swap queued"))

	rec, err := h.engine.ExecuteTrade(context.Background(), &CycleContext{}, models.TradeDecision{TokenIn: "USDC", TokenOut: "FOO", AmountIn: "1.00"})
	require.NoError(t, err)
	assert.Nil(t, rec.TxHash)
	assert.Empty(t, v.calls)
}

func TestCycleError_Unwrap(t *testing.T) {
	inner := errors.New("boom")
	err := &CycleError{Step: "scan", Err: inner}
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "boom", err.Error())
}

func TestCapAmount(t *testing.T) {
	d := models.TradeDecision{TokenIn: "USDC", TokenOut: "FOO", AmountIn: "3"}
	assert.Equal(t, "3", capAmount(d, "15.00").AmountIn)
	d.AmountIn = "30"
	assert.Equal(t, "15.00", capAmount(d, "15.00").AmountIn)
	d.AmountIn = "abc"
	assert.Equal(t, "15.00", capAmount(d, "15.00").AmountIn)
}
