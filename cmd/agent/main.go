package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kjannette/trahn-agent/internal/api"
	"github.com/kjannette/trahn-agent/internal/chain"
	"github.com/kjannette/trahn-agent/internal/config"
	"github.com/kjannette/trahn-agent/internal/db"
	"github.com/kjannette/trahn-agent/internal/engine"
	"github.com/kjannette/trahn-agent/internal/eventlog"
	"github.com/kjannette/trahn-agent/internal/ledger"
	"github.com/kjannette/trahn-agent/internal/logging"
	"github.com/kjannette/trahn-agent/internal/notifications"
	"github.com/kjannette/trahn-agent/internal/parser"
	"github.com/kjannette/trahn-agent/internal/promptjob"
	"github.com/kjannette/trahn-agent/internal/report"
	"github.com/kjannette/trahn-agent/internal/repository"
	"github.com/kjannette/trahn-agent/internal/risk"
	"github.com/kjannette/trahn-agent/internal/scheduler"
	"github.com/kjannette/trahn-agent/internal/startup"
	"github.com/rs/zerolog"
)

const banner = `
╔══════════════════════════════════════╗
║       TRAHN Trading Agent v0.3       ║
║                                      ║
╚══════════════════════════════════════╝
`

// agentStore is everything the agent reads and writes.
type agentStore interface {
	api.Store
	eventlog.Appender
	ledger.Store
	engine.BalanceStore
	risk.TradeCounter
}

func main() {
	os.Exit(run())
}

func run() int {
	fmt.Print(banner)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load error: %v\n", err)
		return 1
	}

	logger := logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	logging.SetGlobal(logger)

	if err := cfg.Validate(logger); err != nil {
		logger.Error().Msg(err.Error())
		return 1
	}
	cfg.Print(logger)

	ctx := context.Background()

	store, pool, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("store unavailable")
		return 1
	}
	if pool != nil {
		defer func() {
			pool.Close()
			logger.Info().Msg("database pool closed")
		}()
	}

	// Notifications
	var channels notifications.Multi
	if cfg.WebhookURL != "" {
		channels = append(channels, notifications.NewSender(cfg.WebhookURL, cfg.BotName, logger))
	}
	if cfg.TelegramBotToken != "" {
		tg, err := notifications.NewTelegram(cfg.TelegramBotToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("telegram disabled")
		} else {
			channels = append(channels, tg)
		}
	}
	forwarder := notifications.NewForwarder(channels, 64, logger)
	hub := api.NewHub(logger)
	events := eventlog.New(store, logger, forwarder, hub)

	jobs := promptjob.NewBankrClient(promptjob.BankrConfig{
		BaseURL:    cfg.BankrAPIURL,
		APIKey:     cfg.BankrAPIKey,
		RatePerSec: cfg.BankrRatePerSec,
	})

	// Optional on-chain receipt checks
	var verifier *chain.Verifier
	if cfg.ChainRPCURL != "" {
		verifier, err = chain.Dial(ctx, cfg.ChainRPCURL, cfg.ChainName)
		if err != nil {
			logger.Warn().Err(err).Msg("chain RPC unavailable, receipts will not be verified")
			verifier = nil
		} else {
			defer verifier.Close()
		}
	}

	var startupOpts []startup.Option
	if verifier != nil {
		startupOpts = append(startupOpts, startup.WithNativeBalance(verifier))
	}
	if _, err := startup.New(jobs, events, cfg.ChainName, logger, startupOpts...).Validate(ctx); err != nil {
		logger.Error().Err(err).Msg("startup failed")
		forwarder.Close()
		return 1
	}

	guardian := risk.NewGuardian(risk.Limits{
		MaxDailyTrades:     cfg.MaxDailyTrades,
		MaxPositionSizeUSD: cfg.MaxPositionSizeUSD,
		StopLossPercent:    cfg.StopLossPercent,
		TakeProfitPercent:  cfg.TakeProfitPercent,
	}, store)

	engineOpts := []engine.Option{engine.WithGuardian(guardian)}
	if verifier != nil {
		engineOpts = append(engineOpts, engine.WithVerifier(verifier))
	}
	eng, err := engine.New(jobs, events, ledger.New(store, logger), store, engine.Config{
		ChainName:   cfg.ChainName,
		BaseAsset:   cfg.BaseAsset,
		Skip:        parser.NewSkipSet(cfg.SkipTokens...),
		MaxTradePct: cfg.MaxTradePct,
		Strategy:    cfg.DecisionStrategy,
		Poll: promptjob.PollOptions{
			Interval:    cfg.PollInterval(),
			MaxAttempts: cfg.PollMaxAttempts,
		},
	}, logger, engineOpts...)
	if err != nil {
		logger.Error().Err(err).Msg("engine setup failed")
		forwarder.Close()
		return 1
	}

	sched := scheduler.NewCycleScheduler(eng, events, cfg.Interval(), logger,
		scheduler.WithWarmup(func(ctx context.Context) error {
			_, err := eng.CheckBalance(ctx, &engine.CycleContext{})
			return err
		}))

	// API server
	srv := api.NewServer(store, sched, events, hub, api.Options{
		Port:       cfg.APIPort,
		APIKey:     cfg.APIKey,
		CORSOrigin: cfg.CORSAllowOrigin,
	}, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("API server error")
			sched.Stop("api failure")
		}
	}()

	// Status reports
	var reporter *report.Reporter
	if len(channels) > 0 && cfg.StatusReportSchedule != "" {
		reporter = report.New(store, sched, channels, logger)
		if err := reporter.Start(cfg.StatusReportSchedule); err != nil {
			logger.Warn().Err(err).Msg("status reports disabled")
			reporter = nil
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	// First signal lets the current cycle finish, a second one cancels it.
	go func() {
		select {
		case sig := <-sigs:
			sched.Stop(signalName(sig))
		case <-sched.Done():
			return
		}
		select {
		case sig := <-sigs:
			sched.ForceStop(signalName(sig))
		case <-sched.Done():
		}
	}()

	logger.Info().Str("strategy", eng.Strategy()).Msg("agent loop starting")
	if err := sched.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("scheduler error")
	}
	<-sched.Done()

	if reporter != nil {
		reporter.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("API shutdown error")
	}
	forwarder.Close()
	logger.Info().Msg("shutdown complete")
	return 0
}

func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (agentStore, *pgxpool.Pool, error) {
	if cfg.StoreDriver == "memory" {
		return repository.NewMemoryStore(), nil, nil
	}

	logger.Info().Str("host", cfg.DBHost).Int("port", cfg.DBPort).Str("db", cfg.DBName).Msg("connecting to database")
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, err
	}
	if err := db.TestConnection(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, nil, err
	}
	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return repository.NewStore(pool), pool, nil
}

func signalName(sig os.Signal) string {
	switch sig {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	default:
		return sig.String()
	}
}
