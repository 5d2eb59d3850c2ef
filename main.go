package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	osignal "os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"genx-signal-engine/config"
	"genx-signal-engine/internal/brokercreds"
	"genx-signal-engine/internal/bulletin"
	"genx-signal-engine/internal/eatransport"
	"genx-signal-engine/internal/engine"
	"genx-signal-engine/internal/ensemble"
	"genx-signal-engine/internal/features"
	"genx-signal-engine/internal/ledger"
	"genx-signal-engine/internal/marketdata"
	"genx-signal-engine/internal/riskparams"
	"genx-signal-engine/internal/scheduler"
	"genx-signal-engine/internal/signal"
	"genx-signal-engine/internal/statusapi"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := zerolog.New(os.Stdout).With().Timestamp().Str("component", "main").Logger()
	if lvl, perr := zerolog.ParseLevel(cfg.LoggingConfig.Level); perr == nil {
		logger = logger.Level(lvl)
	}
	logger.Info().Msg("structured logging initialized")

	ledgerStore := ledger.New()

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 10*time.Second)
	pgStore, err := ledger.NewStore(dbCtx, ledger.Config{
		Host:     cfg.DatabaseConfig.Host,
		Port:     cfg.DatabaseConfig.Port,
		User:     cfg.DatabaseConfig.User,
		Password: cfg.DatabaseConfig.Password,
		Database: cfg.DatabaseConfig.Database,
		SSLMode:  cfg.DatabaseConfig.SSLMode,
	}, logger)
	dbCancel()
	if err != nil {
		logger.Warn().Err(err).Msg("ledger database unavailable, continuing with in-memory ledger only")
		pgStore = nil
	} else {
		if err := pgStore.Migrate(context.Background()); err != nil {
			logger.Warn().Err(err).Msg("ledger migration failed")
		}
		logger.Info().Msg("ledger database connected")
	}

	riskStore := riskparams.NewStore(cfg.RedisConfig.Address, cfg.RedisConfig.Password, cfg.RedisConfig.DB, logger)
	if cfg.RedisConfig.Enabled {
		loadCtx, loadCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := riskStore.Load(loadCtx); err != nil {
			logger.Warn().Err(err).Msg("failed to load risk parameters from redis, using defaults")
		}
		loadCancel()
	}

	rootCtx, rootCancel := context.WithCancel(context.Background())

	if cfg.RedisConfig.Enabled {
		go func() {
			if err := riskStore.Watch(rootCtx); err != nil && rootCtx.Err() == nil {
				logger.Warn().Err(err).Msg("risk parameter watch loop exited")
			}
		}()
	}

	resolver, err := brokercreds.NewResolver(brokercreds.Config{
		Enabled:    cfg.VaultConfig.Enabled,
		Address:    cfg.VaultConfig.Address,
		Token:      cfg.VaultConfig.Token,
		MountPath:  cfg.VaultConfig.MountPath,
		SecretPath: cfg.VaultConfig.SecretPath,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build broker credential resolver")
	}

	market := marketdata.NewMockAdapter(cfg.MarketData.Seed)

	eng := features.NewEngineer(60, 8, 1e-6)
	combiner := ensemble.NewCombiner()

	bootstrapCtx, bootstrapCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := engine.Bootstrap(bootstrapCtx, market, combiner, eng, cfg.Symbols, marketdata.H1, cfg.MarketData.Seed); err != nil {
		logger.Warn().Err(err).Msg("ensemble bootstrap training failed, predictions will reject until corrected")
	} else {
		logger.Info().Msg("ensemble bootstrap training complete")
	}
	bootstrapCancel()

	board, err := bulletin.New(cfg.BulletinConfig.OutputDir, bulletin.Policy{
		MaxAge:     cfg.BulletinConfig.MaxAge,
		MaxSignals: cfg.BulletinConfig.MaxSignals,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize bulletin board")
	}

	var statusSrv *statusapi.Server
	onUpdate := func(signals []*signal.Signal) {
		if statusSrv != nil {
			statusSrv.Broadcast("signals_updated", signals)
		}
	}

	eaHub := eatransport.NewHub(eaMessageHandler(ledgerStore, pgStore, logger), logger)
	signer := eatransport.NewTokenSigner([]byte(cfg.EATransportConfig.HandshakeSecret))
	eaServer := eatransport.NewServer(cfg.EATransportConfig.Addr, eaHub, signer, logger).WithCredentialResolver(resolver)

	eng2 := engine.New(market, combiner, eng, board, ledgerStore, riskStore, eaHub,
		[]marketdata.Timeframe{marketdata.M15, marketdata.H1, marketdata.H4},
		onUpdate, logger)

	sched := scheduler.New(scheduler.Config{
		Interval:         cfg.SchedulerConfig.Interval,
		TickDeadline:     cfg.SchedulerConfig.TickDeadline,
		MaxWorkers:       cfg.SchedulerConfig.MaxWorkers,
		FailureThreshold: cfg.SchedulerConfig.FailureThreshold,
		CooldownPeriod:   cfg.SchedulerConfig.CooldownPeriod,
	}, eng2.Tick, logger)

	statusSrv = statusapi.New(statusapi.Config{
		Addr:              cfg.ServerConfig.Host + ":" + strconv.Itoa(cfg.ServerConfig.Port),
		JWTSecret:         cfg.AuthConfig.JWTSecret,
		AuthDisabled:      !cfg.AuthConfig.Enabled,
		AdminUsername:     cfg.AuthConfig.AdminUsername,
		AdminPasswordHash: cfg.AuthConfig.AdminPasswordHash,
	}, eng2, ledgerStore, sched, logger)

	sched.Start(rootCtx)
	for _, sym := range cfg.Symbols {
		sched.Register(rootCtx, sym)
	}
	logger.Info().Strs("symbols", cfg.Symbols).Msg("scheduler started")

	go func() {
		if err := eaServer.ListenAndServe(rootCtx); err != nil {
			logger.Error().Err(err).Msg("ea transport server exited")
		}
	}()
	logger.Info().Str("addr", cfg.EATransportConfig.Addr).Msg("ea transport listening")

	go func() {
		if err := statusSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("status api server exited")
		}
	}()
	logger.Info().Str("addr", cfg.ServerConfig.Host).Int("port", cfg.ServerConfig.Port).Msg("status api listening")

	sigChan := make(chan os.Signal, 1)
	osignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("shutting down")
	rootCancel()
	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ServerConfig.ShutdownTimeout)*time.Second)
	defer shutdownCancel()
	if err := statusSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("error shutting down status api")
	}
	if pgStore != nil {
		pgStore.Close()
	}
	if err := riskStore.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing risk parameter store")
	}

	logger.Info().Msg("shutdown complete")
}

// eaMessageHandler dispatches TRADE_RESULT and ACCOUNT_STATUS frames
// from connected EAs into the ledger.
func eaMessageHandler(led *ledger.Ledger, store *ledger.Store, log zerolog.Logger) eatransport.Handler {
	return func(connID string, env eatransport.Envelope) {
		switch env.Type {
		case eatransport.TypeTradeResult:
			var tr ledger.TradeResult
			if err := json.Unmarshal(env.Data, &tr); err != nil {
				log.Warn().Err(err).Str("conn", connID).Msg("malformed TRADE_RESULT")
				return
			}
			led.ApplyTradeResult(tr)
			if store != nil && tr.ClosedAt.After(tr.OpenedAt) {
				if err := store.PersistClosedTrade(context.Background(), ledger.Position{
					Ticket: tr.Ticket, Symbol: tr.Symbol, Side: tr.Side,
					EntryPrice: tr.EntryPrice, Volume: tr.Volume,
					OpenedAt: tr.OpenedAt, ClosedAt: tr.ClosedAt,
					ExitPrice: tr.ExitPrice, PnL: tr.PnL,
					Status: ledger.PositionClosed, SignalID: tr.SignalID,
				}); err != nil {
					log.Warn().Err(err).Msg("failed to persist closed trade")
				}
			}
		case eatransport.TypeAccountStatus:
			var as ledger.AccountStatus
			if err := json.Unmarshal(env.Data, &as); err != nil {
				log.Warn().Err(err).Str("conn", connID).Msg("malformed ACCOUNT_STATUS")
				return
			}
			led.ApplyAccountStatus(as)
			if store != nil {
				if err := store.PersistAccountSnapshot(context.Background(), led.Summary()); err != nil {
					log.Warn().Err(err).Msg("failed to persist account snapshot")
				}
			}
		case eatransport.TypeHeartbeat:
			// no ledger effect; the hub's read pump already resets the
			// connection's liveness deadline.
		default:
			log.Debug().Str("conn", connID).Str("type", string(env.Type)).Msg("unhandled EA message type")
		}
	}
}
