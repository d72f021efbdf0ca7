// Package main provides the entry point for the trading backend
// server: market data ingestion, rate-limited/cached upstream access,
// order execution and risk management, live position tracking, the
// strategy activation/learning loop, alerting, and the REST/WS API
// surface.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Edgame2/masterTrade-sub003/internal/activation"
	"github.com/Edgame2/masterTrade-sub003/internal/alerts"
	"github.com/Edgame2/masterTrade-sub003/internal/api"
	"github.com/Edgame2/masterTrade-sub003/internal/cache"
	"github.com/Edgame2/masterTrade-sub003/internal/config"
	"github.com/Edgame2/masterTrade-sub003/internal/data"
	"github.com/Edgame2/masterTrade-sub003/internal/execution"
	"github.com/Edgame2/masterTrade-sub003/internal/metrics"
	"github.com/Edgame2/masterTrade-sub003/internal/position"
	"github.com/Edgame2/masterTrade-sub003/internal/ratelimit"
	"github.com/Edgame2/masterTrade-sub003/pkg/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	configPath := flag.String("config", "", "Path to a YAML/JSON config file (layered under flag/env overrides)")
	logLevel := flag.String("log-level", "", "Override log.level from config (debug, info, warn, error)")
	paperTrading := flag.Bool("paper", true, "Enable paper trading mode")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	cfg.Risk.PaperTrading = *paperTrading

	logger := setupLogger(cfg.Log.Level)
	defer logger.Sync()

	logger.Info("starting trading backend",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("dataDir", cfg.Data.DataDir),
		zap.Bool("paperTrading", cfg.Risk.PaperTrading),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dataStore, err := data.NewStore(logger, cfg.Data.DataDir)
	if err != nil {
		logger.Fatal("failed to initialize data store", zap.Error(err))
	}

	marketDataConfig := data.DefaultMarketDataConfig()
	marketDataConfig.Symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT", "BNBUSDT"}
	marketDataService := data.NewMarketDataService(logger, marketDataConfig)

	// C3: shared-state admission control and tiered cache in front of
	// upstream market-data/exchange calls.
	limiter := ratelimit.NewLimiter(logger, ratelimit.NewInMemoryStore())
	for _, rc := range cfg.Rules {
		rule, err := rc.ToTypes()
		if err != nil {
			logger.Fatal("invalid rate limit rule in config", zap.Error(err))
		}
		limiter.AddRule(rule)
	}
	cacheManager := cache.NewCacheManager(logger, nil,
		cache.Namespace{Name: "ohlcv", Strategy: types.CacheStrategyLRU, MaxSize: 5000, TTL: 5 * time.Minute},
		cache.Namespace{Name: "quotes", Strategy: types.CacheStrategyTTL, MaxSize: 2000, TTL: 5 * time.Second},
	)

	// C2: the authoritative live-position ledger plus its trailing
	// stop/ladder/exit/hedge auxiliaries. Constructed before C1 since
	// the order manager routes every fill into it.
	positionManager := position.NewManager(logger)

	// C1: risk-gated order execution.
	riskConfig := execution.DefaultRiskConfig()
	riskConfig.MaxPositionValue = cfg.Risk.MaxPositionSize
	riskConfig.MaxTotalExposure = cfg.Risk.MaxTotalExposure
	riskConfig.MaxDailyLoss = cfg.Risk.MaxDailyLoss
	riskConfig.MaxDrawdown = cfg.Risk.MaxDrawdown
	riskConfig.MaxConsecutiveLosses = cfg.Risk.MaxConsecutiveLosses
	riskManager := execution.NewRiskManager(logger, riskConfig)
	orderManager := execution.NewOrderManager(logger, positionManager)

	// The signal-driven executor (as opposed to the slice-scheduled
	// planner below) is the kill-switch-gated entry point risk events
	// trip: a block/critical risk event halts it until manually
	// cleared, independent of whatever order flow is in progress.
	executorConfig := execution.DefaultExecutorConfig()
	executor := execution.NewExecutor(logger, executorConfig, positionManager)

	// Slice-scheduled TWAP/VWAP execution plans route through their
	// own lightweight venue adapter rather than the order-level
	// OrderManager above; venue credentials are supplied at AddAdapter
	// time once available.
	venueAdapter := execution.NewExecutorVenueAdapter(map[string]execution.ExchangeAdapter{})
	planner := execution.NewPlanner(logger)
	router := execution.NewRouter(logger)
	qualityTracker := execution.NewTracker(logger)

	// C5: regime classification, historical condition matching,
	// activate/keep/deactivate decisions, and pattern learning.
	activationEngine := activation.NewEngine(logger, activation.EngineConfig{
		Thresholds: activation.DefaultThresholds(8),
		K:          10,
		Genetic:    activation.DefaultGeneticConfig(),
		Seed:       1,
	})

	alertManager := alerts.NewManager(logger, nil)

	serverConfig := cfg.Server.ToTypes()
	server := api.NewServer(logger, serverConfig, dataStore)

	// Prometheus collectors for the rate limiter, cache, execution and
	// position families, polled on an interval since most of these
	// components expose cumulative counters rather than per-event hooks.
	metricsRegistry := metrics.New()
	metricsPoller := metrics.NewPoller(metricsRegistry, 15*time.Second,
		func() (allowed, denied, errs int64) {
			s := limiter.Statistics()
			return s.Allowed, s.Denied, s.Errors
		},
		map[string]metrics.CacheStatsFunc{
			"core": func() (hits, misses, evictions int64) {
				s := cacheManager.Statistics()
				return s.Hits, s.Misses, s.Evictions
			},
		},
		func() (openCount int, realizedPnL float64) {
			t := positionManager.Totals("")
			rp, _ := t.TotalRealizedPnL.Float64()
			return t.OpenCount, rp
		},
	)
	go metricsPoller.Run(ctx)

	var metricsServer *http.Server
	if serverConfig.EnableMetrics {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metricsRegistry.Handler())
		metricsServer = &http.Server{
			Addr:    fmt.Sprintf(":%d", serverConfig.MetricsPort),
			Handler: mux,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	coreHandlers := api.NewCoreHandlers(logger, positionManager, activationEngine, alertManager)
	coreHandlers.RegisterRoutes(server.Router())

	executionHandlers := api.NewExecutionHandlers(logger, planner, router, qualityTracker, venueAdapter, limiter, cacheManager)
	executionHandlers.RegisterRoutes(server.Router())

	wsHub := api.NewHub(logger)
	go wsHub.Run()

	marketDataService.OnPrice(func(update data.PriceUpdate) {
		wsHub.PublishToChannel("prices:"+update.Symbol, api.MsgTypePnLUpdate, update)

		// C2: every live price tick marks open positions on the same
		// symbol to market, recomputing unrealized PnL and running
		// their trailing-stop/exit checks.
		for _, pos := range positionManager.OpenPositions(position.Filter{Symbol: update.Symbol}) {
			if _, _, err := positionManager.UpdatePrice(pos.PositionID, update.Price, time.Now()); err != nil {
				logger.Warn("position price update failed",
					zap.String("positionId", pos.PositionID), zap.Error(err))
			}
		}
	})

	go func() {
		for update := range orderManager.OrderUpdates() {
			if order := orderManager.GetOrder(update.OrderID); order != nil {
				wsHub.BroadcastOrderUpdate(order.Order)
			}
		}
	}()

	go func() {
		for event := range riskManager.Events() {
			wsHub.BroadcastRiskAlert(event)
			switch event.Type {
			case "kill_switch_activated", "manual_kill_switch":
				executor.ActivateKillSwitch()
				logger.Warn("executor kill switch activated on risk event",
					zap.String("type", event.Type), zap.String("message", event.Message))
			case "kill_switch_disabled":
				executor.DeactivateKillSwitch()
				logger.Info("executor kill switch deactivated on risk event", zap.String("type", event.Type))
			}
		}
	}()

	// C5: periodically re-evaluate every registered strategy's
	// activate/keep/deactivate decision against the latest regime
	// classified from each symbol's live kline window.
	activationCooldown := cfg.Activation.EvaluationCooldown
	if activationCooldown <= 0 {
		activationCooldown = 15 * time.Minute
	}
	go runActivationLoop(ctx, logger, activationEngine, marketDataService, marketDataConfig.Symbols, activationCooldown)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := marketDataService.Start(ctx); err != nil {
			logger.Error("market data service error", zap.Error(err))
		}
	}()

	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	logger.Info("server started",
		zap.String("ws", fmt.Sprintf("ws://%s:%d/ws", cfg.Server.Host, cfg.Server.Port)),
		zap.String("http", fmt.Sprintf("http://%s:%d/api/v1", cfg.Server.Host, cfg.Server.Port)),
		zap.Bool("paperTrading", cfg.Risk.PaperTrading),
	)

	<-sigChan
	logger.Info("shutdown signal received")
	cancel()

	if err := marketDataService.Stop(); err != nil {
		logger.Error("error stopping market data", zap.Error(err))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during metrics server shutdown", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// runActivationLoop re-evaluates every registered strategy's
// activate/keep/deactivate decision on cooldown, building a
// MarketConditions snapshot per symbol from the live kline cache. It
// runs one evaluation pass per symbol so strategies are compared
// against the regime of the market they actually trade.
func runActivationLoop(ctx context.Context, logger *zap.Logger, engine *activation.Engine, marketData *data.MarketDataService, symbols []string, cooldown time.Duration) {
	ticker := time.NewTicker(cooldown)
	defer ticker.Stop()

	const candleWindow = 64
	const interval = "1h"

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, symbol := range symbols {
				candles := marketData.CandlesToTypes(symbol, interval, candleWindow)
				if len(candles) == 0 {
					continue
				}
				conditions := activation.BuildConditions(candles, time.Now())
				decisions := engine.EvaluateAll(conditions, 0, 0, 0)
				logger.Info("activation evaluation pass",
					zap.String("symbol", symbol),
					zap.String("regime", string(conditions.Regime)),
					zap.Int("decisions", len(decisions)),
				)
			}
		}
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}

	return logger
}
