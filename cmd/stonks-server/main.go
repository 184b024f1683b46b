package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stonks/internal/advisor"
	"stonks/internal/broker"
	"stonks/internal/config"
	"stonks/internal/engine"
	"stonks/internal/events"
	"stonks/internal/httpapi"
	"stonks/internal/marketdata"
	"stonks/internal/session"
	"stonks/internal/store"
	"stonks/internal/util"
)

func main() {
	// Auto-load .env if present; existing env vars win.
	godotenv.Load()

	var cfg *config.Config
	var err error
	if p := os.Getenv("STONKS_CONFIG"); p != "" {
		cfg, err = config.Load(p)
		if err != nil {
			log.Fatalf("loading config: %v", err)
		}
	} else {
		cfg = config.Default()
	}

	logger := util.NewLogger(cfg.Logging.Level)
	slog.SetDefault(logger)

	clock, err := session.NewClock()
	if err != nil {
		log.Fatalf("loading market timezone: %v", err)
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	journal, err := store.NewSQLiteJournal(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening journal: %v", err)
	}
	defer journal.Close()
	archive := store.NewParquetArchive(cfg.Storage.DataDir)

	var exec broker.Broker
	switch cfg.Trading.Executor {
	case "alpaca":
		exec = broker.NewAlpacaBroker(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.BaseURL)
	case "simulator":
		exec = broker.NewSimulator()
	}
	if exec != nil {
		logger.Info("executor configured", "broker", exec.Name())
	} else {
		logger.Info("no executor configured, running advisory-only")
	}

	bus := events.NewBus()
	mgr := engine.NewManager(exec, journal, bus, engine.Limits{
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
	}, logger)

	risk := engine.NewRiskEngine(cfg.Risk.AccountSize, cfg.Risk.MaxRiskPerTrade, cfg.Risk.MaxDailyRisk)

	data := marketdata.NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, marketdata.Config{
		Underlying:      cfg.Trading.Underlying,
		OptionRoot:      cfg.Trading.OptionRoot,
		ProxySymbol:     cfg.Trading.ProxySymbol,
		ProxyMultiplier: cfg.Trading.ProxyMultiplier,
	})

	adv, err := advisor.New(cfg.Advisor.APIKey, cfg.Advisor.Model, cfg.Advisor.BaseURL, logger)
	if err != nil {
		log.Fatalf("initializing advisor: %v", err)
	}
	var advForProcessor engine.Advisor
	if adv != nil {
		advForProcessor = adv
		logger.Info("advisor enabled", "model", cfg.Advisor.Model)
	}

	suggester := engine.NewSuggester(risk, clock)
	processor := engine.NewProcessor(clock, data, suggester, mgr, advForProcessor, logger)

	monitor := engine.NewMonitor(mgr, exec, clock, risk, archive, logger)
	if cfg.Trading.MonitorInterval > 0 {
		monitor.SetInterval(time.Duration(cfg.Trading.MonitorInterval) * time.Second)
	}
	if cfg.Trading.AutoExit != nil && !*cfg.Trading.AutoExit {
		monitor.SetAutoExit(false)
		logger.Warn("auto-exit disabled, positions will not be flattened automatically")
	}

	srv := httpapi.NewServer(clock, processor, mgr, bus, exec, archive,
		adv, cfg.Server.WebhookPassphrase, logger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: srv.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go monitor.Run(ctx)

	go func() {
		logger.Info("stonks-server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down stonks-server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
