package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitos/crypto_market_maker/internal/config"
	"github.com/vitos/crypto_market_maker/internal/domain"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/exchange"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/lock"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/logger"
	"github.com/vitos/crypto_market_maker/internal/infrastructure/storage"
	"github.com/vitos/crypto_market_maker/internal/usecase"
	"github.com/vitos/crypto_market_maker/internal/web"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	flag.Parse()

	// 1. Load Config
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid config: %v\n", err)
		os.Exit(1)
	}

	// 2. Init Logger
	log, err := logger.NewLogger(cfg.Logging.Level)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	redacted := cfg.Redacted()
	log.Info("Config loaded",
		zap.String("path", *configPath),
		zap.String("exchange", redacted.Exchange.Name),
		zap.String("api_key", redacted.Exchange.APIKey),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Int("symbols", len(cfg.EnabledSymbols())),
		zap.Duration("interval", cfg.PollInterval()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Init Storage
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		log.Fatal("Failed to init sqlite", zap.Error(err))
	}
	defer store.Close()

	// 4. Init Exchange (Binance spot)
	adapter := exchange.NewBinanceAdapter(cfg.Exchange.APIKey, cfg.Exchange.APISecret, cfg.Exchange.RESTEndpoint, log)
	if cfg.Exchange.DepthStream {
		stream := exchange.NewDepthStream(cfg.Exchange.WSEndpoint, log)
		symbols := make([]string, 0, len(cfg.Symbols))
		for _, sc := range cfg.EnabledSymbols() {
			symbols = append(symbols, sc.Symbol)
		}
		go stream.Run(ctx, symbols)
		adapter.WithDepthStream(stream, cfg.Exchange.DepthMaxAge)
	}

	// 5. Init Locking
	var locker domain.Locker = lock.NewLocalLocker()
	if cfg.Redis.Addr != "" {
		rdb, err := lock.NewRedisClient(ctx, lock.RedisConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		locker = lock.NewRedisLocker(rdb)
		log.Info("Using redis symbol locks", zap.String("addr", cfg.Redis.Addr))
	}

	// 6. Init Services
	engine := usecase.NewQuotingEngine(nil, log)
	driver := usecase.NewStrategyDriver(adapter, store, locker, engine, usecase.DriverConfig{
		DryRun:      cfg.DryRun,
		CallTimeout: cfg.Exchange.CallTimeout,
		LockTTL:     cfg.Redis.LockTTL,
	}, log)

	if cfg.Logging.JournalPath != "" {
		journal, err := logger.NewFileLogger(cfg.Logging.JournalPath, "info")
		if err != nil {
			log.Error("Failed to init action journal, using default", zap.Error(err))
		} else {
			defer journal.Sync()
			driver.SetActionLogger(journal)
		}
	}

	scheduler := usecase.NewScheduler(driver, cfg.EnabledSymbols(), cfg.PollInterval(), log)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal("Failed to start scheduler", zap.Error(err))
	}

	// 7. Start Server
	server := web.NewServer(cfg.Server.Port, driver, store, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Error("Server failed", zap.Error(err))
			stop()
		}
	}()

	// 8. Wait for Shutdown
	<-ctx.Done()

	log.Info("Shutting down...")
	scheduler.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}
}
