package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"polytrade/internal/api"
	"polytrade/internal/bot"
	"polytrade/internal/config"
	"polytrade/internal/exchange"
	"polytrade/internal/repository"
	"polytrade/internal/service"
	"polytrade/internal/websocket"
	"polytrade/pkg/crypto"
	"polytrade/pkg/retry"
	"polytrade/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      cfg.Logging.Output,
		Development: cfg.Logging.Development,
	})
	defer logger.Sync()

	db, err := initDatabase(cfg)
	if err != nil {
		logger.Fatal("failed to connect to database", utils.Err(err))
	}
	defer db.Close()

	logger.Info("connected to database",
		utils.String("host", cfg.Database.Host),
		utils.String("name", cfg.Database.Name),
	)

	accountRepo := repository.NewAccountRepository(db)
	if err := accountRepo.Migrate(); err != nil {
		logger.Fatal("failed to migrate accounts table", utils.Err(err))
	}

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		logger.Fatal("invalid encryption key", utils.Err(err))
	}
	vault, err := crypto.NewVault(key)
	if err != nil {
		logger.Fatal("failed to init vault", utils.Err(err))
	}

	factory := exchange.NewFactory(exchange.FactoryConfig{
		RateLimit: cfg.Exchange.RateLimit,
		RateBurst: cfg.Exchange.RateBurst,
		InfoTTL:   cfg.Exchange.InfoTTL,

		StreamReadTimeout: cfg.Bot.StreamReadTimeout,
	})

	// Сервисы и торговое ядро
	accountService := service.NewAccountService(accountRepo, vault, factory)

	bus := bot.NewEventBus()
	fetcher := bot.NewSnapshotFetcher()
	manager := bot.NewManager(accountService, bus, fetcher, bot.ManagerConfig{
		RestartSettle:  cfg.Bot.RestartSettle,
		ReconnectDelay: cfg.Bot.StreamReconnectDelay,
	})

	tradeService := service.NewTradeService(
		accountService,
		bot.NewOrderExecutor(cfg.Bot),
		fetcher,
		manager,
	)
	marketService := service.NewMarketService(factory, cfg.Exchange.Testnet)

	// WebSocket hub получает события шины торгового ядра
	websocket.SetAllowedOrigins(cfg.Server.AllowedOrigins)
	hub := websocket.NewHub()
	go hub.Run()

	rootCtx, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	go hub.Forward(rootCtx, bus, cfg.Bot.EventBuffer)

	if cfg.Bot.BalanceUpdateFreq > 0 {
		accountService.StartBalanceUpdater(rootCtx, cfg.Bot.BalanceUpdateFreq)
	}

	router := api.SetupRoutes(&api.Dependencies{
		AccountService:  accountService,
		TradeService:    tradeService,
		MarketService:   marketService,
		Hub:             hub,
		AppUser:         cfg.Security.AppUser,
		AppPasswordHash: cfg.Security.AppPasswordHash,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second, // пакет ног с паузой SETTLE_DELAY
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server",
			utils.String("addr", server.Addr),
			utils.Bool("https", cfg.Server.UseHTTPS),
		)
		var err error
		if cfg.Server.UseHTTPS {
			err = server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", utils.Err(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutting down server", utils.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", utils.Err(err))
	}

	// Сначала воркеры, чтобы они не писали в закрытую шину
	manager.StopAll()
	stopBackground()
	hub.Stop()
	bus.Close()
	exchange.CloseGlobalClient()

	logger.Info("server exited")
}

// initDatabase создает подключение к базе данных
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Postgres в compose может подниматься дольше сервера
	cfgRetry := retry.StartupConfig()
	attempt := 0
	cfgRetry.OnRetry = func(err error, delay time.Duration) {
		attempt++
		utils.L().Warn("database is not ready",
			utils.Int("attempt", attempt),
			utils.Duration("retry_in", delay),
			utils.Err(err),
		)
	}

	err = retry.Do(context.Background(), func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return db.PingContext(ctx)
	}, cfgRetry)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
