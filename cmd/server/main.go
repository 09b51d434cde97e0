// cmd/server/main.go
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

	"booking-payment-service/config"
	"booking-payment-service/internal/handler"
	"booking-payment-service/internal/ledger"
	"booking-payment-service/internal/pub"
	"booking-payment-service/internal/repository"
	"booking-payment-service/internal/router"
	"booking-payment-service/internal/server"
	"booking-payment-service/internal/usecase"
	"booking-payment-service/internal/worker"
	"booking-payment-service/pkg/cache"
	"booking-payment-service/pkg/client"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	logger, err := newLogger(os.Getenv("ENVIRONMENT"))
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("starting booking payment service")

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Stores
	var (
		txRepo      repository.TransactionRepository
		balanceRepo repository.BalanceRepository
	)
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory stores, data is lost on restart")
		txRepo = repository.NewMemoryTransactionRepository()
		balanceRepo = repository.NewMemoryBalanceRepository()
	default:
		paymentsDB := mustConnect(ctx, cfg, cfg.Database, repository.PaymentsMigrations(), logger)
		defer paymentsDB.Close()
		txRepo = repository.NewTransactionRepository(paymentsDB)

		if cfg.Ledger.Mode == config.LedgerModeLocal {
			ledgerDB := paymentsDB
			if cfg.LedgerDatabase.DSN() != cfg.Database.DSN() {
				ledgerDB = mustConnect(ctx, cfg, cfg.LedgerDatabase, nil, logger)
				defer ledgerDB.Close()
			}
			if cfg.MigrateOnStart {
				if err := repository.Migrate(ctx, ledgerDB, repository.LedgerMigrations()); err != nil {
					logger.Fatal("failed to migrate ledger database", zap.Error(err))
				}
			}
			balanceRepo = repository.NewBalanceRepository(ledgerDB)
		}
	}

	// Ledger-of-record: owned here or reached over HTTP
	var (
		creditLedger  usecase.CreditLedgerClient
		balanceLedger usecase.BalanceLedger
		ledgerHandler *handler.LedgerHandler
	)
	if cfg.Ledger.Mode == config.LedgerModeLocal {
		svc := ledger.NewService(balanceRepo, logger)
		creditLedger, balanceLedger = svc, svc
		if cfg.Ledger.APISecret != "" {
			ledgerHandler = handler.NewLedgerHandler(svc, cfg.Ledger.APIKey, cfg.Ledger.APISecret, logger)
		}
	} else {
		lc := client.NewLedgerClient(cfg.Ledger, logger)
		creditLedger, balanceLedger = lc, lc
		logger.Info("using remote ledger", zap.String("url", cfg.Ledger.URL))
	}

	// Redis
	var (
		balanceCache usecase.BalanceCache
		billCache    usecase.BillCache
		locker       usecase.Locker
	)
	if cfg.Redis.Enabled {
		cs, err := cache.NewCacheService(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Warn("redis unavailable, continuing without cache", zap.Error(err))
		} else {
			defer cs.Close()
			balanceCache, billCache, locker = cs, cs, cs
		}
	}

	// Kafka
	var publisher usecase.EventPublisher = pub.NewLogPublisher(logger)
	if cfg.Kafka.Enabled {
		kp := pub.NewKafkaPublisher(pub.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger), cfg.Kafka.Topic, logger)
		defer kp.Close()
		publisher = kp
	}

	var users usecase.UserDirectory
	if cfg.UserService.URL != "" {
		users = client.NewUserClient(cfg.UserService, logger)
	}

	// Usecases
	paymentUC := usecase.NewPaymentUsecase(
		txRepo,
		creditLedger,
		publisher,
		balanceCache,
		billCache,
		usecase.PaymentConfig{
			LedgerTimeout:   cfg.Ledger.Timeout,
			FinalizeTimeout: cfg.Ledger.FinalizeTimeout,
			UnitPrice:       cfg.Billing.UnitPrice,
			Currency:        cfg.Billing.Currency,
		},
		logger,
	)
	balanceUC := usecase.NewBalanceUsecase(balanceLedger, balanceCache, users, cfg.Redis.CacheTTL, logger)
	reconcileUC := usecase.NewReconcileUsecase(
		txRepo,
		creditLedger,
		paymentUC,
		locker,
		usecase.ReconcileConfig{
			StaleAfter:    cfg.Reconciler.StaleAfter,
			BatchSize:     cfg.Reconciler.BatchSize,
			LockTTL:       cfg.Reconciler.LockTTL,
			LookupTimeout: cfg.Ledger.Timeout,
		},
		logger,
	)

	var reconciler *worker.ReconcileWorker
	if cfg.Reconciler.Enabled {
		reconciler = worker.NewReconcileWorker(reconcileUC, cfg.Reconciler.Interval, logger)
		go reconciler.Start(ctx)
	}

	// HTTP
	r := router.SetupRoutes(
		handler.NewPaymentHandler(paymentUC, logger),
		handler.NewBalanceHandler(balanceUC, logger),
		ledgerHandler,
		logger,
	)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("failed to start http server", zap.Error(err))
		}
	}()

	// gRPC health
	grpcServer := server.NewHealthServer(cfg.Server.GRPCAddr, logger)
	go func() {
		if err := grpcServer.Serve(); err != nil {
			logger.Error("grpc server stopped", zap.Error(err))
		}
	}()
	grpcServer.SetServing(true)

	logger.Info("booking payment service started",
		zap.String("port", cfg.Server.Port),
		zap.String("grpc_addr", cfg.Server.GRPCAddr),
		zap.String("environment", cfg.Server.Env))

	<-ctx.Done()
	logger.Info("shutting down...")
	grpcServer.SetServing(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server forced to shutdown", zap.Error(err))
	}
	if reconciler != nil {
		reconciler.Stop()
	}
	grpcServer.Stop()

	logger.Info("server stopped")
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "" || env == "development" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func mustConnect(ctx context.Context, cfg *config.Config, db config.DatabaseConfig, migrations []string, logger *zap.Logger) *pgxpool.Pool {
	pool, err := config.ConnectDB(ctx, db, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.String("database", db.DBName), zap.Error(err))
	}
	if cfg.MigrateOnStart && len(migrations) > 0 {
		if err := repository.Migrate(ctx, pool, migrations); err != nil {
			logger.Fatal("failed to migrate database", zap.String("database", db.DBName), zap.Error(err))
		}
	}
	return pool
}
