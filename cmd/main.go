package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"wager-settlement/internal/auth"
	"wager-settlement/internal/blockchain"
	"wager-settlement/internal/config"
	"wager-settlement/internal/database"
	"wager-settlement/internal/handlers"
	"wager-settlement/internal/jobs"
	"wager-settlement/internal/logger"
	"wager-settlement/internal/messaging"
	"wager-settlement/internal/metrics"
	"wager-settlement/internal/models"
	"wager-settlement/internal/repository"
	"wager-settlement/internal/services"
	"wager-settlement/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zlog, err := logger.New("wager-settlement", cfg.App.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()
	zap.ReplaceGlobals(zlog)

	if err := run(cfg, zlog); err != nil {
		zlog.Fatal("server exited with error", zap.Error(err))
	}
	zlog.Info("server exited")
}

func run(cfg *config.Config, zlog *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize JWT
	auth.InitJWT(cfg.App.JWTSecret)

	// Connect to database
	if err := database.Connect(cfg.Database.Driver, cfg.GetDSN()); err != nil {
		return err
	}
	if err := database.AutoMigrate(); err != nil {
		return err
	}
	repo := repository.NewRepository(database.GetDB())

	keys, err := blockchain.NewKeyring(cfg.App.CredentialSecret)
	if err != nil {
		return err
	}

	// Initialize Solana client
	solanaClient, err := blockchain.NewSolanaClient(
		cfg.Solana.RPCURL,
		cfg.Solana.Network,
		cfg.Solana.TokenMint,
		cfg.Solana.RPCRateLimit,
		zlog,
	)
	if err != nil {
		return err
	}

	watcher := newAccountWatcher(ctx, cfg, solanaClient, zlog)

	// Messaging: Kafka when brokers are configured, logs otherwise
	var (
		events   messaging.Publisher
		notifier messaging.Notifier
		consumer *messaging.DecisionConsumer
	)
	if cfg.KafkaEnabled() {
		eventWriter := messaging.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		decisionWriter := messaging.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.DecisionRequestTopic)
		defer func() { _ = eventWriter.Close() }()
		defer func() { _ = decisionWriter.Close() }()

		events = messaging.NewKafkaPublisher(eventWriter)
		notifier = messaging.NewKafkaNotifier(decisionWriter)
		reader := messaging.NewReader(cfg.Kafka.Brokers, cfg.Kafka.DecisionResponseTopic, cfg.Kafka.GroupID)
		defer func() { _ = reader.Close() }()
		consumer = &messaging.DecisionConsumer{
			Log:    zlog.Named("decision_consumer"),
			Reader: reader,
			// settlement errors are final; anything else is retried
			Final: func(err error) bool {
				_, ok := services.CodeOf(err)
				return ok
			},
			OnError: func(stage string) {
				metrics.DecisionConsumerErrors.WithLabelValues(stage).Inc()
			},
		}
	} else {
		events = messaging.NewLogPublisher(zlog)
		notifier = messaging.NewLogNotifier(zlog)
	}

	// Draft sessions: Redis when configured, in-process otherwise
	var drafts session.Store
	if cfg.Redis.Addr != "" {
		client, err := session.ConnectRedis(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()
		drafts = session.NewRedisStore(client, "wager-settlement:")
	} else {
		zlog.Warn("redis not configured, wager drafts are kept in memory")
		drafts = session.NewMemoryStore()
	}

	// Initialize services
	balanceReconciler := services.NewBalanceReconciler(repo, solanaClient, watcher, zlog.Named("balance_reconciler"))
	wagerService := services.NewWagerService(repo, keys, events, zlog.Named("wagers"))
	betLedger := services.NewBetLedger(repo, wagerService, services.MaxStake(cfg.Solana.TokenDecimals))
	transferService := services.NewTransferService(
		repo,
		betLedger,
		solanaClient,
		keys,
		balanceReconciler,
		events,
		cfg.Settlement.TransferTimeout,
		zlog.Named("transfers"),
	)
	transferReconciler := services.NewTransferReconciler(
		repo,
		solanaClient,
		betLedger,
		balanceReconciler,
		events,
		cfg.Settlement.PendingGrace,
		cfg.Settlement.PendingExpiry,
		zlog.Named("transfer_reconciler"),
	)
	accountService := services.NewAccountService(repo, keys, balanceReconciler, zlog.Named("accounts"))
	draftService := services.NewDraftService(drafts, wagerService, cfg.Redis.SessionTTL, zlog.Named("drafts"))

	if consumer != nil {
		consumer.Handle = func(ctx context.Context, wagerID uuid.UUID, responderID int64, side models.Side) error {
			_, err := wagerService.AssignWinner(ctx, wagerID, responderID, side)
			return err
		}
	}

	// Background jobs
	lifecycle := jobs.NewLifecycleScheduler(wagerService, notifier, cfg.Solana.TokenDecimals, cfg.Settlement.SchedulerInterval, zlog.Named("lifecycle"))
	pendingJob := jobs.NewPendingTransferJob(transferReconciler, cfg.Settlement.PendingSweepInterval, zlog.Named("pending_transfers"))

	metricsServer := metrics.StartMetricsServer(cfg.Server.MetricsPort, repo.Ping)

	// Setup Gin router
	if cfg.App.Env != "local" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	handlers.RegisterRoutes(router, handlers.Handlers{
		Health:   handlers.NewHealthHandler(repo, solanaClient),
		Accounts: handlers.NewAccountHandler(accountService, transferService, cfg.Solana.TokenDecimals, zlog),
		Wagers:   handlers.NewWagerHandler(wagerService, zlog),
		Bets:     handlers.NewBetHandler(transferService, betLedger, cfg.Solana.TokenDecimals, zlog),
		Drafts:   handlers.NewDraftHandler(draftService, zlog),
	}, auth.AuthMiddleware(zlog))

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return balanceReconciler.Start(gctx)
	})
	g.Go(func() error {
		lifecycle.Start(gctx)
		return nil
	})
	g.Go(func() error {
		pendingJob.Start(gctx)
		return nil
	})
	if consumer != nil {
		g.Go(func() error {
			if err := consumer.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	g.Go(func() error {
		zlog.Info("server starting",
			zap.String("port", cfg.Server.Port),
			zap.String("metrics_port", cfg.Server.MetricsPort),
			zap.Bool("kafka", cfg.KafkaEnabled()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		zlog.Info("shutting down server")

		// Graceful shutdown with 5 second timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		lifecycle.Stop()
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			zlog.Warn("metrics server shutdown failed", zap.Error(err))
		}
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// newAccountWatcher prefers websocket subscriptions and falls back to polling
func newAccountWatcher(ctx context.Context, cfg *config.Config, client *blockchain.SolanaClient, zlog *zap.Logger) blockchain.AccountWatcher {
	if cfg.Solana.WatchMode == config.WatchModeSubscribe {
		watcher, err := blockchain.NewSubscriptionWatcher(ctx, cfg.Solana.WSURL, zlog)
		if err == nil {
			return watcher
		}
		zlog.Warn("websocket unavailable, falling back to polling", zap.Error(err))
	}
	return blockchain.NewPollingWatcher(client, cfg.Solana.PollInterval, cfg.Solana.RPCRateLimit, zlog)
}
