package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-telegram/bot"
	"golang.org/x/sync/errgroup"

	faucetclaim "github.com/BernardOnuh/faucet-claim"
	"github.com/BernardOnuh/faucet-claim/internal/config"
	"github.com/BernardOnuh/faucet-claim/internal/handler"
	"github.com/BernardOnuh/faucet-claim/internal/middleware"
	"github.com/BernardOnuh/faucet-claim/internal/notify"
	"github.com/BernardOnuh/faucet-claim/internal/payout"
	"github.com/BernardOnuh/faucet-claim/internal/repository"
	"github.com/BernardOnuh/faucet-claim/internal/repository/sqlc"
	"github.com/BernardOnuh/faucet-claim/internal/seed"
	"github.com/BernardOnuh/faucet-claim/internal/service"
	"github.com/BernardOnuh/faucet-claim/internal/socialgraph"
	"github.com/BernardOnuh/faucet-claim/internal/telegram"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
	slog.SetDefault(logger)

	// Setup context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Storage
	var (
		tasks  repository.TaskStore
		ledger repository.ParticipationLedger
	)
	switch cfg.Storage {
	case config.StorageMemory:
		tasks = repository.NewMemoryTaskStore()
		ledger = repository.NewMemoryLedger()
		slog.Warn("using in-memory storage, state is lost on restart")
	default:
		pool, err := repository.NewPool(ctx, cfg.DatabaseURL, repository.PoolOptions{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			slog.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer pool.Close()

		migrationsFS, err := fs.Sub(faucetclaim.MigrationsFS, "migrations")
		if err != nil {
			slog.Error("failed to load embedded migrations", "error", err)
			os.Exit(1)
		}
		if err := repository.RunMigrations(cfg.DatabaseURL, migrationsFS); err != nil {
			slog.Error("failed to run migrations", "error", err)
			os.Exit(1)
		}

		queries := sqlc.New(pool)
		tasks = repository.NewPostgresTaskStore(queries)
		ledger = repository.NewPostgresLedger(pool, queries)
	}

	// Social graph
	var checker socialgraph.Checker
	if cfg.SocialGraphAPIKey != "" {
		checker = socialgraph.NewNeynarClient(cfg.SocialGraphURL, cfg.SocialGraphAPIKey, cfg.SocialGraphRPS, cfg.SocialGraphTimeout)
	} else if cfg.Storage == config.StorageMemory {
		checker = socialgraph.Static{Outcome: socialgraph.Satisfied}
		slog.Warn("SOCIAL_GRAPH_API_KEY not set, every action is treated as performed")
	} else {
		slog.Error("SOCIAL_GRAPH_API_KEY is required for postgres storage")
		os.Exit(1)
	}

	// Payout rail
	var rail payout.Rail
	if cfg.PayoutMerchantID != "" && cfg.PayoutAPIKey != "" {
		rail = payout.NewCryptomusRail(payout.CryptomusConfig{
			BaseURL:    cfg.PayoutURL,
			MerchantID: cfg.PayoutMerchantID,
			APIKey:     cfg.PayoutAPIKey,
			Currency:   cfg.PayoutCurrency,
			Network:    cfg.PayoutNetwork,
			Timeout:    cfg.PayoutTimeout,
		})
	} else {
		rail = payout.NewSandbox(time.Now)
		slog.Warn("payout credentials not set, using sandbox rail")
	}

	// Notifications
	hub := notify.NewHub(config.SubscriberBuffer)
	publishers := notify.Multi{hub}
	if cfg.NATSURL != "" {
		nc, err := notify.ConnectNATS(cfg.NATSURL, "task-reward-engine")
		if err != nil {
			slog.Error("failed to connect to nats", "error", err)
			os.Exit(1)
		}
		defer nc.Drain()
		publishers = append(publishers, notify.NewNATSPublisher(nc, cfg.NATSSubjectPrefix))
	}

	// Ops alerts
	var opsBot *bot.Bot
	if cfg.OpsAlertsEnabled() {
		opsBot, err = telegram.NewOpsBot(cfg.OpsBotToken)
		if err != nil {
			slog.Error("failed to create ops bot", "error", err)
			os.Exit(1)
		}
	}
	alerts := telegram.NewOpsLogger(opsBot, cfg)

	// Initialize services
	settlement := service.NewClaimSettlement(tasks, ledger, rail, publishers, alerts, cfg.PayoutTimeout, cfg.ReconcileAfter)
	verifier := service.NewVerificationCoordinator(tasks, ledger, checker, publishers, alerts, service.VerificationPolicy{
		MaxAttempts:  cfg.VerifyMaxAttempts,
		BackoffBase:  cfg.VerifyBackoffBase,
		BackoffMax:   cfg.VerifyBackoffMax,
		Grace:        cfg.VerifyGrace,
		CheckTimeout: cfg.SocialGraphTimeout,
		Concurrency:  cfg.VerifyConcurrency,
		BatchSize:    cfg.VerifyBatchSize,
	})
	expiry := service.NewExpirySweeper(tasks, publishers)
	engine := service.NewTaskEngine(service.EngineDeps{
		Tasks:      tasks,
		Ledger:     ledger,
		Settlement: settlement,
		Events:     publishers,
		Hub:        hub,
		Alerts:     alerts,
	})

	// Seed tasks
	if cfg.SeedFile != "" {
		f, err := seed.Load(cfg.SeedFile)
		if err != nil {
			slog.Error("failed to load seed file", "path", cfg.SeedFile, "error", err)
			os.Exit(1)
		}
		n, err := seed.Apply(ctx, engine, f, time.Now())
		if err != nil {
			slog.Error("failed to seed tasks", "created", n, "error", err)
			os.Exit(1)
		}
		slog.Info("seeded tasks", "count", n)
	}

	// Initialize handler
	h := handler.New(handler.Deps{
		Cfg:     cfg,
		Engine:  engine,
		Limiter: middleware.NewRateLimiter(config.RateLimitPerMinute, config.RateLimitBurst),
	})
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Routes(),
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		// Event streams end when the process is told to stop.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)

	// Background sweeps
	g.Go(func() error {
		verifier.Run(gctx, cfg.VerifyInterval)
		return nil
	})
	g.Go(func() error {
		expiry.Run(gctx, cfg.ExpirySweepInterval)
		return nil
	})
	g.Go(func() error {
		settlement.RunReconcile(gctx, cfg.ReconcileInterval)
		return nil
	})

	// Start HTTP server
	g.Go(func() error {
		slog.Info("starting http server", "addr", cfg.HTTPAddr, "storage", cfg.Storage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("engine stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("engine stopped gracefully")
}
