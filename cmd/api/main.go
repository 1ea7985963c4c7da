package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/visit-verification/internal/api/http"
	"github.com/spec-kit/visit-verification/internal/api/http/handlers"
	"github.com/spec-kit/visit-verification/internal/auth"
	"github.com/spec-kit/visit-verification/internal/clients"
	"github.com/spec-kit/visit-verification/internal/config"
	"github.com/spec-kit/visit-verification/internal/domain"
	"github.com/spec-kit/visit-verification/internal/events"
	"github.com/spec-kit/visit-verification/internal/observability"
	"github.com/spec-kit/visit-verification/internal/persistence"
	"github.com/spec-kit/visit-verification/internal/ratelimit"
	"github.com/spec-kit/visit-verification/internal/repository"
	"github.com/spec-kit/visit-verification/internal/repository/memory"
	"github.com/spec-kit/visit-verification/internal/service"
	"github.com/spec-kit/visit-verification/internal/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "visit-verification",
		Short: "OTP-gated hospital visit verification and claims service",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if cfg.Postgres.DSN == "" {
				return errors.New("POSTGRES_DSN is required for migrate")
			}
			ctx := cmd.Context()
			pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pg.Close()
			return persistence.RunMigrations(ctx, pg.PoolHandle(), logger)
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a member, hospital or admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			subject, _ := cmd.Flags().GetString("subject")
			role, _ := cmd.Flags().GetString("role")
			hospital, _ := cmd.Flags().GetString("hospital")
			if subject == "" {
				return errors.New("--subject is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)
			token, expiresAt, err := tokens.GenerateToken(subject, domain.Role(role), hospital)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().String("subject", "", "Subject id (membership number, staff id)")
	cmd.Flags().String("role", string(domain.RoleHospital), "MEMBER, HOSPITAL or ADMIN")
	cmd.Flags().String("hospital", "", "Hospital id, required for HOSPITAL tokens")
	return cmd
}

func bootstrap() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, logger, nil
}

func runServer() error {
	cfg, logger, err := bootstrap()
	if err != nil {
		log.Print(err)
		return err
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, cfg.App.Version, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = shutdownTracing(shutdownCtx)
	}()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if pg.Enabled() && cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	readiness := map[string]handlers.Pinger{}

	var store repository.Store
	var members repository.MemberRepository
	if pg.Enabled() {
		store = repository.NewPostgresStore(pg.PoolHandle())
		members = repository.NewMemberRepository(pg.PoolHandle())
		readiness["postgres"] = pg
	} else {
		logger.Warn("using in-memory store; state is lost on restart")
		store = memory.NewStore()
		directory := memory.NewMemberDirectory()
		if cfg.Membership.SeedFile != "" {
			raw, err := os.ReadFile(cfg.Membership.SeedFile)
			if err != nil {
				logger.Fatal("failed to read member seed file", zap.Error(err))
			}
			count, err := directory.LoadJSON(raw)
			if err != nil {
				logger.Fatal("failed to load member seed file", zap.Error(err))
			}
			logger.Info("seeded in-memory members", zap.Int("count", count))
		}
		members = directory
	}
	if cfg.Membership.BaseURL != "" {
		members = clients.NewMembershipClient(cfg.Membership, logger)
	}

	var limiter ratelimit.Limiter
	if cfg.Verification.RateLimitStore == "redis" {
		redis := persistence.NewRedis(cfg.Redis, logger)
		defer redis.Close()
		if redis.Available() || cfg.IsProduction() {
			limiter = ratelimit.NewRedisLimiter(redis.Client, "verification:issue:", cfg.Verification.IssueLimit, cfg.Verification.IssueWindow)
			readiness["redis"] = redis
		} else {
			logger.Warn("redis unreachable; issue rate limit is enforced per process")
		}
	}
	throttle := ratelimit.NewAttemptThrottle(cfg.Verification.AttemptsPerMin, cfg.Verification.AttemptBurst)
	sweep := []worker.Sweeper{throttle}
	if limiter == nil {
		memLimiter := ratelimit.NewMemoryLimiter(cfg.Verification.IssueLimit, cfg.Verification.IssueWindow)
		sweep = append(sweep, memLimiter)
		limiter = memLimiter
	}
	worker.StartLimiterSweeper(ctx, time.Minute, sweep...)

	metrics := observability.NewMetrics()
	dispatcher := events.NewInMemoryDispatcher()

	var webhook *service.WebhookSender
	var sender service.CodeSender = service.NewLogSender(logger)
	if cfg.Notification.WebhookURL != "" {
		webhook = service.NewWebhookSender(cfg.Notification.WebhookURL, cfg.Notification.Timeout)
		sender = webhook
	}

	refs, err := service.NewReferenceGenerator(cfg.App.NodeID)
	if err != nil {
		logger.Fatal("failed to init reference generator", zap.Error(err))
	}
	hasher := service.NewCodeHasher(cfg.Verification.CodeSecret)

	codeService := service.NewCodeService(service.CodeDependencies{
		Store:      store,
		Members:    members,
		Limiter:    limiter,
		Hasher:     hasher,
		Sender:     sender,
		Config:     cfg.Verification,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	visitService := service.NewVisitService(service.VisitDependencies{
		Store:      store,
		Members:    members,
		Ledger:     service.NewLedger(hasher),
		Throttle:   throttle,
		References: refs,
		Config:     cfg.Verification,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})
	claimService := service.NewClaimService(service.ClaimDependencies{
		Store:      store,
		References: refs,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	})

	worker.StartAuditWorker(service.NewAuditService(dispatcher, logger))
	worker.StartNotificationWorker(service.NewNotificationService(dispatcher, logger, cfg.Notification, webhook))

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	app := fiber.New()
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, readiness),
		Codes:          handlers.NewCodesHandler(codeService, nil, !cfg.IsProduction()),
		Visits:         handlers.NewVisitsHandler(visitService, nil),
		Claims:         handlers.NewClaimsHandler(claimService, nil),
		AuthMiddleware: auth.NewAuthMiddleware(tokens),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	return app.Shutdown()
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
