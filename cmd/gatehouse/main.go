package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"gatehouse/config"
	"gatehouse/internal/delivery"
	"gatehouse/internal/delivery/http"
	"gatehouse/internal/delivery/http/middleware"
	"gatehouse/internal/delivery/http/router/handler"
	"gatehouse/internal/infra/auth"
	logs "gatehouse/internal/infra/log"
	"gatehouse/internal/infra/persistence/memory"
	"gatehouse/internal/infra/persistence/postgres"
	redisinfra "gatehouse/internal/infra/persistence/redis"
	"gatehouse/internal/usecase"
	"gatehouse/internal/usecase/impl"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

type startServerParams struct {
	fx.In
	fx.Lifecycle

	Deliveries []delivery.Delivery `group:"deliveries"`
}

func main() {
	// Missing .env is fine; config falls back to yaml plus real env vars.
	_ = godotenv.Load()

	cfg, err := config.New()
	if err != nil {
		slog.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	fx.New(
		fx.Supply(cfg),
		injectInfra(),
		injectRepo(cfg),
		injectService(),
		injectUsecase(),
		injectDelivery(),
		injectMiddleware(),
		injectHandler(),
		fx.Invoke(
			startServer,
			startSessionCleanup,
		),
	).Run()
}

func injectInfra() fx.Option {
	return fx.Provide(
		logs.New,
		context.Background,
		postgres.New,
	)
}

// injectRepo wires the relational repositories and picks the session store
// backend from config. Users and credentials always live in Postgres; only
// the session repository is swappable.
func injectRepo(cfg *config.Config) fx.Option {
	options := []fx.Option{
		fx.Provide(
			postgres.NewUserRepository,
			postgres.NewCredentialRepository,
			postgres.NewTransactionManager,
		),
	}

	switch cfg.Auth.SessionStore {
	case "redis":
		options = append(options, fx.Provide(
			redisinfra.New,
			redisinfra.NewSessionRepository,
		))
	case "memory":
		options = append(options, fx.Provide(
			memory.NewStore,
			memory.NewSessionRepository,
		))
	default:
		options = append(options, fx.Provide(
			postgres.NewSessionRepository,
		))
	}

	return fx.Options(options...)
}

func injectService() fx.Option {
	return fx.Options(
		fx.Provide(
			auth.NewBcryptHasher,
			auth.NewTokenService,
		),
	)
}

func injectUsecase() fx.Option {
	return fx.Options(
		fx.Provide(
			impl.NewAuthService,
			impl.NewSessionService,
		),
	)
}

func injectMiddleware() fx.Option {
	return fx.Options(
		fx.Provide(
			middleware.NewAuthMiddleware,
			middleware.NewErrorMiddleware,
			middleware.NewRequestIDMiddleware,
		),
	)
}

func injectHandler() fx.Option {
	return fx.Options(
		fx.Provide(
			handler.NewAuthHandler,
			handler.NewSessionHandler,
		),
	)
}

func injectDelivery() fx.Option {
	return fx.Options(
		fx.Provide(
			fx.Annotate(
				http.NewServer,
				fx.ResultTags(`group:"deliveries"`),
			),
		),
	)
}

func startServer(ctx context.Context, params startServerParams) {
	for _, delivery := range params.Deliveries {
		go func() {
			if err := delivery.Serve(ctx); err != nil {
				slog.Error("Failed to start server", slog.Any("error", err))
				os.Exit(1)
			}
		}()
	}
}

type sessionCleanupParams struct {
	fx.In
	fx.Lifecycle

	Config    *config.Config
	Logger    *slog.Logger
	SessionUC usecase.SessionUsecase
}

// startSessionCleanup purges expired sessions on a fixed interval. A zero or
// negative interval disables the loop; Redis reaps via key TTLs on its own,
// but the sweep is still useful for the relational backends.
func startSessionCleanup(params sessionCleanupParams) {
	interval := params.Config.Auth.CleanupInterval
	if interval <= 0 {
		params.Logger.Info("Session cleanup loop disabled")

		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	params.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			go runSessionCleanup(ctx, params, interval, done)

			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}

func runSessionCleanup(ctx context.Context, params sessionCleanupParams, interval time.Duration, done chan<- struct{}) {
	defer close(done)

	params.Logger.Info("Session cleanup loop started", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			deleted, err := params.SessionUC.CleanupExpired(ctx)
			if err != nil {
				params.Logger.Error("Session cleanup failed", slog.Any("error", err))

				continue
			}

			if deleted > 0 {
				params.Logger.Info("Expired sessions removed", slog.Int("count", deleted))
			}
		}
	}
}
