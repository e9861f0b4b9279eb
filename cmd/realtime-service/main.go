package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/weiawesome/wes-io-chat/internal/auth"
	"github.com/weiawesome/wes-io-chat/internal/config"
	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/internal/handler"
	"github.com/weiawesome/wes-io-chat/internal/hub"
	"github.com/weiawesome/wes-io-chat/internal/ingress"
	"github.com/weiawesome/wes-io-chat/internal/membership"
	"github.com/weiawesome/wes-io-chat/internal/presence"
	"github.com/weiawesome/wes-io-chat/internal/repository"
	"github.com/weiawesome/wes-io-chat/internal/service"
	"github.com/weiawesome/wes-io-chat/internal/typing"
	"github.com/weiawesome/wes-io-chat/pkg/database"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
	pkglog "github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/middleware"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		l := pkglog.L()
		l.Fatal().Err(err).Msg("failed to load config")
	}

	// Initialize structured logger
	pkglog.Init(pkglog.Config{
		Level:       cfg.Log.Level,
		Pretty:      cfg.Log.Pretty || cfg.Log.Level == "debug",
		ServiceName: cfg.Log.ServiceName,
	})
	logger := pkglog.L()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx = pkglog.WithLogger(ctx, logger)

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("realtime-service stopped with error")
	}
	logger.Info().Msg("realtime-service stopped")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	store, closeStore, err := openStore(cfg.Database, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tokens, err := jwt.NewManager(cfg.JWT)
	if err != nil {
		return fmt.Errorf("create jwt manager: %w", err)
	}

	bus, err := pubsub.NewPubSub(cfg.PubSub)
	if err != nil {
		return fmt.Errorf("create pubsub: %w", err)
	}
	defer bus.Close()
	logger.Info().Str("driver", cfg.PubSub.Driver).Msg("event bus ready")

	var mirror presence.Mirror = presence.NopMirror{}
	if cfg.Presence.MirrorEnabled {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		mirror = presence.NewRedisMirror(client, cfg.Presence.KeyPrefix)
		logger.Info().Str("addr", cfg.Redis.Address).Msg("presence mirror connected")
	}

	// Registries are process-local and rebuilt from zero on every start.
	members := membership.NewManager(store.Rooms, store.Memberships)
	svc := service.NewRealtimeService(service.Dependencies{
		Hub:        hub.NewHub(),
		Auth:       auth.NewAuthenticator(tokens, store.Users),
		Presence:   presence.NewRegistry(),
		Membership: members,
		Ingress:    ingress.NewPipeline(members, store.Rooms, store.Messages, bus, cfg.Chat.MaxMessageLength),
		Typing:     typing.NewTracker(members),
		Mirror:     mirror,
		Bus:        bus,
		Revoker:    tokens,
	})

	if err := svc.Start(ctx); err != nil {
		return fmt.Errorf("start realtime service: %w", err)
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(pkglog.GinMiddleware(logger))

	handler.NewWSHandler(svc, cfg.WebSocket).RegisterRoutes(r)
	handler.NewHTTPHandler(svc, middleware.NewAuthMiddleware(tokens)).RegisterRoutes(r)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: r,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().
			Str("addr", server.Addr).
			Str("driver", cfg.Database.Driver).
			Int("max_message_length", cfg.Chat.MaxMessageLength).
			Msg("realtime-service starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down realtime-service")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Hijacked WebSocket connections are not tracked by the server, so
		// close them explicitly.
		stopErr := svc.Stop()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return stopErr
	})

	return g.Wait()
}

// openStore returns the repositories for the configured driver. The memory
// driver starts empty and suits local experiments only.
func openStore(cfg config.DatabaseConfig, logger zerolog.Logger) (*repository.Store, func(), error) {
	if cfg.Driver == "memory" {
		logger.Warn().Msg("using in-memory store, no users can authenticate until seeded")
		return repository.NewMemoryStore(repository.NewMemoryRepository()), func() {}, nil
	}

	db, err := database.New(&cfg.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	if cfg.AutoMigrate {
		if err := database.AutoMigrate(db, domain.Models()...); err != nil {
			database.Close(db)
			return nil, nil, fmt.Errorf("auto-migrate: %w", err)
		}
		logger.Info().Msg("database migration completed")
	}
	logger.Info().Str("driver", cfg.Driver).Msg("database connected")

	return repository.NewGormStore(db), func() { database.Close(db) }, nil
}
