package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"proquiz-service/internal/app"
	"proquiz-service/internal/auth"
	"proquiz-service/internal/config"
	"proquiz-service/internal/infra/memory"
	"proquiz-service/internal/infra/postgres"
	redisinfra "proquiz-service/internal/infra/redis"
	"proquiz-service/internal/logging"
	transport "proquiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// storeBackend is the storage side of the service: the transactional
// store plus the loader the question cache falls back to.
type storeBackend interface {
	app.Store
	memory.QuestionLoader
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var backend storeBackend = memory.NewStore()
	if cfg.Postgres.URL != "" {
		if err := RunMigrations(ctx, cfg.Postgres.URL, log); err != nil {
			return err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		backend = postgres.NewStore(pool)
		log.Info().Msg("using postgres store")
	} else {
		log.Warn().Msg("postgres not configured, state is kept in memory")
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		questions app.QuestionSource
		notifier  app.Notifier
	)
	if cfg.Redis.Addr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		questions = redisinfra.NewQuestionCache(redisClient, backend, quizTTL, log)
		notifier = redisinfra.NewNotifier(redisClient, log)
		log.Info().Str("addr", cfg.Redis.Addr).Msg("using redis cache and notifier")
	} else {
		questions = memory.NewQuestionCache(backend, quizTTL)
		notifier = memory.NewHub()
	}

	service := app.NewService(backend, questions,
		app.WithNotifier(notifier),
		app.WithLogger(log),
	)

	secret := cfg.Auth.SessionSecret
	if secret == "" {
		return errors.New("auth.session_secret (SESSION_SECRET) must be set")
	}
	sessions := auth.NewSessions(secret, config.TTLDuration(cfg.Auth.SessionTTL, 12*time.Hour))
	superAdmin := auth.NewSuperAdmin(cfg.Auth.SuperAdminUsername, cfg.Auth.SuperAdminPINHash)
	if cfg.Auth.SuperAdminPINHash == "" {
		log.Warn().Msg("super admin pin hash not configured, admin login is disabled")
	}

	links := transport.NewJoinLinks(cfg.Server.PublicURL, finalPort)
	handler := transport.NewHandler(service, sessions, superAdmin, links, log)
	wsHandler := transport.NewWSHandler(service, log)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(handler, wsHandler, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Str("join_base", links.Base()).Msg("starting quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	return waitForShutdown(ctx, server, log)
}

func waitForShutdown(ctx context.Context, server *http.Server, log zerolog.Logger) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
