package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"live-quiz-service/internal/app"
	"live-quiz-service/internal/config"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	"live-quiz-service/internal/infra/postgres"
	redisstore "live-quiz-service/internal/infra/redis"
	transport "live-quiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServer(ctx, *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := newLogger(os.Stdout, cfg)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	checks := map[string]transport.Checker{}

	// --- Redis ---
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("pinging redis: %w", err)
		}
		checks["redis"] = transport.CheckFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
		logger.Info("connected to redis", "addr", cfg.Redis.Addr)
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 6*time.Hour)

	// --- Postgres ---
	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	var opts []app.Option
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer pool.Close()
		loader = postgres.NewQuizLoader(pool)
		checks["postgres"] = transport.CheckFunc(pool.Ping)

		db := openBun(cfg.Postgres.URL)
		defer db.Close()
		opts = append(opts, app.WithArchive(postgres.NewArchiveStore(db)))
		logger.Info("connected to postgres")
	}

	// --- Stores ---
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		quizRepo     app.QuizRepository
		sessions     app.SessionRepository
		participants app.ParticipantRepository
	)
	if redisClient != nil {
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL)
		sessions = redisstore.NewSessionStore(redisClient, redisTTL)
		participants = redisstore.NewParticipantStore(redisClient, redisTTL)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		sessions = memory.NewSessionStore()
		participants = memory.NewParticipantStore()
	}

	// --- Broadcast ---
	hub := memory.NewHub()
	var (
		broadcaster app.Broadcaster = hub
		relay       *redisstore.Relay
	)
	if cfg.UseRedisBroadcast() {
		broadcaster = redisstore.NewBroadcaster(redisClient)
		relay = redisstore.NewRelay(redisClient, hub, logger)
	}

	opts = append(opts,
		app.WithLogger(logger),
		app.WithStoreTimeout(config.TTLDuration(cfg.Session.StoreTimeout, 0)),
		app.WithPublishRetry(config.TTLDuration(cfg.Broadcast.RetryMaxElapsed, 0)),
	)
	service := app.NewQuizService(sessions, participants, quizRepo, broadcaster, opts...)
	defer service.Close()

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewRouter(service, hub, logger, checks),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// --- Run ---
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting quiz service", "addr", server.Addr, "broadcast", broadcastName(cfg))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Run(gctx)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func broadcastName(cfg config.Config) string {
	if cfg.UseRedisBroadcast() {
		return "redis"
	}
	return "memory"
}

// sampleQuizzes serves the no-database mode and seeds Postgres via `migrate --seed`.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4", IsCorrect: true},
						{Text: "5"},
					},
					TimeLimit: 20,
				},
				{
					ID:   "q2",
					Text: "Which planet is known as the red planet?",
					Options: []domain.Option{
						{Text: "Venus"},
						{Text: "Mars", IsCorrect: true},
						{Text: "Jupiter"},
						{Text: "Mercury"},
					},
				},
			},
		},
	}
}
