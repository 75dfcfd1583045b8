package cli

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"history-ranking-service/internal/app"
	"history-ranking-service/internal/auth"
	"history-ranking-service/internal/config"
	"history-ranking-service/internal/domain"
	"history-ranking-service/internal/infra/memory"
	"history-ranking-service/internal/infra/postgres"
	rediscache "history-ranking-service/internal/infra/redis"
	"history-ranking-service/internal/infra/sqlite"
	"history-ranking-service/internal/logging"
	transport "history-ranking-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the ranking server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// backend bundles the three collaborators of the ranking service plus whatever must be closed on exit.
type backend struct {
	loader     memory.QuestionSetLoader
	attempts   app.AttemptStore
	identities app.IdentityResolver
	closers    []io.Closer
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if cfg.Auth.JWTSecret == "" {
		logger.Warn("auth.jwt_secret is empty; every request is anonymous")
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, c := range be.closers {
			_ = c.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
		logger.Info("redis cache enabled", zap.String("addr", cfg.Redis.Addr))
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	questionTTL := config.TTLDuration(cfg.Ranking.QuestionTTL, 10*time.Minute)
	identityTTL := config.TTLDuration(cfg.Ranking.IdentityTTL, 30*time.Minute)

	var questions app.QuestionSetRepository
	identities := be.identities
	var feeds app.FeedRepository
	if redisClient != nil {
		questions = rediscache.NewQuestionSetRepository(redisClient, be.loader, questionTTL)
		identities = rediscache.NewIdentityCache(redisClient, be.identities, identityTTL)
		feeds = rediscache.NewFeedStore(redisClient, redisTTL)
	} else {
		questions = memory.NewQuestionSetRepository(be.loader, questionTTL)
		feeds = memory.NewFeedStore()
	}

	service := app.NewRankingService(questions, be.attempts, identities, feeds, logger.Named("ranking"))
	verifier := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.CookieName)
	router := transport.NewRouter(service, verifier, logger.Named("http"), transport.RouterOptions{
		CORSOrigins:  cfg.Server.CORSOrigins,
		DefaultLimit: cfg.Ranking.DefaultLimit,
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info("starting ranking service", zap.String("port", finalPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("failed to start server", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info("shutting down server")
	case <-ctx.Done():
		logger.Info("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// openBackend prefers Postgres, then a SQLite file, then in-memory sample data.
func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (backend, error) {
	switch {
	case cfg.Postgres.URL != "":
		if err := runMigrations(ctx, cfg, logger); err != nil {
			return backend{}, err
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return backend{}, err
		}
		logger.Info("using postgres backend")
		return backend{
			loader:     postgres.NewQuestionSetLoader(pool),
			attempts:   postgres.NewAttemptStore(pool),
			identities: postgres.NewIdentityResolver(pool),
			closers:    []io.Closer{poolCloser{pool}},
		}, nil
	case cfg.SQLite.Path != "":
		store, err := sqlite.NewStore(cfg.SQLite.Path)
		if err != nil {
			return backend{}, err
		}
		logger.Info("using sqlite backend", zap.String("path", cfg.SQLite.Path))
		return backend{loader: store, attempts: store, identities: store, closers: []io.Closer{store}}, nil
	}
	logger.Warn("no database configured; serving in-memory sample data")
	return backend{
		loader:     memory.NewStaticQuestionSetLoader(sampleQuestionSets()),
		attempts:   memory.NewAttemptStore(),
		identities: memory.NewDirectory(nil),
	}, nil
}

type poolCloser struct{ pool *pgxpool.Pool }

func (c poolCloser) Close() error {
	c.pool.Close()
	return nil
}

// sampleQuestionSets is the demo card served when no database is configured.
func sampleQuestionSets() map[domain.CardID]domain.QuestionSet {
	return map[domain.CardID]domain.QuestionSet{
		"card-demo": {
			CardID: "card-demo",
			Title:  "Joseon dynasty basics",
			Questions: []domain.Question{
				{
					ID:            "demo-q1",
					Kind:          domain.KindMultipleChoice,
					Prompt:        "In which year was the Joseon dynasty founded?",
					Options:       []string{"918", "1392", "1592", "1897"},
					CorrectAnswer: "1392",
					Score:         10,
				},
				{
					ID:            "demo-q2",
					Kind:          domain.KindShortAnswer,
					Prompt:        "Which king promulgated Hunminjeongeum?",
					CorrectAnswer: "Sejong",
					Score:         10,
				},
				{
					ID:            "demo-q3",
					Kind:          domain.KindMultipleChoice,
					Prompt:        "Who led the navy at the Battle of Myeongnyang?",
					Options:       []string{"Yi Sun-sin", "Gwon Yul", "Kim Si-min"},
					CorrectAnswer: "Yi Sun-sin",
					Score:         10,
				},
			},
		},
	}
}
