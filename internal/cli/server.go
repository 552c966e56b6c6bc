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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/config"
	"quiz-session-engine/internal/hub"
	"quiz-session-engine/internal/infra/memory"
	pgstore "quiz-session-engine/internal/infra/postgres"
	redisstore "quiz-session-engine/internal/infra/redis"
	"quiz-session-engine/internal/logging"
	"quiz-session-engine/internal/metrics"
	"quiz-session-engine/internal/telemetry"
	transport "quiz-session-engine/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the game engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logging.New("quiz-engine", cfg.Log.Level)

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := telemetry.MonitorRedis(redisClient, log); err != nil {
			return err
		}
	}

	var (
		loader  memory.QuizLoader
		archive app.ResultsArchive
	)
	if cfg.Postgres.URL != "" {
		db := openBun(cfg.Postgres.URL)
		defer db.Close()
		if err := runMigrations(ctx, db, log); err != nil {
			return err
		}
		archive = pgstore.NewResultsArchive(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		loader = pgstore.NewQuizLoader(pool)
	} else {
		loader, err = fileLoader(cfg.Quiz.File, log)
		if err != nil {
			return err
		}
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var (
		quizRepo app.QuizRepository
		store    app.SessionRepository
		notifier app.GameNotifier
	)
	if redisClient != nil {
		instance := cfg.Server.InstanceID
		if instance == "" {
			instance, _ = os.Hostname()
		}
		quizRepo = redisstore.NewQuizRepository(redisClient, loader, quizTTL, log)
		store = redisstore.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 3*time.Hour), instance, log)
		notifier = redisstore.NewPublisher(redisClient, cfg.Notify.Channel)
	} else {
		quizRepo = memory.NewQuizRepository(loader, quizTTL)
		store = memory.NewSessionStore()
	}

	service := app.NewGameService(app.Config{
		Sessions:        store,
		Quizzes:         quizRepo,
		Hub:             hub.New(cfg.Game.SendBuffer, log, m),
		Logger:          log,
		Metrics:         m,
		Archive:         archive,
		Notifier:        notifier,
		ShuffleOrder:    cfg.Game.ShuffleOrderOptions,
		LeaderboardSize: cfg.Game.LeaderboardSize,
		IdleTimeout:     config.TTLDuration(cfg.Game.IdleTimeout, 2*time.Hour),
		FinishedGrace:   config.TTLDuration(cfg.Game.FinishedGrace, 5*time.Minute),
	})

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      transport.NewRouter(service, transport.NewWSHandler(service, log), reg, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", finalPort).Info("starting game engine")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return service.RunJanitor(ctx, config.TTLDuration(cfg.Game.SweepInterval, time.Minute))
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func fileLoader(path string, log logrus.FieldLogger) (memory.QuizLoader, error) {
	if path == "" {
		log.Warn("no quiz source configured, every create will fail with quiz_not_found")
		return memory.NewStaticQuizLoader(nil), nil
	}
	loader, err := memory.LoadQuizFile(path)
	if err != nil {
		return nil, err
	}
	log.WithField("file", path).Info("serving quizzes from file")
	return loader, nil
}
