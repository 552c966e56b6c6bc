package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/hub"
	"quiz-session-engine/internal/infra/postgres"
	pgmigrations "quiz-session-engine/internal/infra/postgres/migrations"
	infraredis "quiz-session-engine/internal/infra/redis"
	"quiz-session-engine/internal/logging"
)

const host = "host-1"

func TestGameEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(pgURL)
	defer db.Close()
	migrateDB(t, ctx, db)
	seedQuiz(t, ctx, db, sampleQuiz())

	pool, err := pgxpool.Connect(ctx, pgURL)
	require.NoError(t, err)
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	require.NoError(t, err)
	defer redisClient.Close()

	sub := redisClient.Subscribe(ctx, infraredis.DefaultGameFinishedChannel)
	defer sub.Close()
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	log := logging.Discard()
	archive := postgres.NewResultsArchive(db)
	service := app.NewGameService(app.Config{
		Sessions: infraredis.NewSessionStore(redisClient, 5*time.Minute, "it", log),
		Quizzes:  infraredis.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), 5*time.Minute, log),
		Hub:      hub.New(64, log, nil),
		Logger:   log,
		Archive:  archive,
		Notifier: infraredis.NewPublisher(redisClient, ""),
	})

	created, err := service.CreateSession(ctx, host, "quiz-1")
	require.NoError(t, err)
	code := created.GameCode
	leased, err := redisClient.Exists(ctx, "quiz:session:"+code).Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, leased)

	_, err = service.Connect(code, "alice", "c-alice")
	require.NoError(t, err)
	_, err = service.Connect(code, "bob", "c-bob")
	require.NoError(t, err)

	_, err = service.StartQuestion(host, code, 0)
	require.NoError(t, err)
	_, err = service.SubmitAnswer(code, "bob", "1")
	require.NoError(t, err)
	_, err = service.SubmitAnswer(code, "alice", "0")
	require.NoError(t, err)

	results, err := service.FinishQuestion(host, code)
	require.NoError(t, err)
	assert.Equal(t, 13, results.Results["bob"].Points)
	assert.Equal(t, "bob", results.Leaderboard[0].Nickname)

	summary, err := service.FinishGame(ctx, host, code)
	require.NoError(t, err)
	assert.Equal(t, "quiz-1", summary.QuizID)

	select {
	case msg := <-sub.Channel():
		var got infraredis.GameFinishedMessage
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, code, got.GameCode)
		assert.Equal(t, 2, got.Players)
	case <-time.After(5 * time.Second):
		t.Fatal("no game_finished notification")
	}

	games, err := archive.GamesForQuiz(ctx, "quiz-1", 10)
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, code, games[0].GameCode)
	assert.Equal(t, "bob", games[0].Leaderboard[0].Nickname)
	assert.Equal(t, 13, games[0].Leaderboard[0].Score)

	stored, err := archive.LoadGame(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, host, stored.HostID)
	assert.Equal(t, "bob", stored.Leaderboard[0].Nickname)
	_, err = archive.LoadGame(ctx, "ZZZZZZ")
	assert.ErrorIs(t, err, domain.ErrUnknownSession)
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s", host, port.Port()), func() {
		_ = container.Terminate(ctx)
	}
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func migrateDB(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)
}

func seedQuiz(t *testing.T, ctx context.Context, db *bun.DB, quiz domain.Quiz) {
	t.Helper()
	questions, err := json.Marshal(quiz.Questions)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		`INSERT INTO quizzes (id, owner_id, title, description, questions) VALUES (?, ?, ?, ?, ?::jsonb)
		 ON CONFLICT (id) DO UPDATE SET questions = EXCLUDED.questions`,
		quiz.ID, quiz.OwnerID, quiz.Title, quiz.Description, string(questions))
	require.NoError(t, err)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:      "quiz-1",
		OwnerID: host,
		Title:   "Arithmetic",
		Questions: []domain.Question{
			{
				ID:            "q1",
				Type:          domain.SingleChoice,
				Text:          "What is 2 + 2?",
				Options:       []string{"3", "4", "5"},
				CorrectAnswer: "1",
				TimeLimit:     30,
				Points:        10,
				SpeedBonus:    true,
			},
		},
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(opts), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
