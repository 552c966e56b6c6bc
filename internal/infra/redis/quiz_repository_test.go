package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/infra/memory"
	"quiz-session-engine/internal/logging"
)

func newRepo(t *testing.T, loader memory.QuizLoader) (*QuizRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewQuizRepository(client, loader, time.Minute, logging.Discard()), mr
}

func TestQuizRepositoryCachesSnapshotInRedis(t *testing.T) {
	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo, mr := newRepo(t, loader)
	ctx := context.Background()

	quiz, err := repo.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "Arithmetic", quiz.Title)
	assert.True(t, mr.Exists("quiz:quiz-1:snapshot"))

	again, err := repo.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, quiz, again)
	assert.EqualValues(t, 1, loader.calls.Load())

	ttl := mr.TTL("quiz:quiz-1:snapshot")
	assert.GreaterOrEqual(t, ttl, time.Minute)
	assert.LessOrEqual(t, ttl, time.Minute+6*time.Second)
}

func TestQuizRepositoryInvalidate(t *testing.T) {
	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo, mr := newRepo(t, loader)
	ctx := context.Background()

	_, err := repo.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	require.NoError(t, repo.Invalidate(ctx, "quiz-1"))
	assert.False(t, mr.Exists("quiz:quiz-1:snapshot"))

	_, err = repo.GetQuiz(ctx, "quiz-1")
	require.NoError(t, err)
	assert.EqualValues(t, 2, loader.calls.Load())
}

func TestQuizRepositoryReturnsIndependentCopies(t *testing.T) {
	repo, _ := newRepo(t, memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}))

	first, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	first.Questions[0].Options[0] = "changed"

	second, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "3", second.Questions[0].Options[0])
}

func TestQuizRepositoryDeduplicatesConcurrentMisses(t *testing.T) {
	loader := &countingLoader{
		QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}),
		delay:      50 * time.Millisecond,
	}
	repo, _ := newRepo(t, loader)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.GetQuiz(context.Background(), "quiz-1")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, loader.calls.Load())
}

func TestQuizRepositoryUnknownQuiz(t *testing.T) {
	repo, mr := newRepo(t, memory.NewStaticQuizLoader(nil))

	_, err := repo.GetQuiz(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrQuizNotFound)
	assert.False(t, mr.Exists("quiz:missing:snapshot"))
}

func TestQuizRepositoryFallsBackWhenRedisIsDown(t *testing.T) {
	loader := &countingLoader{QuizLoader: memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()})}
	repo, mr := newRepo(t, loader)
	mr.Close()

	quiz, err := repo.GetQuiz(context.Background(), "quiz-1")
	require.NoError(t, err)
	assert.Equal(t, "quiz-1", quiz.ID)
}

type countingLoader struct {
	memory.QuizLoader
	calls atomic.Int32
	delay time.Duration
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	l.calls.Add(1)
	time.Sleep(l.delay)
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:            "q1",
				Type:          domain.SingleChoice,
				Text:          "What is 2 + 2?",
				Options:       []string{"3", "4"},
				CorrectAnswer: "1",
				TimeLimit:     30,
				Points:        10,
			},
		},
	}
}
