package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"quiz-session-engine/internal/domain"
)

func TestPublisherAnnouncesFinishedGame(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	sub := client.Subscribe(ctx, DefaultGameFinishedChannel)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	finished := time.Date(2024, 11, 22, 10, 5, 0, 0, time.UTC)
	err = NewPublisher(client, "").GameFinished(ctx, domain.GameSummary{
		GameCode:   "ABC123",
		QuizID:     "quiz-1",
		QuizTitle:  "Arithmetic",
		FinishedAt: finished,
		Leaderboard: []domain.LeaderboardEntry{
			{Rank: 1, Nickname: "alice", Score: 13, CorrectAnswers: 1, TotalAnswers: 1,
				Questions: map[int]domain.PlayerResult{0: {Correct: true, Points: 13}}},
			{Rank: 2, Nickname: "bob", Score: 0, TotalAnswers: 1},
		},
	})
	require.NoError(t, err)

	select {
	case msg := <-sub.Channel():
		var got GameFinishedMessage
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, "ABC123", got.GameCode)
		assert.Equal(t, "quiz-1", got.QuizID)
		assert.Equal(t, 2, got.Players)
		assert.True(t, finished.Equal(got.FinishedAt))
		require.Len(t, got.Leaderboard, 2)
		assert.Equal(t, "alice", got.Leaderboard[0].Nickname)
		assert.Nil(t, got.Leaderboard[0].Questions)
	case <-time.After(2 * time.Second):
		t.Fatal("no game_finished message")
	}
}

func TestPublisherReportsRedisFailure(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	mr.Close()

	err := NewPublisher(client, "custom").GameFinished(context.Background(), domain.GameSummary{GameCode: "ABC123"})
	assert.ErrorContains(t, err, "publish game finished")
}
