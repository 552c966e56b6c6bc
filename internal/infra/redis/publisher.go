package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"quiz-session-engine/internal/domain"
)

// DefaultGameFinishedChannel is where rating and export consumers listen.
const DefaultGameFinishedChannel = "quiz:events:game_finished"

// GameFinishedMessage is the payload published when a game ends.
type GameFinishedMessage struct {
	GameCode    string                    `json:"game_code"`
	QuizID      string                    `json:"quiz_id"`
	QuizTitle   string                    `json:"quiz_title"`
	FinishedAt  time.Time                 `json:"finished_at"`
	Players     int                       `json:"players"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
}

// Publisher announces finished games on a Redis channel.
type Publisher struct {
	client  redis.UniversalClient
	channel string
}

func NewPublisher(client redis.UniversalClient, channel string) *Publisher {
	if channel == "" {
		channel = DefaultGameFinishedChannel
	}
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) GameFinished(ctx context.Context, summary domain.GameSummary) error {
	board := make([]domain.LeaderboardEntry, len(summary.Leaderboard))
	for i, entry := range summary.Leaderboard {
		entry.Questions = nil
		board[i] = entry
	}
	payload, err := json.Marshal(GameFinishedMessage{
		GameCode:    summary.GameCode,
		QuizID:      summary.QuizID,
		QuizTitle:   summary.QuizTitle,
		FinishedAt:  summary.FinishedAt,
		Players:     len(summary.Leaderboard),
		Leaderboard: board,
	})
	if err != nil {
		return fmt.Errorf("marshal game finished: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish game finished: %w", err)
	}
	return nil
}
