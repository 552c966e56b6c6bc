package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"quiz-session-engine/internal/domain"
)

// GameResult is one finished game as stored for export tooling.
type GameResult struct {
	bun.BaseModel `bun:"table:game_results,alias:gr"`

	GameCode    string                    `bun:"game_code,pk"`
	FinishedAt  time.Time                 `bun:"finished_at,pk"`
	QuizID      string                    `bun:"quiz_id,notnull"`
	QuizTitle   string                    `bun:"quiz_title,notnull"`
	HostID      string                    `bun:"host_id,notnull"`
	StartedAt   time.Time                 `bun:"started_at,notnull"`
	PlayerCount int                       `bun:"player_count,notnull"`
	Questions   []domain.Question         `bun:"questions,type:jsonb"`
	Leaderboard []domain.LeaderboardEntry `bun:"leaderboard,type:jsonb"`
}

func newGameResult(summary domain.GameSummary) *GameResult {
	return &GameResult{
		GameCode:    summary.GameCode,
		FinishedAt:  summary.FinishedAt.UTC(),
		QuizID:      summary.QuizID,
		QuizTitle:   summary.QuizTitle,
		HostID:      summary.HostID,
		StartedAt:   summary.StartedAt.UTC(),
		PlayerCount: len(summary.Leaderboard),
		Questions:   summary.Questions,
		Leaderboard: summary.Leaderboard,
	}
}

func (r *GameResult) summary() domain.GameSummary {
	return domain.GameSummary{
		GameCode:    r.GameCode,
		QuizID:      r.QuizID,
		QuizTitle:   r.QuizTitle,
		HostID:      r.HostID,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
		Questions:   r.Questions,
		Leaderboard: r.Leaderboard,
	}
}

// ResultsArchive writes finished games to the game_results table.
type ResultsArchive struct {
	db bun.IDB
}

func NewResultsArchive(db bun.IDB) *ResultsArchive {
	return &ResultsArchive{db: db}
}

// SaveGame stores summary. Saving the same game twice keeps the first row.
func (a *ResultsArchive) SaveGame(ctx context.Context, summary domain.GameSummary) error {
	_, err := a.db.NewInsert().
		Model(newGameResult(summary)).
		On("CONFLICT (game_code, finished_at) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("save game %s: %w", summary.GameCode, err)
	}
	return nil
}

// LoadGame returns the most recently finished game stored under code.
func (a *ResultsArchive) LoadGame(ctx context.Context, code string) (domain.GameSummary, error) {
	var row GameResult
	err := a.db.NewSelect().
		Model(&row).
		Where("game_code = ?", code).
		Order("finished_at DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameSummary{}, fmt.Errorf("%w: %s", domain.ErrUnknownSession, code)
	}
	if err != nil {
		return domain.GameSummary{}, fmt.Errorf("load game %s: %w", code, err)
	}
	return row.summary(), nil
}

// GamesForQuiz lists archived games of quizID, newest first.
func (a *ResultsArchive) GamesForQuiz(ctx context.Context, quizID string, limit int) ([]GameResult, error) {
	var games []GameResult
	q := a.db.NewSelect().
		Model(&games).
		Where("quiz_id = ?", quizID).
		Order("finished_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list games of %s: %w", quizID, err)
	}
	return games, nil
}
