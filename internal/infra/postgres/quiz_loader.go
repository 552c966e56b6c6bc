package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"quiz-session-engine/internal/domain"
)

// Querier is the part of pgxpool.Pool the loader needs.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// QuizLoader reads quiz content from the quizzes table. Questions are stored
// as a JSONB array in the same shape the engine snapshots.
type QuizLoader struct {
	db Querier
}

func NewQuizLoader(db Querier) *QuizLoader {
	return &QuizLoader{db: db}
}

const selectQuiz = `SELECT owner_id, title, description, questions FROM quizzes WHERE id=$1`

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	quiz := domain.Quiz{ID: quizID}
	var raw []byte
	err := l.db.QueryRow(ctx, selectQuiz, quizID).Scan(&quiz.OwnerID, &quiz.Title, &quiz.Description, &raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, fmt.Errorf("%w: %s", domain.ErrQuizNotFound, quizID)
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if err := json.Unmarshal(raw, &quiz.Questions); err != nil {
		return domain.Quiz{}, fmt.Errorf("unmarshal quiz %s: %w", quizID, err)
	}
	return quiz, nil
}
