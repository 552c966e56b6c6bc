package domain

import (
	"fmt"
	"strings"
	"time"
)

// QuestionType selects how an answer is encoded and evaluated.
type QuestionType string

const (
	SingleChoice   QuestionType = "single_choice"
	MultipleChoice QuestionType = "multiple_choice"
	Number         QuestionType = "number"
	Order          QuestionType = "order"
)

// Valid reports whether t is a known question type.
func (t QuestionType) Valid() bool {
	switch t {
	case SingleChoice, MultipleChoice, Number, Order:
		return true
	}
	return false
}

// Status is the phase of a game session.
type Status string

const (
	StatusWaiting          Status = "waiting"
	StatusQuestionActive   Status = "question_active"
	StatusQuestionFinished Status = "question_finished"
	StatusFinished         Status = "finished"
)

const (
	DefaultTimeLimit = 30
	DefaultPoints    = 10

	MinTimeLimit = 5
	MaxTimeLimit = 300
	MinPoints    = 1
	MaxPoints    = 100
)

// Question is one entry of a quiz snapshot. CorrectAnswer uses the wire encoding
// of its type: "2", "[0,2]", "42.5" or "[2,0,1]".
type Question struct {
	ID            string       `json:"id" yaml:"id"`
	Type          QuestionType `json:"question_type" yaml:"question_type"`
	Text          string       `json:"question_text" yaml:"question_text"`
	Options       []string     `json:"options,omitempty" yaml:"options"`
	CorrectAnswer string       `json:"correct_answer" yaml:"correct_answer"`
	TimeLimit     int          `json:"time_limit" yaml:"time_limit"` // seconds
	Points        int          `json:"points" yaml:"points"`
	SpeedBonus    bool         `json:"speed_bonus" yaml:"speed_bonus"`
}

// TimeLimitDuration converts the question time limit to a duration.
func (q Question) TimeLimitDuration() time.Duration {
	return time.Duration(q.TimeLimit) * time.Second
}

// Public strips the correct answer.
func (q Question) Public(index int) PublicQuestion {
	return PublicQuestion{
		Index:      index,
		ID:         q.ID,
		Type:       q.Type,
		Text:       q.Text,
		Options:    append([]string(nil), q.Options...),
		TimeLimit:  q.TimeLimit,
		Points:     q.Points,
		SpeedBonus: q.SpeedBonus,
	}
}

// Quiz is the content a session is created from.
type Quiz struct {
	ID          string     `json:"id" yaml:"id"`
	OwnerID     string     `json:"owner_id,omitempty" yaml:"owner_id"`
	Title       string     `json:"title" yaml:"title"`
	Description string     `json:"description,omitempty" yaml:"description"`
	Questions   []Question `json:"questions" yaml:"questions"`
}

// Snapshot returns a deep copy with defaults applied, so later edits of the
// source quiz never reach a running session.
func (q Quiz) Snapshot() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.Options = append([]string(nil), question.Options...)
		if question.TimeLimit == 0 {
			question.TimeLimit = DefaultTimeLimit
		}
		if question.Points == 0 {
			question.Points = DefaultPoints
		}
		out.Questions[i] = question
	}
	return out
}

// Validate checks the structural constraints of a snapshot. Answer encodings
// are checked by the scoring package.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("%w: quiz %q has no questions", ErrInvalidQuiz, q.ID)
	}
	for i, question := range q.Questions {
		if !question.Type.Valid() {
			return fmt.Errorf("%w: question %d has unknown type %q", ErrInvalidQuiz, i, question.Type)
		}
		if strings.TrimSpace(question.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", ErrInvalidQuiz, i)
		}
		if question.Type != Number && len(question.Options) < 2 {
			return fmt.Errorf("%w: question %d needs at least two options", ErrInvalidQuiz, i)
		}
		if question.TimeLimit < MinTimeLimit || question.TimeLimit > MaxTimeLimit {
			return fmt.Errorf("%w: question %d time limit %ds out of range", ErrInvalidQuiz, i, question.TimeLimit)
		}
		if question.Points < MinPoints || question.Points > MaxPoints {
			return fmt.Errorf("%w: question %d points %d out of range", ErrInvalidQuiz, i, question.Points)
		}
	}
	return nil
}

// AnswerSubmission is a recorded answer. Correct and PointsAwarded are fixed at
// submission time.
type AnswerSubmission struct {
	RawAnswer     string
	ReceivedAt    time.Time
	Correct       bool
	PointsAwarded int
	Rank          int // position among correct answers, 0 when incorrect
}

// PlayerResult is one player's outcome for one question.
type PlayerResult struct {
	Correct   bool    `json:"correct"`
	Points    int     `json:"points"`
	Answer    *string `json:"answer"`
	Rank      int     `json:"rank,omitempty"`
	WasOnline bool    `json:"was_online"`
}

// LeaderboardEntry is a ranked row of the leaderboard.
type LeaderboardEntry struct {
	Rank           int                  `json:"rank"`
	Nickname       string               `json:"nickname"`
	Score          int                  `json:"score"`
	CorrectAnswers int                  `json:"correct_answers"`
	TotalAnswers   int                  `json:"total_answers"`
	Questions      map[int]PlayerResult `json:"question_details,omitempty"`
}
