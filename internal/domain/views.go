package domain

import "time"

// PublicQuestion is a question as shown to players, without the correct answer.
type PublicQuestion struct {
	Index      int          `json:"question_index"`
	ID         string       `json:"id"`
	Type       QuestionType `json:"question_type"`
	Text       string       `json:"question_text"`
	Options    []string     `json:"options,omitempty"`
	TimeLimit  int          `json:"time_limit"`
	Points     int          `json:"points"`
	SpeedBonus bool         `json:"speed_bonus"`
}

// PlayerView is a player as listed in the session view.
type PlayerView struct {
	Nickname  string `json:"nickname"`
	Score     int    `json:"score"`
	Connected bool   `json:"connected"`
}

// ActiveQuestion describes the running question for the host.
type ActiveQuestion struct {
	PublicQuestion
	StartedAt     time.Time `json:"started_at"`
	TimeRemaining float64   `json:"time_remaining"`
	AnswersCount  int       `json:"answers_received"`
	Unanswered    []string  `json:"unanswered"`
}

// QuestionResults is the outcome of one finished question.
type QuestionResults struct {
	QuestionIndex int                     `json:"question_index"`
	Results       map[string]PlayerResult `json:"results"`
	Leaderboard   []LeaderboardEntry      `json:"leaderboard"`
	CorrectAnswer string                  `json:"correct_answer"`
}

// SessionView is the full host-side view of a session.
type SessionView struct {
	GameCode             string                  `json:"game_code"`
	QuizID               string                  `json:"quiz_id"`
	QuizTitle            string                  `json:"quiz_title"`
	Status               Status                  `json:"status"`
	PlayerCount          int                     `json:"player_count"`
	Players              []PlayerView            `json:"players"`
	CurrentQuestionIndex int                     `json:"current_question_index"`
	TotalQuestions       int                     `json:"total_questions"`
	CurrentQuestion      *ActiveQuestion         `json:"current_question,omitempty"`
	Leaderboard          []LeaderboardEntry      `json:"leaderboard"`
	Results              map[string]PlayerResult `json:"results,omitempty"`
	QuestionFinished     bool                    `json:"question_finished"`
}

// CurrentQuestion answers the player pull query.
type CurrentQuestion struct {
	Status        Status          `json:"status"`
	Question      *PublicQuestion `json:"question"`
	StartedAt     *time.Time      `json:"started_at,omitempty"`
	TimeRemaining float64         `json:"time_remaining"`
	Message       string          `json:"message,omitempty"`
}

// CreatedGame is returned by session creation.
type CreatedGame struct {
	GameCode      string `json:"game_code"`
	QuizTitle     string `json:"quiz_title"`
	QuestionCount int    `json:"question_count"`
}

// AnswerReceipt acknowledges a recorded submission.
type AnswerReceipt struct {
	QuestionIndex int       `json:"question_index"`
	ReceivedAt    time.Time `json:"received_at"`
	Correct       bool      `json:"-"`
}

// GameSummary is the final state of a finished game. It feeds the results
// archive and the rating notification.
type GameSummary struct {
	GameCode    string             `json:"game_code"`
	QuizID      string             `json:"quiz_id"`
	QuizTitle   string             `json:"quiz_title"`
	HostID      string             `json:"host_id"`
	StartedAt   time.Time          `json:"created_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Questions   []Question         `json:"questions"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}
