package domain

import "time"

// Event names pushed to players.
const (
	EventConnected          = "connected"
	EventPlayerJoined       = "player_joined"
	EventPlayerDisconnected = "player_disconnected"
	EventQuestionStarted    = "question_started"
	EventAnswerReceived     = "answer_received"
	EventAnswerSubmitted    = "answer_submitted"
	EventQuestionFinished   = "question_finished"
	EventGameFinished       = "game_finished"
	EventError              = "error"
	EventPong               = "pong"
)

type ConnectedEvent struct {
	Type                 string `json:"type"`
	Message              string `json:"message"`
	Nickname             string `json:"nickname"`
	Reconnected          bool   `json:"reconnected"`
	Status               Status `json:"status"`
	CurrentQuestionIndex int    `json:"current_question_index"`
}

func (ConnectedEvent) Name() string { return EventConnected }

func NewConnected(nickname string, reconnected bool, status Status, index int) ConnectedEvent {
	return ConnectedEvent{
		Type:                 EventConnected,
		Message:              "connected to game",
		Nickname:             nickname,
		Reconnected:          reconnected,
		Status:               status,
		CurrentQuestionIndex: index,
	}
}

type PlayerPresenceEvent struct {
	Type        string `json:"type"`
	Nickname    string `json:"nickname"`
	PlayerCount int    `json:"player_count"`
}

func (e PlayerPresenceEvent) Name() string { return e.Type }

func NewPlayerJoined(nickname string, connected int) PlayerPresenceEvent {
	return PlayerPresenceEvent{Type: EventPlayerJoined, Nickname: nickname, PlayerCount: connected}
}

func NewPlayerDisconnected(nickname string, connected int) PlayerPresenceEvent {
	return PlayerPresenceEvent{Type: EventPlayerDisconnected, Nickname: nickname, PlayerCount: connected}
}

type QuestionStartedEvent struct {
	Type          string         `json:"type"`
	QuestionIndex int            `json:"question_index"`
	StartedAt     time.Time      `json:"started_at"`
	TimeLimit     int            `json:"time_limit"`
	Question      PublicQuestion `json:"question"`
}

func (QuestionStartedEvent) Name() string { return EventQuestionStarted }

func NewQuestionStarted(q PublicQuestion, startedAt time.Time) QuestionStartedEvent {
	return QuestionStartedEvent{
		Type:          EventQuestionStarted,
		QuestionIndex: q.Index,
		StartedAt:     startedAt,
		TimeLimit:     q.TimeLimit,
		Question:      q,
	}
}

type AnswerReceivedEvent struct {
	Type         string `json:"type"`
	Nickname     string `json:"nickname"`
	AnswersCount int    `json:"answers_count"`
	TotalPlayers int    `json:"total_players"`
}

func (AnswerReceivedEvent) Name() string { return EventAnswerReceived }

func NewAnswerReceived(nickname string, answers, players int) AnswerReceivedEvent {
	return AnswerReceivedEvent{Type: EventAnswerReceived, Nickname: nickname, AnswersCount: answers, TotalPlayers: players}
}

// AnswerSubmittedEvent is the personal acknowledgement of submit_answer.
type AnswerSubmittedEvent struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (AnswerSubmittedEvent) Name() string { return EventAnswerSubmitted }

func NewAnswerSubmitted(err error) AnswerSubmittedEvent {
	if err != nil {
		return AnswerSubmittedEvent{Type: EventAnswerSubmitted, Error: err.Error(), Code: Code(err)}
	}
	return AnswerSubmittedEvent{Type: EventAnswerSubmitted, Success: true}
}

type QuestionFinishedEvent struct {
	Type string `json:"type"`
	QuestionResults
}

func (QuestionFinishedEvent) Name() string { return EventQuestionFinished }

func NewQuestionFinished(r QuestionResults) QuestionFinishedEvent {
	return QuestionFinishedEvent{Type: EventQuestionFinished, QuestionResults: r}
}

type GameFinishedEvent struct {
	Type        string             `json:"type"`
	QuizID      string             `json:"quiz_id"`
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

func (GameFinishedEvent) Name() string { return EventGameFinished }

func NewGameFinished(quizID string, lb []LeaderboardEntry) GameFinishedEvent {
	return GameFinishedEvent{Type: EventGameFinished, QuizID: quizID, Leaderboard: lb}
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (ErrorEvent) Name() string { return EventError }

func NewError(err error) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: err.Error(), Code: Code(err)}
}

type PongEvent struct {
	Type string `json:"type"`
}

func (PongEvent) Name() string { return EventPong }

func NewPong() PongEvent { return PongEvent{Type: EventPong} }
