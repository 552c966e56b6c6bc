package domain

import "errors"

var (
	// ErrInvalidTransition is returned for a phase change the session cannot make.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrQuestionExpired is returned for answers arriving after the deadline.
	ErrQuestionExpired = errors.New("question expired")
	// ErrDuplicateAnswer is returned for a second answer to the same question.
	ErrDuplicateAnswer = errors.New("answer already submitted")
	// ErrUnknownSession is returned when no session has the given code.
	ErrUnknownSession = errors.New("game session not found")
	// ErrNicknameTaken is returned when a connected player already uses the nickname.
	ErrNicknameTaken = errors.New("nickname already taken")
	// ErrNotHost is returned when the caller does not host the session.
	ErrNotHost = errors.New("not the host of this game")

	ErrSessionFinished  = errors.New("game already finished")
	ErrNoActiveQuestion = errors.New("no active question")
	ErrUnknownPlayer    = errors.New("player not found in game")
	ErrInvalidAnswer    = errors.New("invalid answer")
	ErrInvalidNickname  = errors.New("invalid nickname")

	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrInvalidQuiz indicates the quiz cannot be played.
	ErrInvalidQuiz = errors.New("invalid quiz")
	// ErrCodeSpaceExhausted is returned when no free session code was found.
	ErrCodeSpaceExhausted = errors.New("could not allocate a game code")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrInvalidTransition, "invalid_transition"},
	{ErrQuestionExpired, "question_expired"},
	{ErrDuplicateAnswer, "duplicate_answer"},
	{ErrUnknownSession, "unknown_session"},
	{ErrNicknameTaken, "nickname_taken"},
	{ErrNotHost, "not_host"},
	{ErrSessionFinished, "session_finished"},
	{ErrNoActiveQuestion, "no_active_question"},
	{ErrUnknownPlayer, "unknown_player"},
	{ErrInvalidAnswer, "invalid_answer"},
	{ErrInvalidNickname, "invalid_nickname"},
	{ErrQuizNotFound, "quiz_not_found"},
	{ErrInvalidQuiz, "invalid_quiz"},
	{ErrCodeSpaceExhausted, "code_space_exhausted"},
}

// Code returns the stable wire code for err, or "internal".
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return "internal"
}
