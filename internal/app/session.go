package app

import (
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/hub"
	"quiz-session-engine/internal/logging"
	"quiz-session-engine/internal/metrics"
	"quiz-session-engine/internal/scoring"
)

const maxNicknameLength = 20

// Fanout delivers session events to connected players.
type Fanout interface {
	Register(code, clientID, nickname string) *hub.Client
	Unregister(code string, c *hub.Client)
	Send(code string, c *hub.Client, e hub.Event) bool
	Broadcast(code string, e hub.Event) int
	CloseRoom(code, reason string)
}

// SessionOptions carries the collaborators of a session. Zero values fall
// back to the wall clock, a silent logger and a hub with no listeners.
type SessionOptions struct {
	Clock           Clock
	Fanout          Fanout
	Logger          logrus.FieldLogger
	Metrics         *metrics.Metrics
	Shuffle         func(n int) []int
	LeaderboardSize int
}

type player struct {
	id        int
	nickname  string
	connected bool
	clientID  string
	score     int
	correct   int
	total     int
	history   map[int]domain.PlayerResult
}

// Session is one live game. Every exported operation of GameService runs
// under mu, so transitions, submissions and reads of a session are serialized.
type Session struct {
	code   string
	hostID string
	quiz   domain.Quiz

	clock   Clock
	fanout  Fanout
	log     logrus.FieldLogger
	metrics *metrics.Metrics
	shuffle func(n int) []int
	top     int

	mu           sync.Mutex
	status       domain.Status
	index        int
	startedAt    time.Time
	question     domain.Question
	timer        Timer
	players      []*player
	byNickname   map[string]int
	answers      map[int]*domain.AnswerSubmission
	correctCount int
	lastResults  *domain.QuestionResults

	createdAt    time.Time
	lastActivity time.Time
	finishedAt   time.Time
	finishedRead bool
}

// NewSession builds a waiting session over a snapshot of quiz.
func NewSession(code, hostID string, quiz domain.Quiz, opts SessionOptions) *Session {
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Fanout == nil {
		opts.Fanout = hub.New(0, logging.Discard(), nil)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.LeaderboardSize <= 0 {
		opts.LeaderboardSize = 10
	}
	now := opts.Clock.Now()
	return &Session{
		code:         code,
		hostID:       hostID,
		quiz:         quiz.Snapshot(),
		clock:        opts.Clock,
		fanout:       opts.Fanout,
		log:          opts.Logger.WithField("game_code", code),
		metrics:      opts.Metrics,
		shuffle:      opts.Shuffle,
		top:          opts.LeaderboardSize,
		status:       domain.StatusWaiting,
		index:        -1,
		byNickname:   make(map[string]int),
		answers:      make(map[int]*domain.AnswerSubmission),
		createdAt:    now,
		lastActivity: now,
	}
}

// Code returns the session code.
func (s *Session) Code() string { return s.code }

// Status returns the current phase, applying lazy expiry first.
func (s *Session) Status() domain.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(s.clock.Now())
	return s.status
}

func (s *Session) authorize(hostID string) error {
	if hostID == "" || hostID != s.hostID {
		return domain.ErrNotHost
	}
	return nil
}

func (s *Session) startQuestion(index int) (domain.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.touchLocked(now)
	s.expireLocked(now)

	switch {
	case s.status == domain.StatusFinished:
		return domain.SessionView{}, fmt.Errorf("%w: game is finished", domain.ErrInvalidTransition)
	case s.status == domain.StatusQuestionActive:
		return domain.SessionView{}, fmt.Errorf("%w: question %d is still active", domain.ErrInvalidTransition, s.index)
	case index != s.index+1:
		return domain.SessionView{}, fmt.Errorf("%w: expected question %d, got %d", domain.ErrInvalidTransition, s.index+1, index)
	case index >= len(s.quiz.Questions):
		return domain.SessionView{}, fmt.Errorf("%w: quiz has %d questions", domain.ErrInvalidTransition, len(s.quiz.Questions))
	}

	q := s.quiz.Questions[index]
	if s.shuffle != nil && q.Type == domain.Order {
		shuffled, err := scoring.ShuffleOptions(q, s.shuffle(len(q.Options)))
		if err != nil {
			return domain.SessionView{}, err
		}
		q = shuffled
	}

	s.index = index
	s.question = q
	s.startedAt = now
	s.answers = make(map[int]*domain.AnswerSubmission)
	s.correctCount = 0
	s.lastResults = nil
	s.status = domain.StatusQuestionActive
	s.armTimerLocked(index, q.TimeLimitDuration())

	s.metrics.Transition(string(domain.StatusQuestionActive))
	s.log.WithField("question_index", index).Info("question started")
	s.fanout.Broadcast(s.code, domain.NewQuestionStarted(q.Public(index), now))

	return s.viewLocked(now), nil
}

func (s *Session) armTimerLocked(index int, after time.Duration) {
	s.timer = s.clock.AfterFunc(after, func() { s.onDeadline(index) })
}

// onDeadline runs on the question timer. A manual finish that already moved
// the session on turns it into a no-op.
func (s *Session) onDeadline(index int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusQuestionActive || s.index != index {
		return
	}
	now := s.clock.Now()
	if !Expired(s.question, s.startedAt, now) {
		s.armTimerLocked(index, Remaining(s.question, s.startedAt, now))
		return
	}
	s.finishQuestionLocked("deadline")
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// expireLocked closes the active question once its deadline has passed.
func (s *Session) expireLocked(now time.Time) {
	if s.status == domain.StatusQuestionActive && Expired(s.question, s.startedAt, now) {
		s.finishQuestionLocked("deadline")
	}
}

func (s *Session) finishQuestion() (domain.QuestionResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.touchLocked(now)
	s.expireLocked(now)

	switch s.status {
	case domain.StatusQuestionActive:
		return s.finishQuestionLocked("host"), nil
	case domain.StatusQuestionFinished:
		return *s.lastResults, nil
	default:
		return domain.QuestionResults{}, fmt.Errorf("%w: no active question to finish", domain.ErrInvalidTransition)
	}
}

func (s *Session) finishQuestionLocked(reason string) domain.QuestionResults {
	s.stopTimerLocked()
	results := s.recordResultsLocked()
	s.status = domain.StatusQuestionFinished

	s.metrics.Transition(string(domain.StatusQuestionFinished))
	s.log.WithFields(logrus.Fields{
		"question_index": s.index,
		"answers":        len(s.answers),
		"reason":         reason,
	}).Info("question finished")
	s.fanout.Broadcast(s.code, domain.NewQuestionFinished(results))
	return results
}

// recordResultsLocked fixes the outcome of the current question for every
// player, including those who did not answer.
func (s *Session) recordResultsLocked() domain.QuestionResults {
	results := make(map[string]domain.PlayerResult, len(s.players))
	for _, p := range s.players {
		var r domain.PlayerResult
		if sub, ok := s.answers[p.id]; ok {
			answer := sub.RawAnswer
			r = domain.PlayerResult{
				Correct:   sub.Correct,
				Points:    sub.PointsAwarded,
				Answer:    &answer,
				Rank:      scoring.BonusRank(s.question, sub.Rank),
				WasOnline: true,
			}
		} else {
			r = domain.PlayerResult{WasOnline: p.connected}
		}
		p.history[s.index] = r
		results[p.nickname] = r
	}
	out := domain.QuestionResults{
		QuestionIndex: s.index,
		Results:       results,
		Leaderboard:   rankPlayers(s.players, s.top, false),
		CorrectAnswer: s.question.CorrectAnswer,
	}
	s.lastResults = &out
	return out
}

func (s *Session) finishGame() (domain.GameSummary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.touchLocked(now)

	if s.status == domain.StatusFinished {
		return s.summaryLocked(), false
	}

	s.stopTimerLocked()
	if s.status == domain.StatusQuestionActive {
		s.recordResultsLocked()
	}
	s.status = domain.StatusFinished
	s.finishedAt = now
	for _, p := range s.players {
		p.connected = false
	}

	summary := s.summaryLocked()
	s.metrics.Transition(string(domain.StatusFinished))
	s.log.WithField("players", len(s.players)).Info("game finished")
	s.fanout.Broadcast(s.code, domain.NewGameFinished(s.quiz.ID, rankPlayers(s.players, 0, false)))
	s.fanout.CloseRoom(s.code, "game finished")
	return summary, true
}

func (s *Session) summaryLocked() domain.GameSummary {
	return domain.GameSummary{
		GameCode:    s.code,
		QuizID:      s.quiz.ID,
		QuizTitle:   s.quiz.Title,
		HostID:      s.hostID,
		StartedAt:   s.createdAt,
		FinishedAt:  s.finishedAt,
		Questions:   s.quiz.Questions,
		Leaderboard: rankPlayers(s.players, 0, true),
	}
}

func (s *Session) report() domain.GameSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.touchLocked(now)
	s.expireLocked(now)
	s.markReadLocked()
	return s.summaryLocked()
}

func (s *Session) connect(nickname, clientID string) (*hub.Client, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLength {
		return nil, fmt.Errorf("%w: nickname must be 1-%d characters", domain.ErrInvalidNickname, maxNicknameLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.touchLocked(now)
	s.expireLocked(now)

	if s.status == domain.StatusFinished {
		return nil, domain.ErrSessionFinished
	}
	for _, p := range s.players {
		if p.connected && strings.EqualFold(p.nickname, nickname) {
			return nil, fmt.Errorf("%w: %q", domain.ErrNicknameTaken, nickname)
		}
	}

	id, reconnected := s.byNickname[nickname]
	if !reconnected {
		id = len(s.players)
		s.players = append(s.players, &player{
			id:       id,
			nickname: nickname,
			history:  make(map[int]domain.PlayerResult),
		})
		s.byNickname[nickname] = id
	}
	p := s.players[id]
	p.connected = true
	p.clientID = clientID

	client := s.fanout.Register(s.code, clientID, nickname)
	s.fanout.Send(s.code, client, domain.NewConnected(nickname, reconnected, s.status, s.index))
	s.fanout.Broadcast(s.code, domain.NewPlayerJoined(nickname, s.connectedLocked()))

	s.log.WithFields(logrus.Fields{"nickname": nickname, "reconnected": reconnected}).Info("player connected")
	return client, nil
}

func (s *Session) disconnect(nickname string, client *hub.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fanout.Unregister(s.code, client)

	id, ok := s.byNickname[nickname]
	if !ok {
		return
	}
	p := s.players[id]
	if !p.connected || p.clientID != client.ID {
		return
	}
	p.connected = false
	s.touchLocked(s.clock.Now())
	s.fanout.Broadcast(s.code, domain.NewPlayerDisconnected(nickname, s.connectedLocked()))
	s.log.WithField("nickname", nickname).Info("player disconnected")
}

func (s *Session) submit(nickname, raw string) (domain.AnswerReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.touchLocked(now)
	s.expireLocked(now)

	switch s.status {
	case domain.StatusWaiting:
		return domain.AnswerReceipt{}, domain.ErrNoActiveQuestion
	case domain.StatusQuestionFinished:
		return domain.AnswerReceipt{}, fmt.Errorf("%w: question %d is closed", domain.ErrQuestionExpired, s.index)
	case domain.StatusFinished:
		return domain.AnswerReceipt{}, domain.ErrSessionFinished
	}

	id, ok := s.byNickname[nickname]
	if !ok {
		return domain.AnswerReceipt{}, fmt.Errorf("%w: %q", domain.ErrUnknownPlayer, nickname)
	}
	if _, dup := s.answers[id]; dup {
		return domain.AnswerReceipt{}, domain.ErrDuplicateAnswer
	}

	answer, err := scoring.Parse(s.question.Type, raw, len(s.question.Options))
	if err != nil {
		return domain.AnswerReceipt{}, err
	}
	correct, points := scoring.Evaluate(s.question, answer, s.correctCount+1)
	rank := 0
	if correct {
		s.correctCount++
		rank = s.correctCount
	}

	s.answers[id] = &domain.AnswerSubmission{
		RawAnswer:     raw,
		ReceivedAt:    now,
		Correct:       correct,
		PointsAwarded: points,
		Rank:          rank,
	}
	p := s.players[id]
	p.score += points
	p.total++
	if correct {
		p.correct++
	}

	s.fanout.Broadcast(s.code, domain.NewAnswerReceived(nickname, len(s.answers), s.connectedLocked()))
	return domain.AnswerReceipt{QuestionIndex: s.index, ReceivedAt: now, Correct: correct}, nil
}

func (s *Session) view() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.touchLocked(now)
	s.expireLocked(now)
	s.markReadLocked()
	return s.viewLocked(now)
}

func (s *Session) viewLocked(now time.Time) domain.SessionView {
	players := make([]domain.PlayerView, 0, len(s.players))
	for _, p := range s.players {
		players = append(players, domain.PlayerView{Nickname: p.nickname, Score: p.score, Connected: p.connected})
	}

	v := domain.SessionView{
		GameCode:             s.code,
		QuizID:               s.quiz.ID,
		QuizTitle:            s.quiz.Title,
		Status:               s.status,
		PlayerCount:          len(s.players),
		Players:              players,
		CurrentQuestionIndex: s.index,
		TotalQuestions:       len(s.quiz.Questions),
		Leaderboard:          rankPlayers(s.players, s.top, false),
		QuestionFinished:     s.status == domain.StatusQuestionFinished,
	}
	if s.status == domain.StatusQuestionActive {
		v.CurrentQuestion = &domain.ActiveQuestion{
			PublicQuestion: s.question.Public(s.index),
			StartedAt:      s.startedAt,
			TimeRemaining:  Remaining(s.question, s.startedAt, now).Seconds(),
			AnswersCount:   len(s.answers),
			Unanswered:     s.unansweredLocked(),
		}
	}
	if s.status == domain.StatusQuestionFinished && s.lastResults != nil {
		v.Results = s.lastResults.Results
	}
	return v
}

func (s *Session) currentQuestion() domain.CurrentQuestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.touchLocked(now)
	s.expireLocked(now)

	out := domain.CurrentQuestion{Status: s.status}
	switch s.status {
	case domain.StatusQuestionActive:
		q := s.question.Public(s.index)
		started := s.startedAt
		out.Question = &q
		out.StartedAt = &started
		out.TimeRemaining = Remaining(s.question, s.startedAt, now).Seconds()
	case domain.StatusFinished:
		out.Message = "game finished"
	default:
		out.Message = "waiting for the next question"
	}
	return out
}

func (s *Session) leaderboard(limit int) []domain.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now()
	s.touchLocked(now)
	s.expireLocked(now)
	s.markReadLocked()
	return rankPlayers(s.players, limit, false)
}

// unansweredLocked lists connected players without an answer, derived on read.
func (s *Session) unansweredLocked() []string {
	out := []string{}
	for _, p := range s.players {
		if _, ok := s.answers[p.id]; !ok && p.connected {
			out = append(out, p.nickname)
		}
	}
	return out
}

func (s *Session) connectedLocked() int {
	n := 0
	for _, p := range s.players {
		if p.connected {
			n++
		}
	}
	return n
}

func (s *Session) touchLocked(now time.Time) {
	s.lastActivity = now
}

func (s *Session) markReadLocked() {
	if s.status == domain.StatusFinished {
		s.finishedRead = true
	}
}

// evictable reports whether the janitor may drop the session: a finished game
// that was read after finishing and has outlived grace, or any session idle
// for longer than idle.
func (s *Session) evictable(now time.Time, idle, grace time.Duration) (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == domain.StatusFinished && s.finishedRead && now.Sub(s.finishedAt) >= grace {
		return true, "finished"
	}
	if idle > 0 && now.Sub(s.lastActivity) >= idle {
		return true, "idle"
	}
	return false, ""
}

func (s *Session) close() {
	s.mu.Lock()
	s.stopTimerLocked()
	s.mu.Unlock()
	s.fanout.CloseRoom(s.code, "game closed")
}
