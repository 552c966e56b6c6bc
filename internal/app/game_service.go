package app

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
	"quiz-session-engine/internal/domain"
	"quiz-session-engine/internal/hub"
	"quiz-session-engine/internal/logging"
	"quiz-session-engine/internal/metrics"
	"quiz-session-engine/internal/scoring"
)

// SessionRepository indexes live sessions by code.
type SessionRepository interface {
	// Create allocates a free code, stores the session built for it and
	// returns it. Implementations retry on code collisions.
	Create(build func(code string) *Session) (*Session, error)
	Get(code string) (*Session, bool)
	Delete(code string)
	List() []*Session
}

// Keepaliver is implemented by stores that hold external leases on codes.
type Keepaliver interface {
	Touch(code string)
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultsArchive stores final results for export tooling. LoadGame returns
// an error wrapping domain.ErrUnknownSession when nothing is stored for code.
type ResultsArchive interface {
	SaveGame(ctx context.Context, summary domain.GameSummary) error
	LoadGame(ctx context.Context, code string) (domain.GameSummary, error)
}

// publishTimeout bounds archive and notifier calls after a game ends.
const publishTimeout = 10 * time.Second

// GameNotifier tells downstream consumers (rating) that a game ended.
type GameNotifier interface {
	GameFinished(ctx context.Context, summary domain.GameSummary) error
}

// Config wires a GameService.
type Config struct {
	Sessions SessionRepository
	Quizzes  QuizRepository
	Hub      Fanout
	Clock    Clock
	Logger   logrus.FieldLogger
	Metrics  *metrics.Metrics
	Archive  ResultsArchive
	Notifier GameNotifier

	ShuffleOrder    bool
	LeaderboardSize int
	IdleTimeout     time.Duration
	FinishedGrace   time.Duration
}

// GameService is the entry point for host and player commands.
type GameService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	fanout   Fanout
	clock    Clock
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
	archive  ResultsArchive
	notifier GameNotifier

	shuffle         func(n int) []int
	leaderboardSize int
	idleTimeout     time.Duration
	finishedGrace   time.Duration
}

func NewGameService(cfg Config) *GameService {
	if cfg.Clock == nil {
		cfg.Clock = SystemClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	if cfg.Hub == nil {
		cfg.Hub = hub.New(0, cfg.Logger, cfg.Metrics)
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 10
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 2 * time.Hour
	}
	s := &GameService{
		sessions:        cfg.Sessions,
		quizzes:         cfg.Quizzes,
		fanout:          cfg.Hub,
		clock:           cfg.Clock,
		log:             cfg.Logger,
		metrics:         cfg.Metrics,
		archive:         cfg.Archive,
		notifier:        cfg.Notifier,
		leaderboardSize: cfg.LeaderboardSize,
		idleTimeout:     cfg.IdleTimeout,
		finishedGrace:   cfg.FinishedGrace,
	}
	if cfg.ShuffleOrder {
		s.shuffle = rand.Perm
	}
	return s
}

// CreateSession snapshots quizID and opens a waiting session hosted by hostID.
func (s *GameService) CreateSession(ctx context.Context, hostID, quizID string) (domain.CreatedGame, error) {
	if hostID == "" {
		return domain.CreatedGame{}, domain.ErrNotHost
	}
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.CreatedGame{}, fmt.Errorf("load quiz %s: %w", quizID, err)
	}
	if quiz.OwnerID != "" && quiz.OwnerID != hostID {
		return domain.CreatedGame{}, domain.ErrNotHost
	}
	snapshot := quiz.Snapshot()
	if err := snapshot.Validate(); err != nil {
		return domain.CreatedGame{}, err
	}
	if err := scoring.Validate(snapshot); err != nil {
		return domain.CreatedGame{}, err
	}

	session, err := s.sessions.Create(func(code string) *Session {
		return NewSession(code, hostID, snapshot, SessionOptions{
			Clock:           s.clock,
			Fanout:          s.fanout,
			Logger:          s.log,
			Metrics:         s.metrics,
			Shuffle:         s.shuffle,
			LeaderboardSize: s.leaderboardSize,
		})
	})
	if err != nil {
		return domain.CreatedGame{}, err
	}

	s.metrics.SessionCreated()
	s.log.WithFields(logrus.Fields{
		"game_code": session.Code(),
		"quiz_id":   quizID,
		"host_id":   hostID,
	}).Info("game created")

	return domain.CreatedGame{
		GameCode:      session.Code(),
		QuizTitle:     snapshot.Title,
		QuestionCount: len(snapshot.Questions),
	}, nil
}

// SessionInfo returns the full host view of a session.
func (s *GameService) SessionInfo(hostID, code string) (domain.SessionView, error) {
	session, err := s.hosted(hostID, code)
	if err != nil {
		return domain.SessionView{}, err
	}
	return session.view(), nil
}

// StartQuestion activates question index.
func (s *GameService) StartQuestion(hostID, code string, index int) (domain.SessionView, error) {
	session, err := s.hosted(hostID, code)
	if err != nil {
		return domain.SessionView{}, err
	}
	return session.startQuestion(index)
}

// FinishQuestion closes the active question, or returns the results of the
// question that already closed.
func (s *GameService) FinishQuestion(hostID, code string) (domain.QuestionResults, error) {
	session, err := s.hosted(hostID, code)
	if err != nil {
		return domain.QuestionResults{}, err
	}
	return session.finishQuestion()
}

// FinishGame ends the session. Calling it again returns the same summary
// without notifying anyone a second time.
func (s *GameService) FinishGame(ctx context.Context, hostID, code string) (domain.GameSummary, error) {
	session, err := s.hosted(hostID, code)
	if err != nil {
		return domain.GameSummary{}, err
	}
	summary, changed := session.finishGame()
	if changed {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		s.publish(pubCtx, summary)
	}
	return summary, nil
}

// Results returns the full report of a session for export tooling. Once the
// session has been evicted the report is read back from the archive.
func (s *GameService) Results(ctx context.Context, hostID, code string) (domain.GameSummary, error) {
	session, err := s.hosted(hostID, code)
	if err == nil {
		return session.report(), nil
	}
	if s.archive == nil || !errors.Is(err, domain.ErrUnknownSession) {
		return domain.GameSummary{}, err
	}
	summary, err := s.archive.LoadGame(ctx, NormalizeCode(code))
	if err != nil {
		return domain.GameSummary{}, err
	}
	if hostID == "" || hostID != summary.HostID {
		return domain.GameSummary{}, domain.ErrNotHost
	}
	return summary, nil
}

// CurrentQuestion is the player pull path; it never exposes the correct answer.
func (s *GameService) CurrentQuestion(code string) (domain.CurrentQuestion, error) {
	session, err := s.get(code)
	if err != nil {
		return domain.CurrentQuestion{}, err
	}
	return session.currentQuestion(), nil
}

// Leaderboard returns the top limit players; limit <= 0 returns everyone.
func (s *GameService) Leaderboard(code string, limit int) ([]domain.LeaderboardEntry, error) {
	session, err := s.get(code)
	if err != nil {
		return nil, err
	}
	return session.leaderboard(limit), nil
}

// Connect joins or rejoins nickname and registers a hub client for it.
func (s *GameService) Connect(code, nickname, clientID string) (*hub.Client, error) {
	session, err := s.get(code)
	if err != nil {
		return nil, err
	}
	return session.connect(nickname, clientID)
}

// Disconnect marks the player offline if client is still its live connection.
func (s *GameService) Disconnect(code, nickname string, client *hub.Client) {
	session, err := s.get(code)
	if err != nil {
		s.fanout.Unregister(NormalizeCode(code), client)
		return
	}
	session.disconnect(nickname, client)
}

// SubmitAnswer records and scores an answer of nickname for the active question.
func (s *GameService) SubmitAnswer(code, nickname, raw string) (domain.AnswerReceipt, error) {
	session, err := s.get(code)
	if err != nil {
		return domain.AnswerReceipt{}, err
	}
	receipt, err := session.submit(nickname, raw)
	switch {
	case err != nil:
		s.metrics.Answer(domain.Code(err))
	case receipt.Correct:
		s.metrics.Answer("correct")
	default:
		s.metrics.Answer("incorrect")
	}
	return receipt, err
}

// Reply sends e to a single client of the session.
func (s *GameService) Reply(code string, client *hub.Client, e hub.Event) bool {
	return s.fanout.Send(NormalizeCode(code), client, e)
}

// Sweep evicts sessions that are done or idle and returns how many it dropped.
func (s *GameService) Sweep(now time.Time) int {
	evicted := 0
	for _, session := range s.sessions.List() {
		ok, reason := session.evictable(now, s.idleTimeout, s.finishedGrace)
		if !ok {
			if k, isKeepaliver := s.sessions.(Keepaliver); isKeepaliver {
				k.Touch(session.Code())
			}
			continue
		}
		session.close()
		s.sessions.Delete(session.Code())
		s.metrics.SessionEvicted(reason)
		s.log.WithFields(logrus.Fields{"game_code": session.Code(), "reason": reason}).Info("game evicted")
		evicted++
	}
	return evicted
}

// RunJanitor sweeps every interval until ctx is done.
func (s *GameService) RunJanitor(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(s.clock.Now())
		}
	}
}

func (s *GameService) get(code string) (*Session, error) {
	code = NormalizeCode(code)
	session, ok := s.sessions.Get(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSession, code)
	}
	return session, nil
}

func (s *GameService) hosted(hostID, code string) (*Session, error) {
	session, err := s.get(code)
	if err != nil {
		return nil, err
	}
	if err := session.authorize(hostID); err != nil {
		return nil, err
	}
	return session, nil
}

// publish hands the summary to the archive and the notifier. Failures are
// logged; the game itself is already finished.
func (s *GameService) publish(ctx context.Context, summary domain.GameSummary) {
	log := s.log.WithField("game_code", summary.GameCode)
	if s.archive != nil {
		if err := s.archive.SaveGame(ctx, summary); err != nil {
			log.WithError(err).Error("archive game results")
		}
	}
	if s.notifier != nil {
		if err := s.notifier.GameFinished(ctx, summary); err != nil {
			log.WithError(err).Error("notify game finished")
		}
	}
}
