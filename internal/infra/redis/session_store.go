package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"quiz-session-engine/internal/app"
	"quiz-session-engine/internal/infra/memory"
)

const leaseTimeout = 2 * time.Second

// SessionStore keeps sessions in process and leases their codes in Redis so
// that several engine instances behind one load balancer never hand out the
// same code.
type SessionStore struct {
	*memory.SessionStore
	client   *redis.Client
	ttl      time.Duration
	instance string
	log      logrus.FieldLogger
}

func NewSessionStore(client *redis.Client, ttl time.Duration, instance string, log logrus.FieldLogger) *SessionStore {
	return &SessionStore{
		SessionStore: memory.NewSessionStore(),
		client:       client,
		ttl:          ttl,
		instance:     instance,
		log:          log,
	}
}

func (s *SessionStore) Create(build func(code string) *app.Session) (*app.Session, error) {
	return s.CreateIf(build, s)
}

// Reserve takes the lease on code for this instance.
func (s *SessionStore) Reserve(code string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), leaseTimeout)
	defer cancel()
	return s.client.SetNX(ctx, s.key(code), s.instance, s.ttl).Result()
}

// Release gives up the lease on code.
func (s *SessionStore) Release(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), leaseTimeout)
	defer cancel()
	if err := s.client.Del(ctx, s.key(code)).Err(); err != nil {
		s.log.WithError(err).WithField("game_code", code).Warn("release session lease")
	}
}

func (s *SessionStore) Delete(code string) {
	s.SessionStore.Delete(code)
	s.Release(code)
}

// Touch extends the lease of a live session.
func (s *SessionStore) Touch(code string) {
	ctx, cancel := context.WithTimeout(context.Background(), leaseTimeout)
	defer cancel()
	if err := s.client.Expire(ctx, s.key(code), s.ttl).Err(); err != nil {
		s.log.WithError(err).WithField("game_code", code).Warn("refresh session lease")
	}
}

// Owner returns the instance that leased code, or "" if nobody did.
func (s *SessionStore) Owner(ctx context.Context, code string) (string, error) {
	owner, err := s.client.Get(ctx, s.key(code)).Result()
	if err == redis.Nil {
		return "", nil
	}
	return owner, err
}

func (s *SessionStore) key(code string) string {
	return "quiz:session:" + code
}
