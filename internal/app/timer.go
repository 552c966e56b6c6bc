package app

import (
	"time"

	"quiz-session-engine/internal/domain"
)

// Deadline is the instant a question started at startedAt stops accepting answers.
func Deadline(q domain.Question, startedAt time.Time) time.Time {
	return startedAt.Add(q.TimeLimitDuration())
}

// Remaining is max(0, limit - (now - startedAt)).
func Remaining(q domain.Question, startedAt, now time.Time) time.Duration {
	left := Deadline(q, startedAt).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether now is at or past the deadline.
func Expired(q domain.Question, startedAt, now time.Time) bool {
	return !now.Before(Deadline(q, startedAt))
}
