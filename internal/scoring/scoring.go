// Package scoring decides correctness and points of submitted answers.
package scoring

import (
	"fmt"

	"quiz-session-engine/internal/domain"
)

var speedBonus = map[int]int{1: 3, 2: 2, 3: 1}

// Bonus returns the speed bonus for the rank-th correct answer.
func Bonus(rank int) int {
	return speedBonus[rank]
}

// BonusRank is rank when it earned a speed bonus on q, and 0 otherwise.
func BonusRank(q domain.Question, rank int) int {
	if q.SpeedBonus && Bonus(rank) > 0 {
		return rank
	}
	return 0
}

// Evaluate scores a submission. rank is the position the answer would take
// among correct answers of the question, counted from 1 in arrival order.
func Evaluate(q domain.Question, a Answer, rank int) (bool, int) {
	correct, err := ParseCorrect(q)
	if err != nil || !a.equal(correct) {
		return false, 0
	}
	points := q.Points
	if q.SpeedBonus {
		points += Bonus(rank)
	}
	return true, points
}

// Validate checks that every correct answer of quiz decodes for its type.
func Validate(quiz domain.Quiz) error {
	for i, q := range quiz.Questions {
		if _, err := ParseCorrect(q); err != nil {
			return fmt.Errorf("%w: question %d: %v", domain.ErrInvalidQuiz, i, err)
		}
	}
	return nil
}

// ShuffleOptions reorders the options of an order question by perm, where
// perm[k] is the original index shown at position k, and rewrites the correct
// answer against the new positions. Other question types are returned as is.
func ShuffleOptions(q domain.Question, perm []int) (domain.Question, error) {
	if q.Type != domain.Order || len(perm) != len(q.Options) {
		return q, nil
	}
	correct, err := ParseCorrect(q)
	if err != nil {
		return q, err
	}

	position := make([]int, len(perm))
	options := make([]string, len(perm))
	for k, orig := range perm {
		options[k] = q.Options[orig]
		position[orig] = k
	}
	seq := correct.(OrderAnswer).Sequence
	remapped := make([]int, len(seq))
	for i, orig := range seq {
		remapped[i] = position[orig]
	}

	q.Options = options
	q.CorrectAnswer = OrderAnswer{Sequence: remapped}.Encode()
	return q, nil
}
