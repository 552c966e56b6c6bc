package scoring

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"quiz-session-engine/internal/domain"
)

// Answer is a decoded submission. Each question type has its own variant.
type Answer interface {
	Type() domain.QuestionType
	// Encode returns the wire encoding of the answer.
	Encode() string
	equal(Answer) bool
}

// SingleChoiceAnswer is the chosen option index.
type SingleChoiceAnswer struct {
	Index int
}

func (SingleChoiceAnswer) Type() domain.QuestionType { return domain.SingleChoice }

func (a SingleChoiceAnswer) Encode() string { return strconv.Itoa(a.Index) }

func (a SingleChoiceAnswer) equal(other Answer) bool {
	o, ok := other.(SingleChoiceAnswer)
	return ok && o.Index == a.Index
}

// MultipleChoiceAnswer is a set of option indices, kept sorted and unique.
type MultipleChoiceAnswer struct {
	Indices []int
}

func (MultipleChoiceAnswer) Type() domain.QuestionType { return domain.MultipleChoice }

func (a MultipleChoiceAnswer) Encode() string { return encodeInts(a.Indices) }

func (a MultipleChoiceAnswer) equal(other Answer) bool {
	o, ok := other.(MultipleChoiceAnswer)
	return ok && slices.Equal(a.Indices, o.Indices)
}

// NumberAnswer is a numeric literal compared by exact value.
type NumberAnswer struct {
	Value decimal.Decimal
}

func (NumberAnswer) Type() domain.QuestionType { return domain.Number }

func (a NumberAnswer) Encode() string { return a.Value.String() }

func (a NumberAnswer) equal(other Answer) bool {
	o, ok := other.(NumberAnswer)
	return ok && a.Value.Equal(o.Value)
}

// OrderAnswer is a permutation of option indices.
type OrderAnswer struct {
	Sequence []int
}

func (OrderAnswer) Type() domain.QuestionType { return domain.Order }

func (a OrderAnswer) Encode() string { return encodeInts(a.Sequence) }

func (a OrderAnswer) equal(other Answer) bool {
	o, ok := other.(OrderAnswer)
	return ok && slices.Equal(a.Sequence, o.Sequence)
}

// Parse decodes raw using the encoding of question type t. optionCount bounds
// the accepted indices; zero disables the bound.
func Parse(t domain.QuestionType, raw string, optionCount int) (Answer, error) {
	raw = strings.TrimSpace(raw)
	switch t {
	case domain.SingleChoice:
		idx, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an option index", domain.ErrInvalidAnswer, raw)
		}
		if err := checkIndex(idx, optionCount); err != nil {
			return nil, err
		}
		return SingleChoiceAnswer{Index: idx}, nil

	case domain.MultipleChoice:
		indices, err := parseInts(raw, optionCount)
		if err != nil {
			return nil, err
		}
		slices.Sort(indices)
		return MultipleChoiceAnswer{Indices: slices.Compact(indices)}, nil

	case domain.Number:
		v, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a number", domain.ErrInvalidAnswer, raw)
		}
		return NumberAnswer{Value: v}, nil

	case domain.Order:
		seq, err := parseInts(raw, optionCount)
		if err != nil {
			return nil, err
		}
		if optionCount > 0 && !isPermutation(seq, optionCount) {
			return nil, fmt.Errorf("%w: %s is not a permutation of %d options", domain.ErrInvalidAnswer, raw, optionCount)
		}
		return OrderAnswer{Sequence: seq}, nil
	}
	return nil, fmt.Errorf("%w: unknown question type %q", domain.ErrInvalidAnswer, t)
}

// ParseCorrect decodes the correct answer of q.
func ParseCorrect(q domain.Question) (Answer, error) {
	a, err := Parse(q.Type, q.CorrectAnswer, len(q.Options))
	if err != nil {
		return nil, fmt.Errorf("question %q correct answer: %w", q.ID, err)
	}
	return a, nil
}

func parseInts(raw string, optionCount int) ([]int, error) {
	var out []int
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("%w: %q is not a JSON array of indices", domain.ErrInvalidAnswer, raw)
	}
	for _, idx := range out {
		if err := checkIndex(idx, optionCount); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func checkIndex(idx, optionCount int) error {
	if idx < 0 || (optionCount > 0 && idx >= optionCount) {
		return fmt.Errorf("%w: option index %d out of range", domain.ErrInvalidAnswer, idx)
	}
	return nil
}

func isPermutation(seq []int, n int) bool {
	if len(seq) != n {
		return false
	}
	seen := make([]bool, n)
	for _, idx := range seq {
		if seen[idx] {
			return false
		}
		seen[idx] = true
	}
	return true
}

func encodeInts(v []int) string {
	if v == nil {
		v = []int{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}
