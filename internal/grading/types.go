package grading

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Type is a question type understood by the grader.
type Type string

const (
	TypeMultipleChoice Type = "multiple_choice"
	TypeTrueFalse      Type = "true_false"
	TypeShortAnswer    Type = "short_answer"
)

func (t Type) Valid() bool {
	switch t {
	case TypeMultipleChoice, TypeTrueFalse, TypeShortAnswer:
		return true
	}
	return false
}

// Key is the decoded correct_answers of a question. Only the field matching
// the question type is meaningful.
type Key struct {
	Indices  []int    // multiple_choice: 0-based option indices
	Value    bool     // true_false
	Accepted []string // short_answer: acceptable variants
}

// Question is the grading view of a stored question.
type Question struct {
	Type          Type
	Options       []string
	Key           Key
	CaseSensitive bool
	Points        decimal.Decimal
	Explanation   string
}

// Result is the outcome of grading one submitted answer.
type Result struct {
	IsCorrect      bool            `json:"is_correct"`
	PointsEarned   decimal.Decimal `json:"points_earned"`
	PointsPossible decimal.Decimal `json:"points_possible"`
	Feedback       string          `json:"feedback"`
}

// ParseKey decodes a correct_answers payload for the given type.
//
//	multiple_choice: [0, 2]
//	true_false:      [true]
//	short_answer:    ["Paris", "paris, france"]
func ParseKey(t Type, raw json.RawMessage) (Key, error) {
	elems, err := splitArray(raw)
	if err != nil {
		return Key{}, fmt.Errorf("correct_answers: %w", err)
	}
	var k Key
	switch t {
	case TypeMultipleChoice:
		for _, e := range elems {
			idx, ok := asIndex(e)
			if !ok {
				return Key{}, fmt.Errorf("correct_answers: %s is not an option index", e)
			}
			k.Indices = append(k.Indices, idx)
		}
	case TypeTrueFalse:
		if len(elems) != 1 {
			return Key{}, fmt.Errorf("correct_answers: true_false needs exactly one value, got %d", len(elems))
		}
		v, ok := asBool(elems[0])
		if !ok {
			return Key{}, fmt.Errorf("correct_answers: %s is not a boolean", elems[0])
		}
		k.Value = v
	case TypeShortAnswer:
		for _, e := range elems {
			s, ok := asString(e)
			if !ok {
				return Key{}, fmt.Errorf("correct_answers: %s is not a string", e)
			}
			k.Accepted = append(k.Accepted, s)
		}
	default:
		return Key{}, fmt.Errorf("unknown question type %q", t)
	}
	return k, nil
}
