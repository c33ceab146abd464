package grading

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Strategy decides whether a response matches a question's key.
type Strategy interface {
	Match(q Question, r Response) bool
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(q Question, r Response) Result
}

type defaultGrader struct {
	strategies map[Type]Strategy
}

// Grade never fails: an unknown type or a Malformed response is simply wrong.
// Scoring is binary, either the full question points or zero.
func (g *defaultGrader) Grade(q Question, r Response) Result {
	correct := false
	if _, bad := r.(Malformed); !bad && r != nil {
		if s, ok := g.strategies[q.Type]; ok {
			correct = s.Match(q, r)
		}
	}
	res := Result{
		IsCorrect:      correct,
		PointsEarned:   decimal.Zero,
		PointsPossible: q.Points,
		Feedback:       feedback(q, correct),
	}
	if correct {
		res.PointsEarned = q.Points
	}
	return res
}

type Option func(*config)

type config struct {
	strategies map[Type]Strategy
}

// WithStrategy installs or replaces the strategy for a question type.
func WithStrategy(t Type, s Strategy) Option {
	return func(c *config) { c.strategies[t] = s }
}

// NewDefaultGrader installs built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{
		strategies: map[Type]Strategy{
			TypeMultipleChoice: multipleChoiceStrategy{},
			TypeTrueFalse:      trueFalseStrategy{},
			TypeShortAnswer:    shortAnswerStrategy{},
		},
	}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{strategies: cfg.strategies}
}

var std = NewDefaultGrader()

// Evaluate grades r against q with the built-in strategies.
func Evaluate(q Question, r Response) Result {
	return std.Grade(q, r)
}

// --- Strategies ---

// multipleChoiceStrategy requires the exact set of correct indices; selection
// order does not matter and there is no partial credit.
type multipleChoiceStrategy struct{}

func (multipleChoiceStrategy) Match(q Question, r Response) bool {
	mc, ok := r.(MultipleChoice)
	if !ok {
		return false
	}
	return equalSorted(mc.Indices, q.Key.Indices)
}

type trueFalseStrategy struct{}

func (trueFalseStrategy) Match(q Question, r Response) bool {
	tf, ok := r.(TrueFalse)
	if !ok {
		return false
	}
	return tf.Value == q.Key.Value
}

type shortAnswerStrategy struct{}

func (shortAnswerStrategy) Match(q Question, r Response) bool {
	sa, ok := r.(ShortAnswer)
	if !ok {
		return false
	}
	for _, k := range q.Key.Accepted {
		if textEqual(sa.Text, k, q.CaseSensitive) {
			return true
		}
	}
	return false
}

// helpers

func equalSorted(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	x := append([]int(nil), a...)
	y := append([]int(nil), b...)
	sort.Ints(x)
	sort.Ints(y)
	for i := range x {
		if x[i] != y[i] {
			return false
		}
	}
	return true
}
