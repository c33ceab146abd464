package grading

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mcQuestion(correct ...int) Question {
	return Question{
		Type:    TypeMultipleChoice,
		Options: []string{"Red", "Green", "Blue", "Yellow"},
		Key:     Key{Indices: correct},
		Points:  decimal.NewFromInt(10),
	}
}

func parse(t *testing.T, typ Type, raw string) Response {
	t.Helper()
	r, err := ParseResponse(typ, json.RawMessage(raw))
	require.NoError(t, err)
	return r
}

func TestMultipleChoice_ExactSetOnly(t *testing.T) {
	q := mcQuestion(0, 2)

	cases := []struct {
		name    string
		answer  string
		correct bool
	}{
		{"exact", `[0,2]`, true},
		{"reordered", `[2,0]`, true},
		{"subset", `[0]`, false},
		{"superset", `[0,1,2]`, false},
		{"disjoint", `[1,3]`, false},
		{"duplicate pick", `[0,0,2]`, false},
		{"string indices", `["0","2"]`, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := Evaluate(q, parse(t, TypeMultipleChoice, tc.answer))
			assert.Equal(t, tc.correct, res.IsCorrect)
			if tc.correct {
				assert.True(t, res.PointsEarned.Equal(decimal.NewFromInt(10)))
			} else {
				assert.True(t, res.PointsEarned.IsZero())
			}
			assert.True(t, res.PointsPossible.Equal(decimal.NewFromInt(10)))
		})
	}
}

func TestMultipleChoice_NoPartialCreditForAnySubsetOrSuperset(t *testing.T) {
	q := mcQuestion(0, 1, 3)
	all := []int{0, 1, 2, 3}

	// every non-empty selection other than {0,1,3} is wrong
	for mask := 1; mask < 1<<len(all); mask++ {
		var pick []int
		for i, idx := range all {
			if mask&(1<<i) != 0 {
				pick = append(pick, idx)
			}
		}
		raw, err := json.Marshal(pick)
		require.NoError(t, err)
		res := Evaluate(q, parse(t, TypeMultipleChoice, string(raw)))
		want := mask == 0b1011
		assert.Equal(t, want, res.IsCorrect, "selection %v", pick)
		if !want {
			assert.True(t, res.PointsEarned.IsZero(), "selection %v", pick)
		}
	}
}

func TestTrueFalse_Normalization(t *testing.T) {
	q := Question{Type: TypeTrueFalse, Key: Key{Value: true}, Points: decimal.NewFromInt(5)}

	cases := []struct {
		answer  string
		correct bool
	}{
		{`[true]`, true},
		{`[false]`, false},
		{`["true"]`, true},
		{`["TRUE"]`, true},
		{`["Yes"]`, true},
		{`["1"]`, true},
		{`[1]`, true},
		{`["on"]`, true},
		{`["no"]`, false},
		{`["0"]`, false},
		{`["maybe"]`, false},
		{`[true,true]`, false},
		{`[{"v":true}]`, false},
	}
	for _, tc := range cases {
		t.Run(tc.answer, func(t *testing.T) {
			res := Evaluate(q, parse(t, TypeTrueFalse, tc.answer))
			assert.Equal(t, tc.correct, res.IsCorrect)
		})
	}
}

func TestShortAnswer_CaseSensitivityToggle(t *testing.T) {
	insensitive := Question{
		Type:   TypeShortAnswer,
		Key:    Key{Accepted: []string{"Paris"}},
		Points: decimal.NewFromInt(2),
	}
	sensitive := insensitive
	sensitive.CaseSensitive = true

	for _, a := range []string{`["paris"]`, `["PARIS"]`, `["  Paris  "]`, `["Paris"]`} {
		assert.True(t, Evaluate(insensitive, parse(t, TypeShortAnswer, a)).IsCorrect, a)
	}

	assert.True(t, Evaluate(sensitive, parse(t, TypeShortAnswer, `["Paris"]`)).IsCorrect)
	assert.True(t, Evaluate(sensitive, parse(t, TypeShortAnswer, `["  Paris "]`)).IsCorrect)
	assert.False(t, Evaluate(sensitive, parse(t, TypeShortAnswer, `["paris"]`)).IsCorrect)
	assert.False(t, Evaluate(sensitive, parse(t, TypeShortAnswer, `["PARIS"]`)).IsCorrect)
}

func TestShortAnswer_AnyAcceptedVariant(t *testing.T) {
	q := Question{
		Type:   TypeShortAnswer,
		Key:    Key{Accepted: []string{"H2O", " water "}},
		Points: decimal.NewFromInt(1),
	}
	assert.True(t, Evaluate(q, parse(t, TypeShortAnswer, `["water"]`)).IsCorrect)
	assert.True(t, Evaluate(q, parse(t, TypeShortAnswer, `["h2o"]`)).IsCorrect)
	assert.False(t, Evaluate(q, parse(t, TypeShortAnswer, `["ice"]`)).IsCorrect)
	assert.False(t, Evaluate(q, parse(t, TypeShortAnswer, `["water","H2O"]`)).IsCorrect)
	assert.False(t, Evaluate(q, parse(t, TypeShortAnswer, `[42]`)).IsCorrect)
}

func TestUnknownTypeIsIncorrect(t *testing.T) {
	q := Question{Type: Type("essay"), Points: decimal.NewFromInt(3)}
	res := Evaluate(q, parse(t, Type("essay"), `["anything"]`))
	assert.False(t, res.IsCorrect)
	assert.True(t, res.PointsEarned.IsZero())
	assert.Equal(t, "Incorrect. Please review the material and try again.", res.Feedback)
}

func TestParseResponse_RejectsEmpty(t *testing.T) {
	for _, raw := range []string{``, `null`, `[]`, `"x"`, `{}`} {
		_, err := ParseResponse(TypeShortAnswer, json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrEmptyResponse, raw)
	}
}

func TestFeedback(t *testing.T) {
	mc := mcQuestion(0, 2)
	assert.Equal(t, "Correct!", Evaluate(mc, MultipleChoice{Indices: []int{2, 0}}).Feedback)
	assert.Equal(t, "Incorrect. The correct answer(s): A. Red, C. Blue",
		Evaluate(mc, MultipleChoice{Indices: []int{1}}).Feedback)

	mc.Explanation = "Primary colours."
	assert.Equal(t, "Correct! Primary colours.", Evaluate(mc, MultipleChoice{Indices: []int{0, 2}}).Feedback)
	assert.Equal(t, "Incorrect. Primary colours.", Evaluate(mc, MultipleChoice{Indices: []int{1}}).Feedback)

	tf := Question{Type: TypeTrueFalse, Key: Key{Value: false}, Points: decimal.NewFromInt(1)}
	assert.Equal(t, "Incorrect. The correct answer is: False", Evaluate(tf, TrueFalse{Value: true}).Feedback)

	sa := Question{Type: TypeShortAnswer, Key: Key{Accepted: []string{"Paris", "paris, france"}}, Points: decimal.NewFromInt(1)}
	assert.Equal(t, "Incorrect. Acceptable answers include: Paris, paris, france",
		Evaluate(sa, ShortAnswer{Text: "Lyon"}).Feedback)
}

func TestParseKey(t *testing.T) {
	k, err := ParseKey(TypeMultipleChoice, json.RawMessage(`[2,0]`))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 0}, k.Indices)

	k, err = ParseKey(TypeTrueFalse, json.RawMessage(`[false]`))
	require.NoError(t, err)
	assert.False(t, k.Value)

	k, err = ParseKey(TypeShortAnswer, json.RawMessage(`["a","b"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, k.Accepted)

	_, err = ParseKey(TypeTrueFalse, json.RawMessage(`[true,false]`))
	assert.Error(t, err)
	_, err = ParseKey(TypeMultipleChoice, json.RawMessage(`[-1]`))
	assert.Error(t, err)
	_, err = ParseKey(TypeShortAnswer, json.RawMessage(`[]`))
	assert.Error(t, err)
}

func TestWithStrategyOverride(t *testing.T) {
	g := NewDefaultGrader(WithStrategy(TypeShortAnswer, alwaysRight{}))
	q := Question{Type: TypeShortAnswer, Key: Key{Accepted: []string{"x"}}, Points: decimal.NewFromInt(4)}
	res := g.Grade(q, ShortAnswer{Text: "y"})
	assert.True(t, res.IsCorrect)
	assert.True(t, res.PointsEarned.Equal(decimal.NewFromInt(4)))

	// malformed responses never reach a strategy
	res = g.Grade(q, Malformed{Reason: "x"})
	assert.False(t, res.IsCorrect)
}

type alwaysRight struct{}

func (alwaysRight) Match(Question, Response) bool { return true }
