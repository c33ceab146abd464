package grading

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func earned(s string) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d(s), Valid: true}
}

func TestAggregate_MixedResult(t *testing.T) {
	items := []Item{
		{PointsPossible: d("10"), PointsEarned: earned("10")},
		{PointsPossible: d("5"), PointsEarned: earned("0")},
	}
	s := Aggregate(items, d("70"))
	assert.True(t, s.TotalPoints.Equal(d("15")))
	assert.True(t, s.EarnedPoints.Equal(d("10")))
	assert.Equal(t, "66.67", s.Score.StringFixed(2))
	assert.False(t, s.IsPassed)
}

func TestAggregate_UnansweredCountsTowardTotal(t *testing.T) {
	items := []Item{
		{PointsPossible: d("4"), PointsEarned: earned("4")},
		{PointsPossible: d("4")},
	}
	s := Aggregate(items, d("50"))
	assert.Equal(t, "50.00", s.Score.StringFixed(2))
	assert.True(t, s.IsPassed)
}

func TestAggregate_ZeroQuestions(t *testing.T) {
	s := Aggregate(nil, d("70"))
	assert.True(t, s.Score.IsZero())
	assert.False(t, s.IsPassed)

	s = Aggregate(nil, d("0"))
	assert.True(t, s.IsPassed)
}

func TestAggregate_Idempotent(t *testing.T) {
	items := []Item{
		{PointsPossible: d("3"), PointsEarned: earned("3")},
		{PointsPossible: d("3"), PointsEarned: earned("0")},
		{PointsPossible: d("3"), PointsEarned: earned("3")},
	}
	first := Aggregate(items, d("66.67"))
	second := Aggregate(items, d("66.67"))
	assert.True(t, first.Score.Equal(second.Score))
	assert.Equal(t, first.IsPassed, second.IsPassed)
	assert.Equal(t, "66.67", first.Score.StringFixed(2))
	assert.True(t, first.IsPassed)
}

func TestAggregate_PassBoundaryInclusive(t *testing.T) {
	items := []Item{{PointsPossible: d("10"), PointsEarned: earned("7")}}
	assert.True(t, Aggregate(items, d("70")).IsPassed)
	assert.False(t, Aggregate(items, d("70.01")).IsPassed)
}

func TestLetterBand(t *testing.T) {
	assert.Equal(t, BandA, LetterBand(d("100")))
	assert.Equal(t, BandA, LetterBand(d("90")))
	assert.Equal(t, BandB, LetterBand(d("89.99")))
	assert.Equal(t, BandC, LetterBand(d("70")))
	assert.Equal(t, BandD, LetterBand(d("60")))
	assert.Equal(t, BandF, LetterBand(d("59.99")))
}
