package grading

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Item is one question of an attempt as seen by the aggregator. PointsEarned
// is invalid when the question was never answered or not yet graded.
type Item struct {
	PointsPossible decimal.Decimal
	PointsEarned   decimal.NullDecimal
}

// Summary is the attempt-level outcome.
type Summary struct {
	TotalPoints  decimal.Decimal `json:"total_points"`
	EarnedPoints decimal.Decimal `json:"earned_points"`
	Score        decimal.Decimal `json:"score"`
	IsPassed     bool            `json:"is_passed"`
}

// Aggregate sums the items into a percentage score rounded to two places.
// Unanswered items still count toward the total. The result depends only on
// its inputs, so re-running it after a correction is safe.
func Aggregate(items []Item, passingScore decimal.Decimal) Summary {
	total := decimal.Zero
	earned := decimal.Zero
	for _, it := range items {
		total = total.Add(it.PointsPossible)
		if it.PointsEarned.Valid {
			earned = earned.Add(it.PointsEarned.Decimal)
		}
	}
	score := decimal.Zero
	if total.IsPositive() {
		score = earned.Mul(hundred).DivRound(total, 2)
	}
	return Summary{
		TotalPoints:  total,
		EarnedPoints: earned,
		Score:        score,
		IsPassed:     score.GreaterThanOrEqual(passingScore),
	}
}

// Band is a letter-grade bucket used for score distributions.
type Band string

const (
	BandA Band = "A (90-100%)"
	BandB Band = "B (80-89%)"
	BandC Band = "C (70-79%)"
	BandD Band = "D (60-69%)"
	BandF Band = "F (0-59%)"
)

// Bands lists the buckets from highest to lowest.
var Bands = []Band{BandA, BandB, BandC, BandD, BandF}

func LetterBand(score decimal.Decimal) Band {
	switch {
	case score.GreaterThanOrEqual(decimal.NewFromInt(90)):
		return BandA
	case score.GreaterThanOrEqual(decimal.NewFromInt(80)):
		return BandB
	case score.GreaterThanOrEqual(decimal.NewFromInt(70)):
		return BandC
	case score.GreaterThanOrEqual(decimal.NewFromInt(60)):
		return BandD
	default:
		return BandF
	}
}
