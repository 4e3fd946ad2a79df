package reconcile

import (
	"github.com/shopspring/decimal"

	"github.com/wastebroker/ops-platform/internal/models"
)

// Ranking weights. They only pick which PO line item to compare against;
// the similarity and price gates decide whether the comparison is a match.
const (
	DescriptionWeight = 0.7
	PriceWeight       = 0.3
)

var hundred = decimal.NewFromInt(100)

// CandidateScore is one vendor line item scored against one PO line item
type CandidateScore struct {
	POLineItem                models.POLineItem
	DescriptionSimilarity     float64
	PriceDifference           decimal.Decimal
	PriceDifferencePercentage decimal.Decimal
	PriceScore                float64
	OverallScore              float64
}

// LineItemMatch is the matcher's decision for one vendor line item.
// Best is the highest-ranked candidate even when Outcome is unmatched.
type LineItemMatch struct {
	Best             *CandidateScore
	Outcome          models.ComparisonOutcome
	Action           models.RecommendedAction
	SimilarityGateOK bool
	PriceToleranceOK bool
}

// Matched reports whether Best counts as a real match
func (m LineItemMatch) Matched() bool {
	return m.Outcome == models.OutcomeExact || m.Outcome == models.OutcomeFuzzy
}

// Matcher scores and classifies vendor line items
type Matcher struct {
	MaxDescriptionRunes int
}

// NewMatcher creates a matcher; maxRunes caps description length before
// edit distance is computed
func NewMatcher(maxRunes int) *Matcher {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxDescriptionRunes
	}
	return &Matcher{MaxDescriptionRunes: maxRunes}
}

// Score computes similarity, price delta and the weighted ranking score
func (m *Matcher) Score(item models.VendorLineItem, candidate models.POLineItem) CandidateScore {
	similarity := SimilarityWithLimit(item.Description, candidate.Description, m.MaxDescriptionRunes)
	difference := item.Amount.Sub(candidate.Amount)
	percentage := PriceDifferencePercentage(item.Amount, candidate.Amount)

	priceScore := 100 - percentage.InexactFloat64()
	if priceScore < 0 {
		priceScore = 0
	}

	return CandidateScore{
		POLineItem:                candidate,
		DescriptionSimilarity:     similarity,
		PriceDifference:           difference,
		PriceDifferencePercentage: percentage,
		PriceScore:                priceScore,
		OverallScore:              DescriptionWeight*similarity + PriceWeight*priceScore,
	}
}

// PriceDifferencePercentage is |vendor - po| / |po| * 100, or 100 when the
// PO amount is zero
func PriceDifferencePercentage(vendorAmount, poAmount decimal.Decimal) decimal.Decimal {
	if poAmount.IsZero() {
		return hundred
	}
	return vendorAmount.Sub(poAmount).Abs().Div(poAmount.Abs()).Mul(hundred)
}

// MatchLineItem picks the best candidate and classifies it. Candidates are
// ranked by OverallScore; on equal scores the earliest candidate wins.
func (m *Matcher) MatchLineItem(item models.VendorLineItem, candidates []models.POLineItem, settings *models.ReconciliationSettings) LineItemMatch {
	var best *CandidateScore
	for _, candidate := range candidates {
		score := m.Score(item, candidate)
		if best == nil || score.OverallScore > best.OverallScore {
			s := score
			best = &s
		}
	}

	if best == nil {
		return LineItemMatch{
			Outcome: models.OutcomeUnmatched,
			Action:  models.ActionFlagDiscrepancy,
		}
	}

	result := LineItemMatch{
		Best:             best,
		SimilarityGateOK: best.DescriptionSimilarity >= settings.FuzzyMatchThreshold.InexactFloat64(),
		PriceToleranceOK: best.PriceDifferencePercentage.LessThanOrEqual(settings.PriceTolerancePercentage),
	}

	switch {
	case best.DescriptionSimilarity == 100 && result.PriceToleranceOK:
		result.Outcome = models.OutcomeExact
		result.Action = models.ActionReview
		if settings.AutoApproveExactMatches {
			result.Action = models.ActionAutoApprove
		}
	case result.SimilarityGateOK && result.PriceToleranceOK:
		result.Outcome = models.OutcomeFuzzy
		result.Action = models.ActionReview
	default:
		result.Outcome = models.OutcomeUnmatched
		result.Action = models.ActionFlagDiscrepancy
	}

	return result
}
