package loyalty_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/loyalty-engine/loyalty"
)

// =============================================================================
// SUB-SCORE BOUNDS
// =============================================================================

func TestFrequencyScore_Bounds(t *testing.T) {
	// GIVEN: Purchase counts from zero to far past saturation
	// THEN: Score stays within [0,50], linear at 2.5/purchase until the cap

	assert.Equal(t, 0.0, loyalty.FrequencyScore(0))
	assert.Equal(t, 2.5, loyalty.FrequencyScore(1))
	assert.Equal(t, 25.0, loyalty.FrequencyScore(10))
	assert.Equal(t, 50.0, loyalty.FrequencyScore(20), "saturates at 20 purchases")
	assert.Equal(t, 50.0, loyalty.FrequencyScore(1000), "stays capped")
}

func TestConsistencyScore_IdealCadence(t *testing.T) {
	// GIVEN: 10 purchases over 140 days (average gap exactly 14 days)
	// THEN: Maximum score of 30

	assert.Equal(t, 30.0, loyalty.ConsistencyScore(10, 140))
}

func TestConsistencyScore_ZeroGuards(t *testing.T) {
	// GIVEN: Zero purchases or zero elapsed days
	// THEN: Score is 0, no division by zero

	assert.Equal(t, 0.0, loyalty.ConsistencyScore(0, 100))
	assert.Equal(t, 0.0, loyalty.ConsistencyScore(10, 0))
	assert.Equal(t, 0.0, loyalty.ConsistencyScore(0, 0))
}

func TestConsistencyScore_SymmetricPenalty(t *testing.T) {
	// GIVEN: Cadences deviating from the 14-day ideal in both directions
	// THEN: Each day of deviation costs one point, symmetrically

	// Too frequent: 10 purchases over 100 days, gap 10 → |10-14| = 4 off
	assert.InDelta(t, 26.0, loyalty.ConsistencyScore(10, 100), 0.001)
	// Too sparse: 10 purchases over 180 days, gap 18 → |18-14| = 4 off
	assert.InDelta(t, 26.0, loyalty.ConsistencyScore(10, 180), 0.001)
	// Far off the ideal floors at zero
	assert.Equal(t, 0.0, loyalty.ConsistencyScore(1, 365))
}

func TestEngagementScore_Bounds(t *testing.T) {
	// GIVEN: Feedback and comeback counters
	// THEN: 5/feedback + 3/comeback, capped at 20

	assert.Equal(t, 0.0, loyalty.EngagementScore(0, 0))
	assert.Equal(t, 5.0, loyalty.EngagementScore(1, 0))
	assert.Equal(t, 8.0, loyalty.EngagementScore(1, 1))
	assert.Equal(t, 20.0, loyalty.EngagementScore(4, 0), "saturates at 4 feedbacks")
	assert.Equal(t, 20.0, loyalty.EngagementScore(10, 10), "stays capped")
}

func TestTotalScore_SumsSubScores(t *testing.T) {
	// GIVEN: A customer with activity in every dimension
	// THEN: Total is the sum of the three sub-scores

	s := loyalty.TotalScore(10, 140, 2, 1)
	assert.Equal(t, 25.0, s.Frequency)
	assert.Equal(t, 30.0, s.Consistency)
	assert.Equal(t, 13.0, s.Engagement)
	assert.Equal(t, 68.0, s.Total)
}

// =============================================================================
// STATUS DETERMINATION
// =============================================================================

func TestDetermineStatus_ZeroInputs_New(t *testing.T) {
	// GIVEN: A customer with no activity at all
	// THEN: NEW (the zero-threshold default tier)

	assert.Equal(t, loyalty.StatusNew, loyalty.DetermineStatus(0, 0, 0, 0))
}

func TestDetermineStatus_RegularRequiresAllFour(t *testing.T) {
	// GIVEN: Inputs that meet some but not all of REGULAR's thresholds
	// THEN: The tier is held only when every dimension passes

	// All four met
	assert.Equal(t, loyalty.StatusRegular, loyalty.DetermineStatus(2, 20, 0, 7))
	// Purchases short
	assert.Equal(t, loyalty.StatusNew, loyalty.DetermineStatus(1, 30, 10, 30))
	// Consistency short
	assert.Equal(t, loyalty.StatusNew, loyalty.DetermineStatus(5, 19.9, 10, 30))
	// Tenure short
	assert.Equal(t, loyalty.StatusNew, loyalty.DetermineStatus(5, 30, 10, 6))
}

func TestDetermineStatus_UpperTiersUnreachable(t *testing.T) {
	// GIVEN: The best possible sub-scores (consistency caps at 30,
	//        engagement at 20) and heavy purchase activity
	// THEN: TRUSTED and above are never returned, because their
	//       consistency thresholds sit above the score ceiling

	assert.Equal(t, loyalty.StatusRegular, loyalty.DetermineStatus(100, 30, 20, 365))
}

func TestNextStatusRequirements_Ladder(t *testing.T) {
	// GIVEN: Each tier in the ladder
	// THEN: The next tier and its thresholds, nil at the top

	next := loyalty.NextStatusRequirements(loyalty.StatusNew)
	assert.Equal(t, loyalty.StatusRegular, next.Status)
	assert.Equal(t, 2, next.Thresholds.MinPurchases)

	next = loyalty.NextStatusRequirements(loyalty.StatusInsider)
	assert.Equal(t, loyalty.StatusAdvocate, next.Status)
	assert.Equal(t, 180, next.Thresholds.MinDays)

	assert.Nil(t, loyalty.NextStatusRequirements(loyalty.StatusAdvocate))
}

// =============================================================================
// MILESTONE PROGRESS
// =============================================================================

func TestMilestoneProgress_TopTierSaturates(t *testing.T) {
	// GIVEN: A customer at ADVOCATE, regardless of inputs
	// THEN: Progress is exactly 100

	assert.Equal(t, 100.0, loyalty.MilestoneProgress(loyalty.StatusAdvocate, 0, 0, 0, 0))
	assert.Equal(t, 100.0, loyalty.MilestoneProgress(loyalty.StatusAdvocate, 50, 30, 20, 400))
}

func TestMilestoneProgress_BindingConstraint(t *testing.T) {
	// GIVEN: A NEW customer with one purchase, perfect consistency,
	//        and 7 days of tenure (REGULAR needs 2/20/0/7)
	// THEN: Progress is the minimum ratio: purchases at 1/2 = 50%

	progress := loyalty.MilestoneProgress(loyalty.StatusNew, 1, 30, 0, 7)
	assert.Equal(t, 50.0, progress)
}

func TestMilestoneProgress_ZeroThresholdSatisfied(t *testing.T) {
	// GIVEN: REGULAR's engagement threshold is 0
	// THEN: Zero engagement does not hold progress back

	progress := loyalty.MilestoneProgress(loyalty.StatusNew, 2, 20, 0, 7)
	assert.Equal(t, 100.0, progress)
}

func TestMilestoneProgress_RoundedTwoDecimals(t *testing.T) {
	// GIVEN: A ratio that does not divide evenly (1/3 purchases toward
	//        TRUSTED would, but use tenure: 10/30 days)
	// THEN: Two-decimal rounding

	// REGULAR → TRUSTED needs 5/40/10/30. One dimension at 1/3.
	progress := loyalty.MilestoneProgress(loyalty.StatusRegular, 5, 40, 10, 10)
	assert.Equal(t, 33.33, progress)
}

// =============================================================================
// POINT AWARDS
// =============================================================================

func TestCalculatePurchasePoints(t *testing.T) {
	// GIVEN: Sales across the bonus thresholds
	// THEN: Base 5, +2 over 500, +3 over 1000 (stacking), +1 for >3 items

	tests := []struct {
		name   string
		amount int64
		items  int
		want   int
	}{
		{"small basket", 200, 1, 5},
		{"exactly 500 is not over", 500, 1, 5},
		{"big sale", 600, 1, 7},
		{"exactly 1000 gets only the 500 bonus", 1000, 1, 7},
		{"huge sale stacks both bonuses", 1200, 1, 10},
		{"huge sale with many items", 1200, 5, 11},
		{"item bonus needs more than three", 200, 3, 5},
		{"item bonus alone", 200, 4, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := loyalty.CalculatePurchasePoints(decimal.NewFromInt(tt.amount), tt.items)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCalculateFeedbackPoints(t *testing.T) {
	// GIVEN: Ratings with and without comments
	// THEN: Base 5, +3 comment, +2 rating >= 4, no cap

	assert.Equal(t, 5, loyalty.CalculateFeedbackPoints(3, false))
	assert.Equal(t, 8, loyalty.CalculateFeedbackPoints(3, true))
	assert.Equal(t, 7, loyalty.CalculateFeedbackPoints(4, false))
	assert.Equal(t, 10, loyalty.CalculateFeedbackPoints(5, true))
}

func TestShouldAwardComebackBonus_Boundary(t *testing.T) {
	// GIVEN: Idle gaps around the 30-day threshold
	// THEN: 29 days does not qualify, 30 does

	assert.False(t, loyalty.ShouldAwardComebackBonus(29))
	assert.True(t, loyalty.ShouldAwardComebackBonus(30))
	assert.True(t, loyalty.ShouldAwardComebackBonus(90))
}

// =============================================================================
// RECOGNITION MESSAGES
// =============================================================================

func TestGenerateRecognitionMessage_PerTier(t *testing.T) {
	// GIVEN: Each status tier
	// THEN: A tier-specific template parameterized by tenure/purchases

	assert.Contains(t, loyalty.GenerateRecognitionMessage(loyalty.StatusNew, 0, 0), "Welcome")
	assert.Contains(t, loyalty.GenerateRecognitionMessage(loyalty.StatusRegular, 14, 3), "3 purchases")
	assert.Contains(t, loyalty.GenerateRecognitionMessage(loyalty.StatusTrusted, 90, 6), "3 months")
	assert.Contains(t, loyalty.GenerateRecognitionMessage(loyalty.StatusInsider, 120, 12), "12 purchases")
	assert.Contains(t, loyalty.GenerateRecognitionMessage(loyalty.StatusAdvocate, 365, 25), "advocate")
}
