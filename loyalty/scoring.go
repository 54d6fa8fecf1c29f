/*
scoring.go - Pure loyalty score computation

PURPOSE:
  Deterministic, side-effect-free functions that turn raw counters
  (purchases, feedback, comebacks, days active) into sub-scores, a
  status tier, milestone progress, and point awards. No I/O; every
  function is total and returns the same output for the same input.

SCORING DIMENSIONS:
  Frequency   [0,50]  How often the customer buys (2.5 pts/purchase)
  Consistency [0,30]  How close the purchase cadence is to biweekly
  Engagement  [0,20]  Feedback submissions and comeback returns

STATUS DETERMINATION:
  A tier is held only when ALL FOUR of its thresholds are met
  (purchases, consistency, engagement, days active). Tiers are checked
  from ADVOCATE down; the first full match wins, defaulting to NEW.
  The check is stateless: it takes no current status as a floor, so a
  corrected-down counter can lower the result.

FAILURE SEMANTICS:
  Inputs are not validated. Negative or nonsensical values are the
  caller's responsibility; the functions simply clamp into range.

SEE ALSO:
  - types.go: Status ladder and threshold table
  - engine.go: The only caller that persists these results
*/
package loyalty

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Point awards that are flat rather than computed.
const (
	ComebackIdleDays     = 30 // days of inactivity before a return counts as a comeback
	ComebackBonusPoints  = 10
	MilestoneBonusPoints = 10
)

// IdealGapDays is the purchase cadence the consistency score rewards.
// Deviation in either direction is penalized symmetrically.
const IdealGapDays = 14.0

// =============================================================================
// SUB-SCORES
// =============================================================================

// FrequencyScore returns the purchase-frequency score in [0,50].
// Linear at 2.5 points per purchase, saturating at 50.
func FrequencyScore(purchaseCount int) float64 {
	return math.Min(50, float64(purchaseCount)*2.5)
}

// ConsistencyScore returns the cadence score in [0,30]. A customer
// averaging one purchase every IdealGapDays scores the maximum;
// both too-frequent and too-sparse patterns lose a point per day of
// deviation. Zero purchases or zero elapsed days score zero.
func ConsistencyScore(purchaseCount, daysSinceFirst int) float64 {
	if purchaseCount == 0 || daysSinceFirst == 0 {
		return 0
	}
	averageGap := float64(daysSinceFirst) / float64(purchaseCount)
	score := 30 - math.Abs(averageGap-IdealGapDays)
	return math.Min(30, math.Max(0, score))
}

// EngagementScore returns the engagement score in [0,20]:
// 5 points per feedback, 3 per comeback, saturating at 20.
func EngagementScore(feedbackCount, comebackCount int) float64 {
	return math.Min(20, float64(feedbackCount)*5+float64(comebackCount)*3)
}

// ScoreBreakdown bundles the three sub-scores and their sum. The sum is
// informational (max 100); tier thresholds are per-dimension.
type ScoreBreakdown struct {
	Frequency   float64
	Consistency float64
	Engagement  float64
	Total       float64
}

// TotalScore computes all three sub-scores in one pass.
func TotalScore(purchaseCount, daysSinceFirst, feedbackCount, comebackCount int) ScoreBreakdown {
	s := ScoreBreakdown{
		Frequency:   FrequencyScore(purchaseCount),
		Consistency: ConsistencyScore(purchaseCount, daysSinceFirst),
		Engagement:  EngagementScore(feedbackCount, comebackCount),
	}
	s.Total = s.Frequency + s.Consistency + s.Engagement
	return s
}

// =============================================================================
// STATUS DETERMINATION
// =============================================================================

// DetermineStatus returns the highest tier whose four thresholds are
// all simultaneously met by the inputs. Defaults to NEW.
func DetermineStatus(purchaseCount int, consistencyScore, engagementScore float64, daysSinceFirst int) Status {
	for i := len(StatusOrder) - 1; i >= 0; i-- {
		tier := StatusOrder[i]
		th := tierTable[tier]
		if purchaseCount >= th.MinPurchases &&
			consistencyScore >= th.MinConsistency &&
			engagementScore >= th.MinEngagement &&
			daysSinceFirst >= th.MinDays {
			return tier
		}
	}
	return StatusNew
}

// TierRequirement pairs a tier with its thresholds, for progress and
// display read paths.
type TierRequirement struct {
	Status     Status
	Thresholds Thresholds
}

// NextStatusRequirements returns the tier above current and its
// thresholds, or nil when already at the top.
func NextStatusRequirements(current Status) *TierRequirement {
	next := current.Next()
	if next == "" {
		return nil
	}
	return &TierRequirement{Status: next, Thresholds: tierTable[next]}
}

// =============================================================================
// MILESTONE PROGRESS
// =============================================================================

// MilestoneProgress returns percent completion toward the next tier in
// [0,100], rounded to two decimals. Progress is the MINIMUM of the four
// per-dimension ratios: the binding constraint is whichever dimension
// lags most. Zero thresholds count as already satisfied. At the top
// tier the result is exactly 100.
func MilestoneProgress(current Status, purchaseCount int, consistencyScore, engagementScore float64, daysSinceFirst int) float64 {
	if current.IsTop() {
		return 100
	}
	th := tierTable[current.Next()]

	ratios := []float64{
		dimensionRatio(float64(purchaseCount), float64(th.MinPurchases)),
		dimensionRatio(consistencyScore, th.MinConsistency),
		dimensionRatio(engagementScore, th.MinEngagement),
		dimensionRatio(float64(daysSinceFirst), float64(th.MinDays)),
	}

	progress := 100.0
	for _, r := range ratios {
		if r < progress {
			progress = r
		}
	}
	if math.IsNaN(progress) {
		return 0
	}
	return math.Round(math.Min(100, progress)*100) / 100
}

// dimensionRatio returns value/threshold as a percentage capped at 100.
// A zero threshold is automatically satisfied.
func dimensionRatio(value, threshold float64) float64 {
	if threshold == 0 {
		return 100
	}
	return math.Min(100, value/threshold*100)
}

// =============================================================================
// POINT AWARDS
// =============================================================================

var (
	bigSaleThreshold  = decimal.NewFromInt(500)
	hugeSaleThreshold = decimal.NewFromInt(1000)
)

// CalculatePurchasePoints returns the points for one completed sale:
// base 5, +2 above ₹500, +3 above ₹1000 (stacking), +1 for more than
// three items, capped at 15.
func CalculatePurchasePoints(saleAmount decimal.Decimal, itemCount int) int {
	points := 5
	if saleAmount.GreaterThan(bigSaleThreshold) {
		points += 2
	}
	if saleAmount.GreaterThan(hugeSaleThreshold) {
		points += 3
	}
	if itemCount > 3 {
		points++
	}
	if points > 15 {
		points = 15
	}
	return points
}

// CalculateFeedbackPoints returns the points for one feedback
// submission: base 5, +3 with a written comment, +2 for a rating of 4
// or higher. Uncapped.
func CalculateFeedbackPoints(rating int, hasComment bool) int {
	points := 5
	if hasComment {
		points += 3
	}
	if rating >= 4 {
		points += 2
	}
	return points
}

// ShouldAwardComebackBonus reports whether an idle gap qualifies for
// the comeback bonus.
func ShouldAwardComebackBonus(daysSinceLastPurchase int) bool {
	return daysSinceLastPurchase >= ComebackIdleDays
}

// =============================================================================
// RECOGNITION MESSAGES
// =============================================================================

// GenerateRecognitionMessage returns the human-readable line shown on
// the customer's profile, regenerated on every update.
func GenerateRecognitionMessage(status Status, daysSinceFirst, purchaseCount int) string {
	months := daysSinceFirst / 30
	switch status {
	case StatusRegular:
		return fmt.Sprintf("A familiar face! %d purchases and counting.", purchaseCount)
	case StatusTrusted:
		return fmt.Sprintf("Trusted customer for %d months. Thank you for staying with us.", months)
	case StatusInsider:
		return fmt.Sprintf("Insider status: %d purchases over %d months. You know us well.", purchaseCount, months)
	case StatusAdvocate:
		return fmt.Sprintf("Our advocate! %d purchases across %d months of loyalty.", purchaseCount, months)
	default:
		return "Welcome! Your loyalty journey starts here."
	}
}
