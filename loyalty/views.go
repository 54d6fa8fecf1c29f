/*
views.go - Read-only projections over loyalty state

PURPOSE:
  Pure read paths consumed by the API layer: profile details, progress
  breakdowns, reward summaries, ledger history, and the store-wide
  engagement overview. Nothing here mutates state.

NOT-FOUND SEMANTICS:
  Every customer-scoped view returns ErrProfileNotFound when the
  customer has no profile yet. Profiles are only created by write
  paths; a read never creates one.

SEE ALSO:
  - engine.go: The write side
  - scoring.go: Score recomputation used by the breakdown view
*/
package loyalty

import (
	"context"
	"time"
)

// =============================================================================
// PROFILE DETAILS
// =============================================================================

// ProfileDetails is the customer-facing profile view: current state,
// what the next tier takes, recent ledger activity, and redeemable
// rewards.
type ProfileDetails struct {
	Profile         *Profile
	NextStatus      *TierRequirement // nil at the top tier
	RecentEvents    []Event
	UnlockedRewards []Reward
}

// ProfileDetails assembles the detail view for one customer.
func (e *Engine) ProfileDetails(ctx context.Context, patientID PatientID) (*ProfileDetails, error) {
	profile, err := e.store.GetProfileByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	events, err := e.store.ListEventsByProfile(ctx, profile.ID, 10)
	if err != nil {
		return nil, err
	}

	unlocked := RewardUnlocked
	rewards, err := e.store.ListRewardsByProfile(ctx, profile.ID, &unlocked)
	if err != nil {
		return nil, err
	}

	return &ProfileDetails{
		Profile:         profile,
		NextStatus:      NextStatusRequirements(profile.Status),
		RecentEvents:    events,
		UnlockedRewards: rewards,
	}, nil
}

// =============================================================================
// PROGRESS BREAKDOWN
// =============================================================================

// FrequencyBreakdown shows the purchase-frequency dimension.
type FrequencyBreakdown struct {
	Score           float64
	MaxScore        float64
	Purchases       int
	TargetPurchases *int // next tier's requirement, nil at top
}

// ConsistencyBreakdown shows the cadence dimension.
type ConsistencyBreakdown struct {
	Score      float64
	MaxScore   float64
	AverageGap float64 // days between purchases, 0 with no purchases
	IdealGap   float64
}

// EngagementBreakdown shows the engagement dimension.
type EngagementBreakdown struct {
	Score     float64
	MaxScore  float64
	Feedbacks int
	Comebacks int
}

// MilestoneRequirements are the deltas still needed for the immediate
// next tier.
type MilestoneRequirements struct {
	PurchasesRemaining int
	ConsistencyMet     bool
	EngagementMet      bool
	DaysRemaining      int
}

// MilestoneEntry is one row of the five-tier checklist.
type MilestoneEntry struct {
	Status   Status
	Achieved bool
	Current  bool
	// AchievedAt is known only for the current tier (its StatusSince).
	AchievedAt *time.Time
	// Requirements is set only on the immediate next tier.
	Requirements *MilestoneRequirements
}

// ProgressBreakdown is the per-dimension progress view plus the
// milestone checklist across all five tiers.
type ProgressBreakdown struct {
	CurrentStatus   Status
	NextStatus      Status // "" at the top tier
	ProgressPercent float64
	Frequency       FrequencyBreakdown
	Consistency     ConsistencyBreakdown
	Engagement      EngagementBreakdown
	Milestones      []MilestoneEntry
}

// ProgressBreakdown assembles the dimension and milestone view for one
// customer.
func (e *Engine) ProgressBreakdown(ctx context.Context, patientID PatientID) (*ProgressBreakdown, error) {
	profile, err := e.store.GetProfileByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	scores := TotalScore(profile.PurchaseCount, profile.DaysSinceFirst, profile.FeedbackCount, profile.ComebackCount)
	next := NextStatusRequirements(profile.Status)

	breakdown := &ProgressBreakdown{
		CurrentStatus:   profile.Status,
		ProgressPercent: profile.MilestoneProgress,
		Frequency: FrequencyBreakdown{
			Score:     scores.Frequency,
			MaxScore:  50,
			Purchases: profile.PurchaseCount,
		},
		Consistency: ConsistencyBreakdown{
			Score:    scores.Consistency,
			MaxScore: 30,
			IdealGap: IdealGapDays,
		},
		Engagement: EngagementBreakdown{
			Score:     scores.Engagement,
			MaxScore:  20,
			Feedbacks: profile.FeedbackCount,
			Comebacks: profile.ComebackCount,
		},
		Milestones: milestoneChecklist(profile, next),
	}
	if profile.PurchaseCount > 0 {
		breakdown.Consistency.AverageGap = float64(profile.DaysSinceFirst) / float64(profile.PurchaseCount)
	}
	if next != nil {
		breakdown.NextStatus = next.Status
		target := next.Thresholds.MinPurchases
		breakdown.Frequency.TargetPurchases = &target
	}
	return breakdown, nil
}

// milestoneChecklist marks each tier as achieved/current/future and
// attaches requirement deltas to the immediate next tier.
func milestoneChecklist(profile *Profile, next *TierRequirement) []MilestoneEntry {
	currentRank := profile.Status.Rank()

	entries := make([]MilestoneEntry, 0, len(StatusOrder))
	for _, status := range StatusOrder {
		entry := MilestoneEntry{
			Status:   status,
			Achieved: status.Rank() <= currentRank,
			Current:  status == profile.Status,
		}
		if entry.Current {
			since := profile.StatusSince
			entry.AchievedAt = &since
		}
		if next != nil && status == next.Status {
			th := next.Thresholds
			entry.Requirements = &MilestoneRequirements{
				PurchasesRemaining: maxInt(0, th.MinPurchases-profile.PurchaseCount),
				ConsistencyMet:     profile.ConsistencyScore >= th.MinConsistency,
				EngagementMet:      profile.EngagementScore >= th.MinEngagement,
				DaysRemaining:      maxInt(0, th.MinDays-profile.DaysSinceFirst),
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

// =============================================================================
// REWARDS & HISTORY
// =============================================================================

// RewardSummary groups a customer's rewards by lifecycle stage.
type RewardSummary struct {
	Unlocked []Reward
	Redeemed []Reward
	Upcoming []Reward // still locked
}

// RewardSummary lists a customer's rewards grouped by status.
func (e *Engine) RewardSummary(ctx context.Context, patientID PatientID) (*RewardSummary, error) {
	profile, err := e.store.GetProfileByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}

	summary := &RewardSummary{}
	for _, pair := range []struct {
		status RewardStatus
		dest   *[]Reward
	}{
		{RewardUnlocked, &summary.Unlocked},
		{RewardRedeemed, &summary.Redeemed},
		{RewardLocked, &summary.Upcoming},
	} {
		status := pair.status
		rewards, err := e.store.ListRewardsByProfile(ctx, profile.ID, &status)
		if err != nil {
			return nil, err
		}
		*pair.dest = rewards
	}
	return summary, nil
}

// History returns a customer's ledger events, newest first.
func (e *Engine) History(ctx context.Context, patientID PatientID, limit int) ([]Event, error) {
	profile, err := e.store.GetProfileByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	return e.store.ListEventsByProfile(ctx, profile.ID, limit)
}

// ExpiredRewards returns a store's UNLOCKED rewards past their expiry.
// The persisted status stays UNLOCKED; expiry is advisory.
func (e *Engine) ExpiredRewards(ctx context.Context, storeID StoreID) ([]Reward, error) {
	return e.store.ListExpiredRewards(ctx, storeID, time.Now().UTC())
}

// CustomersByStore lists a store's loyalty profiles for back-office UI.
func (e *Engine) CustomersByStore(ctx context.Context, storeID StoreID, filter ProfileFilter) ([]*Profile, error) {
	return e.store.ListProfilesByStore(ctx, storeID, filter)
}

// =============================================================================
// STORE OVERVIEW
// =============================================================================

// OverviewStats summarizes a store's customer base.
type OverviewStats struct {
	TotalProfiles int
	ByStatus      map[Status]int
	// AtRisk counts profiles with no purchase in the last 30 days.
	AtRisk int
}

// EngagementMetrics covers a trailing activity window.
type EngagementMetrics struct {
	PeriodDays     int
	NewProfiles    int
	RecentActivity int
	StatusUpgrades int
}

// StoreOverview is the store-wide engagement snapshot.
type StoreOverview struct {
	Stats         OverviewStats
	Metrics       EngagementMetrics
	NearMilestone []*Profile // progress >= 80%, not yet at the next tier
}

// AtRiskIdleDays is the inactivity window that marks a customer at risk.
const AtRiskIdleDays = 30

// NearMilestoneThreshold is the progress percent that puts a customer
// on the near-milestone list.
const NearMilestoneThreshold = 80.0

// StoreOverview aggregates counts by status, at-risk customers, a
// 30-day engagement window, and customers close to their next tier.
func (e *Engine) StoreOverview(ctx context.Context, storeID StoreID) (*StoreOverview, error) {
	now := time.Now().UTC()

	byStatus, err := e.store.CountProfilesByStatus(ctx, storeID)
	if err != nil {
		return nil, err
	}
	total := 0
	for _, n := range byStatus {
		total += n
	}

	atRisk, err := e.store.CountProfilesInactiveSince(ctx, storeID, now.AddDate(0, 0, -AtRiskIdleDays))
	if err != nil {
		return nil, err
	}

	windowStart := now.AddDate(0, 0, -AtRiskIdleDays)
	newProfiles, err := e.store.CountProfilesCreatedSince(ctx, storeID, windowStart)
	if err != nil {
		return nil, err
	}
	activity, err := e.store.CountEventsByStoreSince(ctx, storeID, windowStart)
	if err != nil {
		return nil, err
	}
	upgrades, err := e.store.CountEventsByStoreSince(ctx, storeID, windowStart, EventMilestoneReached)
	if err != nil {
		return nil, err
	}

	near, err := e.store.ListNearMilestone(ctx, storeID, NearMilestoneThreshold)
	if err != nil {
		return nil, err
	}

	return &StoreOverview{
		Stats: OverviewStats{
			TotalProfiles: total,
			ByStatus:      byStatus,
			AtRisk:        atRisk,
		},
		Metrics: EngagementMetrics{
			PeriodDays:     AtRiskIdleDays,
			NewProfiles:    newProfiles,
			RecentActivity: activity,
			StatusUpgrades: upgrades,
		},
		NearMilestone: near,
	}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
