/*
rewards.go - Tier-to-reward unlock policy

PURPOSE:
  Maps a newly reached status tier to the reward it unlocks. The table
  is fixed at compile time: each tier above NEW grants exactly one
  reward, either a monetary thank-you credit or a non-monetary perk.

LIFECYCLE:
  Rewards materialize directly as UNLOCKED with a 90-day expiry.
  Redemption (engine.go) moves them to REDEEMED exactly once; expiry
  is advisory and checked at read/redeem time, never by a background
  transition.

SEE ALSO:
  - engine.go: Invokes the unlock on status upgrade
  - types.go: Reward struct and lifecycle constants
*/
package loyalty

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// rewardDefinition is a row in the static tier-reward table.
type rewardDefinition struct {
	Type         RewardType
	Title        string
	Description  string
	CreditAmount *decimal.Decimal
}

func credit(amount int64) *decimal.Decimal {
	d := decimal.NewFromInt(amount)
	return &d
}

// tierRewards defines the reward unlocked on reaching each tier.
// NEW is deliberately absent: joining the program earns nothing.
var tierRewards = map[Status]rewardDefinition{
	StatusRegular: {
		Type:         RewardThankYouCredit,
		Title:        "₹25 Thank You",
		Description:  "Welcome to Regular status! Here's a small token of appreciation.",
		CreditAmount: credit(25),
	},
	StatusTrusted: {
		Type:        RewardMilestonePerk,
		Title:       "Priority Support",
		Description: "You now have priority handling for all your purchases.",
	},
	StatusInsider: {
		Type:         RewardThankYouCredit,
		Title:        "₹100 Insider Reward",
		Description:  "Congratulations on becoming an Insider!",
		CreditAmount: credit(100),
	},
	StatusAdvocate: {
		Type:        RewardMilestonePerk,
		Title:       "VIP Status",
		Description: "You're now part of our VIP program with exclusive benefits.",
	},
}

// RewardForTier returns the reward definition a tier unlocks, or nil
// when the tier grants nothing.
func rewardForTier(status Status) *rewardDefinition {
	def, ok := tierRewards[status]
	if !ok {
		return nil
	}
	return &def
}

// NewTierReward materializes the reward a tier grants as a fresh
// UNLOCKED row with the standard validity window, or nil when the tier
// grants nothing. Persisting it is the caller's job.
func NewTierReward(profileID ProfileID, storeID StoreID, status Status, now time.Time) *Reward {
	def := rewardForTier(status)
	if def == nil {
		return nil
	}
	return &Reward{
		ID:           RewardID(uuid.NewString()),
		ProfileID:    profileID,
		StoreID:      storeID,
		Type:         def.Type,
		Status:       RewardUnlocked,
		Title:        def.Title,
		Description:  def.Description,
		CreditAmount: def.CreditAmount,
		MinStatus:    status,
		UnlockedAt:   now,
		ExpiresAt:    now.AddDate(0, 0, RewardValidityDays),
		CreatedAt:    now,
	}
}
