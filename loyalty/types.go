/*
Package loyalty implements the customer loyalty engine.

PURPOSE:
  This package contains the domain model and algorithms for customer
  loyalty: a deterministic scoring model over purchase behavior, a
  five-tier status ladder, an append-only event ledger, and a
  tier-triggered reward lifecycle.

KEY CONCEPTS IN THIS FILE (types.go):
  - Status: The five loyalty tiers (NEW .. ADVOCATE) and their thresholds
  - Profile: The per-customer aggregate holding score and status
  - Event: An immutable ledger entry recording a loyalty occurrence
  - Reward: A tier-triggered benefit with an unlock/expiry/redeem lifecycle

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified or deleted
  2. Precision: Uses decimal.Decimal for monetary values
  3. Type Safety: Strong typing for patient/store/profile identifiers
  4. Determinism: Status is recomputed from counters, never stored as
     the only truth

SEE ALSO:
  - scoring.go: Pure score and status computation
  - engine.go: Event ingestion and profile mutation
  - rewards.go: Tier-to-reward unlock table
  - store.go: Persistence interfaces
*/
package loyalty

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PatientID string
type StoreID string
type ProfileID string
type EventID string
type RewardID string

// =============================================================================
// STATUS - The five-tier loyalty ladder
// =============================================================================

type Status string

const (
	StatusNew      Status = "NEW"
	StatusRegular  Status = "REGULAR"
	StatusTrusted  Status = "TRUSTED"
	StatusInsider  Status = "INSIDER"
	StatusAdvocate Status = "ADVOCATE"
)

// StatusOrder lists tiers from lowest to highest. Rank and Next depend
// on this ordering; DetermineStatus iterates it highest-first.
var StatusOrder = []Status{
	StatusNew,
	StatusRegular,
	StatusTrusted,
	StatusInsider,
	StatusAdvocate,
}

// Rank returns the tier's position in the ladder (NEW=0 .. ADVOCATE=4).
// Unknown values rank as NEW.
func (s Status) Rank() int {
	for i, st := range StatusOrder {
		if st == s {
			return i
		}
	}
	return 0
}

// Next returns the tier above s, or "" if s is the top tier.
func (s Status) Next() Status {
	r := s.Rank()
	if r >= len(StatusOrder)-1 {
		return ""
	}
	return StatusOrder[r+1]
}

// IsTop reports whether s is the highest tier.
func (s Status) IsTop() bool { return s.Rank() == len(StatusOrder)-1 }

// Valid reports whether s is one of the five known tiers.
func (s Status) Valid() bool {
	for _, st := range StatusOrder {
		if st == s {
			return true
		}
	}
	return false
}

// =============================================================================
// TIER THRESHOLDS - Compile-time constant table
// =============================================================================

// Thresholds are the four per-dimension requirements a customer must
// meet SIMULTANEOUSLY to hold a tier.
type Thresholds struct {
	MinPurchases   int
	MinConsistency float64
	MinEngagement  float64
	MinDays        int
}

// tierTable maps each tier to its thresholds. Fixed at compile time so
// the ladder cannot drift between deployments; DetermineStatus walks
// StatusOrder from the top down and returns the first tier whose
// thresholds are all met.
var tierTable = map[Status]Thresholds{
	StatusNew:      {MinPurchases: 0, MinConsistency: 0, MinEngagement: 0, MinDays: 0},
	StatusRegular:  {MinPurchases: 2, MinConsistency: 20, MinEngagement: 0, MinDays: 7},
	StatusTrusted:  {MinPurchases: 5, MinConsistency: 40, MinEngagement: 10, MinDays: 30},
	StatusInsider:  {MinPurchases: 10, MinConsistency: 60, MinEngagement: 20, MinDays: 90},
	StatusAdvocate: {MinPurchases: 20, MinConsistency: 80, MinEngagement: 40, MinDays: 180},
}

// ThresholdsFor returns the threshold row for a tier.
func ThresholdsFor(s Status) Thresholds { return tierTable[s] }

// =============================================================================
// PROFILE - Per-customer aggregate (the aggregate root)
// =============================================================================

// Profile holds the current loyalty state for one customer. It is
// created lazily on the customer's first loyalty event and never
// deleted. Every mutation goes through the Engine.
type Profile struct {
	ID        ProfileID
	PatientID PatientID
	StoreID   StoreID

	Status      Status
	TotalPoints int

	PurchaseCount int
	FeedbackCount int
	// ComebackCount tracks how many comeback bonuses the customer has
	// earned. It feeds the engagement score cumulatively.
	ComebackCount int

	DaysSinceFirst    int
	ConsistencyScore  float64 // 0-30, last computed
	EngagementScore   float64 // 0-20, last computed
	MilestoneProgress float64 // 0-100, percent toward next tier

	LastPurchaseAt     *time.Time
	StatusSince        time.Time
	RecognitionMessage string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version guards profile writes with optimistic concurrency.
	// Incremented on every successful update.
	Version int
}

// =============================================================================
// EVENT - Append-only ledger entry
// =============================================================================

type EventType string

const (
	EventPurchaseCompleted EventType = "PURCHASE_COMPLETED"
	EventFeedbackSubmitted EventType = "FEEDBACK_SUBMITTED"
	EventComeback          EventType = "COMEBACK"
	EventMilestoneReached  EventType = "MILESTONE_REACHED"
	EventRewardEarned      EventType = "REWARD_EARNED"
	EventRewardRedeemed    EventType = "REWARD_REDEEMED"
)

// Event is one immutable entry in the loyalty ledger. Events are never
// updated or deleted; they are the audit trail for point totals.
type Event struct {
	ID        EventID
	ProfileID ProfileID
	StoreID   StoreID

	Type EventType
	// EventSource references the originating business record
	// (sale id, feedback id, reward id). May be empty.
	EventSource string
	Metadata    map[string]string
	Description string

	// Points awarded by this event. May be zero.
	Points int

	CreatedAt time.Time
}

// =============================================================================
// REWARD - Tier-triggered benefit with an unlock/expiry/redeem lifecycle
// =============================================================================

type RewardType string

const (
	RewardThankYouCredit RewardType = "THANK_YOU_CREDIT"
	RewardMilestonePerk  RewardType = "MILESTONE_PERK"
)

type RewardStatus string

const (
	RewardLocked   RewardStatus = "LOCKED"
	RewardUnlocked RewardStatus = "UNLOCKED"
	RewardRedeemed RewardStatus = "REDEEMED"
)

// RewardValidityDays is how long an unlocked reward stays redeemable.
const RewardValidityDays = 90

// Reward is one unlocked (or redeemed) benefit instance. CreditAmount
// is nil for non-monetary perks.
type Reward struct {
	ID        RewardID
	ProfileID ProfileID
	StoreID   StoreID

	Type        RewardType
	Status      RewardStatus
	Title       string
	Description string

	CreditAmount *decimal.Decimal
	MinStatus    Status

	UnlockedAt time.Time
	ExpiresAt  time.Time
	RedeemedAt *time.Time

	CreatedAt time.Time
}

// IsExpired reports whether the reward is past its expiry at the given
// time. Expiry is advisory: the persisted status stays UNLOCKED, but
// redemption and read paths treat expired rewards as unusable.
func (r *Reward) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}
