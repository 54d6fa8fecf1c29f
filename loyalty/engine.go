/*
engine.go - Loyalty event ingestion and profile mutation

PURPOSE:
  The Engine is the single writer for loyalty state. It ingests one
  business event at a time (purchase completed, feedback submitted,
  reward redemption), recomputes scores through scoring.go, detects
  status transitions, unlocks rewards on upgrade, and persists the
  updated profile plus ledger entries.

WRITE DISCIPLINE:
  Each invocation is a read-modify-write sequence over one customer's
  profile. Two guards make it safe:
  1. A per-patient mutex serializes in-process invocations, so two
     near-simultaneous sales cannot both read stale counters.
  2. The whole sequence runs inside one store transaction (when the
     store supports TxStore), so a mid-sequence failure writes nothing.
  The store additionally version-checks profile writes, which catches
  cross-process races.

POINT ACCOUNTING:
  The returned PointsEarned is purchase points + comeback bonus. The
  milestone bonus (+10 on a status upgrade) is recorded in the ledger
  and added to TotalPoints but deliberately excluded from the returned
  figure, matching long-standing caller expectations.

SEE ALSO:
  - scoring.go: The math this engine persists
  - rewards.go: Tier reward unlocks
  - views.go: Read-only projections
*/
package loyalty

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine orchestrates scoring, status transitions, reward unlocks, and
// the event ledger over a Store.
type Engine struct {
	store Store
	locks patientLocks
}

// NewEngine creates an engine over the given store. If the store also
// implements TxStore, every per-event write sequence runs in a single
// transaction.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Store exposes the underlying store for read paths.
func (e *Engine) Store() Store { return e.store }

// withTx runs fn transactionally when the store supports it.
func (e *Engine) withTx(ctx context.Context, fn func(Store) error) error {
	if ts, ok := e.store.(TxStore); ok {
		return ts.WithTx(ctx, fn)
	}
	return fn(e.store)
}

// =============================================================================
// PER-PATIENT SERIALIZATION
// =============================================================================

// patientLocks hands out one mutex per patient so concurrent events for
// the same customer apply in sequence instead of racing on counters.
// Locks are never released from the map; the set of active customers
// per process is small.
type patientLocks struct {
	mu sync.Mutex
	m  map[PatientID]*sync.Mutex
}

func (l *patientLocks) acquire(id PatientID) func() {
	l.mu.Lock()
	if l.m == nil {
		l.m = make(map[PatientID]*sync.Mutex)
	}
	lock, ok := l.m[id]
	if !ok {
		lock = &sync.Mutex{}
		l.m[id] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// =============================================================================
// RESULTS
// =============================================================================

// PurchaseResult is what ProcessPurchase reports back to the caller.
type PurchaseResult struct {
	Profile       *Profile
	PointsEarned  int
	StatusChanged bool
	NewStatus     Status
}

// FeedbackResult is what ProcessFeedback reports back to the caller.
type FeedbackResult struct {
	Profile      *Profile
	PointsEarned int
}

// =============================================================================
// PROFILE CREATION
// =============================================================================

// GetOrCreateProfile returns the customer's profile, creating it at NEW
// with a zero-point "journey started" ledger event on first contact.
func (e *Engine) GetOrCreateProfile(ctx context.Context, patientID PatientID, storeID StoreID) (*Profile, error) {
	unlock := e.locks.acquire(patientID)
	defer unlock()

	var profile *Profile
	err := e.withTx(ctx, func(s Store) error {
		var err error
		profile, _, err = e.getOrCreate(ctx, s, patientID, storeID)
		return err
	})
	return profile, err
}

// getOrCreate is the lock-held, in-transaction fetch-or-create. The
// welcome event is the only ledger entry not computed from business
// rules.
func (e *Engine) getOrCreate(ctx context.Context, s Store, patientID PatientID, storeID StoreID) (*Profile, bool, error) {
	profile, err := s.GetProfileByPatient(ctx, patientID)
	if err == nil {
		return profile, false, nil
	}
	if !IsNotFound(err) {
		return nil, false, err
	}

	now := time.Now().UTC()
	profile = &Profile{
		ID:                 ProfileID(uuid.NewString()),
		PatientID:          patientID,
		StoreID:            storeID,
		Status:             StatusNew,
		StatusSince:        now,
		RecognitionMessage: GenerateRecognitionMessage(StatusNew, 0, 0),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := s.CreateProfile(ctx, profile); err != nil {
		return nil, false, err
	}

	welcome := &Event{
		ID:          EventID(uuid.NewString()),
		ProfileID:   profile.ID,
		StoreID:     storeID,
		Type:        EventMilestoneReached,
		Description: "Loyalty journey started",
		CreatedAt:   now,
	}
	if err := s.AppendEvent(ctx, welcome); err != nil {
		return nil, false, err
	}
	return profile, true, nil
}

// =============================================================================
// PURCHASE PROCESSING - The primary state transition
// =============================================================================

// ProcessPurchase ingests one completed sale: awards purchase points
// (and a comeback bonus after 30+ idle days), recomputes scores and
// status, unlocks the tier reward on upgrade, and appends the ledger
// entries, all in one transaction.
func (e *Engine) ProcessPurchase(ctx context.Context, saleID string, patientID PatientID, storeID StoreID, saleAmount decimal.Decimal, itemCount int) (*PurchaseResult, error) {
	unlock := e.locks.acquire(patientID)
	defer unlock()

	var result *PurchaseResult
	err := e.withTx(ctx, func(s Store) error {
		profile, _, err := e.getOrCreate(ctx, s, patientID, storeID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		daysSinceFirst := daysBetween(profile.CreatedAt, now)

		// Comeback bonus: returning after 30+ idle days earns a flat
		// bonus, recorded as its own ledger event. The comeback counter
		// compounds into the engagement score below.
		comebackBonus := 0
		if profile.LastPurchaseAt != nil {
			idleDays := daysBetween(*profile.LastPurchaseAt, now)
			if ShouldAwardComebackBonus(idleDays) {
				comebackBonus = ComebackBonusPoints
				profile.ComebackCount++
				comeback := &Event{
					ID:          EventID(uuid.NewString()),
					ProfileID:   profile.ID,
					StoreID:     storeID,
					Type:        EventComeback,
					EventSource: saleID,
					Description: fmt.Sprintf("Welcome back after %d days!", idleDays),
					Points:      comebackBonus,
					CreatedAt:   now,
				}
				if err := s.AppendEvent(ctx, comeback); err != nil {
					return err
				}
			}
		}

		purchasePoints := CalculatePurchasePoints(saleAmount, itemCount)
		purchase := &Event{
			ID:          EventID(uuid.NewString()),
			ProfileID:   profile.ID,
			StoreID:     storeID,
			Type:        EventPurchaseCompleted,
			EventSource: saleID,
			Metadata: map[string]string{
				"sale_amount": saleAmount.String(),
				"item_count":  fmt.Sprintf("%d", itemCount),
			},
			Description: fmt.Sprintf("Purchase of ₹%s", saleAmount.StringFixed(2)),
			Points:      purchasePoints,
			CreatedAt:   now,
		}
		if err := s.AppendEvent(ctx, purchase); err != nil {
			return err
		}

		newPurchaseCount := profile.PurchaseCount + 1
		scores := TotalScore(newPurchaseCount, daysSinceFirst, profile.FeedbackCount, profile.ComebackCount)
		newStatus := DetermineStatus(newPurchaseCount, scores.Consistency, scores.Engagement, daysSinceFirst)
		statusChanged := newStatus != profile.Status
		progress := MilestoneProgress(newStatus, newPurchaseCount, scores.Consistency, scores.Engagement, daysSinceFirst)

		milestoneBonus := 0
		if statusChanged {
			milestoneBonus = MilestoneBonusPoints
			milestone := &Event{
				ID:          EventID(uuid.NewString()),
				ProfileID:   profile.ID,
				StoreID:     storeID,
				Type:        EventMilestoneReached,
				Description: fmt.Sprintf("Reached %s status", newStatus),
				Points:      milestoneBonus,
				CreatedAt:   now,
			}
			if err := s.AppendEvent(ctx, milestone); err != nil {
				return err
			}
		}

		profile.PurchaseCount = newPurchaseCount
		profile.DaysSinceFirst = daysSinceFirst
		profile.ConsistencyScore = scores.Consistency
		profile.EngagementScore = scores.Engagement
		profile.MilestoneProgress = progress
		profile.LastPurchaseAt = &now
		profile.TotalPoints += purchasePoints + comebackBonus + milestoneBonus
		profile.RecognitionMessage = GenerateRecognitionMessage(newStatus, daysSinceFirst, newPurchaseCount)
		if statusChanged {
			profile.Status = newStatus
			profile.StatusSince = now
		}
		profile.UpdatedAt = now
		if err := s.UpdateProfile(ctx, profile); err != nil {
			return err
		}

		if statusChanged {
			if err := unlockRewardsForTier(ctx, s, profile.ID, storeID, newStatus, now); err != nil {
				return err
			}
		}

		// The milestone bonus lands in the ledger and TotalPoints but
		// not in the figure reported to the caller.
		result = &PurchaseResult{
			Profile:       profile,
			PointsEarned:  purchasePoints + comebackBonus,
			StatusChanged: statusChanged,
			NewStatus:     newStatus,
		}
		return nil
	})
	return result, err
}

// =============================================================================
// FEEDBACK PROCESSING
// =============================================================================

// ProcessFeedback ingests one feedback submission. Only the feedback
// counter and engagement score change; status and milestone progress
// are recomputed on purchases only.
func (e *Engine) ProcessFeedback(ctx context.Context, feedbackID string, patientID PatientID, storeID StoreID, rating int, hasComment bool) (*FeedbackResult, error) {
	unlock := e.locks.acquire(patientID)
	defer unlock()

	var result *FeedbackResult
	err := e.withTx(ctx, func(s Store) error {
		profile, _, err := e.getOrCreate(ctx, s, patientID, storeID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		feedbackPoints := CalculateFeedbackPoints(rating, hasComment)

		feedback := &Event{
			ID:          EventID(uuid.NewString()),
			ProfileID:   profile.ID,
			StoreID:     storeID,
			Type:        EventFeedbackSubmitted,
			EventSource: feedbackID,
			Metadata: map[string]string{
				"rating":      fmt.Sprintf("%d", rating),
				"has_comment": fmt.Sprintf("%t", hasComment),
			},
			Description: fmt.Sprintf("Feedback provided (%d/5)", rating),
			Points:      feedbackPoints,
			CreatedAt:   now,
		}
		if err := s.AppendEvent(ctx, feedback); err != nil {
			return err
		}

		daysSinceFirst := daysBetween(profile.CreatedAt, now)
		profile.FeedbackCount++
		profile.DaysSinceFirst = daysSinceFirst
		profile.EngagementScore = EngagementScore(profile.FeedbackCount, profile.ComebackCount)
		profile.TotalPoints += feedbackPoints
		profile.UpdatedAt = now
		if err := s.UpdateProfile(ctx, profile); err != nil {
			return err
		}

		result = &FeedbackResult{Profile: profile, PointsEarned: feedbackPoints}
		return nil
	})
	return result, err
}

// =============================================================================
// GENERIC EVENT INGESTION (internal API path)
// =============================================================================

// RecordEvent appends an arbitrary typed ledger event for a customer,
// creating the profile if needed. Purchase and feedback events should
// go through their Process* entry points; this path exists for the
// internal ingest endpoint and carries no point award.
func (e *Engine) RecordEvent(ctx context.Context, patientID PatientID, storeID StoreID, eventType EventType, eventSource string, metadata map[string]string) (*Event, error) {
	switch eventType {
	case EventPurchaseCompleted, EventFeedbackSubmitted, EventComeback,
		EventMilestoneReached, EventRewardEarned, EventRewardRedeemed:
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidEventType, eventType)
	}

	unlock := e.locks.acquire(patientID)
	defer unlock()

	var event *Event
	err := e.withTx(ctx, func(s Store) error {
		profile, _, err := e.getOrCreate(ctx, s, patientID, storeID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		event = &Event{
			ID:          EventID(uuid.NewString()),
			ProfileID:   profile.ID,
			StoreID:     storeID,
			Type:        eventType,
			EventSource: eventSource,
			Metadata:    metadata,
			Description: fmt.Sprintf("Recorded %s", eventType),
			CreatedAt:   now,
		}
		if err := s.AppendEvent(ctx, event); err != nil {
			return err
		}

		profile.UpdatedAt = now
		return s.UpdateProfile(ctx, profile)
	})
	return event, err
}

// =============================================================================
// REWARD UNLOCK & REDEMPTION
// =============================================================================

// unlockRewardsForTier materializes the reward the new tier grants (if
// any) as UNLOCKED with a 90-day expiry, plus a REWARD_EARNED ledger
// entry. Called only on status upgrade, inside the purchase transaction.
func unlockRewardsForTier(ctx context.Context, s Store, profileID ProfileID, storeID StoreID, status Status, now time.Time) error {
	reward := NewTierReward(profileID, storeID, status, now)
	if reward == nil {
		return nil
	}
	if err := s.CreateReward(ctx, reward); err != nil {
		return err
	}

	earned := &Event{
		ID:          EventID(uuid.NewString()),
		ProfileID:   profileID,
		StoreID:     storeID,
		Type:        EventRewardEarned,
		EventSource: string(reward.ID),
		Description: fmt.Sprintf("Unlocked: %s", reward.Title),
		CreatedAt:   now,
	}
	return s.AppendEvent(ctx, earned)
}

// RedeemReward transitions a reward UNLOCKED -> REDEEMED exactly once.
// Redeeming a locked, already-redeemed, or expired reward is rejected.
// A zero-point REWARD_REDEEMED entry lands on the customer's ledger.
func (e *Engine) RedeemReward(ctx context.Context, rewardID RewardID, patientID PatientID) (*Reward, error) {
	unlock := e.locks.acquire(patientID)
	defer unlock()

	var reward *Reward
	err := e.withTx(ctx, func(s Store) error {
		var err error
		reward, err = s.GetReward(ctx, rewardID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if reward.Status != RewardUnlocked {
			return &RewardStateError{RewardID: reward.ID, Status: reward.Status}
		}
		if reward.IsExpired(now) {
			return &RewardExpiredError{RewardID: reward.ID, ExpiresAt: reward.ExpiresAt}
		}

		reward.Status = RewardRedeemed
		reward.RedeemedAt = &now
		if err := s.UpdateReward(ctx, reward); err != nil {
			return err
		}

		profile, err := s.GetProfileByPatient(ctx, patientID)
		if err != nil {
			if IsNotFound(err) {
				return nil
			}
			return err
		}

		redeemed := &Event{
			ID:          EventID(uuid.NewString()),
			ProfileID:   profile.ID,
			StoreID:     profile.StoreID,
			Type:        EventRewardRedeemed,
			EventSource: string(reward.ID),
			Description: fmt.Sprintf("Redeemed: %s", reward.Title),
			CreatedAt:   now,
		}
		return s.AppendEvent(ctx, redeemed)
	})
	if err != nil {
		return nil, err
	}
	return reward, nil
}

// daysBetween returns whole days elapsed from one time to another.
func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
