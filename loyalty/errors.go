/*
errors.go - Centralized error types for the loyalty engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these onto HTTP status codes via the Is* helpers.

ERROR CATEGORIES:
  1. Not-found errors - Missing profile or reward on a read path
  2. Redemption errors - Guarded reward lifecycle violations
  3. Store errors - Concurrency conflicts surfaced by persistence

SEE ALSO:
  - engine.go: Raises redemption errors
  - store.go: Raises not-found and concurrency errors
*/
package loyalty

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrProfileNotFound is returned by read paths when no loyalty
	// profile exists for a customer. Write paths never return it:
	// profiles are created lazily.
	ErrProfileNotFound = errors.New("loyalty profile not found")

	// ErrRewardNotFound is returned when a referenced reward doesn't exist.
	ErrRewardNotFound = errors.New("reward not found")

	// ErrRewardNotRedeemable is returned when redeeming a reward that is
	// not currently UNLOCKED (already redeemed, or still locked).
	ErrRewardNotRedeemable = errors.New("reward is not redeemable")

	// ErrRewardExpired is returned when redeeming a reward past its expiry.
	ErrRewardExpired = errors.New("reward has expired")

	// ErrConcurrentModification is returned when optimistic locking
	// detects a conflicting profile write.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrInvalidEventType is returned when ingesting an event with an
	// unknown type.
	ErrInvalidEventType = errors.New("invalid event type")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// RewardStateError reports the reward state that blocked a redemption.
type RewardStateError struct {
	RewardID RewardID
	Status   RewardStatus
}

func (e *RewardStateError) Error() string {
	return fmt.Sprintf("reward %s is %s, not redeemable", e.RewardID, e.Status)
}

func (e *RewardStateError) Unwrap() error { return ErrRewardNotRedeemable }

// RewardExpiredError reports an attempted redemption past expiry.
type RewardExpiredError struct {
	RewardID  RewardID
	ExpiresAt time.Time
}

func (e *RewardExpiredError) Error() string {
	return fmt.Sprintf("reward %s expired at %s", e.RewardID, e.ExpiresAt.Format(time.RFC3339))
}

func (e *RewardExpiredError) Unwrap() error { return ErrRewardExpired }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrRewardNotFound)
}

// IsClientError returns true if the error is due to invalid client input
// or a state conflict the caller can act on.
func IsClientError(err error) bool {
	return errors.Is(err, ErrRewardNotRedeemable) ||
		errors.Is(err, ErrRewardExpired) ||
		errors.Is(err, ErrInvalidEventType)
}

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
