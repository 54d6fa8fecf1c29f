/*
store.go - Persistence interfaces for profiles, events, and rewards

PURPOSE:
  Defines the contract between the engine and the database. Any storage
  technology satisfying Store works; the repository ships SQLite
  (store/sqlite) for production and an in-memory store (loyalty/store)
  for tests.

APPEND-ONLY CONTRACT:
  Events are the audit trail. The interface exposes AppendEvent and
  read methods only - no update or delete of events exists anywhere.

OPTIMISTIC CONCURRENCY:
  UpdateProfile is compare-and-swap on Profile.Version. A stale write
  returns ErrConcurrentModification. Combined with the engine's
  per-patient serialization this makes concurrent events for the same
  customer safe in-process and across processes.

TRANSACTIONS:
  TxStore.WithTx runs a function against a transactional view of the
  store. The engine wraps every per-event write sequence (events +
  profile + reward) in one transaction so a mid-sequence failure
  leaves no partial state.

SEE ALSO:
  - engine.go: The only writer
  - store/memory.go: In-memory implementation
  - store/sqlite/sqlite.go: SQLite implementation
*/
package loyalty

import (
	"context"
	"time"
)

// ProfileFilter narrows store-scoped profile listings.
type ProfileFilter struct {
	Status *Status
	Limit  int // 0 = default (50)
	Offset int
}

// EventFilter narrows store-scoped event listings.
type EventFilter struct {
	Type  *EventType
	From  *time.Time
	To    *time.Time
	Limit int // 0 = default (100)
}

// Store is the persistence contract for the loyalty engine.
type Store interface {
	// --- Profiles ---

	// GetProfileByPatient returns the profile for a customer, or
	// ErrProfileNotFound.
	GetProfileByPatient(ctx context.Context, patientID PatientID) (*Profile, error)

	// GetProfile returns a profile by its own id, or ErrProfileNotFound.
	GetProfile(ctx context.Context, id ProfileID) (*Profile, error)

	// CreateProfile persists a new profile.
	CreateProfile(ctx context.Context, p *Profile) error

	// UpdateProfile writes the profile if p.Version matches the stored
	// version, then increments p.Version. Returns
	// ErrConcurrentModification on a stale write. Every field persists
	// except the identity triple (ID, PatientID, StoreID), which is
	// fixed at creation; implementations must not let an update move a
	// profile between patients or stores.
	UpdateProfile(ctx context.Context, p *Profile) error

	// ListProfilesByStore returns a store's profiles, most recently
	// updated first.
	ListProfilesByStore(ctx context.Context, storeID StoreID, filter ProfileFilter) ([]*Profile, error)

	// --- Events (append-only) ---

	// AppendEvent persists one ledger entry. Events are immutable.
	AppendEvent(ctx context.Context, e *Event) error

	// ListEventsByProfile returns a profile's events, newest first.
	ListEventsByProfile(ctx context.Context, profileID ProfileID, limit int) ([]Event, error)

	// ListEventsByStore returns a store's events, newest first.
	ListEventsByStore(ctx context.Context, storeID StoreID, filter EventFilter) ([]Event, error)

	// CountEventsByStoreSince counts a store's events created at or
	// after a cutoff. With types given, only those types count.
	CountEventsByStoreSince(ctx context.Context, storeID StoreID, since time.Time, types ...EventType) (int, error)

	// --- Rewards ---

	CreateReward(ctx context.Context, r *Reward) error

	// GetReward returns a reward by id, or ErrRewardNotFound.
	GetReward(ctx context.Context, id RewardID) (*Reward, error)

	// UpdateReward writes reward lifecycle changes (UNLOCKED ->
	// REDEEMED). Every field persists except the identity triple
	// (ID, ProfileID, StoreID), which is fixed at creation.
	UpdateReward(ctx context.Context, r *Reward) error

	// ListRewardsByProfile returns a profile's rewards, newest first,
	// optionally filtered by status.
	ListRewardsByProfile(ctx context.Context, profileID ProfileID, status *RewardStatus) ([]Reward, error)

	// ListExpiredRewards returns a store's UNLOCKED rewards past expiry
	// as of the given time. Expiry is a read-time check.
	ListExpiredRewards(ctx context.Context, storeID StoreID, asOf time.Time) ([]Reward, error)

	// --- Store-scoped aggregates ---

	// CountProfilesByStatus returns the status distribution for a store.
	CountProfilesByStatus(ctx context.Context, storeID StoreID) (map[Status]int, error)

	// CountProfilesInactiveSince counts profiles whose last purchase is
	// before the cutoff ("at risk").
	CountProfilesInactiveSince(ctx context.Context, storeID StoreID, before time.Time) (int, error)

	// CountProfilesCreatedSince counts profiles created at or after the
	// cutoff (engagement metrics window).
	CountProfilesCreatedSince(ctx context.Context, storeID StoreID, since time.Time) (int, error)

	// ListNearMilestone returns profiles with minProgress <= progress < 100,
	// highest progress first.
	ListNearMilestone(ctx context.Context, storeID StoreID, minProgress float64) ([]*Profile, error)
}

// TxStore wraps Store with transaction support. The engine uses it to
// make each per-event write sequence atomic.
type TxStore interface {
	Store

	// WithTx executes fn against a transactional store view. fn
	// returning an error rolls everything back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
