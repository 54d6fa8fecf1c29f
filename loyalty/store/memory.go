// Package store provides an in-memory loyalty.Store implementation
// (for testing/dev).
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/loyalty-engine/loyalty"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	profiles  map[loyalty.ProfileID]loyalty.Profile
	byPatient map[loyalty.PatientID]loyalty.ProfileID
	events    map[loyalty.ProfileID][]loyalty.Event
	rewards   map[loyalty.RewardID]loyalty.Reward
}

func NewMemory() *Memory {
	return &Memory{
		profiles:  make(map[loyalty.ProfileID]loyalty.Profile),
		byPatient: make(map[loyalty.PatientID]loyalty.ProfileID),
		events:    make(map[loyalty.ProfileID][]loyalty.Event),
		rewards:   make(map[loyalty.RewardID]loyalty.Reward),
	}
}

var _ loyalty.Store = (*Memory)(nil)

// -----------------------------------------------------------------------------
// Profiles
// -----------------------------------------------------------------------------

func (m *Memory) GetProfileByPatient(_ context.Context, patientID loyalty.PatientID) (*loyalty.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPatient[patientID]
	if !ok {
		return nil, loyalty.ErrProfileNotFound
	}
	p := m.profiles[id]
	return &p, nil
}

func (m *Memory) GetProfile(_ context.Context, id loyalty.ProfileID) (*loyalty.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[id]
	if !ok {
		return nil, loyalty.ErrProfileNotFound
	}
	return &p, nil
}

func (m *Memory) CreateProfile(_ context.Context, p *loyalty.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[p.ID] = *p
	m.byPatient[p.PatientID] = p.ID
	return nil
}

func (m *Memory) UpdateProfile(_ context.Context, p *loyalty.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.profiles[p.ID]
	if !ok {
		return loyalty.ErrProfileNotFound
	}
	if stored.Version != p.Version {
		return loyalty.ErrConcurrentModification
	}
	p.Version++

	// Identity fields are fixed at creation.
	next := *p
	next.PatientID = stored.PatientID
	next.StoreID = stored.StoreID
	m.profiles[p.ID] = next
	return nil
}

func (m *Memory) ListProfilesByStore(_ context.Context, storeID loyalty.StoreID, filter loyalty.ProfileFilter) ([]*loyalty.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []loyalty.Profile
	for _, p := range m.profiles {
		if p.StoreID != storeID {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		matched = append(matched, p)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].UpdatedAt.After(matched[j].UpdatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	result := make([]*loyalty.Profile, len(matched))
	for i := range matched {
		p := matched[i]
		result[i] = &p
	}
	return result, nil
}

// -----------------------------------------------------------------------------
// Events (append-only)
// -----------------------------------------------------------------------------

func (m *Memory) AppendEvent(_ context.Context, e *loyalty.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events[e.ProfileID] = append(m.events[e.ProfileID], *e)
	return nil
}

func (m *Memory) ListEventsByProfile(_ context.Context, profileID loyalty.ProfileID, limit int) ([]loyalty.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]loyalty.Event, len(m.events[profileID]))
	copy(events, m.events[profileID])
	// Newest first; insertion order breaks same-timestamp ties.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].CreatedAt.After(events[j].CreatedAt)
	})
	if limit > 0 && len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

func (m *Memory) ListEventsByStore(_ context.Context, storeID loyalty.StoreID, filter loyalty.EventFilter) ([]loyalty.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []loyalty.Event
	for _, events := range m.events {
		for _, e := range events {
			if e.StoreID != storeID {
				continue
			}
			if filter.Type != nil && e.Type != *filter.Type {
				continue
			}
			if filter.From != nil && e.CreatedAt.Before(*filter.From) {
				continue
			}
			if filter.To != nil && e.CreatedAt.After(*filter.To) {
				continue
			}
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (m *Memory) CountEventsByStoreSince(_ context.Context, storeID loyalty.StoreID, since time.Time, types ...loyalty.EventType) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, events := range m.events {
		for _, e := range events {
			if e.StoreID != storeID || e.CreatedAt.Before(since) {
				continue
			}
			if len(types) > 0 && !containsType(types, e.Type) {
				continue
			}
			count++
		}
	}
	return count, nil
}

func containsType(types []loyalty.EventType, t loyalty.EventType) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------
// Rewards
// -----------------------------------------------------------------------------

func (m *Memory) CreateReward(_ context.Context, r *loyalty.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.rewards[r.ID] = *r
	return nil
}

func (m *Memory) GetReward(_ context.Context, id loyalty.RewardID) (*loyalty.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rewards[id]
	if !ok {
		return nil, loyalty.ErrRewardNotFound
	}
	return &r, nil
}

func (m *Memory) UpdateReward(_ context.Context, r *loyalty.Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.rewards[r.ID]
	if !ok {
		return loyalty.ErrRewardNotFound
	}

	// Identity fields are fixed at creation.
	next := *r
	next.ProfileID = stored.ProfileID
	next.StoreID = stored.StoreID
	m.rewards[r.ID] = next
	return nil
}

func (m *Memory) ListRewardsByProfile(_ context.Context, profileID loyalty.ProfileID, status *loyalty.RewardStatus) ([]loyalty.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []loyalty.Reward
	for _, r := range m.rewards {
		if r.ProfileID != profileID {
			continue
		}
		if status != nil && r.Status != *status {
			continue
		}
		matched = append(matched, r)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return matched, nil
}

func (m *Memory) ListExpiredRewards(_ context.Context, storeID loyalty.StoreID, asOf time.Time) ([]loyalty.Reward, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []loyalty.Reward
	for _, r := range m.rewards {
		if r.StoreID != storeID || r.Status != loyalty.RewardUnlocked {
			continue
		}
		if asOf.After(r.ExpiresAt) {
			matched = append(matched, r)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ExpiresAt.Before(matched[j].ExpiresAt)
	})
	return matched, nil
}

// -----------------------------------------------------------------------------
// Aggregates
// -----------------------------------------------------------------------------

func (m *Memory) CountProfilesByStatus(_ context.Context, storeID loyalty.StoreID) (map[loyalty.Status]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[loyalty.Status]int)
	for _, p := range m.profiles {
		if p.StoreID == storeID {
			counts[p.Status]++
		}
	}
	return counts, nil
}

func (m *Memory) CountProfilesInactiveSince(_ context.Context, storeID loyalty.StoreID, before time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, p := range m.profiles {
		if p.StoreID != storeID {
			continue
		}
		if p.LastPurchaseAt != nil && p.LastPurchaseAt.Before(before) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) CountProfilesCreatedSince(_ context.Context, storeID loyalty.StoreID, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, p := range m.profiles {
		if p.StoreID == storeID && !p.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (m *Memory) ListNearMilestone(_ context.Context, storeID loyalty.StoreID, minProgress float64) ([]*loyalty.Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []loyalty.Profile
	for _, p := range m.profiles {
		if p.StoreID != storeID {
			continue
		}
		if p.MilestoneProgress >= minProgress && p.MilestoneProgress < 100 {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].MilestoneProgress > matched[j].MilestoneProgress
	})

	result := make([]*loyalty.Profile, len(matched))
	for i := range matched {
		p := matched[i]
		result[i] = &p
	}
	return result, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with best-effort transaction support. The
// in-memory store has no rollback; tests that need real transactional
// behavior use the SQLite store.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

var _ loyalty.TxStore = (*TxMemory)(nil)

func (t *TxMemory) WithTx(_ context.Context, fn func(loyalty.Store) error) error {
	t.txMu.Lock()
	defer t.txMu.Unlock()
	return fn(t.Memory)
}
