package loyalty_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/loyalty-engine/loyalty"
	"github.com/warp/loyalty-engine/loyalty/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T) (*loyalty.Engine, *store.TxMemory) {
	t.Helper()
	mem := store.NewTxMemory()
	return loyalty.NewEngine(mem), mem
}

// backdateProfile rewrites profile timestamps so tenure and idle-gap
// rules fire deterministically without waiting out real days.
func backdateProfile(t *testing.T, s loyalty.Store, patientID loyalty.PatientID, mutate func(*loyalty.Profile)) {
	t.Helper()
	profile, err := s.GetProfileByPatient(context.Background(), patientID)
	require.NoError(t, err)
	mutate(profile)
	require.NoError(t, s.UpdateProfile(context.Background(), profile))
}

func daysAgo(n int) time.Time {
	return time.Now().UTC().AddDate(0, 0, -n)
}

// =============================================================================
// PURCHASE PROCESSING
// =============================================================================

func TestProcessPurchase_FirstPurchase_NewCustomer(t *testing.T) {
	// GIVEN: A patient with no loyalty profile
	// WHEN: Their first purchase of ₹200, 1 item, is processed
	// THEN: Profile is created at NEW, 5 base points, and the ledger
	//       holds the journey-started event plus the purchase event

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.ProcessPurchase(ctx, "sale-1", "patient-1", "store-1",
		decimal.NewFromInt(200), 1)
	require.NoError(t, err)

	assert.Equal(t, loyalty.StatusNew, result.Profile.Status, "one purchase fails REGULAR's minPurchases=2")
	assert.Equal(t, 5, result.PointsEarned)
	assert.False(t, result.StatusChanged)
	assert.Equal(t, 1, result.Profile.PurchaseCount)
	assert.Equal(t, 5, result.Profile.TotalPoints)
	assert.NotNil(t, result.Profile.LastPurchaseAt)

	events, err := engine.History(ctx, "patient-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	// Newest first
	assert.Equal(t, loyalty.EventPurchaseCompleted, events[0].Type)
	assert.Equal(t, "sale-1", events[0].EventSource)
	assert.Equal(t, 5, events[0].Points)
	assert.Equal(t, loyalty.EventMilestoneReached, events[1].Type)
	assert.Equal(t, "Loyalty journey started", events[1].Description)
	assert.Equal(t, 0, events[1].Points)
}

func TestProcessPurchase_UpgradeToRegular_UnlocksReward(t *testing.T) {
	// GIVEN: A customer with 1 prior purchase, 8 days of tenure
	// WHEN: A ₹1500, 5-item purchase is processed
	// THEN: 11 points (5+2+3+1), upgrade to REGULAR with a milestone
	//       event and the ₹25 thank-you credit unlocked

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.GetOrCreateProfile(ctx, "patient-2", "store-1")
	require.NoError(t, err)
	backdateProfile(t, mem, "patient-2", func(p *loyalty.Profile) {
		p.CreatedAt = daysAgo(8)
		p.PurchaseCount = 1
		last := daysAgo(4)
		p.LastPurchaseAt = &last
	})

	result, err := engine.ProcessPurchase(ctx, "sale-2", "patient-2", "store-1",
		decimal.NewFromInt(1500), 5)
	require.NoError(t, err)

	assert.Equal(t, 11, result.PointsEarned, "milestone bonus is ledger-only")
	assert.True(t, result.StatusChanged)
	assert.Equal(t, loyalty.StatusRegular, result.NewStatus)
	assert.Equal(t, 2, result.Profile.PurchaseCount)
	// 2 purchases over 8 days: gap 4, score 30-|4-14| = 20, exactly REGULAR's bar
	assert.InDelta(t, 20.0, result.Profile.ConsistencyScore, 0.001)
	// Purchase 11 + milestone 10
	assert.Equal(t, 21, result.Profile.TotalPoints)

	rewards, err := mem.ListRewardsByProfile(ctx, result.Profile.ID, nil)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, loyalty.RewardUnlocked, rewards[0].Status)
	assert.Equal(t, "₹25 Thank You", rewards[0].Title)
	require.NotNil(t, rewards[0].CreditAmount)
	assert.True(t, rewards[0].CreditAmount.Equal(decimal.NewFromInt(25)))

	events, err := engine.History(ctx, "patient-2", 10)
	require.NoError(t, err)
	types := make([]loyalty.EventType, 0, len(events))
	for _, e := range events {
		types = append(types, e.Type)
	}
	assert.Contains(t, types, loyalty.EventMilestoneReached)
	assert.Contains(t, types, loyalty.EventRewardEarned)
}

func TestProcessPurchase_ComebackBonus(t *testing.T) {
	// GIVEN: A customer whose last purchase was 40 days ago
	// WHEN: They purchase again
	// THEN: +10 comeback bonus on top of purchase points, a COMEBACK
	//       ledger event, and the comeback counter increments

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.GetOrCreateProfile(ctx, "patient-3", "store-1")
	require.NoError(t, err)
	backdateProfile(t, mem, "patient-3", func(p *loyalty.Profile) {
		p.CreatedAt = daysAgo(40)
		last := daysAgo(40)
		p.LastPurchaseAt = &last
	})

	result, err := engine.ProcessPurchase(ctx, "sale-3", "patient-3", "store-1",
		decimal.NewFromInt(200), 1)
	require.NoError(t, err)

	assert.Equal(t, 15, result.PointsEarned, "5 purchase + 10 comeback")
	assert.Equal(t, 1, result.Profile.ComebackCount)

	events, err := engine.History(ctx, "patient-3", 10)
	require.NoError(t, err)
	var comeback *loyalty.Event
	for i := range events {
		if events[i].Type == loyalty.EventComeback {
			comeback = &events[i]
		}
	}
	require.NotNil(t, comeback, "comeback event should be in the ledger")
	assert.Equal(t, 10, comeback.Points)
	assert.Contains(t, comeback.Description, "Welcome back after 40 days")
}

func TestProcessPurchase_NoComebackUnderThirtyDays(t *testing.T) {
	// GIVEN: A customer whose last purchase was 29 days ago
	// WHEN: They purchase again
	// THEN: No comeback bonus

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.GetOrCreateProfile(ctx, "patient-4", "store-1")
	require.NoError(t, err)
	backdateProfile(t, mem, "patient-4", func(p *loyalty.Profile) {
		p.CreatedAt = daysAgo(29)
		last := daysAgo(29)
		p.LastPurchaseAt = &last
	})

	result, err := engine.ProcessPurchase(ctx, "sale-4", "patient-4", "store-1",
		decimal.NewFromInt(200), 1)
	require.NoError(t, err)

	assert.Equal(t, 5, result.PointsEarned)
	assert.Equal(t, 0, result.Profile.ComebackCount)
}

func TestProcessPurchase_ConcurrentSamePatient_NoLostEvents(t *testing.T) {
	// GIVEN: Ten concurrent purchases for the same patient
	// WHEN: All are processed
	// THEN: The counter and ledger agree: 10 purchases, 10 purchase
	//       events, no lost updates

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.ProcessPurchase(ctx, "sale-c", "patient-5", "store-1",
				decimal.NewFromInt(200), 1)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	profile, err := mem.GetProfileByPatient(ctx, "patient-5")
	require.NoError(t, err)
	assert.Equal(t, 10, profile.PurchaseCount)
	assert.Equal(t, 50, profile.TotalPoints)

	events, err := mem.ListEventsByProfile(ctx, profile.ID, 100)
	require.NoError(t, err)
	purchases := 0
	for _, e := range events {
		if e.Type == loyalty.EventPurchaseCompleted {
			purchases++
		}
	}
	assert.Equal(t, 10, purchases)
}

// =============================================================================
// FEEDBACK PROCESSING
// =============================================================================

func TestProcessFeedback_UpdatesEngagementOnly(t *testing.T) {
	// GIVEN: A NEW customer
	// WHEN: They submit a 5-star feedback with a comment
	// THEN: 10 points, engagement recomputed, but status and milestone
	//       progress untouched

	engine, _ := newTestEngine(t)
	ctx := context.Background()

	result, err := engine.ProcessFeedback(ctx, "fb-1", "patient-6", "store-1", 5, true)
	require.NoError(t, err)

	assert.Equal(t, 10, result.PointsEarned)
	assert.Equal(t, 1, result.Profile.FeedbackCount)
	assert.Equal(t, 5.0, result.Profile.EngagementScore)
	assert.Equal(t, loyalty.StatusNew, result.Profile.Status)
	assert.Equal(t, 0, result.Profile.PurchaseCount)
	assert.Equal(t, 0.0, result.Profile.MilestoneProgress, "progress recomputes on purchases only")

	events, err := engine.History(ctx, "patient-6", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, loyalty.EventFeedbackSubmitted, events[0].Type)
	assert.Equal(t, "Feedback provided (5/5)", events[0].Description)
}

// =============================================================================
// GENERIC EVENT INGESTION
// =============================================================================

func TestRecordEvent_RejectsUnknownType(t *testing.T) {
	// GIVEN: An event type outside the known set
	// WHEN: It is recorded
	// THEN: ErrInvalidEventType, classified as a client error

	engine, _ := newTestEngine(t)

	_, err := engine.RecordEvent(context.Background(), "patient-7", "store-1",
		loyalty.EventType("COUPON_CLIPPED"), "", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, loyalty.ErrInvalidEventType)
	assert.True(t, loyalty.IsClientError(err))
}

func TestRecordEvent_AppendsBareEvent(t *testing.T) {
	// GIVEN: A valid event type with metadata
	// WHEN: It is recorded through the generic path
	// THEN: A zero-point ledger entry, profile created lazily

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	event, err := engine.RecordEvent(ctx, "patient-8", "store-1",
		loyalty.EventComeback, "src-1", map[string]string{"channel": "sms"})
	require.NoError(t, err)
	assert.Equal(t, 0, event.Points)
	assert.Equal(t, "sms", event.Metadata["channel"])

	profile, err := mem.GetProfileByPatient(ctx, "patient-8")
	require.NoError(t, err)
	assert.Equal(t, loyalty.StatusNew, profile.Status)
	assert.Equal(t, 0, profile.ComebackCount, "generic path awards nothing")
}

// =============================================================================
// REWARD REDEMPTION
// =============================================================================

// unlockRegularReward drives a customer to REGULAR and returns the
// unlocked thank-you credit.
func unlockRegularReward(t *testing.T, engine *loyalty.Engine, mem *store.TxMemory, patientID loyalty.PatientID) loyalty.Reward {
	t.Helper()
	ctx := context.Background()

	_, err := engine.GetOrCreateProfile(ctx, patientID, "store-1")
	require.NoError(t, err)
	backdateProfile(t, mem, patientID, func(p *loyalty.Profile) {
		p.CreatedAt = daysAgo(8)
		p.PurchaseCount = 1
		last := daysAgo(4)
		p.LastPurchaseAt = &last
	})
	result, err := engine.ProcessPurchase(ctx, "sale-r", patientID, "store-1",
		decimal.NewFromInt(300), 1)
	require.NoError(t, err)
	require.True(t, result.StatusChanged)

	rewards, err := mem.ListRewardsByProfile(ctx, result.Profile.ID, nil)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	return rewards[0]
}

func TestRedeemReward_HappyPath(t *testing.T) {
	// GIVEN: An unlocked, unexpired reward
	// WHEN: It is redeemed
	// THEN: REDEEMED with a redemption timestamp and a ledger entry

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	reward := unlockRegularReward(t, engine, mem, "patient-9")

	redeemed, err := engine.RedeemReward(ctx, reward.ID, "patient-9")
	require.NoError(t, err)
	assert.Equal(t, loyalty.RewardRedeemed, redeemed.Status)
	require.NotNil(t, redeemed.RedeemedAt)

	events, err := engine.History(ctx, "patient-9", 10)
	require.NoError(t, err)
	assert.Equal(t, loyalty.EventRewardRedeemed, events[0].Type)
	assert.Contains(t, events[0].Description, "₹25 Thank You")
}

func TestRedeemReward_Terminal(t *testing.T) {
	// GIVEN: An already-redeemed reward
	// WHEN: Redemption is attempted again
	// THEN: RewardStateError, classified as a client error

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	reward := unlockRegularReward(t, engine, mem, "patient-10")

	_, err := engine.RedeemReward(ctx, reward.ID, "patient-10")
	require.NoError(t, err)

	_, err = engine.RedeemReward(ctx, reward.ID, "patient-10")
	require.Error(t, err)
	var stateErr *loyalty.RewardStateError
	assert.ErrorAs(t, err, &stateErr)
	assert.Equal(t, loyalty.RewardRedeemed, stateErr.Status)
	assert.True(t, loyalty.IsClientError(err))
}

func TestRedeemReward_Expired(t *testing.T) {
	// GIVEN: An unlocked reward past its 90-day validity window
	// WHEN: Redemption is attempted
	// THEN: RewardExpiredError, the reward stays UNLOCKED

	engine, mem := newTestEngine(t)
	ctx := context.Background()
	reward := unlockRegularReward(t, engine, mem, "patient-11")

	reward.ExpiresAt = daysAgo(1)
	require.NoError(t, mem.UpdateReward(ctx, &reward))

	_, err := engine.RedeemReward(ctx, reward.ID, "patient-11")
	require.Error(t, err)
	var expErr *loyalty.RewardExpiredError
	assert.ErrorAs(t, err, &expErr)
	assert.True(t, loyalty.IsClientError(err))

	stored, err := mem.GetReward(ctx, reward.ID)
	require.NoError(t, err)
	assert.Equal(t, loyalty.RewardUnlocked, stored.Status)
}

func TestRedeemReward_NotFound(t *testing.T) {
	// GIVEN: A reward ID that does not exist
	// WHEN: Redemption is attempted
	// THEN: ErrRewardNotFound

	engine, _ := newTestEngine(t)

	_, err := engine.RedeemReward(context.Background(), "no-such-reward", "patient-12")
	require.Error(t, err)
	assert.True(t, loyalty.IsNotFound(err))
}

// =============================================================================
// PROFILE LIFECYCLE
// =============================================================================

func TestGetOrCreateProfile_Idempotent(t *testing.T) {
	// GIVEN: A profile created on first contact
	// WHEN: GetOrCreateProfile is called again
	// THEN: The same profile comes back, with a single welcome event

	engine, mem := newTestEngine(t)
	ctx := context.Background()

	first, err := engine.GetOrCreateProfile(ctx, "patient-13", "store-1")
	require.NoError(t, err)
	second, err := engine.GetOrCreateProfile(ctx, "patient-13", "store-1")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	events, err := mem.ListEventsByProfile(ctx, first.ID, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
