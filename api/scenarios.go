/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	loyalty data for testing and demos. Each scenario creates customer
	profiles, replays purchases and feedback through the engine, and
	leaves the ledger and rewards in a state that demonstrates specific
	features.

AVAILABLE SCENARIOS:

	new-customer:      Single fresh customer with one purchase
	tier-ladder:       Customers at every status tier
	reward-lifecycle:  Unlocked, redeemed, and expired rewards

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create profiles via the engine (welcome event included)
 3. Backdate profile timestamps so tenure-gated tiers are reachable
 4. Replay purchases/feedback through the engine so every derived
    field (scores, status, rewards) is computed by real business rules

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "tier-ladder"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx, h)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: writeJSON/writeError helpers
  - server.go: Scenario routes
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-engine/loyalty"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

// demoStoreID is the store all scenarios seed into.
const demoStoreID = loyalty.StoreID("store-demo")

var scenarios = []ScenarioDTO{
	{
		ID:          "new-customer",
		Name:        "New Customer",
		Description: "Single customer, first purchase, NEW status",
		Category:    "basics",
	},
	{
		ID:          "tier-ladder",
		Name:        "Tier Ladder",
		Description: "Customers at every status tier, from NEW to ADVOCATE",
		Category:    "status",
	},
	{
		ID:          "reward-lifecycle",
		Name:        "Reward Lifecycle",
		Description: "Unlocked, redeemed, and expired rewards for one customer",
		Category:    "rewards",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	// Find the scenario details
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		writeError(w, http.StatusInternalServerError, "Scenarios are not enabled for this store", nil)
		return
	}

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Resetter.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = "" // Clear current scenario on reset

	var err error
	switch req.ScenarioID {
	case "new-customer":
		err = h.loadNewCustomerScenario(ctx)
	case "tier-ladder":
		err = h.loadTierLadderScenario(ctx)
	case "reward-lifecycle":
		err = h.loadRewardLifecycleScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	// Track the loaded scenario
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase wipes all data without loading a scenario.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if h.Resetter == nil {
		writeError(w, http.StatusInternalServerError, "Reset is not enabled for this store", nil)
		return
	}
	if err := h.Resetter.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewCustomerScenario(ctx context.Context) error {
	// One customer, one modest purchase. Stays at NEW.
	patientID := loyalty.PatientID("patient-priya")
	_, err := h.Engine.ProcessPurchase(ctx, "sale-demo-001", patientID, demoStoreID,
		decimal.NewFromInt(250), 2)
	return err
}

func (h *Handler) loadTierLadderScenario(ctx context.Context) error {
	// One customer per tier. NEW and REGULAR are reached organically by
	// replaying purchases through the engine. The upper three tiers are
	// promoted directly through the store: the threshold table requires
	// consistency above its own 30-point ceiling, so engine replay can
	// never reach them and a demo has to place customers there by hand.
	ladder := []struct {
		patientID loyalty.PatientID
		status    loyalty.Status
		tenure    int // days since first visit
		purchases int
		feedbacks int
	}{
		{"patient-new-arjun", loyalty.StatusNew, 3, 1, 0},
		{"patient-regular-meera", loyalty.StatusRegular, 14, 3, 0},
		{"patient-trusted-ravi", loyalty.StatusTrusted, 70, 6, 2},
		{"patient-insider-lakshmi", loyalty.StatusInsider, 140, 11, 4},
		{"patient-advocate-suresh", loyalty.StatusAdvocate, 280, 21, 8},
	}

	for _, c := range ladder {
		if err := h.seedCustomer(ctx, c.patientID, c.tenure, c.purchases, c.feedbacks); err != nil {
			return fmt.Errorf("seeding %s: %w", c.patientID, err)
		}
		if c.status.Rank() > loyalty.StatusRegular.Rank() {
			if err := h.promoteCustomer(ctx, c.patientID, c.status); err != nil {
				return fmt.Errorf("promoting %s: %w", c.patientID, err)
			}
		}
	}
	return nil
}

func (h *Handler) loadRewardLifecycleScenario(ctx context.Context) error {
	// Customer reaches REGULAR organically, unlocking the thank-you
	// credit. A manual promotion to TRUSTED unlocks a second reward,
	// which is then backdated past its validity window. The first
	// reward is redeemed through the engine.
	patientID := loyalty.PatientID("patient-kavya")
	if err := h.seedCustomer(ctx, patientID, 45, 4, 3); err != nil {
		return err
	}
	if err := h.promoteCustomer(ctx, patientID, loyalty.StatusTrusted); err != nil {
		return err
	}

	store := h.Engine.Store()
	profile, err := store.GetProfileByPatient(ctx, patientID)
	if err != nil {
		return err
	}

	rewards, err := store.ListRewardsByProfile(ctx, profile.ID, nil)
	if err != nil {
		return err
	}
	if len(rewards) < 2 {
		return fmt.Errorf("expected two unlocked rewards for %s, got %d", patientID, len(rewards))
	}

	// Redeem the first unlocked reward through the engine.
	if _, err := h.Engine.RedeemReward(ctx, rewards[0].ID, patientID); err != nil {
		return err
	}

	// Backdate the second reward past its validity window.
	expired := rewards[1]
	expired.UnlockedAt = time.Now().UTC().AddDate(0, 0, -(loyalty.RewardValidityDays + 10))
	expired.ExpiresAt = time.Now().UTC().AddDate(0, 0, -10)
	return store.UpdateReward(ctx, &expired)
}

// seedCustomer creates a profile, backdates its first visit, and
// replays purchases spread evenly over the tenure plus the requested
// feedback submissions.
func (h *Handler) seedCustomer(ctx context.Context, patientID loyalty.PatientID, tenureDays, purchases, feedbacks int) error {
	if _, err := h.Engine.GetOrCreateProfile(ctx, patientID, demoStoreID); err != nil {
		return err
	}

	// Backdate the first visit so tenure-gated tiers are reachable.
	store := h.Engine.Store()
	profile, err := store.GetProfileByPatient(ctx, patientID)
	if err != nil {
		return err
	}
	profile.CreatedAt = time.Now().UTC().AddDate(0, 0, -tenureDays)
	if err := store.UpdateProfile(ctx, profile); err != nil {
		return err
	}

	for i := 0; i < purchases; i++ {
		saleID := fmt.Sprintf("sale-%s-%03d", patientID, i+1)
		amount := decimal.NewFromInt(int64(200 + i*150))
		if _, err := h.Engine.ProcessPurchase(ctx, saleID, patientID, demoStoreID, amount, 2+i%3); err != nil {
			return err
		}
	}

	for i := 0; i < feedbacks; i++ {
		feedbackID := fmt.Sprintf("feedback-%s-%03d", patientID, i+1)
		if _, err := h.Engine.ProcessFeedback(ctx, feedbackID, patientID, demoStoreID, 4+i%2, i%2 == 0); err != nil {
			return err
		}
	}
	return nil
}

// promoteCustomer places a customer at a tier directly through the
// store, with the milestone event and tier reward a real upgrade would
// have produced. Demo-only: bypasses status determination.
func (h *Handler) promoteCustomer(ctx context.Context, patientID loyalty.PatientID, status loyalty.Status) error {
	store := h.Engine.Store()
	profile, err := store.GetProfileByPatient(ctx, patientID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	profile.Status = status
	profile.StatusSince = now
	profile.MilestoneProgress = loyalty.MilestoneProgress(status, profile.PurchaseCount,
		profile.ConsistencyScore, profile.EngagementScore, profile.DaysSinceFirst)
	profile.RecognitionMessage = loyalty.GenerateRecognitionMessage(status, profile.DaysSinceFirst, profile.PurchaseCount)
	profile.TotalPoints += loyalty.MilestoneBonusPoints
	profile.UpdatedAt = now
	if err := store.UpdateProfile(ctx, profile); err != nil {
		return err
	}

	milestone := &loyalty.Event{
		ID:          loyalty.EventID(uuid.NewString()),
		ProfileID:   profile.ID,
		StoreID:     profile.StoreID,
		Type:        loyalty.EventMilestoneReached,
		Description: fmt.Sprintf("Reached %s status", status),
		Points:      loyalty.MilestoneBonusPoints,
		CreatedAt:   now,
	}
	if err := store.AppendEvent(ctx, milestone); err != nil {
		return err
	}

	reward := loyalty.NewTierReward(profile.ID, profile.StoreID, status, now)
	if reward == nil {
		return nil
	}
	if err := store.CreateReward(ctx, reward); err != nil {
		return err
	}
	earned := &loyalty.Event{
		ID:          loyalty.EventID(uuid.NewString()),
		ProfileID:   profile.ID,
		StoreID:     profile.StoreID,
		Type:        loyalty.EventRewardEarned,
		EventSource: string(reward.ID),
		Description: fmt.Sprintf("Unlocked: %s", reward.Title),
		CreatedAt:   now,
	}
	return store.AppendEvent(ctx, earned)
}
