/*
handlers.go - HTTP API handlers for the loyalty engine

PURPOSE:
  Exposes the loyalty engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Customer-facing:
    GET  /api/loyalty/profiles/{patientID}           Profile details
    GET  /api/loyalty/profiles/{patientID}/progress  Dimension breakdown
    GET  /api/loyalty/profiles/{patientID}/rewards   Reward summary
    GET  /api/loyalty/profiles/{patientID}/history   Ledger history

  Store-facing:
    GET  /api/loyalty/customers?store_id=            Profile listing
    GET  /api/loyalty/overview?store_id=             Engagement snapshot
    GET  /api/loyalty/rewards/expired?store_id=      Expired unlocked rewards

  Ingest:
    POST /api/loyalty/events                         Record a business event
    POST /api/loyalty/rewards/{rewardID}/redeem      Redeem a reward

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Profile or reward not found
  - 409: Redemption conflicts (not unlocked, expired)
  - 500: Internal errors

SECURITY NOTE:
  No authentication middleware. The host application fronts these
  routes with its own auth.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/loyalty-engine/loyalty"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Resetter is implemented by stores that can drop all data (dev/demo).
type Resetter interface {
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine *loyalty.Engine

	// Resetter wipes the store before loading a demo scenario.
	// Nil disables the scenario endpoints' load path.
	Resetter Resetter

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler around the engine.
func NewHandler(engine *loyalty.Engine, resetter Resetter) *Handler {
	return &Handler{Engine: engine, Resetter: resetter}
}

// =============================================================================
// CUSTOMER-FACING READS
// =============================================================================

// GetProfile returns profile details for a customer.
// GET /api/loyalty/profiles/{patientID}
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	patientID := loyalty.PatientID(chi.URLParam(r, "patientID"))

	details, err := h.Engine.ProfileDetails(r.Context(), patientID)
	if err != nil {
		writeDomainError(w, "Failed to fetch loyalty profile", err)
		return
	}

	recent := details.RecentEvents
	if len(recent) > 5 {
		recent = recent[:5]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"profile":          toProfileDTO(details.Profile),
		"next_status":      toNextStatusDTO(details.NextStatus),
		"recent_activity":  toEventDTOs(recent),
		"unlocked_rewards": toRewardDTOs(details.UnlockedRewards, time.Now().UTC()),
	})
}

// GetProgress returns the dimension breakdown and milestone checklist.
// GET /api/loyalty/profiles/{patientID}/progress
func (h *Handler) GetProgress(w http.ResponseWriter, r *http.Request) {
	patientID := loyalty.PatientID(chi.URLParam(r, "patientID"))

	breakdown, err := h.Engine.ProgressBreakdown(r.Context(), patientID)
	if err != nil {
		writeDomainError(w, "Failed to fetch loyalty progress", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"progress": toProgressDTO(breakdown)})
}

// GetRewards returns a customer's rewards grouped by lifecycle stage.
// GET /api/loyalty/profiles/{patientID}/rewards
func (h *Handler) GetRewards(w http.ResponseWriter, r *http.Request) {
	patientID := loyalty.PatientID(chi.URLParam(r, "patientID"))

	summary, err := h.Engine.RewardSummary(r.Context(), patientID)
	if err != nil {
		writeDomainError(w, "Failed to fetch loyalty rewards", err)
		return
	}

	now := time.Now().UTC()
	writeJSON(w, http.StatusOK, map[string]any{
		"rewards": map[string]any{
			"unlocked": toRewardDTOs(summary.Unlocked, now),
			"redeemed": toRewardDTOs(summary.Redeemed, now),
			"upcoming": toRewardDTOs(summary.Upcoming, now),
		},
	})
}

// GetHistory returns a customer's ledger events.
// GET /api/loyalty/profiles/{patientID}/history?limit=50
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	patientID := loyalty.PatientID(chi.URLParam(r, "patientID"))

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = parsed
	}

	events, err := h.Engine.History(r.Context(), patientID, limit)
	if err != nil {
		writeDomainError(w, "Failed to fetch loyalty history", err)
		return
	}

	dtos := toEventDTOs(events)
	writeJSON(w, http.StatusOK, map[string]any{
		"history": dtos,
		"total":   len(dtos),
	})
}

// =============================================================================
// STORE-FACING READS
// =============================================================================

// GetCustomers lists a store's loyalty profiles.
// GET /api/loyalty/customers?store_id=&status=&limit=&offset=
func (h *Handler) GetCustomers(w http.ResponseWriter, r *http.Request) {
	storeID := loyalty.StoreID(r.URL.Query().Get("store_id"))
	if storeID == "" {
		writeError(w, http.StatusBadRequest, "store_id is required", nil)
		return
	}

	filter := loyalty.ProfileFilter{}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := loyalty.Status(raw)
		if !status.Valid() {
			writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
			return
		}
		filter.Status = &status
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	profiles, err := h.Engine.CustomersByStore(r.Context(), storeID, filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch loyalty customers", err)
		return
	}

	dtos := toProfileDTOs(profiles)
	writeJSON(w, http.StatusOK, map[string]any{
		"customers": dtos,
		"total":     len(dtos),
	})
}

// GetOverview returns the store-wide engagement snapshot.
// GET /api/loyalty/overview?store_id=
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	storeID := loyalty.StoreID(r.URL.Query().Get("store_id"))
	if storeID == "" {
		writeError(w, http.StatusBadRequest, "store_id is required", nil)
		return
	}

	overview, err := h.Engine.StoreOverview(r.Context(), storeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch loyalty overview", err)
		return
	}

	byStatus := make(map[string]int, len(overview.Stats.ByStatus))
	for status, n := range overview.Stats.ByStatus {
		byStatus[string(status)] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"overview": OverviewDTO{
			Stats: OverviewStatsDTO{
				Total:    overview.Stats.TotalProfiles,
				ByStatus: byStatus,
				AtRisk:   overview.Stats.AtRisk,
			},
			Metrics: MetricsDTO{
				PeriodDays:     overview.Metrics.PeriodDays,
				NewProfiles:    overview.Metrics.NewProfiles,
				RecentActivity: overview.Metrics.RecentActivity,
				StatusUpgrades: overview.Metrics.StatusUpgrades,
			},
			NearMilestone: toProfileDTOs(overview.NearMilestone),
		},
	})
}

// GetExpiredRewards lists a store's UNLOCKED rewards past expiry.
// GET /api/loyalty/rewards/expired?store_id=
func (h *Handler) GetExpiredRewards(w http.ResponseWriter, r *http.Request) {
	storeID := loyalty.StoreID(r.URL.Query().Get("store_id"))
	if storeID == "" {
		writeError(w, http.StatusBadRequest, "store_id is required", nil)
		return
	}

	rewards, err := h.Engine.ExpiredRewards(r.Context(), storeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch expired rewards", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rewards": toRewardDTOs(rewards, time.Now().UTC()),
	})
}

// =============================================================================
// INGEST
// =============================================================================

// RecordEvent ingests one business event and routes it to the matching
// engine entry point.
// POST /api/loyalty/events
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	var req RecordEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PatientID == "" || req.StoreID == "" || req.EventType == "" {
		writeError(w, http.StatusBadRequest, "Missing required fields: patient_id, store_id, event_type", nil)
		return
	}

	ctx := r.Context()
	patientID := loyalty.PatientID(req.PatientID)
	storeID := loyalty.StoreID(req.StoreID)

	switch loyalty.EventType(req.EventType) {
	case loyalty.EventPurchaseCompleted:
		if req.SaleAmount == nil || req.ItemCount == nil {
			writeError(w, http.StatusBadRequest, "Purchase events require sale_amount and item_count", nil)
			return
		}
		amount, err := decimal.NewFromString(*req.SaleAmount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid sale_amount", err)
			return
		}
		result, err := h.Engine.ProcessPurchase(ctx, req.EventSource, patientID, storeID, amount, *req.ItemCount)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to process purchase", err)
			return
		}
		writeJSON(w, http.StatusOK, ProcessResultDTO{
			Profile:       toProfileDTO(result.Profile),
			PointsEarned:  result.PointsEarned,
			StatusChanged: result.StatusChanged,
			NewStatus:     string(result.NewStatus),
		})

	case loyalty.EventFeedbackSubmitted:
		if req.Rating == nil {
			writeError(w, http.StatusBadRequest, "Feedback events require rating", nil)
			return
		}
		hasComment := req.HasComment != nil && *req.HasComment
		result, err := h.Engine.ProcessFeedback(ctx, req.EventSource, patientID, storeID, *req.Rating, hasComment)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to process feedback", err)
			return
		}
		writeJSON(w, http.StatusOK, ProcessResultDTO{
			Profile:      toProfileDTO(result.Profile),
			PointsEarned: result.PointsEarned,
		})

	default:
		event, err := h.Engine.RecordEvent(ctx, patientID, storeID,
			loyalty.EventType(req.EventType), req.EventSource, req.Metadata)
		if err != nil {
			if loyalty.IsClientError(err) {
				writeError(w, http.StatusBadRequest, "Invalid event type", err)
				return
			}
			writeError(w, http.StatusInternalServerError, "Failed to record loyalty event", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"event":   toEventDTOs([]loyalty.Event{*event})[0],
		})
	}
}

// RedeemReward redeems an unlocked reward for a customer.
// POST /api/loyalty/rewards/{rewardID}/redeem
func (h *Handler) RedeemReward(w http.ResponseWriter, r *http.Request) {
	rewardID := loyalty.RewardID(chi.URLParam(r, "rewardID"))

	var req RedeemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.PatientID == "" {
		writeError(w, http.StatusBadRequest, "patient_id is required", nil)
		return
	}

	reward, err := h.Engine.RedeemReward(r.Context(), rewardID, loyalty.PatientID(req.PatientID))
	if err != nil {
		switch {
		case loyalty.IsNotFound(err):
			writeError(w, http.StatusNotFound, "Reward not found", err)
		case loyalty.IsClientError(err):
			writeError(w, http.StatusConflict, "Reward cannot be redeemed", err)
		default:
			writeError(w, http.StatusInternalServerError, "Failed to redeem reward", err)
		}
		return
	}

	dto := toRewardDTO(reward, time.Now().UTC())
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"reward":  dto,
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func toProgressDTO(b *loyalty.ProgressBreakdown) ProgressDTO {
	idealGap := b.Consistency.IdealGap
	averageGap := b.Consistency.AverageGap
	feedbacks := b.Engagement.Feedbacks
	comebacks := b.Engagement.Comebacks
	purchases := b.Frequency.Purchases

	dto := ProgressDTO{
		CurrentStatus:   string(b.CurrentStatus),
		NextStatus:      string(b.NextStatus),
		ProgressPercent: b.ProgressPercent,
		Frequency: DimensionDTO{
			Score:           b.Frequency.Score,
			MaxScore:        b.Frequency.MaxScore,
			Purchases:       &purchases,
			TargetPurchases: b.Frequency.TargetPurchases,
		},
		Consistency: DimensionDTO{
			Score:      b.Consistency.Score,
			MaxScore:   b.Consistency.MaxScore,
			AverageGap: &averageGap,
			IdealGap:   &idealGap,
		},
		Engagement: DimensionDTO{
			Score:     b.Engagement.Score,
			MaxScore:  b.Engagement.MaxScore,
			Feedbacks: &feedbacks,
			Comebacks: &comebacks,
		},
	}

	for _, m := range b.Milestones {
		entry := MilestoneDTO{
			Status:   string(m.Status),
			Achieved: m.Achieved,
			Current:  m.Current,
		}
		if m.AchievedAt != nil {
			s := m.AchievedAt.Format(time.RFC3339)
			entry.AchievedAt = &s
		}
		if m.Requirements != nil {
			entry.Requirements = &MilestoneRequirementDTO{
				PurchasesRemaining: m.Requirements.PurchasesRemaining,
				ConsistencyMet:     m.Requirements.ConsistencyMet,
				EngagementMet:      m.Requirements.EngagementMet,
				DaysRemaining:      m.Requirements.DaysRemaining,
			}
		}
		dto.Milestones = append(dto.Milestones, entry)
	}
	return dto
}

// writeDomainError maps customer-scoped read errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	if loyalty.IsNotFound(err) {
		writeError(w, http.StatusNotFound, "Loyalty profile not found", nil)
		return
	}
	writeError(w, http.StatusInternalServerError, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
