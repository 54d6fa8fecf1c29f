/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract,
  allowing field renaming and version evolution without breaking
  clients.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/loyalty-engine/loyalty"
)

// =============================================================================
// PROFILE
// =============================================================================

// ProfileDTO represents a loyalty profile in API responses.
type ProfileDTO struct {
	ID                 string  `json:"id"`
	PatientID          string  `json:"patient_id"`
	StoreID            string  `json:"store_id"`
	Status             string  `json:"status"`
	TotalPoints        int     `json:"total_points"`
	PurchaseCount      int     `json:"purchase_count"`
	FeedbackCount      int     `json:"feedback_count"`
	ComebackCount      int     `json:"comeback_count"`
	DaysSinceFirst     int     `json:"days_since_first"`
	ConsistencyScore   float64 `json:"consistency_score"`
	EngagementScore    float64 `json:"engagement_score"`
	MilestoneProgress  float64 `json:"milestone_progress"`
	LastPurchaseAt     *string `json:"last_purchase_at,omitempty"`
	StatusSince        string  `json:"status_since"`
	RecognitionMessage string  `json:"recognition_message"`
	CreatedAt          string  `json:"created_at"`
}

// NextStatusDTO shows what the next tier takes.
type NextStatusDTO struct {
	Status         string  `json:"status"`
	MinPurchases   int     `json:"min_purchases"`
	MinConsistency float64 `json:"min_consistency"`
	MinEngagement  float64 `json:"min_engagement"`
	MinDays        int     `json:"min_days"`
}

// =============================================================================
// EVENTS
// =============================================================================

// EventDTO represents one ledger entry.
type EventDTO struct {
	ID          string            `json:"id"`
	Type        string            `json:"event_type"`
	EventSource string            `json:"event_source,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Description string            `json:"description"`
	Points      int               `json:"points"`
	CreatedAt   string            `json:"created_at"`
}

// RecordEventRequest is the internal ingest payload. PURCHASE_COMPLETED
// and FEEDBACK_SUBMITTED route to their processing entry points and use
// the corresponding optional fields; other types append a bare event.
type RecordEventRequest struct {
	PatientID   string            `json:"patient_id"`
	StoreID     string            `json:"store_id"`
	EventType   string            `json:"event_type"`
	EventSource string            `json:"event_source,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`

	// Purchase fields
	SaleAmount *string `json:"sale_amount,omitempty"`
	ItemCount  *int    `json:"item_count,omitempty"`

	// Feedback fields
	Rating     *int  `json:"rating,omitempty"`
	HasComment *bool `json:"has_comment,omitempty"`
}

// ProcessResultDTO is the response for an ingested event.
type ProcessResultDTO struct {
	Profile       *ProfileDTO `json:"profile,omitempty"`
	PointsEarned  int         `json:"points_earned"`
	StatusChanged bool        `json:"status_changed"`
	NewStatus     string      `json:"new_status,omitempty"`
}

// =============================================================================
// REWARDS
// =============================================================================

// RewardDTO represents a reward instance.
type RewardDTO struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Status       string  `json:"status"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	CreditAmount *string `json:"credit_amount,omitempty"`
	MinStatus    string  `json:"min_status"`
	UnlockedAt   string  `json:"unlocked_at"`
	ExpiresAt    string  `json:"expires_at"`
	RedeemedAt   *string `json:"redeemed_at,omitempty"`
	Expired      bool    `json:"expired"`
}

// RedeemRequest identifies the redeeming customer.
type RedeemRequest struct {
	PatientID string `json:"patient_id"`
}

// =============================================================================
// PROGRESS
// =============================================================================

type DimensionDTO struct {
	Score    float64 `json:"score"`
	MaxScore float64 `json:"max_score"`

	Purchases       *int     `json:"purchases,omitempty"`
	TargetPurchases *int     `json:"target_purchases,omitempty"`
	AverageGap      *float64 `json:"average_gap,omitempty"`
	IdealGap        *float64 `json:"ideal_gap,omitempty"`
	Feedbacks       *int     `json:"feedbacks,omitempty"`
	Comebacks       *int     `json:"comebacks,omitempty"`
}

type MilestoneDTO struct {
	Status       string                   `json:"status"`
	Achieved     bool                     `json:"achieved"`
	Current      bool                     `json:"current"`
	AchievedAt   *string                  `json:"achieved_at,omitempty"`
	Requirements *MilestoneRequirementDTO `json:"requirements,omitempty"`
}

type MilestoneRequirementDTO struct {
	PurchasesRemaining int  `json:"purchases_remaining"`
	ConsistencyMet     bool `json:"consistency_met"`
	EngagementMet      bool `json:"engagement_met"`
	DaysRemaining      int  `json:"days_remaining"`
}

type ProgressDTO struct {
	CurrentStatus   string         `json:"current_status"`
	NextStatus      string         `json:"next_status,omitempty"`
	ProgressPercent float64        `json:"progress_percent"`
	Frequency       DimensionDTO   `json:"frequency"`
	Consistency     DimensionDTO   `json:"consistency"`
	Engagement      DimensionDTO   `json:"engagement"`
	Milestones      []MilestoneDTO `json:"milestones"`
}

// =============================================================================
// OVERVIEW
// =============================================================================

type OverviewDTO struct {
	Stats         OverviewStatsDTO `json:"stats"`
	Metrics       MetricsDTO       `json:"metrics"`
	NearMilestone []ProfileDTO     `json:"near_milestone"`
}

type OverviewStatsDTO struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	AtRisk   int            `json:"at_risk"`
}

type MetricsDTO struct {
	PeriodDays     int `json:"period_days"`
	NewProfiles    int `json:"new_profiles"`
	RecentActivity int `json:"recent_activity"`
	StatusUpgrades int `json:"status_upgrades"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toProfileDTO(p *loyalty.Profile) *ProfileDTO {
	if p == nil {
		return nil
	}
	dto := &ProfileDTO{
		ID:                 string(p.ID),
		PatientID:          string(p.PatientID),
		StoreID:            string(p.StoreID),
		Status:             string(p.Status),
		TotalPoints:        p.TotalPoints,
		PurchaseCount:      p.PurchaseCount,
		FeedbackCount:      p.FeedbackCount,
		ComebackCount:      p.ComebackCount,
		DaysSinceFirst:     p.DaysSinceFirst,
		ConsistencyScore:   p.ConsistencyScore,
		EngagementScore:    p.EngagementScore,
		MilestoneProgress:  p.MilestoneProgress,
		StatusSince:        p.StatusSince.Format(time.RFC3339),
		RecognitionMessage: p.RecognitionMessage,
		CreatedAt:          p.CreatedAt.Format(time.RFC3339),
	}
	if p.LastPurchaseAt != nil {
		s := p.LastPurchaseAt.Format(time.RFC3339)
		dto.LastPurchaseAt = &s
	}
	return dto
}

func toNextStatusDTO(req *loyalty.TierRequirement) *NextStatusDTO {
	if req == nil {
		return nil
	}
	return &NextStatusDTO{
		Status:         string(req.Status),
		MinPurchases:   req.Thresholds.MinPurchases,
		MinConsistency: req.Thresholds.MinConsistency,
		MinEngagement:  req.Thresholds.MinEngagement,
		MinDays:        req.Thresholds.MinDays,
	}
}

func toEventDTOs(events []loyalty.Event) []EventDTO {
	dtos := make([]EventDTO, 0, len(events))
	for _, e := range events {
		dtos = append(dtos, EventDTO{
			ID:          string(e.ID),
			Type:        string(e.Type),
			EventSource: e.EventSource,
			Metadata:    e.Metadata,
			Description: e.Description,
			Points:      e.Points,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		})
	}
	return dtos
}

func toRewardDTOs(rewards []loyalty.Reward, now time.Time) []RewardDTO {
	dtos := make([]RewardDTO, 0, len(rewards))
	for i := range rewards {
		dtos = append(dtos, toRewardDTO(&rewards[i], now))
	}
	return dtos
}

func toRewardDTO(r *loyalty.Reward, now time.Time) RewardDTO {
	dto := RewardDTO{
		ID:          string(r.ID),
		Type:        string(r.Type),
		Status:      string(r.Status),
		Title:       r.Title,
		Description: r.Description,
		MinStatus:   string(r.MinStatus),
		UnlockedAt:  r.UnlockedAt.Format(time.RFC3339),
		ExpiresAt:   r.ExpiresAt.Format(time.RFC3339),
		Expired:     r.IsExpired(now),
	}
	if r.CreditAmount != nil {
		s := r.CreditAmount.String()
		dto.CreditAmount = &s
	}
	if r.RedeemedAt != nil {
		s := r.RedeemedAt.Format(time.RFC3339)
		dto.RedeemedAt = &s
	}
	return dto
}

func toProfileDTOs(profiles []*loyalty.Profile) []ProfileDTO {
	dtos := make([]ProfileDTO, 0, len(profiles))
	for _, p := range profiles {
		dtos = append(dtos, *toProfileDTO(p))
	}
	return dtos
}
