package domain

import (
	sharedDomain "github.com/funnelworks/funnel/internal/shared/domain"
	"github.com/google/uuid"
)

// Routing keys for scoring events.
const (
	RoutingKeyLeadBecameHot = "funnel.lead.hot"
	RoutingKeyLeadScored    = "funnel.lead.scored"
)

// LeadBecameHot is emitted when a lead's score crosses above the hot-lead
// threshold.
type LeadBecameHot struct {
	sharedDomain.BaseEvent
	ContactID     uuid.UUID `json:"contact_id"`
	UserID        uuid.UUID `json:"user_id"`
	Score         int       `json:"score"`
	PreviousScore *int      `json:"previous_score,omitempty"`
}

// NewLeadBecameHot creates a hot-lead event. previousScore is nil on the
// first scoring pass.
func NewLeadBecameHot(score *LeadScore, previousScore *int) *LeadBecameHot {
	return &LeadBecameHot{
		BaseEvent:     sharedDomain.NewBaseEvent(score.ID(), "lead_score", RoutingKeyLeadBecameHot),
		ContactID:     score.ContactID(),
		UserID:        score.UserID(),
		Score:         score.Score(),
		PreviousScore: previousScore,
	}
}
