package domain

import (
	"errors"
	"time"

	sharedDomain "github.com/funnelworks/funnel/internal/shared/domain"
	"github.com/google/uuid"
)

const (
	// HotLeadThreshold is the score a lead must exceed to be considered hot.
	HotLeadThreshold = 70

	// HistoryLimit caps the rolling score history; the oldest entries are
	// evicted first.
	HistoryLimit = 30
)

var (
	ErrScoreNotFound = errors.New("lead score not found")
	ErrScoreExists   = errors.New("lead score already exists for contact")
	ErrStaleScore    = errors.New("lead score was modified concurrently")
)

// HistoryEntry is one point in the rolling score history.
type HistoryEntry struct {
	Score     int       `json:"score"`
	Timestamp time.Time `json:"timestamp"`
}

// LeadScore is the scoring snapshot for one contact. There is at most one
// per contact; every scoring pass updates it in place.
type LeadScore struct {
	sharedDomain.BaseAggregateRoot
	contactID        uuid.UUID
	userID           uuid.UUID
	score            int
	signals          []Signal
	history          []HistoryEntry
	lastCalculatedAt time.Time
}

// NewLeadScore creates the first scoring snapshot for a contact. The history
// starts as a singleton list. A hot-lead event is emitted when the initial
// score is already above the threshold.
func NewLeadScore(contactID, userID uuid.UUID, signals []Signal, now time.Time) (*LeadScore, error) {
	if err := ValidateAll(signals); err != nil {
		return nil, err
	}

	score := TotalWeight(signals)
	s := &LeadScore{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(),
		contactID:         contactID,
		userID:            userID,
		score:             score,
		signals:           signals,
		history:           []HistoryEntry{{Score: score, Timestamp: now}},
		lastCalculatedAt:  now,
	}

	if score > HotLeadThreshold {
		s.AddDomainEvent(NewLeadBecameHot(s, nil))
	}

	return s, nil
}

// RehydrateLeadScore recreates a snapshot from persisted state.
func RehydrateLeadScore(
	entity sharedDomain.BaseEntity,
	contactID, userID uuid.UUID,
	score int,
	signals []Signal,
	history []HistoryEntry,
	lastCalculatedAt time.Time,
) *LeadScore {
	return &LeadScore{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(entity),
		contactID:         contactID,
		userID:            userID,
		score:             score,
		signals:           signals,
		history:           history,
		lastCalculatedAt:  lastCalculatedAt,
	}
}

// Getters
func (s *LeadScore) ContactID() uuid.UUID        { return s.contactID }
func (s *LeadScore) UserID() uuid.UUID           { return s.userID }
func (s *LeadScore) Score() int                  { return s.score }
func (s *LeadScore) Signals() []Signal           { return s.signals }
func (s *LeadScore) History() []HistoryEntry     { return s.history }
func (s *LeadScore) LastCalculatedAt() time.Time { return s.lastCalculatedAt }

// IsHot reports whether the current score is above the hot-lead threshold.
func (s *LeadScore) IsHot() bool {
	return s.score > HotLeadThreshold
}

// Recalculate replaces the snapshot with a fresh signal set. The previous
// score is appended to the history, which is truncated from the front to
// HistoryLimit entries. A hot-lead event is emitted only on an upward
// crossing of the threshold: re-scoring an already-hot lead stays silent,
// and dropping below then rising again re-notifies exactly once.
func (s *LeadScore) Recalculate(signals []Signal, now time.Time) error {
	if err := ValidateAll(signals); err != nil {
		return err
	}

	previous := s.score
	s.score = TotalWeight(signals)
	s.signals = signals
	s.lastCalculatedAt = now

	s.history = append(s.history, HistoryEntry{Score: s.score, Timestamp: now})
	if len(s.history) > HistoryLimit {
		s.history = s.history[len(s.history)-HistoryLimit:]
	}

	if s.score > HotLeadThreshold && previous <= HotLeadThreshold {
		s.AddDomainEvent(NewLeadBecameHot(s, &previous))
	}

	s.Touch()
	return nil
}
