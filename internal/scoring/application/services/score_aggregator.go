package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	crmDomain "github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/funnelworks/funnel/internal/notifications"
	"github.com/funnelworks/funnel/internal/scoring/domain"
	"github.com/funnelworks/funnel/internal/shared/infrastructure/eventbus"
	"github.com/google/uuid"
)

// ErrScoringInProgress is returned when another pass holds the per-contact
// scoring lock.
var ErrScoringInProgress = errors.New("scoring already in progress for contact")

// EntityLocker serializes scoring passes per contact. Two concurrent passes
// on the same contact must not both observe "no previous score".
type EntityLocker interface {
	// Acquire takes the lock for a key, returning a release function.
	// Returns ErrScoringInProgress-compatible errors when already held.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// AggregatorConfig tunes the score aggregator.
type AggregatorConfig struct {
	// LockTTL bounds how long a scoring pass may hold the per-contact lock.
	LockTTL time.Duration
}

// DefaultAggregatorConfig returns production defaults.
func DefaultAggregatorConfig() AggregatorConfig {
	return AggregatorConfig{LockTTL: 10 * time.Second}
}

// ScoreResult is the outcome of one scoring pass.
type ScoreResult struct {
	ContactID   uuid.UUID
	Score       int
	Hot         bool
	Signals     []domain.Signal
	Explanation string
}

// ScoreAggregator runs scoring passes: extract signals, persist the snapshot,
// write the derived engagement score and emit hot-lead notifications. It is
// the sole writer of a contact's engagement score.
type ScoreAggregator struct {
	scores     domain.Repository
	contacts   crmDomain.ContactRepository
	activities crmDomain.ActivityRepository
	tasks      crmDomain.TaskRepository
	extractor  *SignalExtractor
	locker     EntityLocker
	publisher  eventbus.Publisher
	notifier   notifications.Notifier
	config     AggregatorConfig
	logger     *slog.Logger
}

// NewScoreAggregator creates a new score aggregator.
func NewScoreAggregator(
	scores domain.Repository,
	contacts crmDomain.ContactRepository,
	activities crmDomain.ActivityRepository,
	tasks crmDomain.TaskRepository,
	extractor *SignalExtractor,
	locker EntityLocker,
	publisher eventbus.Publisher,
	notifier notifications.Notifier,
	config AggregatorConfig,
	logger *slog.Logger,
) *ScoreAggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &ScoreAggregator{
		scores:     scores,
		contacts:   contacts,
		activities: activities,
		tasks:      tasks,
		extractor:  extractor,
		locker:     locker,
		publisher:  publisher,
		notifier:   notifier,
		config:     config,
		logger:     logger,
	}
}

// ScoreContact runs one scoring pass for a contact. The upsert decision and
// the notification decision are both derived from the same previous-state
// read, taken under the per-contact lock.
func (a *ScoreAggregator) ScoreContact(ctx context.Context, userID, contactID uuid.UUID) (*ScoreResult, error) {
	contact, err := a.contacts.GetByID(ctx, userID, contactID)
	if err != nil {
		return nil, err
	}

	release, err := a.locker.Acquire(ctx, "score:"+contactID.String(), a.config.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrScoringInProgress, contactID)
	}
	defer release()

	activities, err := a.activities.ListByContact(ctx, contactID)
	if err != nil {
		return nil, err
	}
	tasks, err := a.tasks.ListByContact(ctx, contactID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	signals := a.extractor.Extract(contact, activities, tasks, now)

	snapshot, err := a.scores.GetByContact(ctx, contactID)
	switch {
	case errors.Is(err, domain.ErrScoreNotFound):
		snapshot, err = domain.NewLeadScore(contactID, userID, signals, now)
		if err != nil {
			return nil, err
		}
		if err := a.scores.Insert(ctx, snapshot); err != nil {
			return nil, err
		}

	case err != nil:
		return nil, err

	default:
		expected := snapshot.LastCalculatedAt()
		if err := snapshot.Recalculate(signals, now); err != nil {
			return nil, err
		}
		if err := a.scores.Update(ctx, snapshot, expected); err != nil {
			return nil, err
		}
	}

	if err := a.contacts.SetEngagementScore(ctx, contactID, snapshot.Score()); err != nil {
		return nil, err
	}

	a.dispatchEvents(ctx, contact, snapshot)

	result := &ScoreResult{
		ContactID:   contactID,
		Score:       snapshot.Score(),
		Hot:         snapshot.IsHot(),
		Signals:     signals,
		Explanation: Explain(signals),
	}

	a.logger.Debug("contact scored",
		"contact_id", contactID,
		"score", result.Score,
		"hot", result.Hot,
	)

	return result, nil
}

// ScoreAllContacts scores every contact owned by the user. Per-contact
// failures are logged and do not abort the batch.
func (a *ScoreAggregator) ScoreAllContacts(ctx context.Context, userID uuid.UUID) ([]*ScoreResult, error) {
	contacts, err := a.contacts.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]*ScoreResult, 0, len(contacts))
	for _, contact := range contacts {
		result, err := a.ScoreContact(ctx, userID, contact.ID)
		if err != nil {
			a.logger.Error("failed to score contact",
				"contact_id", contact.ID,
				"error", err,
			)
			continue
		}
		results = append(results, result)
	}

	return results, nil
}

// dispatchEvents publishes domain events and sends hot-lead notifications.
// Both are fire-and-forget: failures are logged and never abort the pass.
func (a *ScoreAggregator) dispatchEvents(ctx context.Context, contact *crmDomain.Contact, snapshot *domain.LeadScore) {
	for _, event := range snapshot.DomainEvents() {
		if err := eventbus.PublishEvent(ctx, a.publisher, event); err != nil {
			a.logger.Error("failed to publish scoring event",
				"routing_key", event.RoutingKey(),
				"error", err,
			)
		}

		hot, ok := event.(*domain.LeadBecameHot)
		if !ok {
			continue
		}

		title := "Hot lead"
		message := fmt.Sprintf("%s %s reached an engagement score of %d",
			contact.FirstName, contact.LastName, hot.Score)
		link := "/contacts/" + contact.ID.String()

		if err := a.notifier.Notify(ctx, contact.UserID, title, message, link); err != nil {
			a.logger.Error("failed to send hot-lead notification",
				"contact_id", contact.ID,
				"error", err,
			)
		}
	}
	snapshot.ClearDomainEvents()
}
