// Package services contains the scoring application services.
package services

import (
	"fmt"
	"strings"
	"time"

	crmDomain "github.com/funnelworks/funnel/internal/crm/domain"
	"github.com/funnelworks/funnel/internal/scoring/domain"
)

// Recency steps: days-since-last-activity thresholds and their weights.
var recencySteps = []struct {
	withinDays int
	weight     int
}{
	{7, 20},
	{14, 15},
	{30, 10},
	{60, 5},
}

// activityWindowDays is the trailing window counted by the frequency signal.
const activityWindowDays = 30

// SignalExtractor computes the fixed signal set for a contact. Extraction is
// a pure function of its inputs and the supplied clock instant: identical
// inputs and an identical now always produce identical signals.
type SignalExtractor struct{}

// NewSignalExtractor creates a new signal extractor.
func NewSignalExtractor() *SignalExtractor {
	return &SignalExtractor{}
}

// Extract computes all signals for a contact from its attributes and related
// records.
func (e *SignalExtractor) Extract(
	contact *crmDomain.Contact,
	activities []*crmDomain.Activity,
	tasks []*crmDomain.Task,
	now time.Time,
) []domain.Signal {
	return []domain.Signal{
		e.profileCompleteness(contact),
		e.activityFrequency(activities, now),
		e.activityRecency(activities, now),
		e.taskCompletion(tasks),
	}
}

// profileCompleteness rewards present attributes: +10 email, +5 phone,
// +5 position, +10 company link. No partial credit inside a field.
func (e *SignalExtractor) profileCompleteness(contact *crmDomain.Contact) domain.Signal {
	weight := 0
	if contact.Email != "" {
		weight += 10
	}
	if contact.Phone != "" {
		weight += 5
	}
	if contact.Position != "" {
		weight += 5
	}
	if contact.HasCompany() {
		weight += 10
	}
	return domain.Signal{
		Type:   domain.SignalProfileCompleteness,
		Weight: weight,
		Max:    domain.MaxProfileCompleteness,
	}
}

// activityFrequency scores 5 points per activity created within the trailing
// 30 days. Saturation is a hard cap at the maximum, not a percentage scale.
func (e *SignalExtractor) activityFrequency(activities []*crmDomain.Activity, now time.Time) domain.Signal {
	cutoff := now.AddDate(0, 0, -activityWindowDays)
	count := 0
	for _, a := range activities {
		if a.CreatedAt.After(cutoff) {
			count++
		}
	}

	weight := 5 * count
	if weight > domain.MaxActivityFrequency {
		weight = domain.MaxActivityFrequency
	}
	return domain.Signal{
		Type:   domain.SignalActivityFrequency,
		Weight: weight,
		Max:    domain.MaxActivityFrequency,
	}
}

// activityRecency is a step function of days since the most recent activity.
// A contact with no activity history contributes 0, not an error.
func (e *SignalExtractor) activityRecency(activities []*crmDomain.Activity, now time.Time) domain.Signal {
	signal := domain.Signal{
		Type: domain.SignalActivityRecency,
		Max:  domain.MaxActivityRecency,
	}
	if len(activities) == 0 {
		return signal
	}

	var latest time.Time
	for _, a := range activities {
		if a.CreatedAt.After(latest) {
			latest = a.CreatedAt
		}
	}

	days := int(now.Sub(latest).Hours() / 24)
	for _, step := range recencySteps {
		if days < step.withinDays {
			signal.Weight = step.weight
			break
		}
	}
	return signal
}

// taskCompletion scores 2 points per completed task, hard-capped at the max.
func (e *SignalExtractor) taskCompletion(tasks []*crmDomain.Task) domain.Signal {
	count := 0
	for _, t := range tasks {
		if t.Status == crmDomain.TaskStatusCompleted {
			count++
		}
	}

	weight := 2 * count
	if weight > domain.MaxTaskCompletion {
		weight = domain.MaxTaskCompletion
	}
	return domain.Signal{
		Type:   domain.SignalTaskCompletion,
		Weight: weight,
		Max:    domain.MaxTaskCompletion,
	}
}

// Explain renders a human-readable per-signal breakdown for a signal set.
func Explain(signals []domain.Signal) string {
	parts := make([]string, 0, len(signals))
	for _, s := range signals {
		parts = append(parts, fmt.Sprintf("%s=%d/%d", s.Type, s.Weight, s.Max))
	}
	return strings.Join(parts, " ")
}
