// Package domain contains the lead scoring domain model.
package domain

import (
	"errors"
	"fmt"
)

// Signal type names. The set produced for a contact is fixed and exhaustive;
// the per-signal maxima sum to 100 so the aggregate score is bounded by
// construction.
const (
	SignalProfileCompleteness = "profile_completeness"
	SignalActivityFrequency   = "activity_frequency"
	SignalActivityRecency     = "activity_recency"
	SignalTaskCompletion      = "task_completion"
)

// Per-signal maximum weights.
const (
	MaxProfileCompleteness = 30
	MaxActivityFrequency   = 40
	MaxActivityRecency     = 20
	MaxTaskCompletion      = 10
)

var ErrInvalidSignal = errors.New("invalid signal")

// Signal is one weighted, bounded contribution to an aggregate score.
// Signals are transient: computed fresh on every scoring pass and persisted
// only as part of a LeadScore snapshot.
type Signal struct {
	Type   string `json:"type"`
	Weight int    `json:"weight"`
	Max    int    `json:"max"`
}

// Validate checks the signal invariant 0 <= weight <= max.
func (s Signal) Validate() error {
	if s.Type == "" {
		return fmt.Errorf("%w: empty type", ErrInvalidSignal)
	}
	if s.Weight < 0 || s.Weight > s.Max {
		return fmt.Errorf("%w: %s weight %d outside [0, %d]", ErrInvalidSignal, s.Type, s.Weight, s.Max)
	}
	return nil
}

// TotalWeight sums the weights of all signals.
func TotalWeight(signals []Signal) int {
	total := 0
	for _, s := range signals {
		total += s.Weight
	}
	return total
}

// ValidateAll validates every signal in the set.
func ValidateAll(signals []Signal) error {
	for _, s := range signals {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
