// Package domain contains the email sequence domain model.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrStepNotFound       = errors.New("sequence step not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
)

// Step is one position in an email sequence template. Step numbers start at
// 1 and are unique within a sequence.
type Step struct {
	ID         uuid.UUID
	SequenceID uuid.UUID
	StepNumber int
	Subject    string
	Body       string
	DelayDays  int
	DelayHours int
}

// Delay returns the wait before the step after this one becomes due. The
// day and hour components are additive.
func (s *Step) Delay() time.Duration {
	return time.Duration(s.DelayDays)*24*time.Hour + time.Duration(s.DelayHours)*time.Hour
}
