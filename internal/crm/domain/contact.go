// Package domain contains the CRM records the engagement pipeline reads.
// These are owned by the external CRM application; the pipeline treats them
// as read models and only ever writes back a contact's engagement score.
package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrContactNotFound = errors.New("contact not found")
	ErrDealNotFound    = errors.New("deal not found")
)

// Contact is a person record owned by a CRM user.
type Contact struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Position  string
	CompanyID *uuid.UUID

	// EngagementScore is the only field on this record the pipeline writes.
	EngagementScore int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasCompany reports whether the contact is linked to a company.
func (c *Contact) HasCompany() bool {
	return c.CompanyID != nil && *c.CompanyID != uuid.Nil
}
