package models

import (
	"strings"
	"time"
)

// Role represents an account's role.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleParticipant Role = "participant"
)

// ParseRole normalizes a stored or submitted role string. Legacy rows use
// "A"/"U"; anything unrecognized is reported with ok=false and treated as a
// participant.
func ParseRole(s string) (role Role, ok bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin", "a":
		return RoleAdmin, true
	case "participant", "u", "user":
		return RoleParticipant, true
	default:
		return RoleParticipant, false
	}
}

// Account is a user of the portal (admin or participant).
type Account struct {
	ID                int64      `json:"id"`
	Username          string     `json:"username"`
	PasswordHash      string     `json:"-"`
	Role              Role       `json:"role"`
	FirstName         string     `json:"first_name,omitempty"`
	LastName          string     `json:"last_name,omitempty"`
	Email             string     `json:"email,omitempty"`
	Phone             string     `json:"phone,omitempty"`
	DateOfBirth       *time.Time `json:"date_of_birth,omitempty"`
	City              string     `json:"city,omitempty"`
	State             string     `json:"state,omitempty"`
	Zip               string     `json:"zip,omitempty"`
	SchoolOrEmployer  string     `json:"school_or_employer,omitempty"`
	FieldOfInterest   string     `json:"field_of_interest,omitempty"`
	GuardianFirstName string     `json:"guardian_first_name,omitempty"`
	GuardianLastName  string     `json:"guardian_last_name,omitempty"`
	GuardianEmail     string     `json:"guardian_email,omitempty"`
	PhotoURL          string     `json:"photo_url,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// DisplayName returns "First Last", falling back to the username.
func (a *Account) DisplayName() string {
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name == "" {
		return a.Username
	}
	return name
}

// IsAdmin reports whether the account holds the admin role.
func (a *Account) IsAdmin() bool { return a.Role == RoleAdmin }

// Actor is the authenticated identity attached to a request. It is passed
// explicitly to every service call.
type Actor struct {
	AccountID int64
	Username  string
	Role      Role
}

// IsAdmin reports whether the actor is an admin.
func (a *Actor) IsAdmin() bool { return a != nil && a.Role == RoleAdmin }

// CanAccess reports whether the actor owns the resource or is an admin.
func (a *Actor) CanAccess(ownerID int64) bool {
	if a == nil {
		return false
	}
	return a.IsAdmin() || a.AccountID == ownerID
}
