package models

import "time"

// EventTemplate is reusable event metadata.
type EventTemplate struct {
	ID                int64  `json:"id"`
	Name              string `json:"name"`
	Type              string `json:"type,omitempty"`
	Description       string `json:"description,omitempty"`
	RecurrencePattern string `json:"recurrence_pattern,omitempty"`
	DefaultCapacity   *int   `json:"default_capacity,omitempty"`
}

// EventOccurrence is one scheduled instance of a template.
// A nil Capacity means unlimited; a nil RegistrationDeadline means none.
type EventOccurrence struct {
	ID                   int64      `json:"id"`
	TemplateID           int64      `json:"template_id"`
	StartsAt             time.Time  `json:"starts_at"`
	EndsAt               *time.Time `json:"ends_at,omitempty"`
	Location             string     `json:"location,omitempty"`
	Capacity             *int       `json:"capacity,omitempty"`
	RegistrationDeadline *time.Time `json:"registration_deadline,omitempty"`
}

// Event joins an occurrence with its template for listing and detail pages.
type Event struct {
	EventOccurrence
	Template          EventTemplate `json:"template"`
	RegistrationCount int           `json:"registration_count"`
}

// SpotsLeft returns the remaining capacity, or -1 when unlimited.
func (e *Event) SpotsLeft() int {
	if e.Capacity == nil {
		return -1
	}
	left := *e.Capacity - e.RegistrationCount
	if left < 0 {
		return 0
	}
	return left
}
