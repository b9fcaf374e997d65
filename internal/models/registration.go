package models

import "time"

// RegistrationStatusConfirmed is the status given to every new registration.
const RegistrationStatusConfirmed = "Confirmed"

// Registration links one account to one event occurrence. SurveySubmittedAt
// is set once and outlives the survey row itself.
type Registration struct {
	ID                int64      `json:"id"`
	AccountID         int64      `json:"account_id"`
	OccurrenceID      int64      `json:"occurrence_id"`
	Status            string     `json:"status"`
	Attended          bool       `json:"attended"`
	CheckedInAt       *time.Time `json:"checked_in_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	SurveySubmittedAt *time.Time `json:"survey_submitted_at,omitempty"`
}

// RegistrationDetail is a registration joined with its event and survey presence.
type RegistrationDetail struct {
	Registration
	EventName   string     `json:"event_name"`
	EventType   string     `json:"event_type,omitempty"`
	Location    string     `json:"location,omitempty"`
	StartsAt    time.Time  `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at,omitempty"`
	SurveyID    *int64     `json:"survey_id,omitempty"`
	AccountName string     `json:"account_name,omitempty"`
}
