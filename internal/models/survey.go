package models

import "time"

// Survey is post-event feedback tied 1:1 to a registration.
// Overall is the mean of the four scores, computed when the row is written.
type Survey struct {
	ID             int64     `json:"id"`
	RegistrationID int64     `json:"registration_id"`
	Satisfaction   int       `json:"satisfaction"`
	Usefulness     int       `json:"usefulness"`
	Instructor     int       `json:"instructor"`
	Recommendation int       `json:"recommendation"`
	Overall        float64   `json:"overall"`
	SubmittedOn    time.Time `json:"submitted_on"`
}
