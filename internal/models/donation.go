package models

import "time"

// Donation is one gift. CumulativeTotal is the running total for the account
// as of this row, stored as a snapshot.
type Donation struct {
	ID              int64     `json:"id"`
	AccountID       int64     `json:"account_id"`
	Amount          float64   `json:"amount"`
	DonatedOn       time.Time `json:"donated_on"`
	CumulativeTotal float64   `json:"cumulative_total"`
	CreatedAt       time.Time `json:"created_at"`
	DonorName       string    `json:"donor_name,omitempty"`
}

// SupportDonationMetadata carries what a public donor typed into the support form.
type SupportDonationMetadata struct {
	DonationID int64  `json:"donation_id"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Message    string `json:"message,omitempty"`
}

// IsEmpty reports whether no donor-supplied field was set.
func (m *SupportDonationMetadata) IsEmpty() bool {
	return m.FirstName == "" && m.LastName == "" && m.Email == "" && m.Message == ""
}
