package models

import "time"

// Email types sent by the portal.
const (
	EmailTypeDonationReceipt          = "donation_receipt"
	EmailTypeRegistrationConfirmation = "registration_confirmation"
)

// EmailLogStatus for delivery.
const (
	EmailLogStatusSent   = "sent"
	EmailLogStatusFailed = "failed"
)

// EmailLog records a delivery attempt made by the worker.
type EmailLog struct {
	ID             int64      `json:"id"`
	JobID          string     `json:"job_id"`
	EmailType      string     `json:"email_type"`
	RecipientEmail string     `json:"recipient_email"`
	Subject        string     `json:"subject,omitempty"`
	Status         string     `json:"status"`
	Attempt        int        `json:"attempt"`
	SentAt         *time.Time `json:"sent_at,omitempty"`
	ErrorMessage   string     `json:"error_message,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
