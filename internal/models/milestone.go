package models

import "time"

// Milestone is a titled, dated achievement attributed to an account.
type Milestone struct {
	ID          int64     `json:"id"`
	AccountID   int64     `json:"account_id"`
	Title       string    `json:"title"`
	AchievedOn  time.Time `json:"achieved_on"`
	AccountName string    `json:"account_name,omitempty"`
}
