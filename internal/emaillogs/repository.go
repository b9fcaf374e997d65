package emaillogs

import (
	"context"

	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/database"
)

// Repository handles email_logs persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates an email logs repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// Insert records one delivery attempt.
func (r *Repository) Insert(ctx context.Context, l *models.EmailLog) error {
	const q = `INSERT INTO email_logs (job_id, email_type, recipient_email, subject, status, attempt, sent_at, error_message)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, NULLIF($8, ''))
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, q, l.JobID, l.EmailType, l.RecipientEmail, l.Subject, l.Status, l.Attempt, l.SentAt, l.ErrorMessage).
		Scan(&l.ID, &l.CreatedAt)
}

// Recent returns the newest delivery attempts, optionally only those with status.
func (r *Repository) Recent(ctx context.Context, status string, limit int) ([]models.EmailLog, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	const q = `SELECT id, job_id, email_type, recipient_email, COALESCE(subject, ''), status, attempt, sent_at,
			COALESCE(error_message, ''), created_at
		FROM email_logs
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2`
	rows, err := r.db.Query(ctx, q, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EmailLog
	for rows.Next() {
		var el models.EmailLog
		if err := rows.Scan(&el.ID, &el.JobID, &el.EmailType, &el.RecipientEmail, &el.Subject, &el.Status,
			&el.Attempt, &el.SentAt, &el.ErrorMessage, &el.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, el)
	}
	return list, rows.Err()
}
