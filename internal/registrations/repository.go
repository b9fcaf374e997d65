package registrations

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/events"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/database"
)

// Repository handles registration persistence.
type Repository struct {
	db   database.Querier
	txer database.TxBeginner
}

// NewRepository creates a registrations repository.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db, txer: db}
}

// RunInTx runs fn with a repository bound to one transaction.
func (r *Repository) RunInTx(ctx context.Context, fn func(Tx) error) error {
	if r.txer == nil {
		return fn(r)
	}
	return database.WithTx(ctx, r.txer, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx})
	})
}

// LockOccurrence returns the event with its occurrence row locked, or nil.
// Concurrent registrations for the same occurrence queue on this lock.
func (r *Repository) LockOccurrence(ctx context.Context, occurrenceID int64) (*models.Event, error) {
	const q = `SELECT ` + events.EventColumns + `
		FROM event_occurrences o JOIN event_templates t ON t.id = o.template_id
		WHERE o.id = $1 FOR UPDATE OF o`
	return events.ScanEvent(r.db.QueryRow(ctx, q, occurrenceID))
}

// CountForOccurrence returns the number of registrations for an occurrence.
func (r *Repository) CountForOccurrence(ctx context.Context, occurrenceID int64) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM registrations WHERE occurrence_id = $1`, occurrenceID).Scan(&n)
	return n, err
}

// Exists reports whether the account already holds a registration.
func (r *Repository) Exists(ctx context.Context, accountID, occurrenceID int64) (bool, error) {
	var exists bool
	const q = `SELECT EXISTS(SELECT 1 FROM registrations WHERE account_id = $1 AND occurrence_id = $2)`
	err := r.db.QueryRow(ctx, q, accountID, occurrenceID).Scan(&exists)
	return exists, err
}

// Insert creates a registration and fills its id and creation time.
func (r *Repository) Insert(ctx context.Context, reg *models.Registration) error {
	const q = `INSERT INTO registrations (account_id, occurrence_id, status, attended, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`
	err := r.db.QueryRow(ctx, q, reg.AccountID, reg.OccurrenceID, reg.Status, reg.Attended, reg.CreatedAt).Scan(&reg.ID)
	if database.IsUniqueViolation(err, "registrations_account_occurrence_key") {
		return apperr.Wrap(apperr.ErrAlreadyRegistered, err)
	}
	return err
}

const registrationColumns = `rg.id, rg.account_id, rg.occurrence_id, rg.status, rg.attended, rg.checked_in_at, rg.created_at, rg.survey_submitted_at`

func scanRegistration(row pgx.Row) (*models.Registration, error) {
	var reg models.Registration
	err := row.Scan(&reg.ID, &reg.AccountID, &reg.OccurrenceID, &reg.Status, &reg.Attended, &reg.CheckedInAt, &reg.CreatedAt, &reg.SurveySubmittedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &reg, nil
}

// GetForUpdate returns a locked registration, or nil.
func (r *Repository) GetForUpdate(ctx context.Context, id int64) (*models.Registration, error) {
	return scanRegistration(r.db.QueryRow(ctx, `SELECT `+registrationColumns+` FROM registrations rg WHERE rg.id = $1 FOR UPDATE`, id))
}

// Delete removes a registration and its survey.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM surveys WHERE registration_id = $1`, id); err != nil {
		return err
	}
	_, err := r.db.Exec(ctx, `DELETE FROM registrations WHERE id = $1`, id)
	return err
}

// SetAttendance records whether the participant showed up.
func (r *Repository) SetAttendance(ctx context.Context, id int64, attended bool, checkedInAt *time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE registrations SET attended = $2, checked_in_at = $3 WHERE id = $1`, id, attended, checkedInAt)
	return err
}

const detailQuery = `SELECT ` + registrationColumns + `,
		t.name, COALESCE(t.type, ''), COALESCE(o.location, ''), o.starts_at, o.ends_at, s.id,
		COALESCE(NULLIF(TRIM(COALESCE(a.first_name, '') || ' ' || COALESCE(a.last_name, '')), ''), a.username)
	FROM registrations rg
	JOIN accounts a ON a.id = rg.account_id
	JOIN event_occurrences o ON o.id = rg.occurrence_id
	JOIN event_templates t ON t.id = o.template_id
	LEFT JOIN surveys s ON s.registration_id = rg.id`

func (r *Repository) listDetails(ctx context.Context, q string, args ...any) ([]models.RegistrationDetail, error) {
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RegistrationDetail
	for rows.Next() {
		var d models.RegistrationDetail
		if err := rows.Scan(&d.ID, &d.AccountID, &d.OccurrenceID, &d.Status, &d.Attended, &d.CheckedInAt, &d.CreatedAt, &d.SurveySubmittedAt,
			&d.EventName, &d.EventType, &d.Location, &d.StartsAt, &d.EndsAt, &d.SurveyID, &d.AccountName); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// ListByAccount returns an account's registrations, latest event first.
func (r *Repository) ListByAccount(ctx context.Context, accountID int64) ([]models.RegistrationDetail, error) {
	return r.listDetails(ctx, detailQuery+` WHERE rg.account_id = $1 ORDER BY o.starts_at DESC, rg.id`, accountID)
}

// ListByOccurrence returns the roster of an occurrence by name.
func (r *Repository) ListByOccurrence(ctx context.Context, occurrenceID int64) ([]models.RegistrationDetail, error) {
	return r.listDetails(ctx, detailQuery+` WHERE rg.occurrence_id = $1 ORDER BY 14, rg.id`, occurrenceID)
}

// Contact returns where confirmations for an account go. Email is empty when
// the account has none.
func (r *Repository) Contact(ctx context.Context, accountID int64) (email, name string, err error) {
	const q = `SELECT COALESCE(email, ''),
		COALESCE(NULLIF(TRIM(COALESCE(first_name, '') || ' ' || COALESCE(last_name, '')), ''), username)
		FROM accounts WHERE id = $1`
	err = r.db.QueryRow(ctx, q, accountID).Scan(&email, &name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", nil
	}
	return email, name, err
}
