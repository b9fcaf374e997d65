package surveys

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/database"
)

// Entry is a survey joined with who answered it and for which event.
type Entry struct {
	models.Survey
	AccountID   int64     `json:"account_id"`
	AccountName string    `json:"account_name"`
	EventName   string    `json:"event_name"`
	StartsAt    time.Time `json:"starts_at"`
}

// Repository handles survey persistence.
type Repository struct {
	db   database.Querier
	txer database.TxBeginner
}

// NewRepository creates a survey repository.
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

const registrationQuery = `SELECT rg.id, rg.account_id, rg.occurrence_id, rg.status, rg.attended, rg.checked_in_at, rg.created_at, rg.survey_submitted_at,
		t.name, COALESCE(t.type, ''), COALESCE(o.location, ''), o.starts_at, o.ends_at, s.id
	FROM registrations rg
	JOIN event_occurrences o ON o.id = rg.occurrence_id
	JOIN event_templates t ON t.id = o.template_id
	LEFT JOIN surveys s ON s.registration_id = rg.id
	WHERE rg.id = $1`

func scanRegistration(row pgx.Row) (*models.RegistrationDetail, error) {
	var d models.RegistrationDetail
	err := row.Scan(&d.ID, &d.AccountID, &d.OccurrenceID, &d.Status, &d.Attended, &d.CheckedInAt, &d.CreatedAt, &d.SurveySubmittedAt,
		&d.EventName, &d.EventType, &d.Location, &d.StartsAt, &d.EndsAt, &d.SurveyID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Registration returns a registration with its event times and survey id, or nil.
func (r *Repository) Registration(ctx context.Context, id int64) (*models.RegistrationDetail, error) {
	return scanRegistration(r.db.QueryRow(ctx, registrationQuery, id))
}

// RegistrationForUpdate is Registration with the registration row locked.
func (r *Repository) RegistrationForUpdate(ctx context.Context, id int64) (*models.RegistrationDetail, error) {
	return scanRegistration(r.db.QueryRow(ctx, registrationQuery+` FOR UPDATE OF rg`, id))
}

// Insert stores a survey and fills its id. A second survey for the same
// registration is reported as not eligible.
func (r *Repository) Insert(ctx context.Context, s *models.Survey) error {
	const q = `INSERT INTO surveys (registration_id, satisfaction, usefulness, instructor, recommendation, overall, submitted_on)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`
	err := r.db.QueryRow(ctx, q, s.RegistrationID, s.Satisfaction, s.Usefulness, s.Instructor, s.Recommendation,
		s.Overall, s.SubmittedOn).Scan(&s.ID)
	if database.IsUniqueViolation(err, "surveys_registration_key") {
		return apperr.Wrap(apperr.ErrSurveyNotEligible, err)
	}
	return err
}

const surveyColumns = `s.id, s.registration_id, s.satisfaction, s.usefulness, s.instructor, s.recommendation, s.overall, s.submitted_on`

func scanSurvey(row pgx.Row) (*models.Survey, error) {
	var s models.Survey
	err := row.Scan(&s.ID, &s.RegistrationID, &s.Satisfaction, &s.Usefulness, &s.Instructor, &s.Recommendation, &s.Overall, &s.SubmittedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetForUpdate returns a locked survey, or nil.
func (r *Repository) GetForUpdate(ctx context.Context, id int64) (*models.Survey, error) {
	return scanSurvey(r.db.QueryRow(ctx, `SELECT `+surveyColumns+` FROM surveys s WHERE s.id = $1 FOR UPDATE`, id))
}

// MarkSubmitted stamps the registration so it never reopens for a survey,
// even if the survey row is later removed.
func (r *Repository) MarkSubmitted(ctx context.Context, registrationID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `UPDATE registrations SET survey_submitted_at = COALESCE(survey_submitted_at, $2) WHERE id = $1`,
		registrationID, at)
	return err
}

// Update rewrites a survey's scores.
func (r *Repository) Update(ctx context.Context, s *models.Survey) error {
	const q = `UPDATE surveys SET satisfaction = $2, usefulness = $3, instructor = $4, recommendation = $5, overall = $6
		WHERE id = $1`
	_, err := r.db.Exec(ctx, q, s.ID, s.Satisfaction, s.Usefulness, s.Instructor, s.Recommendation, s.Overall)
	return err
}

// Delete removes a survey.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM surveys WHERE id = $1`, id)
	return err
}

const entryQuery = `SELECT ` + surveyColumns + `, rg.account_id,
		COALESCE(NULLIF(TRIM(COALESCE(a.first_name, '') || ' ' || COALESCE(a.last_name, '')), ''), a.username),
		t.name, o.starts_at
	FROM surveys s
	JOIN registrations rg ON rg.id = s.registration_id
	JOIN accounts a ON a.id = rg.account_id
	JOIN event_occurrences o ON o.id = rg.occurrence_id
	JOIN event_templates t ON t.id = o.template_id`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(&e.ID, &e.RegistrationID, &e.Satisfaction, &e.Usefulness, &e.Instructor, &e.Recommendation, &e.Overall, &e.SubmittedOn,
		&e.AccountID, &e.AccountName, &e.EventName, &e.StartsAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Get returns one survey entry, or nil.
func (r *Repository) Get(ctx context.Context, id int64) (*Entry, error) {
	return scanEntry(r.db.QueryRow(ctx, entryQuery+` WHERE s.id = $1`, id))
}

// List returns survey entries, newest first.
func (r *Repository) List(ctx context.Context) ([]Entry, error) {
	rows, err := r.db.Query(ctx, entryQuery+` ORDER BY s.submitted_on DESC, s.id DESC LIMIT 500`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *e)
	}
	return list, rows.Err()
}
