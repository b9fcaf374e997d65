package events

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/database"
)

// EventColumns selects an occurrence joined with its template. Callers alias
// event_occurrences as o and event_templates as t.
const EventColumns = `o.id, o.template_id, o.starts_at, o.ends_at, COALESCE(o.location, ''), o.capacity, o.registration_deadline,
	t.id, t.name, COALESCE(t.type, ''), COALESCE(t.description, ''), COALESCE(t.recurrence_pattern, ''), t.default_capacity`

// ScanEvent scans EventColumns, returning nil when the row does not exist.
// extra receives any columns selected after EventColumns.
func ScanEvent(row pgx.Row, extra ...any) (*models.Event, error) {
	var e models.Event
	dest := []any{
		&e.ID, &e.TemplateID, &e.StartsAt, &e.EndsAt, &e.Location, &e.Capacity, &e.RegistrationDeadline,
		&e.Template.ID, &e.Template.Name, &e.Template.Type, &e.Template.Description, &e.Template.RecurrencePattern, &e.Template.DefaultCapacity,
	}
	err := row.Scan(append(dest, extra...)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Repository handles event template and occurrence persistence.
type Repository struct {
	db   database.Querier
	txer database.TxBeginner
}

// NewRepository creates an event repository.
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

// TemplateByID returns a template, or nil.
func (r *Repository) TemplateByID(ctx context.Context, id int64) (*models.EventTemplate, error) {
	const q = `SELECT id, name, COALESCE(type, ''), COALESCE(description, ''), COALESCE(recurrence_pattern, ''), default_capacity
		FROM event_templates WHERE id = $1`
	var t models.EventTemplate
	err := r.db.QueryRow(ctx, q, id).Scan(&t.ID, &t.Name, &t.Type, &t.Description, &t.RecurrencePattern, &t.DefaultCapacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// InsertTemplate creates a template and fills its id.
func (r *Repository) InsertTemplate(ctx context.Context, t *models.EventTemplate) error {
	const q = `INSERT INTO event_templates (name, type, description, recurrence_pattern, default_capacity)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), $5)
		RETURNING id`
	return r.db.QueryRow(ctx, q, t.Name, t.Type, t.Description, t.RecurrencePattern, t.DefaultCapacity).Scan(&t.ID)
}

// UpdateTemplate rewrites a template's metadata.
func (r *Repository) UpdateTemplate(ctx context.Context, t *models.EventTemplate) error {
	const q = `UPDATE event_templates SET name = $2, type = NULLIF($3, ''), description = NULLIF($4, ''),
		recurrence_pattern = NULLIF($5, ''), default_capacity = $6 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, t.ID, t.Name, t.Type, t.Description, t.RecurrencePattern, t.DefaultCapacity)
	return err
}

// InsertOccurrence schedules an occurrence and fills its id.
func (r *Repository) InsertOccurrence(ctx context.Context, o *models.EventOccurrence) error {
	const q = `INSERT INTO event_occurrences (template_id, starts_at, ends_at, location, capacity, registration_deadline)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)
		RETURNING id`
	return r.db.QueryRow(ctx, q, o.TemplateID, o.StartsAt, o.EndsAt, o.Location, o.Capacity, o.RegistrationDeadline).Scan(&o.ID)
}

// UpdateOccurrence rewrites an occurrence's schedule.
func (r *Repository) UpdateOccurrence(ctx context.Context, o *models.EventOccurrence) error {
	const q = `UPDATE event_occurrences SET starts_at = $2, ends_at = $3, location = NULLIF($4, ''), capacity = $5,
		registration_deadline = $6 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, o.ID, o.StartsAt, o.EndsAt, o.Location, o.Capacity, o.RegistrationDeadline)
	return err
}

// GetForUpdate returns an event with its occurrence row locked, or nil.
func (r *Repository) GetForUpdate(ctx context.Context, id int64) (*models.Event, error) {
	const q = `SELECT ` + EventColumns + `
		FROM event_occurrences o JOIN event_templates t ON t.id = o.template_id
		WHERE o.id = $1 FOR UPDATE OF o`
	return ScanEvent(r.db.QueryRow(ctx, q, id))
}

// DeleteOccurrence removes an occurrence. Registrations and surveys cascade.
// The template goes too once it has no occurrences left.
func (r *Repository) DeleteOccurrence(ctx context.Context, id, templateID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM event_occurrences WHERE id = $1`, id); err != nil {
		return err
	}
	const q = `DELETE FROM event_templates t WHERE t.id = $1
		AND NOT EXISTS (SELECT 1 FROM event_occurrences o WHERE o.template_id = t.id)`
	_, err := r.db.Exec(ctx, q, templateID)
	return err
}

// Get returns an event with its registration count, or nil.
func (r *Repository) Get(ctx context.Context, id int64) (*models.Event, error) {
	const q = `SELECT ` + EventColumns + `,
			(SELECT COUNT(*) FROM registrations rg WHERE rg.occurrence_id = o.id)
		FROM event_occurrences o JOIN event_templates t ON t.id = o.template_id
		WHERE o.id = $1`
	var count int
	e, err := ScanEvent(r.db.QueryRow(ctx, q, id), &count)
	if e != nil {
		e.RegistrationCount = count
	}
	return e, err
}

// ListFilter narrows event listings.
type ListFilter struct {
	StartsAfter *time.Time
	TemplateID  int64
	Limit       int
}

// List returns events with registration counts in start order.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Event, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 200
	}
	const q = `SELECT ` + EventColumns + `,
			(SELECT COUNT(*) FROM registrations rg WHERE rg.occurrence_id = o.id)
		FROM event_occurrences o JOIN event_templates t ON t.id = o.template_id
		WHERE ($1::timestamptz IS NULL OR o.starts_at > $1)
		  AND ($2::bigint = 0 OR o.template_id = $2)
		ORDER BY o.starts_at
		LIMIT $3`
	rows, err := r.db.Query(ctx, q, f.StartsAfter, f.TemplateID, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Event
	for rows.Next() {
		var count int
		e, err := ScanEvent(rows, &count)
		if err != nil {
			return nil, err
		}
		e.RegistrationCount = count
		list = append(list, *e)
	}
	return list, rows.Err()
}

// Templates returns every template by name.
func (r *Repository) Templates(ctx context.Context) ([]models.EventTemplate, error) {
	rows, err := r.db.Query(ctx, `SELECT id, name, COALESCE(type, ''), COALESCE(description, ''), COALESCE(recurrence_pattern, ''), default_capacity
		FROM event_templates ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.EventTemplate
	for rows.Next() {
		var t models.EventTemplate
		if err := rows.Scan(&t.ID, &t.Name, &t.Type, &t.Description, &t.RecurrencePattern, &t.DefaultCapacity); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// CountUpcoming returns the number of occurrences starting after now.
func (r *Repository) CountUpcoming(ctx context.Context, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM event_occurrences WHERE starts_at > $1`, now).Scan(&n)
	return n, err
}
