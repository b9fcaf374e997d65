package milestones

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/database"
)

// Repository handles milestone persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates a milestones repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

const selectMilestones = `SELECT m.id, m.account_id, m.title, m.achieved_on,
		TRIM(COALESCE(a.first_name, '') || ' ' || COALESCE(a.last_name, '')), a.username
	FROM milestones m
	JOIN accounts a ON a.id = m.account_id`

func scanMilestone(row pgx.Row) (models.Milestone, error) {
	var m models.Milestone
	var name, username string
	if err := row.Scan(&m.ID, &m.AccountID, &m.Title, &m.AchievedOn, &name, &username); err != nil {
		return m, err
	}
	m.AccountName = name
	if m.AccountName == "" {
		m.AccountName = username
	}
	return m, nil
}

// List returns milestones newest first. accountID 0 lists every account.
func (r *Repository) List(ctx context.Context, accountID int64) ([]models.Milestone, error) {
	q := selectMilestones
	var args []any
	if accountID > 0 {
		q += ` WHERE m.account_id = $1`
		args = append(args, accountID)
	}
	q += ` ORDER BY m.achieved_on DESC, m.id DESC`
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Milestone, error) {
		return scanMilestone(row)
	})
}

// Insert stores a milestone. An unknown account id is reported as AccountNotFound.
func (r *Repository) Insert(ctx context.Context, m *models.Milestone) error {
	const q = `INSERT INTO milestones (account_id, title, achieved_on) VALUES ($1, $2, $3) RETURNING id`
	err := r.db.QueryRow(ctx, q, m.AccountID, m.Title, m.AchievedOn).Scan(&m.ID)
	if database.IsForeignKeyViolation(err) {
		return apperr.ErrAccountNotFound
	}
	return err
}

// Delete removes a milestone and reports whether it existed.
func (r *Repository) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM milestones WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// Count returns the number of milestones.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM milestones`).Scan(&n)
	return n, err
}
