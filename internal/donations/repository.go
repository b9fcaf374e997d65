package donations

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/database"
)

// Repository handles donation, donor account and receipt metadata persistence.
type Repository struct {
	db   database.Querier
	txer database.TxBeginner
}

// NewRepository creates a donations repository backed by a pool.
func NewRepository(db database.DB) *Repository {
	return &Repository{db: db, txer: db}
}

// RunInTx runs fn with a repository bound to one transaction.
func (r *Repository) RunInTx(ctx context.Context, fn func(Ledger) error) error {
	if r.txer == nil {
		return fn(r)
	}
	return database.WithTx(ctx, r.txer, func(tx pgx.Tx) error {
		return fn(&Repository{db: tx})
	})
}

const accountColumns = `id, username, role, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, '')`

func scanDonor(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var role string
	err := row.Scan(&a.ID, &a.Username, &role, &a.FirstName, &a.LastName, &a.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Role, _ = models.ParseRole(role)
	return &a, nil
}

// LockAccount takes a row lock on the account so concurrent ledger writes for
// it serialize. It reports false when the account does not exist.
func (r *Repository) LockAccount(ctx context.Context, accountID int64) (bool, error) {
	const q = `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`
	var id int64
	err := r.db.QueryRow(ctx, q, accountID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SumForAccount returns the total of all donations for the account.
func (r *Repository) SumForAccount(ctx context.Context, accountID int64) (float64, error) {
	const q = `SELECT COALESCE(SUM(amount), 0)::float8 FROM donations WHERE account_id = $1`
	var sum float64
	err := r.db.QueryRow(ctx, q, accountID).Scan(&sum)
	return sum, err
}

// Insert stores a donation and fills its id and created_at.
func (r *Repository) Insert(ctx context.Context, d *models.Donation) error {
	const q = `INSERT INTO donations (account_id, amount, donated_on, cumulative_total)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	return r.db.QueryRow(ctx, q, d.AccountID, d.Amount, d.DonatedOn, d.CumulativeTotal).Scan(&d.ID, &d.CreatedAt)
}

// InsertMetadata stores the public form fields for a donation.
func (r *Repository) InsertMetadata(ctx context.Context, m *models.SupportDonationMetadata) error {
	const q = `INSERT INTO support_donation_metadata (donation_id, first_name, last_name, email, message)
		VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''))`
	_, err := r.db.Exec(ctx, q, m.DonationID, m.FirstName, m.LastName, m.Email, m.Message)
	return err
}

// GetForUpdate returns a donation locked for modification, or nil.
func (r *Repository) GetForUpdate(ctx context.Context, id int64) (*models.Donation, error) {
	const q = `SELECT id, account_id, amount::float8, donated_on, cumulative_total::float8, created_at
		FROM donations WHERE id = $1 FOR UPDATE`
	var d models.Donation
	err := r.db.QueryRow(ctx, q, id).Scan(&d.ID, &d.AccountID, &d.Amount, &d.DonatedOn, &d.CumulativeTotal, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Update rewrites the editable fields of a donation.
func (r *Repository) Update(ctx context.Context, d *models.Donation) error {
	const q = `UPDATE donations SET account_id = $2, amount = $3, donated_on = $4 WHERE id = $1`
	_, err := r.db.Exec(ctx, q, d.ID, d.AccountID, d.Amount, d.DonatedOn)
	return err
}

// Delete removes a donation. Its metadata cascades.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM donations WHERE id = $1`, id)
	return err
}

// RecalculateTotals rewrites every cumulative_total snapshot for the account
// as the running sum in insertion order.
func (r *Repository) RecalculateTotals(ctx context.Context, accountID int64) error {
	const q = `UPDATE donations d SET cumulative_total = s.running
		FROM (
			SELECT id, SUM(amount) OVER (PARTITION BY account_id ORDER BY id) AS running
			FROM donations WHERE account_id = $1
		) s
		WHERE d.id = s.id AND d.cumulative_total IS DISTINCT FROM s.running`
	_, err := r.db.Exec(ctx, q, accountID)
	return err
}

// AccountByID returns the donor fields of an account, or nil.
func (r *Repository) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	return scanDonor(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// AccountByEmail matches an account email case-insensitively, or returns nil.
func (r *Repository) AccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	const q = `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1) ORDER BY id LIMIT 1`
	return scanDonor(r.db.QueryRow(ctx, q, email))
}

// UsernameExists reports whether the username is taken.
func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE username = $1)`, username).Scan(&exists)
	return exists, err
}

// CreateAccount inserts a donor account and fills its id.
func (r *Repository) CreateAccount(ctx context.Context, a *models.Account) error {
	const q = `INSERT INTO accounts (username, password_hash, role, first_name, last_name, email, guardian_email)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($6, ''))
		RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, q, a.Username, a.PasswordHash, string(a.Role), a.FirstName, a.LastName, a.Email).
		Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

// ListFilter narrows the admin donation list.
type ListFilter struct {
	AccountID int64
	From, To  *time.Time
	Limit     int
}

// List returns donations joined with donor names, newest first.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Donation, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 200
	}
	const q = `SELECT d.id, d.account_id, d.amount::float8, d.donated_on, d.cumulative_total::float8, d.created_at,
			COALESCE(NULLIF(TRIM(COALESCE(a.first_name, '') || ' ' || COALESCE(a.last_name, '')), ''), a.username)
		FROM donations d
		JOIN accounts a ON a.id = d.account_id
		WHERE ($1::bigint = 0 OR d.account_id = $1)
		  AND ($2::date IS NULL OR d.donated_on >= $2)
		  AND ($3::date IS NULL OR d.donated_on <= $3)
		ORDER BY d.donated_on DESC, d.id DESC
		LIMIT $4`
	rows, err := r.db.Query(ctx, q, f.AccountID, f.From, f.To, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Donation
	for rows.Next() {
		var d models.Donation
		if err := rows.Scan(&d.ID, &d.AccountID, &d.Amount, &d.DonatedOn, &d.CumulativeTotal, &d.CreatedAt, &d.DonorName); err != nil {
			return nil, err
		}
		list = append(list, d)
	}
	return list, rows.Err()
}

// Get returns one donation with its donor name, or nil.
func (r *Repository) Get(ctx context.Context, id int64) (*models.Donation, error) {
	const q = `SELECT d.id, d.account_id, d.amount::float8, d.donated_on, d.cumulative_total::float8, d.created_at, a.username
		FROM donations d JOIN accounts a ON a.id = d.account_id WHERE d.id = $1`
	var d models.Donation
	err := r.db.QueryRow(ctx, q, id).Scan(&d.ID, &d.AccountID, &d.Amount, &d.DonatedOn, &d.CumulativeTotal, &d.CreatedAt, &d.DonorName)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Total returns the sum of every donation.
func (r *Repository) Total(ctx context.Context) (float64, error) {
	var total float64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0)::float8 FROM donations`).Scan(&total)
	return total, err
}
