package users

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/database"
)

// Repository handles account persistence.
type Repository struct {
	db   database.Querier
	txer database.TxBeginner
}

// NewRepository creates an account repository.
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

const accountColumns = `id, username, role, COALESCE(first_name, ''), COALESCE(last_name, ''), COALESCE(email, ''),
	COALESCE(phone, ''), date_of_birth, COALESCE(city, ''), COALESCE(state, ''), COALESCE(zip, ''),
	COALESCE(school_or_employer, ''), COALESCE(field_of_interest, ''), COALESCE(guardian_first_name, ''),
	COALESCE(guardian_last_name, ''), COALESCE(guardian_email, ''), COALESCE(photo_url, ''), created_at, updated_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var a models.Account
	var role string
	err := row.Scan(&a.ID, &a.Username, &role, &a.FirstName, &a.LastName, &a.Email,
		&a.Phone, &a.DateOfBirth, &a.City, &a.State, &a.Zip,
		&a.SchoolOrEmployer, &a.FieldOfInterest, &a.GuardianFirstName,
		&a.GuardianLastName, &a.GuardianEmail, &a.PhotoURL, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Role, _ = models.ParseRole(role)
	return &a, nil
}

// Get returns an account, or nil.
func (r *Repository) Get(ctx context.Context, id int64) (*models.Account, error) {
	return scanAccount(r.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

// ListFilter narrows the admin account list.
type ListFilter struct {
	Role   models.Role
	Search string
	Limit  int
}

// List returns accounts by last and first name.
func (r *Repository) List(ctx context.Context, f ListFilter) ([]models.Account, error) {
	if f.Limit <= 0 || f.Limit > 1000 {
		f.Limit = 500
	}
	const q = `SELECT ` + accountColumns + ` FROM accounts
		WHERE ($1 = '' OR role = $1)
		  AND ($2 = '' OR username ILIKE '%' || $2 || '%' OR first_name ILIKE '%' || $2 || '%'
		       OR last_name ILIKE '%' || $2 || '%' OR email ILIKE '%' || $2 || '%')
		ORDER BY last_name NULLS LAST, first_name NULLS LAST, username
		LIMIT $3`
	rows, err := r.db.Query(ctx, q, string(f.Role), f.Search, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *a)
	}
	return list, rows.Err()
}

func usernameErr(err error) error {
	if database.IsUniqueViolation(err, "accounts_username_key") {
		return apperr.Wrap(apperr.ErrUsernameTaken, err)
	}
	return err
}

// Create inserts an account with its password hash and fills its id.
func (r *Repository) Create(ctx context.Context, a *models.Account) error {
	const q = `INSERT INTO accounts (username, password_hash, role, first_name, last_name, email, phone, date_of_birth,
			city, state, zip, school_or_employer, field_of_interest, guardian_first_name, guardian_last_name,
			guardian_email, photo_url)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8,
			NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), NULLIF($12, ''), NULLIF($13, ''), NULLIF($14, ''), NULLIF($15, ''),
			NULLIF($16, ''), NULLIF($17, ''))
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, a.Username, a.PasswordHash, string(a.Role), a.FirstName, a.LastName, a.Email, a.Phone,
		a.DateOfBirth, a.City, a.State, a.Zip, a.SchoolOrEmployer, a.FieldOfInterest, a.GuardianFirstName,
		a.GuardianLastName, a.GuardianEmail, a.PhotoURL).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return usernameErr(err)
}

// Update rewrites an account's profile, role and photo. A non-empty
// PasswordHash replaces the stored one.
func (r *Repository) Update(ctx context.Context, a *models.Account) error {
	const q = `UPDATE accounts SET username = $2, role = $3, first_name = NULLIF($4, ''), last_name = NULLIF($5, ''),
			email = NULLIF($6, ''), phone = NULLIF($7, ''), date_of_birth = $8, city = NULLIF($9, ''),
			state = NULLIF($10, ''), zip = NULLIF($11, ''), school_or_employer = NULLIF($12, ''),
			field_of_interest = NULLIF($13, ''), guardian_first_name = NULLIF($14, ''),
			guardian_last_name = NULLIF($15, ''), guardian_email = NULLIF($16, ''), photo_url = NULLIF($17, ''),
			password_hash = COALESCE(NULLIF($18, ''), password_hash), updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	err := r.db.QueryRow(ctx, q, a.ID, a.Username, string(a.Role), a.FirstName, a.LastName, a.Email, a.Phone,
		a.DateOfBirth, a.City, a.State, a.Zip, a.SchoolOrEmployer, a.FieldOfInterest, a.GuardianFirstName,
		a.GuardianLastName, a.GuardianEmail, a.PhotoURL, a.PasswordHash).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrAccountNotFound
	}
	return usernameErr(err)
}

// CountParticipants returns the number of participant accounts.
func (r *Repository) CountParticipants(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE role = 'participant'`).Scan(&n)
	return n, err
}

// LockAccount locks an account row, reporting whether it exists.
func (r *Repository) LockAccount(ctx context.Context, id int64) (bool, error) {
	var got int64
	err := r.db.QueryRow(ctx, `SELECT id FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&got)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// RegistrationIDs returns the ids of an account's registrations.
func (r *Repository) RegistrationIDs(ctx context.Context, accountID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM registrations WHERE account_id = $1`, accountID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

// DeleteSurveys removes the surveys of the given registrations.
func (r *Repository) DeleteSurveys(ctx context.Context, registrationIDs []int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM surveys WHERE registration_id = ANY($1)`, registrationIDs)
	return tag.RowsAffected(), err
}

// DeleteRegistrations removes an account's registrations.
func (r *Repository) DeleteRegistrations(ctx context.Context, accountID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM registrations WHERE account_id = $1`, accountID)
	return tag.RowsAffected(), err
}

// DeleteMilestones removes an account's milestones.
func (r *Repository) DeleteMilestones(ctx context.Context, accountID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM milestones WHERE account_id = $1`, accountID)
	return tag.RowsAffected(), err
}

// DeleteDonations removes an account's donations and their receipt metadata.
func (r *Repository) DeleteDonations(ctx context.Context, accountID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM donations WHERE account_id = $1`, accountID)
	return tag.RowsAffected(), err
}

// DeleteAccount removes the account row.
func (r *Repository) DeleteAccount(ctx context.Context, id int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
	return tag.RowsAffected(), err
}
