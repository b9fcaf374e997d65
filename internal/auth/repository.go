package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/database"
)

// Credential is the stored secret of one account.
type Credential struct {
	AccountID int64
	Username  string
	Password  string
}

// Repository handles credential persistence.
type Repository struct {
	db database.Querier
}

// NewRepository creates an auth repository.
func NewRepository(db database.Querier) *Repository {
	return &Repository{db: db}
}

// ByUsername returns an account with its password hash, or nil.
func (r *Repository) ByUsername(ctx context.Context, username string) (*models.Account, error) {
	const q = `SELECT id, username, password_hash, role, COALESCE(first_name, ''), COALESCE(last_name, ''),
		COALESCE(email, ''), COALESCE(photo_url, '')
		FROM accounts WHERE username = $1`
	var a models.Account
	var role string
	err := r.db.QueryRow(ctx, q, username).Scan(&a.ID, &a.Username, &a.PasswordHash, &role,
		&a.FirstName, &a.LastName, &a.Email, &a.PhotoURL)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	a.Role, _ = models.ParseRole(role)
	return &a, nil
}

// Create inserts an account and fills its id.
func (r *Repository) Create(ctx context.Context, a *models.Account) error {
	const q = `INSERT INTO accounts (username, password_hash, role)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`
	err := r.db.QueryRow(ctx, q, a.Username, a.PasswordHash, string(a.Role)).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	if database.IsUniqueViolation(err, "accounts_username_key") {
		return apperr.Wrap(apperr.ErrUsernameTaken, err)
	}
	return err
}

// Credentials returns every stored password in id order.
func (r *Repository) Credentials(ctx context.Context) ([]Credential, error) {
	rows, err := r.db.Query(ctx, `SELECT id, username, COALESCE(password_hash, '') FROM accounts ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Credential
	for rows.Next() {
		var c Credential
		if err := rows.Scan(&c.AccountID, &c.Username, &c.Password); err != nil {
			return nil, err
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

// SetPasswordHash replaces an account's password hash.
func (r *Repository) SetPasswordHash(ctx context.Context, accountID int64, hash string) error {
	_, err := r.db.Exec(ctx, `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`, accountID, hash)
	return err
}
