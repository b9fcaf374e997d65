package auth

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/utils"
)

// Store is the credential persistence boundary. *Repository implements it.
type Store interface {
	ByUsername(ctx context.Context, username string) (*models.Account, error)
	Create(ctx context.Context, a *models.Account) error
	Credentials(ctx context.Context) ([]Credential, error)
	SetPasswordHash(ctx context.Context, accountID int64, hash string) error
}

// Hasher hashes and verifies passwords. *utils.PasswordHasher implements it.
type Hasher interface {
	HashPassword(password string) (string, error)
	CheckPassword(plain, hashed string) bool
}

// Auth errors.
var (
	ErrInvalidCredentials = apperr.New(apperr.CodeUnauthenticated, "invalid_credentials", "Invalid username or password")
	ErrUsernameRequired   = apperr.New(apperr.CodeValidation, "username_required", "Username is required")
	ErrUsernameTooLong    = apperr.New(apperr.CodeValidation, "username_too_long", "Username must be at most 50 characters")
	ErrPasswordMismatch   = apperr.New(apperr.CodeValidation, "password_mismatch", "Passwords do not match")
)

// Service logs accounts in and signs new participants up.
type Service struct {
	store  Store
	hasher Hasher
	logger *zap.Logger
}

// NewService creates an auth service.
func NewService(store Store, hasher Hasher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, hasher: hasher, logger: logger}
}

// Login verifies a username and password and returns the session identity.
// Unknown users and wrong passwords fail the same way.
func (s *Service) Login(ctx context.Context, username, password string) (*models.Actor, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	acc, err := s.store.ByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Storage("login", err)
	}
	if acc == nil || !s.hasher.CheckPassword(password, acc.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return &models.Actor{AccountID: acc.ID, Username: acc.Username, Role: acc.Role}, nil
}

// Signup holds the signup form.
type Signup struct {
	Username        string
	Password        string
	ConfirmPassword string
}

// Signup creates a participant account. The role is never taken from input.
func (s *Service) Signup(ctx context.Context, in Signup) (*models.Actor, error) {
	username := strings.TrimSpace(in.Username)
	switch {
	case username == "":
		return nil, ErrUsernameRequired
	case len(username) > 50:
		return nil, ErrUsernameTooLong
	case in.Password != in.ConfirmPassword:
		return nil, ErrPasswordMismatch
	}
	hash, err := s.hasher.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Classify("hash password", err)
	}
	existing, err := s.store.ByUsername(ctx, username)
	if err != nil {
		return nil, apperr.Storage("signup", err)
	}
	if existing != nil {
		return nil, apperr.ErrUsernameTaken
	}
	acc := &models.Account{Username: username, PasswordHash: hash, Role: models.RoleParticipant}
	if err := s.store.Create(ctx, acc); err != nil {
		return nil, apperr.Classify("signup", err)
	}
	s.logger.Info("account signed up", zap.Int64("account_id", acc.ID))
	return &models.Actor{AccountID: acc.ID, Username: acc.Username, Role: acc.Role}, nil
}

// MigrationReport counts the outcome of a credential migration.
type MigrationReport struct {
	Updated       int
	AlreadyHashed int
	Skipped       int
	Failed        int
}

// MigratePasswords re-hashes every stored password that is not a bcrypt hash
// yet. Empty passwords are skipped; a failure on one row does not stop the rest.
func (s *Service) MigratePasswords(ctx context.Context) (MigrationReport, error) {
	var rep MigrationReport
	creds, err := s.store.Credentials(ctx)
	if err != nil {
		return rep, apperr.Storage("load credentials", err)
	}
	for _, c := range creds {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		log := s.logger.With(zap.Int64("account_id", c.AccountID), zap.String("username", c.Username))
		switch {
		case utils.IsBcryptHash(c.Password):
			rep.AlreadyHashed++
			continue
		case strings.TrimSpace(c.Password) == "":
			rep.Skipped++
			log.Warn("skipping account with missing password")
			continue
		}
		hash, err := s.hasher.HashPassword(c.Password)
		if err != nil {
			rep.Failed++
			log.Error("hash password failed", zap.Error(err))
			continue
		}
		if err := s.store.SetPasswordHash(ctx, c.AccountID, hash); err != nil {
			rep.Failed++
			log.Error("store password hash failed", zap.Error(err))
			continue
		}
		rep.Updated++
		log.Info("password hashed")
	}
	return rep, nil
}
