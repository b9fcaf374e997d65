// Package users manages accounts: self-service profiles, admin account
// administration and account removal.
package users

import (
	"context"
	"io"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/metrics"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/internal/validate"
)

// Store is the account persistence boundary. *Repository implements it.
type Store interface {
	RunInTx(ctx context.Context, fn func(Tx) error) error
	Get(ctx context.Context, id int64) (*models.Account, error)
	List(ctx context.Context, f ListFilter) ([]models.Account, error)
	Create(ctx context.Context, a *models.Account) error
	Update(ctx context.Context, a *models.Account) error
	CountParticipants(ctx context.Context) (int, error)
}

// Hasher hashes passwords.
type Hasher interface {
	HashPassword(password string) (string, error)
}

// Photos stores profile pictures and returns their URL.
type Photos interface {
	UploadPhoto(ctx context.Context, accountID int64, filename, contentType string, body io.Reader, size int64) (string, error)
}

// ErrPasswordRequired is returned when an admin creates an account without one.
var ErrPasswordRequired = apperr.New(apperr.CodeValidation, "password_required", "Password is required")

// Service implements account operations.
type Service struct {
	store   Store
	hasher  Hasher
	photos  Photos
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates an account service. photos and m may be nil; without
// photos, uploads are ignored.
func NewService(store Store, hasher Hasher, photos Photos, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, hasher: hasher, photos: photos, metrics: m, logger: logger}
}

func requireAdmin(actor *models.Actor) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return apperr.ErrUnauthorized
	}
	return nil
}

func invalid(errs validate.Errors) error {
	return apperr.New(apperr.CodeValidation, "invalid_profile", errs.First())
}

// photo uploads the file and returns its URL, or current when there is no
// file or the upload fails.
func (s *Service) photo(ctx context.Context, accountID int64, up *Upload, current string) string {
	if up == nil || up.Body == nil || s.photos == nil {
		return current
	}
	url, err := s.photos.UploadPhoto(ctx, accountID, up.Filename, up.ContentType, up.Body, up.Size)
	if err != nil {
		s.logger.Warn("photo upload failed", zap.Error(err), zap.Int64("account_id", accountID))
		return current
	}
	return url
}

func (s *Service) load(ctx context.Context, id int64) (*models.Account, error) {
	acc, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get account", err)
	}
	if acc == nil {
		return nil, apperr.ErrAccountNotFound
	}
	return acc, nil
}

// Profile returns the actor's own account.
func (s *Service) Profile(ctx context.Context, actor *models.Actor) (*models.Account, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	return s.load(ctx, actor.AccountID)
}

// UpdateProfile saves the actor's own profile. The role never changes here.
func (s *Service) UpdateProfile(ctx context.Context, actor *models.Actor, form ProfileForm, up *Upload) (*models.Account, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	acc, err := s.load(ctx, actor.AccountID)
	if err != nil {
		return nil, err
	}
	password, errs := form.Apply(acc)
	if errs.Any() {
		return nil, invalid(errs)
	}
	return s.save(ctx, acc, password, up)
}

func (s *Service) save(ctx context.Context, acc *models.Account, password string, up *Upload) (*models.Account, error) {
	acc.PasswordHash = ""
	if password != "" {
		hash, err := s.hasher.HashPassword(password)
		if err != nil {
			return nil, apperr.Classify("hash password", err)
		}
		acc.PasswordHash = hash
	}
	acc.PhotoURL = s.photo(ctx, acc.ID, up, acc.PhotoURL)
	if err := s.store.Update(ctx, acc); err != nil {
		return nil, apperr.Classify("update account", err)
	}
	acc.PasswordHash = ""
	return acc, nil
}

// List returns accounts for admins, optionally filtered by role and search text.
func (s *Service) List(ctx context.Context, actor *models.Actor, f ListFilter) ([]models.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.Storage("list accounts", err)
	}
	return list, nil
}

// Get returns an account to an admin or to its owner.
func (s *Service) Get(ctx context.Context, actor *models.Actor, id int64) (*models.Account, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	if !actor.CanAccess(id) {
		return nil, apperr.ErrUnauthorized
	}
	return s.load(ctx, id)
}

// Create adds an account on behalf of an admin.
func (s *Service) Create(ctx context.Context, actor *models.Actor, form AdminForm, up *Upload) (*models.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	acc := &models.Account{}
	password, errs := form.Apply(acc)
	if errs.Any() {
		return nil, invalid(errs)
	}
	if password == "" {
		return nil, ErrPasswordRequired
	}
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, apperr.Classify("hash password", err)
	}
	acc.PasswordHash = hash
	if err := s.store.Create(ctx, acc); err != nil {
		return nil, apperr.Classify("create account", err)
	}
	if url := s.photo(ctx, acc.ID, up, ""); url != "" {
		acc.PhotoURL = url
		if err := s.store.Update(ctx, acc); err != nil {
			s.logger.Warn("saving photo url failed", zap.Error(err), zap.Int64("account_id", acc.ID))
			acc.PhotoURL = ""
		}
	}
	acc.PasswordHash = ""
	s.logger.Info("account created", zap.Int64("account_id", acc.ID), zap.String("role", string(acc.Role)), zap.Int64("by", actor.AccountID))
	return acc, nil
}

// Update edits any account, including its role, on behalf of an admin.
func (s *Service) Update(ctx context.Context, actor *models.Actor, id int64, form AdminForm, up *Upload) (*models.Account, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	acc, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	password, errs := form.Apply(acc)
	if errs.Any() {
		return nil, invalid(errs)
	}
	return s.save(ctx, acc, password, up)
}

// Delete removes an account and everything that refers to it.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, id int64) (Removed, error) {
	if err := requireAdmin(actor); err != nil {
		return Removed{}, err
	}
	return s.DeleteAccountWithRelations(ctx, id)
}

// CountParticipants returns how many participant accounts exist.
func (s *Service) CountParticipants(ctx context.Context) (int, error) {
	n, err := s.store.CountParticipants(ctx)
	if err != nil {
		return 0, apperr.Storage("count participants", err)
	}
	return n, nil
}
