// Package milestones records dated achievements for participants.
package milestones

import (
	"context"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/internal/validate"
)

// Store is the milestone persistence boundary. *Repository implements it.
type Store interface {
	List(ctx context.Context, accountID int64) ([]models.Milestone, error)
	Insert(ctx context.Context, m *models.Milestone) error
	Delete(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int, error)
}

var errTitleTooLong = apperr.New(apperr.CodeValidation, "invalid_milestone", "Title must be at most 200 characters")

// Form is the admin milestone form.
type Form struct {
	AccountID  string `form:"account_id"`
	Title      string `form:"title" binding:"max=200"`
	AchievedOn string `form:"achieved_on"`
}

// Milestone validates the form, reporting the first problem.
func (f *Form) Milestone() (*models.Milestone, validate.Errors) {
	var errs validate.Errors
	m := &models.Milestone{}
	id, ok := validate.Int64(f.AccountID, validate.Min(1))
	errs.Check(ok, "A valid account id is required")
	m.AccountID = id
	title, ok := validate.Text(f.Title)
	errs.Check(ok, "Title is required")
	m.Title = title
	on, ok := validate.ParseISODate(f.AchievedOn)
	errs.Check(ok, "Date must be a valid date (YYYY-MM-DD)")
	m.AchievedOn = on
	return m, errs
}

// Service implements milestone operations.
type Service struct {
	store  Store
	logger *zap.Logger
}

// NewService creates a milestone service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger}
}

// List returns every milestone to admins and their own to participants.
func (s *Service) List(ctx context.Context, actor *models.Actor) ([]models.Milestone, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	var owner int64
	if !actor.IsAdmin() {
		owner = actor.AccountID
	}
	list, err := s.store.List(ctx, owner)
	if err != nil {
		return nil, apperr.Storage("list milestones", err)
	}
	return list, nil
}

// Create records a milestone on behalf of an admin.
func (s *Service) Create(ctx context.Context, actor *models.Actor, form Form) (*models.Milestone, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return nil, apperr.ErrUnauthorized
	}
	m, errs := form.Milestone()
	if errs.Any() {
		return nil, apperr.New(apperr.CodeValidation, "invalid_milestone", errs.First())
	}
	if err := s.store.Insert(ctx, m); err != nil {
		return nil, apperr.Classify("create milestone", err)
	}
	s.logger.Info("milestone created", zap.Int64("milestone_id", m.ID), zap.Int64("account_id", m.AccountID))
	return m, nil
}

// Delete removes a milestone on behalf of an admin.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, id int64) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return apperr.ErrUnauthorized
	}
	found, err := s.store.Delete(ctx, id)
	if err != nil {
		return apperr.Storage("delete milestone", err)
	}
	if !found {
		return apperr.ErrMilestoneNotFound
	}
	return nil
}

// Count returns the number of milestones.
func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, apperr.Storage("count milestones", err)
	}
	return n, nil
}
