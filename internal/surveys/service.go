// Package surveys governs post-event feedback: when a participant may answer,
// and how admins review and correct answers.
package surveys

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/metrics"
	"github.com/intex-outreach/backend/internal/models"
)

// Tx is the storage used inside a survey transaction.
type Tx interface {
	RegistrationForUpdate(ctx context.Context, id int64) (*models.RegistrationDetail, error)
	Insert(ctx context.Context, s *models.Survey) error
	MarkSubmitted(ctx context.Context, registrationID int64, at time.Time) error
	GetForUpdate(ctx context.Context, id int64) (*models.Survey, error)
	Update(ctx context.Context, s *models.Survey) error
	Delete(ctx context.Context, id int64) error
}

// Store is the survey persistence boundary. *Repository implements it.
type Store interface {
	RunInTx(ctx context.Context, fn func(Tx) error) error
	Registration(ctx context.Context, id int64) (*models.RegistrationDetail, error)
	Get(ctx context.Context, id int64) (*Entry, error)
	List(ctx context.Context) ([]Entry, error)
}

// Service implements survey submission and administration.
type Service struct {
	store   Store
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates a survey service. m may be nil.
func NewService(store Store, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, metrics: m, logger: logger, now: time.Now}
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

func checkOwner(actor *models.Actor, reg *models.RegistrationDetail) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	if reg == nil {
		return apperr.ErrRegistrationNotFound
	}
	if !actor.CanAccess(reg.AccountID) {
		return apperr.ErrUnauthorized
	}
	return nil
}

// Form returns the registration a survey is about to be written for. It fails
// unless the registration is Eligible.
func (s *Service) Form(ctx context.Context, actor *models.Actor, registrationID int64) (*models.RegistrationDetail, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	reg, err := s.store.Registration(ctx, registrationID)
	if err != nil {
		return nil, apperr.Storage("load registration", err)
	}
	if err := checkOwner(actor, reg); err != nil {
		return nil, err
	}
	if Eligibility(reg, s.now()) != Eligible {
		return nil, apperr.ErrSurveyNotEligible
	}
	return reg, nil
}

// Submit records the survey for a registration, moving it from Eligible to
// Submitted. Nothing is written unless every score is valid.
func (s *Service) Submit(ctx context.Context, actor *models.Actor, registrationID int64, scores Scores) (*models.Survey, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	now := s.now()
	var out *models.Survey
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		reg, err := tx.RegistrationForUpdate(ctx, registrationID)
		if err != nil {
			return err
		}
		if err := checkOwner(actor, reg); err != nil {
			return err
		}
		if Eligibility(reg, now) != Eligible {
			return apperr.ErrSurveyNotEligible
		}
		if err := scores.Validate(); err != nil {
			return err
		}
		y, m, d := now.Date()
		sv := &models.Survey{RegistrationID: reg.ID, SubmittedOn: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
		scores.apply(sv)
		if err := tx.Insert(ctx, sv); err != nil {
			return err
		}
		if err := tx.MarkSubmitted(ctx, reg.ID, now); err != nil {
			return err
		}
		out = sv
		return nil
	})
	if err != nil {
		return nil, apperr.Classify("submit survey", err)
	}
	s.metrics.SurveySubmitted()
	s.logger.Info("survey submitted",
		zap.Int64("registration_id", registrationID),
		zap.Int64("account_id", actor.AccountID),
		zap.Float64("overall", out.Overall))
	return out, nil
}

// List returns every survey for admins.
func (s *Service) List(ctx context.Context, actor *models.Actor) ([]Entry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, apperr.Storage("list surveys", err)
	}
	return list, nil
}

// Get returns one survey for admins.
func (s *Service) Get(ctx context.Context, actor *models.Actor, id int64) (*Entry, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get survey", err)
	}
	if e == nil {
		return nil, apperr.ErrSurveyNotFound
	}
	return e, nil
}

// Edit replaces a survey's scores and recomputes its overall score. The
// registration stays Submitted.
func (s *Service) Edit(ctx context.Context, actor *models.Actor, id int64, scores Scores) (*models.Survey, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := scores.Validate(); err != nil {
		return nil, err
	}
	var out *models.Survey
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		sv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sv == nil {
			return apperr.ErrSurveyNotFound
		}
		scores.apply(sv)
		if err := tx.Update(ctx, sv); err != nil {
			return err
		}
		out = sv
		return nil
	})
	if err != nil {
		return nil, apperr.Classify("edit survey", err)
	}
	return out, nil
}

// Delete removes a survey. The registration stays Submitted, so the
// participant cannot answer again.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, id int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		sv, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if sv == nil {
			return apperr.ErrSurveyNotFound
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return apperr.Classify("delete survey", err)
	}
	s.logger.Info("survey deleted", zap.Int64("survey_id", id), zap.Int64("by", actor.AccountID))
	return nil
}
