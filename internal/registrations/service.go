// Package registrations enforces who may claim a seat at an event occurrence
// and when that claim may be withdrawn.
package registrations

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/metrics"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/internal/surveys"
)

// Tx is the storage used inside a registration transaction.
type Tx interface {
	LockOccurrence(ctx context.Context, occurrenceID int64) (*models.Event, error)
	CountForOccurrence(ctx context.Context, occurrenceID int64) (int, error)
	Exists(ctx context.Context, accountID, occurrenceID int64) (bool, error)
	Insert(ctx context.Context, reg *models.Registration) error
	GetForUpdate(ctx context.Context, id int64) (*models.Registration, error)
	Delete(ctx context.Context, id int64) error
	SetAttendance(ctx context.Context, id int64, attended bool, checkedInAt *time.Time) error
}

// Store is the registration persistence boundary. *Repository implements it.
type Store interface {
	RunInTx(ctx context.Context, fn func(Tx) error) error
	ListByAccount(ctx context.Context, accountID int64) ([]models.RegistrationDetail, error)
	ListByOccurrence(ctx context.Context, occurrenceID int64) ([]models.RegistrationDetail, error)
	Contact(ctx context.Context, accountID int64) (email, name string, err error)
}

// Confirmations sends registration emails after commit.
type Confirmations interface {
	RegistrationConfirmation(ctx context.Context, to, name string, ev *models.Event)
}

// Entry is a registration with its survey state.
type Entry struct {
	models.RegistrationDetail
	Survey surveys.State
}

// CanCancel reports whether the event has not started at now.
func (e *Entry) CanCancel(now time.Time) bool { return e.StartsAt.After(now) }

// Service implements registration, cancellation and attendance.
type Service struct {
	store         Store
	confirmations Confirmations
	metrics       *metrics.Metrics
	logger        *zap.Logger
	now           func() time.Time
}

// NewService creates a registration service. confirmations and m may be nil.
func NewService(store Store, confirmations Confirmations, m *metrics.Metrics, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, confirmations: confirmations, metrics: m, logger: logger, now: time.Now}
}

// Register claims a seat for the actor.
func (s *Service) Register(ctx context.Context, actor *models.Actor, occurrenceID int64) (*models.Registration, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	return s.RegisterAccount(ctx, actor, actor.AccountID, occurrenceID)
}

// RegisterAccount claims a seat for accountID. Only the account itself or an
// admin may do so. The occurrence row is locked while the count is checked so
// two attempts at the last seat cannot both succeed.
func (s *Service) RegisterAccount(ctx context.Context, actor *models.Actor, accountID, occurrenceID int64) (*models.Registration, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	if !actor.CanAccess(accountID) {
		return nil, apperr.ErrUnauthorized
	}
	if accountID <= 0 {
		return nil, apperr.ErrInvalidAccountID
	}
	start := time.Now()
	now := s.now()
	var (
		reg *models.Registration
		ev  *models.Event
	)
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		var err error
		ev, err = tx.LockOccurrence(ctx, occurrenceID)
		if err != nil {
			return err
		}
		if ev == nil {
			return apperr.ErrEventNotFound
		}
		if !ev.StartsAt.After(now) {
			return apperr.ErrEventInPast
		}
		if ev.RegistrationDeadline != nil && now.After(*ev.RegistrationDeadline) {
			return apperr.ErrDeadlinePassed
		}
		exists, err := tx.Exists(ctx, accountID, occurrenceID)
		if err != nil {
			return err
		}
		if exists {
			return apperr.ErrAlreadyRegistered
		}
		count, err := tx.CountForOccurrence(ctx, occurrenceID)
		if err != nil {
			return err
		}
		if ev.Capacity != nil && count >= *ev.Capacity {
			return apperr.ErrEventFull
		}
		reg = &models.Registration{
			AccountID:    accountID,
			OccurrenceID: occurrenceID,
			Status:       models.RegistrationStatusConfirmed,
			CreatedAt:    now,
		}
		if err := tx.Insert(ctx, reg); err != nil {
			return err
		}
		ev.RegistrationCount = count + 1
		return nil
	})
	if err != nil {
		err = apperr.Classify("register", err)
		if !apperr.HasCode(err, apperr.CodeStorage) {
			s.metrics.RegistrationRejected(reasonOf(err))
		}
		return nil, err
	}
	s.metrics.ObserveTx("register", start)
	s.metrics.RegistrationCreated()
	s.logger.Info("registration created",
		zap.Int64("registration_id", reg.ID),
		zap.Int64("account_id", accountID),
		zap.Int64("occurrence_id", occurrenceID))
	s.confirm(ctx, accountID, ev)
	return reg, nil
}

func reasonOf(err error) string {
	var e *apperr.Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return "unknown"
}

// confirm sends the confirmation email. Failures are logged only.
func (s *Service) confirm(ctx context.Context, accountID int64, ev *models.Event) {
	if s.confirmations == nil {
		return
	}
	email, name, err := s.store.Contact(ctx, accountID)
	if err != nil {
		s.logger.Warn("registration contact lookup failed", zap.Error(err), zap.Int64("account_id", accountID))
		return
	}
	if email == "" {
		return
	}
	s.confirmations.RegistrationConfirmation(ctx, email, name, ev)
}

// Unregister withdraws a registration before its event starts. The owner or
// an admin may do so; the registration's survey goes with it.
func (s *Service) Unregister(ctx context.Context, actor *models.Actor, registrationID int64) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	now := s.now()
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		reg, err := tx.GetForUpdate(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg == nil {
			return apperr.ErrRegistrationNotFound
		}
		if !actor.CanAccess(reg.AccountID) {
			return apperr.ErrUnauthorized
		}
		ev, err := tx.LockOccurrence(ctx, reg.OccurrenceID)
		if err != nil {
			return err
		}
		if ev != nil && !ev.StartsAt.After(now) {
			return apperr.ErrEventAlreadyStarted
		}
		return tx.Delete(ctx, reg.ID)
	})
	if err != nil {
		return apperr.Classify("unregister", err)
	}
	s.logger.Info("registration cancelled", zap.Int64("registration_id", registrationID), zap.Int64("by", actor.AccountID))
	return nil
}

// MarkAttendance sets or clears the attended flag. Check-in time is now when
// attended and cleared otherwise.
func (s *Service) MarkAttendance(ctx context.Context, actor *models.Actor, registrationID int64, attended bool) (*models.Registration, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return nil, apperr.ErrUnauthorized
	}
	var out *models.Registration
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		reg, err := tx.GetForUpdate(ctx, registrationID)
		if err != nil {
			return err
		}
		if reg == nil {
			return apperr.ErrRegistrationNotFound
		}
		var checkedIn *time.Time
		if attended {
			t := s.now()
			checkedIn = &t
		}
		if err := tx.SetAttendance(ctx, reg.ID, attended, checkedIn); err != nil {
			return err
		}
		reg.Attended, reg.CheckedInAt = attended, checkedIn
		out = reg
		return nil
	})
	if err != nil {
		return nil, apperr.Classify("mark attendance", err)
	}
	return out, nil
}

// Mine lists the actor's registrations with their survey state.
func (s *Service) Mine(ctx context.Context, actor *models.Actor) ([]Entry, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	list, err := s.store.ListByAccount(ctx, actor.AccountID)
	if err != nil {
		return nil, apperr.Storage("list registrations", err)
	}
	now := s.now()
	out := make([]Entry, 0, len(list))
	for i := range list {
		out = append(out, Entry{RegistrationDetail: list[i], Survey: surveys.Eligibility(&list[i], now)})
	}
	return out, nil
}

// Roster lists the registrations of an occurrence for admins.
func (s *Service) Roster(ctx context.Context, actor *models.Actor, occurrenceID int64) ([]models.RegistrationDetail, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return nil, apperr.ErrUnauthorized
	}
	list, err := s.store.ListByOccurrence(ctx, occurrenceID)
	if err != nil {
		return nil, apperr.Storage("event roster", err)
	}
	return list, nil
}

// Now is the service clock, for pages that compare against event times.
func (s *Service) Now() time.Time { return s.now() }
