// Package events manages event templates and their scheduled occurrences.
package events

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
)

// Tx is the storage used inside an event transaction.
type Tx interface {
	TemplateByID(ctx context.Context, id int64) (*models.EventTemplate, error)
	InsertTemplate(ctx context.Context, t *models.EventTemplate) error
	UpdateTemplate(ctx context.Context, t *models.EventTemplate) error
	InsertOccurrence(ctx context.Context, o *models.EventOccurrence) error
	UpdateOccurrence(ctx context.Context, o *models.EventOccurrence) error
	GetForUpdate(ctx context.Context, id int64) (*models.Event, error)
	DeleteOccurrence(ctx context.Context, id, templateID int64) error
}

// Store is the event persistence boundary. *Repository implements it.
type Store interface {
	RunInTx(ctx context.Context, fn func(Tx) error) error
	Get(ctx context.Context, id int64) (*models.Event, error)
	List(ctx context.Context, f ListFilter) ([]models.Event, error)
	Templates(ctx context.Context) ([]models.EventTemplate, error)
	CountUpcoming(ctx context.Context, now time.Time) (int, error)
}

// Input is the admin event form. TemplateID 0 creates a new template from the
// template fields; otherwise the occurrence joins that template.
type Input struct {
	TemplateID           int64
	Name                 string
	Type                 string
	Description          string
	RecurrencePattern    string
	DefaultCapacity      *int
	StartsAt             time.Time
	EndsAt               *time.Time
	Location             string
	Capacity             *int
	RegistrationDeadline *time.Time
}

// Validation errors for event input.
var (
	ErrNameRequired   = apperr.New(apperr.CodeValidation, "event_name_required", "Event name is required")
	ErrStartRequired  = apperr.New(apperr.CodeValidation, "event_start_required", "Start date and time are required")
	ErrEndBeforeStart = apperr.New(apperr.CodeValidation, "event_end_before_start", "End time must be after the start time")
	ErrBadCapacity    = apperr.New(apperr.CodeValidation, "event_bad_capacity", "Capacity must be a positive whole number")
	ErrLateDeadline   = apperr.New(apperr.CodeValidation, "event_late_deadline", "Registration deadline must not be after the start time")
)

// Validate checks the occurrence fields and, when creating a template, its name.
func (in *Input) Validate() error {
	if in.TemplateID == 0 && strings.TrimSpace(in.Name) == "" {
		return ErrNameRequired
	}
	if in.StartsAt.IsZero() {
		return ErrStartRequired
	}
	if in.EndsAt != nil && !in.EndsAt.After(in.StartsAt) {
		return ErrEndBeforeStart
	}
	if (in.Capacity != nil && *in.Capacity <= 0) || (in.DefaultCapacity != nil && *in.DefaultCapacity <= 0) {
		return ErrBadCapacity
	}
	if in.RegistrationDeadline != nil && in.RegistrationDeadline.After(in.StartsAt) {
		return ErrLateDeadline
	}
	return nil
}

func (in *Input) template(id int64) *models.EventTemplate {
	return &models.EventTemplate{
		ID:                id,
		Name:              strings.TrimSpace(in.Name),
		Type:              strings.TrimSpace(in.Type),
		Description:       strings.TrimSpace(in.Description),
		RecurrencePattern: strings.TrimSpace(in.RecurrencePattern),
		DefaultCapacity:   in.DefaultCapacity,
	}
}

// Service implements event administration and listings.
type Service struct {
	store  Store
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates an event service.
func NewService(store Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, logger: logger, now: time.Now}
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

// Create schedules an occurrence, creating its template first when needed.
// A missing capacity falls back to the template's default.
func (s *Service) Create(ctx context.Context, actor *models.Actor, in Input) (*models.Event, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}
	ev := &models.Event{}
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		var tmpl *models.EventTemplate
		if in.TemplateID > 0 {
			t, err := tx.TemplateByID(ctx, in.TemplateID)
			if err != nil {
				return err
			}
			if t == nil {
				return apperr.ErrEventNotFound
			}
			tmpl = t
		} else {
			tmpl = in.template(0)
			if err := tx.InsertTemplate(ctx, tmpl); err != nil {
				return err
			}
		}
		capacity := in.Capacity
		if capacity == nil {
			capacity = tmpl.DefaultCapacity
		}
		occ := models.EventOccurrence{
			TemplateID:           tmpl.ID,
			StartsAt:             in.StartsAt,
			EndsAt:               in.EndsAt,
			Location:             strings.TrimSpace(in.Location),
			Capacity:             capacity,
			RegistrationDeadline: in.RegistrationDeadline,
		}
		if err := tx.InsertOccurrence(ctx, &occ); err != nil {
			return err
		}
		ev.EventOccurrence, ev.Template = occ, *tmpl
		return nil
	})
	if err != nil {
		return nil, apperr.Classify("create event", err)
	}
	s.logger.Info("event created", zap.Int64("occurrence_id", ev.ID), zap.Int64("template_id", ev.TemplateID))
	return ev, nil
}

// Update edits the template metadata and the occurrence schedule together.
func (s *Service) Update(ctx context.Context, actor *models.Actor, occurrenceID int64, in Input) (*models.Event, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	in.TemplateID = 0
	if err := in.Validate(); err != nil {
		return nil, err
	}
	var out *models.Event
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		ev, err := tx.GetForUpdate(ctx, occurrenceID)
		if err != nil {
			return err
		}
		if ev == nil {
			return apperr.ErrEventNotFound
		}
		tmpl := in.template(ev.TemplateID)
		if err := tx.UpdateTemplate(ctx, tmpl); err != nil {
			return err
		}
		ev.StartsAt = in.StartsAt
		ev.EndsAt = in.EndsAt
		ev.Location = strings.TrimSpace(in.Location)
		ev.Capacity = in.Capacity
		ev.RegistrationDeadline = in.RegistrationDeadline
		if err := tx.UpdateOccurrence(ctx, &ev.EventOccurrence); err != nil {
			return err
		}
		ev.Template = *tmpl
		out = ev
		return nil
	})
	if err != nil {
		return nil, apperr.Classify("update event", err)
	}
	return out, nil
}

// Delete removes an occurrence with its registrations and surveys.
func (s *Service) Delete(ctx context.Context, actor *models.Actor, occurrenceID int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		ev, err := tx.GetForUpdate(ctx, occurrenceID)
		if err != nil {
			return err
		}
		if ev == nil {
			return apperr.ErrEventNotFound
		}
		return tx.DeleteOccurrence(ctx, ev.ID, ev.TemplateID)
	})
	if err != nil {
		return apperr.Classify("delete event", err)
	}
	s.logger.Info("event deleted", zap.Int64("occurrence_id", occurrenceID), zap.Int64("by", actor.AccountID))
	return nil
}

// Get returns one event with its registration count.
func (s *Service) Get(ctx context.Context, id int64) (*models.Event, error) {
	ev, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get event", err)
	}
	if ev == nil {
		return nil, apperr.ErrEventNotFound
	}
	return ev, nil
}

// Upcoming lists occurrences that have not started yet.
func (s *Service) Upcoming(ctx context.Context) ([]models.Event, error) {
	now := s.now()
	list, err := s.store.List(ctx, ListFilter{StartsAfter: &now})
	if err != nil {
		return nil, apperr.Storage("list events", err)
	}
	return list, nil
}

// All lists every occurrence for admins.
func (s *Service) All(ctx context.Context, actor *models.Actor) ([]models.Event, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	list, err := s.store.List(ctx, ListFilter{})
	if err != nil {
		return nil, apperr.Storage("list events", err)
	}
	return list, nil
}

// Templates lists templates for the admin form.
func (s *Service) Templates(ctx context.Context) ([]models.EventTemplate, error) {
	list, err := s.store.Templates(ctx)
	if err != nil {
		return nil, apperr.Storage("list templates", err)
	}
	return list, nil
}

// CountUpcoming returns how many occurrences have not started.
func (s *Service) CountUpcoming(ctx context.Context) (int, error) {
	n, err := s.store.CountUpcoming(ctx, s.now())
	if err != nil {
		return 0, apperr.Storage("count events", err)
	}
	return n, nil
}
