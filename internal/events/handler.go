package events

import (
	"context"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/middleware"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/internal/validate"
	"github.com/intex-outreach/backend/pkg/response"
	"github.com/intex-outreach/backend/pkg/utils"
)

// Form is the admin event form.
type Form struct {
	TemplateID           string `form:"template_id"`
	Name                 string `form:"name" binding:"max=200"`
	Type                 string `form:"type" binding:"max=100"`
	Description          string `form:"description" binding:"max=4000"`
	RecurrencePattern    string `form:"recurrence_pattern" binding:"max=100"`
	DefaultCapacity      string `form:"default_capacity"`
	StartsAt             string `form:"starts_at" binding:"required"`
	EndsAt               string `form:"ends_at"`
	Location             string `form:"location" binding:"max=300"`
	Capacity             string `form:"capacity"`
	RegistrationDeadline string `form:"registration_deadline"`
}

const formLayout = "2006-01-02T15:04"

// Input converts the form, collecting every field problem.
func (f *Form) Input(loc *time.Location) (Input, validate.Errors) {
	var errs validate.Errors
	in := Input{
		Name:              f.Name,
		Type:              f.Type,
		Description:       f.Description,
		RecurrencePattern: f.RecurrencePattern,
		Location:          f.Location,
	}
	if validate.HasText(f.TemplateID) {
		id, ok := validate.Int64(f.TemplateID, validate.Min(1))
		errs.Check(ok, "Choose a valid event template")
		in.TemplateID = id
	}
	optionalInt := func(s, msg string) *int {
		if !validate.HasText(s) {
			return nil
		}
		n, ok := validate.Int(s, validate.Min(1), validate.Max(100000))
		errs.Check(ok, msg)
		if !ok {
			return nil
		}
		return &n
	}
	in.DefaultCapacity = optionalInt(f.DefaultCapacity, "Default capacity must be a positive whole number")
	in.Capacity = optionalInt(f.Capacity, "Capacity must be a positive whole number")

	optionalTime := func(s, msg string) *time.Time {
		if !validate.HasText(s) {
			return nil
		}
		t, ok := validate.DateTime(s, loc)
		errs.Check(ok, msg)
		if !ok {
			return nil
		}
		return &t
	}
	starts, ok := validate.DateTime(f.StartsAt, loc)
	errs.Check(ok, "Start date and time are required")
	in.StartsAt = starts
	in.EndsAt = optionalTime(f.EndsAt, "End time is not a valid date and time")
	in.RegistrationDeadline = optionalTime(f.RegistrationDeadline, "Registration deadline is not a valid date and time")
	return in, errs
}

// FormFromEvent fills the form for editing.
func FormFromEvent(ev *models.Event, loc *time.Location) Form {
	f := Form{
		Name:              ev.Template.Name,
		Type:              ev.Template.Type,
		Description:       ev.Template.Description,
		RecurrencePattern: ev.Template.RecurrencePattern,
		StartsAt:          ev.StartsAt.In(loc).Format(formLayout),
		Location:          ev.Location,
	}
	if ev.Template.DefaultCapacity != nil {
		f.DefaultCapacity = strconv.Itoa(*ev.Template.DefaultCapacity)
	}
	if ev.EndsAt != nil {
		f.EndsAt = ev.EndsAt.In(loc).Format(formLayout)
	}
	if ev.Capacity != nil {
		f.Capacity = strconv.Itoa(*ev.Capacity)
	}
	if ev.RegistrationDeadline != nil {
		f.RegistrationDeadline = ev.RegistrationDeadline.In(loc).Format(formLayout)
	}
	return f
}

// Roster lists who registered for an occurrence.
type Roster interface {
	Roster(ctx context.Context, actor *models.Actor, occurrenceID int64) ([]models.RegistrationDetail, error)
}

// Handler handles event pages.
type Handler struct {
	svc    *Service
	roster Roster
	loc    *time.Location
	logger *zap.Logger
}

// NewHandler creates an event handler. Form times are read in loc.
func NewHandler(svc *Service, roster Roster, loc *time.Location, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Handler{svc: svc, roster: roster, loc: loc, logger: logger}
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.Upcoming(c.Request.Context())
	if err != nil {
		response.Fail(c, h.logger, "list events", err)
		return
	}
	response.Page(c, "events_list.html", gin.H{"Events": list, "Upcoming": true})
}

// AdminList handles GET /admin/events.
func (h *Handler) AdminList(c *gin.Context) {
	list, err := h.svc.All(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		response.Fail(c, h.logger, "list events", err)
		return
	}
	response.Page(c, "events_list.html", gin.H{"Events": list})
}

// Show handles GET /events/:id. Admins also see the roster.
func (h *Handler) Show(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	ev, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, h.logger, "show event", err)
		return
	}
	data := gin.H{"Event": ev}
	actor := middleware.ActorFrom(c)
	if actor.IsAdmin() && h.roster != nil {
		roster, err := h.roster.Roster(c.Request.Context(), actor, id)
		if err != nil {
			response.Fail(c, h.logger, "event roster", err)
			return
		}
		data["Roster"] = roster
	}
	response.Page(c, "events_show.html", data)
}

func (h *Handler) renderForm(c *gin.Context, status int, data gin.H) {
	templates, err := h.svc.Templates(c.Request.Context())
	if err != nil {
		response.Fail(c, h.logger, "list templates", err)
		return
	}
	data["Templates"] = templates
	response.Render(c, status, "events_form.html", data)
}

// New handles GET /admin/events/new.
func (h *Handler) New(c *gin.Context) {
	h.renderForm(c, 200, gin.H{"Form": Form{}, "Action": "/admin/events"})
}

// Create handles POST /admin/events.
func (h *Handler) Create(c *gin.Context) {
	var form Form
	data := gin.H{"Action": "/admin/events"}
	if err := c.ShouldBind(&form); err != nil {
		data["Form"], data["Error"] = form, "Please fill in the start date and time"
		h.renderForm(c, 400, data)
		return
	}
	data["Form"] = form
	in, errs := form.Input(h.loc)
	if errs.Any() {
		data["Error"] = errs.First()
		h.renderForm(c, 400, data)
		return
	}
	ev, err := h.svc.Create(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeValidation) {
			data["Error"] = apperr.MessageOf(err)
			h.renderForm(c, 400, data)
			return
		}
		response.Fail(c, h.logger, "create event", err)
		return
	}
	response.Redirect(c, "/events/"+strconv.FormatInt(ev.ID, 10), "Event created")
}

// Edit handles GET /admin/events/:id/edit.
func (h *Handler) Edit(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	ev, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, h.logger, "edit event", err)
		return
	}
	h.renderForm(c, 200, gin.H{
		"Form":   FormFromEvent(ev, h.loc),
		"Event":  ev,
		"Action": "/admin/events/" + strconv.FormatInt(id, 10),
	})
}

// Update handles POST /admin/events/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	action := "/admin/events/" + strconv.FormatInt(id, 10)
	var form Form
	if err := c.ShouldBind(&form); err != nil {
		h.renderForm(c, 400, gin.H{"Form": form, "Action": action, "Error": "Please fill in the start date and time"})
		return
	}
	in, errs := form.Input(h.loc)
	if errs.Any() {
		h.renderForm(c, 400, gin.H{"Form": form, "Action": action, "Error": errs.First()})
		return
	}
	if _, err := h.svc.Update(c.Request.Context(), middleware.ActorFrom(c), id, in); err != nil {
		if apperr.HasCode(err, apperr.CodeValidation) {
			h.renderForm(c, 400, gin.H{"Form": form, "Action": action, "Error": apperr.MessageOf(err)})
			return
		}
		response.Fail(c, h.logger, "update event", err)
		return
	}
	response.Redirect(c, "/events/"+strconv.FormatInt(id, 10), "Event updated")
}

// Delete handles POST /admin/events/:id/delete.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		response.Fail(c, h.logger, "delete event", err)
		return
	}
	response.Redirect(c, "/admin/events", "Event deleted")
}
