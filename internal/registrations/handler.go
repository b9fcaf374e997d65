package registrations

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/middleware"
	"github.com/intex-outreach/backend/pkg/response"
	"github.com/intex-outreach/backend/pkg/utils"
)

// AttendanceForm is the body for POST /admin/registrations/:id/attendance.
type AttendanceForm struct {
	Attended bool `form:"attended"`
}

// Handler handles registration pages.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a registrations handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Mine handles GET /registrations.
func (h *Handler) Mine(c *gin.Context) {
	list, err := h.svc.Mine(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		response.Fail(c, h.logger, "list registrations", err)
		return
	}
	response.Page(c, "registrations_list.html", gin.H{"Registrations": list, "Now": h.svc.Now()})
}

// Register handles POST /events/:id/register. Business-rule refusals go back
// to the event page as a flash message.
func (h *Handler) Register(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	eventPath := "/events/" + strconv.FormatInt(id, 10)
	if _, err := h.svc.Register(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		switch apperr.CodeOf(err) {
		case apperr.CodeConflict, apperr.CodeValidation:
			response.Redirect(c, eventPath, apperr.MessageOf(err))
		default:
			response.Fail(c, h.logger, "register", err)
		}
		return
	}
	response.Redirect(c, "/registrations", "You are registered")
}

// Cancel handles POST /registrations/:id/cancel.
func (h *Handler) Cancel(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	if err := h.svc.Unregister(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		if apperr.HasCode(err, apperr.CodeConflict) {
			response.Redirect(c, "/registrations", apperr.MessageOf(err))
			return
		}
		response.Fail(c, h.logger, "cancel registration", err)
		return
	}
	response.Redirect(c, "/registrations", "Registration cancelled")
}

// Attendance handles POST /admin/registrations/:id/attendance.
func (h *Handler) Attendance(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	var form AttendanceForm
	if err := c.ShouldBind(&form); err != nil {
		response.Fail(c, h.logger, "mark attendance", apperr.New(apperr.CodeValidation, "bad_attendance", "Attendance must be true or false"))
		return
	}
	reg, err := h.svc.MarkAttendance(c.Request.Context(), middleware.ActorFrom(c), id, form.Attended)
	if err != nil {
		response.Fail(c, h.logger, "mark attendance", err)
		return
	}
	response.Redirect(c, "/events/"+strconv.FormatInt(reg.OccurrenceID, 10), "Attendance updated")
}
