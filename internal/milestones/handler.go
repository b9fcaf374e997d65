package milestones

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/middleware"
	"github.com/intex-outreach/backend/pkg/response"
	"github.com/intex-outreach/backend/pkg/utils"
)

const page = "milestones.html"

// Handler handles milestone pages.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a milestone handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) render(c *gin.Context, form Form, err error) {
	list, lerr := h.svc.List(c.Request.Context(), middleware.ActorFrom(c))
	if lerr != nil {
		response.Fail(c, h.logger, "list milestones", lerr)
		return
	}
	data := gin.H{"Milestones": list, "Form": form}
	if err != nil {
		response.FormError(c, h.logger, page, err, data)
		return
	}
	response.Page(c, page, data)
}

// List handles GET /milestones.
func (h *Handler) List(c *gin.Context) {
	h.render(c, Form{}, nil)
}

// Create handles POST /admin/milestones.
func (h *Handler) Create(c *gin.Context) {
	var form Form
	if err := c.ShouldBind(&form); err != nil {
		h.render(c, form, errTitleTooLong)
		return
	}
	if _, err := h.svc.Create(c.Request.Context(), middleware.ActorFrom(c), form); err != nil {
		h.render(c, form, err)
		return
	}
	response.Redirect(c, "/milestones", "Milestone added")
}

// Delete handles POST /admin/milestones/:id/delete.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		response.Fail(c, h.logger, "delete milestone", err)
		return
	}
	response.Redirect(c, "/milestones", "Milestone deleted")
}
