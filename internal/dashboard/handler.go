package dashboard

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/middleware"
	"github.com/intex-outreach/backend/pkg/response"
)

// Handler serves the landing page and the signed-in dashboard.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a dashboard handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// Landing handles GET /. Counts are best effort here.
func (h *Handler) Landing(c *gin.Context) {
	data := gin.H{}
	if st, err := h.svc.Stats(c.Request.Context()); err != nil {
		h.logger.Warn("landing stats unavailable", zap.Error(err))
	} else {
		data["Stats"] = st
	}
	response.Page(c, "landing.html", data)
}

// Dashboard handles GET /dashboard.
func (h *Handler) Dashboard(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		response.Fail(c, h.logger, "dashboard", err)
		return
	}
	response.Page(c, "dashboard.html", gin.H{"Stats": st, "Admin": middleware.ActorFrom(c).IsAdmin()})
}
