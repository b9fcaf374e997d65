// Package emaillogs shows admins what the email worker delivered.
package emaillogs

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/middleware"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/response"
)

// Lister reads recent delivery attempts. *Repository implements it.
type Lister interface {
	Recent(ctx context.Context, status string, limit int) ([]models.EmailLog, error)
}

// DeadLetters reports how many jobs gave up. *queue.Queue implements it.
type DeadLetters interface {
	DeadLetterCount(ctx context.Context) (int64, error)
}

// Handler handles email log pages.
type Handler struct {
	logs   Lister
	dlq    DeadLetters
	logger *zap.Logger
}

// NewHandler creates an email logs handler. dlq may be nil.
func NewHandler(logs Lister, dlq DeadLetters, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{logs: logs, dlq: dlq, logger: logger}
}

// List handles GET /admin/emails?status=failed.
func (h *Handler) List(c *gin.Context) {
	if !middleware.ActorFrom(c).IsAdmin() {
		response.Forbidden(c)
		return
	}
	status := c.Query("status")
	if status != models.EmailLogStatusSent && status != models.EmailLogStatusFailed {
		status = ""
	}
	logs, err := h.logs.Recent(c.Request.Context(), status, 100)
	if err != nil {
		response.Fail(c, h.logger, "list email logs", apperr.Storage("list email logs", err))
		return
	}
	data := gin.H{"Logs": logs, "Status": status}
	if h.dlq != nil {
		if n, err := h.dlq.DeadLetterCount(c.Request.Context()); err != nil {
			h.logger.Warn("dead letter count failed", zap.Error(err))
		} else {
			data["DeadLetters"] = n
		}
	}
	response.Page(c, "email_logs.html", data)
}
