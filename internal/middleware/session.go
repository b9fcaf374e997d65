package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/response"
)

// SessionReader extracts the actor from a request. *auth.SessionManager implements it.
type SessionReader interface {
	Actor(c *gin.Context) (*models.Actor, error)
	Clear(c *gin.Context)
}

// AccountLookup loads an account by id, returning nil when it does not exist.
// *users.Repository implements it.
type AccountLookup interface {
	Get(ctx context.Context, id int64) (*models.Account, error)
}

// Session attaches the session actor to the context when the cookie is valid.
// The cookie only identifies the account: username and role are read from the
// account row on every request, so demotions take effect immediately. An
// invalid cookie, or one naming a deleted account, is cleared and the request
// continues anonymously. A failed lookup also continues anonymously but keeps
// the cookie.
func Session(sessions SessionReader, accounts AccountLookup, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		claimed, err := sessions.Actor(c)
		if err != nil {
			sessions.Clear(c)
			c.Next()
			return
		}
		if claimed == nil {
			c.Next()
			return
		}
		acc, err := accounts.Get(c.Request.Context(), claimed.AccountID)
		switch {
		case err != nil:
			logger.Warn("session account lookup", zap.Int64("account_id", claimed.AccountID), zap.Error(err))
		case acc == nil:
			sessions.Clear(c)
		default:
			c.Set(response.ContextActor, &models.Actor{AccountID: acc.ID, Username: acc.Username, Role: acc.Role})
		}
		c.Next()
	}
}

// ActorFrom returns the request's actor, or nil when anonymous.
func ActorFrom(c *gin.Context) *models.Actor {
	v, ok := c.Get(response.ContextActor)
	if !ok {
		return nil
	}
	actor, _ := v.(*models.Actor)
	return actor
}
