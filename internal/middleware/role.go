package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/response"
)

// LoginPath is where anonymous users are sent.
const LoginPath = "/auth/login"

// RequireAuth redirects anonymous requests to the login page.
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if ActorFrom(c) == nil {
			c.Redirect(http.StatusSeeOther, LoginPath)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireRole returns a middleware that allows only the given roles.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{})
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		actor := ActorFrom(c)
		if actor == nil {
			c.Redirect(http.StatusSeeOther, LoginPath)
			c.Abort()
			return
		}
		if _, ok := allowed[actor.Role]; !ok {
			response.Forbidden(c)
			return
		}
		c.Next()
	}
}
