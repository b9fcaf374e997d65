package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
)

const (
	// ContextActor is the gin context key holding the *models.Actor of the request.
	ContextActor = "actor"
	// FlashCookie carries a one-shot message across a redirect.
	FlashCookie = "flash"
	// ErrorTemplate is the shared error page.
	ErrorTemplate = "error.html"

	genericForbidden = "You do not have access to this page"
	genericNotFound  = "The page you were looking for could not be found"
)

// Body is the JSON envelope used by the health endpoint.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// ServiceUnavailable sends 503 JSON.
func ServiceUnavailable(c *gin.Context, err string) {
	c.JSON(http.StatusServiceUnavailable, Body{Success: false, Error: err})
}

// StatusOf maps an error code to an HTTP status.
func StatusOf(code apperr.Code) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeUnauthenticated:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Render renders a template with the actor and pending flash message added.
func Render(c *gin.Context, status int, name string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	if actor, ok := c.Get(ContextActor); ok {
		data["Actor"] = actor
	}
	if _, set := data["Flash"]; !set {
		if flash := TakeFlash(c); flash != "" {
			data["Flash"] = flash
		}
	}
	c.HTML(status, name, data)
}

// Page renders a template with 200.
func Page(c *gin.Context, name string, data gin.H) {
	Render(c, http.StatusOK, name, data)
}

// Error renders the error page for err and aborts the chain. Forbidden errors
// never reveal whether the target exists; storage errors show a generic text.
func Error(c *gin.Context, err error) {
	status := StatusOf(apperr.CodeOf(err))
	msg := apperr.MessageOf(err)
	if status == http.StatusForbidden {
		msg = genericForbidden
	}
	Render(c, status, ErrorTemplate, gin.H{"Status": status, "Message": msg})
	c.Abort()
}

// Fail logs err when it is an unexpected failure and renders the error page.
func Fail(c *gin.Context, logger *zap.Logger, op string, err error) {
	if apperr.CodeOf(err) == apperr.CodeStorage || apperr.CodeOf(err) == apperr.CodeConfiguration {
		logger.Error(op+" failed", zap.Error(err), zap.String("path", c.Request.URL.Path))
	}
	Error(c, err)
}

// FormError re-renders a form with the error message and the submitted values
// in data. Errors that are not the user's to fix go to the error page.
func FormError(c *gin.Context, logger *zap.Logger, name string, err error, data gin.H) {
	switch apperr.CodeOf(err) {
	case apperr.CodeValidation, apperr.CodeConflict:
	default:
		Fail(c, logger, name, err)
		return
	}
	if data == nil {
		data = gin.H{}
	}
	data["Error"] = apperr.MessageOf(err)
	Render(c, StatusOf(apperr.CodeOf(err)), name, data)
}

// Invalid re-renders a form with a plain validation message.
func Invalid(c *gin.Context, name, msg string, data gin.H) {
	if data == nil {
		data = gin.H{}
	}
	data["Error"] = msg
	Render(c, http.StatusBadRequest, name, data)
}

// NotFound renders the 404 page.
func NotFound(c *gin.Context) {
	Render(c, http.StatusNotFound, ErrorTemplate, gin.H{"Status": http.StatusNotFound, "Message": genericNotFound})
	c.Abort()
}

// Forbidden renders the 403 page.
func Forbidden(c *gin.Context) {
	Render(c, http.StatusForbidden, ErrorTemplate, gin.H{"Status": http.StatusForbidden, "Message": genericForbidden})
	c.Abort()
}

// Redirect sends 303 to location, carrying an optional flash message.
func Redirect(c *gin.Context, location, flash string) {
	if flash != "" {
		SetFlash(c, flash)
	}
	c.Redirect(http.StatusSeeOther, location)
}

// SetFlash stores a message for the next rendered page.
func SetFlash(c *gin.Context, msg string) {
	c.SetCookie(FlashCookie, msg, 60, "/", "", false, true)
}

// TakeFlash returns and clears the pending flash message.
func TakeFlash(c *gin.Context) string {
	v, err := c.Cookie(FlashCookie)
	if err != nil || v == "" {
		return ""
	}
	c.SetCookie(FlashCookie, "", -1, "/", "", false, true)
	return v
}
