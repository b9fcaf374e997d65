package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/response"
)

// LoginForm is the body for POST /auth/login.
type LoginForm struct {
	Username string `form:"username" binding:"required"`
	Password string `form:"password" binding:"required,max=72"`
}

// SignupForm is the body for POST /auth/signup.
type SignupForm struct {
	Username        string `form:"username" binding:"required,max=50"`
	Password        string `form:"password" binding:"required,max=72"`
	ConfirmPassword string `form:"confirmPassword"`
}

// Handler handles login, signup and logout.
type Handler struct {
	svc      *Service
	sessions *SessionManager
	logger   *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(svc *Service, sessions *SessionManager, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, sessions: sessions, logger: logger}
}

// LoginPage handles GET /auth/login.
func (h *Handler) LoginPage(c *gin.Context) {
	response.Page(c, "login.html", gin.H{})
}

// Login handles POST /auth/login.
func (h *Handler) Login(c *gin.Context) {
	var form LoginForm
	if err := c.ShouldBind(&form); err != nil {
		response.Render(c, 401, "login.html", gin.H{"Username": form.Username, "Error": ErrInvalidCredentials.Message})
		return
	}
	actor, err := h.svc.Login(c.Request.Context(), form.Username, form.Password)
	if err != nil {
		if apperr.HasCode(err, apperr.CodeUnauthenticated) {
			response.Render(c, 401, "login.html", gin.H{"Username": form.Username, "Error": apperr.MessageOf(err)})
			return
		}
		response.Fail(c, h.logger, "login", err)
		return
	}
	h.start(c, actor, "Welcome back")
}

// SignupPage handles GET /auth/signup.
func (h *Handler) SignupPage(c *gin.Context) {
	response.Page(c, "signup.html", gin.H{})
}

// Signup handles POST /auth/signup.
func (h *Handler) Signup(c *gin.Context) {
	var form SignupForm
	if err := c.ShouldBind(&form); err != nil {
		response.Invalid(c, "signup.html", "Username and password are required (password at most 72 characters)", gin.H{"Username": form.Username})
		return
	}
	actor, err := h.svc.Signup(c.Request.Context(), Signup{
		Username:        form.Username,
		Password:        form.Password,
		ConfirmPassword: form.ConfirmPassword,
	})
	if err != nil {
		response.FormError(c, h.logger, "signup.html", err, gin.H{"Username": form.Username})
		return
	}
	h.start(c, actor, "Welcome! Your account is ready")
}

func (h *Handler) start(c *gin.Context, actor *models.Actor, flash string) {
	if err := h.sessions.Start(c, *actor); err != nil {
		response.Fail(c, h.logger, "start session", apperr.Storage("start session", err))
		return
	}
	response.Redirect(c, "/", flash)
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	h.sessions.Clear(c)
	response.Redirect(c, "/", "")
}
