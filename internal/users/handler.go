package users

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/middleware"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/response"
	"github.com/intex-outreach/backend/pkg/utils"
)

// PhotoField is the multipart field carrying a profile photo.
const PhotoField = "photo"

// Handler handles profile and admin account pages.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an account handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// upload opens the optional photo. The returned closer is never nil.
func (h *Handler) upload(c *gin.Context) (*Upload, func()) {
	fh, err := c.FormFile(PhotoField)
	if err != nil {
		if !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart) {
			h.logger.Warn("read photo field failed", zap.Error(err))
		}
		return nil, func() {}
	}
	f, err := fh.Open()
	if err != nil {
		h.logger.Warn("open photo failed", zap.Error(err))
		return nil, func() {}
	}
	return &Upload{
		Filename:    fh.Filename,
		ContentType: contentType(fh),
		Size:        fh.Size,
		Body:        f,
	}, func() { _ = f.Close() }
}

func contentType(fh *multipart.FileHeader) string {
	return fh.Header.Get("Content-Type")
}

// Profile handles GET /profile.
func (h *Handler) Profile(c *gin.Context) {
	acc, err := h.svc.Profile(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		response.Fail(c, h.logger, "profile", err)
		return
	}
	response.Page(c, "profile.html", gin.H{"Account": acc})
}

// EditProfile handles GET /profile/edit.
func (h *Handler) EditProfile(c *gin.Context) {
	acc, err := h.svc.Profile(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		response.Fail(c, h.logger, "edit profile", err)
		return
	}
	form := FormFromAccount(acc)
	response.Page(c, "profile_edit.html", gin.H{"Account": acc, "Form": form.ProfileForm})
}

// UpdateProfile handles POST /profile/edit.
func (h *Handler) UpdateProfile(c *gin.Context) {
	var form ProfileForm
	if err := c.ShouldBind(&form); err != nil {
		response.Invalid(c, "profile_edit.html", "One of the fields is too long", gin.H{"Form": form})
		return
	}
	up, closeUpload := h.upload(c)
	defer closeUpload()
	if _, err := h.svc.UpdateProfile(c.Request.Context(), middleware.ActorFrom(c), form, up); err != nil {
		response.FormError(c, h.logger, "profile_edit.html", err, gin.H{"Form": form})
		return
	}
	response.Redirect(c, "/profile", "Profile updated")
}

// List handles GET /admin/users?q=&role=.
func (h *Handler) List(c *gin.Context) {
	f := ListFilter{Search: c.Query("q")}
	if raw := c.Query("role"); raw != "" {
		if role, ok := models.ParseRole(raw); ok {
			f.Role = role
		}
	}
	list, err := h.svc.List(c.Request.Context(), middleware.ActorFrom(c), f)
	if err != nil {
		response.Fail(c, h.logger, "list accounts", err)
		return
	}
	response.Page(c, "users_list.html", gin.H{"Accounts": list, "Query": f.Search, "Role": string(f.Role)})
}

// Show handles GET /admin/users/:id.
func (h *Handler) Show(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	acc, err := h.svc.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		response.Fail(c, h.logger, "show account", err)
		return
	}
	response.Page(c, "profile.html", gin.H{"Account": acc})
}

// New handles GET /admin/users/new.
func (h *Handler) New(c *gin.Context) {
	response.Page(c, "users_form.html", gin.H{
		"Form":   AdminForm{Role: string(models.RoleParticipant)},
		"Action": "/admin/users",
	})
}

// Create handles POST /admin/users.
func (h *Handler) Create(c *gin.Context) {
	var form AdminForm
	data := gin.H{"Action": "/admin/users"}
	if err := c.ShouldBind(&form); err != nil {
		data["Form"] = form
		response.Invalid(c, "users_form.html", "One of the fields is too long", data)
		return
	}
	data["Form"] = form
	up, closeUpload := h.upload(c)
	defer closeUpload()
	acc, err := h.svc.Create(c.Request.Context(), middleware.ActorFrom(c), form, up)
	if err != nil {
		response.FormError(c, h.logger, "users_form.html", err, data)
		return
	}
	response.Redirect(c, "/admin/users/"+strconv.FormatInt(acc.ID, 10), "Account created")
}

// Edit handles GET /admin/users/:id/edit.
func (h *Handler) Edit(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	actor := middleware.ActorFrom(c)
	if err := requireAdmin(actor); err != nil {
		response.Fail(c, h.logger, "edit account", err)
		return
	}
	acc, err := h.svc.Get(c.Request.Context(), actor, id)
	if err != nil {
		response.Fail(c, h.logger, "edit account", err)
		return
	}
	response.Page(c, "users_form.html", gin.H{
		"Form":    FormFromAccount(acc),
		"Account": acc,
		"Action":  "/admin/users/" + strconv.FormatInt(id, 10),
	})
}

// Update handles POST /admin/users/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	var form AdminForm
	data := gin.H{"Action": "/admin/users/" + strconv.FormatInt(id, 10)}
	if err := c.ShouldBind(&form); err != nil {
		data["Form"] = form
		response.Invalid(c, "users_form.html", "One of the fields is too long", data)
		return
	}
	data["Form"] = form
	up, closeUpload := h.upload(c)
	defer closeUpload()
	if _, err := h.svc.Update(c.Request.Context(), middleware.ActorFrom(c), id, form, up); err != nil {
		response.FormError(c, h.logger, "users_form.html", err, data)
		return
	}
	response.Redirect(c, "/admin/users/"+strconv.FormatInt(id, 10), "Account updated")
}

// Delete handles POST /admin/users/:id/delete.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	if _, err := h.svc.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		if apperr.HasCode(err, apperr.CodeStorage) {
			response.Redirect(c, "/admin/users/"+strconv.FormatInt(id, 10), apperr.MessageOf(err))
			h.logger.Error("delete account failed", zap.Error(err), zap.Int64("account_id", id))
			return
		}
		response.Fail(c, h.logger, "delete account", err)
		return
	}
	response.Redirect(c, "/admin/users", "Account deleted")
}
