package donations

import (
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

const (
	listPage    = "donations_list.html"
	formPage    = "donations_form.html"
	supportPage = "support.html"

	donationFailed = "We could not record your donation. Please try again."
)

var errInvalidDonationForm = apperr.New(apperr.CodeValidation, "invalid_donation", "Please check the donation details and try again")

// AdminForm is the admin donation form.
type AdminForm struct {
	AccountID string `form:"account_id"`
	Amount    string `form:"amount"`
	DonatedOn string `form:"donated_on"`
}

// Update validates the form. A blank date means today.
func (f *AdminForm) Update(today time.Time) (Update, validate.Errors) {
	var errs validate.Errors
	var u Update
	id, ok := validate.Int64(f.AccountID, validate.Min(1))
	errs.Check(ok, apperr.ErrInvalidAccount.Message)
	u.AccountID = id
	amount, ok := validate.Decimal(f.Amount, validate.Min(0.01))
	errs.Check(ok, apperr.ErrInvalidAmount.Message)
	u.Amount = amount
	u.DonatedOn = today
	if validate.HasText(f.DonatedOn) {
		on, ok := validate.ParseISODate(f.DonatedOn)
		errs.Check(ok, "Donation date must be a valid date (YYYY-MM-DD)")
		u.DonatedOn = on
	}
	return u, errs
}

// SupportForm is the public support form.
type SupportForm struct {
	FirstName string `form:"first_name" binding:"max=100"`
	LastName  string `form:"last_name" binding:"max=100"`
	Email     string `form:"email" binding:"max=254"`
	Amount    string `form:"amount"`
	Message   string `form:"message" binding:"max=2000"`
}

// Donation validates the form. Email is optional but must be valid when given.
func (f *SupportForm) Donation() (PublicDonation, validate.Errors) {
	var errs validate.Errors
	var in PublicDonation
	amount, ok := validate.Decimal(f.Amount, validate.Min(0.01))
	errs.Check(ok, apperr.ErrInvalidAmount.Message)
	in.Amount = amount
	if validate.HasText(f.Email) {
		email, ok := validate.Email(f.Email)
		errs.Check(ok, "Please enter a valid email address")
		in.Email = email
	}
	in.FirstName = f.FirstName
	in.LastName = f.LastName
	in.Message = f.Message
	return in, errs
}

// Handler handles donation pages.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a donation handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) list(c *gin.Context, form AdminForm, err error) {
	actor := middleware.ActorFrom(c)
	list, lerr := h.svc.List(c.Request.Context(), actor, ListFilter{})
	if lerr != nil {
		response.Fail(c, h.logger, "list donations", lerr)
		return
	}
	data := gin.H{"Donations": list, "Form": form}
	if actor.IsAdmin() {
		total, terr := h.svc.Total(c.Request.Context())
		if terr != nil {
			response.Fail(c, h.logger, "donation total", terr)
			return
		}
		data["Total"] = total
	}
	if err != nil {
		response.FormError(c, h.logger, listPage, err, data)
		return
	}
	response.Page(c, listPage, data)
}

// List handles GET /donations. Admins see every gift and the add form.
func (h *Handler) List(c *gin.Context) {
	h.list(c, AdminForm{}, nil)
}

// Create handles POST /admin/donations.
func (h *Handler) Create(c *gin.Context) {
	var form AdminForm
	if err := c.ShouldBind(&form); err != nil {
		h.list(c, form, errInvalidDonationForm)
		return
	}
	u, errs := form.Update(h.svc.today())
	if errs.Any() {
		h.list(c, form, apperr.New(apperr.CodeValidation, "invalid_donation", errs.First()))
		return
	}
	if _, err := h.svc.Create(c.Request.Context(), middleware.ActorFrom(c), u.AccountID, u.Amount, &u.DonatedOn); err != nil {
		h.list(c, form, err)
		return
	}
	response.Redirect(c, "/donations", "Donation recorded")
}

// Edit handles GET /admin/donations/:id/edit.
func (h *Handler) Edit(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	d, err := h.svc.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		response.Fail(c, h.logger, "edit donation", err)
		return
	}
	response.Page(c, formPage, gin.H{"Donation": d, "Form": formFromDonation(d)})
}

func formFromDonation(d *models.Donation) AdminForm {
	return AdminForm{
		AccountID: strconv.FormatInt(d.AccountID, 10),
		Amount:    strconv.FormatFloat(d.Amount, 'f', 2, 64),
		DonatedOn: d.DonatedOn.Format("2006-01-02"),
	}
}

// Update handles POST /admin/donations/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	var form AdminForm
	bindErr := c.ShouldBind(&form)
	data := gin.H{"Form": form, "Donation": &models.Donation{ID: id}}
	if bindErr != nil {
		response.FormError(c, h.logger, formPage, errInvalidDonationForm, data)
		return
	}
	u, errs := form.Update(h.svc.today())
	if errs.Any() {
		response.Invalid(c, formPage, errs.First(), data)
		return
	}
	if _, err := h.svc.Edit(c.Request.Context(), middleware.ActorFrom(c), id, u); err != nil {
		response.FormError(c, h.logger, formPage, err, data)
		return
	}
	response.Redirect(c, "/donations", "Donation updated")
}

// Delete handles POST /admin/donations/:id/delete.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	if err := h.svc.Remove(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		response.Fail(c, h.logger, "delete donation", err)
		return
	}
	response.Redirect(c, "/donations", "Donation deleted")
}

// SupportPage handles GET /support.
func (h *Handler) SupportPage(c *gin.Context) {
	response.Page(c, supportPage, gin.H{"Form": SupportForm{}})
}

// Support handles POST /support. On failure the submitted values are shown again.
func (h *Handler) Support(c *gin.Context) {
	var form SupportForm
	data := gin.H{"Form": &form}
	if err := c.ShouldBind(&form); err != nil {
		response.Invalid(c, supportPage, "Please keep names and message shorter", data)
		return
	}
	in, errs := form.Donation()
	if errs.Any() {
		response.Invalid(c, supportPage, errs.First(), data)
		return
	}
	res, err := h.svc.Donate(c.Request.Context(), middleware.ActorFrom(c), in)
	if err != nil {
		code := apperr.CodeOf(err)
		data["Error"] = apperr.MessageOf(err)
		if code != apperr.CodeValidation {
			h.logger.Error("support donation failed", zap.Error(err), zap.String("code", string(code)))
			data["Error"] = donationFailed
		}
		response.Render(c, response.StatusOf(code), supportPage, data)
		return
	}
	h.logger.Info("support donation", zap.Int64("donation_id", res.Donation.ID), zap.Int64("account_id", res.Donor.ID))
	response.Redirect(c, "/support", "Thank you for your donation!")
}
