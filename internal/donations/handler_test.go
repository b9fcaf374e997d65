package donations

import (
	"context"
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/pkg/response"
)

const supportTmpl = `{{define "support.html"}}error={{.Error}};first={{.Form.FirstName}};email={{.Form.Email}};amount={{.Form.Amount}};message={{.Form.Message}}{{end}}`

func supportRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(supportTmpl)))
	r.POST("/support", h.Support)
	return r
}

func postSupport(r http.Handler, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/support", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestSupportRedirectsAfterDonation(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store, 0)
	r := supportRouter(NewHandler(svc, nil))

	w := postSupport(r, url.Values{"first_name": {"Ada"}, "email": {"ada@example.org"}, "amount": {"25.50"}})
	require.Equal(t, http.StatusSeeOther, w.Code)
	assert.Equal(t, "/support", w.Header().Get("Location"))
	require.Len(t, store.state.donations, 1)
	for _, d := range store.state.donations {
		assert.Equal(t, 25.5, d.Amount)
	}
}

func TestSupportPreservesValuesOnValidationError(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store, 0)
	r := supportRouter(NewHandler(svc, nil))

	w := postSupport(r, url.Values{"first_name": {"Ada"}, "email": {"not-an-email"}, "amount": {"10"}, "message": {"keep going"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "error=Please enter a valid email address")
	assert.Contains(t, body, "first=Ada")
	assert.Contains(t, body, "email=not-an-email")
	assert.Contains(t, body, "message=keep going")
	assert.Empty(t, store.state.donations)
}

func TestSupportShowsGenericFailureAndKeepsValues(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store, 0)
	r := supportRouter(NewHandler(svc, nil))

	w := postSupport(r, url.Values{"first_name": {"Grace"}, "amount": {"5"}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "error="+template.HTMLEscapeString(donationFailed))
	assert.Contains(t, body, "first=Grace")
	assert.Contains(t, body, "amount=5")
	assert.Empty(t, store.state.donations)
}

func TestAdminFormUpdate(t *testing.T) {
	f := AdminForm{AccountID: "3", Amount: "12.346"}
	u, errs := f.Update(fixedNow)
	require.False(t, errs.Any())
	assert.Equal(t, int64(3), u.AccountID)
	assert.Equal(t, 12.35, u.Amount)
	assert.Equal(t, fixedNow, u.DonatedOn)

	f = AdminForm{AccountID: "0", Amount: "-1", DonatedOn: "June 1"}
	_, errs = f.Update(fixedNow)
	assert.Len(t, errs, 3)
	assert.Equal(t, "A valid account is required to record a donation", errs.First())

	d := &models.Donation{AccountID: 3, Amount: 7.5, DonatedOn: fixedNow}
	assert.Equal(t, AdminForm{AccountID: "3", Amount: "7.50", DonatedOn: "2025-06-15"}, formFromDonation(d))
}

const adminTmpl = `{{define "donations_list.html"}}error={{.Error}};amount={{.Form.Amount}}{{end}}` +
	`{{define "donations_form.html"}}error={{.Error}};amount={{.Form.Amount}}{{end}}`

func adminRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(adminTmpl)))
	r.Use(func(c *gin.Context) { c.Set(response.ContextActor, admin) })
	r.POST("/admin/donations", h.Create)
	r.POST("/admin/donations/:id", h.Update)
	return r
}

// A multipart content type without a boundary cannot be parsed.
func postUnparseable(r http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("account_id=1&amount=5"))
	req.Header.Set("Content-Type", "multipart/form-data")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminCreateRejectsUnparseableForm(t *testing.T) {
	store := newMemStore()
	store.addAccount(models.Account{Username: "ada"})
	svc, _ := newTestService(store, 0)
	r := adminRouter(NewHandler(svc, nil))

	w := postUnparseable(r, "/admin/donations")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error="+errInvalidDonationForm.Message)
	assert.Empty(t, store.state.donations)
}

func TestAdminUpdateRejectsUnparseableForm(t *testing.T) {
	store := newMemStore()
	id := store.addAccount(models.Account{Username: "ada"})
	svc, _ := newTestService(store, 0)
	d, err := svc.RecordDonation(context.Background(), id, 10, nil)
	require.NoError(t, err)
	r := adminRouter(NewHandler(svc, nil))

	w := postUnparseable(r, fmt.Sprintf("/admin/donations/%d", d.ID))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "error="+errInvalidDonationForm.Message)
	assert.Equal(t, 10.0, store.state.donations[d.ID].Amount)
}
