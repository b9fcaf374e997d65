package response

import (
	"errors"
	"html/template"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/intex-outreach/backend/internal/apperr"
)

func init() { gin.SetMode(gin.TestMode) }

const pages = `{{define "error.html"}}{{.Status}}|{{.Message}}{{end}}` +
	`{{define "form.html"}}{{.Error}}|{{.Name}}|{{.Flash}}{{end}}`

func newRouter() *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(template.Must(template.New("").Parse(pages)))
	return r
}

func get(r *gin.Engine, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestStatusOf(t *testing.T) {
	tests := map[apperr.Code]int{
		apperr.CodeValidation:      http.StatusBadRequest,
		apperr.CodeNotFound:        http.StatusNotFound,
		apperr.CodeUnauthenticated: http.StatusUnauthorized,
		apperr.CodeForbidden:       http.StatusForbidden,
		apperr.CodeConflict:        http.StatusConflict,
		apperr.CodeStorage:         http.StatusInternalServerError,
		apperr.CodeConfiguration:   http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, StatusOf(code), string(code))
	}
}

func TestErrorHidesStorageDetail(t *testing.T) {
	r := newRouter()
	r.GET("/x", func(c *gin.Context) {
		Error(c, apperr.Storage("load", errors.New("pq: connection refused")))
	})
	rec := get(r, "/x")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused")
}

func TestErrorForbiddenUsesGenericText(t *testing.T) {
	r := newRouter()
	r.GET("/x", func(c *gin.Context) {
		Error(c, apperr.New(apperr.CodeForbidden, "not_owner", "Registration 12 belongs to someone else"))
	})
	rec := get(r, "/x")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "403|"+genericForbidden, rec.Body.String())
}

func TestFailLogsOnlyUnexpectedErrors(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)
	r := newRouter()
	r.GET("/storage", func(c *gin.Context) { Fail(c, logger, "list", apperr.Storage("list", errors.New("boom"))) })
	r.GET("/missing", func(c *gin.Context) { Fail(c, logger, "get", apperr.ErrEventNotFound) })

	assert.Equal(t, http.StatusInternalServerError, get(r, "/storage").Code)
	assert.Equal(t, http.StatusNotFound, get(r, "/missing").Code)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "list failed", logs.All()[0].Message)
}

func TestFormErrorKeepsValues(t *testing.T) {
	r := newRouter()
	r.GET("/form", func(c *gin.Context) {
		FormError(c, zap.NewNop(), "form.html", apperr.ErrUsernameTaken, gin.H{"Name": "jdoe"})
	})
	r.GET("/broken", func(c *gin.Context) {
		FormError(c, zap.NewNop(), "form.html", errors.New("disk full"), gin.H{"Name": "jdoe"})
	})

	rec := get(r, "/form")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "Username already exists|jdoe|", rec.Body.String())

	rec = get(r, "/broken")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "500|")
}

func TestInvalid(t *testing.T) {
	r := newRouter()
	r.GET("/form", func(c *gin.Context) { Invalid(c, "form.html", "Title is required", nil) })
	rec := get(r, "/form")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Title is required||", rec.Body.String())
}

func TestRedirectCarriesFlash(t *testing.T) {
	r := newRouter()
	r.GET("/save", func(c *gin.Context) { Redirect(c, "/form", "Saved") })
	r.GET("/form", func(c *gin.Context) { Page(c, "form.html", gin.H{}) })

	rec := get(r, "/save")
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/form", rec.Header().Get("Location"))
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, FlashCookie, cookies[0].Name)

	rec = get(r, "/form", cookies[0])
	assert.Equal(t, "||Saved", rec.Body.String())
	cleared := rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Negative(t, cleared[0].MaxAge)
}

func TestNotFoundAndForbidden(t *testing.T) {
	r := newRouter()
	r.GET("/forbidden", Forbidden)
	r.NoRoute(NotFound)

	assert.Equal(t, http.StatusForbidden, get(r, "/forbidden").Code)
	rec := get(r, "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "404|"+genericNotFound, rec.Body.String())
}
