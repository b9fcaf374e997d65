package surveys

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/middleware"
	"github.com/intex-outreach/backend/pkg/response"
	"github.com/intex-outreach/backend/pkg/utils"
)

// Form is the survey form body.
type Form struct {
	Satisfaction   string `form:"satisfaction"`
	Usefulness     string `form:"usefulness"`
	Instructor     string `form:"instructor"`
	Recommendation string `form:"recommendation"`
}

// Value returns the submitted score for a field name.
func (f Form) Value(name string) string {
	switch name {
	case "satisfaction":
		return f.Satisfaction
	case "usefulness":
		return f.Usefulness
	case "instructor":
		return f.Instructor
	case "recommendation":
		return f.Recommendation
	}
	return ""
}

// Scores parses the form.
func (f *Form) Scores() (Scores, error) {
	return ParseScores(f.Satisfaction, f.Usefulness, f.Instructor, f.Recommendation)
}

func formFromScores(s Scores) Form {
	return Form{
		Satisfaction:   strconv.Itoa(s.Satisfaction),
		Usefulness:     strconv.Itoa(s.Usefulness),
		Instructor:     strconv.Itoa(s.Instructor),
		Recommendation: strconv.Itoa(s.Recommendation),
	}
}

// Handler handles survey pages.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates a survey handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, logger: logger}
}

// New handles GET /registrations/:id/survey.
func (h *Handler) New(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	reg, err := h.svc.Form(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		response.Fail(c, h.logger, "survey form", err)
		return
	}
	response.Page(c, "survey_form.html", gin.H{"Registration": reg, "Form": Form{}})
}

// Submit handles POST /registrations/:id/survey.
func (h *Handler) Submit(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	var form Form
	_ = c.ShouldBind(&form)
	ctx := c.Request.Context()
	actor := middleware.ActorFrom(c)
	scores, err := form.Scores()
	if err == nil {
		_, err = h.svc.Submit(ctx, actor, id, scores)
	}
	if err != nil {
		reg, lookupErr := h.svc.Form(ctx, actor, id)
		if lookupErr != nil {
			response.Fail(c, h.logger, "submit survey", err)
			return
		}
		response.FormError(c, h.logger, "survey_form.html", err, gin.H{"Registration": reg, "Form": form})
		return
	}
	response.Redirect(c, "/registrations", "Thanks for your feedback")
}

// List handles GET /admin/surveys.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), middleware.ActorFrom(c))
	if err != nil {
		response.Fail(c, h.logger, "list surveys", err)
		return
	}
	response.Page(c, "surveys_list.html", gin.H{"Surveys": list})
}

// Show handles GET /admin/surveys/:id.
func (h *Handler) Show(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	e, err := h.svc.Get(c.Request.Context(), middleware.ActorFrom(c), id)
	if err != nil {
		response.Fail(c, h.logger, "show survey", err)
		return
	}
	form := formFromScores(Scores{e.Satisfaction, e.Usefulness, e.Instructor, e.Recommendation})
	response.Page(c, "survey_show.html", gin.H{"Survey": e, "Form": form})
}

// Update handles POST /admin/surveys/:id.
func (h *Handler) Update(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	var form Form
	_ = c.ShouldBind(&form)
	ctx := c.Request.Context()
	actor := middleware.ActorFrom(c)
	scores, err := form.Scores()
	if err == nil {
		_, err = h.svc.Edit(ctx, actor, id, scores)
	}
	if err != nil {
		e, lookupErr := h.svc.Get(ctx, actor, id)
		if lookupErr != nil {
			response.Fail(c, h.logger, "edit survey", lookupErr)
			return
		}
		response.FormError(c, h.logger, "survey_show.html", err, gin.H{"Survey": e, "Form": form})
		return
	}
	response.Redirect(c, "/admin/surveys/"+strconv.FormatInt(id, 10), "Survey updated")
}

// Delete handles POST /admin/surveys/:id/delete.
func (h *Handler) Delete(c *gin.Context) {
	id, ok := utils.ParamID(c, "id")
	if !ok {
		response.NotFound(c)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), middleware.ActorFrom(c), id); err != nil {
		response.Fail(c, h.logger, "delete survey", err)
		return
	}
	response.Redirect(c, "/admin/surveys", "Survey deleted")
}
