package users

import (
	"io"
	"strings"

	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/internal/validate"
)

// ProfileForm is what an account may change about itself.
type ProfileForm struct {
	Username          string `form:"username" binding:"max=50"`
	Password          string `form:"password" binding:"max=72"`
	FirstName         string `form:"first_name" binding:"max=100"`
	LastName          string `form:"last_name" binding:"max=100"`
	Email             string `form:"email" binding:"max=254"`
	DateOfBirth       string `form:"date_of_birth"`
	Phone             string `form:"phone"`
	City              string `form:"city" binding:"max=100"`
	State             string `form:"state" binding:"max=50"`
	Zip               string `form:"zip"`
	SchoolOrEmployer  string `form:"school_or_employer" binding:"max=200"`
	FieldOfInterest   string `form:"field_of_interest" binding:"max=200"`
	GuardianFirstName string `form:"guardian_first_name" binding:"max=100"`
	GuardianLastName  string `form:"guardian_last_name" binding:"max=100"`
	GuardianEmail     string `form:"guardian_email" binding:"max=254"`
}

// AdminForm adds the role to the profile fields.
type AdminForm struct {
	ProfileForm
	Role string `form:"role"`
}

// Upload is an optional photo file.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Apply validates the form onto acc. Blank optional fields clear the stored
// value. Password is returned trimmed and is empty when unchanged.
func (f *ProfileForm) Apply(acc *models.Account) (password string, errs validate.Errors) {
	username, ok := validate.Text(f.Username)
	errs.Check(ok, "Username is required")
	errs.Check(len(username) <= 50, "Username must be at most 50 characters")
	acc.Username = username

	optional := func(raw string, parse func(string) (string, bool), msg string) string {
		if !validate.HasText(raw) {
			return ""
		}
		v, ok := parse(raw)
		errs.Check(ok, msg)
		return v
	}
	acc.Email = optional(f.Email, validate.Email, "Please enter a valid email address")
	acc.Phone = optional(f.Phone, validate.Phone, "Phone number must have at least 10 digits")
	acc.Zip = optional(f.Zip, validate.Zip, "ZIP code must have 5 or 9 digits")
	acc.GuardianEmail = optional(f.GuardianEmail, validate.Email, "Please enter a valid guardian email address")

	acc.DateOfBirth = nil
	if validate.HasText(f.DateOfBirth) {
		dob, ok := validate.ParseISODate(f.DateOfBirth)
		errs.Check(ok, "Date of birth must be a valid date (YYYY-MM-DD)")
		if ok {
			acc.DateOfBirth = &dob
		}
	}

	acc.FirstName = strings.TrimSpace(f.FirstName)
	acc.LastName = strings.TrimSpace(f.LastName)
	acc.City = strings.TrimSpace(f.City)
	acc.State = strings.TrimSpace(f.State)
	acc.SchoolOrEmployer = strings.TrimSpace(f.SchoolOrEmployer)
	acc.FieldOfInterest = strings.TrimSpace(f.FieldOfInterest)
	acc.GuardianFirstName = strings.TrimSpace(f.GuardianFirstName)
	acc.GuardianLastName = strings.TrimSpace(f.GuardianLastName)
	return strings.TrimSpace(f.Password), errs
}

// Apply validates the profile fields and the role onto acc.
func (f *AdminForm) Apply(acc *models.Account) (string, validate.Errors) {
	password, errs := f.ProfileForm.Apply(acc)
	role, ok := models.ParseRole(f.Role)
	errs.Check(ok, "Role must be admin or participant")
	acc.Role = role
	return password, errs
}

// FormFromAccount fills the form for editing.
func FormFromAccount(a *models.Account) AdminForm {
	f := AdminForm{
		ProfileForm: ProfileForm{
			Username:          a.Username,
			FirstName:         a.FirstName,
			LastName:          a.LastName,
			Email:             a.Email,
			Phone:             a.Phone,
			City:              a.City,
			State:             a.State,
			Zip:               a.Zip,
			SchoolOrEmployer:  a.SchoolOrEmployer,
			FieldOfInterest:   a.FieldOfInterest,
			GuardianFirstName: a.GuardianFirstName,
			GuardianLastName:  a.GuardianLastName,
			GuardianEmail:     a.GuardianEmail,
		},
		Role: string(a.Role),
	}
	if a.DateOfBirth != nil {
		f.DateOfBirth = a.DateOfBirth.Format("2006-01-02")
	}
	return f
}
