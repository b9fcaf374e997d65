package surveys

import (
	"time"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/internal/validate"
)

// State is where a registration stands with respect to its survey.
type State int

const (
	NotEligible State = iota
	Eligible
	Submitted
)

func (s State) String() string {
	switch s {
	case Eligible:
		return "eligible"
	case Submitted:
		return "submitted"
	default:
		return "not_eligible"
	}
}

// Eligibility reports the survey state of a registration at now. A survey
// opens once the participant attended and the event has ended; an occurrence
// without an end time ends when it starts. Submitted is terminal.
func Eligibility(reg *models.RegistrationDetail, now time.Time) State {
	if reg == nil {
		return NotEligible
	}
	if reg.SurveyID != nil || reg.SurveySubmittedAt != nil {
		return Submitted
	}
	if !reg.Attended {
		return NotEligible
	}
	end := reg.StartsAt
	if reg.EndsAt != nil {
		end = *reg.EndsAt
	}
	if !end.Before(now) {
		return NotEligible
	}
	return Eligible
}

// Scores are the four rated answers of a survey.
type Scores struct {
	Satisfaction   int
	Usefulness     int
	Instructor     int
	Recommendation int
}

func (s Scores) fields() []struct {
	name  string
	value int
} {
	return []struct {
		name  string
		value int
	}{
		{"Satisfaction", s.Satisfaction},
		{"Usefulness", s.Usefulness},
		{"Instructor", s.Instructor},
		{"Recommendation", s.Recommendation},
	}
}

// Validate returns InvalidScore naming the first field outside 1..5.
func (s Scores) Validate() error {
	for _, f := range s.fields() {
		if f.value < 1 || f.value > 5 {
			return apperr.InvalidScore(f.name)
		}
	}
	return nil
}

// Overall is the mean of the four scores.
func (s Scores) Overall() float64 {
	return float64(s.Satisfaction+s.Usefulness+s.Instructor+s.Recommendation) / 4
}

// ParseScores reads submitted score strings in form order.
func ParseScores(satisfaction, usefulness, instructor, recommendation string) (Scores, error) {
	var out Scores
	in := []struct {
		name string
		raw  string
		dst  *int
	}{
		{"Satisfaction", satisfaction, &out.Satisfaction},
		{"Usefulness", usefulness, &out.Usefulness},
		{"Instructor", instructor, &out.Instructor},
		{"Recommendation", recommendation, &out.Recommendation},
	}
	for _, f := range in {
		n, ok := validate.Int(f.raw, validate.Min(1), validate.Max(5))
		if !ok {
			return Scores{}, apperr.InvalidScore(f.name)
		}
		*f.dst = n
	}
	return out, nil
}

func (s Scores) apply(sv *models.Survey) {
	sv.Satisfaction = s.Satisfaction
	sv.Usefulness = s.Usefulness
	sv.Instructor = s.Instructor
	sv.Recommendation = s.Recommendation
	sv.Overall = s.Overall()
}
