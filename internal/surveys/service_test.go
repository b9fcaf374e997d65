package surveys

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
)

var fixedNow = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

type memStore struct {
	mu            sync.Mutex
	registrations map[int64]models.RegistrationDetail
	surveys       map[int64]models.Survey
	nextID        int64
	insertErr     error
}

func newMemStore() *memStore {
	return &memStore{registrations: map[int64]models.RegistrationDetail{}, surveys: map[int64]models.Survey{}}
}

// memTx stages survey writes and applies them on commit.
type memTx struct {
	m         *memStore
	surveys   map[int64]models.Survey
	submitted map[int64]time.Time
	nextID    int64
}

func (m *memStore) RunInTx(ctx context.Context, fn func(Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memTx{m: m, surveys: make(map[int64]models.Survey, len(m.surveys)), submitted: map[int64]time.Time{}, nextID: m.nextID}
	for k, v := range m.surveys {
		tx.surveys[k] = v
	}
	if err := fn(tx); err != nil {
		return err
	}
	m.surveys, m.nextID = tx.surveys, tx.nextID
	for id, at := range tx.submitted {
		r := m.registrations[id]
		if r.SurveySubmittedAt == nil {
			stamp := at
			r.SurveySubmittedAt = &stamp
		}
		m.registrations[id] = r
	}
	return nil
}

func (t *memTx) RegistrationForUpdate(_ context.Context, id int64) (*models.RegistrationDetail, error) {
	r, ok := t.m.registrations[id]
	if !ok {
		return nil, nil
	}
	r.SurveyID = nil
	for _, s := range t.surveys {
		if s.RegistrationID == id {
			sid := s.ID
			r.SurveyID = &sid
		}
	}
	return &r, nil
}

func (t *memTx) Insert(_ context.Context, s *models.Survey) error {
	if t.m.insertErr != nil {
		return t.m.insertErr
	}
	t.nextID++
	s.ID = t.nextID
	t.surveys[s.ID] = *s
	return nil
}

func (t *memTx) MarkSubmitted(_ context.Context, registrationID int64, at time.Time) error {
	t.submitted[registrationID] = at
	return nil
}

func (t *memTx) GetForUpdate(_ context.Context, id int64) (*models.Survey, error) {
	s, ok := t.surveys[id]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (t *memTx) Update(_ context.Context, s *models.Survey) error {
	t.surveys[s.ID] = *s
	return nil
}

func (t *memTx) Delete(_ context.Context, id int64) error {
	delete(t.surveys, id)
	return nil
}

func (m *memStore) Registration(ctx context.Context, id int64) (*models.RegistrationDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return (&memTx{m: m, surveys: m.surveys}).RegistrationForUpdate(ctx, id)
}

func (m *memStore) Get(_ context.Context, id int64) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.surveys[id]
	if !ok {
		return nil, nil
	}
	reg := m.registrations[s.RegistrationID]
	return &Entry{Survey: s, AccountID: reg.AccountID, EventName: reg.EventName, StartsAt: reg.StartsAt}, nil
}

func (m *memStore) List(ctx context.Context) ([]Entry, error) {
	var out []Entry
	for id := range m.surveys {
		e, _ := m.Get(ctx, id)
		out = append(out, *e)
	}
	return out, nil
}

type SurveySuite struct {
	suite.Suite
	store *memStore
	svc   *Service
	owner *models.Actor
	admin *models.Actor
}

func TestSurveySuite(t *testing.T) {
	suite.Run(t, new(SurveySuite))
}

func (s *SurveySuite) SetupTest() {
	s.store = newMemStore()
	s.svc = NewService(s.store, nil, nil)
	s.svc.now = func() time.Time { return fixedNow }
	s.owner = &models.Actor{AccountID: 7, Role: models.RoleParticipant}
	s.admin = &models.Actor{AccountID: 1, Role: models.RoleAdmin}

	ended := fixedNow.Add(-time.Hour)
	s.store.registrations[10] = models.RegistrationDetail{
		Registration: models.Registration{ID: 10, AccountID: 7, OccurrenceID: 3, Attended: true},
		EventName:    "Robotics",
		StartsAt:     fixedNow.Add(-3 * time.Hour),
		EndsAt:       &ended,
	}
}

func (s *SurveySuite) TestEligibilityStates() {
	ended := fixedNow.Add(-time.Minute)
	later := fixedNow.Add(time.Hour)
	sid := int64(1)
	cases := []struct {
		name string
		reg  *models.RegistrationDetail
		want State
	}{
		{"nil", nil, NotEligible},
		{"absent", &models.RegistrationDetail{StartsAt: fixedNow.Add(-2 * time.Hour), EndsAt: &ended}, NotEligible},
		{"not over", &models.RegistrationDetail{Registration: models.Registration{Attended: true}, StartsAt: fixedNow, EndsAt: &later}, NotEligible},
		{"ends now", &models.RegistrationDetail{Registration: models.Registration{Attended: true}, StartsAt: fixedNow}, NotEligible},
		{"attended and over", &models.RegistrationDetail{Registration: models.Registration{Attended: true}, StartsAt: fixedNow.Add(-2 * time.Hour), EndsAt: &ended}, Eligible},
		{"no end uses start", &models.RegistrationDetail{Registration: models.Registration{Attended: true}, StartsAt: fixedNow.Add(-time.Hour)}, Eligible},
		{"submitted", &models.RegistrationDetail{Registration: models.Registration{Attended: true}, StartsAt: fixedNow.Add(-time.Hour), SurveyID: &sid}, Submitted},
		{"survey row removed", &models.RegistrationDetail{Registration: models.Registration{Attended: true, SurveySubmittedAt: &ended}, StartsAt: fixedNow.Add(-time.Hour)}, Submitted},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			s.Equal(tc.want, Eligibility(tc.reg, fixedNow))
		})
	}
	s.Equal("submitted", Submitted.String())
}

func (s *SurveySuite) TestSubmitComputesOverall() {
	sv, err := s.svc.Submit(context.Background(), s.owner, 10, Scores{5, 4, 3, 2})
	s.Require().NoError(err)
	s.Equal(3.5, sv.Overall)
	s.Equal(time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), sv.SubmittedOn)
	s.Len(s.store.surveys, 1)

	reg, err := s.store.Registration(context.Background(), 10)
	s.Require().NoError(err)
	s.Equal(Submitted, Eligibility(reg, fixedNow))
}

func (s *SurveySuite) TestSubmitRejectsOutOfRangeScores() {
	for _, scores := range []Scores{{0, 4, 3, 2}, {5, 6, 3, 2}, {5, 4, 3, 0}} {
		_, err := s.svc.Submit(context.Background(), s.owner, 10, scores)
		s.ErrorIs(err, apperr.ErrInvalidScore)
		s.True(apperr.HasCode(err, apperr.CodeValidation))
	}
	s.Empty(s.store.surveys)

	_, err := s.svc.Submit(context.Background(), s.owner, 10, Scores{5, 6, 3, 2})
	s.Equal("Usefulness score must be a whole number between 1 and 5", apperr.MessageOf(err))
}

func (s *SurveySuite) TestSubmitIsTerminal() {
	_, err := s.svc.Submit(context.Background(), s.owner, 10, Scores{3, 3, 3, 3})
	s.Require().NoError(err)
	_, err = s.svc.Submit(context.Background(), s.owner, 10, Scores{5, 5, 5, 5})
	s.ErrorIs(err, apperr.ErrSurveyNotEligible)
	s.Len(s.store.surveys, 1)
}

func (s *SurveySuite) TestSubmitRequiresAttendance() {
	reg := s.store.registrations[10]
	reg.Attended = false
	s.store.registrations[10] = reg
	_, err := s.svc.Submit(context.Background(), s.owner, 10, Scores{5, 5, 5, 5})
	s.ErrorIs(err, apperr.ErrSurveyNotEligible)
}

func (s *SurveySuite) TestOwnership() {
	stranger := &models.Actor{AccountID: 99, Role: models.RoleParticipant}
	_, err := s.svc.Submit(context.Background(), stranger, 10, Scores{5, 5, 5, 5})
	s.ErrorIs(err, apperr.ErrUnauthorized)
	_, err = s.svc.Form(context.Background(), stranger, 10)
	s.ErrorIs(err, apperr.ErrUnauthorized)
	_, err = s.svc.Submit(context.Background(), nil, 10, Scores{5, 5, 5, 5})
	s.ErrorIs(err, apperr.ErrUnauthenticated)
	_, err = s.svc.Form(context.Background(), s.owner, 404)
	s.ErrorIs(err, apperr.ErrRegistrationNotFound)

	reg, err := s.svc.Form(context.Background(), s.admin, 10)
	s.Require().NoError(err)
	s.Equal("Robotics", reg.EventName)
}

func (s *SurveySuite) TestSubmitStorageFailure() {
	s.store.insertErr = errors.New("connection refused")
	_, err := s.svc.Submit(context.Background(), s.owner, 10, Scores{5, 5, 5, 5})
	s.True(apperr.HasCode(err, apperr.CodeStorage))
	s.Empty(s.store.surveys)
}

func (s *SurveySuite) TestAdminEditAndDelete() {
	sv, err := s.svc.Submit(context.Background(), s.owner, 10, Scores{1, 1, 1, 1})
	s.Require().NoError(err)

	_, err = s.svc.Edit(context.Background(), s.owner, sv.ID, Scores{5, 5, 5, 5})
	s.ErrorIs(err, apperr.ErrUnauthorized)

	edited, err := s.svc.Edit(context.Background(), s.admin, sv.ID, Scores{5, 5, 4, 4})
	s.Require().NoError(err)
	s.Equal(4.5, edited.Overall)
	s.Equal(4.5, s.store.surveys[sv.ID].Overall)

	_, err = s.svc.Edit(context.Background(), s.admin, sv.ID, Scores{5, 5, 4, 9})
	s.ErrorIs(err, apperr.ErrInvalidScore)

	list, err := s.svc.List(context.Background(), s.admin)
	s.Require().NoError(err)
	s.Len(list, 1)

	s.Require().NoError(s.svc.Delete(context.Background(), s.admin, sv.ID))
	s.ErrorIs(s.svc.Delete(context.Background(), s.admin, sv.ID), apperr.ErrSurveyNotFound)
	_, err = s.svc.Get(context.Background(), s.admin, sv.ID)
	s.ErrorIs(err, apperr.ErrSurveyNotFound)
}

func (s *SurveySuite) TestAdminDeleteDoesNotReopenSurvey() {
	sv, err := s.svc.Submit(context.Background(), s.owner, 10, Scores{5, 4, 3, 2})
	s.Require().NoError(err)
	s.Require().NotNil(s.store.registrations[10].SurveySubmittedAt)

	s.Require().NoError(s.svc.Delete(context.Background(), s.admin, sv.ID))
	s.Empty(s.store.surveys)

	reg, err := s.store.Registration(context.Background(), 10)
	s.Require().NoError(err)
	s.Equal(Submitted, Eligibility(reg, fixedNow))

	_, err = s.svc.Submit(context.Background(), s.owner, 10, Scores{1, 1, 1, 1})
	s.ErrorIs(err, apperr.ErrSurveyNotEligible)
	_, err = s.svc.Form(context.Background(), s.owner, 10)
	s.ErrorIs(err, apperr.ErrSurveyNotEligible)
	s.Empty(s.store.surveys)
}

func (s *SurveySuite) TestParseScores() {
	sc, err := ParseScores("5", " 4 ", "3", "2")
	s.Require().NoError(err)
	s.Equal(Scores{5, 4, 3, 2}, sc)

	_, err = ParseScores("5", "4", "", "2")
	s.Equal("Instructor score must be a whole number between 1 and 5", apperr.MessageOf(err))
	_, err = ParseScores("5", "4", "3", "2.5")
	s.ErrorIs(err, apperr.ErrInvalidScore)
}
