package donations

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/internal/validate"
)

// memState is the committed contents of the fake store.
type memState struct {
	accounts       map[int64]models.Account
	donations      map[int64]models.Donation
	meta           map[int64]models.SupportDonationMetadata
	nextAccountID  int64
	nextDonationID int64
}

func (s *memState) clone() *memState {
	c := &memState{
		accounts:       make(map[int64]models.Account, len(s.accounts)),
		donations:      make(map[int64]models.Donation, len(s.donations)),
		meta:           make(map[int64]models.SupportDonationMetadata, len(s.meta)),
		nextAccountID:  s.nextAccountID,
		nextDonationID: s.nextDonationID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.donations {
		c.donations[k] = v
	}
	for k, v := range s.meta {
		c.meta[k] = v
	}
	return c
}

// memStore serializes transactions and applies staged writes only on commit.
type memStore struct {
	mu          sync.Mutex
	state       *memState
	metadataErr error
	insertErr   error
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		accounts:       map[int64]models.Account{},
		donations:      map[int64]models.Donation{},
		meta:           map[int64]models.SupportDonationMetadata{},
		nextAccountID:  1,
		nextDonationID: 1,
	}}
}

func (m *memStore) addAccount(a models.Account) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.state.nextAccountID
	m.state.nextAccountID++
	if a.Role == "" {
		a.Role = models.RoleParticipant
	}
	m.state.accounts[a.ID] = a
	return a.ID
}

func (m *memStore) RunInTx(_ context.Context, fn func(Ledger) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.state.clone()
	if err := fn(&memLedger{st: work, store: m}); err != nil {
		return err
	}
	m.state = work
	return nil
}

func (m *memStore) donationsFor(accountID int64) []models.Donation {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Donation
	for _, d := range m.state.donations {
		if d.AccountID == accountID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]models.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Donation
	for _, d := range m.state.donations {
		if f.AccountID == 0 || d.AccountID == f.AccountID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) Get(_ context.Context, id int64) (*models.Donation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.state.donations[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (m *memStore) Total(_ context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var t float64
	for _, d := range m.state.donations {
		t += d.Amount
	}
	return validate.Round2(t), nil
}

type memLedger struct {
	st    *memState
	store *memStore
}

func (l *memLedger) LockAccount(_ context.Context, id int64) (bool, error) {
	_, ok := l.st.accounts[id]
	return ok, nil
}

func (l *memLedger) SumForAccount(_ context.Context, id int64) (float64, error) {
	var sum float64
	for _, d := range l.st.donations {
		if d.AccountID == id {
			sum += d.Amount
		}
	}
	return sum, nil
}

func (l *memLedger) Insert(_ context.Context, d *models.Donation) error {
	if l.store.insertErr != nil {
		return l.store.insertErr
	}
	d.ID = l.st.nextDonationID
	l.st.nextDonationID++
	l.st.donations[d.ID] = *d
	return nil
}

func (l *memLedger) InsertMetadata(_ context.Context, m *models.SupportDonationMetadata) error {
	if l.store.metadataErr != nil {
		return l.store.metadataErr
	}
	l.st.meta[m.DonationID] = *m
	return nil
}

func (l *memLedger) GetForUpdate(_ context.Context, id int64) (*models.Donation, error) {
	d, ok := l.st.donations[id]
	if !ok {
		return nil, nil
	}
	return &d, nil
}

func (l *memLedger) Update(_ context.Context, d *models.Donation) error {
	l.st.donations[d.ID] = *d
	return nil
}

func (l *memLedger) Delete(_ context.Context, id int64) error {
	delete(l.st.donations, id)
	delete(l.st.meta, id)
	return nil
}

func (l *memLedger) RecalculateTotals(_ context.Context, accountID int64) error {
	var ids []int64
	for id, d := range l.st.donations {
		if d.AccountID == accountID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	var running float64
	for _, id := range ids {
		d := l.st.donations[id]
		running = validate.Round2(running + d.Amount)
		d.CumulativeTotal = running
		l.st.donations[id] = d
	}
	return nil
}

func (l *memLedger) AccountByID(_ context.Context, id int64) (*models.Account, error) {
	a, ok := l.st.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (l *memLedger) AccountByEmail(_ context.Context, email string) (*models.Account, error) {
	for _, a := range l.st.accounts {
		if a.Email != "" && strings.EqualFold(a.Email, email) {
			return &a, nil
		}
	}
	return nil, nil
}

func (l *memLedger) UsernameExists(_ context.Context, username string) (bool, error) {
	for _, a := range l.st.accounts {
		if a.Username == username {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) CreateAccount(_ context.Context, a *models.Account) error {
	a.ID = l.st.nextAccountID
	l.st.nextAccountID++
	l.st.accounts[a.ID] = *a
	return nil
}

type fakeHasher struct{ plain []string }

func (h *fakeHasher) HashPassword(p string) (string, error) {
	h.plain = append(h.plain, p)
	return "$2a$04$fake" + p, nil
}

type fakeReceipts struct{ sent []string }

func (r *fakeReceipts) DonationReceipt(_ context.Context, to, _ string, _ *models.Donation) {
	r.sent = append(r.sent, to)
}

var fixedNow = time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)

func newTestService(store *memStore, anonID int64, opts ...Option) (*Service, *fakeHasher) {
	h := &fakeHasher{}
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	return NewService(store, h, anonID, opts...), h
}

var admin = &models.Actor{AccountID: 999, Username: "admin", Role: models.RoleAdmin}

func TestRecordDonationRunningTotals(t *testing.T) {
	orders := [][]float64{
		{10.10, 20.20, 0.30, 5},
		{5, 0.30, 20.20, 10.10},
		{0.01, 0.02, 99999.99},
	}
	for i, amounts := range orders {
		t.Run(fmt.Sprintf("order_%d", i), func(t *testing.T) {
			store := newMemStore()
			id := store.addAccount(models.Account{Username: "ada"})
			svc, _ := newTestService(store, 0)

			var want float64
			var last *models.Donation
			for _, amt := range amounts {
				d, err := svc.RecordDonation(context.Background(), id, amt, nil)
				require.NoError(t, err)
				want += amt
				assert.Equal(t, validate.Round2(want), d.CumulativeTotal)
				last = d
			}
			assert.Equal(t, validate.Round2(want), last.CumulativeTotal)
			assert.Len(t, store.donationsFor(id), len(amounts))
		})
	}
}

func TestRecordDonationDefaultsDateToToday(t *testing.T) {
	store := newMemStore()
	id := store.addAccount(models.Account{Username: "ada"})
	svc, _ := newTestService(store, 0)

	d, err := svc.RecordDonation(context.Background(), id, 25, nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC), d.DonatedOn)

	when := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	d, err = svc.RecordDonation(context.Background(), id, 25, &when)
	require.NoError(t, err)
	assert.Equal(t, when, d.DonatedOn)
}

func TestRecordDonationRejectsMissingAccount(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store, 0)

	_, err := svc.RecordDonation(context.Background(), 0, 10, nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidAccount)
	assert.True(t, apperr.HasCode(err, apperr.CodeValidation))

	_, err = svc.RecordDonation(context.Background(), 42, 10, nil)
	assert.ErrorIs(t, err, apperr.ErrAccountNotFound)
	assert.Empty(t, store.donationsFor(42))
}

func TestRecordDonationRejectsBadAmount(t *testing.T) {
	store := newMemStore()
	id := store.addAccount(models.Account{Username: "ada"})
	svc, _ := newTestService(store, 0)

	for _, amt := range []float64{0, -5} {
		_, err := svc.RecordDonation(context.Background(), id, amt, nil)
		assert.ErrorIs(t, err, apperr.ErrInvalidAmount)
	}
}

func TestRecordDonationConcurrentTotalsStrictlyIncrease(t *testing.T) {
	store := newMemStore()
	id := store.addAccount(models.Account{Username: "ada"})
	svc, _ := newTestService(store, 0)

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.RecordDonation(context.Background(), id, 2.5, nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rows := store.donationsFor(id)
	require.Len(t, rows, n)
	for i, d := range rows {
		assert.Equal(t, validate.Round2(2.5*float64(i+1)), d.CumulativeTotal)
	}
}

func TestRecordDonationStorageFailureIsClassified(t *testing.T) {
	store := newMemStore()
	id := store.addAccount(models.Account{Username: "ada"})
	store.insertErr = errors.New("disk full")
	svc, _ := newTestService(store, 0)

	_, err := svc.RecordDonation(context.Background(), id, 10, nil)
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeStorage))
	assert.NotContains(t, apperr.MessageOf(err), "disk full")
}

func TestFindOrCreateSupportUserMatchesEmailCaseInsensitively(t *testing.T) {
	store := newMemStore()
	id := store.addAccount(models.Account{Username: "jane", Email: "Jane@Example.org"})
	svc, h := newTestService(store, 0)

	acc, err := svc.FindOrCreateSupportUser(context.Background(), Donor{Email: "jane@example.ORG"})
	require.NoError(t, err)
	assert.Equal(t, id, acc.ID)
	assert.Empty(t, h.plain)
}

func TestFindOrCreateSupportUserCreatesParticipant(t *testing.T) {
	store := newMemStore()
	store.addAccount(models.Account{Username: "new.donor.example.org"})
	svc, h := newTestService(store, 0)

	acc, err := svc.FindOrCreateSupportUser(context.Background(), Donor{FirstName: "New", LastName: "Donor", Email: "New.Donor@example.org"})
	require.NoError(t, err)
	assert.Equal(t, "new.donor.example.org1", acc.Username)
	assert.Equal(t, models.RoleParticipant, acc.Role)
	assert.Equal(t, "New.Donor@example.org", acc.Email)

	require.Len(t, h.plain, 1)
	assert.Len(t, h.plain[0], 16)
	assert.NotContains(t, acc.PasswordHash, "New")
	assert.True(t, strings.HasPrefix(acc.PasswordHash, "$2a$"))
}

func TestFindOrCreateSupportUserNameFallbacks(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store, 0)

	acc, err := svc.FindOrCreateSupportUser(context.Background(), Donor{FirstName: "Mary Ann", LastName: "O'Neil"})
	require.NoError(t, err)
	assert.Equal(t, "mary.ann.o.neil", acc.Username)

	acc, err = svc.FindOrCreateSupportUser(context.Background(), Donor{})
	require.NoError(t, err)
	assert.Equal(t, "donor.supporter", acc.Username)

	acc, err = svc.FindOrCreateSupportUser(context.Background(), Donor{})
	require.NoError(t, err)
	assert.Equal(t, "donor.supporter1", acc.Username)
}

func TestUsernameBase(t *testing.T) {
	assert.Equal(t, "weird.name", UsernameBase("  Weird__Name!! "))
	assert.Equal(t, "a.b.example.com", UsernameBase("A.B@Example.com"))
	assert.Equal(t, "", UsernameBase("!!!"))
}

func TestUniqueUsernameFallsBackToTimestamp(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store, 0)

	var name string
	err := store.RunInTx(context.Background(), func(l Ledger) error {
		var err error
		name, err = svc.uniqueUsername(context.Background(), l, "@@@")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("donor%d", fixedNow.UnixMilli()), name)
}

func TestAnonymousDonor(t *testing.T) {
	store := newMemStore()
	anonID := store.addAccount(models.Account{Username: "anonymous"})

	svc, _ := newTestService(store, 0)
	_, err := svc.AnonymousDonor(context.Background())
	assert.ErrorIs(t, err, apperr.ErrAnonymousDonorNotConfigured)
	assert.True(t, apperr.HasCode(err, apperr.CodeConfiguration))

	svc, _ = newTestService(store, anonID+100)
	_, err = svc.AnonymousDonor(context.Background())
	assert.ErrorIs(t, err, apperr.ErrAnonymousDonorNotFound)
	assert.True(t, apperr.HasCode(err, apperr.CodeNotFound))

	svc, _ = newTestService(store, anonID)
	acc, err := svc.AnonymousDonor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, anonID, acc.ID)
}

func TestDonateAsLoggedInAccount(t *testing.T) {
	store := newMemStore()
	id := store.addAccount(models.Account{Username: "ada", Email: "ada@example.org", FirstName: "Ada"})
	receipts := &fakeReceipts{}
	svc, _ := newTestService(store, 0, WithReceipts(receipts))

	res, err := svc.Donate(context.Background(), &models.Actor{AccountID: id, Role: models.RoleParticipant}, PublicDonation{Amount: 40})
	require.NoError(t, err)
	assert.Equal(t, id, res.Donor.ID)
	assert.Equal(t, 40.0, res.Donation.CumulativeTotal)
	assert.Equal(t, []string{"ada@example.org"}, receipts.sent)
	assert.Empty(t, store.state.meta)
}

func TestDonateAsGuestWithEmailCreatesAccountAndMetadata(t *testing.T) {
	store := newMemStore()
	receipts := &fakeReceipts{}
	svc, _ := newTestService(store, 0, WithReceipts(receipts))

	res, err := svc.Donate(context.Background(), nil, PublicDonation{
		Donor:   Donor{FirstName: "Grace", LastName: "Hopper", Email: "grace@example.org"},
		Amount:  12.346,
		Message: "Keep it up",
	})
	require.NoError(t, err)
	assert.Equal(t, "grace.example.org", res.Donor.Username)
	assert.Equal(t, 12.35, res.Donation.Amount)

	meta, ok := store.state.meta[res.Donation.ID]
	require.True(t, ok)
	assert.Equal(t, "Keep it up", meta.Message)
	assert.Equal(t, []string{"grace@example.org"}, receipts.sent)
}

func TestDonateAnonymously(t *testing.T) {
	store := newMemStore()
	anonID := store.addAccount(models.Account{Username: "anonymous"})
	svc, _ := newTestService(store, anonID)

	res, err := svc.Donate(context.Background(), nil, PublicDonation{Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, anonID, res.Donor.ID)
}

func TestDonateAnonymouslySendsNoReceipt(t *testing.T) {
	store := newMemStore()
	anonID := store.addAccount(models.Account{Username: "anonymous", Email: "office@example.org", FirstName: "Office"})
	receipts := &fakeReceipts{}
	svc, _ := newTestService(store, anonID, WithReceipts(receipts))

	res, err := svc.Donate(context.Background(), nil, PublicDonation{Amount: 5})
	require.NoError(t, err)
	assert.Equal(t, anonID, res.Donor.ID)
	assert.Empty(t, receipts.sent)
}

func TestDonateAnonymouslyWithoutConfiguration(t *testing.T) {
	store := newMemStore()
	svc, _ := newTestService(store, 0)

	_, err := svc.Donate(context.Background(), nil, PublicDonation{Amount: 5})
	assert.ErrorIs(t, err, apperr.ErrAnonymousDonorNotConfigured)
	assert.Empty(t, store.state.donations)
}

func TestDonateRollsBackEverythingOnFailure(t *testing.T) {
	store := newMemStore()
	store.metadataErr = errors.New("constraint violation")
	receipts := &fakeReceipts{}
	svc, _ := newTestService(store, 0, WithReceipts(receipts))

	_, err := svc.Donate(context.Background(), nil, PublicDonation{
		Donor:  Donor{Email: "new@example.org"},
		Amount: 20,
	})
	require.Error(t, err)
	assert.True(t, apperr.HasCode(err, apperr.CodeStorage))
	assert.Empty(t, store.state.donations)
	assert.Empty(t, store.state.accounts)
	assert.Empty(t, receipts.sent)
}

func TestAdminEditRecalculatesTotals(t *testing.T) {
	store := newMemStore()
	a := store.addAccount(models.Account{Username: "a"})
	b := store.addAccount(models.Account{Username: "b"})
	svc, _ := newTestService(store, 0)
	ctx := context.Background()

	d1, err := svc.Create(ctx, admin, a, 10, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, admin, a, 20, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, admin, b, 5, nil)
	require.NoError(t, err)

	_, err = svc.Edit(ctx, admin, d1.ID, Update{AccountID: a, Amount: 15, DonatedOn: fixedNow})
	require.NoError(t, err)
	rows := store.donationsFor(a)
	require.Len(t, rows, 2)
	assert.Equal(t, 15.0, rows[0].CumulativeTotal)
	assert.Equal(t, 35.0, rows[1].CumulativeTotal)

	_, err = svc.Edit(ctx, admin, d1.ID, Update{AccountID: b, Amount: 15, DonatedOn: fixedNow})
	require.NoError(t, err)
	rows = store.donationsFor(a)
	require.Len(t, rows, 1)
	assert.Equal(t, 20.0, rows[0].CumulativeTotal)
	rows = store.donationsFor(b)
	require.Len(t, rows, 2)
	assert.Equal(t, 15.0, rows[0].CumulativeTotal)
	assert.Equal(t, 20.0, rows[1].CumulativeTotal)
}

func TestAdminRemoveRecalculatesTotals(t *testing.T) {
	store := newMemStore()
	a := store.addAccount(models.Account{Username: "a"})
	svc, _ := newTestService(store, 0)
	ctx := context.Background()

	d1, err := svc.Create(ctx, admin, a, 10, nil)
	require.NoError(t, err)
	_, err = svc.Create(ctx, admin, a, 20, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, admin, d1.ID))
	rows := store.donationsFor(a)
	require.Len(t, rows, 1)
	assert.Equal(t, 20.0, rows[0].CumulativeTotal)

	assert.ErrorIs(t, svc.Remove(ctx, admin, d1.ID), apperr.ErrDonationNotFound)
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	store := newMemStore()
	a := store.addAccount(models.Account{Username: "a"})
	svc, _ := newTestService(store, 0)
	participant := &models.Actor{AccountID: a, Role: models.RoleParticipant}
	ctx := context.Background()

	_, err := svc.Create(ctx, participant, a, 10, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	_, err = svc.Edit(ctx, participant, 1, Update{AccountID: a, Amount: 1})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	assert.ErrorIs(t, svc.Remove(ctx, participant, 1), apperr.ErrUnauthorized)
	_, err = svc.Create(ctx, nil, a, 10, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}

func TestListScopesParticipantsToOwnDonations(t *testing.T) {
	store := newMemStore()
	a := store.addAccount(models.Account{Username: "a"})
	b := store.addAccount(models.Account{Username: "b"})
	svc, _ := newTestService(store, 0)
	ctx := context.Background()

	_, err := svc.RecordDonation(ctx, a, 1, nil)
	require.NoError(t, err)
	_, err = svc.RecordDonation(ctx, b, 2, nil)
	require.NoError(t, err)

	list, err := svc.List(ctx, &models.Actor{AccountID: a, Role: models.RoleParticipant}, ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, a, list[0].AccountID)

	list, err = svc.List(ctx, admin, ListFilter{})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	total, err := svc.Total(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3.0, total)
}
