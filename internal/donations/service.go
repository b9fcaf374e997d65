// Package donations records gifts and keeps each account's running total
// consistent with its donation history.
package donations

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/metrics"
	"github.com/intex-outreach/backend/internal/models"
	"github.com/intex-outreach/backend/internal/validate"
)

// Ledger is the storage used inside a donation transaction.
type Ledger interface {
	LockAccount(ctx context.Context, accountID int64) (bool, error)
	SumForAccount(ctx context.Context, accountID int64) (float64, error)
	Insert(ctx context.Context, d *models.Donation) error
	InsertMetadata(ctx context.Context, m *models.SupportDonationMetadata) error
	GetForUpdate(ctx context.Context, id int64) (*models.Donation, error)
	Update(ctx context.Context, d *models.Donation) error
	Delete(ctx context.Context, id int64) error
	RecalculateTotals(ctx context.Context, accountID int64) error
	AccountByID(ctx context.Context, id int64) (*models.Account, error)
	AccountByEmail(ctx context.Context, email string) (*models.Account, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	CreateAccount(ctx context.Context, a *models.Account) error
}

// Store is the donation persistence boundary. *Repository implements it.
type Store interface {
	RunInTx(ctx context.Context, fn func(Ledger) error) error
	List(ctx context.Context, f ListFilter) ([]models.Donation, error)
	Get(ctx context.Context, id int64) (*models.Donation, error)
	Total(ctx context.Context) (float64, error)
}

// Hasher hashes generated donor passwords.
type Hasher interface {
	HashPassword(password string) (string, error)
}

// Receipts sends donation thank-you notes after commit.
type Receipts interface {
	DonationReceipt(ctx context.Context, to, name string, d *models.Donation)
}

// Donor is what a public donor may tell us about themselves.
type Donor struct {
	FirstName string
	LastName  string
	Email     string
}

// PublicDonation is a submission of the public support form.
type PublicDonation struct {
	Donor
	Amount    float64
	DonatedOn *time.Time
	Message   string
}

// Result is a committed donation and the account it was credited to.
type Result struct {
	Donation *models.Donation
	Donor    *models.Account
}

// Update holds the admin-editable donation fields.
type Update struct {
	AccountID int64
	Amount    float64
	DonatedOn time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithMetrics records donation counters.
func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

// WithReceipts enables receipt emails.
func WithReceipts(r Receipts) Option { return func(s *Service) { s.receipts = r } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.logger = l } }

// Service is the donation ledger.
type Service struct {
	store            Store
	hasher           Hasher
	anonymousDonorID int64
	receipts         Receipts
	metrics          *metrics.Metrics
	logger           *zap.Logger
	now              func() time.Time
}

// NewService creates a ledger. anonymousDonorID 0 means anonymous gifts are
// not configured.
func NewService(store Store, hasher Hasher, anonymousDonorID int64, opts ...Option) *Service {
	s := &Service{
		store:            store,
		hasher:           hasher,
		anonymousDonorID: anonymousDonorID,
		logger:           zap.NewNop(),
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) today() time.Time {
	y, m, d := s.now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func validAmount(amount float64) bool {
	return amount > 0 && !math.IsNaN(amount) && !math.IsInf(amount, 0)
}

// RecordDonation credits amount to the account in its own transaction. A nil
// date means today.
func (s *Service) RecordDonation(ctx context.Context, accountID int64, amount float64, donatedOn *time.Time) (*models.Donation, error) {
	if accountID <= 0 {
		return nil, apperr.ErrInvalidAccount
	}
	if !validAmount(amount) {
		return nil, apperr.ErrInvalidAmount
	}
	start := time.Now()
	var d *models.Donation
	err := s.store.RunInTx(ctx, func(l Ledger) error {
		var err error
		d, err = s.record(ctx, l, accountID, amount, donatedOn)
		return err
	})
	if err != nil {
		return nil, apperr.Classify("record donation", err)
	}
	s.metrics.ObserveTx("record_donation", start)
	s.metrics.DonationRecorded(d.Amount)
	return d, nil
}

// record locks the account, reads its prior total and inserts the donation
// with the new running total. Must run inside a transaction.
func (s *Service) record(ctx context.Context, l Ledger, accountID int64, amount float64, donatedOn *time.Time) (*models.Donation, error) {
	if accountID <= 0 {
		return nil, apperr.ErrInvalidAccount
	}
	found, err := l.LockAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperr.ErrAccountNotFound
	}
	prior, err := l.SumForAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	date := s.today()
	if donatedOn != nil && !donatedOn.IsZero() {
		date = *donatedOn
	}
	amount = validate.Round2(amount)
	d := &models.Donation{
		AccountID:       accountID,
		Amount:          amount,
		DonatedOn:       date,
		CumulativeTotal: validate.Round2(prior + amount),
	}
	if err := l.Insert(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

// FindOrCreateSupportUser returns the account whose email matches the donor's,
// creating a participant account when none exists.
func (s *Service) FindOrCreateSupportUser(ctx context.Context, donor Donor) (*models.Account, error) {
	var acc *models.Account
	err := s.store.RunInTx(ctx, func(l Ledger) error {
		var err error
		acc, err = s.findOrCreate(ctx, l, donor)
		return err
	})
	if err != nil {
		return nil, apperr.Classify("find or create support user", err)
	}
	return acc, nil
}

func (s *Service) findOrCreate(ctx context.Context, l Ledger, donor Donor) (*models.Account, error) {
	email := strings.TrimSpace(donor.Email)
	if email != "" {
		existing, err := l.AccountByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	base := email
	if base == "" {
		first, last := strings.TrimSpace(donor.FirstName), strings.TrimSpace(donor.LastName)
		if first == "" {
			first = "donor"
		}
		if last == "" {
			last = "supporter"
		}
		base = first + "." + last
	}
	username, err := s.uniqueUsername(ctx, l, base)
	if err != nil {
		return nil, err
	}
	password, err := randomPassword()
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.HashPassword(password)
	if err != nil {
		return nil, err
	}
	acc := &models.Account{
		Username:     username,
		PasswordHash: hash,
		Role:         models.RoleParticipant,
		FirstName:    strings.TrimSpace(donor.FirstName),
		LastName:     strings.TrimSpace(donor.LastName),
		Email:        email,
	}
	if err := l.CreateAccount(ctx, acc); err != nil {
		return nil, err
	}
	s.logger.Info("support account created", zap.Int64("account_id", acc.ID), zap.String("username", acc.Username))
	return acc, nil
}

var usernameJunk = regexp.MustCompile(`[^a-z0-9]+`)

// maxUsernameAttempts bounds the collision suffix search.
const maxUsernameAttempts = 1000

// UsernameBase lowercases s, collapses runs of other characters into dots and
// trims dots from both ends.
func UsernameBase(s string) string {
	return strings.Trim(usernameJunk.ReplaceAllString(strings.ToLower(s), "."), ".")
}

func (s *Service) uniqueUsername(ctx context.Context, l Ledger, raw string) (string, error) {
	base := UsernameBase(raw)
	if base == "" {
		base = fmt.Sprintf("donor%d", s.now().UnixMilli())
	}
	candidate := base
	for i := 1; i <= maxUsernameAttempts; i++ {
		taken, err := l.UsernameExists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s%d", base, i)
	}
	return "", apperr.ErrUsernameTaken
}

func randomPassword() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// AnonymousDonor returns the configured anonymous donor account.
func (s *Service) AnonymousDonor(ctx context.Context) (*models.Account, error) {
	var acc *models.Account
	err := s.store.RunInTx(ctx, func(l Ledger) error {
		var err error
		acc, err = s.anonymousDonor(ctx, l)
		return err
	})
	if err != nil {
		return nil, apperr.Classify("anonymous donor", err)
	}
	return acc, nil
}

func (s *Service) anonymousDonor(ctx context.Context, l Ledger) (*models.Account, error) {
	if s.anonymousDonorID <= 0 {
		return nil, apperr.ErrAnonymousDonorNotConfigured
	}
	acc, err := l.AccountByID(ctx, s.anonymousDonorID)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, apperr.Wrap(apperr.ErrAnonymousDonorNotFound,
			fmt.Errorf("account %d does not exist", s.anonymousDonorID))
	}
	return acc, nil
}

// Donate handles a public support form submission. The donor is the actor
// when logged in, else the account matching the email (created if needed),
// else the anonymous donor. Donor resolution, the donation and its metadata
// commit together.
func (s *Service) Donate(ctx context.Context, actor *models.Actor, in PublicDonation) (*Result, error) {
	if !validAmount(in.Amount) {
		return nil, apperr.ErrInvalidAmount
	}
	start := time.Now()
	res := &Result{}
	err := s.store.RunInTx(ctx, func(l Ledger) error {
		donor, err := s.resolveDonor(ctx, l, actor, in.Donor)
		if err != nil {
			return err
		}
		d, err := s.record(ctx, l, donor.ID, in.Amount, in.DonatedOn)
		if err != nil {
			return err
		}
		meta := &models.SupportDonationMetadata{
			DonationID: d.ID,
			FirstName:  strings.TrimSpace(in.FirstName),
			LastName:   strings.TrimSpace(in.LastName),
			Email:      strings.TrimSpace(in.Email),
			Message:    strings.TrimSpace(in.Message),
		}
		if !meta.IsEmpty() {
			if err := l.InsertMetadata(ctx, meta); err != nil {
				return err
			}
		}
		res.Donation, res.Donor = d, donor
		return nil
	})
	if err != nil {
		return nil, apperr.Classify("donate", err)
	}
	s.metrics.ObserveTx("donate", start)
	s.metrics.DonationRecorded(res.Donation.Amount)

	if s.receipts != nil {
		s.sendReceipt(ctx, in, res)
	}
	return res, nil
}

// sendReceipt mails the donor, falling back to the account's address. The
// shared anonymous donor account never receives receipts.
func (s *Service) sendReceipt(ctx context.Context, in PublicDonation, res *Result) {
	anonymous := s.anonymousDonorID > 0 && res.Donor.ID == s.anonymousDonorID
	to := strings.TrimSpace(in.Email)
	if to == "" && !anonymous {
		to = res.Donor.Email
	}
	if to == "" {
		return
	}
	name := strings.TrimSpace(in.FirstName)
	if name == "" && !anonymous {
		name = res.Donor.FirstName
	}
	s.receipts.DonationReceipt(ctx, to, name, res.Donation)
}

func (s *Service) resolveDonor(ctx context.Context, l Ledger, actor *models.Actor, donor Donor) (*models.Account, error) {
	if actor != nil && actor.AccountID > 0 {
		acc, err := l.AccountByID(ctx, actor.AccountID)
		if err != nil {
			return nil, err
		}
		if acc == nil {
			return nil, apperr.ErrAccountNotFound
		}
		return acc, nil
	}
	if strings.TrimSpace(donor.Email) != "" {
		return s.findOrCreate(ctx, l, donor)
	}
	return s.anonymousDonor(ctx, l)
}

func requireAdmin(actor *models.Actor) error {
	if actor == nil {
		return apperr.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		return apperr.ErrUnauthorized
	}
	return nil
}

// Create records a donation for an existing account on behalf of an admin.
func (s *Service) Create(ctx context.Context, actor *models.Actor, accountID int64, amount float64, donatedOn *time.Time) (*models.Donation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	return s.RecordDonation(ctx, accountID, amount, donatedOn)
}

// Edit changes a donation and recomputes the running totals of every account
// it touches.
func (s *Service) Edit(ctx context.Context, actor *models.Actor, id int64, in Update) (*models.Donation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if in.AccountID <= 0 {
		return nil, apperr.ErrInvalidAccount
	}
	if !validAmount(in.Amount) {
		return nil, apperr.ErrInvalidAmount
	}
	var out *models.Donation
	err := s.store.RunInTx(ctx, func(l Ledger) error {
		d, err := l.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return apperr.ErrDonationNotFound
		}
		oldAccount := d.AccountID
		if err := lockInOrder(ctx, l, oldAccount, in.AccountID); err != nil {
			return err
		}
		d.AccountID = in.AccountID
		d.Amount = validate.Round2(in.Amount)
		d.DonatedOn = in.DonatedOn
		if err := l.Update(ctx, d); err != nil {
			return err
		}
		if err := l.RecalculateTotals(ctx, oldAccount); err != nil {
			return err
		}
		if in.AccountID != oldAccount {
			if err := l.RecalculateTotals(ctx, in.AccountID); err != nil {
				return err
			}
		}
		out = d
		return nil
	})
	if err != nil {
		return nil, apperr.Classify("edit donation", err)
	}
	return out, nil
}

// Remove deletes a donation and recomputes the owner's running totals.
func (s *Service) Remove(ctx context.Context, actor *models.Actor, id int64) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	err := s.store.RunInTx(ctx, func(l Ledger) error {
		d, err := l.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if d == nil {
			return apperr.ErrDonationNotFound
		}
		if _, err := l.LockAccount(ctx, d.AccountID); err != nil {
			return err
		}
		if err := l.Delete(ctx, id); err != nil {
			return err
		}
		return l.RecalculateTotals(ctx, d.AccountID)
	})
	return apperr.Classify("delete donation", err)
}

// lockInOrder locks both accounts lowest id first so concurrent edits cannot
// deadlock.
func lockInOrder(ctx context.Context, l Ledger, a, b int64) error {
	ids := []int64{a}
	if b != a {
		if b < a {
			ids = []int64{b, a}
		} else {
			ids = append(ids, b)
		}
	}
	for _, id := range ids {
		found, err := l.LockAccount(ctx, id)
		if err != nil {
			return err
		}
		if !found {
			return apperr.ErrAccountNotFound
		}
	}
	return nil
}

// List returns donations. Admins see everything; others only their own.
func (s *Service) List(ctx context.Context, actor *models.Actor, f ListFilter) ([]models.Donation, error) {
	if actor == nil {
		return nil, apperr.ErrUnauthenticated
	}
	if !actor.IsAdmin() {
		f.AccountID = actor.AccountID
	}
	list, err := s.store.List(ctx, f)
	if err != nil {
		return nil, apperr.Storage("list donations", err)
	}
	return list, nil
}

// Get returns one donation for an admin.
func (s *Service) Get(ctx context.Context, actor *models.Actor, id int64) (*models.Donation, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, apperr.Storage("get donation", err)
	}
	if d == nil {
		return nil, apperr.ErrDonationNotFound
	}
	return d, nil
}

// Total returns the sum of all donations.
func (s *Service) Total(ctx context.Context) (float64, error) {
	t, err := s.store.Total(ctx)
	if err != nil {
		return 0, apperr.Storage("donation total", err)
	}
	return t, nil
}
