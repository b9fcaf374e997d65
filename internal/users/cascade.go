package users

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/intex-outreach/backend/internal/apperr"
)

// Tx is the storage used while deleting an account.
type Tx interface {
	LockAccount(ctx context.Context, id int64) (bool, error)
	RegistrationIDs(ctx context.Context, accountID int64) ([]int64, error)
	DeleteSurveys(ctx context.Context, registrationIDs []int64) (int64, error)
	DeleteRegistrations(ctx context.Context, accountID int64) (int64, error)
	DeleteMilestones(ctx context.Context, accountID int64) (int64, error)
	DeleteDonations(ctx context.Context, accountID int64) (int64, error)
	DeleteAccount(ctx context.Context, id int64) (int64, error)
}

// Removed counts the rows a cascade delete took with it.
type Removed struct {
	Surveys       int64
	Registrations int64
	Milestones    int64
	Donations     int64
}

// Total is the number of dependent rows removed.
func (r Removed) Total() int64 {
	return r.Surveys + r.Registrations + r.Milestones + r.Donations
}

// DeleteAccountWithRelations removes an account and every row that refers to
// it in one transaction. Any failure leaves everything in place and is
// reported as CascadeDeleteFailed.
func (s *Service) DeleteAccountWithRelations(ctx context.Context, accountID int64) (Removed, error) {
	if accountID <= 0 {
		return Removed{}, apperr.ErrInvalidAccountID
	}
	start := time.Now()
	var removed Removed
	err := s.store.RunInTx(ctx, func(tx Tx) error {
		found, err := tx.LockAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !found {
			return apperr.ErrAccountNotFound
		}
		regIDs, err := tx.RegistrationIDs(ctx, accountID)
		if err != nil {
			return err
		}
		var r Removed
		if len(regIDs) > 0 {
			if r.Surveys, err = tx.DeleteSurveys(ctx, regIDs); err != nil {
				return err
			}
		}
		if r.Registrations, err = tx.DeleteRegistrations(ctx, accountID); err != nil {
			return err
		}
		if r.Milestones, err = tx.DeleteMilestones(ctx, accountID); err != nil {
			return err
		}
		if r.Donations, err = tx.DeleteDonations(ctx, accountID); err != nil {
			return err
		}
		if _, err := tx.DeleteAccount(ctx, accountID); err != nil {
			return err
		}
		removed = r
		return nil
	})
	if err != nil {
		if apperr.HasCode(err, apperr.CodeNotFound) {
			return Removed{}, err
		}
		return Removed{}, apperr.Wrap(apperr.ErrCascadeDeleteFailed, err)
	}
	s.metrics.ObserveTx("delete_account", start)
	s.metrics.AccountDeleted()
	s.logger.Info("account deleted",
		zap.Int64("account_id", accountID),
		zap.Int64("surveys", removed.Surveys),
		zap.Int64("registrations", removed.Registrations),
		zap.Int64("milestones", removed.Milestones),
		zap.Int64("donations", removed.Donations))
	return removed, nil
}
