//go:build integration

package donations

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intex-outreach/backend/internal/apperr"
	"github.com/intex-outreach/backend/internal/users"
	"github.com/intex-outreach/backend/internal/validate"
	"github.com/intex-outreach/backend/pkg/testutil/containers"
)

func TestConcurrentDonationsKeepRunningTotalPostgres(t *testing.T) {
	ctx := context.Background()
	pool := containers.NewPostgres(t)

	var accountID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash) VALUES ('donor', 'x') RETURNING id`).Scan(&accountID))

	svc := NewService(NewRepository(pool), nil, 0)
	const n = 25
	amounts := make([]float64, n)
	var want float64
	for i := range amounts {
		amounts[i] = validate.Round2(1 + float64(i)*0.37)
		want += amounts[i]
	}

	var wg sync.WaitGroup
	for _, amount := range amounts {
		wg.Add(1)
		go func(amount float64) {
			defer wg.Done()
			_, err := svc.RecordDonation(ctx, accountID, amount, nil)
			assert.NoError(t, err)
		}(amount)
	}
	wg.Wait()

	rows, err := pool.Query(ctx,
		`SELECT cumulative_total::float8 FROM donations WHERE account_id = $1 ORDER BY id`, accountID)
	require.NoError(t, err)
	defer rows.Close()
	var totals []float64
	for rows.Next() {
		var total float64
		require.NoError(t, rows.Scan(&total))
		totals = append(totals, total)
	}
	require.NoError(t, rows.Err())

	require.Len(t, totals, n)
	seen := make(map[float64]bool, n)
	for i, total := range totals {
		assert.False(t, seen[total], "duplicate running total %.2f", total)
		seen[total] = true
		if i > 0 {
			assert.Greater(t, total, totals[i-1])
		}
	}
	assert.Equal(t, validate.Round2(want), totals[n-1])
}

func TestAccountDeleteRacingDonationsPostgres(t *testing.T) {
	ctx := context.Background()
	pool := containers.NewPostgres(t)

	var accountID int64
	require.NoError(t, pool.QueryRow(ctx,
		`INSERT INTO accounts (username, password_hash) VALUES ('leaving', 'x') RETURNING id`).Scan(&accountID))

	ledger := NewService(NewRepository(pool), nil, 0)
	accounts := users.NewService(users.NewRepository(pool), nil, nil, nil, nil)

	const donors = 20
	var recorded, missing atomic.Int64
	var removed users.Removed
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < donors; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := ledger.RecordDonation(ctx, accountID, 5, nil)
			switch {
			case err == nil:
				recorded.Add(1)
			case errors.Is(err, apperr.ErrAccountNotFound):
				missing.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-start
		var err error
		removed, err = accounts.DeleteAccountWithRelations(ctx, accountID)
		assert.NoError(t, err)
	}()
	close(start)
	wg.Wait()

	assert.EqualValues(t, donors, recorded.Load()+missing.Load())
	// Every donation committed before the delete took the account lock was removed with it.
	assert.EqualValues(t, recorded.Load(), removed.Donations)

	var left, exists int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM donations WHERE account_id = $1`, accountID).Scan(&left))
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM accounts WHERE id = $1`, accountID).Scan(&exists))
	assert.Zero(t, left)
	assert.Zero(t, exists)
}
