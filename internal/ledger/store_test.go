package ledger

import (
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"contest_ledger/internal/domain"
)

func TestAtomicRetriesConflicts(t *testing.T) {
	f := newFixture(t)
	calls := 0
	err := f.svc.store.Atomic(f.ctx, func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("wallet: %w", ErrConflict)
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestAtomicStopsOnPermanentError(t *testing.T) {
	f := newFixture(t)
	calls := 0
	err := f.svc.store.Atomic(f.ctx, func(tx *gorm.DB) error {
		calls++
		return ErrInsufficientFunds
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, 1, calls)
}

func TestAtomicGivesUpAfterMaxRetries(t *testing.T) {
	f := newFixture(t)
	calls := 0
	err := f.svc.store.Atomic(f.ctx, func(tx *gorm.DB) error {
		calls++
		return ErrConflict
	})
	require.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, 6, calls)
}

func TestAtomicRollsBack(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "100")
	err := f.svc.store.Atomic(f.ctx, func(tx *gorm.DB) error {
		w, err := loadWallet(tx, "alice")
		if err != nil {
			return err
		}
		w.WalletBalance = dec("0")
		if err := saveWallet(tx, w, w.LastUpdated); err != nil {
			return err
		}
		return ErrValidation
	})
	require.ErrorIs(t, err, ErrValidation)
	assert.True(t, f.walletBalance("alice").Equal(dec("100")))
}

func TestSaveWalletDetectsStaleVersion(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "100")
	var w domain.Wallet
	require.NoError(t, f.db.Where("user_id = ?", "alice").First(&w).Error)

	stale := w
	w.WalletBalance = dec("90")
	require.NoError(t, saveWallet(f.db, &w, w.LastUpdated))

	stale.WalletBalance = dec("10")
	err := saveWallet(f.db, &stale, stale.LastUpdated)
	require.ErrorIs(t, err, ErrConflict)
	assert.True(t, f.walletBalance("alice").Equal(dec("90")))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(fmt.Errorf("x: %w", ErrConflict)))
	assert.True(t, retryable(&mysql.MySQLError{Number: mysqlDeadlock}))
	assert.True(t, retryable(&mysql.MySQLError{Number: mysqlLockWaitTimeout}))
	assert.False(t, retryable(&mysql.MySQLError{Number: 1062}))
	assert.False(t, retryable(errors.New("boom")))
	assert.False(t, retryable(errStaleRanking))
}

// A write that lands between loadWallet and saveWallet inside a real
// operation must fail the version check and rerun the whole unit.
func TestCollectFeeRetriesAfterInterleavedWalletWrite(t *testing.T) {
	f := newFixture(t)
	f.user("alice", "500")
	tr := f.tournament(NewTournament{Fee: dec("100")})

	attempts, bumps := 0, 0
	err := f.db.Callback().Update().Before("gorm:update").Register("test:interleave", func(tx *gorm.DB) {
		if tx.Statement.Table != "wallets" {
			return
		}
		attempts++
		if bumps > 0 {
			return
		}
		bumps++
		// another writer moves the row on after it was read
		tx.AddError(tx.Session(&gorm.Session{NewDB: true}).
			Exec("UPDATE wallets SET version = version + 1 WHERE user_id = ?", "alice").Error)
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.db.Callback().Update().Remove("test:interleave") })

	tx, err := f.svc.CollectTournamentFee(f.ctx, "alice", tr.ID, dec("100"))
	require.NoError(t, err)
	assert.Equal(t, domain.TxTournamentFee, tx.Type)
	assert.Equal(t, 1, bumps)
	assert.Equal(t, 2, attempts)

	assert.True(t, f.walletBalance("alice").Equal(dec("400")))
	assert.True(t, f.reloadTournament(tr.ID).PrizePool.Equal(dec("100")))
	var n int64
	require.NoError(t, f.db.Model(&domain.Transaction{}).
		Where("type = ? AND user_id = ?", domain.TxTournamentFee, "alice").Count(&n).Error)
	assert.EqualValues(t, 1, n)
}
