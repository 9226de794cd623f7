package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest_ledger/internal/domain"
)

// MySQL error numbers worth retrying.
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// RetryPolicy bounds the exponential backoff used when a transaction hits a
// write conflict.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// DefaultRetryPolicy is used when no policy is configured.
var DefaultRetryPolicy = RetryPolicy{
	MaxRetries:      8,
	InitialInterval: 20 * time.Millisecond,
	MaxInterval:     time.Second,
}

// Store runs ledger work as atomic units against the database. Rows that
// can be modified concurrently carry a version column; every write checks
// the version it read, so a concurrent writer makes the transaction fail
// with ErrConflict and the whole unit is retried.
type Store struct {
	db     *gorm.DB
	policy RetryPolicy
}

// NewStore wraps db.
func NewStore(db *gorm.DB, policy RetryPolicy) *Store {
	if policy.MaxRetries == 0 {
		policy = DefaultRetryPolicy
	}
	return &Store{db: db, policy: policy}
}

// DB exposes the underlying handle for read-only queries.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Atomic runs fn in a single database transaction. Conflicts and deadlocks
// abort the transaction and run fn again after a backoff; any other error
// is returned as is. fn must not keep state between attempts.
func (s *Store) Atomic(ctx context.Context, fn func(tx *gorm.DB) error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.policy.InitialInterval
	eb.MaxInterval = s.policy.MaxInterval
	eb.MaxElapsedTime = 0 // Bounded by MaxRetries instead
	b := backoff.WithContext(backoff.WithMaxRetries(eb, s.policy.MaxRetries), ctx)

	return backoff.Retry(func() error {
		err := s.db.WithContext(ctx).Transaction(fn) // Rolled back on error
		if err == nil || retryable(err) {
			return err
		}
		return backoff.Permanent(err) // Stop retrying
	}, b)
}

func retryable(err error) bool {
	if errors.Is(err, ErrConflict) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlock || myErr.Number == mysqlLockWaitTimeout
	}
	return false
}

// updateVersioned writes fields to the row matched by pk only if its version
// is still the one that was read.
func updateVersioned(tx *gorm.DB, model any, where string, pk []any, version int64, fields map[string]any) error {
	fields["version"] = version + 1 // Bump on every write
	args := append(pk, version)
	res := tx.Model(model).Where(where+" AND version = ?", args...).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	// Someone else wrote the row since it was read
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func forUpdate(tx *gorm.DB) *gorm.DB {
	// sqlite has no row locks; its transactions are serialized anyway
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func loadWallet(tx *gorm.DB, userID string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := forUpdate(tx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: wallet for user %q", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func saveWallet(tx *gorm.DB, w *domain.Wallet, now time.Time) error {
	err := updateVersioned(tx, &domain.Wallet{}, "user_id = ?", []any{w.UserID}, w.Version, map[string]any{
		"wallet_balance": w.WalletBalance,
		"last_updated":   now,
	})
	if err != nil {
		return err
	}
	w.Version++
	w.LastUpdated = now
	return nil
}

func loadTreasury(tx *gorm.DB) (*domain.TreasuryAccount, error) {
	var t domain.TreasuryAccount
	err := forUpdate(tx).Where("id = ?", domain.TreasuryMainID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: treasury account", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func saveTreasury(tx *gorm.DB, t *domain.TreasuryAccount, now time.Time) error {
	err := updateVersioned(tx, &domain.TreasuryAccount{}, "id = ?", []any{t.ID}, t.Version, map[string]any{
		"balance":      t.Balance,
		"last_updated": now,
	})
	if err != nil {
		return err
	}
	t.Version++
	t.LastUpdated = now
	return nil
}

func loadTournament(tx *gorm.DB, id string) (*domain.Tournament, error) {
	var t domain.Tournament
	err := forUpdate(tx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: tournament %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// saveTournamentFunds persists the money counters of t.
func saveTournamentFunds(tx *gorm.DB, t *domain.Tournament) error {
	err := updateVersioned(tx, &domain.Tournament{}, "id = ?", []any{t.ID}, t.Version, map[string]any{
		"prize_pool":      t.PrizePool,
		"collected_funds": t.CollectedFunds,
	})
	if err != nil {
		return err
	}
	t.Version++
	return nil
}

func loadPlayer(tx *gorm.DB, tournamentID, userID string) (*domain.Player, error) {
	var p domain.Player
	err := forUpdate(tx).Where("tournament_id = ? AND user_id = ?", tournamentID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: user %q in tournament %q", ErrNotRegistered, userID, tournamentID)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func savePlayer(tx *gorm.DB, p *domain.Player) error {
	err := updateVersioned(tx, &domain.Player{}, "tournament_id = ? AND user_id = ?", []any{p.TournamentID, p.UserID}, p.Version, map[string]any{
		"balance": p.Balance,
		"rebuys":  p.Rebuys,
	})
	if err != nil {
		return err
	}
	p.Version++
	return nil
}

func playerExists(tx *gorm.DB, tournamentID, userID string) (bool, error) {
	var n int64
	err := tx.Model(&domain.Player{}).Where("tournament_id = ? AND user_id = ?", tournamentID, userID).Count(&n).Error
	return n > 0, err
}

func insertTransaction(tx *gorm.DB, t *domain.Transaction) error {
	return tx.Create(t).Error
}
