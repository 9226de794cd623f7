package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest_ledger/internal/domain"
)

// WalletCache drops cached wallet reads after a committed balance change.
type WalletCache interface {
	InvalidateWallet(ctx context.Context, userID string)
}

// DepositGuard marks a deposit reference as in flight so a burst of
// duplicate webhook deliveries reaches the database once.
type DepositGuard interface {
	Acquire(ctx context.Context, reference string) (bool, error)
	Release(ctx context.Context, reference string)
}

// Service implements the treasury operations and payout settlement.
type Service struct {
	store *Store
	cache WalletCache
	guard DepositGuard
	log   *logrus.Logger
	now   func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithWalletCache sets the cache invalidated after wallet changes.
func WithWalletCache(c WalletCache) Option {
	return func(s *Service) { s.cache = c }
}

// WithDepositGuard sets the in-flight guard used by ConfirmDeposit.
func WithDepositGuard(g DepositGuard) Option {
	return func(s *Service) { s.guard = g }
}

// WithLogger replaces the standard logrus logger.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService builds a Service on store.
func NewService(store *Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		log:   logrus.StandardLogger(),                      // Default logger
		now:   func() time.Time { return time.Now().UTC() }, // Store UTC
	}
	// Apply options
	for _, o := range opts {
		o(s)
	}
	return s
}

// Bootstrap makes sure the singleton treasury row exists.
func (s *Service) Bootstrap(ctx context.Context) error {
	t := domain.TreasuryAccount{ID: domain.TreasuryMainID, Balance: decimal.Zero, LastUpdated: s.now()}
	return s.store.DB().WithContext(ctx).Where("id = ?", domain.TreasuryMainID).FirstOrCreate(&t).Error
}

// CreateAccount stores a new user together with its zero-balance wallet.
func (s *Service) CreateAccount(ctx context.Context, user *domain.User) (*domain.Wallet, error) {
	if err := requireID("user id", user.ID); err != nil {
		return nil, err
	}
	w := domain.Wallet{UserID: user.ID, WalletBalance: decimal.Zero, LastUpdated: s.now()} // Empty wallet
	// User and wallet are created together or not at all
	err := s.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(user).Error; err != nil {
			return err // Return error to rollback
		}
		return tx.Create(&w).Error
	})
	if err != nil {
		return nil, err
	}
	user.Wallet = w
	return &w, nil
}

// Wallet returns the current wallet of userID.
func (s *Service) Wallet(ctx context.Context, userID string) (*domain.Wallet, error) {
	var w domain.Wallet
	err := s.store.DB().WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: wallet for user %q", ErrNotFound, userID)
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// Treasury returns the singleton treasury account.
func (s *Service) Treasury(ctx context.Context) (*domain.TreasuryAccount, error) {
	var t domain.TreasuryAccount
	err := s.store.DB().WithContext(ctx).Where("id = ?", domain.TreasuryMainID).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: treasury account", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Tournament returns a tournament by id.
func (s *Service) Tournament(ctx context.Context, id string) (*domain.Tournament, error) {
	var t domain.Tournament
	err := s.store.DB().WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: tournament %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// Transaction returns a log entry by reference.
func (s *Service) Transaction(ctx context.Context, reference string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := s.store.DB().WithContext(ctx).Where("reference = ?", reference).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: transaction %q", ErrNotFound, reference)
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Service) invalidate(ctx context.Context, userIDs ...string) {
	if s.cache == nil {
		return // No cache configured
	}
	for _, id := range userIDs {
		s.cache.InvalidateWallet(ctx, id)
	}
}

// MoneyScale is the number of decimal places every money column stores.
const MoneyScale = 4

func requirePositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s must be greater than zero", ErrValidation, field)
	}
	return requireScale(field, amount)
}

// requireScale rejects amounts the database would round on insert.
func requireScale(field string, amount decimal.Decimal) error {
	if !amount.Equal(amount.Truncate(MoneyScale)) {
		return fmt.Errorf("%w: %s has more than %d decimal places", ErrValidation, field, MoneyScale)
	}
	return nil
}

func requireID(field, v string) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	return nil
}

func strPtr(s string) *string {
	return &s
}
