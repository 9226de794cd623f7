package ledger

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"contest_ledger/internal/db"
	"contest_ledger/internal/domain"
)

// testClock hands out strictly increasing timestamps.
type testClock struct {
	mu  sync.Mutex
	cur time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cur = c.cur.Add(time.Second)
	return c.cur
}

type fixture struct {
	t   *testing.T
	ctx context.Context
	db  *gorm.DB
	svc *Service
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	gdb := newTestDB(t)
	clock := &testClock{cur: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]Option{WithLogger(quietLogger()), WithClock(clock.Now)}, opts...)
	svc := NewService(NewStore(gdb, RetryPolicy{MaxRetries: 5, InitialInterval: time.Millisecond, MaxInterval: 10 * time.Millisecond}), opts...)
	ctx := context.Background()
	require.NoError(t, svc.Bootstrap(ctx))
	return &fixture{t: t, ctx: ctx, db: gdb, svc: svc}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// user creates an account holding balance, funded through a real deposit so
// the treasury backs it.
func (f *fixture) user(id, balance string) {
	f.t.Helper()
	_, err := f.svc.CreateAccount(f.ctx, &domain.User{ID: id, Username: id, Password: "x", Role: domain.RoleUser})
	require.NoError(f.t, err)
	if dec(balance).IsPositive() {
		f.deposit(id, balance)
	}
}

func (f *fixture) deposit(id, amount string) {
	f.t.Helper()
	tx, err := f.svc.InitiateDeposit(f.ctx, id, dec(amount))
	require.NoError(f.t, err)
	_, err = f.svc.CreditDeposit(f.ctx, id, dec(amount), tx.Reference)
	require.NoError(f.t, err)
}

func (f *fixture) tournament(n NewTournament) *domain.Tournament {
	f.t.Helper()
	if n.Name == "" {
		n.Name = "weekly"
	}
	if n.StartingBalance.IsZero() {
		n.StartingBalance = dec("10000")
	}
	tr, err := f.svc.CreateTournament(f.ctx, n)
	require.NoError(f.t, err)
	return tr
}

// start moves a tournament to ongoing, where rebuys and settlement happen.
func (f *fixture) start(id string) {
	f.t.Helper()
	_, err := f.svc.StartTournament(f.ctx, id)
	require.NoError(f.t, err)
}

func (f *fixture) walletBalance(id string) decimal.Decimal {
	f.t.Helper()
	w, err := f.svc.Wallet(f.ctx, id)
	require.NoError(f.t, err)
	return w.WalletBalance
}

func (f *fixture) treasuryBalance() decimal.Decimal {
	f.t.Helper()
	tr, err := f.svc.Treasury(f.ctx)
	require.NoError(f.t, err)
	return tr.Balance
}

func (f *fixture) reloadTournament(id string) *domain.Tournament {
	f.t.Helper()
	tr, err := f.svc.Tournament(f.ctx, id)
	require.NoError(f.t, err)
	return tr
}

// setPlayerBalance simulates trading activity on a player's virtual balance.
func (f *fixture) setPlayerBalance(tournamentID, userID, balance string) {
	f.t.Helper()
	res := f.db.Model(&domain.Player{}).
		Where("tournament_id = ? AND user_id = ?", tournamentID, userID).
		Update("balance", dec(balance))
	require.NoError(f.t, res.Error)
	require.EqualValues(f.t, 1, res.RowsAffected)
}

// money is the sum that no internal operation may change.
func (f *fixture) money() decimal.Decimal {
	f.t.Helper()
	var wallets []domain.Wallet
	require.NoError(f.t, f.db.Find(&wallets).Error)
	var tournaments []domain.Tournament
	require.NoError(f.t, f.db.Find(&tournaments).Error)
	sum := f.treasuryBalance()
	for _, w := range wallets {
		sum = sum.Add(w.WalletBalance)
	}
	for _, t := range tournaments {
		sum = sum.Add(t.CollectedFunds)
	}
	return sum
}
