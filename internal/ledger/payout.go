package ledger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest_ledger/internal/domain"
)

// settleAttempts bounds how often settlement restarts from the read phase
// when the ranking moved before the atomic phase.
const settleAttempts = 3

var errStaleRanking = errors.New("ranking changed during settlement")

// Payout is the prize assigned to one ranked player.
type Payout struct {
	Rank    int             `json:"rank"`
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	Amount  decimal.Decimal `json:"amount"`
}

// Settlement is the result of a tournament payout.
type Settlement struct {
	TournamentID string          `json:"tournament_id"`
	Payouts      []Payout        `json:"payouts"`
	Total        decimal.Decimal `json:"total"`
	PaidOutAt    time.Time       `json:"paid_out_at"`
}

// SettleTournamentPayout distributes the prize pool of a tournament to its
// top players, once. Ranking is read first, outside any transaction; the
// atomic phase re-checks it, pays winners from the treasury and marks the
// tournament paid out. Win log entries are written afterwards on a best
// effort basis; the paid_out flag is what prevents a second settlement.
func (s *Service) SettleTournamentPayout(ctx context.Context, tournamentID string) (*Settlement, error) {
	if err := requireID("tournament id", tournamentID); err != nil {
		return nil, err
	}
	var (
		st  *Settlement
		err error
	)
	// Restart from the read phase while the ranking keeps moving
	for attempt := 0; attempt < settleAttempts; attempt++ {
		st, err = s.settle(ctx, tournamentID)
		if !errors.Is(err, errStaleRanking) {
			break // Settled or failed for good
		}
		s.log.WithFields(logrus.Fields{"tournament_id": tournamentID, "attempt": attempt + 1}).Warn("Ranking changed during settlement, retrying")
	}
	if errors.Is(err, errStaleRanking) {
		err = fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"tournament_id": tournamentID,
			"error":         err.Error(),
		}).Error("Tournament settlement failed")
		return nil, err
	}

	s.logWinnings(ctx, st) // Best effort
	s.log.WithFields(logrus.Fields{
		"tournament_id": tournamentID,
		"winners":       len(st.Payouts),
		"total":         st.Total.String(),
	}).Info("Tournament settled")
	// Drop cached wallets of every winner
	winners := make([]string, 0, len(st.Payouts))
	for _, p := range st.Payouts {
		winners = append(winners, p.UserID)
	}
	s.invalidate(ctx, winners...)
	return st, nil
}

func (s *Service) settle(ctx context.Context, tournamentID string) (*Settlement, error) {
	// Read phase
	t, err := s.Tournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if t.PaidOut {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyPaidOut, tournamentID)
	}
	// Upcoming tournaments have not been played yet
	if t.Status != domain.TournamentOngoing {
		return nil, fmt.Errorf("%w: tournament %q is %s, only ongoing tournaments settle", ErrValidation, tournamentID, t.Status)
	}
	if len(t.PayoutStructure) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoPayoutStructure, tournamentID)
	}
	slots := sortedSlots(t.PayoutStructure) // Rank order
	// The structure must pay out the whole pool
	if sum := slotTotal(slots); !sum.Equal(t.PrizePool) {
		return nil, fmt.Errorf("%w: structure sums to %s, prize pool is %s", ErrPayoutMismatch, sum, t.PrizePool)
	}
	ranked, err := rankPlayers(s.store.DB().WithContext(ctx), tournamentID, len(slots))
	if err != nil {
		return nil, err
	}
	payouts := assignPayouts(slots, ranked)
	total := decimal.Zero // Sum actually paid
	for _, p := range payouts {
		total = total.Add(p.Amount)
	}

	var paidAt time.Time
	// Atomic phase
	err = s.store.Atomic(ctx, func(tx *gorm.DB) error {
		now := s.now()
		cur, err := loadTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		if cur.PaidOut {
			return fmt.Errorf("%w: %q", ErrAlreadyPaidOut, tournamentID)
		}
		if cur.Status != domain.TournamentOngoing {
			return fmt.Errorf("%w: tournament %q is %s", ErrValidation, tournamentID, cur.Status)
		}
		if !cur.PrizePool.Equal(t.PrizePool) {
			return errStaleRanking // A rebuy landed after the read
		}
		again, err := rankPlayers(tx, tournamentID, len(slots))
		if err != nil {
			return err
		}
		// Re-check the ranking inside the transaction
		if !sameRanking(ranked, again) {
			return errStaleRanking
		}

		tr, err := loadTreasury(tx)
		if err != nil {
			return err
		}
		// Treasury must cover the whole pool
		if tr.Balance.LessThan(cur.PrizePool) {
			return fmt.Errorf("%w: treasury holds %s, prize pool is %s", ErrTreasuryInsufficient, tr.Balance, cur.PrizePool)
		}
		for _, p := range payouts {
			w, err := loadWallet(tx, p.UserID)
			if err != nil {
				return err
			}
			w.WalletBalance = w.WalletBalance.Add(p.Amount) // Credit the winner
			if err := saveWallet(tx, w, now); err != nil {
				return err
			}
		}
		tr.Balance = tr.Balance.Sub(total) // Paid from the treasury
		if err := saveTreasury(tx, tr, now); err != nil {
			return err
		}
		// Mark paid out, this blocks any second settlement
		if err := updateVersioned(tx, &domain.Tournament{}, "id = ?", []any{cur.ID}, cur.Version, map[string]any{
			"status":      domain.TournamentCompleted,
			"paid_out":    true,
			"paid_out_at": now,
		}); err != nil {
			return err
		}
		paidAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Settlement{TournamentID: tournamentID, Payouts: payouts, Total: total, PaidOutAt: paidAt}, nil
}

// logWinnings appends one tournament_win entry per winner. References are
// derived from the tournament and rank, so a repeated call adds nothing.
func (s *Service) logWinnings(ctx context.Context, st *Settlement) {
	db := s.store.DB().WithContext(ctx)
	for _, p := range st.Payouts {
		paidAt := st.PaidOutAt
		t := &domain.Transaction{
			Reference:    WinReference(st.TournamentID, p.Rank),
			UserID:       p.UserID,
			TournamentID: strPtr(st.TournamentID),
			Amount:       p.Amount,
			Type:         domain.TxTournamentWin,
			Status:       domain.StatusCompleted,
			CreatedAt:    paidAt,
			CreditedAt:   &paidAt,
		}
		// Existing references are skipped
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(t).Error; err != nil {
			s.log.WithFields(logrus.Fields{
				"tournament_id": st.TournamentID,
				"user_id":       p.UserID,
				"rank":          p.Rank,
				"error":         err.Error(),
			}).Error("Failed to log tournament win")
		}
	}
}

// WinReference is the transaction reference of the prize paid for rank.
func WinReference(tournamentID string, rank int) string {
	return fmt.Sprintf("win:%s:%d", tournamentID, rank)
}

// rankPlayers returns the top n players by balance. Equal balances go to the
// player who joined first, then by user id.
func rankPlayers(db *gorm.DB, tournamentID string, n int) ([]domain.Player, error) {
	var players []domain.Player
	err := db.Where("tournament_id = ?", tournamentID).
		Order("balance DESC").  // Highest balance first
		Order("joined_at ASC"). // Earliest entry wins a tie
		Order("user_id ASC").   // Then a stable order
		Limit(n).
		Find(&players).Error
	return players, err
}

func sortedSlots(structure []domain.PayoutSlot) []domain.PayoutSlot {
	slots := make([]domain.PayoutSlot, len(structure))
	copy(slots, structure)
	sort.SliceStable(slots, func(i, j int) bool { return slots[i].Rank < slots[j].Rank })
	return slots
}

func slotTotal(slots []domain.PayoutSlot) decimal.Decimal {
	sum := decimal.Zero
	for _, s := range slots {
		sum = sum.Add(s.Amount)
	}
	return sum
}

// assignPayouts gives slots[i] to ranked[i]. Slots without a player are not paid.
func assignPayouts(slots []domain.PayoutSlot, ranked []domain.Player) []Payout {
	n := len(slots)
	if len(ranked) < n {
		n = len(ranked) // Fewer players than slots
	}
	out := make([]Payout, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Payout{
			Rank:    slots[i].Rank,
			UserID:  ranked[i].UserID,
			Balance: ranked[i].Balance,
			Amount:  slots[i].Amount,
		})
	}
	return out
}

func sameRanking(a, b []domain.Player) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].UserID != b[i].UserID || !a[i].Balance.Equal(b[i].Balance) {
			return false
		}
	}
	return true
}
