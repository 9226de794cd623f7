package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"contest_ledger/internal/domain"
)

// errFeeCollected reports a paid entry fee whose player row is missing.
var errFeeCollected = fmt.Errorf("%w: entry fee already collected", ErrAlreadyRegistered)

// NewTournament describes a tournament to create.
type NewTournament struct {
	ID              string
	Name            string
	StartingBalance decimal.Decimal
	Fee             decimal.Decimal
	RebuyFee        decimal.Decimal
	PrizePool       decimal.Decimal // guaranteed prize, grows with fees and rebuys
	PayoutStructure []domain.PayoutSlot
	Status          string
}

func (n NewTournament) validate() error {
	if n.Name == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if err := requirePositive("starting balance", n.StartingBalance); err != nil {
		return err
	}
	for field, v := range map[string]decimal.Decimal{"fee": n.Fee, "rebuy fee": n.RebuyFee, "prize pool": n.PrizePool} {
		if v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrValidation, field)
		}
		if err := requireScale(field, v); err != nil {
			return err
		}
	}
	switch n.Status {
	case "", domain.TournamentUpcoming, domain.TournamentOngoing:
	default:
		return fmt.Errorf("%w: unknown initial status %q", ErrValidation, n.Status)
	}
	seen := make(map[int]bool, len(n.PayoutStructure)) // Ranks already used
	for _, slot := range n.PayoutStructure {
		if slot.Rank < 0 || seen[slot.Rank] {
			return fmt.Errorf("%w: payout ranks must be unique and non-negative", ErrValidation)
		}
		if err := requirePositive("payout amount", slot.Amount); err != nil {
			return err
		}
		seen[slot.Rank] = true
	}
	return nil
}

// CreateTournament stores a new tournament with empty funds.
func (s *Service) CreateTournament(ctx context.Context, n NewTournament) (*domain.Tournament, error) {
	if err := n.validate(); err != nil {
		return nil, err
	}
	t := &domain.Tournament{
		ID:              n.ID,
		Name:            n.Name,
		StartingBalance: n.StartingBalance,
		Fee:             n.Fee,
		RebuyFee:        n.RebuyFee,
		PrizePool:       n.PrizePool,
		CollectedFunds:  decimal.Zero,
		PayoutStructure: n.PayoutStructure,
		Status:          n.Status,
		CreatedAt:       s.now(),
	}
	if t.ID == "" {
		t.ID = uuid.NewString() // Generate an ID when none is given
	}
	if t.Status == "" {
		t.Status = domain.TournamentUpcoming
	}
	// Save tournament
	if err := s.store.DB().WithContext(ctx).Create(t).Error; err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"tournament_id": t.ID,
		"fee":           t.Fee.String(),
		"rebuy_fee":     t.RebuyFee.String(),
	}).Info("Tournament created")
	return t, nil
}

// StartTournament moves an upcoming tournament to ongoing.
func (s *Service) StartTournament(ctx context.Context, tournamentID string) (*domain.Tournament, error) {
	var out *domain.Tournament
	err := s.store.Atomic(ctx, func(tx *gorm.DB) error {
		t, err := loadTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		// Only upcoming tournaments can start
		if t.Status != domain.TournamentUpcoming {
			return fmt.Errorf("%w: tournament %q is %s", ErrValidation, tournamentID, t.Status)
		}
		if err := updateVersioned(tx, &domain.Tournament{}, "id = ?", []any{t.ID}, t.Version, map[string]any{
			"status": domain.TournamentOngoing,
		}); err != nil {
			return err
		}
		t.Status = domain.TournamentOngoing
		t.Version++
		out = t
		return nil
	})
	return out, err
}

// CollectTournamentFee moves amount from the user's wallet into the
// tournament's prize pool and collected funds. Creating the player row is a
// separate step (RegisterPlayer).
func (s *Service) CollectTournamentFee(ctx context.Context, userID, tournamentID string, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	if err := requireID("tournament id", tournamentID); err != nil {
		return nil, err
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: fee must not be negative", ErrValidation)
	}
	if err := requireScale("fee", amount); err != nil {
		return nil, err
	}

	var out *domain.Transaction
	err := s.store.Atomic(ctx, func(tx *gorm.DB) error {
		now := s.now()
		w, err := loadWallet(tx, userID)
		if err != nil {
			return err
		}
		t, err := loadTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Closed() {
			return fmt.Errorf("%w: %q", ErrTournamentClosed, tournamentID)
		}
		// One entry per user
		registered, err := playerExists(tx, tournamentID, userID)
		if err != nil {
			return err
		}
		if registered {
			return fmt.Errorf("%w: user %q in %q", ErrAlreadyRegistered, userID, tournamentID)
		}
		paid, err := feeCollected(tx, tournamentID, userID)
		if err != nil {
			return err
		}
		if paid {
			return errFeeCollected // Charged earlier, seat still missing
		}
		if w.WalletBalance.LessThan(amount) {
			return fmt.Errorf("%w: wallet balance %s is below fee %s", ErrInsufficientFunds, w.WalletBalance, amount)
		}

		w.WalletBalance = w.WalletBalance.Sub(amount)   // Charge the wallet
		t.PrizePool = t.PrizePool.Add(amount)           // Grow the prize pool
		t.CollectedFunds = t.CollectedFunds.Add(amount) // Held until swept
		if err := saveWallet(tx, w, now); err != nil {
			return err
		}
		if err := saveTournamentFunds(tx, t); err != nil {
			return err
		}
		out = &domain.Transaction{
			Reference:    "fee-" + uuid.NewString(),
			UserID:       userID,
			TournamentID: strPtr(tournamentID),
			Amount:       amount,
			Type:         domain.TxTournamentFee,
			Status:       domain.StatusCompleted,
			CreatedAt:    now,
		}
		return insertTransaction(tx, out)
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id":       userID,
			"tournament_id": tournamentID,
			"amount":        amount.String(),
			"error":         err.Error(),
		}).Error("Tournament fee collection failed")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"user_id":       userID,
		"tournament_id": tournamentID,
		"amount":        amount.String(),
		"reference":     out.Reference,
		"type":          domain.TxTournamentFee,
	}).Info("Tournament fee collected")
	s.invalidate(ctx, userID) // Balance changed
	return out, nil
}

// RegisterPlayer creates the player row of a user whose entry fee has been
// collected. Calling it again for the same pair is harmless.
func (s *Service) RegisterPlayer(ctx context.Context, tournamentID, userID string) (*domain.Player, error) {
	db := s.store.DB().WithContext(ctx)
	t, err := s.Tournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	paid, err := feeCollected(db, tournamentID, userID)
	if err != nil {
		return nil, err
	}
	// No seat without a paid fee
	if !paid {
		return nil, fmt.Errorf("%w: no entry fee collected from %q for %q", ErrNotFound, userID, tournamentID)
	}
	p := &domain.Player{
		TournamentID: tournamentID,
		UserID:       userID,
		Balance:      t.StartingBalance, // Virtual chips
		Rebuys:       []domain.RebuyEntry{},
		JoinedAt:     s.now(),
	}
	// Insert once, repeated calls keep the existing row
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(p).Error; err != nil {
		return nil, err
	}
	var stored domain.Player // Read back what is stored
	if err := db.Where("tournament_id = ? AND user_id = ?", tournamentID, userID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

// RegisterForTournament charges the entry fee and seats the player. If an
// earlier attempt charged the fee but never created the player row, the
// registration is completed without charging again.
func (s *Service) RegisterForTournament(ctx context.Context, userID, tournamentID string, feeAmount decimal.Decimal) (*domain.Player, error) {
	t, err := s.Tournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	// The caller must pay the advertised fee
	if !t.Fee.Equal(feeAmount) {
		return nil, fmt.Errorf("%w: fee amount %s does not match tournament fee %s", ErrValidation, feeAmount, t.Fee)
	}
	// Charge first, then seat
	_, err = s.CollectTournamentFee(ctx, userID, tournamentID, feeAmount)
	if err != nil && !errors.Is(err, errFeeCollected) {
		return nil, err
	}
	p, err := s.RegisterPlayer(ctx, tournamentID, userID)
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id":       userID,
			"tournament_id": tournamentID,
			"error":         err.Error(),
		}).Error("Player registration failed after fee collection")
		return nil, err
	}
	return p, nil
}

// ProcessRebuy charges the tournament's rebuy fee and tops the player's
// virtual balance up by exactly the starting balance.
func (s *Service) ProcessRebuy(ctx context.Context, userID, tournamentID string) (*domain.Transaction, error) {
	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	if err := requireID("tournament id", tournamentID); err != nil {
		return nil, err
	}

	var out *domain.Transaction
	err := s.store.Atomic(ctx, func(tx *gorm.DB) error {
		now := s.now()
		w, err := loadWallet(tx, userID)
		if err != nil {
			return err
		}
		t, err := loadTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		if t.Closed() {
			return fmt.Errorf("%w: %q", ErrTournamentClosed, tournamentID)
		}
		if !t.RebuyFee.IsPositive() {
			return fmt.Errorf("%w: %q has no rebuy fee", ErrRebuyNotAllowed, tournamentID)
		}
		// Rebuys happen during play
		if t.Status != domain.TournamentOngoing {
			return fmt.Errorf("%w: %q is %s", ErrRebuyNotAllowed, tournamentID, t.Status)
		}
		p, err := loadPlayer(tx, tournamentID, userID)
		if err != nil {
			return err
		}
		fee := t.RebuyFee // Current rebuy price
		if w.WalletBalance.LessThan(fee) {
			return fmt.Errorf("%w: wallet balance %s is below rebuy fee %s", ErrInsufficientFunds, w.WalletBalance, fee)
		}

		w.WalletBalance = w.WalletBalance.Sub(fee)                           // Charge the wallet
		p.Balance = p.Balance.Add(t.StartingBalance)                         // Top up the chips
		p.Rebuys = append(p.Rebuys, domain.RebuyEntry{Amount: fee, At: now}) // Rebuy history
		t.PrizePool = t.PrizePool.Add(fee)
		t.CollectedFunds = t.CollectedFunds.Add(fee)
		if err := saveWallet(tx, w, now); err != nil {
			return err
		}
		if err := savePlayer(tx, p); err != nil {
			return err
		}
		if err := saveTournamentFunds(tx, t); err != nil {
			return err
		}
		out = &domain.Transaction{
			Reference:    "rebuy-" + uuid.NewString(),
			UserID:       userID,
			TournamentID: strPtr(tournamentID),
			Amount:       fee,
			Type:         domain.TxRebuy,
			Status:       domain.StatusCompleted,
			CreatedAt:    now,
		}
		return insertTransaction(tx, out)
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id":       userID,
			"tournament_id": tournamentID,
			"error":         err.Error(),
		}).Error("Rebuy failed")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"user_id":       userID,
		"tournament_id": tournamentID,
		"amount":        out.Amount.String(),
		"reference":     out.Reference,
		"type":          domain.TxRebuy,
	}).Info("Rebuy processed")
	s.invalidate(ctx, userID) // Balance changed
	return out, nil
}

// RequestRebuy is ProcessRebuy for callers that quote the fee they expect to
// pay; a stale quote is rejected before any money moves.
func (s *Service) RequestRebuy(ctx context.Context, userID, tournamentID string, amount decimal.Decimal) (*domain.Transaction, error) {
	t, err := s.Tournament(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	// Reject a stale quote
	if t.RebuyFee.IsPositive() && !t.RebuyFee.Equal(amount) {
		return nil, fmt.Errorf("%w: rebuy amount %s does not match rebuy fee %s", ErrValidation, amount, t.RebuyFee)
	}
	return s.ProcessRebuy(ctx, userID, tournamentID)
}

// SweepTournamentFundsToTreasury moves amount of a tournament's collected
// funds into the treasury.
func (s *Service) SweepTournamentFundsToTreasury(ctx context.Context, tournamentID string, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := requireID("tournament id", tournamentID); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}

	var out *domain.Transaction
	err := s.store.Atomic(ctx, func(tx *gorm.DB) error {
		now := s.now()
		t, err := loadTournament(tx, tournamentID)
		if err != nil {
			return err
		}
		// Only collected funds can move
		if t.CollectedFunds.LessThan(amount) {
			return fmt.Errorf("%w: collected funds %s are below %s", ErrInsufficientFunds, t.CollectedFunds, amount)
		}
		tr, err := loadTreasury(tx)
		if err != nil {
			return err
		}
		t.CollectedFunds = t.CollectedFunds.Sub(amount) // Out of the tournament
		tr.Balance = tr.Balance.Add(amount)             // Into the treasury
		if err := saveTournamentFunds(tx, t); err != nil {
			return err
		}
		if err := saveTreasury(tx, tr, now); err != nil {
			return err
		}
		out = &domain.Transaction{
			Reference:    "sweep-" + uuid.NewString(),
			TournamentID: strPtr(tournamentID),
			Amount:       amount,
			Type:         domain.TxTournamentFundsToTreasury,
			Status:       domain.StatusCompleted,
			CreatedAt:    now,
		}
		return insertTransaction(tx, out)
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"tournament_id": tournamentID,
			"amount":        amount.String(),
			"error":         err.Error(),
		}).Error("Tournament funds sweep failed")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"tournament_id": tournamentID,
		"amount":        amount.String(),
		"reference":     out.Reference,
		"type":          domain.TxTournamentFundsToTreasury,
	}).Info("Tournament funds swept to treasury")
	return out, nil
}

// feeCollected reports whether a completed entry fee exists for the pair.
func feeCollected(db *gorm.DB, tournamentID, userID string) (bool, error) {
	var n int64
	err := db.Model(&domain.Transaction{}).
		Where("type = ? AND status = ? AND tournament_id = ? AND user_id = ?",
			domain.TxTournamentFee, domain.StatusCompleted, tournamentID, userID).
		Count(&n).Error
	return n > 0, err
}
