package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"contest_ledger/internal/domain"
)

// DepositResult is the outcome of a deposit credit. Replayed is set when the
// reference had already been credited and nothing changed.
type DepositResult struct {
	Transaction *domain.Transaction
	Replayed    bool
}

// InitiateDeposit registers a PENDING deposit for userID under a fresh
// reference. The reference is what the payment gateway echoes back when it
// confirms the payment.
func (s *Service) InitiateDeposit(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	// The wallet must exist before money can be expected for it
	if _, err := s.Wallet(ctx, userID); err != nil {
		return nil, err
	}
	t := &domain.Transaction{
		Reference: "dep-" + uuid.NewString(), // Echoed back by the gateway
		UserID:    userID,
		Amount:    amount,
		Type:      domain.TxDeposit,
		Status:    domain.StatusPending,
		CreatedAt: s.now(),
	}
	// Record the pending deposit
	if err := insertTransaction(s.store.DB().WithContext(ctx), t); err != nil {
		return nil, err
	}
	// Log deposit initiation
	s.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"amount":    amount.String(),
		"reference": t.Reference,
	}).Info("Deposit initiated")
	return t, nil
}

// CreditDeposit credits a confirmed deposit to the wallet and the treasury.
// The pending transaction for reference must exist. A reference is credited
// at most once: the COMPLETED check and the balance writes share one
// transaction, so replays and concurrent deliveries are no-ops.
func (s *Service) CreditDeposit(ctx context.Context, userID string, amount decimal.Decimal, reference string) (*DepositResult, error) {
	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	if err := requireID("reference", reference); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}

	var res *DepositResult
	err := s.store.Atomic(ctx, func(tx *gorm.DB) error {
		res = nil                // Reset between attempts
		var t domain.Transaction // Pending deposit row
		err := forUpdate(tx).Where("reference = ?", reference).First(&t).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: no pending deposit for reference %q", ErrNotFound, reference)
		}
		if err != nil {
			return err
		}
		if t.Type != domain.TxDeposit {
			return fmt.Errorf("%w: reference %q is a %s transaction", ErrValidation, reference, t.Type)
		}
		// Already credited, nothing to do
		if t.Status == domain.StatusCompleted || t.CreditedAt != nil {
			res = &DepositResult{Transaction: &t, Replayed: true}
			return nil
		}
		if t.Status != domain.StatusPending {
			return fmt.Errorf("%w: deposit %q has status %s", ErrValidation, reference, t.Status)
		}
		// The confirmation must match what was initiated
		if t.UserID != userID || !t.Amount.Equal(amount) {
			return fmt.Errorf("%w: deposit %q does not match user or amount", ErrValidation, reference)
		}

		now := s.now()
		w, err := loadWallet(tx, userID)
		if err != nil {
			return err
		}
		tr, err := loadTreasury(tx)
		if err != nil {
			return err
		}
		w.WalletBalance = w.WalletBalance.Add(amount) // Credit the user
		tr.Balance = tr.Balance.Add(amount)           // Treasury holds the real money
		if err := saveWallet(tx, w, now); err != nil {
			return err
		}
		if err := saveTreasury(tx, tr, now); err != nil {
			return err
		}

		// Flip PENDING to COMPLETED exactly once
		upd := tx.Model(&domain.Transaction{}).
			Where("reference = ? AND status = ?", reference, domain.StatusPending).
			Updates(map[string]any{"status": domain.StatusCompleted, "credited_at": now})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return ErrConflict // Another delivery won
		}
		t.Status = domain.StatusCompleted
		t.CreditedAt = &now
		res = &DepositResult{Transaction: &t}
		return nil
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id":   userID,
			"amount":    amount.String(),
			"reference": reference,
			"error":     err.Error(),
		}).Error("Deposit credit failed")
		return nil, err
	}

	fields := logrus.Fields{
		"user_id":   userID,
		"amount":    amount.String(),
		"reference": reference,
		"type":      domain.TxDeposit,
	}
	// Replays are acknowledged but change nothing
	if res.Replayed {
		s.log.WithFields(fields).Info("Deposit already credited")
		return res, nil
	}
	s.log.WithFields(fields).Info("Deposit credited")
	s.invalidate(ctx, userID) // Drop the cached wallet
	return res, nil
}

// ConfirmDeposit handles a gateway confirmation for reference. It resolves
// the user and amount from the pending row and credits it. When another
// delivery of the same reference is in flight it returns
// ErrDuplicateReference without touching the database.
func (s *Service) ConfirmDeposit(ctx context.Context, reference string) (*DepositResult, error) {
	if err := requireID("reference", reference); err != nil {
		return nil, err
	}
	if s.guard != nil {
		ok, err := s.guard.Acquire(ctx, reference)
		switch {
		case err != nil:
			// the database check still protects the credit
			s.log.WithFields(logrus.Fields{"reference": reference, "error": err.Error()}).Warn("Deposit guard unavailable")
		case !ok:
			return nil, fmt.Errorf("%w: %s", ErrDuplicateReference, reference)
		default:
			// a cancelled request must not leave the reference blocked
			defer s.guard.Release(context.WithoutCancel(ctx), reference)
		}
	}
	// Resolve user and amount from the pending row
	t, err := s.Transaction(ctx, reference)
	if err != nil {
		return nil, err
	}
	return s.CreditDeposit(ctx, t.UserID, t.Amount, reference)
}
