package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"contest_ledger/internal/domain"
)

// RequestWithdrawal removes amount from the wallet and the treasury and
// records a withdrawal awaiting admin approval. Both balances must cover the
// amount; otherwise nothing changes.
func (s *Service) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Transaction, error) {
	if err := requireID("user id", userID); err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}

	var out *domain.Transaction
	err := s.store.Atomic(ctx, func(tx *gorm.DB) error {
		now := s.now()
		w, err := loadWallet(tx, userID)
		if err != nil {
			return err
		}
		tr, err := loadTreasury(tx)
		if err != nil {
			return err
		}
		// Check sufficient funds on both sides
		if w.WalletBalance.LessThan(amount) {
			return fmt.Errorf("%w: wallet balance %s is below %s", ErrInsufficientFunds, w.WalletBalance, amount)
		}
		if tr.Balance.LessThan(amount) {
			return fmt.Errorf("%w: treasury balance is below %s", ErrInsufficientFunds, amount)
		}
		w.WalletBalance = w.WalletBalance.Sub(amount) // Reserve from the wallet
		tr.Balance = tr.Balance.Sub(amount)           // and from the treasury
		if err := saveWallet(tx, w, now); err != nil {
			return err
		}
		if err := saveTreasury(tx, tr, now); err != nil {
			return err
		}
		out = &domain.Transaction{
			Reference: "wd-" + uuid.NewString(),
			UserID:    userID,
			Amount:    amount,
			Type:      domain.TxWithdrawal,
			Status:    domain.StatusPendingAdminApproval, // Waits for an admin
			CreatedAt: now,
		}
		return insertTransaction(tx, out)
	})
	if err != nil {
		s.log.WithFields(logrus.Fields{
			"user_id": userID,
			"amount":  amount.String(),
			"error":   err.Error(),
		}).Error("Withdrawal request failed")
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"amount":    amount.String(),
		"reference": out.Reference,
		"type":      domain.TxWithdrawal,
	}).Info("Withdrawal requested")
	s.invalidate(ctx, userID) // Balance changed
	return out, nil
}

// ApprovePayout marks a pending withdrawal as paid. Funds already left both
// balances when the withdrawal was requested.
func (s *Service) ApprovePayout(ctx context.Context, reference string) (*domain.Transaction, error) {
	if err := requireID("payout id", reference); err != nil {
		return nil, err
	}
	var out *domain.Transaction
	err := s.store.Atomic(ctx, func(tx *gorm.DB) error {
		t, err := loadPendingWithdrawal(tx, reference)
		if err != nil {
			return err
		}
		now := s.now()
		// No balance moves on approval
		if err := resolveWithdrawal(tx, t, domain.StatusCompleted, "", now); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"user_id":   out.UserID,
		"amount":    out.Amount.String(),
		"reference": reference,
	}).Info("Withdrawal approved")
	s.invalidate(ctx, out.UserID)
	return out, nil
}

// RejectPayout refuses a pending withdrawal and refunds the reserved amount
// to the wallet and the treasury in the same transaction.
func (s *Service) RejectPayout(ctx context.Context, reference, reason string) (*domain.Transaction, error) {
	if err := requireID("payout id", reference); err != nil {
		return nil, err
	}
	var out *domain.Transaction
	err := s.store.Atomic(ctx, func(tx *gorm.DB) error {
		t, err := loadPendingWithdrawal(tx, reference)
		if err != nil {
			return err
		}
		now := s.now()
		w, err := loadWallet(tx, t.UserID)
		if err != nil {
			return err
		}
		tr, err := loadTreasury(tx)
		if err != nil {
			return err
		}
		// Refund the reserved amount
		w.WalletBalance = w.WalletBalance.Add(t.Amount)
		tr.Balance = tr.Balance.Add(t.Amount)
		if err := saveWallet(tx, w, now); err != nil {
			return err
		}
		if err := saveTreasury(tx, tr, now); err != nil {
			return err
		}
		if err := resolveWithdrawal(tx, t, domain.StatusRejected, reason, now); err != nil {
			return err
		}
		out = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.WithFields(logrus.Fields{
		"user_id":   out.UserID,
		"amount":    out.Amount.String(),
		"reference": reference,
		"reason":    reason,
	}).Info("Withdrawal rejected and refunded")
	s.invalidate(ctx, out.UserID)
	return out, nil
}

func loadPendingWithdrawal(tx *gorm.DB, reference string) (*domain.Transaction, error) {
	var t domain.Transaction
	err := forUpdate(tx).Where("reference = ? AND type = ?", reference, domain.TxWithdrawal).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: withdrawal %q", ErrNotFound, reference)
	}
	if err != nil {
		return nil, err
	}
	// Approved or rejected payouts are final
	if t.Status != domain.StatusPendingAdminApproval {
		return nil, fmt.Errorf("%w: withdrawal %q is %s", ErrNotPending, reference, t.Status)
	}
	return &t, nil
}

// resolveWithdrawal moves t out of pending_admin_approval exactly once.
func resolveWithdrawal(tx *gorm.DB, t *domain.Transaction, status, note string, now time.Time) error {
	fields := map[string]any{"status": status, "resolved_at": now}
	if note != "" {
		fields["note"] = note // Rejection reason
	}
	res := tx.Model(&domain.Transaction{}).
		Where("reference = ? AND status = ?", t.Reference, domain.StatusPendingAdminApproval).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict // Resolved concurrently
	}
	t.Status = status
	t.ResolvedAt = &now
	if note != "" {
		t.Note = note
	}
	return nil
}
