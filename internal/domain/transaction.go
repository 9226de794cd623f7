package domain

import (
	"time"

	"github.com/shopspring/decimal" // Precise monetary values
)

// Transaction types
const (
	TxDeposit                   = "deposit"                      // Gateway deposit credited to a wallet
	TxWithdrawal                = "withdrawal"                   // Wallet withdrawal awaiting admin approval
	TxTournamentFee             = "tournament_fee"               // Entry fee moved into a prize pool
	TxRebuy                     = "rebuy"                        // Rebuy fee moved into a prize pool
	TxTournamentWin             = "tournament_win"               // Prize paid from the treasury
	TxTournamentFundsToTreasury = "tournament_funds_to_treasury" // Collected funds swept to the treasury
)

// Transaction statuses
const (
	StatusPending              = "PENDING"                // Registered, funds not moved yet
	StatusCompleted            = "COMPLETED"              // Funds moved
	StatusPendingAdminApproval = "pending_admin_approval" // Withdrawal reserved, waiting for an admin
	StatusRejected             = "REJECTED"               // Withdrawal refused and refunded
)

// Transaction Model (immutable log entry, keyed by reference)
type Transaction struct {
	Reference    string          `gorm:"primaryKey;size:128" json:"reference"`         // Unique reference, idempotency key for deposits
	UserID       string          `gorm:"size:64;index" json:"user_id"`                 // Affected user (empty for sweeps)
	TournamentID *string         `gorm:"size:64;index" json:"tournament_id,omitempty"` // Related tournament, if any
	Amount       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`    // Amount moved
	Type         string          `gorm:"size:40;not null;index" json:"type"`           // Transaction type
	Status       string          `gorm:"size:40;not null;index" json:"status"`         // Transaction status
	Note         string          `json:"note,omitempty"`                               // Free-form note (rejection reason)
	CreatedAt    time.Time       `gorm:"autoCreateTime;index" json:"created_at"`       // Timestamp of creation
	CreditedAt   *time.Time      `json:"credited_at,omitempty"`                        // Deposit checkpoint, set exactly once
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`                        // Withdrawal approval or rejection time
}
