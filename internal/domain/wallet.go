package domain

import (
	"time"

	"github.com/shopspring/decimal" // Precise monetary values
)

// Wallet Model
type Wallet struct {
	UserID        string          `gorm:"primaryKey;size:64" json:"user_id"`                           // Owner user ID
	WalletBalance decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"wallet_balance"` // Real-money balance, never negative
	Version       int64           `gorm:"not null;default:0" json:"-"`                                 // Optimistic concurrency version
	LastUpdated   time.Time       `json:"last_updated"`                                                // Last balance change
}

// TreasuryMainID is the primary key of the singleton treasury row
const TreasuryMainID = "main"

// TreasuryAccount holds the platform-wide real money
type TreasuryAccount struct {
	ID          string          `gorm:"primaryKey;size:16" json:"id"`                         // Always "main"
	Balance     decimal.Decimal `gorm:"type:decimal(20,4);not null;default:0" json:"balance"` // Aggregate platform balance
	Version     int64           `gorm:"not null;default:0" json:"-"`                          // Optimistic concurrency version
	LastUpdated time.Time       `json:"last_updated"`                                         // Last balance change
}

// TableName keeps the singleton in the "treasury" table
func (TreasuryAccount) TableName() string {
	return "treasury"
}
