package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Tournament statuses
const (
	TournamentUpcoming  = "upcoming"
	TournamentOngoing   = "ongoing"
	TournamentCompleted = "completed"
)

// PayoutSlot is one entry of a tournament payout structure. Rank 0 is the winner.
type PayoutSlot struct {
	Rank   int             `json:"rank"`
	Amount decimal.Decimal `json:"amount"`
}

// RebuyEntry records one paid top-up of a player's virtual balance.
type RebuyEntry struct {
	Amount decimal.Decimal `json:"amount"`
	At     time.Time       `json:"at"`
}

// Tournament is a timed contest. PrizePool and CollectedFunds are real money;
// StartingBalance is virtual.
type Tournament struct {
	ID              string                          `gorm:"primaryKey;size:64" json:"id"`
	Name            string                          `gorm:"not null" json:"name"`
	StartingBalance decimal.Decimal                 `gorm:"type:decimal(20,4);not null" json:"starting_balance"`
	Fee             decimal.Decimal                 `gorm:"type:decimal(20,4);not null;default:0" json:"fee"`
	RebuyFee        decimal.Decimal                 `gorm:"type:decimal(20,4);not null;default:0" json:"rebuy_fee"`
	PrizePool       decimal.Decimal                 `gorm:"type:decimal(20,4);not null;default:0" json:"prize_pool"`
	CollectedFunds  decimal.Decimal                 `gorm:"type:decimal(20,4);not null;default:0" json:"collected_funds"`
	PayoutStructure datatypes.JSONSlice[PayoutSlot] `json:"payout_structure"`
	Status          string                          `gorm:"not null;default:upcoming;index" json:"status"`
	PaidOut         bool                            `gorm:"not null;default:false" json:"paid_out"`
	PaidOutAt       *time.Time                      `json:"paid_out_at,omitempty"`
	Version         int64                           `gorm:"not null;default:0" json:"-"`
	CreatedAt       time.Time                       `gorm:"autoCreateTime" json:"created_at"`
}

// Closed reports whether the tournament no longer accepts registrations or rebuys.
func (t *Tournament) Closed() bool {
	return t.PaidOut || t.Status == TournamentCompleted
}

// Player is a user's seat in one tournament, keyed by (TournamentID, UserID).
type Player struct {
	TournamentID string                          `gorm:"primaryKey;size:64" json:"tournament_id"`
	UserID       string                          `gorm:"primaryKey;size:64" json:"user_id"`
	Balance      decimal.Decimal                 `gorm:"type:decimal(20,4);not null;index" json:"balance"`
	Rebuys       datatypes.JSONSlice[RebuyEntry] `json:"rebuys"`
	JoinedAt     time.Time                       `gorm:"not null" json:"joined_at"`
	Version      int64                           `gorm:"not null;default:0" json:"-"`
}
