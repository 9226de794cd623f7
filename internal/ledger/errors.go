package ledger

import "errors"

// Error kinds returned by ledger operations. Operations wrap them with
// context, so callers match with errors.Is.
var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyPaidOut       = errors.New("tournament already paid out")
	ErrNoPayoutStructure    = errors.New("tournament has no payout structure")
	ErrPayoutMismatch       = errors.New("payout structure does not match prize pool")
	ErrTreasuryInsufficient = errors.New("treasury balance too low for payout")
	ErrRebuyNotAllowed      = errors.New("rebuy not allowed for this tournament")
	ErrNotRegistered        = errors.New("user is not registered in tournament")
	ErrDuplicateReference   = errors.New("reference already being processed")
	ErrValidation           = errors.New("invalid request")

	ErrConflict          = errors.New("concurrent modification")
	ErrNotPending        = errors.New("transaction is not awaiting approval")
	ErrAlreadyRegistered = errors.New("user already registered in tournament")
	ErrTournamentClosed  = errors.New("tournament is closed")
)
