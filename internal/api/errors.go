package api

import (
	"errors"   // Error matching
	"net/http" // HTTP status codes

	"contest_ledger/internal/ledger" // Ledger error kinds
)

// statusFor maps a ledger error kind to an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrAlreadyPaidOut),
		errors.Is(err, ledger.ErrNotPending),
		errors.Is(err, ledger.ErrConflict),
		errors.Is(err, ledger.ErrDuplicateReference):
		return http.StatusConflict
	case errors.Is(err, ledger.ErrValidation),
		errors.Is(err, ledger.ErrInsufficientFunds),
		errors.Is(err, ledger.ErrTreasuryInsufficient),
		errors.Is(err, ledger.ErrNoPayoutStructure),
		errors.Is(err, ledger.ErrPayoutMismatch),
		errors.Is(err, ledger.ErrRebuyNotAllowed),
		errors.Is(err, ledger.ErrNotRegistered),
		errors.Is(err, ledger.ErrAlreadyRegistered),
		errors.Is(err, ledger.ErrTournamentClosed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// errorMessage hides internal failures from clients
func errorMessage(err error) string {
	if statusFor(err) == http.StatusInternalServerError {
		return "Internal error"
	}
	return err.Error()
}
