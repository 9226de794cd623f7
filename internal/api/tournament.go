package api

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Money amounts

	"contest_ledger/internal/ledger"     // Ledger service
	"contest_ledger/internal/middleware" // Auth context helpers
)

// TournamentRegisterRequest is the body of POST /tournament-register
type TournamentRegisterRequest struct {
	UserID       string          `json:"userId" binding:"required"`
	TournamentID string          `json:"tournamentId" binding:"required"`
	FeeAmount    decimal.Decimal `json:"feeAmount"`
}

// TournamentRebuyRequest is the body of POST /tournament-rebuy
type TournamentRebuyRequest struct {
	UserID       string          `json:"userId" binding:"required"`
	TournamentID string          `json:"tournamentId" binding:"required"`
	Amount       decimal.Decimal `json:"amount"`
}

// fail writes the tournament endpoints' error envelope
func fail(c *gin.Context, code int, msg string) {
	c.JSON(code, gin.H{"success": false, "error": msg})
}

// sameUser rejects bodies naming a user other than the token's
func sameUser(c *gin.Context, userID string) bool {
	authed, ok := middleware.UserID(c) // Get userID from context
	if !ok {
		fail(c, http.StatusUnauthorized, "Unauthorized")
		return false
	}
	// Users act only for themselves
	if authed != userID {
		fail(c, http.StatusForbidden, "Cannot act for another user")
		return false
	}
	return true
}

// TournamentRegisterHandler charges the entry fee and seats the player
func TournamentRegisterHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TournamentRegisterRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Invalid request")
			return
		}
		if !sameUser(c, req.UserID) {
			return // Response already written
		}
		player, err := svc.RegisterForTournament(c.Request.Context(), req.UserID, req.TournamentID, req.FeeAmount)
		if err != nil {
			fail(c, http.StatusBadRequest, errorMessage(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"message": "Registered for tournament",
			"player":  player,
		})
	}
}

// TournamentRebuyHandler charges a rebuy and tops up the player's balance
func TournamentRebuyHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TournamentRebuyRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, "Invalid request")
			return
		}
		if !sameUser(c, req.UserID) {
			return // Response already written
		}
		// The quoted amount must match the current rebuy fee
		t, err := svc.RequestRebuy(c.Request.Context(), req.UserID, req.TournamentID, req.Amount)
		if err != nil {
			fail(c, http.StatusBadRequest, errorMessage(err))
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "Rebuy processed",
			"reference": t.Reference,
		})
	}
}
