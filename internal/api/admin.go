package api

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Money amounts
	"github.com/sirupsen/logrus"    // Logging library
	"gorm.io/gorm"                  // GORM ORM library

	"contest_ledger/internal/domain" // Domain models
	"contest_ledger/internal/ledger" // Ledger service
	"contest_ledger/internal/utils"  // Cache helpers
)

// PayoutDecisionRequest names a pending withdrawal
type PayoutDecisionRequest struct {
	PayoutID string `json:"payoutId" binding:"required"` // Withdrawal reference
	Reason   string `json:"reason"`                      // Rejection reason
}

// CreateTournamentRequest is the admin tournament setup body
type CreateTournamentRequest struct {
	ID              string              `json:"id"`
	Name            string              `json:"name" binding:"required"`
	StartingBalance decimal.Decimal     `json:"startingBalance"`
	Fee             decimal.Decimal     `json:"fee"`
	RebuyFee        decimal.Decimal     `json:"rebuyFee"`
	PrizePool       decimal.Decimal     `json:"prizePool"`
	PayoutStructure []domain.PayoutSlot `json:"payoutStructure"`
	Status          string              `json:"status"`
}

// ApprovePayoutHandler completes a pending withdrawal
func ApprovePayoutHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PayoutDecisionRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		t, err := svc.ApprovePayout(c.Request.Context(), req.PayoutID) // Mark as paid
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": errorMessage(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transaction": t})
	}
}

// RejectPayoutHandler refuses a pending withdrawal and refunds it
func RejectPayoutHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req PayoutDecisionRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		t, err := svc.RejectPayout(c.Request.Context(), req.PayoutID, req.Reason) // Refund in the same transaction
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": errorMessage(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "transaction": t})
	}
}

// CreateTournamentHandler sets up a tournament
func CreateTournamentHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTournamentRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Create tournament
		t, err := svc.CreateTournament(c.Request.Context(), ledger.NewTournament{
			ID:              req.ID,
			Name:            req.Name,
			StartingBalance: req.StartingBalance,
			Fee:             req.Fee,
			RebuyFee:        req.RebuyFee,
			PrizePool:       req.PrizePool,
			PayoutStructure: req.PayoutStructure,
			Status:          req.Status,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": errorMessage(err)})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"tournament": t})
	}
}

// StartTournamentHandler opens an upcoming tournament
func StartTournamentHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.StartTournament(c.Request.Context(), c.Param("id")) // Tournament id from path
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": errorMessage(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tournament": t})
	}
}

// SettleTournamentHandler pays out a tournament
func SettleTournamentHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := svc.SettleTournamentPayout(c.Request.Context(), c.Param("id")) // Pay winners once
		if err != nil {
			logrus.WithFields(logrus.Fields{"tournament_id": c.Param("id"), "error": err.Error()}).Warn("Settlement refused")
			c.JSON(statusFor(err), gin.H{"error": errorMessage(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"settlement": st})
	}
}

// SweepHandler moves collected tournament funds into the treasury
func SweepHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AmountRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil || !req.Amount.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
			return
		}
		t, err := svc.SweepTournamentFundsToTreasury(c.Request.Context(), c.Param("id"), req.Amount)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": errorMessage(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{"transaction": t})
	}
}

// TreasuryHandler returns the treasury account
func TreasuryHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		tr, err := svc.Treasury(c.Request.Context()) // Singleton account
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load treasury"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"treasury": tr})
	}
}

// ListTransactionsHandler returns all transactions, with optional filtering by user, tournament, type, status or date
func ListTransactionsHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize := pagination(c) // Get pagination params
		filters := []string{"user_id", "tournament_id", "type", "status", "from", "to"}
		// Build cache key from all query params
		keyParts := make([]string, 0, len(filters)+2)
		for _, k := range filters {
			keyParts = append(keyParts, k+"="+c.Query(k))
		}
		keyParts = append(keyParts, "page="+c.DefaultQuery("page", "1"), "page_size="+c.DefaultQuery("page_size", ""))
		cacheKey := "admin:txs:" + strings.Join(keyParts, ":")

		var cached TransactionPage
		// Try to get from cache
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true
			c.JSON(http.StatusOK, cached)
			return
		}
		query := db.WithContext(ctx).Model(&domain.Transaction{})
		// Filter by user
		if v := c.Query("user_id"); v != "" {
			query = query.Where("user_id = ?", v)
		}
		// Filter by tournament
		if v := c.Query("tournament_id"); v != "" {
			query = query.Where("tournament_id = ?", v)
		}
		// Filter by type
		if v := c.Query("type"); v != "" {
			query = query.Where("type = ?", v)
		}
		// Filter by status
		if v := c.Query("status"); v != "" {
			query = query.Where("status = ?", v)
		}
		// Filter by date range
		if v := c.Query("from"); v != "" {
			query = query.Where("created_at >= ?", v)
		}
		if v := c.Query("to"); v != "" {
			query = query.Where("created_at <= ?", v)
		}
		resp, err := loadTransactionPage(query, page, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, utils.TxListTTL) // Store result in cache
		c.JSON(http.StatusOK, resp)
	}
}
