package api

import (
	"net/http" // HTTP status codes
	"strconv"  // String conversion

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/redis/go-redis/v9"  // Redis client
	"github.com/shopspring/decimal" // Money amounts
	"gorm.io/gorm"                  // GORM ORM library

	"contest_ledger/internal/domain"     // Domain models
	"contest_ledger/internal/ledger"     // Ledger service
	"contest_ledger/internal/middleware" // Auth context helpers
	"contest_ledger/internal/utils"      // Cache helpers
)

// AmountRequest carries a money amount
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"` // Must be positive
}

// GetWalletHandler returns wallet info for the authenticated user
func GetWalletHandler(svc *ledger.Service, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c) // Get userID from context
		if !ok {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := c.Request.Context()
		cacheKey := utils.WalletKey(userID)
		var wallet domain.Wallet
		// Serve from cache when possible
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &wallet); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"wallet": wallet, "cached": true})
			return
		}
		w, err := svc.Wallet(ctx, userID) // Load from the database
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": "Wallet not found"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, w, utils.WalletTTL) // Cache miss, store it
		c.JSON(http.StatusOK, gin.H{"wallet": w, "cached": false})
	}
}

// DepositHandler registers a pending deposit before the user is sent to the gateway
func DepositHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c) // Get userID from context
		if !ok {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req AmountRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil || !req.Amount.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid amount"})
			return
		}
		// Record the pending deposit
		t, err := svc.InitiateDeposit(c.Request.Context(), userID, req.Amount)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": errorMessage(err)})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"reference": t.Reference, "status": t.Status, "amount": t.Amount})
	}
}

// WithdrawHandler reserves a withdrawal for admin approval
func WithdrawHandler(svc *ledger.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c) // Get userID from context
		if !ok {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "Unauthorized"})
			return
		}
		var req AmountRequest // Bind JSON request to struct
		// Validate request
		if err := c.ShouldBindJSON(&req); err != nil || !req.Amount.IsPositive() {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid amount"})
			return
		}
		// Reserve the funds until an admin decides
		t, err := svc.RequestWithdrawal(c.Request.Context(), userID, req.Amount)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"success": false, "error": errorMessage(err)})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":   true,
			"message":   "Withdrawal requested, awaiting approval",
			"reference": t.Reference,
		})
	}
}

// GetTransactionHistoryHandler returns the authenticated user's transactions, newest first
func GetTransactionHistoryHandler(db *gorm.DB, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := middleware.UserID(c) // Get userID from context
		if !ok {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		ctx := c.Request.Context()
		q := db.WithContext(ctx)
		var wallet domain.Wallet // Find wallet
		if err := q.Where("user_id = ?", userID).First(&wallet).Error; err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Wallet not found"})
			return
		}
		page, pageSize := pagination(c) // Get pagination params
		cacheKey := utils.TxHistoryPrefix(userID) + ":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
		var cached TransactionPage
		// Try to get from cache
		if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
			cached.Cached = true
			c.JSON(http.StatusOK, cached)
			return
		}
		query := q.Model(&domain.Transaction{}).Where("user_id = ?", userID)
		resp, err := loadTransactionPage(query, page, pageSize)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch transactions"})
			return
		}
		_ = utils.SetCache(ctx, rdb, cacheKey, resp, utils.TxListTTL) // Store result in cache
		c.JSON(http.StatusOK, resp)
	}
}

// TransactionPage is one page of a transaction listing
type TransactionPage struct {
	Transactions []domain.Transaction `json:"transactions"`
	Page         int                  `json:"page"`
	PageSize     int                  `json:"page_size"`
	Total        int64                `json:"total"`
	TotalPages   int                  `json:"total_pages"`
	Cached       bool                 `json:"cached"`
}

func loadTransactionPage(query *gorm.DB, page, pageSize int) (*TransactionPage, error) {
	var total int64 // Total count for pagination
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, err
	}
	txs := []domain.Transaction{}
	if err := query.Session(&gorm.Session{}).
		Order("created_at desc").Order("reference").
		Offset((page - 1) * pageSize). // Skip earlier pages
		Limit(pageSize).
		Find(&txs).Error; err != nil {
		return nil, err
	}
	return &TransactionPage{
		Transactions: txs,
		Page:         page,
		PageSize:     pageSize,
		Total:        total,
		TotalPages:   totalPages(total, pageSize),
	}, nil
}
