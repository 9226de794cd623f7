package api

import (
	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"gorm.io/gorm"                 // GORM ORM library

	"contest_ledger/internal/ledger"     // Ledger service
	"contest_ledger/internal/middleware" // Auth middlewares
)

// Deps are the collaborators of the HTTP layer
type Deps struct {
	Service       *ledger.Service
	DB            *gorm.DB
	Redis         *redis.Client
	JWTSecret     string
	AdminCodeHash string
	WebhookSecret string
}

// RegisterRoutes mounts every endpoint on r
func RegisterRoutes(r *gin.Engine, d Deps) {
	// Auth routes
	r.POST("/user", RegisterHandler(d.Service))
	r.POST("/user/login", LoginHandler(d.DB, d.JWTSecret))

	// Wallet routes (protected by JWT)
	wallet := r.Group("/wallet", middleware.JWTAuthMiddleware(d.JWTSecret))
	wallet.GET("", GetWalletHandler(d.Service, d.Redis))
	wallet.POST("/deposit", DepositHandler(d.Service))
	wallet.POST("/withdraw", WithdrawHandler(d.Service))
	wallet.GET("/transactions", GetTransactionHistoryHandler(d.DB, d.Redis))

	// Tournament routes
	auth := middleware.JWTAuthMiddleware(d.JWTSecret)
	r.POST("/tournament-register", auth, TournamentRegisterHandler(d.Service))
	r.POST("/tournament-rebuy", auth, TournamentRebuyHandler(d.Service))

	// Gateway callbacks (HMAC signed)
	r.POST("/webhooks/payment", middleware.WebhookSignatureMiddleware(d.WebhookSecret), PaymentWebhookHandler(d.Service))

	// Admin routes (static access code)
	admin := r.Group("/admin", middleware.AdminCodeMiddleware(d.AdminCodeHash))
	admin.POST("/approve-payout", ApprovePayoutHandler(d.Service))
	admin.POST("/reject-payout", RejectPayoutHandler(d.Service))
	admin.POST("/tournaments", CreateTournamentHandler(d.Service))
	admin.POST("/tournaments/:id/start", StartTournamentHandler(d.Service))
	admin.POST("/tournaments/:id/settle", SettleTournamentHandler(d.Service))
	admin.POST("/tournaments/:id/sweep", SweepHandler(d.Service))
	admin.GET("/treasury", TreasuryHandler(d.Service))
	admin.GET("/transactions", ListTransactionsHandler(d.DB, d.Redis))
}
