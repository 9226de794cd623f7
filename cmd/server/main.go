package main

import (
	"context"   // Context for startup and shutdown
	"errors"    // Error matching
	"net/http"  // HTTP server
	"os"        // Signals
	"os/signal" // Signal handling
	"syscall"   // SIGTERM
	"time"      // Timeouts

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging

	"contest_ledger/internal/api"    // HTTP handlers
	"contest_ledger/internal/config" // Configuration
	"contest_ledger/internal/db"     // Database
	"contest_ledger/internal/ledger" // Treasury operations
	"contest_ledger/internal/utils"  // Redis cache
	"contest_ledger/internal/worker" // Background jobs
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	log := logrus.StandardLogger()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if !cfg.IsProd {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gdb, err := db.Open(cfg.DSN(), !cfg.IsProd)
	if err != nil {
		log.Fatalf("failed to connect to DB: %v", err)
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to connect to Redis: %v", err)
	}

	cache := utils.NewRedisCache(redisClient, log)
	store := ledger.NewStore(gdb, ledger.RetryPolicy{
		MaxRetries:      cfg.TxMaxRetries,
		InitialInterval: ledger.DefaultRetryPolicy.InitialInterval,
		MaxInterval:     ledger.DefaultRetryPolicy.MaxInterval,
	})
	svc := ledger.NewService(store,
		ledger.WithLogger(log),
		ledger.WithWalletCache(cache),
		ledger.WithDepositGuard(cache),
	)
	if err := svc.Bootstrap(ctx); err != nil {
		log.Fatalf("failed to ensure treasury account: %v", err)
	}

	reconciler := worker.NewReconciler(svc, cfg.ReconcileInterval, log)
	if err := reconciler.Start(ctx); err != nil {
		log.Fatalf("failed to start reconciler: %v", err)
	}

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		log.Fatalf("failed to set trusted proxies: %v", err)
	}
	api.RegisterRoutes(r, api.Deps{
		Service:       svc,
		DB:            gdb,
		Redis:         redisClient,
		JWTSecret:     cfg.JWTSecret,
		AdminCodeHash: cfg.AdminCodeHash,
		WebhookSecret: cfg.WebhookSecret,
	})

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		log.Info("Server running on " + cfg.AppPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("HTTP shutdown failed")
	}
	if err := reconciler.Stop(); err != nil {
		log.WithError(err).Error("Reconciler shutdown failed")
	}
	_ = redisClient.Close()
}
