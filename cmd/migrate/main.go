package main

import (
	"context" // Context for bootstrap

	"github.com/sirupsen/logrus" // Logging

	"contest_ledger/internal/config" // Configuration
	"contest_ledger/internal/db"     // Database
	"contest_ledger/internal/ledger" // Treasury bootstrap
)

// Main entry point for migration
func main() {
	cfg := config.LoadConfig() // Load configuration
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	gdb, err := db.Open(cfg.DSN(), false)
	if err != nil {
		logrus.Fatalf("failed to connect to database: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		logrus.Fatalf("failed to migrate database: %v", err)
	}
	// The treasury singleton must exist before the first money movement
	svc := ledger.NewService(ledger.NewStore(gdb, ledger.DefaultRetryPolicy), ledger.WithLogger(logrus.StandardLogger()))
	if err := svc.Bootstrap(context.Background()); err != nil {
		logrus.Fatalf("failed to create treasury account: %v", err)
	}
	logrus.Info("Database migrated successfully!")
}
