package db

import (
	"contest_ledger/internal/domain" // Importing domain models

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
	"gorm.io/gorm/logger"  // GORM logger levels
)

// Models lists every table managed by the ledger
func Models() []any {
	return []any{
		&domain.User{},            // users
		&domain.Wallet{},          // wallets
		&domain.TreasuryAccount{}, // treasury singleton
		&domain.Tournament{},      // tournaments
		&domain.Player{},          // tournament players
		&domain.Transaction{},     // transaction log
	}
}

// Open connects to MySQL with the given DSN
func Open(dsn string, debug bool) (*gorm.DB, error) {
	level := logger.Warn // Only warnings and errors by default
	if debug {
		level = logger.Info // Log every statement in development
	}
	return gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(level)})
}

// Migrate performs automatic migration for the database schema
func Migrate(db *gorm.DB) error {
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	return db.AutoMigrate(Models()...)
}
