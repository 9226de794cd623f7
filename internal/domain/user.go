package domain

import "time"

// User Model
type User struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`            // Primary key (external user id)
	Username  string    `gorm:"unique;not null;size:64" json:"username"` // Unique username
	Password  string    `gorm:"not null" json:"-"`                       // Hashed password
	Role      string    `gorm:"default:user" json:"role"`                // Role: user or admin
	Wallet    Wallet    `gorm:"foreignKey:UserID" json:"wallet"`         // One-to-one relationship with Wallet
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`        // Timestamp of creation
}

// Roles
const (
	RoleUser  = "user"  // Regular user
	RoleAdmin = "admin" // Administrator
)
