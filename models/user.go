package models

import (
	"time"

	"gorm.io/gorm"
)

// User roles
const (
	RoleCustomer   = "customer"
	RoleTechnician = "technician"
	RoleAdmin      = "admin"
)

// User represents a login identity (customer-side user, technician or admin)
type User struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Auth0ID    string         `gorm:"uniqueIndex;not null" json:"auth0_id"` // Auth0 user ID (from 'sub' claim)
	Name       string         `gorm:"not null" json:"name"`
	Email      string         `gorm:"uniqueIndex;not null" json:"email"`
	Role       string         `gorm:"not null;default:'customer'" json:"role"` // "customer", "technician" or "admin"
	CustomerID *uint          `gorm:"index" json:"customer_id,omitempty"`      // set for customer-side users
	Customer   *Customer      `gorm:"foreignKey:CustomerID;constraint:OnDelete:SET NULL" json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// IsAdmin reports whether the user carries the admin role
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}
