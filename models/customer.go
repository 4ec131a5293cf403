package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Customer is a fleet tenant. Repairs, pricing and preferences hang off it.
// Deleting a customer is a soft delete, so repair history keeps pointing at it.
type Customer struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"not null;index" json:"name"`
	Email         string         `json:"email"`
	Phone         string         `json:"phone"`
	Address       string         `json:"address"`
	IsVerified    bool           `gorm:"not null;default:false" json:"is_verified"`
	EmailVerified bool           `gorm:"not null;default:false" json:"email_verified"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Customer model
func (Customer) TableName() string {
	return "customers"
}

// BeforeSave normalizes the customer name to lowercase.
func (c *Customer) BeforeSave(tx *gorm.DB) error {
	c.Name = strings.ToLower(strings.TrimSpace(c.Name))
	return nil
}
