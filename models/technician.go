package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Technician is a field worker linked 1:1 to a login identity
type Technician struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	UserID             uint             `gorm:"uniqueIndex;not null" json:"user_id"`
	User               User             `gorm:"foreignKey:UserID" json:"-"`
	Name               string           `gorm:"not null" json:"name"`
	IsActive           bool             `gorm:"not null" json:"is_active"`
	IsManager          bool             `gorm:"not null;default:false" json:"is_manager"`
	CanOverridePricing bool             `gorm:"not null;default:false" json:"can_override_pricing"`
	ApprovalLimit      *decimal.Decimal `gorm:"type:decimal(10,2)" json:"approval_limit"` // nil means no cap
	ManagedTechnicians []*Technician    `gorm:"many2many:technician_managed_technicians" json:"managed_technicians,omitempty"`
	RepairsCompleted   int              `gorm:"not null;default:0" json:"repairs_completed"`
	LastActiveAt       *time.Time       `json:"last_active_at"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	DeletedAt          gorm.DeletedAt   `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Technician model
func (Technician) TableName() string {
	return "technicians"
}

// MayOverridePricing reports whether the technician may pin a repair's price
func (t *Technician) MayOverridePricing() bool {
	return t != nil && t.IsManager && t.CanOverridePricing
}

// Manages reports whether technicianID is one of this manager's subordinates
func (t *Technician) Manages(technicianID uint) bool {
	if t == nil || !t.IsManager {
		return false
	}
	for _, sub := range t.ManagedTechnicians {
		if sub != nil && sub.ID == technicianID {
			return true
		}
	}
	return false
}
