package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CustomerPricing overrides the default price ladder for one customer
type CustomerPricing struct {
	ID                       uint             `gorm:"primaryKey" json:"id"`
	CustomerID               uint             `gorm:"uniqueIndex;not null" json:"customer_id"`
	UseCustomPricing         bool             `gorm:"not null;default:false" json:"use_custom_pricing"`
	RepairPrice1             *decimal.Decimal `gorm:"type:decimal(10,2)" json:"repair_price_1"`
	RepairPrice2             *decimal.Decimal `gorm:"type:decimal(10,2)" json:"repair_price_2"`
	RepairPrice3             *decimal.Decimal `gorm:"type:decimal(10,2)" json:"repair_price_3"`
	RepairPrice4             *decimal.Decimal `gorm:"type:decimal(10,2)" json:"repair_price_4"`
	RepairPrice5Plus         *decimal.Decimal `gorm:"type:decimal(10,2)" json:"repair_price_5_plus"`
	VolumeDiscountThreshold  int              `gorm:"not null;default:0" json:"volume_discount_threshold"`
	VolumeDiscountPercentage decimal.Decimal  `gorm:"type:decimal(5,2);not null" json:"volume_discount_percentage"`
	CreatedAt                time.Time        `json:"created_at"`
	UpdatedAt                time.Time        `json:"updated_at"`
}

// TableName specifies the table name for the CustomerPricing model
func (CustomerPricing) TableName() string {
	return "customer_pricing"
}

// TierOverride returns the configured price for a tier, or nil when unset.
// Tiers above 5 share the 5+ price.
func (p *CustomerPricing) TierOverride(tier int) *decimal.Decimal {
	if p == nil {
		return nil
	}
	switch {
	case tier <= 1:
		return p.RepairPrice1
	case tier == 2:
		return p.RepairPrice2
	case tier == 3:
		return p.RepairPrice3
	case tier == 4:
		return p.RepairPrice4
	default:
		return p.RepairPrice5Plus
	}
}
