package models

import "time"

// UnitRepairCount counts completed repairs per customer unit and selects the pricing tier
type UnitRepairCount struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CustomerID  uint      `gorm:"not null;uniqueIndex:idx_unit_repair_counts_customer_unit" json:"customer_id"`
	UnitNumber  string    `gorm:"not null;uniqueIndex:idx_unit_repair_counts_customer_unit" json:"unit_number"`
	RepairCount int       `gorm:"not null;default:0" json:"repair_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for the UnitRepairCount model
func (UnitRepairCount) TableName() string {
	return "unit_repair_counts"
}
