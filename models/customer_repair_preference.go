package models

import "time"

// ApprovalMode controls whether technician-discovered repairs need customer sign-off
type ApprovalMode string

const (
	ApprovalAutoApprove     ApprovalMode = "AUTO_APPROVE"
	ApprovalRequireApproval ApprovalMode = "REQUIRE_APPROVAL"
	ApprovalUnitThreshold   ApprovalMode = "UNIT_THRESHOLD"
)

// CustomerRepairPreference holds a customer's approval policy and lot-walking schedule
type CustomerRepairPreference struct {
	ID                     uint         `gorm:"primaryKey" json:"id"`
	CustomerID             uint         `gorm:"uniqueIndex;not null" json:"customer_id"`
	FieldRepairApproval    ApprovalMode `gorm:"type:varchar(20);not null;default:'REQUIRE_APPROVAL'" json:"field_repair_approval"`
	UnitsPerVisitThreshold *int         `json:"units_per_visit_threshold"`
	LotWalkingEnabled      bool         `gorm:"not null;default:false" json:"lot_walking_enabled"`
	LotWalkingFrequency    string       `json:"lot_walking_frequency,omitempty"` // weekly, biweekly, monthly, quarterly
	LotWalkingTime         string       `json:"lot_walking_time,omitempty"`      // HH:MM
	LotWalkingDays         []string     `gorm:"serializer:json" json:"lot_walking_days"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// TableName specifies the table name for the CustomerRepairPreference model
func (CustomerRepairPreference) TableName() string {
	return "customer_repair_preferences"
}
