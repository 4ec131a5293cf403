package models

import "time"

// ApprovalOrigin records how an approval decision came about
type ApprovalOrigin string

const (
	OriginCustomerInitiated    ApprovalOrigin = "CUSTOMER_INITIATED"
	OriginTechnicianDiscovered ApprovalOrigin = "TECHNICIAN_DISCOVERED"
	OriginAutoApproved         ApprovalOrigin = "AUTO_APPROVED"
)

// RepairApproval is the one approval/denial decision recorded for a repair
type RepairApproval struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	RepairID     uint           `gorm:"uniqueIndex;not null" json:"repair_id"`
	Approved     bool           `gorm:"not null" json:"approved"`
	ApprovedByID *uint          `gorm:"index" json:"approved_by_id"` // user who decided; nil for automatic decisions
	ApprovedBy   *User          `gorm:"foreignKey:ApprovedByID" json:"-"`
	ApprovalDate time.Time      `json:"approval_date"`
	Origin       ApprovalOrigin `gorm:"type:varchar(30);not null" json:"origin"`
	Notes        string         `gorm:"type:text" json:"notes"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// TableName specifies the table name for the RepairApproval model
func (RepairApproval) TableName() string {
	return "repair_approvals"
}

// CustomerInitiated reports whether the approval is the implicit one for a customer request
func (a *RepairApproval) CustomerInitiated() bool {
	return a != nil && a.Origin == OriginCustomerInitiated
}
