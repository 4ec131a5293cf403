package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RepairStatus is the queue status of a repair
type RepairStatus string

const (
	StatusRequested  RepairStatus = "REQUESTED"
	StatusPending    RepairStatus = "PENDING"
	StatusApproved   RepairStatus = "APPROVED"
	StatusInProgress RepairStatus = "IN_PROGRESS"
	StatusCompleted  RepairStatus = "COMPLETED"
	StatusDenied     RepairStatus = "DENIED"
)

// ActiveStatuses are the statuses that count against a technician's workload
var ActiveStatuses = []RepairStatus{StatusRequested, StatusPending, StatusApproved, StatusInProgress}

// UnitBlockingStatuses are the non-terminal statuses limited to one repair per unit outside a batch
var UnitBlockingStatuses = []RepairStatus{StatusPending, StatusApproved, StatusInProgress}

// Valid reports whether s is a known status
func (s RepairStatus) Valid() bool {
	switch s {
	case StatusRequested, StatusPending, StatusApproved, StatusInProgress, StatusCompleted, StatusDenied:
		return true
	}
	return false
}

// Terminal reports whether no further status change is allowed
func (s RepairStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusDenied
}

// Placeholders used when a customer request omits details
const (
	DefaultDamageType  = "Unknown"
	DefaultDescription = "Repair requested by customer"
)

// DamageTypes are the recognised break classifications
var DamageTypes = []string{"Chip", "Star", "Bullseye", "Combination", "Crack", "Half Moon", DefaultDamageType}

// ValidDamageType reports whether damageType is a recognised classification (case-insensitive)
func ValidDamageType(damageType string) bool {
	for _, t := range DamageTypes {
		if strings.EqualFold(t, damageType) {
			return true
		}
	}
	return false
}

// Repair tracks one physical windshield break through approval, work and completion
type Repair struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	CustomerID         *uint            `gorm:"index" json:"customer_id"` // kept when the customer is soft deleted, cleared on purge
	Customer           *Customer        `gorm:"foreignKey:CustomerID;constraint:OnDelete:SET NULL" json:"customer,omitempty"`
	TechnicianID       *uint            `gorm:"index" json:"technician_id"`
	Technician         *Technician      `gorm:"foreignKey:TechnicianID" json:"technician,omitempty"`
	UnitNumber         string           `gorm:"not null;index" json:"unit_number"`
	RepairDate         time.Time        `json:"repair_date"`
	DamageType         string           `gorm:"not null" json:"damage_type"`
	DrillingPerformed  bool             `gorm:"not null;default:false" json:"drilling_performed"`
	ResinViscosity     string           `json:"resin_viscosity,omitempty"`
	WindshieldTemp     *float64         `json:"windshield_temperature,omitempty"`
	QueueStatus        RepairStatus     `gorm:"type:varchar(20);not null;index" json:"queue_status"`
	Cost               decimal.Decimal  `gorm:"type:decimal(10,2);not null" json:"cost"`
	QuotedCost         *decimal.Decimal `gorm:"type:decimal(10,2)" json:"quoted_cost,omitempty"` // precomputed batch price
	CostOverride       *decimal.Decimal `gorm:"type:decimal(10,2)" json:"cost_override"`
	OverrideReason     string           `json:"override_reason,omitempty"`
	RepairBatchID      *uuid.UUID       `gorm:"type:varchar(36);index" json:"repair_batch_id"`
	BreakNumber        int              `gorm:"not null;default:1" json:"break_number"`
	TotalBreaksInBatch int              `gorm:"not null;default:1" json:"total_breaks_in_batch"`
	BeforePhotoKey     *string          `json:"before_photo_key,omitempty"`
	AfterPhotoKey      *string          `json:"after_photo_key,omitempty"`
	CustomerNotes      string           `gorm:"type:text" json:"customer_notes"`
	TechnicianNotes    string           `gorm:"type:text" json:"technician_notes"`
	Approval           *RepairApproval  `gorm:"foreignKey:RepairID" json:"approval,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
	DeletedAt          gorm.DeletedAt   `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Repair model
func (Repair) TableName() string {
	return "repairs"
}

// IsBatched reports whether the repair is one break of a multi-break batch
func (r *Repair) IsBatched() bool {
	return r.RepairBatchID != nil
}

// HasPhotos reports whether any photo reference is stored
func (r *Repair) HasPhotos() bool {
	return (r.BeforePhotoKey != nil && *r.BeforePhotoKey != "") || (r.AfterPhotoKey != nil && *r.AfterPhotoKey != "")
}

// AssignedTo reports whether the repair is assigned to technicianID
func (r *Repair) AssignedTo(technicianID uint) bool {
	return r.TechnicianID != nil && *r.TechnicianID == technicianID
}

// BelongsTo reports whether the repair belongs to customerID
func (r *Repair) BelongsTo(customerID uint) bool {
	return r.CustomerID != nil && *r.CustomerID == customerID
}
