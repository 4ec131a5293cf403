package models

import (
	"time"

	"github.com/google/uuid"
)

// Notification priorities
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// Notification is a persisted message for a technician or a customer-side user
type Notification struct {
	ID                    uint       `gorm:"primaryKey" json:"id"`
	RecipientTechnicianID *uint      `gorm:"index" json:"recipient_technician_id,omitempty"`
	RecipientUserID       *uint      `gorm:"index" json:"recipient_user_id,omitempty"`
	Kind                  string     `gorm:"not null" json:"kind"`
	Message               string     `gorm:"type:text;not null" json:"message"`
	Priority              string     `gorm:"not null;default:'normal'" json:"priority"`
	RepairID              *uint      `gorm:"index" json:"repair_id,omitempty"`
	RepairBatchID         *uuid.UUID `gorm:"type:varchar(36);index" json:"repair_batch_id,omitempty"`
	IsRead                bool       `gorm:"not null;default:false;index" json:"read"`
	ReadAt                *time.Time `json:"read_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
}

// TableName specifies the table name for the Notification model
func (Notification) TableName() string {
	return "notifications"
}
