package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DiscountType is how a reward changes a repair price
type DiscountType string

const (
	DiscountPercentage  DiscountType = "PERCENTAGE"
	DiscountFixedAmount DiscountType = "FIXED_AMOUNT"
	DiscountFree        DiscountType = "FREE"
	DiscountNone        DiscountType = "NONE"
)

// RewardCategory groups reward types
type RewardCategory string

const (
	CategoryRepairDiscount RewardCategory = "REPAIR_DISCOUNT"
	CategoryFreeService    RewardCategory = "FREE_SERVICE"
	CategoryMerchandise    RewardCategory = "MERCHANDISE"
	CategoryPriority       RewardCategory = "PRIORITY_SERVICE"
)

// AppliesToRepairs reports whether rewards of this category may reduce a repair price
func (c RewardCategory) AppliesToRepairs() bool {
	return c == CategoryRepairDiscount || c == CategoryFreeService
}

// RedemptionStatus tracks a redemption through fulfilment
type RedemptionStatus string

const (
	RedemptionPending   RedemptionStatus = "PENDING"
	RedemptionApproved  RedemptionStatus = "APPROVED"
	RedemptionFulfilled RedemptionStatus = "FULFILLED"
	RedemptionRejected  RedemptionStatus = "REJECTED"
)

// Reward is the point balance of one customer-side user
type Reward struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Points    int       `gorm:"not null;default:0" json:"points"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Reward model
func (Reward) TableName() string {
	return "rewards"
}

// ReferralCode is the shareable code issued to a user
type ReferralCode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex;not null" json:"user_id"`
	Code      string    `gorm:"uniqueIndex;not null" json:"code"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the ReferralCode model
func (ReferralCode) TableName() string {
	return "referral_codes"
}

// Referral links a referred user to the user who referred them
type Referral struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	ReferralCodeID uint       `gorm:"index;not null" json:"referral_code_id"`
	ReferrerID     uint       `gorm:"index;not null" json:"referrer_id"`
	ReferredID     uint       `gorm:"uniqueIndex;not null" json:"referred_id"`
	BonusAwarded   bool       `gorm:"not null;default:false" json:"bonus_awarded"`
	BonusAwardedAt *time.Time `json:"bonus_awarded_at"`
	CreatedAt      time.Time  `json:"created_at"`
}

// TableName specifies the table name for the Referral model
func (Referral) TableName() string {
	return "referrals"
}

// RewardType classifies a discount mechanism
type RewardType struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Name          string          `gorm:"not null" json:"name"`
	DiscountType  DiscountType    `gorm:"type:varchar(20);not null" json:"discount_type"`
	DiscountValue decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"discount_value"`
	Category      RewardCategory  `gorm:"type:varchar(30);not null" json:"category"`
	CreatedAt     time.Time       `json:"created_at"`
}

// TableName specifies the table name for the RewardType model
func (RewardType) TableName() string {
	return "reward_types"
}

// RewardOption is something a customer can buy with points
type RewardOption struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	RewardTypeID uint       `gorm:"index;not null" json:"reward_type_id"`
	RewardType   RewardType `gorm:"foreignKey:RewardTypeID" json:"reward_type"`
	Name         string     `gorm:"not null" json:"name"`
	Description  string     `json:"description"`
	PointsCost   int        `gorm:"not null" json:"points_cost"`
	IsActive     bool       `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
}

// TableName specifies the table name for the RewardOption model
func (RewardOption) TableName() string {
	return "reward_options"
}

// RewardRedemption records points spent on a reward option
type RewardRedemption struct {
	ID                uint             `gorm:"primaryKey" json:"id"`
	RewardID          uint             `gorm:"index;not null" json:"reward_id"`
	Reward            Reward           `gorm:"foreignKey:RewardID" json:"-"`
	RewardOptionID    uint             `gorm:"index;not null" json:"reward_option_id"`
	RewardOption      RewardOption     `gorm:"foreignKey:RewardOptionID" json:"reward_option"`
	Status            RedemptionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	PointsSpent       int              `gorm:"not null" json:"points_spent"`
	AppliedToRepairID *uint            `gorm:"uniqueIndex" json:"applied_to_repair_id"`
	ProcessedByID     *uint            `json:"processed_by_id"`
	ProcessedAt       *time.Time       `json:"processed_at"`
	Notes             string           `gorm:"type:text" json:"notes"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// TableName specifies the table name for the RewardRedemption model
func (RewardRedemption) TableName() string {
	return "reward_redemptions"
}
