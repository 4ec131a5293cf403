package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/fleetglass-api/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("repository: not found")
	// ErrAlreadyApplied is returned when a redemption is already linked to a repair.
	ErrAlreadyApplied = errors.New("repository: redemption already applied")
	// ErrInsufficientPoints is returned when a point balance cannot cover a spend.
	ErrInsufficientPoints = errors.New("repository: insufficient points")
)

// RepairFilter narrows repair listings
type RepairFilter struct {
	CustomerID   *uint
	TechnicianID *uint
	Statuses     []models.RepairStatus
	BatchID      *uuid.UUID
	Limit        int
}

// RepairRepository persists repairs, their approvals and per-unit counters
type RepairRepository interface {
	Create(ctx context.Context, repair *models.Repair) error
	Save(ctx context.Context, repair *models.Repair) error
	FindByID(ctx context.Context, id uint) (*models.Repair, error)
	FindByBatchID(ctx context.Context, batchID uuid.UUID) ([]models.Repair, error)
	List(ctx context.Context, filter RepairFilter) ([]models.Repair, error)
	// ActiveForUnit returns PENDING/APPROVED/IN_PROGRESS repairs for the unit, excluding excludeID.
	ActiveForUnit(ctx context.Context, customerID uint, unitNumber string, excludeID uint) ([]models.Repair, error)
	ActiveCountsByTechnician(ctx context.Context) (map[uint]int64, error)
	CountCompletedForCustomer(ctx context.Context, customerID uint) (int64, error)
	// CountUnitsDiscoveredSince counts distinct units other than excludeUnit that a technician logged for a customer since the given time.
	CountUnitsDiscoveredSince(ctx context.Context, customerID, technicianID uint, since time.Time, excludeUnit string) (int64, error)
	UpsertApproval(ctx context.Context, approval *models.RepairApproval) error

	UnitRepairCount(ctx context.Context, customerID uint, unitNumber string) (int, error)
	// IncrementUnitRepairCount atomically adds one completed repair and returns the new count.
	IncrementUnitRepairCount(ctx context.Context, customerID uint, unitNumber string) (int, error)
	ResetUnitRepairCount(ctx context.Context, customerID uint, unitNumber string) error
}

// CustomerRepository reads customer configuration
type CustomerRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Customer, error)
	// Pricing returns nil without error when the customer has no pricing row.
	Pricing(ctx context.Context, customerID uint) (*models.CustomerPricing, error)
	// Preference returns nil without error when the customer has no preference row.
	Preference(ctx context.Context, customerID uint) (*models.CustomerRepairPreference, error)
	// PrimaryUser returns the earliest customer-side user of the customer.
	PrimaryUser(ctx context.Context, customerID uint) (*models.User, error)
}

// TechnicianRepository reads technicians
type TechnicianRepository interface {
	FindByID(ctx context.Context, id uint) (*models.Technician, error)
	FindByUserID(ctx context.Context, userID uint) (*models.Technician, error)
	ListActive(ctx context.Context) ([]models.Technician, error)
	RecordCompletion(ctx context.Context, technicianID uint, at time.Time) error
}

// UserRepository persists login identities
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByAuth0ID(ctx context.Context, auth0ID string) (*models.User, error)
	Update(ctx context.Context, user *models.User, updates map[string]interface{}) error
}

// RewardLedgerRepository persists point balances, redemptions and referrals
type RewardLedgerRepository interface {
	// RewardForUser returns the user's balance row, creating it with zero points when absent.
	RewardForUser(ctx context.Context, userID uint) (*models.Reward, error)
	AddPoints(ctx context.Context, rewardID uint, points int) error
	SpendPoints(ctx context.Context, rewardID uint, points int) error

	FindOption(ctx context.Context, id uint) (*models.RewardOption, error)
	CreateRedemption(ctx context.Context, redemption *models.RewardRedemption) error
	FindRedemption(ctx context.Context, id uint) (*models.RewardRedemption, error)
	ListRedemptions(ctx context.Context, rewardID uint) ([]models.RewardRedemption, error)
	// RepairEligibleRedemptions returns unlinked PENDING redemptions of repair-applicable categories
	// held by any user of the customer, oldest first.
	RepairEligibleRedemptions(ctx context.Context, customerID uint) ([]models.RewardRedemption, error)
	RedemptionsForRepair(ctx context.Context, repairID uint, statuses []models.RedemptionStatus) ([]models.RewardRedemption, error)
	// LinkRedemption sets applied_to_repair only if the redemption is not yet linked.
	LinkRedemption(ctx context.Context, redemptionID, repairID uint) error
	UpdateRedemptionStatus(ctx context.Context, id uint, status models.RedemptionStatus, processedBy *uint, at time.Time) error

	ReferralCodeForUser(ctx context.Context, userID uint) (*models.ReferralCode, error)
	CreateReferralCode(ctx context.Context, code *models.ReferralCode) error
	FindReferralCode(ctx context.Context, code string) (*models.ReferralCode, error)
	CreateReferral(ctx context.Context, referral *models.Referral) error
	// UnawardedReferralFor returns the referral of any of the given users whose bonus is still pending.
	UnawardedReferralFor(ctx context.Context, referredUserIDs []uint) (*models.Referral, error)
	// MarkReferralAwarded flips bonus_awarded once; it reports false when another caller already did.
	MarkReferralAwarded(ctx context.Context, referralID uint, at time.Time) (bool, error)
}

// NotificationRepository persists notifications
type NotificationRepository interface {
	Create(ctx context.Context, notification *models.Notification) error
	ListForTechnician(ctx context.Context, technicianID uint, unreadOnly bool, limit int) ([]models.Notification, error)
	ListForUser(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error)
	FindByID(ctx context.Context, id uint) (*models.Notification, error)
	MarkRead(ctx context.Context, id uint, at time.Time) error
	MarkRepairNotificationsRead(ctx context.Context, repairID, technicianID uint, at time.Time) (int64, error)
}
