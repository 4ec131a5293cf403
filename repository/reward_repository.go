package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kendall-kelly/fleetglass-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var repairApplicableCategories = []models.RewardCategory{
	models.CategoryRepairDiscount,
	models.CategoryFreeService,
}

type gormRewardLedgerRepository struct {
	db *gorm.DB
}

var _ RewardLedgerRepository = (*gormRewardLedgerRepository)(nil)

func (r *gormRewardLedgerRepository) RewardForUser(ctx context.Context, userID uint) (*models.Reward, error) {
	db := r.db.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&models.Reward{UserID: userID}).Error; err != nil {
		return nil, fmt.Errorf("failed to create reward balance: %w", err)
	}

	var reward models.Reward
	if err := db.Where("user_id = ?", userID).First(&reward).Error; err != nil {
		return nil, translate(err)
	}
	return &reward, nil
}

func (r *gormRewardLedgerRepository) AddPoints(ctx context.Context, rewardID uint, points int) error {
	err := r.db.WithContext(ctx).
		Model(&models.Reward{}).
		Where("id = ?", rewardID).
		UpdateColumn("points", gorm.Expr("points + ?", points)).Error
	if err != nil {
		return fmt.Errorf("failed to add points: %w", err)
	}
	return nil
}

func (r *gormRewardLedgerRepository) SpendPoints(ctx context.Context, rewardID uint, points int) error {
	result := r.db.WithContext(ctx).
		Model(&models.Reward{}).
		Where("id = ? AND points >= ?", rewardID, points).
		UpdateColumn("points", gorm.Expr("points - ?", points))
	if result.Error != nil {
		return fmt.Errorf("failed to spend points: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientPoints
	}
	return nil
}

func (r *gormRewardLedgerRepository) FindOption(ctx context.Context, id uint) (*models.RewardOption, error) {
	var option models.RewardOption
	if err := r.db.WithContext(ctx).Preload("RewardType").First(&option, id).Error; err != nil {
		return nil, translate(err)
	}
	return &option, nil
}

func (r *gormRewardLedgerRepository) CreateRedemption(ctx context.Context, redemption *models.RewardRedemption) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(redemption).Error; err != nil {
		return fmt.Errorf("failed to create redemption: %w", err)
	}
	return nil
}

func (r *gormRewardLedgerRepository) FindRedemption(ctx context.Context, id uint) (*models.RewardRedemption, error) {
	var redemption models.RewardRedemption
	err := r.db.WithContext(ctx).
		Preload("Reward").
		Preload("RewardOption.RewardType").
		First(&redemption, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &redemption, nil
}

func (r *gormRewardLedgerRepository) ListRedemptions(ctx context.Context, rewardID uint) ([]models.RewardRedemption, error) {
	var redemptions []models.RewardRedemption
	err := r.db.WithContext(ctx).
		Preload("RewardOption.RewardType").
		Where("reward_id = ?", rewardID).
		Order("created_at DESC, id DESC").
		Find(&redemptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list redemptions: %w", err)
	}
	return redemptions, nil
}

func (r *gormRewardLedgerRepository) RepairEligibleRedemptions(ctx context.Context, customerID uint) ([]models.RewardRedemption, error) {
	var redemptions []models.RewardRedemption
	err := r.db.WithContext(ctx).
		Preload("RewardOption.RewardType").
		Joins("JOIN rewards ON rewards.id = reward_redemptions.reward_id").
		Joins("JOIN users ON users.id = rewards.user_id").
		Joins("JOIN reward_options ON reward_options.id = reward_redemptions.reward_option_id").
		Joins("JOIN reward_types ON reward_types.id = reward_options.reward_type_id").
		Where("users.customer_id = ? AND users.deleted_at IS NULL", customerID).
		Where("reward_redemptions.status = ? AND reward_redemptions.applied_to_repair_id IS NULL", models.RedemptionPending).
		Where("reward_types.category IN ?", repairApplicableCategories).
		Order("reward_redemptions.created_at ASC, reward_redemptions.id ASC").
		Find(&redemptions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible redemptions: %w", err)
	}
	return redemptions, nil
}

func (r *gormRewardLedgerRepository) RedemptionsForRepair(ctx context.Context, repairID uint, statuses []models.RedemptionStatus) ([]models.RewardRedemption, error) {
	query := r.db.WithContext(ctx).
		Preload("RewardOption.RewardType").
		Where("applied_to_repair_id = ?", repairID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var redemptions []models.RewardRedemption
	if err := query.Order("created_at ASC, id ASC").Find(&redemptions).Error; err != nil {
		return nil, fmt.Errorf("failed to load redemptions for repair %d: %w", repairID, err)
	}
	return redemptions, nil
}

func (r *gormRewardLedgerRepository) LinkRedemption(ctx context.Context, redemptionID, repairID uint) error {
	result := r.db.WithContext(ctx).
		Model(&models.RewardRedemption{}).
		Where("id = ? AND applied_to_repair_id IS NULL", redemptionID).
		UpdateColumns(map[string]interface{}{
			"applied_to_repair_id": repairID,
			"updated_at":           time.Now(),
		})
	if result.Error != nil {
		// includes the unique index on applied_to_repair_id rejecting a second redemption for one repair
		return fmt.Errorf("failed to link redemption %d: %w", redemptionID, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAlreadyApplied
	}
	return nil
}

func (r *gormRewardLedgerRepository) UpdateRedemptionStatus(ctx context.Context, id uint, status models.RedemptionStatus, processedBy *uint, at time.Time) error {
	updates := map[string]interface{}{
		"status":       status,
		"processed_at": at,
		"updated_at":   at,
	}
	if processedBy != nil {
		updates["processed_by_id"] = *processedBy
	}
	result := r.db.WithContext(ctx).Model(&models.RewardRedemption{}).Where("id = ?", id).UpdateColumns(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update redemption %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *gormRewardLedgerRepository) ReferralCodeForUser(ctx context.Context, userID uint) (*models.ReferralCode, error) {
	var code models.ReferralCode
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&code).Error; err != nil {
		return nil, translate(err)
	}
	return &code, nil
}

func (r *gormRewardLedgerRepository) CreateReferralCode(ctx context.Context, code *models.ReferralCode) error {
	if err := r.db.WithContext(ctx).Create(code).Error; err != nil {
		return fmt.Errorf("failed to create referral code: %w", err)
	}
	return nil
}

func (r *gormRewardLedgerRepository) FindReferralCode(ctx context.Context, code string) (*models.ReferralCode, error) {
	var referralCode models.ReferralCode
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&referralCode).Error; err != nil {
		return nil, translate(err)
	}
	return &referralCode, nil
}

func (r *gormRewardLedgerRepository) CreateReferral(ctx context.Context, referral *models.Referral) error {
	if err := r.db.WithContext(ctx).Create(referral).Error; err != nil {
		return fmt.Errorf("failed to create referral: %w", err)
	}
	return nil
}

func (r *gormRewardLedgerRepository) UnawardedReferralFor(ctx context.Context, referredUserIDs []uint) (*models.Referral, error) {
	if len(referredUserIDs) == 0 {
		return nil, ErrNotFound
	}
	var referral models.Referral
	err := r.db.WithContext(ctx).
		Where("referred_id IN ? AND bonus_awarded = ?", referredUserIDs, false).
		Order("id ASC").
		First(&referral).Error
	if err != nil {
		return nil, translate(err)
	}
	return &referral, nil
}

func (r *gormRewardLedgerRepository) MarkReferralAwarded(ctx context.Context, referralID uint, at time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Referral{}).
		Where("id = ? AND bonus_awarded = ?", referralID, false).
		UpdateColumns(map[string]interface{}{"bonus_awarded": true, "bonus_awarded_at": at})
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark referral awarded: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
