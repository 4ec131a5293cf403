package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/repository"
	"github.com/kendall-kelly/fleetglass-api/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Points awarded by the ledger
const (
	CompletionPoints    = 50
	ReferralBonusPoints = 100
)

// MilestoneBonus returns the extra points for a customer's nth completed repair
func MilestoneBonus(completed int64) int {
	switch {
	case completed == 5:
		return 100
	case completed == 10:
		return 250
	case completed > 0 && completed%25 == 0:
		return 500
	}
	return 0
}

var redemptionTransitions = map[models.RedemptionStatus][]models.RedemptionStatus{
	models.RedemptionPending:  {models.RedemptionApproved, models.RedemptionFulfilled, models.RedemptionRejected},
	models.RedemptionApproved: {models.RedemptionFulfilled, models.RedemptionRejected},
}

// CostBreakdown is a repair cost after at most one linked reward
type CostBreakdown struct {
	RepairID        uint            `json:"repair_id"`
	OriginalCost    decimal.Decimal `json:"original_cost"`
	FinalCost       decimal.Decimal `json:"final_cost"`
	DiscountApplied bool            `json:"discount_applied"`
	Description     string          `json:"description,omitempty"`
	Savings         decimal.Decimal `json:"savings"`
	RedemptionID    *uint           `json:"redemption_id,omitempty"`
}

// DiscountedCost applies the first usable redemption to cost. Merchandise and other
// non-repair categories never change the price.
func DiscountedCost(cost decimal.Decimal, redemptions []models.RewardRedemption) CostBreakdown {
	result := CostBreakdown{OriginalCost: cost, FinalCost: cost, Savings: decimal.Zero}
	for _, r := range redemptions {
		rewardType := r.RewardOption.RewardType
		if !rewardType.Category.AppliesToRepairs() {
			continue
		}

		var final decimal.Decimal
		var description string
		switch rewardType.DiscountType {
		case models.DiscountPercentage:
			final = decimal.Max(cost.Sub(cost.Mul(rewardType.DiscountValue).Div(hundred)), decimal.Zero)
			description = fmt.Sprintf("%s%% off", rewardType.DiscountValue.String())
		case models.DiscountFixedAmount:
			final = decimal.Max(cost.Sub(rewardType.DiscountValue), decimal.Zero)
			description = fmt.Sprintf("%s off", utils.FormatMoney(rewardType.DiscountValue))
		case models.DiscountFree:
			final = decimal.Zero
			description = "Free repair"
		default:
			continue
		}

		if name := r.RewardOption.Name; name != "" {
			description = fmt.Sprintf("%s (%s)", description, name)
		}
		final = utils.RoundMoney(final)
		redemptionID := r.ID
		result.FinalCost = final
		result.Savings = cost.Sub(final)
		result.DiscountApplied = true
		result.Description = description
		result.RedemptionID = &redemptionID
		break
	}
	return result
}

// RewardSummary is a user's balance with their redemptions
type RewardSummary struct {
	Reward      *models.Reward            `json:"reward"`
	Redemptions []models.RewardRedemption `json:"redemptions"`
}

// RewardService runs the points ledger
type RewardService struct {
	store  *repository.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewRewardService creates a reward ledger service
func NewRewardService(deps Deps) *RewardService {
	return newWorkflow(deps).rewards
}

// ApplyAvailableRewards links the oldest pending repair-applicable redemption held by any of the
// customer's users to a completed repair and fulfils it. When the repair already carries a
// redemption, that redemption is fulfilled instead.
func (s *RewardService) ApplyAvailableRewards(ctx context.Context, repair *models.Repair) (*models.RewardRedemption, error) {
	if repair.CustomerID == nil {
		return nil, nil
	}

	var applied *models.RewardRedemption
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		linked, err := tx.Rewards().RedemptionsForRepair(ctx, repair.ID, nil)
		if err != nil {
			return err
		}
		if len(linked) > 0 {
			applied, err = s.fulfilLinked(ctx, tx, repair, linked)
			return err
		}
		eligible, err := tx.Rewards().RepairEligibleRedemptions(ctx, *repair.CustomerID)
		if err != nil {
			return err
		}

		for i := range eligible {
			candidate := eligible[i]
			if !candidate.RewardOption.RewardType.Category.AppliesToRepairs() {
				continue
			}
			err := tx.Rewards().LinkRedemption(ctx, candidate.ID, repair.ID)
			if errors.Is(err, repository.ErrAlreadyApplied) {
				continue
			}
			if err != nil {
				return err
			}

			repairID := repair.ID
			candidate.AppliedToRepairID = &repairID
			if repair.QueueStatus == models.StatusCompleted {
				if err := tx.Rewards().UpdateRedemptionStatus(ctx, candidate.ID, models.RedemptionFulfilled, nil, s.now()); err != nil {
					return err
				}
				candidate.Status = models.RedemptionFulfilled
			}
			applied = &candidate
			return nil
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if applied != nil {
		s.logger.Info("reward applied to repair", zap.Uint("repair_id", repair.ID), zap.Uint("redemption_id", applied.ID))
	}
	return applied, nil
}

// fulfilLinked closes the open redemption already linked to a completed repair
func (s *RewardService) fulfilLinked(ctx context.Context, tx *repository.Store, repair *models.Repair, linked []models.RewardRedemption) (*models.RewardRedemption, error) {
	if repair.QueueStatus != models.StatusCompleted {
		return nil, nil
	}
	for i := range linked {
		redemption := linked[i]
		if redemption.Status != models.RedemptionPending && redemption.Status != models.RedemptionApproved {
			continue
		}
		now := s.now()
		if err := tx.Rewards().UpdateRedemptionStatus(ctx, redemption.ID, models.RedemptionFulfilled, nil, now); err != nil {
			return nil, err
		}
		redemption.Status = models.RedemptionFulfilled
		redemption.ProcessedAt = &now
		return &redemption, nil
	}
	return nil, nil
}

// AwardCompletionPoints credits the customer's primary user for a completed repair and
// pays any milestone or first-repair referral bonus. It returns the points credited to the customer.
func (s *RewardService) AwardCompletionPoints(ctx context.Context, repair *models.Repair) (int, error) {
	if repair.CustomerID == nil {
		return 0, nil
	}

	awarded := 0
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		user, err := tx.Customers().PrimaryUser(ctx, *repair.CustomerID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		completed, err := tx.Repairs().CountCompletedForCustomer(ctx, *repair.CustomerID)
		if err != nil {
			return err
		}
		reward, err := tx.Rewards().RewardForUser(ctx, user.ID)
		if err != nil {
			return err
		}

		points := CompletionPoints + MilestoneBonus(completed)
		if err := tx.Rewards().AddPoints(ctx, reward.ID, points); err != nil {
			return err
		}
		awarded = points

		if completed == 1 {
			return s.awardReferralBonus(ctx, tx, user.ID)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("completion points awarded", zap.Uint("repair_id", repair.ID), zap.Int("points", awarded))
	return awarded, nil
}

func (s *RewardService) awardReferralBonus(ctx context.Context, tx *repository.Store, referredUserID uint) error {
	referral, err := tx.Rewards().UnawardedReferralFor(ctx, []uint{referredUserID})
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	marked, err := tx.Rewards().MarkReferralAwarded(ctx, referral.ID, s.now())
	if err != nil || !marked {
		return err
	}
	referrerReward, err := tx.Rewards().RewardForUser(ctx, referral.ReferrerID)
	if err != nil {
		return err
	}
	return tx.Rewards().AddPoints(ctx, referrerReward.ID, ReferralBonusPoints)
}

// GetDiscountedCost computes a repair's cost after its linked open or FULFILLED redemption
func (s *RewardService) GetDiscountedCost(ctx context.Context, repair *models.Repair) (*CostBreakdown, error) {
	redemptions, err := s.store.Rewards().RedemptionsForRepair(ctx, repair.ID,
		[]models.RedemptionStatus{models.RedemptionFulfilled, models.RedemptionApproved, models.RedemptionPending})
	if err != nil {
		return nil, err
	}
	breakdown := DiscountedCost(repair.Cost, redemptions)
	breakdown.RepairID = repair.ID
	return &breakdown, nil
}

func checkApplicable(rewardType models.RewardType) error {
	if rewardType.Category == models.CategoryMerchandise {
		return validationError("reward_option_id", "MERCHANDISE_NOT_APPLICABLE",
			"merchandise rewards cannot be applied to repairs")
	}
	if !rewardType.Category.AppliesToRepairs() {
		return validationError("reward_option_id", "REWARD_NOT_APPLICABLE",
			fmt.Sprintf("%s rewards cannot be applied to repairs", strings.ToLower(string(rewardType.Category))))
	}
	return nil
}

func findRedemption(ctx context.Context, store *repository.Store, id uint) (*models.RewardRedemption, error) {
	redemption, err := store.Rewards().FindRedemption(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("REDEMPTION_NOT_FOUND", fmt.Sprintf("redemption %d not found", id))
		}
		return nil, err
	}
	return redemption, nil
}

func ensureRepairUnrewarded(ctx context.Context, tx *repository.Store, repairID uint) error {
	linked, err := tx.Rewards().RedemptionsForRepair(ctx, repairID, nil)
	if err != nil {
		return err
	}
	if len(linked) > 0 {
		return conflict("REPAIR_ALREADY_REWARDED", fmt.Sprintf("repair %d already has redemption %d applied", repairID, linked[0].ID))
	}
	return nil
}

func (s *RewardService) link(ctx context.Context, tx *repository.Store, redemption *models.RewardRedemption, repair *models.Repair) error {
	if err := tx.Rewards().LinkRedemption(ctx, redemption.ID, repair.ID); err != nil {
		if errors.Is(err, repository.ErrAlreadyApplied) {
			return conflict("ALREADY_APPLIED", fmt.Sprintf("redemption %d is already applied to another repair", redemption.ID))
		}
		return err
	}
	repairID := repair.ID
	redemption.AppliedToRepairID = &repairID

	if repair.QueueStatus == models.StatusCompleted {
		now := s.now()
		if err := tx.Rewards().UpdateRedemptionStatus(ctx, redemption.ID, models.RedemptionFulfilled, nil, now); err != nil {
			return err
		}
		redemption.Status = models.RedemptionFulfilled
		redemption.ProcessedAt = &now
	}
	return nil
}

// ApplyReward links a redemption to a repair by hand
func (s *RewardService) ApplyReward(ctx context.Context, actor *Actor, redemptionID, repairID uint) (*models.RewardRedemption, error) {
	if !actor.IsTechnician() && !actor.IsAdmin() {
		return nil, forbidden("TECHNICIAN_ONLY", "only technicians can apply rewards to repairs")
	}

	var redemption *models.RewardRedemption
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if redemption, err = findRedemption(ctx, tx, redemptionID); err != nil {
			return err
		}
		if redemption.AppliedToRepairID != nil {
			return conflict("ALREADY_APPLIED",
				fmt.Sprintf("redemption %d is already applied to repair %d", redemption.ID, *redemption.AppliedToRepairID))
		}
		if err := checkApplicable(redemption.RewardOption.RewardType); err != nil {
			return err
		}
		if redemption.Status == models.RedemptionRejected || redemption.Status == models.RedemptionFulfilled {
			return conflict("REDEMPTION_CLOSED", fmt.Sprintf("redemption %d is %s", redemption.ID, redemption.Status))
		}

		repair, err := loadRepair(ctx, tx, repairID)
		if err != nil {
			return err
		}
		if err := checkVisible(actor, repair); err != nil {
			return err
		}
		owner, err := tx.Users().FindByID(ctx, redemption.Reward.UserID)
		if err != nil {
			return err
		}
		if owner.CustomerID == nil || !repair.BelongsTo(*owner.CustomerID) {
			return validationError("repair_id", "REDEMPTION_CUSTOMER_MISMATCH", "redemption belongs to a different customer")
		}
		if err := ensureRepairUnrewarded(ctx, tx, repair.ID); err != nil {
			return err
		}
		return s.link(ctx, tx, redemption, repair)
	})
	if err != nil {
		return nil, transactionFailure("failed to apply reward", err)
	}
	return redemption, nil
}

// Redeem spends the actor's points on a reward option, optionally targeting one of
// the customer's repairs.
func (s *RewardService) Redeem(ctx context.Context, actor *Actor, optionID uint, repairID *uint) (*models.RewardRedemption, error) {
	customerID, ok := actor.CustomerID()
	if !ok {
		return nil, forbidden("CUSTOMER_ONLY", "only customer users can redeem rewards")
	}

	var redemption *models.RewardRedemption
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		option, err := tx.Rewards().FindOption(ctx, optionID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return notFound("REWARD_OPTION_NOT_FOUND", fmt.Sprintf("reward option %d not found", optionID))
			}
			return err
		}
		if !option.IsActive {
			return conflict("REWARD_OPTION_INACTIVE", fmt.Sprintf("%s is no longer available", option.Name))
		}

		var repair *models.Repair
		if repairID != nil {
			if err := checkApplicable(option.RewardType); err != nil {
				return err
			}
			if repair, err = loadRepair(ctx, tx, *repairID); err != nil {
				return err
			}
			if !repair.BelongsTo(customerID) {
				return notFound("REPAIR_NOT_FOUND", fmt.Sprintf("repair %d not found", *repairID))
			}
			if err := ensureRepairUnrewarded(ctx, tx, repair.ID); err != nil {
				return err
			}
		}

		reward, err := tx.Rewards().RewardForUser(ctx, actor.User.ID)
		if err != nil {
			return err
		}
		if err := tx.Rewards().SpendPoints(ctx, reward.ID, option.PointsCost); err != nil {
			if errors.Is(err, repository.ErrInsufficientPoints) {
				return conflict("INSUFFICIENT_POINTS",
					fmt.Sprintf("%s costs %d points, balance is %d", option.Name, option.PointsCost, reward.Points))
			}
			return err
		}

		redemption = &models.RewardRedemption{
			RewardID:       reward.ID,
			RewardOptionID: option.ID,
			Status:         models.RedemptionPending,
			PointsSpent:    option.PointsCost,
		}
		if err := tx.Rewards().CreateRedemption(ctx, redemption); err != nil {
			return err
		}
		redemption.RewardOption = *option
		if repair != nil {
			return s.link(ctx, tx, redemption, repair)
		}
		return nil
	})
	if err != nil {
		return nil, transactionFailure("failed to redeem reward", err)
	}

	s.logger.Info("reward redeemed",
		zap.Uint("redemption_id", redemption.ID), zap.Uint("user_id", actor.User.ID), zap.Int("points", redemption.PointsSpent))
	return redemption, nil
}

// ProcessRedemption moves a redemption along PENDING -> APPROVED -> FULFILLED, or to
// REJECTED, which refunds the spent points.
func (s *RewardService) ProcessRedemption(ctx context.Context, actor *Actor, redemptionID uint, status models.RedemptionStatus) (*models.RewardRedemption, error) {
	if !actor.IsManager() && !actor.IsAdmin() {
		return nil, forbidden("MANAGER_ONLY", "only managers can process redemptions")
	}

	var redemption *models.RewardRedemption
	err := s.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if redemption, err = findRedemption(ctx, tx, redemptionID); err != nil {
			return err
		}

		allowed := false
		for _, next := range redemptionTransitions[redemption.Status] {
			allowed = allowed || next == status
		}
		if !allowed {
			return conflict("INVALID_REDEMPTION_TRANSITION",
				fmt.Sprintf("cannot move redemption %d from %s to %s", redemption.ID, redemption.Status, status))
		}

		if err := tx.Rewards().UpdateRedemptionStatus(ctx, redemption.ID, status, actor.UserID(), s.now()); err != nil {
			return err
		}
		if status == models.RedemptionRejected && redemption.PointsSpent > 0 {
			if err := tx.Rewards().AddPoints(ctx, redemption.RewardID, redemption.PointsSpent); err != nil {
				return err
			}
		}
		redemption, err = findRedemption(ctx, tx, redemptionID)
		return err
	})
	if err != nil {
		return nil, transactionFailure("failed to process redemption", err)
	}
	return redemption, nil
}

// Balance returns the actor's points and redemptions
func (s *RewardService) Balance(ctx context.Context, actor *Actor) (*RewardSummary, error) {
	reward, err := s.store.Rewards().RewardForUser(ctx, actor.User.ID)
	if err != nil {
		return nil, err
	}
	redemptions, err := s.store.Rewards().ListRedemptions(ctx, reward.ID)
	if err != nil {
		return nil, err
	}
	return &RewardSummary{Reward: reward, Redemptions: redemptions}, nil
}

// ReferralCode returns the actor's referral code, issuing one on first use
func (s *RewardService) ReferralCode(ctx context.Context, actor *Actor) (*models.ReferralCode, error) {
	code, err := s.store.Rewards().ReferralCodeForUser(ctx, actor.User.ID)
	if err == nil {
		return code, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	code = &models.ReferralCode{UserID: actor.User.ID, Code: newReferralCode()}
	if err := s.store.Rewards().CreateReferralCode(ctx, code); err != nil {
		// a concurrent request may have issued the code first
		if existing, findErr := s.store.Rewards().ReferralCodeForUser(ctx, actor.User.ID); findErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return code, nil
}

func newReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// RecordReferral records that the actor was referred by the owner of code
func (s *RewardService) RecordReferral(ctx context.Context, actor *Actor, code string) (*models.Referral, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, validationError("code", "REFERRAL_CODE_REQUIRED", "referral code is required")
	}

	referralCode, err := s.store.Rewards().FindReferralCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("REFERRAL_CODE_NOT_FOUND", fmt.Sprintf("referral code %s not found", code))
		}
		return nil, err
	}
	if referralCode.UserID == actor.User.ID {
		return nil, validationError("code", "SELF_REFERRAL", "you cannot use your own referral code")
	}

	referral := &models.Referral{
		ReferralCodeID: referralCode.ID,
		ReferrerID:     referralCode.UserID,
		ReferredID:     actor.User.ID,
	}
	if err := s.store.Rewards().CreateReferral(ctx, referral); err != nil {
		if utils.IsUniqueViolation(err) {
			return nil, conflict("ALREADY_REFERRED", "a referral is already recorded for this user")
		}
		return nil, err
	}
	return referral, nil
}
