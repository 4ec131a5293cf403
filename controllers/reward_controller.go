package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/services"
)

// RedeemRequest is the body of POST /api/v1/rewards/redeem
type RedeemRequest struct {
	RewardOptionID uint  `json:"reward_option_id" binding:"required"`
	RepairID       *uint `json:"repair_id"`
}

// ApplyRewardRequest is the body of POST /api/v1/rewards/redemptions/:id/apply
type ApplyRewardRequest struct {
	RepairID uint `json:"repair_id" binding:"required"`
}

// RedemptionStatusRequest is the body of POST /api/v1/rewards/redemptions/:id/status
type RedemptionStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=APPROVED FULFILLED REJECTED approved fulfilled rejected"`
}

// ReferralRequest is the body of POST /api/v1/rewards/referrals
type ReferralRequest struct {
	Code string `json:"code" binding:"required"`
}

// GetMyRewards handles GET /api/v1/rewards/me
func GetMyRewards(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	summary, err := services.NewRewardService(workflowDeps()).Balance(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, summary)
}

// RedeemReward handles POST /api/v1/rewards/redeem
func RedeemReward(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req RedeemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	redemption, err := services.NewRewardService(workflowDeps()).Redeem(c.Request.Context(), actor, req.RewardOptionID, req.RepairID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, redemption)
}

// ApplyRedemption handles POST /api/v1/rewards/redemptions/:id/apply
func ApplyRedemption(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req ApplyRewardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	redemption, err := services.NewRewardService(workflowDeps()).ApplyReward(c.Request.Context(), actor, id, req.RepairID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, redemption)
}

// UpdateRedemptionStatus handles POST /api/v1/rewards/redemptions/:id/status
func UpdateRedemptionStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req RedemptionStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	status := models.RedemptionStatus(strings.ToUpper(req.Status))
	redemption, err := services.NewRewardService(workflowDeps()).ProcessRedemption(c.Request.Context(), actor, id, status)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, redemption)
}

// GetReferralCode handles GET /api/v1/rewards/referral-code
func GetReferralCode(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	code, err := services.NewRewardService(workflowDeps()).ReferralCode(c.Request.Context(), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, code)
}

// CreateReferral handles POST /api/v1/rewards/referrals
func CreateReferral(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req ReferralRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	referral, err := services.NewRewardService(workflowDeps()).RecordReferral(c.Request.Context(), actor, req.Code)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, referral)
}
