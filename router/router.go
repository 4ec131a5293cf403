package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/controllers"
)

// Register mounts the authenticated API on api. auth must set the caller's identity
// the way middleware.EnsureValidToken does.
func Register(api *gin.RouterGroup, auth gin.HandlerFunc) {
	// Locally stored photos are public, keys are unguessable
	api.GET("/uploads/:filename", controllers.GetUploadedImage)

	protected := api.Group("", auth)

	// Users
	protected.POST("/users", controllers.CreateUser)
	protected.GET("/users/me", controllers.GetMyProfile)
	protected.PUT("/users/me", controllers.UpdateMyProfile)

	// Repairs
	protected.POST("/repairs", controllers.CreateRepair)
	protected.GET("/repairs", controllers.ListRepairs)
	protected.GET("/repairs/:id", controllers.GetRepair)
	protected.POST("/repairs/:id/accept", controllers.AcceptRepair)
	protected.POST("/repairs/:id/approve", controllers.ApproveRepair)
	protected.POST("/repairs/:id/deny", controllers.DenyRepair)
	protected.PATCH("/repairs/:id/status", controllers.UpdateRepairStatus)
	protected.POST("/repairs/:id/override", controllers.OverrideRepairCost)
	protected.POST("/repairs/:id/photos", controllers.UploadRepairPhoto)
	protected.GET("/repairs/:id/cost", controllers.GetRepairCost)
	protected.POST("/repairs/:id/convert-to-batch", controllers.ConvertRepairToBatch)

	// Batches
	protected.POST("/batches", controllers.CreateBatch)
	protected.GET("/batches/:id", controllers.GetBatch)
	protected.POST("/batches/:id/approve", controllers.ApproveBatch)
	protected.POST("/batches/:id/deny", controllers.DenyBatch)
	protected.POST("/batches/:id/start", controllers.StartBatch)

	// Pricing
	protected.GET("/pricing/quote", controllers.GetPricingQuote)
	protected.POST("/units/replaced", controllers.MarkUnitReplaced)

	// Rewards
	protected.GET("/rewards/me", controllers.GetMyRewards)
	protected.POST("/rewards/redeem", controllers.RedeemReward)
	protected.POST("/rewards/redemptions/:id/apply", controllers.ApplyRedemption)
	protected.POST("/rewards/redemptions/:id/status", controllers.UpdateRedemptionStatus)
	protected.GET("/rewards/referral-code", controllers.GetReferralCode)
	protected.POST("/rewards/referrals", controllers.CreateReferral)

	// Notifications
	protected.GET("/notifications", controllers.ListNotifications)
	protected.POST("/notifications/:id/read", controllers.MarkNotificationRead)
}
