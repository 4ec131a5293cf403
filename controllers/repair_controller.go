package controllers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/config"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/services"
	"github.com/kendall-kelly/fleetglass-api/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CreateRepairRequest is the body of POST /api/v1/repairs. Customer users send the
// unit and notes; technicians also send the customer and work details.
type CreateRepairRequest struct {
	CustomerID            uint             `json:"customer_id"`
	UnitNumber            string           `json:"unit_number"`
	DamageType            string           `json:"damage_type"`
	DrillingPerformed     bool             `json:"drilling_performed"`
	ResinViscosity        string           `json:"resin_viscosity"`
	WindshieldTemperature *float64         `json:"windshield_temperature"`
	CustomerNotes         string           `json:"customer_notes"`
	TechnicianNotes       string           `json:"technician_notes"`
	CostOverride          *decimal.Decimal `json:"cost_override"`
	OverrideReason        string           `json:"override_reason"`
	// QueueStatus is accepted for compatibility and ignored; the server decides the initial status
	QueueStatus string `json:"queue_status"`
}

// AcceptRepairRequest is the body of POST /api/v1/repairs/:id/accept
type AcceptRepairRequest struct {
	TechnicianID *uint `json:"technician_id"`
}

// DecisionRequest carries approval notes or a denial reason
type DecisionRequest struct {
	Notes  string `json:"notes"`
	Reason string `json:"reason"`
}

// UpdateStatusRequest is the body of PATCH /api/v1/repairs/:id/status
type UpdateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// CostOverrideRequest is the body of POST /api/v1/repairs/:id/override
type CostOverrideRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason string          `json:"reason"`
}

type repairResponse struct {
	*models.Repair
	HasPhotos      bool   `json:"has_photos"`
	BeforePhotoURL string `json:"before_photo_url,omitempty"`
	AfterPhotoURL  string `json:"after_photo_url,omitempty"`
}

func newRepairResponse(c *gin.Context, repair *models.Repair) repairResponse {
	resp := repairResponse{Repair: repair, HasPhotos: repair.HasPhotos()}
	imageService := services.GetImageService()
	if imageService == nil {
		return resp
	}
	photoURL := func(key *string) string {
		if key == nil || *key == "" {
			return ""
		}
		url, err := imageService.GetImageURL(c.Request.Context(), *key)
		if err != nil {
			config.Logger().Warn("failed to resolve photo url", zap.Uint("repair_id", repair.ID), zap.Error(err))
			return ""
		}
		return url
	}
	resp.BeforePhotoURL = photoURL(repair.BeforePhotoKey)
	resp.AfterPhotoURL = photoURL(repair.AfterPhotoKey)
	return resp
}

func newRepairResponses(c *gin.Context, repairs []models.Repair) []repairResponse {
	out := make([]repairResponse, 0, len(repairs))
	for i := range repairs {
		out = append(out, newRepairResponse(c, &repairs[i]))
	}
	return out
}

// CreateRepair handles POST /api/v1/repairs. Technicians log discovered work; customer
// users request service.
func CreateRepair(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateRepairRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	service := services.NewRepairService(workflowDeps())
	ctx := c.Request.Context()

	var (
		repair *models.Repair
		err    error
	)
	if actor.IsTechnician() {
		repair, err = service.CreateTechnicianRepair(ctx, actor, services.TechnicianRepairInput{
			CustomerID:        req.CustomerID,
			UnitNumber:        req.UnitNumber,
			DamageType:        req.DamageType,
			DrillingPerformed: req.DrillingPerformed,
			ResinViscosity:    req.ResinViscosity,
			WindshieldTemp:    req.WindshieldTemperature,
			TechnicianNotes:   req.TechnicianNotes,
			CostOverride:      req.CostOverride,
			OverrideReason:    req.OverrideReason,
		})
	} else {
		repair, err = service.CreateCustomerRequest(ctx, actor, services.CustomerRequestInput{
			UnitNumber:    req.UnitNumber,
			DamageType:    req.DamageType,
			CustomerNotes: req.CustomerNotes,
		})
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, newRepairResponse(c, repair))
}

// ListRepairs handles GET /api/v1/repairs?status=A,B&limit=N
func ListRepairs(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var statuses []models.RepairStatus
	if raw := c.Query("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			if s = strings.TrimSpace(s); s != "" {
				statuses = append(statuses, models.RepairStatus(strings.ToUpper(s)))
			}
		}
	}

	repairs, err := services.NewRepairService(workflowDeps()).ListRepairs(c.Request.Context(), actor, statuses, queryLimit(c))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, newRepairResponses(c, repairs))
}

// GetRepair handles GET /api/v1/repairs/:id
func GetRepair(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	repair, err := services.NewRepairService(workflowDeps()).GetRepair(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, newRepairResponse(c, repair))
}

// AcceptRepair handles POST /api/v1/repairs/:id/accept
func AcceptRepair(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req AcceptRepairRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, err)
			return
		}
	}

	repair, err := services.NewRepairService(workflowDeps()).AcceptRequest(c.Request.Context(), actor, id, req.TechnicianID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, newRepairResponse(c, repair))
}

// ApproveRepair handles POST /api/v1/repairs/:id/approve
func ApproveRepair(c *gin.Context) {
	decideRepair(c, true)
}

// DenyRepair handles POST /api/v1/repairs/:id/deny
func DenyRepair(c *gin.Context) {
	decideRepair(c, false)
}

func decideRepair(c *gin.Context, approve bool) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req DecisionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondValidation(c, err)
			return
		}
	}

	service := services.NewRepairService(workflowDeps())
	var (
		repair *models.Repair
		err    error
	)
	if approve {
		repair, err = service.Approve(c.Request.Context(), actor, id, req.Notes)
	} else {
		repair, err = service.Deny(c.Request.Context(), actor, id, req.Reason)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, newRepairResponse(c, repair))
}

// UpdateRepairStatus handles PATCH /api/v1/repairs/:id/status
func UpdateRepairStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	next := models.RepairStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	repair, err := services.NewRepairService(workflowDeps()).UpdateStatus(c.Request.Context(), actor, id, next)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, newRepairResponse(c, repair))
}

// OverrideRepairCost handles POST /api/v1/repairs/:id/override
func OverrideRepairCost(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req CostOverrideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	repair, err := services.NewRepairService(workflowDeps()).SetCostOverride(c.Request.Context(), actor, id, req.Amount, req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, newRepairResponse(c, repair))
}

// UploadRepairPhoto handles POST /api/v1/repairs/:id/photos (multipart "photo" plus "kind")
func UploadRepairPhoto(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	kind := strings.ToLower(c.DefaultPostForm("kind", services.PhotoBefore))
	fileHeader, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PHOTO_REQUIRED",
				"message": "A photo file is required in the 'photo' field",
			},
		})
		return
	}
	if err := utils.ValidateImageFile(fileHeader); err != nil {
		respondError(c, err)
		return
	}

	service := services.NewRepairService(workflowDeps())
	ctx := c.Request.Context()
	if _, err := service.CheckPhotoAccess(ctx, actor, id); err != nil {
		respondError(c, err)
		return
	}

	imageService := services.GetImageService()
	if imageService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_UNAVAILABLE",
				"message": "Photo storage is not configured",
			},
		})
		return
	}

	key, err := imageService.UploadImage(ctx, fileHeader, utils.PhotoKey(id, kind, fileHeader.Filename))
	if err != nil {
		config.Logger().Error("failed to store repair photo", zap.Uint("repair_id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UPLOAD_FAILED",
				"message": "Failed to store photo",
			},
		})
		return
	}

	repair, err := service.AttachPhoto(ctx, actor, id, kind, key)
	if err != nil {
		if deleteErr := imageService.DeleteImage(ctx, key); deleteErr != nil {
			config.Logger().Warn("failed to remove orphaned photo", zap.String("key", key), zap.Error(deleteErr))
		}
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, newRepairResponse(c, repair))
}

// GetRepairCost handles GET /api/v1/repairs/:id/cost
func GetRepairCost(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	breakdown, err := services.NewRepairService(workflowDeps()).CostBreakdown(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, breakdown)
}
