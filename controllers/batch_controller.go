package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kendall-kelly/fleetglass-api/services"
	"github.com/shopspring/decimal"
)

// BreakRequest describes one break of a batch
type BreakRequest struct {
	DamageType            string   `json:"damage_type"`
	DrillingPerformed     bool     `json:"drilling_performed"`
	ResinViscosity        string   `json:"resin_viscosity"`
	WindshieldTemperature *float64 `json:"windshield_temperature"`
	TechnicianNotes       string   `json:"technician_notes"`
}

// CreateBatchRequest is the body of POST /api/v1/batches
type CreateBatchRequest struct {
	CustomerID     uint             `json:"customer_id"`
	UnitNumber     string           `json:"unit_number"`
	Breaks         []BreakRequest   `json:"breaks"`
	OverrideTotal  *decimal.Decimal `json:"override_total"`
	OverrideReason string           `json:"override_reason"`
}

// ConvertToBatchRequest is the body of POST /api/v1/repairs/:id/convert-to-batch
type ConvertToBatchRequest struct {
	AdditionalBreaks []BreakRequest `json:"additional_breaks"`
}

func toBreakInputs(breaks []BreakRequest) []services.BreakInput {
	out := make([]services.BreakInput, 0, len(breaks))
	for _, b := range breaks {
		out = append(out, services.BreakInput{
			DamageType:        b.DamageType,
			DrillingPerformed: b.DrillingPerformed,
			ResinViscosity:    b.ResinViscosity,
			WindshieldTemp:    b.WindshieldTemperature,
			TechnicianNotes:   b.TechnicianNotes,
		})
	}
	return out
}

func batchIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid batch id",
			},
		})
		return uuid.Nil, false
	}
	return id, true
}

// CreateBatch handles POST /api/v1/batches
func CreateBatch(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	summary, err := services.NewBatchService(workflowDeps()).CreateBatch(c.Request.Context(), actor, services.BatchInput{
		CustomerID:     req.CustomerID,
		UnitNumber:     req.UnitNumber,
		Breaks:         toBreakInputs(req.Breaks),
		OverrideTotal:  req.OverrideTotal,
		OverrideReason: req.OverrideReason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, summary)
}

// GetBatch handles GET /api/v1/batches/:id
func GetBatch(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	batchID, ok := batchIDParam(c)
	if !ok {
		return
	}

	summary, err := services.NewBatchService(workflowDeps()).GetBatchSummary(c.Request.Context(), actor, batchID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, summary)
}

// ApproveBatch handles POST /api/v1/batches/:id/approve
func ApproveBatch(c *gin.Context) {
	decideBatch(c, true)
}

// DenyBatch handles POST /api/v1/batches/:id/deny
func DenyBatch(c *gin.Context) {
	decideBatch(c, false)
}

func decideBatch(c *gin.Context, approve bool) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	batchID, ok := batchIDParam(c)
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

	service := services.NewBatchService(workflowDeps())
	var (
		summary *services.BatchSummary
		err     error
	)
	if approve {
		summary, err = service.ApproveBatch(c.Request.Context(), actor, batchID, req.Notes)
	} else {
		summary, err = service.DenyBatch(c.Request.Context(), actor, batchID, req.Reason)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, summary)
}

// StartBatch handles POST /api/v1/batches/:id/start
func StartBatch(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	batchID, ok := batchIDParam(c)
	if !ok {
		return
	}

	summary, err := services.NewBatchService(workflowDeps()).StartBatch(c.Request.Context(), actor, batchID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, summary)
}

// ConvertRepairToBatch handles POST /api/v1/repairs/:id/convert-to-batch
func ConvertRepairToBatch(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id")
	if !ok {
		return
	}

	var req ConvertToBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	summary, err := services.NewBatchService(workflowDeps()).ConvertToBatch(c.Request.Context(), actor, id, toBreakInputs(req.AdditionalBreaks))
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusCreated, summary)
}
