package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/services"
)

// UnitReplacedRequest is the body of POST /api/v1/units/replaced
type UnitReplacedRequest struct {
	CustomerID uint   `json:"customer_id" binding:"required"`
	UnitNumber string `json:"unit_number" binding:"required"`
}

// GetPricingQuote handles GET /api/v1/pricing/quote?customer_id=&unit_number=&breaks=
// Customer users always get quotes for their own fleet.
func GetPricingQuote(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var customerID uint
	if own, isCustomer := actor.CustomerID(); isCustomer && !actor.IsTechnician() && !actor.IsAdmin() {
		customerID = own
	} else {
		parsed, err := strconv.ParseUint(c.Query("customer_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "VALIDATION_ERROR",
					"message": "customer_id is required",
					"field":   "customer_id",
				},
			})
			return
		}
		customerID = uint(parsed)
	}

	breaks, err := strconv.Atoi(c.DefaultQuery("breaks", "1"))
	if err != nil {
		breaks = 1
	}

	quote, err := services.NewPricingService(newStore()).Quote(c.Request.Context(), customerID, strings.TrimSpace(c.Query("unit_number")), breaks)
	if err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, quote)
}

// MarkUnitReplaced handles POST /api/v1/units/replaced. The unit's pricing tier starts over.
func MarkUnitReplaced(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	var req UnitReplacedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	if err := services.NewRepairService(workflowDeps()).MarkUnitReplaced(c.Request.Context(), actor, req.CustomerID, req.UnitNumber); err != nil {
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"customer_id":  req.CustomerID,
		"unit_number":  strings.TrimSpace(req.UnitNumber),
		"repair_count": 0,
	})
}
