package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/config"
	"github.com/kendall-kelly/fleetglass-api/middleware"
	"github.com/kendall-kelly/fleetglass-api/repository"
	"github.com/kendall-kelly/fleetglass-api/services"
	"github.com/kendall-kelly/fleetglass-api/utils"
	"go.uber.org/zap"
)

var statusByKind = map[services.ErrorKind]int{
	services.KindValidation:    http.StatusBadRequest,
	services.KindAuthorization: http.StatusForbidden,
	services.KindConflict:      http.StatusConflict,
	services.KindNotFound:      http.StatusNotFound,
	services.KindTransaction:   http.StatusInternalServerError,
}

// respondError writes err in the standard error envelope
func respondError(c *gin.Context, err error) {
	var werr *services.WorkflowError
	if errors.As(err, &werr) {
		status, ok := statusByKind[werr.Kind]
		if !ok {
			status = http.StatusInternalServerError
		}
		if status == http.StatusInternalServerError {
			config.Logger().Error("workflow operation failed",
				zap.String("path", c.FullPath()), zap.String("code", werr.Code), zap.Error(werr.Err))
		}
		body := gin.H{
			"code":    werr.Code,
			"message": werr.Message,
		}
		if werr.Field != "" {
			body["field"] = werr.Field
		}
		c.JSON(status, gin.H{"success": false, "error": body})
		return
	}

	var uploadErr *utils.FileUploadError
	if errors.As(err, &uploadErr) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    uploadErr.Code,
				"message": uploadErr.Message,
			},
		})
		return
	}

	config.Logger().Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "DATABASE_ERROR",
			"message": "An unexpected error occurred",
		},
	})
}

func respondValidation(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error": gin.H{
			"code":    "VALIDATION_ERROR",
			"message": "Invalid request data",
			"details": err.Error(),
		},
	})
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"success": true,
		"data":    data,
	})
}

func newStore() *repository.Store {
	return repository.NewStore(config.GetDB())
}

// workflowDeps wires the workflow services to the process database, dispatcher and logger
func workflowDeps() services.Deps {
	return services.Deps{
		Store:    newStore(),
		Notifier: services.GetNotificationDispatcher(),
		Logger:   config.Logger(),
		Clock:    time.Now,
	}
}

// currentActor resolves the caller from the validated token. It writes the error
// response and returns false when the caller cannot act.
func currentActor(c *gin.Context) (*services.Actor, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return nil, false
	}

	actor, err := services.ResolveActor(c.Request.Context(), newStore(), auth0ID)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	return actor, true
}

func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_ID",
				"message": "Invalid " + name,
			},
		})
		return 0, false
	}
	return uint(id), true
}

// queryLimit reads ?limit=, defaulting to 50 and capping at 200
func queryLimit(c *gin.Context) int {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 {
		return 50
	}
	if limit > 200 {
		return 200
	}
	return limit
}
