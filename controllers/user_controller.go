package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/config"
	"github.com/kendall-kelly/fleetglass-api/middleware"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/repository"
	"github.com/kendall-kelly/fleetglass-api/services"
	"github.com/kendall-kelly/fleetglass-api/utils"
	"go.uber.org/zap"
)

// UpdateUserRequest represents the request body for updating a user profile
type UpdateUserRequest struct {
	Name  string `json:"name" binding:"omitempty"`
	Email string `json:"email" binding:"omitempty,email"`
}

// roleFromClaims returns the role carried by the token, defaulting to customer
func roleFromClaims(c *gin.Context) string {
	claims, err := middleware.GetCustomClaims(c)
	if err != nil {
		return models.RoleCustomer
	}
	switch claims.Role {
	case models.RoleTechnician, models.RoleAdmin:
		return claims.Role
	default:
		return models.RoleCustomer
	}
}

// CreateUser handles POST /api/v1/users - creates a new user from Auth0 userinfo.
// Linking the user to a customer or technician profile is done by an administrator.
func CreateUser(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user ID from token",
			},
		})
		return
	}

	accessToken, err := middleware.GetAccessToken(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_TOKEN",
				"message": "Access token not found",
			},
		})
		return
	}

	userInfo, err := services.NewAuth0Service(config.GetConfig()).GetUserInfo(c.Request.Context(), accessToken)
	if errors.Is(err, services.ErrUserInfoRejected) {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "USERINFO_REJECTED",
				"message": "Auth0 did not accept the access token",
			},
		})
		return
	}
	if err != nil {
		config.Logger().Warn("userinfo lookup failed", zap.String("auth0_id", auth0ID), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "AUTH0_ERROR",
				"message": "Failed to fetch user information from Auth0",
			},
		})
		return
	}

	if userInfo.Email == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_EMAIL",
				"message": "Email not provided by Auth0",
			},
		})
		return
	}
	if userInfo.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_NAME",
				"message": "Name not provided by Auth0",
			},
		})
		return
	}

	user := models.User{
		Auth0ID: auth0ID,
		Name:    userInfo.Name,
		Email:   userInfo.Email,
		Role:    roleFromClaims(c),
	}

	if err := newStore().Users().Create(c.Request.Context(), &user); err != nil {
		if utils.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "USER_EXISTS",
					"message": "A user with this Auth0 ID or email already exists",
				},
			})
			return
		}
		respondError(c, err)
		return
	}

	config.Logger().Info("user created", zap.Uint("user_id", user.ID), zap.String("role", user.Role))
	respondOK(c, http.StatusCreated, user)
}

// GetMyProfile handles GET /api/v1/users/me - gets current user's profile
func GetMyProfile(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	respondOK(c, http.StatusOK, gin.H{
		"user":       actor.User,
		"technician": actor.Technician,
	})
}

// UpdateMyProfile handles PUT /api/v1/users/me - updates current user's profile
func UpdateMyProfile(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondValidation(c, err)
		return
	}

	users := newStore().Users()
	ctx := c.Request.Context()
	user, err := users.FindByAuth0ID(ctx, auth0ID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "USER_NOT_FOUND",
					"message": "User profile not found",
				},
			})
			return
		}
		respondError(c, err)
		return
	}

	updates := make(map[string]interface{})
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Email != "" {
		updates["email"] = req.Email
	}
	if len(updates) == 0 {
		respondOK(c, http.StatusOK, user)
		return
	}

	if err := users.Update(ctx, user, updates); err != nil {
		if utils.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "EMAIL_EXISTS",
					"message": "A user with this email already exists",
				},
			})
			return
		}
		respondError(c, err)
		return
	}

	respondOK(c, http.StatusOK, user)
}
