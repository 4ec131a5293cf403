package testutil

import (
	"net/http"
	"strings"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/middleware"
	"github.com/kendall-kelly/fleetglass-api/models"
)

// MockValidatedClaims builds the claims EnsureValidToken would produce for subject
func MockValidatedClaims(subject, role string, scopes []string) *validator.ValidatedClaims {
	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  "https://test.auth0.com/",
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Scope: strings.Join(scopes, " "),
			Role:  role,
		},
	}
}

// MockAuthMiddleware stands in for EnsureValidToken and authenticates every request
// as subject
func MockAuthMiddleware(subject, role, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := MockValidatedClaims(subject, role, nil)
		c.Set(middleware.ContextUserID, subject)
		c.Set(middleware.ContextValidatedClaims, claims)
		c.Set(middleware.ContextCustomClaims, claims.CustomClaims)
		if accessToken != "" {
			c.Set(middleware.ContextAccessToken, accessToken)
		}
		c.Next()
	}
}

// AuthAs authenticates every request as user
func AuthAs(user *models.User) gin.HandlerFunc {
	return MockAuthMiddleware(user.Auth0ID, user.Role, "token-"+user.Auth0ID)
}

// HeaderAuth authenticates each request as the Auth0 subject named in the X-Test-User
// header, so one router can serve several callers. Requests without the header are
// rejected like a missing bearer token.
func HeaderAuth(users ...*models.User) gin.HandlerFunc {
	bySubject := make(map[string]*models.User, len(users))
	for _, u := range users {
		bySubject[u.Auth0ID] = u
	}
	return func(c *gin.Context) {
		user, ok := bySubject[c.GetHeader("X-Test-User")]
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   gin.H{"code": "INVALID_TOKEN", "message": "Failed to validate JWT."},
			})
			return
		}
		AuthAs(user)(c)
	}
}
