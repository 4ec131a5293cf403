package controllers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/config"
	"github.com/kendall-kelly/fleetglass-api/middleware"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/repository"
	"github.com/kendall-kelly/fleetglass-api/services"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestDB opens a fresh in-memory database, installs it as the process database
// and stores notifications in it
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "Failed to connect to test database")
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, config.Migrate(db), "Failed to migrate test database")

	previousDB := config.GetDB()
	previousDispatcher := services.GetNotificationDispatcher()
	config.SetDB(db)
	services.SetNotificationDispatcher(services.NewStoreDispatcher(repository.NewStore(db)))
	t.Cleanup(func() {
		config.SetDB(previousDB)
		services.SetNotificationDispatcher(previousDispatcher)
		sqlDB.Close()
	})
	return db
}

func setupTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

// mockAuthMiddleware sets up the context the way EnsureValidToken does
func mockAuthMiddleware(auth0ID, role, accessToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextUserID, auth0ID)
		if accessToken != "" {
			c.Set(middleware.ContextAccessToken, accessToken)
		}

		customClaims := &middleware.CustomClaims{Role: role}
		c.Set(middleware.ContextValidatedClaims, &validator.ValidatedClaims{CustomClaims: customClaims})
		c.Set(middleware.ContextCustomClaims, customClaims)

		c.Next()
	}
}

// asUser authenticates every request in the router as user
func asUser(user *models.User) gin.HandlerFunc {
	return mockAuthMiddleware(user.Auth0ID, user.Role, "token-"+user.Auth0ID)
}

type seed struct {
	t  *testing.T
	db *gorm.DB
	n  int
}

func newSeed(t *testing.T, db *gorm.DB) *seed {
	return &seed{t: t, db: db}
}

func (s *seed) customer(name string) *models.Customer {
	s.t.Helper()
	customer := &models.Customer{Name: name, Email: name + "@fleet.test"}
	require.NoError(s.t, s.db.Create(customer).Error)
	return customer
}

func (s *seed) customerUser(customer *models.Customer) *models.User {
	s.t.Helper()
	s.n++
	customerID := customer.ID
	user := &models.User{
		Auth0ID:    fmt.Sprintf("auth0|customer-%d", s.n),
		Name:       fmt.Sprintf("Fleet Manager %d", s.n),
		Email:      fmt.Sprintf("fleet%d@customer.test", s.n),
		Role:       models.RoleCustomer,
		CustomerID: &customerID,
	}
	require.NoError(s.t, s.db.Create(user).Error)
	return user
}

func (s *seed) technician(manager bool) (*models.User, *models.Technician) {
	s.t.Helper()
	s.n++
	user := &models.User{
		Auth0ID: fmt.Sprintf("auth0|tech-%d", s.n),
		Name:    fmt.Sprintf("Technician %d", s.n),
		Email:   fmt.Sprintf("tech%d@fleetglass.test", s.n),
		Role:    models.RoleTechnician,
	}
	require.NoError(s.t, s.db.Create(user).Error)

	technician := &models.Technician{UserID: user.ID, Name: user.Name, IsActive: true, IsManager: manager}
	require.NoError(s.t, s.db.Create(technician).Error)
	return user, technician
}

func (s *seed) preference(customer *models.Customer, mode models.ApprovalMode) {
	s.t.Helper()
	require.NoError(s.t, s.db.Create(&models.CustomerRepairPreference{
		CustomerID:          customer.ID,
		FieldRepairApproval: mode,
	}).Error)
}

// call sends body as JSON and decodes the envelope
func call(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response), "Response body: %s", w.Body.String())
	}
	return w, response
}

func errorCode(response map[string]interface{}) string {
	errorData, ok := response["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errorData["code"].(string)
	return code
}

func dataOf(t *testing.T, response map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := response["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %v", response)
	return data
}

// routes registers the workflow endpoints behind auth
func routes(auth gin.HandlerFunc) *gin.Engine {
	router := setupTestRouter()
	api := router.Group("/api/v1", auth)
	{
		api.GET("/users/me", GetMyProfile)
		api.PUT("/users/me", UpdateMyProfile)

		api.POST("/repairs", CreateRepair)
		api.GET("/repairs", ListRepairs)
		api.GET("/repairs/:id", GetRepair)
		api.POST("/repairs/:id/accept", AcceptRepair)
		api.POST("/repairs/:id/approve", ApproveRepair)
		api.POST("/repairs/:id/deny", DenyRepair)
		api.PATCH("/repairs/:id/status", UpdateRepairStatus)
		api.POST("/repairs/:id/override", OverrideRepairCost)
		api.POST("/repairs/:id/photos", UploadRepairPhoto)
		api.GET("/repairs/:id/cost", GetRepairCost)
		api.POST("/repairs/:id/convert-to-batch", ConvertRepairToBatch)

		api.POST("/batches", CreateBatch)
		api.GET("/batches/:id", GetBatch)
		api.POST("/batches/:id/approve", ApproveBatch)
		api.POST("/batches/:id/deny", DenyBatch)
		api.POST("/batches/:id/start", StartBatch)

		api.GET("/pricing/quote", GetPricingQuote)
		api.POST("/units/replaced", MarkUnitReplaced)

		api.GET("/rewards/me", GetMyRewards)
		api.POST("/rewards/redeem", RedeemReward)
		api.POST("/rewards/redemptions/:id/apply", ApplyRedemption)
		api.POST("/rewards/redemptions/:id/status", UpdateRedemptionStatus)
		api.GET("/rewards/referral-code", GetReferralCode)
		api.POST("/rewards/referrals", CreateReferral)

		api.GET("/notifications", ListNotifications)
		api.POST("/notifications/:id/read", MarkNotificationRead)
	}
	return router
}

func statusOf(t *testing.T, db *gorm.DB, repairID uint) models.RepairStatus {
	t.Helper()
	var repair models.Repair
	require.NoError(t, db.First(&repair, repairID).Error)
	return repair.QueueStatus
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, w.Code, "Response body: %s", w.Body.String())
}
