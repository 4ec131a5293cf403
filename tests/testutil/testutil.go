package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/fleetglass-api/config"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RequireTestEnvironment fails the test unless GO_ENV is "test", so a suite can never
// run against a development or production database.
func RequireTestEnvironment(t *testing.T) {
	t.Helper()

	if env := os.Getenv("GO_ENV"); env != "test" {
		t.Fatalf("SAFETY CHECK FAILED: Tests must run with GO_ENV=test to prevent data loss. Current GO_ENV=%q. Set GO_ENV=test before running tests.", env)
	}
}

// MustSetTestEnvironment sets GO_ENV to test. Use it in suite setup.
func MustSetTestEnvironment(t *testing.T) {
	t.Helper()

	require.NoError(t, os.Setenv("GO_ENV", "test"), "Failed to set GO_ENV=test")
	require.Equal(t, "test", os.Getenv("GO_ENV"), "Failed to verify GO_ENV=test")
}

// NewSQLiteDB opens an isolated in-memory database with every model migrated and
// installs it as the process database until the test ends.
func NewSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err, "Failed to connect to test database")

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, config.Migrate(db), "Failed to migrate test database")

	previous := config.GetDB()
	config.SetDB(db)
	t.Cleanup(func() {
		config.SetDB(previous)
		sqlDB.Close()
	})
	return db
}

// Response is a decoded API envelope
type Response struct {
	Code int
	Body map[string]interface{}
	Raw  string
}

// Data returns the envelope's data object
func (r Response) Data(t *testing.T) map[string]interface{} {
	t.Helper()
	data, ok := r.Body["data"].(map[string]interface{})
	require.True(t, ok, "response has no data object: %s", r.Raw)
	return data
}

// List returns the envelope's data array
func (r Response) List(t *testing.T) []interface{} {
	t.Helper()
	data, ok := r.Body["data"].([]interface{})
	require.True(t, ok, "response has no data array: %s", r.Raw)
	return data
}

// ErrorCode returns the envelope's error code, or "" on success
func (r Response) ErrorCode() string {
	errorData, ok := r.Body["error"].(map[string]interface{})
	if !ok {
		return ""
	}
	code, _ := errorData["code"].(string)
	return code
}

// DoJSON sends body as JSON through router and decodes the envelope
func DoJSON(t *testing.T, router http.Handler, method, path string, body interface{}) Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return Do(t, router, req)
}

// Do serves req and decodes the envelope
func Do(t *testing.T, router http.Handler, req *http.Request) Response {
	t.Helper()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	resp := Response{Code: w.Code, Raw: w.Body.String()}
	if w.Body.Len() > 0 && strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp.Body), "Response body: %s", resp.Raw)
	}
	return resp
}

// Fleet seeds the people a workflow test needs: one customer with a fleet manager,
// a managing technician and a field technician reporting to them.
type Fleet struct {
	Customer     *models.Customer
	FleetManager *models.User
	ManagerUser  *models.User
	Manager      *models.Technician
	TechUser     *models.User
	Tech         *models.Technician
}

// SeedFleet creates a Fleet for a customer called name
func SeedFleet(t *testing.T, db *gorm.DB, name string) *Fleet {
	t.Helper()

	f := &Fleet{Customer: &models.Customer{Name: name, Email: "fleet@" + name + ".test"}}
	require.NoError(t, db.Create(f.Customer).Error)

	customerID := f.Customer.ID
	f.FleetManager = &models.User{Auth0ID: "auth0|" + name + "-fleet", Name: name + " Fleet Manager", Email: "manager@" + name + ".test", Role: models.RoleCustomer, CustomerID: &customerID}
	require.NoError(t, db.Create(f.FleetManager).Error)

	f.ManagerUser, f.Manager = seedTechnician(t, db, name+"-lead", true)
	f.TechUser, f.Tech = seedTechnician(t, db, name+"-tech", false)
	require.NoError(t, db.Model(f.Manager).Association("ManagedTechnicians").Append(f.Tech))
	return f
}

func seedTechnician(t *testing.T, db *gorm.DB, handle string, manager bool) (*models.User, *models.Technician) {
	t.Helper()

	user := &models.User{Auth0ID: "auth0|" + handle, Name: handle, Email: handle + "@fleetglass.test", Role: models.RoleTechnician}
	require.NoError(t, db.Create(user).Error)
	technician := &models.Technician{UserID: user.ID, Name: handle, IsActive: true, IsManager: manager, CanOverridePricing: manager}
	require.NoError(t, db.Create(technician).Error)
	return user, technician
}

// NewRouter returns a gin engine in test mode
func NewRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	return router
}
