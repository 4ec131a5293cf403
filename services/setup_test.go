package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// recordingDispatcher keeps every dispatched event and can be told to fail
type recordingDispatcher struct {
	mu     sync.Mutex
	events []NotificationEvent
	fail   bool
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event NotificationEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fail {
		return errors.New("notification backend unavailable")
	}
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Events() []NotificationEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]NotificationEvent(nil), d.events...)
}

func (d *recordingDispatcher) Kinds() []string {
	var kinds []string
	for _, e := range d.Events() {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (d *recordingDispatcher) Reset() {
	d.mu.Lock()
	d.events = nil
	d.mu.Unlock()
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	db       *gorm.DB
	store    *repository.Store
	notifier *recordingDispatcher
	deps     Deps
	seq      int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// one connection keeps every query on the same in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))

	store := repository.NewStore(db)
	notifier := &recordingDispatcher{}
	return &fixture{
		t:        t,
		ctx:      context.Background(),
		db:       db,
		store:    store,
		notifier: notifier,
		deps:     Deps{Store: store, Notifier: notifier, Logger: zap.NewNop()},
	}
}

func (f *fixture) next() int {
	f.seq++
	return f.seq
}

func (f *fixture) customer(name string) *models.Customer {
	f.t.Helper()
	customer := &models.Customer{Name: name, Email: fmt.Sprintf("%s@fleet.test", name)}
	require.NoError(f.t, f.db.Create(customer).Error)
	return customer
}

// customerUser creates a customer-side user and returns it as an actor
func (f *fixture) customerUser(customer *models.Customer) *Actor {
	f.t.Helper()
	n := f.next()
	customerID := customer.ID
	user := &models.User{
		Auth0ID:    fmt.Sprintf("auth0|customer-%d", n),
		Name:       fmt.Sprintf("Fleet Manager %d", n),
		Email:      fmt.Sprintf("fleet%d@customer.test", n),
		Role:       models.RoleCustomer,
		CustomerID: &customerID,
	}
	require.NoError(f.t, f.db.Create(user).Error)
	return &Actor{User: user}
}

type techOption func(*models.Technician)

func asManager(t *models.Technician) {
	t.IsManager = true
}

func withOverride(limit *decimal.Decimal) techOption {
	return func(t *models.Technician) {
		t.IsManager = true
		t.CanOverridePricing = true
		t.ApprovalLimit = limit
	}
}

func inactive(t *models.Technician) {
	t.IsActive = false
}

func (f *fixture) technician(opts ...techOption) *Actor {
	f.t.Helper()
	n := f.next()
	user := &models.User{
		Auth0ID: fmt.Sprintf("auth0|tech-%d", n),
		Name:    fmt.Sprintf("Technician %d", n),
		Email:   fmt.Sprintf("tech%d@fleetglass.test", n),
		Role:    models.RoleTechnician,
	}
	require.NoError(f.t, f.db.Create(user).Error)

	technician := &models.Technician{UserID: user.ID, Name: user.Name, IsActive: true}
	for _, opt := range opts {
		opt(technician)
	}
	require.NoError(f.t, f.db.Create(technician).Error)
	return &Actor{User: user, Technician: technician}
}

func (f *fixture) admin() *Actor {
	f.t.Helper()
	n := f.next()
	user := &models.User{
		Auth0ID: fmt.Sprintf("auth0|admin-%d", n),
		Name:    "Admin",
		Email:   fmt.Sprintf("admin%d@fleetglass.test", n),
		Role:    models.RoleAdmin,
	}
	require.NoError(f.t, f.db.Create(user).Error)
	return &Actor{User: user}
}

func (f *fixture) manage(manager, subordinate *Actor) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(manager.Technician).Association("ManagedTechnicians").Append(subordinate.Technician))

	reloaded, err := f.store.Technicians().FindByID(f.ctx, manager.Technician.ID)
	require.NoError(f.t, err)
	manager.Technician = reloaded
}

func (f *fixture) preference(customer *models.Customer, mode models.ApprovalMode, threshold *int) {
	f.t.Helper()
	pref := &models.CustomerRepairPreference{
		CustomerID:             customer.ID,
		FieldRepairApproval:    mode,
		UnitsPerVisitThreshold: threshold,
	}
	require.NoError(f.t, f.db.Create(pref).Error)
}

func (f *fixture) pricing(pricing *models.CustomerPricing) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(pricing).Error)
}

func (f *fixture) unitCount(customer *models.Customer, unit string, count int) {
	f.t.Helper()
	require.NoError(f.t, f.db.Create(&models.UnitRepairCount{CustomerID: customer.ID, UnitNumber: unit, RepairCount: count}).Error)
}

func (f *fixture) reloadRepair(id uint) *models.Repair {
	f.t.Helper()
	repair, err := f.store.Repairs().FindByID(f.ctx, id)
	require.NoError(f.t, err)
	return repair
}

func (f *fixture) repairCount() int64 {
	f.t.Helper()
	var total int64
	require.NoError(f.t, f.db.Model(&models.Repair{}).Count(&total).Error)
	return total
}

func (f *fixture) points(actor *Actor) int {
	f.t.Helper()
	reward, err := f.store.Rewards().RewardForUser(f.ctx, actor.User.ID)
	require.NoError(f.t, err)
	return reward.Points
}

func money(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func moneyPtr(v string) *decimal.Decimal {
	d := money(v)
	return &d
}

func intPtr(v int) *int {
	return &v
}
