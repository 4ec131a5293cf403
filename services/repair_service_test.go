package services

import (
	"testing"

	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// discover logs a field repair and fails the test on error
func (f *fixture) discover(technician *Actor, customer *models.Customer, unit string) *models.Repair {
	f.t.Helper()
	repair, err := NewRepairService(f.deps).CreateTechnicianRepair(f.ctx, technician, TechnicianRepairInput{
		CustomerID: customer.ID,
		UnitNumber: unit,
		DamageType: "Chip",
	})
	require.NoError(f.t, err)
	return repair
}

func TestCheckTransition(t *testing.T) {
	tests := []struct {
		prior models.RepairStatus
		next  models.RepairStatus
		code  string
	}{
		{models.StatusRequested, models.StatusApproved, ""},
		{models.StatusPending, models.StatusApproved, ""},
		{models.StatusPending, models.StatusDenied, ""},
		{models.StatusApproved, models.StatusInProgress, ""},
		{models.StatusApproved, models.StatusCompleted, ""},
		{models.StatusInProgress, models.StatusCompleted, ""},
		{models.StatusCompleted, models.StatusCompleted, ""},
		{models.StatusRequested, models.StatusInProgress, "INVALID_TRANSITION"},
		{models.StatusPending, models.StatusCompleted, "INVALID_TRANSITION"},
		{models.StatusInProgress, models.StatusApproved, "INVALID_TRANSITION"},
		{models.StatusDenied, models.StatusApproved, "REPAIR_CLOSED"},
		{models.StatusCompleted, models.StatusInProgress, "REPAIR_CLOSED"},
		{models.StatusApproved, models.RepairStatus("SHIPPED"), "INVALID_STATUS"},
	}
	for _, tt := range tests {
		t.Run(string(tt.prior)+"->"+string(tt.next), func(t *testing.T) {
			err := CheckTransition(tt.prior, tt.next)
			if tt.code == "" {
				assert.NoError(t, err)
				return
			}
			assert.Equal(t, tt.code, ErrorCode(err))
		})
	}
}

func TestCreateCustomerRequest_RoundRobin(t *testing.T) {
	f := newFixture(t)
	first := f.technician()
	second := f.technician()
	f.technician(inactive)
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	service := NewRepairService(f.deps)

	var assigned []uint
	for _, unit := range []string{"T-1", "T-2", "T-3"} {
		repair, err := service.CreateCustomerRequest(f.ctx, fleetManager, CustomerRequestInput{UnitNumber: unit})
		require.NoError(t, err)
		require.NotNil(t, repair.TechnicianID)
		assigned = append(assigned, *repair.TechnicianID)

		assert.Equal(t, models.StatusRequested, repair.QueueStatus)
		assert.Equal(t, models.DefaultDamageType, repair.DamageType)
		assert.Equal(t, models.DefaultDescription, repair.CustomerNotes)
		assert.True(t, repair.Cost.IsZero())
	}

	// ties go to the lowest id
	assert.Equal(t, []uint{first.Technician.ID, second.Technician.ID, first.Technician.ID}, assigned)

	events := f.notifier.Events()
	require.Len(t, events, 3)
	for i, event := range events {
		assert.Equal(t, NotifyRepairRequested, event.Kind)
		require.NotNil(t, event.RecipientTechnicianID)
		assert.Equal(t, assigned[i], *event.RecipientTechnicianID)
		assert.NotNil(t, event.RepairID)
	}
}

func TestCreateCustomerRequest_Validation(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	service := NewRepairService(f.deps)

	_, err := service.CreateCustomerRequest(f.ctx, technician, CustomerRequestInput{UnitNumber: "T-1"})
	assert.Equal(t, "CUSTOMER_ONLY", ErrorCode(err))

	_, err = service.CreateCustomerRequest(f.ctx, fleetManager, CustomerRequestInput{UnitNumber: "  "})
	assert.Equal(t, "UNIT_NUMBER_REQUIRED", ErrorCode(err))
	assert.True(t, IsKind(err, KindValidation))

	_, err = service.CreateCustomerRequest(f.ctx, fleetManager, CustomerRequestInput{UnitNumber: "T-1", DamageType: "Scratch"})
	assert.Equal(t, "INVALID_DAMAGE_TYPE", ErrorCode(err))

	assert.Zero(t, f.repairCount())
}

func TestCreateCustomerRequest_NoActiveTechnicians(t *testing.T) {
	f := newFixture(t)
	f.technician(inactive)
	customer := f.customer("acme")

	repair, err := NewRepairService(f.deps).CreateCustomerRequest(f.ctx, f.customerUser(customer), CustomerRequestInput{UnitNumber: "T-1"})
	require.NoError(t, err)
	assert.Nil(t, repair.TechnicianID)
	assert.Empty(t, f.notifier.Events())
}

func TestCreateTechnicianRepair_InitialStatus(t *testing.T) {
	tests := []struct {
		name   string
		mode   models.ApprovalMode
		status models.RepairStatus
		notify string
	}{
		{"no preference requires approval", "", models.StatusPending, NotifyApprovalNeeded},
		{"require approval", models.ApprovalRequireApproval, models.StatusPending, NotifyApprovalNeeded},
		{"auto approve", models.ApprovalAutoApprove, models.StatusApproved, NotifyRepairAutoApproved},
		{"threshold without a limit", models.ApprovalUnitThreshold, models.StatusPending, NotifyApprovalNeeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			technician := f.technician()
			customer := f.customer("acme")
			fleetManager := f.customerUser(customer)
			if tt.mode != "" {
				f.preference(customer, tt.mode, nil)
			}

			repair := f.discover(technician, customer, "T-1")
			assert.Equal(t, tt.status, repair.QueueStatus)
			assert.True(t, repair.AssignedTo(technician.Technician.ID))

			stored := f.reloadRepair(repair.ID)
			if tt.status == models.StatusApproved {
				require.NotNil(t, stored.Approval)
				assert.Equal(t, models.OriginAutoApproved, stored.Approval.Origin)
				assert.Nil(t, stored.Approval.ApprovedByID)
			} else {
				assert.Nil(t, stored.Approval)
			}

			events := f.notifier.Events()
			require.Len(t, events, 1)
			assert.Equal(t, tt.notify, events[0].Kind)
			require.NotNil(t, events[0].RecipientUserID)
			assert.Equal(t, fleetManager.User.ID, *events[0].RecipientUserID)
		})
	}
}

func TestCreateTechnicianRepair_UnitThreshold(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	f.preference(customer, models.ApprovalUnitThreshold, intPtr(2))

	assert.Equal(t, models.StatusApproved, f.discover(technician, customer, "T-1").QueueStatus)
	assert.Equal(t, models.StatusApproved, f.discover(technician, customer, "T-2").QueueStatus)
	assert.Equal(t, models.StatusPending, f.discover(technician, customer, "T-3").QueueStatus)

	// another technician's visit is counted separately
	other := f.technician()
	assert.Equal(t, models.StatusApproved, f.discover(other, customer, "T-4").QueueStatus)
}

func TestCreateTechnicianRepair_Validation(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	service := NewRepairService(f.deps)

	_, err := service.CreateTechnicianRepair(f.ctx, f.customerUser(customer), TechnicianRepairInput{CustomerID: customer.ID, UnitNumber: "T-1", DamageType: "Chip"})
	assert.Equal(t, "TECHNICIAN_ONLY", ErrorCode(err))

	_, err = service.CreateTechnicianRepair(f.ctx, f.technician(inactive), TechnicianRepairInput{CustomerID: customer.ID, UnitNumber: "T-1", DamageType: "Chip"})
	assert.Equal(t, "TECHNICIAN_ONLY", ErrorCode(err))

	_, err = service.CreateTechnicianRepair(f.ctx, technician, TechnicianRepairInput{CustomerID: customer.ID, UnitNumber: "T-1"})
	assert.Equal(t, "DAMAGE_TYPE_REQUIRED", ErrorCode(err))

	_, err = service.CreateTechnicianRepair(f.ctx, technician, TechnicianRepairInput{CustomerID: 999, UnitNumber: "T-1", DamageType: "Star"})
	assert.Equal(t, "CUSTOMER_NOT_FOUND", ErrorCode(err))
	assert.True(t, IsKind(err, KindNotFound))

	_, err = service.CreateTechnicianRepair(f.ctx, technician, TechnicianRepairInput{
		CustomerID: customer.ID, UnitNumber: "T-1", DamageType: "Star", CostOverride: moneyPtr("20"),
	})
	assert.Equal(t, "OVERRIDE_NOT_PERMITTED", ErrorCode(err))

	assert.Zero(t, f.repairCount())
}

func TestCreateTechnicianRepair_WithOverride(t *testing.T) {
	f := newFixture(t)
	manager := f.technician(withOverride(moneyPtr("100")))
	customer := f.customer("acme")
	service := NewRepairService(f.deps)

	repair, err := service.CreateTechnicianRepair(f.ctx, manager, TechnicianRepairInput{
		CustomerID: customer.ID, UnitNumber: "T-1", DamageType: "bullseye",
		CostOverride: moneyPtr("80"), OverrideReason: "loyal fleet",
	})
	require.NoError(t, err)
	assert.True(t, money("80").Equal(repair.Cost))
	assert.Equal(t, "loyal fleet", repair.OverrideReason)

	_, err = service.CreateTechnicianRepair(f.ctx, manager, TechnicianRepairInput{
		CustomerID: customer.ID, UnitNumber: "T-2", DamageType: "Chip", CostOverride: moneyPtr("150"),
	})
	assert.Equal(t, "APPROVAL_LIMIT_EXCEEDED", ErrorCode(err))
}

func TestCreateTechnicianRepair_OneActiveRepairPerUnit(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	service := NewRepairService(f.deps)

	f.discover(technician, customer, "T-1")

	_, err := service.CreateTechnicianRepair(f.ctx, technician, TechnicianRepairInput{CustomerID: customer.ID, UnitNumber: "T-1", DamageType: "Crack"})
	assert.Equal(t, "ACTIVE_REPAIR_EXISTS", ErrorCode(err))
	assert.True(t, IsKind(err, KindConflict))

	_, err = service.CreateCustomerRequest(f.ctx, f.customerUser(customer), CustomerRequestInput{UnitNumber: "T-1"})
	assert.Equal(t, "ACTIVE_REPAIR_EXISTS", ErrorCode(err))

	assert.Equal(t, int64(1), f.repairCount())
}

func TestApproveAndDeny(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	outsider := f.customerUser(f.customer("globex"))
	service := NewRepairService(f.deps)

	pending := f.discover(technician, customer, "T-1")
	f.notifier.Reset()

	_, err := service.Approve(f.ctx, technician, pending.ID, "")
	assert.Equal(t, "CUSTOMER_ONLY", ErrorCode(err))

	_, err = service.Approve(f.ctx, outsider, pending.ID, "")
	assert.Equal(t, "REPAIR_NOT_FOUND", ErrorCode(err))

	approved, err := service.Approve(f.ctx, fleetManager, pending.ID, "go ahead")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, approved.QueueStatus)

	stored := f.reloadRepair(pending.ID)
	require.NotNil(t, stored.Approval)
	assert.True(t, stored.Approval.Approved)
	assert.Equal(t, models.OriginTechnicianDiscovered, stored.Approval.Origin)
	assert.Equal(t, fleetManager.User.ID, *stored.Approval.ApprovedByID)
	assert.Equal(t, "go ahead", stored.Approval.Notes)

	_, err = service.Approve(f.ctx, fleetManager, pending.ID, "")
	assert.Equal(t, "NOT_PENDING", ErrorCode(err))

	toDeny := f.discover(technician, customer, "T-2")
	f.notifier.Reset()
	denied, err := service.Deny(f.ctx, fleetManager, toDeny.ID, "unit is being sold")
	require.NoError(t, err)
	assert.Equal(t, models.StatusDenied, denied.QueueStatus)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, NotifyRepairDenied, events[0].Kind)
	assert.Equal(t, technician.Technician.ID, *events[0].RecipientTechnicianID)
	assert.Contains(t, events[0].Message, "unit is being sold")

	_, err = service.Approve(f.ctx, fleetManager, toDeny.ID, "")
	assert.Equal(t, "NOT_PENDING", ErrorCode(err))
}

func TestUpdateStatus_CompletionPricesByTier(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	f.preference(customer, models.ApprovalAutoApprove, nil)
	f.unitCount(customer, "T-1", 2)
	service := NewRepairService(f.deps)

	repair := f.discover(technician, customer, "T-1")
	require.Equal(t, models.StatusApproved, repair.QueueStatus)

	_, err := service.UpdateStatus(f.ctx, technician, repair.ID, models.StatusApproved)
	assert.Equal(t, "STATUS_NOT_SETTABLE", ErrorCode(err))

	started, err := service.UpdateStatus(f.ctx, technician, repair.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.QueueStatus)

	f.notifier.Reset()
	completed, err := service.UpdateStatus(f.ctx, technician, repair.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, completed.QueueStatus)
	assert.True(t, money("35").Equal(completed.Cost), "third repair on the unit is priced at tier 3")

	count, err := f.store.Repairs().UnitRepairCount(f.ctx, customer.ID, "T-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Equal(t, []string{NotifyRepairCompleted}, f.notifier.Kinds())
	assert.Equal(t, CompletionPoints, f.points(fleetManager))

	var stored models.Technician
	require.NoError(t, f.db.First(&stored, technician.Technician.ID).Error)
	assert.Equal(t, 1, stored.RepairsCompleted)
	assert.NotNil(t, stored.LastActiveAt)

	// re-saving a completed repair changes nothing
	f.notifier.Reset()
	again, err := service.UpdateStatus(f.ctx, technician, repair.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.True(t, money("35").Equal(again.Cost))
	count, err = f.store.Repairs().UnitRepairCount(f.ctx, customer.ID, "T-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Empty(t, f.notifier.Events())
	assert.Equal(t, CompletionPoints, f.points(fleetManager))

	_, err = service.UpdateStatus(f.ctx, technician, repair.ID, models.StatusInProgress)
	assert.Equal(t, "REPAIR_CLOSED", ErrorCode(err))
}

func TestUpdateStatus_CompletionMarksTechnicianNotificationsRead(t *testing.T) {
	f := newFixture(t)
	f.deps.Notifier = NewStoreDispatcher(f.store)
	technician := f.technician()
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	service := NewRepairService(f.deps)

	pending := f.discover(technician, customer, "T-1")
	_, err := service.Approve(f.ctx, fleetManager, pending.ID, "")
	require.NoError(t, err)

	unread, err := f.store.Notifications().ListForTechnician(f.ctx, technician.Technician.ID, true, 0)
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, NotifyRepairApproved, unread[0].Kind)

	_, err = service.UpdateStatus(f.ctx, technician, pending.ID, models.StatusCompleted)
	require.NoError(t, err)

	unread, err = f.store.Notifications().ListForTechnician(f.ctx, technician.Technician.ID, true, 0)
	require.NoError(t, err)
	assert.Empty(t, unread)
}

func TestVisibilityRules(t *testing.T) {
	f := newFixture(t)
	assignee := f.technician()
	colleague := f.technician()
	manager := f.technician(asManager)
	admin := f.admin()
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	outsider := f.customerUser(f.customer("globex"))
	service := NewRepairService(f.deps)

	pending := f.discover(assignee, customer, "T-1")

	_, err := service.GetRepair(f.ctx, assignee, pending.ID)
	assert.Equal(t, "PENDING_NOT_VISIBLE", ErrorCode(err))
	_, err = service.GetRepair(f.ctx, outsider, pending.ID)
	assert.Equal(t, "REPAIR_NOT_FOUND", ErrorCode(err))
	_, err = service.GetRepair(f.ctx, fleetManager, pending.ID)
	assert.NoError(t, err)
	_, err = service.GetRepair(f.ctx, manager, pending.ID)
	assert.NoError(t, err)
	_, err = service.GetRepair(f.ctx, admin, pending.ID)
	assert.NoError(t, err)

	_, err = service.Approve(f.ctx, fleetManager, pending.ID, "")
	require.NoError(t, err)

	_, err = service.GetRepair(f.ctx, assignee, pending.ID)
	assert.NoError(t, err)
	_, err = service.GetRepair(f.ctx, colleague, pending.ID)
	assert.Equal(t, "NOT_ASSIGNED", ErrorCode(err))
	_, err = service.UpdateStatus(f.ctx, colleague, pending.ID, models.StatusInProgress)
	assert.Equal(t, "NOT_ASSIGNED", ErrorCode(err))
	_, err = service.UpdateStatus(f.ctx, fleetManager, pending.ID, models.StatusInProgress)
	assert.Equal(t, "TECHNICIAN_ONLY", ErrorCode(err))

	_, err = service.GetRepair(f.ctx, fleetManager, 999)
	assert.Equal(t, "REPAIR_NOT_FOUND", ErrorCode(err))
}

func TestManagerActsForManagedTechnician(t *testing.T) {
	f := newFixture(t)
	assignee := f.technician()
	manager := f.technician(asManager)
	unrelated := f.technician(asManager)
	f.manage(manager, assignee)
	customer := f.customer("acme")
	f.preference(customer, models.ApprovalAutoApprove, nil)
	service := NewRepairService(f.deps)

	repair := f.discover(assignee, customer, "T-1")

	started, err := service.UpdateStatus(f.ctx, manager, repair.ID, models.StatusInProgress)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.QueueStatus)

	_, err = service.UpdateStatus(f.ctx, unrelated, repair.ID, models.StatusCompleted)
	assert.Equal(t, "NOT_ASSIGNED", ErrorCode(err))
}

func TestListRepairs_Scopes(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	manager := f.technician(asManager)
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	otherCustomer := f.customer("globex")
	f.preference(otherCustomer, models.ApprovalAutoApprove, nil)
	service := NewRepairService(f.deps)

	f.discover(technician, customer, "T-1")
	f.discover(technician, otherCustomer, "G-1")

	mine, err := service.ListRepairs(f.ctx, fleetManager, nil, 0)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "T-1", mine[0].UnitNumber)

	assigned, err := service.ListRepairs(f.ctx, technician, nil, 0)
	require.NoError(t, err)
	require.Len(t, assigned, 1, "pending repairs stay hidden from technicians")
	assert.Equal(t, "G-1", assigned[0].UnitNumber)

	onlyPending, err := service.ListRepairs(f.ctx, technician, []models.RepairStatus{models.StatusPending}, 0)
	require.NoError(t, err)
	assert.Empty(t, onlyPending)

	everything, err := service.ListRepairs(f.ctx, manager, nil, 0)
	require.NoError(t, err)
	assert.Len(t, everything, 2)

	_, err = service.ListRepairs(f.ctx, manager, []models.RepairStatus{"LOST"}, 0)
	assert.Equal(t, "INVALID_STATUS", ErrorCode(err))

	_, err = service.ListRepairs(f.ctx, &Actor{User: &models.User{ID: 42, Role: models.RoleCustomer}}, nil, 0)
	assert.Equal(t, "NO_SCOPE", ErrorCode(err))
}

func TestAcceptRequest(t *testing.T) {
	f := newFixture(t)
	worker := f.technician()
	manager := f.technician(asManager)
	stranger := f.technician()
	f.manage(manager, worker)
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	service := NewRepairService(f.deps)

	request, err := service.CreateCustomerRequest(f.ctx, fleetManager, CustomerRequestInput{UnitNumber: "T-1", DamageType: "Star"})
	require.NoError(t, err)
	f.notifier.Reset()

	_, err = service.AcceptRequest(f.ctx, worker, request.ID, nil)
	assert.Equal(t, "MANAGER_ONLY", ErrorCode(err))

	strangerID := stranger.Technician.ID
	_, err = service.AcceptRequest(f.ctx, manager, request.ID, &strangerID)
	assert.Equal(t, "NOT_MANAGED", ErrorCode(err))

	missing := uint(999)
	_, err = service.AcceptRequest(f.ctx, manager, request.ID, &missing)
	assert.Equal(t, "TECHNICIAN_NOT_FOUND", ErrorCode(err))

	workerID := worker.Technician.ID
	accepted, err := service.AcceptRequest(f.ctx, manager, request.ID, &workerID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, accepted.QueueStatus)
	assert.True(t, accepted.AssignedTo(workerID))

	stored := f.reloadRepair(request.ID)
	require.NotNil(t, stored.Approval)
	assert.True(t, stored.Approval.CustomerInitiated())

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, NotifyRepairAssigned, events[0].Kind)
	assert.Equal(t, workerID, *events[0].RecipientTechnicianID)

	_, err = service.AcceptRequest(f.ctx, manager, request.ID, nil)
	assert.Equal(t, "NOT_REQUESTED", ErrorCode(err))
}

func TestSetCostOverride(t *testing.T) {
	f := newFixture(t)
	manager := f.technician(withOverride(moneyPtr("60")))
	technician := f.technician()
	customer := f.customer("acme")
	f.preference(customer, models.ApprovalAutoApprove, nil)
	service := NewRepairService(f.deps)

	repair := f.discover(manager, customer, "T-1")

	_, err := service.SetCostOverride(f.ctx, technician, repair.ID, money("10"), "")
	assert.Equal(t, "OVERRIDE_NOT_PERMITTED", ErrorCode(err))

	_, err = service.SetCostOverride(f.ctx, manager, repair.ID, money("75"), "")
	assert.Equal(t, "APPROVAL_LIMIT_EXCEEDED", ErrorCode(err))

	priced, err := service.SetCostOverride(f.ctx, manager, repair.ID, money("45"), " windshield replacement credit ")
	require.NoError(t, err)
	assert.True(t, money("45").Equal(priced.Cost))
	assert.Equal(t, "windshield replacement credit", priced.OverrideReason)

	completed, err := service.UpdateStatus(f.ctx, manager, repair.ID, models.StatusCompleted)
	require.NoError(t, err)
	assert.True(t, money("45").Equal(completed.Cost), "override wins over the tier price")

	_, err = service.SetCostOverride(f.ctx, manager, repair.ID, money("40"), "")
	assert.Equal(t, "REPAIR_CLOSED", ErrorCode(err))
}

func TestMarkUnitReplaced(t *testing.T) {
	f := newFixture(t)
	manager := f.technician(asManager)
	customer := f.customer("acme")
	f.unitCount(customer, "T-1", 7)
	service := NewRepairService(f.deps)

	err := service.MarkUnitReplaced(f.ctx, f.technician(), customer.ID, "T-1")
	assert.Equal(t, "MANAGER_ONLY", ErrorCode(err))

	require.NoError(t, service.MarkUnitReplaced(f.ctx, manager, customer.ID, "T-1"))
	count, err := f.store.Repairs().UnitRepairCount(f.ctx, customer.ID, "T-1")
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.Equal(t, "CUSTOMER_NOT_FOUND", ErrorCode(service.MarkUnitReplaced(f.ctx, manager, 999, "T-1")))
}

func TestAttachPhoto(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	manager := f.technician(asManager)
	f.manage(manager, technician)
	customer := f.customer("acme")
	f.preference(customer, models.ApprovalAutoApprove, nil)
	service := NewRepairService(f.deps)

	repair := f.discover(technician, customer, "T-1")

	_, err := service.AttachPhoto(f.ctx, technician, repair.ID, "during", "key.png")
	assert.Equal(t, "INVALID_PHOTO_KIND", ErrorCode(err))

	withPhoto, err := service.AttachPhoto(f.ctx, technician, repair.ID, PhotoBefore, "repair-photos/before.png")
	require.NoError(t, err)
	assert.True(t, withPhoto.HasPhotos())

	_, err = service.UpdateStatus(f.ctx, technician, repair.ID, models.StatusCompleted)
	require.NoError(t, err)

	_, err = service.CheckPhotoAccess(f.ctx, technician, repair.ID)
	assert.Equal(t, "MANAGER_ONLY", ErrorCode(err))

	closed, err := service.AttachPhoto(f.ctx, manager, repair.ID, PhotoAfter, "repair-photos/after.png")
	require.NoError(t, err)
	require.NotNil(t, closed.AfterPhotoKey)
	assert.Equal(t, "repair-photos/after.png", *closed.AfterPhotoKey)
}

func TestNotificationFailureDoesNotFailTheWorkflow(t *testing.T) {
	f := newFixture(t)
	f.notifier.fail = true
	technician := f.technician()
	customer := f.customer("acme")
	f.customerUser(customer)

	repair := f.discover(technician, customer, "T-1")
	assert.Equal(t, models.StatusPending, repair.QueueStatus)
	assert.Equal(t, int64(1), f.repairCount())
}

func TestCostBreakdown_NoReward(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	f.preference(customer, models.ApprovalAutoApprove, nil)
	service := NewRepairService(f.deps)

	repair := f.discover(technician, customer, "T-1")
	_, err := service.UpdateStatus(f.ctx, technician, repair.ID, models.StatusCompleted)
	require.NoError(t, err)

	breakdown, err := service.CostBreakdown(f.ctx, technician, repair.ID)
	require.NoError(t, err)
	assert.False(t, breakdown.DiscountApplied)
	assert.True(t, money("50").Equal(breakdown.FinalCost))
	assert.True(t, breakdown.Savings.IsZero())
}
