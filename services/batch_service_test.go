package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeBreaks() []BreakInput {
	return []BreakInput{
		{DamageType: "Chip"},
		{DamageType: "Star", DrillingPerformed: true},
		{DamageType: "Bullseye", ResinViscosity: "medium"},
	}
}

func (f *fixture) batch(technician *Actor, customer *models.Customer, unit string) *BatchSummary {
	f.t.Helper()
	summary, err := NewBatchService(f.deps).CreateBatch(f.ctx, technician, BatchInput{
		CustomerID: customer.ID,
		UnitNumber: unit,
		Breaks:     threeBreaks(),
	})
	require.NoError(f.t, err)
	return summary
}

func (f *fixture) batchMembers(batchID uuid.UUID) []models.Repair {
	f.t.Helper()
	repairs, err := f.store.Repairs().FindByBatchID(f.ctx, batchID)
	require.NoError(f.t, err)
	return repairs
}

func (f *fixture) setStatus(repairID uint, status models.RepairStatus) {
	f.t.Helper()
	require.NoError(f.t, f.db.Model(&models.Repair{}).Where("id = ?", repairID).Update("queue_status", status).Error)
}

func TestDistributeOverride(t *testing.T) {
	parts := DistributeOverride(money("100"), 3)
	require.Len(t, parts, 3)
	assert.True(t, money("33.33").Equal(parts[0]))
	assert.True(t, money("33.33").Equal(parts[1]))
	assert.True(t, money("33.34").Equal(parts[2]))

	single := DistributeOverride(money("42.50"), 1)
	assert.True(t, money("42.50").Equal(single[0]))

	assert.Nil(t, DistributeOverride(money("10"), 0))
}

func TestSummarizeBatch(t *testing.T) {
	batchID := uuid.New()
	customerID := uint(7)

	mixed := SummarizeBatch(batchID, []models.Repair{
		{CustomerID: &customerID, UnitNumber: "T-1", BreakNumber: 1, QueueStatus: models.StatusCompleted, Cost: money("50")},
		{CustomerID: &customerID, UnitNumber: "T-1", BreakNumber: 2, QueueStatus: models.StatusInProgress, Cost: money("40")},
		{CustomerID: &customerID, UnitNumber: "T-1", BreakNumber: 3, QueueStatus: models.StatusDenied, Cost: money("35")},
	})
	assert.Equal(t, 3, mixed.BreakCount)
	assert.Equal(t, "125.00", mixed.TotalFormatted)
	assert.Equal(t, "$50.00 - $35.00", mixed.PriceRange)
	assert.Equal(t, 1, mixed.CompletedCount)
	assert.Equal(t, 1, mixed.InProgressCount)
	assert.Equal(t, 1, mixed.DeniedCount)
	assert.False(t, mixed.AllSameStatus)
	assert.Empty(t, mixed.Status)
	assert.True(t, mixed.IsActive)
	assert.Equal(t, "T-1", mixed.UnitNumber)
	assert.Equal(t, customerID, *mixed.CustomerID)

	done := SummarizeBatch(batchID, []models.Repair{
		{QueueStatus: models.StatusCompleted, Cost: money("25")},
		{QueueStatus: models.StatusCompleted, Cost: money("25")},
	})
	assert.True(t, done.AllSameStatus)
	assert.Equal(t, models.StatusCompleted, done.Status)
	assert.False(t, done.IsActive)
}

func TestCreateBatch_ProgressivePricing(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	f.unitCount(customer, "T-1", 1)

	summary := f.batch(technician, customer, "T-1")

	assert.Equal(t, 3, summary.BreakCount)
	assert.Equal(t, "105.00", summary.TotalFormatted)
	assert.Equal(t, "$40.00 - $30.00", summary.PriceRange)
	assert.Equal(t, 3, summary.PendingCount)
	assert.Equal(t, models.StatusPending, summary.Status)

	members := f.batchMembers(summary.BatchID)
	require.Len(t, members, 3)
	expected := []string{"40", "35", "30"}
	for i, repair := range members {
		assert.Equal(t, i+1, repair.BreakNumber)
		assert.Equal(t, 3, repair.TotalBreaksInBatch)
		assert.Equal(t, models.StatusPending, repair.QueueStatus)
		assert.True(t, repair.AssignedTo(technician.Technician.ID))
		require.NotNil(t, repair.QuotedCost)
		assert.True(t, money(expected[i]).Equal(*repair.QuotedCost))
		assert.True(t, money(expected[i]).Equal(repair.Cost))
	}
	assert.True(t, members[1].DrillingPerformed)
	assert.Equal(t, "medium", members[2].ResinViscosity)

	// pricing continues from the unit count, which only moves on completion
	count, err := f.store.Repairs().UnitRepairCount(f.ctx, customer.ID, "T-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	events := f.notifier.Events()
	require.Len(t, events, 1, "one grouped notification for the whole batch")
	assert.Equal(t, NotifyBatchApprovalNeeded, events[0].Kind)
	assert.Equal(t, fleetManager.User.ID, *events[0].RecipientUserID)
	assert.Equal(t, summary.BatchID, *events[0].RepairBatchID)
	assert.Nil(t, events[0].RepairID)
	assert.Contains(t, events[0].Message, "3 breaks")
	assert.Contains(t, events[0].Message, "$105.00")
}

func TestCreateBatch_AutoApproved(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	f.customerUser(customer)
	f.preference(customer, models.ApprovalAutoApprove, nil)

	summary := f.batch(technician, customer, "T-1")
	assert.Equal(t, 3, summary.ApprovedCount)

	for _, repair := range f.batchMembers(summary.BatchID) {
		require.NotNil(t, repair.Approval)
		assert.Equal(t, models.OriginAutoApproved, repair.Approval.Origin)
	}
	assert.Equal(t, []string{NotifyRepairAutoApproved}, f.notifier.Kinds())
}

func TestCreateBatch_Validation(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	service := NewBatchService(f.deps)

	_, err := service.CreateBatch(f.ctx, f.customerUser(customer), BatchInput{CustomerID: customer.ID, UnitNumber: "T-1", Breaks: threeBreaks()})
	assert.Equal(t, "TECHNICIAN_ONLY", ErrorCode(err))

	_, err = service.CreateBatch(f.ctx, technician, BatchInput{CustomerID: customer.ID, Breaks: threeBreaks()})
	assert.Equal(t, "UNIT_NUMBER_REQUIRED", ErrorCode(err))

	_, err = service.CreateBatch(f.ctx, technician, BatchInput{CustomerID: customer.ID, UnitNumber: "T-1"})
	assert.Equal(t, "BREAKS_REQUIRED", ErrorCode(err))

	_, err = service.CreateBatch(f.ctx, technician, BatchInput{CustomerID: 999, UnitNumber: "T-1", Breaks: threeBreaks()})
	assert.Equal(t, "CUSTOMER_NOT_FOUND", ErrorCode(err))

	assert.Zero(t, f.repairCount())
}

func TestCreateBatch_InvalidBreakRejectsWholeBatch(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")

	breaks := threeBreaks()
	breaks[1].DamageType = "Scratch"
	_, err := NewBatchService(f.deps).CreateBatch(f.ctx, technician, BatchInput{CustomerID: customer.ID, UnitNumber: "T-1", Breaks: breaks})

	var werr *WorkflowError
	require.ErrorAs(t, err, &werr)
	assert.Equal(t, "INVALID_DAMAGE_TYPE", werr.Code)
	assert.Equal(t, "breaks[1].damage_type", werr.Field)
	assert.Contains(t, werr.Message, "break 2: ")

	assert.Zero(t, f.repairCount())
	assert.Empty(t, f.notifier.Events())
}

func TestCreateBatch_DatabaseFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	require.NoError(t, f.db.Exec(`CREATE TRIGGER fail_second_break BEFORE INSERT ON repairs
		WHEN NEW.break_number = 2
		BEGIN SELECT RAISE(ABORT, 'disk full'); END;`).Error)

	_, err := NewBatchService(f.deps).CreateBatch(f.ctx, technician, BatchInput{CustomerID: customer.ID, UnitNumber: "T-1", Breaks: threeBreaks()})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindTransaction))
	assert.Contains(t, err.Error(), "disk full")

	assert.Zero(t, f.repairCount(), "the first break must not survive")
	assert.Empty(t, f.notifier.Events())
}

func TestCreateBatch_ActiveRepairOnUnit(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	f.discover(technician, customer, "T-1")

	_, err := NewBatchService(f.deps).CreateBatch(f.ctx, technician, BatchInput{CustomerID: customer.ID, UnitNumber: "T-1", Breaks: threeBreaks()})
	assert.Equal(t, "ACTIVE_REPAIR_EXISTS", ErrorCode(err))
	assert.Equal(t, int64(1), f.repairCount())
}

func TestCreateBatch_OverrideTotal(t *testing.T) {
	f := newFixture(t)
	manager := f.technician(withOverride(moneyPtr("10")))
	technician := f.technician()
	customer := f.customer("acme")
	service := NewBatchService(f.deps)

	// calculated total for a fresh unit is 50 + 40 + 35
	summary, err := service.CreateBatch(f.ctx, manager, BatchInput{
		CustomerID: customer.ID, UnitNumber: "T-1", Breaks: threeBreaks(),
		OverrideTotal: moneyPtr("100"), OverrideReason: "fleet agreement",
	})
	require.NoError(t, err)
	assert.Equal(t, "100.00", summary.TotalFormatted)

	members := f.batchMembers(summary.BatchID)
	require.Len(t, members, 3)
	assert.True(t, money("33.34").Equal(members[2].Cost))
	for _, repair := range members {
		require.NotNil(t, repair.CostOverride)
		assert.Equal(t, "fleet agreement", repair.OverrideReason)
	}

	_, err = service.CreateBatch(f.ctx, manager, BatchInput{
		CustomerID: customer.ID, UnitNumber: "T-2", Breaks: threeBreaks(), OverrideTotal: moneyPtr("250.01"),
	})
	assert.Equal(t, "OVERRIDE_CEILING_EXCEEDED", ErrorCode(err))

	_, err = service.CreateBatch(f.ctx, technician, BatchInput{
		CustomerID: customer.ID, UnitNumber: "T-3", Breaks: threeBreaks(), OverrideTotal: moneyPtr("90"),
	})
	assert.Equal(t, "OVERRIDE_NOT_PERMITTED", ErrorCode(err))

	assert.Equal(t, int64(3), f.repairCount())
}

func TestApproveBatch(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	outsider := f.customerUser(f.customer("globex"))
	service := NewBatchService(f.deps)

	summary := f.batch(technician, customer, "T-1")
	f.notifier.Reset()

	_, err := service.ApproveBatch(f.ctx, technician, summary.BatchID, "")
	assert.Equal(t, "CUSTOMER_ONLY", ErrorCode(err))

	_, err = service.ApproveBatch(f.ctx, outsider, summary.BatchID, "")
	assert.Equal(t, "BATCH_NOT_FOUND", ErrorCode(err))

	_, err = service.ApproveBatch(f.ctx, fleetManager, uuid.New(), "")
	assert.Equal(t, "BATCH_NOT_FOUND", ErrorCode(err))

	approved, err := service.ApproveBatch(f.ctx, fleetManager, summary.BatchID, "all three")
	require.NoError(t, err)
	assert.Equal(t, 3, approved.ApprovedCount)
	assert.Equal(t, models.StatusApproved, approved.Status)

	for _, repair := range f.batchMembers(summary.BatchID) {
		assert.Equal(t, models.StatusApproved, repair.QueueStatus)
		require.NotNil(t, repair.Approval)
		assert.Equal(t, fleetManager.User.ID, *repair.Approval.ApprovedByID)
	}

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, NotifyBatchApproved, events[0].Kind)
	assert.Equal(t, technician.Technician.ID, *events[0].RecipientTechnicianID)
	assert.Equal(t, summary.BatchID, *events[0].RepairBatchID)
	assert.Contains(t, events[0].Message, "3 breaks")
	assert.Contains(t, events[0].Message, "$125.00")

	_, err = service.ApproveBatch(f.ctx, fleetManager, summary.BatchID, "")
	assert.Equal(t, "NO_PENDING_BREAKS", ErrorCode(err))
}

func TestDenyBatch_OnlyPendingBreaksChange(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	service := NewBatchService(f.deps)

	summary := f.batch(technician, customer, "T-1")
	members := f.batchMembers(summary.BatchID)
	f.setStatus(members[0].ID, models.StatusApproved)
	f.notifier.Reset()

	denied, err := service.DenyBatch(f.ctx, fleetManager, summary.BatchID, "budget")
	require.NoError(t, err)
	assert.Equal(t, 1, denied.ApprovedCount)
	assert.Equal(t, 2, denied.DeniedCount)
	assert.False(t, denied.AllSameStatus)
	assert.True(t, denied.IsActive)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, NotifyBatchDenied, events[0].Kind)
	assert.Contains(t, events[0].Message, "2 breaks")
	assert.Contains(t, events[0].Message, "$75.00")
	assert.Contains(t, events[0].Message, "budget")
}

func TestStartBatch(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	helper := f.technician()
	customer := f.customer("acme")
	f.customerUser(customer)
	f.preference(customer, models.ApprovalAutoApprove, nil)
	service := NewBatchService(f.deps)

	summary := f.batch(technician, customer, "T-1")
	members := f.batchMembers(summary.BatchID)
	require.NoError(t, f.db.Model(&models.Repair{}).Where("id = ?", members[2].ID).Update("technician_id", helper.Technician.ID).Error)
	f.notifier.Reset()

	_, err := service.StartBatch(f.ctx, f.customerUser(customer), summary.BatchID)
	assert.Equal(t, "TECHNICIAN_ONLY", ErrorCode(err))

	started, err := service.StartBatch(f.ctx, technician, summary.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 2, started.InProgressCount)
	assert.Equal(t, 1, started.ApprovedCount)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, NotifyBatchStarted, events[0].Kind)
	assert.Contains(t, events[0].Message, "2 breaks")

	_, err = service.StartBatch(f.ctx, technician, summary.BatchID)
	assert.Equal(t, "NO_APPROVED_BREAKS", ErrorCode(err))

	rest, err := service.StartBatch(f.ctx, helper, summary.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 3, rest.InProgressCount)
	assert.Equal(t, models.StatusInProgress, rest.Status)
}

func TestConvertToBatch(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	f.preference(customer, models.ApprovalAutoApprove, nil)
	service := NewBatchService(f.deps)

	original := f.discover(technician, customer, "T-1")
	f.notifier.Reset()

	_, err := service.ConvertToBatch(f.ctx, technician, original.ID, nil)
	assert.Equal(t, "BREAKS_REQUIRED", ErrorCode(err))

	_, err = service.ConvertToBatch(f.ctx, fleetManager, original.ID, []BreakInput{{DamageType: "Star"}})
	assert.Equal(t, "TECHNICIAN_ONLY", ErrorCode(err))

	summary, err := service.ConvertToBatch(f.ctx, technician, original.ID, []BreakInput{{DamageType: "Star"}, {DamageType: "Crack"}})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.BreakCount)
	assert.Equal(t, "125.00", summary.TotalFormatted)

	members := f.batchMembers(summary.BatchID)
	require.Len(t, members, 3)
	assert.Equal(t, original.ID, members[0].ID)
	assert.Equal(t, 1, members[0].BreakNumber)
	assert.True(t, money("50").Equal(members[0].Cost))
	assert.True(t, money("40").Equal(members[1].Cost))
	assert.True(t, money("35").Equal(members[2].Cost))
	for _, repair := range members {
		assert.Equal(t, 3, repair.TotalBreaksInBatch)
		assert.Equal(t, models.StatusApproved, repair.QueueStatus)
		assert.True(t, repair.AssignedTo(technician.Technician.ID))
	}

	// only the added breaks are announced
	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Contains(t, events[0].Message, "2 breaks")
	assert.Contains(t, events[0].Message, "$75.00")

	_, err = service.ConvertToBatch(f.ctx, technician, original.ID, []BreakInput{{DamageType: "Chip"}})
	assert.Equal(t, "ALREADY_BATCHED", ErrorCode(err))
}

func TestConvertToBatch_RequiresApprovedWork(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	manager := f.technician(asManager)
	customer := f.customer("acme")
	service := NewBatchService(f.deps)

	pending := f.discover(technician, customer, "T-1")

	_, err := service.ConvertToBatch(f.ctx, technician, pending.ID, []BreakInput{{DamageType: "Star"}})
	assert.Equal(t, "PENDING_NOT_VISIBLE", ErrorCode(err))

	_, err = service.ConvertToBatch(f.ctx, manager, pending.ID, []BreakInput{{DamageType: "Star"}})
	assert.Equal(t, "INVALID_STATUS_FOR_BATCH", ErrorCode(err))

	_, err = service.ConvertToBatch(f.ctx, manager, pending.ID, []BreakInput{{DamageType: ""}})
	assert.Equal(t, "DAMAGE_TYPE_REQUIRED", ErrorCode(err))

	assert.Equal(t, int64(1), f.repairCount())
}

func TestGetBatchSummary(t *testing.T) {
	f := newFixture(t)
	technician := f.technician()
	customer := f.customer("acme")
	fleetManager := f.customerUser(customer)
	outsider := f.customerUser(f.customer("globex"))
	service := NewBatchService(f.deps)

	summary := f.batch(technician, customer, "T-1")

	mine, err := service.GetBatchSummary(f.ctx, fleetManager, summary.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 3, mine.BreakCount)
	assert.Equal(t, summary.TotalFormatted, mine.TotalFormatted)

	_, err = service.GetBatchSummary(f.ctx, outsider, summary.BatchID)
	assert.Equal(t, "BATCH_NOT_FOUND", ErrorCode(err))

	// pending breaks stay hidden from the technician
	_, err = service.GetBatchSummary(f.ctx, technician, summary.BatchID)
	assert.Equal(t, "BATCH_NOT_FOUND", ErrorCode(err))

	_, err = service.ApproveBatch(f.ctx, fleetManager, summary.BatchID, "")
	require.NoError(t, err)
	visible, err := service.GetBatchSummary(f.ctx, technician, summary.BatchID)
	require.NoError(t, err)
	assert.Equal(t, 3, visible.ApprovedCount)

	_, err = service.GetBatchSummary(f.ctx, fleetManager, uuid.New())
	assert.Equal(t, "BATCH_NOT_FOUND", ErrorCode(err))
}
