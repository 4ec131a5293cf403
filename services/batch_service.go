package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// BreakInput describes one break logged as part of a batch
type BreakInput struct {
	DamageType        string
	DrillingPerformed bool
	ResinViscosity    string
	WindshieldTemp    *float64
	TechnicianNotes   string
}

// BatchInput creates several breaks on one unit in a single transaction
type BatchInput struct {
	CustomerID     uint
	UnitNumber     string
	Breaks         []BreakInput
	OverrideTotal  *decimal.Decimal
	OverrideReason string
}

// BatchSummary aggregates the repairs that share a batch id
type BatchSummary struct {
	BatchID         uuid.UUID           `json:"batch_id"`
	CustomerID      *uint               `json:"customer_id"`
	UnitNumber      string              `json:"unit_number"`
	BreakCount      int                 `json:"break_count"`
	TotalCost       decimal.Decimal     `json:"total_cost"`
	TotalFormatted  string              `json:"total_formatted"`
	PriceRange      string              `json:"price_range"`
	PendingCount    int                 `json:"pending_count"`
	ApprovedCount   int                 `json:"approved_count"`
	InProgressCount int                 `json:"in_progress_count"`
	CompletedCount  int                 `json:"completed_count"`
	DeniedCount     int                 `json:"denied_count"`
	AllSameStatus   bool                `json:"all_same_status"`
	Status          models.RepairStatus `json:"status,omitempty"`
	IsActive        bool                `json:"is_active"`
	Repairs         []models.Repair     `json:"repairs"`
}

// SummarizeBatch aggregates batch members. Status is only set when every break shares it.
func SummarizeBatch(batchID uuid.UUID, repairs []models.Repair) BatchSummary {
	summary := BatchSummary{BatchID: batchID, BreakCount: len(repairs), Repairs: repairs}
	breaks := make([]BreakPrice, 0, len(repairs))
	for i, r := range repairs {
		if i == 0 {
			summary.CustomerID = r.CustomerID
			summary.UnitNumber = r.UnitNumber
		}
		breaks = append(breaks, BreakPrice{BreakNumber: r.BreakNumber, Price: r.Cost})
		switch r.QueueStatus {
		case models.StatusPending:
			summary.PendingCount++
		case models.StatusApproved:
			summary.ApprovedCount++
		case models.StatusInProgress:
			summary.InProgressCount++
		case models.StatusCompleted:
			summary.CompletedCount++
		case models.StatusDenied:
			summary.DeniedCount++
		}
		if !r.QueueStatus.Terminal() {
			summary.IsActive = true
		}
	}

	total := CalculateBatchTotal(breaks)
	summary.TotalCost = total.Total
	summary.TotalFormatted = total.TotalFormatted
	summary.PriceRange = total.PriceRange

	summary.AllSameStatus = len(repairs) > 0
	for _, r := range repairs {
		if r.QueueStatus != repairs[0].QueueStatus {
			summary.AllSameStatus = false
			break
		}
	}
	if summary.AllSameStatus {
		summary.Status = repairs[0].QueueStatus
	}
	return summary
}

// DistributeOverride splits an override total across n breaks in whole cents. The
// remainder lands on the last break so the parts always add up to total.
func DistributeOverride(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	share := total.Div(decimal.NewFromInt(int64(n))).Truncate(2)
	parts := make([]decimal.Decimal, n)
	assigned := decimal.Zero
	for i := 0; i < n-1; i++ {
		parts[i] = share
		assigned = assigned.Add(share)
	}
	parts[n-1] = total.Sub(assigned)
	return parts
}

// BatchService coordinates multi-break repairs as all-or-nothing units
type BatchService struct {
	w *workflow
}

// NewBatchService creates a batch coordinator
func NewBatchService(deps Deps) *BatchService {
	return &BatchService{w: newWorkflow(deps)}
}

// CreateBatch logs every break of a unit in one transaction. Any failing break
// rolls back the whole batch.
func (s *BatchService) CreateBatch(ctx context.Context, actor *Actor, in BatchInput) (*BatchSummary, error) {
	if !actor.IsTechnician() {
		return nil, forbidden("TECHNICIAN_ONLY", "only technicians can log batch repairs")
	}
	unitNumber := strings.TrimSpace(in.UnitNumber)
	if unitNumber == "" {
		return nil, validationError("unit_number", "UNIT_NUMBER_REQUIRED", "unit number is required")
	}
	if len(in.Breaks) == 0 {
		return nil, validationError("breaks", "BREAKS_REQUIRED", "a batch needs at least one break")
	}
	damageTypes, err := breakDamageTypes(in.Breaks)
	if err != nil {
		return nil, err
	}
	if _, err := s.w.store.Customers().FindByID(ctx, in.CustomerID); err != nil {
		return nil, customerLookupError(err)
	}

	batchID := uuid.New()
	technicianID := actor.Technician.ID
	n := len(in.Breaks)
	var created []models.Repair

	err = s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		prices, err := calculateBatchPricing(ctx, tx, in.CustomerID, unitNumber, n)
		if err != nil {
			return err
		}
		var overrides []decimal.Decimal
		if in.OverrideTotal != nil {
			calculated := CalculateBatchTotal(prices).Total
			if err := ValidateBatchOverride(actor.Technician, *in.OverrideTotal, calculated); err != nil {
				return err
			}
			overrides = DistributeOverride(*in.OverrideTotal, n)
		}
		if err := ensureUnitAvailable(ctx, tx, in.CustomerID, unitNumber, 0, &batchID); err != nil {
			return err
		}
		status, err := s.w.initialStatus(ctx, tx, in.CustomerID, technicianID, unitNumber)
		if err != nil {
			return err
		}

		for i, b := range in.Breaks {
			customerID := in.CustomerID
			quoted := prices[i].Price
			repair := models.Repair{
				CustomerID:         &customerID,
				TechnicianID:       &technicianID,
				UnitNumber:         unitNumber,
				RepairDate:         s.w.now(),
				DamageType:         damageTypes[i],
				DrillingPerformed:  b.DrillingPerformed,
				ResinViscosity:     b.ResinViscosity,
				WindshieldTemp:     b.WindshieldTemp,
				QueueStatus:        status,
				QuotedCost:         &quoted,
				RepairBatchID:      &batchID,
				BreakNumber:        i + 1,
				TotalBreaksInBatch: n,
				TechnicianNotes:    b.TechnicianNotes,
			}
			if overrides != nil {
				override := overrides[i]
				repair.CostOverride = &override
				repair.OverrideReason = strings.TrimSpace(in.OverrideReason)
			}
			repair.Cost = previewCost(&repair)
			if err := tx.Repairs().Create(ctx, &repair); err != nil {
				return err
			}
			if status == models.StatusApproved {
				if err := s.w.autoApprove(ctx, tx, &repair); err != nil {
					return err
				}
			}
			created = append(created, repair)
		}
		return nil
	})
	if err != nil {
		s.w.logger.Warn("batch creation rolled back",
			zap.String("batch_id", batchID.String()), zap.String("unit_number", unitNumber), zap.Error(err))
		return nil, transactionFailure("failed to create batch", err)
	}

	summary := SummarizeBatch(batchID, created)
	s.w.logger.Info("batch created",
		zap.String("batch_id", batchID.String()), zap.Int("breaks", n), zap.String("total", summary.TotalFormatted))
	s.w.publish(ctx, []DomainEvent{{
		Kind:        EventBatchCreated,
		Repair:      created[0],
		BatchID:     &batchID,
		BreakCount:  n,
		Total:       summary.TotalCost,
		ActorUserID: actor.UserID(),
	}})
	return &summary, nil
}

// ApproveBatch approves every PENDING break of the batch at once
func (s *BatchService) ApproveBatch(ctx context.Context, actor *Actor, batchID uuid.UUID, notes string) (*BatchSummary, error) {
	return s.decide(ctx, actor, batchID, true, notes)
}

// DenyBatch denies every PENDING break of the batch at once
func (s *BatchService) DenyBatch(ctx context.Context, actor *Actor, batchID uuid.UUID, reason string) (*BatchSummary, error) {
	return s.decide(ctx, actor, batchID, false, reason)
}

func (s *BatchService) decide(ctx context.Context, actor *Actor, batchID uuid.UUID, approved bool, notes string) (*BatchSummary, error) {
	if _, ok := actor.CustomerID(); !ok {
		return nil, forbidden("CUSTOMER_ONLY", "only the customer can approve or deny a batch")
	}
	next := models.StatusDenied
	kind := EventBatchDenied
	if approved {
		next = models.StatusApproved
		kind = EventBatchApproved
	}
	notes = strings.TrimSpace(notes)

	var repairs []models.Repair
	var changed []models.Repair
	err := s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if repairs, err = loadBatch(ctx, tx, batchID); err != nil {
			return err
		}
		if !actor.ownsRepair(&repairs[0]) {
			return notFound("BATCH_NOT_FOUND", fmt.Sprintf("batch %s not found", batchID))
		}

		for i := range repairs {
			repair := &repairs[i]
			if repair.QueueStatus != models.StatusPending {
				continue
			}
			if _, err := s.w.applyTransition(ctx, tx, repair, models.StatusPending, next); err != nil {
				return err
			}
			approval := &models.RepairApproval{
				RepairID:     repair.ID,
				Approved:     approved,
				ApprovedByID: actor.UserID(),
				ApprovalDate: s.w.now(),
				Origin:       models.OriginTechnicianDiscovered,
				Notes:        notes,
			}
			if err := tx.Repairs().UpsertApproval(ctx, approval); err != nil {
				return err
			}
			repair.Approval = approval
			changed = append(changed, *repair)
		}
		if len(changed) == 0 {
			return conflict("NO_PENDING_BREAKS", fmt.Sprintf("batch %s has no breaks awaiting a decision", batchID))
		}
		return nil
	})
	if err != nil {
		return nil, transactionFailure("failed to record batch decision", err)
	}

	s.w.logger.Info("batch decision recorded",
		zap.String("batch_id", batchID.String()), zap.Bool("approved", approved), zap.Int("breaks", len(changed)))
	s.w.publish(ctx, []DomainEvent{{
		Kind:        kind,
		Repair:      changed[0],
		BatchID:     &batchID,
		BreakCount:  len(changed),
		Total:       sumCosts(changed),
		ActorUserID: actor.UserID(),
		Note:        notes,
	}})
	summary := SummarizeBatch(batchID, repairs)
	return &summary, nil
}

// StartBatch moves the requester's APPROVED breaks to IN_PROGRESS. Breaks assigned
// to other technicians are left alone.
func (s *BatchService) StartBatch(ctx context.Context, actor *Actor, batchID uuid.UUID) (*BatchSummary, error) {
	if !actor.IsTechnician() {
		return nil, forbidden("TECHNICIAN_ONLY", "only technicians can start batch work")
	}
	technicianID := actor.Technician.ID

	var repairs []models.Repair
	var started []models.Repair
	err := s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if repairs, err = loadBatch(ctx, tx, batchID); err != nil {
			return err
		}
		for i := range repairs {
			repair := &repairs[i]
			if repair.QueueStatus != models.StatusApproved || !repair.AssignedTo(technicianID) {
				continue
			}
			if _, err := s.w.applyTransition(ctx, tx, repair, models.StatusApproved, models.StatusInProgress); err != nil {
				return err
			}
			started = append(started, *repair)
		}
		if len(started) == 0 {
			return conflict("NO_APPROVED_BREAKS", fmt.Sprintf("batch %s has no approved breaks assigned to you", batchID))
		}
		return nil
	})
	if err != nil {
		return nil, transactionFailure("failed to start batch work", err)
	}

	s.w.publish(ctx, []DomainEvent{{
		Kind:        EventBatchStarted,
		Repair:      started[0],
		BatchID:     &batchID,
		BreakCount:  len(started),
		Total:       sumCosts(started),
		ActorUserID: actor.UserID(),
	}})
	summary := SummarizeBatch(batchID, repairs)
	return &summary, nil
}

// ConvertToBatch turns a single APPROVED or IN_PROGRESS repair into break 1 of a new
// batch and adds the extra breaks with continuing progressive prices.
func (s *BatchService) ConvertToBatch(ctx context.Context, actor *Actor, repairID uint, additional []BreakInput) (*BatchSummary, error) {
	if len(additional) == 0 {
		return nil, validationError("breaks", "BREAKS_REQUIRED", "add at least one more break to convert a repair into a batch")
	}
	damageTypes, err := breakDamageTypes(additional)
	if err != nil {
		return nil, err
	}

	batchID := uuid.New()
	var created []models.Repair
	var status models.RepairStatus
	err = s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		original, err := loadRepair(ctx, tx, repairID)
		if err != nil {
			return err
		}
		if err := checkWorkAccess(actor, original); err != nil {
			return err
		}
		if original.IsBatched() {
			return conflict("ALREADY_BATCHED", fmt.Sprintf("repair %d is already part of a batch", original.ID))
		}
		if original.QueueStatus != models.StatusApproved && original.QueueStatus != models.StatusInProgress {
			return conflict("INVALID_STATUS_FOR_BATCH",
				fmt.Sprintf("repair %d is %s, only approved or in-progress repairs can become a batch", original.ID, original.QueueStatus))
		}
		if original.CustomerID == nil {
			return validationError("customer_id", "CUSTOMER_REQUIRED", "repair has no customer")
		}
		customerID := *original.CustomerID
		n := len(additional) + 1
		if err := ensureUnitAvailable(ctx, tx, customerID, original.UnitNumber, original.ID, nil); err != nil {
			return err
		}

		prices, err := calculateBatchPricing(ctx, tx, customerID, original.UnitNumber, n)
		if err != nil {
			return err
		}
		if status, err = s.w.initialStatus(ctx, tx, customerID, technicianOf(actor, original), original.UnitNumber); err != nil {
			return err
		}

		quoted := prices[0].Price
		original.RepairBatchID = &batchID
		original.BreakNumber = 1
		original.TotalBreaksInBatch = n
		original.QuotedCost = &quoted
		original.Cost = previewCost(original)
		if err := tx.Repairs().Save(ctx, original); err != nil {
			return err
		}
		created = append(created, *original)

		for i, b := range additional {
			price := prices[i+1].Price
			sibling := models.Repair{
				CustomerID:         &customerID,
				TechnicianID:       original.TechnicianID,
				UnitNumber:         original.UnitNumber,
				RepairDate:         s.w.now(),
				DamageType:         damageTypes[i],
				DrillingPerformed:  b.DrillingPerformed,
				ResinViscosity:     b.ResinViscosity,
				WindshieldTemp:     b.WindshieldTemp,
				QueueStatus:        status,
				QuotedCost:         &price,
				RepairBatchID:      &batchID,
				BreakNumber:        i + 2,
				TotalBreaksInBatch: n,
				TechnicianNotes:    b.TechnicianNotes,
			}
			sibling.Cost = previewCost(&sibling)
			if err := tx.Repairs().Create(ctx, &sibling); err != nil {
				return err
			}
			if status == models.StatusApproved {
				if err := s.w.autoApprove(ctx, tx, &sibling); err != nil {
					return err
				}
			}
			created = append(created, sibling)
		}
		return nil
	})
	if err != nil {
		return nil, transactionFailure("failed to convert repair to batch", err)
	}

	summary := SummarizeBatch(batchID, created)
	s.w.logger.Info("repair converted to batch",
		zap.Uint("repair_id", repairID), zap.String("batch_id", batchID.String()), zap.Int("breaks", len(created)))

	siblings := created[1:]
	s.w.publish(ctx, []DomainEvent{{
		Kind:        EventBatchCreated,
		Repair:      siblings[0],
		BatchID:     &batchID,
		BreakCount:  len(siblings),
		Total:       sumCosts(siblings),
		ActorUserID: actor.UserID(),
	}})
	return &summary, nil
}

// GetBatchSummary returns the aggregate view of a batch the actor may see
func (s *BatchService) GetBatchSummary(ctx context.Context, actor *Actor, batchID uuid.UUID) (*BatchSummary, error) {
	repairs, err := loadBatch(ctx, s.w.store, batchID)
	if err != nil {
		return nil, err
	}
	visible := repairs[:0:0]
	for i := range repairs {
		if checkVisible(actor, &repairs[i]) == nil {
			visible = append(visible, repairs[i])
		}
	}
	if len(visible) == 0 {
		return nil, notFound("BATCH_NOT_FOUND", fmt.Sprintf("batch %s not found", batchID))
	}
	summary := SummarizeBatch(batchID, visible)
	return &summary, nil
}

// breakDamageTypes validates every break up front so one bad break rejects the whole batch
func breakDamageTypes(breaks []BreakInput) ([]string, error) {
	damageTypes := make([]string, len(breaks))
	for i, b := range breaks {
		damageType, err := normalizeDamageType(b.DamageType, true)
		if err != nil {
			var werr *WorkflowError
			if errors.As(err, &werr) {
				werr.Field = fmt.Sprintf("breaks[%d].damage_type", i)
				werr.Message = fmt.Sprintf("break %d: %s", i+1, werr.Message)
			}
			return nil, err
		}
		damageTypes[i] = damageType
	}
	return damageTypes, nil
}

func loadBatch(ctx context.Context, store *repository.Store, batchID uuid.UUID) ([]models.Repair, error) {
	repairs, err := store.Repairs().FindByBatchID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if len(repairs) == 0 {
		return nil, notFound("BATCH_NOT_FOUND", fmt.Sprintf("batch %s not found", batchID))
	}
	return repairs, nil
}

// technicianOf is the technician whose visit a converted batch counts against
func technicianOf(actor *Actor, repair *models.Repair) uint {
	if repair.TechnicianID != nil {
		return *repair.TechnicianID
	}
	if actor.IsTechnician() {
		return actor.Technician.ID
	}
	return 0
}

func sumCosts(repairs []models.Repair) decimal.Decimal {
	total := decimal.Zero
	for _, r := range repairs {
		total = total.Add(r.Cost)
	}
	return total
}
