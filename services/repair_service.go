package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/repository"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// repairTransitions lists the status moves allowed from each status. COMPLETED may be
// re-saved without side effects; DENIED has no way out.
var repairTransitions = map[models.RepairStatus][]models.RepairStatus{
	models.StatusRequested:  {models.StatusApproved},
	models.StatusPending:    {models.StatusApproved, models.StatusDenied},
	models.StatusApproved:   {models.StatusInProgress, models.StatusCompleted},
	models.StatusInProgress: {models.StatusCompleted},
	models.StatusCompleted:  {models.StatusCompleted},
}

const customerInitiatedNote = "Customer initiated the request"

// CheckTransition reports whether a repair may move from prior to next
func CheckTransition(prior, next models.RepairStatus) error {
	if !next.Valid() {
		return validationError("queue_status", "INVALID_STATUS", fmt.Sprintf("unknown status %q", next))
	}
	for _, allowed := range repairTransitions[prior] {
		if allowed == next {
			return nil
		}
	}
	if prior.Terminal() {
		return conflict("REPAIR_CLOSED", fmt.Sprintf("repair is %s and can no longer change status", prior))
	}
	return conflict("INVALID_TRANSITION", fmt.Sprintf("cannot move a repair from %s to %s", prior, next))
}

// previewCost is the cost shown before completion: the override when pinned,
// the quoted batch price for batch breaks, otherwise zero.
func previewCost(repair *models.Repair) decimal.Decimal {
	if repair.CostOverride != nil {
		return *repair.CostOverride
	}
	if repair.QuotedCost != nil {
		return *repair.QuotedCost
	}
	return decimal.Zero
}

// applyTransition moves repair from prior, the status it had when loaded, to next and
// saves it through tx. It returns nil without an event when a completed repair is re-saved.
func (w *workflow) applyTransition(ctx context.Context, tx *repository.Store, repair *models.Repair, prior, next models.RepairStatus) (*DomainEvent, error) {
	if err := CheckTransition(prior, next); err != nil {
		return nil, err
	}

	repair.QueueStatus = next
	var kind EventKind
	switch {
	case prior == models.StatusCompleted:
		// already counted and priced
		if err := tx.Repairs().Save(ctx, repair); err != nil {
			return nil, err
		}
		return nil, nil
	case next == models.StatusCompleted:
		cost, err := completionCost(ctx, tx, repair)
		if err != nil {
			return nil, err
		}
		repair.RepairDate = w.now()
		repair.Cost = cost
		kind = EventRepairCompleted
	default:
		repair.Cost = previewCost(repair)
		switch next {
		case models.StatusApproved:
			kind = EventRepairApproved
		case models.StatusDenied:
			kind = EventRepairDenied
		case models.StatusInProgress:
			kind = EventRepairStarted
		}
	}

	if err := tx.Repairs().Save(ctx, repair); err != nil {
		return nil, err
	}
	return &DomainEvent{Kind: kind, Repair: *repair, BatchID: repair.RepairBatchID}, nil
}

// completionCost increments the unit counter and prices the repair at the new tier
func completionCost(ctx context.Context, tx *repository.Store, repair *models.Repair) (decimal.Decimal, error) {
	var pricing *models.CustomerPricing
	tier := 1
	if repair.CustomerID != nil {
		count, err := tx.Repairs().IncrementUnitRepairCount(ctx, *repair.CustomerID, repair.UnitNumber)
		if err != nil {
			return decimal.Zero, err
		}
		tier = count
		if pricing, err = tx.Customers().Pricing(ctx, *repair.CustomerID); err != nil {
			return decimal.Zero, err
		}
	}
	if repair.CostOverride != nil {
		return *repair.CostOverride, nil
	}
	return TierPrice(pricing, tier), nil
}

// ensureUnitAvailable rejects a repair when the unit already has an active repair
// outside batchID.
func ensureUnitAvailable(ctx context.Context, tx *repository.Store, customerID uint, unitNumber string, excludeID uint, batchID *uuid.UUID) error {
	active, err := tx.Repairs().ActiveForUnit(ctx, customerID, unitNumber, excludeID)
	if err != nil {
		return err
	}
	for _, other := range active {
		if batchID != nil && other.RepairBatchID != nil && *other.RepairBatchID == *batchID {
			continue
		}
		return conflict("ACTIVE_REPAIR_EXISTS",
			fmt.Sprintf("unit %s already has an active repair (#%d, %s)", unitNumber, other.ID, other.QueueStatus))
	}
	return nil
}

// initialStatus decides whether a technician-discovered repair starts APPROVED or PENDING
// from the customer's repair preference. A missing preference requires approval.
func (w *workflow) initialStatus(ctx context.Context, tx *repository.Store, customerID, technicianID uint, unitNumber string) (models.RepairStatus, error) {
	pref, err := tx.Customers().Preference(ctx, customerID)
	if err != nil {
		return "", err
	}
	if pref == nil {
		return models.StatusPending, nil
	}

	switch pref.FieldRepairApproval {
	case models.ApprovalAutoApprove:
		return models.StatusApproved, nil
	case models.ApprovalUnitThreshold:
		if pref.UnitsPerVisitThreshold == nil {
			return models.StatusPending, nil
		}
		now := w.now()
		visitStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		others, err := tx.Repairs().CountUnitsDiscoveredSince(ctx, customerID, technicianID, visitStart, unitNumber)
		if err != nil {
			return "", err
		}
		if others+1 <= int64(*pref.UnitsPerVisitThreshold) {
			return models.StatusApproved, nil
		}
	}
	return models.StatusPending, nil
}

func (w *workflow) autoApprove(ctx context.Context, tx *repository.Store, repair *models.Repair) error {
	approval := &models.RepairApproval{
		RepairID:     repair.ID,
		Approved:     true,
		ApprovalDate: w.now(),
		Origin:       models.OriginAutoApproved,
		Notes:        "Approved under customer repair preference",
	}
	if err := tx.Repairs().UpsertApproval(ctx, approval); err != nil {
		return err
	}
	repair.Approval = approval
	return nil
}

// pickTechnician returns the active technician with the fewest active repairs,
// lowest id first on ties. It returns nil when nobody is active.
func pickTechnician(ctx context.Context, tx *repository.Store) (*uint, error) {
	technicians, err := tx.Technicians().ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(technicians) == 0 {
		return nil, nil
	}
	counts, err := tx.Repairs().ActiveCountsByTechnician(ctx)
	if err != nil {
		return nil, err
	}

	best := technicians[0]
	for _, t := range technicians[1:] {
		if counts[t.ID] < counts[best.ID] {
			best = t
		}
	}
	id := best.ID
	return &id, nil
}

func loadRepair(ctx context.Context, store *repository.Store, id uint) (*models.Repair, error) {
	repair, err := store.Repairs().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("REPAIR_NOT_FOUND", fmt.Sprintf("repair %d not found", id))
		}
		return nil, err
	}
	return repair, nil
}

func customerLookupError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return notFound("CUSTOMER_NOT_FOUND", "customer not found")
	}
	return err
}

func normalizeDamageType(raw string, required bool) (string, error) {
	damageType := strings.TrimSpace(raw)
	if damageType == "" {
		if required {
			return "", validationError("damage_type", "DAMAGE_TYPE_REQUIRED", "damage type is required")
		}
		return models.DefaultDamageType, nil
	}
	if !models.ValidDamageType(damageType) {
		return "", validationError("damage_type", "INVALID_DAMAGE_TYPE",
			fmt.Sprintf("unknown damage type %q, expected one of %s", damageType, strings.Join(models.DamageTypes, ", ")))
	}
	return damageType, nil
}

// checkVisible applies the read rules: customers see their own repairs, technicians
// see their assigned repairs except PENDING ones, managers and admins see everything.
func checkVisible(actor *Actor, repair *models.Repair) error {
	if actor.IsAdmin() || actor.ownsRepair(repair) {
		return nil
	}
	if !actor.IsTechnician() {
		return notFound("REPAIR_NOT_FOUND", fmt.Sprintf("repair %d not found", repair.ID))
	}
	if actor.IsManager() {
		return nil
	}
	if repair.QueueStatus == models.StatusPending {
		return forbidden("PENDING_NOT_VISIBLE", "repair is awaiting customer approval")
	}
	if !repair.AssignedTo(actor.Technician.ID) {
		return forbidden("NOT_ASSIGNED", fmt.Sprintf("repair %d is assigned to another technician", repair.ID))
	}
	return nil
}

// checkWorkAccess applies the technician write rules on top of visibility
func checkWorkAccess(actor *Actor, repair *models.Repair) error {
	if actor.IsAdmin() {
		return nil
	}
	if !actor.IsTechnician() {
		return forbidden("TECHNICIAN_ONLY", "only technicians can work on repairs")
	}
	if repair.QueueStatus == models.StatusPending && !actor.IsManager() {
		return forbidden("PENDING_NOT_VISIBLE", "repair is awaiting customer approval")
	}
	if !actor.canSupervise(repair.TechnicianID) {
		return forbidden("NOT_ASSIGNED", fmt.Sprintf("repair %d is assigned to another technician", repair.ID))
	}
	return nil
}

// CustomerRequestInput is a repair requested by a customer-side user
type CustomerRequestInput struct {
	UnitNumber    string
	DamageType    string
	CustomerNotes string
}

// TechnicianRepairInput is a repair discovered by a technician in the field
type TechnicianRepairInput struct {
	CustomerID        uint
	UnitNumber        string
	DamageType        string
	DrillingPerformed bool
	ResinViscosity    string
	WindshieldTemp    *float64
	TechnicianNotes   string
	CostOverride      *decimal.Decimal
	OverrideReason    string
}

// RepairService runs the single-repair workflow
type RepairService struct {
	w *workflow
}

// NewRepairService creates a repair workflow service
func NewRepairService(deps Deps) *RepairService {
	return &RepairService{w: newWorkflow(deps)}
}

// CreateCustomerRequest files a REQUESTED repair and assigns it round-robin
func (s *RepairService) CreateCustomerRequest(ctx context.Context, actor *Actor, in CustomerRequestInput) (*models.Repair, error) {
	customerID, ok := actor.CustomerID()
	if !ok {
		return nil, forbidden("CUSTOMER_ONLY", "only customer users can request repairs")
	}
	unitNumber := strings.TrimSpace(in.UnitNumber)
	if unitNumber == "" {
		return nil, validationError("unit_number", "UNIT_NUMBER_REQUIRED", "unit number is required")
	}
	damageType, err := normalizeDamageType(in.DamageType, false)
	if err != nil {
		return nil, err
	}
	notes := strings.TrimSpace(in.CustomerNotes)
	if notes == "" {
		notes = models.DefaultDescription
	}

	var repair *models.Repair
	err = s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := ensureUnitAvailable(ctx, tx, customerID, unitNumber, 0, nil); err != nil {
			return err
		}
		technicianID, err := pickTechnician(ctx, tx)
		if err != nil {
			return err
		}
		repair = &models.Repair{
			CustomerID:    &customerID,
			TechnicianID:  technicianID,
			UnitNumber:    unitNumber,
			RepairDate:    s.w.now(),
			DamageType:    damageType,
			QueueStatus:   models.StatusRequested,
			Cost:          decimal.Zero,
			CustomerNotes: notes,
		}
		return tx.Repairs().Create(ctx, repair)
	})
	if err != nil {
		return nil, transactionFailure("failed to create repair request", err)
	}

	s.w.logger.Info("repair requested",
		zap.Uint("repair_id", repair.ID), zap.Uint("customer_id", customerID), zap.String("unit_number", unitNumber))
	s.w.publish(ctx, []DomainEvent{{Kind: EventRepairRequested, Repair: *repair, ActorUserID: actor.UserID()}})
	return repair, nil
}

// CreateTechnicianRepair logs a repair found in the field. Its starting status comes from
// the customer's repair preference, never from the caller.
func (s *RepairService) CreateTechnicianRepair(ctx context.Context, actor *Actor, in TechnicianRepairInput) (*models.Repair, error) {
	if !actor.IsTechnician() {
		return nil, forbidden("TECHNICIAN_ONLY", "only technicians can log field repairs")
	}
	unitNumber := strings.TrimSpace(in.UnitNumber)
	if unitNumber == "" {
		return nil, validationError("unit_number", "UNIT_NUMBER_REQUIRED", "unit number is required")
	}
	damageType, err := normalizeDamageType(in.DamageType, true)
	if err != nil {
		return nil, err
	}
	if in.CostOverride != nil {
		if err := ValidateRepairOverride(actor.Technician, *in.CostOverride); err != nil {
			return nil, err
		}
	}
	if _, err := s.w.store.Customers().FindByID(ctx, in.CustomerID); err != nil {
		return nil, customerLookupError(err)
	}

	technicianID := actor.Technician.ID
	var repair *models.Repair
	err = s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		if err := ensureUnitAvailable(ctx, tx, in.CustomerID, unitNumber, 0, nil); err != nil {
			return err
		}
		status, err := s.w.initialStatus(ctx, tx, in.CustomerID, technicianID, unitNumber)
		if err != nil {
			return err
		}

		customerID := in.CustomerID
		repair = &models.Repair{
			CustomerID:        &customerID,
			TechnicianID:      &technicianID,
			UnitNumber:        unitNumber,
			RepairDate:        s.w.now(),
			DamageType:        damageType,
			DrillingPerformed: in.DrillingPerformed,
			ResinViscosity:    in.ResinViscosity,
			WindshieldTemp:    in.WindshieldTemp,
			QueueStatus:       status,
			CostOverride:      in.CostOverride,
			OverrideReason:    in.OverrideReason,
			TechnicianNotes:   in.TechnicianNotes,
		}
		repair.Cost = previewCost(repair)
		if err := tx.Repairs().Create(ctx, repair); err != nil {
			return err
		}
		if status == models.StatusApproved {
			return s.w.autoApprove(ctx, tx, repair)
		}
		return nil
	})
	if err != nil {
		return nil, transactionFailure("failed to create repair", err)
	}

	s.w.logger.Info("repair discovered",
		zap.Uint("repair_id", repair.ID), zap.Uint("technician_id", technicianID), zap.String("status", string(repair.QueueStatus)))
	s.w.publish(ctx, []DomainEvent{{Kind: EventRepairDiscovered, Repair: *repair, ActorUserID: actor.UserID()}})
	return repair, nil
}

// AcceptRequest moves a REQUESTED repair to APPROVED and assigns it. Managers may assign
// themselves or a technician they manage; admins may assign anyone.
func (s *RepairService) AcceptRequest(ctx context.Context, actor *Actor, repairID uint, technicianID *uint) (*models.Repair, error) {
	if !actor.IsManager() && !actor.IsAdmin() {
		return nil, forbidden("MANAGER_ONLY", "only managers can accept repair requests")
	}

	var repair *models.Repair
	var event *DomainEvent
	err := s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if repair, err = loadRepair(ctx, tx, repairID); err != nil {
			return err
		}
		if repair.QueueStatus != models.StatusRequested {
			return conflict("NOT_REQUESTED", fmt.Sprintf("repair %d is %s, only requested repairs can be accepted", repair.ID, repair.QueueStatus))
		}
		assignee, err := s.resolveAssignee(ctx, tx, actor, repair, technicianID)
		if err != nil {
			return err
		}
		if repair.CustomerID != nil {
			if err := ensureUnitAvailable(ctx, tx, *repair.CustomerID, repair.UnitNumber, repair.ID, repair.RepairBatchID); err != nil {
				return err
			}
		}

		repair.TechnicianID = &assignee
		if event, err = s.w.applyTransition(ctx, tx, repair, models.StatusRequested, models.StatusApproved); err != nil {
			return err
		}
		approval := &models.RepairApproval{
			RepairID:     repair.ID,
			Approved:     true,
			ApprovedByID: actor.UserID(),
			ApprovalDate: s.w.now(),
			Origin:       models.OriginCustomerInitiated,
			Notes:        customerInitiatedNote,
		}
		if err := tx.Repairs().UpsertApproval(ctx, approval); err != nil {
			return err
		}
		repair.Approval = approval
		return nil
	})
	if err != nil {
		return nil, transactionFailure("failed to accept repair request", err)
	}

	event.Kind = EventRepairAssigned
	event.ActorUserID = actor.UserID()
	s.w.publish(ctx, []DomainEvent{*event})
	return repair, nil
}

func (s *RepairService) resolveAssignee(ctx context.Context, tx *repository.Store, actor *Actor, repair *models.Repair, technicianID *uint) (uint, error) {
	if technicianID == nil {
		switch {
		case actor.IsTechnician():
			return actor.Technician.ID, nil
		case repair.TechnicianID != nil:
			return *repair.TechnicianID, nil
		}
		return 0, validationError("technician_id", "TECHNICIAN_REQUIRED", "choose a technician to assign")
	}

	technician, err := tx.Technicians().FindByID(ctx, *technicianID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return 0, notFound("TECHNICIAN_NOT_FOUND", fmt.Sprintf("technician %d not found", *technicianID))
		}
		return 0, err
	}
	if !technician.IsActive {
		return 0, validationError("technician_id", "TECHNICIAN_INACTIVE", fmt.Sprintf("technician %d is not active", technician.ID))
	}
	if actor.IsAdmin() || technician.ID == actor.Technician.ID || actor.Technician.Manages(technician.ID) {
		return technician.ID, nil
	}
	return 0, forbidden("NOT_MANAGED", "managers can only assign themselves or technicians they manage")
}

// Approve records the customer's approval of a PENDING repair
func (s *RepairService) Approve(ctx context.Context, actor *Actor, repairID uint, notes string) (*models.Repair, error) {
	return s.decide(ctx, actor, repairID, true, notes)
}

// Deny records the customer's denial of a PENDING repair
func (s *RepairService) Deny(ctx context.Context, actor *Actor, repairID uint, reason string) (*models.Repair, error) {
	return s.decide(ctx, actor, repairID, false, reason)
}

func (s *RepairService) decide(ctx context.Context, actor *Actor, repairID uint, approved bool, notes string) (*models.Repair, error) {
	if _, ok := actor.CustomerID(); !ok {
		return nil, forbidden("CUSTOMER_ONLY", "only the customer can approve or deny repairs")
	}
	next := models.StatusDenied
	if approved {
		next = models.StatusApproved
	}

	var repair *models.Repair
	var event *DomainEvent
	err := s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if repair, err = loadRepair(ctx, tx, repairID); err != nil {
			return err
		}
		if !actor.ownsRepair(repair) {
			return notFound("REPAIR_NOT_FOUND", fmt.Sprintf("repair %d not found", repairID))
		}
		if repair.QueueStatus != models.StatusPending {
			return conflict("NOT_PENDING", fmt.Sprintf("repair %d is %s, only pending repairs await a decision", repair.ID, repair.QueueStatus))
		}
		if event, err = s.w.applyTransition(ctx, tx, repair, models.StatusPending, next); err != nil {
			return err
		}
		approval := &models.RepairApproval{
			RepairID:     repair.ID,
			Approved:     approved,
			ApprovedByID: actor.UserID(),
			ApprovalDate: s.w.now(),
			Origin:       models.OriginTechnicianDiscovered,
			Notes:        strings.TrimSpace(notes),
		}
		if err := tx.Repairs().UpsertApproval(ctx, approval); err != nil {
			return err
		}
		repair.Approval = approval
		return nil
	})
	if err != nil {
		return nil, transactionFailure("failed to record approval decision", err)
	}

	event.ActorUserID = actor.UserID()
	event.Note = strings.TrimSpace(notes)
	s.w.publish(ctx, []DomainEvent{*event})
	return repair, nil
}

// UpdateStatus moves a repair through the technician-driven part of the lifecycle
// (IN_PROGRESS and COMPLETED).
func (s *RepairService) UpdateStatus(ctx context.Context, actor *Actor, repairID uint, next models.RepairStatus) (*models.Repair, error) {
	if next != models.StatusInProgress && next != models.StatusCompleted {
		return nil, validationError("queue_status", "STATUS_NOT_SETTABLE",
			"technicians can only set IN_PROGRESS or COMPLETED, approvals come from the customer")
	}

	var repair *models.Repair
	var event *DomainEvent
	err := s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if repair, err = loadRepair(ctx, tx, repairID); err != nil {
			return err
		}
		if err := checkWorkAccess(actor, repair); err != nil {
			return err
		}
		event, err = s.w.applyTransition(ctx, tx, repair, repair.QueueStatus, next)
		return err
	})
	if err != nil {
		return nil, transactionFailure("failed to update repair status", err)
	}

	if event != nil {
		event.ActorUserID = actor.UserID()
		s.w.publish(ctx, []DomainEvent{*event})
	}
	return repair, nil
}

// SetCostOverride pins a repair's price. The caller must be allowed to override pricing
// and stay within their approval limit.
func (s *RepairService) SetCostOverride(ctx context.Context, actor *Actor, repairID uint, amount decimal.Decimal, reason string) (*models.Repair, error) {
	if err := ValidateRepairOverride(actor.Technician, amount); err != nil {
		return nil, err
	}

	var repair *models.Repair
	err := s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if repair, err = loadRepair(ctx, tx, repairID); err != nil {
			return err
		}
		if err := checkVisible(actor, repair); err != nil {
			return err
		}
		if repair.QueueStatus.Terminal() {
			return conflict("REPAIR_CLOSED", fmt.Sprintf("repair %d is %s and can no longer be repriced", repair.ID, repair.QueueStatus))
		}
		repair.CostOverride = &amount
		repair.OverrideReason = strings.TrimSpace(reason)
		repair.Cost = previewCost(repair)
		return tx.Repairs().Save(ctx, repair)
	})
	if err != nil {
		return nil, transactionFailure("failed to override repair cost", err)
	}

	s.w.logger.Info("repair cost overridden",
		zap.Uint("repair_id", repair.ID), zap.String("amount", amount.StringFixed(2)), zap.Uint("technician_id", actor.Technician.ID))
	return repair, nil
}

// GetRepair returns a repair the actor may see
func (s *RepairService) GetRepair(ctx context.Context, actor *Actor, repairID uint) (*models.Repair, error) {
	repair, err := loadRepair(ctx, s.w.store, repairID)
	if err != nil {
		return nil, err
	}
	if err := checkVisible(actor, repair); err != nil {
		return nil, err
	}
	return repair, nil
}

// ListRepairs returns the repairs in the actor's scope, newest first
func (s *RepairService) ListRepairs(ctx context.Context, actor *Actor, statuses []models.RepairStatus, limit int) ([]models.Repair, error) {
	for _, status := range statuses {
		if !status.Valid() {
			return nil, validationError("status", "INVALID_STATUS", fmt.Sprintf("unknown status %q", status))
		}
	}

	filter := repository.RepairFilter{Statuses: statuses, Limit: limit}
	switch {
	case actor.IsAdmin() || actor.IsManager():
	case actor.IsTechnician():
		technicianID := actor.Technician.ID
		filter.TechnicianID = &technicianID
		filter.Statuses = withoutPending(statuses)
		if len(filter.Statuses) == 0 {
			return []models.Repair{}, nil
		}
	default:
		customerID, ok := actor.CustomerID()
		if !ok {
			return nil, forbidden("NO_SCOPE", "user is not linked to a customer or technician profile")
		}
		filter.CustomerID = &customerID
	}
	return s.w.store.Repairs().List(ctx, filter)
}

func withoutPending(statuses []models.RepairStatus) []models.RepairStatus {
	if len(statuses) == 0 {
		statuses = []models.RepairStatus{
			models.StatusRequested, models.StatusApproved, models.StatusInProgress, models.StatusCompleted, models.StatusDenied,
		}
	}
	out := make([]models.RepairStatus, 0, len(statuses))
	for _, status := range statuses {
		if status != models.StatusPending {
			out = append(out, status)
		}
	}
	return out
}

// MarkUnitReplaced resets the completed-repair count of a unit whose windshield was replaced
func (s *RepairService) MarkUnitReplaced(ctx context.Context, actor *Actor, customerID uint, unitNumber string) error {
	if !actor.IsManager() && !actor.IsAdmin() {
		return forbidden("MANAGER_ONLY", "only managers can mark a unit replaced")
	}
	unitNumber = strings.TrimSpace(unitNumber)
	if unitNumber == "" {
		return validationError("unit_number", "UNIT_NUMBER_REQUIRED", "unit number is required")
	}
	if _, err := s.w.store.Customers().FindByID(ctx, customerID); err != nil {
		return customerLookupError(err)
	}
	if err := s.w.store.Repairs().ResetUnitRepairCount(ctx, customerID, unitNumber); err != nil {
		return err
	}
	s.w.logger.Info("unit marked replaced", zap.Uint("customer_id", customerID), zap.String("unit_number", unitNumber))
	return nil
}

// Photo kinds
const (
	PhotoBefore = "before"
	PhotoAfter  = "after"
)

// CheckPhotoAccess reports whether the actor may attach a photo to the repair. Closed
// repairs are editable by managers only.
func (s *RepairService) CheckPhotoAccess(ctx context.Context, actor *Actor, repairID uint) (*models.Repair, error) {
	repair, err := loadRepair(ctx, s.w.store, repairID)
	if err != nil {
		return nil, err
	}
	if err := photoAccess(actor, repair); err != nil {
		return nil, err
	}
	return repair, nil
}

func photoAccess(actor *Actor, repair *models.Repair) error {
	if repair.QueueStatus.Terminal() && !actor.IsManager() && !actor.IsAdmin() {
		if err := checkVisible(actor, repair); err != nil {
			return err
		}
		return forbidden("MANAGER_ONLY", "only managers can edit completed or denied repairs")
	}
	return checkWorkAccess(actor, repair)
}

// AttachPhoto records a stored photo reference on the repair
func (s *RepairService) AttachPhoto(ctx context.Context, actor *Actor, repairID uint, kind, key string) (*models.Repair, error) {
	if kind != PhotoBefore && kind != PhotoAfter {
		return nil, validationError("kind", "INVALID_PHOTO_KIND", "photo kind must be before or after")
	}
	if key == "" {
		return nil, validationError("photo", "PHOTO_REQUIRED", "photo reference is required")
	}

	var repair *models.Repair
	err := s.w.store.Transaction(ctx, func(tx *repository.Store) error {
		var err error
		if repair, err = loadRepair(ctx, tx, repairID); err != nil {
			return err
		}
		if err := photoAccess(actor, repair); err != nil {
			return err
		}
		if kind == PhotoBefore {
			repair.BeforePhotoKey = &key
		} else {
			repair.AfterPhotoKey = &key
		}
		return tx.Repairs().Save(ctx, repair)
	})
	if err != nil {
		return nil, transactionFailure("failed to attach photo", err)
	}
	return repair, nil
}

// CostBreakdown returns the repair's cost after any linked reward
func (s *RepairService) CostBreakdown(ctx context.Context, actor *Actor, repairID uint) (*CostBreakdown, error) {
	repair, err := s.GetRepair(ctx, actor, repairID)
	if err != nil {
		return nil, err
	}
	return s.w.rewards.GetDiscountedCost(ctx, repair)
}
