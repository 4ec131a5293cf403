package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/repository"
	"github.com/kendall-kelly/fleetglass-api/utils"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EventKind names a committed workflow change
type EventKind string

const (
	EventRepairRequested  EventKind = "REPAIR_REQUESTED"
	EventRepairDiscovered EventKind = "REPAIR_DISCOVERED"
	EventRepairAssigned   EventKind = "REPAIR_ASSIGNED"
	EventRepairApproved   EventKind = "REPAIR_APPROVED"
	EventRepairDenied     EventKind = "REPAIR_DENIED"
	EventRepairStarted    EventKind = "REPAIR_STARTED"
	EventRepairCompleted  EventKind = "REPAIR_COMPLETED"
	EventBatchCreated     EventKind = "BATCH_CREATED"
	EventBatchApproved    EventKind = "BATCH_APPROVED"
	EventBatchDenied      EventKind = "BATCH_DENIED"
	EventBatchStarted     EventKind = "BATCH_STARTED"
)

// DomainEvent describes one committed change. Batch events carry the first
// affected break as Repair plus the break count and total.
type DomainEvent struct {
	Kind        EventKind
	Repair      models.Repair
	BatchID     *uuid.UUID
	BreakCount  int
	Total       decimal.Decimal
	ActorUserID *uint
	Note        string
}

// Deps are the collaborators shared by the workflow services
type Deps struct {
	Store    *repository.Store
	Notifier NotificationDispatcher
	Logger   *zap.Logger
	Clock    func() time.Time
}

// workflow holds what every write path needs, including post-commit processing
type workflow struct {
	store    *repository.Store
	notifier NotificationDispatcher
	logger   *zap.Logger
	now      func() time.Time
	rewards  *RewardService
}

func newWorkflow(deps Deps) *workflow {
	w := &workflow{
		store:    deps.Store,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		now:      deps.Clock,
	}
	if w.logger == nil {
		w.logger = zap.NewNop()
	}
	if w.now == nil {
		w.now = time.Now
	}
	w.rewards = &RewardService{store: w.store, logger: w.logger, now: w.now}
	return w
}

// publish runs the side effects of committed events. Nothing here can fail the
// operation that produced the events.
func (w *workflow) publish(ctx context.Context, events []DomainEvent) {
	for _, event := range events {
		if event.Kind == EventRepairCompleted {
			w.afterCompletion(ctx, event.Repair)
		}
		dispatchAll(ctx, w.notifier, w.logger, w.notificationsFor(ctx, event))
	}
}

func (w *workflow) afterCompletion(ctx context.Context, repair models.Repair) {
	log := w.logger.With(zap.Uint("repair_id", repair.ID))

	if repair.CustomerID != nil {
		if _, err := w.rewards.ApplyAvailableRewards(ctx, &repair); err != nil {
			log.Error("failed to apply available rewards", zap.Error(err))
		}
		if _, err := w.rewards.AwardCompletionPoints(ctx, &repair); err != nil {
			log.Error("failed to award completion points", zap.Error(err))
		}
	}

	if repair.TechnicianID == nil {
		return
	}
	if _, err := w.store.Notifications().MarkRepairNotificationsRead(ctx, repair.ID, *repair.TechnicianID, w.now()); err != nil {
		log.Warn("failed to mark technician notifications read", zap.Error(err))
	}
	if err := w.store.Technicians().RecordCompletion(ctx, *repair.TechnicianID, w.now()); err != nil {
		log.Warn("failed to record technician completion", zap.Error(err))
	}
}

func (w *workflow) notificationsFor(ctx context.Context, event DomainEvent) []NotificationEvent {
	r := event.Repair
	repairID := r.ID

	toTechnician := func(kind, priority, message string) []NotificationEvent {
		if r.TechnicianID == nil {
			return nil
		}
		technicianID := *r.TechnicianID
		n := NotificationEvent{Kind: kind, RecipientTechnicianID: &technicianID, Message: message, Priority: priority, OccurredAt: w.now()}
		if event.BatchID != nil {
			n.RepairBatchID = event.BatchID
		} else {
			n.RepairID = &repairID
		}
		return []NotificationEvent{n}
	}
	toCustomer := func(kind, priority, message string) []NotificationEvent {
		if r.CustomerID == nil {
			return nil
		}
		user, err := w.store.Customers().PrimaryUser(ctx, *r.CustomerID)
		if err != nil {
			w.logger.Warn("no customer user to notify", zap.Uint("customer_id", *r.CustomerID), zap.String("kind", kind), zap.Error(err))
			return nil
		}
		userID := user.ID
		n := NotificationEvent{Kind: kind, RecipientUserID: &userID, Message: message, Priority: priority, OccurredAt: w.now()}
		if event.BatchID != nil {
			n.RepairBatchID = event.BatchID
		} else {
			n.RepairID = &repairID
		}
		return []NotificationEvent{n}
	}

	switch event.Kind {
	case EventRepairRequested:
		return toTechnician(NotifyRepairRequested, models.PriorityNormal,
			fmt.Sprintf("New repair request for unit %s", r.UnitNumber))
	case EventRepairAssigned:
		return toTechnician(NotifyRepairAssigned, models.PriorityNormal,
			fmt.Sprintf("Repair #%d on unit %s has been assigned to you", r.ID, r.UnitNumber))
	case EventRepairDiscovered:
		if r.QueueStatus == models.StatusPending {
			return toCustomer(NotifyApprovalNeeded, models.PriorityHigh,
				fmt.Sprintf("A %s repair on unit %s is waiting for your approval", r.DamageType, r.UnitNumber))
		}
		return toCustomer(NotifyRepairAutoApproved, models.PriorityLow,
			fmt.Sprintf("A %s repair on unit %s was approved under your repair preferences", r.DamageType, r.UnitNumber))
	case EventRepairApproved:
		return toTechnician(NotifyRepairApproved, models.PriorityNormal,
			fmt.Sprintf("Repair #%d on unit %s was approved by the customer", r.ID, r.UnitNumber))
	case EventRepairDenied:
		message := fmt.Sprintf("Repair #%d on unit %s was denied by the customer", r.ID, r.UnitNumber)
		if event.Note != "" {
			message += ": " + event.Note
		}
		return toTechnician(NotifyRepairDenied, models.PriorityNormal, message)
	case EventRepairStarted:
		return toCustomer(NotifyRepairStarted, models.PriorityLow,
			fmt.Sprintf("Work has started on unit %s", r.UnitNumber))
	case EventRepairCompleted:
		return toCustomer(NotifyRepairCompleted, models.PriorityNormal,
			fmt.Sprintf("Repair on unit %s is complete. Cost: %s", r.UnitNumber, utils.FormatMoney(r.Cost)))
	case EventBatchCreated:
		if r.QueueStatus == models.StatusPending {
			return toCustomer(NotifyBatchApprovalNeeded, models.PriorityHigh,
				fmt.Sprintf("%d breaks on unit %s are waiting for your approval (total %s)", event.BreakCount, r.UnitNumber, utils.FormatMoney(event.Total)))
		}
		return toCustomer(NotifyRepairAutoApproved, models.PriorityLow,
			fmt.Sprintf("%d breaks on unit %s were approved under your repair preferences (total %s)", event.BreakCount, r.UnitNumber, utils.FormatMoney(event.Total)))
	case EventBatchApproved:
		return toTechnician(NotifyBatchApproved, models.PriorityNormal,
			fmt.Sprintf("Batch for unit %s approved: %d breaks, total %s", r.UnitNumber, event.BreakCount, utils.FormatMoney(event.Total)))
	case EventBatchDenied:
		message := fmt.Sprintf("Batch for unit %s denied: %d breaks, total %s", r.UnitNumber, event.BreakCount, utils.FormatMoney(event.Total))
		if event.Note != "" {
			message += ": " + event.Note
		}
		return toTechnician(NotifyBatchDenied, models.PriorityNormal, message)
	case EventBatchStarted:
		return toCustomer(NotifyBatchStarted, models.PriorityLow,
			fmt.Sprintf("Work has started on %d breaks for unit %s", event.BreakCount, r.UnitNumber))
	}
	return nil
}
