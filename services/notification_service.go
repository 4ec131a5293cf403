package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/fleetglass-api/models"
	"github.com/kendall-kelly/fleetglass-api/repository"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Notification kinds
const (
	NotifyRepairRequested     = "repair_requested"
	NotifyRepairAssigned      = "repair_assigned"
	NotifyApprovalNeeded      = "approval_needed"
	NotifyRepairAutoApproved  = "repair_auto_approved"
	NotifyRepairApproved      = "repair_approved"
	NotifyRepairDenied        = "repair_denied"
	NotifyRepairStarted       = "repair_started"
	NotifyRepairCompleted     = "repair_completed"
	NotifyBatchApprovalNeeded = "batch_approval_needed"
	NotifyBatchApproved       = "batch_approved"
	NotifyBatchDenied         = "batch_denied"
	NotifyBatchStarted        = "batch_started"
)

// NotificationEvent is the payload handed to notification dispatch. Exactly one
// recipient reference is set.
type NotificationEvent struct {
	Kind                  string     `json:"kind"`
	RecipientTechnicianID *uint      `json:"recipient_technician_id,omitempty"`
	RecipientUserID       *uint      `json:"recipient_user_id,omitempty"`
	Message               string     `json:"message"`
	RepairID              *uint      `json:"repair_id,omitempty"`
	RepairBatchID         *uuid.UUID `json:"repair_batch_id,omitempty"`
	Priority              string     `json:"priority"`
	OccurredAt            time.Time  `json:"occurred_at"`
}

// NotificationDispatcher delivers notification events. Callers treat delivery as best effort.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, event NotificationEvent) error
}

var (
	dispatcherMu       sync.RWMutex
	dispatcherInstance NotificationDispatcher
)

// GetNotificationDispatcher returns the process-wide dispatcher
func GetNotificationDispatcher() NotificationDispatcher {
	dispatcherMu.RLock()
	defer dispatcherMu.RUnlock()
	return dispatcherInstance
}

// SetNotificationDispatcher sets the process-wide dispatcher (primarily for testing)
func SetNotificationDispatcher(dispatcher NotificationDispatcher) {
	dispatcherMu.Lock()
	dispatcherInstance = dispatcher
	dispatcherMu.Unlock()
}

// StoreDispatcher persists notification events as inbox rows
type StoreDispatcher struct {
	store *repository.Store
}

// NewStoreDispatcher creates a dispatcher writing to the notifications table
func NewStoreDispatcher(store *repository.Store) *StoreDispatcher {
	return &StoreDispatcher{store: store}
}

func (d *StoreDispatcher) Dispatch(ctx context.Context, event NotificationEvent) error {
	if event.RecipientTechnicianID == nil && event.RecipientUserID == nil {
		return fmt.Errorf("notification %q has no recipient", event.Kind)
	}
	notification := &models.Notification{
		RecipientTechnicianID: event.RecipientTechnicianID,
		RecipientUserID:       event.RecipientUserID,
		Kind:                  event.Kind,
		Message:               event.Message,
		Priority:              event.Priority,
		RepairID:              event.RepairID,
		RepairBatchID:         event.RepairBatchID,
	}
	if notification.Priority == "" {
		notification.Priority = models.PriorityNormal
	}
	return d.store.Notifications().Create(ctx, notification)
}

// RedisNotificationQueue pushes JSON encoded events onto a Redis list for the
// email and SMS workers.
type RedisNotificationQueue struct {
	client *redis.Client
	key    string
}

// NewRedisNotificationQueue connects a queue to the Redis server at addr
func NewRedisNotificationQueue(addr, password string, db int, key string) *RedisNotificationQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisNotificationQueue{client: client, key: key}
}

func (q *RedisNotificationQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisNotificationQueue) Close() error {
	return q.client.Close()
}

func (q *RedisNotificationQueue) Dispatch(ctx context.Context, event NotificationEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, payload).Err()
}

// FanoutDispatcher hands every event to each dispatcher in turn. A failing
// dispatcher does not stop the others.
type FanoutDispatcher []NotificationDispatcher

func (f FanoutDispatcher) Dispatch(ctx context.Context, event NotificationEvent) error {
	var errs []error
	for _, d := range f {
		if d == nil {
			continue
		}
		if err := d.Dispatch(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotificationService reads and acknowledges a caller's notifications
type NotificationService struct {
	store *repository.Store
	now   func() time.Time
}

// NewNotificationService creates a notification inbox service
func NewNotificationService(store *repository.Store) *NotificationService {
	return &NotificationService{store: store, now: time.Now}
}

// List returns the actor's notifications, newest first. Technicians see the
// notifications addressed to their technician profile as well as their user.
func (s *NotificationService) List(ctx context.Context, actor *Actor, unreadOnly bool, limit int) ([]models.Notification, error) {
	notifications, err := s.store.Notifications().ListForUser(ctx, actor.User.ID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	if actor.Technician == nil {
		return notifications, nil
	}

	forTechnician, err := s.store.Notifications().ListForTechnician(ctx, actor.Technician.ID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	return mergeNotifications(notifications, forTechnician, limit), nil
}

// MarkRead acknowledges one of the actor's notifications
func (s *NotificationService) MarkRead(ctx context.Context, actor *Actor, id uint) (*models.Notification, error) {
	notification, err := s.store.Notifications().FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFound("NOTIFICATION_NOT_FOUND", "notification not found")
		}
		return nil, err
	}
	if !addressedTo(notification, actor) {
		return nil, notFound("NOTIFICATION_NOT_FOUND", "notification not found")
	}
	if notification.IsRead {
		return notification, nil
	}

	now := s.now()
	if err := s.store.Notifications().MarkRead(ctx, id, now); err != nil {
		return nil, err
	}
	notification.IsRead = true
	notification.ReadAt = &now
	return notification, nil
}

func addressedTo(n *models.Notification, actor *Actor) bool {
	if n.RecipientUserID != nil && *n.RecipientUserID == actor.User.ID {
		return true
	}
	return n.RecipientTechnicianID != nil && actor.Technician != nil && *n.RecipientTechnicianID == actor.Technician.ID
}

// mergeNotifications interleaves two newest-first lists into one
func mergeNotifications(a, b []models.Notification, limit int) []models.Notification {
	merged := make([]models.Notification, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		if j >= len(b) || (i < len(a) && !a[i].CreatedAt.Before(b[j].CreatedAt)) {
			merged = append(merged, a[i])
			i++
		} else {
			merged = append(merged, b[j])
			j++
		}
	}
	if limit > 0 && len(merged) > limit {
		merged = merged[:limit]
	}
	return merged
}

// dispatchAll sends events and logs failures. Delivery errors never reach the caller.
func dispatchAll(ctx context.Context, dispatcher NotificationDispatcher, logger *zap.Logger, events []NotificationEvent) {
	if dispatcher == nil {
		return
	}
	for _, event := range events {
		if err := dispatcher.Dispatch(ctx, event); err != nil {
			fields := []zap.Field{zap.String("kind", event.Kind), zap.Error(err)}
			if event.RepairID != nil {
				fields = append(fields, zap.Uint("repair_id", *event.RepairID))
			}
			if event.RepairBatchID != nil {
				fields = append(fields, zap.String("repair_batch_id", event.RepairBatchID.String()))
			}
			logger.Warn("notification dispatch failed", fields...)
		}
	}
}
