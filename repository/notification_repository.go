package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kendall-kelly/fleetglass-api/models"
	"gorm.io/gorm"
)

const defaultNotificationLimit = 50

type gormNotificationRepository struct {
	db *gorm.DB
}

var _ NotificationRepository = (*gormNotificationRepository)(nil)

func (r *gormNotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	if err := r.db.WithContext(ctx).Create(notification).Error; err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}

func (r *gormNotificationRepository) ListForTechnician(ctx context.Context, technicianID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("recipient_technician_id = ?", technicianID), unreadOnly, limit)
}

func (r *gormNotificationRepository) ListForUser(ctx context.Context, userID uint, unreadOnly bool, limit int) ([]models.Notification, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("recipient_user_id = ?", userID), unreadOnly, limit)
}

func (r *gormNotificationRepository) list(_ context.Context, query *gorm.DB, unreadOnly bool, limit int) ([]models.Notification, error) {
	if unreadOnly {
		query = query.Where("is_read = ?", false)
	}
	if limit <= 0 {
		limit = defaultNotificationLimit
	}

	var notifications []models.Notification
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&notifications).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return notifications, nil
}

func (r *gormNotificationRepository) FindByID(ctx context.Context, id uint) (*models.Notification, error) {
	var notification models.Notification
	if err := r.db.WithContext(ctx).First(&notification, id).Error; err != nil {
		return nil, translate(err)
	}
	return &notification, nil
}

func (r *gormNotificationRepository) MarkRead(ctx context.Context, id uint, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{"is_read": true, "read_at": at}).Error
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	return nil
}

func (r *gormNotificationRepository) MarkRepairNotificationsRead(ctx context.Context, repairID, technicianID uint, at time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.Notification{}).
		Where("repair_id = ? AND recipient_technician_id = ? AND is_read = ?", repairID, technicianID, false).
		UpdateColumns(map[string]interface{}{"is_read": true, "read_at": at})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to mark repair notifications read: %w", result.Error)
	}
	return result.RowsAffected, nil
}
