package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kendall-kelly/fleetglass-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormRepairRepository struct {
	db *gorm.DB
}

// Ensure gormRepairRepository implements RepairRepository
var _ RepairRepository = (*gormRepairRepository)(nil)

func (r *gormRepairRepository) Create(ctx context.Context, repair *models.Repair) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Create(repair).Error; err != nil {
		return fmt.Errorf("failed to create repair: %w", err)
	}
	return nil
}

func (r *gormRepairRepository) Save(ctx context.Context, repair *models.Repair) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(repair).Error; err != nil {
		return fmt.Errorf("failed to save repair %d: %w", repair.ID, err)
	}
	return nil
}

func (r *gormRepairRepository) FindByID(ctx context.Context, id uint) (*models.Repair, error) {
	var repair models.Repair
	if err := r.db.WithContext(ctx).Preload("Approval").First(&repair, id).Error; err != nil {
		return nil, translate(err)
	}
	return &repair, nil
}

func (r *gormRepairRepository) FindByBatchID(ctx context.Context, batchID uuid.UUID) ([]models.Repair, error) {
	var repairs []models.Repair
	err := r.db.WithContext(ctx).
		Preload("Approval").
		Where("repair_batch_id = ?", batchID).
		Order("break_number ASC, id ASC").
		Find(&repairs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load batch %s: %w", batchID, err)
	}
	return repairs, nil
}

func (r *gormRepairRepository) List(ctx context.Context, filter RepairFilter) ([]models.Repair, error) {
	query := r.db.WithContext(ctx).Model(&models.Repair{}).Preload("Approval")
	if filter.CustomerID != nil {
		query = query.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.TechnicianID != nil {
		query = query.Where("technician_id = ?", *filter.TechnicianID)
	}
	if len(filter.Statuses) > 0 {
		query = query.Where("queue_status IN ?", filter.Statuses)
	}
	if filter.BatchID != nil {
		query = query.Where("repair_batch_id = ?", *filter.BatchID)
	}
	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}

	var repairs []models.Repair
	if err := query.Order("created_at DESC, id DESC").Find(&repairs).Error; err != nil {
		return nil, fmt.Errorf("failed to list repairs: %w", err)
	}
	return repairs, nil
}

func (r *gormRepairRepository) ActiveForUnit(ctx context.Context, customerID uint, unitNumber string, excludeID uint) ([]models.Repair, error) {
	query := r.db.WithContext(ctx).
		Where("customer_id = ? AND unit_number = ? AND queue_status IN ?", customerID, unitNumber, models.UnitBlockingStatuses)
	if excludeID != 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var repairs []models.Repair
	if err := query.Order("id ASC").Find(&repairs).Error; err != nil {
		return nil, fmt.Errorf("failed to load active repairs for unit %s: %w", unitNumber, err)
	}
	return repairs, nil
}

func (r *gormRepairRepository) ActiveCountsByTechnician(ctx context.Context) (map[uint]int64, error) {
	var rows []struct {
		TechnicianID uint
		Total        int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Repair{}).
		Select("technician_id, COUNT(*) AS total").
		Where("technician_id IS NOT NULL AND queue_status IN ?", models.ActiveStatuses).
		Group("technician_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count active repairs: %w", err)
	}

	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.TechnicianID] = row.Total
	}
	return counts, nil
}

func (r *gormRepairRepository) CountCompletedForCustomer(ctx context.Context, customerID uint) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Repair{}).
		Where("customer_id = ? AND queue_status = ?", customerID, models.StatusCompleted).
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count completed repairs: %w", err)
	}
	return total, nil
}

func (r *gormRepairRepository) CountUnitsDiscoveredSince(ctx context.Context, customerID, technicianID uint, since time.Time, excludeUnit string) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Repair{}).
		Where("customer_id = ? AND technician_id = ? AND created_at >= ? AND queue_status <> ? AND unit_number <> ?",
			customerID, technicianID, since, models.StatusRequested, excludeUnit).
		Distinct("unit_number").
		Count(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count discovered units: %w", err)
	}
	return total, nil
}

func (r *gormRepairRepository) UpsertApproval(ctx context.Context, approval *models.RepairApproval) error {
	err := r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "repair_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"approved", "approved_by_id", "approval_date", "origin", "notes", "updated_at"}),
		}).
		Create(approval).Error
	if err != nil {
		return fmt.Errorf("failed to record approval for repair %d: %w", approval.RepairID, err)
	}
	return nil
}

func (r *gormRepairRepository) UnitRepairCount(ctx context.Context, customerID uint, unitNumber string) (int, error) {
	var counter models.UnitRepairCount
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND unit_number = ?", customerID, unitNumber).
		Limit(1).
		Find(&counter).Error
	if err != nil {
		return 0, fmt.Errorf("failed to read unit repair count: %w", err)
	}
	return counter.RepairCount, nil
}

func (r *gormRepairRepository) IncrementUnitRepairCount(ctx context.Context, customerID uint, unitNumber string) (int, error) {
	db := r.db.WithContext(ctx)

	counter := models.UnitRepairCount{CustomerID: customerID, UnitNumber: unitNumber}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&counter).Error; err != nil {
		return 0, fmt.Errorf("failed to create unit repair count: %w", err)
	}

	// single-statement increment so concurrent completions cannot lose updates
	err := db.Model(&models.UnitRepairCount{}).
		Where("customer_id = ? AND unit_number = ?", customerID, unitNumber).
		UpdateColumn("repair_count", gorm.Expr("repair_count + ?", 1)).Error
	if err != nil {
		return 0, fmt.Errorf("failed to increment unit repair count: %w", err)
	}

	return r.UnitRepairCount(ctx, customerID, unitNumber)
}

func (r *gormRepairRepository) ResetUnitRepairCount(ctx context.Context, customerID uint, unitNumber string) error {
	err := r.db.WithContext(ctx).
		Model(&models.UnitRepairCount{}).
		Where("customer_id = ? AND unit_number = ?", customerID, unitNumber).
		UpdateColumn("repair_count", 0).Error
	if err != nil {
		return fmt.Errorf("failed to reset unit repair count: %w", err)
	}
	return nil
}
