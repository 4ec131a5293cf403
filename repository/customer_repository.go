package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/kendall-kelly/fleetglass-api/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type gormCustomerRepository struct {
	db *gorm.DB
}

var _ CustomerRepository = (*gormCustomerRepository)(nil)

func (r *gormCustomerRepository) FindByID(ctx context.Context, id uint) (*models.Customer, error) {
	var customer models.Customer
	if err := r.db.WithContext(ctx).First(&customer, id).Error; err != nil {
		return nil, translate(err)
	}
	return &customer, nil
}

func (r *gormCustomerRepository) Pricing(ctx context.Context, customerID uint) (*models.CustomerPricing, error) {
	var pricing []models.CustomerPricing
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Limit(1).Find(&pricing).Error; err != nil {
		return nil, fmt.Errorf("failed to load customer pricing: %w", err)
	}
	if len(pricing) == 0 {
		return nil, nil
	}
	return &pricing[0], nil
}

func (r *gormCustomerRepository) Preference(ctx context.Context, customerID uint) (*models.CustomerRepairPreference, error) {
	var prefs []models.CustomerRepairPreference
	if err := r.db.WithContext(ctx).Where("customer_id = ?", customerID).Limit(1).Find(&prefs).Error; err != nil {
		return nil, fmt.Errorf("failed to load repair preference: %w", err)
	}
	if len(prefs) == 0 {
		return nil, nil
	}
	return &prefs[0], nil
}

func (r *gormCustomerRepository) PrimaryUser(ctx context.Context, customerID uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("customer_id = ? AND role = ?", customerID, models.RoleCustomer).
		Order("created_at ASC, id ASC").
		First(&user).Error
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

type gormTechnicianRepository struct {
	db *gorm.DB
}

var _ TechnicianRepository = (*gormTechnicianRepository)(nil)

func (r *gormTechnicianRepository) FindByID(ctx context.Context, id uint) (*models.Technician, error) {
	var technician models.Technician
	if err := r.db.WithContext(ctx).Preload("ManagedTechnicians").First(&technician, id).Error; err != nil {
		return nil, translate(err)
	}
	return &technician, nil
}

func (r *gormTechnicianRepository) FindByUserID(ctx context.Context, userID uint) (*models.Technician, error) {
	var technician models.Technician
	if err := r.db.WithContext(ctx).Preload("ManagedTechnicians").Where("user_id = ?", userID).First(&technician).Error; err != nil {
		return nil, translate(err)
	}
	return &technician, nil
}

func (r *gormTechnicianRepository) ListActive(ctx context.Context) ([]models.Technician, error) {
	var technicians []models.Technician
	if err := r.db.WithContext(ctx).Where("is_active = ?", true).Order("id ASC").Find(&technicians).Error; err != nil {
		return nil, fmt.Errorf("failed to list technicians: %w", err)
	}
	return technicians, nil
}

func (r *gormTechnicianRepository) RecordCompletion(ctx context.Context, technicianID uint, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&models.Technician{}).
		Where("id = ?", technicianID).
		UpdateColumns(map[string]interface{}{
			"repairs_completed": gorm.Expr("repairs_completed + ?", 1),
			"last_active_at":    at,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to record technician completion: %w", err)
	}
	return nil
}

type gormUserRepository struct {
	db *gorm.DB
}

var _ UserRepository = (*gormUserRepository)(nil)

func (r *gormUserRepository) Create(ctx context.Context, user *models.User) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(user).Error
}

func (r *gormUserRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *gormUserRepository) FindByAuth0ID(ctx context.Context, auth0ID string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *gormUserRepository) Update(ctx context.Context, user *models.User, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return err
	}
	return translate(r.db.WithContext(ctx).First(user, user.ID).Error)
}
