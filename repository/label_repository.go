package repository

import (
	"context"
	"time"

	"shipping-gateway/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LabelRepository defines data-access operations for purchased label records.
type LabelRepository interface {
	Create(ctx context.Context, record *models.LabelRecord) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LabelRecord, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.LabelRecord, error)
	FindByDateRange(ctx context.Context, from, to time.Time) ([]models.LabelRecord, error)
	FindAll(ctx context.Context, page, limit int) ([]models.LabelRecord, int64, error)
}

// GormLabelRepository implements LabelRepository using GORM.
type GormLabelRepository struct {
	db *gorm.DB
}

// NewGormLabelRepository creates a new GormLabelRepository.
func NewGormLabelRepository(db *gorm.DB) LabelRepository {
	return &GormLabelRepository{db: db}
}

func (r *GormLabelRepository) Create(ctx context.Context, record *models.LabelRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *GormLabelRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.LabelRecord, error) {
	var rec models.LabelRecord
	if err := r.db.WithContext(ctx).First(&rec, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *GormLabelRepository) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*models.LabelRecord, error) {
	var rec models.LabelRecord
	if err := r.db.WithContext(ctx).
		Where("tracking_number = ?", trackingNumber).
		First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *GormLabelRepository) FindByDateRange(ctx context.Context, from, to time.Time) ([]models.LabelRecord, error) {
	var records []models.LabelRecord
	if err := r.db.WithContext(ctx).
		Where("created_at >= ? AND created_at < ?", from, to).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

func (r *GormLabelRepository) FindAll(ctx context.Context, page, limit int) ([]models.LabelRecord, int64, error) {
	var records []models.LabelRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&models.LabelRecord{})
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Offset(offset).Limit(limit).
		Order("created_at DESC").
		Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}
