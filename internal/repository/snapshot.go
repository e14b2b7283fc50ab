package repository

import (
	"errors"

	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SnapshotRepository handles database operations for deployment snapshots
type SnapshotRepository struct {
	db *gorm.DB
}

// NewSnapshotRepository creates a new deployment snapshot repository
func NewSnapshotRepository(db *gorm.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// Create creates a new deployment snapshot
func (r *SnapshotRepository) Create(snapshot *models.DeploymentSnapshot) error {
	return r.db.Create(snapshot).Error
}

// GetByAttemptID retrieves the snapshot recorded for an attempt
func (r *SnapshotRepository) GetByAttemptID(attemptID uuid.UUID) (*models.DeploymentSnapshot, error) {
	var snapshot models.DeploymentSnapshot
	err := r.db.First(&snapshot, "attempt_id = ?", attemptID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrSnapshotNotFound
		}
		return nil, err
	}
	return &snapshot, nil
}

// GetByAppID retrieves snapshots for an app with pagination, newest first
func (r *SnapshotRepository) GetByAppID(appID uuid.UUID, limit, offset int) ([]models.DeploymentSnapshot, int64, error) {
	var snapshots []models.DeploymentSnapshot
	var total int64

	if err := r.db.Model(&models.DeploymentSnapshot{}).Where("app_id = ?", appID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Where("app_id = ?", appID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&snapshots).Error
	if err != nil {
		return nil, 0, err
	}

	return snapshots, total, nil
}
