package repository

import (
	"errors"

	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AttemptRepository handles database operations for deployment attempts
type AttemptRepository struct {
	db *gorm.DB
}

// NewAttemptRepository creates a new deployment attempt repository
func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Create creates a new deployment attempt
func (r *AttemptRepository) Create(attempt *models.DeploymentAttempt) error {
	return r.db.Create(attempt).Error
}

// GetByID retrieves a deployment attempt by ID
func (r *AttemptRepository) GetByID(id uuid.UUID) (*models.DeploymentAttempt, error) {
	var attempt models.DeploymentAttempt
	err := r.db.First(&attempt, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAttemptNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// GetByAppID retrieves attempts for an app with pagination, newest first
func (r *AttemptRepository) GetByAppID(appID uuid.UUID, limit, offset int) ([]models.DeploymentAttempt, int64, error) {
	var attempts []models.DeploymentAttempt
	var total int64

	if err := r.db.Model(&models.DeploymentAttempt{}).Where("app_id = ?", appID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Where("app_id = ?", appID).
		Order("started_at DESC").
		Limit(limit).Offset(offset).
		Find(&attempts).Error
	if err != nil {
		return nil, 0, err
	}

	return attempts, total, nil
}

// GetActiveByApp returns the attempt currently in a non-terminal state for
// an app, if any. The lock keeps this to at most one.
func (r *AttemptRepository) GetActiveByApp(appID uuid.UUID) (*models.DeploymentAttempt, error) {
	var attempt models.DeploymentAttempt
	err := r.db.Where("app_id = ? AND status IN ?", appID,
		[]models.DeploymentStatus{
			models.DeploymentStatusQueued,
			models.DeploymentStatusBuilding,
			models.DeploymentStatusDeploying,
		}).
		Order("started_at DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAttemptNotFound
		}
		return nil, err
	}
	return &attempt, nil
}

// Update updates a deployment attempt
func (r *AttemptRepository) Update(attempt *models.DeploymentAttempt) error {
	return r.db.Save(attempt).Error
}

// AppendTransition records an audit row for a status change. Rows are
// never updated or deleted.
func (r *AttemptRepository) AppendTransition(transition *models.DeploymentTransition) error {
	return r.db.Create(transition).Error
}

// GetTransitions returns the audit trail for an attempt, oldest first
func (r *AttemptRepository) GetTransitions(attemptID uuid.UUID) ([]models.DeploymentTransition, error) {
	var transitions []models.DeploymentTransition
	err := r.db.Where("attempt_id = ?", attemptID).
		Order("created_at ASC").
		Find(&transitions).Error
	if err != nil {
		return nil, err
	}
	return transitions, nil
}
