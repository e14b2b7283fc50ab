package repository

import (
	"errors"
	"fmt"
	"time"

	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AppRepository handles database operations for apps
type AppRepository struct {
	db *gorm.DB
}

// NewAppRepository creates a new app repository
func NewAppRepository(db *gorm.DB) *AppRepository {
	return &AppRepository{db: db}
}

// Create creates a new app
func (r *AppRepository) Create(app *models.App) error {
	return r.db.Create(app).Error
}

// GetByID retrieves an app by ID
func (r *AppRepository) GetByID(id uuid.UUID) (*models.App, error) {
	var app models.App
	err := r.db.First(&app, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAppNotFound
		}
		return nil, err
	}
	return &app, nil
}

// GetBySubdomain retrieves an app by its subdomain
func (r *AppRepository) GetBySubdomain(subdomain string) (*models.App, error) {
	var app models.App
	err := r.db.First(&app, "subdomain = ?", subdomain).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrAppNotFound
		}
		return nil, err
	}
	return &app, nil
}

// GetAll retrieves all apps with pagination
func (r *AppRepository) GetAll(limit, offset int) ([]models.App, int64, error) {
	var apps []models.App
	var total int64

	if err := r.db.Model(&models.App{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Limit(limit).Offset(offset).Order("created_at DESC").Find(&apps).Error
	if err != nil {
		return nil, 0, err
	}

	return apps, total, nil
}

// UpdateDeploymentStatus mirrors the most recent attempt's status onto the rollup
func (r *AppRepository) UpdateDeploymentStatus(id uuid.UUID, status models.DeploymentStatus) error {
	return r.db.Model(&models.App{}).Where("id = ?", id).
		Update("deployment_status", status).Error
}

// RecordEnvironmentURL writes the working URL and deployed-at timestamp for
// one environment. Other environments' URLs are left untouched.
func (r *AppRepository) RecordEnvironmentURL(id uuid.UUID, env models.Environment, url string, deployedAt time.Time) error {
	updates := map[string]interface{}{}
	switch env {
	case models.EnvironmentPreview:
		updates["preview_url"] = url
		updates["preview_deployed_at"] = deployedAt
	case models.EnvironmentStaging:
		updates["staging_url"] = url
		updates["staging_deployed_at"] = deployedAt
	case models.EnvironmentProduction:
		updates["production_url"] = url
		updates["production_deployed_at"] = deployedAt
	default:
		return fmt.Errorf("unknown environment: %s", env)
	}
	return r.db.Model(&models.App{}).Where("id = ?", id).Updates(updates).Error
}
