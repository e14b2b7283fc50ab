package repository

import (
	"time"

	"deploy-orchestrator-backend/internal/database/models"

	"github.com/google/uuid"
)

// AppRepositoryInterface defines the interface for app rollup operations
type AppRepositoryInterface interface {
	Create(app *models.App) error
	GetByID(id uuid.UUID) (*models.App, error)
	GetBySubdomain(subdomain string) (*models.App, error)
	GetAll(limit, offset int) ([]models.App, int64, error)
	UpdateDeploymentStatus(id uuid.UUID, status models.DeploymentStatus) error
	RecordEnvironmentURL(id uuid.UUID, env models.Environment, url string, deployedAt time.Time) error
}

// AttemptRepositoryInterface defines the interface for deployment attempt operations
type AttemptRepositoryInterface interface {
	Create(attempt *models.DeploymentAttempt) error
	GetByID(id uuid.UUID) (*models.DeploymentAttempt, error)
	GetByAppID(appID uuid.UUID, limit, offset int) ([]models.DeploymentAttempt, int64, error)
	GetActiveByApp(appID uuid.UUID) (*models.DeploymentAttempt, error)
	Update(attempt *models.DeploymentAttempt) error
	AppendTransition(transition *models.DeploymentTransition) error
	GetTransitions(attemptID uuid.UUID) ([]models.DeploymentTransition, error)
}

// SnapshotRepositoryInterface defines the interface for deployment snapshot operations
type SnapshotRepositoryInterface interface {
	Create(snapshot *models.DeploymentSnapshot) error
	GetByAttemptID(attemptID uuid.UUID) (*models.DeploymentSnapshot, error)
	GetByAppID(appID uuid.UUID, limit, offset int) ([]models.DeploymentSnapshot, int64, error)
}
