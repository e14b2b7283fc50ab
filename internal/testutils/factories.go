package testutils

import (
	"fmt"
	"time"

	"deploy-orchestrator-backend/internal/database/models"

	"github.com/google/uuid"
)

// AppFactory provides methods to create test App data
type AppFactory struct{}

// NewAppFactory creates a new AppFactory
func NewAppFactory() *AppFactory {
	return &AppFactory{}
}

// Create creates a test App with default values
func (f *AppFactory) Create() *models.App {
	id := uuid.New()
	return &models.App{
		BaseModel: models.BaseModel{
			ID:        id,
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		Name:      "Test App",
		Subdomain: fmt.Sprintf("test-%s", id.String()[:8]),
	}
}

// WithSubdomain sets a custom subdomain for the app
func (f *AppFactory) WithSubdomain(subdomain string) *models.App {
	app := f.Create()
	app.Subdomain = subdomain
	return app
}

// AttemptFactory provides methods to create test DeploymentAttempt data
type AttemptFactory struct{}

// NewAttemptFactory creates a new AttemptFactory
func NewAttemptFactory() *AttemptFactory {
	return &AttemptFactory{}
}

// Create creates a queued test attempt for the given app
func (f *AttemptFactory) Create(appID uuid.UUID) *models.DeploymentAttempt {
	return &models.DeploymentAttempt{
		BaseModel: models.BaseModel{
			ID:        uuid.New(),
			CreatedAt: time.Now(),
			UpdatedAt: time.Now(),
		},
		AppID:       appID,
		Environment: models.EnvironmentPreview,
		Status:      models.DeploymentStatusQueued,
		StartedAt:   time.Now(),
	}
}

// WithStatus sets a custom status
func (f *AttemptFactory) WithStatus(appID uuid.UUID, status models.DeploymentStatus) *models.DeploymentAttempt {
	attempt := f.Create(appID)
	attempt.Status = status
	return attempt
}

// WithEnvironment sets a custom environment
func (f *AttemptFactory) WithEnvironment(appID uuid.UUID, env models.Environment) *models.DeploymentAttempt {
	attempt := f.Create(appID)
	attempt.Environment = env
	return attempt
}
