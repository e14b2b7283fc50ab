package models

import "time"

// App is the per-app deployment rollup. URLs and per-environment
// timestamps are written only by the orchestrator, and only after an
// attempt reaches a terminal success state for that environment; a failed
// attempt must never erase a previously working URL.
type App struct {
	BaseModel
	Name      string `json:"name" gorm:"size:100;not null" validate:"required,min=1,max=100"`
	Subdomain string `json:"subdomain" gorm:"size:63;not null;uniqueIndex" validate:"required,hostname_rfc1123"`

	DeploymentStatus DeploymentStatus `json:"deployment_status" gorm:"size:20"`

	PreviewURL    string `json:"preview_url" gorm:"size:255"`
	StagingURL    string `json:"staging_url" gorm:"size:255"`
	ProductionURL string `json:"production_url" gorm:"size:255"`

	PreviewDeployedAt    *time.Time `json:"preview_deployed_at"`
	StagingDeployedAt    *time.Time `json:"staging_deployed_at"`
	ProductionDeployedAt *time.Time `json:"production_deployed_at"`
}

// TableName returns the table name for App
func (App) TableName() string {
	return "apps"
}

// URLFor returns the recorded URL for an environment, if any.
func (a *App) URLFor(env Environment) string {
	switch env {
	case EnvironmentPreview:
		return a.PreviewURL
	case EnvironmentStaging:
		return a.StagingURL
	case EnvironmentProduction:
		return a.ProductionURL
	}
	return ""
}
