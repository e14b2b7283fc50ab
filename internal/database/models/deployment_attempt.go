package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DeploymentAttempt represents one execution of the deployment state
// machine for one (app, environment) pair. Status only moves forward:
// queued -> building -> deploying -> completed|failed|timed_out.
type DeploymentAttempt struct {
	BaseModel
	AppID       uuid.UUID        `json:"app_id" gorm:"type:uuid;not null;index" validate:"required"`
	Environment Environment      `json:"environment" gorm:"size:20;not null;index" validate:"required"`
	Status      DeploymentStatus `json:"status" gorm:"size:20;not null;index"`

	CommitSHA *string `json:"commit_sha" gorm:"size:64"`

	StartedAt        time.Time  `json:"started_at"`
	BuildCompletedAt *time.Time `json:"build_completed_at"`
	CompletedAt      *time.Time `json:"completed_at"`

	ErrorMessage *string         `json:"error_message" gorm:"size:1000"`
	ErrorDetail  json.RawMessage `json:"error_detail" gorm:"type:jsonb"`

	BundleSizeBytes int64   `json:"bundle_size_bytes"`
	FileCount       int     `json:"file_count"`
	DeploymentURL   *string `json:"deployment_url" gorm:"size:255"`

	// Relationships
	App         App                    `json:"app,omitempty" gorm:"foreignKey:AppID;constraint:OnDelete:CASCADE"`
	Transitions []DeploymentTransition `json:"transitions,omitempty" gorm:"foreignKey:AttemptID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for DeploymentAttempt
func (DeploymentAttempt) TableName() string {
	return "deployment_attempts"
}

// ErrorDetailPayload is the structured error_detail content recorded on
// failed attempts so a human can reconstruct what happened.
type ErrorDetailPayload struct {
	WorkflowRunID int64    `json:"workflow_run_id,omitempty"`
	LogExcerpt    string   `json:"log_excerpt,omitempty"`
	FixAttempted  bool     `json:"fix_attempted"`
	FailedFiles   []string `json:"failed_files,omitempty"`
	Violations    []string `json:"violations,omitempty"`
}

// DeploymentTransition is an append-only audit row recording one status
// change of an attempt. Previous transitions are never erased.
type DeploymentTransition struct {
	ID         uuid.UUID        `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	AttemptID  uuid.UUID        `json:"attempt_id" gorm:"type:uuid;not null;index"`
	FromStatus DeploymentStatus `json:"from_status" gorm:"size:20"`
	ToStatus   DeploymentStatus `json:"to_status" gorm:"size:20;not null"`
	Detail     string           `json:"detail" gorm:"size:1000"`
	CreatedAt  time.Time        `json:"created_at"`
}

// TableName returns the table name for DeploymentTransition
func (DeploymentTransition) TableName() string {
	return "deployment_transitions"
}
