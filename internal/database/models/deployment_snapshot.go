package models

import (
	"encoding/json"

	"github.com/google/uuid"
)

// DeploymentSnapshot is an immutable record of the file set actually
// deployed by a completed attempt, kept for later rollback and diff.
type DeploymentSnapshot struct {
	BaseModel
	AppID       uuid.UUID       `json:"app_id" gorm:"type:uuid;not null;index" validate:"required"`
	AttemptID   uuid.UUID       `json:"attempt_id" gorm:"type:uuid;not null;uniqueIndex" validate:"required"`
	Environment Environment     `json:"environment" gorm:"size:20;not null"`
	CommitSHA   string          `json:"commit_sha" gorm:"size:64"`
	Tag         string          `json:"tag" gorm:"size:100"`
	Files       json.RawMessage `json:"files" gorm:"type:jsonb"` // [{path, content_hash, size_bytes}]

	// Relationships
	App App `json:"app,omitempty" gorm:"foreignKey:AppID;constraint:OnDelete:CASCADE"`
}

// TableName returns the table name for DeploymentSnapshot
func (DeploymentSnapshot) TableName() string {
	return "deployment_snapshots"
}

// SnapshotFile is one entry of the Files payload.
type SnapshotFile struct {
	Path        string `json:"path"`
	ContentHash string `json:"content_hash"`
	SizeBytes   int64  `json:"size_bytes"`
}
