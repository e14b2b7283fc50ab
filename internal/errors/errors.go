package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a pre-deployment artifact validation failure.
// It carries the full violation list so callers can report precisely.
// Validation failures are terminal for an attempt and never retried.
type ValidationError struct {
	Violations []Violation
}

// Violation is a single artifact validation finding.
type Violation struct {
	Kind    string `json:"kind"`
	Path    string `json:"path,omitempty"`
	Source  string `json:"source,omitempty"` // file that referenced the missing path
	Message string `json:"message"`
}

// Violation kinds.
const (
	ViolationMissingDependency = "missing_dependency"
	ViolationBundleTooLarge    = "bundle_too_large"
)

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "artifact validation failed"
	}
	msgs := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		msgs[i] = v.Message
	}
	return fmt.Sprintf("artifact validation failed: %s", strings.Join(msgs, "; "))
}

// SyncError represents a partial or total repository push failure,
// including post-push verification failure. Retryable by a fresh attempt.
type SyncError struct {
	Message     string
	FailedFiles []string
	Partial     bool
}

func (e *SyncError) Error() string {
	if e.Partial {
		return fmt.Sprintf("repository sync partially failed (%d files): %s", len(e.FailedFiles), e.Message)
	}
	return fmt.Sprintf("repository sync failed: %s", e.Message)
}

// BuildError represents a CI-reported build failure after the single
// automatic remediation attempt has been spent.
type BuildError struct {
	Message       string
	WorkflowRunID int64
	Logs          string
	FixAttempted  bool
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build failed: %s", e.Message)
}

// MonitorTimeoutError means the monitor gave up without a terminal signal.
// The remote run may still be in flight, so this is "unknown outcome",
// not "known failure". Retryable, logged with higher urgency.
type MonitorTimeoutError struct {
	Waited  string
	Message string
}

func (e *MonitorTimeoutError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("deployment monitoring timed out after %s: %s", e.Waited, e.Message)
	}
	return fmt.Sprintf("deployment monitoring timed out after %s", e.Waited)
}

// LockConflictError means another deployment for the same app is in flight.
// Not an error to retry; the caller should simply not start a duplicate.
type LockConflictError struct {
	AppID string
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("a deployment is already in progress for app %s", e.AppID)
}

// InvalidTransitionError is returned when a deployment attempt would
// regress from a terminal state.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid deployment status transition: %s -> %s", e.From, e.To)
}

// NotFoundError represents an error when an entity is not found
type NotFoundError struct {
	Entity string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Entity)
}

// Is enables errors.Is() comparison for NotFoundError
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	if !ok {
		return false
	}
	return e.Entity == t.Entity
}

// ConfigurationError represents configuration-related errors
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

// Entity Not Found Errors
var (
	ErrAppNotFound        = &NotFoundError{Entity: "app"}
	ErrAttemptNotFound    = &NotFoundError{Entity: "deployment attempt"}
	ErrSnapshotNotFound   = &NotFoundError{Entity: "deployment snapshot"}
	ErrWorkflowRunMissing = &NotFoundError{Entity: "workflow run"}
)

// Business Logic Errors
var (
	ErrInvalidEnvironment = errors.New("invalid deployment environment")
	ErrEmptyArtifactSet   = errors.New("artifact set is empty")
	ErrDeployDisabled     = errors.New("deployments are disabled for this app")
)

// Configuration Errors
var (
	ErrGitHubTokenNotSet    = &ConfigurationError{Message: "GITHUB_TOKEN environment variable not set"}
	ErrRepoOwnerNotSet      = &ConfigurationError{Message: "repository owner is not configured"}
	ErrEdgeEndpointNotSet   = &ConfigurationError{Message: "edge preview endpoint is not configured"}
	ErrBaseDomainNotSet     = &ConfigurationError{Message: "platform base domain is not configured"}
	ErrRedisAddrNotSet      = &ConfigurationError{Message: "redis address is not configured"}
	ErrDatabaseNameRequired = &ConfigurationError{Message: "database name is required"}
)

// Helper Functions

// IsValidation checks if an error is a ValidationError
func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// IsSync checks if an error is a SyncError
func IsSync(err error) bool {
	var syncErr *SyncError
	return errors.As(err, &syncErr)
}

// IsBuild checks if an error is a BuildError
func IsBuild(err error) bool {
	var buildErr *BuildError
	return errors.As(err, &buildErr)
}

// IsMonitorTimeout checks if an error is a MonitorTimeoutError
func IsMonitorTimeout(err error) bool {
	var timeoutErr *MonitorTimeoutError
	return errors.As(err, &timeoutErr)
}

// IsLockConflict checks if an error is a LockConflictError
func IsLockConflict(err error) bool {
	var conflictErr *LockConflictError
	return errors.As(err, &conflictErr)
}

// IsNotFound checks if an error is a NotFoundError
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// IsRetryable reports whether a fresh attempt may succeed. Validation
// failures, lock conflicts and spent build failures are never retried;
// sync failures, monitor timeouts and unclassified errors are.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsValidation(err) || IsLockConflict(err) || IsBuild(err) || IsNotFound(err) {
		return false
	}
	if errors.Is(err, ErrInvalidEnvironment) || errors.Is(err, ErrEmptyArtifactSet) || errors.Is(err, ErrDeployDisabled) {
		return false
	}
	return true
}

// Classify names the taxonomy bucket an error belongs to, for metrics
// labels and log fields.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case IsValidation(err):
		return "validation"
	case IsSync(err):
		return "sync"
	case IsBuild(err):
		return "build"
	case IsMonitorTimeout(err):
		return "monitor_timeout"
	case IsLockConflict(err):
		return "lock_conflict"
	case IsNotFound(err):
		return "not_found"
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}

// NewNotFoundError creates a new NotFoundError for a custom entity
func NewNotFoundError(entity string) error {
	return &NotFoundError{Entity: entity}
}

// NewConfigurationError creates a new ConfigurationError
func NewConfigurationError(message string) error {
	return &ConfigurationError{Message: message}
}
