package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"deploy-orchestrator-backend/internal/broadcast"
	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/logger"
	"deploy-orchestrator-backend/internal/repository"
)

// StateRecorder owns all status writes for deployment attempts. Every
// change goes through here so the forward-only lifecycle is enforced in one
// place, each change leaves an audit transition row, and the app rollup
// stays in step.
type StateRecorder struct {
	attempts    repository.AttemptRepositoryInterface
	apps        repository.AppRepositoryInterface
	broadcaster broadcast.Broadcaster
}

func NewStateRecorder(attempts repository.AttemptRepositoryInterface, apps repository.AppRepositoryInterface, broadcaster broadcast.Broadcaster) *StateRecorder {
	return &StateRecorder{attempts: attempts, apps: apps, broadcaster: broadcaster}
}

// Start creates a fresh attempt in the queued state and stamps the app
// rollup. Each orchestration, including retries, begins its own attempt;
// rows are never reused.
func (r *StateRecorder) Start(ctx context.Context, appID uuid.UUID, env models.Environment) (*models.DeploymentAttempt, error) {
	attempt := &models.DeploymentAttempt{
		AppID:       appID,
		Environment: env,
		Status:      models.DeploymentStatusQueued,
		StartedAt:   time.Now(),
	}
	if err := r.attempts.Create(attempt); err != nil {
		return nil, err
	}
	if err := r.apps.UpdateDeploymentStatus(appID, models.DeploymentStatusQueued); err != nil {
		logger.WithContext(ctx).Warnf("updating app rollup status: %v", err)
	}
	r.broadcaster.Publish(ctx, progressEvent(attempt))
	return attempt, nil
}

// MarkBuilding moves the attempt into the building state.
func (r *StateRecorder) MarkBuilding(ctx context.Context, attempt *models.DeploymentAttempt, detail string) error {
	return r.transition(ctx, attempt, models.DeploymentStatusBuilding, detail, func(a *models.DeploymentAttempt) {})
}

// MarkDeploying moves the attempt into the deploying state and stamps
// build completion.
func (r *StateRecorder) MarkDeploying(ctx context.Context, attempt *models.DeploymentAttempt, detail string) error {
	return r.transition(ctx, attempt, models.DeploymentStatusDeploying, detail, func(a *models.DeploymentAttempt) {
		now := time.Now()
		a.BuildCompletedAt = &now
	})
}

// Complete finishes the attempt successfully and records the live URL on
// both the attempt and the app's per-environment column.
func (r *StateRecorder) Complete(ctx context.Context, attempt *models.DeploymentAttempt, url string) error {
	err := r.transition(ctx, attempt, models.DeploymentStatusCompleted, "deployment completed", func(a *models.DeploymentAttempt) {
		now := time.Now()
		a.CompletedAt = &now
		a.DeploymentURL = &url
	})
	if err != nil {
		return err
	}
	now := time.Now()
	if err := r.apps.RecordEnvironmentURL(attempt.AppID, attempt.Environment, url, now); err != nil {
		logger.WithContext(ctx).Errorf("recording %s URL on app: %v", attempt.Environment, err)
	}
	r.broadcaster.Publish(ctx, broadcast.NewCompleted(attempt.AppID.String(), attempt.ID.String(), string(attempt.Environment), url))
	return nil
}

// Fail finishes the attempt as failed with the structured error detail.
// App URLs are left untouched; a failed attempt never erases a working
// deployment.
func (r *StateRecorder) Fail(ctx context.Context, attempt *models.DeploymentAttempt, phase string, cause error, detail *models.ErrorDetailPayload) error {
	return r.finish(ctx, attempt, models.DeploymentStatusFailed, phase, cause, detail)
}

// Timeout finishes the attempt as timed_out, the distinguished state for
// "monitoring gave up, remote outcome unknown".
func (r *StateRecorder) Timeout(ctx context.Context, attempt *models.DeploymentAttempt, phase string, cause error, detail *models.ErrorDetailPayload) error {
	return r.finish(ctx, attempt, models.DeploymentStatusTimedOut, phase, cause, detail)
}

func (r *StateRecorder) finish(ctx context.Context, attempt *models.DeploymentAttempt, status models.DeploymentStatus, phase string, cause error, detail *models.ErrorDetailPayload) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
		if len(msg) > 1000 {
			msg = msg[:1000]
		}
	}
	err := r.transition(ctx, attempt, status, msg, func(a *models.DeploymentAttempt) {
		now := time.Now()
		a.CompletedAt = &now
		if msg != "" {
			a.ErrorMessage = &msg
		}
		if detail != nil {
			if raw, jsonErr := json.Marshal(detail); jsonErr == nil {
				a.ErrorDetail = raw
			}
		}
	})
	if err != nil {
		return err
	}
	// terminal events still go out after the deploy deadline expired
	r.broadcaster.Publish(context.WithoutCancel(ctx), broadcast.NewFailed(attempt.AppID.String(), attempt.ID.String(), string(attempt.Environment), string(status), phase, cause))
	return nil
}

// transition is the single choke point for status changes. It rejects
// regressions, persists the attempt, appends the audit row, updates the
// app rollup and broadcasts progress for non-terminal moves.
func (r *StateRecorder) transition(ctx context.Context, attempt *models.DeploymentAttempt, next models.DeploymentStatus, detail string, mutate func(*models.DeploymentAttempt)) error {
	from := attempt.Status
	if !from.CanTransitionTo(next) {
		return &apperrors.InvalidTransitionError{From: string(from), To: string(next)}
	}

	attempt.Status = next
	mutate(attempt)
	if err := r.attempts.Update(attempt); err != nil {
		attempt.Status = from
		return err
	}

	if err := r.attempts.AppendTransition(&models.DeploymentTransition{
		AttemptID:  attempt.ID,
		FromStatus: from,
		ToStatus:   next,
		Detail:     detail,
	}); err != nil {
		logger.WithContext(ctx).Warnf("appending deployment transition: %v", err)
	}

	if err := r.apps.UpdateDeploymentStatus(attempt.AppID, next); err != nil {
		logger.WithContext(ctx).Warnf("updating app rollup status: %v", err)
	}

	if !next.IsTerminal() {
		r.broadcaster.Publish(ctx, progressEvent(attempt))
	}
	return nil
}

func progressEvent(attempt *models.DeploymentAttempt) broadcast.Event {
	var phase string
	var progress float64
	switch attempt.Status {
	case models.DeploymentStatusQueued:
		phase, progress = "validate", 0.1
	case models.DeploymentStatusBuilding:
		phase, progress = "build", 0.5
	case models.DeploymentStatusDeploying:
		phase, progress = "deploy", 0.8
	}
	return broadcast.NewProgress(attempt.AppID.String(), attempt.ID.String(), string(attempt.Environment), string(attempt.Status), phase, progress)
}
