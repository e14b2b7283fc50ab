package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"
)

func newRecorderFixture(t *testing.T) (*StateRecorder, *fakeAppRepo, *fakeAttemptRepo, *captureBroadcaster, *models.App) {
	t.Helper()
	app := &models.App{Name: "Acme", Subdomain: "acme"}
	apps := newFakeAppRepo(app)
	attempts := newFakeAttemptRepo()
	bc := &captureBroadcaster{}
	return NewStateRecorder(attempts, apps, bc), apps, attempts, bc, app
}

func TestRecorderStartCreatesQueuedAttempt(t *testing.T) {
	recorder, apps, _, _, app := newRecorderFixture(t)

	attempt, err := recorder.Start(context.Background(), app.ID, models.EnvironmentProduction)

	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusQueued, attempt.Status)
	assert.False(t, attempt.StartedAt.IsZero())

	updated, err := apps.GetByID(app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusQueued, updated.DeploymentStatus)
}

func TestRecorderStartBroadcastsQueued(t *testing.T) {
	recorder, _, _, bc, app := newRecorderFixture(t)

	attempt, err := recorder.Start(context.Background(), app.ID, models.EnvironmentProduction)
	require.NoError(t, err)

	events := bc.all()
	require.Len(t, events, 1)
	assert.Equal(t, "queued", events[0].Status)
	assert.Equal(t, attempt.ID.String(), events[0].AttemptID)
	assert.Equal(t, "validate", events[0].Phase)
}

func TestRecorderLifecycleAppendsTransitions(t *testing.T) {
	recorder, _, attempts, _, app := newRecorderFixture(t)
	ctx := context.Background()

	attempt, err := recorder.Start(ctx, app.ID, models.EnvironmentProduction)
	require.NoError(t, err)
	require.NoError(t, recorder.MarkBuilding(ctx, attempt, "commit abc1234"))
	require.NoError(t, recorder.MarkDeploying(ctx, attempt, "run 7 succeeded"))
	require.NoError(t, recorder.Complete(ctx, attempt, "https://acme.example.dev"))

	rows, err := attempts.GetTransitions(attempt.ID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, models.DeploymentStatusQueued, rows[0].FromStatus)
	assert.Equal(t, models.DeploymentStatusBuilding, rows[0].ToStatus)
	assert.Equal(t, models.DeploymentStatusDeploying, rows[1].ToStatus)
	assert.Equal(t, models.DeploymentStatusCompleted, rows[2].ToStatus)

	assert.NotNil(t, attempt.BuildCompletedAt)
	assert.NotNil(t, attempt.CompletedAt)
	require.NotNil(t, attempt.DeploymentURL)
	assert.Equal(t, "https://acme.example.dev", *attempt.DeploymentURL)
}

func TestRecorderCompleteRecordsAppURL(t *testing.T) {
	recorder, apps, _, bc, app := newRecorderFixture(t)
	ctx := context.Background()

	attempt, err := recorder.Start(ctx, app.ID, models.EnvironmentStaging)
	require.NoError(t, err)
	require.NoError(t, recorder.MarkBuilding(ctx, attempt, ""))
	require.NoError(t, recorder.MarkDeploying(ctx, attempt, ""))
	require.NoError(t, recorder.Complete(ctx, attempt, "https://staging-acme.example.dev"))

	updated, err := apps.GetByID(app.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://staging-acme.example.dev", updated.StagingURL)
	assert.NotNil(t, updated.StagingDeployedAt)
	assert.Empty(t, updated.ProductionURL)

	events := bc.all()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, "https://staging-acme.example.dev", last.URL)
}

func TestRecorderFailKeepsExistingURL(t *testing.T) {
	recorder, apps, _, _, app := newRecorderFixture(t)
	ctx := context.Background()

	// a previous deployment is live
	require.NoError(t, apps.RecordEnvironmentURL(app.ID, models.EnvironmentProduction, "https://acme.example.dev", time.Now()))

	attempt, err := recorder.Start(ctx, app.ID, models.EnvironmentProduction)
	require.NoError(t, err)
	require.NoError(t, recorder.Fail(ctx, attempt, "sync", &apperrors.SyncError{Message: "upload failed"}, nil))

	updated, err := apps.GetByID(app.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://acme.example.dev", updated.ProductionURL,
		"a failed attempt must not erase a working URL")
	assert.Equal(t, models.DeploymentStatusFailed, updated.DeploymentStatus)
	assert.Nil(t, attempt.DeploymentURL)
}

func TestRecorderRejectsTransitionsOutOfTerminal(t *testing.T) {
	recorder, _, _, _, app := newRecorderFixture(t)
	ctx := context.Background()

	attempt, err := recorder.Start(ctx, app.ID, models.EnvironmentPreview)
	require.NoError(t, err)
	require.NoError(t, recorder.Fail(ctx, attempt, "validate", &apperrors.ValidationError{}, nil))

	err = recorder.MarkBuilding(ctx, attempt, "")
	require.Error(t, err)
	var invalid *apperrors.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, "failed", invalid.From)
	assert.Equal(t, "building", invalid.To)

	err = recorder.Complete(ctx, attempt, "https://late.example.dev")
	assert.Error(t, err, "terminal states never transition again")
}

func TestRecorderRejectsBackwardTransitions(t *testing.T) {
	recorder, _, _, _, app := newRecorderFixture(t)
	ctx := context.Background()

	attempt, err := recorder.Start(ctx, app.ID, models.EnvironmentPreview)
	require.NoError(t, err)
	require.NoError(t, recorder.MarkDeploying(ctx, attempt, ""))

	err = recorder.MarkBuilding(ctx, attempt, "")
	require.Error(t, err)
	assert.Equal(t, models.DeploymentStatusDeploying, attempt.Status, "status unchanged on rejection")
}

func TestRecorderTimeoutIsDistinctFromFailed(t *testing.T) {
	recorder, apps, _, bc, app := newRecorderFixture(t)
	ctx := context.Background()

	attempt, err := recorder.Start(ctx, app.ID, models.EnvironmentProduction)
	require.NoError(t, err)
	require.NoError(t, recorder.MarkBuilding(ctx, attempt, ""))

	cause := &apperrors.MonitorTimeoutError{Waited: "5m0s"}
	detail := &models.ErrorDetailPayload{WorkflowRunID: 42}
	require.NoError(t, recorder.Timeout(ctx, attempt, "build", cause, detail))

	assert.Equal(t, models.DeploymentStatusTimedOut, attempt.Status)
	assert.NotNil(t, attempt.ErrorMessage)
	assert.NotEmpty(t, attempt.ErrorDetail)

	updated, err := apps.GetByID(app.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DeploymentStatusTimedOut, updated.DeploymentStatus)

	events := bc.all()
	require.NotEmpty(t, events)
	assert.Equal(t, "timed_out", events[len(events)-1].Status)
}
