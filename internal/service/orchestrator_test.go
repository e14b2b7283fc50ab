package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-orchestrator-backend/internal/artifacts"
	"deploy-orchestrator-backend/internal/config"
	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"
)

type orchestratorFixture struct {
	orchestrator *Orchestrator
	cfg          *config.Config
	app          *models.App
	apps         *fakeAppRepo
	attempts     *fakeAttemptRepo
	snapshots    *fakeSnapshotRepo
	locks        *fakeLockManager
	sync         *fakeSyncClient
	ci           *fakeCIClient
	edge         *fakeEdgeClient
	flags        *fakeFlags
	broadcaster  *captureBroadcaster
}

func newOrchestratorFixture(t *testing.T) *orchestratorFixture {
	t.Helper()
	cfg := &config.Config{
		BaseDomain:             "example.dev",
		WorkflowFile:           "deploy.yml",
		DefaultBranch:          "main",
		BundleSizeCeilingBytes: 10 * 1024 * 1024,
		BundleSizeMarginBytes:  512 * 1024,
		DeployTimeout:          5 * time.Second,
		BuildMaxWait:           time.Second,
		PollInterval:           time.Millisecond,
	}

	f := &orchestratorFixture{
		cfg:         cfg,
		app:         &models.App{Name: "Acme", Subdomain: "acme"},
		attempts:    newFakeAttemptRepo(),
		snapshots:   &fakeSnapshotRepo{},
		locks:       newFakeLockManager(),
		sync:        &fakeSyncClient{},
		ci:          &fakeCIClient{},
		edge:        &fakeEdgeClient{url: "https://preview-acme.example.dev"},
		flags:       &fakeFlags{},
		broadcaster: &captureBroadcaster{},
	}
	f.apps = newFakeAppRepo(f.app)

	recorder := NewStateRecorder(f.attempts, f.apps, f.broadcaster)
	f.orchestrator = NewOrchestrator(cfg, OrchestratorDeps{
		Apps:        f.apps,
		Snapshots:   f.snapshots,
		Recorder:    recorder,
		Locks:       f.locks,
		Validator:   artifacts.NewValidator(cfg.BundleSizeCeilingBytes, cfg.BundleSizeMarginBytes, nil),
		Sync:        f.sync,
		Monitor:     NewBuildMonitor(f.ci, cfg.PollInterval, cfg.BuildMaxWait, cfg.DefaultBranch),
		Edge:        f.edge,
		Flags:       f.flags,
		Ephemeral:   NopEphemeralStore{},
		Broadcaster: f.broadcaster,
	})
	return f
}

func validFiles() []artifacts.FileArtifact {
	return []artifacts.FileArtifact{
		artifacts.New("package.json", `{"name":"acme","dependencies":{}}`),
		artifacts.New("src/main.tsx", `import { App } from "./App";`),
		artifacts.New("src/App.tsx", `export const App = () => null;`),
	}
}

func (f *orchestratorFixture) latestAttempt(t *testing.T) *models.DeploymentAttempt {
	t.Helper()
	attempts, _, err := f.attempts.GetByAppID(f.app.ID, 10, 0)
	require.NoError(t, err)
	require.NotEmpty(t, attempts)
	return &attempts[len(attempts)-1]
}

func TestDeployProductionHappyPath(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.ci.runs = []*WorkflowRun{{ID: 7, Status: RunStatusCompleted, Conclusion: RunConclusionSuccess}}

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentProduction,
		Files:       validFiles(),
	})

	require.NoError(t, err)

	attempt := f.latestAttempt(t)
	assert.Equal(t, models.DeploymentStatusCompleted, attempt.Status)
	require.NotNil(t, attempt.DeploymentURL)
	assert.Equal(t, "https://acme.example.dev", *attempt.DeploymentURL)
	assert.NotNil(t, attempt.CommitSHA)
	assert.Equal(t, 3, attempt.FileCount)

	app, _ := f.apps.GetByID(f.app.ID)
	assert.Equal(t, "https://acme.example.dev", app.ProductionURL)

	assert.Equal(t, 1, f.sync.pushCount())
	assert.Len(t, f.sync.tags, 1)
	assert.Len(t, f.snapshots.snapshots, 1)
	assert.Equal(t, attempt.ID, f.snapshots.snapshots[0].AttemptID)
	assert.Equal(t, 0, f.edge.deploys, "production never takes the edge fast path")
	assert.Equal(t, f.locks.acquires, f.locks.releases)
}

func TestDeployValidationFailureTouchesNoNetwork(t *testing.T) {
	f := newOrchestratorFixture(t)

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentProduction,
		Files: []artifacts.FileArtifact{
			artifacts.New("src/App.tsx", `import { Gone } from "./Gone";`),
		},
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsValidation(err))

	assert.Zero(t, f.sync.pushCount(), "validation failures must precede any network call")
	assert.Zero(t, f.edge.deploys)

	attempt := f.latestAttempt(t)
	assert.Equal(t, models.DeploymentStatusFailed, attempt.Status)
	assert.NotEmpty(t, attempt.ErrorDetail)
	assert.Equal(t, f.locks.acquires, f.locks.releases)
}

func TestDeployLockConflict(t *testing.T) {
	f := newOrchestratorFixture(t)
	_, err := f.locks.Acquire(context.Background(), f.app.ID.String())
	require.NoError(t, err)

	err = f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentProduction,
		Files:       validFiles(),
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsLockConflict(err))

	attempts, _, _ := f.attempts.GetByAppID(f.app.ID, 10, 0)
	assert.Empty(t, attempts, "no attempt row for a rejected duplicate")
}

func TestDeployPreviewFastPathShortCircuitsCI(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.flags.disabled = map[string]bool{FlagPreviewCI: true}

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentPreview,
		Files:       validFiles(),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, f.edge.deploys)
	assert.Zero(t, f.sync.pushCount(), "short-circuited preview never reaches CI")

	attempt := f.latestAttempt(t)
	assert.Equal(t, models.DeploymentStatusCompleted, attempt.Status)
	require.NotNil(t, attempt.DeploymentURL)
	assert.Equal(t, "https://preview-acme.example.dev", *attempt.DeploymentURL)

	app, _ := f.apps.GetByID(f.app.ID)
	assert.Equal(t, "https://preview-acme.example.dev", app.PreviewURL)
}

func TestDeployPreviewKeepsFastPathURLWhenCIBackupFails(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.ci.runs = []*WorkflowRun{{ID: 9, Status: RunStatusCompleted, Conclusion: RunConclusionFailure}}
	f.ci.logs = "FATAL ERROR: Reached heap limit Allocation failed"

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentPreview,
		Files:       validFiles(),
	})

	require.NoError(t, err, "a live fast-path preview is not regressed by the CI backup")
	assert.Equal(t, 1, f.edge.deploys)
	assert.Equal(t, 1, f.sync.pushCount())

	attempt := f.latestAttempt(t)
	assert.Equal(t, models.DeploymentStatusCompleted, attempt.Status)
	require.NotNil(t, attempt.DeploymentURL)
	assert.Equal(t, "https://preview-acme.example.dev", *attempt.DeploymentURL)
}

func TestDeployEdgeFailureFailsPreview(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.edge.err = assert.AnError

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentPreview,
		Files:       validFiles(),
	})

	require.Error(t, err)
	attempt := f.latestAttempt(t)
	assert.Equal(t, models.DeploymentStatusFailed, attempt.Status)
}

func TestDeploySyncFailure(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.sync.pushErr = &apperrors.SyncError{Message: "3 of 10 files failed to upload", FailedFiles: []string{"src/a.ts"}, Partial: true}

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentStaging,
		Files:       validFiles(),
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsSync(err))
	assert.True(t, apperrors.IsRetryable(err))

	attempt := f.latestAttempt(t)
	assert.Equal(t, models.DeploymentStatusFailed, attempt.Status)
	assert.Contains(t, string(attempt.ErrorDetail), "src/a.ts")
}

func TestDeployBuildTimeoutMarksTimedOut(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.ci.runs = []*WorkflowRun{{ID: 3, Status: "in_progress"}}

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentProduction,
		Files:       validFiles(),
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsMonitorTimeout(err))

	attempt := f.latestAttempt(t)
	assert.Equal(t, models.DeploymentStatusTimedOut, attempt.Status)
	assert.Nil(t, attempt.DeploymentURL)

	app, _ := f.apps.GetByID(f.app.ID)
	assert.Empty(t, app.ProductionURL)
	assert.Equal(t, f.locks.acquires, f.locks.releases)
}

func TestDeployDisabledByFlag(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.flags.disabled = map[string]bool{FlagDeploy: true}

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentProduction,
		Files:       validFiles(),
	})

	require.ErrorIs(t, err, apperrors.ErrDeployDisabled)
	attempts, _, _ := f.attempts.GetByAppID(f.app.ID, 10, 0)
	assert.Empty(t, attempts)
}

func TestDeployRejectsBadRequests(t *testing.T) {
	f := newOrchestratorFixture(t)

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: "qa",
		Files:       validFiles(),
	})
	require.ErrorIs(t, err, apperrors.ErrInvalidEnvironment)

	err = f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentProduction,
	})
	require.ErrorIs(t, err, apperrors.ErrEmptyArtifactSet)
}

func TestDeployRemediationPatchesReachSnapshot(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.ci.runs = []*WorkflowRun{
		{ID: 1, Status: RunStatusCompleted, Conclusion: RunConclusionFailure},
		{ID: 2, Status: RunStatusCompleted, Conclusion: RunConclusionSuccess},
	}
	f.ci.logs = "Error: Cannot find module 'zod'"

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentProduction,
		Files:       validFiles(),
	})

	require.NoError(t, err)
	assert.Equal(t, 2, f.sync.pushCount(), "initial push plus one fix commit")

	require.Len(t, f.snapshots.snapshots, 1)
	assert.Contains(t, string(f.snapshots.snapshots[0].Files), "package.json")
}

func TestDeployOverallTimeoutDuringSyncMarksTimedOut(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.cfg.DeployTimeout = 50 * time.Millisecond
	f.sync.blockUntilCtx = true

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentProduction,
		Files:       validFiles(),
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsMonitorTimeout(err), "deadline expiry is a timeout, not a sync failure")

	attempt := f.latestAttempt(t)
	assert.Equal(t, models.DeploymentStatusTimedOut, attempt.Status)
	assert.Equal(t, f.locks.acquires, f.locks.releases)
}

func TestDeployOverallTimeoutDuringEdgeDeployMarksTimedOut(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.cfg.DeployTimeout = 50 * time.Millisecond
	f.edge.blockUntilCtx = true

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentPreview,
		Files:       validFiles(),
	})

	require.Error(t, err)
	assert.True(t, apperrors.IsMonitorTimeout(err))

	attempt := f.latestAttempt(t)
	assert.Equal(t, models.DeploymentStatusTimedOut, attempt.Status)
}

func TestDeployBroadcastsEveryPhase(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.ci.runs = []*WorkflowRun{{ID: 7, Status: RunStatusCompleted, Conclusion: RunConclusionSuccess}}

	err := f.orchestrator.Deploy(context.Background(), DeployRequest{
		AppID:       f.app.ID,
		Environment: models.EnvironmentProduction,
		Files:       validFiles(),
	})
	require.NoError(t, err)

	statuses := map[string]bool{}
	phases := map[string]bool{}
	for _, ev := range f.broadcaster.all() {
		statuses[ev.Status] = true
		phases[ev.Phase] = true
	}
	for _, s := range []string{"queued", "building", "deploying", "completed"} {
		assert.True(t, statuses[s], "no event fired with status %s", s)
	}
	for _, p := range []string{"validate", "sync", "build", "deploy"} {
		assert.True(t, phases[p], "no event fired for phase %s", p)
	}
}

func TestDeployConcurrentAttemptsHaveOneWinner(t *testing.T) {
	f := newOrchestratorFixture(t)
	f.ci.runs = []*WorkflowRun{{ID: 7, Status: RunStatusCompleted, Conclusion: RunConclusionSuccess}}
	gate := make(chan struct{})
	f.sync.pushGate = gate

	const n = 8
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			errs <- f.orchestrator.Deploy(context.Background(), DeployRequest{
				AppID:       f.app.ID,
				Environment: models.EnvironmentProduction,
				Files:       validFiles(),
			})
		}()
	}

	// the winner is parked at the push gate holding the lock, so the
	// first n-1 results must all be conflicts
	for i := 0; i < n-1; i++ {
		err := <-errs
		require.Error(t, err)
		assert.True(t, apperrors.IsLockConflict(err))
	}
	close(gate)
	require.NoError(t, <-errs)

	attempts, _, _ := f.attempts.GetByAppID(f.app.ID, 20, 0)
	require.Len(t, attempts, 1, "only the lock winner creates an attempt")
	assert.Equal(t, models.DeploymentStatusCompleted, attempts[0].Status)
	assert.Equal(t, 1, f.locks.acquires)
	assert.Equal(t, f.locks.acquires, f.locks.releases)
}
