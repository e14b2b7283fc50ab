package service

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"deploy-orchestrator-backend/internal/artifacts"
	"deploy-orchestrator-backend/internal/broadcast"
	"deploy-orchestrator-backend/internal/config"
	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/locks"
	"deploy-orchestrator-backend/internal/logger"
	"deploy-orchestrator-backend/internal/repository"
)

// DeployRequest is one unit of orchestration work: deploy this artifact set
// for this app to this environment.
type DeployRequest struct {
	AppID       uuid.UUID
	Environment models.Environment
	Files       []artifacts.FileArtifact
}

// Orchestrator runs the deployment state machine end to end: lock,
// validate, sync, build, deploy, record. It owns every status write through
// the recorder and releases the lock no matter how the attempt ends.
type Orchestrator struct {
	cfg         *config.Config
	apps        repository.AppRepositoryInterface
	snapshots   repository.SnapshotRepositoryInterface
	recorder    *StateRecorder
	locks       locks.Manager
	validator   *artifacts.Validator
	sync        RepositorySyncClient
	monitor     *BuildMonitor
	edge        EdgePreviewClient
	flags       FeatureFlagProvider
	ephemeral   EphemeralStore
	broadcaster broadcast.Broadcaster
	metrics     *Metrics
}

// OrchestratorDeps bundles the orchestrator's collaborators.
type OrchestratorDeps struct {
	Apps        repository.AppRepositoryInterface
	Snapshots   repository.SnapshotRepositoryInterface
	Recorder    *StateRecorder
	Locks       locks.Manager
	Validator   *artifacts.Validator
	Sync        RepositorySyncClient
	Monitor     *BuildMonitor
	Edge        EdgePreviewClient
	Flags       FeatureFlagProvider
	Ephemeral   EphemeralStore
	Broadcaster broadcast.Broadcaster
	Metrics     *Metrics
}

func NewOrchestrator(cfg *config.Config, deps OrchestratorDeps) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		apps:        deps.Apps,
		snapshots:   deps.Snapshots,
		recorder:    deps.Recorder,
		locks:       deps.Locks,
		validator:   deps.Validator,
		sync:        deps.Sync,
		monitor:     deps.Monitor,
		edge:        deps.Edge,
		flags:       deps.Flags,
		ephemeral:   deps.Ephemeral,
		broadcaster: deps.Broadcaster,
		metrics:     deps.Metrics,
	}
}

// verifyPaths are the files whose presence confirms a push actually landed.
func verifyPaths(files []artifacts.FileArtifact, workflowFile string) []string {
	paths := []string{"package.json", ".github/workflows/" + workflowFile}
	for _, candidate := range []string{"src/main.tsx", "src/main.ts", "src/index.tsx", "src/index.ts", "index.html"} {
		if _, ok := findArtifact(files, candidate); ok {
			paths = append(paths, candidate)
			break
		}
	}
	return paths
}

// Deploy runs one complete attempt. It returns LockConflictError without
// creating an attempt when the app already has a deployment in flight, a
// taxonomy error for every failure mode, and nil on success.
func (o *Orchestrator) Deploy(ctx context.Context, req DeployRequest) error {
	if !req.Environment.IsValid() {
		return apperrors.ErrInvalidEnvironment
	}
	if len(req.Files) == 0 {
		return apperrors.ErrEmptyArtifactSet
	}

	app, err := o.apps.GetByID(req.AppID)
	if err != nil {
		return err
	}
	if !o.flags.Enabled(FlagDeploy, app.Subdomain) {
		return apperrors.ErrDeployDisabled
	}

	lock, err := o.locks.Acquire(ctx, app.ID.String())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.DeployTimeout)
	defer cancel()
	ctx = logger.ContextWith(ctx, logger.ContextKeyAppID, app.ID.String())
	ctx = logger.ContextWith(ctx, logger.ContextKeyEnvironment, string(req.Environment))

	attempt, err := o.recorder.Start(ctx, app.ID, req.Environment)
	if err != nil {
		if relErr := o.locks.Release(context.WithoutCancel(ctx), lock); relErr != nil {
			logger.WithContext(ctx).Errorf("releasing lock after failed start: %v", relErr)
		}
		return err
	}
	ctx = logger.ContextWith(ctx, logger.ContextKeyAttemptID, attempt.ID.String())
	start := time.Now()

	defer func() {
		// cleanup runs even when the deadline already fired
		cleanupCtx, cleanupCancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cleanupCancel()
		if err := o.ephemeral.Clear(cleanupCtx, attempt.ID.String()); err != nil {
			logger.WithContext(ctx).Warnf("clearing ephemeral state: %v", err)
		}
		if err := o.locks.Release(cleanupCtx, lock); err != nil {
			logger.WithContext(ctx).Errorf("releasing deployment lock: %v", err)
		}
	}()

	err = o.run(ctx, app, attempt, req.Files)
	o.observe(attempt, time.Since(start), err)
	return err
}

// run executes the phases after the attempt exists; Deploy owns lock and
// cleanup around it.
func (o *Orchestrator) run(ctx context.Context, app *models.App, attempt *models.DeploymentAttempt, files []artifacts.FileArtifact) error {
	log := logger.WithContext(ctx)

	// validation runs before anything touches the network
	o.phase(ctx, attempt, "validate")
	result := o.validator.Validate(files)
	attempt.BundleSizeBytes = result.BundleSizeBytes
	attempt.FileCount = result.FileCount
	if !result.OK {
		return o.fail(ctx, attempt, "validate", result.Err(), violationDetail(result))
	}
	files = result.Files

	workflowFile := ResolveWorkflowFile(files, o.cfg.WorkflowFile)
	o.stash(ctx, attempt, EphemeralFieldWorkflow, workflowFile)

	// preview gets the fast path: live URL before CI even starts
	var provisionalURL string
	if attempt.Environment == models.EnvironmentPreview {
		o.phase(ctx, attempt, "deploy")
		url, err := o.edge.Deploy(ctx, app, files, o.progressFunc(ctx, attempt))
		if err != nil {
			return o.fail(ctx, attempt, "deploy", err, nil)
		}
		provisionalURL = url
		o.stash(ctx, attempt, EphemeralFieldProvisional, url)
		log.Infof("fast path deployed provisional preview at %s", url)

		if !o.flags.Enabled(FlagPreviewCI, app.Subdomain) {
			// CI short-circuited: the fast path result is the result
			return o.complete(ctx, app, attempt, files, "", url)
		}
	}

	o.phase(ctx, attempt, "sync")
	commitSHA, err := o.sync.Push(ctx, app, files, fmt.Sprintf("deploy %s to %s", attempt.ID, attempt.Environment))
	if err != nil {
		return o.fail(ctx, attempt, "sync", err, syncDetail(err))
	}
	attempt.CommitSHA = &commitSHA
	o.stash(ctx, attempt, EphemeralFieldCommitSHA, commitSHA)

	if err := o.sync.Verify(ctx, app, commitSHA, verifyPaths(files, workflowFile)); err != nil {
		return o.fail(ctx, attempt, "sync", err, syncDetail(err))
	}

	if err := o.recorder.MarkBuilding(ctx, attempt, "commit "+shortSHA(commitSHA)); err != nil {
		return err
	}

	remediator := NewArtifactRemediator(app, files, o.sync)
	mres, err := o.monitor.Wait(ctx, app, workflowFile, commitSHA, remediator)
	if err != nil {
		detail := &models.ErrorDetailPayload{
			WorkflowRunID: mres.WorkflowRunID,
			LogExcerpt:    mres.ErrorLogs,
			FixAttempted:  mres.FixAttempted,
		}
		if mres.TimedOut || ctx.Err() != nil {
			return o.timeout(ctx, attempt, "build", err, detail)
		}
		// fast-path preview stays live even when the CI backup fails
		if provisionalURL != "" && apperrors.IsBuild(err) {
			log.Warnf("CI backup failed after successful fast path, keeping provisional preview: %v", err)
			return o.complete(ctx, app, attempt, remediator.Files(), mres.CommitSHA, provisionalURL)
		}
		return o.fail(ctx, attempt, "build", err, detail)
	}
	files = remediator.Files()

	if err := o.recorder.MarkDeploying(ctx, attempt, fmt.Sprintf("run %d succeeded", mres.WorkflowRunID)); err != nil {
		return err
	}

	url := provisionalURL
	if url == "" {
		url = o.deploymentURL(app, attempt.Environment)
	}
	return o.complete(ctx, app, attempt, files, mres.CommitSHA, url)
}

// complete records the terminal success: attempt row, app rollup URL,
// snapshot and a best-effort tag.
func (o *Orchestrator) complete(ctx context.Context, app *models.App, attempt *models.DeploymentAttempt, files []artifacts.FileArtifact, commitSHA, url string) error {
	if commitSHA != "" {
		attempt.CommitSHA = &commitSHA
	}
	if err := o.recorder.Complete(ctx, attempt, url); err != nil {
		return err
	}

	tag := ""
	if commitSHA != "" {
		tag = DeployTag(attempt.Environment, time.Now())
		if err := o.sync.Tag(ctx, app, commitSHA, tag); err != nil {
			logger.WithContext(ctx).Warnf("tagging deployment: %v", err)
			tag = ""
		}
	}
	o.writeSnapshot(ctx, attempt, files, commitSHA, tag)

	logger.WithContext(ctx).Infof("deployment completed at %s", url)
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, attempt *models.DeploymentAttempt, phase string, cause error, detail *models.ErrorDetailPayload) error {
	// the overall deadline expiring mid-phase is a timeout, whichever
	// phase surfaced it
	if ctx.Err() != nil {
		return o.timeout(ctx, attempt, phase, cause, detail)
	}
	if recErr := o.recorder.Fail(ctx, attempt, phase, cause, detail); recErr != nil {
		logger.WithContext(ctx).Errorf("recording failure: %v", recErr)
	}
	return cause
}

func (o *Orchestrator) timeout(ctx context.Context, attempt *models.DeploymentAttempt, phase string, cause error, detail *models.ErrorDetailPayload) error {
	if !apperrors.IsMonitorTimeout(cause) {
		cause = &apperrors.MonitorTimeoutError{Waited: o.cfg.DeployTimeout.String(), Message: cause.Error()}
	}
	if recErr := o.recorder.Timeout(ctx, attempt, phase, cause, detail); recErr != nil {
		logger.WithContext(ctx).Errorf("recording timeout: %v", recErr)
	}
	return cause
}

// deploymentURL is the deterministic fallback when the platform does not
// hand back a URL: subdomain prefixed per environment under the base
// domain, production bare.
func (o *Orchestrator) deploymentURL(app *models.App, env models.Environment) string {
	switch env {
	case models.EnvironmentPreview:
		return fmt.Sprintf("https://preview-%s.%s", app.Subdomain, o.cfg.BaseDomain)
	case models.EnvironmentStaging:
		return fmt.Sprintf("https://staging-%s.%s", app.Subdomain, o.cfg.BaseDomain)
	default:
		return fmt.Sprintf("https://%s.%s", app.Subdomain, o.cfg.BaseDomain)
	}
}

func (o *Orchestrator) writeSnapshot(ctx context.Context, attempt *models.DeploymentAttempt, files []artifacts.FileArtifact, commitSHA, tag string) {
	entries := make([]models.SnapshotFile, len(files))
	for i, f := range files {
		entries[i] = models.SnapshotFile{Path: f.Path, ContentHash: f.ContentHash, SizeBytes: f.SizeBytes}
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		logger.WithContext(ctx).Errorf("encoding snapshot: %v", err)
		return
	}
	snapshot := &models.DeploymentSnapshot{
		AppID:       attempt.AppID,
		AttemptID:   attempt.ID,
		Environment: attempt.Environment,
		CommitSHA:   commitSHA,
		Tag:         tag,
		Files:       raw,
	}
	if err := o.snapshots.Create(snapshot); err != nil {
		logger.WithContext(ctx).Errorf("persisting snapshot: %v", err)
	}
}

// phase stashes the current phase and broadcasts it, so watchers see
// validate and sync activity between status transitions.
func (o *Orchestrator) phase(ctx context.Context, attempt *models.DeploymentAttempt, phase string) {
	o.stash(ctx, attempt, EphemeralFieldPhase, phase)
	o.broadcaster.Publish(ctx, broadcast.NewProgress(
		attempt.AppID.String(), attempt.ID.String(), string(attempt.Environment),
		string(attempt.Status), phase, phaseProgress(phase),
	))
}

func phaseProgress(phase string) float64 {
	switch phase {
	case "validate":
		return 0.2
	case "sync":
		return 0.4
	case "deploy":
		return 0.8
	default:
		return 0
	}
}

func (o *Orchestrator) stash(ctx context.Context, attempt *models.DeploymentAttempt, field, value string) {
	if err := o.ephemeral.Set(ctx, attempt.ID.String(), field, value); err != nil {
		logger.WithContext(ctx).Warnf("stashing %s: %v", field, err)
	}
}

// progressFunc adapts edge upload progress into broadcast events.
func (o *Orchestrator) progressFunc(ctx context.Context, attempt *models.DeploymentAttempt) func(float64) {
	return func(v float64) {
		o.broadcaster.Publish(ctx, broadcast.NewProgress(
			attempt.AppID.String(), attempt.ID.String(), string(attempt.Environment),
			string(attempt.Status), "deploy", v,
		))
	}
}

func (o *Orchestrator) observe(attempt *models.DeploymentAttempt, elapsed time.Duration, err error) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveDeployment(string(attempt.Environment), string(attempt.Status), elapsed)
	if err != nil {
		o.metrics.CountFailure(string(attempt.Environment), apperrors.Classify(err))
	}
}

func violationDetail(result *artifacts.ValidationResult) *models.ErrorDetailPayload {
	msgs := make([]string, len(result.Violations))
	for i, v := range result.Violations {
		msgs[i] = v.Message
	}
	return &models.ErrorDetailPayload{Violations: msgs}
}

func syncDetail(err error) *models.ErrorDetailPayload {
	var syncErr *apperrors.SyncError
	if stderrors.As(err, &syncErr) {
		return &models.ErrorDetailPayload{FailedFiles: syncErr.FailedFiles}
	}
	return nil
}
