package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"deploy-orchestrator-backend/internal/artifacts"
	"deploy-orchestrator-backend/internal/broadcast"
	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/locks"
)

// In-memory collaborators for orchestration tests, following the same
// hand-rolled fake style as the handler tests.

type fakeAppRepo struct {
	mu   sync.Mutex
	apps map[uuid.UUID]*models.App
}

func newFakeAppRepo(apps ...*models.App) *fakeAppRepo {
	r := &fakeAppRepo{apps: make(map[uuid.UUID]*models.App)}
	for _, a := range apps {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		r.apps[a.ID] = a
	}
	return r
}

func (r *fakeAppRepo) Create(app *models.App) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if app.ID == uuid.Nil {
		app.ID = uuid.New()
	}
	r.apps[app.ID] = app
	return nil
}

func (r *fakeAppRepo) GetByID(id uuid.UUID) (*models.App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return nil, apperrors.ErrAppNotFound
	}
	clone := *app
	return &clone, nil
}

func (r *fakeAppRepo) GetBySubdomain(subdomain string) (*models.App, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, app := range r.apps {
		if app.Subdomain == subdomain {
			clone := *app
			return &clone, nil
		}
	}
	return nil, apperrors.ErrAppNotFound
}

func (r *fakeAppRepo) GetAll(limit, offset int) ([]models.App, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.App, 0, len(r.apps))
	for _, app := range r.apps {
		out = append(out, *app)
	}
	return out, int64(len(out)), nil
}

func (r *fakeAppRepo) UpdateDeploymentStatus(id uuid.UUID, status models.DeploymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if app, ok := r.apps[id]; ok {
		app.DeploymentStatus = status
	}
	return nil
}

func (r *fakeAppRepo) RecordEnvironmentURL(id uuid.UUID, env models.Environment, url string, deployedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	app, ok := r.apps[id]
	if !ok {
		return apperrors.ErrAppNotFound
	}
	switch env {
	case models.EnvironmentPreview:
		app.PreviewURL = url
		app.PreviewDeployedAt = &deployedAt
	case models.EnvironmentStaging:
		app.StagingURL = url
		app.StagingDeployedAt = &deployedAt
	case models.EnvironmentProduction:
		app.ProductionURL = url
		app.ProductionDeployedAt = &deployedAt
	}
	return nil
}

type fakeAttemptRepo struct {
	mu          sync.Mutex
	attempts    map[uuid.UUID]*models.DeploymentAttempt
	transitions []models.DeploymentTransition
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[uuid.UUID]*models.DeploymentAttempt)}
}

func (r *fakeAttemptRepo) Create(attempt *models.DeploymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	clone := *attempt
	r.attempts[attempt.ID] = &clone
	return nil
}

func (r *fakeAttemptRepo) GetByID(id uuid.UUID) (*models.DeploymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, apperrors.ErrAttemptNotFound
	}
	clone := *attempt
	return &clone, nil
}

func (r *fakeAttemptRepo) GetByAppID(appID uuid.UUID, limit, offset int) ([]models.DeploymentAttempt, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DeploymentAttempt
	for _, a := range r.attempts {
		if a.AppID == appID {
			out = append(out, *a)
		}
	}
	return out, int64(len(out)), nil
}

func (r *fakeAttemptRepo) GetActiveByApp(appID uuid.UUID) (*models.DeploymentAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.attempts {
		if a.AppID == appID && !a.Status.IsTerminal() {
			clone := *a
			return &clone, nil
		}
	}
	return nil, apperrors.ErrAttemptNotFound
}

func (r *fakeAttemptRepo) Update(attempt *models.DeploymentAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *attempt
	r.attempts[attempt.ID] = &clone
	return nil
}

func (r *fakeAttemptRepo) AppendTransition(t *models.DeploymentTransition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t.CreatedAt = time.Now()
	r.transitions = append(r.transitions, *t)
	return nil
}

func (r *fakeAttemptRepo) GetTransitions(attemptID uuid.UUID) ([]models.DeploymentTransition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DeploymentTransition
	for _, t := range r.transitions {
		if t.AttemptID == attemptID {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeSnapshotRepo struct {
	mu        sync.Mutex
	snapshots []models.DeploymentSnapshot
}

func (r *fakeSnapshotRepo) Create(s *models.DeploymentSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, *s)
	return nil
}

func (r *fakeSnapshotRepo) GetByAttemptID(attemptID uuid.UUID) (*models.DeploymentSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.snapshots {
		if r.snapshots[i].AttemptID == attemptID {
			clone := r.snapshots[i]
			return &clone, nil
		}
	}
	return nil, apperrors.ErrSnapshotNotFound
}

func (r *fakeSnapshotRepo) GetByAppID(appID uuid.UUID, limit, offset int) ([]models.DeploymentSnapshot, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.DeploymentSnapshot
	for _, s := range r.snapshots {
		if s.AppID == appID {
			out = append(out, s)
		}
	}
	return out, int64(len(out)), nil
}

// fakeLockManager tracks held locks in memory.
type fakeLockManager struct {
	mu       sync.Mutex
	held     map[string]string
	acquires int
	releases int
}

func newFakeLockManager() *fakeLockManager {
	return &fakeLockManager{held: make(map[string]string)}
}

func (m *fakeLockManager) Acquire(ctx context.Context, appID string) (*locks.Lock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, taken := m.held[appID]; taken {
		return nil, &apperrors.LockConflictError{AppID: appID}
	}
	token := uuid.NewString()
	m.held[appID] = token
	m.acquires++
	return &locks.Lock{AppID: appID, Token: token}, nil
}

func (m *fakeLockManager) Release(ctx context.Context, lock *locks.Lock) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.held[lock.AppID] == lock.Token {
		delete(m.held, lock.AppID)
	}
	m.releases++
	return nil
}

// fakeSyncClient records pushes and serves canned results.
type fakeSyncClient struct {
	mu            sync.Mutex
	pushErr       error
	verifyErr     error
	blockUntilCtx bool
	pushGate      chan struct{} // when set, Push waits for it to close
	pushes        [][]artifacts.FileArtifact
	messages      []string
	tags          []string
	nextSHA       int
}

func (c *fakeSyncClient) Push(ctx context.Context, app *models.App, files []artifacts.FileArtifact, message string) (string, error) {
	if c.blockUntilCtx {
		<-ctx.Done()
		return "", &apperrors.SyncError{Message: ctx.Err().Error()}
	}
	if c.pushGate != nil {
		<-c.pushGate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushErr != nil {
		return "", c.pushErr
	}
	c.pushes = append(c.pushes, files)
	c.messages = append(c.messages, message)
	c.nextSHA++
	return uuid.NewString(), nil
}

func (c *fakeSyncClient) Verify(ctx context.Context, app *models.App, commitSHA string, paths []string) error {
	return c.verifyErr
}

func (c *fakeSyncClient) Tag(ctx context.Context, app *models.App, commitSHA, tag string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tags = append(c.tags, tag)
	return nil
}

func (c *fakeSyncClient) pushCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pushes)
}

// fakeCIClient serves a scripted sequence of run states.
type fakeCIClient struct {
	mu         sync.Mutex
	runs       []*WorkflowRun
	runErrs    []error
	script     []ciReply // ordered run/error mix; takes precedence, last reply sticky
	logs       string
	retriggers int
}

type ciReply struct {
	run *WorkflowRun
	err error
}

func (c *fakeCIClient) RunForCommit(ctx context.Context, app *models.App, workflowFile, commitSHA string) (*WorkflowRun, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.script) > 0 {
		reply := c.script[0]
		if len(c.script) > 1 {
			c.script = c.script[1:]
		}
		return reply.run, reply.err
	}
	if len(c.runErrs) > 0 {
		err := c.runErrs[0]
		c.runErrs = c.runErrs[1:]
		return nil, err
	}
	if len(c.runs) == 0 {
		return nil, apperrors.ErrWorkflowRunMissing
	}
	run := c.runs[0]
	if len(c.runs) > 1 {
		c.runs = c.runs[1:]
	}
	return run, nil
}

func (c *fakeCIClient) FailureLogs(ctx context.Context, app *models.App, runID int64) (string, error) {
	return c.logs, nil
}

func (c *fakeCIClient) Retrigger(ctx context.Context, app *models.App, workflowFile, branch string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retriggers++
	return nil
}

// fakeEdgeClient serves a canned URL or error.
type fakeEdgeClient struct {
	url           string
	err           error
	blockUntilCtx bool
	deploys       int
}

func (c *fakeEdgeClient) Deploy(ctx context.Context, app *models.App, files []artifacts.FileArtifact, progress func(float64)) (string, error) {
	c.deploys++
	if c.blockUntilCtx {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if c.err != nil {
		return "", c.err
	}
	if progress != nil {
		progress(1)
	}
	return c.url, nil
}

// fakeFlags disables the listed flags for every app.
type fakeFlags struct {
	disabled map[string]bool
}

func (f *fakeFlags) Enabled(flag, subdomain string) bool {
	if f.disabled == nil {
		return true
	}
	return !f.disabled[flag]
}

// captureBroadcaster collects published events.
type captureBroadcaster struct {
	mu     sync.Mutex
	events []broadcast.Event
}

func (b *captureBroadcaster) Publish(ctx context.Context, event broadcast.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *captureBroadcaster) all() []broadcast.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]broadcast.Event, len(b.events))
	copy(out, b.events)
	return out
}
