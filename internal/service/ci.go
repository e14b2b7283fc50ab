package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/go-github/v57/github"
	"gopkg.in/yaml.v3"

	"deploy-orchestrator-backend/internal/artifacts"
	"deploy-orchestrator-backend/internal/config"
	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/logger"
)

// Workflow run lifecycle values as CI reports them.
const (
	RunStatusCompleted    = "completed"
	RunConclusionSuccess  = "success"
	RunConclusionFailure  = "failure"
	RunConclusionTimedOut = "timed_out"
)

// WorkflowRun is the monitor's view of one CI run.
type WorkflowRun struct {
	ID         int64
	Status     string // queued, in_progress, completed
	Conclusion string // set once Status is completed
	HeadSHA    string
}

// Finished reports whether CI has reached a terminal state for this run.
func (r *WorkflowRun) Finished() bool {
	return r.Status == RunStatusCompleted
}

// Succeeded reports whether the finished run passed.
func (r *WorkflowRun) Succeeded() bool {
	return r.Finished() && r.Conclusion == RunConclusionSuccess
}

// CIStatusClient reads and re-triggers the build workflow for an app.
type CIStatusClient interface {
	// RunForCommit returns the newest run of the workflow for the given
	// commit, or ErrWorkflowRunMissing while CI has not picked it up yet.
	RunForCommit(ctx context.Context, app *models.App, workflowFile, commitSHA string) (*WorkflowRun, error)
	// FailureLogs fetches the log text of the run's failed jobs for
	// remediation classification.
	FailureLogs(ctx context.Context, app *models.App, runID int64) (string, error)
	// Retrigger dispatches a fresh run of the workflow on the branch.
	Retrigger(ctx context.Context, app *models.App, workflowFile, branch string) error
}

// GitHubCIService implements CIStatusClient over the Actions API.
type GitHubCIService struct {
	client   *github.Client
	httpc    *http.Client
	owner    string
	repoBase string
}

func NewGitHubCIService(cfg *config.Config, ghClient *github.Client) *GitHubCIService {
	return &GitHubCIService{
		client:   ghClient,
		httpc:    http.DefaultClient,
		owner:    cfg.GitHubOwner,
		repoBase: cfg.GitHubRepoBase,
	}
}

// NewGitHubCIServiceWithClient is used by tests to point the service at an
// httptest server.
func NewGitHubCIServiceWithClient(client *github.Client, httpc *http.Client, owner, repoBase string) *GitHubCIService {
	return &GitHubCIService{client: client, httpc: httpc, owner: owner, repoBase: repoBase}
}

func (s *GitHubCIService) repoFor(app *models.App) string {
	return fmt.Sprintf("%s-%s", s.repoBase, app.Subdomain)
}

func (s *GitHubCIService) RunForCommit(ctx context.Context, app *models.App, workflowFile, commitSHA string) (*WorkflowRun, error) {
	runs, _, err := s.client.Actions.ListWorkflowRunsByFileName(ctx, s.owner, s.repoFor(app), workflowFile, &github.ListWorkflowRunsOptions{
		HeadSHA:     commitSHA,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("listing workflow runs: %w", err)
	}
	if runs.GetTotalCount() == 0 || len(runs.WorkflowRuns) == 0 {
		return nil, apperrors.ErrWorkflowRunMissing
	}
	run := runs.WorkflowRuns[0]
	return &WorkflowRun{
		ID:         run.GetID(),
		Status:     run.GetStatus(),
		Conclusion: run.GetConclusion(),
		HeadSHA:    run.GetHeadSHA(),
	}, nil
}

func (s *GitHubCIService) FailureLogs(ctx context.Context, app *models.App, runID int64) (string, error) {
	repo := s.repoFor(app)
	jobs, _, err := s.client.Actions.ListWorkflowJobs(ctx, s.owner, repo, runID, &github.ListWorkflowJobsOptions{})
	if err != nil {
		return "", fmt.Errorf("listing jobs for run %d: %w", runID, err)
	}

	var sb strings.Builder
	for _, job := range jobs.Jobs {
		if job.GetConclusion() != RunConclusionFailure {
			continue
		}
		logURL, _, urlErr := s.client.Actions.GetWorkflowJobLogs(ctx, s.owner, repo, job.GetID(), 3)
		if urlErr != nil {
			logger.WithContext(ctx).Warnf("resolving logs for job %d: %v", job.GetID(), urlErr)
			continue
		}
		req, reqErr := http.NewRequestWithContext(ctx, http.MethodGet, logURL.String(), nil)
		if reqErr != nil {
			continue
		}
		resp, getErr := s.httpc.Do(req)
		if getErr != nil {
			logger.WithContext(ctx).Warnf("fetching logs for job %d: %v", job.GetID(), getErr)
			continue
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
		resp.Body.Close()
		sb.Write(body)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (s *GitHubCIService) Retrigger(ctx context.Context, app *models.App, workflowFile, branch string) error {
	_, err := s.client.Actions.CreateWorkflowDispatchEventByFileName(ctx, s.owner, s.repoFor(app), workflowFile, github.CreateWorkflowDispatchEventRequest{
		Ref: branch,
	})
	if err != nil {
		return fmt.Errorf("dispatching workflow %s: %w", workflowFile, err)
	}
	return nil
}

// workflowDescriptor is the slice of a CI workflow file we care about.
type workflowDescriptor struct {
	Name string `yaml:"name"`
	On   any    `yaml:"on"`
}

// ResolveWorkflowFile finds the CI workflow shipped in the artifact set and
// returns its file name for the monitor to poll. Falls back to the
// configured default when the set carries none or the descriptor does not
// parse.
func ResolveWorkflowFile(files []artifacts.FileArtifact, fallback string) string {
	for _, f := range files {
		if !strings.HasPrefix(f.Path, ".github/workflows/") {
			continue
		}
		if !strings.HasSuffix(f.Path, ".yml") && !strings.HasSuffix(f.Path, ".yaml") {
			continue
		}
		var desc workflowDescriptor
		if err := yaml.Unmarshal([]byte(f.Content), &desc); err != nil {
			continue
		}
		if desc.Name == "" {
			continue
		}
		return strings.TrimPrefix(f.Path, ".github/workflows/")
	}
	return fallback
}
