package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"deploy-orchestrator-backend/internal/artifacts"
	"deploy-orchestrator-backend/internal/config"
	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/logger"
)

// RepositorySyncClient pushes artifact sets to an app's source repository
// and verifies the push landed. Implementations talk to the hosting
// provider; the orchestrator only sees this contract.
type RepositorySyncClient interface {
	// Push writes the artifact set as a single commit on the app's default
	// branch and returns the commit SHA. Per-file failures surface as a
	// partial SyncError naming the failed paths.
	Push(ctx context.Context, app *models.App, files []artifacts.FileArtifact, message string) (string, error)
	// Verify confirms the given paths are readable at the commit. A push
	// that "succeeded" but whose key files cannot be read back is a sync
	// failure, not a build failure.
	Verify(ctx context.Context, app *models.App, commitSHA string, paths []string) error
	// Tag marks a commit with a deployment tag. Best effort; failures are
	// logged, never fatal.
	Tag(ctx context.Context, app *models.App, commitSHA, tag string) error
}

// GitHubSyncService implements RepositorySyncClient on the GitHub Git Data
// API: blobs, then a tree, then a commit, then a ref update. One round of
// blob uploads per file keeps failures attributable per path.
type GitHubSyncService struct {
	client        *github.Client
	owner         string
	repoBase      string
	defaultBranch string
}

func NewGitHubSyncService(cfg *config.Config) *GitHubSyncService {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
	return &GitHubSyncService{
		client:        github.NewClient(oauth2.NewClient(context.Background(), ts)),
		owner:         cfg.GitHubOwner,
		repoBase:      cfg.GitHubRepoBase,
		defaultBranch: cfg.DefaultBranch,
	}
}

// NewGitHubSyncServiceWithClient is used by tests to point the service at
// an httptest server.
func NewGitHubSyncServiceWithClient(client *github.Client, owner, repoBase, defaultBranch string) *GitHubSyncService {
	return &GitHubSyncService{client: client, owner: owner, repoBase: repoBase, defaultBranch: defaultBranch}
}

// repoFor derives the per-app repository name.
func (s *GitHubSyncService) repoFor(app *models.App) string {
	return fmt.Sprintf("%s-%s", s.repoBase, app.Subdomain)
}

func (s *GitHubSyncService) Push(ctx context.Context, app *models.App, files []artifacts.FileArtifact, message string) (string, error) {
	log := logger.WithContext(ctx)
	repo := s.repoFor(app)

	ref, _, err := s.client.Git.GetRef(ctx, s.owner, repo, "refs/heads/"+s.defaultBranch)
	if err != nil {
		return "", &apperrors.SyncError{Message: fmt.Sprintf("reading branch %s of %s/%s: %v", s.defaultBranch, s.owner, repo, err)}
	}
	baseSHA := ref.GetObject().GetSHA()

	baseCommit, _, err := s.client.Git.GetCommit(ctx, s.owner, repo, baseSHA)
	if err != nil {
		return "", &apperrors.SyncError{Message: fmt.Sprintf("reading base commit %s: %v", baseSHA, err)}
	}

	entries := make([]*github.TreeEntry, 0, len(files))
	var failed []string
	for _, f := range files {
		blob := &github.Blob{
			Content:  github.String(f.Content),
			Encoding: github.String("utf-8"),
		}
		created, _, blobErr := s.client.Git.CreateBlob(ctx, s.owner, repo, blob)
		if blobErr != nil {
			log.Warnf("uploading blob for %s: %v", f.Path, blobErr)
			failed = append(failed, f.Path)
			continue
		}
		entries = append(entries, &github.TreeEntry{
			Path: github.String(f.Path),
			Mode: github.String("100644"),
			Type: github.String("blob"),
			SHA:  created.SHA,
		})
	}
	if len(failed) > 0 {
		return "", &apperrors.SyncError{
			Message:     fmt.Sprintf("%d of %d files failed to upload", len(failed), len(files)),
			FailedFiles: failed,
			Partial:     len(failed) < len(files),
		}
	}

	tree, _, err := s.client.Git.CreateTree(ctx, s.owner, repo, baseCommit.GetTree().GetSHA(), entries)
	if err != nil {
		return "", &apperrors.SyncError{Message: fmt.Sprintf("creating tree: %v", err)}
	}

	commit := &github.Commit{
		Message: github.String(message),
		Tree:    tree,
		Parents: []*github.Commit{{SHA: github.String(baseSHA)}},
	}
	newCommit, _, err := s.client.Git.CreateCommit(ctx, s.owner, repo, commit, nil)
	if err != nil {
		return "", &apperrors.SyncError{Message: fmt.Sprintf("creating commit: %v", err)}
	}

	ref.Object.SHA = newCommit.SHA
	if _, _, err := s.client.Git.UpdateRef(ctx, s.owner, repo, ref, false); err != nil {
		return "", &apperrors.SyncError{Message: fmt.Sprintf("advancing %s: %v", s.defaultBranch, err)}
	}

	log.Infof("pushed %d files to %s/%s@%s", len(files), s.owner, repo, newCommit.GetSHA()[:7])
	return newCommit.GetSHA(), nil
}

func (s *GitHubSyncService) Verify(ctx context.Context, app *models.App, commitSHA string, paths []string) error {
	repo := s.repoFor(app)
	opts := &github.RepositoryContentGetOptions{Ref: commitSHA}
	var missing []string
	for _, p := range paths {
		if _, _, _, err := s.client.Repositories.GetContents(ctx, s.owner, repo, p, opts); err != nil {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return &apperrors.SyncError{
			Message:     fmt.Sprintf("post-push verification failed at %s", commitSHA[:7]),
			FailedFiles: missing,
		}
	}
	return nil
}

func (s *GitHubSyncService) Tag(ctx context.Context, app *models.App, commitSHA, tag string) error {
	repo := s.repoFor(app)
	ref := &github.Reference{
		Ref:    github.String("refs/tags/" + tag),
		Object: &github.GitObject{SHA: github.String(commitSHA)},
	}
	if _, _, err := s.client.Git.CreateRef(ctx, s.owner, repo, ref); err != nil {
		return fmt.Errorf("tagging %s as %s: %w", commitSHA[:7], tag, err)
	}
	return nil
}

// DeployTag names the tag written on a completed deployment.
func DeployTag(env models.Environment, at time.Time) string {
	return fmt.Sprintf("deploy-%s-%s", env, at.UTC().Format("20060102-150405"))
}
