package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"deploy-orchestrator-backend/internal/artifacts"
	apperrors "deploy-orchestrator-backend/internal/errors"
)

func newGitHubTestClient(t *testing.T, handler http.Handler) (*github.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := github.NewClient(nil)
	base, err := url.Parse(server.URL + "/")
	require.NoError(t, err)
	client.BaseURL = base
	return client, server
}

func TestGitHubSyncPush(t *testing.T) {
	var blobCount, treeCreated, commitCreated, refUpdated int

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme-inc/apps-acme/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ref":"refs/heads/main","object":{"sha":"base1234567","type":"commit"}}`)
	})
	mux.HandleFunc("GET /repos/acme-inc/apps-acme/git/commits/base1234567", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sha":"base1234567","tree":{"sha":"basetree"}}`)
	})
	mux.HandleFunc("POST /repos/acme-inc/apps-acme/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		blobCount++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"sha":"blob%d"}`, blobCount)
	})
	mux.HandleFunc("POST /repos/acme-inc/apps-acme/git/trees", func(w http.ResponseWriter, r *http.Request) {
		treeCreated++
		var body struct {
			Tree []map[string]any `json:"tree"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Len(t, body.Tree, 2)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sha":"newtree"}`)
	})
	mux.HandleFunc("POST /repos/acme-inc/apps-acme/git/commits", func(w http.ResponseWriter, r *http.Request) {
		commitCreated++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"sha":"newcommit99"}`)
	})
	mux.HandleFunc("PATCH /repos/acme-inc/apps-acme/git/refs/heads/main", func(w http.ResponseWriter, r *http.Request) {
		refUpdated++
		fmt.Fprint(w, `{"ref":"refs/heads/main","object":{"sha":"newcommit99","type":"commit"}}`)
	})

	client, _ := newGitHubTestClient(t, mux)
	svc := NewGitHubSyncServiceWithClient(client, "acme-inc", "apps", "main")

	sha, err := svc.Push(context.Background(), testApp(), []artifacts.FileArtifact{
		artifacts.New("package.json", `{"name":"acme"}`),
		artifacts.New("src/App.tsx", "export const App = () => null;"),
	}, "deploy to production")

	require.NoError(t, err)
	assert.Equal(t, "newcommit99", sha)
	assert.Equal(t, 2, blobCount)
	assert.Equal(t, 1, treeCreated)
	assert.Equal(t, 1, commitCreated)
	assert.Equal(t, 1, refUpdated)
}

func TestGitHubSyncPushBlobFailureIsPartial(t *testing.T) {
	var blobCount int

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme-inc/apps-acme/git/ref/heads/main", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"ref":"refs/heads/main","object":{"sha":"base1234567","type":"commit"}}`)
	})
	mux.HandleFunc("GET /repos/acme-inc/apps-acme/git/commits/base1234567", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"sha":"base1234567","tree":{"sha":"basetree"}}`)
	})
	mux.HandleFunc("POST /repos/acme-inc/apps-acme/git/blobs", func(w http.ResponseWriter, r *http.Request) {
		blobCount++
		if blobCount == 2 {
			w.WriteHeader(http.StatusUnprocessableEntity)
			fmt.Fprint(w, `{"message":"content too large"}`)
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"sha":"blob%d"}`, blobCount)
	})

	client, _ := newGitHubTestClient(t, mux)
	svc := NewGitHubSyncServiceWithClient(client, "acme-inc", "apps", "main")

	_, err := svc.Push(context.Background(), testApp(), []artifacts.FileArtifact{
		artifacts.New("src/a.ts", "export {};"),
		artifacts.New("src/b.ts", "export {};"),
	}, "deploy")

	require.Error(t, err)
	var syncErr *apperrors.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.True(t, syncErr.Partial)
	assert.Equal(t, []string{"src/b.ts"}, syncErr.FailedFiles)
}

func TestGitHubSyncVerifyReportsMissingFiles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme-inc/apps-acme/contents/package.json", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "newcommit99", r.URL.Query().Get("ref"))
		fmt.Fprint(w, `{"type":"file","name":"package.json","path":"package.json"}`)
	})
	mux.HandleFunc("GET /repos/acme-inc/apps-acme/contents/src/main.tsx", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message":"Not Found"}`)
	})

	client, _ := newGitHubTestClient(t, mux)
	svc := NewGitHubSyncServiceWithClient(client, "acme-inc", "apps", "main")

	err := svc.Verify(context.Background(), testApp(), "newcommit99", []string{"package.json", "src/main.tsx"})

	require.Error(t, err)
	var syncErr *apperrors.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, []string{"src/main.tsx"}, syncErr.FailedFiles)
}

func TestGitHubCIRunForCommit(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme-inc/apps-acme/actions/workflows/deploy.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "abc1234", r.URL.Query().Get("head_sha"))
		fmt.Fprint(w, `{"total_count":1,"workflow_runs":[{"id":77,"status":"completed","conclusion":"success","head_sha":"abc1234"}]}`)
	})

	client, _ := newGitHubTestClient(t, mux)
	svc := NewGitHubCIServiceWithClient(client, http.DefaultClient, "acme-inc", "apps")

	run, err := svc.RunForCommit(context.Background(), testApp(), "deploy.yml", "abc1234")

	require.NoError(t, err)
	assert.Equal(t, int64(77), run.ID)
	assert.True(t, run.Succeeded())
}

func TestGitHubCIRunForCommitNotYetStarted(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme-inc/apps-acme/actions/workflows/deploy.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count":0,"workflow_runs":[]}`)
	})

	client, _ := newGitHubTestClient(t, mux)
	svc := NewGitHubCIServiceWithClient(client, http.DefaultClient, "acme-inc", "apps")

	_, err := svc.RunForCommit(context.Background(), testApp(), "deploy.yml", "abc1234")

	require.Error(t, err)
	assert.True(t, apperrors.IsNotFound(err))
}

func TestResolveWorkflowFile(t *testing.T) {
	files := []artifacts.FileArtifact{
		artifacts.New("src/App.tsx", "export const App = () => null;"),
		artifacts.New(".github/workflows/build-and-deploy.yml", "name: Build and Deploy\non:\n  push:\n    branches: [main]\n"),
	}

	assert.Equal(t, "build-and-deploy.yml", ResolveWorkflowFile(files, "deploy.yml"))
}

func TestResolveWorkflowFileFallsBack(t *testing.T) {
	noWorkflow := []artifacts.FileArtifact{artifacts.New("src/App.tsx", "export const App = () => null;")}
	assert.Equal(t, "deploy.yml", ResolveWorkflowFile(noWorkflow, "deploy.yml"))

	badYAML := []artifacts.FileArtifact{artifacts.New(".github/workflows/x.yml", "{{not yaml")}
	assert.Equal(t, "deploy.yml", ResolveWorkflowFile(badYAML, "deploy.yml"))
}

func TestDeployTagFormat(t *testing.T) {
	at, err := time.Parse(time.RFC3339, "2025-03-04T05:06:07Z")
	require.NoError(t, err)

	assert.Equal(t, "deploy-production-20250304-050607", DeployTag("production", at))
}
