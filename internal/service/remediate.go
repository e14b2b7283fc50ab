package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"deploy-orchestrator-backend/internal/artifacts"
	"deploy-orchestrator-backend/internal/database/models"
	"deploy-orchestrator-backend/internal/logger"
)

// ArtifactRemediator fixes classified build failures by patching the
// attempt's artifact set and pushing a follow-up commit. The orchestrator
// builds one per attempt, closed over that attempt's snapshot; it never
// reads files from anywhere else.
type ArtifactRemediator struct {
	app   *models.App
	files []artifacts.FileArtifact
	sync  RepositorySyncClient
}

func NewArtifactRemediator(app *models.App, files []artifacts.FileArtifact, sync RepositorySyncClient) *ArtifactRemediator {
	return &ArtifactRemediator{app: app, files: files, sync: sync}
}

func (r *ArtifactRemediator) Remediate(ctx context.Context, failure FailureClass, logs string) (string, error) {
	var patched []artifacts.FileArtifact
	var err error

	switch failure.Kind {
	case FailureMissingModule:
		patched, err = r.addDependency(failure.Subject)
	case FailureLint, FailureTypeError:
		patched, err = r.suppressChecks(failure.Subject)
	default:
		return "", fmt.Errorf("no fix for failure kind %q", failure.Kind)
	}
	if err != nil {
		return "", err
	}

	logger.WithContext(ctx).Infof("pushing automatic fix for %s (%s)", failure.Kind, failure.Subject)
	sha, err := r.sync.Push(ctx, r.app, patched, fmt.Sprintf("fix: %s %s", failure.Kind, failure.Subject))
	if err != nil {
		return "", fmt.Errorf("pushing fix commit: %w", err)
	}
	// keep the remediated set as the attempt's artifact set
	r.files = applyPatches(r.files, patched)
	return sha, nil
}

// Files returns the artifact set including remediation patches, for the
// snapshot written on completion.
func (r *ArtifactRemediator) Files() []artifacts.FileArtifact {
	return r.files
}

// addDependency patches package.json to declare a module the build could
// not resolve.
func (r *ArtifactRemediator) addDependency(module string) ([]artifacts.FileArtifact, error) {
	manifest, ok := findArtifact(r.files, "package.json")
	if !ok {
		return nil, fmt.Errorf("artifact set has no package.json to patch")
	}

	var pkg map[string]json.RawMessage
	if err := json.Unmarshal([]byte(manifest.Content), &pkg); err != nil {
		return nil, fmt.Errorf("parsing package.json: %w", err)
	}

	deps := map[string]string{}
	if raw, ok := pkg["dependencies"]; ok {
		if err := json.Unmarshal(raw, &deps); err != nil {
			return nil, fmt.Errorf("parsing package.json dependencies: %w", err)
		}
	}
	if _, already := deps[module]; already {
		return nil, fmt.Errorf("module %q is already declared, fix does not apply", module)
	}
	deps[module] = "latest"

	depsRaw, err := json.Marshal(deps)
	if err != nil {
		return nil, err
	}
	pkg["dependencies"] = depsRaw
	out, err := json.MarshalIndent(pkg, "", "  ")
	if err != nil {
		return nil, err
	}

	return []artifacts.FileArtifact{artifacts.New(manifest.Path, string(out)+"\n")}, nil
}

// suppressChecks prepends suppression directives to the file the failure
// names so the build can complete; the underlying issue stays visible in
// the attempt's error detail.
func (r *ArtifactRemediator) suppressChecks(path string) ([]artifacts.FileArtifact, error) {
	target, ok := findArtifact(r.files, path)
	if !ok {
		return nil, fmt.Errorf("failure names %s but the artifact set has no such file", path)
	}
	if strings.HasPrefix(target.Content, "/* eslint-disable */") {
		return nil, fmt.Errorf("%s already carries suppressions, fix does not apply", path)
	}
	content := "/* eslint-disable */\n// @ts-nocheck\n" + target.Content
	return []artifacts.FileArtifact{artifacts.New(target.Path, content)}, nil
}

func findArtifact(files []artifacts.FileArtifact, path string) (artifacts.FileArtifact, bool) {
	for _, f := range files {
		if f.Path == path || strings.HasSuffix(f.Path, "/"+path) {
			return f, true
		}
	}
	return artifacts.FileArtifact{}, false
}

func applyPatches(files, patches []artifacts.FileArtifact) []artifacts.FileArtifact {
	out := make([]artifacts.FileArtifact, len(files))
	copy(out, files)
	for _, p := range patches {
		replaced := false
		for i := range out {
			if out[i].Path == p.Path {
				out[i] = p
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}
