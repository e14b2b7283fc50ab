package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/logger"
)

// FailureClass is a recognized CI failure shape the monitor can remediate.
type FailureClass struct {
	Kind    string // missing_module, lint, type_error
	Subject string // module name or file path extracted from the logs
}

// Failure kinds the classifier recognizes.
const (
	FailureMissingModule = "missing_module"
	FailureLint          = "lint"
	FailureTypeError     = "type_error"
)

var (
	missingModuleRe = regexp.MustCompile(`(?:Cannot find module|Can't resolve) '([^']+)'`)
	lintRe          = regexp.MustCompile(`(?m)^(\S+\.(?:tsx?|jsx?))\n\s+\d+:\d+\s+error\s`)
	typeErrorRe     = regexp.MustCompile(`(\S+\.tsx?)\(\d+,\d+\): error TS\d+`)
)

// ClassifyFailure matches CI log text against known failure patterns.
// Returns false for failures no automatic fix applies to.
func ClassifyFailure(logs string) (FailureClass, bool) {
	if m := missingModuleRe.FindStringSubmatch(logs); m != nil {
		return FailureClass{Kind: FailureMissingModule, Subject: m[1]}, true
	}
	if m := typeErrorRe.FindStringSubmatch(logs); m != nil {
		return FailureClass{Kind: FailureTypeError, Subject: m[1]}, true
	}
	if m := lintRe.FindStringSubmatch(logs); m != nil {
		return FailureClass{Kind: FailureLint, Subject: m[1]}, true
	}
	return FailureClass{}, false
}

// Remediator applies an automatic fix for a classified build failure and
// returns the commit SHA the monitor should watch afterwards.
type Remediator interface {
	Remediate(ctx context.Context, failure FailureClass, logs string) (string, error)
}

// MonitorResult is the outcome of watching one build to completion.
type MonitorResult struct {
	Success       bool
	TimedOut      bool
	WorkflowRunID int64
	CommitSHA     string
	ErrorLogs     string
	FixAttempted  bool
}

// BuildMonitor polls CI at a fixed interval until the run for a commit
// reaches a terminal state, the max wait elapses, or the context is
// cancelled. On the first classified failure it spends its single
// remediation attempt, then re-polls with whatever budget remains.
type BuildMonitor struct {
	ci           CIStatusClient
	pollInterval time.Duration
	maxWait      time.Duration
	branch       string
}

func NewBuildMonitor(ci CIStatusClient, pollInterval, maxWait time.Duration, branch string) *BuildMonitor {
	return &BuildMonitor{ci: ci, pollInterval: pollInterval, maxWait: maxWait, branch: branch}
}

func (m *BuildMonitor) Wait(ctx context.Context, app *models.App, workflowFile, commitSHA string, remediator Remediator) (*MonitorResult, error) {
	log := logger.WithContext(ctx)
	deadline := time.Now().Add(m.maxWait)
	result := &MonitorResult{CommitSHA: commitSHA}
	missingAfterFix := 0
	retriggered := false

	for {
		if time.Now().After(deadline) {
			result.TimedOut = true
			return result, &apperrors.MonitorTimeoutError{
				Waited:  m.maxWait.String(),
				Message: fmt.Sprintf("no terminal CI signal for commit %s", shortSHA(commitSHA)),
			}
		}

		run, err := m.ci.RunForCommit(ctx, app, workflowFile, commitSHA)
		switch {
		case err == nil && run.Finished():
			result.WorkflowRunID = run.ID
			if run.Succeeded() {
				result.Success = true
				return result, nil
			}

			logs, logErr := m.ci.FailureLogs(ctx, app, run.ID)
			if logErr != nil {
				log.Warnf("fetching failure logs for run %d: %v", run.ID, logErr)
			}
			result.ErrorLogs = excerpt(logs, 4000)

			if !result.FixAttempted && remediator != nil {
				if class, ok := ClassifyFailure(logs); ok {
					log.Infof("build failed with %s (%s), attempting automatic fix", class.Kind, class.Subject)
					newSHA, fixErr := remediator.Remediate(ctx, class, logs)
					result.FixAttempted = true
					if fixErr == nil {
						commitSHA = newSHA
						result.CommitSHA = newSHA
						break // back to polling on the fix commit
					}
					log.Errorf("remediation failed: %v", fixErr)
				}
			}

			return result, &apperrors.BuildError{
				Message:       fmt.Sprintf("CI concluded %s for commit %s", run.Conclusion, shortSHA(commitSHA)),
				WorkflowRunID: run.ID,
				Logs:          result.ErrorLogs,
				FixAttempted:  result.FixAttempted,
			}
		case err == nil:
			log.Debugf("run %d still %s", run.ID, run.Status)
		case apperrors.IsNotFound(err):
			log.Debugf("no workflow run for commit %s yet", shortSHA(commitSHA))
			// fix commits land on a branch CI already built; when no run
			// materializes for one, nudge via workflow dispatch, once
			if result.FixAttempted && !retriggered {
				missingAfterFix++
				if missingAfterFix >= 2 {
					retriggered = true
					if dispatchErr := m.ci.Retrigger(ctx, app, workflowFile, m.branch); dispatchErr != nil {
						log.Warnf("re-dispatching workflow after fix commit: %v", dispatchErr)
					}
				}
			}
		default:
			// transient API errors do not abort monitoring
			log.Warnf("polling CI: %v", err)
		}

		if err := sleep(ctx, m.pollInterval); err != nil {
			return result, err
		}
	}
}

// sleep waits for the interval or until the context is cancelled, whichever
// comes first.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func shortSHA(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}

func excerpt(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[len(s)-max:]
}
