package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"deploy-orchestrator-backend/internal/artifacts"
	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/repository"
	"deploy-orchestrator-backend/internal/service"
)

// Dispatcher is the slice of the worker pool the handler needs.
type Dispatcher interface {
	Enqueue(req service.DeployRequest) error
}

// DeploymentHandler handles HTTP requests for deployment operations
type DeploymentHandler struct {
	dispatcher Dispatcher
	apps       repository.AppRepositoryInterface
	attempts   repository.AttemptRepositoryInterface
	snapshots  repository.SnapshotRepositoryInterface
	validate   *validator.Validate
}

// NewDeploymentHandler creates a new deployment handler
func NewDeploymentHandler(dispatcher Dispatcher, apps repository.AppRepositoryInterface, attempts repository.AttemptRepositoryInterface, snapshots repository.SnapshotRepositoryInterface, validate *validator.Validate) *DeploymentHandler {
	return &DeploymentHandler{
		dispatcher: dispatcher,
		apps:       apps,
		attempts:   attempts,
		snapshots:  snapshots,
		validate:   validate,
	}
}

// TriggerDeployRequest is the payload for starting a deployment. The
// artifact set travels in the request; the server never re-reads files
// after accepting it.
type TriggerDeployRequest struct {
	Environment string                   `json:"environment" validate:"required,oneof=preview staging production"`
	Files       []artifacts.FileArtifact `json:"files" validate:"required,min=1,dive"`
}

// TriggerDeploy handles POST /apps/:id/deploy
// @Summary Trigger a deployment
// @Description Queue a deployment of the supplied artifact set to an environment. Returns 202 once the request is accepted; progress is observable via the deployment endpoints and the event channel.
// @Tags deployments
// @Accept json
// @Produce json
// @Param id path string true "App ID (UUID)"
// @Param request body TriggerDeployRequest true "Environment and artifact set"
// @Success 202 {object} map[string]interface{} "Deployment accepted"
// @Failure 400 {object} ErrorResponse "Invalid payload"
// @Failure 404 {object} ErrorResponse "App not found"
// @Failure 409 {object} ErrorResponse "A deployment is already in progress"
// @Failure 503 {object} ErrorResponse "Queue is full"
// @Security BearerAuth
// @Router /apps/{id}/deploy [post]
func (h *DeploymentHandler) TriggerDeploy(c *gin.Context) {
	appID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app ID"})
		return
	}

	var req TriggerDeployRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	app, err := h.apps.GetByID(appID)
	if err != nil {
		if errors.Is(err, apperrors.ErrAppNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// fast rejection for duplicates; the lock inside the orchestrator is
	// still the authority
	if active, err := h.attempts.GetActiveByApp(app.ID); err == nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "a deployment is already in progress for this app",
			"attempt_id": active.ID,
		})
		return
	}

	err = h.dispatcher.Enqueue(service.DeployRequest{
		AppID:       app.ID,
		Environment: models.Environment(req.Environment),
		Files:       artifacts.Normalize(req.Files),
	})
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"app_id":      app.ID,
		"environment": req.Environment,
		"status":      "queued",
	})
}

// GetDeployment handles GET /deployments/:id
// @Summary Get a deployment attempt
// @Description Get one deployment attempt with its status audit trail
// @Tags deployments
// @Produce json
// @Param id path string true "Attempt ID (UUID)"
// @Success 200 {object} models.DeploymentAttempt "Attempt found"
// @Failure 400 {object} ErrorResponse "Invalid attempt ID"
// @Failure 404 {object} ErrorResponse "Attempt not found"
// @Security BearerAuth
// @Router /deployments/{id} [get]
func (h *DeploymentHandler) GetDeployment(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	attempt, err := h.attempts.GetByID(id)
	if err != nil {
		if errors.Is(err, apperrors.ErrAttemptNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	transitions, err := h.attempts.GetTransitions(id)
	if err == nil {
		attempt.Transitions = transitions
	}
	c.JSON(http.StatusOK, attempt)
}

// ListDeployments handles GET /apps/:id/deployments
// @Summary List deployment attempts for an app
// @Description List an app's deployment attempts, newest first
// @Tags deployments
// @Produce json
// @Param id path string true "App ID (UUID)"
// @Param limit query int false "Page size (default 50)"
// @Param offset query int false "Offset (default 0)"
// @Success 200 {object} map[string]interface{} "Attempts page"
// @Failure 400 {object} ErrorResponse "Invalid app ID"
// @Security BearerAuth
// @Router /apps/{id}/deployments [get]
func (h *DeploymentHandler) ListDeployments(c *gin.Context) {
	appID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app ID"})
		return
	}

	limit, offset := pagination(c)
	attempts, total, err := h.attempts.GetByAppID(appID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deployments": attempts, "total": total, "limit": limit, "offset": offset})
}

// GetSnapshot handles GET /deployments/:id/snapshot
// @Summary Get a deployment snapshot
// @Description Get the file manifest recorded for a completed deployment
// @Tags deployments
// @Produce json
// @Param id path string true "Attempt ID (UUID)"
// @Success 200 {object} models.DeploymentSnapshot "Snapshot found"
// @Failure 404 {object} ErrorResponse "Snapshot not found"
// @Security BearerAuth
// @Router /deployments/{id}/snapshot [get]
func (h *DeploymentHandler) GetSnapshot(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	snapshot, err := h.snapshots.GetByAttemptID(id)
	if err != nil {
		if errors.Is(err, apperrors.ErrSnapshotNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, snapshot)
}
