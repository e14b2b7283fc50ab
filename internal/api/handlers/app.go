package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"deploy-orchestrator-backend/internal/database/models"
	apperrors "deploy-orchestrator-backend/internal/errors"
	"deploy-orchestrator-backend/internal/repository"
)

// AppHandler handles HTTP requests for app operations
type AppHandler struct {
	apps     repository.AppRepositoryInterface
	validate *validator.Validate
}

// NewAppHandler creates a new app handler
func NewAppHandler(apps repository.AppRepositoryInterface, validate *validator.Validate) *AppHandler {
	return &AppHandler{apps: apps, validate: validate}
}

// CreateAppRequest is the payload for registering an app.
type CreateAppRequest struct {
	Name      string `json:"name" validate:"required,min=1,max=100"`
	Subdomain string `json:"subdomain" validate:"required,hostname_rfc1123,max=63"`
}

// CreateApp handles POST /apps
// @Summary Register an app
// @Description Register a new app with its platform subdomain
// @Tags apps
// @Accept json
// @Produce json
// @Param app body CreateAppRequest true "App to register"
// @Success 201 {object} models.App "App created"
// @Failure 400 {object} ErrorResponse "Invalid payload"
// @Failure 409 {object} ErrorResponse "Subdomain already taken"
// @Security BearerAuth
// @Router /apps [post]
func (h *AppHandler) CreateApp(c *gin.Context) {
	var req CreateAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.apps.GetBySubdomain(req.Subdomain); err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "subdomain is already taken"})
		return
	}

	app := &models.App{Name: req.Name, Subdomain: req.Subdomain}
	if err := h.apps.Create(app); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, app)
}

// GetApp handles GET /apps/:id
// @Summary Get an app
// @Description Get an app with its deployment rollup and per-environment URLs
// @Tags apps
// @Produce json
// @Param id path string true "App ID (UUID)"
// @Success 200 {object} models.App "App found"
// @Failure 400 {object} ErrorResponse "Invalid app ID"
// @Failure 404 {object} ErrorResponse "App not found"
// @Security BearerAuth
// @Router /apps/{id} [get]
func (h *AppHandler) GetApp(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid app ID"})
		return
	}

	app, err := h.apps.GetByID(id)
	if err != nil {
		if errors.Is(err, apperrors.ErrAppNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, app)
}

// ListApps handles GET /apps
// @Summary List apps
// @Description List registered apps with pagination
// @Tags apps
// @Produce json
// @Param limit query int false "Page size (default 50)"
// @Param offset query int false "Offset (default 0)"
// @Success 200 {object} map[string]interface{} "Apps page"
// @Security BearerAuth
// @Router /apps [get]
func (h *AppHandler) ListApps(c *gin.Context) {
	limit, offset := pagination(c)
	apps, total, err := h.apps.GetAll(limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"apps": apps, "total": total, "limit": limit, "offset": offset})
}

func pagination(c *gin.Context) (int, int) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 200 {
		limit = 50
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
