package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/go-github/v57/github"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"

	"deploy-orchestrator-backend/internal/api/handlers"
	"deploy-orchestrator-backend/internal/api/middleware"
	"deploy-orchestrator-backend/internal/artifacts"
	"deploy-orchestrator-backend/internal/auth"
	"deploy-orchestrator-backend/internal/broadcast"
	"deploy-orchestrator-backend/internal/config"
	"deploy-orchestrator-backend/internal/locks"
	"deploy-orchestrator-backend/internal/logger"
	"deploy-orchestrator-backend/internal/repository"
	"deploy-orchestrator-backend/internal/service"
)

// SetupRoutes wires repositories, orchestration services and handlers into
// a gin engine. The returned dispatcher must be started by the caller and
// stopped on shutdown.
func SetupRoutes(db *gorm.DB, redisClient *redis.Client, cfg *config.Config) (*gin.Engine, *service.Dispatcher) {
	router := gin.New()

	registry := prometheus.NewRegistry()
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.CORS(cfg))
	router.Use(middleware.Metrics(registry))

	validate := validator.New()
	log := logger.New()

	// repositories
	appRepo := repository.NewAppRepository(db)
	attemptRepo := repository.NewAttemptRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)

	// orchestration services
	broadcaster := broadcast.NewRedisBroadcaster(redisClient)
	recorder := service.NewStateRecorder(attemptRepo, appRepo, broadcaster)
	syncService := service.NewGitHubSyncService(cfg)
	ciService := service.NewGitHubCIService(cfg, github.NewClient(nil).WithAuthToken(cfg.GitHubToken))
	metrics := service.NewMetrics(registry)

	orchestrator := service.NewOrchestrator(cfg, service.OrchestratorDeps{
		Apps:        appRepo,
		Snapshots:   snapshotRepo,
		Recorder:    recorder,
		Locks:       locks.NewRedisManager(redisClient, cfg.LockTTL),
		Validator:   artifacts.NewValidator(cfg.BundleSizeCeilingBytes, cfg.BundleSizeMarginBytes, log),
		Sync:        syncService,
		Monitor:     service.NewBuildMonitor(ciService, cfg.PollInterval, cfg.BuildMaxWait, cfg.DefaultBranch),
		Edge:        service.NewHTTPEdgeClient(cfg),
		Flags:       service.NewConfigFlagProvider(cfg),
		Ephemeral:   service.NewRedisEphemeralStore(redisClient, cfg.DeployTimeout*2),
		Broadcaster: broadcaster,
		Metrics:     metrics,
	})
	dispatcher := service.NewDispatcher(orchestrator, cfg.WorkerCount, cfg.WorkerCount*8, cfg.MaxRetries, metrics)

	// handlers
	healthHandler := handlers.NewHealthHandler(db, redisClient)
	appHandler := handlers.NewAppHandler(appRepo, validate)
	deploymentHandler := handlers.NewDeploymentHandler(dispatcher, appRepo, attemptRepo, snapshotRepo, validate)

	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/health/live", healthHandler.Live)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	authMiddleware := auth.NewMiddleware(cfg)

	v1 := router.Group("/api/v1")
	v1.Use(authMiddleware.RequireAuth())
	{
		apps := v1.Group("/apps")
		{
			apps.GET("", appHandler.ListApps)
			apps.POST("", appHandler.CreateApp)
			apps.GET("/:id", appHandler.GetApp)
			apps.POST("/:id/deploy", deploymentHandler.TriggerDeploy)
			apps.GET("/:id/deployments", deploymentHandler.ListDeployments)
		}

		deployments := v1.Group("/deployments")
		{
			deployments.GET("/:id", deploymentHandler.GetDeployment)
			deployments.GET("/:id/snapshot", deploymentHandler.GetSnapshot)
		}
	}

	return router, dispatcher
}
