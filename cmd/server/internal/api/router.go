package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/houzhh15/spm-agent/cmd/server/internal/apperr"
	"github.com/houzhh15/spm-agent/cmd/server/internal/middleware"
)

// RouterDeps 路由依赖
type RouterDeps struct {
	Env            string
	AllowedOrigins []string
	Logger         *slog.Logger
	Verifier       middleware.TokenVerifier
	Generator      RoadmapGenerator
	Projects       ProjectService
	Profiles       ProfileService
	DB             Pinger
}

// NewRouter 注册所有路由
func NewRouter(deps RouterDeps) *gin.Engine {
	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log.With("component", "http")))
	r.Use(middleware.CORS(deps.AllowedOrigins))

	startTime := time.Now()
	r.GET("/", healthCheckHandler(deps.Env, startTime))
	r.GET("/api/health", apiHealthHandler)
	r.GET("/api/health/ready", readinessCheckHandler(deps.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := r.Group("/api", middleware.RequireAuth(deps.Verifier, log.With("component", "auth")))

	profiles := NewProfileHandler(deps.Profiles)
	authed.GET("/auth/me", profiles.HandleGetMe)
	authed.PUT("/auth/me", profiles.HandleUpdateMe)
	authed.PATCH("/auth/me", profiles.HandleUpdateMe)

	projects := NewProjectHandler(deps.Generator, deps.Projects, log.With("component", "projects"))
	authed.POST("/projects", projects.HandleCreateProject)
	authed.POST("/projects/stream", projects.HandleCreateProjectStream)
	authed.GET("/projects", projects.HandleListProjects)
	authed.GET("/projects/deadlines", projects.HandleUpcomingDeadlines)
	authed.GET("/projects/:id", projects.HandleGetProject)
	authed.PATCH("/projects/:id/tasks/:task_id", projects.HandleUpdateTaskStatus)
	authed.DELETE("/projects/:id", projects.HandleDeleteProject)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, middleware.ErrorBody(apperr.NotFound("Route")))
	})
	return r
}
