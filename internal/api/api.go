// Package api - REST API Surface
// Gin handlers tying the build pipeline, persistence, and publishing
// together behind a versioned JSON API.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dappforge/internal/auth"
	"dappforge/internal/deploy"
	"dappforge/internal/middleware"
	"dappforge/internal/pipeline"
	"dappforge/internal/publish"
	"dappforge/internal/store"
	"dappforge/internal/ws"
)

// Planner turns a freeform prompt into a structured project plan.
type Planner interface {
	Clarify(ctx context.Context, prompt string) (pipeline.ProjectPlan, error)
}

// Builder runs one build request to a terminal result.
type Builder interface {
	Run(ctx context.Context, req pipeline.BuildRequest, onProgress pipeline.ProgressFunc) pipeline.BuildResult
}

// ChainDeployer deploys compiled bytecode to a chain.
type ChainDeployer interface {
	Deploy(ctx context.Context, bytecode string) (*deploy.Deployment, error)
}

// RepoPublisher pushes generated code to a source repository.
type RepoPublisher interface {
	Publish(ctx context.Context, owner, repo string, code pipeline.GeneratedCode) (*publish.PublishResult, error)
}

// SitePublisher deploys generated frontend pages to static hosting.
type SitePublisher interface {
	Deploy(ctx context.Context, name string, code pipeline.GeneratedCode) (*publish.Site, error)
}

// Handler contains all the dependencies for API handlers.
type Handler struct {
	Store    *store.Store
	Auth     *auth.Service
	Planner  Planner
	Builder  Builder
	Compiler pipeline.Compiler
	Deployer ChainDeployer
	Git      RepoPublisher
	Hosting  SitePublisher
	Hub      *ws.Hub
}

// NewHandler creates a new handler instance.
func NewHandler(st *store.Store, authService *auth.Service, planner Planner, builder Builder, compiler pipeline.Compiler, deployer ChainDeployer, git RepoPublisher, hosting SitePublisher, hub *ws.Hub) *Handler {
	return &Handler{
		Store:    st,
		Auth:     authService,
		Planner:  planner,
		Builder:  builder,
		Compiler: compiler,
		Deployer: deployer,
		Git:      git,
		Hosting:  hosting,
		Hub:      hub,
	}
}

// StandardResponse represents a standard API response.
type StandardResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// RouterOptions tune the HTTP-level middleware.
type RouterOptions struct {
	AllowedOrigins    []string
	RequestsPerMinute int
	RateBurst         int
}

// NewRouter assembles the gin engine with the full middleware chain and
// every route the service exposes.
func NewRouter(h *Handler, opts RouterOptions) *gin.Engine {
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.Recovery())
	router.Use(middleware.Metrics())

	if opts.RequestsPerMinute > 0 {
		limiter := middleware.NewIPRateLimiter(opts.RequestsPerMinute, opts.RateBurst)
		router.Use(limiter.Middleware())
	}

	corsConfig := cors.DefaultConfig()
	if len(opts.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	} else {
		corsConfig.AllowOrigins = []string{"http://localhost:3000", "http://localhost:5173"}
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"service":   "dappforge",
			"timestamp": time.Now().UTC(),
		})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// The build ID in the URL is the capability; no token required to
	// watch a build's progress.
	router.GET("/ws/builds/:id", h.Hub.HandleWS)

	v1 := router.Group("/api/v1")
	{
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", h.Register)
			authGroup.POST("/login", h.Login)
		}

		protected := v1.Group("")
		protected.Use(h.Auth.RequireAuth())
		{
			protected.POST("/plan", h.Plan)

			protected.POST("/projects", h.CreateProject)
			protected.GET("/projects", h.ListProjects)
			protected.GET("/projects/:id", h.GetProject)
			protected.DELETE("/projects/:id", h.DeleteProject)
			protected.GET("/projects/:id/builds", h.ListBuilds)
			protected.GET("/projects/:id/deployments", h.ListDeployments)

			protected.POST("/projects/:id/build", h.Build)
			protected.POST("/projects/:id/deploy", h.DeployContract)
			protected.POST("/projects/:id/publish", h.PublishRepo)
			protected.POST("/projects/:id/host", h.HostSite)
		}
	}

	return router
}

func respondError(c *gin.Context, status int, message, code string) {
	c.JSON(status, StandardResponse{Success: false, Error: message, Code: code})
}
