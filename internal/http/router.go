package http

import (
	"time"

	"github.com/geocoder89/devconnector/internal/config"
	"github.com/geocoder89/devconnector/internal/http/handlers"
	"github.com/geocoder89/devconnector/internal/http/middlewares"
	"github.com/geocoder89/devconnector/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const maxBodyBytes = 1 << 20

type UserStore interface {
	handlers.UserReader
	handlers.UserWriter
	handlers.UserDeleter
}

type TokenService interface {
	handlers.TokenIssuer
	middlewares.TokenVerifier
}

// Deps is everything the router needs; main builds it once.
type Deps struct {
	Config   config.Config
	Users    UserStore
	Profiles handlers.ProfilesRepository
	Hasher   handlers.PasswordHasher
	Tokens   TokenService
	Pool     middlewares.Runner
	GitHub   handlers.RepoLister
	Checks   map[string]handlers.Pinger
	Health   *handlers.HealthHandler // built from Checks when nil

	// optional
	Prom     *observability.Prom
	Gatherer prometheus.Gatherer
}

func NewRouter(deps Deps) *gin.Engine {
	cfg := deps.Config

	if cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("devconnector"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(cfg.CORSAllowedOrigins))

	var metrics handlers.AuthMetrics
	if deps.Prom != nil {
		r.Use(deps.Prom.GinHandleMiddleware())
		metrics = deps.Prom
	}

	// operational
	h := deps.Health
	if h == nil {
		h = handlers.NewHealthHandler(deps.Checks)
	}
	r.GET("/healthz", h.Healthz)
	r.GET("/readyz", h.Readyz)
	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	authHandler := handlers.NewAuthHandler(deps.Users, deps.Users, deps.Hasher, deps.Tokens, metrics, cfg)
	profileHandler := handlers.NewProfileHandler(deps.Profiles, deps.Users, deps.GitHub, cfg)

	requireAuth := middlewares.NewAuthMiddleware(deps.Tokens, deps.Pool).RequireAuth()

	limit := func(c *gin.Context) { c.Next() }
	if cfg.RateLimitPerMinute > 0 {
		limit = middlewares.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute).RateLimiterMiddleware(middlewares.KeyByIP)
	}

	api := r.Group("/api", middlewares.MaxBodyBytes(maxBodyBytes), middlewares.RequireJSON())

	api.POST("/users", limit, authHandler.Register)
	api.POST("/auth", limit, authHandler.Login)
	api.GET("/auth", requireAuth, authHandler.Me)

	profiles := api.Group("/profile")
	profiles.GET("", profileHandler.List)
	profiles.GET("/user/:user_id", profileHandler.GetByUserID)
	profiles.GET("/github/:username", profileHandler.GitHubRepos)

	profiles.GET("/me", requireAuth, profileHandler.Me)
	profiles.POST("", requireAuth, profileHandler.Upsert)
	profiles.DELETE("", requireAuth, profileHandler.Delete)
	profiles.PUT("/experience", requireAuth, profileHandler.AddExperience)
	profiles.DELETE("/experience/:exp_id", requireAuth, profileHandler.RemoveExperience)
	profiles.PUT("/education", requireAuth, profileHandler.AddEducation)
	profiles.DELETE("/education/:edu_id", requireAuth, profileHandler.RemoveEducation)

	return r
}
