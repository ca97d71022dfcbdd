package http

import (
	"github.com/geocoder89/authhub/internal/config"
	"github.com/geocoder89/authhub/internal/http/handlers"
	"github.com/geocoder89/authhub/internal/http/middlewares"
	"github.com/geocoder89/authhub/internal/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// RouterDeps is everything the API surface needs. Prom and Checks may be nil.
type RouterDeps struct {
	Config  config.Config
	Service handlers.AuthService
	Tokens  middlewares.TokenVerifier
	Users   middlewares.UserReader
	Prom    *observability.Prom
	Checks  map[string]handlers.Pinger
}

func NewRouter(d RouterDeps) *gin.Engine {
	if d.Config.Env != "dev" && gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware("authhub-api"))
	r.Use(middlewares.RequestID())
	r.Use(middlewares.RequestLogger())
	r.Use(middlewares.SecurityHeaders())
	r.Use(middlewares.CORSMiddleware(d.Config.CORSOrigins))
	r.Use(middlewares.MaxBodyBytes(d.Config.MaxBodyBytes))

	if d.Prom != nil {
		r.Use(d.Prom.GinHandleMiddleware())
		r.GET("/metrics", d.Prom.Handler())
	}

	health := handlers.NewHealthHandler(d.Checks)
	r.GET("/healthz", health.Healthz)
	r.GET("/readyz", health.Readyz)

	r.GET("/docs", handlers.SwaggerUI)
	r.GET("/docs/openapi.yaml", handlers.OpenAPISpec)

	authH := handlers.NewAuthHandler(d.Service, nil)
	gate := middlewares.NewAuthMiddleware(d.Tokens, d.Users)

	api := r.Group("/")
	api.Use(middlewares.RequireJSON())

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/register", authH.Register)
		authGroup.POST("/login", authH.Login)
		authGroup.POST("/logout", gate.RequireAuth(), authH.Logout)
		authGroup.GET("/me", gate.RequireAuth(), authH.Me)

		authGroup.POST("/password-reset/request", authH.RequestPasswordReset)
		authGroup.POST("/password-reset/confirm", authH.ConfirmPasswordReset)
	}

	reset := api.Group("/password-reset")
	{
		reset.POST("/request", authH.RequestPasswordReset)
		reset.POST("/confirm", authH.ConfirmPasswordReset)
	}

	return r
}
