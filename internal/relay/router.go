package relay

import (
	"net/http"
	"time"

	"careers-relay/internal/metrics"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RouterDependencies struct {
	Handler        *Handler
	Paths          []string
	AllowedOrigins []string
	MaxBodyBytes   int64
	Metrics        *metrics.Relay
	MetricsHandler http.Handler
	HealthHandler  http.Handler
	Log            *zap.Logger
}

// NewRouter serves the relay routes plus the operational endpoints.
func NewRouter(deps RouterDependencies) *gin.Engine {
	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.NoMethod(MethodNotAllowed)

	router.Use(Recovery(deps.Log, deps.Metrics))
	router.Use(RequestLogger(deps.Log))
	router.Use(gincors.New(corsConfig(deps.AllowedOrigins)))

	submit := router.Group("/")
	if deps.MaxBodyBytes > 0 {
		submit.Use(BodySizeLimit(deps.MaxBodyBytes))
	}
	for _, path := range deps.Paths {
		submit.POST(path, deps.Handler.Submit)
	}

	if deps.HealthHandler != nil {
		router.GET("/live", gin.WrapH(deps.HealthHandler))
		router.GET("/ready", gin.WrapH(deps.HealthHandler))
	}
	if deps.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(deps.MetricsHandler))
	}
	return router
}

func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowMethods: []string{http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{
			"Content-Length",
			"X-Submission-Id",
		},
		MaxAge: 12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	for _, origin := range origins {
		if origin == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	return cfg
}
