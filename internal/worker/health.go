package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/geocoder89/authhub/internal/observability"
	"github.com/gin-gonic/gin"
)

type ReadinessDeps interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves /healthz, /readyz and, when prom is set, /metrics for
// the worker process.
func (s *Sweeper) HealthHandler(db ReadinessDeps, prom *observability.Prom) http.Handler {
	r := gin.New()

	r.Use(gin.Recovery())

	// liveness: process is up
	r.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// readiness: loop is running and the database answers
	r.GET("/readyz", func(c *gin.Context) {
		if !s.Ready() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
			return
		}

		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 500*time.Millisecond)
			defer cancel()

			if err := db.Ping(ctx); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_not_ready"})
				return
			}
		}

		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	if prom != nil {
		r.GET("/metrics", prom.Handler())
	}

	return r
}
