package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/cuongbtq/cv-forge/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Options configures routes beyond the handlers themselves
type Options struct {
	// ArtifactRoot is served under MediaPrefix when set.
	ArtifactRoot   string
	MediaPrefix    string
	Health         map[string]HealthCheck
	// TrustedProxies are the only peers whose X-Forwarded-For is honoured.
	TrustedProxies []string
}

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies, opts Options) *gin.Engine {
	r := gin.New()

	// Guest trials are keyed by client IP, so forwarded headers count only from known proxies.
	if err := r.SetTrustedProxies(opts.TrustedProxies); err != nil {
		deps.Logger.Error("Invalid trusted proxies, using peer address only", slog.Any("error", err))
		_ = r.SetTrustedProxies(nil)
	}

	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))

	r.GET("/health", healthHandler(opts.Health))

	if opts.ArtifactRoot != "" {
		prefix := opts.MediaPrefix
		if prefix == "" {
			prefix = "/media"
		}
		r.Static(prefix, opts.ArtifactRoot)
	}

	cvHandler := handler.NewCVHandler(deps)
	jobHandler := handler.NewJobHandler(deps)
	accountHandler := handler.NewAccountHandler(deps)

	v1 := r.Group("/api/v1")
	{
		cv := v1.Group("/cv")
		{
			// POST /api/v1/cv/generate - Queue an AI-authored résumé
			cv.POST("/generate", cvHandler.Generate)

			// POST /api/v1/cv/import - Parse an uploaded PDF and queue a rebuilt copy
			cv.POST("/import", cvHandler.Import)

			// GET /api/v1/cv/:job_id/data - Load a job's résumé data for editing
			cv.GET("/:job_id/data", cvHandler.GetData)

			// POST /api/v1/cv/:job_id/rerender - Queue edited data for rendering
			cv.POST("/:job_id/rerender", cvHandler.Rerender)
		}

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs/:job_id - Poll job status
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/cancel - Cancel a job
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)
		}

		v1.GET("/history", accountHandler.History)
		v1.GET("/history/export", accountHandler.ExportHistory)
		v1.GET("/stats", accountHandler.Stats)
		v1.GET("/templates", accountHandler.Templates)
	}

	return r
}

func healthHandler(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		deps := gin.H{}
		for name, check := range checks {
			if err := check(ctx); err != nil {
				deps[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			deps[name] = "ok"
		}

		state := "healthy"
		if status != http.StatusOK {
			state = "unhealthy"
		}
		c.JSON(status, gin.H{
			"status":       state,
			"service":      "cv-api-service",
			"dependencies": deps,
		})
	}
}
