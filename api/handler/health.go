package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/botwatch/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// StatusChecker reports the reachability of the classification service.
type StatusChecker interface {
	Status(ctx context.Context) string
}

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and degrades status when > 80% of pages are
// active or the classifier is unreachable.
func Health(sc ProfileScraper, q AnalysisQueue, cl StatusChecker, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := sc.Stats()

		classifierStatus := "unknown"
		if cl != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			classifierStatus = cl.Status(ctx)
			cancel()
		}

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}
		if classifierStatus == "unreachable" {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			PoolStats:  stats,
			QueueDepth: q.Depth(),
			Classifier: classifierStatus,
			Version:    Version,
		})
	}
}
