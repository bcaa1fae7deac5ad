package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/botwatch/models"
	"github.com/use-agent/botwatch/state"
)

// AnalysisQueue accepts classification requests.
type AnalysisQueue interface {
	Enqueue(profile *models.ProfileRecord, apiURL string) (*models.AnalysisState, error)
	Depth() int
}

// Analyze returns a handler for POST /api/v1/analyze. The profile comes
// inline or from a finished scrape job.
func Analyze(q AnalysisQueue, store *state.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondCode(c, models.ErrCodeInvalidInput, err.Error())
			return
		}

		profile := req.Profile
		switch {
		case profile != nil && req.ScrapeID != "":
			respondCode(c, models.ErrCodeInvalidInput, "provide either profile or scrape_id, not both")
			return
		case req.ScrapeID != "":
			job, ok := store.Job(req.ScrapeID)
			if !ok {
				respondCode(c, models.ErrCodeNotFound, "scrape job not found")
				return
			}
			if job.Profile == nil {
				respondCode(c, models.ErrCodeInvalidInput, "scrape job has no collected profile (status "+job.Status+")")
				return
			}
			profile = job.Profile
		case profile == nil:
			respondCode(c, models.ErrCodeInvalidInput, "profile or scrape_id is required")
			return
		}

		st, err := q.Enqueue(profile, req.APIURL)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, models.AnalyzeAccepted{ID: st.ID, Status: st.Status})
	}
}

// GetAnalysis returns a handler for GET /api/v1/analysis/:id.
func GetAnalysis(store *state.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, ok := store.Analysis(c.Param("id"))
		if !ok {
			respondCode(c, models.ErrCodeNotFound, "analysis not found")
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

// Stats returns a handler for GET /api/v1/stats.
func Stats(store *state.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, store.Stats())
	}
}
