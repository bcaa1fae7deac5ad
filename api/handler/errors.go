package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/botwatch/models"
)

// respondError maps err to the correct HTTP status code and writes a
// structured JSON error response.
func respondError(c *gin.Context, err error) {
	e := models.AsError(err)
	c.JSON(mapErrorToStatus(e), models.ErrorResponse{
		Success: false,
		Error:   e.ToDetail(),
	})
}

// respondCode writes an error response for a code without an underlying error.
func respondCode(c *gin.Context, code, message string) {
	respondError(c, models.NewError(code, message, nil))
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.Error) int {
	switch e.Code {
	case models.ErrCodeInvalidInput:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeNotFound, models.ErrCodeNoPosts:
		return http.StatusNotFound // 404
	case models.ErrCodeNotProfile:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNavigation, models.ErrCodeRemoteService:
		return http.StatusBadGateway // 502
	case models.ErrCodeQueueFull:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}
