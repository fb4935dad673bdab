package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse is the standard API response envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, APIResponse{Success: false, Error: message})
}

func respondBadRequest(c *gin.Context, message string) { respondError(c, http.StatusBadRequest, message) }
func respondNotFound(c *gin.Context, message string)   { respondError(c, http.StatusNotFound, message) }
func respondInternalError(c *gin.Context, message string) {
	respondError(c, http.StatusInternalServerError, message)
}

// statusForKind maps a kernelerr.Kind to the HTTP status the REST surface
// returns for it (§7 "Error mapping at the outer boundary").
func statusForKind(kind string) int {
	switch kind {
	case "NOT_FOUND":
		return http.StatusNotFound
	case "INVALID_ARGUMENT", "OUT_OF_RANGE":
		return http.StatusBadRequest
	case "FAILED_PRECONDITION":
		return http.StatusConflict
	case "UNAVAILABLE":
		return http.StatusServiceUnavailable
	case "DEADLINE_EXCEEDED":
		return http.StatusGatewayTimeout
	case "ALREADY_EXISTS":
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
