// Package response writes service results and errors as JSON in the shape the
// email service clients expect: {error, message?, details?} for failures.
package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mickBoat00/email-service/internal/services"
)

// StatusFor maps a service error kind to an HTTP status code
func StatusFor(kind services.Kind) int {
	switch kind {
	case services.KindValidation:
		return http.StatusBadRequest
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindConflict:
		return http.StatusConflict
	case services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Error aborts the request with the JSON body for err. Errors that did not come
// from the services layer are reported as a generic 500.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)

	var svcErr *services.Error
	if !errors.As(err, &svcErr) {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "Internal server error",
			"details": err.Error(),
		})
		return
	}

	body := gin.H{"error": svcErr.Code}
	if svcErr.Code == "" {
		body["error"] = http.StatusText(StatusFor(svcErr.Kind))
	}
	if svcErr.Message != "" {
		body["message"] = svcErr.Message
	}
	if svcErr.Details != "" {
		body["details"] = svcErr.Details
	}
	c.AbortWithStatusJSON(StatusFor(svcErr.Kind), body)
}

// BadRequest aborts with a 400 for malformed request bodies.
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": message})
}
