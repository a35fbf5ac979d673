package admin

import (
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"
)

type appIDRequest struct {
	ID string `json:"id"`
}

// appID reads the target app id from the "id" query parameter or, when that
// is absent, from a JSON body {"id": "..."}. An empty body is not an error.
func appID(c *gin.Context) (string, error) {
	if id := strings.TrimSpace(c.Query("id")); id != "" {
		return id, nil
	}
	var req appIDRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return req.ID, nil
}
