// Package email implements the outbound send endpoint used by app clients.
package email

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mickBoat00/email-service/internal/api/response"
	"github.com/mickBoat00/email-service/internal/db/models"
	"github.com/mickBoat00/email-service/internal/middleware"
	"github.com/mickBoat00/email-service/internal/services"
)

// Sender sends email on behalf of an authenticated app.
type Sender interface {
	Send(ctx context.Context, app *models.App, req services.SendRequest) (string, error)
}

// Handler serves POST /send
type Handler struct {
	sender Sender
}

// NewHandler creates a new send handler
func NewHandler(sender Sender) *Handler {
	return &Handler{sender: sender}
}

// @Summary      Send email
// @Description  Sends an email from the authenticated app's sender address.
// @Tags         Email
// @Accept       json
// @Produce      json
// @Security     ApiKey
// @Param        body  body  services.SendRequest  true  "Recipient, subject and message"
// @Success      200  {object}  map[string]interface{}  "status, messageId, message"
// @Failure      400  {object}  map[string]interface{}  "Missing recipient, subject or message"
// @Failure      401  {object}  map[string]interface{}  "Missing API key"
// @Failure      403  {object}  map[string]interface{}  "Invalid API key"
// @Router       /send [post]
func (h *Handler) SendHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		app, ok := middleware.AuthenticatedApp(c)
		if !ok {
			response.Error(c, services.ErrUnauthorized)
			return
		}

		var req services.SendRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.BadRequest(c, "Invalid JSON body")
			return
		}

		messageID, err := h.sender.Send(c.Request.Context(), app, req)
		if err != nil {
			response.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "success",
			"messageId": messageID,
			"message":   "Email request accepted for " + req.Recipient,
		})
	}
}
