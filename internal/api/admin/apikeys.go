package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mickBoat00/email-service/internal/api/response"
	"github.com/mickBoat00/email-service/internal/db/models"
)

// existingKeyHint is returned when a key exists but its value cannot be shown.
const existingKeyHint = "The key value is only shown when it is created. Revoke the key and create a new one to obtain a new value."

// CreateAPIKeyResponse is returned by POST /apikeys
type CreateAPIKeyResponse struct {
	Message         string `json:"message"`
	APIKey          string `json:"apiKey,omitempty"` // Only returned once during creation
	APIGatewayKeyID string `json:"apiGatewayKeyId"`
	Status          string `json:"status"`
	AppName         string `json:"appName"`
	Hint            string `json:"hint,omitempty"`
}

// @Summary      Create API key
// @Description  Issues an API key for a verified app. Returns 201 with the key on first issuance, 200 with key metadata if the app already holds a key.
// @Tags         API Keys
// @Accept       json
// @Produce      json
// @Param        body  body  appIDRequest  true  "App ID"
// @Success      201  {object}  CreateAPIKeyResponse  "Key created"
// @Success      200  {object}  CreateAPIKeyResponse  "Key already exists"
// @Failure      400  {object}  map[string]interface{}  "Missing id or sender email not verified"
// @Failure      404  {object}  map[string]interface{}  "App not found"
// @Failure      409  {object}  map[string]interface{}  "Concurrent provisioning"
// @Failure      500  {object}  map[string]interface{}  "Key provider failure"
// @Router       /apikeys [post]
func (h *AppHandlers) CreateAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := appID(c)
		if err != nil {
			response.BadRequest(c, "Invalid JSON body")
			return
		}

		result, err := h.apps.ProvisionKey(c.Request.Context(), id)
		if err != nil {
			response.Error(c, err)
			return
		}

		resp := CreateAPIKeyResponse{
			APIKey:          result.APIKey,
			APIGatewayKeyID: result.ExternalKeyID,
			Status:          string(models.StatusActive),
			AppName:         result.App.AppName,
		}
		if result.Created {
			resp.Message = "API key created successfully"
			c.JSON(http.StatusCreated, resp)
			return
		}

		resp.Message = "API key already exists"
		if resp.APIKey == "" {
			resp.Hint = existingKeyHint
		}
		c.JSON(http.StatusOK, resp)
	}
}

// @Summary      Delete API key
// @Description  Revokes the app's API key and marks the app inactive.
// @Tags         API Keys
// @Produce      json
// @Param        id  query  string  false  "App ID (or JSON body {id})"
// @Success      200  {object}  map[string]interface{}  "message, appName, status"
// @Failure      404  {object}  map[string]interface{}  "App not found or no key"
// @Failure      500  {object}  map[string]interface{}  "Key provider failure"
// @Router       /apikeys [delete]
func (h *AppHandlers) DeleteAPIKeyHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := appID(c)
		if err != nil {
			response.BadRequest(c, "Invalid JSON body")
			return
		}

		app, err := h.apps.RevokeKey(c.Request.Context(), id)
		if err != nil {
			response.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "API key deleted successfully",
			"appName": app.AppName,
			"status":  string(app.Status),
		})
	}
}
