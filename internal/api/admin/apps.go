// Package admin implements the app and API key management handlers. These
// routes carry no authentication of their own; they are expected to sit behind
// the deployment's gateway or network policy.
package admin

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mickBoat00/email-service/internal/api/response"
	"github.com/mickBoat00/email-service/internal/db/models"
	"github.com/mickBoat00/email-service/internal/services"
)

// maskedKeyValue stands in for the key in listings; the plaintext is never stored.
const maskedKeyValue = "*****"

// AppManager is the subset of the app service used by the admin handlers.
type AppManager interface {
	Register(ctx context.Context, req services.RegisterRequest) (*models.App, error)
	List(ctx context.Context) ([]*models.App, error)
	Delete(ctx context.Context, id string) (*models.App, error)
	ProvisionKey(ctx context.Context, id string) (*services.KeyResult, error)
	RevokeKey(ctx context.Context, id string) (*models.App, error)
}

// AppHandlers handles app management endpoints
type AppHandlers struct {
	apps AppManager
}

// NewAppHandlers creates a new AppHandlers instance
func NewAppHandlers(apps AppManager) *AppHandlers {
	return &AppHandlers{apps: apps}
}

// RegisterAppResponse is returned by POST /apps
type RegisterAppResponse struct {
	ID          string `json:"id"`
	AppName     string `json:"appName"`
	SenderEmail string `json:"senderEmail"`
	Status      string `json:"status"`
	Message     string `json:"message"`
}

// MaskedKey indicates an active key without revealing it
type MaskedKey struct {
	Value        string     `json:"value"`
	GatewayKeyID string     `json:"gatewayKeyId"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	Status       string     `json:"status"`
}

// AppSummary is one entry of GET /apps
type AppSummary struct {
	ID          string     `json:"id"`
	AppName     string     `json:"appName"`
	SenderEmail string     `json:"senderEmail"`
	Status      string     `json:"status"`
	APIKey      *MaskedKey `json:"apiKey"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

func summarize(app *models.App) AppSummary {
	s := AppSummary{
		ID:          app.ID,
		AppName:     app.AppName,
		SenderEmail: app.SenderEmail,
		Status:      string(app.Status),
		CreatedAt:   app.CreatedAt,
		UpdatedAt:   app.UpdatedAt,
	}
	if app.HasKey() {
		s.APIKey = &MaskedKey{
			Value:        maskedKeyValue,
			GatewayKeyID: app.KeyID(),
			CreatedAt:    app.KeyCreatedAt,
			Status:       string(models.StatusActive),
		}
	}
	return s
}

// @Summary      Register app
// @Description  Registers an app and starts verification of its sender email.
// @Tags         Apps
// @Accept       json
// @Produce      json
// @Param        body  body  services.RegisterRequest  true  "App name and sender email"
// @Success      201  {object}  RegisterAppResponse
// @Failure      400  {object}  map[string]interface{}  "Missing or invalid fields"
// @Failure      409  {object}  map[string]interface{}  "App name or sender email already registered"
// @Router       /apps [post]
func (h *AppHandlers) RegisterAppHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req services.RegisterRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			response.BadRequest(c, "Invalid JSON body")
			return
		}

		app, err := h.apps.Register(c.Request.Context(), req)
		if err != nil {
			response.Error(c, err)
			return
		}

		c.JSON(http.StatusCreated, RegisterAppResponse{
			ID:          app.ID,
			AppName:     app.AppName,
			SenderEmail: app.SenderEmail,
			Status:      string(app.Status),
			Message:     "Please verify your sender email to activate the app.",
		})
	}
}

// @Summary      List apps
// @Description  Lists all apps. Active keys are shown masked.
// @Tags         Apps
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "apps: []AppSummary, total"
// @Router       /apps [get]
func (h *AppHandlers) ListAppsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		apps, err := h.apps.List(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}

		summaries := make([]AppSummary, 0, len(apps))
		for _, app := range apps {
			summaries = append(summaries, summarize(app))
		}
		c.JSON(http.StatusOK, gin.H{
			"apps":  summaries,
			"total": len(summaries),
		})
	}
}

// @Summary      Delete app
// @Description  Deletes an app, its API key and its sender identity.
// @Tags         Apps
// @Produce      json
// @Param        id  query  string  true  "App ID"
// @Success      200  {object}  map[string]interface{}  "message, appId, appName"
// @Failure      400  {object}  map[string]interface{}  "Missing or malformed id"
// @Failure      404  {object}  map[string]interface{}  "App not found"
// @Router       /apps [delete]
func (h *AppHandlers) DeleteAppHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := appID(c)
		if err != nil {
			response.BadRequest(c, "Invalid JSON body")
			return
		}

		app, err := h.apps.Delete(c.Request.Context(), id)
		if err != nil {
			response.Error(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "App deleted successfully",
			"appId":   app.ID,
			"appName": app.AppName,
		})
	}
}
