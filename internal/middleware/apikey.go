package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/mickBoat00/email-service/internal/api/response"
	"github.com/mickBoat00/email-service/internal/auth"
	"github.com/mickBoat00/email-service/internal/db/models"
)

// AppKey is the gin.Context key holding the authenticated *models.App.
const AppKey = "app"

// Authenticator resolves a presented key to its app.
type Authenticator interface {
	Authenticate(ctx context.Context, presented string) (*models.App, error)
}

// APIKeyMiddleware authenticates the x-api-key header. A missing key is
// rejected with 401 and an unknown key with 403.
func APIKeyMiddleware(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		app, err := authn.Authenticate(c.Request.Context(), c.GetHeader(auth.HeaderName))
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Set(AppKey, app)
		c.Next()
	}
}

// AuthenticatedApp returns the app stored by APIKeyMiddleware.
func AuthenticatedApp(c *gin.Context) (*models.App, bool) {
	v, ok := c.Get(AppKey)
	if !ok {
		return nil, false
	}
	app, ok := v.(*models.App)
	return app, ok
}
