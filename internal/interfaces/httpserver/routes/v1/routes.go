package v1

import (
	"github.com/gin-gonic/gin"

	"poster-api/internal/infrastructure/auth"
	"poster-api/internal/interfaces/httpserver/handlers"
)

// Routes encapsulates versioned route registration.
type Routes struct {
	handlers *handlers.Provider
	auth     *auth.Validator
}

func NewRoutes(provider *handlers.Provider, authValidator *auth.Validator) *Routes {
	return &Routes{handlers: provider, auth: authValidator}
}

// Register attaches all v1 routes under the /v1 prefix. Share resolution is
// public; everything else requires an authenticated subject and, when
// configured, group membership.
func (r *Routes) Register(router gin.IRouter) {
	group := router.Group("/v1")
	group.GET("/shares/:id", r.handlers.Share.Resolve)

	authed := group.Group("")
	authed.Use(r.auth.Middleware(), r.auth.RequireGroup())
	authed.GET("/credits", r.handlers.Credits.Get)
	authed.POST("/posters", r.handlers.Poster.Generate)
	authed.POST("/posters/edits", r.handlers.Poster.Edit)
	authed.GET("/history", r.handlers.History.List)
	authed.DELETE("/history", r.handlers.History.Delete)
	authed.POST("/history/featured", r.handlers.History.SetFeatured)
	authed.GET("/featured", r.handlers.History.GetFeatured)
	authed.POST("/shares", r.handlers.Share.Create)
}
