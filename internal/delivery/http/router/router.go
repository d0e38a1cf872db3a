// Package router contains routing and server setup for the HTTP delivery.
package router

import (
	"gatehouse/internal/delivery/http/middleware"
	"gatehouse/internal/delivery/http/router/handler"

	"github.com/labstack/echo/v4"
	"go.uber.org/fx"
)

type RouterParams struct {
	fx.In

	AuthHandler         *handler.AuthHandler
	SessionHandler      *handler.SessionHandler
	AuthMiddleware      *middleware.AuthMiddleware
	RequestIDMiddleware *middleware.RequestIDMiddleware
}

// router holds all the handlers that need to be registered.
type router struct {
	authHandler         *handler.AuthHandler
	sessionHandler      *handler.SessionHandler
	authMiddleware      *middleware.AuthMiddleware
	requestIDMiddleware *middleware.RequestIDMiddleware
}

// NewRouter is the constructor for the Router.
// Fx will inject the required handlers here.
func NewRouter(params RouterParams) *router {
	return &router{
		authHandler:         params.AuthHandler,
		sessionHandler:      params.SessionHandler,
		authMiddleware:      params.AuthMiddleware,
		requestIDMiddleware: params.RequestIDMiddleware,
	}
}

// RegisterRoutes sets up all the API routes for the application.
func (r *router) RegisterRoutes(e *echo.Echo) {
	e.Use(r.requestIDMiddleware.Process)

	// Health check endpoint
	e.GET("/health", handler.HealthCheck)

	// Auth routes
	authGroup := e.Group("/auth")
	{
		authGroup.POST("/sign-up", r.authHandler.SignUp)
		authGroup.POST("/sign-in", r.authHandler.SignIn)

		// Operations on the presented session need the raw token, so the
		// JWT path is not accepted here.
		sessionBound := authGroup.Group("",
			r.authMiddleware.Authenticate,
			r.authMiddleware.RequireSessionToken,
		)
		sessionBound.POST("/sign-out", r.authHandler.SignOut)
		sessionBound.GET("/session", r.authHandler.Session)
		sessionBound.POST("/token", r.authHandler.Token)
		sessionBound.POST("/sign-out-all", r.sessionHandler.SignOutAll)
	}

	// User routes accept either a session token or a JWT access token.
	userGroup := e.Group("/user")
	userGroup.Use(r.authMiddleware.Authenticate)
	{
		userGroup.GET("/profile", r.authHandler.GetProfile)
		userGroup.GET("/sessions", r.sessionHandler.ListSessions)
		userGroup.DELETE("/sessions/:id", r.sessionHandler.RevokeSession)
		userGroup.DELETE("/sessions", r.sessionHandler.RevokeOtherSessions)
	}
}
