package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hoangnm-dev/meeting-scribe/internal/infrastructure/http/middleware"
	"github.com/hoangnm-dev/meeting-scribe/pkg/config"
)

// Router holds all handlers
type Router struct {
	cfg             *config.Config
	meetingHandler  *Meeting
	progressHandler *Progress
	authMiddleware  *middleware.AuthMiddleware
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, meetingHandler *Meeting, progressHandler *Progress, authMiddleware *middleware.AuthMiddleware) *Router {
	return &Router{
		cfg:             cfg,
		meetingHandler:  meetingHandler,
		progressHandler: progressHandler,
		authMiddleware:  authMiddleware,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", rt.healthCheck)

	// API v1 group
	v1 := e.Group("/v1")

	rt.setupMeetingRoutes(v1)
}

// setupMeetingRoutes configures meeting upload and lifecycle routes
func (rt *Router) setupMeetingRoutes(g *echo.Group) {
	meetings := g.Group("/meetings", rt.authMiddleware.Authenticate)

	meetings.POST("", rt.meetingHandler.DirectUpload)
	meetings.GET("", rt.meetingHandler.List)
	meetings.GET("/quota", rt.meetingHandler.Quota)

	meetings.POST("/uploads", rt.meetingHandler.InitUpload)
	meetings.PUT("/uploads/:sessionId", rt.meetingHandler.UploadChunk)
	meetings.POST("/uploads/:sessionId/complete", rt.meetingHandler.CompleteUpload)

	meetings.GET("/:id", rt.meetingHandler.Get)
	meetings.POST("/:id/retry", rt.meetingHandler.Retry)
	meetings.POST("/:id/cancel", rt.meetingHandler.Cancel)
	meetings.GET("/:id/progress", rt.progressHandler.Stream)
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"environment": rt.cfg.Server.Environment,
	})
}
