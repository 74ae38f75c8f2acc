package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/livechat-service/internal/api/http/handlers"
	"github.com/spec-kit/livechat-service/internal/auth"
	"github.com/spec-kit/livechat-service/internal/realtime"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Widget         *handlers.WidgetHandler
	Conversations  *handlers.ConversationsHandler
	Triggers       *handlers.TriggersHandler
	Realtime       *realtime.ConnectionHandler
	AuthMiddleware *auth.AuthMiddleware
	UploadDir      string
	UploadPrefix   string
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	if cfg.UploadDir != "" && cfg.UploadPrefix != "" {
		app.Static(cfg.UploadPrefix, cfg.UploadDir)
	}

	widget := app.Group("/widget")
	widget.Get("/messages", cfg.Widget.GetMessages)
	widget.Post("/messages", cfg.Widget.SendMessage)
	widget.Post("/email", cfg.Widget.CaptureEmail)
	widget.Post("/rating", cfg.Widget.RateConversation)
	widget.Get("/triggers", cfg.Widget.ListTriggers)

	dashboard := app.Group("/dashboard", cfg.AuthMiddleware.Handle)
	dashboard.Get("/conversations", cfg.Conversations.List)
	dashboard.Get("/conversations/:id/messages", cfg.Conversations.GetMessages)
	dashboard.Post("/conversations/:id/messages", cfg.Conversations.SendMessage)
	dashboard.Patch("/conversations/:id", cfg.Conversations.UpdateMeta)
	dashboard.Post("/conversations/:id/resolve", cfg.Conversations.Resolve)
	dashboard.Post("/messages/read", cfg.Conversations.MarkRead)
	dashboard.Get("/visitors/live", cfg.Conversations.LiveVisitors)

	dashboard.Get("/triggers", cfg.Triggers.List)
	dashboard.Post("/triggers", cfg.Triggers.Create)
	dashboard.Put("/triggers/:id", cfg.Triggers.Update)
	dashboard.Delete("/triggers/:id", cfg.Triggers.Delete)

	app.Use("/ws", cfg.Realtime.Upgrade)
	app.Get("/ws", cfg.Realtime.Handler())
}
