// Package webhook provides the inbound entry-point module. This file
// defines the module that encapsulates webhook setup and route
// registration.
package webhook

import (
	apphttp "leadfunnel_backend/internal/http"
	"leadfunnel_backend/platform/logger"
	"leadfunnel_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule creates and initializes the webhook module with all its dependencies.
func NewModule(pool *pgxpool.Pool, service FunnelService, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	handler := NewHandler(service, val, log)

	return &Module{
		handler: handler,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	group := ctx.V1.Group("/webhook")
	group.Use(ctx.WebhookRateLimiter.RateLimit())

	// Form submissions and operator commands require an API key.
	keyed := group.Group("")
	keyed.Use(APIKeyAuthMiddleware(m.repo))
	keyed.POST("/forms", m.handler.HandleFormSubmission)
	keyed.POST("/commands", m.handler.HandleCommand)

	// Channel callbacks authenticate at the provider edge.
	group.POST("/email", m.handler.HandleInboundEmail)
	group.POST("/sms", m.handler.HandleInboundSMS)
	group.POST("/voice", m.handler.HandleCallEnded)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
