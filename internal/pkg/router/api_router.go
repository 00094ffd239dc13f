package router

import (
	"github.com/gofiber/fiber/v2"

	apiv1 "github.com/ManuelReschke/CreditGate/internal/api/v1"
	"github.com/ManuelReschke/CreditGate/internal/pkg/middleware"
	"github.com/ManuelReschke/CreditGate/internal/pkg/ratelimit"
)

type ApiRouter struct {
	server      *apiv1.APIServer
	middlewares apiv1.Middlewares
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "CreditGate API",
		})
	})

	// API v1 routes
	v1 := api.Group("/v1")
	apiv1.RegisterHandlers(v1, h.server, h.middlewares)

	// Webhook intake, rate limited per client IP
	apiv1.RegisterHooks(app, h.server, h.middlewares)
}

func NewApiRouter(deps Dependencies) *ApiRouter {
	return &ApiRouter{
		server: deps.Server,
		middlewares: apiv1.Middlewares{
			WorkspaceAuth: middleware.APIKeyAuthMiddleware(deps.Subscriptions),
			AdminAuth:     middleware.AdminTokenMiddleware(deps.AdminToken),
			HookLimiter:   ratelimit.New(ratelimit.LoadConfig(deps.HookStorage)),
		},
	}
}
