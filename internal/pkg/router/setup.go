package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditGate/app/repository"
	apiv1 "github.com/ManuelReschke/CreditGate/internal/api/v1"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Dependencies are the services and settings the routers mount.
type Dependencies struct {
	Server        *apiv1.APIServer
	Subscriptions repository.SubscriptionRepository
	AdminToken    string

	// HookStorage backs the webhook rate limiter; nil keeps counters in memory.
	HookStorage fiber.Storage

	// OpenAPIPath is served under /docs/api/v1 when set.
	OpenAPIPath     string
	MonitorUser     string
	MonitorPassword string
}

func InstallRouter(app *fiber.App, deps Dependencies) {
	// Ops endpoints go first so swagger and /metrics are matched before the
	// API groups.
	setup(app, NewOpsRouter(deps), NewApiRouter(deps))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
