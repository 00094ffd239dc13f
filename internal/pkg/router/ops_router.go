package router

import (
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/basicauth"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OpsRouter mounts health, metrics and API docs.
type OpsRouter struct {
	openAPIPath     string
	monitorUser     string
	monitorPassword string
}

func (h OpsRouter) InstallRouter(app *fiber.App) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// prometheus scrape endpoint
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// fiber runtime monitor
	if h.monitorPassword != "" {
		app.Get("/monitor", basicauth.New(basicauth.Config{
			Users: map[string]string{
				h.monitorUser: h.monitorPassword,
			},
		}), monitor.New())
	} else {
		app.Get("/monitor", monitor.New())
	}

	// SWAGGER / OPENAPI
	if h.openAPIPath != "" {
		app.Use(swagger.New(swagger.Config{
			BasePath: "/docs/api/",
			FilePath: h.openAPIPath,
			Path:     "v1",
			Title:    "CreditGate API",
		}))
	}
}

func NewOpsRouter(deps Dependencies) *OpsRouter {
	user := deps.MonitorUser
	if user == "" {
		user = "admin"
	}
	return &OpsRouter{
		openAPIPath:     deps.OpenAPIPath,
		monitorUser:     user,
		monitorPassword: deps.MonitorPassword,
	}
}
