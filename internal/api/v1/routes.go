package apiv1

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/CreditGate/internal/pkg/middleware"
)

// Middlewares groups the guards applied to the route groups.
type Middlewares struct {
	WorkspaceAuth fiber.Handler
	AdminAuth     fiber.Handler
	HookLimiter   fiber.Handler
}

// RegisterHandlers mounts the v1 API on router (usually the /api/v1 group)
func RegisterHandlers(router fiber.Router, s *APIServer, mw Middlewares) {
	router.Get("/ping", s.GetPing)
	router.Get("/pricing", s.GetPricing)
	router.Post("/refunds", s.PostRefund)

	admin := router.Group("/admin", mw.AdminAuth)
	admin.Get("/stats", s.GetStats)
	admin.Post("/workspaces", s.PostWorkspace)
	admin.Get("/workspaces/:id", s.GetWorkspace)
	admin.Post("/workspaces/:id/credits", s.PostWorkspaceCredits)
	admin.Put("/workspaces/:id/plan", s.PutWorkspacePlan)
	admin.Put("/workspaces/:id/standing", s.PutWorkspaceStanding)
	admin.Post("/workspaces/:id/api-key", s.PostWorkspaceAPIKey)

	ws := func(h fiber.Handler) []fiber.Handler {
		return []fiber.Handler{mw.WorkspaceAuth, middleware.RequireWorkspace, h}
	}
	router.Post("/authorizations", ws(s.PostAuthorization)...)
	router.Get("/usage", ws(s.GetUsage)...)
	router.Get("/ledger", ws(s.GetLedger)...)
	router.Post("/events", ws(s.PostEvent)...)

	router.Get("/triggers/incoming", ws(s.ListIncomingTriggers)...)
	router.Post("/triggers/incoming", ws(s.PostIncomingTrigger)...)
	router.Patch("/triggers/incoming/:id", ws(s.PatchIncomingTrigger)...)
	router.Delete("/triggers/incoming/:id", ws(s.DeleteIncomingTrigger)...)

	router.Get("/triggers/outgoing", ws(s.ListOutgoingTriggers)...)
	router.Post("/triggers/outgoing", ws(s.PostOutgoingTrigger)...)
	router.Patch("/triggers/outgoing/:id", ws(s.PatchOutgoingTrigger)...)
	router.Delete("/triggers/outgoing/:id", ws(s.DeleteOutgoingTrigger)...)
}

// RegisterHooks mounts webhook intake at /hooks/:token
func RegisterHooks(app fiber.Router, s *APIServer, mw Middlewares) {
	hooks := app.Group("/hooks")
	if mw.HookLimiter != nil {
		hooks.Use(mw.HookLimiter)
	}
	hooks.Post("/:token", s.PostHook)
}
