package workspacecontext

import "github.com/gofiber/fiber/v2"

// WorkspaceContext represents the authenticated caller of a request
type WorkspaceContext struct {
	WorkspaceID    string `json:"workspace_id"`
	PlanTier       string `json:"plan_tier"`
	Status         string `json:"status"`
	APIKeyPrefix   string `json:"api_key_prefix"`
	Authenticated  bool   `json:"authenticated"`
}

// Set stores the workspace context on the request
func Set(c *fiber.Ctx, wc WorkspaceContext) {
	c.Locals(KeyWorkspace, wc)
	c.Locals(KeyWorkspaceID, wc.WorkspaceID)
}

// Get retrieves the workspace context from fiber context
// Returns an unauthenticated context if none is set
func Get(c *fiber.Ctx) WorkspaceContext {
	if wc, ok := c.Locals(KeyWorkspace).(WorkspaceContext); ok {
		return wc
	}
	return WorkspaceContext{}
}

// GetWorkspaceID returns the authenticated workspace, or empty string
func GetWorkspaceID(c *fiber.Ctx) string {
	return Get(c).WorkspaceID
}

// IsAdmin reports whether the request passed the admin token check
func IsAdmin(c *fiber.Ctx) bool {
	v, ok := c.Locals(KeyIsAdmin).(bool)
	return ok && v
}
