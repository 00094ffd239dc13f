package workspacecontext

// Shared Locals keys used across handlers and middlewares
const (
	KeyWorkspace   = "WORKSPACE_CONTEXT"
	KeyWorkspaceID = "workspace_id"
	KeyIsAdmin     = "isAdmin"
)
