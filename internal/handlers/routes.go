package handlers

import "github.com/gofiber/fiber/v2"

// RegisterRoutes mounts the v1 API: workspace REST endpoints plus the
// terminal and event sockets.
func RegisterRoutes(app *fiber.App, ws *WorkspaceHandler, term *TerminalHandler, events *EventsHandler) {
	v1 := app.Group("/v1")

	v1.Get("/workspace", ws.GetWorkspace)
	v1.Post("/workspace/cycle", ws.CycleTab)

	v1.Post("/projects", ws.CreateProject)
	v1.Delete("/projects/:id", ws.DeleteProject)
	v1.Patch("/projects/:id", ws.RenameProject)
	v1.Post("/projects/:id/active", ws.SetActiveProject)
	v1.Post("/projects/:id/toggle", ws.ToggleProject)
	v1.Post("/projects/:id/reorder", ws.ReorderProject)
	v1.Post("/projects/:id/terminals", ws.CreateTerminal)

	v1.Post("/terminals/:id/split", ws.SplitTerminal)
	v1.Delete("/terminals/:id", ws.CloseTerminal)
	v1.Post("/terminals/:id/active", ws.SetActiveTerminal)
	v1.Patch("/terminals/:id", ws.UpdateTerminal)
	v1.Post("/terminals/:id/resize", ws.ResizeTerminal)
	v1.Get("/terminals/:id/cwd", ws.GetTerminalCwd)
	v1.Get("/terminals/:id/ws", term.HandleWebSocket)

	v1.Delete("/tabs/:nodeId", ws.DeleteTab)
	v1.Post("/nodes/:id/move", ws.MoveNode)

	v1.Get("/font-size", ws.GetFontSize)
	v1.Put("/font-size", ws.SetFontSize)
	v1.Post("/font-size/reset", ws.ResetFontSize)

	v1.Get("/events/ws", events.HandleWebSocket)
}
