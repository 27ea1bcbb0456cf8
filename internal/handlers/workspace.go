package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/dispatch-sh/dispatcher/internal/logger"
	"github.com/dispatch-sh/dispatcher/internal/models"
	"github.com/dispatch-sh/dispatcher/internal/persist"
	"github.com/dispatch-sh/dispatcher/internal/workspace"
)

const (
	defaultCols uint16 = 80
	defaultRows uint16 = 24
)

// WorkspaceHandler exposes the workspace stores over the REST API: projects
// and their tree, terminal tabs and panes, layouts and UI preferences.
type WorkspaceHandler struct {
	ws    *workspace.Workspace
	hub   *TerminalHub
	store *persist.Store
	log   zerolog.Logger
}

// NewWorkspaceHandler creates the workspace API handler.
func NewWorkspaceHandler(ws *workspace.Workspace, hub *TerminalHub, store *persist.Store) *WorkspaceHandler {
	return &WorkspaceHandler{
		ws:    ws,
		hub:   hub,
		store: store,
		log:   logger.Component("workspace-api"),
	}
}

// errStatus maps workspace errors onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, workspace.ErrProjectNotFound),
		errors.Is(err, workspace.ErrNodeNotFound),
		errors.Is(err, workspace.ErrSessionNotFound),
		errors.Is(err, workspace.ErrLayoutNotFound):
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

func errJSON(c *fiber.Ctx, err error) error {
	return c.Status(errStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

func sizeOrDefault(cols, rows uint16) (uint16, uint16) {
	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}
	return cols, rows
}

// GetWorkspace returns the full workspace snapshot.
func (h *WorkspaceHandler) GetWorkspace(c *fiber.Ctx) error {
	return c.JSON(h.ws.WorkspaceSnapshot())
}

// CreateProjectRequest is the body for POST /v1/projects.
type CreateProjectRequest struct {
	Name string `json:"name"`
	Cwd  string `json:"cwd"`
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// CreateProject opens a project with one terminal tab.
func (h *WorkspaceHandler) CreateProject(c *fiber.Ctx) error {
	var req CreateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	cols, rows := sizeOrDefault(req.Cols, req.Rows)

	projectID, terminalID, err := h.ws.CreateProjectWithTerminal(req.Name, req.Cwd, cols, rows)
	if err != nil {
		h.log.Error().Err(err).Str("name", req.Name).Msg("project creation failed")
		return errJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"projectId":  projectID,
		"terminalId": terminalID,
	})
}

// DeleteProject closes every terminal in the project and removes it.
func (h *WorkspaceHandler) DeleteProject(c *fiber.Ctx) error {
	if err := h.ws.DeleteProject(c.Params("id")); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"message": "project deleted"})
}

// RenameProjectRequest is the body for PATCH /v1/projects/:id.
type RenameProjectRequest struct {
	Name string `json:"name"`
}

// RenameProject updates a project's display name.
func (h *WorkspaceHandler) RenameProject(c *fiber.Ctx) error {
	var req RenameProjectRequest
	if err := c.BodyParser(&req); err != nil || req.Name == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "name is required"})
	}
	if err := h.ws.RenameProject(c.Params("id"), req.Name); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"message": "project renamed"})
}

// SetActiveProject focuses a project in the sidebar.
func (h *WorkspaceHandler) SetActiveProject(c *fiber.Ctx) error {
	if err := h.ws.SetActiveProject(c.Params("id")); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"message": "project activated"})
}

// ToggleProject flips a project's expanded state.
func (h *WorkspaceHandler) ToggleProject(c *fiber.Ctx) error {
	if err := h.ws.ToggleProjectExpanded(c.Params("id")); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"message": "project toggled"})
}

// ReorderRequest is the body for reorder endpoints: drop the subject before
// or after the target.
type ReorderRequest struct {
	Target   string             `json:"target"`
	Position workspace.Position `json:"position"`
}

// ReorderProject moves a project within the sidebar ordering.
func (h *WorkspaceHandler) ReorderProject(c *fiber.Ctx) error {
	var req ReorderRequest
	if err := c.BodyParser(&req); err != nil || req.Target == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "target is required"})
	}
	if req.Position != workspace.Before && req.Position != workspace.After {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "position must be before or after"})
	}
	if err := h.ws.ReorderProject(c.Params("id"), req.Target, req.Position); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"message": "project reordered"})
}

// CreateTerminalRequest is the body for POST /v1/projects/:id/terminals.
type CreateTerminalRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// CreateTerminal opens a new tab in a project.
func (h *WorkspaceHandler) CreateTerminal(c *fiber.Ctx) error {
	var req CreateTerminalRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	cols, rows := sizeOrDefault(req.Cols, req.Rows)

	terminalID, err := h.ws.CreateTerminalInProject(c.Params("id"), cols, rows)
	if err != nil {
		return errJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"terminalId": terminalID})
}

// SplitRequest is the body for POST /v1/terminals/:id/split.
type SplitRequest struct {
	Direction models.SplitDirection `json:"direction"`
	Cols      uint16                `json:"cols"`
	Rows      uint16                `json:"rows"`
}

// SplitTerminal opens a new pane next to an existing one.
func (h *WorkspaceHandler) SplitTerminal(c *fiber.Ctx) error {
	var req SplitRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Direction != models.SplitHorizontal && req.Direction != models.SplitVertical {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "direction must be horizontal or vertical"})
	}
	cols, rows := sizeOrDefault(req.Cols, req.Rows)

	// Params alias the request buffer; the workspace may keep this id as a
	// layout key, so it gets its own copy.
	terminalID, err := h.ws.SplitPane(strings.Clone(c.Params("id")), req.Direction, cols, rows)
	if err != nil {
		return errJSON(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"terminalId": terminalID})
}

// CloseTerminal closes one pane.
func (h *WorkspaceHandler) CloseTerminal(c *fiber.Ctx) error {
	if err := h.ws.ClosePane(c.Params("id")); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"message": "terminal closed"})
}

// SetActiveTerminal focuses a terminal pane.
func (h *WorkspaceHandler) SetActiveTerminal(c *fiber.Ctx) error {
	if err := h.ws.SetActiveTerminal(c.Params("id")); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"message": "terminal activated"})
}

// UpdateTerminalRequest is the body for PATCH /v1/terminals/:id. Nil fields
// are left unchanged.
type UpdateTerminalRequest struct {
	Title *string `json:"title"`
	Notes *string `json:"notes"`
}

// UpdateTerminal updates a session's title or notes.
func (h *WorkspaceHandler) UpdateTerminal(c *fiber.Ctx) error {
	var req UpdateTerminalRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Title == nil && req.Notes == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "title or notes is required"})
	}
	id := c.Params("id")
	if req.Title != nil {
		if err := h.ws.UpdateTitle(id, *req.Title); err != nil {
			return errJSON(c, err)
		}
	}
	if req.Notes != nil {
		if err := h.ws.UpdateNotes(id, *req.Notes); err != nil {
			return errJSON(c, err)
		}
	}
	session, ok := h.ws.Session(id)
	if !ok {
		return errJSON(c, workspace.ErrSessionNotFound)
	}
	return c.JSON(session)
}

// ResizeRequest is the body for POST /v1/terminals/:id/resize.
type ResizeRequest struct {
	Cols uint16 `json:"cols"`
	Rows uint16 `json:"rows"`
}

// ResizeTerminal propagates a window size change to the PTY.
func (h *WorkspaceHandler) ResizeTerminal(c *fiber.Ctx) error {
	var req ResizeRequest
	if err := c.BodyParser(&req); err != nil || req.Cols == 0 || req.Rows == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "cols and rows are required"})
	}
	if err := h.hub.Resize(c.Params("id"), req.Cols, req.Rows); err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"message": "terminal resized"})
}

// GetTerminalCwd resolves a terminal's current working directory from the
// shell process.
func (h *WorkspaceHandler) GetTerminalCwd(c *fiber.Ctx) error {
	cwd, err := h.hub.Cwd(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return c.JSON(fiber.Map{"cwd": cwd})
}

// DeleteTab closes every pane in a tab and removes its sidebar node.
func (h *WorkspaceHandler) DeleteTab(c *fiber.Ctx) error {
	if err := h.ws.DeleteTab(c.Params("nodeId")); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"message": "tab deleted"})
}

// MoveNodeRequest is the body for POST /v1/nodes/:id/move.
type MoveNodeRequest struct {
	ProjectID string `json:"projectId"`
}

// MoveNode re-homes a tab node under another project.
func (h *WorkspaceHandler) MoveNode(c *fiber.Ctx) error {
	var req MoveNodeRequest
	if err := c.BodyParser(&req); err != nil || req.ProjectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "projectId is required"})
	}
	if err := h.ws.MoveTerminal(c.Params("id"), req.ProjectID); err != nil {
		return errJSON(c, err)
	}
	return c.JSON(fiber.Map{"message": "node moved"})
}

// CycleRequest is the body for POST /v1/workspace/cycle.
type CycleRequest struct {
	Direction workspace.Direction `json:"direction"`
}

// CycleTab moves focus to the next or previous tab across projects.
func (h *WorkspaceHandler) CycleTab(c *fiber.Ctx) error {
	var req CycleRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Direction != workspace.Forward && req.Direction != workspace.Backward {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "direction must be forward or backward"})
	}
	h.ws.CycleTab(req.Direction)
	return c.JSON(fiber.Map{
		"activeProjectId":  h.ws.ActiveProjectID(),
		"activeTerminalId": h.ws.ActiveTerminalID(),
	})
}

// GetFontSize returns the UI font size.
func (h *WorkspaceHandler) GetFontSize(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"fontSize": h.store.FontSize()})
}

// SetFontSizeRequest is the body for PUT /v1/font-size.
type SetFontSizeRequest struct {
	Size int `json:"size"`
}

// SetFontSize stores a new UI font size, clamped to the allowed range.
func (h *WorkspaceHandler) SetFontSize(c *fiber.Ctx) error {
	var req SetFontSizeRequest
	if err := c.BodyParser(&req); err != nil || req.Size == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "size is required"})
	}
	return c.JSON(fiber.Map{"fontSize": h.store.SetFontSize(req.Size)})
}

// ResetFontSize restores the default UI font size.
func (h *WorkspaceHandler) ResetFontSize(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"fontSize": h.store.ResetFontSize()})
}
