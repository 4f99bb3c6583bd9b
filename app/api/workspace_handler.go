package api

import (
	"ragcore/hierarchy"
	"ragcore/types"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// WorkspaceHandler serves the session scratchpad for intermediate
// retrieval results.
type WorkspaceHandler struct {
	workspace *hierarchy.Workspace
}

func NewWorkspaceHandler(workspace *hierarchy.Workspace) *WorkspaceHandler {
	return &WorkspaceHandler{workspace: workspace}
}

func (h *WorkspaceHandler) HandleStore(c *fiber.Ctx) error {
	var params types.WorkspaceParams
	if c.BodyParser(&params) != nil {
		return ErrBadRequest()
	}
	if errors := types.Validate(&params); len(errors) > 0 {
		return types.NewValidationError(errors)
	}

	entry, err := h.workspace.StoreIntermediateResult(c.Context(), params)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(entry)
}

func (h *WorkspaceHandler) HandleChildren(c *fiber.Ctx) error {
	parentID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return ErrInvalidID()
	}
	entries, err := h.workspace.GetChildResults(c.Context(), parentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"results": entries, "count": len(entries)})
}

func (h *WorkspaceHandler) HandleSession(c *fiber.Ctx) error {
	sessionID := c.Params("id")
	if sessionID == "" {
		return ErrInvalidID()
	}
	entries, err := h.workspace.GetSessionResults(c.Context(), sessionID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"results": entries, "count": len(entries)})
}

func (h *WorkspaceHandler) HandleSweep(c *fiber.Ctx) error {
	removed, err := h.workspace.Sweep(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"removed": removed})
}
