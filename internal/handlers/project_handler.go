package handlers

import (
	"github.com/gofiber/fiber/v2"

	"treeline/internal/services"
)

// ProjectHandler exposes the tree mutation operations over HTTP. All
// semantics live in the service layer; this is a thin JSON adapter.
type ProjectHandler struct {
	projectService *services.ProjectService
	statsCache     *StatsCache
}

// NewProjectHandler creates a new project handler
func NewProjectHandler(projectService *services.ProjectService, statsCache *StatsCache) *ProjectHandler {
	return &ProjectHandler{
		projectService: projectService,
		statsCache:     statsCache,
	}
}

type createProjectRequest struct {
	Company                  string   `json:"company"`
	User                     string   `json:"user"`
	Name                     string   `json:"name"`
	Description              string   `json:"description"`
	Tags                     []string `json:"tags"`
	SystemTags               []string `json:"system_tags"`
	DefaultOutputDestination string   `json:"default_output_destination"`
}

func (r createProjectRequest) params() services.CreateProjectParams {
	return services.CreateProjectParams{
		Name:                     r.Name,
		Description:              r.Description,
		Tags:                     r.Tags,
		SystemTags:               r.SystemTags,
		DefaultOutputDestination: r.DefaultOutputDestination,
	}
}

// Create creates a project at a dotted-path location
func (h *ProjectHandler) Create(c *fiber.Ctx) error {
	var req createProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	id, err := h.projectService.Create(c.Context(), req.Company, req.User, req.params())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"id": id})
}

type findOrCreateRequest struct {
	createProjectRequest
	Project string `json:"project"`
}

// FindOrCreate resolves a project by id or name, creating it when needed
func (h *ProjectHandler) FindOrCreate(c *fiber.Ctx) error {
	var req findOrCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	id, err := h.projectService.FindOrCreate(c.Context(), req.Company, req.User, req.Project, req.params())
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{"id": id})
}

// Get returns one project document
func (h *ProjectHandler) Get(c *fiber.Ctx) error {
	company := c.Query("company")
	project, err := h.projectService.GetProject(c.Context(), company, c.Params("id"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(project)
}

type updateProjectRequest struct {
	Company string                 `json:"company"`
	Fields  map[string]interface{} `json:"fields"`
}

// Update applies a whitelisted partial update; a name change cascades into
// every descendant's display name
func (h *ProjectHandler) Update(c *fiber.Ctx) error {
	var req updateProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	updated, err := h.projectService.Update(c.Context(), req.Company, c.Params("id"), req.Fields)
	if err != nil {
		return errorResponse(c, err)
	}

	h.statsCache.Invalidate(req.Company, c.Params("id"))
	return c.JSON(fiber.Map{"updated": updated})
}

type moveProjectRequest struct {
	Company     string `json:"company"`
	User        string `json:"user"`
	NewLocation string `json:"new_location"`
}

// Move relocates a subtree under a new parent location
func (h *ProjectHandler) Move(c *fiber.Ctx) error {
	var req moveProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	moved, affected, err := h.projectService.Move(c.Context(), req.Company, req.User, c.Params("id"), req.NewLocation)
	if err != nil {
		return errorResponse(c, err)
	}

	h.statsCache.Invalidate(req.Company, affected...)
	h.statsCache.Invalidate(req.Company, c.Params("id"))
	return c.JSON(fiber.Map{
		"moved":    moved,
		"affected": affected,
	})
}

type mergeProjectRequest struct {
	Company     string `json:"company"`
	Destination string `json:"destination"`
}

// Merge folds one project's contents into another and deletes the source
func (h *ProjectHandler) Merge(c *fiber.Ctx) error {
	var req mergeProjectRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	movedEntities, movedSubProjects, affected, err := h.projectService.Merge(c.Context(), req.Company, c.Params("id"), req.Destination)
	if err != nil {
		return errorResponse(c, err)
	}

	h.statsCache.Invalidate(req.Company, affected...)
	h.statsCache.Invalidate(req.Company, c.Params("id"), req.Destination)
	return c.JSON(fiber.Map{
		"moved_entities":     movedEntities,
		"moved_sub_projects": movedSubProjects,
		"affected":           affected,
	})
}

type moveLeavesRequest struct {
	Company     string   `json:"company"`
	User        string   `json:"user"`
	IDs         []string `json:"ids"`
	Project     string   `json:"project"`
	ProjectName string   `json:"project_name"`
}

// MoveTasks moves a batch of tasks under a project
func (h *ProjectHandler) MoveTasks(c *fiber.Ctx) error {
	return h.moveLeaves(c, services.LeafTasks)
}

// MoveModels moves a batch of models under a project
func (h *ProjectHandler) MoveModels(c *fiber.Ctx) error {
	return h.moveLeaves(c, services.LeafModels)
}

func (h *ProjectHandler) moveLeaves(c *fiber.Ctx, kind services.LeafKind) error {
	var req moveLeavesRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	target, err := h.projectService.MoveLeavesUnderProject(c.Context(), kind, req.Company, req.User, req.IDs, req.Project, req.ProjectName)
	if err != nil {
		return errorResponse(c, err)
	}

	h.statsCache.Invalidate(req.Company, target)
	return c.JSON(fiber.Map{"project": target})
}
