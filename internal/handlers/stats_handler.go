package handlers

import (
	"github.com/gofiber/fiber/v2"

	"treeline/internal/models"
	"treeline/internal/services"
)

// StatsHandler exposes the statistics aggregation operations.
type StatsHandler struct {
	statsService *services.StatsService
	statsCache   *StatsCache
}

// NewStatsHandler creates a new statistics handler
func NewStatsHandler(statsService *services.StatsService, statsCache *StatsCache) *StatsHandler {
	return &StatsHandler{
		statsService: statsService,
		statsCache:   statsCache,
	}
}

type statsRequest struct {
	Company  string   `json:"company"`
	Projects []string `json:"projects"`
	State    string   `json:"state"`
}

// GetProjectStats returns subtree-aggregated statistics per requested
// project, serving recently computed subtrees from the cache.
func (h *StatsHandler) GetProjectStats(c *fiber.Ctx) error {
	var req statsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	state := models.EntityVisibility(req.State)

	stats := make(map[string]map[string]services.SectionStats, len(req.Projects))
	children := make(map[string][]models.ProjectChild, len(req.Projects))
	var missing []string
	for _, pid := range req.Projects {
		if entry, found := h.statsCache.Get(req.Company, pid, state); found {
			stats[pid] = entry.Stats
			children[pid] = entry.Children
			continue
		}
		missing = append(missing, pid)
	}

	if len(missing) > 0 {
		freshStats, freshChildren, err := h.statsService.GetProjectStats(c.Context(), req.Company, missing, state)
		if err != nil {
			return errorResponse(c, err)
		}
		for _, pid := range missing {
			stats[pid] = freshStats[pid]
			children[pid] = freshChildren[pid]
			h.statsCache.Set(req.Company, pid, state, &cachedProjectStats{
				Stats:    freshStats[pid],
				Children: freshChildren[pid],
			})
		}
	}

	return c.JSON(fiber.Map{
		"stats":    stats,
		"children": children,
	})
}

type projectScopeRequest struct {
	Company  string   `json:"company"`
	Projects []string `json:"projects"`
}

// GetOwnContents returns unrolled per-project task/model counts
func (h *StatsHandler) GetOwnContents(c *fiber.Ctx) error {
	var req projectScopeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	contents, err := h.statsService.CalcOwnContents(c.Context(), req.Company, req.Projects)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"contents": contents})
}

type activeUsersRequest struct {
	Company  string   `json:"company"`
	Projects []string `json:"projects"`
	Users    []string `json:"users"`
}

// GetActiveUsers returns the users that created entities in the subtrees
func (h *StatsHandler) GetActiveUsers(c *fiber.Ctx) error {
	var req activeUsersRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	users, err := h.statsService.GetActiveUsers(c.Context(), req.Company, req.Projects, req.Users)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"users": users})
}

type activeUserProjectsRequest struct {
	Company     string   `json:"company"`
	Users       []string `json:"users"`
	Projects    []string `json:"projects"`
	AllowPublic *bool    `json:"allow_public"`
}

// GetProjectsWithActiveUser returns the projects (with all their
// ancestors) where the users created entities
func (h *StatsHandler) GetProjectsWithActiveUser(c *fiber.Ctx) error {
	var req activeUserProjectsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	allowPublic := true
	if req.AllowPublic != nil {
		allowPublic = *req.AllowPublic
	}

	ids, err := h.statsService.GetProjectsWithActiveUser(c.Context(), req.Company, req.Users, req.Projects, allowPublic)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"projects": ids})
}

type taskParentsRequest struct {
	Company            string   `json:"company"`
	Projects           []string `json:"projects"`
	IncludeSubprojects *bool    `json:"include_subprojects"`
	State              string   `json:"state"`
}

// GetTaskParents returns the unique parent tasks referenced within the
// scope, sorted by name
func (h *StatsHandler) GetTaskParents(c *fiber.Ctx) error {
	var req taskParentsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}
	includeSubprojects := true
	if req.IncludeSubprojects != nil {
		includeSubprojects = *req.IncludeSubprojects
	}

	parents, err := h.statsService.GetTaskParents(c.Context(), req.Company, req.Projects, includeSubprojects, models.EntityVisibility(req.State))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"parents": parents})
}

// GetTaskTypes returns the task types in use within the scope
func (h *StatsHandler) GetTaskTypes(c *fiber.Ctx) error {
	var req projectScopeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	types, err := h.statsService.GetTaskTypes(c.Context(), req.Company, req.Projects)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"types": types})
}

// GetModelFrameworks returns the model frameworks in use within the scope
func (h *StatsHandler) GetModelFrameworks(c *fiber.Ctx) error {
	var req projectScopeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request body"})
	}

	frameworks, err := h.statsService.GetModelFrameworks(c.Context(), req.Company, req.Projects)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.JSON(fiber.Map{"frameworks": frameworks})
}
