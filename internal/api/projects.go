// Package api - Project Handlers
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"dappforge/internal/auth"
	"dappforge/internal/store"
)

// CreateProjectRequest is the project creation body.
type CreateProjectRequest struct {
	Name        string `json:"name" binding:"required,min=1,max=100"`
	Description string `json:"description" binding:"max=500"`
	Prompt      string `json:"prompt" binding:"max=10000"`
}

// CreateProject creates a new project for the authenticated user.
func (h *Handler) CreateProject(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	project, err := h.Store.CreateProject(auth.UserID(c), req.Name, req.Description, req.Prompt)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to create project", "DATABASE_ERROR")
		return
	}

	c.JSON(http.StatusCreated, StandardResponse{Success: true, Data: project})
}

// ListProjects returns all projects owned by the authenticated user.
func (h *Handler) ListProjects(c *gin.Context) {
	projects, err := h.Store.ProjectsByOwner(auth.UserID(c))
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to fetch projects", "DATABASE_ERROR")
		return
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: projects})
}

// GetProject returns one project with its latest generated code.
func (h *Handler) GetProject(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	code, err := h.Store.LoadCode(project.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to load project code", "DATABASE_ERROR")
		return
	}

	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: gin.H{
		"project": project,
		"code":    code,
	}})
}

// DeleteProject removes a project owned by the authenticated user.
func (h *Handler) DeleteProject(c *gin.Context) {
	id, ok := projectID(c)
	if !ok {
		return
	}

	if err := h.Store.DeleteProject(auth.UserID(c), id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "Project not found", "NOT_FOUND")
			return
		}
		respondError(c, http.StatusInternalServerError, "Failed to delete project", "DATABASE_ERROR")
		return
	}

	c.JSON(http.StatusOK, StandardResponse{Success: true})
}

// ListBuilds returns a project's build history, newest first.
func (h *Handler) ListBuilds(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	builds, err := h.Store.BuildsByProject(project.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to fetch builds", "DATABASE_ERROR")
		return
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: builds})
}

// ListDeployments returns a project's deployment history, newest first.
func (h *Handler) ListDeployments(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	deployments, err := h.Store.DeploymentsByProject(project.ID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to fetch deployments", "DATABASE_ERROR")
		return
	}
	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: deployments})
}

// ownedProject resolves the :id route param to a project owned by the
// caller, writing the error response itself when that fails.
func (h *Handler) ownedProject(c *gin.Context) (*store.Project, bool) {
	id, ok := projectID(c)
	if !ok {
		return nil, false
	}

	project, err := h.Store.ProjectByID(auth.UserID(c), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			respondError(c, http.StatusNotFound, "Project not found", "NOT_FOUND")
			return nil, false
		}
		respondError(c, http.StatusInternalServerError, "Failed to fetch project", "DATABASE_ERROR")
		return nil, false
	}
	return project, true
}

func projectID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		respondError(c, http.StatusBadRequest, "Invalid project ID", "INVALID_ID")
		return 0, false
	}
	return uint(id), true
}
