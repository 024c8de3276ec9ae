// Package api - Build Handlers
// The build endpoint streams pipeline progress as NDJSON while the same
// events fan out to WebSocket watchers subscribed to the build ID.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"dappforge/internal/logging"
	"dappforge/internal/pipeline"
	"dappforge/internal/stream"
)

// PlanRequest is the prompt clarification body.
type PlanRequest struct {
	Prompt string `json:"prompt" binding:"required,min=1,max=10000"`
}

// Plan turns a freeform prompt into a structured project plan.
func (h *Handler) Plan(c *gin.Context) {
	var req PlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	plan, err := h.Planner.Clarify(c.Request.Context(), req.Prompt)
	if err != nil {
		respondError(c, http.StatusBadGateway, "Plan clarification failed", "AI_ERROR")
		return
	}

	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: plan})
}

// BuildRequest is the build endpoint body. Budgets default when zero;
// TimeoutMs carries an explicit-zero flag through the pointer.
type BuildRequest struct {
	Prompt        string               `json:"prompt"`
	Plan          pipeline.ProjectPlan `json:"plan"`
	UseSavedCode  bool                 `json:"use_saved_code"`
	MaxIterations int                  `json:"max_iterations" binding:"omitempty,min=1,max=50"`
	TimeoutMs     *int64               `json:"timeout_ms"`
}

// Build runs the pipeline for a project, streaming progress frames and
// ending with exactly one complete frame. The result is persisted
// regardless of outcome.
func (h *Handler) Build(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	var req BuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	prompt := req.Prompt
	if prompt == "" {
		prompt = project.Prompt
	}
	if req.Plan.ContractName == "" {
		req.Plan.ContractName = "App"
	}
	if req.Plan.Description == "" {
		req.Plan.Description = prompt
	}

	buildReq := pipeline.NewBuildRequest(prompt, req.Plan)
	if req.MaxIterations > 0 {
		buildReq.MaxIterations = req.MaxIterations
	}
	if req.TimeoutMs != nil {
		buildReq.TimeoutMs = *req.TimeoutMs
	}

	if req.UseSavedCode {
		code, err := h.Store.LoadCode(project.ID)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "Failed to load saved code", "DATABASE_ERROR")
			return
		}
		if code == nil {
			respondError(c, http.StatusBadRequest, "Project has no saved code to validate", "NO_SAVED_CODE")
			return
		}
		buildReq.ExistingCode = code
	}

	buildID := uuid.New().String()
	sw := stream.NewWriter(c.Writer)
	sw.Status("build " + buildID + " accepted")

	onProgress := func(status pipeline.Status, message string, iteration int) {
		sw.Progress(status, message, iteration)
		h.Hub.Broadcast(buildID, stream.Event{
			Type:      "progress",
			Status:    status,
			Message:   message,
			Iteration: iteration,
		})
	}

	result := h.Builder.Run(c.Request.Context(), buildReq, onProgress)

	sw.Complete(result)
	h.Hub.Broadcast(buildID, stream.Event{Type: "complete", Result: &result})

	if _, err := h.Store.RecordBuild(project.ID, buildID, result); err != nil {
		logging.L().Error("failed to record build",
			zap.String("build_id", buildID),
			zap.Uint("project_id", project.ID),
			zap.Error(err),
		)
	}
	if result.Code != nil {
		if err := h.Store.SaveCode(project.ID, *result.Code); err != nil {
			logging.L().Error("failed to save generated code",
				zap.Uint("project_id", project.ID),
				zap.Error(err),
			)
		}
	}
}
