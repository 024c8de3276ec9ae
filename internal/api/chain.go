// Package api - Deployment and Publishing Handlers
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dappforge/internal/pipeline"
	"dappforge/internal/store"
)

// DeployContract compiles the project's saved contracts and deploys the
// resulting bytecode to the configured chain.
func (h *Handler) DeployContract(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	code, ok := h.savedCode(c, project.ID)
	if !ok {
		return
	}
	if len(code.Contracts) == 0 {
		respondError(c, http.StatusBadRequest, "Project has no contracts to deploy", "NO_CONTRACTS")
		return
	}

	compiled, err := h.Compiler.Compile(c.Request.Context(), code.Contracts)
	if err != nil {
		respondError(c, http.StatusBadGateway, "Compiler unavailable: "+err.Error(), "COMPILER_ERROR")
		return
	}
	if !compiled.Success {
		c.JSON(http.StatusUnprocessableEntity, StandardResponse{
			Success: false,
			Error:   "Contracts do not compile",
			Code:    "COMPILE_FAILED",
			Data:    gin.H{"errors": compiled.Errors},
		})
		return
	}

	deployment, err := h.Deployer.Deploy(c.Request.Context(), compiled.Bytecode)
	if err != nil {
		respondError(c, http.StatusBadGateway, "Deployment failed: "+err.Error(), "DEPLOY_FAILED")
		return
	}

	rec, err := h.Store.RecordDeployment(store.DeploymentRecord{
		ProjectID:       project.ID,
		ContractAddress: deployment.ContractAddress,
		TransactionHash: deployment.TransactionHash,
		ChainID:         deployment.ChainID,
		BlockNumber:     deployment.BlockNumber,
	})
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Deployment succeeded but could not be recorded", "DATABASE_ERROR")
		return
	}

	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: gin.H{
		"deployment": deployment,
		"record":     rec,
	}})
}

// PublishRepoRequest names the target repository.
type PublishRepoRequest struct {
	Owner string `json:"owner" binding:"required"`
	Repo  string `json:"repo" binding:"required"`
}

// PublishRepo pushes the project's saved code to a GitHub repository.
func (h *Handler) PublishRepo(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	var req PublishRepoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	code, ok := h.savedCode(c, project.ID)
	if !ok {
		return
	}

	result, err := h.Git.Publish(c.Request.Context(), req.Owner, req.Repo, *code)
	if err != nil {
		respondError(c, http.StatusBadGateway, "Publish failed: "+err.Error(), "PUBLISH_FAILED")
		return
	}

	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: result})
}

// HostSiteRequest names the hosted site.
type HostSiteRequest struct {
	Name string `json:"name" binding:"required,min=1,max=63"`
}

// HostSite deploys the project's frontend pages to static hosting.
func (h *Handler) HostSite(c *gin.Context) {
	project, ok := h.ownedProject(c)
	if !ok {
		return
	}

	var req HostSiteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Invalid request format", "INVALID_REQUEST")
		return
	}

	code, ok := h.savedCode(c, project.ID)
	if !ok {
		return
	}

	site, err := h.Hosting.Deploy(c.Request.Context(), req.Name, *code)
	if err != nil {
		respondError(c, http.StatusBadGateway, "Hosting deploy failed: "+err.Error(), "HOSTING_FAILED")
		return
	}

	c.JSON(http.StatusOK, StandardResponse{Success: true, Data: site})
}

// savedCode loads the project's latest generated code, writing the
// error response itself when there is none.
func (h *Handler) savedCode(c *gin.Context, projectID uint) (*pipeline.GeneratedCode, bool) {
	code, err := h.Store.LoadCode(projectID)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "Failed to load project code", "DATABASE_ERROR")
		return nil, false
	}
	if code == nil {
		respondError(c, http.StatusBadRequest, "Project has no generated code; run a build first", "NO_CODE")
		return nil, false
	}
	return code, true
}
