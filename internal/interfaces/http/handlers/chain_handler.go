package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/interfaces/http/response"
	"github.com/pylon-apis/pylon/internal/usecases"
)

// ChainHandler serves the multi-step endpoint
type ChainHandler struct {
	orchestrator *usecases.Orchestrator
	publicURL    string
}

// NewChainHandler creates a new chain handler
func NewChainHandler(orchestrator *usecases.Orchestrator, publicURL string) *ChainHandler {
	return &ChainHandler{orchestrator: orchestrator, publicURL: strings.TrimSuffix(publicURL, "/")}
}

// Chain plans a multi-step task, charges once for the whole chain, and
// executes the steps in order. dryRun returns the priced plan without
// payment or execution.
// POST /do/chain
func (h *ChainHandler) Chain(c *gin.Context) {
	var input usecases.ChainInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(domainerrors.CodeMissingTask, "request body must be a JSON object"))
		return
	}

	outcome, err := h.orchestrator.Run(c.Request.Context(), input, callerFrom(c, h.publicURL+"/do/chain"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, outcome)
}
