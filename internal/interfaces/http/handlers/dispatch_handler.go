package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/interfaces/http/middleware"
	"github.com/pylon-apis/pylon/internal/interfaces/http/response"
	"github.com/pylon-apis/pylon/internal/usecases"
)

// Payment proof headers, in order of preference. Payment-Signature is the
// pre-v2 header some agent SDKs still send.
const (
	headerPayment       = "X-Payment"
	headerPaymentLegacy = "Payment-Signature"
	headerTestKey       = "x-test-key"
	headerWalletAddress = "x-wallet-address"
)

// DispatchHandler serves the single-call endpoint
type DispatchHandler struct {
	dispatcher *usecases.Dispatcher
	publicURL  string
}

// NewDispatchHandler creates a new dispatch handler
func NewDispatchHandler(dispatcher *usecases.Dispatcher, publicURL string) *DispatchHandler {
	return &DispatchHandler{dispatcher: dispatcher, publicURL: strings.TrimSuffix(publicURL, "/")}
}

// Dispatch resolves, charges and executes one capability call.
// POST /do
func (h *DispatchHandler) Dispatch(c *gin.Context) {
	var input usecases.DispatchInput
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(domainerrors.CodeMissingTask, "request body must be a JSON object"))
		return
	}

	outcome, err := h.dispatcher.Dispatch(c.Request.Context(), input, callerFrom(c, h.publicURL+"/do"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, outcome)
}

// callerFrom collects the caller identity headers shared by the dispatch and
// chain endpoints.
func callerFrom(c *gin.Context, resource string) usecases.Caller {
	payment := c.GetHeader(headerPayment)
	if payment == "" {
		payment = c.GetHeader(headerPaymentLegacy)
	}
	if payment == "" {
		payment = c.GetHeader(headerTestKey)
	}

	return usecases.Caller{
		Wallet:        strings.TrimSpace(c.GetHeader(headerWalletAddress)),
		PeerIP:        middleware.PeerIP(c),
		PaymentHeader: payment,
		Resource:      resource,
	}
}
