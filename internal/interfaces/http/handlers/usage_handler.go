package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/domain/repositories"
	"github.com/pylon-apis/pylon/internal/interfaces/http/middleware"
	"github.com/pylon-apis/pylon/internal/interfaces/http/response"
	"github.com/pylon-apis/pylon/internal/usecases"
)

const dayLayout = "2006-01-02"

// UsageHandler serves the spend-reporting endpoints
type UsageHandler struct {
	usage repositories.UsageRepository
	gate  *usecases.PaymentGate
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(usage repositories.UsageRepository, gate *usecases.PaymentGate) *UsageHandler {
	return &UsageHandler{usage: usage, gate: gate}
}

// query builds the scoped aggregation query. Untrusted peers can only see
// their own spend: the caller filter is forced to their wallet header, or to
// the anonymous bucket when none is sent. Trusted peers may pass ?caller= or
// omit it for a fleet-wide view.
func (h *UsageHandler) query(c *gin.Context) (entities.UsageQuery, error) {
	var q entities.UsageQuery

	if h.gate.IsTrustedPeer(middleware.PeerIP(c)) {
		q.CallerID = c.Query("caller")
	} else if wallet := c.GetHeader(headerWalletAddress); wallet != "" {
		q.CallerID = wallet
	} else {
		q.CallerID = entities.AnonymousCaller
	}

	if from := c.Query("from"); from != "" {
		t, err := time.Parse(dayLayout, from)
		if err != nil {
			return q, domainerrors.BadRequest(domainerrors.CodeMissingParams, "from must be YYYY-MM-DD")
		}
		q.From = t
	}
	if to := c.Query("to"); to != "" {
		t, err := time.Parse(dayLayout, to)
		if err != nil {
			return q, domainerrors.BadRequest(domainerrors.CodeMissingParams, "to must be YYYY-MM-DD")
		}
		q.To = t
	}
	return q, nil
}

// Totals reports the caller's aggregate spend.
// GET /usage
func (h *UsageHandler) Totals(c *gin.Context) {
	q, err := h.query(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	totals, err := h.usage.Totals(c.Request.Context(), q)
	if err != nil {
		response.Error(c, domainerrors.InternalError(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"caller": q.CallerID,
		"totals": totals,
	})
}

// ByCapability reports spend broken down per capability, biggest first.
// GET /usage/capabilities
func (h *UsageHandler) ByCapability(c *gin.Context) {
	q, err := h.query(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	rows, err := h.usage.ByCapability(c.Request.Context(), q)
	if err != nil {
		response.Error(c, domainerrors.InternalError(err))
		return
	}
	if rows == nil {
		rows = []*entities.CapabilityUsage{}
	}

	c.JSON(http.StatusOK, gin.H{
		"caller":       q.CallerID,
		"capabilities": rows,
	})
}

// Timeline reports spend per day, oldest first.
// GET /usage/timeline
func (h *UsageHandler) Timeline(c *gin.Context) {
	q, err := h.query(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	days, err := h.usage.Timeline(c.Request.Context(), q)
	if err != nil {
		response.Error(c, domainerrors.InternalError(err))
		return
	}
	if days == nil {
		days = []*entities.DayUsage{}
	}

	c.JSON(http.StatusOK, gin.H{
		"caller":   q.CallerID,
		"timeline": days,
	})
}
