package usecases

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/domain/repositories"
	"github.com/pylon-apis/pylon/pkg/logger"
)

// CapabilityRegistry is the read-only native/partner catalog.
type CapabilityRegistry interface {
	List() []*entities.Capability
	ByID(id string) (*entities.Capability, bool)
}

// CallExecutor runs a backend call through the reliability layer.
type CallExecutor interface {
	Do(ctx context.Context, cap *entities.Capability, params map[string]any) (*entities.CallResult, error)
}

// DispatchInput is the body of POST /do.
type DispatchInput struct {
	Task       string         `json:"task"`
	Capability string         `json:"capability"`
	Params     map[string]any `json:"params"`
	Budget     string         `json:"budget"`
}

// Caller carries per-request caller context into the dispatch pipeline.
// PeerIP is the socket peer address, not a forwarded-header value, so the
// payment gate can trust it.
type Caller struct {
	Wallet        string
	PeerIP        string
	PaymentHeader string
	Resource      string
}

// CapabilitySummary is the capability block of a dispatch response.
type CapabilitySummary struct {
	ID     string              `json:"id"`
	Name   string              `json:"name"`
	Cost   string              `json:"cost"`
	Source entities.SourceTier `json:"source"`
}

// Quality carries backend timing detail.
type Quality struct {
	BackendStatus     int   `json:"backendStatus"`
	BackendResponseMs int64 `json:"backendResponseMs"`
	GatewayOverheadMs int64 `json:"gatewayOverheadMs"`
}

// Meta is the meta block of a dispatch response.
type Meta struct {
	ContentType string  `json:"contentType"`
	DurationMs  int64   `json:"durationMs"`
	Gateway     string  `json:"gateway"`
	Version     string  `json:"version"`
	Retries     int     `json:"retries"`
	Quality     Quality `json:"quality"`
}

// Pricing is present on discovered-capability responses only.
type Pricing struct {
	ProviderCost string `json:"providerCost"`
	GatewayFee   string `json:"gatewayFee"`
	Total        string `json:"total"`
}

// DispatchOutcome is the success envelope of POST /do.
type DispatchOutcome struct {
	Success       bool                 `json:"success"`
	Capability    CapabilitySummary    `json:"capability"`
	Params        map[string]any       `json:"params"`
	Result        *entities.CallResult `json:"result"`
	Meta          Meta                 `json:"meta"`
	Pricing       *Pricing             `json:"pricing,omitempty"`
	MultiStepHint string               `json:"multiStepHint,omitempty"`
}

// Dispatcher owns the single-call pipeline and the shared gateway state
// (registry, discovered map, breakers, replay set) behind it.
type Dispatcher struct {
	registry  CapabilityRegistry
	discovery *DiscoveryEngine
	executor  CallExecutor
	gate      *PaymentGate
	usage     repositories.UsageRepository
	version   string
}

// NewDispatcher creates the dispatcher.
func NewDispatcher(
	reg CapabilityRegistry,
	discovery *DiscoveryEngine,
	executor CallExecutor,
	gate *PaymentGate,
	usage repositories.UsageRepository,
	version string,
) *Dispatcher {
	return &Dispatcher{
		registry:  reg,
		discovery: discovery,
		executor:  executor,
		gate:      gate,
		usage:     usage,
		version:   version,
	}
}

// Gate exposes the payment gate for the chain endpoint.
func (d *Dispatcher) Gate() *PaymentGate { return d.gate }

// Discovery exposes the discovery engine for /discover and /capabilities.
func (d *Dispatcher) Discovery() *DiscoveryEngine { return d.discovery }

// Resolve picks a capability for the input: explicit ID first, then keyword
// match, then marketplace discovery with auto-activation.
func (d *Dispatcher) Resolve(ctx context.Context, in DispatchInput) (*entities.Capability, error) {
	if in.Capability != "" {
		if c, ok := d.registry.ByID(in.Capability); ok {
			return c, nil
		}
		if c, ok := d.discovery.ActiveByID(in.Capability); ok {
			return c, nil
		}
		return nil, domainerrors.NotFound(domainerrors.CodeUnknownCapability,
			"unknown capability "+in.Capability)
	}

	if strings.TrimSpace(in.Task) == "" {
		return nil, domainerrors.BadRequest(domainerrors.CodeMissingTask,
			"request needs a task or a capability id")
	}

	if c := d.matchByKeywords(in.Task); c != nil {
		return c, nil
	}

	candidates, err := d.discovery.Discover(ctx, in.Task)
	if err != nil {
		logger.Warn(ctx, "discovery failed", zap.Error(err))
	}
	if len(candidates) > 0 {
		activated := d.discovery.Activate(candidates[0])
		logger.Info(ctx, "activated discovered capability",
			zap.String("capability", activated.ID),
			zap.String("price", activated.Price))
		return activated, nil
	}

	return nil, domainerrors.NotFound(domainerrors.CodeNoMatchingCapability,
		"no capability matches this task")
}

// matchByKeywords scores every known capability against the task and returns
// the best positive scorer.
func (d *Dispatcher) matchByKeywords(task string) *entities.Capability {
	lower := strings.ToLower(task)

	var best *entities.Capability
	bestScore := 0
	score := func(c *entities.Capability) int {
		s := 0
		for _, kw := range c.Keywords {
			if strings.Contains(lower, kw) {
				s += len(kw)
			}
		}
		if strings.Contains(lower, strings.ToLower(c.Name)) {
			s += 10
		}
		if strings.Contains(lower, strings.ToLower(c.ID)) {
			s += 15
		}
		return s
	}

	for _, c := range d.registry.List() {
		if s := score(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	for _, c := range d.discovery.Active() {
		if s := score(c); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best
}

// Dispatch runs the full single-call pipeline: resolve, budget, payment,
// params, backend, ledger, settlement.
func (d *Dispatcher) Dispatch(ctx context.Context, in DispatchInput, caller Caller) (*DispatchOutcome, error) {
	start := time.Now()

	cap, err := d.Resolve(ctx, in)
	if err != nil {
		return nil, err
	}

	// Budget is checked before any payment is requested, comparing in
	// micro-units with the budget truncated toward zero.
	if in.Budget != "" {
		budgetMicros, perr := entities.ParseUSD(in.Budget, entities.RoundDown)
		if perr != nil {
			return nil, domainerrors.BadRequest(domainerrors.CodeOverBudget, "unparseable budget "+in.Budget)
		}
		if cap.CostMicros > budgetMicros {
			return nil, domainerrors.BadRequest(domainerrors.CodeOverBudget,
				cap.ID+" costs "+cap.Price+" which exceeds budget "+in.Budget)
		}
	}

	if cap.Source == entities.SourceDiscovered {
		if err := CheckEndpoint(cap.Endpoint); err != nil {
			return nil, err
		}
	}

	payment, err := d.gate.Charge(ctx, caller.PeerIP, caller.PaymentHeader,
		caller.Resource, cap.Name+" via Pylon gateway", cap.CostMicros)
	if err != nil {
		return nil, err
	}

	params := in.Params
	if len(params) == 0 {
		params = ExtractParams(in.Task, cap.Inputs)
	}
	ApplyDefaults(params, cap.Inputs)

	callerID := d.callerID(caller, payment)

	if missing := MissingRequired(params, cap.Inputs); len(missing) > 0 {
		// The payment is already verified; the ledger keeps the failed,
		// billed call so spend reconciles against settlement.
		d.appendUsage(ctx, callerID, cap.ID, cap.CostMicros, false, time.Since(start))
		d.gate.SettleAsync(payment)
		return nil, domainerrors.BadRequest(domainerrors.CodeMissingParams, "missing required params").
			WithDetail(map[string]any{
				"missing":   missing,
				"schema":    cap.Inputs,
				"extracted": params,
			})
	}

	result, err := d.executor.Do(ctx, cap, params)
	if err != nil {
		billed := cap.CostMicros
		if appErr, ok := err.(*domainerrors.AppError); ok && appErr.Code == domainerrors.CodeCircuitOpen {
			// The breaker rejected the call before the backend was contacted;
			// nothing is settled, nothing is billed.
			billed = 0
		} else {
			d.gate.SettleAsync(payment)
		}
		d.appendUsage(ctx, callerID, cap.ID, billed, false, time.Since(start))
		return nil, err
	}

	d.appendUsage(ctx, callerID, cap.ID, cap.CostMicros, true, time.Since(start))
	d.gate.SettleAsync(payment)

	outcome := &DispatchOutcome{
		Success: true,
		Capability: CapabilitySummary{
			ID:     cap.ID,
			Name:   cap.Name,
			Cost:   cap.Price,
			Source: cap.Source,
		},
		Params: params,
		Result: result,
		Meta: Meta{
			ContentType: result.ContentType,
			DurationMs:  time.Since(start).Milliseconds(),
			Gateway:     "pylon",
			Version:     d.version,
			Retries:     result.Retries,
			Quality: Quality{
				BackendStatus:     result.BackendStatus,
				BackendResponseMs: result.BackendMs,
				GatewayOverheadMs: time.Since(start).Milliseconds() - result.BackendMs,
			},
		},
	}

	if cap.Source == entities.SourceDiscovered {
		outcome.Pricing = &Pricing{
			ProviderCost: entities.FormatUSD(cap.ProviderCostMicros),
			GatewayFee:   entities.FormatUSD(cap.GatewayFeeMicros()),
			Total:        cap.Price,
		}
	}

	if in.Capability == "" && LooksMultiStep(in.Task) {
		outcome.MultiStepHint = "this task looks like a multi-step chain; POST /do/chain can plan and pipe it"
	}

	return outcome, nil
}

func (d *Dispatcher) callerID(caller Caller, payment *Payment) string {
	if caller.Wallet != "" {
		return caller.Wallet
	}
	if payment != nil && payment.ProofID != "" {
		return payment.ProofID
	}
	return entities.AnonymousCaller
}

func (d *Dispatcher) appendUsage(ctx context.Context, callerID, capabilityID string, costMicros int64, success bool, latency time.Duration) {
	rec := &entities.UsageRecord{
		CallerID:     callerID,
		CapabilityID: capabilityID,
		CostMicros:   costMicros,
		Success:      success,
		LatencyMs:    latency.Milliseconds(),
	}
	if err := d.usage.Append(ctx, rec); err != nil {
		logger.Error(ctx, "usage append failed",
			zap.String("caller", callerID),
			zap.String("capability", capabilityID),
			zap.Error(err))
	}
}
