package usecases

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pylon-apis/pylon/internal/domain/entities"
	domainerrors "github.com/pylon-apis/pylon/internal/domain/errors"
	"github.com/pylon-apis/pylon/internal/domain/repositories"
	"github.com/pylon-apis/pylon/internal/infrastructure/planner"
	"github.com/pylon-apis/pylon/pkg/logger"
)

// ChainPlanner turns a task into a raw plan. Implemented by the LLM client;
// tests substitute a canned planner.
type ChainPlanner interface {
	Plan(ctx context.Context, task string, catalog []planner.CatalogEntry) (*planner.Plan, error)
}

// Chain execution bounds.
const (
	stepTimeout  = 30 * time.Second
	chainTimeout = 120 * time.Second
)

// ChainInput is the body of POST /do/chain.
type ChainInput struct {
	Task   string `json:"task"`
	Budget string `json:"budget"`
	DryRun bool   `json:"dryRun"`
}

// StepCost is one row of the chain cost breakdown.
type StepCost struct {
	CapabilityID string `json:"capabilityId"`
	Cost         string `json:"cost"`
}

// ChainOutcome is the success envelope of POST /do/chain.
type ChainOutcome struct {
	Success     bool                  `json:"success"`
	DryRun      bool                  `json:"dryRun,omitempty"`
	Plan        *entities.ChainPlan   `json:"plan"`
	FinalResult *entities.CallResult  `json:"finalResult,omitempty"`
	AllSteps    []entities.StepResult `json:"allSteps,omitempty"`
	Breakdown   []StepCost            `json:"costBreakdown,omitempty"`
	TotalCost   string                `json:"totalCost"`
	DurationMs  int64                 `json:"durationMs"`
}

// Orchestrator plans and executes multi-step chains sharing one payment.
type Orchestrator struct {
	planner  ChainPlanner
	registry CapabilityRegistry
	executor CallExecutor
	gate     *PaymentGate
	usage    repositories.UsageRepository
}

// NewOrchestrator creates the orchestrator.
func NewOrchestrator(
	p ChainPlanner,
	reg CapabilityRegistry,
	executor CallExecutor,
	gate *PaymentGate,
	usage repositories.UsageRepository,
) *Orchestrator {
	return &Orchestrator{planner: p, registry: reg, executor: executor, gate: gate, usage: usage}
}

// Run plans the chain, takes a single up-front payment for the whole total,
// and executes the steps sequentially with output piping.
func (o *Orchestrator) Run(ctx context.Context, in ChainInput, caller Caller) (*ChainOutcome, error) {
	start := time.Now()

	if strings.TrimSpace(in.Task) == "" {
		return nil, domainerrors.BadRequest(domainerrors.CodeMissingTask, "chain request needs a task")
	}

	plan, err := o.plan(ctx, in)
	if err != nil {
		// Planner-level failures never bill the caller.
		return nil, err
	}

	if in.DryRun {
		return &ChainOutcome{
			Success:    true,
			DryRun:     true,
			Plan:       plan,
			TotalCost:  plan.EstimatedCost,
			DurationMs: time.Since(start).Milliseconds(),
		}, nil
	}

	payment, err := o.gate.Charge(ctx, caller.PeerIP, caller.PaymentHeader,
		caller.Resource, fmt.Sprintf("%d-step chain via Pylon gateway", len(plan.Steps)),
		plan.EstimatedMicros)
	if err != nil {
		return nil, err
	}

	callerID := callerIdentity(caller, payment)
	results, appErr := o.execute(ctx, plan, callerID)

	if appErr != nil {
		// Completed steps were real backend work on a verified payment;
		// settlement proceeds unless the chain never reached a backend.
		if len(results) > 0 || appErr.Code != domainerrors.CodeCircuitOpen {
			o.gate.SettleAsync(payment)
		}
		return nil, appErr
	}

	o.gate.SettleAsync(payment)

	breakdown := make([]StepCost, len(plan.Steps))
	for i, step := range plan.Steps {
		breakdown[i] = StepCost{CapabilityID: step.CapabilityID, Cost: step.Cost}
	}

	return &ChainOutcome{
		Success:     true,
		Plan:        plan,
		FinalResult: results[len(results)-1].Result,
		AllSteps:    results,
		Breakdown:   breakdown,
		TotalCost:   plan.EstimatedCost,
		DurationMs:  time.Since(start).Milliseconds(),
	}, nil
}

// plan asks the planner and validates its output against the registry, the
// step ceiling, and the cost ceiling.
func (o *Orchestrator) plan(ctx context.Context, in ChainInput) (*entities.ChainPlan, error) {
	catalog := make([]planner.CatalogEntry, 0, len(o.registry.List()))
	for _, c := range o.registry.List() {
		inputs := make(map[string]any, len(c.Inputs))
		for name, f := range c.Inputs {
			inputs[name] = f
		}
		catalog = append(catalog, planner.CatalogEntry{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			Cost:        c.Price,
			Inputs:      inputs,
			Output:      string(c.Output),
		})
	}

	raw, err := o.planner.Plan(ctx, in.Task, catalog)
	if err != nil {
		return nil, domainerrors.BadRequest(domainerrors.CodeOrchestrationFailed,
			"could not plan this task")
	}
	if len(raw.Steps) < 1 || len(raw.Steps) > entities.MaxChainSteps {
		return nil, domainerrors.BadRequest(domainerrors.CodeOrchestrationFailed,
			fmt.Sprintf("plan has %d steps, allowed 1..%d", len(raw.Steps), entities.MaxChainSteps))
	}

	ceiling := int64(entities.MaxChainCostMicros)
	if in.Budget != "" {
		budgetMicros, perr := entities.ParseUSD(in.Budget, entities.RoundDown)
		if perr != nil {
			return nil, domainerrors.BadRequest(domainerrors.CodeOverBudget, "unparseable budget "+in.Budget)
		}
		if budgetMicros < ceiling {
			ceiling = budgetMicros
		}
	}

	plan := &entities.ChainPlan{Steps: make([]entities.ChainStep, 0, len(raw.Steps))}
	for _, rs := range raw.Steps {
		c, ok := o.registry.ByID(rs.CapabilityID)
		if !ok {
			return nil, domainerrors.BadRequest(domainerrors.CodeOrchestrationFailed,
				"plan names unknown capability "+rs.CapabilityID)
		}
		plan.Steps = append(plan.Steps, entities.ChainStep{
			CapabilityID: rs.CapabilityID,
			Params:       rs.Params,
			InputMapping: rs.InputMapping,
			CostMicros:   c.CostMicros,
			Cost:         c.Price,
		})
		plan.EstimatedMicros += c.CostMicros
	}
	plan.EstimatedCost = entities.FormatUSD(plan.EstimatedMicros)

	if plan.EstimatedMicros > ceiling {
		return nil, domainerrors.BadRequest(domainerrors.CodeOverBudget,
			"chain costs "+plan.EstimatedCost+" which exceeds the allowed "+entities.FormatUSD(ceiling))
	}
	return plan, nil
}

// execute runs the steps strictly in order. Returns the completed step
// results and, on failure, the error with partial results attached.
func (o *Orchestrator) execute(ctx context.Context, plan *entities.ChainPlan, callerID string) ([]entities.StepResult, *domainerrors.AppError) {
	ctx, cancel := context.WithTimeout(ctx, chainTimeout)
	defer cancel()

	results := make([]entities.StepResult, 0, len(plan.Steps))
	views := make([]map[string]any, 0, len(plan.Steps))

	for i, step := range plan.Steps {
		c, _ := o.registry.ByID(step.CapabilityID)

		params := map[string]any{}
		ApplyDefaults(params, c.Inputs)
		for k, v := range step.Params {
			params[k] = v
		}
		for k, path := range step.InputMapping {
			if v, ok := resolvePath(path, views); ok {
				params[k] = v
			}
		}

		stepStart := time.Now()
		stepCtx, stepCancel := context.WithTimeout(ctx, stepTimeout)
		result, err := o.executor.Do(stepCtx, c, params)
		stepCancel()
		elapsed := time.Since(stepStart)

		if err != nil {
			o.appendStepUsage(ctx, callerID, step, false, elapsed, err)
			return results, stepError(ctx, i, step.CapabilityID, err, results)
		}

		o.appendStepUsage(ctx, callerID, step, true, elapsed, nil)
		results = append(results, entities.StepResult{
			Index:        i,
			CapabilityID: step.CapabilityID,
			Params:       params,
			Result:       result,
			Cost:         step.Cost,
			DurationMs:   elapsed.Milliseconds(),
			Success:      true,
		})
		views = append(views, resultView(result))
	}
	return results, nil
}

func (o *Orchestrator) appendStepUsage(ctx context.Context, callerID string, step entities.ChainStep, success bool, latency time.Duration, stepErr error) {
	cost := step.CostMicros
	var appErr *domainerrors.AppError
	if errors.As(stepErr, &appErr) && appErr.Code == domainerrors.CodeCircuitOpen {
		cost = 0
	}
	rec := &entities.UsageRecord{
		CallerID:     callerID,
		CapabilityID: step.CapabilityID,
		CostMicros:   cost,
		Success:      success,
		LatencyMs:    latency.Milliseconds(),
	}
	if err := o.usage.Append(ctx, rec); err != nil {
		logger.Error(ctx, "usage append failed", zap.String("capability", step.CapabilityID), zap.Error(err))
	}
}

func stepError(ctx context.Context, index int, capabilityID string, err error, partial []entities.StepResult) *domainerrors.AppError {
	detail := map[string]any{
		"failedStep": index,
		"capability": capabilityID,
		"steps":      partial,
	}

	var appErr *domainerrors.AppError
	switch {
	case ctx.Err() != nil:
		appErr = domainerrors.GatewayTimeout(domainerrors.CodeTotalTimeout, "chain exceeded the total time budget")
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(err, domainerrors.ErrBackendTimeout):
		appErr = domainerrors.GatewayTimeout(domainerrors.CodeStepTimeout,
			fmt.Sprintf("step %d (%s) timed out", index, capabilityID))
	case errors.As(err, &appErr) && appErr.Code == domainerrors.CodeCircuitOpen:
		// keep the circuit_open code and status
	default:
		appErr = domainerrors.BadGateway(domainerrors.CodeStepFailed,
			fmt.Sprintf("step %d (%s) failed: %v", index, capabilityID, err))
	}
	return appErr.WithDetail(detail)
}

// resultView flattens a step result for input-mapping lookups: JSON objects
// are navigable directly, binary and text payloads appear under fixed keys.
func resultView(result *entities.CallResult) map[string]any {
	view := map[string]any{
		"contentType": result.ContentType,
	}
	if obj, ok := result.JSON.(map[string]any); ok {
		for k, v := range obj {
			view[k] = v
		}
	} else if result.JSON != nil {
		view["json"] = result.JSON
	}
	if result.Data != "" {
		view["data"] = result.Data
	}
	if result.Text != "" {
		view["text"] = result.Text
	}
	return view
}

var stepPathPattern = regexp.MustCompile(`^steps\[(\d+)\]\.(.+)$`)

// resolvePath resolves "steps[N].field.sub" against prior step views. A pure
// lookup: no interpolation, no expressions. Unresolvable paths report false
// so the literal param wins.
func resolvePath(path string, views []map[string]any) (any, bool) {
	m := stepPathPattern.FindStringSubmatch(path)
	if m == nil {
		return nil, false
	}
	var index int
	if _, err := fmt.Sscanf(m[1], "%d", &index); err != nil {
		return nil, false
	}
	if index < 0 || index >= len(views) {
		return nil, false
	}

	var current any = views[index]
	for _, key := range strings.Split(m[2], ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[key]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func callerIdentity(caller Caller, payment *Payment) string {
	if caller.Wallet != "" {
		return caller.Wallet
	}
	if payment != nil && payment.ProofID != "" {
		return payment.ProofID
	}
	return entities.AnonymousCaller
}
