package entities

// MaxChainSteps bounds a plan; the planner is instructed to stay within it
// and the orchestrator rejects anything longer.
const MaxChainSteps = 5

// MaxChainCostMicros is the hard gateway ceiling on a chain's total
// estimated cost ($0.50), independent of the caller's budget.
const MaxChainCostMicros = 500_000

// ChainStep is one planned capability invocation. InputMapping values are
// dotted paths into earlier step outputs ("steps[0].content").
type ChainStep struct {
	CapabilityID string            `json:"capabilityId"`
	Params       map[string]any    `json:"params,omitempty"`
	InputMapping map[string]string `json:"inputMapping,omitempty"`
	CostMicros   int64             `json:"-"`
	Cost         string            `json:"cost"`
}

// ChainPlan is the ordered sequence the planner produced and the
// orchestrator validated.
type ChainPlan struct {
	Steps           []ChainStep `json:"steps"`
	EstimatedMicros int64       `json:"-"`
	EstimatedCost   string      `json:"estimatedCost"`
}

// StepResult is the outcome of executing one chain step.
type StepResult struct {
	Index        int            `json:"step"`
	CapabilityID string         `json:"capabilityId"`
	Params       map[string]any `json:"params"`
	Result       *CallResult    `json:"result,omitempty"`
	Cost         string         `json:"cost"`
	DurationMs   int64          `json:"durationMs"`
	Success      bool           `json:"success"`
	Error        string         `json:"error,omitempty"`
}
