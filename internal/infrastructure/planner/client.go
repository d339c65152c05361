// Package planner turns a free-form task into an executable chain of
// capability invocations using an external LLM. The model only plans; the
// orchestrator validates and executes.
package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// CatalogEntry is the capability summary shown to the model.
type CatalogEntry struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Cost        string         `json:"cost"`
	Inputs      map[string]any `json:"inputs"`
	Output      string         `json:"output"`
}

// Step is one planned invocation. InputMapping values are dotted paths into
// earlier step results ("steps[0].content").
type Step struct {
	CapabilityID string            `json:"capabilityId"`
	Params       map[string]any    `json:"params,omitempty"`
	InputMapping map[string]string `json:"inputMapping,omitempty"`
}

// Plan is the model's raw output, before orchestrator validation.
type Plan struct {
	Steps         []Step `json:"steps"`
	EstimatedCost string `json:"estimatedCost"`
}

const systemPrompt = `You are a strict API call planner for a capability gateway.
Given a task and a capability catalog, respond with ONLY a JSON object of the form
{"steps":[{"capabilityId":"...","params":{...},"inputMapping":{...}}],"estimatedCost":"$0.00"}.
Rules:
- Use between 1 and 5 steps, only capability ids from the catalog.
- params holds literal values taken from the task.
- inputMapping maps a parameter name to a dotted path into an earlier step's
  output, of the form steps[N].field or steps[N].field.subfield. No expressions.
- estimatedCost is the sum of the chosen capabilities' costs.
- No prose, no markdown fences, JSON only.`

// Client plans chains with the Anthropic messages API.
type Client struct {
	client anthropic.Client
	model  string
}

// NewClient creates a planner client. The 60s request timeout bounds one
// planning call.
func NewClient(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(
			option.WithAPIKey(apiKey),
			option.WithRequestTimeout(60*time.Second),
		),
		model: model,
	}
}

// Plan submits the task and catalog and parses the strict-JSON reply.
func (c *Client) Plan(ctx context.Context, task string, catalog []CatalogEntry) (*Plan, error) {
	catalogJSON, err := json.Marshal(catalog)
	if err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}

	user := fmt.Sprintf("Task: %s\n\nCapability catalog:\n%s", task, catalogJSON)

	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: 1024,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("planner request: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return ParsePlan(text.String())
}

// ParsePlan decodes a model reply into a Plan, tolerating stray markdown
// fences around the JSON.
func ParsePlan(raw string) (*Plan, error) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	var plan Plan
	if err := json.Unmarshal([]byte(s), &plan); err != nil {
		return nil, fmt.Errorf("planner returned invalid JSON: %w", err)
	}
	if len(plan.Steps) == 0 {
		return nil, fmt.Errorf("planner returned no steps")
	}
	return &plan, nil
}
