// Package plan - Project Plan Clarifier
// Turns a free-form user prompt into a structured project plan with one
// model call, before any code generation starts.
package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"dappforge/internal/pipeline"
)

// ModelClient is the text-generation primitive the clarifier needs.
// *ai.Router satisfies it.
type ModelClient interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Clarifier produces project plans from prompts.
type Clarifier struct {
	client ModelClient
}

func NewClarifier(client ModelClient) *Clarifier {
	return &Clarifier{client: client}
}

const clarifySystem = `You are a dApp architect. Given a user's request, respond with a single JSON object and nothing else:
{
  "contract_name": "PascalCase name of the main contract",
  "description": "one-paragraph summary of what will be built",
  "features": ["feature 1", "feature 2"],
  "pages": [{"path": "frontend/index.html", "description": "what the page shows"}]
}`

var jsonObjectRe = regexp.MustCompile(`(?s)\{.*\}`)

// Clarify produces a plan for one prompt. When the model response
// cannot be parsed, a minimal plan derived from the prompt is returned
// so the build can still proceed.
func (c *Clarifier) Clarify(ctx context.Context, prompt string) (pipeline.ProjectPlan, error) {
	if strings.TrimSpace(prompt) == "" {
		return pipeline.ProjectPlan{}, fmt.Errorf("prompt is required")
	}

	response, err := c.client.Generate(ctx, clarifySystem, prompt)
	if err != nil {
		return pipeline.ProjectPlan{}, fmt.Errorf("model request failed: %w", err)
	}

	plan, ok := parsePlan(response)
	if !ok {
		return fallbackPlan(prompt), nil
	}
	if plan.ContractName == "" {
		plan.ContractName = "App"
	}
	if plan.Description == "" {
		plan.Description = prompt
	}
	return plan, nil
}

// parsePlan extracts the first JSON object from the response, tolerating
// surrounding prose and markdown fences.
func parsePlan(response string) (pipeline.ProjectPlan, bool) {
	raw := jsonObjectRe.FindString(response)
	if raw == "" {
		return pipeline.ProjectPlan{}, false
	}
	var plan pipeline.ProjectPlan
	if err := json.Unmarshal([]byte(raw), &plan); err != nil {
		return pipeline.ProjectPlan{}, false
	}
	return plan, true
}

func fallbackPlan(prompt string) pipeline.ProjectPlan {
	return pipeline.ProjectPlan{
		ContractName: "App",
		Description:  strings.TrimSpace(prompt),
	}
}
