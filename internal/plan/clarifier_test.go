package plan

import (
	"context"
	"fmt"
	"testing"
)

type scriptedModel struct {
	response string
	err      error
}

func (m *scriptedModel) Generate(ctx context.Context, system, prompt string) (string, error) {
	return m.response, m.err
}

func TestClarifyParsesStructuredPlan(t *testing.T) {
	response := "Here is the plan:\n```json\n" +
		`{"contract_name": "VotingDAO", "description": "on-chain voting", "features": ["proposals", "voting"], "pages": [{"path": "frontend/index.html", "description": "ballot"}]}` +
		"\n```"
	c := NewClarifier(&scriptedModel{response: response})

	plan, err := c.Clarify(context.Background(), "build me a voting dapp")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.ContractName != "VotingDAO" {
		t.Errorf("unexpected contract name %q", plan.ContractName)
	}
	if len(plan.Features) != 2 || len(plan.Pages) != 1 {
		t.Errorf("plan structure lost: %+v", plan)
	}
}

func TestClarifyUnparseableFallsBackToMinimalPlan(t *testing.T) {
	c := NewClarifier(&scriptedModel{response: "I would build you a voting dapp."})

	plan, err := c.Clarify(context.Background(), "build me a voting dapp")
	if err != nil {
		t.Fatalf("parse failure must not be an error: %v", err)
	}
	if plan.ContractName == "" {
		t.Error("fallback plan missing contract name")
	}
	if plan.Description != "build me a voting dapp" {
		t.Errorf("fallback plan should carry the prompt, got %q", plan.Description)
	}
}

func TestClarifyEmptyPromptIsError(t *testing.T) {
	c := NewClarifier(&scriptedModel{})
	if _, err := c.Clarify(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty prompt")
	}
}

func TestClarifyModelErrorPropagates(t *testing.T) {
	c := NewClarifier(&scriptedModel{err: fmt.Errorf("provider down")})
	if _, err := c.Clarify(context.Background(), "build something"); err == nil {
		t.Fatal("expected model error to propagate")
	}
}
