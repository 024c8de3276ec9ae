// Package fixer - AI Repair Loop
// Asks the model to repair compilation errors, security findings, and
// failing tests. An unparseable model response always resolves to the
// unmodified input, never to an error or an empty file set.
package fixer

import (
	"context"
	"fmt"
	"strings"

	"dappforge/internal/codegen"
	"dappforge/internal/pipeline"
)

// ModelClient is the text-generation primitive the fixer needs.
// *ai.Router satisfies it.
type ModelClient interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// Fixer implements the pipeline repair operations over one model client.
type Fixer struct {
	client ModelClient
}

func New(client ModelClient) *Fixer {
	return &Fixer{client: client}
}

const fixSystemPrompt = `You are an expert Solidity engineer repairing an existing codebase. Return every file you change, complete and compilable.

Output format (strict):
- Before each file, emit a marker line: // File: path/to/file.ext
- Follow the marker with the complete file content in a fenced code block.
- Return only changed files; unreturned files stay as they are.`

// FixCompilation asks the model to repair compiler errors. The returned
// set is never empty: files the model did not return are carried over
// unchanged, and an unparseable response yields the original contracts.
func (f *Fixer) FixCompilation(ctx context.Context, contracts []pipeline.ContractFile, errs []string) ([]pipeline.ContractFile, error) {
	var b strings.Builder
	b.WriteString("These Solidity contracts fail to compile.\n\nCompiler errors:\n")
	for _, e := range errs {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	writeContracts(&b, contracts)
	b.WriteString("\nFix every error. Do not change behavior beyond what the errors require.\n")

	response, err := f.client.Generate(ctx, fixSystemPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	return mergeContracts(contracts, response), nil
}

// FixSecurity asks the model to address scanner findings. Same
// fallback-to-original semantics as FixCompilation.
func (f *Fixer) FixSecurity(ctx context.Context, contracts []pipeline.ContractFile, warnings []pipeline.SecurityWarning) ([]pipeline.ContractFile, error) {
	var b strings.Builder
	b.WriteString("A security scan flagged these Solidity contracts.\n\nFindings:\n")
	for _, w := range warnings {
		loc := w.Contract
		if w.Line > 0 {
			loc = fmt.Sprintf("%s:%d", w.Contract, w.Line)
		}
		fmt.Fprintf(&b, "- [%s] %s (%s)\n", w.Severity, w.Message, loc)
	}
	writeContracts(&b, contracts)
	b.WriteString("\nResolve each finding while preserving the contract interfaces. The result must still compile.\n")

	response, err := f.client.Generate(ctx, fixSystemPrompt, b.String())
	if err != nil {
		return nil, fmt.Errorf("model request failed: %w", err)
	}
	return mergeContracts(contracts, response), nil
}

// FixTestFailures asks the model to repair failing tests. Both the
// contracts and the tests may change; the contract under test may be
// the real culprit.
func (f *Fixer) FixTestFailures(ctx context.Context, code pipeline.GeneratedCode, output string) (pipeline.GeneratedCode, error) {
	var b strings.Builder
	b.WriteString("The Hardhat test suite for this project is failing.\n\nTest output:\n```\n")
	b.WriteString(output)
	b.WriteString("\n```\n")
	writeContracts(&b, code.Contracts)
	for _, tf := range code.Tests {
		fmt.Fprintf(&b, "\n// File: test/%s\n```javascript\n%s\n```\n", tf.Name, tf.Content)
	}
	b.WriteString("\nMake the suite pass. Fix the contract when the contract is wrong, the test when the test is wrong.\n")

	response, err := f.client.Generate(ctx, fixSystemPrompt, b.String())
	if err != nil {
		return pipeline.GeneratedCode{}, fmt.Errorf("model request failed: %w", err)
	}

	parsed := codegen.ParseResponse(response)
	if !parsed.Ok() {
		return code.Clone(), nil
	}

	fixed := codegen.Classify(parsed.Files)
	out := code.Clone()
	out.Contracts = overlayContracts(out.Contracts, fixed.Contracts)
	out.Tests = overlayTests(out.Tests, fixed.Tests)
	return out, nil
}

func writeContracts(b *strings.Builder, contracts []pipeline.ContractFile) {
	for _, c := range contracts {
		fmt.Fprintf(b, "\n// File: contracts/%s\n```solidity\n%s\n```\n", c.Name, c.Content)
	}
}

// mergeContracts overlays parsed model output on the originals. An
// empty parse returns the originals untouched.
func mergeContracts(original []pipeline.ContractFile, response string) []pipeline.ContractFile {
	parsed := codegen.ParseResponse(response)
	if !parsed.Ok() {
		return original
	}
	fixed := codegen.Classify(parsed.Files).Contracts
	if len(fixed) == 0 {
		return original
	}
	return overlayContracts(original, fixed)
}

func overlayContracts(original, fixed []pipeline.ContractFile) []pipeline.ContractFile {
	out := make([]pipeline.ContractFile, len(original))
	copy(out, original)
	for _, f := range fixed {
		replaced := false
		for i := range out {
			if out[i].Name == f.Name {
				out[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, f)
		}
	}
	return out
}

func overlayTests(original, fixed []pipeline.TestFile) []pipeline.TestFile {
	out := make([]pipeline.TestFile, len(original))
	copy(out, original)
	for _, f := range fixed {
		replaced := false
		for i := range out {
			if out[i].Name == f.Name {
				out[i] = f
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, f)
		}
	}
	return out
}
