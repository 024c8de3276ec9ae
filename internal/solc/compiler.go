// Package solc - Solidity Compiler Adapter
// Drives the solc binary in standard-json mode, resolving pinned
// OpenZeppelin imports up front so the compiler sees a closed source
// set. Unresolved imports surface as normal compile errors.
package solc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"dappforge/internal/logging"
	"dappforge/internal/pipeline"
)

var importRe = regexp.MustCompile(`import\s+(?:[^"';]*?from\s+)?["']([^"']+)["']`)

// Compiler implements the pipeline Compiler over a solc subprocess.
type Compiler struct {
	binary string
	cache  *SourceCache
	// run is swappable in tests; defaults to invoking the binary.
	run func(ctx context.Context, input []byte) ([]byte, error)
}

// NewCompiler creates a compiler adapter. binary is the solc executable
// path; cache resolves @openzeppelin imports.
func NewCompiler(binary string, cache *SourceCache) *Compiler {
	c := &Compiler{binary: binary, cache: cache}
	c.run = c.invoke
	return c
}

// standard-json input/output shapes, trimmed to the fields used.

type stdInput struct {
	Language string               `json:"language"`
	Sources  map[string]stdSource `json:"sources"`
	Settings stdSettings          `json:"settings"`
}

type stdSource struct {
	Content string `json:"content"`
}

type stdSettings struct {
	Optimizer       stdOptimizer                   `json:"optimizer"`
	OutputSelection map[string]map[string][]string `json:"outputSelection"`
}

type stdOptimizer struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

type stdOutput struct {
	Errors    []stdError                        `json:"errors"`
	Contracts map[string]map[string]stdContract `json:"contracts"`
}

type stdError struct {
	Severity         string `json:"severity"`
	FormattedMessage string `json:"formattedMessage"`
	Message          string `json:"message"`
}

type stdContract struct {
	EVM struct {
		Bytecode struct {
			Object string `json:"object"`
		} `json:"bytecode"`
	} `json:"evm"`
}

// Compile runs one standard-json compilation over the contract set.
// Adapter-level failures (missing binary, malformed output) are
// returned as errors; Solidity diagnostics always come back inside the
// CompileResult.
func (c *Compiler) Compile(ctx context.Context, contracts []pipeline.ContractFile) (pipeline.CompileResult, error) {
	sources := make(map[string]stdSource, len(contracts))
	for _, contract := range contracts {
		sources["contracts/"+contract.Name] = stdSource{Content: contract.Content}
	}

	if errs := c.resolveImports(ctx, sources); len(errs) > 0 {
		return pipeline.CompileResult{Success: false, Errors: errs}, nil
	}

	input, err := json.Marshal(stdInput{
		Language: "Solidity",
		Sources:  sources,
		Settings: stdSettings{
			Optimizer:       stdOptimizer{Enabled: true, Runs: 200},
			OutputSelection: map[string]map[string][]string{"*": {"*": {"abi", "evm.bytecode.object"}}},
		},
	})
	if err != nil {
		return pipeline.CompileResult{}, fmt.Errorf("failed to encode compiler input: %w", err)
	}

	raw, err := c.run(ctx, input)
	if err != nil {
		return pipeline.CompileResult{}, err
	}

	var out stdOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return pipeline.CompileResult{}, fmt.Errorf("failed to decode compiler output: %w", err)
	}

	result := pipeline.CompileResult{Success: true}
	for _, e := range out.Errors {
		msg := e.FormattedMessage
		if msg == "" {
			msg = e.Message
		}
		if e.Severity == "error" {
			result.Success = false
			result.Errors = append(result.Errors, msg)
		} else {
			result.Warnings = append(result.Warnings, msg)
		}
	}

	if result.Success {
		result.Bytecode = firstBytecode(out)
	}
	return result, nil
}

// resolveImports walks @openzeppelin imports transitively, adding each
// resolved source to the compilation set. Relative imports inside
// library files are normalized against the importing file's directory.
func (c *Compiler) resolveImports(ctx context.Context, sources map[string]stdSource) []string {
	var errs []string

	pending := make([]string, 0)
	for name, src := range sources {
		pending = append(pending, collectImports(name, src.Content)...)
	}

	for len(pending) > 0 {
		imp := pending[0]
		pending = pending[1:]

		if _, done := sources[imp]; done {
			continue
		}
		if !strings.HasPrefix(imp, ozPrefix) {
			errs = append(errs, fmt.Sprintf("Error: unresolvable import %q: only local contracts and %s imports are supported", imp, ozPrefix))
			continue
		}

		src, err := c.cache.Resolve(ctx, imp)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Error: %v", err))
			continue
		}
		sources[imp] = stdSource{Content: src}
		pending = append(pending, collectImports(imp, src)...)
	}

	return errs
}

// collectImports extracts import paths from one source file. Relative
// paths are resolved against the file's own location.
func collectImports(fileName, content string) []string {
	var imports []string
	for _, m := range importRe.FindAllStringSubmatch(content, -1) {
		imp := m[1]
		if strings.HasPrefix(imp, ".") {
			imp = path.Join(path.Dir(fileName), imp)
		}
		imports = append(imports, imp)
	}
	return imports
}

func firstBytecode(out stdOutput) string {
	for _, file := range out.Contracts {
		for _, contract := range file {
			if obj := contract.EVM.Bytecode.Object; obj != "" {
				return "0x" + obj
			}
		}
	}
	return ""
}

func (c *Compiler) invoke(ctx context.Context, input []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary, "--standard-json")
	cmd.Stdin = bytes.NewReader(input)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		// solc exits non-zero on internal faults only; diagnostics are
		// reported in the JSON output with exit 0.
		logging.L().Error("solc invocation failed",
			zap.Error(err),
			zap.String("stderr", stderr.String()))
		return nil, fmt.Errorf("solc invocation failed: %w", err)
	}
	return stdout.Bytes(), nil
}
