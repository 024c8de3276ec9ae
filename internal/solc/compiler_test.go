package solc

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"dappforge/internal/pipeline"
)

func memOnlyCache() *SourceCache {
	return NewSourceCache("", "v5.0.2")
}

func newTestCompiler(t *testing.T, output string) (*Compiler, *[]stdInput) {
	t.Helper()
	inputs := &[]stdInput{}
	c := NewCompiler("solc", memOnlyCache())
	c.run = func(ctx context.Context, raw []byte) ([]byte, error) {
		var in stdInput
		if err := json.Unmarshal(raw, &in); err != nil {
			t.Fatalf("compiler produced invalid standard-json input: %v", err)
		}
		*inputs = append(*inputs, in)
		return []byte(output), nil
	}
	return c, inputs
}

func TestCompileSuccess(t *testing.T) {
	out := `{
		"errors": [{"severity": "warning", "formattedMessage": "Warning: unused variable"}],
		"contracts": {"contracts/Counter.sol": {"Counter": {"evm": {"bytecode": {"object": "6080"}}}}}
	}`
	c, inputs := newTestCompiler(t, out)

	res, err := c.Compile(context.Background(), []pipeline.ContractFile{
		{Name: "Counter.sol", Content: "pragma solidity ^0.8.24;\ncontract Counter {}"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, errors: %v", res.Errors)
	}
	if res.Bytecode != "0x6080" {
		t.Errorf("unexpected bytecode %q", res.Bytecode)
	}
	if len(res.Warnings) != 1 {
		t.Errorf("expected warning partition, got %+v", res)
	}

	in := (*inputs)[0]
	if in.Language != "Solidity" {
		t.Errorf("unexpected language %q", in.Language)
	}
	if _, ok := in.Sources["contracts/Counter.sol"]; !ok {
		t.Errorf("contract missing from sources: %v", in.Sources)
	}
}

func TestCompileDiagnosticsPartitioned(t *testing.T) {
	out := `{"errors": [
		{"severity": "error", "formattedMessage": "ParserError: expected ';'"},
		{"severity": "warning", "formattedMessage": "Warning: SPDX license identifier not provided"}
	]}`
	c, _ := newTestCompiler(t, out)

	res, err := c.Compile(context.Background(), []pipeline.ContractFile{{Name: "Bad.sol", Content: "contract Bad {"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if len(res.Errors) != 1 || len(res.Warnings) != 1 {
		t.Errorf("diagnostics not partitioned: errors=%v warnings=%v", res.Errors, res.Warnings)
	}
	if res.Bytecode != "" {
		t.Error("failed compilation must not carry bytecode")
	}
}

func TestCompileResolvesOpenZeppelinImports(t *testing.T) {
	c, inputs := newTestCompiler(t, `{}`)
	c.cache.fetch = func(ctx context.Context, importPath string) (string, error) {
		switch importPath {
		case "@openzeppelin/contracts/token/ERC20/ERC20.sol":
			return `import "./IERC20.sol"; contract ERC20 {}`, nil
		case "@openzeppelin/contracts/token/ERC20/IERC20.sol":
			return "interface IERC20 {}", nil
		}
		return "", fmt.Errorf("unexpected fetch %q", importPath)
	}

	src := `pragma solidity ^0.8.24;
import "@openzeppelin/contracts/token/ERC20/ERC20.sol";
contract Token is ERC20 {}`
	if _, err := c.Compile(context.Background(), []pipeline.ContractFile{{Name: "Token.sol", Content: src}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	in := (*inputs)[0]
	for _, want := range []string{
		"contracts/Token.sol",
		"@openzeppelin/contracts/token/ERC20/ERC20.sol",
		"@openzeppelin/contracts/token/ERC20/IERC20.sol",
	} {
		if _, ok := in.Sources[want]; !ok {
			t.Errorf("source set missing %q: %v", want, sourceNames(in))
		}
	}
}

func TestCompileUnresolvableImportIsCompileError(t *testing.T) {
	c, inputs := newTestCompiler(t, `{}`)

	src := `import "github.com/unknown/lib/Thing.sol"; contract A {}`
	res, err := c.Compile(context.Background(), []pipeline.ContractFile{{Name: "A.sol", Content: src}})
	if err != nil {
		t.Fatalf("unresolvable imports must degrade to compile errors, got %v", err)
	}
	if res.Success {
		t.Fatal("expected failure")
	}
	if len(res.Errors) == 0 || !strings.Contains(res.Errors[0], "unresolvable import") {
		t.Errorf("unexpected errors %v", res.Errors)
	}
	if len(*inputs) != 0 {
		t.Error("solc must not be invoked when imports cannot be resolved")
	}
}

func TestCompileFetchFailureIsCompileError(t *testing.T) {
	c, _ := newTestCompiler(t, `{}`)
	c.cache.fetch = func(ctx context.Context, importPath string) (string, error) {
		return "", fmt.Errorf("failed to fetch %s: status 404", importPath)
	}

	src := `import "@openzeppelin/contracts/missing/Nope.sol"; contract A {}`
	res, err := c.Compile(context.Background(), []pipeline.ContractFile{{Name: "A.sol", Content: src}})
	if err != nil {
		t.Fatalf("fetch failures must degrade to compile errors, got %v", err)
	}
	if res.Success || len(res.Errors) == 0 {
		t.Errorf("expected compile error, got %+v", res)
	}
}

func TestSourceCacheMemoization(t *testing.T) {
	cache := memOnlyCache()
	fetches := 0
	cache.fetch = func(ctx context.Context, importPath string) (string, error) {
		fetches++
		return "contract X {}", nil
	}

	for i := 0; i < 3; i++ {
		src, err := cache.Resolve(context.Background(), "@openzeppelin/contracts/utils/Context.sol")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if src != "contract X {}" {
			t.Fatalf("unexpected source %q", src)
		}
	}
	if fetches != 1 {
		t.Errorf("expected 1 fetch, got %d", fetches)
	}
}

func TestCollectImportsRelativeNormalization(t *testing.T) {
	imports := collectImports("@openzeppelin/contracts/token/ERC20/ERC20.sol",
		`import {Context} from "../../utils/Context.sol";`)
	if len(imports) != 1 || imports[0] != "@openzeppelin/contracts/utils/Context.sol" {
		t.Errorf("relative import not normalized: %v", imports)
	}
}

func sourceNames(in stdInput) []string {
	names := make([]string, 0, len(in.Sources))
	for n := range in.Sources {
		names = append(names, n)
	}
	return names
}
