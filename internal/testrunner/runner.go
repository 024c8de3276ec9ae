// Package testrunner - Sandboxed Hardhat Execution
// Materializes contracts and tests into a throwaway Hardhat project,
// runs the test process in an isolated sandbox, and parses the mocha
// output into structured results.
package testrunner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"dappforge/internal/logging"
	"dappforge/internal/pipeline"
)

// Runner implements the pipeline TestRunner over a sandbox.
type Runner struct {
	sandbox sandbox
	rootDir string
	solcVer string
	timeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

func WithSolidityVersion(v string) Option {
	return func(r *Runner) { r.solcVer = v }
}

// NewRunner creates a test runner. rootDir is where throwaway project
// directories are created; it must be reachable by the sandbox.
func NewRunner(sb sandbox, rootDir string, opts ...Option) *Runner {
	r := &Runner{
		sandbox: sb,
		rootDir: rootDir,
		solcVer: "0.8.24",
		timeout: 2 * time.Minute,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run materializes the project, executes the suite, and parses results.
// The project directory is removed on every exit path.
func (r *Runner) Run(ctx context.Context, code pipeline.GeneratedCode) (pipeline.TestResult, error) {
	if len(code.Tests) == 0 {
		return pipeline.TestResult{}, fmt.Errorf("no test files to run")
	}

	projectDir, err := r.materialize(code)
	if err != nil {
		return pipeline.TestResult{}, err
	}
	defer func() {
		if rmErr := os.RemoveAll(projectDir); rmErr != nil {
			logging.S().Warnf("failed to remove test project %s: %v", projectDir, rmErr)
		}
	}()

	out, err := r.sandbox.Exec(ctx, projectDir, r.timeout)
	if err != nil {
		return pipeline.TestResult{}, fmt.Errorf("test execution failed: %w", err)
	}

	if out.TimedOut {
		return pipeline.TestResult{
			Success: false,
			Output:  "test run timed out\n" + out.Stdout + out.Stderr,
		}, nil
	}

	combined := out.Stdout
	if out.Stderr != "" {
		combined += "\n" + out.Stderr
	}
	return parseMochaOutput(combined, out.ExitCode), nil
}

// materialize writes a complete Hardhat project into a fresh directory
// under the runner's root.
func (r *Runner) materialize(code pipeline.GeneratedCode) (string, error) {
	projectDir := filepath.Join(r.rootDir, "run-"+uuid.New().String()[:8])
	for _, sub := range []string{"contracts", "test"} {
		if err := os.MkdirAll(filepath.Join(projectDir, sub), 0o755); err != nil {
			return "", fmt.Errorf("create test project: %w", err)
		}
	}

	files := map[string]string{
		"package.json":      r.packageJSON(),
		"hardhat.config.js": r.hardhatConfig(),
	}
	for _, c := range code.Contracts {
		files[filepath.Join("contracts", filepath.Base(c.Name))] = c.Content
	}
	for _, t := range code.Tests {
		files[filepath.Join("test", filepath.Base(t.Name))] = t.Content
	}

	for rel, content := range files {
		if err := os.WriteFile(filepath.Join(projectDir, rel), []byte(content), 0o644); err != nil {
			os.RemoveAll(projectDir)
			return "", fmt.Errorf("write %s: %w", rel, err)
		}
	}
	return projectDir, nil
}

func (r *Runner) packageJSON() string {
	return `{
  "name": "dapp-under-test",
  "private": true,
  "devDependencies": {
    "@nomicfoundation/hardhat-toolbox": "^5.0.0",
    "@openzeppelin/contracts": "^5.0.0",
    "hardhat": "^2.22.0"
  }
}
`
}

func (r *Runner) hardhatConfig() string {
	return fmt.Sprintf(`require("@nomicfoundation/hardhat-toolbox");

module.exports = {
  solidity: {
    version: %q,
    settings: { optimizer: { enabled: true, runs: 200 } }
  }
};
`, r.solcVer)
}
