// Package pipeline - Build Pipeline Types
// Data model threaded through the generate → compile → secure → test loop.
package pipeline

import "context"

// Default build budgets.
const (
	DefaultMaxIterations = 10
	DefaultTimeoutMs     = 300000

	MaxCompilationAttempts = 3
	MaxSecurityAttempts    = 3
	MaxTestAttempts        = 5
)

// ContractFile is one Solidity source file.
type ContractFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// PageFile is one frontend source file. The pipeline never touches page
// content; it is carried through for the final result.
type PageFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// TestFile is one test-framework source file.
type TestFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// GeneratedCode is the mutable artifact the pipeline operates on. Phases
// hand back new snapshots rather than mutating in place, so a failed fix
// never corrupts the last-known-good copy.
type GeneratedCode struct {
	Contracts []ContractFile `json:"contracts"`
	Pages     []PageFile     `json:"pages,omitempty"`
	Tests     []TestFile     `json:"tests,omitempty"`
}

// Clone returns a deep copy of the code snapshot.
func (g GeneratedCode) Clone() GeneratedCode {
	out := GeneratedCode{
		Contracts: make([]ContractFile, len(g.Contracts)),
		Pages:     make([]PageFile, len(g.Pages)),
		Tests:     make([]TestFile, len(g.Tests)),
	}
	copy(out.Contracts, g.Contracts)
	copy(out.Pages, g.Pages)
	copy(out.Tests, g.Tests)
	return out
}

// PagePlan describes one frontend page to generate.
type PagePlan struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

// ProjectPlan is the structured description produced by the plan
// clarifier. Opaque input to the pipeline.
type ProjectPlan struct {
	ContractName string     `json:"contract_name"`
	Description  string     `json:"description"`
	Features     []string   `json:"features,omitempty"`
	Pages        []PagePlan `json:"pages,omitempty"`
}

// BuildRequest is the immutable input to one pipeline run.
type BuildRequest struct {
	Prompt        string         `json:"prompt"`
	Plan          ProjectPlan    `json:"plan"`
	ExistingCode  *GeneratedCode `json:"existing_code,omitempty"`
	MaxIterations int            `json:"max_iterations"`
	TimeoutMs     int64          `json:"timeout_ms"`
}

// NewBuildRequest creates a request with default budgets applied.
func NewBuildRequest(prompt string, plan ProjectPlan) BuildRequest {
	return BuildRequest{
		Prompt:        prompt,
		Plan:          plan,
		MaxIterations: DefaultMaxIterations,
		TimeoutMs:     DefaultTimeoutMs,
	}
}

// CompileResult is the outcome of one compiler invocation. Transient:
// recomputed on every call, never persisted apart from the code that
// produced it.
type CompileResult struct {
	Success  bool     `json:"success"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
	Bytecode string   `json:"bytecode,omitempty"`
}

// Severity classifies a security finding.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// SecurityWarning is one finding from the security scan. A batch is
// always recomputed fresh; no finding identity persists across fixes.
type SecurityWarning struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Contract string   `json:"contract,omitempty"`
	Line     int      `json:"line,omitempty"`
}

// TestCaseStatus is the status of one executed test case.
type TestCaseStatus string

const (
	TestPassed  TestCaseStatus = "passed"
	TestFailed  TestCaseStatus = "failed"
	TestPending TestCaseStatus = "pending"
)

// TestCase is one executed test case.
type TestCase struct {
	Name    string         `json:"name"`
	Status  TestCaseStatus `json:"status"`
	Error   string         `json:"error,omitempty"`
	GasUsed uint64         `json:"gas_used,omitempty"`
}

// TestResult is the outcome of one sandboxed test run.
type TestResult struct {
	Success    bool       `json:"success"`
	TotalTests int        `json:"total_tests"`
	Passed     int        `json:"passed"`
	Failed     int        `json:"failed"`
	Output     string     `json:"output,omitempty"`
	Tests      []TestCase `json:"tests,omitempty"`
}

// BuildResult is the terminal outcome of one pipeline run. Immutable
// once returned; always carries the full log transcript.
type BuildResult struct {
	Success          bool              `json:"success"`
	Code             *GeneratedCode    `json:"code,omitempty"`
	TestResult       *TestResult       `json:"test_result,omitempty"`
	SecurityWarnings []SecurityWarning `json:"security_warnings,omitempty"`
	Logs             []string          `json:"logs"`
	Iterations       int               `json:"iterations"`
	ElapsedMs        int64             `json:"elapsed_ms,omitempty"`
	Error            string            `json:"error,omitempty"`
	CompileErrors    []string          `json:"compile_errors,omitempty"`
}

// Status is a pipeline progress status. Closed set.
type Status string

const (
	StatusGenerating       Status = "generating"
	StatusValidating       Status = "validating"
	StatusCompiling        Status = "compiling"
	StatusFixingCompile    Status = "fixing_compilation"
	StatusCheckingSecurity Status = "checking_security"
	StatusFixingSecurity   Status = "fixing_security"
	StatusTesting          Status = "testing"
	StatusFixingTests      Status = "fixing_tests"
	StatusDone             Status = "done"
	StatusFailed           Status = "failed"
)

// ProgressFunc receives pipeline progress events. Implementations must
// not block; the orchestrator treats delivery as fire-and-forget and
// ignores panics from the sink.
type ProgressFunc func(status Status, message string, iteration int)

// Generator produces code from a prompt and plan.
type Generator interface {
	Generate(ctx context.Context, prompt string, plan ProjectPlan) (GeneratedCode, error)
	GenerateTests(ctx context.Context, code GeneratedCode, plan ProjectPlan) ([]TestFile, error)
}

// Compiler compiles a contract set and reports partitioned diagnostics.
type Compiler interface {
	Compile(ctx context.Context, contracts []ContractFile) (CompileResult, error)
}

// Scanner runs the security heuristics over current contract source.
type Scanner interface {
	Scan(contracts []ContractFile) []SecurityWarning
}

// TestRunner executes the test suite against the contract set in an
// isolated environment.
type TestRunner interface {
	Run(ctx context.Context, code GeneratedCode) (TestResult, error)
}

// Fixer wraps the three LLM-backed repair functions. Implementations
// never mutate their inputs and fall back to returning them unchanged
// when the model response cannot be parsed.
type Fixer interface {
	FixCompilation(ctx context.Context, contracts []ContractFile, errors []string) ([]ContractFile, error)
	FixSecurity(ctx context.Context, contracts []ContractFile, warnings []SecurityWarning) ([]ContractFile, error)
	FixTestFailures(ctx context.Context, code GeneratedCode, output string) (GeneratedCode, error)
}
