package testrunner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dappforge/internal/pipeline"
)

const passingOutput = `
  Counter
    ✓ deploys (312ms)
    ✓ increments
    - handles overflow

  2 passing (1s)
  1 pending
`

const failingOutput = `
  Counter
    ✓ deploys (120ms)

  1 passing (2s)
  1 failing

  1) Counter
       increments:
     AssertionError: expected 1 to equal 2
      at Context.<anonymous> (test/Counter.test.js:12:5)

`

type fakeSandbox struct {
	out        execOutput
	err        error
	projectDir string
	seenFiles  map[string]string
}

func (f *fakeSandbox) Exec(ctx context.Context, projectDir string, timeout time.Duration) (execOutput, error) {
	f.projectDir = projectDir
	f.seenFiles = map[string]string{}
	_ = filepath.Walk(projectDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, _ := filepath.Rel(projectDir, path)
		content, _ := os.ReadFile(path)
		f.seenFiles[rel] = string(content)
		return nil
	})
	return f.out, f.err
}

func sampleCode() pipeline.GeneratedCode {
	return pipeline.GeneratedCode{
		Contracts: []pipeline.ContractFile{{Name: "Counter.sol", Content: "contract Counter {}"}},
		Tests:     []pipeline.TestFile{{Name: "Counter.test.js", Content: "it('deploys', async () => {});"}},
	}
}

func TestRunMaterializesHardhatProject(t *testing.T) {
	sb := &fakeSandbox{out: execOutput{Stdout: passingOutput}}
	r := NewRunner(sb, t.TempDir(), WithSolidityVersion("0.8.24"))

	res, err := r.Run(context.Background(), sampleCode())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Errorf("expected success, got %+v", res)
	}

	for _, want := range []string{
		"package.json",
		"hardhat.config.js",
		filepath.Join("contracts", "Counter.sol"),
		filepath.Join("test", "Counter.test.js"),
	} {
		if _, ok := sb.seenFiles[want]; !ok {
			t.Errorf("project missing %s, saw %v", want, keys(sb.seenFiles))
		}
	}
	if !strings.Contains(sb.seenFiles["hardhat.config.js"], `"0.8.24"`) {
		t.Error("hardhat config does not pin the solidity version")
	}

	if _, err := os.Stat(sb.projectDir); !os.IsNotExist(err) {
		t.Errorf("project dir %s not cleaned up", sb.projectDir)
	}
}

func TestRunCleansUpOnSandboxError(t *testing.T) {
	sb := &fakeSandbox{err: os.ErrPermission}
	r := NewRunner(sb, t.TempDir())

	if _, err := r.Run(context.Background(), sampleCode()); err == nil {
		t.Fatal("expected sandbox error to propagate")
	}
	if _, err := os.Stat(sb.projectDir); !os.IsNotExist(err) {
		t.Errorf("project dir %s not cleaned up after error", sb.projectDir)
	}
}

func TestRunNoTestsIsError(t *testing.T) {
	r := NewRunner(&fakeSandbox{}, t.TempDir())
	code := sampleCode()
	code.Tests = nil
	if _, err := r.Run(context.Background(), code); err == nil {
		t.Fatal("expected error for empty test suite")
	}
}

func TestRunTimeoutIsFailedResult(t *testing.T) {
	sb := &fakeSandbox{out: execOutput{TimedOut: true, ExitCode: 124, Stdout: "partial"}}
	r := NewRunner(sb, t.TempDir())

	res, err := r.Run(context.Background(), sampleCode())
	if err != nil {
		t.Fatalf("timeout must be a failed result, not an error: %v", err)
	}
	if res.Success {
		t.Error("expected failure on timeout")
	}
	if !strings.Contains(res.Output, "timed out") {
		t.Errorf("expected timeout marker in output, got %q", res.Output)
	}
}

func TestParsePassingOutput(t *testing.T) {
	res := parseMochaOutput(passingOutput, 0)
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Passed != 2 || res.Failed != 0 || res.TotalTests != 3 {
		t.Errorf("unexpected counts: passed=%d failed=%d total=%d", res.Passed, res.Failed, res.TotalTests)
	}
	if len(res.Tests) != 3 {
		t.Fatalf("expected 3 cases, got %d: %+v", len(res.Tests), res.Tests)
	}
	if res.Tests[0].Name != "deploys" || res.Tests[0].Status != pipeline.TestPassed {
		t.Errorf("unexpected first case %+v", res.Tests[0])
	}
	if res.Tests[2].Status != pipeline.TestPending {
		t.Errorf("expected pending case, got %+v", res.Tests[2])
	}
}

func TestParseFailingOutput(t *testing.T) {
	res := parseMochaOutput(failingOutput, 1)
	if res.Success {
		t.Fatal("expected failure")
	}
	if res.Passed != 1 || res.Failed != 1 || res.TotalTests != 2 {
		t.Errorf("unexpected counts: passed=%d failed=%d total=%d", res.Passed, res.Failed, res.TotalTests)
	}

	var failed *pipeline.TestCase
	for i := range res.Tests {
		if res.Tests[i].Status == pipeline.TestFailed {
			failed = &res.Tests[i]
		}
	}
	if failed == nil {
		t.Fatalf("no failed case parsed: %+v", res.Tests)
	}
	if !strings.Contains(failed.Error, "AssertionError") {
		t.Errorf("failure detail lost: %q", failed.Error)
	}
}

func TestParseEmptyOutputIsFailure(t *testing.T) {
	res := parseMochaOutput("Error: Cannot find module 'hardhat'", 1)
	if res.Success {
		t.Fatal("expected failure for unparseable output")
	}
	if res.TotalTests != 0 {
		t.Errorf("expected zero tests, got %d", res.TotalTests)
	}
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
