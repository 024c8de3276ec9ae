// Package pipeline - Build Orchestrator
// Drives a single build request through four ordered phases — Acquire,
// Compile, Secure, Test — each with a bounded fix loop, under a shared
// iteration counter and wall-clock deadline.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"dappforge/internal/logging"
	"dappforge/internal/metrics"
)

// Orchestrator sequences the build collaborators. It holds no per-build
// state, so independent builds may run concurrently on one instance.
type Orchestrator struct {
	generator Generator
	compiler  Compiler
	scanner   Scanner
	runner    TestRunner
	fixer     Fixer

	// now is swappable for deterministic budget tests.
	now func() time.Time
}

// NewOrchestrator creates a build orchestrator from its collaborators.
func NewOrchestrator(generator Generator, compiler Compiler, scanner Scanner, runner TestRunner, fixer Fixer) *Orchestrator {
	return &Orchestrator{
		generator: generator,
		compiler:  compiler,
		scanner:   scanner,
		runner:    runner,
		fixer:     fixer,
		now:       time.Now,
	}
}

// buildState is the working state of one build. Owned exclusively by the
// Run call that created it.
type buildState struct {
	code     GeneratedCode
	budget   *buildBudget
	logs     []string
	progress ProgressFunc
}

// Run executes one build request to a terminal BuildResult. It never
// panics past its own boundary and never returns an error: all failure
// modes are data in the result.
func (o *Orchestrator) Run(ctx context.Context, req BuildRequest, onProgress ProgressFunc) (result BuildResult) {
	st := &buildState{
		budget:   newBuildBudget(req.MaxIterations, req.TimeoutMs, o.now),
		progress: onProgress,
	}

	defer func() {
		if r := recover(); r != nil {
			logging.L().Error("build pipeline panic", zap.Any("panic", r))
			result = o.fatal(st, fmt.Sprintf("internal error: %v", r), nil)
		}
	}()

	m := metrics.Get()
	m.BuildsStarted.Inc()
	defer func() {
		outcome := "failed"
		if result.Success {
			outcome = "success"
		} else if result.Error == "" {
			outcome = "degraded"
		}
		m.BuildsCompleted.WithLabelValues(outcome).Inc()
		m.BuildDuration.Observe(st.budget.elapsed().Seconds())
		m.BuildIterations.Observe(float64(st.budget.iteration))
	}()

	// The wall clock may already be spent (timeoutMs=0 requests a dry
	// abort) — check before doing any work.
	if v := st.budget.violation(); v != "" {
		return o.fatal(st, v, nil)
	}

	// Phase 1: Acquire
	if res := o.acquirePhase(ctx, req, st); res != nil {
		return *res
	}

	// Phase 2: Compile (exhaustion here is fatal)
	if res := o.compilePhase(ctx, st); res != nil {
		return *res
	}

	// Phase 3: Secure (exhaustion is non-fatal; warnings carry forward)
	warnings, res := o.securePhase(ctx, st)
	if res != nil {
		return *res
	}

	// Phase 4: Test (exhaustion is non-fatal; result reflects last run)
	testRes, res := o.testPhase(ctx, st)
	if res != nil {
		return *res
	}

	st.logf("build complete: success=%v, %d/%d tests passed, %d security warnings, %d iterations",
		testRes.Success, testRes.Passed, testRes.TotalTests, len(warnings), st.budget.iteration)
	o.emit(st, StatusDone, "Build complete", st.budget.iteration)

	code := st.code.Clone()
	return BuildResult{
		Success:          testRes.Success,
		Code:             &code,
		TestResult:       &testRes,
		SecurityWarnings: warnings,
		Logs:             st.logs,
		Iterations:       st.budget.iteration,
		ElapsedMs:        st.budget.elapsedMs(),
	}
}

// acquirePhase obtains the working code: supplied code in validate mode,
// otherwise one generation call. A missing test suite triggers a single
// test-generation call that does not count against any fix budget.
func (o *Orchestrator) acquirePhase(ctx context.Context, req BuildRequest, st *buildState) *BuildResult {
	if req.ExistingCode != nil && len(req.ExistingCode.Contracts) > 0 {
		st.code = req.ExistingCode.Clone()
		st.logf("validate mode: using %d supplied contract(s)", len(st.code.Contracts))
		o.emit(st, StatusValidating, "Validating supplied code", st.budget.iteration)
	} else {
		o.emit(st, StatusGenerating, "Generating contracts from plan", st.budget.iteration)
		st.logf("generating code for %q", req.Plan.ContractName)

		code, err := o.generator.Generate(ctx, req.Prompt, req.Plan)
		if err != nil {
			st.logf("generation failed: %v", err)
			r := o.fatal(st, fmt.Sprintf("code generation failed: %v", err), nil)
			return &r
		}
		st.code = code
	}

	if len(st.code.Contracts) == 0 {
		st.logf("no contracts produced, aborting")
		r := o.fatal(st, "no contracts were generated", nil)
		return &r
	}

	if len(st.code.Tests) == 0 {
		st.logf("no tests present, generating a test suite")
		tests, err := o.generator.GenerateTests(ctx, st.code, req.Plan)
		if err != nil {
			// Non-fatal: the test phase will run against an empty suite.
			st.logf("test generation failed: %v", err)
		} else {
			st.code.Tests = tests
		}
	}

	return nil
}

// compilePhase runs the compile ⟲ fix loop. This is the only phase whose
// exhaustion is fatal: nothing downstream is meaningful without
// compilable contracts.
func (o *Orchestrator) compilePhase(ctx context.Context, st *buildState) *BuildResult {
	phaseStart := o.now()
	defer func() {
		metrics.Get().PhaseDuration.WithLabelValues("compile").Observe(o.now().Sub(phaseStart).Seconds())
	}()

	retry := retryController{maxAttempts: MaxCompilationAttempts}

	for {
		o.emit(st, StatusCompiling, "Compiling contracts", st.budget.iteration)
		res := o.compile(ctx, st)
		if res.Success {
			st.logf("compilation succeeded (%d warning(s))", len(res.Warnings))
			return nil
		}

		st.logf("compilation failed with %d error(s)", len(res.Errors))

		if !retry.Remaining() {
			st.logf("compilation fix attempts exhausted after %d attempt(s)", retry.attempts)
			r := o.fatal(st, fmt.Sprintf("compilation failed after %d fix attempts", retry.attempts), res.Errors)
			return &r
		}
		if v := st.budget.violation(); v != "" {
			r := o.fatal(st, v, res.Errors)
			return &r
		}

		o.emit(st, StatusFixingCompile, fmt.Sprintf("Fixing compilation errors (attempt %d/%d)", retry.attempts+1, retry.maxAttempts), st.budget.iteration)
		st.code.Contracts = o.fixCompilation(ctx, st, res.Errors)
		retry.Consume()
		st.budget.consume()
	}
}

// securePhase runs the scan ⟲ fix loop. Leftover warnings after the
// attempt budget are surfaced in the result, not fatal.
func (o *Orchestrator) securePhase(ctx context.Context, st *buildState) ([]SecurityWarning, *BuildResult) {
	phaseStart := o.now()
	defer func() {
		metrics.Get().PhaseDuration.WithLabelValues("secure").Observe(o.now().Sub(phaseStart).Seconds())
	}()

	retry := retryController{maxAttempts: MaxSecurityAttempts}

	o.emit(st, StatusCheckingSecurity, "Scanning for vulnerabilities", st.budget.iteration)
	warnings := o.scan(st)

	for len(warnings) > 0 && retry.Remaining() {
		if v := st.budget.violation(); v != "" {
			r := o.fatal(st, v, nil)
			return warnings, &r
		}

		o.emit(st, StatusFixingSecurity, fmt.Sprintf("Fixing %d security finding(s) (attempt %d/%d)", len(warnings), retry.attempts+1, retry.maxAttempts), st.budget.iteration)

		snapshot := st.code.Contracts
		fixed, err := o.fixer.FixSecurity(ctx, snapshot, warnings)
		if err != nil {
			st.logf("security fix failed: %v (keeping current code)", err)
			fixed = snapshot
		}
		st.code.Contracts = fixed
		metrics.Get().FixAttemptsTotal.WithLabelValues("security").Inc()
		retry.Consume()
		st.budget.consume()

		// A security fix can reintroduce a compile error; always verify
		// before rescanning, with one inline compilation repair.
		if res := o.recompileAfterFix(ctx, st, snapshot); res != nil {
			return warnings, res
		}

		o.emit(st, StatusCheckingSecurity, "Re-scanning contracts", st.budget.iteration)
		warnings = o.scan(st)
	}

	if len(warnings) > 0 {
		st.logf("proceeding with %d unresolved security warning(s)", len(warnings))
	} else {
		st.logf("security scan clean")
	}
	return warnings, nil
}

// testPhase runs the test ⟲ fix loop. The final build success mirrors
// the last test outcome even when attempts run out.
func (o *Orchestrator) testPhase(ctx context.Context, st *buildState) (TestResult, *BuildResult) {
	phaseStart := o.now()
	defer func() {
		metrics.Get().PhaseDuration.WithLabelValues("test").Observe(o.now().Sub(phaseStart).Seconds())
	}()

	retry := retryController{maxAttempts: MaxTestAttempts}

	o.emit(st, StatusTesting, "Running test suite", st.budget.iteration)
	result := o.runTests(ctx, st)

	for !result.Success && retry.Remaining() {
		if v := st.budget.violation(); v != "" {
			r := o.fatal(st, v, nil)
			return result, &r
		}

		o.emit(st, StatusFixingTests, fmt.Sprintf("Fixing %d failing test(s) (attempt %d/%d)", result.Failed, retry.attempts+1, retry.maxAttempts), st.budget.iteration)

		snapshot := st.code.Clone()
		fixed, err := o.fixer.FixTestFailures(ctx, snapshot, result.Output)
		if err != nil {
			st.logf("test fix failed: %v (keeping current code)", err)
			fixed = snapshot
		}
		st.code.Contracts = fixed.Contracts
		st.code.Tests = fixed.Tests
		metrics.Get().FixAttemptsTotal.WithLabelValues("tests").Inc()
		retry.Consume()
		st.budget.consume()

		if res := o.recompileAfterFix(ctx, st, snapshot.Contracts); res != nil {
			return result, res
		}

		o.emit(st, StatusTesting, "Re-running test suite", st.budget.iteration)
		result = o.runTests(ctx, st)
	}

	if !result.Success {
		st.logf("tests still failing after %d fix attempt(s): %d/%d passed", retry.attempts, result.Passed, result.TotalTests)
	}
	return result, nil
}

// recompileAfterFix re-verifies compilation after a security or test
// fix. One inline compilation repair is attempted; if the contracts
// still do not compile, the pre-fix snapshot (which did) is restored.
func (o *Orchestrator) recompileAfterFix(ctx context.Context, st *buildState, snapshot []ContractFile) *BuildResult {
	res := o.compile(ctx, st)
	if res.Success {
		return nil
	}

	st.logf("fix broke compilation (%d error(s)), attempting inline repair", len(res.Errors))
	if v := st.budget.violation(); v != "" {
		r := o.fatal(st, v, res.Errors)
		return &r
	}

	o.emit(st, StatusFixingCompile, "Repairing compilation after fix", st.budget.iteration)
	st.code.Contracts = o.fixCompilation(ctx, st, res.Errors)
	st.budget.consume()

	res = o.compile(ctx, st)
	if !res.Success {
		st.logf("inline repair failed, reverting to last compilable snapshot")
		st.code.Contracts = snapshot
	}
	return nil
}

// compile invokes the compiler adapter, converting an adapter error into
// a failed CompileResult so it flows through the normal retry loop.
func (o *Orchestrator) compile(ctx context.Context, st *buildState) CompileResult {
	res, err := o.compiler.Compile(ctx, st.code.Contracts)
	if err != nil {
		st.logf("compiler invocation failed: %v", err)
		return CompileResult{Success: false, Errors: []string{err.Error()}}
	}
	result := "ok"
	if !res.Success {
		result = "error"
	}
	metrics.Get().CompileRunsTotal.WithLabelValues(result).Inc()
	return res
}

// fixCompilation requests a compilation repair, keeping the current
// contracts when the fixer fails outright. The attempt still counts:
// an unparseable model response is "no progress this iteration", not a
// crash.
func (o *Orchestrator) fixCompilation(ctx context.Context, st *buildState, errors []string) []ContractFile {
	fixed, err := o.fixer.FixCompilation(ctx, st.code.Contracts, errors)
	if err != nil {
		st.logf("compilation fix failed: %v (keeping current code)", err)
		fixed = st.code.Contracts
	}
	metrics.Get().FixAttemptsTotal.WithLabelValues("compilation").Inc()
	return fixed
}

func (o *Orchestrator) scan(st *buildState) []SecurityWarning {
	warnings := o.scanner.Scan(st.code.Contracts)
	for _, w := range warnings {
		metrics.Get().SecurityFindings.WithLabelValues(string(w.Severity)).Inc()
	}
	st.logf("security scan found %d finding(s)", len(warnings))
	return warnings
}

// runTests invokes the test runner, converting a runner error into a
// failed TestResult so the fix loop can act on it.
func (o *Orchestrator) runTests(ctx context.Context, st *buildState) TestResult {
	res, err := o.runner.Run(ctx, st.code)
	if err != nil {
		st.logf("test run failed to execute: %v", err)
		metrics.Get().TestRunsTotal.WithLabelValues("error").Inc()
		return TestResult{Success: false, Output: err.Error()}
	}
	result := "ok"
	if !res.Success {
		result = "failed"
	}
	metrics.Get().TestRunsTotal.WithLabelValues(result).Inc()
	st.logf("test run: %d/%d passed", res.Passed, res.TotalTests)
	return res
}

// fatal assembles the terminal failure result, preserving the last code
// snapshot and the full transcript.
func (o *Orchestrator) fatal(st *buildState, reason string, compileErrors []string) BuildResult {
	st.logf("build failed: %s", reason)
	o.emit(st, StatusFailed, reason, st.budget.iteration)

	result := BuildResult{
		Success:       false,
		Error:         reason,
		Logs:          st.logs,
		Iterations:    st.budget.iteration,
		ElapsedMs:     st.budget.elapsedMs(),
		CompileErrors: compileErrors,
	}
	if len(st.code.Contracts) > 0 || len(st.code.Tests) > 0 || len(st.code.Pages) > 0 {
		code := st.code.Clone()
		result.Code = &code
	}
	return result
}

// emit delivers a progress event. Sink panics are swallowed: observer
// failures must never affect the build outcome.
func (o *Orchestrator) emit(st *buildState, status Status, message string, iteration int) {
	if st.progress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.L().Warn("progress sink panic", zap.Any("panic", r))
		}
	}()
	st.progress(status, message, iteration)
}

func (st *buildState) logf(format string, args ...interface{}) {
	line := fmt.Sprintf("[%s] %s", time.Now().UTC().Format("15:04:05.000"), fmt.Sprintf(format, args...))
	st.logs = append(st.logs, line)
	logging.S().Debug(line)
}
