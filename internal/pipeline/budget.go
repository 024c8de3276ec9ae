package pipeline

import "time"

// retryController bounds the fix attempts of a single phase.
type retryController struct {
	attempts    int
	maxAttempts int
}

// Remaining reports whether another fix attempt is allowed.
func (r *retryController) Remaining() bool {
	return r.attempts < r.maxAttempts
}

// Consume records one fix attempt.
func (r *retryController) Consume() {
	r.attempts++
}

// buildBudget is the global iteration/wall-clock budget shared by all
// phases of one build.
type buildBudget struct {
	iteration     int
	maxIterations int
	start         time.Time
	timeout       time.Duration
	now           func() time.Time
}

func newBuildBudget(maxIterations int, timeoutMs int64, now func() time.Time) *buildBudget {
	if now == nil {
		now = time.Now
	}
	return &buildBudget{
		maxIterations: maxIterations,
		start:         now(),
		timeout:       time.Duration(timeoutMs) * time.Millisecond,
		now:           now,
	}
}

// budgetViolation names the exhausted budget, or "" if budget remains.
// Checked before every fix-and-retry step in every phase.
func (b *buildBudget) violation() string {
	if b.iteration >= b.maxIterations {
		return "Max iterations reached"
	}
	if b.elapsed() >= b.timeout {
		return "Build timeout"
	}
	return ""
}

// consume records one global fix iteration.
func (b *buildBudget) consume() {
	b.iteration++
}

func (b *buildBudget) elapsed() time.Duration {
	return b.now().Sub(b.start)
}

func (b *buildBudget) elapsedMs() int64 {
	return b.elapsed().Milliseconds()
}
