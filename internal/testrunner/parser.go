package testrunner

import (
	"regexp"
	"strconv"
	"strings"

	"dappforge/internal/pipeline"
)

var (
	passLineRe    = regexp.MustCompile(`^\s*[✓✔]\s+(.+?)(?:\s+\(\d+m?s\))?$`)
	pendingLineRe = regexp.MustCompile(`^\s*-\s+(.+)$`)
	failHeaderRe  = regexp.MustCompile(`^\s*(\d+)\)\s+(.+?):?$`)
	passCountRe   = regexp.MustCompile(`(\d+)\s+passing`)
	failCountRe   = regexp.MustCompile(`(\d+)\s+failing`)
	pendCountRe   = regexp.MustCompile(`(\d+)\s+pending`)
)

// parseMochaOutput converts mocha's spec-reporter text into a
// structured TestResult. Per-case lines drive the case list; the
// summary line is authoritative for the counts when present.
func parseMochaOutput(output string, exitCode int) pipeline.TestResult {
	result := pipeline.TestResult{Output: output}

	lines := strings.Split(output, "\n")
	var failing *pipeline.TestCase
	var errBuf []string

	flushFailing := func() {
		if failing != nil {
			failing.Error = strings.TrimSpace(strings.Join(errBuf, "\n"))
			result.Tests = append(result.Tests, *failing)
			failing = nil
			errBuf = nil
		}
	}

	for _, line := range lines {
		if m := failHeaderRe.FindStringSubmatch(line); m != nil && !strings.Contains(line, "passing") {
			flushFailing()
			failing = &pipeline.TestCase{Name: strings.TrimSpace(m[2]), Status: pipeline.TestFailed}
			continue
		}
		if failing != nil {
			if strings.TrimSpace(line) == "" && len(errBuf) > 0 {
				flushFailing()
				continue
			}
			if strings.TrimSpace(line) != "" {
				errBuf = append(errBuf, strings.TrimSpace(line))
			}
			continue
		}
		if m := passLineRe.FindStringSubmatch(line); m != nil {
			result.Tests = append(result.Tests, pipeline.TestCase{
				Name:   strings.TrimSpace(m[1]),
				Status: pipeline.TestPassed,
			})
			continue
		}
		if m := pendingLineRe.FindStringSubmatch(line); m != nil {
			result.Tests = append(result.Tests, pipeline.TestCase{
				Name:   strings.TrimSpace(m[1]),
				Status: pipeline.TestPending,
			})
		}
	}
	flushFailing()

	result.Passed = countByStatus(result.Tests, pipeline.TestPassed)
	result.Failed = countByStatus(result.Tests, pipeline.TestFailed)

	if m := passCountRe.FindStringSubmatch(output); m != nil {
		result.Passed, _ = strconv.Atoi(m[1])
	}
	if m := failCountRe.FindStringSubmatch(output); m != nil {
		result.Failed, _ = strconv.Atoi(m[1])
	}
	pending := countByStatus(result.Tests, pipeline.TestPending)
	if m := pendCountRe.FindStringSubmatch(output); m != nil {
		pending, _ = strconv.Atoi(m[1])
	}

	result.TotalTests = result.Passed + result.Failed + pending
	result.Success = exitCode == 0 && result.Failed == 0 && result.TotalTests > 0
	return result
}

func countByStatus(tests []pipeline.TestCase, status pipeline.TestCaseStatus) int {
	n := 0
	for _, tc := range tests {
		if tc.Status == status {
			n++
		}
	}
	return n
}
