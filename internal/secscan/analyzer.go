// Package secscan - Solidity Security Analyzer
// A fixed battery of textual heuristics over contract source. Pure
// function of its input: the same contracts always yield the same
// findings, in source order.
package secscan

import (
	"regexp"
	"strings"

	"dappforge/internal/pipeline"
)

type rule struct {
	pattern  *regexp.Regexp
	severity pipeline.Severity
	message  string
	// exempt suppresses the finding when it matches the same line.
	exempt *regexp.Regexp
}

var lineRules = []rule{
	{
		pattern:  regexp.MustCompile(`\.call\{value:`),
		severity: pipeline.SeverityError,
		message:  "Low-level call with value transfer; potential reentrancy, apply checks-effects-interactions or a reentrancy guard",
	},
	{
		pattern:  regexp.MustCompile(`tx\.origin`),
		severity: pipeline.SeverityError,
		message:  "tx.origin used for authorization; use msg.sender instead",
	},
	{
		pattern:  regexp.MustCompile(`\.delegatecall\(`),
		severity: pipeline.SeverityError,
		message:  "delegatecall executes untrusted code in this contract's storage context",
	},
	{
		pattern:  regexp.MustCompile(`\bselfdestruct\s*\(`),
		severity: pipeline.SeverityError,
		message:  "selfdestruct permanently destroys the contract and force-sends its balance",
	},
	{
		pattern:  regexp.MustCompile(`\.(call|send)\(`),
		severity: pipeline.SeverityWarning,
		message:  "Low-level call return value may be unchecked; require success or use a safe wrapper",
		exempt:   regexp.MustCompile(`require\s*\(|\(bool\s+\w+`),
	},
	{
		pattern:  regexp.MustCompile(`block\.timestamp`),
		severity: pipeline.SeverityWarning,
		message:  "block.timestamp is miner-influenced; do not use it for randomness or strict deadlines",
	},
	{
		pattern:  regexp.MustCompile(`function\s+(withdraw|mint|burn|pause|unpause|setOwner|upgradeTo)\w*\s*\([^)]*\)\s*(public|external)`),
		severity: pipeline.SeverityWarning,
		message:  "Privileged function without an access-control modifier",
		exempt:   regexp.MustCompile(`only[A-Z]\w*|onlyOwner|onlyRole|internal|private`),
	},
}

var (
	pragmaRe     = regexp.MustCompile(`pragma\s+solidity`)
	oldPragmaRe  = regexp.MustCompile(`pragma\s+solidity\s+[\^>=<\s]*0\.[0-7]\.`)
	arithmeticRe = regexp.MustCompile(`[+\-*]\s*=|\+\+|--|\w\s*[+\-*]\s*\w`)
)

// Analyzer implements the pipeline Scanner over the heuristic battery.
type Analyzer struct{}

func New() *Analyzer {
	return &Analyzer{}
}

// Scan analyzes contract sources and returns findings ordered by
// contract then line. Comment lines are skipped.
func (a *Analyzer) Scan(contracts []pipeline.ContractFile) []pipeline.SecurityWarning {
	var findings []pipeline.SecurityWarning
	for _, c := range contracts {
		findings = append(findings, scanContract(c)...)
	}
	return findings
}

func scanContract(c pipeline.ContractFile) []pipeline.SecurityWarning {
	var findings []pipeline.SecurityWarning

	if !pragmaRe.MatchString(c.Content) {
		findings = append(findings, pipeline.SecurityWarning{
			Severity: pipeline.SeverityError,
			Message:  "Missing solidity pragma; compiler version is unpinned",
			Contract: c.Name,
		})
	}

	oldCompiler := oldPragmaRe.MatchString(c.Content)

	for i, line := range strings.Split(c.Content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "//") || strings.HasPrefix(trimmed, "*") || strings.HasPrefix(trimmed, "/*") {
			continue
		}

		for _, r := range lineRules {
			if !r.pattern.MatchString(line) {
				continue
			}
			if r.exempt != nil && r.exempt.MatchString(line) {
				continue
			}
			findings = append(findings, pipeline.SecurityWarning{
				Severity: r.severity,
				Message:  r.message,
				Contract: c.Name,
				Line:     i + 1,
			})
		}

		if oldCompiler && arithmeticRe.MatchString(line) && !strings.Contains(line, "SafeMath") {
			findings = append(findings, pipeline.SecurityWarning{
				Severity: pipeline.SeverityWarning,
				Message:  "Arithmetic under a pre-0.8 compiler can silently overflow; use SafeMath or solidity >=0.8",
				Contract: c.Name,
				Line:     i + 1,
			})
		}
	}

	return findings
}
