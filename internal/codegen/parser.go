// Package codegen - AI Code Generation
// Turns a project plan into Solidity contracts, a JS test suite, and
// optional frontend pages via a single model call, and parses model
// output back into typed file lists.
package codegen

import (
	"path"
	"strings"

	"dappforge/internal/pipeline"
)

// ParsedFile is one file section extracted from a model response.
type ParsedFile struct {
	Path    string
	Content string
}

// ParseResult is the typed outcome of parsing a model response. Empty
// (no file sections found) is a defined variant, never an error: the
// caller decides what snapshot to fall back to.
type ParseResult struct {
	Files []ParsedFile
}

// Ok reports whether at least one file section was extracted.
func (p ParseResult) Ok() bool {
	return len(p.Files) > 0
}

// ParseResponse extracts file sections from a model response. Files are
// delimited by `// File: path` (or `# File:` / `/* File: */`) markers,
// with contents carried in fenced code blocks. Text outside any file
// context is ignored.
func ParseResponse(response string) ParseResult {
	files := make([]ParsedFile, 0)

	lines := strings.Split(response, "\n")
	var current *ParsedFile
	var buf strings.Builder
	inCodeBlock := false

	flush := func() {
		if current != nil && buf.Len() > 0 {
			current.Content = strings.TrimSpace(buf.String())
			files = append(files, *current)
		}
		current = nil
		buf.Reset()
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if marker := filePathFromMarker(trimmed); marker != "" {
			flush()
			current = &ParsedFile{Path: marker}
			continue
		}

		if strings.HasPrefix(trimmed, "```") {
			if !inCodeBlock {
				inCodeBlock = true
			} else {
				inCodeBlock = false
				flush()
			}
			continue
		}

		if current != nil {
			if buf.Len() > 0 {
				buf.WriteString("\n")
			}
			buf.WriteString(line)
		}
	}
	flush()

	return ParseResult{Files: files}
}

func filePathFromMarker(line string) string {
	switch {
	case strings.HasPrefix(line, "// File:"):
		return strings.TrimSpace(strings.TrimPrefix(line, "// File:"))
	case strings.HasPrefix(line, "# File:"):
		return strings.TrimSpace(strings.TrimPrefix(line, "# File:"))
	case strings.HasPrefix(line, "/* File:"):
		p := strings.TrimPrefix(line, "/* File:")
		p = strings.TrimSuffix(strings.TrimSpace(p), "*/")
		return strings.TrimSpace(p)
	}
	return ""
}

// Classify routes parsed files into the three GeneratedCode buckets by
// extension and path. Solidity sources are contracts, .js/.ts files
// under a test path (or named *.test.*) are tests, and html/jsx/tsx/css
// files are pages. Unrecognized files are dropped.
func Classify(files []ParsedFile) pipeline.GeneratedCode {
	var code pipeline.GeneratedCode
	for _, f := range files {
		name := path.Base(f.Path)
		ext := strings.ToLower(path.Ext(name))
		switch {
		case ext == ".sol":
			code.Contracts = append(code.Contracts, pipeline.ContractFile{Name: name, Content: f.Content})
		case isTestFile(f.Path, ext):
			code.Tests = append(code.Tests, pipeline.TestFile{Name: name, Content: f.Content})
		case ext == ".html" || ext == ".jsx" || ext == ".tsx" || ext == ".css" || ext == ".js":
			code.Pages = append(code.Pages, pipeline.PageFile{Path: f.Path, Content: f.Content})
		}
	}
	return code
}

func isTestFile(p, ext string) bool {
	if ext != ".js" && ext != ".ts" {
		return false
	}
	lower := strings.ToLower(p)
	return strings.Contains(lower, "test/") || strings.Contains(lower, "tests/") ||
		strings.Contains(path.Base(lower), ".test.") || strings.Contains(path.Base(lower), ".spec.")
}
