// Package ignore provides gitignore-style exclusion for project document
// scanning.
package ignore

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

// DefaultIgnoreFiles are the ignore files consulted in a project root, in
// order.
var DefaultIgnoreFiles = []string{".draftdignore", ".gitignore"}

// DefaultExcludes are applied when a project carries no ignore files.
var DefaultExcludes = []string{
	"node_modules",
	"vendor",
	".git",
	"dist",
	"build",
	"target",
}

// Matcher decides whether a relative path is excluded from scanning.
type Matcher struct {
	patterns []string
}

// NewMatcher builds a matcher from explicit patterns.
func NewMatcher(patterns []string) *Matcher {
	return &Matcher{patterns: deduplicate(patterns)}
}

// ForProject reads ignore files from projectRoot and builds a matcher. When
// no ignore file exists the default excludes apply.
func ForProject(projectRoot string) (*Matcher, error) {
	var patterns []string
	foundAny := false

	for _, name := range DefaultIgnoreFiles {
		filePatterns, err := parseFile(filepath.Join(projectRoot, name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		patterns = append(patterns, filePatterns...)
		foundAny = true
	}

	if !foundAny {
		patterns = DefaultExcludes
	}
	return NewMatcher(patterns), nil
}

// Match reports whether relPath (slash-separated, relative to the project
// root) is excluded. A pattern matches when it matches the full relative
// path or any single path segment.
func (m *Matcher) Match(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	segments := strings.Split(relPath, "/")

	for _, pattern := range m.patterns {
		if ok, _ := filepath.Match(pattern, relPath); ok {
			return true
		}
		for _, seg := range segments {
			if ok, _ := filepath.Match(pattern, seg); ok {
				return true
			}
		}
	}
	return false
}

// parseFile reads a single gitignore-style file and returns its patterns.
func parseFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var patterns []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		if pattern := parseLine(scanner.Text()); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return patterns, nil
}

// parseLine normalizes one gitignore line. Comments, blanks, and negation
// patterns (unsupported) yield empty strings.
func parseLine(line string) string {
	line = strings.TrimRight(line, " \t")
	if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
		return ""
	}

	// Leading slash anchors to the root; our matching is already relative.
	line = strings.TrimPrefix(line, "/")
	// Trailing slash marks a directory; match the segment name.
	line = strings.TrimSuffix(line, "/")
	return line
}

// deduplicate removes duplicate patterns while preserving order.
func deduplicate(patterns []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(patterns))
	for _, p := range patterns {
		if !seen[p] {
			seen[p] = true
			result = append(result, p)
		}
	}
	return result
}
