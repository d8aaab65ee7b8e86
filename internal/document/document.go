// Package document defines the project document snapshot consumed by the
// selection engine. Documents are immutable once constructed; the store that
// discovers them (filesystem scan, editor buffer, remote index) lives outside
// the pipeline and hands in finished snapshots.
package document

import (
	"path/filepath"
	"strings"
	"time"
)

// Category classifies a project document for selection weighting.
type Category string

const (
	CategoryReadme    Category = "readme"
	CategoryChangelog Category = "changelog"
	CategoryGuide     Category = "guide"
	CategoryAPIDoc    Category = "api-doc"
	CategoryExample   Category = "example"
	CategoryOther     Category = "other"
)

// AllCategories returns every known category.
func AllCategories() []Category {
	return []Category{
		CategoryReadme, CategoryChangelog, CategoryGuide,
		CategoryAPIDoc, CategoryExample, CategoryOther,
	}
}

// Document is an immutable snapshot of one project file.
type Document struct {
	Path          string    `json:"path"`
	RawContent    string    `json:"raw_content"`
	Category      Category  `json:"category"`
	TokenEstimate int       `json:"token_estimate"`
	LastModified  time.Time `json:"last_modified"`
}

// New builds a Document, categorizing by path heuristics and estimating
// its token footprint.
func New(path, content string, lastModified time.Time) Document {
	return Document{
		Path:          path,
		RawContent:    content,
		Category:      Categorize(path, content),
		TokenEstimate: EstimateTokens(content),
		LastModified:  lastModified,
	}
}

// Truncated returns a copy holding only the leading portion of the content
// that fits within maxTokens. The estimate is recomputed on the truncated
// text, so the returned document never reports more than maxTokens.
func (d Document) Truncated(maxTokens int) Document {
	if maxTokens <= 0 {
		d.RawContent = ""
		d.TokenEstimate = 0
		return d
	}
	if d.TokenEstimate <= maxTokens {
		return d
	}

	// Token estimates are roughly proportional to byte length, so cut by
	// ratio and trim until the estimate fits.
	content := d.RawContent
	keep := len(content) * maxTokens / d.TokenEstimate
	if keep > len(content) {
		keep = len(content)
	}
	content = content[:keep]
	for EstimateTokens(content) > maxTokens && len(content) > 0 {
		next := len(content) * 9 / 10
		if next == len(content) {
			next--
		}
		content = content[:next]
	}

	d.RawContent = content
	d.TokenEstimate = EstimateTokens(content)
	return d
}

// Categorize determines the document category from its path and content.
func Categorize(path, content string) Category {
	base := strings.ToLower(filepath.Base(path))
	dir := strings.ToLower(filepath.ToSlash(filepath.Dir(path)))

	switch {
	case strings.HasPrefix(base, "readme"):
		return CategoryReadme
	case strings.HasPrefix(base, "changelog"), strings.HasPrefix(base, "changes"),
		strings.HasPrefix(base, "history"), strings.HasPrefix(base, "release"):
		return CategoryChangelog
	}

	if strings.Contains(dir, "example") || strings.Contains(base, "example") ||
		strings.Contains(dir, "samples") {
		return CategoryExample
	}
	if strings.Contains(dir, "api") || strings.Contains(base, "api") ||
		strings.Contains(base, "reference") || strings.Contains(base, "openapi") ||
		strings.Contains(base, "swagger") {
		return CategoryAPIDoc
	}
	if strings.Contains(dir, "doc") || strings.Contains(dir, "guide") ||
		strings.Contains(base, "guide") || strings.Contains(base, "tutorial") ||
		strings.Contains(base, "getting-started") || strings.Contains(base, "howto") {
		return CategoryGuide
	}

	// Content fallback for unlabeled markdown.
	if strings.HasSuffix(base, ".md") {
		head := strings.ToLower(firstLines(content, 10))
		switch {
		case strings.Contains(head, "## api") || strings.Contains(head, "# api"):
			return CategoryAPIDoc
		case strings.Contains(head, "changelog"):
			return CategoryChangelog
		case strings.Contains(head, "guide") || strings.Contains(head, "tutorial"):
			return CategoryGuide
		}
	}

	return CategoryOther
}

func firstLines(s string, n int) string {
	lines := strings.SplitN(s, "\n", n+1)
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
