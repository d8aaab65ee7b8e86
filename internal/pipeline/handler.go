package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/draftd/internal/document"
	"github.com/fyrsmithlabs/draftd/internal/quality"
	"github.com/fyrsmithlabs/draftd/internal/selection"
)

// Task params recognized by the built-in handlers.
const (
	ParamTaskType    = "task_type"
	ParamContentType = "content_type"
	ParamSubject     = "subject"
)

// DocumentSource supplies the current project document snapshot. It is the
// external document-provider collaborator; the pipeline never discovers
// files itself.
type DocumentSource interface {
	Documents(ctx context.Context) ([]document.Document, error)
}

// DocumentSourceFunc adapts a function to DocumentSource.
type DocumentSourceFunc func(ctx context.Context) ([]document.Document, error)

func (f DocumentSourceFunc) Documents(ctx context.Context) ([]document.Document, error) {
	return f(ctx)
}

// ContentHandler generates one validated content block per task: it selects
// a token-budgeted context for the task's type, prompts the provider chain,
// and passes the output through the quality gate.
type ContentHandler struct {
	source   DocumentSource
	selector *selection.Selector
	gate     *quality.Gate
}

// NewContentHandler wires the selection engine and quality gate together.
func NewContentHandler(source DocumentSource, selector *selection.Selector, gate *quality.Gate) *ContentHandler {
	return &ContentHandler{source: source, selector: selector, gate: gate}
}

// Execute implements Handler.
func (h *ContentHandler) Execute(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	taskType := req.Task.Param(ParamTaskType, "marketing-copy")
	contentType := quality.ContentType(req.Task.Param(ParamContentType, taskType))
	subject := req.Task.Param(ParamSubject, "")
	if subject == "" {
		if v, ok := req.State.SharedVar("project_name"); ok {
			subject, _ = v.(string)
		}
	}

	docs, err := h.source.Documents(ctx)
	if err != nil {
		return HandlerResult{}, fmt.Errorf("document source: %w", err)
	}

	selected, err := h.selector.SelectContext(ctx, docs, taskType)
	if err != nil {
		return HandlerResult{}, err
	}

	prompt := req.Input
	if ctxBlock := selected.Prompt(); ctxBlock != "" {
		prompt = prompt + "\n\nProject context:\n\n" + ctxBlock
	}

	content := h.gate.GenerateValidated(ctx, quality.GenerateRequest{
		Prompt:      prompt,
		System:      systemPrompt(contentType),
		ContentType: contentType,
		Subject:     subject,
	})

	return HandlerResult{
		Payload:    content.Text,
		Confidence: confidence(content),
		TokensUsed: content.TokensUsed + selected.TotalTokens,
		Provider:   content.Provider,
	}, nil
}

func systemPrompt(contentType quality.ContentType) string {
	switch contentType {
	case quality.ContentMarketingCopy:
		return "You are a marketing copywriter for developer tools. Write crisp, truthful copy in markdown with a single top-level heading."
	case quality.ContentTechnicalDoc:
		return "You are a technical writer. Produce accurate markdown documentation with a title and '##' subsections."
	case quality.ContentFeatureList:
		return "Summarize product capabilities as a markdown bullet list under a heading. No invented features."
	case quality.ContentFAQ:
		return "Write a markdown FAQ: a heading, then question lines ending in '?' each followed by a concise answer."
	default:
		return "Generate well-structured markdown content with a leading heading."
	}
}

// confidence folds gate outcome into the 0-1 metadata score: fallback
// content pins to a low floor so sinks can flag it for review.
func confidence(c quality.Content) float64 {
	if c.Fallback {
		return 0.1
	}
	return float64(c.Score) / 100
}

// AnalyzeProjectHandler derives a deterministic project profile from the
// document set without any provider call. Downstream generation tasks
// reference its payload via {taskResult:...} substitution.
type AnalyzeProjectHandler struct {
	source DocumentSource
}

// NewAnalyzeProjectHandler creates the analysis handler.
func NewAnalyzeProjectHandler(source DocumentSource) *AnalyzeProjectHandler {
	return &AnalyzeProjectHandler{source: source}
}

// ProjectProfile is the analyze payload, JSON-serialized into dependent
// task inputs.
type ProjectProfile struct {
	Name          string   `json:"name"`
	Features      []string `json:"features"`
	DocumentCount int      `json:"document_count"`
	Categories    []string `json:"categories"`
}

// Execute implements Handler.
func (h *AnalyzeProjectHandler) Execute(ctx context.Context, req HandlerRequest) (HandlerResult, error) {
	docs, err := h.source.Documents(ctx)
	if err != nil {
		return HandlerResult{}, fmt.Errorf("document source: %w", err)
	}

	profile := ProjectProfile{
		Name:          req.Task.Param(ParamSubject, ""),
		DocumentCount: len(docs),
	}

	seen := make(map[document.Category]bool)
	for _, doc := range docs {
		if !seen[doc.Category] {
			seen[doc.Category] = true
			profile.Categories = append(profile.Categories, string(doc.Category))
		}
		if doc.Category == document.CategoryReadme {
			if profile.Name == "" {
				profile.Name = readmeTitle(doc.RawContent)
			}
			profile.Features = append(profile.Features, readmeBullets(doc.RawContent, 10)...)
		}
	}
	if profile.Name == "" {
		profile.Name = "project"
	}

	return HandlerResult{Payload: profile, Confidence: 1.0}, nil
}

func readmeTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}

func readmeBullets(content string, max int) []string {
	var bullets []string
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
			bullets = append(bullets, strings.TrimSpace(trimmed[2:]))
			if len(bullets) >= max {
				break
			}
		}
	}
	return bullets
}
