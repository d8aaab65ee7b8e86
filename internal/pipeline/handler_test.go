package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/draftd/internal/document"
	"github.com/fyrsmithlabs/draftd/internal/provider"
	"github.com/fyrsmithlabs/draftd/internal/quality"
	"github.com/fyrsmithlabs/draftd/internal/selection"
)

const readmeContent = `# Draftd

Draftd turns project context into generated content.

- Dependency-ordered task execution
- Token-budgeted context selection
- Provider fallback chain
`

func fixedDocs() DocumentSource {
	return DocumentSourceFunc(func(ctx context.Context) ([]document.Document, error) {
		return []document.Document{
			document.New("README.md", readmeContent, time.Now()),
			document.New("docs/guide.md", "# Guide\n\nInstall and run.", time.Now()),
		}, nil
	})
}

// passthroughGenerator returns a fixed valid completion.
type passthroughGenerator struct {
	lastPrompt string
}

func (p *passthroughGenerator) Generate(ctx context.Context, req provider.Request) (*provider.Response, error) {
	p.lastPrompt = req.Prompt
	text := "# Draftd\n\n" + strings.Repeat("Generated marketing copy about the project. ", 10)
	return &provider.Response{Text: text, Provider: "fake", TokensUsed: 42}, nil
}

func newContentHandler(gen quality.Generator, source DocumentSource) *ContentHandler {
	selector := selection.NewSelector(selection.DefaultRegistry(), nil)
	gate := quality.NewGate(quality.DefaultGateConfig(), gen, nil)
	return NewContentHandler(source, selector, gate)
}

func TestContentHandler_GeneratesWithSelectedContext(t *testing.T) {
	gen := &passthroughGenerator{}
	h := newContentHandler(gen, fixedDocs())

	out, err := h.Execute(context.Background(), HandlerRequest{
		Task: Task{
			ID:          "copy",
			HandlerName: "content",
			Params: map[string]string{
				ParamTaskType: "marketing-copy",
				ParamSubject:  "Draftd",
			},
		},
		Input: "Write launch copy.",
		State: newExecutionState(nil),
	})

	require.NoError(t, err)
	payload, ok := out.Payload.(string)
	require.True(t, ok)
	assert.Contains(t, payload, "Draftd")
	assert.Equal(t, "fake", out.Provider)
	assert.Equal(t, 1.0, out.Confidence)
	// The prompt carries both the resolved input and the selected docs.
	assert.Contains(t, gen.lastPrompt, "Write launch copy.")
	assert.Contains(t, gen.lastPrompt, "README.md")
}

func TestContentHandler_UnknownTaskTypeIsHandlerError(t *testing.T) {
	h := newContentHandler(&passthroughGenerator{}, fixedDocs())

	_, err := h.Execute(context.Background(), HandlerRequest{
		Task:  Task{ID: "t", Params: map[string]string{ParamTaskType: "unheard-of"}},
		State: newExecutionState(nil),
	})

	var unknown *selection.UnknownTaskTypeError
	require.ErrorAs(t, err, &unknown)
}

func TestContentHandler_DocumentSourceFailure(t *testing.T) {
	failing := DocumentSourceFunc(func(ctx context.Context) ([]document.Document, error) {
		return nil, errors.New("store offline")
	})
	h := newContentHandler(&passthroughGenerator{}, failing)

	_, err := h.Execute(context.Background(), HandlerRequest{
		Task:  Task{ID: "t"},
		State: newExecutionState(nil),
	})
	require.ErrorContains(t, err, "store offline")
}

func TestContentHandler_FallbackConfidenceFloor(t *testing.T) {
	// A generator that always emits a critical defect forces the gate's
	// fallback template.
	bad := quality.GeneratorFunc(func(ctx context.Context, req provider.Request) (*provider.Response, error) {
		return &provider.Response{Text: "[TODO] unusable", Provider: "fake"}, nil
	})
	h := newContentHandler(bad, fixedDocs())

	out, err := h.Execute(context.Background(), HandlerRequest{
		Task: Task{ID: "t", Params: map[string]string{
			ParamTaskType: "marketing-copy",
			ParamSubject:  "Draftd",
		}},
		State: newExecutionState(nil),
	})

	require.NoError(t, err, "validation failure must not surface as an error")
	assert.Equal(t, 0.1, out.Confidence)
	assert.Contains(t, out.Payload.(string), "Draftd")
}

func TestContentHandler_SubjectFromSharedVar(t *testing.T) {
	gen := &passthroughGenerator{}
	h := newContentHandler(gen, fixedDocs())
	state := newExecutionState(map[string]any{"project_name": "Draftd"})

	out, err := h.Execute(context.Background(), HandlerRequest{
		Task:  Task{ID: "t", Params: map[string]string{ParamTaskType: "marketing-copy"}},
		State: state,
	})

	require.NoError(t, err)
	require.NotNil(t, out.Payload)
}

func TestAnalyzeProjectHandler_Profile(t *testing.T) {
	h := NewAnalyzeProjectHandler(fixedDocs())

	out, err := h.Execute(context.Background(), HandlerRequest{
		Task:  Task{ID: "analyze"},
		State: newExecutionState(nil),
	})

	require.NoError(t, err)
	profile, ok := out.Payload.(ProjectProfile)
	require.True(t, ok)
	assert.Equal(t, "Draftd", profile.Name)
	assert.Equal(t, 2, profile.DocumentCount)
	assert.Contains(t, profile.Features, "Provider fallback chain")
	assert.Contains(t, profile.Categories, "readme")
	assert.Equal(t, 1.0, out.Confidence)
}

func TestAnalyzeProjectHandler_EmptyProject(t *testing.T) {
	empty := DocumentSourceFunc(func(ctx context.Context) ([]document.Document, error) {
		return nil, nil
	})
	h := NewAnalyzeProjectHandler(empty)

	out, err := h.Execute(context.Background(), HandlerRequest{
		Task:  Task{ID: "analyze"},
		State: newExecutionState(nil),
	})

	require.NoError(t, err)
	profile := out.Payload.(ProjectProfile)
	assert.Equal(t, "project", profile.Name)
	assert.Zero(t, profile.DocumentCount)
}
