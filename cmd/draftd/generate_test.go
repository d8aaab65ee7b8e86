package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/draftd/internal/config"
	"github.com/fyrsmithlabs/draftd/internal/pipeline"
	"github.com/fyrsmithlabs/draftd/internal/quality"
)

func TestContentTypes_DefaultsToAll(t *testing.T) {
	types, err := contentTypes(nil)
	require.NoError(t, err)
	assert.Len(t, types, 4)
}

func TestContentTypes_ValidatesNames(t *testing.T) {
	types, err := contentTypes([]string{"faq", " marketing-copy"})
	require.NoError(t, err)
	assert.Equal(t, []quality.ContentType{quality.ContentFAQ, quality.ContentMarketingCopy}, types)

	_, err = contentTypes([]string{"blog-post"})
	require.ErrorContains(t, err, "unknown content type")
}

func TestDeclareTasks_GraphShape(t *testing.T) {
	orch := pipeline.NewOrchestrator(pipeline.Config{}, nil)
	orch.RegisterHandler(handlerAnalyze, pipeline.HandlerFunc(nil))
	orch.RegisterHandler(handlerContent, pipeline.HandlerFunc(nil))

	err := declareTasks(orch, []quality.ContentType{quality.ContentFAQ, quality.ContentFeatureList})
	require.NoError(t, err)

	// Re-declaring collides with the already-declared graph.
	err = declareTasks(orch, []quality.ContentType{quality.ContentFAQ})
	require.Error(t, err)
}

func TestBuildRegistry_AppliesBudgetOverrides(t *testing.T) {
	cfg := &config.Config{}
	cfg.Selection.Budgets = map[string]int{"faq": 1234}

	registry := buildRegistry(cfg)
	s, err := registry.Get("faq")
	require.NoError(t, err)
	assert.Equal(t, 1234, s.MaxTokens)

	other, err := registry.Get("marketing-copy")
	require.NoError(t, err)
	assert.NotEqual(t, 1234, other.MaxTokens)
}

func TestBuildProviders_StubOnly(t *testing.T) {
	cfg := &config.Config{}
	cfg.Providers.Stub.Enabled = true
	cfg.Providers.Stub.Priority = 100

	providers, err := buildProviders(cfg)
	require.NoError(t, err)
	require.Len(t, providers, 1)
	assert.Equal(t, "offline-stub", providers[0].Name())
}

func TestWriteOutputs(t *testing.T) {
	outDir := filepath.Join(t.TempDir(), "out")
	run := &pipeline.RunResult{
		Results: map[string]pipeline.TaskResult{
			"faq":            {TaskID: "faq", Success: true, Payload: "# FAQ\n"},
			"marketing-copy": {TaskID: "marketing-copy", Success: false, Error: "boom"},
		},
	}

	err := writeOutputs(outDir, []quality.ContentType{quality.ContentFAQ, quality.ContentMarketingCopy}, run)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(outDir, "faq.md"))
	require.NoError(t, err)
	assert.Equal(t, "# FAQ\n", string(data))

	_, err = os.Stat(filepath.Join(outDir, "marketing-copy.md"))
	assert.True(t, os.IsNotExist(err), "failed tasks produce no file")
}
