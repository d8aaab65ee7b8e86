package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatcher_SegmentsAndPaths(t *testing.T) {
	m := NewMatcher([]string{"node_modules", "*.log", "docs/private"})

	assert.True(t, m.Match("node_modules/pkg/index.js"))
	assert.True(t, m.Match("sub/node_modules/x"))
	assert.True(t, m.Match("server.log"))
	assert.True(t, m.Match("logs/server.log"))
	assert.True(t, m.Match("docs/private"))

	assert.False(t, m.Match("docs/guide.md"))
	assert.False(t, m.Match("README.md"))
}

func TestForProject_ReadsIgnoreFiles(t *testing.T) {
	dir := t.TempDir()
	content := "# comment\n\n*.tmp\nbuild/\n!keep.tmp\n/secrets\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".draftdignore"), []byte(content), 0644))

	m, err := ForProject(dir)
	require.NoError(t, err)

	assert.True(t, m.Match("scratch.tmp"))
	assert.True(t, m.Match("build/out.md"))
	assert.True(t, m.Match("secrets"))
	// Negation patterns are unsupported and just dropped.
	assert.True(t, m.Match("keep.tmp"))
	assert.False(t, m.Match("README.md"))
}

func TestForProject_FallbackDefaults(t *testing.T) {
	m, err := ForProject(t.TempDir())
	require.NoError(t, err)

	assert.True(t, m.Match(".git/config"))
	assert.True(t, m.Match("vendor/lib/x.go"))
	assert.False(t, m.Match("docs/api.md"))
}
