package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mgruene/ARANDU-PUB/internal/config"
	"github.com/mgruene/ARANDU-PUB/internal/version"
)

func TestParseOverrides(t *testing.T) {
	t.Parallel()

	got, err := parseOverrides([]string{"work_type=master", " semester = SoSe 2024 ", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"work_type": "master", "semester": "SoSe 2024", "empty": ""}, got)

	got, err = parseOverrides(nil)
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{"no-equals", "=value"} {
		_, err := parseOverrides([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestReadJSONObject(t *testing.T) {
	t.Parallel()

	got, err := readJSONObject("metadata", `{"student_name":"Doe"}`)
	require.NoError(t, err)
	assert.Equal(t, "Doe", got["student_name"])

	path := filepath.Join(t.TempDir(), "meta.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"work_type":"bachelor"}`), 0o600))
	got, err = readJSONObject("metadata", "@"+path)
	require.NoError(t, err)
	assert.Equal(t, "bachelor", got["work_type"])

	got, err = readJSONObject("metadata", "  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = readJSONObject("metadata", `["not","an","object"]`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--metadata")

	_, err = readJSONObject("metadata", "@"+filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestPreviewText(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "kurz", preview("  kurz  ", 10))
	assert.Equal(t, "Über…", preview("Überblick", 4))
}

func TestRegistryAliases(t *testing.T) {
	t.Parallel()
	assert.Nil(t, registryAliases(&config.Config{}))

	cfg := &config.Config{Models: &config.Models{Embeddings: []config.EmbeddingModel{
		{Alias: "nomic", Model: "nomic-embed-text"},
		{Alias: "openai-small", Provider: "openai", Model: "text-embedding-3-small"},
	}}}
	assert.Equal(t, []string{"nomic", "openai-small"}, registryAliases(cfg))
	assert.True(t, usesOllama(cfg))

	cfg.Models.Embeddings = cfg.Models.Embeddings[1:]
	assert.False(t, usesOllama(cfg))
}

func TestVersionCmd_SkipsConfig(t *testing.T) {
	// No t.Parallel: the root command writes package-level state.
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version", "--config", filepath.Join(t.TempDir(), "missing.yaml")})

	require.NoError(t, root.Execute())
	assert.Equal(t, version.String(), strings.TrimSpace(out.String()))
}

func TestRootCmd_RegistersCommands(t *testing.T) {
	t.Parallel()
	root := NewRootCmd()
	for _, name := range []string{"ingest", "preview", "list", "show", "select", "current", "search", "watch", "serve", "doctor", "version"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
