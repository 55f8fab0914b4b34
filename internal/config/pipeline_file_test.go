package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePipelineFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mimi.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPipelineValid(t *testing.T) {
	path := writePipelineFile(t, `
providers:
  - name: local
    kind: local
    dimension: 128
  - name: ollama
    kind: ollama
    model: qwen2.5:7b
    requests_per_second: 4
steps:
  - name: episodic
    provider: ollama
    prompt: rewrite as an episode
  - name: semantic
    provider: ollama
    prompt: extract facts
`)

	p, err := LoadPipeline(path)
	require.NoError(t, err)
	require.Len(t, p.Providers, 2)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "local", p.Providers[0].Name)
	assert.Equal(t, 128, p.Providers[0].Dimension)
	assert.Equal(t, "episodic", p.Steps[0].Name)
	assert.Equal(t, "ollama", p.Steps[0].Provider)
}

func TestLoadPipelineMissingFile(t *testing.T) {
	_, err := LoadPipeline(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestPipelineValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "no providers",
			content: `steps: []`,
			wantErr: "at least one provider",
		},
		{
			name: "duplicate provider names",
			content: `
providers:
  - {name: a, kind: local}
  - {name: a, kind: ollama}
`,
			wantErr: "duplicate provider name",
		},
		{
			name: "unsupported kind",
			content: `
providers:
  - {name: a, kind: bard}
`,
			wantErr: "unsupported kind",
		},
		{
			name: "no embedder",
			content: `
providers:
  - {name: claude, kind: anthropic, api_key_env: ANTHROPIC_API_KEY}
`,
			wantErr: "no embedding-capable provider",
		},
		{
			name: "step without prompt",
			content: `
providers:
  - {name: ollama, kind: ollama}
steps:
  - {name: s, provider: ollama}
`,
			wantErr: "prompt is required",
		},
		{
			name: "step references unknown provider",
			content: `
providers:
  - {name: ollama, kind: ollama}
steps:
  - {name: s, provider: missing, prompt: p}
`,
			wantErr: "unknown provider",
		},
		{
			name: "step on embedding-only provider",
			content: `
providers:
  - {name: local, kind: local}
steps:
  - {name: s, provider: local, prompt: p}
`,
			wantErr: "cannot generate text",
		},
		{
			name: "duplicate step names",
			content: `
providers:
  - {name: ollama, kind: ollama}
steps:
  - {name: s, provider: ollama, prompt: p1}
  - {name: s, provider: ollama, prompt: p2}
`,
			wantErr: "duplicate step name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadPipeline(writePipelineFile(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestProviderSpecsResolveAPIKeyEnv(t *testing.T) {
	t.Setenv("MIMI_TEST_API_KEY", "sk-from-env")

	p := &Pipeline{Providers: []ProviderEntry{
		{Name: "openai", Kind: "openai", APIKeyEnv: "MIMI_TEST_API_KEY"},
		{Name: "inline", Kind: "openai", APIKey: "sk-inline", APIKeyEnv: "MIMI_TEST_API_KEY"},
	}}

	specs := p.ProviderSpecs(45 * time.Second)
	require.Len(t, specs, 2)
	assert.Equal(t, "sk-from-env", specs[0].APIKey)
	assert.Equal(t, "sk-inline", specs[1].APIKey, "explicit api_key wins over api_key_env")
	assert.Equal(t, 45*time.Second, specs[0].Timeout)
}

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, 0.15, cfg.Search.Boost)
	assert.Equal(t, 4, cfg.Search.OverFetch)
	assert.Equal(t, "mimi.yaml", cfg.Pipeline.File)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.StepTimeout)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MIMI_STORAGE_ENGINE", "postgres")
	t.Setenv("MIMI_SEARCH_BOOST", "0.25")
	t.Setenv("MIMI_STEP_TIMEOUT", "30s")
	t.Setenv("MIMI_PIPELINE_CONCURRENCY", "not-a-number")

	cfg := Load()
	assert.Equal(t, "postgres", cfg.Storage.Engine)
	assert.Equal(t, 0.25, cfg.Search.Boost)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.StepTimeout)
	assert.Equal(t, 4, cfg.Pipeline.Concurrency, "unparseable values fall back to defaults")
}
