package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(validConfigYAML), 0o644))

	cfg, err := LoadConfig(configPath)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Upstream.Timeout.Duration())
	require.Len(t, cfg.Routes, 2)
	assert.Equal(t, RouteConfig{Path: "/google", Target: "https://www.google.com"}, cfg.Routes[0])

	// Unset fields keep their defaults.
	assert.True(t, cfg.Upstream.FailOnErrorStatus)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout.Duration())
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoader_Load_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := LoadConfig("/nonexistent/path/config.yaml")
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoader_LoadFromReader_InvalidYAML(t *testing.T) {
	t.Parallel()

	_, err := LoadConfigFromReader(strings.NewReader("routes: [unclosed"))
	assert.ErrorContains(t, err, "failed to parse YAML")
}

func TestLoader_LoadFromReader_NoRoutesDoesNotDefault(t *testing.T) {
	t.Parallel()

	cfg, err := LoadConfigFromReader(strings.NewReader("server:\n  port: 9000\n"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Routes)
	assert.Error(t, ValidateConfig(cfg))
}

func TestLoader_SubstituteEnvVars(t *testing.T) {
	t.Parallel()

	env := map[string]string{
		"UPSTREAM_HOST": "api.internal",
		"EMPTY":         "",
	}
	loader := &Loader{lookupEnv: func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}}

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "set variable", input: "https://${UPSTREAM_HOST}/v1", want: "https://api.internal/v1"},
		{name: "default used", input: "${MISSING:-fallback}", want: "fallback"},
		{name: "set but empty wins over default", input: "x${EMPTY:-fallback}x", want: "xx"},
		{name: "missing without default", input: "a${MISSING}b", want: "ab"},
		{name: "escaped dollar", input: "cost: $$5", want: "cost: $5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, loader.substituteEnvVars(tt.input))
		})
	}
}

func TestLoader_EnvSubstitutionInRoutes(t *testing.T) {
	t.Setenv("PROXY_TEST_TARGET", "http://localhost:3000")

	yaml := `
routes:
  - path: /local
    target: ${PROXY_TEST_TARGET}
  - path: /other
    target: ${PROXY_TEST_OTHER:-https://example.com}
`
	cfg, err := LoadConfigFromReader(strings.NewReader(yaml))
	require.NoError(t, err)
	require.Len(t, cfg.Routes, 2)
	assert.Equal(t, "http://localhost:3000", cfg.Routes[0].Target)
	assert.Equal(t, "https://example.com", cfg.Routes[1].Target)
}

func TestLoadOrDefault(t *testing.T) {
	t.Parallel()

	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, DefaultRoutes(), cfg.Routes)
	assert.NoError(t, ValidateConfig(cfg))
}
