package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestFromMap_Defaults(t *testing.T) {
	cfg, err := FromMap(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "controller", cfg.Controller)
	assert.Equal(t, []string{"coder"}, cfg.Coders)
	assert.Equal(t, 5*time.Second, cfg.GracePeriod)
	assert.Equal(t, 30*time.Second, cfg.TaskTimeout)
	assert.Equal(t, ProviderStub, cfg.Model.Provider)
}

func TestFromMap_Overrides(t *testing.T) {
	cfg, err := FromMap(map[string]any{
		"planner":          "architect",
		"coders":           []any{"c1", "c2"},
		"grace_period":     "250ms",
		"task_timeout":     "0s",
		"mailbox_capacity": 16,
		"progress_updates": true,
		"unknown_key":      "ignored",
		"model":            map[string]any{"provider": "mock", "temperature": 0.2},
	})
	require.NoError(t, err)

	assert.Equal(t, "architect", cfg.Planner)
	assert.Equal(t, "reviewer", cfg.Reviewer, "untouched keys keep defaults")
	assert.Equal(t, []string{"c1", "c2"}, cfg.Coders)
	assert.Equal(t, 250*time.Millisecond, cfg.GracePeriod)
	assert.Zero(t, cfg.TaskTimeout)
	assert.Equal(t, 16, cfg.MailboxCapacity)
	assert.True(t, cfg.ProgressUpdates)
	assert.Equal(t, ProviderMock, cfg.Model.Provider)
	require.NotNil(t, cfg.Model.Temperature)
	assert.InDelta(t, 0.2, *cfg.Model.Temperature, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
		msg  string
	}{
		{name: "duplicate ids", in: map[string]any{"planner": "coder"}, msg: `coders id "coder" is already used by planner`},
		{name: "coder duplicates user", in: map[string]any{"coders": []any{"user"}}, msg: `user id "user" is already used by coders`},
		{name: "empty id", in: map[string]any{"reviewer": ""}, msg: "reviewer id must not be empty"},
		{name: "no coders", in: map[string]any{"coders": []any{}}, msg: "at least one"},
		{name: "negative grace", in: map[string]any{"grace_period": "-1s"}, msg: "grace_period"},
		{name: "negative capacity", in: map[string]any{"mailbox_capacity": -1}, msg: "mailbox_capacity"},
		{name: "provider", in: map[string]any{"model": map[string]any{"provider": "llama"}}, msg: "model.provider"},
		{name: "log format", in: map[string]any{"log": map[string]any{"format": "xml"}}, msg: "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromMap(tt.in)
			require.ErrorIs(t, err, ErrInvalid)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "swarm.yaml", `
controller: boss
coders: [a, b]
task_timeout: 2s
log:
  level: debug
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "boss", cfg.Controller)
	assert.Equal(t, []string{"a", "b"}, cfg.Coders)
	assert.Equal(t, 2*time.Second, cfg.TaskTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoad_JSONC(t *testing.T) {
	path := writeFile(t, "swarm.jsonc", `{
  // the interactive front-end
  "user": "console",
  "grace_period": "1s", /* short */
  "broadcast_exclude_sender": true,
  "mailbox_capacity": 8,
}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "console", cfg.User)
	assert.Equal(t, time.Second, cfg.GracePeriod)
	assert.True(t, cfg.BroadcastExcludeSender)
	assert.Equal(t, 8, cfg.MailboxCapacity)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeFile(t, "swarm.yml", "log:\n  level: info\n  format: json\n")
	t.Setenv("AGENTIC_SWARM_LOG__LEVEL", "error")
	t.Setenv("AGENTIC_SWARM_CODERS", "[x, y, z]")
	t.Setenv("AGENTIC_SWARM_PROGRESS_UPDATES", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format, "sibling keys survive the merge")
	assert.Equal(t, []string{"x", "y", "z"}, cfg.Coders)
	assert.True(t, cfg.ProgressUpdates)
}

func TestLoad_NoPath(t *testing.T) {
	t.Setenv("AGENTIC_SWARM_USER", "cli")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "cli", cfg.User)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverrides(t *testing.T) {
	got := EnvOverrides([]string{
		"AGENTIC_SWARM_MODEL__PROVIDER=openai",
		"AGENTIC_SWARM_MODEL__MAX_TOKENS=256",
		"AGENTIC_SWARM_GRACE_PERIOD=3s",
		"AGENTIC_SWARM_EMPTY=",
		"OTHER_VAR=1",
		"malformed",
	}, EnvPrefix)

	assert.Equal(t, map[string]any{
		"model":        map[string]any{"provider": "openai", "max_tokens": 256},
		"grace_period": "3s",
		"empty":        "",
	}, got)
}
