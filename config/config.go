// Package config loads swarm configuration.
//
// Configuration comes from an optional file, YAML (.yaml, .yml) or JSON with
// comments (.json, .jsonc), merged with environment overrides of the form
// AGENTIC_SWARM_<KEY>. A double underscore separates nesting levels and
// values are parsed as YAML, so
//
//	AGENTIC_SWARM_LOG__LEVEL=debug
//	AGENTIC_SWARM_CODERS='[coder-1, coder-2]'
//
// set log.level and coders. Every key is optional and unknown keys are
// ignored. Durations are written as duration strings ("5s", "0s").
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvPrefix marks environment variables that override configuration keys.
const EnvPrefix = "AGENTIC_SWARM_"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Model providers.
const (
	ProviderStub      = "stub"
	ProviderMock      = "mock"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// Config is the typed swarm configuration.
type Config struct {
	// Participant ids.
	Controller string   `yaml:"controller"`
	Planner    string   `yaml:"planner"`
	Coders     []string `yaml:"coders"`
	Reviewer   string   `yaml:"reviewer"`
	User       string   `yaml:"user"`

	// GracePeriod bounds the shutdown wait for run loops.
	GracePeriod time.Duration `yaml:"grace_period"`

	// MailboxCapacity bounds every mailbox. Zero means unbounded.
	MailboxCapacity int `yaml:"mailbox_capacity"`

	// TaskTimeout fails a request whose task is not answered in time. Zero
	// disables the bound.
	TaskTimeout time.Duration `yaml:"task_timeout"`

	// BroadcastExcludeSender skips the sender's own mailbox on broadcast.
	BroadcastExcludeSender bool `yaml:"broadcast_exclude_sender"`

	// ProgressUpdates enables non-final user outputs at each stage.
	ProgressUpdates bool `yaml:"progress_updates"`

	// HistorySize bounds the finished (and, separately, the in-flight)
	// requests kept in memory.
	HistorySize int `yaml:"history_size"`

	Log   LogConfig   `yaml:"log"`
	Model ModelConfig `yaml:"model"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// ModelConfig selects the generator behind the workers.
type ModelConfig struct {
	// Provider is stub, mock, anthropic or openai.
	Provider string `yaml:"provider"`

	// Name overrides the provider's default model.
	Name string `yaml:"name"`

	// Temperature is passed through when set.
	Temperature *float64 `yaml:"temperature"`

	// MaxTokens bounds each generation. Zero uses the provider default.
	MaxTokens int64 `yaml:"max_tokens"`
}

// Default returns the configuration used for missing keys.
func Default() *Config {
	return &Config{
		Controller:  "controller",
		Planner:     "planner",
		Coders:      []string{"coder"},
		Reviewer:    "reviewer",
		User:        "user",
		GracePeriod: 5 * time.Second,
		TaskTimeout: 30 * time.Second,
		HistorySize: 100,
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Model: ModelConfig{
			Provider: ProviderStub,
		},
	}
}

// Load reads the file at path (if non-empty), merges environment overrides
// and returns the validated configuration.
func Load(path string) (*Config, error) {
	raw := map[string]any{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}

		switch strings.ToLower(filepath.Ext(path)) {
		case ".json", ".jsonc":
			err = json.Unmarshal(jsonc.ToJSON(data), &raw)
		default:
			err = yaml.Unmarshal(data, &raw)
		}
		if err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		if raw == nil {
			raw = map[string]any{}
		}
	}

	deepMerge(raw, EnvOverrides(os.Environ(), EnvPrefix))
	return FromMap(raw)
}

// FromMap decodes an opaque key/value map onto the defaults and validates
// the result.
func FromMap(m map[string]any) (*Config, error) {
	cfg := Default()
	if len(m) > 0 {
		data, err := yaml.Marshal(m)
		if err != nil {
			return nil, fmt.Errorf("encode config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem with the configuration at once.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...)))
	}

	if c.GracePeriod < 0 {
		invalid("grace_period must not be negative")
	}
	if c.TaskTimeout < 0 {
		invalid("task_timeout must not be negative")
	}
	if c.MailboxCapacity < 0 {
		invalid("mailbox_capacity must not be negative")
	}
	if c.HistorySize < 0 {
		invalid("history_size must not be negative")
	}
	if len(c.Coders) == 0 {
		invalid("coders must name at least one participant")
	}

	seen := map[string]string{}
	for _, p := range c.participants() {
		switch {
		case p.id == "":
			invalid("%s id must not be empty", p.key)
		case seen[p.id] != "":
			invalid("%s id %q is already used by %s", p.key, p.id, seen[p.id])
		default:
			seen[p.id] = p.key
		}
	}

	switch c.Model.Provider {
	case ProviderStub, ProviderMock, ProviderAnthropic, ProviderOpenAI:
	default:
		invalid("unknown model.provider %q", c.Model.Provider)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		invalid("unknown log.format %q", c.Log.Format)
	}

	return errors.Join(errs...)
}

type participantKey struct{ key, id string }

func (c *Config) participants() []participantKey {
	keys := []participantKey{{"controller", c.Controller}, {"planner", c.Planner}}
	for _, id := range c.Coders {
		keys = append(keys, participantKey{"coders", id})
	}
	return append(keys, participantKey{"reviewer", c.Reviewer}, participantKey{"user", c.User})
}

// EnvOverrides collects variables starting with prefix from environ
// (KEY=value pairs) into a nested map. Keys are lower-cased and split on
// "__"; values are parsed as YAML and kept as strings when that fails.
func EnvOverrides(environ []string, prefix string) map[string]any {
	out := map[string]any{}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		path := strings.Split(strings.ToLower(strings.TrimPrefix(key, prefix)), "__")
		setNested(out, path, parseValue(value))
	}
	return out
}

func parseValue(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	return v
}

func setNested(target map[string]any, path []string, value any) {
	current := target
	for _, segment := range path[:len(path)-1] {
		next, ok := current[segment].(map[string]any)
		if !ok {
			next = map[string]any{}
			current[segment] = next
		}
		current = next
	}
	current[path[len(path)-1]] = value
}

func deepMerge(target, updates map[string]any) {
	for key, value := range updates {
		if sub, ok := value.(map[string]any); ok {
			if existing, ok := target[key].(map[string]any); ok {
				deepMerge(existing, sub)
				continue
			}
		}
		target[key] = value
	}
}
