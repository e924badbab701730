package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Rogers-F/triad-kernel/internal/domain"
)

// EnvConfigPath names the environment variable consulted by Resolve.
const EnvConfigPath = "TRIAD_CONFIG"

// ProcessorConfig defines how to launch the external cognitive processor.
type ProcessorConfig struct {
	Command string            `json:"command" yaml:"command"`
	Args    []string          `json:"args" yaml:"args"`
	Env     map[string]string `json:"env" yaml:"env"`
}

// Config holds the kernel service's runtime configuration.
type Config struct {
	DBPath                   string           `json:"db_path" yaml:"db_path"`
	BotIdentity              string           `json:"bot_identity" yaml:"bot_identity"`
	Name                     string           `json:"name" yaml:"name"`
	StepDurationMS           int              `json:"step_duration_ms" yaml:"step_duration_ms"`
	MaxConcurrentProcesses   int              `json:"max_concurrent_processes" yaml:"max_concurrent_processes"`
	MaxQueueDepth            int              `json:"max_queue_depth" yaml:"max_queue_depth"`
	EnableParallelCognition  *bool            `json:"enable_parallel_cognition" yaml:"enable_parallel_cognition"`
	DefaultSalienceThreshold *float64         `json:"default_salience_threshold" yaml:"default_salience_threshold"`
	SalienceExploration      *float64         `json:"salience_exploration" yaml:"salience_exploration"`
	SalienceMemory           int              `json:"salience_memory" yaml:"salience_memory"`
	ListenAddr               string           `json:"listen_addr" yaml:"listen_addr"`
	RateLimitPerMinute       int              `json:"rate_limit_per_minute" yaml:"rate_limit_per_minute"`
	DispatchTimeoutMS        int              `json:"dispatch_timeout_ms" yaml:"dispatch_timeout_ms"`
	SupervisorIntervalMS     int              `json:"supervisor_interval_ms" yaml:"supervisor_interval_ms"`
	EventBuffer              int              `json:"event_buffer" yaml:"event_buffer"`
	LogLevel                 string           `json:"log_level" yaml:"log_level"`
	Processor                *ProcessorConfig `json:"processor" yaml:"processor"`
}

// Load reads a JSON or YAML config file, applies defaults, and validates.
// Files ending in .yaml or .yml are parsed as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config JSON: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Resolve picks the config file to load: the explicit path if set, then
// $TRIAD_CONFIG, then config.json or config.yaml next to the executable,
// then the same names in the working directory.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p, nil
	}

	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	for _, dir := range dirs {
		for _, name := range []string{"config.json", "config.yaml", "config.yml"} {
			p := filepath.Join(dir, name)
			if _, err := os.Stat(p); err == nil {
				return p, nil
			}
		}
	}
	return "", fmt.Errorf("no config file: pass --config, set %s, or place config.json next to the binary", EnvConfigPath)
}

// StepDuration returns the master clock period.
func (c *Config) StepDuration() time.Duration {
	return time.Duration(c.StepDurationMS) * time.Millisecond
}

// DispatchTimeout returns the supervisor timeout; zero disables it.
func (c *Config) DispatchTimeout() time.Duration {
	return time.Duration(c.DispatchTimeoutMS) * time.Millisecond
}

// SupervisorInterval returns how often the supervisor checks for timeouts.
func (c *Config) SupervisorInterval() time.Duration {
	return time.Duration(c.SupervisorIntervalMS) * time.Millisecond
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "triad"
	}
	if c.StepDurationMS == 0 {
		c.StepDurationMS = 100
	}
	if c.MaxConcurrentProcesses == 0 {
		c.MaxConcurrentProcesses = 100
	}
	if c.MaxQueueDepth == 0 {
		c.MaxQueueDepth = 1000
	}
	if c.EnableParallelCognition == nil {
		v := true
		c.EnableParallelCognition = &v
	}
	if c.DefaultSalienceThreshold == nil {
		v := 0.3
		c.DefaultSalienceThreshold = &v
	}
	if c.SalienceExploration == nil {
		v := 0.5
		c.SalienceExploration = &v
	}
	if c.SalienceMemory == 0 {
		c.SalienceMemory = 1024
	}
	if c.ListenAddr == "" {
		c.ListenAddr = ":9800"
	}
	if c.RateLimitPerMinute == 0 {
		c.RateLimitPerMinute = 600
	}
	if c.SupervisorIntervalMS == 0 {
		c.SupervisorIntervalMS = 1000
	}
	if c.EventBuffer == 0 {
		c.EventBuffer = 256
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	var problems []string

	if c.DBPath == "" {
		problems = append(problems, "db_path is required")
	}
	if c.BotIdentity == "" {
		problems = append(problems, "bot_identity is required")
	}
	if c.StepDurationMS < 0 {
		problems = append(problems, "step_duration_ms must be positive")
	}
	if c.MaxConcurrentProcesses < 0 {
		problems = append(problems, "max_concurrent_processes must be positive")
	}
	if c.MaxQueueDepth < 0 {
		problems = append(problems, "max_queue_depth must be positive")
	}
	if t := *c.DefaultSalienceThreshold; t < 0 || t > 1 {
		problems = append(problems, "default_salience_threshold must be in [0,1]")
	}
	if e := *c.SalienceExploration; e < 0 || e > 1 {
		problems = append(problems, "salience_exploration must be in [0,1]")
	}
	if c.SalienceMemory < 0 {
		problems = append(problems, "salience_memory must be positive")
	}
	if c.RateLimitPerMinute < 0 {
		problems = append(problems, "rate_limit_per_minute must be positive")
	}
	if c.DispatchTimeoutMS < 0 {
		problems = append(problems, "dispatch_timeout_ms must not be negative")
	}
	if c.SupervisorIntervalMS < 0 {
		problems = append(problems, "supervisor_interval_ms must be positive")
	}
	if c.EventBuffer < 0 {
		problems = append(problems, "event_buffer must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q must be one of debug, info, warn, error", c.LogLevel))
	}
	if c.Processor != nil && c.Processor.Command == "" {
		problems = append(problems, "processor.command is required when processor is set")
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}
