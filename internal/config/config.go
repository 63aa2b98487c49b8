package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	HTTPAddr string   `json:"httpAddr" yaml:"httpAddr"`
	DataDir  string   `json:"dataDir" yaml:"dataDir"`
	Log      Log      `json:"log" yaml:"log"`
	Rate     Rate     `json:"rate" yaml:"rate"`
	Debounce Debounce `json:"debounce" yaml:"debounce"`
	Queue    Queue    `json:"queue" yaml:"queue"`
	Worker   Worker   `json:"worker" yaml:"worker"`
	Breaker  Breaker  `json:"breaker" yaml:"breaker"`
	Forward  Forward  `json:"forward" yaml:"forward"`
	Archive  Archive  `json:"archive" yaml:"archive"`
}

// Log controls the logging pipeline.
type Log struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"`
	File   string `json:"file" yaml:"file"`
}

// Rate configures the per-key rate limiter and spike detector.
type Rate struct {
	MaxRequests   int   `json:"maxRequests" yaml:"maxRequests"`
	WindowSeconds int   `json:"windowSeconds" yaml:"windowSeconds"`
	SpikeMax      int   `json:"spikeMax" yaml:"spikeMax"`
	SpikeWindow   int   `json:"spikeWindowSeconds" yaml:"spikeWindowSeconds"`
	BanSeconds    int64 `json:"banSeconds" yaml:"banSeconds"`
}

// Debounce configures the coalescing buffer.
type Debounce struct {
	WindowMs  int64  `json:"windowMs" yaml:"windowMs"`
	MaxEvents int    `json:"maxEvents" yaml:"maxEvents"`
	Separator string `json:"separator" yaml:"separator"`
}

// Queue configures retry behavior of the work queue.
type Queue struct {
	MaxRetries int `json:"maxRetries" yaml:"maxRetries"`
}

// Worker configures the dequeue loop.
type Worker struct {
	Concurrency    int   `json:"concurrency" yaml:"concurrency"`
	PollMs         int64 `json:"pollMs" yaml:"pollMs"`
	StopGraceMs    int64 `json:"stopGraceMs" yaml:"stopGraceMs"`
	ProcessTimeout int64 `json:"processTimeoutMs" yaml:"processTimeoutMs"`
}

// Breaker configures default circuit breaker thresholds.
type Breaker struct {
	FailureThreshold int   `json:"failureThreshold" yaml:"failureThreshold"`
	RecoveryMs       int64 `json:"recoveryMs" yaml:"recoveryMs"`
	HalfOpenMax      int   `json:"halfOpenMax" yaml:"halfOpenMax"`
}

// Forward configures the downstream delivery target.
type Forward struct {
	URL       string `json:"url" yaml:"url"`
	TimeoutMs int64  `json:"timeoutMs" yaml:"timeoutMs"`
}

// Archive configures the on-disk dead letter archive.
type Archive struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		HTTPAddr: ":8080",
		DataDir:  DefaultDataDir(),
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		Rate: Rate{
			MaxRequests:   10,
			WindowSeconds: 3600,
			SpikeMax:      5,
			SpikeWindow:   60,
			BanSeconds:    3600,
		},
		Debounce: Debounce{
			WindowMs:  5000,
			MaxEvents: 10,
			Separator: "\n",
		},
		Queue: Queue{
			MaxRetries: 5,
		},
		Worker: Worker{
			Concurrency:    10,
			PollMs:         1000,
			StopGraceMs:    30000,
			ProcessTimeout: 30000,
		},
		Breaker: Breaker{
			FailureThreshold: 5,
			RecoveryMs:       60000,
			HalfOpenMax:      3,
		},
		Forward: Forward{
			TimeoutMs: 10000,
		},
		Archive: Archive{
			Enabled: true,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Validate checks cross-field constraints that would otherwise surface as
// confusing runtime behavior.
func (c Config) Validate() error {
	if c.Rate.MaxRequests <= 0 {
		return fmt.Errorf("rate.maxRequests must be positive")
	}
	if c.Rate.WindowSeconds <= 0 {
		return fmt.Errorf("rate.windowSeconds must be positive")
	}
	if c.Debounce.WindowMs <= 0 {
		return fmt.Errorf("debounce.windowMs must be positive")
	}
	if c.Debounce.MaxEvents <= 0 {
		return fmt.Errorf("debounce.maxEvents must be positive")
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("queue.maxRetries must not be negative")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive")
	}
	if c.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("breaker.failureThreshold must be positive")
	}
	if c.Breaker.HalfOpenMax <= 0 {
		return fmt.Errorf("breaker.halfOpenMax must be positive")
	}
	return nil
}
