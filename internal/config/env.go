package config

import (
	"os"
	"strconv"
)

// FromEnv overlays INFLOW_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	setStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.ParseInt(v, 10, 64); err == nil {
				*dst = n
			}
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			if b, err := strconv.ParseBool(v); err == nil {
				*dst = b
			}
		}
	}

	setStr("INFLOW_HTTP_ADDR", &cfg.HTTPAddr)
	setStr("INFLOW_DATA_DIR", &cfg.DataDir)
	setStr("INFLOW_LOG_LEVEL", &cfg.Log.Level)
	setStr("INFLOW_LOG_FORMAT", &cfg.Log.Format)
	setStr("INFLOW_LOG_FILE", &cfg.Log.File)

	setInt("INFLOW_RATE_MAX_REQUESTS", &cfg.Rate.MaxRequests)
	setInt("INFLOW_RATE_WINDOW_SECONDS", &cfg.Rate.WindowSeconds)
	setInt("INFLOW_RATE_SPIKE_MAX", &cfg.Rate.SpikeMax)
	setInt("INFLOW_RATE_SPIKE_WINDOW_SECONDS", &cfg.Rate.SpikeWindow)
	setInt64("INFLOW_RATE_BAN_SECONDS", &cfg.Rate.BanSeconds)

	setInt64("INFLOW_DEBOUNCE_WINDOW_MS", &cfg.Debounce.WindowMs)
	setInt("INFLOW_DEBOUNCE_MAX_EVENTS", &cfg.Debounce.MaxEvents)
	setStr("INFLOW_DEBOUNCE_SEPARATOR", &cfg.Debounce.Separator)

	setInt("INFLOW_QUEUE_MAX_RETRIES", &cfg.Queue.MaxRetries)

	setInt("INFLOW_WORKER_CONCURRENCY", &cfg.Worker.Concurrency)
	setInt64("INFLOW_WORKER_POLL_MS", &cfg.Worker.PollMs)
	setInt64("INFLOW_WORKER_STOP_GRACE_MS", &cfg.Worker.StopGraceMs)
	setInt64("INFLOW_WORKER_PROCESS_TIMEOUT_MS", &cfg.Worker.ProcessTimeout)

	setInt("INFLOW_BREAKER_FAILURE_THRESHOLD", &cfg.Breaker.FailureThreshold)
	setInt64("INFLOW_BREAKER_RECOVERY_MS", &cfg.Breaker.RecoveryMs)
	setInt("INFLOW_BREAKER_HALF_OPEN_MAX", &cfg.Breaker.HalfOpenMax)

	setStr("INFLOW_FORWARD_URL", &cfg.Forward.URL)
	setInt64("INFLOW_FORWARD_TIMEOUT_MS", &cfg.Forward.TimeoutMs)

	setBool("INFLOW_ARCHIVE_ENABLED", &cfg.Archive.Enabled)
}
