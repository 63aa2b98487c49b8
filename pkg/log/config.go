package log

import (
	"fmt"
	stdlog "log"
)

// Config is a declarative logger configuration, typically filled from flags
// or environment.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // "text" or "json"
	File   string `json:"file" yaml:"file"`     // optional file path in addition to console
}

// ApplyConfig builds a Logger from a Config.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	var formatter Formatter
	switch cfg.Format {
	case "", "text":
		formatter = &TextFormatter{}
	case "json":
		formatter = &JSONFormatter{}
	default:
		return nil, fmt.Errorf("log: unknown format %q", cfg.Format)
	}

	opts := []LoggerOption{
		WithLevel(level),
		WithFormatter(formatter),
		WithOutput(NewConsoleOutput()),
	}
	if cfg.File != "" {
		fo, err := NewFileOutput(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("log: open file output: %w", err)
		}
		opts = append(opts, WithOutput(fo))
	}
	return NewLogger(opts...), nil
}

// stdWriter adapts a Logger to io.Writer for stdlib log redirection.
type stdWriter struct{ logger Logger }

func (w stdWriter) Write(p []byte) (int, error) {
	msg := string(p)
	if n := len(msg); n > 0 && msg[n-1] == '\n' {
		msg = msg[:n-1]
	}
	w.logger.Info(msg, Component("stdlog"))
	return len(p), nil
}

// RedirectStdLog routes standard library log output (used by dependencies
// such as Pebble) through the given logger.
func RedirectStdLog(logger Logger) {
	stdlog.SetFlags(0)
	stdlog.SetOutput(stdWriter{logger: logger})
}
