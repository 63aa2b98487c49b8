package serverrun

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	cfgpkg "github.com/inflow-io/inflow/internal/config"
	"github.com/inflow-io/inflow/internal/runtime"
	httpserver "github.com/inflow-io/inflow/internal/server/http"
	logpkg "github.com/inflow-io/inflow/pkg/log"
)

// Options for starting the server process.
type Options struct {
	// ConfigPath points at a JSON or YAML config file. Empty uses defaults.
	ConfigPath string
	// HTTPAddr overrides the configured listen address when non-empty.
	HTTPAddr string
	// DataDir overrides the configured data directory when non-empty.
	DataDir string
	// ForwardURL overrides the configured downstream endpoint when non-empty.
	ForwardURL string
}

// Run starts the HTTP server and processing runtime, blocking until ctx is
// cancelled or a termination signal arrives.
func Run(ctx context.Context, opts Options) error {
	sctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := cfgpkg.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	cfgpkg.FromEnv(&cfg)
	if opts.HTTPAddr != "" {
		cfg.HTTPAddr = opts.HTTPAddr
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}
	if opts.ForwardURL != "" {
		cfg.Forward.URL = opts.ForwardURL
	}

	procLogger, err := logpkg.ApplyConfig(&logpkg.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		procLogger = logpkg.NewLogger(logpkg.WithFormatter(&logpkg.TextFormatter{}))
	}

	// Redirect stdlib logs (e.g., Pebble) to our logger
	logpkg.RedirectStdLog(procLogger)

	rt, err := runtime.Open(runtime.Options{Config: cfg, Logger: procLogger})
	if err != nil {
		return err
	}
	defer rt.Close()
	rt.Start(sctx)

	procLogger.Info("Starting Inflow server",
		logpkg.Str("http", cfg.HTTPAddr),
		logpkg.Str("data_dir", cfg.DataDir),
		logpkg.Str("forward_url", cfg.Forward.URL),
		logpkg.Bool("archive", cfg.Archive.Enabled),
		logpkg.Str("level", cfg.Log.Level),
		logpkg.Str("format", cfg.Log.Format),
	)

	hsrv := httpserver.New(rt)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := hsrv.ListenAndServe(sctx, cfg.HTTPAddr); err != nil && sctx.Err() == nil {
			procLogger.Error("http server", logpkg.Err(err))
		}
	}()

	<-sctx.Done()
	// Stop accepting requests before the runtime drains its buffers.
	hsrv.Close()
	wg.Wait()
	return nil
}
