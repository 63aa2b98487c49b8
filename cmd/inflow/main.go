package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	serverrun "github.com/inflow-io/inflow/internal/cmd/server"
	logpkg "github.com/inflow-io/inflow/pkg/log"
)

func main() {
	// Respect INFLOW_LOG_LEVEL for CLI output
	level := os.Getenv("INFLOW_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "inflow",
		Short: "Inflow event intake CLI",
		Long:  "Inflow is an inbound event reliability layer. This CLI manages the server and basic operations.",
	}

	// server start
	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start inflow server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, _ := cmd.Flags().GetString("config")
			httpAddr, _ := cmd.Flags().GetString("http")
			dataDir, _ := cmd.Flags().GetString("data-dir")
			forwardURL, _ := cmd.Flags().GetString("forward-url")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			if logLevel != "" {
				_ = os.Setenv("INFLOW_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("INFLOW_LOG_FORMAT", logFormat)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				ConfigPath: configPath,
				HTTPAddr:   httpAddr,
				DataDir:    dataDir,
				ForwardURL: forwardURL,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			return nil
		},
	}
	serverStartCmd.Flags().String("config", "", "Config file (JSON or YAML)")
	serverStartCmd.Flags().String("http", "", "HTTP listen address (default :8080)")
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("forward-url", "", "Downstream delivery URL")
	serverStartCmd.Flags().String("log-level", os.Getenv("INFLOW_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("INFLOW_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// queue commands
	queueCmd := &cobra.Command{Use: "queue", Short: "Queue operations"}
	queueMetricsCmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show queue metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/v1/queue/metrics")
		},
	}
	queueCmd.AddCommand(queueMetricsCmd)

	dlqCmd := &cobra.Command{Use: "dlq", Short: "Dead letter operations"}
	dlqListCmd := &cobra.Command{
		Use:   "list",
		Short: "List dead lettered items",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			archived, _ := cmd.Flags().GetBool("archived")
			filter, _ := cmd.Flags().GetString("filter")
			path := fmt.Sprintf("/v1/queue/dlq?limit=%d", limit)
			if archived {
				path = fmt.Sprintf("/v1/archive/dlq?limit=%d&filter=%s", limit, url.QueryEscape(filter))
			}
			return getJSON(path)
		},
	}
	dlqListCmd.Flags().Int("limit", 100, "Max items to list")
	dlqListCmd.Flags().Bool("archived", false, "List the on-disk archive instead of the live queue")
	dlqListCmd.Flags().String("filter", "", "CEL filter for archived items, e.g. 'error.contains(\"502\")'")
	dlqCmd.AddCommand(dlqListCmd)

	dlqRetryCmd := &cobra.Command{
		Use:   "retry <item-id>",
		Short: "Requeue a dead lettered item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/v1/queue/dlq/retry", map[string]string{"id": args[0]})
		},
	}
	dlqCmd.AddCommand(dlqRetryCmd)
	queueCmd.AddCommand(dlqCmd)
	rootCmd.AddCommand(queueCmd)

	// breaker commands
	breakersCmd := &cobra.Command{Use: "breakers", Short: "Circuit breaker operations"}
	breakersListCmd := &cobra.Command{
		Use:   "list",
		Short: "Show all circuit breakers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/v1/breakers")
		},
	}
	breakersResetCmd := &cobra.Command{
		Use:   "reset <name>",
		Short: "Manually close a breaker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/v1/breakers/reset", map[string]string{"name": args[0]})
		},
	}
	breakersOpenCmd := &cobra.Command{
		Use:   "open <name>",
		Short: "Manually open a breaker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postJSON("/v1/breakers/open", map[string]string{"name": args[0]})
		},
	}
	breakersCmd.AddCommand(breakersListCmd, breakersResetCmd, breakersOpenCmd)
	rootCmd.AddCommand(breakersCmd)

	// ratelimit inspect
	ratelimitCmd := &cobra.Command{
		Use:   "ratelimit <key>",
		Short: "Inspect rate limit state for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getJSON("/v1/ratelimit?key=" + url.QueryEscape(args[0]))
		},
	}
	rootCmd.AddCommand(ratelimitCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func getJSON(path string) error {
	resp, err := http.Get(apiURL() + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printBody(resp)
}

func postJSON(path string, body any) error {
	b, _ := json.Marshal(body)
	resp, err := http.Post(apiURL()+path, "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return printBody(resp)
}

func printBody(resp *http.Response) error {
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	var pretty bytes.Buffer
	if json.Indent(&pretty, b, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(b))
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return nil
}

func apiURL() string {
	if v := os.Getenv("INFLOW_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
