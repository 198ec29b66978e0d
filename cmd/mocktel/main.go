package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hmgle/mocktel/internal/config"
	"github.com/hmgle/mocktel/pkg/logger"
	"github.com/hmgle/mocktel/pkg/metrics"
	"github.com/hmgle/mocktel/pkg/server"
)

const (
	version = "0.1.0"
)

var (
	configPath  string
	logFile     string
	verbose     bool
	quiet       bool
	metricsAddr string
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mocktel [flags]",
		Short: "Mock telemetry endpoints that accept and log everything",
		Long: `mocktel listens on the usual OpenTelemetry and Jaeger ports on the
loopback interface, logs every request it receives and answers with a
success response, so tools that export telemetry never see a failure.

Listeners:
  4317   OpenTelemetry GRPC
  4318   OpenTelemetry HTTP
  16686  Jaeger UI

Examples:
  # Start all listeners, log to ./intercepted_telemetry.log
  mocktel

  # Log somewhere else and expose counters for prometheus
  mocktel --log-file /tmp/telemetry.log --metrics-addr 127.0.0.1:9464

  # Only write the log file
  mocktel -q`,
		Version:       version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runMockTel,
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Configuration file (default: "+config.GetDefaultConfigPath()+")")
	cmd.Flags().StringVar(&logFile, "log-file", config.DefaultLogFile, "Intercept log file, truncated at startup")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress console output (the log file is still written)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Address to expose prometheus metrics on (example: 127.0.0.1:9464)")

	return cmd
}

func runMockTel(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var log logger.Logger
	if cfg.Quiet {
		log = logger.NewWithWriter(nil, false)
	} else {
		log = logger.New(cfg.Verbose)
	}

	log.Print("=== Mock Telemetry Server ===")
	log.Print("This server intercepts and logs telemetry data while preventing CLI errors.")
	log.Print("Press Ctrl+C to stop all servers.")
	log.Print("")

	interceptLog, err := logger.CreateInterceptLog(cfg.LogFile, time.Now())
	if err != nil {
		return err
	}
	defer interceptLog.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	recorder := metrics.NewRecorder()
	supervisor := server.NewSupervisor(cfg, log, interceptLog, recorder)
	if started := supervisor.Start(); len(started) == 0 {
		log.Warn("No listener could be started")
	}

	log.Print("")
	log.Print("Mock servers started. Monitoring telemetry interception...")
	log.Print("Log file: %s", interceptLog.Path())
	log.Print("")
	log.Print("Watch live interception:")
	log.Print("  tail -f %s", interceptLog.Path())
	log.Print("")

	var ms *metrics.Server
	if cfg.MetricsAddr != "" {
		ms = metrics.NewServer(cfg.MetricsAddr, recorder, log)
	}
	return serve(ctx, log, supervisor, ms)
}

// serve blocks until ctx ends. A failing metrics endpoint is reported and
// leaves the telemetry listeners running.
func serve(ctx context.Context, log logger.Logger, supervisor *server.Supervisor, ms *metrics.Server) error {
	var g errgroup.Group
	if ms != nil {
		g.Go(func() error {
			if err := ms.Run(ctx); err != nil {
				log.Error("Metrics endpoint unavailable: %v", err)
			}
			return nil
		})
	}
	g.Go(func() error { return supervisor.Wait(ctx) })
	return g.Wait()
}

// loadConfig layers defaults, the config file, the environment (and .env)
// and finally the flags that were set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := config.Default()

	path := configPath
	if path == "" {
		path = config.GetDefaultConfigPath()
	}
	fileCfg, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}
	cfg.MergeWithFileConfig(fileCfg)

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-file") {
		cfg.LogFile = logFile
	}
	if flags.Changed("verbose") {
		cfg.Verbose = verbose
	}
	if flags.Changed("quiet") {
		cfg.Quiet = quiet
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
