package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"EpsilonChat/internal/backend"
	"EpsilonChat/internal/chatbot"
	"EpsilonChat/internal/config"
	"EpsilonChat/internal/session"
	"EpsilonChat/internal/telemetry"
	"EpsilonChat/internal/ui"
)

var version = "1.0.0"

type options struct {
	configPath string
	endpoint   string
	model      string
	theme      string
	logDir     string
	usageDB    string
	timeout    time.Duration
	debug      bool
	telemetry  bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	root := &cobra.Command{
		Use:           "epsilon",
		Short:         "Chat with a hosted language model from the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), cfg)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "epsilon.yaml", "Path to the YAML config file")
	pf.StringVar(&opts.endpoint, "endpoint", config.DefaultEndpoint, "Chat-completion endpoint URL")
	pf.StringVar(&opts.model, "model", config.DefaultModel, "Model identifier")
	pf.StringVar(&opts.theme, "theme", config.ThemeLight, "Initial theme (light|dark)")
	pf.StringVar(&opts.logDir, "log-dir", "logs", "Directory for log, trace and metric files")
	pf.StringVar(&opts.usageDB, "usage-db", "", "SQLite usage ledger path (disabled when empty)")
	pf.DurationVar(&opts.timeout, "timeout", 0, "Request timeout (0 waits indefinitely)")
	pf.BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	pf.BoolVar(&opts.telemetry, "telemetry", false, "Export OpenTelemetry traces and metrics to files")

	root.AddCommand(newUsageCmd(&opts))
	return root
}

// loadConfig reads the config file and environment, then applies the flags
// that were set explicitly.
func loadConfig(cmd *cobra.Command, opts options) (config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("endpoint") {
		cfg.Endpoint = opts.endpoint
	}
	if flags.Changed("model") {
		cfg.Model = opts.model
	}
	if flags.Changed("theme") {
		cfg.Theme = opts.theme
	}
	if flags.Changed("log-dir") {
		cfg.LogDir = opts.logDir
	}
	if flags.Changed("usage-db") {
		cfg.UsageDB = opts.usageDB
	}
	if flags.Changed("timeout") {
		cfg.Timeout = opts.timeout
	}
	if flags.Changed("debug") {
		cfg.Debug = opts.debug
	}
	if flags.Changed("telemetry") {
		cfg.Telemetry = opts.telemetry
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runChat(ctx context.Context, cfg config.Config) error {
	logger, closeLog, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer closeLog()

	clientOpts := []backend.Option{
		backend.WithTimeout(cfg.Timeout),
		backend.WithLogger(logger),
	}

	if cfg.Telemetry {
		tracer, meter, cleanup, err := telemetry.InitTelemetry(ctx, cfg.LogDir, version)
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer cleanup()
		clientOpts = append(clientOpts, backend.WithTracer(tracer), backend.WithMeter(meter))
	}

	var usage chatbot.UsageRecorder
	if cfg.UsageDB != "" {
		ledger, err := telemetry.OpenLedger(cfg.UsageDB)
		if err != nil {
			return fmt.Errorf("failed to initialize usage ledger: %w", err)
		}
		defer ledger.Close()
		usage = ledger
	}

	state := session.NewHolder(cfg.Greeting)
	bot := chatbot.NewChatBot(state, backend.NewClient(cfg.Endpoint, clientOpts...), chatbot.Options{
		Model:   cfg.Model,
		Persona: cfg.Persona,
		Logger:  logger,
		Usage:   usage,
		Dark:    cfg.Theme == config.ThemeDark,
	})

	logger.Info("starting epsilon", "session_id", state.Snapshot().ID, "model", cfg.Model, "version", version)

	p := tea.NewProgram(ui.New(ctx, bot), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return fmt.Errorf("terminal UI failed: %w", err)
	}

	logger.Info("session ended", "session_id", state.Snapshot().ID, "messages", len(state.Snapshot().Messages))
	return nil
}

func newUsageCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Print totals from the usage ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, *opts)
			if err != nil {
				return err
			}
			if cfg.UsageDB == "" {
				return errors.New("no usage ledger configured (set --usage-db or usage_db)")
			}

			ledger, err := telemetry.OpenLedger(cfg.UsageDB)
			if err != nil {
				return err
			}
			defer ledger.Close()

			sum, err := ledger.Summary(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Calls:             %d\n", sum.Calls)
			fmt.Fprintf(out, "Failures:          %d\n", sum.Failures)
			fmt.Fprintf(out, "Prompt tokens:     %d\n", sum.PromptTokens)
			fmt.Fprintf(out, "Completion tokens: %d\n", sum.CompletionTokens)
			fmt.Fprintf(out, "Average latency:   %s\n", sum.AvgDuration.Round(time.Millisecond))
			if sum.Calls > 0 {
				fmt.Fprintf(out, "Period:            %s to %s\n",
					sum.First.Local().Format(time.DateTime), sum.Last.Local().Format(time.DateTime))
			}
			return nil
		},
	}
}
