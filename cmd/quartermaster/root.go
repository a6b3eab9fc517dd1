package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"docdash/quartermaster/internal/config"
	"docdash/quartermaster/internal/telemetry"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string

	// cfg is populated by PersistentPreRunE and shared with all subcommands.
	cfg *config.Config

	// app holds all wired dependencies; populated by PersistentPreRunE.
	app *AppContext
)

var rootCmd = &cobra.Command{
	Use:   "quartermaster",
	Short: "quartermaster — document dashboard environment bootstrap",
	Long: `Quartermaster brings a workstation from an unknown state to one the
document dashboard can run on: the local model runtime installed and active,
the required models cached, the python package set installed, and the working
directories created. Every step is idempotent.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(bootstrapCmd)
}

// setup loads config, initialises logging, and wires the app context. It runs
// before every subcommand.
func setup(cmd *cobra.Command, args []string) error {
	initLogger(logLevel)

	var err error
	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// The flag wins over the config file; otherwise the file value, when
	// set, re-initialises the logger.
	if cmd.Flags().Changed("log-level") {
		cfg.Telemetry.LogLevel = logLevel
	} else if cfg.Telemetry.LogLevel != "" {
		initLogger(cfg.Telemetry.LogLevel)
	}

	app, err = buildAppContext(cfg)
	if err != nil {
		return fmt.Errorf("building app context: %w", err)
	}

	return nil
}

// Execute is the entry point called by main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var logLevels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// initLogger installs the global JSON logger. Logs go to stderr; stdout is
// reserved for bootstrap results and the summary.
func initLogger(level string) {
	lvl, ok := logLevels[strings.ToLower(level)]
	if !ok {
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(telemetry.NewTraceHandler(handler)))
}
