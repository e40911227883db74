// Command sercha-extractor extracts Truto users into the platform's repositories.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-extractor/internal/config"
)

// @title           Sercha Extractor API
// @version         1.0
// @description     Accepts extraction invocation events and queues them for the worker.
// @BasePath        /api/v1
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

var version = "dev"

var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "sercha-extractor",
	Short: "Truto users extractor",
	Long: `Extracts users from the Truto unified API in time-boxed invocations,
pushes them to the destination repositories and reports progress on the
platform event channel.

Without a subcommand the mode is read from RUN_MODE (api, worker or all).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Name() == "version" {
			return nil
		}
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		logger = newLogger(cfg.LogFormat, cfg.LogLevel)
		slog.SetDefault(logger)
		return nil
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		mode := os.Getenv("RUN_MODE")
		if mode == "" {
			mode = modeAll
		}
		return serve(cmd.Context(), mode)
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newLogger builds a JSON or text handler at the given level. Unknown
// levels fall back to info.
func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler).With("service", "sercha-extractor", "version", version)
}
