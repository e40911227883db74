package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sercha-extractor/internal/core/domain"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-extractor/internal/runtime"
)

var invokeEventPath string

var invokeCmd = &cobra.Command{
	Use:   "invoke",
	Short: "Run one invocation in-process",
	Long: `Reads an invocation event from a JSON file (or stdin with "-"), runs it
once under the configured time budget and prints what was signalled.
No continuation is enqueued.`,
	Args: cobra.NoArgs,
	RunE: runInvoke,
}

func init() {
	invokeCmd.Flags().StringVar(&invokeEventPath, "event", "", "path to the event JSON, or - for stdin")
	_ = invokeCmd.MarkFlagRequired("event")
	rootCmd.AddCommand(invokeCmd)
}

func runInvoke(cmd *cobra.Command, _ []string) error {
	event, err := readEvent(cmd.InOrStdin(), invokeEventPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireUpstream(); err != nil {
		return err
	}

	ctx := cmd.Context()
	backends, err := runtime.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	svc, err := runtime.NewServices(cfg, backends, logger)
	if err != nil {
		return err
	}

	lockName := driven.SyncUnitLockName(event.SyncUnitID)
	acquired, err := svc.Lock.Acquire(ctx, lockName, cfg.InvocationTimeout+cfg.CheckpointMargin)
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("%w: %s", domain.ErrSyncInProgress, event.SyncUnitID)
	}
	defer func() {
		_ = svc.Lock.Release(context.WithoutCancel(ctx), lockName)
	}()

	ictx, cancel := context.WithTimeout(ctx, cfg.InvocationTimeout)
	defer cancel()

	result, err := svc.Extraction.Handle(ictx, event)
	if result == nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(result); encErr != nil {
		return encErr
	}
	if err != nil {
		logger.Warn("invocation reported an error", "error", err)
	}
	return nil
}

func readEvent(stdin io.Reader, path string) (domain.InvocationEvent, error) {
	var r io.Reader = stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return domain.InvocationEvent{}, fmt.Errorf("open event: %w", err)
		}
		defer f.Close()
		r = f
	}

	var event domain.InvocationEvent
	if err := json.NewDecoder(r).Decode(&event); err != nil {
		return domain.InvocationEvent{}, fmt.Errorf("%w: decode event: %v", domain.ErrInvalidInput, err)
	}
	return event, nil
}
