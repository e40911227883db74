package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/custodia-labs/sercha-extractor/internal/adapters/driving/http"
	"github.com/custodia-labs/sercha-extractor/internal/core/ports/driving"
	"github.com/custodia-labs/sercha-extractor/internal/runtime"
	"github.com/custodia-labs/sercha-extractor/internal/worker"
)

const (
	modeAPI    = "api"
	modeWorker = "worker"
	modeAll    = "all"
)

func init() {
	for _, mode := range []string{modeAPI, modeWorker, modeAll} {
		rootCmd.AddCommand(&cobra.Command{
			Use:   mode,
			Short: serveDescriptions[mode],
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return serve(cmd.Context(), cmd.Name())
			},
		})
	}
}

var serveDescriptions = map[string]string{
	modeAPI:    "Run the event ingest API",
	modeWorker: "Run the invocation worker and scheduler",
	modeAll:    "Run the API and the worker in one process",
}

// serve runs the requested mode until ctx is cancelled.
func serve(ctx context.Context, mode string) error {
	if _, ok := serveDescriptions[mode]; !ok {
		return fmt.Errorf("unknown mode: %s (use: api, worker, or all)", mode)
	}
	if mode != modeAPI {
		if err := cfg.RequireUpstream(); err != nil {
			return fmt.Errorf("worker configuration: %w", err)
		}
	}

	logger.Info("sercha-extractor starting", "mode", mode)

	backends, err := runtime.Connect(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.Close()

	svc, err := runtime.NewServices(cfg, backends, logger)
	if err != nil {
		return err
	}
	logger.Info("services ready",
		"queue_backend", svc.QueueBackend,
		"state_backend", svc.StateBackend,
		"event_sink", svc.EventSink,
		"scheduler", svc.Scheduler != nil,
	)

	g, ctx := errgroup.WithContext(ctx)

	if mode == modeAPI || mode == modeAll {
		server := http.NewServer(http.Config{
			Host:    cfg.Host,
			Port:    cfg.Port,
			Version: version,
		}, svc.Auth, svc.TaskQueue, svc.Checks, logger)
		g.Go(func() error {
			return server.Start(ctx)
		})
	}

	if mode == modeWorker || mode == modeAll {
		w := worker.NewWorker(worker.WorkerConfig{
			TaskQueue:         svc.TaskQueue,
			Lock:              svc.Lock,
			Extraction:        svc.Extraction,
			Scheduler:         schedulerOrNil(svc),
			Logger:            logger,
			Concurrency:       cfg.WorkerConcurrency,
			DequeueTimeout:    cfg.DequeueTimeout,
			InvocationTimeout: cfg.InvocationTimeout,
			LockRetryDelay:    cfg.LockRetryDelay,
		})
		g.Go(func() error {
			if err := w.Start(ctx); err != nil {
				return fmt.Errorf("failed to start worker: %w", err)
			}
			<-ctx.Done()
			w.Stop()
			return nil
		})
	}

	return g.Wait()
}

// schedulerOrNil keeps a disabled scheduler a nil interface.
func schedulerOrNil(svc *runtime.Services) driving.Scheduler {
	if svc.Scheduler == nil {
		return nil
	}
	return svc.Scheduler
}
