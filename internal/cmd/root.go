// SPDX-License-Identifier: AGPL-3.0-or-later
// TetraStream - Ingest, record and route TETRA call streams in a single binary
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// The source code is available at <https://github.com/USA-RedDragon/TetraStream>

package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"

	"github.com/USA-RedDragon/TetraStream/internal/alarm"
	"github.com/USA-RedDragon/TetraStream/internal/config"
	"github.com/USA-RedDragon/TetraStream/internal/db"
	"github.com/USA-RedDragon/TetraStream/internal/kv"
	"github.com/USA-RedDragon/TetraStream/internal/metrics"
	"github.com/USA-RedDragon/TetraStream/internal/pprof"
	"github.com/USA-RedDragon/TetraStream/internal/pubsub"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/ingest"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/mediarouter"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/persister"
	"github.com/USA-RedDragon/TetraStream/internal/tetra/tracer"
	"github.com/USA-RedDragon/configulator"
	"github.com/go-co-op/gocron/v2"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/ztrue/shutdown"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"
)

func NewCommand(version, commit string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "TetraStream",
		Version: fmt.Sprintf("%s - %s", version, commit),
		Annotations: map[string]string{
			"version": version,
			"commit":  commit,
		},
		RunE:              runRoot,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}
	return cmd
}

func runRoot(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	fmt.Printf("TetraStream - %s (%s)\n", cmd.Annotations["version"], cmd.Annotations["commit"])

	c, err := configulator.FromContext[config.Config](ctx)
	if err != nil {
		return fmt.Errorf("failed to get config from context: %w", err)
	}

	cfg, err := c.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var logger *slog.Logger
	switch cfg.LogLevel {
	case config.LogLevelDebug:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelDebug}))
	case config.LogLevelInfo:
		logger = slog.New(tint.NewHandler(os.Stdout, &tint.Options{Level: slog.LevelInfo}))
	case config.LogLevelWarn:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelWarn}))
	case config.LogLevelError:
		logger = slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelError}))
	}
	slog.SetDefault(logger)

	var cleanup func(context.Context) error
	if cfg.Metrics.OTLPEndpoint != "" {
		cleanup = initTracer(cfg)
		defer func() {
			err := cleanup(ctx)
			if err != nil {
				slog.Error("Failed to shutdown tracer", "error", err)
			}
		}()
	}
	go metrics.CreateMetricsServer(cfg)
	go pprof.CreatePProfServer(cfg)

	m := metrics.NewMetrics()

	database, err := db.MakeDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	kvStore, err := kv.MakeKV(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to key-value store: %w", err)
	}

	bus, err := pubsub.MakePubSub(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create internal bus: %w", err)
	}

	alarmer := alarm.New(cfg)

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	defer cancelWorkers()

	persisterWorker := persister.NewPersister(cfg, database, bus, kvStore, m, alarmer)
	persisterWorker.Start(workerCtx)

	routerWorker, err := mediarouter.MakeRouter(cfg, database, bus, m)
	if err != nil {
		return fmt.Errorf("failed to create media router: %w", err)
	}

	tracerWorker := tracer.NewTracer(cfg, bus, m)
	ingestServer := ingest.MakeServer(cfg, bus, m)

	g := new(errgroup.Group)
	g.Go(func() error {
		if err := routerWorker.Start(workerCtx); err != nil {
			return fmt.Errorf("failed to start media router: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := tracerWorker.Start(workerCtx); err != nil {
			return fmt.Errorf("failed to start tracer: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := ingestServer.Start(workerCtx); err != nil {
			return fmt.Errorf("failed to start ingress server: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(time.Duration(cfg.Persistence.MaintenanceFrequency)*time.Second),
		gocron.NewTask(persisterWorker.TickMaintenance),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule persister maintenance: %w", err)
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(time.Duration(cfg.Media.MaintenanceFrequency)*time.Second),
		gocron.NewTask(routerWorker.TickMaintenance),
	)
	if err != nil {
		return fmt.Errorf("failed to schedule media router maintenance: %w", err)
	}

	scheduler.Start()

	fatal := make(chan error, 1)
	go func() {
		if err := <-ingestServer.Fatal(); err != nil {
			fatal <- err
		}
	}()

	stop := func(sig os.Signal) {
		slog.Error("Shutting down due to signal", "signal", sig)
		wg := new(sync.WaitGroup)

		wg.Add(1)
		go func(wg *sync.WaitGroup) {
			defer wg.Done()
			err := scheduler.StopJobs()
			if err != nil {
				slog.Error("Failed to stop scheduler jobs", "error", err)
			}
			err = scheduler.Shutdown()
			if err != nil {
				slog.Error("Failed to stop scheduler", "error", err)
			}
		}(wg)

		wg.Add(1)
		go func(wg *sync.WaitGroup) {
			defer wg.Done()
			ingestServer.Stop(ctx)
			cancelWorkers()
			<-persisterWorker.Done()
			<-routerWorker.Done()
			<-tracerWorker.Done()
		}(wg)

		wg.Add(1)
		go func(wg *sync.WaitGroup) {
			defer wg.Done()
			if cfg.Metrics.OTLPEndpoint != "" {
				const timeout = 5 * time.Second
				ctx, cancel := context.WithTimeout(ctx, timeout)
				defer cancel()
				err := cleanup(ctx)
				if err != nil {
					slog.Error("Failed to shutdown tracer", "error", err)
				}
			}
		}(wg)

		// Wait for all the workers to stop
		const timeout = 10 * time.Second

		c := make(chan struct{})
		go func() {
			defer close(c)
			wg.Wait()
		}()
		select {
		case <-c:
			err = bus.Close()
			if err != nil {
				slog.Error("Failed to close internal bus", "error", err)
			}
			err = kvStore.Close()
			if err != nil {
				slog.Error("Failed to close kv", "error", err)
			}
			slog.Info("Shutdown safely completed")
			os.Exit(0)
		case <-time.After(timeout):
			slog.Error("Shutdown timed out")
			os.Exit(1)
		}
	}
	defer stop(syscall.SIGINT)

	go func() {
		err := <-fatal
		slog.Error("Fatal ingress error, exiting", "error", err)
		os.Exit(1)
	}()

	shutdown.AddWithParam(stop)

	shutdown.Listen(syscall.SIGINT, syscall.SIGKILL, syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGHUP)

	return nil
}

func initTracer(config *config.Config) func(context.Context) error {
	exporter, err := otlptrace.New(
		context.Background(),
		otlptracegrpc.NewClient(
			otlptracegrpc.WithInsecure(),
			otlptracegrpc.WithEndpoint(config.Metrics.OTLPEndpoint),
		),
	)
	if err != nil {
		slog.Error("Failed tracing app", "error", err)
	}
	resources, err := resource.New(
		context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", "TetraStream"),
			attribute.String("library.language", "go"),
		),
	)
	if err != nil {
		slog.Error("Could not set resources", "error", err)
	}

	otel.SetTracerProvider(
		sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithBatcher(exporter),
			sdktrace.WithResource(resources),
		),
	)
	return exporter.Shutdown
}
