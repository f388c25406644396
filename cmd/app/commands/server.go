package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/allisson/payouts/internal/app"
	"github.com/allisson/payouts/internal/config"
)

const shutdownTimeout = 30 * time.Second

// component is a long running part of the process. stop may be nil for loops that exit on
// context cancellation.
type component struct {
	name  string
	start func(ctx context.Context) error
	stop  func(ctx context.Context) error
}

// RunServer starts the API server, the metrics server, the outbox worker and the reconciler.
// Blocks until receiving SIGINT/SIGTERM or until one of them fails, then stops the rest.
func RunServer(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	gin.SetMode(cfg.GetGinMode())

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting server", slog.String("version", version))
	defer closeContainer(container, logger)

	server, err := container.HTTPServer()
	if err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	metricsServer, err := container.MetricsServer()
	if err != nil {
		return fmt.Errorf("failed to initialize metrics server: %w", err)
	}

	outboxUseCase, err := container.OutboxUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox worker: %w", err)
	}

	reconciliationUseCase, err := container.ReconciliationUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize reconciler: %w", err)
	}

	components := []component{
		{name: "api server", start: server.Start, stop: server.Shutdown},
		{name: "outbox worker", start: outboxUseCase.Start},
		{name: "reconciler", start: reconciliationUseCase.Start},
	}
	if metricsServer != nil {
		components = append(components, component{
			name:  "metrics server",
			start: metricsServer.Start,
			stop:  metricsServer.Shutdown,
		})
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return runComponents(ctx, logger, shutdownTimeout, components...)
}

// RunWorker starts only the outbox worker, for deployments that scale it apart from the API.
func RunWorker(ctx context.Context, version string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	container := app.NewContainer(cfg)
	logger := container.Logger()
	logger.Info("starting outbox worker", slog.String("version", version))
	defer closeContainer(container, logger)

	outboxUseCase, err := container.OutboxUseCase()
	if err != nil {
		return fmt.Errorf("failed to initialize outbox worker: %w", err)
	}

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return runComponents(ctx, logger, shutdownTimeout, component{name: "outbox worker", start: outboxUseCase.Start})
}

// runComponents runs every component until ctx is done or one of them fails, then stops the
// others within timeout. Cancellation is a clean exit.
func runComponents(ctx context.Context, logger *slog.Logger, timeout time.Duration, components ...component) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, c := range components {
		g.Go(func() error {
			if err := c.start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("%s error: %w", c.name, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", slog.Any("cause", context.Cause(gctx)))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer shutdownCancel()

		var shutdownErrors []error
		for _, c := range components {
			if c.stop == nil {
				continue
			}
			if err := c.stop(shutdownCtx); err != nil {
				shutdownErrors = append(shutdownErrors, fmt.Errorf("%s shutdown: %w", c.name, err))
			}
		}
		return errors.Join(shutdownErrors...)
	})

	return g.Wait()
}
