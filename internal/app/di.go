// Package app assembles the payout engine: storage, the release and webhook flows, the outbox
// worker, reconciliation and the HTTP surfaces.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/allisson/payouts/internal/alert"
	"github.com/allisson/payouts/internal/config"
	"github.com/allisson/payouts/internal/database"
	"github.com/allisson/payouts/internal/gateway"
	"github.com/allisson/payouts/internal/http"
	"github.com/allisson/payouts/internal/metrics"
	outboxUseCase "github.com/allisson/payouts/internal/outbox/usecase"
	reconciliationUseCase "github.com/allisson/payouts/internal/reconciliation/usecase"
	releaseHTTP "github.com/allisson/payouts/internal/release/http"
	releaseUseCase "github.com/allisson/payouts/internal/release/usecase"
	webhookDomain "github.com/allisson/payouts/internal/webhook/domain"
	webhookHTTP "github.com/allisson/payouts/internal/webhook/http"
	webhookUseCase "github.com/allisson/payouts/internal/webhook/usecase"
)

// outboxStore is the outbox repository surface shared by the release flow, the worker and the
// webhook ingestion.
type outboxStore interface {
	releaseUseCase.OutboxEventRepository
	outboxUseCase.OutboxEventRepository
	webhookUseCase.OutboxEventRepository
}

// Container wires the payout engine. Each component is built the first time something asks
// for it, so the reconcile command never opens the API listener and the worker never loads
// the webhook secret.
type Container struct {
	config *config.Config

	logger          lazy[*slog.Logger]
	db              lazy[*sql.DB]
	txManager       lazy[database.TxManager]
	metricsProvider lazy[*metrics.Provider]
	businessMetrics lazy[metrics.BusinessMetrics]
	alerter         lazy[alert.Alerter]
	gatewayClient   lazy[gateway.Adapter]

	walletRepo         lazy[releaseUseCase.WalletTransactionRepository]
	bountyRepo         lazy[releaseUseCase.BountyRepository]
	outboxRepo         lazy[outboxStore]
	reconciliationRepo lazy[reconciliationUseCase.ReconciliationRepository]

	finalizer             lazy[*releaseUseCase.Finalizer]
	releaseUseCase        lazy[releaseUseCase.ReleaseUseCase]
	outboxUseCase         lazy[outboxUseCase.UseCase]
	reconciliationUseCase lazy[reconciliationUseCase.UseCase]

	webhookVerifier lazy[*webhookDomain.Verifier]
	webhookDedupe   lazy[webhookUseCase.Deduplicator]
	webhookUseCase  lazy[webhookUseCase.WebhookUseCase]

	releaseHandler lazy[*releaseHTTP.ReleaseHandler]
	webhookHandler lazy[*webhookHTTP.WebhookHandler]
	httpServer     lazy[*http.Server]
	metricsServer  lazy[*http.MetricsServer]

	// mu guards redisClient, which is opened as a side effect of the dedupe cache.
	mu          sync.Mutex
	redisClient *redis.Client
}

// NewContainer returns an empty container for cfg. Nothing is connected until first use.
func NewContainer(cfg *config.Config) *Container {
	return &Container{config: cfg}
}

// Config returns the application configuration.
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the JSON logger at the configured level.
func (c *Container) Logger() *slog.Logger {
	logger, _ := c.logger.get(func() (*slog.Logger, error) {
		return c.initLogger(), nil
	})
	return logger
}

// DB returns the pooled connection for the configured driver.
func (c *Container) DB() (*sql.DB, error) {
	return c.db.get(c.initDB)
}

// TxManager returns the transaction manager over DB.
func (c *Container) TxManager() (database.TxManager, error) {
	return c.txManager.get(c.initTxManager)
}

// MetricsProvider returns the OpenTelemetry provider, or nil when metrics are disabled.
func (c *Container) MetricsProvider() (*metrics.Provider, error) {
	return c.metricsProvider.get(c.initMetricsProvider)
}

// BusinessMetrics returns the business metrics recorder. It is a no-op when metrics are disabled.
func (c *Container) BusinessMetrics() (metrics.BusinessMetrics, error) {
	return c.businessMetrics.get(c.initBusinessMetrics)
}

// Alerter returns the operator alert sink.
func (c *Container) Alerter() (alert.Alerter, error) {
	return c.alerter.get(c.initAlerter)
}

// GatewayClient returns the payment gateway adapter.
func (c *Container) GatewayClient() gateway.Adapter {
	client, _ := c.gatewayClient.get(func() (gateway.Adapter, error) {
		return c.initGatewayClient(), nil
	})
	return client
}

// HTTPServer returns the API server with every route mounted.
func (c *Container) HTTPServer() (*http.Server, error) {
	return c.httpServer.get(c.initHTTPServer)
}

// MetricsServer returns the metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	return c.metricsServer.get(c.initMetricsServer)
}

// Shutdown stops listeners first, then flushes metrics and closes Redis and the database.
// Components that were never built are skipped.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	collect := func(what string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	if server, ok := c.httpServer.peek(); ok && server != nil {
		collect("http server shutdown", server.Shutdown(ctx))
	}
	if server, ok := c.metricsServer.peek(); ok && server != nil {
		collect("metrics server shutdown", server.Shutdown(ctx))
	}
	if provider, ok := c.metricsProvider.peek(); ok && provider != nil {
		collect("metrics provider shutdown", provider.Shutdown(ctx))
	}

	c.mu.Lock()
	if c.redisClient != nil {
		collect("redis close", c.redisClient.Close())
		c.redisClient = nil
	}
	c.mu.Unlock()

	if db, ok := c.db.peek(); ok && db != nil {
		collect("database close", db.Close())
	}

	return errors.Join(errs...)
}

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// initLogger falls back to info for an unknown LOG_LEVEL.
func (c *Container) initLogger() *slog.Logger {
	level, ok := logLevels[c.config.LogLevel]
	if !ok {
		level = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
}

// initDB creates and configures the database connection.
func (c *Container) initDB() (*sql.DB, error) {
	db, err := database.Connect(context.Background(), database.Config{
		Driver:             c.config.DBDriver,
		ConnectionString:   c.config.DBConnectionString,
		MaxOpenConnections: c.config.DBMaxOpenConnections,
		MaxIdleConnections: c.config.DBMaxIdleConnections,
		ConnMaxLifetime:    c.config.DBConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// initTxManager creates the transaction manager using the database connection.
func (c *Container) initTxManager() (database.TxManager, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for tx manager: %w", err)
	}
	return database.NewTxManager(db), nil
}

// initMetricsProvider creates the Prometheus-backed provider when metrics are enabled.
func (c *Container) initMetricsProvider() (*metrics.Provider, error) {
	if !c.config.MetricsEnabled {
		return nil, nil
	}

	provider, err := metrics.NewProvider(c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}
	return provider, nil
}

// initBusinessMetrics creates the business metrics recorder.
func (c *Container) initBusinessMetrics() (metrics.BusinessMetrics, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for business metrics: %w", err)
	}
	if provider == nil {
		return metrics.NewNoOpBusinessMetrics(), nil
	}

	businessMetrics, err := metrics.NewBusinessMetrics(provider.MeterProvider(), c.config.MetricsNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to create business metrics: %w", err)
	}
	return businessMetrics, nil
}

// initAlerter creates the log-backed alerter.
func (c *Container) initAlerter() (alert.Alerter, error) {
	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for alerter: %w", err)
	}
	return alert.NewLogAlerter(c.Logger(), businessMetrics), nil
}

// initGatewayClient creates the REST gateway client.
func (c *Container) initGatewayClient() gateway.Adapter {
	return gateway.NewClient(gateway.ClientConfig{
		BaseURL:            c.config.GatewayBaseURL,
		APIKey:             c.config.GatewayAPIKey,
		Timeout:            c.config.GatewayTimeout,
		RateLimitPerSecond: c.config.GatewayRateLimitPerSec,
		RateLimitBurst:     c.config.GatewayRateLimitBurst,
	}, nil, c.Logger())
}

// initHTTPServer creates the API server and wires every route.
func (c *Container) initHTTPServer() (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}

	releaseHandler, err := c.ReleaseHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get release handler for http server: %w", err)
	}

	webhookHandler, err := c.WebhookHandler()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook handler for http server: %w", err)
	}

	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for http server: %w", err)
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, c.Logger())
	server.SetupRouter(http.RouterConfig{
		RateLimitEnabled:        c.config.RateLimitEnabled,
		RateLimitRequestsPerSec: c.config.RateLimitRequestsPerSec,
		RateLimitBurst:          c.config.RateLimitBurst,
		CORSEnabled:             c.config.CORSEnabled,
		CORSAllowOrigins:        c.config.CORSAllowOrigins,
		MetricsProvider:         provider,
		MetricsNamespace:        c.config.MetricsNamespace,
	}, releaseHandler, webhookHandler)

	return server, nil
}

// initMetricsServer creates the /metrics server when metrics are enabled.
func (c *Container) initMetricsServer() (*http.MetricsServer, error) {
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, fmt.Errorf("failed to get metrics provider for metrics server: %w", err)
	}
	if provider == nil {
		return nil, nil
	}
	return http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider), nil
}
