package app

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	webhookDedupe "github.com/allisson/payouts/internal/webhook/dedupe"
	webhookDomain "github.com/allisson/payouts/internal/webhook/domain"
	webhookHTTP "github.com/allisson/payouts/internal/webhook/http"
	webhookSecret "github.com/allisson/payouts/internal/webhook/secret"
	webhookUseCase "github.com/allisson/payouts/internal/webhook/usecase"
)

// WebhookVerifier returns the webhook signature verifier.
// The secret is resolved once, decrypting it through KMS when a key URI is configured.
func (c *Container) WebhookVerifier() (*webhookDomain.Verifier, error) {
	return c.webhookVerifier.get(c.initWebhookVerifier)
}

// WebhookDeduplicator returns the delivery dedupe cache.
// Without WEBHOOK_DEDUPE_REDIS_URL every delivery goes straight to the ledger.
func (c *Container) WebhookDeduplicator() (webhookUseCase.Deduplicator, error) {
	return c.webhookDedupe.get(c.initWebhookDeduplicator)
}

// WebhookUseCase returns the webhook ingestion use case instance.
func (c *Container) WebhookUseCase() (webhookUseCase.WebhookUseCase, error) {
	return c.webhookUseCase.get(c.initWebhookUseCase)
}

// WebhookHandler returns the webhook HTTP handler instance.
func (c *Container) WebhookHandler() (*webhookHTTP.WebhookHandler, error) {
	return c.webhookHandler.get(c.initWebhookHandler)
}

// initWebhookVerifier loads the signing secret and builds the verifier.
func (c *Container) initWebhookVerifier() (*webhookDomain.Verifier, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	secret, err := webhookSecret.Load(ctx, c.config.WebhookSecret, c.config.WebhookSecretKMSKeyURI)
	if err != nil {
		return nil, fmt.Errorf("failed to load webhook secret: %w", err)
	}

	return webhookDomain.NewVerifier(secret, c.config.WebhookTolerance, nil), nil
}

// initWebhookDeduplicator connects to Redis when a dedupe URL is configured.
func (c *Container) initWebhookDeduplicator() (webhookUseCase.Deduplicator, error) {
	if c.config.WebhookDedupeRedisURL == "" {
		return webhookDedupe.NoopDeduplicator{}, nil
	}

	opts, err := redis.ParseURL(c.config.WebhookDedupeRedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_DEDUPE_REDIS_URL: %w", err)
	}

	c.mu.Lock()
	c.redisClient = redis.NewClient(opts)
	client := c.redisClient
	c.mu.Unlock()

	return webhookDedupe.NewRedisDeduplicator(client, c.config.WebhookDedupeTTL), nil
}

// initWebhookUseCase creates the webhook use case with all its dependencies.
func (c *Container) initWebhookUseCase() (webhookUseCase.WebhookUseCase, error) {
	walletRepo, err := c.WalletTransactionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet transaction repository for webhook use case: %w", err)
	}

	outboxRepo, err := c.outboxStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for webhook use case: %w", err)
	}

	finalizer, err := c.Finalizer()
	if err != nil {
		return nil, fmt.Errorf("failed to get finalizer for webhook use case: %w", err)
	}

	dedupe, err := c.WebhookDeduplicator()
	if err != nil {
		return nil, fmt.Errorf("failed to get deduplicator for webhook use case: %w", err)
	}

	alerter, err := c.Alerter()
	if err != nil {
		return nil, fmt.Errorf("failed to get alerter for webhook use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for webhook use case: %w", err)
	}

	return webhookUseCase.NewWebhookUseCase(
		walletRepo,
		outboxRepo,
		finalizer,
		dedupe,
		alerter,
		businessMetrics,
		c.Logger(),
	), nil
}

// initWebhookHandler creates the webhook HTTP handler.
func (c *Container) initWebhookHandler() (*webhookHTTP.WebhookHandler, error) {
	verifier, err := c.WebhookVerifier()
	if err != nil {
		return nil, fmt.Errorf("failed to get verifier for webhook handler: %w", err)
	}

	useCase, err := c.WebhookUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook use case for webhook handler: %w", err)
	}

	return webhookHTTP.NewWebhookHandler(verifier, useCase, c.Logger()), nil
}
