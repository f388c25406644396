package app

import (
	"fmt"

	bountyRepository "github.com/allisson/payouts/internal/bounty/repository"
	"github.com/allisson/payouts/internal/database"
	ledgerDomain "github.com/allisson/payouts/internal/ledger/domain"
	ledgerRepository "github.com/allisson/payouts/internal/ledger/repository"
	outboxDomain "github.com/allisson/payouts/internal/outbox/domain"
	outboxRepository "github.com/allisson/payouts/internal/outbox/repository"
	outboxUseCase "github.com/allisson/payouts/internal/outbox/usecase"
	releaseHTTP "github.com/allisson/payouts/internal/release/http"
	releaseUseCase "github.com/allisson/payouts/internal/release/usecase"
)

// WalletTransactionRepository returns the ledger repository instance.
func (c *Container) WalletTransactionRepository() (releaseUseCase.WalletTransactionRepository, error) {
	return c.walletRepo.get(c.initWalletTransactionRepository)
}

// BountyRepository returns the bounty repository instance.
func (c *Container) BountyRepository() (releaseUseCase.BountyRepository, error) {
	return c.bountyRepo.get(c.initBountyRepository)
}

// OutboxRepository returns the outbox event repository instance.
func (c *Container) OutboxRepository() (outboxUseCase.OutboxEventRepository, error) {
	repo, err := c.outboxStore()
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func (c *Container) outboxStore() (outboxStore, error) {
	return c.outboxRepo.get(c.initOutboxRepository)
}

// Finalizer returns the release settlement service shared by every completion path.
func (c *Container) Finalizer() (*releaseUseCase.Finalizer, error) {
	return c.finalizer.get(c.initFinalizer)
}

// ReleaseUseCase returns the completion release use case instance.
func (c *Container) ReleaseUseCase() (releaseUseCase.ReleaseUseCase, error) {
	return c.releaseUseCase.get(c.initReleaseUseCase)
}

// OutboxUseCase returns the outbox worker instance.
func (c *Container) OutboxUseCase() (outboxUseCase.UseCase, error) {
	return c.outboxUseCase.get(c.initOutboxUseCase)
}

// ReleaseHandler returns the completion release HTTP handler instance.
func (c *Container) ReleaseHandler() (*releaseHTTP.ReleaseHandler, error) {
	return c.releaseHandler.get(c.initReleaseHandler)
}

// initWalletTransactionRepository creates the ledger repository for the configured driver.
func (c *Container) initWalletTransactionRepository() (releaseUseCase.WalletTransactionRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for wallet transaction repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverMySQL:
		return ledgerRepository.NewMySQLWalletTransactionRepository(db), nil
	case database.DriverPostgres:
		return ledgerRepository.NewPostgreSQLWalletTransactionRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initBountyRepository creates the bounty repository for the configured driver.
func (c *Container) initBountyRepository() (releaseUseCase.BountyRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for bounty repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverMySQL:
		return bountyRepository.NewMySQLBountyRepository(db), nil
	case database.DriverPostgres:
		return bountyRepository.NewPostgreSQLBountyRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initOutboxRepository creates the outbox event repository for the configured driver.
func (c *Container) initOutboxRepository() (outboxStore, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for outbox repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverMySQL:
		return outboxRepository.NewMySQLOutboxEventRepository(db), nil
	case database.DriverPostgres:
		return outboxRepository.NewPostgreSQLOutboxEventRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initFinalizer creates the release finalizer.
func (c *Container) initFinalizer() (*releaseUseCase.Finalizer, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for finalizer: %w", err)
	}

	walletRepo, err := c.WalletTransactionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet transaction repository for finalizer: %w", err)
	}

	bountyRepo, err := c.BountyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get bounty repository for finalizer: %w", err)
	}

	return releaseUseCase.NewFinalizer(txManager, walletRepo, bountyRepo, c.Logger()), nil
}

// backoffPolicy returns the outbox retry schedule from configuration.
func (c *Container) backoffPolicy() outboxDomain.BackoffPolicy {
	return outboxDomain.BackoffPolicy{
		Base: c.config.OutboxBackoffBase,
		Cap:  c.config.OutboxBackoffCap,
	}
}

// initReleaseUseCase creates the release use case with all its dependencies.
func (c *Container) initReleaseUseCase() (releaseUseCase.ReleaseUseCase, error) {
	feeRate, err := ledgerDomain.ParseFeePercent(c.config.ReleaseDefaultFeePercent)
	if err != nil {
		return nil, fmt.Errorf("invalid RELEASE_DEFAULT_FEE_PERCENT: %w", err)
	}

	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for release use case: %w", err)
	}

	walletRepo, err := c.WalletTransactionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet transaction repository for release use case: %w", err)
	}

	bountyRepo, err := c.BountyRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get bounty repository for release use case: %w", err)
	}

	outboxRepo, err := c.outboxStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for release use case: %w", err)
	}

	finalizer, err := c.Finalizer()
	if err != nil {
		return nil, fmt.Errorf("failed to get finalizer for release use case: %w", err)
	}

	alerter, err := c.Alerter()
	if err != nil {
		return nil, fmt.Errorf("failed to get alerter for release use case: %w", err)
	}

	baseUseCase := releaseUseCase.NewReleaseUseCase(
		releaseUseCase.Config{
			DefaultFeeRate:    feeRate,
			PlatformAccountID: c.config.ReleasePlatformAccountID,
			DefaultCurrency:   c.config.ReleaseCurrency,
			Backoff:           c.backoffPolicy(),
		},
		txManager,
		walletRepo,
		bountyRepo,
		outboxRepo,
		c.GatewayClient(),
		finalizer,
		alerter,
		c.Logger(),
	)

	// Wrap with metrics if enabled
	if c.config.MetricsEnabled {
		businessMetrics, err := c.BusinessMetrics()
		if err != nil {
			return nil, fmt.Errorf("failed to get business metrics for release use case: %w", err)
		}
		return releaseUseCase.NewReleaseUseCaseWithMetrics(baseUseCase, businessMetrics), nil
	}

	return baseUseCase, nil
}

// initOutboxUseCase creates the outbox worker with the release transfer processor registered.
func (c *Container) initOutboxUseCase() (outboxUseCase.UseCase, error) {
	txManager, err := c.TxManager()
	if err != nil {
		return nil, fmt.Errorf("failed to get tx manager for outbox use case: %w", err)
	}

	outboxRepo, err := c.outboxStore()
	if err != nil {
		return nil, fmt.Errorf("failed to get outbox repository for outbox use case: %w", err)
	}

	walletRepo, err := c.WalletTransactionRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get wallet transaction repository for outbox use case: %w", err)
	}

	finalizer, err := c.Finalizer()
	if err != nil {
		return nil, fmt.Errorf("failed to get finalizer for outbox use case: %w", err)
	}

	alerter, err := c.Alerter()
	if err != nil {
		return nil, fmt.Errorf("failed to get alerter for outbox use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for outbox use case: %w", err)
	}

	processors := map[string]outboxUseCase.EventProcessor{
		outboxDomain.EventTypeReleaseTransfer: releaseUseCase.NewTransferProcessor(
			walletRepo,
			c.GatewayClient(),
			finalizer,
			c.Logger(),
		),
	}

	return outboxUseCase.NewOutboxUseCase(
		outboxUseCase.Config{
			Interval:    c.config.OutboxInterval,
			BatchSize:   c.config.OutboxBatchSize,
			MaxAttempts: c.config.OutboxMaxAttempts,
			Backoff:     c.backoffPolicy(),
			StaleAfter:  c.config.OutboxStaleAfter,
		},
		txManager,
		outboxRepo,
		processors,
		alerter,
		businessMetrics,
		c.Logger(),
	), nil
}

// initReleaseHandler creates the release HTTP handler.
func (c *Container) initReleaseHandler() (*releaseHTTP.ReleaseHandler, error) {
	useCase, err := c.ReleaseUseCase()
	if err != nil {
		return nil, fmt.Errorf("failed to get release use case for release handler: %w", err)
	}
	return releaseHTTP.NewReleaseHandler(useCase, c.Logger()), nil
}
