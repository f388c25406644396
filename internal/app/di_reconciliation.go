package app

import (
	"fmt"

	"github.com/allisson/payouts/internal/database"
	reconciliationRepository "github.com/allisson/payouts/internal/reconciliation/repository"
	reconciliationUseCase "github.com/allisson/payouts/internal/reconciliation/usecase"
)

// ReconciliationRepository returns the read-only reconciliation repository instance.
func (c *Container) ReconciliationRepository() (reconciliationUseCase.ReconciliationRepository, error) {
	return c.reconciliationRepo.get(c.initReconciliationRepository)
}

// ReconciliationUseCase returns the reconciliation use case instance.
func (c *Container) ReconciliationUseCase() (reconciliationUseCase.UseCase, error) {
	return c.reconciliationUseCase.get(c.initReconciliationUseCase)
}

// initReconciliationRepository creates the reconciliation repository for the configured driver.
func (c *Container) initReconciliationRepository() (reconciliationUseCase.ReconciliationRepository, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for reconciliation repository: %w", err)
	}

	switch c.config.DBDriver {
	case database.DriverMySQL:
		return reconciliationRepository.NewMySQLReconciliationRepository(db), nil
	case database.DriverPostgres:
		return reconciliationRepository.NewPostgreSQLReconciliationRepository(db), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.config.DBDriver)
	}
}

// initReconciliationUseCase creates the reconciliation use case.
func (c *Container) initReconciliationUseCase() (reconciliationUseCase.UseCase, error) {
	repo, err := c.ReconciliationRepository()
	if err != nil {
		return nil, fmt.Errorf("failed to get reconciliation repository for reconciliation use case: %w", err)
	}

	alerter, err := c.Alerter()
	if err != nil {
		return nil, fmt.Errorf("failed to get alerter for reconciliation use case: %w", err)
	}

	businessMetrics, err := c.BusinessMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to get business metrics for reconciliation use case: %w", err)
	}

	return reconciliationUseCase.NewReconciliationUseCase(
		reconciliationUseCase.Config{
			Interval:   c.config.ReconciliationInterval,
			StuckAfter: c.config.ReconciliationStuckAfter,
		},
		repo,
		alerter,
		businessMetrics,
		c.Logger(),
	), nil
}
