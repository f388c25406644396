package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/allisson/payouts/cmd/app/commands"
	"github.com/allisson/payouts/internal/app"
	"github.com/allisson/payouts/internal/config"
)

func getSettlementCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "reconcile",
			Usage: "Run one escrow reconciliation pass and report drifts and stuck releases",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:    "format",
					Aliases: []string{"f"},
					Value:   "text",
					Usage:   "Output format: 'text' or 'json'",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				if err := cfg.Validate(); err != nil {
					return fmt.Errorf("invalid configuration: %w", err)
				}
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				reconciliationUseCase, err := container.ReconciliationUseCase()
				if err != nil {
					return err
				}

				return commands.RunReconcile(
					ctx,
					reconciliationUseCase,
					container.Logger(),
					cmd.Root().Writer,
					cmd.String("format"),
				)
			},
		},
	}
}
