package main

import (
	"context"

	"github.com/urfave/cli/v3"

	"github.com/allisson/payouts/cmd/app/commands"
	"github.com/allisson/payouts/internal/app"
	"github.com/allisson/payouts/internal/config"
)

func getSystemCommands(version string) []*cli.Command {
	return []*cli.Command{
		{
			Name:  "server",
			Usage: "Start the HTTP server, the outbox worker and the reconciler",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunServer(ctx, version)
			},
		},
		{
			Name:  "worker",
			Usage: "Start only the outbox worker",
			Action: func(ctx context.Context, cmd *cli.Command) error {
				return commands.RunWorker(ctx, version)
			},
		},
		{
			Name:  "migrate",
			Usage: "Apply pending ledger schema migrations",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "path",
					Value: "migrations",
					Usage: "Directory holding the postgresql/ and mysql/ migration sets",
				},
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg := config.Load()
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				return commands.RunMigrations(
					container.Logger(),
					cfg.DBDriver,
					cfg.DBConnectionString,
					cmd.String("path"),
				)
			},
		},
	}
}
