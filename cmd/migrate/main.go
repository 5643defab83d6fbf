package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/crmbridge/bridge-server/internal/database"
)

var databaseFlag = &cli.StringFlag{
	Name:     "database-url",
	Usage:    "PostgreSQL connection string",
	Sources:  cli.EnvVars("DATABASE_URL"),
	Required: true,
}

func main() {
	_ = godotenv.Load()
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cmd := &cli.Command{
		Name:  "migrate",
		Usage: "Manage the bridge database schema",
		Flags: []cli.Flag{databaseFlag},
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: withMigrator(func(_ context.Context, _ *cli.Command, m *database.Migrator) error {
					return m.Up()
				}),
			},
			{
				Name:  "down",
				Usage: "Roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "steps",
						Usage: "Number of migrations to roll back",
						Value: 1,
					},
				},
				Action: withMigrator(func(_ context.Context, c *cli.Command, m *database.Migrator) error {
					return m.Down(int(c.Int("steps")))
				}),
			},
			{
				Name:  "version",
				Usage: "Print the current schema version",
				Action: withMigrator(func(_ context.Context, _ *cli.Command, m *database.Migrator) error {
					version, dirty, err := m.Version()
					if err != nil {
						return err
					}
					fmt.Printf("version=%d dirty=%t\n", version, dirty)
					return nil
				}),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("migrate failed")
	}
}

func withMigrator(fn func(context.Context, *cli.Command, *database.Migrator) error) cli.ActionFunc {
	return func(ctx context.Context, c *cli.Command) error {
		db, err := database.Connect(c.String(databaseFlag.Name))
		if err != nil {
			return err
		}
		defer db.Close()

		m, err := database.NewMigrator(db)
		if err != nil {
			return err
		}
		return fn(ctx, c, m)
	}
}
