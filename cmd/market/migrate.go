package main

import (
	"campus-market/internal/database"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

func migrateCommand() *cli.Command {
	run := func(dir database.Direction) cli.ActionFunc {
		return func(c *cli.Context) error {
			cfg, log, err := loadConfig(c)
			if err != nil {
				return err
			}
			db, err := database.New(c.Context, cfg.DB, log)
			if err != nil {
				return errors.Wrap(err, "connect store")
			}
			defer db.Close()
			return database.Migrate(db.DB(), dir, log)
		}
	}
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply or roll back the Postgres schema",
		Subcommands: []*cli.Command{
			{Name: "up", Usage: "apply all pending migrations", Action: run(database.Up)},
			{Name: "down", Usage: "roll back every migration", Action: run(database.Down)},
		},
	}
}
