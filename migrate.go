package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/onnwee/livewatch/db"
)

func newMigrateCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|status]",
		Short: "Manage the journal database schema (DB_DSN)",
		Long: `migrate applies pending journal migrations (up, the default), rolls back
the most recent one (down) or prints the current version (status).
The watcher migrates on startup, so this is only needed for manual upgrades
and rollbacks.`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"up", "down", "status"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := f.apply(cmd, nil)
			if err != nil {
				return err
			}
			if cfg.DBDsn == "" {
				return errors.New("DB_DSN is required")
			}
			closeLog, err := setupLogging(cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer closeLog()

			direction := "up"
			if len(args) > 0 {
				direction = args[0]
			}

			ctx := cmd.Context()
			database, err := db.Connect(ctx, cfg.DBDsn)
			if err != nil {
				return err
			}
			defer func() {
				if err := database.Close(); err != nil {
					slog.Error("failed to close database", slog.Any("err", err))
				}
			}()

			switch direction {
			case "up":
				err = db.Migrate(ctx, database)
			case "down":
				err = db.MigrateDown(database)
			case "status":
			default:
				err = errors.New("unknown direction " + direction)
			}
			if err != nil {
				return err
			}
			version, dirty, err := db.GetMigrationVersion(database)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return nil
		},
	}
}
