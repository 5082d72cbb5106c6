package cmd

import (
	"context"
	"fmt"

	sessionSQLite "github.com/frahmantamala/vip-checkout/internal/session/sqlite"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate [up|down|redo|reset]",
		Short: "run the embedded session store migrations",
		Args:  cobra.MaximumNArgs(1),
	}
	migrateRollback bool
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
}

func runMigration(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig(configDir)
	if err != nil {
		return err
	}
	initLogger(cfg)

	command := "up"
	if migrateRollback {
		command = "down"
	}
	if len(args) == 1 {
		command = args[0]
	}

	db, err := sessionSQLite.Connect(cfg.Store.Path)
	if err != nil {
		return err
	}
	defer func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}()

	if err := sessionSQLite.Migrate(ctx, db, command); err != nil {
		return err
	}
	fmt.Printf("migrate %s: done (%s)\n", command, cfg.Store.Path)
	return nil
}
