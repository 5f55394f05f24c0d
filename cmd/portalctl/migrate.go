package main

import (
	"fmt"
	"path"

	"newstech/pkg/database"
	"newstech/pkg/logger"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the offline store migrations",
	Args:  cobra.NoArgs,
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().Bool("status", false, "print the schema version without migrating")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	driver := cfg.Database.Driver

	db, err := database.Open(ctx, driver, cfg.Database.DSN, log.Named("db"))
	if err != nil {
		return err
	}
	defer db.Close()

	if status, _ := cmd.Flags().GetBool("status"); !status {
		if err := database.Migrate(ctx, db, driver, log.Named("db")); err != nil {
			return err
		}
	}

	version, err := database.Version(ctx, db, driver)
	if err != nil {
		return err
	}
	files, err := database.Files(driver)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "%s schema version %d\n", driver, version)
	for _, f := range files {
		fmt.Fprintf(w, "  %s\n", path.Base(f))
	}
	return nil
}
