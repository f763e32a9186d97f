// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/stockroom/stockroom/internal/config"
	"github.com/stockroom/stockroom/internal/store"
)

func errMissingDatabaseURL() error {
	return oops.Code("CONFIG_INVALID").Errorf("database.url (or DATABASE_URL) is required")
}

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Apply all pending schema migrations to the PostgreSQL database.`,
		RunE:  runMigrate,
	}

	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	cmd.Flags().Bool("down", false, "roll back all migrations instead of applying them")
	cmd.Flags().Bool("status", false, "print the current migration version and exit")

	return cmd
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errMissingDatabaseURL()
	}

	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	defer migrator.Close()

	if status, _ := cmd.Flags().GetBool("status"); status {
		version, dirty, err := migrator.Version()
		if err != nil {
			return err
		}
		cmd.Printf("version: %d, dirty: %v\n", version, dirty)
		return nil
	}

	if down, _ := cmd.Flags().GetBool("down"); down {
		cmd.Println("Rolling back migrations...")
		if err := migrator.Down(); err != nil {
			return err
		}
		cmd.Println("Rollback completed")
		return nil
	}

	cmd.Println("Running migrations...")
	if err := migrator.Up(); err != nil {
		return err
	}
	cmd.Println("Migrations completed successfully")
	return nil
}
