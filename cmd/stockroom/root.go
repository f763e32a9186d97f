// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package main

import (
	"github.com/spf13/cobra"
)

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the stockroom CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stockroom",
		Short: "Stockroom - credential and account service",
		Long: `Stockroom is the credential core of the inventory backend:
account registration, cookie-based sessions, and single-use
password reset tokens over PostgreSQL.`,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")

	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewSeedCmd())

	return cmd
}
