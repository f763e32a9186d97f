// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stockroom/stockroom/internal/auth"
	authpg "github.com/stockroom/stockroom/internal/auth/postgres"
	"github.com/stockroom/stockroom/internal/config"
	"github.com/stockroom/stockroom/internal/store"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedFile is the YAML shape of the bootstrap file.
type seedFile struct {
	Admin seedAccount `yaml:"admin"`
}

type seedAccount struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	FullName string `yaml:"full_name"`
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	var (
		seedPath string
		timeout  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create the bootstrap admin account",
		Long: `Creates the bootstrap administrator account described by a YAML
seed file. This command is idempotent - an existing account with the
same email is left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd, seedPath, timeout)
		},
	}

	cmd.Flags().StringVar(&seedPath, "seed-file", "", "path to the YAML seed file (required)")
	cmd.Flags().DurationVar(&timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().String("database.url", "", "PostgreSQL connection URL")
	_ = cmd.MarkFlagRequired("seed-file")

	return cmd
}

func runSeed(cmd *cobra.Command, seedPath string, timeout time.Duration) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errMissingDatabaseURL()
	}

	seed, err := loadSeedFile(seedPath)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cmd.Println("Running migrations...")
	migrator, err := store.NewMigrator(cfg.Database.URL)
	if err != nil {
		return err
	}
	if err := migrator.Up(); err != nil {
		migrator.Close()
		return err
	}
	if err := migrator.Close(); err != nil {
		return err
	}

	cmd.Println("Connecting to database...")
	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	directory := authpg.NewDirectory(pool, auth.NewArgon2idHasher())

	account, err := directory.Create(ctx, seed.Admin.Email, seed.Admin.Password, seed.Admin.FullName)
	if err != nil {
		if errors.Is(err, auth.ErrAlreadyExists) {
			cmd.Println("Admin account already exists, skipping seed")
			return nil
		}
		return oops.Code("SEED_FAILED").
			With("operation", "create admin account").
			Wrap(err)
	}

	if err := directory.AddRole(ctx, account.ID, auth.RoleAdmin); err != nil {
		return oops.Code("SEED_FAILED").
			With("operation", "assign admin role").
			Wrap(err)
	}

	account.EmailConfirmed = true
	if err := directory.Save(ctx, account); err != nil {
		return oops.Code("SEED_FAILED").
			With("operation", "confirm admin account").
			Wrap(err)
	}

	cmd.Printf("Admin account created: %s\n", account.Email)
	return nil
}

func loadSeedFile(path string) (*seedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, oops.Code("SEED_FAILED").
			With("path", path).
			Wrap(err)
	}

	seed := &seedFile{}
	if err := yaml.Unmarshal(data, seed); err != nil {
		return nil, oops.Code("SEED_FAILED").
			With("operation", "parse seed file").
			Wrap(err)
	}

	if seed.Admin.Email == "" || seed.Admin.Password == "" {
		return nil, oops.Code("SEED_FAILED").Errorf("seed file must set admin.email and admin.password")
	}
	if err := auth.ValidatePasswordStrength(seed.Admin.Password); err != nil {
		return nil, err
	}
	return seed, nil
}
