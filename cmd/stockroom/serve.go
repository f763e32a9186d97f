// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/stockroom/stockroom/internal/auth"
	authpg "github.com/stockroom/stockroom/internal/auth/postgres"
	"github.com/stockroom/stockroom/internal/config"
	"github.com/stockroom/stockroom/internal/httpapi"
	"github.com/stockroom/stockroom/internal/logging"
	"github.com/stockroom/stockroom/internal/notify"
	"github.com/stockroom/stockroom/internal/observability"
	"github.com/stockroom/stockroom/internal/store"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the credential service",
		Long: `Start the HTTP API and observability servers. Pending schema
migrations run first unless --auto-migrate=false.`,
		RunE: runServe,
	}

	f := cmd.Flags()
	f.String("server.addr", "", "API listen address")
	f.String("server.metrics_addr", "", "observability listen address")
	f.String("server.frontend_url", "", "frontend base URL used in reset links")
	f.String("database.url", "", "PostgreSQL connection URL")
	f.String("log.format", "", "log format (json or text)")
	f.Bool("auto-migrate", true, "run pending migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configFile, cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logging.SetDefault("stockroom", version, cfg.Log.Format)
	logger := slog.Default()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if autoMigrate, _ := cmd.Flags().GetBool("auto-migrate"); autoMigrate {
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
		logger.Info("migrations applied")
	}

	pool, err := store.Connect(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	hasher := auth.NewArgon2idHasher()
	directory := authpg.NewDirectory(pool, hasher)

	issuer, err := auth.NewTokenIssuer(auth.SessionConfig{
		Secret:        cfg.Session.Secret,
		ExpiryDays:    cfg.Session.ExpiryDays,
		ExpiryMinutes: cfg.Session.ExpiryMinutes,
		SecureCookie:  cfg.Session.SecureCookie,
	})
	if err != nil {
		return err
	}

	resets, err := auth.NewResetTokenManager(directory)
	if err != nil {
		return err
	}

	var sink auth.NotificationSink
	if cfg.SMTP.Host != "" {
		sink, err = notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return err
		}
	} else {
		logger.Warn("no SMTP relay configured, reset mail will only be logged")
		sink = notify.NewLogSink(logger)
	}

	svc, err := auth.NewServiceWithLogger(directory, issuer, resets, sink, cfg.Server.FrontendURL, logger)
	if err != nil {
		return err
	}

	obsSrv := observability.NewServer(cfg.Server.MetricsAddr, func() bool {
		pingCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		return pool.Ping(pingCtx) == nil
	})
	obsErrs, err := obsSrv.Start()
	if err != nil {
		return err
	}

	apiSrv, err := httpapi.New(cfg.Server.Addr, svc, issuer, obsSrv.Metrics(), logger)
	if err != nil {
		return err
	}
	apiErrs, err := apiSrv.Start()
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-apiErrs:
		if err != nil {
			return oops.Code("API_SERVER_FAILED").Wrap(err)
		}
	case err = <-obsErrs:
		if err != nil {
			return oops.Code("OBSERVABILITY_SERVER_FAILED").Wrap(err)
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := apiSrv.Stop(stopCtx); err != nil {
		logger.Error("api server shutdown failed", "error", err)
	}
	if err := obsSrv.Stop(stopCtx); err != nil {
		logger.Error("observability server shutdown failed", "error", err)
	}

	logger.Info("shutdown complete")
	return nil
}
