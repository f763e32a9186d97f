// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

// Package notify delivers account mail. SMTPMailer sends over SMTP;
// LogSink records deliveries to the log for local development.
package notify

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
	"github.com/wneessen/go-mail"

	"github.com/stockroom/stockroom/internal/auth"
)

// SMTPMailer delivers mail through an SMTP relay. It implements
// auth.NotificationSink.
type SMTPMailer struct {
	client *mail.Client
	from   string
}

// SMTPConfig carries the relay settings for NewSMTPMailer.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// NewSMTPMailer creates a mailer for the given relay. Credentials are
// optional; when empty the connection is unauthenticated.
func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("smtp host cannot be empty")
	}
	if cfg.From == "" {
		return nil, oops.Code("CONFIG_INVALID").Errorf("smtp from address cannot be empty")
	}

	opts := []mail.Option{mail.WithPort(cfg.Port)}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}

	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, oops.Code("CONFIG_INVALID").
			With("host", cfg.Host).
			Wrap(err)
	}

	return &SMTPMailer{client: client, from: cfg.From}, nil
}

// Send delivers one HTML message to a single recipient.
func (m *SMTPMailer) Send(ctx context.Context, toAddress, subject, htmlBody string) error {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return oops.Code("NOTIFY_DELIVERY_FAILED").
			With("from", m.from).
			Wrap(err)
	}
	if err := msg.To(toAddress); err != nil {
		return oops.Code("NOTIFY_DELIVERY_FAILED").
			With("to", toAddress).
			Wrap(err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextHTML, htmlBody)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return oops.Code("NOTIFY_DELIVERY_FAILED").
			With("to", toAddress).
			With("subject", subject).
			Wrap(err)
	}
	return nil
}

// LogSink logs deliveries instead of sending them. Useful when no SMTP
// relay is configured.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a sink writing to logger, or slog.Default when nil.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger}
}

// Send logs the message instead of delivering it. The body is omitted from
// the log record; it can contain reset links.
func (s *LogSink) Send(ctx context.Context, toAddress, subject, htmlBody string) error {
	s.logger.InfoContext(ctx, "mail delivery skipped, no relay configured",
		"to", toAddress,
		"subject", subject,
		"body_bytes", len(htmlBody),
	)
	return nil
}

var (
	_ auth.NotificationSink = (*SMTPMailer)(nil)
	_ auth.NotificationSink = (*LogSink)(nil)
)
