// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/samber/oops"
)

// Service is the public-facing operation set over the directory, the token
// issuer, the reset token manager and the notification sink.
type Service struct {
	directory   Directory
	issuer      *TokenIssuer
	resets      *ResetTokenManager
	sink        NotificationSink
	frontendURL string
	logger      *slog.Logger
}

// NewService creates a Service.
func NewService(directory Directory, issuer *TokenIssuer, resets *ResetTokenManager, sink NotificationSink, frontendURL string) (*Service, error) {
	return NewServiceWithLogger(directory, issuer, resets, sink, frontendURL, slog.Default())
}

// NewServiceWithLogger creates a Service with an explicit logger.
func NewServiceWithLogger(directory Directory, issuer *TokenIssuer, resets *ResetTokenManager, sink NotificationSink, frontendURL string, logger *slog.Logger) (*Service, error) {
	if directory == nil {
		return nil, oops.Errorf("directory is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if resets == nil {
		return nil, oops.Errorf("reset token manager is required")
	}
	if sink == nil {
		return nil, oops.Errorf("notification sink is required")
	}
	if logger == nil {
		return nil, oops.Errorf("logger is required")
	}
	return &Service{
		directory:   directory,
		issuer:      issuer,
		resets:      resets,
		sink:        sink,
		frontendURL: frontendURL,
		logger:      logger,
	}, nil
}

// Register creates an account with the given role, defaulting to the
// lowest-privilege role when roleName is empty. Registration is
// self-confirming: the account is created unconfirmed, then immediately
// marked confirmed; there is no email-verification step.
func (s *Service) Register(ctx context.Context, email, password, fullName, roleName string) error {
	existing, err := s.directory.FindByEmail(ctx, email)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	if existing != nil {
		if existing.EmailConfirmed {
			return oops.Code("AUTH_ALREADY_EXISTS").Errorf("account already exists, please login")
		}
		return oops.Code("AUTH_UNVERIFIED_EXISTS").Errorf("account exists but is not verified, please login to verify")
	}

	role := DefaultRole
	if strings.TrimSpace(roleName) != "" {
		role, err = ParseRole(roleName)
		if err != nil {
			return err
		}
	}

	account, err := s.directory.Create(ctx, email, password, fullName)
	if err != nil {
		// Losing a race with a concurrent registration surfaces here as the
		// directory's AUTH_ALREADY_EXISTS.
		return err
	}

	if err := s.directory.AddRole(ctx, account.ID, role); err != nil {
		return err
	}

	account.EmailConfirmed = true
	if err := s.directory.Save(ctx, account); err != nil {
		return err
	}

	s.logger.Info("account registered", "email", email, "role", role.String())
	return nil
}

// Login verifies the credential and mints a session token. Absent account
// and wrong password collapse into the same error so callers cannot probe
// for account existence.
func (s *Service) Login(ctx context.Context, email, password string) (*Profile, string, time.Time, error) {
	account, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, "", time.Time{}, invalidCredentials()
		}
		return nil, "", time.Time{}, err
	}

	ok, err := s.directory.VerifyPassword(ctx, account, password)
	if err != nil {
		return nil, "", time.Time{}, err
	}
	if !ok {
		return nil, "", time.Time{}, invalidCredentials()
	}

	token, expiresAt, err := s.issuer.Issue(account)
	if err != nil {
		return nil, "", time.Time{}, err
	}

	profile := &Profile{
		Email:          account.Email,
		FullName:       account.FullName,
		Role:           s.resolveRole(ctx, account),
		EmailConfirmed: account.EmailConfirmed,
	}

	s.logger.Info("login succeeded", "email", account.Email)
	return profile, token, expiresAt, nil
}

// Logout is stateless: it returns the cookie that clears the client-held
// session. No server-side state changes.
func (s *Service) Logout() *http.Cookie {
	return s.issuer.RevokeCookie()
}

// GetProfile resolves the public profile for a verified session subject.
func (s *Service) GetProfile(ctx context.Context, email string) (*Profile, error) {
	account, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_NOT_FOUND").Errorf("no account found")
		}
		return nil, err
	}
	return &Profile{
		Email:          account.Email,
		FullName:       account.FullName,
		Role:           s.resolveRole(ctx, account),
		EmailConfirmed: account.EmailConfirmed,
	}, nil
}

// RequestPasswordReset mints a reset token and mails the reset link. A live
// token blocks re-issuance; delivery failure is reported but does not roll
// back the already-persisted token.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	account, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_NOT_FOUND").Errorf("no account found with this email")
		}
		return err
	}

	token, _, err := s.resets.Generate(ctx, account)
	if err != nil {
		return err
	}

	link := ResetLink(s.frontendURL, account.Email, token)
	subject, body := ResetMessage(account.FullName, link)
	if err := s.sink.Send(ctx, account.Email, subject, body); err != nil {
		// The token stays valid; only delivery failed.
		s.logger.Error("reset mail delivery failed", "email", account.Email, "error", err)
		return oops.Code("NOTIFY_DELIVERY_FAILED").
			With("operation", "send reset mail").
			Wrap(err)
	}

	s.logger.Info("reset link sent", "email", account.Email)
	return nil
}

// PerformPasswordReset validates and consumes a reset token, then replaces
// the credential. The token is consumed before the credential write so two
// concurrent submissions cannot both succeed; password strength is checked
// first so a weak password never burns the single-use token. No session is
// issued: the caller must log in again.
func (s *Service) PerformPasswordReset(ctx context.Context, email, token, newPassword string) error {
	account, err := s.directory.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("AUTH_NOT_FOUND").Errorf("invalid email or token")
		}
		return err
	}

	if err := s.resets.Validate(account, token); err != nil {
		return err
	}
	if err := ValidatePasswordStrength(newPassword); err != nil {
		return err
	}
	if err := s.resets.Consume(ctx, account); err != nil {
		return err
	}

	if err := s.directory.UpdatePassword(ctx, account.ID, newPassword); err != nil {
		return err
	}

	s.logger.Info("password reset completed", "email", account.Email)
	return nil
}

func (s *Service) resolveRole(ctx context.Context, account *Account) Role {
	roles, err := s.directory.ListRoles(ctx, account.ID)
	if err != nil || len(roles) == 0 {
		return DefaultRole
	}
	return roles[0]
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
}
