// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package auth

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// NotificationSink delivers outbound notifications. The core only constructs
// message content; delivery (and its latency) belongs to the implementation.
type NotificationSink interface {
	Send(ctx context.Context, toAddress, subject, htmlBody string) error
}

// ResetLink builds the frontend reset link with the email and raw token
// URL-encoded as query parameters.
func ResetLink(frontendBaseURL, email, token string) string {
	return fmt.Sprintf("%s/reset-password?email=%s&token=%s",
		strings.TrimRight(frontendBaseURL, "/"),
		url.QueryEscape(email),
		url.QueryEscape(token),
	)
}

// ResetMessage builds the subject and HTML body of the reset mail.
func ResetMessage(fullName, resetLink string) (subject, htmlBody string) {
	subject = "Password Reset Request"
	htmlBody = fmt.Sprintf(`<p>Hello %s,</p>
<p>You requested to reset your password. Click the link below to reset it (valid for 20 minutes):</p>
<p><a href="%s">Reset Password</a></p>
<p>If you didn't request this, you can safely ignore this email.</p>`, fullName, resetLink)
	return subject, htmlBody
}
