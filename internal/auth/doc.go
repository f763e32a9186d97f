// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

// Package auth implements credential issuance and the password-reset
// lifecycle for the stockroom backend.
//
// # Domain Types
//
// Account is the identity record. Its embedded ResetToken carries the
// per-account reset state (at most one live token per account). Both are
// persisted through the Directory port; the core never stores password
// material itself.
//
// # Services
//
//   - Service      - register, login, logout, reset request/perform
//   - TokenIssuer  - signed bearer session tokens and their cookie transport
//   - ResetTokenManager - generate, validate and consume reset tokens
//
// Directory implementations live in the postgres and memory subpackages.
package auth
