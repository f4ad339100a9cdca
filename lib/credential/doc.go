// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credential loads the bot tokens nodewatch delivers alerts
// with.
//
// Tokens come from one of two places. A sealed bundle is an
// age-encrypted JSON object of name to value, produced by [Seal] (the
// nodewatch-ctl seal command) and opened with the daemon's identity
// file. Without a bundle, tokens are read from a dotenv file and then
// from the process environment.
//
// Values are held in [secret.Buffer]s from the moment they are read.
// Callers borrow them from the [Bundle] and must not close them; the
// Bundle's Close releases all of them.
package credential
