// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sealed encrypts and decrypts the nodewatch credentials bundle
// with age x25519 keys.
//
// The bundle is a small JSON document holding the Telegram bot token
// and the Matrix access token. It is sealed to one or more recipients
// with nodewatch-ctl and stored as base64 text next to the config file;
// the daemon opens it with its identity file at startup. Decrypted
// plaintext and private keys are returned as [secret.Buffer] values.
package sealed
