// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging delivers alert text to observers.
//
// An observer is addressed by an [ObserverID] of the form
// "scheme:address". Two schemes are supported: "telegram:<chat id>"
// delivers through the Telegram Bot API, and "matrix:<room id>" posts
// an m.notice into a Matrix room. [Router] picks the transport by
// scheme, so the alert dispatcher only ever sees a [Sender].
//
// Transports report observers that can no longer be reached (a user
// blocked the bot, the bot was removed from the room) by wrapping
// [ErrObserverUnreachable]. Callers treat that as a quiet, expected
// condition and everything else as a real delivery failure.
//
// Credentials are held in [secret.Buffer] memory and converted to
// strings only when building the request.
package messaging
