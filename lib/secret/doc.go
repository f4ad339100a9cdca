// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds bot tokens and age identities in memory that is
// locked against swap and excluded from core dumps.
//
// A [Buffer] is an anonymous mmap region outside the Go heap, so the
// garbage collector never copies it. Close zeroes and unmaps it; any
// read after Close panics. Convert to string only at the boundary
// where an HTTP header or URL needs it.
package secret
