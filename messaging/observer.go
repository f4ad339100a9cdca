// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrObserverUnreachable marks a delivery that failed because the
// observer has blocked, left, or deleted the conversation.
var ErrObserverUnreachable = errors.New("messaging: observer unreachable")

// Observer schemes.
const (
	SchemeTelegram = "telegram"
	SchemeMatrix   = "matrix"
)

// ObserverID addresses one alert recipient as "scheme:address".
type ObserverID string

// NewObserverID joins a scheme and address.
func NewObserverID(scheme, address string) ObserverID {
	return ObserverID(scheme + ":" + address)
}

// Split returns the scheme and address.
func (o ObserverID) Split() (scheme, address string, err error) {
	scheme, address, found := strings.Cut(string(o), ":")
	if !found || scheme == "" || address == "" {
		return "", "", fmt.Errorf("messaging: invalid observer id %q (want scheme:address)", o)
	}
	return scheme, address, nil
}

func (o ObserverID) String() string { return string(o) }

// ParseObserverID validates s and checks the scheme is one this package
// can deliver to.
func ParseObserverID(s string) (ObserverID, error) {
	observer := ObserverID(strings.TrimSpace(s))
	scheme, _, err := observer.Split()
	if err != nil {
		return "", err
	}
	switch scheme {
	case SchemeTelegram, SchemeMatrix:
		return observer, nil
	}
	return "", fmt.Errorf("messaging: unsupported observer scheme %q", scheme)
}

// Sender delivers text to one observer.
type Sender interface {
	Send(ctx context.Context, observer ObserverID, text string) error
}
