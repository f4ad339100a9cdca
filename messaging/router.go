// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
)

// Router is a Sender that forwards to a per-scheme transport.
type Router struct {
	transports map[string]Sender
}

// NewRouter returns a Router with no transports.
func NewRouter() *Router {
	return &Router{transports: make(map[string]Sender)}
}

// Handle registers the transport for scheme, replacing any previous one.
func (r *Router) Handle(scheme string, sender Sender) {
	r.transports[scheme] = sender
}

// Schemes reports the registered schemes.
func (r *Router) Schemes() []string {
	schemes := make([]string, 0, len(r.transports))
	for scheme := range r.transports {
		schemes = append(schemes, scheme)
	}
	return schemes
}

// Send implements Sender.
func (r *Router) Send(ctx context.Context, observer ObserverID, text string) error {
	scheme, _, err := observer.Split()
	if err != nil {
		return err
	}
	transport, ok := r.transports[scheme]
	if !ok {
		return fmt.Errorf("messaging: no transport configured for %q observers", scheme)
	}
	return transport.Send(ctx, observer, text)
}
