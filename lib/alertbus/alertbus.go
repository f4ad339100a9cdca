// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package alertbus publishes alert events to NATS so consumers other
// than chat observers (dashboards, pagers, archivers) can follow every
// transition. Each event is one JSON message on
// <prefix>.<network>.<kind>, so subscribers filter with subject
// wildcards such as "nodewatch.alerts.main.*".
package alertbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/bureau-foundation/nodewatch/lib/alert"
)

// DefaultSubjectPrefix is used when Config.SubjectPrefix is empty.
const DefaultSubjectPrefix = "nodewatch.alerts"

// Message is the published payload: the event plus its rendered text.
type Message struct {
	alert.Event
	Text string `json:"text"`
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	IsClosed() bool
	Drain() error
	Close()
}

// Config configures Connect.
type Config struct {
	URL           string
	SubjectPrefix string
	// Name identifies this client to the server.
	Name   string
	Logger *slog.Logger
}

// Publisher implements alert.Publisher over a NATS connection.
type Publisher struct {
	conn   conn
	prefix string
	logger *slog.Logger
}

var _ alert.Publisher = (*Publisher)(nil)

// Connect dials the server. The connection reconnects forever; events
// published while disconnected are buffered by the client up to its
// reconnect buffer size.
func Connect(config Config) (*Publisher, error) {
	if config.URL == "" {
		return nil, errors.New("alertbus: URL is required")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	name := config.Name
	if name == "" {
		name = "nodewatch"
	}
	options := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	}
	nc, err := nats.Connect(config.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("alertbus: connecting to %s: %w", config.URL, err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl())
	return newPublisher(nc, config.SubjectPrefix, logger), nil
}

func newPublisher(c conn, prefix string, logger *slog.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{conn: c, prefix: strings.TrimSuffix(prefix, "."), logger: logger}
}

// Subject returns the subject an event is published on.
func (p *Publisher) Subject(event alert.Event) string {
	return p.prefix + "." + subjectToken(event.Network) + "." + event.Kind.String()
}

// Publish sends event. NATS core publish does not block on the
// network, so ctx is only checked up front.
func (p *Publisher) Publish(ctx context.Context, event alert.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.conn.IsClosed() {
		return errors.New("alertbus: connection closed")
	}
	payload, err := json.Marshal(Message{Event: event, Text: alert.Render(event)})
	if err != nil {
		return fmt.Errorf("alertbus: encoding event: %w", err)
	}
	subject := p.Subject(event)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("alertbus: publishing to %s: %w", subject, err)
	}
	p.logger.Debug("alert event published", "subject", subject, "cycle_id", event.CycleID)
	return nil
}

// Close flushes pending messages and closes the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.logger.Warn("nats drain failed", "error", err)
	}
	p.conn.Close()
}

// subjectToken makes a network name safe as one subject token.
func subjectToken(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\r', '\n':
			return '_'
		}
		return r
	}, s)
}
