// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/nodewatch/lib/metrics"
	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/messaging"
)

// DefaultSendTimeout bounds one delivery attempt.
const DefaultSendTimeout = 10 * time.Second

// ObserverLookup resolves the observers subscribed to a node.
type ObserverLookup interface {
	Observers(ctx context.Context, network string, id node.ID) ([]messaging.ObserverID, error)
}

// Publisher receives every event regardless of severity or observers,
// for consumers other than chat users.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// DeliveryError is one failed delivery to one observer.
type DeliveryError struct {
	Observer messaging.ObserverID
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("alert: delivery to %s failed: %v", e.Observer, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Report summarizes one Dispatch call.
type Report struct {
	Delivered   int
	Unreachable int
	Failures    []*DeliveryError
	// Filtered is true when the event was below the severity floor and
	// went to no observer.
	Filtered bool
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Sender messaging.Sender
	// MinSeverity is the lowest severity delivered to observers.
	// Defaults to SeverityInfo.
	MinSeverity Severity
	// SendTimeout defaults to DefaultSendTimeout.
	SendTimeout time.Duration
	// Publisher is optional.
	Publisher Publisher
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Dispatcher delivers events to observers.
type Dispatcher struct {
	sender      messaging.Sender
	minSeverity Severity
	sendTimeout time.Duration
	publisher   Publisher
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// NewDispatcher returns a Dispatcher. Sender is required.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Sender == nil {
		return nil, errors.New("alert: sender is required")
	}
	minSeverity := config.MinSeverity
	if minSeverity == 0 {
		minSeverity = SeverityInfo
	}
	sendTimeout := config.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		sender:      config.Sender,
		minSeverity: minSeverity,
		sendTimeout: sendTimeout,
		publisher:   config.Publisher,
		metrics:     config.Metrics,
		logger:      logger,
	}, nil
}

// Dispatch delivers event to every observer lookup returns for the
// event's node. Failures are logged and reported, never returned.
func (d *Dispatcher) Dispatch(ctx context.Context, event Event, lookup ObserverLookup) Report {
	logger := d.logger.With(
		"network", event.Network,
		"node_id", event.NodeID,
		"kind", event.Kind.String(),
		"cycle_id", event.CycleID,
	)
	d.metrics.CountAlert(event.Network, event.Kind.String())
	d.publish(ctx, event, logger)

	var report Report
	if event.Severity < d.minSeverity {
		logger.Debug("alert below severity floor", "severity", event.Severity.String())
		d.metrics.CountDelivery(event.Network, "filtered")
		report.Filtered = true
		return report
	}

	observers, err := lookup.Observers(ctx, event.Network, event.NodeID)
	if err != nil {
		logger.Error("resolving observers failed", "phase", "dispatch", "error", err)
		return report
	}

	text := Render(event)
	seen := make(map[messaging.ObserverID]bool, len(observers))
	for _, observer := range observers {
		if seen[observer] {
			continue
		}
		seen[observer] = true

		err := d.send(ctx, observer, text)
		switch {
		case err == nil:
			report.Delivered++
			d.metrics.CountDelivery(event.Network, "sent")
		case errors.Is(err, messaging.ErrObserverUnreachable):
			report.Unreachable++
			d.metrics.CountDelivery(event.Network, "unreachable")
			logger.Debug("observer unreachable", "observer", observer, "error", err)
		default:
			failure := &DeliveryError{Observer: observer, Err: err}
			report.Failures = append(report.Failures, failure)
			d.metrics.CountDelivery(event.Network, "failed")
			logger.Error("alert delivery failed", "phase", "dispatch", "observer", observer, "error", err)
		}
	}
	logger.Info("alert dispatched",
		"delivered", report.Delivered,
		"unreachable", report.Unreachable,
		"failed", len(report.Failures),
	)
	return report
}

func (d *Dispatcher) send(ctx context.Context, observer messaging.ObserverID, text string) error {
	sendCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	return d.sender.Send(sendCtx, observer, text)
}

func (d *Dispatcher) publish(ctx context.Context, event Event, logger *slog.Logger) {
	if d.publisher == nil {
		return
	}
	publishCtx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()
	if err := d.publisher.Publish(publishCtx, event); err != nil {
		logger.Warn("publishing alert event failed", "error", err)
	}
}
