// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/bureau-foundation/nodewatch/lib/adminapi"
	"github.com/bureau-foundation/nodewatch/lib/alert"
	"github.com/bureau-foundation/nodewatch/lib/alertbus"
	"github.com/bureau-foundation/nodewatch/lib/clock"
	"github.com/bureau-foundation/nodewatch/lib/config"
	"github.com/bureau-foundation/nodewatch/lib/control"
	"github.com/bureau-foundation/nodewatch/lib/credential"
	"github.com/bureau-foundation/nodewatch/lib/metrics"
	"github.com/bureau-foundation/nodewatch/lib/node"
	"github.com/bureau-foundation/nodewatch/lib/powerctl"
	"github.com/bureau-foundation/nodewatch/lib/scheduler"
	"github.com/bureau-foundation/nodewatch/lib/subscription"
	"github.com/bureau-foundation/nodewatch/lib/telemetry"
	"github.com/bureau-foundation/nodewatch/lib/transition"
	"github.com/bureau-foundation/nodewatch/lib/waketimer"
	"github.com/bureau-foundation/nodewatch/messaging"
)

// daemon is every long-lived component of a running nodewatch.
type daemon struct {
	logger *slog.Logger

	credentials *credential.Bundle
	store       subscription.Store
	closeStore  func() error
	bus         *alertbus.Publisher

	scheduler *scheduler.Scheduler
	control   *control.Server
	admin     *adminapi.Server
}

// newDaemon wires the components described by cfg. On error, anything
// already opened is closed.
func newDaemon(cfg *config.Config, logger *slog.Logger) (_ *daemon, err error) {
	if err := cfg.EnsurePaths(); err != nil {
		return nil, err
	}

	d := &daemon{logger: logger, closeStore: func() error { return nil }}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	d.credentials, err = credential.Load(credential.Source{
		SealedFile:   cfg.Credentials.SealedFile,
		IdentityFile: cfg.Credentials.IdentityFile,
		DotenvFile:   cfg.Credentials.DotenvFile,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("credentials loaded", "names", d.credentials.Keys())

	httpClient := &http.Client{}
	clk := clock.Real()
	m := metrics.New()

	router, err := newRouter(cfg, d.credentials, httpClient, clk, logger)
	if err != nil {
		return nil, err
	}

	if err := d.openStore(cfg.State.Path); err != nil {
		return nil, err
	}

	power := powerctl.NewRegistry(httpClient, logger.With("component", "powerctl"))
	if cfg.Power.RegistryFile != "" {
		if err := power.LoadFile(cfg.Power.RegistryFile); err != nil {
			return nil, err
		}
	}

	endpoints, err := graphqlEndpoints(cfg.Networks)
	if err != nil {
		return nil, err
	}
	source := telemetry.NewGraphQLSource(endpoints, httpClient, logger.With("component", "telemetry"))

	networks, err := buildNetworks(cfg, source, power, clk, m, logger)
	if err != nil {
		return nil, err
	}

	minSeverity, err := alert.ParseSeverity(cfg.Alerts.MinSeverity)
	if err != nil {
		return nil, fmt.Errorf("alerts.min_severity: %w", err)
	}
	dispatcherConfig := alert.DispatcherConfig{
		Sender:      router,
		MinSeverity: minSeverity,
		SendTimeout: cfg.Poll.SendTimeout,
		Metrics:     m,
		Logger:      logger.With("component", "alert"),
	}
	if cfg.NATS.URL != "" {
		d.bus, err = alertbus.Connect(alertbus.Config{
			URL:           cfg.NATS.URL,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
			Logger:        logger.With("component", "alertbus"),
		})
		if err != nil {
			return nil, err
		}
		dispatcherConfig.Publisher = d.bus
	}
	dispatcher, err := alert.NewDispatcher(dispatcherConfig)
	if err != nil {
		return nil, err
	}

	d.scheduler, err = scheduler.New(scheduler.Config{
		Interval:      cfg.Poll.Interval,
		Subscriptions: d.store,
		Dispatcher:    dispatcher,
		Clock:         clk,
		Metrics:       m,
		Logger:        logger.With("component", "scheduler"),
	}, networks...)
	if err != nil {
		return nil, err
	}

	d.control = control.NewServer(cfg.Control.SocketPath, logger.With("component", "control"))
	control.Register(d.control, d.scheduler, d.store)

	if cfg.Admin.Listen != "" {
		d.admin, err = adminapi.New(adminapi.Config{
			Address: cfg.Admin.Listen,
			Status:  d.scheduler,
			Metrics: m,
			Logger:  logger.With("component", "adminapi"),
		})
		if err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *daemon) openStore(path string) error {
	if path == "" {
		d.logger.Warn("state.path is empty, subscriptions will not survive a restart")
		d.store = subscription.NewMemoryStore()
		return nil
	}
	store, err := subscription.OpenSQLite(path, d.logger.With("component", "subscription"))
	if err != nil {
		return err
	}
	d.store = store
	d.closeStore = store.Close
	d.logger.Info("subscription store opened", "path", path)
	return nil
}

// newRouter registers a transport for every enabled messaging scheme.
func newRouter(cfg *config.Config, credentials *credential.Bundle, httpClient *http.Client, clk clock.Clock, logger *slog.Logger) (*messaging.Router, error) {
	router := messaging.NewRouter()

	if cfg.Telegram.Enabled {
		token := credentials.Get(credential.TelegramBotToken)
		if token == nil {
			return nil, fmt.Errorf("telegram is enabled but %s is not set", credential.TelegramBotToken)
		}
		client, err := messaging.NewTelegramClient(messaging.TelegramConfig{
			BaseURL:    cfg.Telegram.BaseURL,
			Token:      token,
			HTTPClient: httpClient,
			Logger:     logger.With("component", "telegram"),
		})
		if err != nil {
			return nil, err
		}
		router.Handle(messaging.SchemeTelegram, client)
	}

	if cfg.Matrix.Enabled {
		token := credentials.Get(credential.MatrixAccessToken)
		if token == nil {
			return nil, fmt.Errorf("matrix is enabled but %s is not set", credential.MatrixAccessToken)
		}
		client, err := messaging.NewMatrixClient(messaging.MatrixConfig{
			HomeserverURL: cfg.Matrix.HomeserverURL,
			AccessToken:   token,
			HTTPClient:    httpClient,
			Clock:         clk,
			Logger:        logger.With("component", "matrix"),
		})
		if err != nil {
			return nil, err
		}
		router.Handle(messaging.SchemeMatrix, client)
	}

	if len(router.Schemes()) == 0 {
		logger.Warn("no messaging transport is enabled, alerts will only be logged and published")
	}
	return router, nil
}

// graphqlEndpoints resolves the indexer URL of every network,
// falling back to the built-in endpoints.
func graphqlEndpoints(networks []config.NetworkConfig) (map[string]string, error) {
	endpoints := make(map[string]string, len(networks))
	var errs []error
	for _, network := range networks {
		endpoint := network.GraphQLURL
		if endpoint == "" {
			endpoint = telemetry.DefaultEndpoints[network.Name]
		}
		if endpoint == "" {
			errs = append(errs, fmt.Errorf("network %q has no built-in endpoint; set graphql_url", network.Name))
			continue
		}
		endpoints[network.Name] = endpoint
	}
	return endpoints, errors.Join(errs...)
}

// buildNetworks creates the wake timer and engine of every configured
// network.
func buildNetworks(cfg *config.Config, source telemetry.Source, power *powerctl.Registry,
	clk clock.Clock, m *metrics.Metrics, logger *slog.Logger) ([]scheduler.Network, error) {
	thresholds := node.Thresholds{
		Offline: cfg.Poll.OfflineThreshold,
		Standby: cfg.Poll.StandbyThreshold,
	}
	networks := make([]scheduler.Network, 0, len(cfg.Networks))
	for _, network := range cfg.Networks {
		wake := waketimer.New(network.DefaultBootMinutes)
		for id, minutes := range network.BootMinutes {
			if err := wake.SetMaxBootMinutes(node.ID(id), minutes); err != nil {
				return nil, fmt.Errorf("network %s: node %d: %w", network.Name, id, err)
			}
		}
		engine, err := transition.New(transition.Config{
			Network:           network.Name,
			Wake:              wake,
			Thresholds:        thresholds,
			FetchTimeout:      cfg.Poll.FetchTimeout,
			PowerCycleTimeout: cfg.Poll.PowerCycleTimeout,
			Clock:             clk,
			Metrics:           m,
			Logger:            logger.With("component", "transition", "network", network.Name),
		})
		if err != nil {
			return nil, err
		}
		networks = append(networks, scheduler.Network{
			Engine: engine,
			Source: source,
			Power:  power.Network(network.Name),
		})
	}
	return networks, nil
}

// Run serves until ctx is cancelled or a listener fails, then waits
// for every component to stop.
func (d *daemon) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	controlDone := make(chan error, 1)
	go func() {
		controlDone <- d.control.Serve(ctx)
	}()

	// A nil channel never becomes ready in the select below.
	var adminDone chan error
	if d.admin != nil {
		adminDone = make(chan error, 1)
		go func() {
			adminDone <- d.admin.Serve(ctx)
		}()
	}

	schedulerDone := make(chan struct{})
	go func() {
		defer close(schedulerDone)
		d.scheduler.Run(ctx)
	}()

	d.logger.Info("nodewatch running", "networks", d.scheduler.Networks(), "interval", d.scheduler.Interval())

	var errs []error
	var controlErr, adminErr error
	controlStopped, adminStopped := false, false
	select {
	case <-ctx.Done():
	case controlErr = <-controlDone:
		controlStopped = true
	case adminErr = <-adminDone:
		adminStopped = true
	}
	cancel()
	d.logger.Info("shutting down")

	if !controlStopped {
		controlErr = <-controlDone
	}
	if adminDone != nil && !adminStopped {
		adminErr = <-adminDone
	}
	<-schedulerDone

	if controlErr != nil {
		errs = append(errs, fmt.Errorf("control socket: %w", controlErr))
	}
	if adminErr != nil {
		errs = append(errs, fmt.Errorf("admin server: %w", adminErr))
	}
	return errors.Join(errs...)
}

// Close releases everything newDaemon opened.
func (d *daemon) Close() {
	if d.bus != nil {
		d.bus.Close()
	}
	if err := d.closeStore(); err != nil {
		d.logger.Error("closing subscription store", "error", err)
	}
	if d.credentials != nil {
		if err := d.credentials.Close(); err != nil {
			d.logger.Error("closing credentials", "error", err)
		}
	}
}
