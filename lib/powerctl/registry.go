// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package powerctl

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"

	"github.com/tidwall/jsonc"

	"github.com/bureau-foundation/nodewatch/lib/node"
)

// DefaultNetwork is assumed for registry entries that name none.
const DefaultNetwork = "main"

// Lookup finds the controller of a node within one network.
type Lookup interface {
	Controller(id node.ID) (Controller, bool)
}

// Entry is one node-to-plug assignment as stored in the registry file.
type Entry struct {
	Network    string     `json:"network,omitempty"`
	NodeID     node.ID    `json:"node_id"`
	Address    string     `json:"address"`
	Generation Generation `json:"generation,omitempty"`
}

type registryFile struct {
	Nodes []Entry `json:"nodes"`
}

type registryKey struct {
	network string
	id      node.ID
}

type registration struct {
	entry      Entry
	controller Controller
}

// Registry holds controllers for all networks.
type Registry struct {
	httpClient *http.Client
	logger     *slog.Logger

	mu      sync.RWMutex
	entries map[registryKey]registration
}

// NewRegistry returns an empty registry. Shelly controllers it creates
// share httpClient.
func NewRegistry(httpClient *http.Client, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Registry{
		httpClient: httpClient,
		logger:     logger,
		entries:    make(map[registryKey]registration),
	}
}

// LoadFile adds every entry of a JSONC registry file:
//
//	{
//	  // farm rack A
//	  "nodes": [
//	    {"network": "main", "node_id": 7, "address": "10.0.0.5", "generation": 2},
//	  ]
//	}
//
// A missing file is not an error; the registry stays empty.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		r.logger.Info("power controller registry not found, no nodes will be power cycled", "path", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("powerctl: reading registry: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(jsonc.ToJSON(data), &file); err != nil {
		return fmt.Errorf("powerctl: parsing registry %s: %w", path, err)
	}
	var errs []error
	for index, entry := range file.Nodes {
		if err := r.Set(entry); err != nil {
			errs = append(errs, fmt.Errorf("nodes[%d]: %w", index, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("powerctl: registry %s: %w", path, errors.Join(errs...))
	}
	r.logger.Info("power controller registry loaded", "path", path, "controllers", len(file.Nodes))
	return nil
}

// Set assigns a Shelly plug to a node, replacing any previous one.
func (r *Registry) Set(entry Entry) error {
	if entry.Network == "" {
		entry.Network = DefaultNetwork
	}
	if entry.NodeID == 0 {
		return fmt.Errorf("node_id is required")
	}
	controller, err := NewShelly(ShellyConfig{
		Address:    entry.Address,
		Generation: entry.Generation,
		HTTPClient: r.httpClient,
		Logger:     r.logger.With("network", entry.Network, "node_id", entry.NodeID),
	})
	if err != nil {
		return err
	}
	r.register(entry, controller)
	return nil
}

// Register assigns an arbitrary controller to a node.
func (r *Registry) Register(network string, id node.ID, controller Controller) {
	r.register(Entry{Network: network, NodeID: id, Address: controller.Address()}, controller)
}

func (r *Registry) register(entry Entry, controller Controller) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[registryKey{entry.Network, entry.NodeID}] = registration{entry: entry, controller: controller}
}

// Remove drops a node's controller. It reports whether one was set.
func (r *Registry) Remove(network string, id node.ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey{network, id}
	_, ok := r.entries[key]
	delete(r.entries, key)
	return ok
}

// Entries returns the assignments of one network ordered by node.
func (r *Registry) Entries(network string) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var entries []Entry
	for key, registration := range r.entries {
		if key.network == network {
			entries = append(entries, registration.entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].NodeID < entries[j].NodeID })
	return entries
}

// Network returns the Lookup for one network.
func (r *Registry) Network(network string) Lookup {
	return networkLookup{registry: r, network: network}
}

type networkLookup struct {
	registry *Registry
	network  string
}

func (l networkLookup) Controller(id node.ID) (Controller, bool) {
	l.registry.mu.RLock()
	defer l.registry.mu.RUnlock()
	registration, ok := l.registry.entries[registryKey{l.network, id}]
	return registration.controller, ok
}
