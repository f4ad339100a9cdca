// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package powerctl

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/bureau-foundation/nodewatch/lib/netutil"
)

// Controller power-cycles one node.
type Controller interface {
	// PowerCycle switches the outlet off and schedules it back on.
	// It returns true when the device confirmed the command.
	PowerCycle(ctx context.Context) bool

	// Address identifies the device in alert text.
	Address() string
}

// Generation selects the Shelly HTTP API.
type Generation int

const (
	// GenerationAuto probes /shelly on first use.
	GenerationAuto Generation = 0
	// Generation1 devices expose /relay/<n>.
	Generation1 Generation = 1
	// Generation2 devices (Plus, Pro) expose the RPC API.
	Generation2 Generation = 2
)

// DefaultOffSeconds is how long the outlet stays off.
const DefaultOffSeconds = 10

// ShellyConfig configures a Shelly controller.
type ShellyConfig struct {
	// Address is a host or host:port, optionally with an http(s) scheme.
	Address    string
	Generation Generation
	// OffSeconds defaults to DefaultOffSeconds.
	OffSeconds int
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Shelly controls a Shelly smart plug on relay 0.
type Shelly struct {
	address    string
	baseURL    string
	offSeconds int
	httpClient *http.Client
	logger     *slog.Logger

	mu         sync.Mutex
	generation Generation
}

// NewShelly returns a controller for the plug at config.Address.
func NewShelly(config ShellyConfig) (*Shelly, error) {
	address := strings.TrimSpace(config.Address)
	if address == "" {
		return nil, fmt.Errorf("powerctl: shelly address is required")
	}
	switch config.Generation {
	case GenerationAuto, Generation1, Generation2:
	default:
		return nil, fmt.Errorf("powerctl: unsupported shelly generation %d", config.Generation)
	}
	baseURL := address
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}
	offSeconds := config.OffSeconds
	if offSeconds <= 0 {
		offSeconds = DefaultOffSeconds
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Shelly{
		address:    address,
		baseURL:    strings.TrimRight(baseURL, "/"),
		offSeconds: offSeconds,
		httpClient: httpClient,
		logger:     logger.With("controller", address),
		generation: config.Generation,
	}, nil
}

// Address implements Controller.
func (s *Shelly) Address() string { return s.address }

// PowerCycle implements Controller.
func (s *Shelly) PowerCycle(ctx context.Context) bool {
	generation, err := s.resolveGeneration(ctx)
	if err != nil {
		s.logger.Error("shelly generation probe failed", "error", err)
		return false
	}

	var ok bool
	switch generation {
	case Generation1:
		ok, err = s.cycleGen1(ctx)
	default:
		ok, err = s.cycleGen2(ctx)
	}
	if err != nil {
		s.logger.Error("shelly power cycle failed", "generation", int(generation), "error", err)
		return false
	}
	if !ok {
		s.logger.Warn("shelly rejected power cycle", "generation", int(generation))
	}
	return ok
}

// resolveGeneration returns the configured generation, probing the
// device once if it was left on auto.
func (s *Shelly) resolveGeneration(ctx context.Context) (Generation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != GenerationAuto {
		return s.generation, nil
	}
	var info struct {
		Gen int `json:"gen"`
	}
	if err := s.get(ctx, "/shelly", &info); err != nil {
		return GenerationAuto, err
	}
	// Gen1 devices do not report a generation at all.
	if info.Gen >= 2 {
		s.generation = Generation2
	} else {
		s.generation = Generation1
	}
	s.logger.Debug("shelly generation detected", "generation", int(s.generation))
	return s.generation, nil
}

// cycleGen1 turns relay 0 off with an auto-on timer. The device
// answers with the relay state after the command.
func (s *Shelly) cycleGen1(ctx context.Context) (bool, error) {
	var result struct {
		IsOn *bool `json:"ison"`
	}
	if err := s.get(ctx, fmt.Sprintf("/relay/0?turn=off&timer=%d", s.offSeconds), &result); err != nil {
		return false, err
	}
	if result.IsOn == nil {
		return false, fmt.Errorf("relay response has no ison field")
	}
	return !*result.IsOn, nil
}

// cycleGen2 calls Switch.Set with toggle_after. The device answers with
// the state before the command; an outlet that was already off cannot
// have been cycled.
func (s *Shelly) cycleGen2(ctx context.Context) (bool, error) {
	var result struct {
		WasOn *bool `json:"was_on"`
	}
	if err := s.get(ctx, fmt.Sprintf("/rpc/Switch.Set?id=0&on=false&toggle_after=%d", s.offSeconds), &result); err != nil {
		return false, err
	}
	if result.WasOn == nil {
		return false, fmt.Errorf("Switch.Set response has no was_on field")
	}
	return *result.WasOn, nil
}

func (s *Shelly) get(ctx context.Context, path string, result any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	response, err := s.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s: status %d: %s", path, response.StatusCode, netutil.ErrorBody(response.Body))
	}
	if err := netutil.DecodeResponse(response.Body, result); err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	return nil
}
