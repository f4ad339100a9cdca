// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bureau-foundation/nodewatch/lib/netutil"
	"github.com/bureau-foundation/nodewatch/lib/node"
)

// Indexer endpoints of the public networks.
var DefaultEndpoints = map[string]string{
	"main": "https://graphql.grid.tf/graphql",
	"test": "https://graphql.test.grid.tf/graphql",
	"dev":  "https://graphql.dev.grid.tf/graphql",
}

const nodesQuery = `query Nodes($ids: [Int!], $limit: Int) {
  nodes(where: {nodeID_in: $ids}, limit: $limit) {
    nodeID
    updatedAt
    power { state target }
  }
}`

// GraphQLSource queries a per-network GraphQL indexer.
type GraphQLSource struct {
	endpoints  map[string]string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGraphQLSource returns a source for the given network endpoints.
func NewGraphQLSource(endpoints map[string]string, httpClient *http.Client, logger *slog.Logger) *GraphQLSource {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	copied := make(map[string]string, len(endpoints))
	for network, endpoint := range endpoints {
		copied[network] = endpoint
	}
	return &GraphQLSource{endpoints: copied, httpClient: httpClient, logger: logger}
}

type graphqlRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphqlResponse struct {
	Data struct {
		Nodes []graphqlNode `json:"nodes"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type graphqlNode struct {
	NodeID    uint32          `json:"nodeID"`
	UpdatedAt json.RawMessage `json:"updatedAt"`
	Power     *struct {
		State  *string `json:"state"`
		Target *string `json:"target"`
	} `json:"power"`
}

// Fetch implements Source.
func (s *GraphQLSource) Fetch(ctx context.Context, network string, ids []node.ID) ([]node.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	records, err := s.fetch(ctx, network, ids)
	if err != nil {
		return nil, &FetchError{Network: network, Err: err}
	}
	s.logger.Debug("telemetry fetched", "network", network, "requested", len(ids), "returned", len(records))
	return records, nil
}

func (s *GraphQLSource) fetch(ctx context.Context, network string, ids []node.ID) ([]node.Record, error) {
	endpoint, ok := s.endpoints[network]
	if !ok {
		return nil, fmt.Errorf("no indexer endpoint configured for network %q", network)
	}

	intIDs := make([]uint32, len(ids))
	for index, id := range ids {
		intIDs[index] = uint32(id)
	}
	payload, err := json.Marshal(graphqlRequest{
		Query:     nodesQuery,
		Variables: map[string]any{"ids": intIDs, "limit": len(ids)},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding query: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := s.httpClient.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("indexer returned %d: %s", response.StatusCode, netutil.ErrorBody(response.Body))
	}

	var decoded graphqlResponse
	if err := netutil.DecodeResponse(response.Body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if len(decoded.Errors) > 0 {
		messages := make([]string, len(decoded.Errors))
		for index, graphqlErr := range decoded.Errors {
			messages[index] = graphqlErr.Message
		}
		return nil, fmt.Errorf("query failed: %s", strings.Join(messages, "; "))
	}

	records := make([]node.Record, 0, len(decoded.Data.Nodes))
	for _, raw := range decoded.Data.Nodes {
		records = append(records, s.decodeNode(network, raw))
	}
	return records, nil
}

// decodeNode never fails: fields that cannot be decoded are left in a
// state node.Validate rejects, so the bad node is skipped on its own.
func (s *GraphQLSource) decodeNode(network string, raw graphqlNode) node.Record {
	record := node.Record{ID: node.ID(raw.NodeID)}
	logger := s.logger.With("network", network, "node_id", raw.NodeID)

	updatedAt, err := parseTimestamp(raw.UpdatedAt)
	if err != nil {
		logger.Warn("undecodable telemetry timestamp", "error", err)
	}
	record.UpdatedAt = updatedAt

	// A node that never reported power telemetry has power: null, or
	// null fields. Both decode to Unknown.
	if raw.Power != nil {
		record.Power.State = s.decodePower(logger, raw.Power.State)
		record.Power.Target = s.decodePower(logger, raw.Power.Target)
	}
	return record
}

func (s *GraphQLSource) decodePower(logger *slog.Logger, text *string) node.PowerState {
	if text == nil {
		return node.PowerUnknown
	}
	state, err := node.ParsePowerState(*text)
	if err != nil {
		logger.Warn("undecodable power state", "error", err)
		return node.PowerInvalid
	}
	return state
}

// parseTimestamp accepts unix seconds as a JSON number or a decimal
// string; the indexer has served both.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, errors.New("missing updatedAt")
	}
	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return time.Time{}, fmt.Errorf("invalid updatedAt %s: %w", raw, err)
		}
	}
	seconds, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid updatedAt %s: %w", raw, err)
	}
	return time.Unix(seconds, 0).UTC(), nil
}
