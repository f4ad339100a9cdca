// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/bureau-foundation/nodewatch/lib/clock"
	"github.com/bureau-foundation/nodewatch/lib/netutil"
	"github.com/bureau-foundation/nodewatch/lib/secret"
)

// MatrixConfig configures a MatrixClient.
type MatrixConfig struct {
	// HomeserverURL is the base URL of the homeserver.
	HomeserverURL string
	// AccessToken is borrowed; the caller closes it.
	AccessToken *secret.Buffer
	HTTPClient  *http.Client
	// Clock seeds transaction IDs. Defaults to clock.Real().
	Clock  clock.Clock
	Logger *slog.Logger
}

// MatrixClient posts notices to Matrix rooms.
type MatrixClient struct {
	baseURL     string
	accessToken *secret.Buffer
	httpClient  *http.Client
	clock       clock.Clock
	logger      *slog.Logger

	transactionCounter atomic.Uint64
}

// NewMatrixClient validates config and returns a client.
func NewMatrixClient(config MatrixConfig) (*MatrixClient, error) {
	if config.HomeserverURL == "" {
		return nil, fmt.Errorf("messaging: matrix homeserver URL is required")
	}
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("messaging: invalid homeserver URL %q: %w", config.HomeserverURL, err)
	}
	if config.AccessToken == nil {
		return nil, fmt.Errorf("messaging: matrix access token is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &MatrixClient{
		baseURL:     strings.TrimRight(config.HomeserverURL, "/"),
		accessToken: config.AccessToken,
		httpClient:  httpClient,
		clock:       clk,
		logger:      logger,
	}, nil
}

// MatrixError is a structured homeserver error response.
type MatrixError struct {
	Code       string `json:"errcode"`
	Message    string `json:"error"`
	StatusCode int    `json:"-"`
}

func (e *MatrixError) Error() string {
	return fmt.Sprintf("matrix: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// Unwrap maps "not in room" and "no such room" to ErrObserverUnreachable.
func (e *MatrixError) Unwrap() error {
	if e.Code == "M_FORBIDDEN" || e.Code == "M_NOT_FOUND" {
		return ErrObserverUnreachable
	}
	return nil
}

type noticeContent struct {
	MsgType string `json:"msgtype"`
	Body    string `json:"body"`
}

// Send implements Sender for "matrix:<room id>" observers. Messages are
// sent as m.notice so that bots in the room do not react to them.
func (c *MatrixClient) Send(ctx context.Context, observer ObserverID, text string) error {
	scheme, roomID, err := observer.Split()
	if err != nil {
		return err
	}
	if scheme != SchemeMatrix {
		return fmt.Errorf("messaging: matrix cannot deliver to %q", observer)
	}

	payload, err := json.Marshal(noticeContent{MsgType: "m.notice", Body: text})
	if err != nil {
		return fmt.Errorf("messaging: encoding matrix notice: %w", err)
	}
	path := fmt.Sprintf("/_matrix/client/v3/rooms/%s/send/m.room.message/%s",
		url.PathEscape(roomID),
		url.PathEscape(c.nextTransactionID()),
	)
	request, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("messaging: creating matrix request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+c.accessToken.String())

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("messaging: send to %s failed: %w", observer, err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return fmt.Errorf("messaging: reading matrix response: %w", err)
	}
	if response.StatusCode/100 == 2 {
		c.logger.Debug("matrix notice sent", "observer", observer)
		return nil
	}

	var matrixErr MatrixError
	if json.Unmarshal(body, &matrixErr) != nil || matrixErr.Code == "" {
		return fmt.Errorf("messaging: unexpected %d response sending to %s: %s",
			response.StatusCode, observer, string(body))
	}
	matrixErr.StatusCode = response.StatusCode
	return fmt.Errorf("messaging: send to %s: %w", observer, &matrixErr)
}

func (c *MatrixClient) nextTransactionID() string {
	counter := c.transactionCounter.Add(1)
	return fmt.Sprintf("nodewatch-%d-%d", c.clock.Now().UnixMilli(), counter)
}
