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
	"strconv"
	"strings"

	"github.com/bureau-foundation/nodewatch/lib/netutil"
	"github.com/bureau-foundation/nodewatch/lib/secret"
)

// DefaultTelegramURL is the public Bot API endpoint.
const DefaultTelegramURL = "https://api.telegram.org"

// TelegramConfig configures a TelegramClient.
type TelegramConfig struct {
	// BaseURL defaults to DefaultTelegramURL.
	BaseURL string
	// Token is the bot token. Borrowed: the caller closes it after the
	// client is no longer used.
	Token *secret.Buffer
	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TelegramClient sends plain-text messages to Telegram chats.
type TelegramClient struct {
	baseURL    string
	token      *secret.Buffer
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTelegramClient validates config and returns a client.
func NewTelegramClient(config TelegramConfig) (*TelegramClient, error) {
	if config.Token == nil {
		return nil, fmt.Errorf("messaging: telegram bot token is required")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = DefaultTelegramURL
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &TelegramClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      config.Token,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// TelegramError is a Bot API error response.
type TelegramError struct {
	StatusCode  int
	ErrorCode   int
	Description string
}

func (e *TelegramError) Error() string {
	return fmt.Sprintf("telegram: %d: %s", e.ErrorCode, e.Description)
}

// Unwrap maps "bot was blocked", "user is deactivated", and "chat not
// found" responses to ErrObserverUnreachable.
func (e *TelegramError) Unwrap() error {
	if e.StatusCode == http.StatusForbidden {
		return ErrObserverUnreachable
	}
	if e.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Description), "chat not found") {
		return ErrObserverUnreachable
	}
	return nil
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Send implements Sender for "telegram:<chat id>" observers.
func (c *TelegramClient) Send(ctx context.Context, observer ObserverID, text string) error {
	scheme, address, err := observer.Split()
	if err != nil {
		return err
	}
	if scheme != SchemeTelegram {
		return fmt.Errorf("messaging: telegram cannot deliver to %q", observer)
	}
	chatID, err := strconv.ParseInt(address, 10, 64)
	if err != nil {
		return fmt.Errorf("messaging: invalid telegram chat id %q: %w", address, err)
	}

	payload, err := json.Marshal(map[string]any{"chat_id": chatID, "text": text})
	if err != nil {
		return fmt.Errorf("messaging: encoding telegram message: %w", err)
	}
	// The token is part of the path; it must never reach an error
	// message or log line.
	endpoint := c.baseURL + "/bot" + c.token.String() + "/sendMessage"
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("messaging: creating telegram request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("messaging: telegram sendMessage to %s failed: %w", observer, redactURLError(err))
	}
	defer response.Body.Close()

	var result telegramResponse
	if err := netutil.DecodeResponse(response.Body, &result); err != nil {
		return fmt.Errorf("messaging: telegram sendMessage returned %d with unreadable body: %w", response.StatusCode, err)
	}
	if response.StatusCode/100 == 2 && result.OK {
		c.logger.Debug("telegram message sent", "observer", observer)
		return nil
	}
	return fmt.Errorf("messaging: telegram sendMessage to %s: %w", observer, &TelegramError{
		StatusCode:  response.StatusCode,
		ErrorCode:   result.ErrorCode,
		Description: result.Description,
	})
}
