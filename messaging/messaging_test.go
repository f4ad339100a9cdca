// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/nodewatch/lib/clock"
	"github.com/bureau-foundation/nodewatch/lib/secret"
)

func testBuffer(t *testing.T, value string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.FromString(value)
	if err != nil {
		t.Fatalf("creating test buffer: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

// --- ObserverID ---

func TestParseObserverID(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"telegram:12345", false},
		{"telegram:-100200300", false},
		{"matrix:!abc:example.org", false},
		{"sms:+15550100", true},
		{"telegram:", true},
		{"12345", true},
		{":x", true},
	}
	for _, test := range tests {
		_, err := ParseObserverID(test.input)
		if (err != nil) != test.wantErr {
			t.Errorf("ParseObserverID(%q) error = %v, wantErr %v", test.input, err, test.wantErr)
		}
	}
}

func TestObserverIDSplitKeepsColonsInAddress(t *testing.T) {
	scheme, address, err := ObserverID("matrix:!room:server.test").Split()
	if err != nil {
		t.Fatal(err)
	}
	if scheme != "matrix" || address != "!room:server.test" {
		t.Errorf("Split = %q, %q", scheme, address)
	}
}

// --- Telegram ---

func TestTelegramSend(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/bot123:secret/sendMessage" {
			t.Errorf("path = %q", request.URL.Path)
		}
		if err := json.NewDecoder(request.Body).Decode(&received); err != nil {
			t.Errorf("decoding body: %v", err)
		}
		writer.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	defer server.Close()

	client, err := NewTelegramClient(TelegramConfig{BaseURL: server.URL, Token: testBuffer(t, "123:secret")})
	if err != nil {
		t.Fatal(err)
	}
	if err := client.Send(context.Background(), "telegram:4242", "Node 7 has come online"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if received["chat_id"] != float64(4242) {
		t.Errorf("chat_id = %v, want 4242", received["chat_id"])
	}
	if received["text"] != "Node 7 has come online" {
		t.Errorf("text = %v", received["text"])
	}
}

func TestTelegramBlockedIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusForbidden)
		writer.Write([]byte(`{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`))
	}))
	defer server.Close()

	client, _ := NewTelegramClient(TelegramConfig{BaseURL: server.URL, Token: testBuffer(t, "t")})
	err := client.Send(context.Background(), "telegram:1", "x")
	if !errors.Is(err, ErrObserverUnreachable) {
		t.Fatalf("err = %v, want ErrObserverUnreachable", err)
	}
	var telegramErr *TelegramError
	if !errors.As(err, &telegramErr) || telegramErr.ErrorCode != 403 {
		t.Errorf("err = %v, want *TelegramError with code 403", err)
	}
}

func TestTelegramServerErrorIsNotUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusTooManyRequests)
		writer.Write([]byte(`{"ok":false,"error_code":429,"description":"Too Many Requests"}`))
	}))
	defer server.Close()

	client, _ := NewTelegramClient(TelegramConfig{BaseURL: server.URL, Token: testBuffer(t, "t")})
	err := client.Send(context.Background(), "telegram:1", "x")
	if err == nil {
		t.Fatal("Send succeeded on 429")
	}
	if errors.Is(err, ErrObserverUnreachable) {
		t.Error("429 must not be classified as unreachable")
	}
}

func TestTelegramTransportErrorOmitsToken(t *testing.T) {
	client, _ := NewTelegramClient(TelegramConfig{
		BaseURL: "http://127.0.0.1:1",
		Token:   testBuffer(t, "999:very-secret"),
	})
	err := client.Send(context.Background(), "telegram:1", "x")
	if err == nil {
		t.Fatal("Send to closed port succeeded")
	}
	if strings.Contains(err.Error(), "very-secret") {
		t.Errorf("error leaks token: %v", err)
	}
}

func TestTelegramRejectsWrongScheme(t *testing.T) {
	client, _ := NewTelegramClient(TelegramConfig{Token: testBuffer(t, "t")})
	if err := client.Send(context.Background(), "matrix:!r:s", "x"); err == nil {
		t.Error("telegram client accepted a matrix observer")
	}
	if err := client.Send(context.Background(), "telegram:abc", "x"); err == nil {
		t.Error("telegram client accepted a non-numeric chat id")
	}
}

// --- Matrix ---

func TestMatrixSend(t *testing.T) {
	var (
		mu    sync.Mutex
		paths []string
		auth  string
		body  noticeContent
	)
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if request.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", request.Method)
		}
		paths = append(paths, request.URL.EscapedPath())
		auth = request.Header.Get("Authorization")
		json.NewDecoder(request.Body).Decode(&body)
		writer.Write([]byte(`{"event_id":"$e"}`))
	}))
	defer server.Close()

	client, err := NewMatrixClient(MatrixConfig{
		HomeserverURL: server.URL,
		AccessToken:   testBuffer(t, "syt_token"),
		Clock:         clock.Fake(time.Unix(1700000000, 0)),
	})
	if err != nil {
		t.Fatal(err)
	}
	for range 2 {
		if err := client.Send(context.Background(), "matrix:!ops:example.org", "Node 42 has gone offline"); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if auth != "Bearer syt_token" {
		t.Errorf("Authorization = %q", auth)
	}
	if body.MsgType != "m.notice" || body.Body != "Node 42 has gone offline" {
		t.Errorf("body = %+v", body)
	}
	wantPrefix := "/_matrix/client/v3/rooms/%21ops:example.org/send/m.room.message/nodewatch-1700000000000-"
	for _, path := range paths {
		if !strings.HasPrefix(path, wantPrefix) {
			t.Errorf("path = %q, want prefix %q", path, wantPrefix)
		}
	}
	if len(paths) == 2 && paths[0] == paths[1] {
		t.Error("transaction IDs repeated")
	}
}

func TestMatrixForbiddenIsUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusForbidden)
		writer.Write([]byte(`{"errcode":"M_FORBIDDEN","error":"not in room"}`))
	}))
	defer server.Close()

	client, _ := NewMatrixClient(MatrixConfig{HomeserverURL: server.URL, AccessToken: testBuffer(t, "t")})
	err := client.Send(context.Background(), "matrix:!gone:example.org", "x")
	if !errors.Is(err, ErrObserverUnreachable) {
		t.Fatalf("err = %v, want ErrObserverUnreachable", err)
	}
	var matrixErr *MatrixError
	if !errors.As(err, &matrixErr) || matrixErr.StatusCode != http.StatusForbidden {
		t.Errorf("err = %v, want *MatrixError with status 403", err)
	}
}

func TestMatrixRateLimitIsNotUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusTooManyRequests)
		writer.Write([]byte(`{"errcode":"M_LIMIT_EXCEEDED","error":"slow down"}`))
	}))
	defer server.Close()

	client, _ := NewMatrixClient(MatrixConfig{HomeserverURL: server.URL, AccessToken: testBuffer(t, "t")})
	err := client.Send(context.Background(), "matrix:!r:s", "x")
	if err == nil || errors.Is(err, ErrObserverUnreachable) {
		t.Errorf("err = %v, want a non-unreachable failure", err)
	}
}

func TestNewMatrixClientValidation(t *testing.T) {
	if _, err := NewMatrixClient(MatrixConfig{AccessToken: testBuffer(t, "t")}); err == nil {
		t.Error("missing homeserver accepted")
	}
	if _, err := NewMatrixClient(MatrixConfig{HomeserverURL: "http://x"}); err == nil {
		t.Error("missing token accepted")
	}
}

// --- Router ---

type recordingSender struct {
	observers []ObserverID
}

func (r *recordingSender) Send(_ context.Context, observer ObserverID, _ string) error {
	r.observers = append(r.observers, observer)
	return nil
}

func TestRouterDispatchesByScheme(t *testing.T) {
	telegram := &recordingSender{}
	matrix := &recordingSender{}
	router := NewRouter()
	router.Handle(SchemeTelegram, telegram)
	router.Handle(SchemeMatrix, matrix)

	ctx := context.Background()
	for _, observer := range []ObserverID{"telegram:1", "matrix:!a:b", "telegram:2"} {
		if err := router.Send(ctx, observer, "x"); err != nil {
			t.Fatalf("Send(%s): %v", observer, err)
		}
	}
	if len(telegram.observers) != 2 || len(matrix.observers) != 1 {
		t.Errorf("telegram got %v, matrix got %v", telegram.observers, matrix.observers)
	}
	if err := router.Send(ctx, "sms:1", "x"); err == nil {
		t.Error("Send to unconfigured scheme succeeded")
	}
}
