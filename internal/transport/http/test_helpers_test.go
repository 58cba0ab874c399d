package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/codehive/collab-server/internal/auth"
	"github.com/codehive/collab-server/internal/config"
	"github.com/codehive/collab-server/internal/core"
	"github.com/codehive/collab-server/internal/store"
)

const testJWTSecret = "test-secret"

func testJWTConfig() *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(testJWTSecret),
		Issuer:   "test",
		Audience: "test",
		TTL:      time.Hour,
	}
}

// startTestServer runs a full server (hub + router) on an httptest
// listener. The store may be nil.
func startTestServer(t *testing.T, st store.Store) *httptest.Server {
	t.Helper()
	return startTestServerCfg(t, st, nil)
}

// startTestServerCfg is startTestServer with a hook to adjust the
// default config before the server is built.
func startTestServerCfg(t *testing.T, st store.Store, tweak func(*config.Config)) *httptest.Server {
	t.Helper()

	hub := core.NewHub(core.NewRegistry(), st, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	cfg := config.Default()
	cfg.Addr = ":0"
	cfg.HeartbeatInterval = 0 // no pings in tests
	if tweak != nil {
		tweak(&cfg)
	}

	logger := zerolog.Nop()
	server := NewServer(hub, testJWTConfig(), st, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, token string) string {
	u := strings.Replace(ts.URL, "http", "ws", 1) + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server, name string) *websocket.Conn {
	t.Helper()

	token := ""
	if name != "" {
		var err error
		token, err = auth.GenerateToken(testJWTConfig(), name)
		if err != nil {
			t.Fatalf("generate token for %s: %v", name, err)
		}
	}

	conn, _, err := websocket.Dial(ctx, wsURL(ts, token), nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", name, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

type outboundEnvelope struct {
	Type  string          `json:"type"`
	Event string          `json:"event,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error *struct {
		Code    string `json:"code,omitempty"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

func sendInbound(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, data any) {
	t.Helper()

	payload, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s payload: %v", msgType, err)
	}
	if err := wsjson.Write(ctx, conn, map[string]any{"type": msgType, "data": json.RawMessage(payload)}); err != nil {
		t.Fatalf("send %s: %v", msgType, err)
	}
}

// expectEvent reads envelopes until one with the given event name
// arrives and returns its data.
func expectEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	for {
		var env outboundEnvelope
		if err := wsjson.Read(readCtx, conn, &env); err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		if env.Type == "event" && env.Event == event {
			return env.Data
		}
	}
}

// expectError reads envelopes until a protocol error arrives and
// returns its code.
func expectError(t *testing.T, ctx context.Context, conn *websocket.Conn) string {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	for {
		var env outboundEnvelope
		if err := wsjson.Read(readCtx, conn, &env); err != nil {
			t.Fatalf("waiting for error: %v", err)
		}
		if env.Type == "error" && env.Error != nil {
			return env.Error.Code
		}
	}
}

// expectSilence asserts no envelope with the given event name arrives
// within the window.
func expectSilence(t *testing.T, ctx context.Context, conn *websocket.Conn, event string, within time.Duration) {
	t.Helper()

	readCtx, cancel := context.WithTimeout(ctx, within)
	defer cancel()

	for {
		var env outboundEnvelope
		if err := wsjson.Read(readCtx, conn, &env); err != nil {
			return // timeout: silence confirmed
		}
		if env.Type == "event" && env.Event == event {
			t.Fatalf("unexpected %s event: %s", event, string(env.Data))
		}
	}
}
