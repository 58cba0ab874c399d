package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/codehive/collab-server/internal/auth"
	"github.com/codehive/collab-server/internal/config"
	"github.com/codehive/collab-server/internal/core"
	"github.com/codehive/collab-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to core.Client.
type WSHandler struct {
	hub *core.Hub
	jwt *auth.JWTConfig
	cfg config.Config
	log *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, jwtCfg *auth.JWTConfig, cfg config.Config, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{hub: hub, jwt: jwtCfg, cfg: cfg, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewClient(uuid.NewString(), h.identify(r), h.cfg.SendBuffer)
	h.hub.RegisterClient(client)
	defer h.hub.UnregisterClient(client)
	defer close(client.Commands)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go h.heartbeat(ctx, cancel, conn, client)

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// identify resolves the display name for event attribution. A valid
// session token supplies it; anything else falls back to a generated
// guest identity. Connections are never rejected here: room-level
// authorization is upstream's concern.
func (h *WSHandler) identify(r *stdhttp.Request) string {
	token := r.URL.Query().Get("token")
	if token == "" {
		if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimPrefix(header, "Bearer ")
		}
	}
	if token != "" && h.jwt != nil && len(h.jwt.Secret) > 0 {
		claims, err := auth.ValidateToken(h.jwt, token)
		if err == nil && claims.Name != "" {
			return claims.Name
		}
		h.log.Debug().Err(err).Msg("invalid session token, using guest identity")
	}
	return "guest-" + uuid.NewString()[:8]
}

// heartbeat pings the peer on an interval; a ping unanswered within
// the timeout cancels the connection context, which tears down both
// loops and runs the implicit leave through the deferred unregister.
func (h *WSHandler) heartbeat(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, client *core.Client) {
	if h.cfg.HeartbeatInterval <= 0 {
		return
	}
	ticker := time.NewTicker(h.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, pingCancel := context.WithTimeout(ctx, h.cfg.HeartbeatTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()
			if err != nil {
				h.log.Info().Err(err).Str("client_id", client.ID).Msg("heartbeat failed, dropping connection")
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	limiter := newRateLimiter(h.cfg.EventsPerMinute)
	defer limiter.stop()

	for {
		var inbound proto.Inbound
		if err := wsjson.Read(ctx, conn, &inbound); err != nil {
			return err
		}

		cmd, protoErr := inboundToCommand(inbound)
		if protoErr != nil {
			h.log.Warn().
				Str("client_id", client.ID).
				Str("type", inbound.Type).
				Str("code", protoErr.Code).
				Msg("rejected inbound event")
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: protoErr,
			}); writeErr != nil {
				return writeErr
			}
			continue
		}

		// Only the edit stream is throttled. Join and leave stay
		// available so a limited client keeps control of its membership.
		if (cmd.Kind == core.CommandCodeChange || cmd.Kind == core.CommandCursorChange) && !limiter.allow() {
			if writeErr := wsjson.Write(ctx, conn, proto.Outbound{
				Type:  proto.OutboundTypeError,
				Error: &proto.Error{Code: core.ErrCodeRateLimited, Message: "too many events, slow down"},
			}); writeErr != nil {
				return writeErr
			}
			continue
		}
		client.Commands <- cmd
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events:
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				h.log.Error().Err(err).Str("client_id", client.ID).Msg("write ws event")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
