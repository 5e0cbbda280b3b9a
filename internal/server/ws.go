package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/RitamPal26/ScribeAI/internal/auth"
	"github.com/RitamPal26/ScribeAI/internal/config"
	"github.com/RitamPal26/ScribeAI/internal/metrics"
	"github.com/RitamPal26/ScribeAI/internal/protocol"
	"github.com/RitamPal26/ScribeAI/internal/session"
)

const (
	// Outbound queue depth per connection. Live transcription events are
	// small; a slow consumer drops events rather than stalling the group.
	sendQueueSize = 64

	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	maxFrameSize = 4 << 20 // base64 audio chunks dominate frame size
)

// connection is one authenticated WebSocket client. All writes go through
// the send queue; the write pump is the connection's single writer.
type connection struct {
	id     string
	userID string
	ws     *websocket.Conn
	send   chan []byte
}

// WSServer accepts WebSocket connections and dispatches protocol requests
// to the recording session coordinator.
type WSServer struct {
	logger      *slog.Logger
	config      *config.ServerConfig
	auth        *auth.Authenticator
	coordinator *session.Coordinator
	hub         *Hub
	metrics     *metrics.Metrics
	upgrader    websocket.Upgrader
	server      *http.Server
}

// NewWSServer creates the WebSocket endpoint server.
func NewWSServer(logger *slog.Logger, cfg *config.ServerConfig, authenticator *auth.Authenticator,
	coordinator *session.Coordinator, hub *Hub, m *metrics.Metrics) *WSServer {

	s := &WSServer{
		logger:      logger,
		config:      cfg,
		auth:        authenticator,
		coordinator: coordinator,
		hub:         hub,
		metrics:     m,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The endpoint is token-authenticated; origin policy is left
			// to the deployment's proxy.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	s.server = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port),
		Handler:     mux,
		ReadTimeout: 0, // long-lived connections, deadlines managed per message
	}

	return s
}

// Start begins accepting WebSocket connections.
func (s *WSServer) Start() error {
	s.logger.Info("Starting WebSocket server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("WebSocket server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the WebSocket server.
func (s *WSServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping WebSocket server...")
	return s.server.Shutdown(ctx)
}

// handleWS authenticates the handshake, upgrades the connection, and runs
// the read loop until the client goes away.
func (s *WSServer) handleWS(w http.ResponseWriter, r *http.Request) {
	identity, err := s.authenticate(r)
	if err != nil {
		s.logger.Warn("WebSocket handshake rejected",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("WebSocket upgrade failed",
			slog.String("remote", r.RemoteAddr),
			slog.String("error", err.Error()),
		)
		return
	}

	c := &connection{
		id:     uuid.NewString(),
		userID: identity.UserID,
		ws:     ws,
		send:   make(chan []byte, sendQueueSize),
	}

	s.hub.Register(c)
	s.metrics.ConnectionsTotal.Inc()
	s.metrics.ConnectionsActive.Inc()

	s.logger.Info("WebSocket connection established",
		slog.String("connection_id", c.id),
		slog.String("user_id", c.userID),
		slog.String("remote", r.RemoteAddr),
	)

	go s.writePump(c)
	s.readLoop(c)
}

// authenticate resolves the caller identity from the Authorization header
// or, for browser clients that cannot set headers on WebSocket handshakes,
// the token query parameter.
func (s *WSServer) authenticate(r *http.Request) (auth.Identity, error) {
	token := ""
	if header := r.Header.Get("Authorization"); header != "" {
		token = strings.TrimPrefix(header, "Bearer ")
	}
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	return s.auth.Verify(token)
}

// readLoop consumes frames until the connection drops, dispatching each
// request to the coordinator and queueing exactly one ack per request id.
func (s *WSServer) readLoop(c *connection) {
	defer func() {
		s.coordinator.Disconnect(session.Context{ConnectionID: c.id, UserID: c.userID}, "connection closed")
		s.hub.Unregister(c)
		s.metrics.ConnectionsActive.Dec()
		c.ws.Close()

		s.logger.Info("WebSocket connection closed",
			slog.String("connection_id", c.id),
			slog.String("user_id", c.userID),
		)
	}()

	c.ws.SetReadLimit(maxFrameSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("WebSocket read error",
					slog.String("connection_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}

		s.metrics.FramesReceived.Inc()

		frame, err := protocol.ParseFrame(data)
		if err != nil {
			s.metrics.ParseErrors.Inc()
			s.logger.Warn("Dropping malformed frame",
				slog.String("connection_id", c.id),
				slog.String("error", err.Error()),
			)
			continue
		}

		if frame.Type != protocol.FrameRequest {
			s.metrics.ParseErrors.Inc()
			continue
		}

		s.queueFrame(c, s.dispatch(c, frame))
	}
}

// dispatch routes one request to the coordinator and builds its ack.
func (s *WSServer) dispatch(c *connection, frame *protocol.Frame) *protocol.Frame {
	caller := session.Context{ConnectionID: c.id, UserID: c.userID}
	ctx := context.Background()

	switch frame.Action {
	case protocol.ActionStartRecording:
		var payload protocol.StartRecordingPayload
		if err := frame.DecodePayload(&payload); err != nil {
			return protocol.NewErrorAck(frame.ID, protocol.CodeBadRequest, err.Error(), false)
		}
		sessionID, err := s.coordinator.Start(ctx, caller, payload.Source, payload.Title)
		if err != nil {
			return s.errorAck(frame.ID, err)
		}
		ack, err := protocol.NewAck(frame.ID, protocol.StartRecordingAck{SessionID: sessionID})
		if err != nil {
			return protocol.NewErrorAck(frame.ID, protocol.CodeInternal, err.Error(), false)
		}
		return ack

	case protocol.ActionAudioChunk:
		var payload protocol.AudioChunkPayload
		if err := frame.DecodePayload(&payload); err != nil {
			return protocol.NewErrorAck(frame.ID, protocol.CodeBadRequest, err.Error(), false)
		}
		if err := s.coordinator.Chunk(ctx, caller, &payload); err != nil {
			return s.errorAck(frame.ID, err)
		}
		return s.okAck(frame.ID)

	case protocol.ActionPauseRecording:
		var payload protocol.SessionRefPayload
		if err := frame.DecodePayload(&payload); err != nil {
			return protocol.NewErrorAck(frame.ID, protocol.CodeBadRequest, err.Error(), false)
		}
		if err := s.coordinator.Pause(ctx, caller, payload.SessionID); err != nil {
			return s.errorAck(frame.ID, err)
		}
		return s.okAck(frame.ID)

	case protocol.ActionResumeRecording:
		var payload protocol.SessionRefPayload
		if err := frame.DecodePayload(&payload); err != nil {
			return protocol.NewErrorAck(frame.ID, protocol.CodeBadRequest, err.Error(), false)
		}
		if err := s.coordinator.Resume(ctx, caller, payload.SessionID); err != nil {
			return s.errorAck(frame.ID, err)
		}
		return s.okAck(frame.ID)

	case protocol.ActionStopRecording:
		var payload protocol.StopRecordingPayload
		if err := frame.DecodePayload(&payload); err != nil {
			return protocol.NewErrorAck(frame.ID, protocol.CodeBadRequest, err.Error(), false)
		}
		if err := s.coordinator.Stop(ctx, caller, payload.SessionID, payload.Duration); err != nil {
			return s.errorAck(frame.ID, err)
		}
		return s.okAck(frame.ID)

	default:
		return protocol.NewErrorAck(frame.ID, protocol.CodeBadRequest,
			fmt.Sprintf("unknown action %q", frame.Action), false)
	}
}

func (s *WSServer) okAck(id string) *protocol.Frame {
	ack, err := protocol.NewAck(id, nil)
	if err != nil {
		return protocol.NewErrorAck(id, protocol.CodeInternal, err.Error(), false)
	}
	return ack
}

// errorAck maps a coordinator error to a failure acknowledgement.
func (s *WSServer) errorAck(id string, err error) *protocol.Frame {
	if ackErr, ok := err.(*protocol.AckError); ok {
		return protocol.NewErrorAck(id, ackErr.Code, ackErr.Message, ackErr.Retryable)
	}
	return protocol.NewErrorAck(id, protocol.CodeInternal, err.Error(), false)
}

// queueFrame marshals a frame onto the connection's outbound queue. Acks are
// never dropped: a full queue blocks the read loop, applying backpressure to
// the sender.
func (s *WSServer) queueFrame(c *connection, frame *protocol.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		s.logger.Error("Failed to marshal ack frame",
			slog.String("connection_id", c.id),
			slog.String("error", err.Error()),
		)
		return
	}

	defer func() {
		// The hub closes the send queue on unregister; a request racing
		// the close is abandoned with the connection.
		recover()
	}()

	c.send <- data
	s.metrics.FramesSent.Inc()
}

// writePump is the single writer for a connection. It drains the send queue
// and keeps the connection alive with periodic pings.
func (s *WSServer) writePump(c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	writeTimeout := s.config.GetWriteTimeout()

	for {
		select {
		case data, ok := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
