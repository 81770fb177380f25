package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bhieu79/Torilab-backend-test/internal/media"
	"github.com/bhieu79/Torilab-backend-test/internal/store"
)

const (
	// connectedMessage confirms a successful handshake.
	connectedMessage = "Connected successfully"

	// clientIDRequired is both the error frame text and the close reason
	// for a handshake without a client ID.
	clientIDRequired = "Client ID required"

	controlWriteTimeout = 5 * time.Second
)

// handshake is the first frame a client sends.
type handshake struct {
	ClientID string `json:"client_id"`
	Timezone string `json:"timezone"`
}

// inboundFrame is a parsed client frame: message metadata plus the nested
// data object heartbeat pongs use.
type inboundFrame struct {
	Inbound
	Data struct {
		Message string `json:"message"`
	} `json:"data"`
}

// Server owns the per-connection websocket protocol: handshake, the read
// loop with its admission gates, and reply delivery.
type Server struct {
	registry  *Registry
	validator *Validator
	processor *Processor
	store     store.Store
	logger    *slog.Logger
}

// NewServer creates a Server.
func NewServer(registry *Registry, validator *Validator, processor *Processor, st store.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry:  registry,
		validator: validator,
		processor: processor,
		store:     st,
		logger:    logger,
	}
}

// Serve runs the protocol for one accepted connection until the client
// disconnects or is evicted.
func (s *Server) Serve(ctx context.Context, conn Conn) {
	s.logger.Info("websocket connection accepted")

	_, raw, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return
	}

	var hs handshake
	if err := json.Unmarshal(raw, &hs); err != nil || hs.ClientID == "" {
		_ = conn.WriteJSON(ErrorFrame(clientIDRequired))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, clientIDRequired),
			time.Now().Add(controlWriteTimeout))
		_ = conn.Close()
		return
	}
	if hs.Timezone == "" {
		hs.Timezone = "UTC"
	}

	clientID := hs.ClientID
	s.logger.Info("client identified", slog.String("client_id", clientID))

	if err := s.store.UpsertClient(ctx, clientID, hs.Timezone); err != nil {
		s.logger.Error("upsert client failed",
			slog.String("client_id", clientID),
			slog.String("error", err.Error()))
	}

	s.registry.Connect(clientID, hs.Timezone, conn)
	defer s.registry.Disconnect(clientID, conn)

	if err := conn.WriteJSON(SystemFrame(connectedMessage)); err != nil {
		s.logger.Info("connection closed before confirmation",
			slog.String("client_id", clientID))
		return
	}
	s.registry.StartHeartbeat(clientID)

	s.readLoop(ctx, clientID, hs.Timezone, conn)
}

func (s *Server) readLoop(ctx context.Context, clientID, timezone string, conn Conn) {
	for {
		frameType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Error("websocket read error",
					slog.String("client_id", clientID),
					slog.String("error", err.Error()))
			} else {
				s.logger.Info("websocket disconnected by client",
					slog.String("client_id", clientID))
			}
			return
		}

		var payload media.Payload
		if frameType == websocket.BinaryMessage {
			// A binary frame carries media bytes; the metadata frame
			// follows immediately.
			payload = media.Payload{Raw: raw}
			_, raw, err = conn.ReadMessage()
			if err != nil {
				s.logger.Info("disconnected before media metadata",
					slog.String("client_id", clientID))
				return
			}
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			s.logger.Warn("unparseable frame",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()))
			continue
		}

		if frame.Type == FrameHeartbeat {
			// Only an answered ping refreshes liveness. A client that
			// streams content but never pongs still gets evicted.
			s.registry.Heartbeat(clientID)
			continue
		}
		if frame.IsSystem {
			continue
		}

		if !s.handleContent(ctx, clientID, timezone, conn, frame.Inbound, payload) {
			return
		}
	}
}

// handleContent runs one content message through the gates and the
// processor. Returns false when the connection should be torn down.
func (s *Server) handleContent(ctx context.Context, clientID, timezone string, conn Conn, in Inbound, payload media.Payload) bool {
	if err := s.registry.StartSending(clientID); err != nil {
		_ = conn.WriteJSON(ErrorFrame(err.Error()))
		return true
	}
	defer s.registry.StopSending(clientID)

	msg, err := s.validator.Validate(clientID, timezone, in, payload)
	if err != nil {
		_ = conn.WriteJSON(ErrorFrame(err.Error()))
		return true
	}
	if msg.IsSystem {
		return true
	}

	if err := s.registry.AcquireProcessing(); err != nil {
		_ = conn.WriteJSON(ErrorFrame(err.Error()))
		return true
	}
	defer s.registry.ReleaseProcessing()

	for _, reply := range s.processor.Process(ctx, msg) {
		if err := conn.WriteJSON(reply); err != nil {
			if isDisconnectError(err) {
				s.logger.Warn("client disconnected during reply",
					slog.String("client_id", clientID))
				return false
			}
			s.logger.Error("error sending reply",
				slog.String("client_id", clientID),
				slog.String("error", err.Error()))
		}
	}
	return true
}

// isDisconnectError reports whether a write failure means the peer is
// gone rather than a transient serialization problem.
func isDisconnectError(err error) bool {
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "code 1000") ||
		strings.Contains(msg, "connection") ||
		strings.Contains(msg, "close sent")
}
