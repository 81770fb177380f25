package api

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bhieu79/Torilab-backend-test/internal/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Browser clients connect from arbitrary origins.
		return true
	},
}

// safeConn serializes writes to the underlying websocket connection.
// Reply delivery and the heartbeat scanner write concurrently, and
// gorilla/websocket permits only one writer at a time.
type safeConn struct {
	*websocket.Conn
	mu sync.Mutex
}

func (sc *safeConn) WriteJSON(v any) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.Conn.WriteJSON(v)
}

func (sc *safeConn) WriteControl(messageType int, data []byte, deadline time.Time) error {
	// gorilla allows WriteControl concurrently with other writes.
	return sc.Conn.WriteControl(messageType, data, deadline)
}

// WSHandlers holds dependencies for the websocket endpoint.
type WSHandlers struct {
	server *chat.Server
	logger *slog.Logger
}

// NewWSHandlers creates a new WSHandlers instance.
func NewWSHandlers(server *chat.Server, logger *slog.Logger) *WSHandlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandlers{server: server, logger: logger}
}

// ServeWS handles GET /ws. It upgrades the connection and runs the chat
// session until the client goes away.
func (h *WSHandlers) ServeWS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.ErrorContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	h.server.Serve(ctx, &safeConn{Conn: conn})
}
