package chat

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Admission limits and heartbeat timing.
const (
	// MaxSending caps how many clients may hold a sending slot at once.
	MaxSending = 50

	// MaxProcessing caps how many messages may be in the pipeline at once.
	MaxProcessing = 500

	// HeartbeatInterval is how often idle connections are pinged.
	HeartbeatInterval = 30 * time.Second

	// HeartbeatTimeout is how long a connection may go without activity
	// before it is evicted.
	HeartbeatTimeout = 60 * time.Second
)

// Admission errors carry the exact text sent to clients.
var (
	ErrTooManySending = errors.New(
		"Too many clients sending messages simultaneously (max 50). Please try again later.")
	ErrAtCapacity = errors.New(
		"Server at maximum message processing capacity (500). Please try again later.")
)

// Conn is the subset of a websocket connection the registry and session
// loop need. *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	Close() error
}

// session is the registry's per-connection state.
type session struct {
	conn          Conn
	timezone      string
	lastHeartbeat time.Time
	sending       bool
}

// Registry tracks connected clients and enforces the two admission gates.
// A single mutex guards all state; connection I/O happens outside the lock.
type Registry struct {
	mu              sync.Mutex
	sessions        map[string]*session
	sendingCount    int
	processingCount int

	logger  *slog.Logger
	metrics *Metrics

	scannerOnce sync.Once
	stopScanner chan struct{}

	// injectable for tests
	now func() time.Time
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger, metrics *Metrics) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions:    make(map[string]*session),
		logger:      logger,
		metrics:     metrics,
		stopScanner: make(chan struct{}),
		now:         time.Now,
	}
}

// Connect registers a connection under clientID. A duplicate handshake
// supersedes the previous session: the old connection is closed and the
// new one takes over the identity.
func (r *Registry) Connect(clientID, timezone string, conn Conn) {
	r.mu.Lock()
	old := r.sessions[clientID]
	if old != nil && old.sending {
		r.sendingCount--
	}
	r.sessions[clientID] = &session{
		conn:          conn,
		timezone:      timezone,
		lastHeartbeat: r.now(),
	}
	active := len(r.sessions)
	r.mu.Unlock()

	if old != nil {
		_ = old.conn.Close()
		r.logger.Info("superseded existing connection", slog.String("client_id", clientID))
	}
	if r.metrics != nil {
		r.metrics.SetActiveConnections(active)
	}
}

// Disconnect removes the connection for clientID if conn still owns the
// identity, releasing any held sending slot. Idempotent.
func (r *Registry) Disconnect(clientID string, conn Conn) {
	r.mu.Lock()
	s := r.sessions[clientID]
	if s == nil || s.conn != conn {
		r.mu.Unlock()
		return
	}
	if s.sending {
		r.sendingCount--
	}
	delete(r.sessions, clientID)
	active := len(r.sessions)
	sending := r.sendingCount
	r.mu.Unlock()

	if err := conn.Close(); err != nil && !isAlreadyClosed(err) {
		r.logger.Debug("close connection", slog.String("client_id", clientID), slog.String("error", err.Error()))
	}
	if r.metrics != nil {
		r.metrics.SetActiveConnections(active)
		r.metrics.SetSendingClients(sending)
	}
	r.logger.Info("client disconnected", slog.String("client_id", clientID))
}

// StartSending acquires a sending slot for clientID. A client holding a
// slot does not consume a second one. Returns ErrTooManySending when the
// cap is reached.
func (r *Registry) StartSending(clientID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessions[clientID]
	if s == nil {
		return errors.New("client not connected")
	}
	if s.sending {
		return nil
	}
	if r.sendingCount >= MaxSending {
		return ErrTooManySending
	}
	s.sending = true
	r.sendingCount++
	if r.metrics != nil {
		r.metrics.SetSendingClients(r.sendingCount)
	}
	return nil
}

// StopSending releases clientID's sending slot. Idempotent.
func (r *Registry) StopSending(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.sessions[clientID]
	if s == nil || !s.sending {
		return
	}
	s.sending = false
	r.sendingCount--
	if r.metrics != nil {
		r.metrics.SetSendingClients(r.sendingCount)
	}
}

// AcquireProcessing claims a slot in the processing pipeline. Returns
// ErrAtCapacity when the pipeline is full.
func (r *Registry) AcquireProcessing() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.processingCount >= MaxProcessing {
		return ErrAtCapacity
	}
	r.processingCount++
	if r.metrics != nil {
		r.metrics.SetMessagesProcessing(r.processingCount)
	}
	return nil
}

// ReleaseProcessing returns a processing slot. Saturates at zero.
func (r *Registry) ReleaseProcessing() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.processingCount > 0 {
		r.processingCount--
	}
	if r.metrics != nil {
		r.metrics.SetMessagesProcessing(r.processingCount)
	}
}

// Heartbeat records liveness for clientID. Any inbound frame counts.
func (r *Registry) Heartbeat(clientID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s := r.sessions[clientID]; s != nil {
		s.lastHeartbeat = r.now()
	}
}

// StartHeartbeat arms liveness tracking for clientID and lazily starts
// the background scanner on first use.
func (r *Registry) StartHeartbeat(clientID string) {
	r.Heartbeat(clientID)
	r.scannerOnce.Do(func() {
		go r.runScanner()
	})
}

// ActiveConnections returns the number of registered connections.
func (r *Registry) ActiveConnections() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// SendingCount returns the number of held sending slots.
func (r *Registry) SendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sendingCount
}

// ProcessingCount returns the current pipeline depth.
func (r *Registry) ProcessingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.processingCount
}

// Close stops the heartbeat scanner and closes every connection.
func (r *Registry) Close() {
	close(r.stopScanner)

	r.mu.Lock()
	conns := make([]Conn, 0, len(r.sessions))
	for _, s := range r.sessions {
		conns = append(conns, s.conn)
	}
	r.sessions = make(map[string]*session)
	r.sendingCount = 0
	r.mu.Unlock()

	for _, c := range conns {
		_ = c.Close()
	}
	if r.metrics != nil {
		r.metrics.SetActiveConnections(0)
		r.metrics.SetSendingClients(0)
	}
}

func (r *Registry) runScanner() {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopScanner:
			return
		case <-ticker.C:
			r.scan()
		}
	}
}

// scan evicts connections silent beyond HeartbeatTimeout and pings those
// silent beyond HeartbeatInterval. Snapshots under the lock, does I/O
// outside it.
func (r *Registry) scan() {
	now := r.now()

	type target struct {
		clientID string
		conn     Conn
	}
	var stale, idle []target

	r.mu.Lock()
	for id, s := range r.sessions {
		silent := now.Sub(s.lastHeartbeat)
		switch {
		case silent > HeartbeatTimeout:
			stale = append(stale, target{id, s.conn})
		case silent > HeartbeatInterval:
			idle = append(idle, target{id, s.conn})
		}
	}
	r.mu.Unlock()

	for _, t := range stale {
		r.logger.Warn("evicting stale connection", slog.String("client_id", t.clientID))
		if r.metrics != nil {
			r.metrics.IncHeartbeatEvictions()
		}
		r.Disconnect(t.clientID, t.conn)
	}

	for _, t := range idle {
		if err := t.conn.WriteJSON(HeartbeatFrame("ping", now)); err != nil {
			r.logger.Warn("heartbeat ping failed, evicting",
				slog.String("client_id", t.clientID),
				slog.String("error", err.Error()))
			if r.metrics != nil {
				r.metrics.IncHeartbeatEvictions()
			}
			r.Disconnect(t.clientID, t.conn)
		}
	}
}

// isAlreadyClosed reports whether err indicates the connection was closed
// before we got to it.
func isAlreadyClosed(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "already closed") ||
		strings.Contains(msg, "websocket: close sent")
}
