package devhub

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/devpool/chatsync/internal/transport"
)

const (
	sendBufferSize = 256
	writeTimeout   = 10 * time.Second
)

// client is a single hub connection. A user may hold several.
type client struct {
	userID string
	conn   *websocket.Conn
	// send is a buffered channel of outbound frames drained by writePump.
	send chan transport.Frame
	// closed is guarded by the hub mutex.
	closed bool
}

func newClient(userID string, conn *websocket.Conn) *client {
	return &client{
		userID: userID,
		conn:   conn,
		send:   make(chan transport.Frame, sendBufferSize),
	}
}

func (c *client) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// hub tracks live connections per user and fans frames out to them.
type hub struct {
	mu      sync.RWMutex
	clients map[string][]*client
	logger  *slog.Logger
}

func newHub(logger *slog.Logger) *hub {
	return &hub{
		clients: make(map[string][]*client),
		logger:  logger,
	}
}

// register adds c and reports whether it is the user's first connection.
func (h *hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	first := len(h.clients[c.userID]) == 0
	h.clients[c.userID] = append(h.clients[c.userID], c)
	h.logger.Info("Client registered", "user_id", c.userID, "connections", len(h.clients[c.userID]))
	return first
}

// unregister removes c and reports whether it was the user's last connection.
func (h *hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if i := slices.Index(clients, c); i >= 0 {
		h.clients[c.userID] = slices.Delete(clients, i, i+1)
	}
	c.closeLocked()

	last := len(h.clients[c.userID]) == 0
	if last {
		delete(h.clients, c.userID)
	}
	h.logger.Info("Client unregistered", "user_id", c.userID, "last", last)
	return last
}

func (h *hub) isOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID]) > 0
}

func (h *hub) online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// sendToUsers queues f on every connection of the listed users except skip.
func (h *hub) sendToUsers(userIDs []string, f transport.Frame, skip string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, id := range userIDs {
		if id == skip {
			continue
		}
		for _, c := range h.clients[id] {
			h.enqueueLocked(c, f)
		}
	}
}

// broadcast queues f on every connection except those of skip.
func (h *hub) broadcast(f transport.Frame, skip string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, clients := range h.clients {
		if id == skip {
			continue
		}
		for _, c := range clients {
			h.enqueueLocked(c, f)
		}
	}
}

// deliver queues f on c unless c has been unregistered.
func (h *hub) deliver(c *client, f transport.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !c.closed {
		h.enqueueLocked(c, f)
	}
}

func (h *hub) enqueueLocked(c *client, f transport.Frame) {
	select {
	case c.send <- f:
	default:
		h.logger.Warn("Client send channel full, dropping frame", "user_id", c.userID, "target", f.Target)
	}
}

// closeAll drops every connection.
func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, clients := range h.clients {
		for _, c := range clients {
			c.conn.Close(websocket.StatusGoingAway, "server shutting down")
			c.closeLocked()
		}
		delete(h.clients, id)
	}
}

// writePump drains c.send to the socket until the channel closes.
func (h *hub) writePump(ctx context.Context, c *client) {
	logger := h.logger
	for f := range c.send {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := transport.WriteFrame(wctx, c.conn, f)
		cancel()
		if err != nil {
			logger.Debug("WebSocket write error", "user_id", c.userID, "error", err)
			c.conn.CloseNow()
			return
		}
	}
}

// readPump hands every invocation frame to invoke and queues its completion.
// It returns when the connection closes.
func (h *hub) readPump(ctx context.Context, c *client, invoke func(*client, transport.Frame) (any, error)) {
	logger := h.logger
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway || errors.Is(err, io.EOF) {
				logger.Debug("WebSocket closed by client", "user_id", c.userID)
			} else {
				logger.Debug("WebSocket read error", "user_id", c.userID, "error", err)
			}
			return
		}

		var f transport.Frame
		if err := json.Unmarshal(data, &f); err != nil || f.Type != transport.FrameInvocation {
			logger.Warn("Ignoring malformed frame", "user_id", c.userID)
			continue
		}

		reply := transport.Frame{Type: transport.FrameCompletion, InvocationID: f.InvocationID}
		result, err := invoke(c, f)
		if err != nil {
			reply.Error = err.Error()
		} else if result != nil {
			if reply.Result, err = json.Marshal(result); err != nil {
				reply.Error = err.Error()
			}
		}

		h.deliver(c, reply)
	}
}
