package notifications

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ErrNotConnected is returned when the recipient has no open socket
var ErrNotConnected = errors.New("recipient is not connected")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// writeWait bounds a single push to a slow client
const writeWait = 10 * time.Second

// client is one open socket. gorilla/websocket allows a single writer per
// connection, so every write goes through writeMu.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteJSON(v)
}

// Hub keeps one websocket per connected employee and pushes notices to it
type Hub struct {
	clients map[string]*client
	mutex   sync.Mutex
}

// NewHub returns an empty Hub
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*client)}
}

// Serve upgrades the request and registers the socket for employeeID until
// the client goes away
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, employeeID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade error", "error", err)
		return
	}

	c := &client{conn: conn}
	h.mutex.Lock()
	if old, ok := h.clients[employeeID]; ok {
		old.conn.Close()
	}
	h.clients[employeeID] = c
	h.mutex.Unlock()
	zap.S().Debugw("employee connected to notifications", "employeeID", employeeID)

	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	h.remove(employeeID, c)
	zap.S().Debugw("employee disconnected from notifications", "employeeID", employeeID)
}

func (h *Hub) remove(employeeID string, c *client) {
	h.mutex.Lock()
	if h.clients[employeeID] == c {
		delete(h.clients, employeeID)
	}
	h.mutex.Unlock()
	c.conn.Close()
}

// Connected reports whether employeeID has an open socket
func (h *Hub) Connected(employeeID string) bool {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	_, ok := h.clients[employeeID]
	return ok
}

// Send implements Dispatcher
func (h *Hub) Send(ctx context.Context, to Recipient, msg Message) error {
	h.mutex.Lock()
	c, ok := h.clients[to.ID]
	h.mutex.Unlock()
	if !ok {
		return ErrNotConnected
	}
	err := c.writeJSON(map[string]interface{}{
		"event": "new_notification",
		"data":  msg,
	})
	if err != nil {
		h.remove(to.ID, c)
		return err
	}
	return nil
}
