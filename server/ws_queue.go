package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"queuesync/logger"
)

var upgrader = websocket.Upgrader{
	// Cross-origin policy is enforced at the gateway in front of this service.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const clientSendBuffer = 8

// queueChangeEvent is pushed to a user's connected clients whenever their
// queue changes, locally or on another instance. Clients re-fetch on receipt;
// the event carries no state.
type queueChangeEvent struct {
	Type      string `json:"type"`
	DID       string `json:"did"`
	Timestamp int64  `json:"timestamp"`
}

// queueClient is one websocket subscriber.
type queueClient struct {
	did  string
	conn *websocket.Conn
	send chan []byte
}

func (c *queueClient) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *queueClient) readPump(hub *QueueHub) {
	defer func() {
		hub.remove(c)
		c.conn.Close()
	}()
	// Clients don't send anything meaningful; reading just detects closure.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// QueueHub tracks websocket subscribers per user DID and fans queue change
// events out to them.
type QueueHub struct {
	mu      sync.RWMutex
	clients map[string]map[*queueClient]struct{}
}

// NewQueueHub creates an empty hub.
func NewQueueHub() *QueueHub {
	return &QueueHub{clients: make(map[string]map[*queueClient]struct{})}
}

func (h *QueueHub) add(c *queueClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c.did] == nil {
		h.clients[c.did] = make(map[*queueClient]struct{})
	}
	h.clients[c.did][c] = struct{}{}
}

func (h *QueueHub) remove(c *queueClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.clients[c.did]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(h.clients, c.did)
			}
		}
	}
}

// NotifyQueueChanged pushes a change event to the user's connected clients.
// Cheap and non-blocking: slow clients are skipped, not waited on. Sends stay
// under the read lock so remove, which closes the send channel under the
// write lock, can never interleave a close with an in-flight send.
func (h *QueueHub) NotifyQueueChanged(did string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	conns := h.clients[did]
	if len(conns) == 0 {
		return
	}

	msg, err := json.Marshal(queueChangeEvent{
		Type:      "queue_changed",
		DID:       did,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}

	for c := range conns {
		select {
		case c.send <- msg:
		default:
			logger.Warn("queue stream client send buffer full, dropping event",
				logger.String("did", did))
		}
	}
}

// QueueStreamHandler upgrades the connection and subscribes the client to its
// user's queue change events.
func (h *APIHandler) QueueStreamHandler(w http.ResponseWriter, r *http.Request) {
	did, err := GetDIDFromContext(r.Context())
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("queue stream upgrade failed", logger.ErrorField(err))
		return
	}

	client := &queueClient{
		did:  did,
		conn: conn,
		send: make(chan []byte, clientSendBuffer),
	}
	h.hub.add(client)

	go client.writePump()
	go client.readPump(h.hub)
}
