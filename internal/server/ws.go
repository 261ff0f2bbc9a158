package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/gorilla/websocket"

	"github.com/ayusman/myomod/internal/app"
)

// Stream encodings selected with ?format=.
const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

const (
	// clientQueue is the number of snapshots buffered per client. A client
	// that falls further behind misses snapshots.
	clientQueue = 8
	writeWait   = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

type streamClient struct {
	conn   *websocket.Conn
	format string
	send   chan app.Snapshot
	done   chan struct{}
}

// StreamHandler broadcasts every published pose snapshot to WebSocket
// clients, as JSON text or CBOR binary messages.
type StreamHandler struct {
	app     *app.App
	encMode cbor.EncMode
	remove  func()

	mu      sync.RWMutex
	clients map[*streamClient]bool

	dropped atomic.Uint64
}

// NewStreamHandler creates a StreamHandler listening to a.
func NewStreamHandler(a *app.App) *StreamHandler {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}

	h := &StreamHandler{
		app:     a,
		encMode: em,
		clients: make(map[*streamClient]bool),
	}
	h.remove = a.AddListener(h.broadcast)
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatCBOR {
		http.Error(w, "format must be json or cbor", http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := &streamClient{
		conn:   conn,
		format: format,
		send:   make(chan app.Snapshot, clientQueue),
		done:   make(chan struct{}),
	}
	go h.writeLoop(c)

	// New clients start from the current pose
	if snap := h.app.LatestSnapshot(); snap != nil {
		c.send <- *snap
	}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()

	close(c.send)
	<-c.done
	conn.Close()
}

// writeLoop encodes and writes the queued snapshots of one client. After a
// write error the connection is closed and the queue is drained.
func (h *StreamHandler) writeLoop(c *streamClient) {
	defer close(c.done)

	failed := false
	for snap := range c.send {
		if failed {
			continue
		}
		msgType, msg, err := h.encode(c.format, snap)
		if err != nil {
			log.Printf("stream: encode snapshot: %v", err)
			continue
		}
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(msgType, msg); err != nil {
			failed = true
			c.conn.Close()
		}
	}
}

func (h *StreamHandler) encode(format string, snap app.Snapshot) (int, []byte, error) {
	if format == FormatCBOR {
		b, err := h.encMode.Marshal(snap)
		return websocket.BinaryMessage, b, err
	}
	b, err := json.Marshal(snap)
	return websocket.TextMessage, b, err
}

// broadcast queues snap for every client without blocking the tick loop.
func (h *StreamHandler) broadcast(snap app.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.send <- snap:
		default:
			if d := h.dropped.Add(1); d == 1 || d%1000 == 0 {
				log.Printf("stream: slow client, %d snapshots dropped", d)
			}
		}
	}
}

// Clients returns the number of connected clients.
func (h *StreamHandler) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close stops listening to the app and disconnects every client.
func (h *StreamHandler) Close() {
	h.remove()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.conn.Close()
	}
}
