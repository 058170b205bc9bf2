// Package delivery pushes overlay events and stream artifacts to connected
// clients over the /livestream WebSocket.
package delivery

import (
	"encoding/json"
	"net/http"
	"net/url"
	"path/filepath"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"livecast/internal/logging"
)

// EventType classifies hub events.
type EventType string

const (
	EventArtifact   EventType = "artifact"
	EventNowPlaying EventType = "now_playing"
	EventSceneDone  EventType = "scene_done"
	EventCollection EventType = "collection"
)

// Event is one message sent to overlay clients.
type Event struct {
	Type            EventType `json:"type"`
	Scene           string    `json:"scene,omitempty"`
	Name            string    `json:"name,omitempty"`
	URL             string    `json:"url,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	At              time.Time `json:"at"`
}

// Publisher accepts events for broadcast.
type Publisher interface {
	Publish(ev Event)
}

// ArtifactsPrefix is the route delivered files are served under.
const ArtifactsPrefix = "/artifacts/"

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	defaultClientBuffer = 32
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub is the overlay HTTP handler. It serves GET /livestream as a WebSocket
// and GET /artifacts/<file> from the artifacts directory.
type Hub struct {
	mu       sync.Mutex
	clients  map[*client]struct{}
	closed   bool
	handlers sync.WaitGroup

	buffer   int
	upgrader websocket.Upgrader
	mux      *http.ServeMux
}

// NewHub creates a hub serving files from artifactsDir.
func NewHub(artifactsDir string) *Hub {
	h := &Hub{
		clients: make(map[*client]struct{}),
		buffer:  defaultClientBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Overlays are local browser sources with arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	h.mux.HandleFunc("/livestream", h.handleLivestream)
	h.mux.Handle(ArtifactsPrefix, http.StripPrefix(ArtifactsPrefix, http.FileServer(http.Dir(artifactsDir))))
	return h
}

// ServeHTTP implements http.Handler.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// ArtifactURL returns the hub path a delivered file is served at.
func ArtifactURL(path string) string {
	return ArtifactsPrefix + url.PathEscape(filepath.Base(path))
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish broadcasts ev to every client without blocking. A client whose
// buffer is full loses its oldest queued message.
func (h *Hub) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	msg, err := json.Marshal(ev)
	if err != nil {
		logging.DeliveryWarn("Dropping unencodable event %s: %v", ev.Type, err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
			continue
		default:
		}
		select {
		case <-c.send:
			logging.DeliveryDebug("Client buffer full, dropped oldest message")
		default:
		}
		select {
		case c.send <- msg:
		default:
		}
	}
	logging.DeliveryDebug("Published %s %s to %d clients", ev.Type, ev.Name, len(h.clients))
}

// Close disconnects every client and waits for their handlers to return.
// Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		_ = c.conn.Close()
	}
	h.mu.Unlock()
	h.handlers.Wait()
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.handlers.Add(1)
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) handleLivestream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.DeliveryWarn("WebSocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, h.buffer)}
	if !h.register(c) {
		_ = conn.Close()
		return
	}
	defer h.handlers.Done()
	logging.Delivery("Overlay client connected from %s", r.RemoteAddr)

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()

	c.readPump()
	h.unregister(c)
	<-done
	_ = conn.Close()
	logging.Delivery("Overlay client %s disconnected", r.RemoteAddr)
}

// readPump discards client messages and returns when the connection ends.
func (c *client) readPump() {
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				_ = c.conn.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = c.conn.Close()
				return
			}
		}
	}
}
