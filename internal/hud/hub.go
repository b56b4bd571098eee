// Package hud serves the --display preview as a push-based WebSocket
// viewer: the collector pushes annotated JPEG frames to a Hub and any
// number of browser clients render them through a
// register/unregister/broadcast loop.
package hud

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans one camera's annotated frame stream out to any number of
// connected viewers. A full client buffer drops frames for that
// viewer rather than blocking the broadcaster.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

// NewHub constructs an idle Hub; call Run in a goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 4),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run drives the hub's event loop until stop is closed.
func (h *Hub) Run(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			h.mu.Lock()
			for c := range h.clients {
				close(c.send)
			}
			h.clients = nil
			h.mu.Unlock()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()

		case frame := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- frame:
				default:
					slog.Debug("hud client buffer full, dropping frame")
				}
			}
			h.mu.RUnlock()
		}
	}
}

// PushFrame makes jpegData the latest frame available to viewers. A
// full broadcast channel drops the frame rather than blocking the
// inference loop that calls this.
func (h *Hub) PushFrame(jpegData []byte) {
	select {
	case h.broadcast <- jpegData:
	default:
	}
}

// ServeWS upgrades r into a viewer connection and streams frames to
// it until the client disconnects.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("hud ws upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 2)}
	h.register <- c

	go func() {
		defer func() {
			h.unregister <- c
			conn.Close()
		}()
		for msg := range c.send {
			if err := conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
				return
			}
		}
	}()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
