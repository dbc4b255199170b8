// Package live streams ingested sensor readings to websocket clients.
package live

import (
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/farmgate-io/farmgate/core/logger"
	"github.com/farmgate-io/farmgate/store"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type client struct {
	conn *websocket.Conn
	send chan store.Reading
}

// Hub fans ingested readings out to all connected websocket clients.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan store.Reading
	register   chan *client
	unregister chan *client
}

// NewHub returns a new hub. Run must be started for it to do anything.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan store.Reading, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run services the hub until the process exits.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c] = true
			logger.Default().Infof("live: client connected, %d total", len(h.clients))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			logger.Default().Infof("live: client disconnected, %d total", len(h.clients))
		case reading := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- reading:
				default:
					// slow client, drop the reading for it
				}
			}
		}
	}
}

// Broadcast hands a stored reading to the hub. It never blocks the
// ingestion path; when the hub is saturated the reading is dropped.
func (h *Hub) Broadcast(reading store.Reading) {
	select {
	case h.broadcast <- reading:
	default:
		logger.Default().Warn("live: broadcast buffer full, dropping reading")
	}
}

// Handler upgrades the request to a websocket connection and streams every
// ingested reading to it as JSON.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rlog := logger.FromContext(r.Context())
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			rlog.WithError(err).Warn("live: cannot upgrade connection")
			return
		}
		c := &client{conn: conn, send: make(chan store.Reading, 16)}
		h.register <- c

		go c.writePump()
		go c.readPump(h)
	}
}

func (c *client) writePump() {
	for reading := range c.send {
		if err := c.conn.WriteJSON(reading); err != nil {
			c.conn.Close()
			return
		}
	}
	c.conn.Close()
}

// readPump discards inbound frames and detects the closed connection.
func (c *client) readPump(h *Hub) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.unregister <- c
			return
		}
	}
}
