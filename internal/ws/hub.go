// Package ws pushes live seat counts to browsers over websockets.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"thumbsup/internal/events"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	pingInterval   = 30 * time.Second
	pongWait       = 60 * time.Second
	writeWait      = 10 * time.Second
	maxMessageSize = 1024
	sendBuffer     = 64
)

// SeatUpdate is the message sent after every inventory change.
type SeatUpdate struct {
	Type           string `json:"type"`
	RideID         int64  `json:"ride_id"`
	SeatsAvailable int    `json:"seats_available"`
	Deleted        bool   `json:"deleted,omitempty"`
}

type client struct {
	id     string
	rideID int64 // 0 = every ride
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// Hub tracks connected clients and fans seat updates out to them.
type Hub struct {
	clients    map[string]*client
	mu         sync.RWMutex
	register   chan *client
	unregister chan *client
	broadcast  chan SeatUpdate
	done       chan struct{} // closed when Run returns
	upgrader   websocket.Upgrader
	logger     *zerolog.Logger
}

// NewHub builds a hub. An empty allowedOrigins list accepts any origin.
func NewHub(allowedOrigins []string, logger *zerolog.Logger) *Hub {
	l := logger.With().Str("component", "ws_hub").Logger()
	h := &Hub{
		clients:    make(map[string]*client),
		register:   make(chan *client, 16),
		unregister: make(chan *client, 16),
		broadcast:  make(chan SeatUpdate, 256),
		done:       make(chan struct{}),
		logger:     &l,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin] || set["*"]
	}
}

// Attach subscribes the hub to inventory events on the bus.
func (h *Hub) Attach(bus *events.EventBus) {
	bus.SubscribeAll(h.HandleEvent)
}

// HandleEvent converts an inventory event into a seat update.
func (h *Hub) HandleEvent(event *events.Event) error {
	var update SeatUpdate
	switch event.Type {
	case events.EventBookingCreated, events.EventBookingCancelled:
		var p events.BookingEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return err
		}
		if p.RideGone {
			return nil
		}
		update = SeatUpdate{RideID: p.RideID, SeatsAvailable: p.SeatsAvailable}
	case events.EventRideCreated, events.EventRideDeleted:
		var p events.RideEventPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return err
		}
		update = SeatUpdate{RideID: p.RideID, SeatsAvailable: p.SeatsAvailable, Deleted: event.Type == events.EventRideDeleted}
	default:
		return nil
	}
	update.Type = "seats"
	h.Publish(update)
	return nil
}

// Publish queues an update for every interested client.
func (h *Hub) Publish(update SeatUpdate) {
	select {
	case h.broadcast <- update:
	default:
		h.logger.Warn().Int64("ride_id", update.RideID).Msg("broadcast channel full, update dropped")
	}
}

// Run is the hub loop. It owns the client map writes. A hub runs once;
// after Run returns new connections are refused.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			h.mu.Unlock()
			h.logger.Info().Msg("hub stopped")
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			h.logger.Debug().Str("client_id", c.id).Int64("ride_id", c.rideID).Msg("client registered")

		case c := <-h.unregister:
			h.remove(c)

		case update := <-h.broadcast:
			msg, err := json.Marshal(update)
			if err != nil {
				continue
			}
			var slow []*client
			h.mu.RLock()
			for _, c := range h.clients {
				if c.rideID != 0 && c.rideID != update.RideID {
					continue
				}
				select {
				case c.send <- msg:
				default:
					slow = append(slow, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range slow {
				h.remove(c)
			}
		}
	}
}

// join hands c to the hub loop. It reports false once the hub has stopped.
func (h *Hub) join(c *client) bool {
	select {
	case <-h.done:
		return false
	default:
	}
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// leave asks the hub loop to drop c. After shutdown every client is already
// gone, so there is nothing to wait for.
func (h *Hub) leave(c *client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
		h.logger.Debug().Str("client_id", c.id).Msg("client unregistered")
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request. ?ride_id=N limits the feed to one ride.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var rideID int64
	if raw := r.URL.Query().Get("ride_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "invalid ride_id", http.StatusBadRequest)
			return
		}
		rideID = id
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}

	c := &client{
		id:     uuid.NewString(),
		rideID: rideID,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		hub:    h,
	}
	if !h.join(c) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()
}

// readPump only drains control frames; the feed is one-way.
func (c *client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug().Err(err).Str("client_id", c.id).Msg("ws read error")
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
