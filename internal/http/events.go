package http

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roelfdiedericks/chatsweep/internal/bus"
	. "github.com/roelfdiedericks/chatsweep/internal/logging"
)

const (
	clientBuffer = 64
	writeWait    = 10 * time.Second
	pingInterval = 15 * time.Second
)

// EventHub forwards bus events to websocket clients.
type EventHub struct {
	bus   *bus.Bus
	subID bus.SubscriptionID

	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*eventClient]struct{}
	closed  bool
}

type eventClient struct {
	send chan bus.Event
	done chan struct{}
}

// NewEventHub subscribes to every topic on b. A nil bus yields a hub that
// accepts clients but never sends.
func NewEventHub(b *bus.Bus) *EventHub {
	h := &EventHub{
		bus:     b,
		clients: make(map[*eventClient]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	if b != nil {
		h.subID = b.Subscribe(bus.AllTopics, h.broadcast)
	}
	return h
}

// broadcast runs on the publisher's goroutine, so it never blocks: a client
// whose buffer is full misses the event.
func (h *EventHub) broadcast(e bus.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- e:
		default:
			L_debug("http: event dropped for slow client", "topic", e.Topic)
		}
	}
}

func (h *EventHub) add() *eventClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &eventClient{send: make(chan bus.Event, clientBuffer), done: make(chan struct{})}
	if h.closed {
		close(c.done)
		return c
	}
	h.clients[c] = struct{}{}
	return c
}

func (h *EventHub) remove(c *eventClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.done)
	}
}

// ClientCount returns the number of connected clients.
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close unsubscribes from the bus and ends every client stream.
func (h *EventHub) Close() {
	if h.bus != nil {
		h.bus.Unsubscribe(h.subID)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.done)
	}
}

// handleEvents handles GET /api/events - websocket stream of bus events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := s.events.upgrader.Upgrade(w, r, nil)
	if err != nil {
		L_warn("http: websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := s.events.add()
	defer s.events.remove(client)
	L_info("http: event stream opened", "remote", r.RemoteAddr)

	// Reader: clients send nothing, but reading surfaces the close frame.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-gone:
			L_info("http: event stream closed", "remote", r.RemoteAddr)
			return
		case <-client.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
			return
		case e := <-client.send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(e); err != nil {
				L_debug("http: event write failed", "error", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
