// Package events fans engine notifications out to SSE subscribers (the
// dashboard) and in-process listeners (the notifier).
package events

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType classifies an engine notification.
type EventType string

const (
	TypeCycle       EventType = "cycle"
	TypeDecision    EventType = "decision"
	TypeTradeOpened EventType = "trade_opened"
	TypeTradeClosed EventType = "trade_closed"
	TypeBreaker     EventType = "breaker"
	TypeScreening   EventType = "screening"
	TypeError       EventType = "error"
)

// Event is one notification pushed to clients.
type Event struct {
	Type      EventType `json:"type"`
	CycleID   string    `json:"cycle_id,omitempty"`
	Symbol    string    `json:"symbol,omitempty"`
	Message   string    `json:"message"`
	Data      any       `json:"data,omitempty"`
	Timestamp int64     `json:"timestamp"`
}

// Listener receives every published event in-process.
type Listener func(Event)

// Hub maintains the set of active clients and broadcasts events to them.
type Hub struct {
	clients    map[chan []byte]bool
	broadcast  chan []byte
	register   chan chan []byte
	unregister chan chan []byte

	mu        sync.Mutex
	listeners []Listener
	log       zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		broadcast:  make(chan []byte, 64),
		register:   make(chan chan []byte),
		unregister: make(chan chan []byte),
		clients:    make(map[chan []byte]bool),
		log:        log,
	}
}

// Subscribe registers an in-process listener. Listeners run on the
// publisher's goroutine and must not block.
func (h *Hub) Subscribe(l Listener) {
	h.mu.Lock()
	h.listeners = append(h.listeners, l)
	h.mu.Unlock()
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", n).Msg("event client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client)
			}
			n := len(h.clients)
			h.mu.Unlock()
			h.log.Debug().Int("clients", n).Msg("event client unregistered")

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client <- message:
				default:
					close(client)
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish stamps and distributes an event. Never blocks the caller: when
// the broadcast buffer is full the event is dropped for SSE clients but
// still delivered to listeners.
func (h *Hub) Publish(evt Event) {
	if evt.Timestamp == 0 {
		evt.Timestamp = time.Now().UnixMilli()
	}

	h.mu.Lock()
	listeners := make([]Listener, len(h.listeners))
	copy(listeners, h.listeners)
	h.mu.Unlock()
	for _, l := range listeners {
		l(evt)
	}

	bytes, err := json.Marshal(evt)
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to marshal event")
		return
	}
	select {
	case h.broadcast <- bytes:
	default:
		h.log.Debug().Str("type", string(evt.Type)).Msg("event dropped, broadcast buffer full")
	}
}

// ServeHTTP handles SSE connections.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	client := make(chan []byte, 256)
	h.register <- client
	defer func() { h.unregister <- client }()

	fmt.Fprintf(w, "data: %s\n\n", `{"type":"sys","message":"connected"}`)
	w.(http.Flusher).Flush()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			return
		case msg, ok := <-client:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			w.(http.Flusher).Flush()
		}
	}
}
