package web

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a WebSocket client subscribed to one episode's events.
type Client struct {
	ID        string
	EpisodeID string
	Conn      *websocket.Conn
	Send      chan []byte
	Hub       *ProgressHub
	mu        sync.Mutex
	closed    bool
}

// ProgressHub fans generation progress out to WebSocket subscribers, grouped
// by episode. The orchestrator and the audio pipeline publish into it; it
// never blocks them.
type ProgressHub struct {
	rooms      map[string]map[string]*Client
	register   chan *Client
	unregister chan *Client
	events     chan progressEvent
	mu         sync.RWMutex
}

type progressEvent struct {
	EpisodeID string      `json:"episode_id"`
	Event     string      `json:"event"`
	Payload   interface{} `json:"payload,omitempty"`
	Time      int64       `json:"time"`
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		rooms:      make(map[string]map[string]*Client),
		register:   make(chan *Client, 100),
		unregister: make(chan *Client, 100),
		events:     make(chan progressEvent, 1000),
	}
}

// Run starts the hub's event loop.
func (h *ProgressHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case ev := <-h.events:
			h.broadcast(ev)
		}
	}
}

// Publish implements the orchestrator's event sink.
func (h *ProgressHub) Publish(episodeID, event string, payload interface{}) {
	ev := progressEvent{EpisodeID: episodeID, Event: event, Payload: payload, Time: time.Now().Unix()}
	select {
	case h.events <- ev:
	default:
		log.Printf("[Hub] Event channel full, dropping %s for %s", event, episodeID)
	}
}

// AudioStatusChanged implements the audio pipeline's status listener.
func (h *ProgressHub) AudioStatusChanged(episodeID, audioID, status string) {
	h.Publish(episodeID, "audio_status", map[string]string{
		"audio_id": audioID,
		"status":   status,
	})
}

func (h *ProgressHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.EpisodeID]
	if !ok {
		room = make(map[string]*Client)
		h.rooms[client.EpisodeID] = room
	}
	room[client.ID] = client
	log.Printf("[Hub] Client connected: %s on episode %s (room size: %d)", client.ID, client.EpisodeID, len(room))

	go client.writePump()
}

func (h *ProgressHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[client.EpisodeID]
	if !ok {
		return
	}
	if _, ok := room[client.ID]; ok {
		delete(room, client.ID)
		close(client.Send)
		if len(room) == 0 {
			delete(h.rooms, client.EpisodeID)
		}
		log.Printf("[Hub] Client disconnected: %s (room size: %d)", client.ID, len(room))
	}
}

func (h *ProgressHub) broadcast(ev progressEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[ev.EpisodeID]
	if !ok || len(room) == 0 {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[Hub] Failed to marshal event: %v", err)
		return
	}

	for _, client := range room {
		select {
		case client.Send <- data:
		default:
			// Client send buffer full, skip
			log.Printf("[Hub] Client send buffer full: %s", client.ID)
		}
	}
}

// SubscriberCount returns the number of clients watching an episode.
func (h *ProgressHub) SubscriberCount(episodeID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[episodeID])
}

// writePump pumps messages from the hub to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.mu.Lock()
			if !ok {
				// Hub closed the channel
				c.closed = true
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[Client] Error writing to %s: %v", c.ID, err)
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()

		case <-ticker.C:
			c.mu.Lock()
			if c.closed {
				c.mu.Unlock()
				return
			}

			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[Client] Error sending ping to %s: %v", c.ID, err)
				c.closed = true
				c.mu.Unlock()
				return
			}
			c.mu.Unlock()
		}
	}
}

// Close closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	c.Conn.Close()
}

// readPump drains the connection until it drops; subscribers never send.
func (c *Client) readPump() {
	defer func() {
		c.Hub.unregister <- c
		c.Close()
	}()

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Client] Unexpected close from %s: %v", c.ID, err)
			}
			break
		}
	}
}
