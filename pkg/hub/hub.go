package hub

import (
	"log/slog"
	"sync"
)

// CommandHandler receives commands sent by dashboard clients.
type CommandHandler func(cmd Command)

// Hub maintains the set of active dashboard clients and broadcasts
// frames to them. Slow clients are dropped rather than allowed to stall
// the conversation loop.
type Hub struct {
	logger *slog.Logger

	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu        sync.RWMutex
	onCommand CommandHandler

	// last frames replayed to newly connected clients
	lastStatus []byte
	lastState  []byte
}

// New creates a new Hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:     logger.With("component", "hub"),
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// OnCommand registers the handler for inbound dashboard commands.
func (h *Hub) OnCommand(fn CommandHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onCommand = fn
}

// Run starts the hub's main loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			// Catch the new client up on the current state.
			if h.lastStatus != nil {
				client.trySend(h.lastStatus)
			}
			if h.lastState != nil {
				client.trySend(h.lastState)
			}
			h.mu.Unlock()
			h.logger.Debug("dashboard client connected", "clients", count)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			count := len(h.clients)
			h.mu.Unlock()
			h.logger.Debug("dashboard client disconnected", "clients", count)

		case data := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if !client.trySend(data) {
					close(client.send)
					delete(h.clients, client)
					h.logger.Warn("dropped slow dashboard client")
				}
			}
			h.mu.Unlock()
		}
	}
}

// Publish broadcasts a frame to all connected clients. Status and
// turn-state frames are retained for replay to late joiners.
func (h *Hub) Publish(frame Frame) {
	data := frame.Encode()

	h.mu.Lock()
	switch frame.Type {
	case FrameStatus:
		h.lastStatus = data
	case FrameTurnState:
		h.lastState = data
	}
	h.mu.Unlock()

	select {
	case h.broadcast <- data:
	default:
		h.logger.Warn("broadcast channel full, dropping frame", "type", frame.Type)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) dispatchCommand(cmd Command) {
	h.mu.RLock()
	fn := h.onCommand
	h.mu.RUnlock()
	if fn != nil {
		fn(cmd)
	}
}
