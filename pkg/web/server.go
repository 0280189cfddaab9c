// Package web serves a real-time dashboard for the avatar conversation:
// voice status, turn state, and the running transcript.
package web

import (
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/sellembedded/go-avatar/pkg/hub"
)

// VoiceState is the dashboard snapshot of the conversation.
type VoiceState struct {
	Status     string `json:"status"`
	CanSpeak   bool   `json:"can_speak"`
	TurnState  string `json:"turn_state"`
	Connection string `json:"connection"`
	SessionID  string `json:"session_id,omitempty"`
	Muted      bool   `json:"muted"`
}

// TranscriptEntry is one finalized message in the conversation view.
type TranscriptEntry struct {
	Time    string `json:"time"`
	Role    string `json:"role"` // user or avatar
	Message string `json:"message"`
}

// Server is the dashboard web server.
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	hub *hub.Hub

	stateMu sync.RWMutex
	state   VoiceState

	transcriptMu sync.RWMutex
	transcript   []TranscriptEntry

	// OnMute toggles the microphone from the dashboard.
	OnMute func(muted bool)

	// OnSpeak makes the avatar speak arbitrary text from the dashboard.
	OnSpeak func(text string) error
}

// NewServer creates the dashboard server.
func NewServer(addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		addr:       addr,
		logger:     logger.With("component", "web"),
		hub:        hub.New(logger),
		transcript: make([]TranscriptEntry, 0, 100),
		state:      VoiceState{Status: "Voice idle", TurnState: "idle", Connection: "idle"},
	}

	app := fiber.New(fiber.Config{
		AppName:               "Avatar Dashboard",
		DisableStartupMessage: true,
	})

	app.Use(cors.New())
	app.Static("/", "./web")

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/conversation", s.handleConversation)
	api.Post("/mute", s.handleMute)
	api.Post("/speak", s.handleSpeak)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/dashboard", websocket.New(s.handleDashboardWS))

	s.app = app
	return s
}

// Hub exposes the broadcast hub, e.g. for wiring dashboard commands.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// Start runs the hub and listens. Blocks.
func (s *Server) Start() error {
	s.logger.Info("dashboard listening", "addr", s.addr)
	go s.hub.Run()
	return s.app.Listen(s.addr)
}

// StartAsync runs the server in a goroutine.
func (s *Server) StartAsync() {
	go func() {
		if err := s.Start(); err != nil {
			s.logger.Error("dashboard server stopped", "error", err)
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

// UpdateStatus records and broadcasts the voice status line.
func (s *Server) UpdateStatus(text string, canSpeak bool) {
	s.stateMu.Lock()
	s.state.Status = text
	s.state.CanSpeak = canSpeak
	s.stateMu.Unlock()
	s.hub.Publish(hub.StatusFrame(text, canSpeak))
}

// UpdateTurnState records and broadcasts the turn state.
func (s *Server) UpdateTurnState(state string) {
	s.stateMu.Lock()
	s.state.TurnState = state
	s.stateMu.Unlock()
	s.hub.Publish(hub.TurnStateFrame(state))
}

// UpdateConnection records the session connection state.
func (s *Server) UpdateConnection(state, sessionID string) {
	s.stateMu.Lock()
	s.state.Connection = state
	s.state.SessionID = sessionID
	s.stateMu.Unlock()
}

// SetMuted records the mute flag shown on the dashboard.
func (s *Server) SetMuted(muted bool) {
	s.stateMu.Lock()
	s.state.Muted = muted
	s.stateMu.Unlock()
}

// AddTranscript broadcasts conversation text; finalized entries are also
// retained for the conversation view.
func (s *Server) AddTranscript(text string, fromUser, final bool) {
	if final {
		role := "avatar"
		if fromUser {
			role = "user"
		}
		entry := TranscriptEntry{
			Time:    time.Now().Format("15:04:05"),
			Role:    role,
			Message: text,
		}
		s.transcriptMu.Lock()
		s.transcript = append(s.transcript, entry)
		if len(s.transcript) > 100 {
			s.transcript = s.transcript[1:]
		}
		s.transcriptMu.Unlock()
	}

	s.hub.Publish(hub.TranscriptFrame(text, fromUser, final))
}
