package web

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/sellembedded/go-avatar/pkg/hub"
)

// handleStatus returns the current conversation snapshot.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return c.JSON(s.state)
}

// handleConversation returns the retained transcript.
func (s *Server) handleConversation(c *fiber.Ctx) error {
	s.transcriptMu.RLock()
	defer s.transcriptMu.RUnlock()
	return c.JSON(s.transcript)
}

// MuteRequest is the request body for toggling the microphone.
type MuteRequest struct {
	Muted bool `json:"muted"`
}

// handleMute toggles the microphone.
func (s *Server) handleMute(c *fiber.Ctx) error {
	var req MuteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body",
		})
	}

	if s.OnMute == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "mute not configured",
		})
	}

	s.OnMute(req.Muted)
	s.SetMuted(req.Muted)
	return c.JSON(fiber.Map{"muted": req.Muted})
}

// SpeakRequest is the request body for making the avatar speak.
type SpeakRequest struct {
	Text string `json:"text"`
}

// handleSpeak makes the avatar speak the given text verbatim.
func (s *Server) handleSpeak(c *fiber.Ctx) error {
	var req SpeakRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid body",
		})
	}
	req.Text = strings.TrimSpace(req.Text)
	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	if s.OnSpeak == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "speak not configured",
		})
	}

	if err := s.OnSpeak(req.Text); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"ok": true})
}

// handleDashboardWS attaches a websocket client to the broadcast hub.
func (s *Server) handleDashboardWS(c *websocket.Conn) {
	hub.NewClient(s.hub, c).Run()
}
