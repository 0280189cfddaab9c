package web

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
)

func TestStatusEndpoint(t *testing.T) {
	s := NewServer(":0", nil)
	s.UpdateStatus("Please speak", true)
	s.UpdateTurnState("listening")
	s.UpdateConnection("connected", "sess-1")

	req, _ := http.NewRequest(http.MethodGet, "/api/status", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	defer resp.Body.Close()

	var state VoiceState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.Status != "Please speak" || !state.CanSpeak {
		t.Errorf("state = %+v", state)
	}
	if state.TurnState != "listening" || state.SessionID != "sess-1" {
		t.Errorf("state = %+v", state)
	}
}

func TestMuteEndpoint(t *testing.T) {
	s := NewServer(":0", nil)

	var gotMuted bool
	s.OnMute = func(muted bool) { gotMuted = muted }

	req, _ := http.NewRequest(http.MethodPost, "/api/mute", strings.NewReader(`{"muted":true}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !gotMuted {
		t.Error("OnMute not invoked")
	}
}

func TestSpeakEndpointValidation(t *testing.T) {
	s := NewServer(":0", nil)
	s.OnSpeak = func(text string) error { return nil }

	req, _ := http.NewRequest(http.MethodPost, "/api/speak", strings.NewReader(`{"text":"  "}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for empty text", resp.StatusCode)
	}
}

func TestTranscriptRetainsFinalOnly(t *testing.T) {
	s := NewServer(":0", nil)

	s.AddTranscript("Hel", false, false)
	s.AddTranscript("Hello there", false, true)
	s.AddTranscript("hi", true, true)

	req, _ := http.NewRequest(http.MethodGet, "/api/conversation", nil)
	resp, err := s.app.Test(req)
	if err != nil {
		t.Fatalf("Test() error = %v", err)
	}
	defer resp.Body.Close()

	var entries []TranscriptEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want only finalized messages", len(entries))
	}
	if entries[0].Role != "avatar" || entries[1].Role != "user" {
		t.Errorf("roles = %q, %q", entries[0].Role, entries[1].Role)
	}
}
