// avatar runs a live conversational avatar session: microphone capture,
// turn-taking against the avatar's speech, transcription, and a local
// dashboard showing status and transcript.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/sellembedded/go-avatar/internal/log"
	"github.com/sellembedded/go-avatar/pkg/avatar"
)

func main() {
	cfg := parseFlags()

	level := "info"
	if cfg.Debug {
		level = "debug"
	}
	log.Init(level)

	app, err := avatar.New(cfg, log.L())
	if err != nil {
		log.Error("configuration error", "error", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := app.Run(ctx); err != nil {
		log.Error("runtime error", "error", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags and returns configuration.
func parseFlags() avatar.Config {
	cfg := avatar.DefaultConfig()

	debug := flag.Bool("debug", false, "Enable verbose debug logging")
	serverURL := flag.String("server-url", "", "Avatar proxy base URL (overrides AVATAR_SERVER_URL)")
	avatarID := flag.String("avatar-id", "", "Avatar persona ID (overrides AVATAR_ID)")
	voiceID := flag.String("voice-id", "", "Voice ID override")
	language := flag.String("language", cfg.Language, "Conversation language")
	intro := flag.String("intro", "", "Greeting spoken at session start")
	webAddr := flag.String("web", cfg.WebAddr, "Dashboard listen address (empty to disable)")
	audioBackend := flag.String("audio", cfg.AudioBackend, "Audio backend: auto, mock")
	flag.Parse()

	cfg.Debug = *debug
	cfg.ServerURL = *serverURL
	cfg.AvatarID = *avatarID
	cfg.VoiceID = *voiceID
	cfg.Language = *language
	cfg.Intro = *intro
	cfg.WebAddr = *webAddr
	cfg.AudioBackend = *audioBackend
	return cfg
}
