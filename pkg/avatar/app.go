package avatar

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sellembedded/go-avatar/pkg/audioio"
	"github.com/sellembedded/go-avatar/pkg/capture"
	"github.com/sellembedded/go-avatar/pkg/events"
	"github.com/sellembedded/go-avatar/pkg/hub"
	"github.com/sellembedded/go-avatar/pkg/relay"
	"github.com/sellembedded/go-avatar/pkg/session"
	"github.com/sellembedded/go-avatar/pkg/transcribe"
	"github.com/sellembedded/go-avatar/pkg/transport"
	"github.com/sellembedded/go-avatar/pkg/turn"
	"github.com/sellembedded/go-avatar/pkg/web"
)

// App is the avatar application orchestrator. It owns every component's
// lifecycle and the wiring between them.
type App struct {
	config Config
	logger *slog.Logger

	source   audioio.Source
	engine   *capture.Engine
	room     *transport.PeerRoom
	session  *session.Client
	store    *relay.Client // nil when transcripts are not persisted
	recorder relay.Recorder
	stt      transcribe.Transcriber
	coord    *turn.Coordinator
	web      *web.Server // nil when the dashboard is disabled
}

// nopRecorder drops transcripts when no relay is configured.
type nopRecorder struct{}

func (nopRecorder) AppendMessage(context.Context, string, bool) error { return nil }

// New creates the avatar application with the given configuration.
func New(cfg Config, logger *slog.Logger) (*App, error) {
	cfg.LoadEnvConfig()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{
		config: cfg,
		logger: logger.With("component", "app"),
	}

	// Microphone source and capture engine.
	audioCfg := audioio.DefaultConfig()
	audioCfg.Backend = audioio.Backend(cfg.AudioBackend)
	source, err := audioio.NewSource(audioCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("avatar: audio source: %w", err)
	}
	app.source = source

	captureCfg := capture.DefaultConfig()
	captureCfg.Logger = logger
	engine, err := capture.NewEngine(source, captureCfg)
	if err != nil {
		return nil, fmt.Errorf("avatar: capture engine: %w", err)
	}
	app.engine = engine

	// Session client over a peer-connection room.
	app.room = transport.NewPeerRoom(logger)
	sess, err := session.NewClient(app.room,
		session.WithServerURL(cfg.ServerURL),
		session.WithAvatarID(cfg.AvatarID),
		session.WithContextID(cfg.ContextID),
		session.WithVoiceID(cfg.VoiceID),
		session.WithLanguage(cfg.Language),
		session.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("avatar: session client: %w", err)
	}
	app.session = sess

	// Transcription.
	whisperCfg := transcribe.DefaultWhisperConfig()
	whisperCfg.APIKey = cfg.OpenAIKey
	whisperCfg.Language = cfg.Language
	whisperCfg.SampleRate = audioCfg.SampleRate
	whisperCfg.Channels = audioCfg.Channels
	whisperCfg.Logger = logger
	stt, err := transcribe.NewWhisperClient(whisperCfg)
	if err != nil {
		return nil, fmt.Errorf("avatar: transcriber: %w", err)
	}
	app.stt = stt

	// Transcript persistence.
	if cfg.RelayKey != "" {
		relayCfg := relay.DefaultConfig()
		relayCfg.BaseURL = cfg.RelayURL
		relayCfg.APIKey = cfg.RelayKey
		relayCfg.Logger = logger
		store, err := relay.NewClient(relayCfg)
		if err != nil {
			return nil, fmt.Errorf("avatar: relay: %w", err)
		}
		app.store = store
		app.recorder = store
	} else {
		logger.Warn("no relay API key, transcripts will not be persisted")
		app.recorder = nopRecorder{}
	}

	// Turn coordinator.
	turnCfg := turn.DefaultConfig()
	turnCfg.Logger = logger
	if cfg.Intro != "" {
		turnCfg.Intro = cfg.Intro
	}
	coord, err := turn.NewCoordinator(sess, engine, app.stt, app.recorder, turnCfg)
	if err != nil {
		return nil, fmt.Errorf("avatar: coordinator: %w", err)
	}
	app.coord = coord

	if cfg.WebAddr != "" {
		app.web = web.NewServer(cfg.WebAddr, logger)
	}

	app.wire()
	return app, nil
}

// wire connects the component callbacks.
func (a *App) wire() {
	// Inbound server events feed the normalizer, then the coordinator.
	a.session.OnEvent(func(payload []byte, topic string) {
		if ev, ok := events.Normalize(payload, topic); ok {
			a.coord.HandleEvent(ev)
		}
	})
	a.session.OnRemoteAudio(a.coord.HandleRemoteAudio)
	a.session.OnClose(func(reason error) {
		a.logger.Warn("transport dropped", "error", reason)
		a.coord.SessionClosed()
		if a.web != nil {
			a.web.UpdateConnection(session.StateClosed.String(), "")
		}
	})

	// Captured utterances feed the coordinator.
	a.engine.OnUtterance(a.coord.HandleUtterance)
	a.engine.OnError(func(err error) {
		a.logger.Error("capture error", "error", err)
	})

	a.coord.OnStatus(func(status turn.Status) {
		a.logger.Info("voice status", "status", status.Text, "can_speak", status.CanSpeak)
		if a.web != nil {
			a.web.UpdateStatus(status.Text, status.CanSpeak)
			a.web.UpdateTurnState(a.coord.State().String())
		}
	})
	a.coord.OnTranscript(func(t turn.Transcript) {
		if a.web != nil {
			a.web.AddTranscript(t.Text, t.FromUser, t.Final)
		}
	})

	if a.web != nil {
		a.web.OnMute = a.coord.SetMuted
		a.web.OnSpeak = func(text string) error {
			return a.session.PublishControl(session.ControlSpeakText, text)
		}
		a.web.Hub().OnCommand(func(cmd hub.Command) {
			switch cmd.Type {
			case hub.CommandMute:
				a.coord.SetMuted(true)
				a.web.SetMuted(true)
			case hub.CommandUnmute:
				a.coord.SetMuted(false)
				a.web.SetMuted(false)
			case hub.CommandSpeak:
				_ = a.session.PublishControl(session.ControlSpeakText, cmd.Text)
			}
		})
	}
}

// Run starts everything and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.web != nil {
		a.web.StartAsync()
	}
	a.coord.Start()

	if err := a.engine.Initialize(ctx); err != nil {
		return fmt.Errorf("avatar: microphone: %w", err)
	}

	if a.store != nil {
		if _, err := a.store.OpenConversation(ctx); err != nil {
			// Best-effort: a missing transcript never blocks the session.
			a.logger.Warn("open conversation failed", "error", err)
		}
	}

	info, err := a.session.StartSession(ctx)
	if err != nil {
		return err
	}
	if a.web != nil {
		a.web.UpdateConnection(a.session.State().String(), info.SessionID)
	}

	if err := a.session.Connect(ctx); err != nil {
		return err
	}
	if a.web != nil {
		a.web.UpdateConnection(a.session.State().String(), info.SessionID)
	}
	a.coord.SessionConnected()

	a.logger.Info("conversation running", "session_id", info.SessionID)
	<-ctx.Done()
	return nil
}

// Shutdown tears everything down in dependency order.
func (a *App) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	a.coord.SessionClosed()
	if err := a.session.CloseSession(ctx); err != nil {
		a.logger.Warn("session close", "error", err)
	}
	if a.store != nil {
		if err := a.store.CloseConversation(ctx); err != nil {
			a.logger.Warn("conversation close", "error", err)
		}
	}
	a.coord.Stop()
	a.engine.Cleanup()
	if a.web != nil {
		if err := a.web.Shutdown(); err != nil {
			a.logger.Warn("dashboard shutdown", "error", err)
		}
	}
	a.logger.Info("shutdown complete")
}
