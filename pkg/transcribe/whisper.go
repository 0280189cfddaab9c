package transcribe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sellembedded/go-avatar/internal/httpc"
)

const (
	// DefaultBaseURL is the OpenAI API root.
	DefaultBaseURL = "https://api.openai.com/v1"

	// DefaultModel is the speech-to-text model.
	DefaultModel = "whisper-1"

	quotaCode = "insufficient_quota"
)

// ErrMissingAPIKey indicates no API key was provided.
var ErrMissingAPIKey = errors.New("transcribe: API key is required")

// WhisperConfig holds Whisper client configuration.
type WhisperConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Language   string
	SampleRate int
	Channels   int
	Timeout    time.Duration
	Logger     *slog.Logger
}

// DefaultWhisperConfig returns a config with sensible defaults.
func DefaultWhisperConfig() *WhisperConfig {
	return &WhisperConfig{
		BaseURL:    DefaultBaseURL,
		Model:      DefaultModel,
		Language:   "en",
		SampleRate: 16000,
		Channels:   1,
		Timeout:    30 * time.Second,
		Logger:     slog.Default(),
	}
}

// Validate checks the configuration for correctness.
func (c *WhisperConfig) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// WhisperClient transcribes audio via the OpenAI transcription endpoint.
type WhisperClient struct {
	config *WhisperConfig
	logger *slog.Logger
	http   *http.Client
}

// NewWhisperClient creates a Whisper transcription client.
func NewWhisperClient(config *WhisperConfig) (*WhisperClient, error) {
	if config == nil {
		config = DefaultWhisperConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &WhisperClient{
		config: config,
		logger: config.Logger.With("component", "transcribe.whisper"),
		http:   httpc.NewClient(config.Timeout),
	}, nil
}

type whisperResponse struct {
	Text string `json:"text"`
}

type whisperError struct {
	Error struct {
		Message string `json:"message"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Transcribe implements Transcriber. The PCM is wrapped in a WAV
// container and posted as multipart form data.
func (w *WhisperClient) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	if len(pcm) == 0 {
		return "", ErrEmptyAudio
	}

	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	part, err := form.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("transcribe: build form: %w", err)
	}
	if _, err := part.Write(encodeWAV(pcm, w.config.SampleRate, w.config.Channels)); err != nil {
		return "", fmt.Errorf("transcribe: write audio: %w", err)
	}
	if err := form.WriteField("model", w.config.Model); err != nil {
		return "", fmt.Errorf("transcribe: write model: %w", err)
	}
	if w.config.Language != "" {
		if err := form.WriteField("language", w.config.Language); err != nil {
			return "", fmt.Errorf("transcribe: write language: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close form: %w", err)
	}

	url := strings.TrimRight(w.config.BaseURL, "/") + "/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+w.config.APIKey)

	start := time.Now()
	resp, err := w.http.Do(req)
	if err != nil {
		return "", &TransientError{Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &TransientError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr whisperError
		_ = json.Unmarshal(raw, &apiErr)
		if apiErr.Error.Code == quotaCode {
			return "", &QuotaError{Message: apiErr.Error.Message}
		}
		return "", &TransientError{StatusCode: resp.StatusCode, Message: apiErr.Error.Message}
	}

	var result whisperResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", &TransientError{StatusCode: resp.StatusCode, Message: err.Error()}
	}

	text := strings.TrimSpace(result.Text)
	w.logger.Debug("transcription complete",
		"bytes", len(pcm),
		"chars", len(text),
		"duration", time.Since(start))
	return text, nil
}
