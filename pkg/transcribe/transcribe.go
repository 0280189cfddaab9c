// Package transcribe converts captured utterance audio to text.
package transcribe

import (
	"context"
	"errors"
	"fmt"
)

// Transcriber converts a PCM16 utterance to text.
type Transcriber interface {
	// Transcribe returns the recognized text for the given little-endian
	// PCM16 audio. An empty string means nothing intelligible was heard.
	Transcribe(ctx context.Context, pcm []byte) (string, error)
}

// ErrEmptyAudio indicates the utterance had no audio to transcribe.
var ErrEmptyAudio = errors.New("transcribe: empty audio")

// QuotaError indicates the provider refused the request because the
// account quota is exhausted. Callers should stop submitting audio for
// the rest of the session.
type QuotaError struct {
	Message string
}

// Error implements the error interface.
func (e *QuotaError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("transcribe: quota exhausted: %s", e.Message)
	}
	return "transcribe: quota exhausted"
}

// TransientError indicates a retryable provider failure.
type TransientError struct {
	StatusCode int
	Message    string
}

// Error implements the error interface.
func (e *TransientError) Error() string {
	return fmt.Sprintf("transcribe: provider error (HTTP %d): %s", e.StatusCode, e.Message)
}

// IsQuotaError reports whether err is a quota exhaustion.
func IsQuotaError(err error) bool {
	var quotaErr *QuotaError
	return errors.As(err, &quotaErr)
}
