// Package relay persists conversation transcripts to the backoffice API.
// All writes are best-effort: a transcript gap never interrupts a live
// conversation.
package relay

import (
	"context"
	"errors"
)

// DefaultBaseURL is the production backoffice API root.
const DefaultBaseURL = "https://app.sellembedded.com/api/v1"

// Sentinel errors for the relay package.
var (
	// ErrMissingAPIKey indicates no tenant API key was provided.
	ErrMissingAPIKey = errors.New("relay: API key is required")

	// ErrNoConversation indicates no conversation is open.
	ErrNoConversation = errors.New("relay: no open conversation")

	// ErrNoConversationID indicates the server did not return an ID.
	ErrNoConversationID = errors.New("relay: conversation ID not returned")
)

// Recorder is the transcript surface the conversation loop depends on.
type Recorder interface {
	// AppendMessage stores one utterance. fromUser distinguishes visitor
	// speech from avatar speech.
	AppendMessage(ctx context.Context, content string, fromUser bool) error
}
