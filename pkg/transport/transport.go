// Package transport defines the media-room boundary used by the session
// client. A Room is a thin adapter over a peer-connection primitive:
// prepare/connect, topic-scoped data publish, inbound data and remote
// audio delivery, disconnect notification. The session engine never
// touches the underlying connection directly.
package transport

import (
	"context"
	"errors"

	"github.com/sellembedded/go-avatar/pkg/audioio"
)

// Sentinel errors for the transport package.
var (
	// ErrNotConnected indicates the room has no active connection.
	ErrNotConnected = errors.New("transport: room not connected")

	// ErrNotPrepared indicates Connect was called before PrepareConnection.
	ErrNotPrepared = errors.New("transport: connection not prepared")

	// ErrAlreadyConnected indicates the room is already joined.
	ErrAlreadyConnected = errors.New("transport: already connected")
)

// DataHandler receives an inbound data payload with its channel topic.
type DataHandler func(payload []byte, topic string)

// AudioHandler receives decoded PCM frames from the remote avatar track.
type AudioHandler func(chunk audioio.AudioChunk)

// DisconnectHandler is notified when the room connection drops.
type DisconnectHandler func(reason error)

// Room is the media transport adapter.
//
// PrepareConnection pre-warms the connection without admitting media; it
// is idempotent and called once per session. Connect completes the join
// and is only valid after PrepareConnection. Vendors that have no
// pre-warm step implement PrepareConnection as a no-op.
type Room interface {
	// PrepareConnection pre-warms the transport for the given endpoint.
	PrepareConnection(ctx context.Context, url, token string) error

	// Connect completes the real-time join.
	Connect(ctx context.Context, url, token string) error

	// PublishData sends a payload on the given topic. Reliable publishes
	// use the ordered control channel.
	PublishData(data []byte, topic string, reliable bool) error

	// Disconnect tears the connection down. Safe to call repeatedly.
	Disconnect() error

	// OnData registers the inbound data handler.
	OnData(fn DataHandler)

	// OnRemoteAudio registers the remote-audio PCM handler.
	OnRemoteAudio(fn AudioHandler)

	// OnDisconnect registers the disconnect handler.
	OnDisconnect(fn DisconnectHandler)
}
