package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"gopkg.in/hraban/opus.v2"

	"github.com/sellembedded/go-avatar/pkg/audioio"
)

const (
	// remoteSampleRate is the Opus decode rate for remote tracks.
	remoteSampleRate = 48000

	// maxOpusFrame is the largest PCM frame Opus can produce (120ms at 48kHz).
	maxOpusFrame = 5760

	signalTimeout = 10 * time.Second
)

// signalMessage is the envelope exchanged with the media signalling server.
type signalMessage struct {
	Type      string          `json:"type"`
	SDP       string          `json:"sdp,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// PeerRoom is a Room backed by a pion peer connection with a websocket
// signalling channel. Outbound topics map to data channels by label;
// inbound data channels surface payloads tagged with their label.
type PeerRoom struct {
	logger *slog.Logger

	mu        sync.Mutex
	ws        *websocket.Conn
	wsMu      sync.Mutex
	pc        *webrtc.PeerConnection
	channels  map[string]*webrtc.DataChannel
	prepared  bool
	connected bool

	onData       DataHandler
	onAudio      AudioHandler
	onDisconnect DisconnectHandler
}

// NewPeerRoom creates a new peer-connection room.
func NewPeerRoom(logger *slog.Logger) *PeerRoom {
	if logger == nil {
		logger = slog.Default()
	}
	return &PeerRoom{
		logger:   logger.With("component", "transport.peer"),
		channels: make(map[string]*webrtc.DataChannel),
	}
}

// OnData implements Room.
func (r *PeerRoom) OnData(fn DataHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onData = fn
}

// OnRemoteAudio implements Room.
func (r *PeerRoom) OnRemoteAudio(fn AudioHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onAudio = fn
}

// OnDisconnect implements Room.
func (r *PeerRoom) OnDisconnect(fn DisconnectHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onDisconnect = fn
}

// PrepareConnection dials the signalling server and builds the peer
// connection without admitting media. Idempotent: repeated calls with an
// existing prepared connection are no-ops.
func (r *PeerRoom) PrepareConnection(ctx context.Context, endpoint, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.prepared {
		return nil
	}

	wsURL, err := url.Parse(endpoint)
	if err != nil {
		return fmt.Errorf("transport: invalid endpoint: %w", err)
	}
	q := wsURL.Query()
	q.Set("access_token", token)
	wsURL.RawQuery = q.Encode()

	dialer := websocket.Dialer{HandshakeTimeout: signalTimeout}
	conn, _, err := dialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return fmt.Errorf("transport: signalling dial failed: %w", err)
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		conn.Close()
		return fmt.Errorf("transport: peer connection: %w", err)
	}

	// Receive-only audio: the avatar publishes, we subscribe.
	if _, err := pc.AddTransceiverFromKind(webrtc.RTPCodecTypeAudio, webrtc.RTPTransceiverInit{
		Direction: webrtc.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		conn.Close()
		return fmt.Errorf("transport: audio transceiver: %w", err)
	}

	// Reliable ordered control channel, created up front so it is in the
	// initial offer.
	ordered := true
	control, err := pc.CreateDataChannel("agent-control", &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		pc.Close()
		conn.Close()
		return fmt.Errorf("transport: control channel: %w", err)
	}
	r.channels["agent-control"] = control

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		label := dc.Label()
		dc.OnMessage(func(msg webrtc.DataChannelMessage) {
			r.emitData(msg.Data, label)
		})
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		if track.Kind() != webrtc.RTPCodecTypeAudio {
			return
		}
		go r.readAudio(track)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			r.emitDisconnect(fmt.Errorf("transport: peer connection %s", state))
		}
	})

	pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		init := candidate.ToJSON()
		raw, err := json.Marshal(init)
		if err != nil {
			return
		}
		_ = r.writeSignal(conn, signalMessage{Type: "candidate", Candidate: raw})
	})

	r.ws = conn
	r.pc = pc
	r.prepared = true

	r.logger.Debug("connection prepared", "endpoint", wsURL.Host)
	return nil
}

// Connect completes the join: offer/answer over signalling, then the
// candidate pump runs until teardown.
func (r *PeerRoom) Connect(ctx context.Context, endpoint, token string) error {
	r.mu.Lock()
	if !r.prepared {
		r.mu.Unlock()
		return ErrNotPrepared
	}
	if r.connected {
		r.mu.Unlock()
		return ErrAlreadyConnected
	}
	pc := r.pc
	ws := r.ws
	r.mu.Unlock()

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("transport: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("transport: set local description: %w", err)
	}
	if err := r.writeSignal(ws, signalMessage{Type: "offer", SDP: offer.SDP}); err != nil {
		return fmt.Errorf("transport: send offer: %w", err)
	}

	// Wait for the answer; interleaved candidates are applied as they come.
	ws.SetReadDeadline(time.Now().Add(signalTimeout))
	for {
		var msg signalMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return fmt.Errorf("transport: read answer: %w", err)
		}
		if msg.Type == "candidate" {
			r.addCandidate(msg.Candidate)
			continue
		}
		if msg.Type != "answer" {
			continue
		}
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
		if err := pc.SetRemoteDescription(answer); err != nil {
			return fmt.Errorf("transport: set remote description: %w", err)
		}
		break
	}
	ws.SetReadDeadline(time.Time{})

	r.mu.Lock()
	r.connected = true
	r.mu.Unlock()

	go r.signalLoop(ws)

	r.logger.Info("room connected")
	return nil
}

// PublishData sends a payload on the data channel for the given topic.
func (r *PeerRoom) PublishData(data []byte, topic string, reliable bool) error {
	r.mu.Lock()
	if !r.connected {
		r.mu.Unlock()
		return ErrNotConnected
	}
	dc, ok := r.channels[topic]
	if !ok {
		ordered := reliable
		var err error
		dc, err = r.pc.CreateDataChannel(topic, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			r.mu.Unlock()
			return fmt.Errorf("transport: data channel %q: %w", topic, err)
		}
		r.channels[topic] = dc
	}
	r.mu.Unlock()

	if err := dc.Send(data); err != nil {
		return fmt.Errorf("transport: publish on %q: %w", topic, err)
	}
	return nil
}

// Disconnect tears down the peer connection and signalling socket.
// Safe to call repeatedly.
func (r *PeerRoom) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pc == nil && r.ws == nil {
		return nil
	}
	r.connected = false
	r.prepared = false

	for _, dc := range r.channels {
		_ = dc.Close()
	}
	r.channels = make(map[string]*webrtc.DataChannel)

	if r.pc != nil {
		_ = r.pc.Close()
		r.pc = nil
	}
	if r.ws != nil {
		deadline := time.Now().Add(time.Second)
		_ = r.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			deadline,
		)
		_ = r.ws.Close()
		r.ws = nil
	}

	return nil
}

// signalLoop pumps trickle candidates until the socket closes.
func (r *PeerRoom) signalLoop(ws *websocket.Conn) {
	for {
		var msg signalMessage
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return
			}
			r.emitDisconnect(err)
			return
		}
		if msg.Type == "candidate" {
			r.addCandidate(msg.Candidate)
		}
	}
}

func (r *PeerRoom) addCandidate(raw json.RawMessage) {
	r.mu.Lock()
	pc := r.pc
	r.mu.Unlock()
	if pc == nil || raw == nil {
		return
	}
	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(raw, &init); err != nil {
		return
	}
	if err := pc.AddICECandidate(init); err != nil {
		r.logger.Debug("add candidate failed", "error", err)
	}
}

// readAudio decodes the remote Opus track to PCM and feeds the handler.
func (r *PeerRoom) readAudio(track *webrtc.TrackRemote) {
	decoder, err := opus.NewDecoder(remoteSampleRate, 1)
	if err != nil {
		r.logger.Error("opus decoder", "error", err)
		return
	}

	pcm := make([]int16, maxOpusFrame)
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			r.logger.Debug("rtp read ended", "error", err)
			return
		}
		payload := opusPayload(pkt)
		if len(payload) == 0 {
			continue
		}

		n, err := decoder.Decode(payload, pcm)
		if err != nil {
			continue
		}

		samples := make([]int16, n)
		copy(samples, pcm[:n])
		r.emitAudio(audioio.AudioChunk{
			Samples:    samples,
			SampleRate: remoteSampleRate,
			Channels:   1,
		})
	}
}

// opusPayload extracts the Opus frame from an RTP packet, skipping
// padding-only packets (comfort noise keepalives).
func opusPayload(pkt *rtp.Packet) []byte {
	if pkt == nil || pkt.Padding && len(pkt.Payload) == 0 {
		return nil
	}
	return pkt.Payload
}

func (r *PeerRoom) writeSignal(ws *websocket.Conn, msg signalMessage) error {
	r.wsMu.Lock()
	defer r.wsMu.Unlock()
	return ws.WriteJSON(msg)
}

func (r *PeerRoom) emitData(payload []byte, topic string) {
	r.mu.Lock()
	fn := r.onData
	r.mu.Unlock()
	if fn != nil {
		fn(payload, topic)
	}
}

func (r *PeerRoom) emitAudio(chunk audioio.AudioChunk) {
	r.mu.Lock()
	fn := r.onAudio
	r.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

func (r *PeerRoom) emitDisconnect(reason error) {
	r.mu.Lock()
	fn := r.onDisconnect
	connected := r.connected
	r.connected = false
	r.mu.Unlock()
	if fn != nil && connected {
		fn(reason)
	}
}
