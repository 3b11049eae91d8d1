// Package voice implements the signalling state machine for one voice or
// stream connection to the platform's voice gateway: websocket handshake,
// heartbeat loop, UDP transport handoff, and the speaking/video toggles
// built on top of it. Grounded on the teacher's gorilla/websocket
// Dial+ReadJSON/WriteJSON idiom (internal/signaling/local.go), generalized
// from a server-side Upgrade loop into a client-side Dial loop, and on the
// original source's VoiceConnection/UDPConnection state machine.
package voice

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanikai/strawberry/internal/crypto"
	"github.com/lanikai/strawberry/internal/errs"
	"github.com/lanikai/strawberry/internal/logging"
	"github.com/lanikai/strawberry/internal/transport"
)

var log = logging.DefaultLogger.WithTag("voice")

// Config carries everything a Session needs to perform IDENTIFY, gathered
// from the gateway's VOICE_STATE_UPDATE/VOICE_SERVER_UPDATE events.
type Config struct {
	ServerID       string // guild_id for a voice session, channel_id if absent
	UserID         string
	SessionID      string
	Endpoint       string
	Token          string
	EncryptionMode crypto.Mode
}

// Defaults for SetVideoState, matching the original source's
// set_video_state keyword defaults.
const (
	DefaultVideoWidth   = 1280
	DefaultVideoHeight  = 720
	DefaultVideoFPS     = 30
	DefaultVideoBitrate = 25 * 1024
)

type state int32

const (
	stateConnecting state = iota
	stateIdentifying
	stateDiscovering
	stateSelecting
	stateReady
	stateTerminal
)

// Session is one signalling connection and its associated UDP transport.
// Safe for concurrent use once Start has returned successfully: SetSpeaking
// and SetVideoState may be called from any goroutine, and Transport() may be
// handed to packetizers that run on their own pacer goroutines.
type Session struct {
	cfg Config

	ws   *websocket.Conn
	wsMu sync.Mutex

	mu    sync.Mutex
	state state

	audioSSRC, videoSSRC, rtxSSRC uint32
	serverIP                      string
	serverPort                    int

	transport *transport.Conn

	readyCh   chan struct{}
	readyOnce sync.Once
	startErr  error

	lastHeartbeatSent time.Time

	// speakingValue maps the high-level speaking intent to the wire value
	// SPEAKING carries. Voice sessions use 1; StreamSession overrides this
	// to 2 ("soundshare"), per the original source's two set_speaking
	// implementations.
	speakingValue func(bool) int
}

// NewSession constructs a Session that has not yet dialed its websocket.
func NewSession(cfg Config) *Session {
	return &Session{
		cfg:           cfg,
		state:         stateConnecting,
		readyCh:       make(chan struct{}),
		speakingValue: func(speaking bool) int { return boolToInt(speaking) },
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Start dials the signalling websocket, runs IDENTIFY, and blocks until the
// session reaches the ready state (SELECT_PROTOCOL_ACK received and the UDP
// transport installed) or ctx is cancelled. Calling Start twice is an error.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != stateConnecting {
		s.mu.Unlock()
		return errs.New(errs.ConfigError, "voice session already started")
	}
	s.mu.Unlock()

	url := fmt.Sprintf("wss://%s/?v=7", s.cfg.Endpoint)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return errs.Wrap(errs.TransportError, err, "dialing voice gateway")
	}
	s.ws = ws

	s.setState(stateIdentifying)
	if err := s.sendIdentify(); err != nil {
		return err
	}

	go s.readLoop()

	select {
	case <-s.readyCh:
		return s.startErr
	case <-ctx.Done():
		s.ws.Close()
		return ctx.Err()
	}
}

func (s *Session) setState(st state) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) getState() state {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether the session has completed the handshake and is safe
// to send media over.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateReady
}

// Transport returns the UDP connection backing this session. Only valid once
// Ready() is true.
func (s *Session) Transport() *transport.Conn {
	return s.transport
}

// AudioSSRC returns the SSRC packetizers must use for Opus RTP packets. Only
// valid once Ready() is true.
func (s *Session) AudioSSRC() uint32 {
	return s.audioSSRC
}

// VideoSSRC returns the SSRC packetizers must use for H.264 RTP packets.
// Only valid once Ready() is true.
func (s *Session) VideoSSRC() uint32 {
	return s.videoSSRC
}

func (s *Session) sendIdentify() error {
	return s.writeFrame(opIdentify, identifyPayload{
		ServerID:  s.cfg.ServerID,
		UserID:    s.cfg.UserID,
		SessionID: s.cfg.SessionID,
		Token:     s.cfg.Token,
		Video:     true,
		Streams:   []identifyStream{{Type: "screen", Rid: "100", Quality: 100}},
	})
}

func (s *Session) writeFrame(op opcode, payload interface{}) error {
	d, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	s.wsMu.Lock()
	defer s.wsMu.Unlock()
	if err := s.ws.WriteJSON(frame{Op: op, D: d}); err != nil {
		return errs.Wrap(errs.TransportError, err, "writing signalling frame")
	}
	return nil
}

func (s *Session) readLoop() {
	for {
		var f frame
		if err := s.ws.ReadJSON(&f); err != nil {
			log.Warn("voice gateway read error: %v", err)
			s.fail(errs.Wrap(errs.TransportError, err, "reading signalling frame"))
			return
		}
		if err := s.handleFrame(f); err != nil {
			log.Warn("handling opcode %d: %v", f.Op, err)
			s.fail(err)
			return
		}
	}
}

func (s *Session) handleFrame(f frame) error {
	switch f.Op {
	case opHello:
		var d helloPayload
		if err := json.Unmarshal(f.D, &d); err != nil {
			return errs.Wrap(errs.ProtocolError, err, "decoding HELLO")
		}
		s.setState(stateIdentifying)
		go s.heartbeatLoop(time.Duration(d.HeartbeatInterval) * time.Millisecond)

	case opReady:
		var d readyPayload
		if err := json.Unmarshal(f.D, &d); err != nil {
			return errs.Wrap(errs.ProtocolError, err, "decoding READY")
		}
		return s.handleReady(d)

	case opSelectProtocolAck:
		var d selectProtocolAckPayload
		if err := json.Unmarshal(f.D, &d); err != nil {
			return errs.Wrap(errs.ProtocolError, err, "decoding SELECT_PROTOCOL_ACK")
		}
		return s.handleSelectProtocolAck(d)

	case opHeartbeatAck:
		latency := time.Since(s.lastHeartbeatSent)
		log.Debug("heartbeat ack, latency %s", latency)

	case opSpeaking, opResumed:
		// Acknowledged but not acted on by this client.

	default:
		log.Debug("unhandled voice opcode %d", f.Op)
	}
	return nil
}

func (s *Session) handleReady(d readyPayload) error {
	s.audioSSRC = d.SSRC
	s.videoSSRC = d.SSRC + 1
	s.rtxSSRC = d.SSRC + 2
	s.serverIP = d.IP
	s.serverPort = d.Port
	s.setState(stateDiscovering)

	addr := fmt.Sprintf("%s:%d", d.IP, d.Port)
	conn, reflexiveIP, reflexivePort, err := transport.Dial(addr, s.audioSSRC)
	if err != nil {
		return err
	}
	s.transport = conn
	s.setState(stateSelecting)

	if err := s.sendVideoState(false, DefaultVideoWidth, DefaultVideoHeight, DefaultVideoFPS, DefaultVideoBitrate); err != nil {
		return err
	}

	return s.writeFrame(opSelectProtocol, selectProtocolPayload{
		Protocol: "udp",
		Codecs: []codecDescription{
			{Name: "opus", Type: "audio", Priority: 1000, PayloadType: 0x78},
			{Name: "H264", Type: "video", Priority: 1000, PayloadType: 0x65, RTXPayloadType: 0x66, Encode: true, Decode: true},
		},
		Data: selectProtocolData{
			Address: reflexiveIP,
			Port:    int(reflexivePort),
			Mode:    string(s.cfg.EncryptionMode),
		},
	})
}

func (s *Session) handleSelectProtocolAck(d selectProtocolAckPayload) error {
	ctx, err := crypto.NewContext(s.cfg.EncryptionMode, d.SecretKey)
	if err != nil {
		return err
	}
	s.transport.SetCrypto(ctx)
	s.setState(stateReady)
	s.readyOnce.Do(func() { close(s.readyCh) })
	return nil
}

func (s *Session) fail(err error) {
	s.startErr = err
	s.setState(stateTerminal)
	s.readyOnce.Do(func() { close(s.readyCh) })
}

func (s *Session) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if s.getState() == stateTerminal {
			return
		}
		s.lastHeartbeatSent = time.Now()
		if err := s.writeFrame(opHeartbeat, heartbeatPayload(1337)); err != nil {
			log.Warn("heartbeat failed, closing: %v", err)
			s.ws.Close()
			return
		}
	}
}

// SetSpeaking toggles the speaking indicator. Requires the session to be
// ready.
func (s *Session) SetSpeaking(speaking bool) error {
	if !s.Ready() {
		return errs.New(errs.NotReady, "SetSpeaking called before session ready")
	}
	return s.writeFrame(opSpeaking, speakingPayload{
		Speaking: s.speakingValue(speaking),
		Delay:    0,
		SSRC:     s.audioSSRC,
	})
}

// SetVideoState toggles the outgoing video stream and configures its target
// resolution, framerate, and bitrate. Requires the session to be ready.
func (s *Session) SetVideoState(on bool, width, height, fps, bitrate int) error {
	if !s.Ready() {
		return errs.New(errs.NotReady, "SetVideoState called before session ready")
	}
	return s.sendVideoState(on, width, height, fps, bitrate)
}

func (s *Session) sendVideoState(on bool, width, height, fps, bitrate int) error {
	return s.writeFrame(opVideo, videoPayload{
		AudioSSRC: s.audioSSRC,
		VideoSSRC: s.videoSSRC,
		RTXSSRC:   s.rtxSSRC,
		Streams: []videoStream{{
			Type: "video", Rid: "100", SSRC: s.videoSSRC, Active: on,
			Quality: 100, RTXSSRC: s.rtxSSRC,
			MaxBitrate:    bitrate,
			MaxFramerate:  fps,
			MaxResolution: maxResHelper{Type: "fixed", Width: width, Height: height},
		}},
	})
}

// Close terminates the websocket and the UDP transport.
func (s *Session) Close() error {
	s.setState(stateTerminal)
	if s.transport != nil {
		s.transport.Close()
	}
	return s.ws.Close()
}
