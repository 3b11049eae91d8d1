// Package gateway implements a minimal client for the platform's primary
// chat gateway: just enough of the websocket protocol to join a voice
// channel and create a screen-share stream, surfacing the two dispatch
// events the voice layer depends on. Grounded on the teacher's
// gorilla/websocket Dial+ReadJSON/WriteJSON idiom and on the original
// source's DiscordGateway class; the predicate-based interceptor pattern is
// generalized from the teacher's internal/signaling.Session channel handoff
// (Offer chan string, RemoteCandidates chan ice.Candidate) into a
// general-purpose event demultiplexer, since this client must correlate
// pairs of independently-timed dispatch events rather than a single
// channel's worth.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanikai/strawberry/internal/crypto"
	"github.com/lanikai/strawberry/internal/errs"
	"github.com/lanikai/strawberry/internal/logging"
	"github.com/lanikai/strawberry/internal/voice"
)

var log = logging.DefaultLogger.WithTag("gateway")

type opcode int

const (
	opDispatch         opcode = 0
	opHeartbeat        opcode = 1
	opIdentify         opcode = 2
	opVoiceStateUpdate opcode = 4
	opHello            opcode = 10
	opHeartbeatAck     opcode = 11
	opStreamCreate     opcode = 18
)

// voiceCapabilities advertises support for video in voice channels, per the
// original source's `voice_capabilities = 1 << 7`.
const voiceCapabilities = 1 << 7

// frame is the gateway's envelope: {"op", "d", "s" (sequence), "t" (dispatch
// event name)}.
type frame struct {
	Op opcode          `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int            `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// dispatchEvent is a decoded DISPATCH frame, the unit that predicates
// registered via awaitEvents match against.
type dispatchEvent struct {
	Name string
	Data json.RawMessage
}

// Client is a connection to the chat gateway.
type Client struct {
	apiEndpoint string
	token       string

	ws   *websocket.Conn
	wsMu sync.Mutex

	waitersMu sync.Mutex
	waiters   []*waiter

	lastHeartbeatSent time.Time

	// encryptionMode is the nonce discipline requested for every voice
	// session this client negotiates. The original source defaults its
	// VoiceConnection to "xsalsa20_poly1305_lite"; this client does the same.
	encryptionMode crypto.Mode
}

// waiter is a pending awaitEvents call: it collects one dispatchEvent per
// predicate and signals done once all have matched.
type waiter struct {
	predicates []func(dispatchEvent) bool
	results    []dispatchEvent
	matched    []bool
	done       chan struct{}
}

// NewClient dials gatewayURL (as returned by GatewayURL) and sends IDENTIFY;
// it does not wait for a reply. token must not be a bot token; see
// cmd/strawberry for user-id derivation from it.
func NewClient(ctx context.Context, apiEndpoint, gatewayURL, token string) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, gatewayURL+"?v=9&encoding=json", nil)
	if err != nil {
		return nil, errs.Wrap(errs.TransportError, err, "dialing chat gateway")
	}

	c := &Client{apiEndpoint: apiEndpoint, token: token, ws: ws, encryptionMode: crypto.ModeLite}
	go c.readLoop()

	if err := c.writeFrame(opIdentify, map[string]interface{}{
		"token":        token,
		"capabilities": voiceCapabilities,
		"properties":   map[string]string{},
		"compress":     false,
	}); err != nil {
		ws.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) writeFrame(op opcode, d interface{}) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return err
	}
	c.wsMu.Lock()
	defer c.wsMu.Unlock()
	if err := c.ws.WriteJSON(frame{Op: op, D: raw}); err != nil {
		return errs.Wrap(errs.TransportError, err, "writing gateway frame")
	}
	return nil
}

func (c *Client) readLoop() {
	for {
		var f frame
		if err := c.ws.ReadJSON(&f); err != nil {
			log.Warn("gateway read error: %v", err)
			return
		}
		switch f.Op {
		case opHello:
			var d struct {
				HeartbeatInterval float64 `json:"heartbeat_interval"`
			}
			if err := json.Unmarshal(f.D, &d); err == nil {
				go c.heartbeatLoop(time.Duration(d.HeartbeatInterval) * time.Millisecond)
			}
		case opHeartbeatAck:
			log.Debug("gateway heartbeat ack, latency %s", time.Since(c.lastHeartbeatSent))
		case opDispatch:
			c.dispatch(dispatchEvent{Name: f.T, Data: f.D})
		}
	}
}

func (c *Client) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		c.lastHeartbeatSent = time.Now()
		if err := c.writeFrame(opHeartbeat, 1337); err != nil {
			log.Warn("gateway heartbeat failed, closing: %v", err)
			c.ws.Close()
			return
		}
	}
}

// dispatch feeds ev to every registered waiter, removing any waiter whose
// predicates are now all matched.
func (c *Client) dispatch(ev dispatchEvent) {
	c.waitersMu.Lock()
	defer c.waitersMu.Unlock()

	remaining := c.waiters[:0]
	for _, w := range c.waiters {
		w.offer(ev)
		if w.complete() {
			close(w.done)
		} else {
			remaining = append(remaining, w)
		}
	}
	c.waiters = remaining
}

func (w *waiter) offer(ev dispatchEvent) {
	for i, matched := range w.matched {
		if matched {
			continue
		}
		if w.predicates[i](ev) {
			w.matched[i] = true
			w.results[i] = ev
		}
	}
}

func (w *waiter) complete() bool {
	for _, matched := range w.matched {
		if !matched {
			return false
		}
	}
	return true
}

// awaitEvents blocks until one dispatch event matching each predicate (in
// order) has arrived, or ctx is done.
func (c *Client) awaitEvents(ctx context.Context, predicates ...func(dispatchEvent) bool) ([]dispatchEvent, error) {
	w := &waiter{
		predicates: predicates,
		results:    make([]dispatchEvent, len(predicates)),
		matched:    make([]bool, len(predicates)),
		done:       make(chan struct{}),
	}

	c.waitersMu.Lock()
	c.waiters = append(c.waiters, w)
	c.waitersMu.Unlock()

	select {
	case <-w.done:
		return w.results, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// JoinVoiceChannel requests a voice state update for channelID, waits for
// the matching VOICE_STATE_UPDATE and VOICE_SERVER_UPDATE dispatch events,
// and returns a started voice.Session.
func (c *Client) JoinVoiceChannel(ctx context.Context, userID, guildID, channelID, region string) (*voice.Session, error) {
	if err := c.writeFrame(opVoiceStateUpdate, map[string]interface{}{
		"guild_id":         nullableString(guildID),
		"channel_id":       channelID,
		"self_mute":        false,
		"self_deaf":        false,
		"self_video":       false,
		"preferred_region": region,
	}); err != nil {
		return nil, err
	}

	events, err := c.awaitEvents(ctx,
		func(e dispatchEvent) bool {
			if e.Name != "VOICE_STATE_UPDATE" {
				return false
			}
			var d struct {
				ChannelID string `json:"channel_id"`
				UserID    string `json:"user_id"`
			}
			return json.Unmarshal(e.Data, &d) == nil && d.ChannelID == channelID && d.UserID == userID
		},
		func(e dispatchEvent) bool { return e.Name == "VOICE_SERVER_UPDATE" },
	)
	if err != nil {
		return nil, err
	}

	var stateUpdate struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(events[0].Data, &stateUpdate); err != nil {
		return nil, errs.Wrap(errs.ProtocolError, err, "decoding VOICE_STATE_UPDATE")
	}
	var serverUpdate struct {
		Endpoint string `json:"endpoint"`
		Token    string `json:"token"`
	}
	if err := json.Unmarshal(events[1].Data, &serverUpdate); err != nil {
		return nil, errs.Wrap(errs.ProtocolError, err, "decoding VOICE_SERVER_UPDATE")
	}

	serverID := guildID
	if serverID == "" {
		serverID = channelID
	}

	sess := voice.NewSession(voice.Config{
		ServerID:       serverID,
		UserID:         userID,
		SessionID:      stateUpdate.SessionID,
		Endpoint:       serverUpdate.Endpoint,
		Token:          serverUpdate.Token,
		EncryptionMode: c.encryptionMode,
	})
	if err := sess.Start(ctx); err != nil {
		return nil, err
	}
	return sess, nil
}

// CreateStream requests a screen-share stream tied to an already-joined
// voice channel, waits for the matching STREAM_CREATE and
// STREAM_SERVER_UPDATE dispatch events, and returns a started
// voice.StreamSession.
func (c *Client) CreateStream(ctx context.Context, guildID, channelID, region, authToken string) (*voice.StreamSession, error) {
	streamType := "guild"
	if guildID == "" {
		streamType = "call"
	}

	if err := c.writeFrame(opStreamCreate, map[string]interface{}{
		"type":             streamType,
		"guild_id":         nullableString(guildID),
		"channel_id":       channelID,
		"preferred_region": region,
	}); err != nil {
		return nil, err
	}

	events, err := c.awaitEvents(ctx,
		func(e dispatchEvent) bool { return e.Name == "STREAM_CREATE" },
		func(e dispatchEvent) bool { return e.Name == "STREAM_SERVER_UPDATE" },
	)
	if err != nil {
		return nil, err
	}

	var created struct {
		StreamKey   string `json:"stream_key"`
		RTCServerID string `json:"rtc_server_id"`
	}
	if err := json.Unmarshal(events[0].Data, &created); err != nil {
		return nil, errs.Wrap(errs.ProtocolError, err, "decoding STREAM_CREATE")
	}
	var serverUpdate struct {
		Endpoint string `json:"endpoint"`
		Token    string `json:"token"`
	}
	if err := json.Unmarshal(events[1].Data, &serverUpdate); err != nil {
		return nil, errs.Wrap(errs.ProtocolError, err, "decoding STREAM_SERVER_UPDATE")
	}

	streamSess := voice.NewStreamSession(voice.Config{
		ServerID:       created.RTCServerID,
		Endpoint:       serverUpdate.Endpoint,
		Token:          serverUpdate.Token,
		EncryptionMode: c.encryptionMode,
	}, c.apiEndpoint, authToken)
	streamSess.SetStreamKey(created.StreamKey)

	if err := streamSess.Start(ctx); err != nil {
		return nil, err
	}
	return streamSess, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Close terminates the gateway websocket.
func (c *Client) Close() error {
	return c.ws.Close()
}

// GatewayURL fetches the current websocket URL from {apiEndpoint}/gateway,
// per the original source's ws_connect.
func GatewayURL(ctx context.Context, apiEndpoint string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/gateway", apiEndpoint), nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", errs.Wrap(errs.TransportError, err, "fetching gateway URL")
	}
	defer resp.Body.Close()

	var body struct {
		URL string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errs.Wrap(errs.ProtocolError, err, "decoding gateway URL response")
	}
	return body.URL, nil
}
