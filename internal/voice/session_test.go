package voice

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lanikai/strawberry/internal/crypto"
)

// fakeGateway runs a minimal server implementing just enough of the voice
// gateway protocol (HELLO, IDENTIFY -> READY, SELECT_PROTOCOL ->
// SELECT_PROTOCOL_ACK) plus a loopback UDP IP-discovery responder, so
// Session.Start can reach the ready state end to end.
type fakeGateway struct {
	httpServer *httptest.Server
	udpSocket  *net.UDPConn
	ssrc       uint32
}

func newFakeGateway(t *testing.T) *fakeGateway {
	t.Helper()

	udpSocket, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("listening UDP: %v", err)
	}
	udpPort := udpSocket.LocalAddr().(*net.UDPAddr).Port

	g := &fakeGateway{udpSocket: udpSocket, ssrc: 0x1000}

	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		g.serve(t, ws, udpPort)
	})
	g.httpServer = httptest.NewServer(mux)

	go g.serveUDPDiscovery(t)

	return g
}

func (g *fakeGateway) serveUDPDiscovery(t *testing.T) {
	buf := make([]byte, 74)
	n, from, err := g.udpSocket.ReadFromUDP(buf)
	if err != nil || n != 74 {
		return
	}
	var resp [74]byte
	binary.BigEndian.PutUint16(resp[0:2], 2)
	binary.BigEndian.PutUint16(resp[2:4], 70)
	copy(resp[8:], "127.0.0.1")
	binary.BigEndian.PutUint16(resp[72:74], 4242)
	g.udpSocket.WriteToUDP(resp[:], from)
}

func (g *fakeGateway) serve(t *testing.T, ws *websocket.Conn, udpPort int) {
	writeFrame := func(op opcode, d interface{}) {
		raw, _ := json.Marshal(d)
		ws.WriteJSON(frame{Op: op, D: raw})
	}

	writeFrame(opHello, helloPayload{HeartbeatInterval: 50000})

	for {
		var f frame
		if err := ws.ReadJSON(&f); err != nil {
			return
		}
		switch f.Op {
		case opIdentify:
			writeFrame(opReady, readyPayload{SSRC: g.ssrc, IP: "127.0.0.1", Port: udpPort})
		case opVideo:
			// no response expected
		case opSelectProtocol:
			writeFrame(opSelectProtocolAck, selectProtocolAckPayload{SecretKey: make([]byte, 32)})
		}
	}
}

func (g *fakeGateway) endpoint() string {
	u, _ := url.Parse(g.httpServer.URL)
	return u.Host
}

func (g *fakeGateway) Close() {
	g.httpServer.Close()
	g.udpSocket.Close()
}

func TestSessionReachesReady(t *testing.T) {
	gw := newFakeGateway(t)
	defer gw.Close()

	sess := NewSession(Config{
		ServerID:       "guild1",
		UserID:         "user1",
		SessionID:      "sess1",
		Endpoint:       gw.endpoint(),
		Token:          "tok",
		EncryptionMode: crypto.ModeFull,
	})

	// The httptest server is plain HTTP; the websocket library only cares
	// about the ws:// vs wss:// URL scheme used when building the dial URL,
	// which Start hardcodes to wss. Dial manually against the test server's
	// ws URL instead, to avoid needing a TLS fixture.
	ws, _, err := websocket.DefaultDialer.Dial(strings.Replace(gw.httpServer.URL, "http://", "ws://", 1), nil)
	if err != nil {
		t.Fatalf("dialing fake gateway: %v", err)
	}
	sess.ws = ws
	sess.setState(stateIdentifying)
	if err := sess.sendIdentify(); err != nil {
		t.Fatalf("sendIdentify: %v", err)
	}
	go sess.readLoop()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	select {
	case <-sess.readyCh:
	case <-ctx.Done():
		t.Fatal("timed out waiting for session to become ready")
	}

	if !sess.Ready() {
		t.Fatalf("expected session to be ready, startErr=%v", sess.startErr)
	}
	if sess.audioSSRC != 0x1000 || sess.videoSSRC != 0x1001 || sess.rtxSSRC != 0x1002 {
		t.Fatalf("unexpected derived SSRCs: audio=%d video=%d rtx=%d", sess.audioSSRC, sess.videoSSRC, sess.rtxSSRC)
	}

	if err := sess.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSetSpeakingRequiresReady(t *testing.T) {
	sess := NewSession(Config{EncryptionMode: crypto.ModeFull})
	if err := sess.SetSpeaking(true); err == nil {
		t.Fatal("expected error calling SetSpeaking before ready")
	}
}

func TestStreamSessionEncodesSoundshareSpeaking(t *testing.T) {
	s := NewStreamSession(Config{EncryptionMode: crypto.ModeFull}, "https://api.example", "tok")
	if got := s.Session.speakingValue(true); got != 2 {
		t.Fatalf("expected soundshare speaking value 2, got %d", got)
	}
	if got := s.Session.speakingValue(false); got != 0 {
		t.Fatalf("expected speaking value 0, got %d", got)
	}
}

func TestSetPreviewRequiresStreamKey(t *testing.T) {
	s := NewStreamSession(Config{EncryptionMode: crypto.ModeFull}, "https://api.example", "tok")
	if _, err := s.SetPreview(context.Background(), []byte("x"), "image/jpeg"); err == nil {
		t.Fatal("expected error calling SetPreview before stream key is set")
	}
}
