// Package transport owns the UDP socket used to send encrypted RTP packets
// to the platform's voice media server: the IP discovery handshake, the
// shared encryption context, and the connected net.Conn. Grounded on the
// teacher's internal/media/rtsp.Client dial/request/close structuring,
// generalized from a TCP request/response client to a UDP
// discover-then-stream client.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/lanikai/strawberry/internal/crypto"
	"github.com/lanikai/strawberry/internal/errs"
	"github.com/lanikai/strawberry/internal/logging"
)

var log = logging.DefaultLogger.WithTag("transport")

// discoverySize is the size of both the IP discovery request and response,
// 74 bytes: a 2-byte request/response type, a 2-byte length, and a 70-byte
// body (a 4-byte SSRC and 66 zero bytes for the request; a 4-byte SSRC, a
// 64-byte NUL-padded IP string and a 2-byte port for the response).
const discoverySize = 74

const (
	discoveryRequestType  = 0x0001
	discoveryResponseType = 0x0002
)

// Conn is a connected UDP socket paired with the symmetric encryption
// context negotiated over the signalling websocket. It implements
// rtp.Sender, so packetizers can send finished packets without depending on
// the concrete socket or crypto state -- see SPEC_FULL.md §9.
type Conn struct {
	conn   *net.UDPConn
	crypto *crypto.Context

	mu sync.Mutex
}

// Dial performs the IP discovery handshake against addr (the server's
// "ip:port" from the READY signalling frame) using ssrc (the audio SSRC),
// and returns a Conn along with the locally observed reflexive address.
//
// The handshake: send a 74-byte request (type=1, length=70, the SSRC, then
// 66 zero bytes); read a 74-byte response (type=2, length=70, a
// NUL-terminated ASCII IP string at offset 8, then a big-endian port at the
// final 2 bytes).
func Dial(addr string, ssrc uint32) (conn *Conn, reflexiveIP string, reflexivePort uint16, err error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, "", 0, errs.Wrap(errs.TransportError, err, "resolving voice server address")
	}

	sock, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return nil, "", 0, errs.Wrap(errs.TransportError, err, "dialing voice server")
	}

	var req [discoverySize]byte
	binary.BigEndian.PutUint16(req[0:2], discoveryRequestType)
	binary.BigEndian.PutUint16(req[2:4], discoverySize-4)
	binary.BigEndian.PutUint32(req[4:8], ssrc)

	if _, err := sock.Write(req[:]); err != nil {
		sock.Close()
		return nil, "", 0, errs.Wrap(errs.TransportError, err, "sending IP discovery request")
	}

	var resp [discoverySize]byte
	if _, err := io.ReadFull(sock, resp[:]); err != nil {
		sock.Close()
		return nil, "", 0, errs.Wrap(errs.TransportError, err, "reading IP discovery response")
	}

	if binary.BigEndian.Uint16(resp[0:2]) != discoveryResponseType {
		sock.Close()
		return nil, "", 0, errs.New(errs.ProtocolError, "IP discovery: unexpected response type %#x", resp[0:2])
	}

	body := resp[8:72]
	end := 0
	for end < len(body) && body[end] != 0 {
		end++
	}
	ip := string(body[:end])
	port := binary.BigEndian.Uint16(resp[72:74])

	log.Debug("IP discovery: reflexive address %s:%d", ip, port)

	c := &Conn{conn: sock}
	return c, ip, port, nil
}

// SetCrypto installs the encryption context negotiated by SELECT_PROTOCOL_ACK.
// Must be called before any Send.
func (c *Conn) SetCrypto(ctx *crypto.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.crypto = ctx
}

// Send encrypts payload under the nonce discipline of the installed
// encryption context (header is the nonce material in full mode), and
// writes header+ciphertext[+suffix] to the socket. Sends are serialized
// with a mutex, mirroring the teacher's rtpWriter guarding its output
// writer the same way.
func (c *Conn) Send(header, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.crypto == nil {
		return errs.New(errs.NotReady, "transport: Send called before encryption context installed")
	}

	ciphertext, err := c.crypto.Encrypt(header, payload)
	if err != nil {
		return errs.Wrap(errs.TransportError, err, "encrypting RTP payload")
	}

	packet := append(append([]byte(nil), header...), ciphertext...)
	if _, err := c.conn.Write(packet); err != nil {
		return errs.Wrap(errs.TransportError, err, "writing RTP packet")
	}
	return nil
}

// Close releases the socket.
func (c *Conn) Close() error {
	return c.conn.Close()
}

func (c *Conn) String() string {
	return fmt.Sprintf("transport.Conn(%s)", c.conn.RemoteAddr())
}
