// Package crypto implements the authenticated encryption scheme used to
// protect outgoing RTP payloads: XSalsa20-Poly1305 (NaCl secretbox) under one
// of three nonce disciplines negotiated during voice session setup.
//
// Unlike SRTP (see the teacher's internal/rtp package, which this module
// otherwise borrows its RTP framing from), the platform this client talks to
// authenticates and encrypts with golang.org/x/crypto/nacl/secretbox and
// leaves the RTP header itself in the clear, so the cryptographic context
// lives here rather than folded into the RTP writer.
package crypto

import (
	"crypto/rand"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/lanikai/strawberry/internal/errs"
)

// Mode identifies a nonce discipline, named the way the platform names them
// on the wire during protocol selection.
type Mode string

const (
	ModeFull   Mode = "xsalsa20_poly1305"
	ModeSuffix Mode = "xsalsa20_poly1305_suffix"
	ModeLite   Mode = "xsalsa20_poly1305_lite"
)

const (
	keySize   = 32
	nonceSize = 24
	tagSize   = secretbox.Overhead // 16
)

// Context holds the installed symmetric key and per-mode nonce state. It is
// created once a session receives its key via SELECT_PROTOCOL_ACK, and is
// never mutated afterward except for the lite-mode counter, which is safe
// for concurrent use by multiple packetizer goroutines.
type Context struct {
	mode Mode
	key  [keySize]byte

	// liteCounter is only used in ModeLite. It is incremented atomically so
	// that concurrent audio/video pacer goroutines never reuse a nonce.
	liteCounter uint32
}

// NewContext installs a 32-byte symmetric key under the named mode. An
// unrecognized mode is a ConfigError, since it can only result from a
// misconfigured or unsupported server.
func NewContext(mode Mode, key []byte) (*Context, error) {
	switch mode {
	case ModeFull, ModeSuffix, ModeLite:
	default:
		return nil, errs.New(errs.ConfigError, "unsupported encryption mode %q", mode)
	}
	if len(key) != keySize {
		return nil, errs.New(errs.ConfigError, "encryption key must be %d bytes, got %d", keySize, len(key))
	}
	c := &Context{mode: mode}
	copy(c.key[:], key)
	return c, nil
}

// Mode returns the nonce discipline this context was constructed with.
func (c *Context) Mode() Mode {
	return c.mode
}

// Encrypt authenticates and encrypts plaintext for transmission, given the
// cleartext RTP header that will prefix it on the wire. It returns the
// ciphertext (including the 16-byte Poly1305 tag) followed by whatever nonce
// suffix the mode requires; header itself is not part of the return value,
// it is only consulted to build the nonce in ModeFull.
func (c *Context) Encrypt(header, plaintext []byte) ([]byte, error) {
	switch c.mode {
	case ModeFull:
		return c.encryptFull(header, plaintext)
	case ModeSuffix:
		return c.encryptSuffix(plaintext)
	case ModeLite:
		return c.encryptLite(plaintext)
	default:
		return nil, errs.New(errs.ConfigError, "unsupported encryption mode %q", c.mode)
	}
}

// encryptFull derives the nonce from the first 12 bytes of the RTP header,
// zero-padded to the full 24-byte nonce size. No suffix is appended, since
// the receiver can reconstruct the same nonce from the header it just read.
func (c *Context) encryptFull(header, plaintext []byte) ([]byte, error) {
	if len(header) < 12 {
		return nil, errors.Errorf("RTP header too short for full nonce: %d bytes", len(header))
	}
	var nonce [nonceSize]byte
	copy(nonce[:12], header[:12])
	return secretbox.Seal(nil, plaintext, &nonce, &c.key), nil
}

// encryptSuffix picks a fresh random 24-byte nonce per packet, and appends it
// after the ciphertext so the receiver can recover it.
func (c *Context) encryptSuffix(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, errors.Wrap(err, "generating suffix nonce")
	}
	out := secretbox.Seal(nil, plaintext, &nonce, &c.key)
	return append(out, nonce[:]...), nil
}

// encryptLite uses a 32-bit counter, incremented once per packet, as the
// first four bytes of an otherwise-zero nonce. The 4-byte counter value is
// appended after the ciphertext. The counter wraps modulo 2^32, matching the
// wire format's fixed-width suffix.
func (c *Context) encryptLite(plaintext []byte) ([]byte, error) {
	count := atomic.AddUint32(&c.liteCounter, 1)

	var nonce [nonceSize]byte
	nonce[0] = byte(count >> 24)
	nonce[1] = byte(count >> 16)
	nonce[2] = byte(count >> 8)
	nonce[3] = byte(count)

	out := secretbox.Seal(nil, plaintext, &nonce, &c.key)
	return append(out, nonce[0], nonce[1], nonce[2], nonce[3]), nil
}
