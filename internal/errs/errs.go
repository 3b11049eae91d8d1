// Package errs defines the error kinds used throughout the streamer, so that
// callers can distinguish fatal configuration problems from transient
// transport hiccups without string-matching error text.
package errs

import "github.com/pkg/errors"

// Kind classifies an error so that callers can decide whether it is fatal to
// the session, or merely observable.
type Kind int

const (
	// ConfigError indicates a problem with user-supplied configuration, e.g.
	// a bot token or an unrecognized encryption mode.
	ConfigError Kind = iota

	// NotReady indicates an operation was attempted before the session
	// finished negotiating (see Session.Ready).
	NotReady

	// ProtocolError indicates the remote peer sent something that violates
	// the expected wire format.
	ProtocolError

	// TransportError indicates the websocket or UDP transport failed.
	TransportError

	// SourceError indicates the external media source (transcoder process)
	// failed or exited unexpectedly.
	SourceError

	// LagWarning indicates the pacer fell behind its real-time schedule.
	// Sessions are never torn down because of it.
	LagWarning
)

func (k Kind) String() string {
	switch k {
	case ConfigError:
		return "config error"
	case NotReady:
		return "not ready"
	case ProtocolError:
		return "protocol error"
	case TransportError:
		return "transport error"
	case SourceError:
		return "source error"
	case LagWarning:
		return "lag warning"
	default:
		return "unknown error"
	}
}

// Error wraps an underlying cause with a Kind, so that New(kind, ...) errors
// can be inspected with As/Is while still carrying a stack trace via
// github.com/pkg/errors.
type Error struct {
	Kind Kind
	err  error
}

func (e *Error) Error() string {
	return e.Kind.String() + ": " + e.err.Error()
}

func (e *Error) Unwrap() error {
	return e.err
}

// New constructs a Kind-tagged error from a format string.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, err: errors.Errorf(format, args...)}
}

// Wrap attaches a Kind and message to an existing error via errors.Wrap,
// which records a stack trace at the call site. A nil cause yields nil.
func Wrap(kind Kind, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, err: errors.Wrap(cause, message)}
}

// Is reports whether err (or something it wraps) is an *Error of the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	for err != nil {
		if ce, ok := err.(*Error); ok {
			e = ce
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return e != nil && e.Kind == kind
}
