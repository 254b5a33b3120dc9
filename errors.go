package tls

import (
	"fmt"

	"github.com/insinfo/tlslite-sub007/wire"
)

// These aliases give callers of the root package a single import for the
// whole public vocabulary while the implementation packages (record,
// messages, handshakestate, ...) share the canonical definitions in wire
// without importing each other.
type (
	ProtocolVersion = wire.ProtocolVersion
	ContentType     = wire.ContentType
	HandshakeType   = wire.HandshakeType
	NamedGroup      = wire.NamedGroup
	SignatureScheme = wire.SignatureScheme
	AlertKind       = wire.AlertKind
	Role            = wire.Role
	ConnState       = wire.ConnState
)

const (
	MaxPlaintextLen  = wire.MaxPlaintextLen
	MaxCiphertextLen = wire.MaxCiphertextLen

	VersionTLS12 = wire.VersionTLS12
	VersionTLS13 = wire.VersionTLS13

	RoleClient = wire.RoleClient
	RoleServer = wire.RoleServer

	StateIdle        = wire.StateIdle
	StateHandshaking = wire.StateHandshaking
	StateEstablished = wire.StateEstablished
	StateClosing     = wire.StateClosing
	StateClosed      = wire.StateClosed
	StateFailed      = wire.StateFailed
)

// LocalError is returned when this engine itself detected a protocol
// violation and is about to (or did) send the paired alert.
type LocalError struct {
	Kind   AlertKind
	Detail string
}

func (e *LocalError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("tls: local error: %s", e.Kind)
	}
	return fmt.Sprintf("tls: local error: %s: %s", e.Kind, e.Detail)
}

// RemoteAlert is surfaced to the caller when the peer sent a fatal alert.
type RemoteAlert struct {
	Kind AlertKind
}

func (e *RemoteAlert) Error() string {
	return fmt.Sprintf("tls: remote alert: %s", e.Kind)
}

// TransportError wraps an error returned by the caller-supplied Transport.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("tls: transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func newLocalError(kind AlertKind, format string, args ...interface{}) *LocalError {
	return &LocalError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
