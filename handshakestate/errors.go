package handshakestate

import (
	"fmt"

	"github.com/insinfo/tlslite-sub007/wire"
)

// ProtocolError is this package's internal error shape: a protocol
// violation paired with the fatal (or warning) alert it maps to. The
// root package's Conn converts this into the public LocalError once it
// has sent (or attempted to send) the alert, following the same
// "detect here, surface there" split as record/cipherstate's own
// sentinel errors.
type ProtocolError struct {
	Kind   wire.AlertKind
	Detail string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("handshakestate: %s: %s", e.Kind, e.Detail)
}

func errf(kind wire.AlertKind, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}

// RemoteAlertError is returned when the peer sends an alert while this
// side is still driving a handshake. The root package's Conn surfaces it
// as RemoteAlert; a warning-level close_notify mid-handshake is still
// fatal to the handshake.
type RemoteAlertError struct {
	Kind wire.AlertKind
}

func (e *RemoteAlertError) Error() string {
	return fmt.Sprintf("handshakestate: peer sent alert: %s", e.Kind)
}
