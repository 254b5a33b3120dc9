// Package keyexchange implements the classical and hybrid key-exchange
// groups. Each group exposes the same three-step shape the design notes
// call for (client offer / server complete / client complete) so that
// hybrid groups can compose a classical exchange with an ML-KEM
// encapsulation without the handshake state machine knowing the
// difference.
package keyexchange

import (
	"crypto/rand"
	"errors"
	"io"

	"github.com/insinfo/tlslite-sub007/wire"
)

// ErrUnsupportedGroup is returned for a NamedGroup this package doesn't
// implement.
var ErrUnsupportedGroup = errors.New("keyexchange: unsupported named group")

// ErrInvalidPeerShare is returned when a peer's share fails validation:
// an off-curve ECDHE point, an all-zero X25519/X448 contributory-behavior
// result, or an ML-KEM decapsulation failure.
var ErrInvalidPeerShare = errors.New("keyexchange: invalid peer key share")

// ClientState is the ephemeral private material a client holds between
// offering a share and completing the exchange.
type ClientState struct {
	Group wire.NamedGroup

	classicalPriv interface{}
	kemSeed       []byte
}

// ClientOffer generates a fresh ephemeral key pair for group and returns
// the wire-encoded public share plus the local state needed to complete
// the exchange once the peer responds.
func ClientOffer(group wire.NamedGroup, rnd io.Reader) (share []byte, state *ClientState, err error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	switch {
	case group.IsHybrid():
		return hybridClientOffer(group, rnd)
	case group.IsFFDHE():
		return ffdheClientOffer(group, rnd)
	case group == wire.X448:
		return x448ClientOffer(rnd)
	default:
		return ecdheClientOffer(group, rnd)
	}
}

// ServerComplete consumes the client's share and returns the server's
// response share plus the completed shared secret in one step (servers
// never hold ephemeral state across a round trip the way clients do).
func ServerComplete(group wire.NamedGroup, clientShare []byte, rnd io.Reader) (serverShare, sharedSecret []byte, err error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	switch {
	case group.IsHybrid():
		return hybridServerComplete(group, clientShare, rnd)
	case group.IsFFDHE():
		return ffdheServerComplete(group, clientShare, rnd)
	case group == wire.X448:
		return x448ServerComplete(clientShare, rnd)
	default:
		return ecdheServerComplete(group, clientShare, rnd)
	}
}

// ClientComplete finishes the exchange given the server's response share
// and the state saved from ClientOffer.
func ClientComplete(state *ClientState, serverShare []byte) (sharedSecret []byte, err error) {
	group := state.Group
	switch {
	case group.IsHybrid():
		return hybridClientComplete(state, serverShare)
	case group.IsFFDHE():
		return ffdheClientComplete(state, serverShare)
	case group == wire.X448:
		return x448ClientComplete(state, serverShare)
	default:
		return ecdheClientComplete(state, serverShare)
	}
}
