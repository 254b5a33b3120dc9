package keyexchange

import (
	"io"

	"github.com/cloudflare/circl/dh/x448"
)

// X448 is not implemented by crypto/ecdh, so this file is the one place
// in the package that reaches past the standard library, to
// github.com/cloudflare/circl — the library both Go's own experimental
// X25519Kyber768 support and modern uTLS-family forks use for primitives
// the stdlib doesn't carry yet.

func x448ClientOffer(rnd io.Reader) ([]byte, *ClientState, error) {
	var priv x448.Key
	if _, err := io.ReadFull(rnd, priv[:]); err != nil {
		return nil, nil, err
	}
	var pub x448.Key
	x448.KeyGen(&pub, &priv)
	return pub[:], &ClientState{Group: 0x001e, classicalPriv: priv}, nil
}

func x448ServerComplete(clientShare []byte, rnd io.Reader) ([]byte, []byte, error) {
	if len(clientShare) != x448.Size {
		return nil, nil, ErrInvalidPeerShare
	}
	var priv x448.Key
	if _, err := io.ReadFull(rnd, priv[:]); err != nil {
		return nil, nil, err
	}
	var pub, peer, secret x448.Key
	x448.KeyGen(&pub, &priv)
	copy(peer[:], clientShare)
	if ok := x448.Shared(&secret, &priv, &peer); !ok {
		return nil, nil, ErrInvalidPeerShare
	}
	return pub[:], secret[:], nil
}

func x448ClientComplete(state *ClientState, serverShare []byte) ([]byte, error) {
	if len(serverShare) != x448.Size {
		return nil, ErrInvalidPeerShare
	}
	priv := state.classicalPriv.(x448.Key)
	var peer, secret x448.Key
	copy(peer[:], serverShare)
	if ok := x448.Shared(&secret, &priv, &peer); !ok {
		return nil, ErrInvalidPeerShare
	}
	return secret[:], nil
}
