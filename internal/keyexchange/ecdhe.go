package keyexchange

import (
	"crypto/ecdh"
	"crypto/subtle"
	"io"

	"github.com/insinfo/tlslite-sub007/wire"
)

// curveFor maps a NamedGroup to its crypto/ecdh curve. X25519 and the
// NIST curves all share a uniform GenerateKey/ECDH contract in the
// standard library as of Go 1.20, which is what this engine relies on —
// scalar multiplication itself is a primitive this package never
// reimplements; only the protocol-level framing around it (point
// encoding, on-curve validation, all-zero rejection) is its job.
func curveFor(group wire.NamedGroup) (ecdh.Curve, bool) {
	switch group {
	case wire.X25519:
		return ecdh.X25519(), true
	case wire.Secp256r1:
		return ecdh.P256(), true
	case wire.Secp384r1:
		return ecdh.P384(), true
	case wire.Secp521r1:
		return ecdh.P521(), true
	default:
		return nil, false
	}
}

func ecdheClientOffer(group wire.NamedGroup, rnd io.Reader) ([]byte, *ClientState, error) {
	curve, ok := curveFor(group)
	if !ok {
		return nil, nil, ErrUnsupportedGroup
	}
	priv, err := curve.GenerateKey(rnd)
	if err != nil {
		return nil, nil, err
	}
	return priv.PublicKey().Bytes(), &ClientState{Group: group, classicalPriv: priv}, nil
}

func ecdheServerComplete(group wire.NamedGroup, clientShare []byte, rnd io.Reader) ([]byte, []byte, error) {
	curve, ok := curveFor(group)
	if !ok {
		return nil, nil, ErrUnsupportedGroup
	}
	peerPub, err := curve.NewPublicKey(clientShare)
	if err != nil {
		return nil, nil, ErrInvalidPeerShare
	}
	priv, err := curve.GenerateKey(rnd)
	if err != nil {
		return nil, nil, err
	}
	secret, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, nil, ErrInvalidPeerShare
	}
	if group == wire.X25519 && isAllZero(secret) {
		return nil, nil, ErrInvalidPeerShare
	}
	return priv.PublicKey().Bytes(), secret, nil
}

func ecdheClientComplete(state *ClientState, serverShare []byte) ([]byte, error) {
	curve, ok := curveFor(state.Group)
	if !ok {
		return nil, ErrUnsupportedGroup
	}
	priv := state.classicalPriv.(*ecdh.PrivateKey)
	peerPub, err := curve.NewPublicKey(serverShare)
	if err != nil {
		return nil, ErrInvalidPeerShare
	}
	secret, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, ErrInvalidPeerShare
	}
	if state.Group == wire.X25519 && isAllZero(secret) {
		return nil, ErrInvalidPeerShare
	}
	return secret, nil
}

func isAllZero(b []byte) bool {
	var acc byte
	for _, c := range b {
		acc |= c
	}
	return subtle.ConstantTimeByteEq(acc, 0) == 1
}
