package keyexchange

import (
	"crypto/ecdh"
	"io"

	"github.com/cloudflare/circl/kem"
	"github.com/cloudflare/circl/kem/mlkem/mlkem1024"
	"github.com/cloudflare/circl/kem/mlkem/mlkem768"

	"github.com/insinfo/tlslite-sub007/wire"
)

// hybridState holds the two halves of a composed classical+PQ exchange:
// the classical ephemeral private key and the ML-KEM decapsulation key
// the client needs once the server's ciphertext arrives.
type hybridState struct {
	classicalPriv *ecdh.PrivateKey
	kemPriv       kem.PrivateKey
}

// hybridParams returns the classical curve and ML-KEM scheme a hybrid
// group composes, and the share's split point (classical share length),
// per the composition order both the X25519Kyber768 draft and its
// ML-KEM successor use: classical_share || kem_encapsulation_key on
// offer, classical_share || kem_ciphertext on response, and
// classical_secret || kem_secret for the combined shared secret.
func hybridParams(group wire.NamedGroup) (ecdh.Curve, kem.Scheme, bool) {
	switch group {
	case wire.X25519Mlkem768:
		return ecdh.X25519(), mlkem768.Scheme(), true
	case wire.Secp256r1Mlkem768:
		return ecdh.P256(), mlkem768.Scheme(), true
	case wire.Secp384r1Mlkem1024:
		return ecdh.P384(), mlkem1024.Scheme(), true
	default:
		return nil, nil, false
	}
}

func hybridClientOffer(group wire.NamedGroup, rnd io.Reader) ([]byte, *ClientState, error) {
	curve, scheme, ok := hybridParams(group)
	if !ok {
		return nil, nil, ErrUnsupportedGroup
	}
	classicalPriv, err := curve.GenerateKey(rnd)
	if err != nil {
		return nil, nil, err
	}
	kemPub, kemPriv, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, err
	}
	kemPubBytes, err := kemPub.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}

	share := append(append([]byte{}, classicalPriv.PublicKey().Bytes()...), kemPubBytes...)
	state := &ClientState{
		Group: group,
		classicalPriv: &hybridState{
			classicalPriv: classicalPriv,
			kemPriv:       kemPriv,
		},
	}
	return share, state, nil
}

func hybridServerComplete(group wire.NamedGroup, clientShare []byte, rnd io.Reader) ([]byte, []byte, error) {
	curve, scheme, ok := hybridParams(group)
	if !ok {
		return nil, nil, ErrUnsupportedGroup
	}
	classicalLen := classicalShareLen(curve)
	if len(clientShare) <= classicalLen {
		return nil, nil, ErrInvalidPeerShare
	}
	clientClassical := clientShare[:classicalLen]
	clientKEMPub := clientShare[classicalLen:]
	if len(clientKEMPub) != scheme.PublicKeySize() {
		return nil, nil, ErrInvalidPeerShare
	}

	peerPub, err := curve.NewPublicKey(clientClassical)
	if err != nil {
		return nil, nil, ErrInvalidPeerShare
	}
	classicalPriv, err := curve.GenerateKey(rnd)
	if err != nil {
		return nil, nil, err
	}
	classicalSecret, err := classicalPriv.ECDH(peerPub)
	if err != nil {
		return nil, nil, ErrInvalidPeerShare
	}

	kemPub, err := scheme.UnmarshalBinaryPublicKey(clientKEMPub)
	if err != nil {
		return nil, nil, ErrInvalidPeerShare
	}
	ct, kemSecret, err := scheme.Encapsulate(kemPub)
	if err != nil {
		return nil, nil, err
	}

	serverShare := append(append([]byte{}, classicalPriv.PublicKey().Bytes()...), ct...)
	combined := append(append([]byte{}, classicalSecret...), kemSecret...)
	return serverShare, combined, nil
}

func hybridClientComplete(state *ClientState, serverShare []byte) ([]byte, error) {
	curve, scheme, ok := hybridParams(state.Group)
	if !ok {
		return nil, ErrUnsupportedGroup
	}
	hs := state.classicalPriv.(*hybridState)
	classicalLen := classicalShareLen(curve)
	if len(serverShare) <= classicalLen {
		return nil, ErrInvalidPeerShare
	}
	serverClassical := serverShare[:classicalLen]
	ct := serverShare[classicalLen:]
	if len(ct) != scheme.CiphertextSize() {
		return nil, ErrInvalidPeerShare
	}

	peerPub, err := curve.NewPublicKey(serverClassical)
	if err != nil {
		return nil, ErrInvalidPeerShare
	}
	classicalSecret, err := hs.classicalPriv.ECDH(peerPub)
	if err != nil {
		return nil, ErrInvalidPeerShare
	}

	kemSecret, err := scheme.Decapsulate(hs.kemPriv, ct)
	if err != nil {
		return nil, ErrInvalidPeerShare
	}

	return append(append([]byte{}, classicalSecret...), kemSecret...), nil
}

func classicalShareLen(curve ecdh.Curve) int {
	switch curve {
	case ecdh.X25519():
		return 32
	case ecdh.P256():
		return 65
	case ecdh.P384():
		return 97
	case ecdh.P521():
		return 133
	default:
		return 0
	}
}
