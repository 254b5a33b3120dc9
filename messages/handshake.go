package messages

import (
	"bytes"

	"github.com/insinfo/tlslite-sub007/wire"
)

// ClientHello is the first message of every handshake. Its wire
// legacy_version is always frozen at TLS 1.2 (0x0303); real version
// negotiation happens entirely through the supported_versions extension.
type ClientHello struct {
	// LegacyVersion is captured on decode for pre-1.3 version negotiation
	// (a client with no supported_versions extension negotiates by it);
	// Marshal always writes 0x0303 regardless.
	LegacyVersion            wire.ProtocolVersion
	Random                   [32]byte
	LegacySessionID          []byte // echoed back for TLS 1.2 compatibility; opaque to TLS 1.3
	CipherSuites             []uint16
	LegacyCompressionMethods []byte
	Extensions               ExtensionList
}

func (ch ClientHello) Marshal() []byte {
	var w writer
	w.u16(uint16(wire.VersionTLS12))
	w.raw(ch.Random[:])
	w.vector8(ch.LegacySessionID)

	var suites writer
	for _, s := range ch.CipherSuites {
		suites.u16(s)
	}
	w.vector16(suites.bytes())

	compression := ch.LegacyCompressionMethods
	if compression == nil {
		compression = []byte{0}
	}
	w.vector8(compression)
	w.raw(encodeExtensionList(ch.Extensions))
	return header(wire.HandshakeTypeClientHello, w.bytes())
}

func DecodeClientHello(body []byte) (ClientHello, error) {
	r := newReader(body)
	legacy, err := r.u16()
	if err != nil {
		return ClientHello{}, err
	}
	randBytes, err := r.bytes(32)
	if err != nil {
		return ClientHello{}, err
	}
	sessionID, err := r.vector8()
	if err != nil {
		return ClientHello{}, err
	}
	suiteBytes, err := r.vector16()
	if err != nil {
		return ClientHello{}, err
	}
	compression, err := r.vector8()
	if err != nil {
		return ClientHello{}, err
	}
	exts, err := decodeExtensionList(r)
	if err != nil {
		return ClientHello{}, err
	}

	var ch ClientHello
	ch.LegacyVersion = wire.ProtocolVersion(legacy)
	copy(ch.Random[:], randBytes)
	ch.LegacySessionID = append([]byte(nil), sessionID...)
	ch.LegacyCompressionMethods = append([]byte(nil), compression...)
	ch.Extensions = exts

	sr := newReader(suiteBytes)
	for !sr.done() {
		s, err := sr.u16()
		if err != nil {
			return ClientHello{}, err
		}
		ch.CipherSuites = append(ch.CipherSuites, s)
	}
	return ch, nil
}

// ServerHello also carries the HelloRetryRequest case: an HRR is
// wire-identical to a ServerHello except Random equals the fixed
// HelloRetryRequestRandom constant.
type ServerHello struct {
	// LegacyVersion is captured on decode; see ClientHello.LegacyVersion.
	LegacyVersion           wire.ProtocolVersion
	Random                  [32]byte
	LegacySessionIDEcho     []byte
	CipherSuite             uint16
	LegacyCompressionMethod byte
	Extensions              ExtensionList
}

// IsHelloRetryRequest reports whether sh's Random marks it as an HRR.
func (sh ServerHello) IsHelloRetryRequest() bool {
	return bytes.Equal(sh.Random[:], wire.HelloRetryRequestRandom[:])
}

func (sh ServerHello) Marshal() []byte {
	var w writer
	w.u16(uint16(wire.VersionTLS12))
	w.raw(sh.Random[:])
	w.vector8(sh.LegacySessionIDEcho)
	w.u16(sh.CipherSuite)
	w.u8(sh.LegacyCompressionMethod)
	w.raw(encodeExtensionList(sh.Extensions))
	return header(wire.HandshakeTypeServerHello, w.bytes())
}

func DecodeServerHello(body []byte) (ServerHello, error) {
	r := newReader(body)
	legacy, err := r.u16()
	if err != nil {
		return ServerHello{}, err
	}
	randBytes, err := r.bytes(32)
	if err != nil {
		return ServerHello{}, err
	}
	sessionID, err := r.vector8()
	if err != nil {
		return ServerHello{}, err
	}
	suite, err := r.u16()
	if err != nil {
		return ServerHello{}, err
	}
	compression, err := r.u8()
	if err != nil {
		return ServerHello{}, err
	}
	exts, err := decodeExtensionList(r)
	if err != nil {
		return ServerHello{}, err
	}
	var sh ServerHello
	sh.LegacyVersion = wire.ProtocolVersion(legacy)
	copy(sh.Random[:], randBytes)
	sh.LegacySessionIDEcho = append([]byte(nil), sessionID...)
	sh.CipherSuite = suite
	sh.LegacyCompressionMethod = compression
	sh.Extensions = exts
	return sh, nil
}

// EncryptedExtensions carries the TLS 1.3 extensions that don't need to
// be visible before encryption starts.
type EncryptedExtensions struct {
	Extensions ExtensionList
}

func (ee EncryptedExtensions) Marshal() []byte {
	return header(wire.HandshakeTypeEncryptedExtensions, encodeExtensionList(ee.Extensions))
}

func DecodeEncryptedExtensions(body []byte) (EncryptedExtensions, error) {
	r := newReader(body)
	exts, err := decodeExtensionList(r)
	if err != nil {
		return EncryptedExtensions{}, err
	}
	return EncryptedExtensions{Extensions: exts}, nil
}

// Finished carries verify_data; length equals the negotiated
// hash's output size, not a fixed constant.
type Finished struct {
	VerifyData []byte
}

func (f Finished) Marshal() []byte {
	return header(wire.HandshakeTypeFinished, f.VerifyData)
}

func DecodeFinished(body []byte) Finished {
	return Finished{VerifyData: append([]byte(nil), body...)}
}

// KeyUpdate requests a traffic-secret ratchet, optionally also asking the
// peer to update its own sending keys (RFC 8446 §4.6.3).
type KeyUpdate struct {
	RequestUpdate bool
}

func (k KeyUpdate) Marshal() []byte {
	v := byte(0)
	if k.RequestUpdate {
		v = 1
	}
	return header(wire.HandshakeTypeKeyUpdate, []byte{v})
}

func DecodeKeyUpdate(body []byte) (KeyUpdate, error) {
	if len(body) != 1 || body[0] > 1 {
		return KeyUpdate{}, ErrDecode
	}
	return KeyUpdate{RequestUpdate: body[0] == 1}, nil
}

// EndOfEarlyData has an empty body (RFC 8446 §4.5); never honored by
// this engine (early data is parsed but never replayed — see Non-goals).
type EndOfEarlyData struct{}

func (EndOfEarlyData) Marshal() []byte {
	return header(wire.HandshakeTypeEndOfEarlyData, nil)
}

// ServerHelloDone closes the TLS 1.2 server flight (RFC 5246 §7.4.5);
// its body is empty.
type ServerHelloDone struct{}

func (ServerHelloDone) Marshal() []byte {
	return header(wire.HandshakeTypeServerHelloDone, nil)
}

// HelloRequest is the TLS 1.2 renegotiation trigger (RFC 5246 §7.4.1.1);
// this engine refuses renegotiation but must recognize the message.
type HelloRequest struct{}

func (HelloRequest) Marshal() []byte {
	return header(wire.HandshakeTypeHelloRequest, nil)
}
