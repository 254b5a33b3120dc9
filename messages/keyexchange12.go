package messages

import "github.com/insinfo/tlslite-sub007/wire"

// ServerKeyExchangeECDHE is the TLS 1.2 ECDHE ServerKeyExchange body
// (RFC 8422 §5.4): curve params + signed transcript. This engine only
// offers/accepts named_curve (not explicit prime/char2 curves).
type ServerKeyExchangeECDHE struct {
	Group     wire.NamedGroup
	Point     []byte
	Algorithm wire.SignatureScheme
	Signature []byte
}

const curveTypeNamedCurve = 3

func (ske ServerKeyExchangeECDHE) Marshal() []byte {
	var w writer
	w.u8(curveTypeNamedCurve)
	w.u16(uint16(ske.Group))
	w.vector8(ske.Point)
	w.u16(uint16(ske.Algorithm))
	w.vector16(ske.Signature)
	return header(wire.HandshakeTypeServerKeyExchange, w.bytes())
}

func DecodeServerKeyExchangeECDHE(body []byte) (ServerKeyExchangeECDHE, error) {
	r := newReader(body)
	curveType, err := r.u8()
	if err != nil || curveType != curveTypeNamedCurve {
		return ServerKeyExchangeECDHE{}, ErrDecode
	}
	group, err := r.u16()
	if err != nil {
		return ServerKeyExchangeECDHE{}, err
	}
	point, err := r.vector8()
	if err != nil {
		return ServerKeyExchangeECDHE{}, err
	}
	alg, err := r.u16()
	if err != nil {
		return ServerKeyExchangeECDHE{}, err
	}
	sig, err := r.vector16()
	if err != nil {
		return ServerKeyExchangeECDHE{}, err
	}
	return ServerKeyExchangeECDHE{
		Group:     wire.NamedGroup(group),
		Point:     append([]byte(nil), point...),
		Algorithm: wire.SignatureScheme(alg),
		Signature: append([]byte(nil), sig...),
	}, nil
}

// ServerKeyExchangeDHE is the classic finite-field DHE ServerKeyExchange
// body (RFC 5246 §7.4.3): explicit (p, g, Y) plus signed transcript.
type ServerKeyExchangeDHE struct {
	P, G, Y   []byte
	Algorithm wire.SignatureScheme
	Signature []byte
}

func (ske ServerKeyExchangeDHE) Marshal() []byte {
	var w writer
	w.vector16(ske.P)
	w.vector16(ske.G)
	w.vector16(ske.Y)
	w.u16(uint16(ske.Algorithm))
	w.vector16(ske.Signature)
	return header(wire.HandshakeTypeServerKeyExchange, w.bytes())
}

func DecodeServerKeyExchangeDHE(body []byte) (ServerKeyExchangeDHE, error) {
	r := newReader(body)
	p, err := r.vector16()
	if err != nil {
		return ServerKeyExchangeDHE{}, err
	}
	g, err := r.vector16()
	if err != nil {
		return ServerKeyExchangeDHE{}, err
	}
	y, err := r.vector16()
	if err != nil {
		return ServerKeyExchangeDHE{}, err
	}
	alg, err := r.u16()
	if err != nil {
		return ServerKeyExchangeDHE{}, err
	}
	sig, err := r.vector16()
	if err != nil {
		return ServerKeyExchangeDHE{}, err
	}
	return ServerKeyExchangeDHE{
		P: append([]byte(nil), p...), G: append([]byte(nil), g...), Y: append([]byte(nil), y...),
		Algorithm: wire.SignatureScheme(alg), Signature: append([]byte(nil), sig...),
	}, nil
}

// ClientKeyExchange carries the client's half of the key exchange: an
// FFDHE public share or an RSA-encrypted pre-master secret, both
// 2-byte-length-prefixed (RFC 5246 §7.4.7.1/§7.4.7.2); ECDHE instead uses
// a 1-byte-length-prefixed EC point (RFC 8422 §5.7), hence the split
// constructors below sharing one wire shape at different prefix widths.
type ClientKeyExchange struct {
	Exchange []byte
}

func (cke ClientKeyExchange) MarshalRSAOrDHE() []byte {
	var w writer
	w.vector16(cke.Exchange)
	return header(wire.HandshakeTypeClientKeyExchange, w.bytes())
}

func DecodeClientKeyExchangeRSAOrDHE(body []byte) (ClientKeyExchange, error) {
	r := newReader(body)
	ex, err := r.vector16()
	if err != nil {
		return ClientKeyExchange{}, err
	}
	return ClientKeyExchange{Exchange: append([]byte(nil), ex...)}, nil
}

func (cke ClientKeyExchange) MarshalECDHE() []byte {
	var w writer
	w.vector8(cke.Exchange)
	return header(wire.HandshakeTypeClientKeyExchange, w.bytes())
}

func DecodeClientKeyExchangeECDHE(body []byte) (ClientKeyExchange, error) {
	r := newReader(body)
	ex, err := r.vector8()
	if err != nil {
		return ClientKeyExchange{}, err
	}
	if !r.done() {
		return ClientKeyExchange{}, ErrDecode
	}
	return ClientKeyExchange{Exchange: append([]byte(nil), ex...)}, nil
}
