package messages

import (
	"github.com/insinfo/tlslite-sub007/wire"
)

// Extension is a single, possibly-unrecognized ClientHello/ServerHello/...
// extension. Unknown extension types are kept as raw Data so they still
// contribute correctly to the transcript hash even though this engine
// doesn't interpret their contents.
type Extension struct {
	Type wire.ExtensionType
	Data []byte
}

// ExtensionList is an ordered set of extensions as carried on the wire.
type ExtensionList []Extension

func (l ExtensionList) Get(t wire.ExtensionType) (Extension, bool) {
	for _, e := range l {
		if e.Type == t {
			return e, true
		}
	}
	return Extension{}, false
}

func decodeExtensionList(r *reader) (ExtensionList, error) {
	data, err := r.vector16()
	if err != nil {
		return nil, err
	}
	er := newReader(data)
	var list ExtensionList
	for !er.done() {
		typ, err := er.u16()
		if err != nil {
			return nil, err
		}
		body, err := er.vector16()
		if err != nil {
			return nil, err
		}
		list = append(list, Extension{Type: wire.ExtensionType(typ), Data: append([]byte(nil), body...)})
	}
	return list, nil
}

func encodeExtensionList(list ExtensionList) []byte {
	var ew writer
	for _, e := range list {
		ew.u16(uint16(e.Type))
		ew.vector16(e.Data)
	}
	var outer writer
	outer.vector16(ew.bytes())
	return outer.bytes()
}

// --- Structured views over specific extensions, encoded/decoded on
// demand from an ExtensionList's raw Data rather than kept as separate
// message fields, mirroring how crypto/tls's own ClientHelloInfo exposes
// parsed extension data lazily. ---

// SupportedVersions carries either the ClientHello's offered list or the
// ServerHello's single selected version, per RFC 8446 §4.2.1.
type SupportedVersions struct {
	Versions []wire.ProtocolVersion // ClientHello form
	Selected wire.ProtocolVersion   // ServerHello form
}

func EncodeSupportedVersionsClient(versions []wire.ProtocolVersion) []byte {
	var w writer
	var body writer
	for _, v := range versions {
		body.u16(uint16(v))
	}
	w.vector8(body.bytes())
	return w.bytes()
}

func DecodeSupportedVersionsClient(data []byte) ([]wire.ProtocolVersion, error) {
	r := newReader(data)
	body, err := r.vector8()
	if err != nil {
		return nil, err
	}
	br := newReader(body)
	var out []wire.ProtocolVersion
	for !br.done() {
		v, err := br.u16()
		if err != nil {
			return nil, err
		}
		out = append(out, wire.ProtocolVersion(v))
	}
	return out, nil
}

func EncodeSupportedVersionsServer(v wire.ProtocolVersion) []byte {
	var w writer
	w.u16(uint16(v))
	return w.bytes()
}

func DecodeSupportedVersionsServer(data []byte) (wire.ProtocolVersion, error) {
	r := newReader(data)
	v, err := r.u16()
	return wire.ProtocolVersion(v), err
}

// KeyShareEntry is one (group, key_exchange) pair.
type KeyShareEntry struct {
	Group      wire.NamedGroup
	KeyExchange []byte
}

func EncodeKeyShareClientHello(entries []KeyShareEntry) []byte {
	var body writer
	for _, e := range entries {
		body.u16(uint16(e.Group))
		body.vector16(e.KeyExchange)
	}
	var w writer
	w.vector16(body.bytes())
	return w.bytes()
}

func DecodeKeyShareClientHello(data []byte) ([]KeyShareEntry, error) {
	r := newReader(data)
	body, err := r.vector16()
	if err != nil {
		return nil, err
	}
	br := newReader(body)
	var out []KeyShareEntry
	for !br.done() {
		g, err := br.u16()
		if err != nil {
			return nil, err
		}
		ke, err := br.vector16()
		if err != nil {
			return nil, err
		}
		out = append(out, KeyShareEntry{Group: wire.NamedGroup(g), KeyExchange: append([]byte(nil), ke...)})
	}
	return out, nil
}

func EncodeKeyShareServerHello(e KeyShareEntry) []byte {
	var w writer
	w.u16(uint16(e.Group))
	w.vector16(e.KeyExchange)
	return w.bytes()
}

func DecodeKeyShareServerHello(data []byte) (KeyShareEntry, error) {
	r := newReader(data)
	g, err := r.u16()
	if err != nil {
		return KeyShareEntry{}, err
	}
	ke, err := r.vector16()
	if err != nil {
		return KeyShareEntry{}, err
	}
	return KeyShareEntry{Group: wire.NamedGroup(g), KeyExchange: append([]byte(nil), ke...)}, nil
}

// EncodeKeyShareHelloRetryRequest encodes the single selected group an
// HRR sends back: no key_exchange bytes, just the group ID.
func EncodeKeyShareHelloRetryRequest(g wire.NamedGroup) []byte {
	var w writer
	w.u16(uint16(g))
	return w.bytes()
}

func DecodeKeyShareHelloRetryRequest(data []byte) (wire.NamedGroup, error) {
	r := newReader(data)
	g, err := r.u16()
	return wire.NamedGroup(g), err
}

func EncodeSupportedGroups(groups []wire.NamedGroup) []byte {
	var body writer
	for _, g := range groups {
		body.u16(uint16(g))
	}
	var w writer
	w.vector16(body.bytes())
	return w.bytes()
}

func DecodeSupportedGroups(data []byte) ([]wire.NamedGroup, error) {
	r := newReader(data)
	body, err := r.vector16()
	if err != nil {
		return nil, err
	}
	br := newReader(body)
	var out []wire.NamedGroup
	for !br.done() {
		g, err := br.u16()
		if err != nil {
			return nil, err
		}
		out = append(out, wire.NamedGroup(g))
	}
	return out, nil
}

func EncodeSignatureSchemes(schemes []wire.SignatureScheme) []byte {
	var body writer
	for _, s := range schemes {
		body.u16(uint16(s))
	}
	var w writer
	w.vector16(body.bytes())
	return w.bytes()
}

func DecodeSignatureSchemes(data []byte) ([]wire.SignatureScheme, error) {
	r := newReader(data)
	body, err := r.vector16()
	if err != nil {
		return nil, err
	}
	br := newReader(body)
	var out []wire.SignatureScheme
	for !br.done() {
		s, err := br.u16()
		if err != nil {
			return nil, err
		}
		out = append(out, wire.SignatureScheme(s))
	}
	return out, nil
}

func EncodeServerNameList(name string) []byte {
	var hostNames writer
	hostNames.u8(0) // name_type: host_name
	hostNames.vector16([]byte(name))
	var w writer
	w.vector16(hostNames.bytes())
	return w.bytes()
}

func DecodeServerNameList(data []byte) (string, error) {
	r := newReader(data)
	body, err := r.vector16()
	if err != nil {
		return "", err
	}
	br := newReader(body)
	if br.done() {
		return "", nil
	}
	typ, err := br.u8()
	if err != nil || typ != 0 {
		return "", ErrDecode
	}
	name, err := br.vector16()
	if err != nil {
		return "", err
	}
	return string(name), nil
}

func EncodeALPN(protocols []string) []byte {
	var list writer
	for _, p := range protocols {
		list.vector8([]byte(p))
	}
	var w writer
	w.vector16(list.bytes())
	return w.bytes()
}

func DecodeALPN(data []byte) ([]string, error) {
	r := newReader(data)
	body, err := r.vector16()
	if err != nil {
		return nil, err
	}
	br := newReader(body)
	var out []string
	for !br.done() {
		p, err := br.vector8()
		if err != nil {
			return nil, err
		}
		out = append(out, string(p))
	}
	return out, nil
}

// PSKIdentity is one offered identity/obfuscated-ticket-age pair in the
// ClientHello pre_shared_key extension.
type PSKIdentity struct {
	Identity []byte
	AgeAdd   uint32
}

// PreSharedKeyClientHello is the full pre_shared_key extension body on
// the ClientHello side: offered identities plus opaque binders, encoded
// and decoded separately so the binders can be computed/verified over
// everything that precedes them in the same message.
type PreSharedKeyClientHello struct {
	Identities []PSKIdentity
	Binders    [][]byte
}

func EncodePreSharedKeyClientHello(p PreSharedKeyClientHello) []byte {
	var ids writer
	for _, id := range p.Identities {
		ids.vector16(id.Identity)
		var age [4]byte
		age[0] = byte(id.AgeAdd >> 24)
		age[1] = byte(id.AgeAdd >> 16)
		age[2] = byte(id.AgeAdd >> 8)
		age[3] = byte(id.AgeAdd)
		ids.raw(age[:])
	}
	var binders writer
	for _, b := range p.Binders {
		binders.vector8(b)
	}
	var w writer
	w.vector16(ids.bytes())
	w.vector16(binders.bytes())
	return w.bytes()
}

func DecodePreSharedKeyClientHello(data []byte) (PreSharedKeyClientHello, error) {
	r := newReader(data)
	idBytes, err := r.vector16()
	if err != nil {
		return PreSharedKeyClientHello{}, err
	}
	binderBytes, err := r.vector16()
	if err != nil {
		return PreSharedKeyClientHello{}, err
	}

	var out PreSharedKeyClientHello
	ir := newReader(idBytes)
	for !ir.done() {
		identity, err := ir.vector16()
		if err != nil {
			return PreSharedKeyClientHello{}, err
		}
		ageBytes, err := ir.bytes(4)
		if err != nil {
			return PreSharedKeyClientHello{}, err
		}
		age := uint32(ageBytes[0])<<24 | uint32(ageBytes[1])<<16 | uint32(ageBytes[2])<<8 | uint32(ageBytes[3])
		out.Identities = append(out.Identities, PSKIdentity{Identity: append([]byte(nil), identity...), AgeAdd: age})
	}
	br := newReader(binderBytes)
	for !br.done() {
		b, err := br.vector8()
		if err != nil {
			return PreSharedKeyClientHello{}, err
		}
		out.Binders = append(out.Binders, append([]byte(nil), b...))
	}
	return out, nil
}

func EncodePreSharedKeyServerHello(selected uint16) []byte {
	var w writer
	w.u16(selected)
	return w.bytes()
}

func DecodePreSharedKeyServerHello(data []byte) (uint16, error) {
	r := newReader(data)
	return r.u16()
}

// PSK key exchange modes.
const (
	PSKModePSKOnly    byte = 0
	PSKModePSKWithDHE byte = 1
)

func EncodePSKKeyExchangeModes(modes []byte) []byte {
	var w writer
	w.vector8(modes)
	return w.bytes()
}

func DecodePSKKeyExchangeModes(data []byte) ([]byte, error) {
	r := newReader(data)
	return r.vector8()
}

func EncodeCookie(cookie []byte) []byte {
	var w writer
	w.vector16(cookie)
	return w.bytes()
}

func DecodeCookie(data []byte) ([]byte, error) {
	r := newReader(data)
	return r.vector16()
}

// EncodeRecordSizeLimit/Decode implement RFC 8449: a bare uint16 limit.
func EncodeRecordSizeLimit(limit uint16) []byte {
	var w writer
	w.u16(limit)
	return w.bytes()
}

func DecodeRecordSizeLimit(data []byte) (uint16, error) {
	r := newReader(data)
	return r.u16()
}

// Heartbeat mode values (RFC 6520 §3).
const (
	HeartbeatModePeerAllowedToSend    byte = 1
	HeartbeatModePeerNotAllowedToSend byte = 2
)

func EncodeHeartbeatMode(mode byte) []byte { return []byte{mode} }

func DecodeHeartbeatMode(data []byte) (byte, error) {
	if len(data) != 1 {
		return 0, ErrDecode
	}
	return data[0], nil
}
