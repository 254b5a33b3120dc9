package messages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insinfo/tlslite-sub007/wire"
)

func TestClientHelloRoundTrip(t *testing.T) {
	ch := ClientHello{
		Random:          [32]byte{1, 2, 3, 4},
		LegacySessionID: []byte{0xaa, 0xbb},
		CipherSuites:    []uint16{0x1301, 0x1302, 0xc02f},
		Extensions: ExtensionList{
			{Type: wire.ExtSupportedVersions, Data: EncodeSupportedVersionsClient([]wire.ProtocolVersion{wire.VersionTLS13})},
			{Type: wire.ExtSupportedGroups, Data: EncodeSupportedGroups([]wire.NamedGroup{wire.X25519, wire.Secp256r1})},
			// An extension type this engine has never heard of must
			// survive decode → re-encode byte-for-byte.
			{Type: wire.ExtensionType(0xfafa), Data: []byte{0xde, 0xad, 0xbe, 0xef}},
		},
	}
	raw := ch.Marshal()
	require.Equal(t, byte(wire.HandshakeTypeClientHello), raw[0])

	decoded, err := DecodeClientHello(raw[4:])
	require.NoError(t, err)
	assert.Equal(t, ch.Random, decoded.Random)
	assert.Equal(t, ch.LegacySessionID, decoded.LegacySessionID)
	assert.Equal(t, ch.CipherSuites, decoded.CipherSuites)
	assert.Equal(t, wire.VersionTLS12, decoded.LegacyVersion)

	unknown, ok := decoded.Extensions.Get(wire.ExtensionType(0xfafa))
	require.True(t, ok)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, unknown.Data)

	reencoded := ClientHello{
		Random:                   decoded.Random,
		LegacySessionID:          decoded.LegacySessionID,
		CipherSuites:             decoded.CipherSuites,
		LegacyCompressionMethods: decoded.LegacyCompressionMethods,
		Extensions:               decoded.Extensions,
	}.Marshal()
	assert.Equal(t, raw, reencoded, "re-serialization of a parsed ClientHello must be exact")
}

func TestServerHelloRoundTripAndHRR(t *testing.T) {
	sh := ServerHello{
		Random:              [32]byte{9, 9, 9},
		LegacySessionIDEcho: []byte{1},
		CipherSuite:         0x1301,
		Extensions: ExtensionList{
			{Type: wire.ExtSupportedVersions, Data: EncodeSupportedVersionsServer(wire.VersionTLS13)},
			{Type: wire.ExtKeyShare, Data: EncodeKeyShareServerHello(KeyShareEntry{Group: wire.X25519, KeyExchange: make([]byte, 32)})},
		},
	}
	raw := sh.Marshal()
	decoded, err := DecodeServerHello(raw[4:])
	require.NoError(t, err)
	assert.Equal(t, sh.CipherSuite, decoded.CipherSuite)
	assert.False(t, decoded.IsHelloRetryRequest())

	hrr := sh
	hrr.Random = wire.HelloRetryRequestRandom
	decodedHRR, err := DecodeServerHello(hrr.Marshal()[4:])
	require.NoError(t, err)
	assert.True(t, decodedHRR.IsHelloRetryRequest())
}

func TestKeyShareVectors(t *testing.T) {
	entries := []KeyShareEntry{
		{Group: wire.X25519, KeyExchange: []byte{1, 2, 3}},
		{Group: wire.X25519Mlkem768, KeyExchange: make([]byte, 1216)},
	}
	decoded, err := DecodeKeyShareClientHello(EncodeKeyShareClientHello(entries))
	require.NoError(t, err)
	require.Len(t, decoded, 2)
	assert.Equal(t, entries[0].KeyExchange, decoded[0].KeyExchange)
	assert.Equal(t, wire.X25519Mlkem768, decoded[1].Group)

	g, err := DecodeKeyShareHelloRetryRequest(EncodeKeyShareHelloRetryRequest(wire.Secp256r1))
	require.NoError(t, err)
	assert.Equal(t, wire.Secp256r1, g)
}

func TestPreSharedKeyRoundTrip(t *testing.T) {
	psk := PreSharedKeyClientHello{
		Identities: []PSKIdentity{
			{Identity: []byte("ticket-1"), AgeAdd: 0x01020304},
			{Identity: []byte("external"), AgeAdd: 0},
		},
		Binders: [][]byte{make([]byte, 32), make([]byte, 48)},
	}
	decoded, err := DecodePreSharedKeyClientHello(EncodePreSharedKeyClientHello(psk))
	require.NoError(t, err)
	require.Len(t, decoded.Identities, 2)
	assert.Equal(t, uint32(0x01020304), decoded.Identities[0].AgeAdd)
	require.Len(t, decoded.Binders, 2)
	assert.Len(t, decoded.Binders[1], 48)

	idx, err := DecodePreSharedKeyServerHello(EncodePreSharedKeyServerHello(1))
	require.NoError(t, err)
	assert.Equal(t, uint16(1), idx)
}

func TestCertificateFramings(t *testing.T) {
	der := [][]byte{{0x30, 0x82, 0x01}, {0x30, 0x82, 0x02}}

	c13 := Certificate{
		RequestContext: []byte{0x42},
		Entries: []CertificateEntry{
			{Data: der[0], Extensions: ExtensionList{{Type: wire.ExtStatusRequest, Data: []byte{1, 0, 0, 0}}}},
			{Data: der[1]},
		},
	}
	decoded13, err := DecodeCertificateTLS13(c13.MarshalTLS13()[4:])
	require.NoError(t, err)
	assert.Equal(t, []byte{0x42}, decoded13.RequestContext)
	require.Len(t, decoded13.Entries, 2)
	assert.Equal(t, der[0], decoded13.Entries[0].Data)
	_, ok := decoded13.Entries[0].Extensions.Get(wire.ExtStatusRequest)
	assert.True(t, ok)

	c12 := Certificate{Entries: []CertificateEntry{{Data: der[0]}, {Data: der[1]}}}
	decoded12, err := DecodeCertificateTLS12(c12.MarshalTLS12()[4:])
	require.NoError(t, err)
	require.Len(t, decoded12.Entries, 2)
	assert.Equal(t, der[1], decoded12.Entries[1].Data)
}

func TestCertificateRequestFramings(t *testing.T) {
	cr13 := CertificateRequest{
		RequestContext: []byte{7, 7},
		Extensions: ExtensionList{
			{Type: wire.ExtSignatureAlgorithms, Data: EncodeSignatureSchemes([]wire.SignatureScheme{wire.Ed25519})},
		},
	}
	decoded13, err := DecodeCertificateRequestTLS13(cr13.MarshalTLS13()[4:])
	require.NoError(t, err)
	assert.Equal(t, []byte{7, 7}, decoded13.RequestContext)

	cr12 := CertificateRequest{
		CertificateTypes:       []byte{1, 64},
		SupportedSignatures:    []wire.SignatureScheme{wire.Ed25519, wire.PSSWithSHA256},
		CertificateAuthorities: [][]byte{{0x30, 0x10}},
	}
	decoded12, err := DecodeCertificateRequestTLS12(cr12.MarshalTLS12()[4:])
	require.NoError(t, err)
	assert.Equal(t, cr12.CertificateTypes, decoded12.CertificateTypes)
	assert.Equal(t, cr12.SupportedSignatures, decoded12.SupportedSignatures)
	assert.Equal(t, cr12.CertificateAuthorities, decoded12.CertificateAuthorities)
}

func TestServerKeyExchangeRoundTrip(t *testing.T) {
	ske := ServerKeyExchangeECDHE{
		Group:     wire.X25519,
		Point:     make([]byte, 32),
		Algorithm: wire.Ed25519,
		Signature: []byte{1, 2, 3, 4},
	}
	decoded, err := DecodeServerKeyExchangeECDHE(ske.Marshal()[4:])
	require.NoError(t, err)
	assert.Equal(t, ske.Group, decoded.Group)
	assert.Equal(t, ske.Signature, decoded.Signature)

	dhe := ServerKeyExchangeDHE{
		P: make([]byte, 256), G: []byte{2}, Y: make([]byte, 256),
		Algorithm: wire.PSSWithSHA256, Signature: []byte{9},
	}
	decodedDHE, err := DecodeServerKeyExchangeDHE(dhe.Marshal()[4:])
	require.NoError(t, err)
	assert.Equal(t, dhe.G, decodedDHE.G)
	assert.Len(t, decodedDHE.P, 256)
}

func TestClientKeyExchangePrefixWidths(t *testing.T) {
	ec := ClientKeyExchange{Exchange: []byte{1, 2, 3}}
	decodedEC, err := DecodeClientKeyExchangeECDHE(ec.MarshalECDHE()[4:])
	require.NoError(t, err)
	assert.Equal(t, ec.Exchange, decodedEC.Exchange)

	rsaOrDHE := ClientKeyExchange{Exchange: make([]byte, 256)}
	decodedR, err := DecodeClientKeyExchangeRSAOrDHE(rsaOrDHE.MarshalRSAOrDHE()[4:])
	require.NoError(t, err)
	assert.Len(t, decodedR.Exchange, 256)

	// A 256-byte exchange cannot survive the 1-byte ECDHE prefix.
	_, err = DecodeClientKeyExchangeECDHE(rsaOrDHE.MarshalRSAOrDHE()[4:])
	assert.Error(t, err)
}

func TestNewSessionTicketFramings(t *testing.T) {
	t13 := NewSessionTicket13{
		LifetimeSeconds: 7200,
		AgeAdd:          0xdeadbeef,
		Nonce:           []byte{0, 1},
		Ticket:          []byte("opaque-ticket"),
	}
	decoded, err := DecodeNewSessionTicket13(t13.Marshal()[4:])
	require.NoError(t, err)
	assert.Equal(t, uint32(7200), decoded.LifetimeSeconds)
	assert.Equal(t, uint32(0xdeadbeef), decoded.AgeAdd)
	assert.Equal(t, t13.Ticket, decoded.Ticket)

	t12 := NewSessionTicket12{LifetimeHintSeconds: 300, Ticket: []byte{5, 5}}
	decoded12, err := DecodeNewSessionTicket12(t12.Marshal()[4:])
	require.NoError(t, err)
	assert.Equal(t, uint32(300), decoded12.LifetimeHintSeconds)
}

func TestKeyUpdateValidation(t *testing.T) {
	ku, err := DecodeKeyUpdate(KeyUpdate{RequestUpdate: true}.Marshal()[4:])
	require.NoError(t, err)
	assert.True(t, ku.RequestUpdate)

	_, err = DecodeKeyUpdate([]byte{2})
	assert.Error(t, err, "update_requested values above 1 are illegal")
	_, err = DecodeKeyUpdate([]byte{})
	assert.Error(t, err)
}

func TestHeartbeatDiscardRules(t *testing.T) {
	hb := Heartbeat{Type: HeartbeatRequest, Payload: []byte("ping")}
	raw := hb.Marshal()
	decoded, err := DecodeHeartbeat(raw)
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), decoded.Payload)

	// payload_length that leaves no room for the 16 padding bytes.
	bad := []byte{HeartbeatRequest, 0x00, 0x20, 1, 2, 3}
	_, err = DecodeHeartbeat(bad)
	assert.Error(t, err)

	_, err = DecodeHeartbeat([]byte{3, 0, 0})
	assert.Error(t, err, "unknown heartbeat type")
}

func TestSupportedVersionsForms(t *testing.T) {
	vs, err := DecodeSupportedVersionsClient(EncodeSupportedVersionsClient([]wire.ProtocolVersion{wire.VersionTLS13, wire.VersionTLS12}))
	require.NoError(t, err)
	assert.Equal(t, []wire.ProtocolVersion{wire.VersionTLS13, wire.VersionTLS12}, vs)

	v, err := DecodeSupportedVersionsServer(EncodeSupportedVersionsServer(wire.VersionTLS13))
	require.NoError(t, err)
	assert.Equal(t, wire.VersionTLS13, v)
}

func TestALPNAndServerName(t *testing.T) {
	protos, err := DecodeALPN(EncodeALPN([]string{"h2", "http/1.1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"h2", "http/1.1"}, protos)

	name, err := DecodeServerNameList(EncodeServerNameList("example.com"))
	require.NoError(t, err)
	assert.Equal(t, "example.com", name)
}

func TestTruncatedDecodesFail(t *testing.T) {
	ch := ClientHello{Random: [32]byte{1}, CipherSuites: []uint16{0x1301}}
	raw := ch.Marshal()
	for _, cut := range []int{5, 10, 36, len(raw) - 1} {
		_, err := DecodeClientHello(raw[4:cut])
		assert.Error(t, err, "truncation at %d must not parse", cut)
	}
}
