package handshakestate

import (
	"crypto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/wire"
)

func TestNegotiateServerVersion(t *testing.T) {
	cases := []struct {
		name     string
		offered  []wire.ProtocolVersion
		legacy   wire.ProtocolVersion
		min, max wire.ProtocolVersion
		want     wire.ProtocolVersion
		ok       bool
	}{
		{"tls13 via supported_versions", []wire.ProtocolVersion{wire.VersionTLS13}, wire.VersionTLS12, wire.VersionTLS12, wire.VersionTLS13, wire.VersionTLS13, true},
		{"tls12 via supported_versions", []wire.ProtocolVersion{wire.VersionTLS12}, wire.VersionTLS12, wire.VersionTLS12, wire.VersionTLS13, wire.VersionTLS12, true},
		{"prefers first mutually supported", []wire.ProtocolVersion{wire.VersionTLS13, wire.VersionTLS12}, wire.VersionTLS12, wire.VersionTLS12, wire.VersionTLS13, wire.VersionTLS13, true},
		{"server capped at 1.2", []wire.ProtocolVersion{wire.VersionTLS13, wire.VersionTLS12}, wire.VersionTLS12, wire.VersionTLS12, wire.VersionTLS12, wire.VersionTLS12, true},
		{"legacy only", nil, wire.VersionTLS12, wire.VersionTLS12, wire.VersionTLS13, wire.VersionTLS12, true},
		{"legacy 1.3 clamps to 1.2", nil, wire.VersionTLS13, wire.VersionTLS12, wire.VersionTLS13, wire.VersionTLS12, true},
		{"legacy too old", nil, wire.VersionTLS11, wire.VersionTLS12, wire.VersionTLS13, 0, false},
		{"no overlap", []wire.ProtocolVersion{wire.VersionTLS10}, wire.VersionTLS10, wire.VersionTLS12, wire.VersionTLS13, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := negotiateServerVersion(tc.offered, tc.legacy, tc.min, tc.max)
			assert.Equal(t, tc.ok, ok)
			if ok {
				assert.Equal(t, tc.want, got)
			}
		})
	}
}

func TestSelectCipherSuite12Preference(t *testing.T) {
	client := []uint16{cipherstate.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, cipherstate.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384}
	server := []uint16{cipherstate.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, cipherstate.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256}
	all := func(uint16) bool { return true }

	got := selectCipherSuite12(client, server, false, all)
	require.NotNil(t, got)
	assert.Equal(t, cipherstate.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, got.ID, "client order wins by default")

	got = selectCipherSuite12(client, server, true, all)
	require.NotNil(t, got)
	assert.Equal(t, cipherstate.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, got.ID, "server order wins when configured")

	none := func(uint16) bool { return false }
	assert.Nil(t, selectCipherSuite12(client, server, false, none), "credential filter applies")
}

func TestSelectGroupFirstClientListed(t *testing.T) {
	client := []wire.NamedGroup{wire.X448, wire.Secp256r1, wire.X25519}
	server := []wire.NamedGroup{wire.X25519, wire.Secp256r1}
	g, ok := selectGroup(client, server)
	require.True(t, ok)
	assert.Equal(t, wire.Secp256r1, g, "first client-listed group the server supports")

	_, ok = selectGroup([]wire.NamedGroup{wire.X448}, server)
	assert.False(t, ok)
}

func TestSelectALPNServerPreference(t *testing.T) {
	got, ok := selectALPN([]string{"h2", "http/1.1"}, []string{"http/1.1", "h2"})
	require.True(t, ok)
	assert.Equal(t, "h2", got)

	_, ok = selectALPN([]string{"h3"}, []string{"h2"})
	assert.False(t, ok)
}

func TestDowngradeCanary(t *testing.T) {
	var random [32]byte
	copy(random[24:], wire.DowngradeCanaryTLS12[:])

	err := checkDowngradeCanary(wire.VersionTLS12, random, true)
	assert.Error(t, err, "1.3-capable client must refuse the sentinel at 1.2")

	assert.NoError(t, checkDowngradeCanary(wire.VersionTLS13, random, true),
		"sentinel is meaningless when 1.3 was actually negotiated")
	assert.NoError(t, checkDowngradeCanary(wire.VersionTLS12, random, false),
		"a 1.2-only client never checks")

	var clean [32]byte
	assert.NoError(t, checkDowngradeCanary(wire.VersionTLS12, clean, true))
}

func TestIntersectSignatureSchemes(t *testing.T) {
	local := []wire.SignatureScheme{wire.Ed25519, wire.PSSWithSHA256, wire.ECDSAWithP256AndSHA256}
	peer := []wire.SignatureScheme{wire.ECDSAWithP256AndSHA256, wire.Ed25519}
	got := intersectSignatureSchemes(local, peer)
	assert.Equal(t, []wire.SignatureScheme{wire.Ed25519, wire.ECDSAWithP256AndSHA256}, got, "local order, peer filter")
}

func TestHashForSuite12(t *testing.T) {
	assert.Equal(t, crypto.SHA384, hashForSuite12(cipherstate.CipherSuiteByID(cipherstate.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384)))
	assert.Equal(t, crypto.SHA256, hashForSuite12(cipherstate.CipherSuiteByID(cipherstate.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)))
}

func TestTranscriptHRRReplacement(t *testing.T) {
	tr := NewTranscript(crypto.SHA256)
	ch1 := []byte{1, 0, 0, 2, 0xaa, 0xbb}
	tr.Add(ch1)

	sumBefore := tr.Sum()
	tr.ReplaceFirstWithMessageHash()
	sumAfter := tr.Sum()
	assert.NotEqual(t, sumBefore, sumAfter)

	// Replacement is a synthetic message_hash message: type 254, 3-byte
	// length, then Hash(CH1).
	h := crypto.SHA256.New()
	h.Write(ch1)
	want := NewTranscript(crypto.SHA256)
	mh := append([]byte{254, 0, 0, 32}, h.Sum(nil)...)
	want.Add(mh)
	assert.Equal(t, want.Sum(), sumAfter)
}

func TestTranscriptSetHashRetargets(t *testing.T) {
	tr := NewTranscript(crypto.SHA256)
	tr.Add([]byte{1, 0, 0, 0})
	sum256 := tr.Sum()
	require.Len(t, sum256, 32)

	tr.SetHash(crypto.SHA384)
	sum384 := tr.Sum()
	assert.Len(t, sum384, 48)
	assert.Equal(t, tr.SumUnder(crypto.SHA256), sum256, "raw messages retained exactly")
}

func TestTranscriptBytesExact(t *testing.T) {
	tr := NewTranscript(crypto.SHA256)
	a := []byte{1, 0, 0, 1, 0x55}
	b := []byte{2, 0, 0, 2, 0x66, 0x77}
	tr.Add(a)
	tr.Add(b)
	assert.Equal(t, append(append([]byte{}, a...), b...), tr.Bytes())
}

func TestBinderComputeVerifySymmetry(t *testing.T) {
	secret := []byte("external-psk-secret")
	truncatedHash := crypto.SHA256.New().Sum(nil)

	sched := scheduleForOffer(offeredPSK{Secret: secret, Hash: crypto.SHA256})
	binderKey := sched.BinderKey("ext binder")
	finishedKey := sched.FinishedKey(binderKey)
	binder := computeBinder(crypto.SHA256, finishedKey, truncatedHash)
	assert.Len(t, binder, 32)
	assert.True(t, verifyBinder(crypto.SHA256, finishedKey, truncatedHash, binder))

	tampered := append([]byte(nil), binder...)
	tampered[0] ^= 1
	assert.False(t, verifyBinder(crypto.SHA256, finishedKey, truncatedHash, tampered))
}

func TestBuildPSKOffersOrdering(t *testing.T) {
	store := &stubPSKStore{psks: []*PSKConfig{
		{Identity: []byte("ext-1"), Secret: []byte("s1"), Hash: crypto.SHA256},
	}}
	tickets := []*NewSessionTicket{{
		Ticket:           []byte("ticket-1"),
		CipherSuite:      cipherstate.TLS_AES_128_GCM_SHA256,
		ResumptionSecret: []byte("rms"),
		Nonce:            []byte{0},
	}}
	offers := buildPSKOffers(store, tickets, time.Now())
	require.Len(t, offers, 2)
	assert.Equal(t, []byte("ext-1"), offers[0].Identity, "external PSKs lead")
	assert.True(t, offers[1].IsResumption)
}

type stubPSKStore struct{ psks []*PSKConfig }

func (s *stubPSKStore) Lookup(identity []byte) (*PSKConfig, bool) {
	for _, p := range s.psks {
		if string(p.Identity) == string(identity) {
			return p, true
		}
	}
	return nil, false
}

func (s *stubPSKStore) All() []*PSKConfig { return s.psks }
