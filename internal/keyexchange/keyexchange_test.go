package keyexchange

import (
	"crypto/rand"
	"crypto/rsa"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insinfo/tlslite-sub007/wire"
)

func TestClassicalGroupsAgree(t *testing.T) {
	for _, group := range []wire.NamedGroup{wire.X25519, wire.Secp256r1, wire.Secp384r1, wire.Secp521r1, wire.X448} {
		t.Run(group.String(), func(t *testing.T) {
			share, state, err := ClientOffer(group, rand.Reader)
			require.NoError(t, err)
			require.NotEmpty(t, share)

			serverShare, serverSecret, err := ServerComplete(group, share, rand.Reader)
			require.NoError(t, err)

			clientSecret, err := ClientComplete(state, serverShare)
			require.NoError(t, err)
			assert.Equal(t, serverSecret, clientSecret)
			assert.NotEmpty(t, clientSecret)
		})
	}
}

func TestECDHEShareLengths(t *testing.T) {
	share, _, err := ClientOffer(wire.X25519, rand.Reader)
	require.NoError(t, err)
	assert.Len(t, share, 32)

	share, _, err = ClientOffer(wire.Secp256r1, rand.Reader)
	require.NoError(t, err)
	assert.Len(t, share, 65, "uncompressed P-256 point")
}

func TestECDHERejectsGarbagePeerShare(t *testing.T) {
	_, _, err := ServerComplete(wire.Secp256r1, []byte{4, 1, 2, 3}, rand.Reader)
	assert.ErrorIs(t, err, ErrInvalidPeerShare)

	_, state, err := ClientOffer(wire.Secp256r1, rand.Reader)
	require.NoError(t, err)
	_, err = ClientComplete(state, make([]byte, 65))
	assert.ErrorIs(t, err, ErrInvalidPeerShare, "all-zero point is off-curve")
}

func TestX25519ContributoryCheck(t *testing.T) {
	// An all-zero peer public key forces an all-zero shared secret, which
	// must be rejected.
	_, _, err := ServerComplete(wire.X25519, make([]byte, 32), rand.Reader)
	assert.Error(t, err)
}

func TestHybridGroupsAgree(t *testing.T) {
	for _, group := range []wire.NamedGroup{wire.X25519Mlkem768, wire.Secp256r1Mlkem768, wire.Secp384r1Mlkem1024} {
		t.Run(group.String(), func(t *testing.T) {
			share, state, err := ClientOffer(group, rand.Reader)
			require.NoError(t, err)

			serverShare, serverSecret, err := ServerComplete(group, share, rand.Reader)
			require.NoError(t, err)

			clientSecret, err := ClientComplete(state, serverShare)
			require.NoError(t, err)
			assert.Equal(t, serverSecret, clientSecret)
		})
	}
}

func TestHybridCompositionOrder(t *testing.T) {
	// x25519_mlkem768 shared secret = classical_ss (32) || mlkem_ss (32),
	// classical first.
	share, state, err := ClientOffer(wire.X25519Mlkem768, rand.Reader)
	require.NoError(t, err)
	assert.Len(t, share, 32+1184, "x25519 public || ML-KEM-768 encapsulation key")

	serverShare, secret, err := ServerComplete(wire.X25519Mlkem768, share, rand.Reader)
	require.NoError(t, err)
	assert.Len(t, serverShare, 32+1088, "x25519 public || ML-KEM-768 ciphertext")
	assert.Len(t, secret, 64)

	hs := state.classicalPriv.(*hybridState)
	classicalOnly, err := ecdheClientComplete(&ClientState{Group: wire.X25519, classicalPriv: hs.classicalPriv}, serverShare[:32])
	require.NoError(t, err)
	assert.Equal(t, classicalOnly, secret[:32], "classical half leads")
}

func TestHybridRejectsTruncatedShares(t *testing.T) {
	share, state, err := ClientOffer(wire.X25519Mlkem768, rand.Reader)
	require.NoError(t, err)

	_, _, err = ServerComplete(wire.X25519Mlkem768, share[:40], rand.Reader)
	assert.ErrorIs(t, err, ErrInvalidPeerShare)

	_, err = ClientComplete(state, make([]byte, 40))
	assert.ErrorIs(t, err, ErrInvalidPeerShare)
}

func TestFFDHERegisteredGroupAgrees(t *testing.T) {
	share, state, err := ClientOffer(wire.Ffdhe2048, rand.Reader)
	require.NoError(t, err)
	assert.Len(t, share, 256, "left-padded to |p|")

	serverShare, serverSecret, err := ServerComplete(wire.Ffdhe2048, share, rand.Reader)
	require.NoError(t, err)
	assert.Len(t, serverShare, 256)

	clientSecret, err := ClientComplete(state, serverShare)
	require.NoError(t, err)
	assert.Equal(t, serverSecret, clientSecret)
}

func TestDHEPrimePolicy(t *testing.T) {
	p, g, ok := FFDHEGroupParams(wire.Ffdhe2048)
	require.True(t, ok)

	// The registered prime is accepted.
	_, _, err := DHEOfferWithPrime(p, g, rand.Reader)
	assert.NoError(t, err)

	// A prime below the minimum size is refused regardless of safety.
	small, err := rand.Prime(rand.Reader, 512)
	require.NoError(t, err)
	_, _, err = DHEOfferWithPrime(small, big.NewInt(2), rand.Reader)
	assert.Error(t, err)
}

func TestFFDHERejectsDegenerateShares(t *testing.T) {
	p, _, _ := FFDHEGroupParams(wire.Ffdhe2048)
	_, state, err := ClientOffer(wire.Ffdhe2048, rand.Reader)
	require.NoError(t, err)

	one := leftPad(big.NewInt(1).Bytes(), 256)
	_, err = DHEComplete(state, one)
	assert.ErrorIs(t, err, ErrInvalidPeerShare, "Y=1 collapses the exchange")

	pMinusOne := leftPad(new(big.Int).Sub(p, big.NewInt(1)).Bytes(), 256)
	_, err = DHEComplete(state, pMinusOne)
	assert.ErrorIs(t, err, ErrInvalidPeerShare)
}

func TestRSAPreMasterRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	pms, err := RSAPreMasterSecret(0x0303, rand.Reader)
	require.NoError(t, err)
	require.Len(t, pms, 48)
	assert.Equal(t, byte(0x03), pms[0])
	assert.Equal(t, byte(0x03), pms[1])

	ct, err := RSAEncryptPreMaster(&key.PublicKey, pms, rand.Reader)
	require.NoError(t, err)

	got, err := RSADecryptPreMaster(key, ct, 0x0303, rand.Reader)
	require.NoError(t, err)
	assert.Equal(t, pms, got)
}

func TestRSADecryptSubstitutesOnFailure(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	// Garbage ciphertext: no error surfaces, a random 48-byte value does
	// (Bleichenbacher countermeasure).
	got, err := RSADecryptPreMaster(key, make([]byte, 256), 0x0303, rand.Reader)
	require.NoError(t, err)
	assert.Len(t, got, 48)

	// Wrong version inside an otherwise valid pre-master: substituted too.
	pms, _ := RSAPreMasterSecret(0x0302, rand.Reader)
	ct, _ := RSAEncryptPreMaster(&key.PublicKey, pms, rand.Reader)
	got, err = RSADecryptPreMaster(key, ct, 0x0303, rand.Reader)
	require.NoError(t, err)
	assert.NotEqual(t, pms, got)
}
