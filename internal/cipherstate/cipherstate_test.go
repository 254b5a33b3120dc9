package cipherstate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tls13Pair(t *testing.T) (write, read *DirectionState, suite *CipherSuiteTLS13) {
	t.Helper()
	suite = CipherSuiteTLS13ByID(TLS_AES_128_GCM_SHA256)
	require.NotNil(t, suite)
	key := make([]byte, suite.KeyLen)
	iv := make([]byte, 12)
	key[0], iv[0] = 0x42, 0x24

	write = NullDirectionState()
	read = NullDirectionState()
	write.InstallAEAD13(suite, key, iv, false)
	read.InstallAEAD13(suite, key, iv, true)
	return
}

func TestTLS13SealOpenRoundTrip(t *testing.T) {
	write, read, _ := tls13Pair(t)

	inner := append([]byte("hello records"), 23) // type-tagged inner plaintext
	ct := write.SealApplicationRecordTLS13(inner, len(inner)+write.Overhead())
	pt, err := read.OpenApplicationRecordTLS13(ct)
	require.NoError(t, err)
	assert.Equal(t, inner, pt)
}

func TestTLS13SequenceNumbersAdvance(t *testing.T) {
	write, read, _ := tls13Pair(t)

	var cts [][]byte
	for i := 0; i < 5; i++ {
		assert.Equal(t, uint64(i), write.SequenceNumber())
		inner := append([]byte{byte(i)}, 23)
		cts = append(cts, write.SealApplicationRecordTLS13(inner, len(inner)+write.Overhead()))
	}
	// Same plaintext sealed under different sequence numbers must differ.
	inner := append([]byte{0}, 23)
	other := NullDirectionState()
	suite := CipherSuiteTLS13ByID(TLS_AES_128_GCM_SHA256)
	key := make([]byte, suite.KeyLen)
	iv := make([]byte, 12)
	key[0], iv[0] = 0x42, 0x24
	other.InstallAEAD13(suite, key, iv, false)
	assert.Equal(t, cts[0], other.SealApplicationRecordTLS13(inner, len(inner)+other.Overhead()))

	for i, ct := range cts {
		pt, err := read.OpenApplicationRecordTLS13(ct)
		require.NoError(t, err, "record %d", i)
		assert.Equal(t, byte(i), pt[0])
	}
}

func TestTLS13TamperDetection(t *testing.T) {
	write, read, _ := tls13Pair(t)
	inner := append([]byte("payload"), 23)
	ct := write.SealApplicationRecordTLS13(inner, len(inner)+write.Overhead())

	ct[0] ^= 1
	_, err := read.OpenApplicationRecordTLS13(ct)
	assert.ErrorIs(t, err, ErrBadRecordMAC)
}

func TestTLS13OutOfOrderFails(t *testing.T) {
	write, read, _ := tls13Pair(t)
	inner := append([]byte("a"), 23)
	ct1 := write.SealApplicationRecordTLS13(inner, len(inner)+write.Overhead())
	ct2 := write.SealApplicationRecordTLS13(inner, len(inner)+write.Overhead())

	// Opening record 2 first uses sequence number 0 and must fail.
	_, err := read.OpenApplicationRecordTLS13(ct2)
	assert.ErrorIs(t, err, ErrBadRecordMAC)
	_ = ct1
}

func TestKeyUpdateResetsSequence(t *testing.T) {
	write, _, suite := tls13Pair(t)
	inner := append([]byte("x"), 23)
	write.SealApplicationRecordTLS13(inner, len(inner)+write.Overhead())
	require.Equal(t, uint64(1), write.SequenceNumber())

	newKey := make([]byte, suite.KeyLen)
	newKey[0] = 0x99
	write.InstallAEAD13(suite, newKey, make([]byte, 12), false)
	assert.Equal(t, uint64(0), write.SequenceNumber(), "fresh counter after key install")
}

func TestTLS12GCMRoundTrip(t *testing.T) {
	suite := CipherSuiteByID(TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256)
	require.NotNil(t, suite)

	key := make([]byte, suite.KeyLen)
	fixed := make([]byte, suite.IvLen) // 4-byte GCM nonce prefix
	write := NullDirectionState()
	read := NullDirectionState()
	write.InstallAEAD12(suite, key, fixed, false)
	read.InstallAEAD12(suite, key, fixed, true)

	pt := []byte("tls 1.2 application data")
	fragment := write.SealRecordTLS12(23, 0x0303, pt)
	got, err := read.OpenRecordTLS12(23, 0x0303, fragment)
	require.NoError(t, err)
	assert.Equal(t, pt, got)

	// AAD binds the content type: replaying as a different type fails.
	fragment2 := write.SealRecordTLS12(23, 0x0303, pt)
	_, err = read.OpenRecordTLS12(22, 0x0303, fragment2)
	assert.ErrorIs(t, err, ErrBadRecordMAC)
}

func TestTLS12ChaChaRoundTrip(t *testing.T) {
	suite := CipherSuiteByID(TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305)
	require.NotNil(t, suite)

	key := make([]byte, suite.KeyLen)
	iv := make([]byte, 12)
	write := NullDirectionState()
	read := NullDirectionState()
	write.InstallAEAD12(suite, key, iv, false)
	read.InstallAEAD12(suite, key, iv, true)

	pt := []byte("implicit-nonce aead")
	fragment := write.SealRecordTLS12(23, 0x0303, pt)
	got, err := read.OpenRecordTLS12(23, 0x0303, fragment)
	require.NoError(t, err)
	assert.Equal(t, pt, got)
}

func TestCBCHMACRoundTripAndTamper(t *testing.T) {
	suite := CipherSuiteByID(TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA)
	require.NotNil(t, suite)

	key := make([]byte, suite.KeyLen)
	macKey := make([]byte, suite.MacLen)
	write := NullDirectionState()
	read := NullDirectionState()
	write.InstallCBC12(suite, key, nil, macKey, false)
	read.InstallCBC12(suite, key, nil, macKey, true)

	for _, size := range []int{0, 1, 15, 16, 17, 1000} {
		pt := make([]byte, size)
		for i := range pt {
			pt[i] = byte(i)
		}
		fragment := write.SealRecordTLS12(23, 0x0303, pt)
		got, err := read.OpenRecordTLS12(23, 0x0303, fragment)
		require.NoError(t, err, "size %d", size)
		assert.Equal(t, pt, got, "size %d", size)
	}

	fragment := write.SealRecordTLS12(23, 0x0303, []byte("tamper me"))
	fragment[len(fragment)-1] ^= 0x80
	_, err := read.OpenRecordTLS12(23, 0x0303, fragment)
	assert.ErrorIs(t, err, ErrBadRecordMAC, "MAC and padding failures collapse to one error")
}

func TestConstantTimeUnpad(t *testing.T) {
	// 16-byte block: 11 data bytes + 4 pad bytes of value 4 + length byte 4.
	b := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 4, 4, 4, 4, 4}
	out, ok := constantTimeUnpadCBC(b, 16)
	require.True(t, ok)
	assert.Equal(t, b[:11], out)

	bad := append([]byte(nil), b...)
	bad[12] = 3 // inconsistent padding byte
	_, ok = constantTimeUnpadCBC(bad, 16)
	assert.False(t, ok)
}

func TestZeroize(t *testing.T) {
	suite := CipherSuiteByID(TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA)
	key := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	macKey := make([]byte, suite.MacLen)
	d := NullDirectionState()
	d.InstallCBC12(suite, key, nil, macKey, false)

	d.Zeroize()
	assert.True(t, d.IsNull())
	assert.Equal(t, make([]byte, 16), key, "key bytes overwritten in place")
}

func TestDefaultSuiteTables(t *testing.T) {
	for _, id := range DefaultCipherSuiteIDs() {
		assert.NotNil(t, CipherSuiteByID(id))
	}
	assert.Nil(t, CipherSuiteByID(0xffff))
	assert.Len(t, DefaultCipherSuiteTLS13IDs(), 3)
}
