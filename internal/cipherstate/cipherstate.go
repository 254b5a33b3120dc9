package cipherstate

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/subtle"
	"encoding/binary"
	"errors"
)

// ErrBadRecordMAC is returned by Open on AEAD tag mismatch or CBC MAC
// mismatch. The caller maps it to the single AlertBadRecordMAC alert
// regardless of which check failed, keeping the failure mode uniform.
var ErrBadRecordMAC = errors.New("cipherstate: bad record mac")

// DirectionState holds everything needed to protect or unprotect records
// flowing in one direction. A Conn owns two of these,
// one per direction, and never shares mutable crypto state between them.
type DirectionState struct {
	suite12   *CipherSuite
	suite13   *CipherSuiteTLS13
	isTLS13   bool
	isRead    bool

	aead AEAD

	// CBC+HMAC path (TLS 1.2 only). TLS 1.1+ uses an explicit, independent
	// IV per record rather than chaining ciphertext across records, so no
	// persistent cipher.BlockMode is kept here: each Seal/Open call builds
	// one from cbcKey and that record's IV.
	cbcKey []byte
	macKey []byte
	mac    macFunction

	fixedNonce []byte // TLS 1.3 traffic IV, or TLS 1.2 AEAD nonce prefix
	seq        uint64
}

// NullDirectionState is the initial, unprotected state of a connection:
// records are sent and received as plaintext.
func NullDirectionState() *DirectionState {
	return &DirectionState{}
}

// IsNull reports whether protection has not yet been installed.
func (d *DirectionState) IsNull() bool {
	return d.aead == nil && d.cbcKey == nil
}

// InstallAEAD12 installs a TLS 1.2 AEAD cipher (GCM or ChaCha20-Poly1305).
func (d *DirectionState) InstallAEAD12(suite *CipherSuite, key, fixedNonce []byte, isRead bool) {
	d.suite12 = suite
	d.isRead = isRead
	d.aead = suite.aead(key, fixedNonce)
	d.fixedNonce = fixedNonce
	d.seq = 0
}

// InstallCBC12 installs a TLS 1.2 CBC+HMAC cipher suite. iv is not used:
// every record carries its own fresh explicit IV, so there is no
// implicit-IV chain to seed.
func (d *DirectionState) InstallCBC12(suite *CipherSuite, key, iv, macKey []byte, isRead bool) {
	d.suite12 = suite
	d.isRead = isRead
	d.cbcKey = key
	d.macKey = macKey
	d.mac = suite.mac(0, macKey)
	d.seq = 0
}

func (d *DirectionState) cbcMode(iv []byte, isRead bool) cipher.BlockMode {
	return d.suite12.cipher(d.cbcKey, iv, isRead).(cipher.BlockMode)
}

func (d *DirectionState) blockSize() int {
	return d.suite12.IvLen
}

// InstallAEAD13 installs a TLS 1.3 traffic secret's derived key+IV. Also
// used to install the next traffic secret on KeyUpdate, which resets the
// sequence counter to zero.
func (d *DirectionState) InstallAEAD13(suite *CipherSuiteTLS13, key, iv []byte, isRead bool) {
	d.suite13 = suite
	d.isTLS13 = true
	d.isRead = isRead
	d.aead = suite.aead(key, iv)
	d.fixedNonce = iv
	d.seq = 0
}

// SequenceNumber returns the sequence number that will be used for the
// next Seal/Open call.
func (d *DirectionState) SequenceNumber() uint64 { return d.seq }

// Overhead returns the number of bytes SealApplicationRecordTLS13 adds
// beyond the inner plaintext length, so a caller can size the record
// header's length field before sealing.
func (d *DirectionState) Overhead() int {
	if d.aead == nil {
		return 0
	}
	return d.aead.Overhead()
}

func (d *DirectionState) nonce() []byte {
	n := make([]byte, 8)
	binary.BigEndian.PutUint64(n, d.seq)
	return n
}

// SealApplicationRecordTLS13 seals plaintext (already type-tagged and
// zero-padded per RFC 8446 §5.4) under outerType=application_data AAD and
// advances the sequence number. It never reuses a sequence number: each
// call consumes exactly one.
func (d *DirectionState) SealApplicationRecordTLS13(plaintext []byte, ciphertextLen int) []byte {
	aad := tls13AAD(ciphertextLen)
	out := d.aead.Seal(nil, d.nonce(), plaintext, aad)
	d.seq++
	return out
}

// OpenApplicationRecordTLS13 opens a TLS 1.3 protected record and returns
// the inner (type-tagged, padded) plaintext.
func (d *DirectionState) OpenApplicationRecordTLS13(ciphertext []byte) ([]byte, error) {
	aad := tls13AAD(len(ciphertext))
	pt, err := d.aead.Open(nil, d.nonce(), ciphertext, aad)
	if err != nil {
		return nil, ErrBadRecordMAC
	}
	d.seq++
	return pt, nil
}

func tls13AAD(ciphertextLen int) []byte {
	aad := make([]byte, 5)
	aad[0] = 23 // outer content type: application_data
	aad[1], aad[2] = 0x03, 0x03
	binary.BigEndian.PutUint16(aad[3:], uint16(ciphertextLen))
	return aad
}

// SealRecordTLS12 seals plaintext under the TLS 1.2 AEAD or CBC+HMAC
// scheme for the given (contentType, version) header. It returns the
// full on-wire fragment payload (explicit nonce/IV + ciphertext [+ MAC]).
func (d *DirectionState) SealRecordTLS12(contentType byte, version uint16, plaintext []byte) []byte {
	seq := d.nonce()
	if d.aead != nil {
		header := tls12AEADHeader(seq, contentType, version, len(plaintext))
		// The sequence number doubles as the explicit nonce for
		// prefix-nonce AEADs (GCM); xorNonceAEAD derives the whole nonce
		// implicitly and sends nothing.
		sealed := d.aead.Seal(nil, seq, plaintext, header)
		d.seq++
		if d.aead.ExplicitNonceLen() == 0 {
			return sealed
		}
		return append(append([]byte{}, seq...), sealed...)
	}

	// CBC + HMAC: MAC-then-encrypt with a fresh, explicit, random IV.
	header := tls12MACHeader(seq, contentType, version, len(plaintext))
	macValue := d.mac.MAC(seq, header, plaintext, nil)
	padded := padCBC(append(append([]byte{}, plaintext...), macValue...), d.blockSize())
	iv := make([]byte, d.blockSize())
	if _, err := rand.Read(iv); err != nil {
		panic(err) // crypto/rand failure is unrecoverable; caller has no sane fallback
	}
	out := make([]byte, len(padded))
	d.cbcMode(iv, false).CryptBlocks(out, padded)
	d.seq++
	return append(iv, out...)
}

// OpenRecordTLS12 reverses SealRecordTLS12. MAC/pad checks run in
// constant time and return ErrBadRecordMAC uniformly regardless of which
// check failed, resisting Lucky 13.
func (d *DirectionState) OpenRecordTLS12(contentType byte, version uint16, fragment []byte) ([]byte, error) {
	seq := d.nonce()
	if d.aead != nil {
		nl := d.aead.ExplicitNonceLen()
		if len(fragment) < nl {
			return nil, ErrBadRecordMAC
		}
		explicit, ciphertext := fragment[:nl], fragment[nl:]
		nonce := explicit
		if nl == 0 {
			nonce = seq
		}
		header := tls12AEADHeader(seq, contentType, version, len(ciphertext)-d.aead.Overhead())
		pt, err := d.aead.Open(nil, nonce, ciphertext, header)
		if err != nil {
			return nil, ErrBadRecordMAC
		}
		d.seq++
		return pt, nil
	}

	bs := d.blockSize()
	if len(fragment) < bs+d.mac.Size()+1 || len(fragment)%bs != 0 {
		return nil, ErrBadRecordMAC
	}
	iv, ciphertext := fragment[:bs], fragment[bs:]
	plain := make([]byte, len(ciphertext))
	d.cbcMode(iv, true).CryptBlocks(plain, ciphertext)

	unpadded, ok := constantTimeUnpadCBC(plain, bs)
	if !ok || len(unpadded) < d.mac.Size() {
		// Still compute a MAC over a plausible split to keep timing
		// uniform with the success path before failing.
		d.mac.MAC(seq, tls12MACHeader(seq, contentType, version, 0), plain, nil)
		d.seq++
		return nil, ErrBadRecordMAC
	}
	msgLen := len(unpadded) - d.mac.Size()
	msg, recordedMAC := unpadded[:msgLen], unpadded[msgLen:]
	header := tls12MACHeader(seq, contentType, version, msgLen)
	expectedMAC := d.mac.MAC(seq, header, msg, plain[len(unpadded):])
	d.seq++
	if subtle.ConstantTimeCompare(recordedMAC, expectedMAC) != 1 {
		return nil, ErrBadRecordMAC
	}
	return msg, nil
}

func tls12AEADHeader(seq []byte, contentType byte, version uint16, plaintextLen int) []byte {
	h := make([]byte, 13)
	copy(h[:8], seq)
	h[8] = contentType
	h[9] = byte(version >> 8)
	h[10] = byte(version)
	h[11] = byte(plaintextLen >> 8)
	h[12] = byte(plaintextLen)
	return h
}

func tls12MACHeader(seq []byte, contentType byte, version uint16, plaintextLen int) []byte {
	// Identical layout to the AEAD AAD: seq(8) || type(1) || version(2) || len(2).
	return tls12AEADHeader(seq, contentType, version, plaintextLen)
}

func padCBC(b []byte, blockSize int) []byte {
	padLen := blockSize - (len(b) % blockSize)
	pad := make([]byte, padLen)
	for i := range pad {
		pad[i] = byte(padLen - 1)
	}
	return append(b, pad...)
}

// constantTimeUnpadCBC validates and strips PKCS#7-style TLS CBC padding
// in time independent of the padding length, per RFC 5246 §6.2.3.2's
// guidance against padding oracles.
func constantTimeUnpadCBC(b []byte, blockSize int) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	padLen := int(b[len(b)-1])
	good := 1
	if padLen+1 > len(b) {
		good = 0
		padLen = 0 // avoid an out-of-range slice below; result is discarded anyway
	}
	toCheck := 255
	if toCheck > len(b)-1 {
		toCheck = len(b) - 1
	}
	for i := 0; i < toCheck; i++ {
		idx := len(b) - 1 - i
		expected := byte(padLen)
		eq := subtle.ConstantTimeByteEq(b[idx], expected)
		inRange := subtle.ConstantTimeLessOrEq(i, padLen)
		good &= subtle.ConstantTimeSelect(inRange, eq, 1)
	}
	if good != 1 {
		return nil, false
	}
	return b[:len(b)-padLen-1], true
}

// Zeroize overwrites all key material held by this direction state. It is
// called on Conn.Close and on every KeyUpdate once the old secret is no
// longer needed.
func (d *DirectionState) Zeroize() {
	zero(d.cbcKey)
	zero(d.macKey)
	zero(d.fixedNonce)
	d.aead = nil
	d.cbcKey = nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare is exposed for callers (Finished verify_data, PSK
// binders, PSK identity matching) that must not branch on secret data.
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}

var _ = hmac.Equal // retained to document that hmac.Equal is an equally
// valid constant-time choice; ConstantTimeCompare above is used uniformly
// so call sites don't need to pick between two equivalent helpers.
