// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cipherstate owns cipher-suite selection and the per-direction
// record protection state: AEAD and CBC+HMAC
// sealing/opening, nonce construction, sequence numbers, and the
// TLS 1.3 traffic-secret rotation on KeyUpdate.
package cipherstate

import (
	"crypto"
	"crypto/aes"
	"crypto/cipher"
	"crypto/des"
	"crypto/hmac"
	"crypto/rc4"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"hash"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	suiteECDHE = 1 << iota
	suiteECDSA
	suiteTLS12
	suiteSHA384
	suiteDefaultOff
	suiteDHE
)

// CipherSuite is a specific combination of bulk cipher and MAC/AEAD
// function for TLS 1.2. Key-agreement selection lives in
// internal/keyexchange and is driven by the suite's flags, not by a
// function pointer stored here, so that this package stays free of any
// dependency on certificate or key-exchange types.
type CipherSuite struct {
	ID     uint16
	KeyLen int
	MacLen int
	IvLen  int
	Flags  int
	cipher func(key, iv []byte, isRead bool) interface{}
	mac    func(version uint16, macKey []byte) macFunction
	aead   func(key, fixedNonce []byte) AEAD
}

// Key-exchange/auth family accessors, read by the handshake state
// machine when routing ServerKeyExchange/ClientKeyExchange handling.
func (s *CipherSuite) IsECDHE() bool  { return s.Flags&suiteECDHE != 0 }
func (s *CipherSuite) IsDHE() bool    { return s.Flags&suiteDHE != 0 }
func (s *CipherSuite) IsECDSA() bool  { return s.Flags&suiteECDSA != 0 }
func (s *CipherSuite) IsAEAD() bool   { return s.aead != nil }
func (s *CipherSuite) IsSHA384() bool { return s.Flags&suiteSHA384 != 0 }

var cipherSuites = []*CipherSuite{
	{TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305, 32, 0, 12, suiteECDHE | suiteTLS12, nil, nil, aeadChaCha20Poly1305},
	{TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305, 32, 0, 12, suiteECDHE | suiteECDSA | suiteTLS12, nil, nil, aeadChaCha20Poly1305},
	{TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, 16, 0, 4, suiteECDHE | suiteTLS12, nil, nil, aeadAESGCM},
	{TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256, 16, 0, 4, suiteECDHE | suiteECDSA | suiteTLS12, nil, nil, aeadAESGCM},
	{TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, 32, 0, 4, suiteECDHE | suiteTLS12 | suiteSHA384, nil, nil, aeadAESGCM},
	{TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384, 32, 0, 4, suiteECDHE | suiteECDSA | suiteTLS12 | suiteSHA384, nil, nil, aeadAESGCM},
	{TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256, 16, 32, 16, suiteECDHE | suiteTLS12, cipherAES, macSHA256, nil},
	{TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA, 16, 20, 16, suiteECDHE, cipherAES, macSHA1, nil},
	{TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256, 16, 32, 16, suiteECDHE | suiteECDSA | suiteTLS12, cipherAES, macSHA256, nil},
	{TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA, 16, 20, 16, suiteECDHE | suiteECDSA, cipherAES, macSHA1, nil},
	{TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA, 32, 20, 16, suiteECDHE, cipherAES, macSHA1, nil},
	{TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA, 32, 20, 16, suiteECDHE | suiteECDSA, cipherAES, macSHA1, nil},
	{TLS_DHE_RSA_WITH_AES_128_GCM_SHA256, 16, 0, 4, suiteDHE | suiteTLS12, nil, nil, aeadAESGCM},
	{TLS_DHE_RSA_WITH_AES_256_GCM_SHA384, 32, 0, 4, suiteDHE | suiteTLS12 | suiteSHA384, nil, nil, aeadAESGCM},
	{TLS_DHE_RSA_WITH_AES_128_CBC_SHA, 16, 20, 16, suiteDHE, cipherAES, macSHA1, nil},
	{TLS_RSA_WITH_AES_128_GCM_SHA256, 16, 0, 4, suiteTLS12, nil, nil, aeadAESGCM},
	{TLS_RSA_WITH_AES_256_GCM_SHA384, 32, 0, 4, suiteTLS12 | suiteSHA384, nil, nil, aeadAESGCM},
	{TLS_RSA_WITH_AES_128_CBC_SHA256, 16, 32, 16, suiteTLS12, cipherAES, macSHA256, nil},
	{TLS_RSA_WITH_AES_128_CBC_SHA, 16, 20, 16, 0, cipherAES, macSHA1, nil},
	{TLS_RSA_WITH_AES_256_CBC_SHA, 32, 20, 16, 0, cipherAES, macSHA1, nil},
	{TLS_RSA_WITH_3DES_EDE_CBC_SHA, 24, 20, 8, suiteDefaultOff, cipher3DES, macSHA1, nil},
}

// CipherSuiteTLS13 pairs an AEAD algorithm with its HKDF hash (RFC 8446
// Appendix B.4).
type CipherSuiteTLS13 struct {
	ID     uint16
	KeyLen int
	Hash   crypto.Hash
	aead   func(key, nonceMask []byte) AEAD
}

var cipherSuitesTLS13 = []*CipherSuiteTLS13{
	{TLS_AES_128_GCM_SHA256, 16, crypto.SHA256, aeadAESGCMTLS13},
	{TLS_CHACHA20_POLY1305_SHA256, 32, crypto.SHA256, aeadChaCha20Poly1305TLS13},
	{TLS_AES_256_GCM_SHA384, 32, crypto.SHA384, aeadAESGCMTLS13},
}

func cipherRC4(key, iv []byte, isRead bool) interface{} {
	c, _ := rc4.NewCipher(key)
	return c
}

func cipher3DES(key, iv []byte, isRead bool) interface{} {
	block, _ := des.NewTripleDESCipher(key)
	if isRead {
		return cipher.NewCBCDecrypter(block, iv)
	}
	return cipher.NewCBCEncrypter(block, iv)
}

func cipherAES(key, iv []byte, isRead bool) interface{} {
	block, _ := aes.NewCipher(key)
	if isRead {
		return cipher.NewCBCDecrypter(block, iv)
	}
	return cipher.NewCBCEncrypter(block, iv)
}

func macSHA1(version uint16, key []byte) macFunction {
	return tls10MAC{h: hmac.New(sha1.New, key)}
}

func macSHA256(version uint16, key []byte) macFunction {
	return tls10MAC{h: hmac.New(sha256.New, key)}
}

func macSHA384(version uint16, key []byte) macFunction {
	return tls10MAC{h: hmac.New(sha512.New384, key)}
}

// macFunction computes a MAC over (seq, header, data) with a
// constant-timing contract: the MAC implementation is
// fed a fixed amount of input regardless of the observed padding/data
// split so that CBC Lucky-13-style timing leaks are avoided.
type macFunction interface {
	Size() int
	MAC(seq, header, data, extra []byte) []byte
}

// tls10MAC implements the TLS 1.0+ MAC function, RFC 5246 §6.2.3.
type tls10MAC struct {
	h   hash.Hash
	buf []byte
}

func (s tls10MAC) Size() int { return s.h.Size() }

func (s tls10MAC) MAC(seq, header, data, extra []byte) []byte {
	s.h.Reset()
	s.h.Write(seq)
	s.h.Write(header)
	s.h.Write(data)
	res := s.h.Sum(s.buf[:0])
	if extra != nil {
		s.h.Write(extra)
	}
	return res
}

// AEAD is cipher.AEAD plus the explicit-nonce length the record layer
// must prepend on the wire (8 bytes for TLS 1.2 GCM, 0 for TLS 1.3 and
// ChaCha20-Poly1305-in-1.2, which both use implicit XOR nonces).
type AEAD interface {
	cipher.AEAD
	ExplicitNonceLen() int
}

const (
	aeadNonceLength   = 12
	noncePrefixLength = 4
)

// prefixNonceAEAD prefixes a fixed 4-byte portion to each call's nonce;
// used by TLS 1.2 AES-GCM, which sends the remaining 8 bytes explicitly
// per record.
type prefixNonceAEAD struct {
	nonce [aeadNonceLength]byte
	aead  cipher.AEAD
}

func (f *prefixNonceAEAD) NonceSize() int       { return aeadNonceLength - noncePrefixLength }
func (f *prefixNonceAEAD) Overhead() int        { return f.aead.Overhead() }
func (f *prefixNonceAEAD) ExplicitNonceLen() int { return f.NonceSize() }

func (f *prefixNonceAEAD) Seal(out, nonce, plaintext, additionalData []byte) []byte {
	copy(f.nonce[4:], nonce)
	return f.aead.Seal(out, f.nonce[:], plaintext, additionalData)
}

func (f *prefixNonceAEAD) Open(out, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	copy(f.nonce[4:], nonce)
	return f.aead.Open(out, f.nonce[:], ciphertext, additionalData)
}

// xorNonceAEAD XORs a fixed pattern into the nonce before each call; used
// by TLS 1.3 (all suites) and TLS 1.2 ChaCha20-Poly1305, both of which
// derive the whole 12-byte nonce from the sequence number and never send
// an explicit nonce on the wire.
type xorNonceAEAD struct {
	nonceMask [aeadNonceLength]byte
	aead      cipher.AEAD
}

func (f *xorNonceAEAD) NonceSize() int       { return 8 }
func (f *xorNonceAEAD) Overhead() int        { return f.aead.Overhead() }
func (f *xorNonceAEAD) ExplicitNonceLen() int { return 0 }

func (f *xorNonceAEAD) Seal(out, nonce, plaintext, additionalData []byte) []byte {
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	result := f.aead.Seal(out, f.nonceMask[:], plaintext, additionalData)
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	return result
}

func (f *xorNonceAEAD) Open(out, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	result, err := f.aead.Open(out, f.nonceMask[:], ciphertext, additionalData)
	for i, b := range nonce {
		f.nonceMask[4+i] ^= b
	}
	return result, err
}

func aeadAESGCM(key, noncePrefix []byte) AEAD {
	if len(noncePrefix) != noncePrefixLength {
		panic("cipherstate: wrong nonce length")
	}
	a, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	g, err := cipher.NewGCM(a)
	if err != nil {
		panic(err)
	}
	ret := &prefixNonceAEAD{aead: g}
	copy(ret.nonce[:], noncePrefix)
	return ret
}

func aeadAESGCMTLS13(key, nonceMask []byte) AEAD {
	if len(nonceMask) != aeadNonceLength {
		panic("cipherstate: wrong nonce length")
	}
	a, err := aes.NewCipher(key)
	if err != nil {
		panic(err)
	}
	g, err := cipher.NewGCM(a)
	if err != nil {
		panic(err)
	}
	ret := &xorNonceAEAD{aead: g}
	copy(ret.nonceMask[:], nonceMask)
	return ret
}

func aeadChaCha20Poly1305(key, nonceMask []byte) AEAD {
	a, err := chacha20poly1305.New(key)
	if err != nil {
		panic(err)
	}
	ret := &xorNonceAEAD{aead: a}
	copy(ret.nonceMask[:], nonceMask)
	return ret
}

func aeadChaCha20Poly1305TLS13(key, nonceMask []byte) AEAD {
	return aeadChaCha20Poly1305(key, nonceMask)
}

// MutualCipherSuite returns the built-in table entry for want when `have`
// lists it, and nil otherwise.
func MutualCipherSuite(have []uint16, want uint16) *CipherSuite {
	for _, id := range have {
		if id == want {
			return CipherSuiteByID(id)
		}
	}
	return nil
}

func CipherSuiteByID(id uint16) *CipherSuite {
	for _, s := range cipherSuites {
		if s.ID == id {
			return s
		}
	}
	return nil
}

func CipherSuiteTLS13ByID(id uint16) *CipherSuiteTLS13 {
	for _, s := range cipherSuitesTLS13 {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// DefaultCipherSuiteIDs returns every built-in TLS 1.2 suite ID not
// flagged suiteDefaultOff, in the table's preference order.
func DefaultCipherSuiteIDs() []uint16 {
	ids := make([]uint16, 0, len(cipherSuites))
	for _, s := range cipherSuites {
		if s.Flags&suiteDefaultOff != 0 {
			continue
		}
		ids = append(ids, s.ID)
	}
	return ids
}

func DefaultCipherSuiteTLS13IDs() []uint16 {
	ids := make([]uint16, 0, len(cipherSuitesTLS13))
	for _, s := range cipherSuitesTLS13 {
		ids = append(ids, s.ID)
	}
	return ids
}

// A list of cipher suite IDs implemented by this package. Taken from
// https://www.iana.org/assignments/tls-parameters/tls-parameters.xml
const (
	TLS_RSA_WITH_RC4_128_SHA                uint16 = 0x0005
	TLS_RSA_WITH_3DES_EDE_CBC_SHA           uint16 = 0x000a
	TLS_RSA_WITH_AES_128_CBC_SHA            uint16 = 0x002f
	TLS_DHE_RSA_WITH_AES_128_CBC_SHA        uint16 = 0x0033
	TLS_DHE_RSA_WITH_AES_128_GCM_SHA256     uint16 = 0x009e
	TLS_DHE_RSA_WITH_AES_256_GCM_SHA384     uint16 = 0x009f
	TLS_RSA_WITH_AES_256_CBC_SHA            uint16 = 0x0035
	TLS_RSA_WITH_AES_128_CBC_SHA256         uint16 = 0x003c
	TLS_RSA_WITH_AES_128_GCM_SHA256         uint16 = 0x009c
	TLS_RSA_WITH_AES_256_GCM_SHA384         uint16 = 0x009d
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA    uint16 = 0xc009
	TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA    uint16 = 0xc00a
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA      uint16 = 0xc013
	TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA      uint16 = 0xc014
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256 uint16 = 0xc023
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256   uint16 = 0xc027
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256   uint16 = 0xc02f
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 uint16 = 0xc02b
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384   uint16 = 0xc030
	TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384 uint16 = 0xc02c
	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305    uint16 = 0xcca8
	TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305  uint16 = 0xcca9

	TLS_AES_128_GCM_SHA256       uint16 = 0x1301
	TLS_AES_256_GCM_SHA384       uint16 = 0x1302
	TLS_CHACHA20_POLY1305_SHA256 uint16 = 0x1303
)
