// Package keyschedule implements the TLS 1.2 PRF-based and TLS 1.3
// HKDF-based key derivation trees. It depends only on stdlib hash
// primitives and golang.org/x/crypto/hkdf, never on certificate or
// transport types, so it can be tested and reasoned about in isolation.
package keyschedule

import (
	"crypto/hmac"
	"crypto/sha256"
	"hash"
)

// P_hash, RFC 5246 §5: the data expansion function underlying the PRF.
func pHash(h func() hash.Hash, secret, seed []byte, length int) []byte {
	mac := hmac.New(h, secret)
	mac.Write(seed)
	a := mac.Sum(nil)

	out := make([]byte, 0, length)
	for len(out) < length {
		mac.Reset()
		mac.Write(a)
		mac.Write(seed)
		out = append(out, mac.Sum(nil)...)

		mac.Reset()
		mac.Write(a)
		a = mac.Sum(nil)
	}
	return out[:length]
}

// PRF12 is the TLS 1.2 PRF, a single P_hash since TLS 1.2 dropped the
// MD5/SHA-1 split (RFC 5246 §5). hashNew selects that hash; nil means
// SHA-256. TLS 1.2 cipher suites using SHA-384 as their PRF hash (the
// suiteSHA384 flag) pass sha384New in.
func PRF12(hashNew func() hash.Hash, secret, label, seed []byte, length int) []byte {
	if hashNew == nil {
		hashNew = sha256.New
	}
	labelSeed := append(append([]byte{}, label...), seed...)
	return pHash(hashNew, secret, labelSeed, length)
}

// MasterSecret12 derives master_secret = PRF(pre_master, label,
// clientRandom||serverRandom) (or PRF(pre_master, "extended master
// secret", session_hash) when ems is true), per RFC 5246 §8.1 and
// RFC 7627.
func MasterSecret12(hashNew func() hash.Hash, preMaster, clientRandom, serverRandom []byte, ems bool, sessionHash []byte) []byte {
	if ems {
		return PRF12(hashNew, preMaster, []byte("extended master secret"), sessionHash, 48)
	}
	seed := append(append([]byte{}, clientRandom...), serverRandom...)
	return PRF12(hashNew, preMaster, []byte("master secret"), seed, 48)
}

// KeyBlock12 derives the key_expansion block and splits it into the six
// conventional fields, RFC 5246 §6.3.
func KeyBlock12(hashNew func() hash.Hash, masterSecret, serverRandom, clientRandom []byte, macLen, keyLen, ivLen int) (clientMAC, serverMAC, clientKey, serverKey, clientIV, serverIV []byte) {
	seed := append(append([]byte{}, serverRandom...), clientRandom...)
	total := 2*macLen + 2*keyLen + 2*ivLen
	block := PRF12(hashNew, masterSecret, []byte("key expansion"), seed, total)

	off := 0
	take := func(n int) []byte {
		b := block[off : off+n]
		off += n
		return b
	}
	clientMAC = take(macLen)
	serverMAC = take(macLen)
	clientKey = take(keyLen)
	serverKey = take(keyLen)
	clientIV = take(ivLen)
	serverIV = take(ivLen)
	return
}
