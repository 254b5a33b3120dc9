package keyexchange

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"io"
)

// RSAPreMasterSecret builds the 48-byte TLS 1.2 RSA pre-master-secret:
// client_version(2) || random(46), per RFC 5246 §7.4.7.1.
func RSAPreMasterSecret(clientVersion uint16, rnd io.Reader) ([]byte, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	pms := make([]byte, 48)
	pms[0] = byte(clientVersion >> 8)
	pms[1] = byte(clientVersion)
	if _, err := io.ReadFull(rnd, pms[2:]); err != nil {
		return nil, err
	}
	return pms, nil
}

// RSAEncryptPreMaster encrypts the pre-master secret under the server's
// RSA public key (PKCS#1 v1.5, as RSA key exchange mandates).
func RSAEncryptPreMaster(pub *rsa.PublicKey, pms []byte, rnd io.Reader) ([]byte, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	return rsa.EncryptPKCS1v15(rnd, pub, pms)
}

// RSADecryptPreMaster decrypts the client's encrypted pre-master secret.
// Per RFC 5246 §7.4.7.1, a decryption or version-check failure must NOT
// be distinguishable from success to the network: on any error the
// caller is expected to substitute a random pre-master-secret and
// proceed, rather than aborting the handshake immediately (Bleichenbacher
// countermeasure). This function returns that substituted value itself
// so callers cannot accidentally branch on the real failure.
func RSADecryptPreMaster(priv *rsa.PrivateKey, ciphertext []byte, expectedClientVersion uint16, rnd io.Reader) ([]byte, error) {
	if rnd == nil {
		rnd = rand.Reader
	}
	fallback := make([]byte, 48)
	if _, err := io.ReadFull(rnd, fallback); err != nil {
		return nil, err
	}

	pms, err := rsa.DecryptPKCS1v15(rnd, priv, ciphertext)
	good := 1
	if err != nil || len(pms) != 48 {
		good = 0
	}
	if good == 1 {
		versionOK := subtle.ConstantTimeByteEq(pms[0], byte(expectedClientVersion>>8)) &
			subtle.ConstantTimeByteEq(pms[1], byte(expectedClientVersion))
		good &= versionOK
	}
	if good != 1 {
		return fallback, nil
	}
	return pms, nil
}

var ErrRSAKeyExchangeUnavailable = errors.New("keyexchange: rsa key exchange requires an rsa.PrivateKey")
