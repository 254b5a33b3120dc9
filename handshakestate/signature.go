package handshakestate

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"strings"

	circled448 "github.com/cloudflare/circl/sign/ed448"

	"github.com/insinfo/tlslite-sub007/wire"
)

// certificateVerifyContext builds the RFC 8446 §4.4.3 context string the
// TLS 1.3 CertificateVerify content is framed with: 64 spaces, the
// context label for the signing role, a 0x00 separator, then the
// transcript hash. TLS 1.2 CertificateVerify has no such framing: it
// signs the raw handshake messages, hashed under the scheme's hash.
func certificateVerifyContext(role wire.Role, transcriptHash []byte) []byte {
	label := "TLS 1.3, server CertificateVerify"
	if role == wire.RoleClient {
		label = "TLS 1.3, client CertificateVerify"
	}
	buf := make([]byte, 0, 64+len(label)+1+len(transcriptHash))
	buf = append(buf, []byte(strings.Repeat(" ", 64))...)
	buf = append(buf, []byte(label)...)
	buf = append(buf, 0x00)
	buf = append(buf, transcriptHash...)
	return buf
}

// signCertificateVerify13 produces the signature field of a TLS 1.3
// CertificateVerify message for the given scheme.
func signCertificateVerify13(key crypto.Signer, scheme wire.SignatureScheme, role wire.Role, transcriptHash []byte) ([]byte, error) {
	content := certificateVerifyContext(role, transcriptHash)
	return signWithScheme(key, scheme, content, true)
}

// signCertificateVerify12 signs the concatenated raw handshake messages
// for a TLS 1.2 CertificateVerify: no context framing, and the digest is
// taken under the signature scheme's own hash, which need not match the
// PRF hash (RFC 5246 §7.4.8).
func signCertificateVerify12(key crypto.Signer, scheme wire.SignatureScheme, transcriptBytes []byte) ([]byte, error) {
	return signWithScheme(key, scheme, transcriptBytes, true)
}

func signWithScheme(key crypto.Signer, scheme wire.SignatureScheme, content []byte, hashFirst bool) ([]byte, error) {
	switch scheme {
	case wire.Ed25519:
		// crypto.Signer for an ed25519.PrivateKey signs under
		// crypto.Hash(0), matching ed25519.Sign's raw-message semantics.
		sig, err := key.Sign(rand.Reader, content, crypto.Hash(0))
		if err != nil {
			return nil, errf(wire.AlertInternalError, "ed25519 sign: %v", err)
		}
		return sig, nil
	case wire.Ed448:
		signer, ok := key.(interface{ Ed448Seed() []byte })
		if ok {
			priv := circled448.PrivateKey(signer.Ed448Seed())
			return circled448.Sign(priv, content, ""), nil
		}
		sig, err := key.Sign(rand.Reader, content, crypto.Hash(0))
		if err != nil {
			return nil, errf(wire.AlertInternalError, "ed448 sign: %v", err)
		}
		return sig, nil
	case wire.PSSWithSHA256, wire.PSSWithSHA384, wire.PSSWithSHA512:
		h := schemeHash(scheme)
		digest := hashContent(h, content, hashFirst)
		sig, err := key.Sign(rand.Reader, digest, &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: h})
		if err != nil {
			return nil, errf(wire.AlertInternalError, "rsa-pss sign: %v", err)
		}
		return sig, nil
	case wire.PKCS1WithSHA256, wire.PKCS1WithSHA384, wire.PKCS1WithSHA512, wire.PKCS1WithSHA1:
		h := schemeHash(scheme)
		digest := hashContent(h, content, hashFirst)
		sig, err := key.Sign(rand.Reader, digest, h)
		if err != nil {
			return nil, errf(wire.AlertInternalError, "rsa-pkcs1 sign: %v", err)
		}
		return sig, nil
	case wire.ECDSAWithP256AndSHA256, wire.ECDSAWithP384AndSHA384, wire.ECDSAWithP521AndSHA512, wire.ECDSAWithSHA1:
		h := schemeHash(scheme)
		digest := hashContent(h, content, hashFirst)
		sig, err := key.Sign(rand.Reader, digest, h)
		if err != nil {
			return nil, errf(wire.AlertInternalError, "ecdsa sign: %v", err)
		}
		return sig, nil
	default:
		return nil, errf(wire.AlertHandshakeFailure, "unsupported signature scheme %04x", uint16(scheme))
	}
}

// verifyCertificateVerify13 checks a peer's TLS 1.3 CertificateVerify
// signature against their leaf certificate's public key.
func verifyCertificateVerify13(cert *x509.Certificate, scheme wire.SignatureScheme, role wire.Role, transcriptHash, sig []byte) error {
	content := certificateVerifyContext(role, transcriptHash)
	return verifyWithScheme(cert.PublicKey, scheme, content, sig, true)
}

func verifyCertificateVerify12(cert *x509.Certificate, scheme wire.SignatureScheme, transcriptBytes, sig []byte) error {
	return verifyWithScheme(cert.PublicKey, scheme, transcriptBytes, sig, true)
}

func verifyWithScheme(pub interface{}, scheme wire.SignatureScheme, content, sig []byte, hashFirst bool) error {
	switch scheme {
	case wire.Ed25519:
		key, ok := pub.(ed25519.PublicKey)
		if !ok {
			return errf(wire.AlertHandshakeFailure, "certificate key is not Ed25519")
		}
		if !ed25519.Verify(key, content, sig) {
			return errf(wire.AlertDecryptError, "ed25519 signature verification failed")
		}
		return nil
	case wire.Ed448:
		key, ok := pub.(circled448.PublicKey)
		if !ok {
			return errf(wire.AlertHandshakeFailure, "certificate key is not Ed448")
		}
		if !circled448.Verify(key, content, sig, "") {
			return errf(wire.AlertDecryptError, "ed448 signature verification failed")
		}
		return nil
	case wire.PSSWithSHA256, wire.PSSWithSHA384, wire.PSSWithSHA512:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return errf(wire.AlertHandshakeFailure, "certificate key is not RSA")
		}
		h := schemeHash(scheme)
		digest := hashContent(h, content, hashFirst)
		opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: h}
		if err := rsa.VerifyPSS(key, h, digest, sig, opts); err != nil {
			return errf(wire.AlertDecryptError, "rsa-pss signature verification failed: %v", err)
		}
		return nil
	case wire.PKCS1WithSHA256, wire.PKCS1WithSHA384, wire.PKCS1WithSHA512, wire.PKCS1WithSHA1:
		key, ok := pub.(*rsa.PublicKey)
		if !ok {
			return errf(wire.AlertHandshakeFailure, "certificate key is not RSA")
		}
		h := schemeHash(scheme)
		digest := hashContent(h, content, hashFirst)
		if err := rsa.VerifyPKCS1v15(key, h, digest, sig); err != nil {
			return errf(wire.AlertDecryptError, "rsa-pkcs1 signature verification failed: %v", err)
		}
		return nil
	case wire.ECDSAWithP256AndSHA256, wire.ECDSAWithP384AndSHA384, wire.ECDSAWithP521AndSHA512, wire.ECDSAWithSHA1:
		key, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return errf(wire.AlertHandshakeFailure, "certificate key is not ECDSA")
		}
		h := schemeHash(scheme)
		digest := hashContent(h, content, hashFirst)
		if !ecdsa.VerifyASN1(key, digest, sig) {
			return errf(wire.AlertDecryptError, "ecdsa signature verification failed")
		}
		return nil
	default:
		return errf(wire.AlertHandshakeFailure, "unsupported signature scheme %04x", uint16(scheme))
	}
}

func schemeHash(scheme wire.SignatureScheme) crypto.Hash {
	switch scheme {
	case wire.PKCS1WithSHA256, wire.PSSWithSHA256, wire.ECDSAWithP256AndSHA256:
		return crypto.SHA256
	case wire.PKCS1WithSHA384, wire.PSSWithSHA384, wire.ECDSAWithP384AndSHA384:
		return crypto.SHA384
	case wire.PKCS1WithSHA512, wire.PSSWithSHA512, wire.ECDSAWithP521AndSHA512:
		return crypto.SHA512
	case wire.PKCS1WithSHA1, wire.ECDSAWithSHA1:
		return crypto.SHA1
	default:
		return crypto.SHA256
	}
}

// hashContent digests content under h when hashFirst is set, which every
// caller in this package does (TLS 1.3 framed CertificateVerify content,
// TLS 1.2 CertificateVerify messages and ServerKeyExchange params alike).
// With hashFirst unset, content is taken as an already-computed digest.
func hashContent(h crypto.Hash, content []byte, hashFirst bool) []byte {
	if !hashFirst {
		return content
	}
	hh := h.New()
	hh.Write(content)
	return hh.Sum(nil)
}

// schemeMatchesKey reports whether a signature scheme is compatible with
// a certificate's public key type, used when filtering the local
// signature_algorithms list down to what a chosen credential can
// actually produce.
func schemeMatchesKey(scheme wire.SignatureScheme, pub interface{}) bool {
	switch pub.(type) {
	case ed25519.PublicKey:
		return scheme == wire.Ed25519
	case circled448.PublicKey:
		return scheme == wire.Ed448
	case *ecdsa.PublicKey:
		switch scheme {
		case wire.ECDSAWithP256AndSHA256, wire.ECDSAWithP384AndSHA384, wire.ECDSAWithP521AndSHA512, wire.ECDSAWithSHA1:
			return true
		}
		return false
	case *rsa.PublicKey:
		switch scheme {
		case wire.PKCS1WithSHA256, wire.PKCS1WithSHA384, wire.PKCS1WithSHA512, wire.PKCS1WithSHA1,
			wire.PSSWithSHA256, wire.PSSWithSHA384, wire.PSSWithSHA512:
			return true
		}
		return false
	default:
		return false
	}
}
