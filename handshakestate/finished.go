package handshakestate

import (
	"crypto"
	"crypto/hmac"
	"crypto/x509"

	"github.com/insinfo/tlslite-sub007/wire"
)

// computeFinished implements RFC 8446 §4.4.4:
// verify_data = HMAC(finished_key, Transcript-Hash(Handshake Context, Certificate*, CertificateVerify*)).
func computeFinished(h crypto.Hash, finishedKey, transcriptHash []byte) []byte {
	mac := hmac.New(h.New, finishedKey)
	mac.Write(transcriptHash)
	return mac.Sum(nil)
}

func verifyFinished(h crypto.Hash, finishedKey, transcriptHash, verifyData []byte) bool {
	want := computeFinished(h, finishedKey, transcriptHash)
	return hmac.Equal(want, verifyData)
}

// parseLeaf parses the leaf (first) certificate of a chain, the one
// piece of ASN.1 this engine's own handshake logic needs to read out of
// band (to pull the public key for CertificateVerify); full chain
// validation stays with CredentialStore.VerifyPeerChain.
func parseLeaf(der []byte) (*x509.Certificate, error) {
	return x509.ParseCertificate(der)
}

func alertOrDefault(kind wire.AlertKind, fallback wire.AlertKind) wire.AlertKind {
	if kind == 0 {
		return fallback
	}
	return kind
}
