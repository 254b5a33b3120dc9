// Package handshakestate implements the client/server handshake state
// machines for TLS 1.2 and TLS 1.3: version negotiation, key exchange,
// authentication, PSK/resumption, HelloRetryRequest, client auth, and
// post-handshake messages. It owns the external-collaborator interfaces
// (CredentialStore, SessionCache, PSKStore, ...),
// since it is the lowest layer that actually calls them; the root
// package re-exports these as type aliases the same way it re-exports
// wire's enums, so callers only ever import the root package.
package handshakestate

import (
	"crypto"
	"crypto/x509"
	"time"

	"github.com/insinfo/tlslite-sub007/wire"
)

// Certificate is a leaf certificate plus the chain needed to validate it
// and the private key authenticating it, in the shape crypto/tls uses.
type Certificate struct {
	Chain      [][]byte // DER-encoded, leaf first
	PrivateKey crypto.Signer
	// OCSPStaple, when set on a server credential, is sent to clients
	// that asked for a stapled status (status_request): as a
	// CertificateStatus message under TLS 1.2, or a leaf-entry extension
	// under TLS 1.3. The engine never validates it.
	OCSPStaple []byte
	// Leaf is lazily parsed by CredentialStore implementations that want
	// to avoid a second x509.ParseCertificate call; the engine itself
	// never parses ASN.1 except to read the peer leaf's public key.
	Leaf *x509.Certificate
}

// CredentialStore supplies certificates and validates peer chains. Its
// methods are the three certificate-related collaborator calls;
// this engine never constructs or validates a certificate chain itself.
type CredentialStore interface {
	// GetServerCertificate selects a certificate for this handshake given
	// the client's SNI and offered signature schemes.
	GetServerCertificate(sni string, sigAlgs []wire.SignatureScheme) (*Certificate, error)

	// GetClientCertificate selects (or declines to send) a client
	// certificate in response to a CertificateRequest.
	GetClientCertificate(req *CertificateRequestInfo) (*Certificate, error)

	// VerifyPeerChain validates the peer's certificate chain against
	// trust anchors, optionally consulting an OCSP response. A non-zero
	// AlertKind return indicates the specific alert to send on failure.
	VerifyPeerChain(chain [][]byte, sni string, ocspResponse []byte) (wire.AlertKind, error)
}

// CertificateRequestInfo carries the server's CertificateRequest
// parameters to a client-side credential lookup.
type CertificateRequestInfo struct {
	AcceptableCAs    [][]byte
	SignatureSchemes []wire.SignatureScheme
	Context          []byte // TLS 1.3 certificate_request_context
}

// Session is the TLS 1.2 resumption record.
type Session struct {
	CipherSuite  uint16
	MasterSecret []byte
	SessionID    []byte
	// Ticket, when set, is the RFC 5077 session ticket issued for this
	// session; a client presents it in the session_ticket extension on
	// resumption instead of relying on the session_id.
	Ticket     []byte
	PeerCerts  [][]byte
	ServerName string
	ALPN       string
	EMS        bool
	ExpireTime time.Time
}

// NewSessionTicket is the TLS 1.3 resumption record. ResumptionSecret
// is kept locally and never transmitted.
type NewSessionTicket struct {
	Lifetime         uint32
	AgeAdd           uint32
	Nonce            []byte
	Ticket           []byte
	MaxEarlyData     uint32
	ResumptionSecret []byte
	CipherSuite      uint16
	ReceivedAt       time.Time
	ServerName       string
	ALPN             string
}

// PSKConfig is an externally provisioned pre-shared key.
type PSKConfig struct {
	Identity []byte
	Secret   []byte
	Hash     crypto.Hash // crypto.SHA256 or crypto.SHA384
}

// PSKStore enumerates or looks up externally provisioned PSKs.
type PSKStore interface {
	Lookup(identity []byte) (*PSKConfig, bool)
	All() []*PSKConfig
}

// SessionCache is the external collaborator for TLS 1.2 resumption storage
//. Implementations must be safe for concurrent use by multiple
// connections.
type SessionCache interface {
	Lookup(key string) (*Session, bool)
	Insert(key string, s *Session)
	EvictExpired(now time.Time)
}

// TicketStore is the TLS 1.3 analogue of SessionCache, keyed by opaque
// ticket bytes rather than a session_id.
type TicketStore interface {
	Lookup(ticket []byte) (*NewSessionTicket, bool)
	Insert(ticket []byte, t *NewSessionTicket)
	EvictExpired(now time.Time)
}

// ClientAuthPolicy mirrors crypto/tls's ClientAuthType.
type ClientAuthPolicy int

const (
	NoClientCert ClientAuthPolicy = iota
	RequestClientCert
	RequireAnyClientCert
	RequireAndVerifyClientCert
)
