package tls

import "github.com/insinfo/tlslite-sub007/handshakestate"

// These types are defined in handshakestate (the layer that actually
// calls them while driving the handshake) and re-exported here, the same
// way errors.go re-exports wire's enums.
type (
	Certificate            = handshakestate.Certificate
	CredentialStore         = handshakestate.CredentialStore
	CertificateRequestInfo = handshakestate.CertificateRequestInfo
	Session                = handshakestate.Session
	NewSessionTicket       = handshakestate.NewSessionTicket
	PSKConfig              = handshakestate.PSKConfig
	PSKStore               = handshakestate.PSKStore
	ClientAuthPolicy       = handshakestate.ClientAuthPolicy
)

const (
	NoClientCert               = handshakestate.NoClientCert
	RequestClientCert          = handshakestate.RequestClientCert
	RequireAnyClientCert       = handshakestate.RequireAnyClientCert
	RequireAndVerifyClientCert = handshakestate.RequireAndVerifyClientCert
)
