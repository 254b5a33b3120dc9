package tls

import (
	"crypto/rand"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
)

// Config carries role-independent policy shared by every Conn created
// from it. It follows crypto/tls's Config shape: a plain struct with a
// shallow Clone, rather than a builder.
type Config struct {
	// MinVersion/MaxVersion bound version negotiation. Only TLS 1.2 and
	// TLS 1.3 are ever negotiated regardless of these bounds.
	MinVersion ProtocolVersion
	MaxVersion ProtocolVersion

	// CipherSuites is the preference order for TLS 1.2 suites. Nil means
	// "use the built-in default order" (cipherSuites table order).
	CipherSuites []uint16
	// CipherSuitesTLS13 is the preference order for TLS 1.3 suites.
	CipherSuitesTLS13 []uint16

	// PreferServerCipherSuites makes the server pick by its own
	// CipherSuites order rather than the client's.
	PreferServerCipherSuites bool

	NamedGroups      []NamedGroup
	SignatureSchemes []SignatureScheme

	ServerName string
	NextProtos []string // ALPN protocol preference order

	Credentials  CredentialStore
	SessionCache SessionCache
	TicketStore  TicketStore
	PSKs         PSKStore

	// ResumptionTickets are TLS 1.3 tickets a client offers as PSK
	// identities on this connection, usually obtained from a prior
	// connection's SessionForResumption.
	ResumptionTickets []*NewSessionTicket

	// ClientAuth controls whether a server requests a client certificate.
	ClientAuth ClientAuthPolicy

	// SessionTicketsDisabled disables issuing/consuming TLS 1.3
	// NewSessionTicket messages and TLS 1.2 session-ID resumption.
	SessionTicketsDisabled bool

	// MaxRecordSize bounds outgoing record fragment size; it is further
	// clamped down to the peer's negotiated record_size_limit (RFC 8449).
	MaxRecordSize int

	// HeartbeatPeerAllowedToSend, if true, negotiates the heartbeat
	// extension in peer_allowed_to_send mode.
	HeartbeatPeerAllowedToSend bool

	Rand   io.Reader
	Time   func() time.Time
	Logger *zap.Logger
}

// Clone returns a shallow copy of c, following crypto/tls's convention
// that Config is safe to share across connections once handed to them.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	c2 := *c
	return &c2
}

func (c *Config) rand() io.Reader {
	if c.Rand != nil {
		return c.Rand
	}
	return rand.Reader
}

func (c *Config) now() time.Time {
	if c.Time != nil {
		return c.Time()
	}
	return time.Now()
}

func (c *Config) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

func (c *Config) minVersion() ProtocolVersion {
	if c.MinVersion == 0 {
		return VersionTLS12
	}
	return c.MinVersion
}

func (c *Config) maxVersion() ProtocolVersion {
	if c.MaxVersion == 0 {
		return VersionTLS13
	}
	return c.MaxVersion
}

func (c *Config) namedGroups() []NamedGroup {
	if len(c.NamedGroups) > 0 {
		return c.NamedGroups
	}
	return []NamedGroup{X25519, Secp256r1, X25519Mlkem768, Secp384r1, Secp521r1}
}

func (c *Config) signatureSchemes() []SignatureScheme {
	if len(c.SignatureSchemes) > 0 {
		return c.SignatureSchemes
	}
	return []SignatureScheme{
		Ed25519,
		ECDSAWithP256AndSHA256,
		ECDSAWithP384AndSHA384,
		ECDSAWithP521AndSHA512,
		PSSWithSHA256,
		PSSWithSHA384,
		PSSWithSHA512,
		PKCS1WithSHA256,
		PKCS1WithSHA384,
		PKCS1WithSHA512,
	}
}

func (c *Config) cipherSuiteIDs() []uint16 {
	if len(c.CipherSuites) > 0 {
		return c.CipherSuites
	}
	return cipherstate.DefaultCipherSuiteIDs()
}

func (c *Config) cipherSuiteTLS13IDs() []uint16 {
	if len(c.CipherSuitesTLS13) > 0 {
		return c.CipherSuitesTLS13
	}
	return cipherstate.DefaultCipherSuiteTLS13IDs()
}
