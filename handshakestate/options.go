package handshakestate

import (
	"crypto"
	"crypto/rand"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/wire"
)

// Options carries the role-independent policy a Conn's Config resolves
// before driving a handshake, plus the external collaborators. It is the
// handshakestate-local mirror of the root package's Config, constructed
// once per Conn so this package never needs to import the root package
// (which would create an import cycle, since root imports handshakestate).
type Options struct {
	MinVersion, MaxVersion wire.ProtocolVersion

	CipherSuiteIDs           []uint16
	CipherSuiteTLS13IDs      []uint16
	PreferServerCipherSuites bool

	NamedGroups      []wire.NamedGroup
	SignatureSchemes []wire.SignatureScheme

	ServerName string
	NextProtos []string

	Credentials  CredentialStore
	SessionCache SessionCache
	TicketStore  TicketStore
	PSKs         PSKStore

	// ResumptionTickets are the TLS 1.3 tickets a client offers as PSK
	// identities on this handshake (server side ignores them).
	ResumptionTickets []*NewSessionTicket

	ClientAuth ClientAuthPolicy

	SessionTicketsDisabled bool
	MaxRecordSize          int

	HeartbeatPeerAllowedToSend bool

	Rand   io.Reader
	Time   func() time.Time
	Logger *zap.Logger
}

func (o *Options) now() time.Time {
	if o.Time != nil {
		return o.Time()
	}
	return time.Now()
}

func (o *Options) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

func (o *Options) rand() io.Reader {
	if o.Rand != nil {
		return o.Rand
	}
	return rand.Reader
}

// transcriptHashGuess picks the hash algorithm the transcript starts
// under, before the peer's cipher suite choice is known: the first
// configured TLS 1.3 suite's hash. The guess only matters until the
// suite is chosen: the Transcript keeps the raw messages, and SetHash
// retargets it to the negotiated suite's hash at that point.
func (o *Options) transcriptHashGuess() crypto.Hash {
	if len(o.CipherSuiteTLS13IDs) > 0 {
		if suite := cipherstate.CipherSuiteTLS13ByID(o.CipherSuiteTLS13IDs[0]); suite != nil {
			return suite.Hash
		}
	}
	return crypto.SHA256
}

// Result is everything a completed handshake hands back to the Conn:
// negotiated parameters, the peer's certificate chain, and (for TLS 1.3)
// the continuation state needed to process post-handshake messages and
// to export keying material for the life of the connection.
type Result struct {
	Version          wire.ProtocolVersion
	CipherSuite12    *cipherstate.CipherSuite
	CipherSuiteTLS13 *cipherstate.CipherSuiteTLS13

	ALPN             string
	ServerName       string
	PeerCertificates [][]byte
	Resumed          bool

	// HeartbeatEnabled reports that both peers negotiated the heartbeat
	// extension in peer_allowed_to_send mode; the Conn must answer
	// heartbeat_request records once set.
	HeartbeatEnabled bool

	TLS13 *TLS13State

	// ClientSessionToCache is set on the client after a full TLS 1.2
	// handshake completes, ready for the caller to store against its own
	// resumption key (usually the server name).
	ClientSessionToCache *Session
	// TLS12SessionID is the session_id the server assigned (full) or the
	// client offered and the server echoed (abbreviated); used as the
	// SessionCache lookup key on the server side.
	TLS12SessionID []byte
}

// TLS13State is the continuation state a TLS 1.3 Conn keeps for the life
// of the connection: the secret tree (for exporters and future
// resumption), the current per-direction traffic secrets (mutated in
// place by KeyUpdate), and enough context to process post-handshake
// NewSessionTicket/KeyUpdate/CertificateRequest messages.
type TLS13State struct {
	Role  wire.Role
	Hash  crypto.Hash
	Suite *cipherstate.CipherSuiteTLS13

	ExporterMasterSecret   []byte
	ResumptionMasterSecret []byte
	ClientAppTrafficSecret []byte
	ServerAppTrafficSecret []byte

	PostHandshakeAuthEnabled bool

	// KeyUpdateInFlight is set when this side sends a KeyUpdate with
	// update_requested and cleared when the peer's KeyUpdate arrives.
	// Nothing in this package reads it: post_handshake_auth is never
	// negotiated, so no post-handshake client auth waits on it.
	KeyUpdateInFlight bool
}
