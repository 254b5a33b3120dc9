package tls

import (
	"errors"
	"io"
	"math"

	"go.uber.org/zap"

	"github.com/insinfo/tlslite-sub007/handshakestate"
	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/internal/defragment"
	"github.com/insinfo/tlslite-sub007/messages"
	"github.com/insinfo/tlslite-sub007/record"
	"github.com/insinfo/tlslite-sub007/wire"
)

// Conn is the connection façade: one TLS endpoint over one
// caller-supplied Transport. A Conn is owned by a single caller;
// concurrent method calls are undefined.
type Conn struct {
	config *Config
	role   Role
	layer  *record.Layer
	logger *zap.Logger

	state ConnState
	hs    *handshakestate.Result

	readBuf []byte
	postBuf defragment.Buffer

	latestTicket *NewSessionTicket

	err             error // sticky terminal error once state is FAILED/CLOSED
	closeNotifySent bool
	closeNotifyRecv bool
}

// NewClient wraps transport as the client side of a TLS connection.
func NewClient(config *Config, transport Transport) *Conn {
	return newConn(config, RoleClient, transport)
}

// NewServer wraps transport as the server side of a TLS connection.
func NewServer(config *Config, transport Transport) *Conn {
	return newConn(config, RoleServer, transport)
}

func newConn(config *Config, role Role, transport Transport) *Conn {
	if config == nil {
		config = &Config{}
	}
	return &Conn{
		config: config,
		role:   role,
		layer:  record.NewLayer(transport),
		logger: config.logger(),
		state:  StateIdle,
	}
}

// State reports the coarse connection lifecycle state.
func (c *Conn) State() ConnState { return c.state }

func (c *Conn) options() *handshakestate.Options {
	return &handshakestate.Options{
		MinVersion:                 c.config.minVersion(),
		MaxVersion:                 c.config.maxVersion(),
		CipherSuiteIDs:             c.config.cipherSuiteIDs(),
		CipherSuiteTLS13IDs:        c.config.cipherSuiteTLS13IDs(),
		PreferServerCipherSuites:   c.config.PreferServerCipherSuites,
		NamedGroups:                c.config.namedGroups(),
		SignatureSchemes:           c.config.signatureSchemes(),
		ServerName:                 c.config.ServerName,
		NextProtos:                 c.config.NextProtos,
		Credentials:                c.config.Credentials,
		SessionCache:               c.config.SessionCache,
		TicketStore:                c.config.TicketStore,
		PSKs:                       c.config.PSKs,
		ResumptionTickets:          c.config.ResumptionTickets,
		ClientAuth:                 c.config.ClientAuth,
		SessionTicketsDisabled:     c.config.SessionTicketsDisabled,
		MaxRecordSize:              c.config.MaxRecordSize,
		HeartbeatPeerAllowedToSend: c.config.HeartbeatPeerAllowedToSend,
		Rand:                       c.config.Rand,
		Time:                       c.config.Time,
		Logger:                     c.config.Logger,
	}
}

// Handshake drives the handshake to completion. It is a no-op on an
// already-established connection, and idempotently returns the terminal
// error on a failed one.
func (c *Conn) Handshake() error {
	switch c.state {
	case StateEstablished, StateClosing:
		return nil
	case StateFailed, StateClosed:
		if c.err != nil {
			return c.err
		}
		return &LocalError{Kind: AlertInternalError, Detail: "connection is closed"}
	}

	c.state = StateHandshaking
	if c.config.MaxRecordSize > 0 {
		c.layer.SetMaxSendSize(c.config.MaxRecordSize)
	}

	var res *handshakestate.Result
	var err error
	if c.role == RoleClient {
		res, err = handshakestate.RunClient(c.options(), c.layer)
	} else {
		res, err = handshakestate.RunServer(c.options(), c.layer)
	}
	if err != nil {
		return c.fatal(err)
	}
	c.hs = res
	c.state = StateEstablished
	c.logger.Debug("handshake complete",
		zap.Stringer("version", res.Version),
		zap.Uint16("cipher_suite", c.negotiatedCipherID()),
		zap.Bool("resumed", res.Resumed),
		zap.String("alpn", res.ALPN),
	)

	if c.role == RoleClient && res.ClientSessionToCache != nil && c.config.SessionCache != nil && res.ClientSessionToCache.ServerName != "" {
		c.config.SessionCache.Insert(res.ClientSessionToCache.ServerName, res.ClientSessionToCache)
	}
	if c.role == RoleServer && res.TLS13 != nil {
		if err := c.issueSessionTickets(); err != nil {
			return c.fatal(err)
		}
	}
	return nil
}

// Read returns application data, transparently absorbing post-handshake
// messages, heartbeats, key updates, and alerts. It returns io.EOF after
// a clean close_notify from the peer.
func (c *Conn) Read(p []byte) (int, error) {
	if err := c.Handshake(); err != nil {
		return 0, err
	}
	if c.err != nil {
		return 0, c.err
	}
	for {
		if len(c.readBuf) > 0 {
			n := copy(p, c.readBuf)
			c.readBuf = c.readBuf[n:]
			return n, nil
		}
		if c.closeNotifyRecv {
			return 0, io.EOF
		}

		ct, payload, err := c.layer.ReadRecord()
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return 0, err
			}
			if errors.Is(err, io.EOF) && c.closeNotifyRecv {
				return 0, io.EOF
			}
			return 0, c.fatal(err)
		}

		switch ct {
		case wire.ContentTypeApplicationData:
			// Zero-length protected records are legal and simply
			// yield no data.
			c.readBuf = payload

		case wire.ContentTypeAlert:
			done, err := c.handleAlert(payload)
			if err != nil {
				return 0, err
			}
			if done {
				return 0, io.EOF
			}

		case wire.ContentTypeHandshake:
			if err := c.handlePostHandshake(payload); err != nil {
				return 0, c.fatal(err)
			}

		case wire.ContentTypeChangeCipherSpec:
			if c.hs.TLS13 != nil {
				continue // middlebox compatibility: drop silently
			}
			return 0, c.fatal(&handshakestate.ProtocolError{Kind: AlertUnexpectedMessage, Detail: "ChangeCipherSpec after handshake"})

		case wire.ContentTypeHeartbeat:
			if err := c.handleHeartbeat(payload); err != nil {
				return 0, c.fatal(err)
			}
		}
	}
}

// Write sends application data, fragmenting as needed. Writing remains
// legal after the peer's close_notify (half-close) but not after Close.
func (c *Conn) Write(p []byte) (int, error) {
	if err := c.Handshake(); err != nil {
		return 0, err
	}
	if c.err != nil {
		return 0, c.err
	}
	if c.closeNotifySent {
		return 0, &LocalError{Kind: AlertInternalError, Detail: "write after close"}
	}

	// Sequence exhaustion forces a key update under TLS 1.3 and is fatal
	// under TLS 1.2.
	if ws := c.layer.WriteState(); !ws.IsNull() && ws.SequenceNumber() >= math.MaxUint64-1 {
		if c.hs.TLS13 != nil {
			if err := c.hs.TLS13.SendKeyUpdate(c.layer, false); err != nil {
				return 0, c.fatal(err)
			}
		} else {
			return 0, c.fatal(&handshakestate.ProtocolError{Kind: AlertInternalError, Detail: "record sequence number exhausted"})
		}
	}

	if err := c.layer.WriteRecord(wire.ContentTypeApplicationData, p); err != nil {
		if errors.Is(err, ErrWouldBlock) {
			return 0, err
		}
		return 0, c.fatal(err)
	}
	return len(p), nil
}

// Close sends close_notify (once), zeroizes key material, and releases
// the transport.
func (c *Conn) Close() error {
	if c.state == StateClosed {
		return nil
	}
	if !c.closeNotifySent && (c.state == StateEstablished || c.state == StateClosing) {
		c.sendAlert(AlertCloseNotify)
		c.closeNotifySent = true
	}
	c.zeroize()
	c.state = StateClosed
	return c.layer.Close()
}

// SendKeyUpdate ratchets this side's sending keys, optionally demanding
// the peer do the same (TLS 1.3 only).
func (c *Conn) SendKeyUpdate(requestUpdate bool) error {
	if err := c.Handshake(); err != nil {
		return err
	}
	if c.hs.TLS13 == nil {
		return &LocalError{Kind: AlertInternalError, Detail: "KeyUpdate requires TLS 1.3"}
	}
	if err := c.hs.TLS13.SendKeyUpdate(c.layer, requestUpdate); err != nil {
		return c.fatal(err)
	}
	c.logger.Debug("key update sent", zap.Bool("update_requested", requestUpdate))
	return nil
}

// handleAlert processes one alert record post-handshake. done=true means
// the peer closed cleanly and Read should surface io.EOF.
func (c *Conn) handleAlert(payload []byte) (done bool, err error) {
	if len(payload) != 2 {
		return false, c.fatal(&handshakestate.ProtocolError{Kind: AlertDecodeError, Detail: "malformed alert record"})
	}
	kind := AlertKind(payload[1])
	if kind == AlertCloseNotify {
		c.closeNotifyRecv = true
		c.state = StateClosing
		c.logger.Debug("close_notify received")
		return true, nil
	}
	if kind.IsWarning() {
		c.logger.Debug("warning alert received", zap.Stringer("alert", kind))
		return false, nil
	}
	c.logger.Warn("fatal alert received", zap.Stringer("alert", kind))
	c.err = &RemoteAlert{Kind: kind}
	c.state = StateFailed
	c.zeroize()
	_ = c.layer.Close()
	return false, c.err
}

// handlePostHandshake dispatches handshake messages arriving after
// ESTABLISHED.
func (c *Conn) handlePostHandshake(payload []byte) error {
	c.postBuf.Push(payload)
	for {
		msg, ok, err := c.postBuf.Next()
		if err != nil {
			return &handshakestate.ProtocolError{Kind: AlertDecodeError, Detail: err.Error()}
		}
		if !ok {
			return nil
		}

		if c.hs.TLS13 != nil {
			switch msg.Type {
			case wire.HandshakeTypeNewSessionTicket:
				if c.role != RoleClient {
					return &handshakestate.ProtocolError{Kind: AlertUnexpectedMessage, Detail: "NewSessionTicket from a client"}
				}
				if err := c.storeReceivedTicket(msg.Body); err != nil {
					return err
				}
			case wire.HandshakeTypeKeyUpdate:
				if c.postBuf.Pending() {
					return &handshakestate.ProtocolError{Kind: AlertUnexpectedMessage, Detail: "KeyUpdate must not share a record with another message"}
				}
				if err := c.hs.TLS13.HandleKeyUpdate(c.layer, msg.Body); err != nil {
					return err
				}
				c.logger.Debug("key update applied")
			default:
				// post_handshake_auth is never negotiated by this engine,
				// so Certificate/CertificateVerify/Finished are as
				// unexpected as anything else here.
				return &handshakestate.ProtocolError{Kind: AlertUnexpectedMessage, Detail: "unexpected post-handshake " + msg.Type.String()}
			}
			continue
		}

		// TLS 1.2: refuse renegotiation with a warning and carry on.
		switch msg.Type {
		case wire.HandshakeTypeHelloRequest:
			c.sendAlert(AlertNoRenegotiation)
			c.logger.Debug("renegotiation refused", zap.String("trigger", "HelloRequest"))
		case wire.HandshakeTypeClientHello:
			if c.role != RoleServer {
				return &handshakestate.ProtocolError{Kind: AlertUnexpectedMessage, Detail: "ClientHello received by a client"}
			}
			c.sendAlert(AlertNoRenegotiation)
			c.logger.Debug("renegotiation refused", zap.String("trigger", "ClientHello"))
		default:
			return &handshakestate.ProtocolError{Kind: AlertUnexpectedMessage, Detail: "unexpected post-handshake " + msg.Type.String()}
		}
	}
}

// handleHeartbeat answers heartbeat_request with an echoing response
// when the extension was negotiated; payloads never reach the
// application. Malformed heartbeats are dropped per RFC 6520.
func (c *Conn) handleHeartbeat(payload []byte) error {
	if !c.hs.HeartbeatEnabled {
		return &handshakestate.ProtocolError{Kind: AlertUnexpectedMessage, Detail: "heartbeat without negotiation"}
	}
	hb, err := messages.DecodeHeartbeat(payload)
	if err != nil {
		return nil
	}
	if hb.Type == messages.HeartbeatRequest {
		resp := messages.Heartbeat{Type: messages.HeartbeatResponse, Payload: hb.Payload}
		return c.layer.WriteRecord(wire.ContentTypeHeartbeat, resp.Marshal())
	}
	return nil
}

// fatal maps an internal error to its public shape, emits the paired
// alert when one applies, and tears the connection down.
func (c *Conn) fatal(err error) error {
	var pe *handshakestate.ProtocolError
	var ra *handshakestate.RemoteAlertError

	switch {
	case errors.Is(err, ErrWouldBlock):
		// Non-blocking pause, not a failure: caller retries the same
		// operation after transport readiness.
		return err
	case errors.As(err, &ra):
		c.err = &RemoteAlert{Kind: ra.Kind}
	case errors.As(err, &pe):
		c.sendAlert(pe.Kind)
		c.err = &LocalError{Kind: pe.Kind, Detail: pe.Detail}
	case errors.Is(err, cipherstate.ErrBadRecordMAC):
		c.sendAlert(AlertBadRecordMAC)
		c.err = &LocalError{Kind: AlertBadRecordMAC, Detail: "record authentication failed"}
	case errors.Is(err, record.ErrRecordTooLarge):
		c.sendAlert(AlertRecordOverflow)
		c.err = &LocalError{Kind: AlertRecordOverflow, Detail: "record exceeds length limit"}
	case errors.Is(err, record.ErrUnknownContentType):
		c.sendAlert(AlertUnexpectedMessage)
		c.err = &LocalError{Kind: AlertUnexpectedMessage, Detail: "unrecognized record content type"}
	case errors.Is(err, messages.ErrDecode):
		c.sendAlert(AlertDecodeError)
		c.err = &LocalError{Kind: AlertDecodeError, Detail: err.Error()}
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		c.err = &TransportError{Err: err}
	default:
		c.sendAlert(AlertInternalError)
		c.err = &TransportError{Err: err}
	}

	if le, ok := c.err.(*LocalError); ok {
		c.logger.Warn("connection failed", zap.Stringer("alert", le.Kind), zap.String("detail", le.Detail))
	}
	c.state = StateFailed
	c.zeroize()
	_ = c.layer.Close()
	return c.err
}

func (c *Conn) zeroize() {
	if ws := c.layer.WriteState(); ws != nil {
		ws.Zeroize()
	}
	if rs := c.layer.ReadState(); rs != nil {
		rs.Zeroize()
	}
	if c.hs != nil && c.hs.TLS13 != nil {
		c.hs.TLS13.Zeroize()
	}
}

func (c *Conn) negotiatedCipherID() uint16 {
	if c.hs == nil {
		return 0
	}
	if c.hs.CipherSuiteTLS13 != nil {
		return c.hs.CipherSuiteTLS13.ID
	}
	if c.hs.CipherSuite12 != nil {
		return c.hs.CipherSuite12.ID
	}
	return 0
}

// ConnectionState is a snapshot of the negotiated parameters, in the
// shape crypto/tls callers expect.
type ConnectionState struct {
	Version            ProtocolVersion
	CipherSuite        uint16
	NegotiatedProtocol string
	ServerName         string
	PeerCertificates   [][]byte
	Resumed            bool
	HandshakeComplete  bool
}

// ConnectionState returns the negotiated-parameter snapshot; the zero
// value before the handshake completes.
func (c *Conn) ConnectionState() ConnectionState {
	if c.hs == nil {
		return ConnectionState{}
	}
	return ConnectionState{
		Version:            c.hs.Version,
		CipherSuite:        c.negotiatedCipherID(),
		NegotiatedProtocol: c.hs.ALPN,
		ServerName:         c.hs.ServerName,
		PeerCertificates:   c.hs.PeerCertificates,
		Resumed:            c.hs.Resumed,
		HandshakeComplete:  c.state == StateEstablished || c.state == StateClosing,
	}
}

// PeerCertificate returns the peer's leaf certificate in DER, or nil.
func (c *Conn) PeerCertificate() []byte {
	if c.hs == nil || len(c.hs.PeerCertificates) == 0 {
		return nil
	}
	return c.hs.PeerCertificates[0]
}

// NegotiatedCipher returns the negotiated cipher suite ID.
func (c *Conn) NegotiatedCipher() uint16 { return c.negotiatedCipherID() }

// NegotiatedALPN returns the negotiated application protocol, if any.
func (c *Conn) NegotiatedALPN() string {
	if c.hs == nil {
		return ""
	}
	return c.hs.ALPN
}

// ExportKeyingMaterial derives exporter output per RFC 8446 §7.5.
// TLS 1.2 exporters are not provided (no exporter_master_secret exists
// in its schedule as modeled here).
func (c *Conn) ExportKeyingMaterial(label string, context []byte, length int) ([]byte, error) {
	if c.hs == nil || c.hs.TLS13 == nil {
		return nil, &LocalError{Kind: AlertInternalError, Detail: "exporter requires an established TLS 1.3 connection"}
	}
	return c.hs.TLS13.ExportKeyingMaterial(label, context, length), nil
}
