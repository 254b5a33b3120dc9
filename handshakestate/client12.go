package handshakestate

import (
	"bytes"
	"crypto"
	"crypto/rsa"
	"hash"
	"io"
	"math/big"
	"time"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/internal/keyexchange"
	"github.com/insinfo/tlslite-sub007/internal/keyschedule"
	"github.com/insinfo/tlslite-sub007/messages"
	"github.com/insinfo/tlslite-sub007/record"
	"github.com/insinfo/tlslite-sub007/wire"
)

// runClient12 drives the TLS 1.2 client state machine: full handshake
// with ECDHE, DHE, or RSA key exchange, or the abbreviated session-ID
// resumption flow when the server echoes a cached session.
func runClient12(opts *Options, layer *record.Layer) (*Result, error) {
	transcript := NewTranscript(crypto.SHA256)
	hio := newHandshakeIO(layer, transcript)

	var random [32]byte
	if _, err := io.ReadFull(opts.rand(), random[:]); err != nil {
		return nil, errf(wire.AlertInternalError, "random: %v", err)
	}

	ticketing := opts.SessionCache != nil && !opts.SessionTicketsDisabled

	var cached *Session
	if ticketing && opts.ServerName != "" {
		if s, ok := opts.SessionCache.Lookup(opts.ServerName); ok && (len(s.SessionID) > 0 || len(s.Ticket) > 0) {
			cached = s
		}
	}

	classicalGroups := classicalGroupsOf(opts.groupsOrDefault())

	var exts messages.ExtensionList
	if opts.ServerName != "" {
		exts = append(exts, messages.Extension{Type: wire.ExtServerName, Data: messages.EncodeServerNameList(opts.ServerName)})
	}
	exts = append(exts, messages.Extension{Type: wire.ExtSupportedGroups, Data: messages.EncodeSupportedGroups(classicalGroups)})
	exts = append(exts, messages.Extension{Type: wire.ExtECPointFormats, Data: []byte{1, 0}})
	exts = append(exts, messages.Extension{Type: wire.ExtSignatureAlgorithms, Data: messages.EncodeSignatureSchemes(opts.SignatureSchemes)})
	exts = append(exts, messages.Extension{Type: wire.ExtExtendedMasterSecret, Data: nil})
	exts = append(exts, messages.Extension{Type: wire.ExtRenegotiationInfo, Data: []byte{0}})
	exts = append(exts, messages.Extension{Type: wire.ExtStatusRequest, Data: []byte{1, 0, 0, 0, 0}})
	if len(opts.NextProtos) > 0 {
		exts = append(exts, messages.Extension{Type: wire.ExtALPN, Data: messages.EncodeALPN(opts.NextProtos)})
	}
	if opts.HeartbeatPeerAllowedToSend {
		exts = append(exts, messages.Extension{Type: wire.ExtHeartbeat, Data: messages.EncodeHeartbeatMode(messages.HeartbeatModePeerAllowedToSend)})
	}

	// RFC 5077 session tickets: an empty session_ticket extension offers
	// ticket support; a cached ticket rides in the extension body along
	// with a fresh session_id so acceptance is detectable by its echo
	// (RFC 5077 §3.4).
	var offeredTicket []byte
	var sessionID []byte
	if cached != nil {
		if len(cached.Ticket) > 0 {
			offeredTicket = cached.Ticket
			sessionID = make([]byte, 32)
			if _, err := io.ReadFull(opts.rand(), sessionID); err != nil {
				return nil, errf(wire.AlertInternalError, "session id: %v", err)
			}
		} else {
			sessionID = cached.SessionID
		}
	}
	if ticketing {
		exts = append(exts, messages.Extension{Type: wire.ExtSessionTicket, Data: offeredTicket})
	}

	ch := messages.ClientHello{
		Random:          random,
		LegacySessionID: sessionID,
		CipherSuites:    opts.CipherSuiteIDs,
		Extensions:      exts,
	}
	if err := hio.writeMessage(ch.Marshal(), true); err != nil {
		return nil, err
	}

	shMsg, err := hio.readSpecificMessage(wire.HandshakeTypeServerHello)
	if err != nil {
		return nil, err
	}
	sh, err := messages.DecodeServerHello(shMsg.Body)
	if err != nil {
		return nil, errf(wire.AlertDecodeError, "ServerHello: %v", err)
	}

	var extVersion wire.ProtocolVersion
	hasVersionExt := false
	if sv, ok := sh.Extensions.Get(wire.ExtSupportedVersions); ok {
		v, err := messages.DecodeSupportedVersionsServer(sv.Data)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "supported_versions: %v", err)
		}
		extVersion = v
		hasVersionExt = true
	}
	version := selectVersionFromServerHello(extVersion, hasVersionExt, sh.LegacyVersion)
	if version != wire.VersionTLS12 {
		return nil, errf(wire.AlertProtocolVersion, "server selected %s, only TLS 1.2 was offered", version)
	}
	layer.SetOutgoingVersion(wire.VersionTLS12)

	suite := cipherstate.CipherSuiteByID(sh.CipherSuite)
	if suite == nil || !containsUint16(opts.CipherSuiteIDs, sh.CipherSuite) {
		return nil, errf(wire.AlertIllegalParameter, "server selected an unoffered cipher suite %04x", sh.CipherSuite)
	}
	prfHash := hashForSuite12(suite)
	transcript.SetHash(prfHash)
	hashNew := prfHash.New

	ems := false
	if _, ok := sh.Extensions.Get(wire.ExtExtendedMasterSecret); ok {
		ems = true
	}
	var alpn string
	if a, ok := sh.Extensions.Get(wire.ExtALPN); ok {
		protos, err := messages.DecodeALPN(a.Data)
		if err == nil && len(protos) == 1 {
			alpn = protos[0]
		}
	}
	heartbeatEnabled := false
	if hb, ok := sh.Extensions.Get(wire.ExtHeartbeat); ok && opts.HeartbeatPeerAllowedToSend {
		mode, err := messages.DecodeHeartbeatMode(hb.Data)
		if err == nil && mode == messages.HeartbeatModePeerAllowedToSend {
			heartbeatEnabled = true
		}
	}
	serverTicketing := false
	if _, ok := sh.Extensions.Get(wire.ExtSessionTicket); ok && ticketing {
		serverTicketing = true
	}

	// Abbreviated handshake: the server echoed the session_id we offered
	// (the cached one, or the fresh one sent alongside a ticket).
	if cached != nil && len(sessionID) > 0 && bytes.Equal(sh.LegacySessionIDEcho, sessionID) {
		if sh.CipherSuite != cached.CipherSuite {
			return nil, errf(wire.AlertIllegalParameter, "resumed session with a different cipher suite")
		}
		if ems != cached.EMS {
			return nil, errf(wire.AlertHandshakeFailure, "extended_master_secret mismatch on resumption")
		}
		return finishResumption12(opts, layer, hio, transcript, suite, hashNew, cached, random[:], sh.Random[:], alpn, heartbeatEnabled, true)
	}

	// Full handshake. Server Certificate first.
	certMsg, err := hio.readSpecificMessage(wire.HandshakeTypeCertificate)
	if err != nil {
		return nil, err
	}
	cert, err := messages.DecodeCertificateTLS12(certMsg.Body)
	if err != nil {
		return nil, errf(wire.AlertDecodeError, "Certificate: %v", err)
	}
	var peerChain [][]byte
	for _, e := range cert.Entries {
		peerChain = append(peerChain, e.Data)
	}
	if len(peerChain) == 0 {
		return nil, errf(wire.AlertBadCertificate, "empty server certificate chain")
	}
	leaf, err := parseLeaf(peerChain[0])
	if err != nil {
		return nil, errf(wire.AlertBadCertificate, "parse leaf: %v", err)
	}

	msg, err := hio.readMessage()
	if err != nil {
		return nil, err
	}

	var ocspResponse []byte
	if msg.Type == wire.HandshakeTypeCertificateStatus {
		cs, err := messages.DecodeCertificateStatus(msg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "CertificateStatus: %v", err)
		}
		ocspResponse = cs.Response
		if msg, err = hio.readMessage(); err != nil {
			return nil, err
		}
	}

	if opts.Credentials == nil {
		return nil, errf(wire.AlertInternalError, "no CredentialStore configured to verify server certificate")
	}
	if kind, err := opts.Credentials.VerifyPeerChain(peerChain, opts.ServerName, ocspResponse); err != nil {
		return nil, errf(alertOrDefault(kind, wire.AlertBadCertificate), "peer certificate chain rejected: %v", err)
	}

	// Key exchange, by suite family.
	var preMaster []byte
	var ckeRaw []byte
	switch {
	case suite.IsECDHE():
		if msg.Type != wire.HandshakeTypeServerKeyExchange {
			return nil, errf(wire.AlertUnexpectedMessage, "expected ServerKeyExchange, got %s", msg.Type)
		}
		ske, err := messages.DecodeServerKeyExchangeECDHE(msg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "ServerKeyExchange: %v", err)
		}
		if !containsGroup(classicalGroups, ske.Group) {
			return nil, errf(wire.AlertIllegalParameter, "server chose unoffered group %s", ske.Group)
		}
		if !containsScheme(opts.SignatureSchemes, ske.Algorithm) {
			return nil, errf(wire.AlertIllegalParameter, "server signed key exchange with unoffered scheme %04x", uint16(ske.Algorithm))
		}
		signed := skeSignedContent(random[:], sh.Random[:], ecdheParams(ske.Group, ske.Point))
		if err := verifyWithScheme(leaf.PublicKey, ske.Algorithm, signed, ske.Signature, true); err != nil {
			return nil, err
		}
		point, secret, err := keyexchange.ServerComplete(ske.Group, ske.Point, opts.rand())
		if err != nil {
			return nil, errf(wire.AlertIllegalParameter, "key exchange: %v", err)
		}
		preMaster = secret
		ckeRaw = messages.ClientKeyExchange{Exchange: point}.MarshalECDHE()
		if msg, err = hio.readMessage(); err != nil {
			return nil, err
		}

	case suite.IsDHE():
		if msg.Type != wire.HandshakeTypeServerKeyExchange {
			return nil, errf(wire.AlertUnexpectedMessage, "expected ServerKeyExchange, got %s", msg.Type)
		}
		ske, err := messages.DecodeServerKeyExchangeDHE(msg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "ServerKeyExchange: %v", err)
		}
		if !containsScheme(opts.SignatureSchemes, ske.Algorithm) {
			return nil, errf(wire.AlertIllegalParameter, "server signed key exchange with unoffered scheme %04x", uint16(ske.Algorithm))
		}
		signed := skeSignedContent(random[:], sh.Random[:], dheParams(ske.P, ske.G, ske.Y))
		if err := verifyWithScheme(leaf.PublicKey, ske.Algorithm, signed, ske.Signature, true); err != nil {
			return nil, err
		}
		p := newBigInt(ske.P)
		g := newBigInt(ske.G)
		share, state, err := keyexchange.DHEOfferWithPrime(p, g, opts.rand())
		if err != nil {
			return nil, errf(wire.AlertInsufficientSecurity, "dhe parameters rejected: %v", err)
		}
		secret, err := keyexchange.DHEComplete(state, ske.Y)
		if err != nil {
			return nil, errf(wire.AlertIllegalParameter, "dhe completion: %v", err)
		}
		preMaster = secret
		ckeRaw = messages.ClientKeyExchange{Exchange: share}.MarshalRSAOrDHE()
		if msg, err = hio.readMessage(); err != nil {
			return nil, err
		}

	default: // static RSA key exchange
		rsaPub, ok := leaf.PublicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errf(wire.AlertHandshakeFailure, "rsa key exchange requires an RSA server certificate")
		}
		pms, err := keyexchange.RSAPreMasterSecret(uint16(wire.VersionTLS12), opts.rand())
		if err != nil {
			return nil, errf(wire.AlertInternalError, "pre-master generation: %v", err)
		}
		encrypted, err := keyexchange.RSAEncryptPreMaster(rsaPub, pms, opts.rand())
		if err != nil {
			return nil, errf(wire.AlertInternalError, "pre-master encryption: %v", err)
		}
		preMaster = pms
		ckeRaw = messages.ClientKeyExchange{Exchange: encrypted}.MarshalRSAOrDHE()
	}

	var certReq *messages.CertificateRequest
	if msg.Type == wire.HandshakeTypeCertificateRequest {
		cr, err := messages.DecodeCertificateRequestTLS12(msg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "CertificateRequest: %v", err)
		}
		certReq = &cr
		if msg, err = hio.readMessage(); err != nil {
			return nil, err
		}
	}

	if msg.Type != wire.HandshakeTypeServerHelloDone || len(msg.Body) != 0 {
		return nil, errf(wire.AlertUnexpectedMessage, "expected ServerHelloDone, got %s", msg.Type)
	}

	var clientCred *Certificate
	if certReq != nil {
		if opts.Credentials != nil {
			info := &CertificateRequestInfo{
				AcceptableCAs:    certReq.CertificateAuthorities,
				SignatureSchemes: certReq.SupportedSignatures,
			}
			cred, err := opts.Credentials.GetClientCertificate(info)
			if err != nil {
				return nil, errf(wire.AlertInternalError, "client certificate selection: %v", err)
			}
			clientCred = cred
		}
		var entries []messages.CertificateEntry
		if clientCred != nil {
			for _, der := range clientCred.Chain {
				entries = append(entries, messages.CertificateEntry{Data: der})
			}
		}
		if err := hio.writeMessage(messages.Certificate{Entries: entries}.MarshalTLS12(), true); err != nil {
			return nil, err
		}
	}

	if err := hio.writeMessage(ckeRaw, true); err != nil {
		return nil, err
	}

	// The EMS session hash covers everything through ClientKeyExchange
	// (RFC 7627 §3).
	sessionHash := transcript.Sum()
	masterSecret := keyschedule.MasterSecret12(hashNew, preMaster, random[:], sh.Random[:], ems, sessionHash)

	if clientCred != nil {
		scheme := pickScheme(intersectOrPeer(opts.SignatureSchemes, certReq.SupportedSignatures), clientCred)
		sig, err := signCertificateVerify12(clientCred.PrivateKey, scheme, transcript.Bytes())
		if err != nil {
			return nil, err
		}
		cv := messages.CertificateVerify{Algorithm: scheme, Signature: sig}.Marshal()
		if err := hio.writeMessage(cv, true); err != nil {
			return nil, err
		}
	}

	if err := hio.writeChangeCipherSpec(); err != nil {
		return nil, err
	}
	write, read := directionStates12(suite, hashNew, masterSecret, random[:], sh.Random[:], true)
	layer.SetWriteState(write, false)

	thClient := transcript.Sum()
	clientVerify := verifyData12(hashNew, masterSecret, "client finished", thClient)
	if err := hio.writeMessage(messages.Finished{VerifyData: clientVerify}.Marshal(), true); err != nil {
		return nil, err
	}

	// A ticketing server sends NewSessionTicket between our Finished and
	// its ChangeCipherSpec; the message is part of the handshake hash its
	// own Finished covers (RFC 5077 §3.3).
	var issuedTicket []byte
	if serverTicketing {
		nstMsg, err := hio.readSpecificMessage(wire.HandshakeTypeNewSessionTicket)
		if err != nil {
			return nil, err
		}
		nst, err := messages.DecodeNewSessionTicket12(nstMsg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "NewSessionTicket: %v", err)
		}
		issuedTicket = nst.Ticket
	}

	if err := hio.readChangeCipherSpec(); err != nil {
		return nil, err
	}
	layer.SetReadState(read, false)

	thServer := transcript.Sum()
	finMsg, err := hio.readSpecificMessage(wire.HandshakeTypeFinished)
	if err != nil {
		return nil, err
	}
	fin := messages.DecodeFinished(finMsg.Body)
	if !cipherstate.ConstantTimeCompare(fin.VerifyData, verifyData12(hashNew, masterSecret, "server finished", thServer)) {
		return nil, errf(wire.AlertDecryptError, "server Finished verification failed")
	}

	var toCache *Session
	if (len(sh.LegacySessionIDEcho) > 0 || len(issuedTicket) > 0) && !opts.SessionTicketsDisabled {
		toCache = &Session{
			CipherSuite:  suite.ID,
			MasterSecret: masterSecret,
			SessionID:    sh.LegacySessionIDEcho,
			Ticket:       issuedTicket,
			PeerCerts:    peerChain,
			ServerName:   opts.ServerName,
			ALPN:         alpn,
			EMS:          ems,
			ExpireTime:   opts.now().Add(24 * time.Hour),
		}
	}

	return &Result{
		Version:              wire.VersionTLS12,
		CipherSuite12:        suite,
		ALPN:                 alpn,
		ServerName:           opts.ServerName,
		PeerCertificates:     peerChain,
		HeartbeatEnabled:     heartbeatEnabled,
		ClientSessionToCache: toCache,
		TLS12SessionID:       sh.LegacySessionIDEcho,
	}, nil
}

// finishResumption12 completes the abbreviated handshake from either
// role: the server's CCS+Finished flight comes first, then this side's
//. On the server, call with isClient=false
// right after the echoing ServerHello has been sent.
func finishResumption12(opts *Options, layer *record.Layer, hio *handshakeIO, transcript *Transcript, suite *cipherstate.CipherSuite, hashNew func() hash.Hash, cached *Session, clientRandom, serverRandom []byte, alpn string, heartbeatEnabled, isClient bool) (*Result, error) {
	write, read := directionStates12(suite, hashNew, cached.MasterSecret, clientRandom, serverRandom, isClient)

	if isClient {
		if err := hio.readChangeCipherSpec(); err != nil {
			return nil, err
		}
		layer.SetReadState(read, false)
		thServer := transcript.Sum()
		finMsg, err := hio.readSpecificMessage(wire.HandshakeTypeFinished)
		if err != nil {
			return nil, err
		}
		fin := messages.DecodeFinished(finMsg.Body)
		if !cipherstate.ConstantTimeCompare(fin.VerifyData, verifyData12(hashNew, cached.MasterSecret, "server finished", thServer)) {
			return nil, errf(wire.AlertDecryptError, "server Finished verification failed")
		}

		if err := hio.writeChangeCipherSpec(); err != nil {
			return nil, err
		}
		layer.SetWriteState(write, false)
		thClient := transcript.Sum()
		clientVerify := verifyData12(hashNew, cached.MasterSecret, "client finished", thClient)
		if err := hio.writeMessage(messages.Finished{VerifyData: clientVerify}.Marshal(), true); err != nil {
			return nil, err
		}
	} else {
		if err := hio.writeChangeCipherSpec(); err != nil {
			return nil, err
		}
		layer.SetWriteState(write, false)
		thServer := transcript.Sum()
		serverVerify := verifyData12(hashNew, cached.MasterSecret, "server finished", thServer)
		if err := hio.writeMessage(messages.Finished{VerifyData: serverVerify}.Marshal(), true); err != nil {
			return nil, err
		}

		if err := hio.readChangeCipherSpec(); err != nil {
			return nil, err
		}
		layer.SetReadState(read, false)
		thClient := transcript.Sum()
		finMsg, err := hio.readSpecificMessage(wire.HandshakeTypeFinished)
		if err != nil {
			return nil, err
		}
		fin := messages.DecodeFinished(finMsg.Body)
		if !cipherstate.ConstantTimeCompare(fin.VerifyData, verifyData12(hashNew, cached.MasterSecret, "client finished", thClient)) {
			return nil, errf(wire.AlertDecryptError, "client Finished verification failed")
		}
	}

	serverName := cached.ServerName
	if serverName == "" {
		serverName = opts.ServerName
	}
	return &Result{
		Version:          wire.VersionTLS12,
		CipherSuite12:    suite,
		ALPN:             alpn,
		ServerName:       serverName,
		PeerCertificates: cached.PeerCerts,
		Resumed:          true,
		HeartbeatEnabled: heartbeatEnabled,
		TLS12SessionID:   cached.SessionID,
	}, nil
}

// classicalGroupsOf filters a group preference list down to what TLS 1.2
// ECDHE can use: no hybrids, no named FFDHE groups (classic DHE carries
// explicit parameters instead).
func classicalGroupsOf(groups []wire.NamedGroup) []wire.NamedGroup {
	var out []wire.NamedGroup
	for _, g := range groups {
		if g.IsHybrid() || g.IsFFDHE() {
			continue
		}
		out = append(out, g)
	}
	if len(out) == 0 {
		out = []wire.NamedGroup{wire.X25519, wire.Secp256r1}
	}
	return out
}

// skeSignedContent assembles the TLS 1.2 ServerKeyExchange signature
// input: client_random || server_random || params (RFC 5246 §7.4.3).
func skeSignedContent(clientRandom, serverRandom, params []byte) []byte {
	out := make([]byte, 0, 64+len(params))
	out = append(out, clientRandom...)
	out = append(out, serverRandom...)
	out = append(out, params...)
	return out
}

// ecdheParams re-encodes the ECDHE parameter block exactly as it appears
// on the wire inside ServerKeyExchange: curve_type || named_curve ||
// opaque point<1..2^8-1> (RFC 8422 §5.4).
func ecdheParams(group wire.NamedGroup, point []byte) []byte {
	out := make([]byte, 0, 4+len(point))
	out = append(out, 3, byte(uint16(group)>>8), byte(uint16(group)))
	out = append(out, byte(len(point)))
	out = append(out, point...)
	return out
}

// dheParams re-encodes the classic DHE parameter block: p, g, Ys each as
// opaque<1..2^16-1> (RFC 5246 §7.4.3).
func dheParams(p, g, y []byte) []byte {
	out := make([]byte, 0, 6+len(p)+len(g)+len(y))
	for _, v := range [][]byte{p, g, y} {
		out = append(out, byte(len(v)>>8), byte(len(v)))
		out = append(out, v...)
	}
	return out
}

func containsUint16(list []uint16, v uint16) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func containsGroup(list []wire.NamedGroup, g wire.NamedGroup) bool {
	for _, x := range list {
		if x == g {
			return true
		}
	}
	return false
}

func containsScheme(list []wire.SignatureScheme, s wire.SignatureScheme) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

func newBigInt(b []byte) *big.Int { return new(big.Int).SetBytes(b) }
