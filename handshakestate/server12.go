package handshakestate

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"io"
	"time"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/internal/keyexchange"
	"github.com/insinfo/tlslite-sub007/internal/keyschedule"
	"github.com/insinfo/tlslite-sub007/messages"
	"github.com/insinfo/tlslite-sub007/record"
	"github.com/insinfo/tlslite-sub007/wire"
)

// runServer12 drives the TLS 1.2 server state machine given the first
// ClientHello. downgraded stamps the TLS 1.3→1.2 sentinel into
// ServerHello.random.
func runServer12(opts *Options, layer *record.Layer, hio *handshakeIO, ch messages.ClientHello, chRaw []byte, downgraded bool) (*Result, error) {
	transcript := NewTranscript(crypto.SHA256)
	hio.setTranscript(transcript)
	transcript.Add(chRaw)
	layer.SetOutgoingVersion(wire.VersionTLS12)

	serverName := ""
	if sni, ok := ch.Extensions.Get(wire.ExtServerName); ok {
		if name, err := messages.DecodeServerNameList(sni.Data); err == nil {
			serverName = name
		}
	}
	var clientGroups []wire.NamedGroup
	if groups, ok := ch.Extensions.Get(wire.ExtSupportedGroups); ok {
		if g, err := messages.DecodeSupportedGroups(groups.Data); err == nil {
			clientGroups = g
		}
	}
	clientSigAlgs := defaultSignatureSchemes()
	if sa, ok := ch.Extensions.Get(wire.ExtSignatureAlgorithms); ok {
		if s, err := messages.DecodeSignatureSchemes(sa.Data); err == nil {
			clientSigAlgs = s
		}
	}
	_, clientEMS := ch.Extensions.Get(wire.ExtExtendedMasterSecret)
	_, clientRenegInfo := ch.Extensions.Get(wire.ExtRenegotiationInfo)
	_, clientStatusRequest := ch.Extensions.Get(wire.ExtStatusRequest)
	ticketExt, clientTicketing := ch.Extensions.Get(wire.ExtSessionTicket)
	serverTicketing := clientTicketing && opts.SessionCache != nil && !opts.SessionTicketsDisabled

	var clientProtos []string
	if a, ok := ch.Extensions.Get(wire.ExtALPN); ok {
		if protos, err := messages.DecodeALPN(a.Data); err == nil {
			clientProtos = protos
		}
	}
	alpn, _ := selectALPN(opts.NextProtos, clientProtos)

	heartbeatEnabled := false
	if hb, ok := ch.Extensions.Get(wire.ExtHeartbeat); ok && opts.HeartbeatPeerAllowedToSend {
		mode, err := messages.DecodeHeartbeatMode(hb.Data)
		if err == nil && mode == messages.HeartbeatModePeerAllowedToSend {
			heartbeatEnabled = true
		}
	}

	var random [32]byte
	if _, err := io.ReadFull(opts.rand(), random[:]); err != nil {
		return nil, errf(wire.AlertInternalError, "random: %v", err)
	}
	if downgraded {
		copy(random[24:], wire.DowngradeCanaryTLS12[:])
	}

	// Abbreviated handshake when the client presented a ticket we issued
	// (RFC 5077, keyed by the opaque ticket bytes) or a cached session_id,
	// and its suite is still on offer. Either way the ServerHello echoes
	// the client's session_id so acceptance is visible.
	if opts.SessionCache != nil && !opts.SessionTicketsDisabled {
		var cached *Session
		// Ticket acceptance is only detectable to the client through the
		// session_id echo, so a ticket without one gets a full handshake.
		if serverTicketing && len(ticketExt.Data) > 0 && len(ch.LegacySessionID) > 0 {
			if s, ok := opts.SessionCache.Lookup(string(ticketExt.Data)); ok {
				cached = s
			}
		}
		if cached == nil && len(ch.LegacySessionID) > 0 {
			if s, ok := opts.SessionCache.Lookup(string(ch.LegacySessionID)); ok {
				cached = s
			}
		}
		if cached != nil && containsUint16(ch.CipherSuites, cached.CipherSuite) && cached.EMS == clientEMS {
			suite := cipherstate.CipherSuiteByID(cached.CipherSuite)
			if suite != nil {
				prfHash := hashForSuite12(suite)
				transcript.SetHash(prfHash)
				sh := serverHello12(random, ch.LegacySessionID, cached.CipherSuite, cached.EMS, clientRenegInfo, false, alpn, heartbeatEnabled, false)
				if err := hio.writeMessage(sh.Marshal(), true); err != nil {
					return nil, err
				}
				return finishResumption12(opts, layer, hio, transcript, suite, prfHash.New, cached, ch.Random[:], random[:], alpn, heartbeatEnabled, false)
			}
		}
	}

	// Full handshake: pick a credential, then a suite the credential can
	// authenticate.
	if opts.Credentials == nil {
		return nil, errf(wire.AlertInternalError, "no CredentialStore configured to supply a server certificate")
	}
	cred, err := opts.Credentials.GetServerCertificate(serverName, clientSigAlgs)
	if err != nil || cred == nil {
		return nil, errf(wire.AlertHandshakeFailure, "no server certificate available for %q", serverName)
	}
	pub := cred.PrivateKey.Public()

	usable := func(id uint16) bool {
		s := cipherstate.CipherSuiteByID(id)
		if s == nil {
			return false
		}
		if s.IsECDSA() {
			switch pub.(type) {
			case *ecdsa.PublicKey, ed25519.PublicKey:
				return true
			}
			return false
		}
		if _, ok := pub.(*rsa.PublicKey); !ok {
			return false
		}
		if !s.IsECDHE() && !s.IsDHE() {
			// Static RSA needs the decryption key, not just a signer.
			_, ok := cred.PrivateKey.(*rsa.PrivateKey)
			return ok
		}
		return true
	}
	suite := selectCipherSuite12(ch.CipherSuites, opts.CipherSuiteIDs, opts.PreferServerCipherSuites, usable)
	if suite == nil {
		return nil, errf(wire.AlertHandshakeFailure, "no mutually supported TLS 1.2 cipher suite")
	}
	prfHash := hashForSuite12(suite)
	transcript.SetHash(prfHash)
	hashNew := prfHash.New

	// A ticketing handshake keeps the session_id empty and resumes by
	// ticket alone; only ticket-less clients get a session_id to cache by.
	var sessionID []byte
	if opts.SessionCache != nil && !opts.SessionTicketsDisabled && !serverTicketing {
		sessionID = make([]byte, 32)
		if _, err := io.ReadFull(opts.rand(), sessionID); err != nil {
			return nil, errf(wire.AlertInternalError, "session id: %v", err)
		}
	}

	sendStaple := clientStatusRequest && len(cred.OCSPStaple) > 0
	sh := serverHello12(random, sessionID, suite.ID, clientEMS, clientRenegInfo, sendStaple, alpn, heartbeatEnabled, serverTicketing)
	if err := hio.writeMessage(sh.Marshal(), true); err != nil {
		return nil, err
	}

	var entries []messages.CertificateEntry
	for _, der := range cred.Chain {
		entries = append(entries, messages.CertificateEntry{Data: der})
	}
	if err := hio.writeMessage(messages.Certificate{Entries: entries}.MarshalTLS12(), true); err != nil {
		return nil, err
	}

	if sendStaple {
		cs := messages.CertificateStatus{StatusType: 1, Response: cred.OCSPStaple}
		if err := hio.writeMessage(cs.Marshal(), true); err != nil {
			return nil, err
		}
	}

	// ServerKeyExchange for the ephemeral families.
	var kexState *keyexchange.ClientState
	var rsaKex bool
	switch {
	case suite.IsECDHE():
		group, ok := selectGroup(clientGroups, classicalGroupsOf(opts.groupsOrDefault()))
		if !ok {
			return nil, errf(wire.AlertHandshakeFailure, "no mutually supported elliptic curve")
		}
		share, state, err := keyexchange.ClientOffer(group, opts.rand())
		if err != nil {
			return nil, errf(wire.AlertInternalError, "key share generation: %v", err)
		}
		kexState = state
		scheme := pickScheme(intersectOrPeer(opts.SignatureSchemes, clientSigAlgs), cred)
		signed := skeSignedContent(ch.Random[:], random[:], ecdheParams(group, share))
		sig, err := signWithScheme(cred.PrivateKey, scheme, signed, true)
		if err != nil {
			return nil, err
		}
		ske := messages.ServerKeyExchangeECDHE{Group: group, Point: share, Algorithm: scheme, Signature: sig}
		if err := hio.writeMessage(ske.Marshal(), true); err != nil {
			return nil, err
		}

	case suite.IsDHE():
		p, g, _ := keyexchange.FFDHEGroupParams(wire.Ffdhe2048)
		share, state, err := keyexchange.DHEOfferWithPrime(p, g, opts.rand())
		if err != nil {
			return nil, errf(wire.AlertInternalError, "dhe share generation: %v", err)
		}
		kexState = state
		pBytes, gBytes := p.Bytes(), g.Bytes()
		scheme := pickScheme(intersectOrPeer(opts.SignatureSchemes, clientSigAlgs), cred)
		signed := skeSignedContent(ch.Random[:], random[:], dheParams(pBytes, gBytes, share))
		sig, err := signWithScheme(cred.PrivateKey, scheme, signed, true)
		if err != nil {
			return nil, err
		}
		ske := messages.ServerKeyExchangeDHE{P: pBytes, G: gBytes, Y: share, Algorithm: scheme, Signature: sig}
		if err := hio.writeMessage(ske.Marshal(), true); err != nil {
			return nil, err
		}

	default:
		rsaKex = true
	}

	requestedAuth := opts.ClientAuth != NoClientCert
	if requestedAuth {
		cr := messages.CertificateRequest{
			CertificateTypes:    []byte{1, 64}, // rsa_sign, ecdsa_sign
			SupportedSignatures: opts.SignatureSchemes,
		}
		if err := hio.writeMessage(cr.MarshalTLS12(), true); err != nil {
			return nil, err
		}
	}

	if err := hio.writeMessage(messages.ServerHelloDone{}.Marshal(), true); err != nil {
		return nil, err
	}

	// Client flight: [Certificate], ClientKeyExchange, [CertificateVerify].
	msg, err := hio.readMessage()
	if err != nil {
		return nil, err
	}

	var peerChain [][]byte
	clientCertSent := false
	if requestedAuth {
		if msg.Type != wire.HandshakeTypeCertificate {
			return nil, errf(wire.AlertUnexpectedMessage, "expected client Certificate, got %s", msg.Type)
		}
		cert, err := messages.DecodeCertificateTLS12(msg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "client Certificate: %v", err)
		}
		for _, e := range cert.Entries {
			peerChain = append(peerChain, e.Data)
		}
		clientCertSent = len(peerChain) > 0
		if !clientCertSent && (opts.ClientAuth == RequireAnyClientCert || opts.ClientAuth == RequireAndVerifyClientCert) {
			return nil, errf(wire.AlertCertificateRequired, "client declined to authenticate")
		}
		if msg, err = hio.readMessage(); err != nil {
			return nil, err
		}
	}

	if msg.Type != wire.HandshakeTypeClientKeyExchange {
		return nil, errf(wire.AlertUnexpectedMessage, "expected ClientKeyExchange, got %s", msg.Type)
	}

	var preMaster []byte
	if rsaKex {
		cke, err := messages.DecodeClientKeyExchangeRSAOrDHE(msg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "ClientKeyExchange: %v", err)
		}
		rsaPriv := cred.PrivateKey.(*rsa.PrivateKey)
		preMaster, err = keyexchange.RSADecryptPreMaster(rsaPriv, cke.Exchange, uint16(ch.LegacyVersion), opts.rand())
		if err != nil {
			return nil, errf(wire.AlertInternalError, "pre-master decryption: %v", err)
		}
	} else if suite.IsECDHE() {
		cke, err := messages.DecodeClientKeyExchangeECDHE(msg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "ClientKeyExchange: %v", err)
		}
		preMaster, err = keyexchange.ClientComplete(kexState, cke.Exchange)
		if err != nil {
			return nil, errf(wire.AlertIllegalParameter, "key exchange completion: %v", err)
		}
	} else {
		cke, err := messages.DecodeClientKeyExchangeRSAOrDHE(msg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "ClientKeyExchange: %v", err)
		}
		preMaster, err = keyexchange.DHEComplete(kexState, cke.Exchange)
		if err != nil {
			return nil, errf(wire.AlertIllegalParameter, "dhe completion: %v", err)
		}
	}

	sessionHash := transcript.Sum()
	masterSecret := keyschedule.MasterSecret12(hashNew, preMaster, ch.Random[:], random[:], clientEMS, sessionHash)

	if clientCertSent {
		tbytes := transcript.Bytes()
		cvMsg, err := hio.readSpecificMessage(wire.HandshakeTypeCertificateVerify)
		if err != nil {
			return nil, err
		}
		cv, err := messages.DecodeCertificateVerify(cvMsg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "CertificateVerify: %v", err)
		}
		leaf, err := parseLeaf(peerChain[0])
		if err != nil {
			return nil, errf(wire.AlertBadCertificate, "parse leaf: %v", err)
		}
		if err := verifyCertificateVerify12(leaf, cv.Algorithm, tbytes, cv.Signature); err != nil {
			return nil, err
		}
		if opts.ClientAuth == RequireAndVerifyClientCert {
			if kind, err := opts.Credentials.VerifyPeerChain(peerChain, "", nil); err != nil {
				return nil, errf(alertOrDefault(kind, wire.AlertBadCertificate), "client certificate chain rejected: %v", err)
			}
		}
	}

	if err := hio.readChangeCipherSpec(); err != nil {
		return nil, err
	}
	write, read := directionStates12(suite, hashNew, masterSecret, ch.Random[:], random[:], false)
	layer.SetReadState(read, false)

	thClient := transcript.Sum()
	finMsg, err := hio.readSpecificMessage(wire.HandshakeTypeFinished)
	if err != nil {
		return nil, err
	}
	fin := messages.DecodeFinished(finMsg.Body)
	if !cipherstate.ConstantTimeCompare(fin.VerifyData, verifyData12(hashNew, masterSecret, "client finished", thClient)) {
		return nil, errf(wire.AlertDecryptError, "client Finished verification failed")
	}

	// NewSessionTicket goes out between the client's Finished and this
	// side's ChangeCipherSpec, and is covered by the server Finished hash
	// (RFC 5077 §3.3). The ticket is an opaque random key into the same
	// session cache the session_id path uses.
	var issuedTicket []byte
	if serverTicketing {
		issuedTicket = make([]byte, 32)
		if _, err := io.ReadFull(opts.rand(), issuedTicket); err != nil {
			return nil, errf(wire.AlertInternalError, "ticket generation: %v", err)
		}
		nst := messages.NewSessionTicket12{
			LifetimeHintSeconds: uint32((24 * time.Hour).Seconds()),
			Ticket:              issuedTicket,
		}
		if err := hio.writeMessage(nst.Marshal(), true); err != nil {
			return nil, err
		}
	}

	if err := hio.writeChangeCipherSpec(); err != nil {
		return nil, err
	}
	layer.SetWriteState(write, false)
	thServer := transcript.Sum()
	serverVerify := verifyData12(hashNew, masterSecret, "server finished", thServer)
	if err := hio.writeMessage(messages.Finished{VerifyData: serverVerify}.Marshal(), true); err != nil {
		return nil, err
	}

	if opts.SessionCache != nil {
		session := &Session{
			CipherSuite:  suite.ID,
			MasterSecret: masterSecret,
			SessionID:    sessionID,
			Ticket:       issuedTicket,
			PeerCerts:    peerChain,
			ServerName:   serverName,
			ALPN:         alpn,
			EMS:          clientEMS,
			ExpireTime:   opts.now().Add(24 * time.Hour),
		}
		if len(issuedTicket) > 0 {
			opts.SessionCache.Insert(string(issuedTicket), session)
		} else if len(sessionID) > 0 {
			opts.SessionCache.Insert(string(sessionID), session)
		}
	}

	return &Result{
		Version:          wire.VersionTLS12,
		CipherSuite12:    suite,
		ALPN:             alpn,
		ServerName:       serverName,
		PeerCertificates: peerChain,
		HeartbeatEnabled: heartbeatEnabled,
		TLS12SessionID:   sessionID,
	}, nil
}

// serverHello12 assembles a TLS 1.2 ServerHello with the extension echo
// set the client's offer calls for.
func serverHello12(random [32]byte, sessionID []byte, suiteID uint16, ems, renegInfo, staple bool, alpn string, heartbeat, ticket bool) messages.ServerHello {
	var exts messages.ExtensionList
	if renegInfo {
		exts = append(exts, messages.Extension{Type: wire.ExtRenegotiationInfo, Data: []byte{0}})
	}
	if ticket {
		// Empty session_ticket echo: a NewSessionTicket will follow the
		// client's Finished (RFC 5077 §3.1).
		exts = append(exts, messages.Extension{Type: wire.ExtSessionTicket, Data: nil})
	}
	if ems {
		exts = append(exts, messages.Extension{Type: wire.ExtExtendedMasterSecret, Data: nil})
	}
	if staple {
		exts = append(exts, messages.Extension{Type: wire.ExtStatusRequest, Data: nil})
	}
	if alpn != "" {
		exts = append(exts, messages.Extension{Type: wire.ExtALPN, Data: messages.EncodeALPN([]string{alpn})})
	}
	if heartbeat {
		exts = append(exts, messages.Extension{Type: wire.ExtHeartbeat, Data: messages.EncodeHeartbeatMode(messages.HeartbeatModePeerAllowedToSend)})
	}
	return messages.ServerHello{
		Random:              random,
		LegacySessionIDEcho: sessionID,
		CipherSuite:         suiteID,
		Extensions:          exts,
	}
}
