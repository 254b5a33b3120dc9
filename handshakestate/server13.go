package handshakestate

import (
	"bytes"
	"io"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/internal/keyexchange"
	"github.com/insinfo/tlslite-sub007/internal/keyschedule"
	"github.com/insinfo/tlslite-sub007/messages"
	"github.com/insinfo/tlslite-sub007/record"
	"github.com/insinfo/tlslite-sub007/wire"
)

// runServer13 drives the TLS 1.3 server state machine given the first
// ClientHello already read off the wire by the dispatcher (which has to
// peek at it to decide between the 1.2 and 1.3 state machines).
func runServer13(opts *Options, layer *record.Layer, hio *handshakeIO, ch messages.ClientHello, chRaw []byte) (*Result, error) {
	transcript := NewTranscript(opts.transcriptHashGuess())
	hio.setTranscript(transcript)
	hio.dropCCS = true
	transcript.Add(chRaw)
	layer.SetOutgoingVersion(wire.VersionTLS12)

	var clientGroups []wire.NamedGroup
	if groups, ok := ch.Extensions.Get(wire.ExtSupportedGroups); ok {
		g, err := messages.DecodeSupportedGroups(groups.Data)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "supported_groups: %v", err)
		}
		clientGroups = g
	}

	var keyShares []messages.KeyShareEntry
	if shares, ok := ch.Extensions.Get(wire.ExtKeyShare); ok {
		ks, err := messages.DecodeKeyShareClientHello(shares.Data)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "key_share: %v", err)
		}
		keyShares = ks
	}

	group, ok := selectGroup(namedGroupsFromShares(keyShares), opts.groupsOrDefault())
	if !ok {
		group, ok = selectGroup(clientGroups, opts.groupsOrDefault())
		if !ok {
			if pskOnlyOffered(ch) {
				// A psk_ke-only client legitimately offers no usable share.
				return finishServer13(opts, layer, hio, transcript, ch, chRaw, 0)
			}
			return nil, errf(wire.AlertHandshakeFailure, "no mutually supported named group")
		}
		hrrCookie, err := sendHelloRetryRequest(hio, opts, transcript, ch.CipherSuites, group)
		if err != nil {
			return nil, err
		}
		msg2, err := hio.readSpecificMessage(wire.HandshakeTypeClientHello)
		if err != nil {
			return nil, err
		}
		ch2, err := messages.DecodeClientHello(msg2.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "second ClientHello: %v", err)
		}
		if c, ok := ch2.Extensions.Get(wire.ExtCookie); ok {
			echoed, err := messages.DecodeCookie(c.Data)
			if err != nil || !bytes.Equal(echoed, hrrCookie) {
				return nil, errf(wire.AlertIllegalParameter, "cookie mismatch after HelloRetryRequest")
			}
		} else {
			return nil, errf(wire.AlertMissingExtension, "second ClientHello without cookie")
		}
		return finishServer13(opts, layer, hio, transcript, ch2, msg2.Raw, group)
	}

	return finishServer13(opts, layer, hio, transcript, ch, chRaw, group)
}

func namedGroupsFromShares(shares []messages.KeyShareEntry) []wire.NamedGroup {
	var out []wire.NamedGroup
	for _, s := range shares {
		out = append(out, s.Group)
	}
	return out
}

func (o *Options) groupsOrDefault() []wire.NamedGroup {
	if len(o.NamedGroups) > 0 {
		return o.NamedGroups
	}
	return []wire.NamedGroup{wire.X25519}
}

// pskOnlyOffered reports whether the client offered a PSK restricted to
// the psk_ke (no DHE) exchange mode, RFC 8446 §4.2.9.
func pskOnlyOffered(ch messages.ClientHello) bool {
	if _, ok := ch.Extensions.Get(wire.ExtPreSharedKey); !ok {
		return false
	}
	modesExt, ok := ch.Extensions.Get(wire.ExtPSKKeyExchangeModes)
	if !ok {
		return false
	}
	modes, err := messages.DecodePSKKeyExchangeModes(modesExt.Data)
	if err != nil {
		return false
	}
	hasPSKOnly, hasDHE := false, false
	for _, m := range modes {
		switch m {
		case messages.PSKModePSKOnly:
			hasPSKOnly = true
		case messages.PSKModePSKWithDHE:
			hasDHE = true
		}
	}
	return hasPSKOnly && !hasDHE
}

// sendHelloRetryRequest emits an HRR selecting group plus a fresh cookie
// binding this server's choice, and collapses the transcript's
// first ClientHello to its message_hash under the selected suite's hash.
func sendHelloRetryRequest(hio *handshakeIO, opts *Options, transcript *Transcript, clientSuites []uint16, group wire.NamedGroup) ([]byte, error) {
	suite := selectCipherSuiteTLS13(clientSuites, opts.CipherSuiteTLS13IDs, opts.PreferServerCipherSuites)
	if suite == nil {
		return nil, errf(wire.AlertHandshakeFailure, "no mutually supported TLS 1.3 cipher suite")
	}
	transcript.SetHash(suite.Hash)
	transcript.ReplaceFirstWithMessageHash()

	cookie := make([]byte, 32)
	if _, err := io.ReadFull(opts.rand(), cookie); err != nil {
		return nil, errf(wire.AlertInternalError, "cookie generation: %v", err)
	}
	var exts messages.ExtensionList
	exts = append(exts, messages.Extension{Type: wire.ExtSupportedVersions, Data: messages.EncodeSupportedVersionsServer(wire.VersionTLS13)})
	exts = append(exts, messages.Extension{Type: wire.ExtKeyShare, Data: messages.EncodeKeyShareHelloRetryRequest(group)})
	exts = append(exts, messages.Extension{Type: wire.ExtCookie, Data: messages.EncodeCookie(cookie)})
	hrr := messages.ServerHello{
		Random:                  wire.HelloRetryRequestRandom,
		CipherSuite:             suite.ID,
		LegacyCompressionMethod: 0,
		Extensions:              exts,
	}
	if err := hio.writeMessage(hrr.Marshal(), true); err != nil {
		return nil, err
	}
	return cookie, nil
}

// finishServer13 runs the main TLS 1.3 server flight once a group is
// settled (group 0 means psk_ke: no key_share in either direction).
func finishServer13(opts *Options, layer *record.Layer, hio *handshakeIO, transcript *Transcript, ch messages.ClientHello, chRaw []byte, group wire.NamedGroup) (*Result, error) {
	suite := selectCipherSuiteTLS13(ch.CipherSuites, opts.CipherSuiteTLS13IDs, opts.PreferServerCipherSuites)
	if suite == nil {
		return nil, errf(wire.AlertHandshakeFailure, "no mutually supported TLS 1.3 cipher suite")
	}
	transcript.SetHash(suite.Hash)

	var clientShare []byte
	if group != 0 {
		if sharesExt, ok := ch.Extensions.Get(wire.ExtKeyShare); ok {
			keyShares, _ := messages.DecodeKeyShareClientHello(sharesExt.Data)
			for _, s := range keyShares {
				if s.Group == group {
					clientShare = s.KeyExchange
					break
				}
			}
		}
		if clientShare == nil {
			return nil, errf(wire.AlertHandshakeFailure, "client did not offer a share for the negotiated group")
		}
	}

	serverName := ""
	if sni, ok := ch.Extensions.Get(wire.ExtServerName); ok {
		name, err := messages.DecodeServerNameList(sni.Data)
		if err == nil {
			serverName = name
		}
	}

	var alpn string
	if a, ok := ch.Extensions.Get(wire.ExtALPN); ok {
		protos, err := messages.DecodeALPN(a.Data)
		if err == nil {
			if selected, ok := selectALPN(opts.NextProtos, protos); ok {
				alpn = selected
			}
		}
	}

	heartbeatEnabled := false
	if hb, ok := ch.Extensions.Get(wire.ExtHeartbeat); ok && opts.HeartbeatPeerAllowedToSend {
		mode, err := messages.DecodeHeartbeatMode(hb.Data)
		if err == nil && mode == messages.HeartbeatModePeerAllowedToSend {
			heartbeatEnabled = true
		}
	}

	peerRecordLimit := 0
	if rsl, ok := ch.Extensions.Get(wire.ExtRecordSizeLimit); ok {
		if limit, err := messages.DecodeRecordSizeLimit(rsl.Data); err == nil && limit >= 64 {
			peerRecordLimit = int(limit) - 1
		}
	}

	sigSchemes := defaultSignatureSchemes()
	if sa, ok := ch.Extensions.Get(wire.ExtSignatureAlgorithms); ok {
		s, err := messages.DecodeSignatureSchemes(sa.Data)
		if err == nil {
			sigSchemes = s
		}
	}

	psk, pskIndex, err := selectServerPSK(opts, ch, chRaw, suite)
	if err != nil {
		return nil, err
	}
	resumed := pskIndex >= 0
	if group == 0 && !resumed {
		return nil, errf(wire.AlertHandshakeFailure, "psk_ke offered but no PSK identity matched")
	}

	var share, sharedSecret []byte
	if group != 0 {
		share, sharedSecret, err = keyexchange.ServerComplete(group, clientShare, opts.rand())
		if err != nil {
			return nil, errf(wire.AlertIllegalParameter, "key exchange: %v", err)
		}
	}

	var random [32]byte
	if _, err := io.ReadFull(opts.rand(), random[:]); err != nil {
		return nil, errf(wire.AlertInternalError, "random: %v", err)
	}

	var shExts messages.ExtensionList
	shExts = append(shExts, messages.Extension{Type: wire.ExtSupportedVersions, Data: messages.EncodeSupportedVersionsServer(wire.VersionTLS13)})
	if group != 0 {
		shExts = append(shExts, messages.Extension{Type: wire.ExtKeyShare, Data: messages.EncodeKeyShareServerHello(messages.KeyShareEntry{Group: group, KeyExchange: share})})
	}
	if resumed {
		shExts = append(shExts, messages.Extension{Type: wire.ExtPreSharedKey, Data: messages.EncodePreSharedKeyServerHello(uint16(pskIndex))})
	}

	sh := messages.ServerHello{
		Random:                  random,
		LegacySessionIDEcho:     ch.LegacySessionID,
		CipherSuite:             suite.ID,
		LegacyCompressionMethod: 0,
		Extensions:              shExts,
	}
	if err := hio.writeMessage(sh.Marshal(), true); err != nil {
		return nil, err
	}

	sched := keyschedule.NewSchedule13(suite.Hash, psk)
	thServerHello := transcript.Sum()
	sched.AdvanceToHandshake(sharedSecret, thServerHello)

	chKey, chIV := keyschedule.TrafficKeyIV(suite.Hash, sched.ClientHandshakeTraffic, suite.KeyLen, 12)
	shKey, shIV := keyschedule.TrafficKeyIV(suite.Hash, sched.ServerHandshakeTraffic, suite.KeyLen, 12)
	writeState := cipherstate.NullDirectionState()
	readState := cipherstate.NullDirectionState()
	writeState.InstallAEAD13(suite, shKey, shIV, false)
	readState.InstallAEAD13(suite, chKey, chIV, true)
	layer.SetWriteState(writeState, true)
	layer.SetReadState(readState, true)

	var eeExts messages.ExtensionList
	if alpn != "" {
		eeExts = append(eeExts, messages.Extension{Type: wire.ExtALPN, Data: messages.EncodeALPN([]string{alpn})})
	}
	if heartbeatEnabled {
		eeExts = append(eeExts, messages.Extension{Type: wire.ExtHeartbeat, Data: messages.EncodeHeartbeatMode(messages.HeartbeatModePeerAllowedToSend)})
	}
	if peerRecordLimit > 0 {
		max := opts.MaxRecordSize
		if max <= 0 || max > wire.MaxPlaintextLen {
			max = wire.MaxPlaintextLen
		}
		eeExts = append(eeExts, messages.Extension{Type: wire.ExtRecordSizeLimit, Data: messages.EncodeRecordSizeLimit(uint16(max))})
		layer.SetMaxSendSize(peerRecordLimit)
	}
	ee := messages.EncryptedExtensions{Extensions: eeExts}
	if err := hio.writeMessage(ee.Marshal(), true); err != nil {
		return nil, err
	}

	var peerChain [][]byte
	requestedAuth := false
	if !resumed && opts.ClientAuth != NoClientCert {
		requestedAuth = true
		cr := messages.CertificateRequest{Extensions: messages.ExtensionList{
			{Type: wire.ExtSignatureAlgorithms, Data: messages.EncodeSignatureSchemes(opts.SignatureSchemes)},
		}}
		if err := hio.writeMessage(cr.MarshalTLS13(), true); err != nil {
			return nil, err
		}
	}

	if !resumed {
		if opts.Credentials == nil {
			return nil, errf(wire.AlertInternalError, "no CredentialStore configured to supply a server certificate")
		}
		cred, err := opts.Credentials.GetServerCertificate(serverName, sigSchemes)
		if err != nil || cred == nil {
			return nil, errf(wire.AlertHandshakeFailure, "no server certificate available for %q", serverName)
		}
		var entries []messages.CertificateEntry
		for i, der := range cred.Chain {
			entry := messages.CertificateEntry{Data: der}
			if i == 0 && len(cred.OCSPStaple) > 0 {
				if _, ok := ch.Extensions.Get(wire.ExtStatusRequest); ok {
					staple := messages.CertificateStatus{StatusType: 1, Response: cred.OCSPStaple}.Marshal()
					entry.Extensions = messages.ExtensionList{{Type: wire.ExtStatusRequest, Data: staple[4:]}}
				}
			}
			entries = append(entries, entry)
		}
		cert := messages.Certificate{Entries: entries}
		if err := hio.writeMessage(cert.MarshalTLS13(), true); err != nil {
			return nil, err
		}

		scheme := pickScheme(intersectOrPeer(opts.SignatureSchemes, sigSchemes), cred)
		th := transcript.Sum()
		sig, err := signCertificateVerify13(cred.PrivateKey, scheme, wire.RoleServer, th)
		if err != nil {
			return nil, err
		}
		cv := messages.CertificateVerify{Algorithm: scheme, Signature: sig}.Marshal()
		if err := hio.writeMessage(cv, true); err != nil {
			return nil, err
		}
	}

	thBeforeFinished := transcript.Sum()
	serverFinishedKey := sched.FinishedKey(sched.ServerHandshakeTraffic)
	verifyData := computeFinished(suite.Hash, serverFinishedKey, thBeforeFinished)
	if err := hio.writeMessage(messages.Finished{VerifyData: verifyData}.Marshal(), true); err != nil {
		return nil, err
	}

	thAfterServerFinished := transcript.Sum()
	sched.AdvanceToMaster(thAfterServerFinished)

	caKey, caIV := keyschedule.TrafficKeyIV(suite.Hash, sched.ServerApplicationTraffic, suite.KeyLen, 12)
	writeAppState := cipherstate.NullDirectionState()
	writeAppState.InstallAEAD13(suite, caKey, caIV, false)
	layer.SetWriteState(writeAppState, true)

	if requestedAuth {
		msg, err := hio.readMessage()
		if err != nil {
			return nil, err
		}
		if msg.Type != wire.HandshakeTypeCertificate {
			return nil, errf(wire.AlertUnexpectedMessage, "expected client Certificate, got %s", msg.Type)
		}
		cert, err := messages.DecodeCertificateTLS13(msg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "client Certificate: %v", err)
		}
		for _, e := range cert.Entries {
			peerChain = append(peerChain, e.Data)
		}
		if len(peerChain) > 0 {
			thBeforeCV := transcript.Sum()
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
			if err := verifyCertificateVerify13(leaf, cv.Algorithm, wire.RoleClient, thBeforeCV, cv.Signature); err != nil {
				return nil, err
			}
			if opts.ClientAuth == RequireAndVerifyClientCert {
				if kind, err := opts.Credentials.VerifyPeerChain(peerChain, "", nil); err != nil {
					return nil, errf(alertOrDefault(kind, wire.AlertBadCertificate), "client certificate chain rejected: %v", err)
				}
			}
		} else if opts.ClientAuth == RequireAnyClientCert || opts.ClientAuth == RequireAndVerifyClientCert {
			return nil, errf(wire.AlertCertificateRequired, "client declined to authenticate")
		}
	}

	thBeforeClientFinished := transcript.Sum()
	finMsg, err := hio.readSpecificMessage(wire.HandshakeTypeFinished)
	if err != nil {
		return nil, err
	}
	fin := messages.DecodeFinished(finMsg.Body)
	clientFinishedKey := sched.FinishedKey(sched.ClientHandshakeTraffic)
	if !verifyFinished(suite.Hash, clientFinishedKey, thBeforeClientFinished, fin.VerifyData) {
		return nil, errf(wire.AlertDecryptError, "client Finished verification failed")
	}

	thAfterClientFinished := transcript.Sum()
	resumptionMaster := sched.ResumptionMasterSecret(thAfterClientFinished)

	caoKey, caoIV := keyschedule.TrafficKeyIV(suite.Hash, sched.ClientApplicationTraffic, suite.KeyLen, 12)
	readAppState := cipherstate.NullDirectionState()
	readAppState.InstallAEAD13(suite, caoKey, caoIV, true)
	layer.SetReadState(readAppState, true)

	return &Result{
		Version:          wire.VersionTLS13,
		CipherSuiteTLS13: suite,
		ALPN:             alpn,
		ServerName:       serverName,
		PeerCertificates: peerChain,
		Resumed:          resumed,
		HeartbeatEnabled: heartbeatEnabled,
		TLS13: &TLS13State{
			Role:                   wire.RoleServer,
			Hash:                   suite.Hash,
			Suite:                  suite,
			ExporterMasterSecret:   sched.ExporterMaster,
			ResumptionMasterSecret: resumptionMaster,
			ClientAppTrafficSecret: sched.ClientApplicationTraffic,
			ServerAppTrafficSecret: sched.ServerApplicationTraffic,
		},
	}, nil
}

// intersectOrPeer narrows local signing preferences to what the peer
// accepts, falling back to the peer's list when the intersection is
// empty rather than failing outright (the credential check in pickScheme
// still applies).
func intersectOrPeer(local, peer []wire.SignatureScheme) []wire.SignatureScheme {
	if len(local) == 0 {
		return peer
	}
	if out := intersectSignatureSchemes(local, peer); len(out) > 0 {
		return out
	}
	return peer
}

// selectServerPSK finds the first offered identity the server recognizes
// (an external PSK config, or a cached ticket) and verifies its binder
// against the truncated transcript, returning its index in the
// ClientHello's offer list or -1 if none matched or none was offered
//. A binder mismatch is fatal, not merely "no PSK selected":
// RFC 8446 §4.2.11.2 requires rejecting the whole handshake.
func selectServerPSK(opts *Options, ch messages.ClientHello, chRaw []byte, suite *cipherstate.CipherSuiteTLS13) ([]byte, int, error) {
	pskExt, ok := ch.Extensions.Get(wire.ExtPreSharedKey)
	if !ok {
		return nil, -1, nil
	}
	offer, err := messages.DecodePreSharedKeyClientHello(pskExt.Data)
	if err != nil {
		return nil, -1, errf(wire.AlertDecodeError, "pre_shared_key: %v", err)
	}

	binderListLen := 2
	for _, b := range offer.Binders {
		binderListLen += 1 + len(b)
	}
	if binderListLen > len(chRaw) {
		return nil, -1, errf(wire.AlertDecodeError, "pre_shared_key binders exceed message length")
	}
	truncated := chRaw[:len(chRaw)-binderListLen]

	for i, id := range offer.Identities {
		if i >= len(offer.Binders) {
			break
		}
		var secret []byte
		var isResumption bool
		if opts.TicketStore != nil {
			if t, ok := opts.TicketStore.Lookup(id.Identity); ok {
				if t.CipherSuite != suite.ID {
					continue
				}
				secret = keyschedule.ResumptionPSK(suite.Hash, t.ResumptionSecret, t.Nonce)
				isResumption = true
			}
		}
		if secret == nil && opts.PSKs != nil {
			if cfg, ok := opts.PSKs.Lookup(id.Identity); ok {
				if cfg.Hash != suite.Hash {
					continue
				}
				secret = cfg.Secret
			}
		}
		if secret == nil {
			continue
		}

		sched := keyschedule.NewSchedule13(suite.Hash, secret)
		h := suite.Hash.New()
		h.Write(truncated)
		truncatedHash := h.Sum(nil)
		binderKey := sched.BinderKey(binderLabel(isResumption))
		finishedKey := sched.FinishedKey(binderKey)
		if !verifyBinder(suite.Hash, finishedKey, truncatedHash, offer.Binders[i]) {
			return nil, -1, errf(wire.AlertDecryptError, "PSK binder verification failed")
		}
		return secret, i, nil
	}
	return nil, -1, nil
}

func defaultSignatureSchemes() []wire.SignatureScheme {
	return []wire.SignatureScheme{
		wire.Ed25519,
		wire.ECDSAWithP256AndSHA256,
		wire.ECDSAWithP384AndSHA384,
		wire.PSSWithSHA256,
		wire.PSSWithSHA384,
		wire.PKCS1WithSHA256,
	}
}
