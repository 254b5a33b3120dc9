package handshakestate

import (
	"io"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/internal/keyexchange"
	"github.com/insinfo/tlslite-sub007/internal/keyschedule"
	"github.com/insinfo/tlslite-sub007/messages"
	"github.com/insinfo/tlslite-sub007/record"
	"github.com/insinfo/tlslite-sub007/wire"
)

// runClient13 drives the TLS 1.3 client state machine from the first
// ClientHello through the client Finished, handling at most one
// HelloRetryRequest round trip. On success layer's read/write
// cipher states are left installed with the application traffic secrets.
func runClient13(opts *Options, layer *record.Layer) (*Result, error) {
	groups := opts.NamedGroups
	if len(groups) == 0 {
		groups = []wire.NamedGroup{wire.X25519}
	}

	offers := buildPSKOffers(opts.PSKs, opts.ResumptionTickets, opts.now())

	state, err := sendClientHello13(opts, layer, groups, groups[0], nil, offers, nil)
	if err != nil {
		return nil, err
	}

	sh, _, err := readServerHelloOrHRR(state.io)
	if err != nil {
		return nil, err
	}

	if sh.IsHelloRetryRequest() {
		group, cookie, err := handleHRR(sh, groups)
		if err != nil {
			return nil, err
		}
		if suite := cipherstate.CipherSuiteTLS13ByID(sh.CipherSuite); suite != nil {
			state.transcript.SetHash(suite.Hash)
		}
		// readServerHelloOrHRR already folded the HRR into the transcript;
		// only the first ClientHello collapses to its message_hash.
		state.transcript.ReplaceFirstWithMessageHash()

		state, err = sendClientHello13(opts, layer, groups, group, cookie, offers, state)
		if err != nil {
			return nil, err
		}
		sh, _, err = readServerHelloOrHRR(state.io)
		if err != nil {
			return nil, err
		}
		if sh.IsHelloRetryRequest() {
			return nil, errf(wire.AlertUnexpectedMessage, "second HelloRetryRequest in one handshake")
		}
	}

	return finishClient13(opts, layer, state, sh)
}

// clientState13 threads the data client-side helpers need across the
// (possible) HRR round trip.
type clientState13 struct {
	io           *handshakeIO
	transcript   *Transcript
	suite13IDs   []uint16
	offeredGroup wire.NamedGroup
	kexState     *keyexchange.ClientState
	offers       []offeredPSK
	schedules    []*keyschedule.Schedule13
}

func sendClientHello13(opts *Options, layer *record.Layer, groups []wire.NamedGroup, offerGroup wire.NamedGroup, cookie []byte, offers []offeredPSK, prior *clientState13) (*clientState13, error) {
	var random [32]byte
	if _, err := io.ReadFull(opts.rand(), random[:]); err != nil {
		return nil, errf(wire.AlertInternalError, "random: %v", err)
	}

	share, kexState, err := keyexchange.ClientOffer(offerGroup, opts.rand())
	if err != nil {
		return nil, errf(wire.AlertInternalError, "key share generation: %v", err)
	}

	var exts messages.ExtensionList
	exts = append(exts, messages.Extension{Type: wire.ExtSupportedVersions, Data: messages.EncodeSupportedVersionsClient([]wire.ProtocolVersion{wire.VersionTLS13})})
	exts = append(exts, messages.Extension{Type: wire.ExtSupportedGroups, Data: messages.EncodeSupportedGroups(groups)})
	exts = append(exts, messages.Extension{Type: wire.ExtSignatureAlgorithms, Data: messages.EncodeSignatureSchemes(opts.SignatureSchemes)})
	exts = append(exts, messages.Extension{Type: wire.ExtKeyShare, Data: messages.EncodeKeyShareClientHello([]messages.KeyShareEntry{{Group: offerGroup, KeyExchange: share}})})
	if opts.ServerName != "" {
		exts = append(exts, messages.Extension{Type: wire.ExtServerName, Data: messages.EncodeServerNameList(opts.ServerName)})
	}
	if len(opts.NextProtos) > 0 {
		exts = append(exts, messages.Extension{Type: wire.ExtALPN, Data: messages.EncodeALPN(opts.NextProtos)})
	}
	if cookie != nil {
		exts = append(exts, messages.Extension{Type: wire.ExtCookie, Data: messages.EncodeCookie(cookie)})
	}
	if opts.HeartbeatPeerAllowedToSend {
		exts = append(exts, messages.Extension{Type: wire.ExtHeartbeat, Data: messages.EncodeHeartbeatMode(messages.HeartbeatModePeerAllowedToSend)})
	}
	if opts.MaxRecordSize >= 64 && opts.MaxRecordSize < wire.MaxPlaintextLen {
		exts = append(exts, messages.Extension{Type: wire.ExtRecordSizeLimit, Data: messages.EncodeRecordSizeLimit(uint16(opts.MaxRecordSize + 1))})
	}

	var schedules []*keyschedule.Schedule13
	if len(offers) > 0 {
		exts = append(exts, messages.Extension{Type: wire.ExtPSKKeyExchangeModes, Data: messages.EncodePSKKeyExchangeModes([]byte{messages.PSKModePSKWithDHE})})
		var identities []messages.PSKIdentity
		var placeholderBinders [][]byte
		for _, o := range offers {
			identities = append(identities, messages.PSKIdentity{Identity: o.Identity, AgeAdd: o.ObfuscatedAge})
			s := scheduleForOffer(o)
			schedules = append(schedules, s)
			placeholderBinders = append(placeholderBinders, make([]byte, o.Hash.Size()))
		}
		exts = append(exts, messages.Extension{Type: wire.ExtPreSharedKey, Data: messages.EncodePreSharedKeyClientHello(messages.PreSharedKeyClientHello{Identities: identities, Binders: placeholderBinders})})
	}

	ch := messages.ClientHello{
		Random:                   random,
		LegacySessionID:          nil,
		CipherSuites:             opts.CipherSuiteTLS13IDs,
		LegacyCompressionMethods: []byte{0},
		Extensions:               exts,
	}
	raw := ch.Marshal()

	if len(offers) > 0 {
		raw = rewriteBinders(raw, offers, schedules)
	}

	var st *clientState13
	var tr *Transcript
	var hio *handshakeIO
	if prior != nil {
		tr = prior.transcript
		hio = prior.io
	} else {
		tr = NewTranscript(opts.transcriptHashGuess())
		hio = newHandshakeIO(layer, tr)
		hio.dropCCS = true
	}

	if err := hio.writeMessage(raw, true); err != nil {
		return nil, err
	}

	st = &clientState13{
		io:           hio,
		transcript:   tr,
		suite13IDs:   opts.CipherSuiteTLS13IDs,
		offeredGroup: offerGroup,
		kexState:     kexState,
		offers:       offers,
		schedules:    schedules,
	}
	return st, nil
}

// rewriteBinders recomputes and splices the real PSK binders into an
// already-marshaled ClientHello, once the truncated transcript hash
// (everything up to but excluding the binders list) is known.
func rewriteBinders(raw []byte, offers []offeredPSK, schedules []*keyschedule.Schedule13) []byte {
	// binders list is the last 2-byte-length-prefixed vector inside the
	// pre_shared_key extension, itself the last extension written.
	binderListLen := 2
	for _, o := range offers {
		binderListLen += 1 + o.Hash.Size()
	}
	truncated := raw[:len(raw)-binderListLen]

	out := append([]byte(nil), raw...)
	pos := len(raw) - binderListLen + 2
	for i, o := range offers {
		h := schedules[i].Hash.New()
		h.Write(truncated)
		truncatedHash := h.Sum(nil)
		binderKey := schedules[i].BinderKey(binderLabel(o.IsResumption))
		finishedKey := schedules[i].FinishedKey(binderKey)
		binder := computeBinder(o.Hash, finishedKey, truncatedHash)
		out[pos] = byte(len(binder))
		copy(out[pos+1:], binder)
		pos += 1 + len(binder)
	}
	return out
}

func readServerHelloOrHRR(io *handshakeIO) (messages.ServerHello, []byte, error) {
	msg, err := io.readSpecificMessage(wire.HandshakeTypeServerHello)
	if err != nil {
		return messages.ServerHello{}, nil, err
	}
	sh, err := messages.DecodeServerHello(msg.Body)
	if err != nil {
		return messages.ServerHello{}, nil, errf(wire.AlertDecodeError, "ServerHello: %v", err)
	}
	return sh, msg.Raw, nil
}

func handleHRR(sh messages.ServerHello, groups []wire.NamedGroup) (wire.NamedGroup, []byte, error) {
	var group wire.NamedGroup
	if ks, ok := sh.Extensions.Get(wire.ExtKeyShare); ok {
		g, err := messages.DecodeKeyShareHelloRetryRequest(ks.Data)
		if err != nil {
			return 0, nil, errf(wire.AlertDecodeError, "HelloRetryRequest key_share: %v", err)
		}
		group = g
	} else {
		return 0, nil, errf(wire.AlertMissingExtension, "HelloRetryRequest without key_share")
	}
	found := false
	for _, g := range groups {
		if g == group {
			found = true
			break
		}
	}
	if !found {
		return 0, nil, errf(wire.AlertIllegalParameter, "HelloRetryRequest selected an unoffered group")
	}
	var cookie []byte
	if c, ok := sh.Extensions.Get(wire.ExtCookie); ok {
		cv, err := messages.DecodeCookie(c.Data)
		if err != nil {
			return 0, nil, errf(wire.AlertDecodeError, "cookie: %v", err)
		}
		cookie = cv
	}
	return group, cookie, nil
}

func finishClient13(opts *Options, layer *record.Layer, state *clientState13, sh messages.ServerHello) (*Result, error) {
	selectedVersion := wire.VersionTLS12
	if sv, ok := sh.Extensions.Get(wire.ExtSupportedVersions); ok {
		v, err := messages.DecodeSupportedVersionsServer(sv.Data)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "supported_versions: %v", err)
		}
		selectedVersion = v
	}
	if selectedVersion != wire.VersionTLS13 {
		return nil, errf(wire.AlertProtocolVersion, "server selected non-1.3 version after we negotiated 1.3")
	}
	if err := checkDowngradeCanary(selectedVersion, sh.Random, true); err != nil {
		return nil, err
	}

	suite := cipherstate.CipherSuiteTLS13ByID(sh.CipherSuite)
	if suite == nil {
		return nil, errf(wire.AlertIllegalParameter, "server selected an unoffered cipher suite")
	}
	state.transcript.SetHash(suite.Hash)
	layer.SetOutgoingVersion(wire.VersionTLS12)

	var psk []byte
	resumed := false
	if pskExt, ok := sh.Extensions.Get(wire.ExtPreSharedKey); ok {
		idx, err := messages.DecodePreSharedKeyServerHello(pskExt.Data)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "pre_shared_key: %v", err)
		}
		if int(idx) >= len(state.offers) {
			return nil, errf(wire.AlertIllegalParameter, "server selected an out-of-range PSK identity")
		}
		psk = resolvePSKSecret(state.offers[idx])
		resumed = true
	}

	var sharedSecret []byte
	if ks, ok := sh.Extensions.Get(wire.ExtKeyShare); ok {
		entry, err := messages.DecodeKeyShareServerHello(ks.Data)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "key_share: %v", err)
		}
		if entry.Group != state.offeredGroup {
			return nil, errf(wire.AlertIllegalParameter, "server key_share group mismatch")
		}
		sharedSecret, err = keyexchange.ClientComplete(state.kexState, entry.KeyExchange)
		if err != nil {
			return nil, errf(wire.AlertDecryptError, "key exchange completion: %v", err)
		}
	} else if !resumed {
		return nil, errf(wire.AlertMissingExtension, "ServerHello has neither key_share nor pre_shared_key")
	}

	sched := keyschedule.NewSchedule13(suite.Hash, psk)
	thServerHello := state.transcript.Sum()
	sched.AdvanceToHandshake(sharedSecret, thServerHello)

	chKey, chIV := keyschedule.TrafficKeyIV(suite.Hash, sched.ClientHandshakeTraffic, suite.KeyLen, 12)
	shKey, shIV := keyschedule.TrafficKeyIV(suite.Hash, sched.ServerHandshakeTraffic, suite.KeyLen, 12)
	writeState := cipherstate.NullDirectionState()
	readState := cipherstate.NullDirectionState()
	writeState.InstallAEAD13(suite, chKey, chIV, false)
	readState.InstallAEAD13(suite, shKey, shIV, true)
	layer.SetWriteState(writeState, true)
	layer.SetReadState(readState, true)

	ee, err := state.io.readSpecificMessage(wire.HandshakeTypeEncryptedExtensions)
	if err != nil {
		return nil, err
	}
	eeMsg, err := messages.DecodeEncryptedExtensions(ee.Body)
	if err != nil {
		return nil, errf(wire.AlertDecodeError, "EncryptedExtensions: %v", err)
	}
	var alpn string
	if a, ok := eeMsg.Extensions.Get(wire.ExtALPN); ok {
		protos, err := messages.DecodeALPN(a.Data)
		if err == nil && len(protos) == 1 {
			alpn = protos[0]
		}
	}
	heartbeatEnabled := false
	if hb, ok := eeMsg.Extensions.Get(wire.ExtHeartbeat); ok && opts.HeartbeatPeerAllowedToSend {
		mode, err := messages.DecodeHeartbeatMode(hb.Data)
		if err == nil && mode == messages.HeartbeatModePeerAllowedToSend {
			heartbeatEnabled = true
		}
	}
	if rsl, ok := eeMsg.Extensions.Get(wire.ExtRecordSizeLimit); ok {
		if limit, err := messages.DecodeRecordSizeLimit(rsl.Data); err == nil && limit >= 64 {
			layer.SetMaxSendSize(int(limit) - 1)
		}
	}

	var peerChain [][]byte
	var certReqCtx []byte
	certRequested := false

	requireAuth := !resumed
	if requireAuth {
		msg, err := state.io.readMessage()
		if err != nil {
			return nil, err
		}
		if msg.Type == wire.HandshakeTypeCertificateRequest {
			cr, err := messages.DecodeCertificateRequestTLS13(msg.Body)
			if err != nil {
				return nil, errf(wire.AlertDecodeError, "CertificateRequest: %v", err)
			}
			certReqCtx = cr.RequestContext
			certRequested = true
			msg, err = state.io.readSpecificMessage(wire.HandshakeTypeCertificate)
			if err != nil {
				return nil, err
			}
		}
		if msg.Type != wire.HandshakeTypeCertificate {
			return nil, errf(wire.AlertUnexpectedMessage, "expected Certificate, got %s", msg.Type)
		}
		cert, err := messages.DecodeCertificateTLS13(msg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "Certificate: %v", err)
		}
		for _, e := range cert.Entries {
			peerChain = append(peerChain, e.Data)
		}
		// An OCSP staple rides as a status_request extension on the leaf
		// entry (RFC 8446 §4.4.2.1); hand it to the chain verifier as-is.
		var ocspResponse []byte
		if len(cert.Entries) > 0 {
			if sr, ok := cert.Entries[0].Extensions.Get(wire.ExtStatusRequest); ok {
				if cs, err := messages.DecodeCertificateStatus(sr.Data); err == nil {
					ocspResponse = cs.Response
				}
			}
		}

		thBeforeCV := state.transcript.Sum()
		cvMsg, err := state.io.readSpecificMessage(wire.HandshakeTypeCertificateVerify)
		if err != nil {
			return nil, err
		}
		cv, err := messages.DecodeCertificateVerify(cvMsg.Body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "CertificateVerify: %v", err)
		}
		if opts.Credentials == nil {
			return nil, errf(wire.AlertInternalError, "no CredentialStore configured to verify server certificate")
		}
		if len(peerChain) == 0 {
			return nil, errf(wire.AlertBadCertificate, "empty certificate chain")
		}
		leaf, err := parseLeaf(peerChain[0])
		if err != nil {
			return nil, errf(wire.AlertBadCertificate, "parse leaf: %v", err)
		}
		if err := verifyCertificateVerify13(leaf, cv.Algorithm, wire.RoleServer, thBeforeCV, cv.Signature); err != nil {
			return nil, err
		}
		if kind, err := opts.Credentials.VerifyPeerChain(peerChain, opts.ServerName, ocspResponse); err != nil {
			return nil, errf(alertOrDefault(kind, wire.AlertBadCertificate), "peer certificate chain rejected: %v", err)
		}
	}

	thBeforeServerFinished := state.transcript.Sum()
	finMsg, err := state.io.readSpecificMessage(wire.HandshakeTypeFinished)
	if err != nil {
		return nil, err
	}
	fin := messages.DecodeFinished(finMsg.Body)
	serverFinishedKey := sched.FinishedKey(sched.ServerHandshakeTraffic)
	if !verifyFinished(suite.Hash, serverFinishedKey, thBeforeServerFinished, fin.VerifyData) {
		return nil, errf(wire.AlertDecryptError, "server Finished verification failed")
	}

	thAfterServerFinished := state.transcript.Sum()
	sched.AdvanceToMaster(thAfterServerFinished)

	// install application traffic secrets for reads immediately so any
	// NewSessionTicket sent before our Finished still decodes correctly
	// under TLS 1.3's half-RTT message ordering allowance. The write side
	// stays on handshake traffic until our own Finished is sent.
	caKey, caIV := keyschedule.TrafficKeyIV(suite.Hash, sched.ServerApplicationTraffic, suite.KeyLen, 12)
	readAppState := cipherstate.NullDirectionState()
	readAppState.InstallAEAD13(suite, caKey, caIV, true)
	layer.SetReadState(readAppState, true)

	if requireAuth && certRequested && opts.Credentials != nil {
		if err := sendClientAuth13(opts, state, sched, certReqCtx); err != nil {
			return nil, err
		}
	}

	thBeforeClientFinished := state.transcript.Sum()
	clientFinishedKey := sched.FinishedKey(sched.ClientHandshakeTraffic)
	verifyData := computeFinished(suite.Hash, clientFinishedKey, thBeforeClientFinished)
	finOut := messages.Finished{VerifyData: verifyData}.Marshal()
	if err := state.io.writeMessage(finOut, true); err != nil {
		return nil, err
	}

	thAfterClientFinished := state.transcript.Sum()
	resumptionMaster := sched.ResumptionMasterSecret(thAfterClientFinished)

	caoKey, caoIV := keyschedule.TrafficKeyIV(suite.Hash, sched.ClientApplicationTraffic, suite.KeyLen, 12)
	writeAppState := cipherstate.NullDirectionState()
	writeAppState.InstallAEAD13(suite, caoKey, caoIV, false)
	layer.SetWriteState(writeAppState, true)

	return &Result{
		Version:          wire.VersionTLS13,
		CipherSuiteTLS13: suite,
		ALPN:             alpn,
		ServerName:       opts.ServerName,
		PeerCertificates: peerChain,
		Resumed:          resumed,
		HeartbeatEnabled: heartbeatEnabled,
		TLS13: &TLS13State{
			Role:                   wire.RoleClient,
			Hash:                   suite.Hash,
			Suite:                  suite,
			ExporterMasterSecret:   sched.ExporterMaster,
			ResumptionMasterSecret: resumptionMaster,
			ClientAppTrafficSecret: sched.ClientApplicationTraffic,
			ServerAppTrafficSecret: sched.ServerApplicationTraffic,
		},
	}, nil
}

// sendClientAuth13 sends Certificate+CertificateVerify in response to a
// CertificateRequest, or an empty Certificate if GetClientCertificate
// declines.
func sendClientAuth13(opts *Options, state *clientState13, sched *keyschedule.Schedule13, reqCtx []byte) error {
	cred, err := opts.Credentials.GetClientCertificate(&CertificateRequestInfo{Context: reqCtx, SignatureSchemes: opts.SignatureSchemes})
	if err != nil {
		return errf(wire.AlertInternalError, "client certificate selection: %v", err)
	}
	var entries []messages.CertificateEntry
	if cred != nil {
		for _, der := range cred.Chain {
			entries = append(entries, messages.CertificateEntry{Data: der})
		}
	}
	cert := messages.Certificate{RequestContext: reqCtx, Entries: entries}
	raw := cert.MarshalTLS13()
	if err := state.io.writeMessage(raw, true); err != nil {
		return err
	}
	if cred == nil {
		return nil
	}

	scheme := pickScheme(opts.SignatureSchemes, cred)
	th := state.transcript.Sum()
	sig, err := signCertificateVerify13(cred.PrivateKey, scheme, wire.RoleClient, th)
	if err != nil {
		return err
	}
	cv := messages.CertificateVerify{Algorithm: scheme, Signature: sig}.Marshal()
	return state.io.writeMessage(cv, true)
}

func pickScheme(schemes []wire.SignatureScheme, cred *Certificate) wire.SignatureScheme {
	for _, s := range schemes {
		if schemeMatchesKey(s, cred.PrivateKey.Public()) {
			return s
		}
	}
	if len(schemes) > 0 {
		return schemes[0]
	}
	return wire.ECDSAWithP256AndSHA256
}
