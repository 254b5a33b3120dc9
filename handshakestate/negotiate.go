package handshakestate

import (
	"crypto"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/wire"
)

// hashForSuite12 returns the PRF/transcript hash a TLS 1.2 cipher suite
// uses: SHA-384 for the suiteSHA384-flagged suites, SHA-256 otherwise
// (RFC 5246 §7.4.9, as extended by the GCM RFCs).
func hashForSuite12(suite *cipherstate.CipherSuite) crypto.Hash {
	if suite.IsSHA384() {
		return crypto.SHA384
	}
	return crypto.SHA256
}

// selectVersion implements the version-negotiation rule for the
// client side of a received ServerHello/HRR: supported_versions, if
// present, wins; otherwise fall back to legacy_version clamped to at
// most TLS 1.2 (TLS 1.3 never negotiates via legacy_version alone).
func selectVersionFromServerHello(selected wire.ProtocolVersion, hasExt bool, legacy wire.ProtocolVersion) wire.ProtocolVersion {
	if hasExt {
		return selected
	}
	if legacy > wire.VersionTLS12 {
		return wire.VersionTLS12
	}
	return legacy
}

// negotiateServerVersion picks the version a server selects given the
// client's supported_versions (if offered) or its legacy_version,
// bounded by [min, max].
func negotiateServerVersion(clientVersions []wire.ProtocolVersion, legacy wire.ProtocolVersion, min, max wire.ProtocolVersion) (wire.ProtocolVersion, bool) {
	if len(clientVersions) > 0 {
		for _, v := range clientVersions {
			if v >= min && v <= max && (v == wire.VersionTLS13 || v == wire.VersionTLS12) {
				return v, true
			}
		}
		return 0, false
	}
	if legacy > wire.VersionTLS12 {
		legacy = wire.VersionTLS12
	}
	if legacy > max {
		legacy = max
	}
	if legacy >= min && (legacy == wire.VersionTLS12) {
		return legacy, true
	}
	return 0, false
}

// selectCipherSuite12 applies the selection tie-break: server preference when
// configured, else client order; the candidate must also be usable with
// whatever authentication credential is available (credential-capable is
// checked by the caller, since it needs the selected certificate's key
// type).
func selectCipherSuite12(clientIDs, serverIDs []uint16, preferServer bool, usable func(id uint16) bool) *cipherstate.CipherSuite {
	first, second := clientIDs, serverIDs
	if preferServer {
		first, second = serverIDs, clientIDs
	}
	inSecond := make(map[uint16]bool, len(second))
	for _, id := range second {
		inSecond[id] = true
	}
	for _, id := range first {
		if !inSecond[id] {
			continue
		}
		suite := cipherstate.CipherSuiteByID(id)
		if suite == nil || !usable(id) {
			continue
		}
		return suite
	}
	return nil
}

func selectCipherSuiteTLS13(clientIDs, serverIDs []uint16, preferServer bool) *cipherstate.CipherSuiteTLS13 {
	first, second := clientIDs, serverIDs
	if preferServer {
		first, second = serverIDs, clientIDs
	}
	inSecond := make(map[uint16]bool, len(second))
	for _, id := range second {
		inSecond[id] = true
	}
	for _, id := range first {
		if !inSecond[id] {
			continue
		}
		if suite := cipherstate.CipherSuiteTLS13ByID(id); suite != nil {
			return suite
		}
	}
	return nil
}

// selectGroup implements "server picks the first client-listed group it
// supports".
func selectGroup(clientGroups, serverGroups []wire.NamedGroup) (wire.NamedGroup, bool) {
	supported := make(map[wire.NamedGroup]bool, len(serverGroups))
	for _, g := range serverGroups {
		supported[g] = true
	}
	for _, g := range clientGroups {
		if supported[g] {
			return g, true
		}
	}
	return 0, false
}

// intersectSignatureSchemes keeps local's order, filtered to schemes peer
// also offered.
func intersectSignatureSchemes(local, peer []wire.SignatureScheme) []wire.SignatureScheme {
	peerSet := make(map[wire.SignatureScheme]bool, len(peer))
	for _, s := range peer {
		peerSet[s] = true
	}
	var out []wire.SignatureScheme
	for _, s := range local {
		if peerSet[s] {
			out = append(out, s)
		}
	}
	return out
}

// selectALPN picks the first of the server's NextProtos that the client
// also offered, matching crypto/tls's ALPN tie-break (server preference).
func selectALPN(serverProtos, clientProtos []string) (string, bool) {
	client := make(map[string]bool, len(clientProtos))
	for _, p := range clientProtos {
		client[p] = true
	}
	for _, p := range serverProtos {
		if client[p] {
			return p, true
		}
	}
	return "", false
}

// checkDowngradeCanary implements the client-side downgrade check: whenever the client announced TLS 1.3 support, any
// negotiated-1.2-or-earlier ServerHello.random ending in one of the two
// sentinel values must be refused.
func checkDowngradeCanary(negotiated wire.ProtocolVersion, serverRandom [32]byte, clientOfferedTLS13 bool) error {
	if !clientOfferedTLS13 || negotiated == wire.VersionTLS13 {
		return nil
	}
	tail := serverRandom[24:]
	if bytesEqual(tail, wire.DowngradeCanaryTLS12[:]) || bytesEqual(tail, wire.DowngradeCanaryTLS11[:]) {
		return errf(wire.AlertIllegalParameter, "downgrade sentinel present in ServerHello.random while TLS 1.3 was offered")
	}
	return nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
