package handshakestate

import (
	"hash"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/internal/keyschedule"
)

// directionStates12 expands the TLS 1.2 key block and builds the two
// direction states for this side of the connection.
// The split order is fixed by RFC 5246 §6.3: client MAC, server MAC,
// client key, server key, client IV, server IV.
func directionStates12(suite *cipherstate.CipherSuite, hashNew func() hash.Hash, masterSecret, clientRandom, serverRandom []byte, isClient bool) (write, read *cipherstate.DirectionState) {
	cMAC, sMAC, cKey, sKey, cIV, sIV := keyschedule.KeyBlock12(
		hashNew, masterSecret, serverRandom, clientRandom,
		suite.MacLen, suite.KeyLen, suite.IvLen)

	mk := func(key, iv, macKey []byte, isRead bool) *cipherstate.DirectionState {
		d := cipherstate.NullDirectionState()
		if suite.IsAEAD() {
			d.InstallAEAD12(suite, key, iv, isRead)
		} else {
			d.InstallCBC12(suite, key, iv, macKey, isRead)
		}
		return d
	}

	if isClient {
		return mk(cKey, cIV, cMAC, false), mk(sKey, sIV, sMAC, true)
	}
	return mk(sKey, sIV, sMAC, false), mk(cKey, cIV, cMAC, true)
}

// verifyData12 computes a TLS 1.2 Finished verify_data (RFC 5246 §7.4.9).
func verifyData12(hashNew func() hash.Hash, masterSecret []byte, label string, transcriptHash []byte) []byte {
	return keyschedule.PRF12(hashNew, masterSecret, []byte(label), transcriptHash, 12)
}
