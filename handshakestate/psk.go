package handshakestate

import (
	"crypto"
	"crypto/hmac"
	"time"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/internal/keyschedule"
)

// offeredPSK is one entry of a ClientHello's pre_shared_key extension
// together with everything needed to verify its binder and, if selected,
// continue the key schedule.
type offeredPSK struct {
	Identity       []byte
	ObfuscatedAge  uint32
	Secret         []byte
	Hash           crypto.Hash
	IsResumption   bool
	Session        *NewSessionTicket // non-nil for resumption PSKs
	ExternalConfig *PSKConfig        // non-nil for externally configured PSKs
}

// buildPSKOffers assembles the candidate PSK list a client offers,
// external PSKs first (in configuration order) then resumption tickets
// from the ticket store, matching crypto/tls's ordering so the server's
// "first matching identity" tie-break is deterministic.
func buildPSKOffers(psks PSKStore, tickets []*NewSessionTicket, now time.Time) []offeredPSK {
	var offers []offeredPSK
	if psks != nil {
		for _, cfg := range psks.All() {
			c := cfg
			offers = append(offers, offeredPSK{
				Identity: append([]byte(nil), c.Identity...),
				Secret:   c.Secret,
				Hash:     c.Hash,
			})
		}
	}
	for _, t := range tickets {
		age := uint32(now.Sub(t.ReceivedAt).Milliseconds()) + t.AgeAdd
		offers = append(offers, offeredPSK{
			Identity:      t.Ticket,
			ObfuscatedAge: age,
			Hash:          ticketHash(t.CipherSuite),
			IsResumption:  true,
			Session:       t,
		})
	}
	return offers
}

// ticketHash recovers the HKDF hash a NewSessionTicket's cipher suite
// uses, needed to resume the key schedule under the right hash even
// though the new connection's negotiation hasn't happened yet.
func ticketHash(suiteID uint16) crypto.Hash {
	if suite := cipherstate.CipherSuiteTLS13ByID(suiteID); suite != nil {
		return suite.Hash
	}
	return crypto.SHA256
}

// resolvePSKSecret derives the actual PSK secret for an offer: external
// PSKs carry their secret directly; resumption PSKs derive it from the
// ticket's resumption_master_secret and nonce (RFC 8446 §4.6.1).
func resolvePSKSecret(o offeredPSK) []byte {
	if o.IsResumption {
		return keyschedule.ResumptionPSK(o.Hash, o.Session.ResumptionSecret, o.Session.Nonce)
	}
	return o.Secret
}

// computeBinder produces the PSK binder HMAC (RFC 8446 §4.2.11.2):
// HMAC(BinderKey, Transcript-Hash(truncated ClientHello)).
func computeBinder(h crypto.Hash, binderKey, truncatedTranscriptHash []byte) []byte {
	mac := hmac.New(h.New, binderKey)
	mac.Write(truncatedTranscriptHash)
	return mac.Sum(nil)
}

// verifyBinder checks a received binder in constant time.
func verifyBinder(h crypto.Hash, binderKey, truncatedTranscriptHash, binder []byte) bool {
	want := computeBinder(h, binderKey, truncatedTranscriptHash)
	return hmac.Equal(want, binder)
}

// binderLabel picks the RFC 8446 §4.2.11.2 binder-key derivation label:
// external PSKs use "ext binder", resumption PSKs use "res binder".
func binderLabel(isResumption bool) string {
	if isResumption {
		return "res binder"
	}
	return "ext binder"
}

// scheduleForOffer starts a Schedule13 bound to one PSK candidate, ready
// to compute that candidate's binder once the truncated transcript hash
// through PreSharedKey (exclusive of the binders list) is known.
func scheduleForOffer(o offeredPSK) *keyschedule.Schedule13 {
	return keyschedule.NewSchedule13(o.Hash, resolvePSKSecret(o))
}
