package keyschedule

import (
	"crypto"
	"crypto/hmac"
	"encoding/binary"

	"golang.org/x/crypto/hkdf"
)

// HKDFExtract is HKDF-Extract(salt, ikm), RFC 5869 §2.2. A nil salt or
// nil ikm is expanded to a zero string of the hash's length, matching
// RFC 8446 §7.1's "Extract(0, ...)"/"Extract(..., 0)" notation.
func HKDFExtract(h crypto.Hash, salt, ikm []byte) []byte {
	hashLen := h.Size()
	if salt == nil {
		salt = make([]byte, hashLen)
	}
	if ikm == nil {
		ikm = make([]byte, hashLen)
	}
	mac := hmac.New(h.New, salt)
	mac.Write(ikm)
	return mac.Sum(nil)
}

// HKDFExpandLabel implements RFC 8446 §7.1:
//
//	HKDF-Expand-Label(Secret, Label, Context, Length) =
//	    HKDF-Expand(Secret, HkdfLabel, Length)
//
// where HkdfLabel is Length(2) || Label(1+len) || Context(1+len), Label
// prefixed with "tls13 ".
func HKDFExpandLabel(h crypto.Hash, secret []byte, label string, context []byte, length int) []byte {
	var hkdfLabel []byte
	hkdfLabel = binary.BigEndian.AppendUint16(hkdfLabel, uint16(length))

	fullLabel := "tls13 " + label
	hkdfLabel = append(hkdfLabel, byte(len(fullLabel)))
	hkdfLabel = append(hkdfLabel, fullLabel...)

	hkdfLabel = append(hkdfLabel, byte(len(context)))
	hkdfLabel = append(hkdfLabel, context...)

	out := make([]byte, length)
	r := hkdf.Expand(h.New, secret, hkdfLabel)
	if _, err := r.Read(out); err != nil {
		panic("keyschedule: hkdf expand: " + err.Error())
	}
	return out
}

// DeriveSecret implements RFC 8446 §7.1:
//
//	Derive-Secret(Secret, Label, Messages) =
//	    HKDF-Expand-Label(Secret, Label, Transcript-Hash(Messages), Hash.length)
func DeriveSecret(h crypto.Hash, secret []byte, label string, transcriptHash []byte) []byte {
	return HKDFExpandLabel(h, secret, label, transcriptHash, h.Size())
}

// Schedule13 is the TLS 1.3 secret tree rooted at the early secret,
// carried forward step by step as the handshake progresses. Each
// Advance* method returns the newly derived secrets; callers install
// traffic keys from them via TrafficKeyIV.
type Schedule13 struct {
	Hash crypto.Hash

	EarlySecret     []byte
	HandshakeSecret []byte
	MasterSecret    []byte

	ClientEarlyTraffic      []byte
	EarlyExporterMaster     []byte
	ClientHandshakeTraffic  []byte
	ServerHandshakeTraffic  []byte
	ClientApplicationTraffic []byte
	ServerApplicationTraffic []byte
	ExporterMaster          []byte
	ResumptionMaster        []byte
}

// emptyTranscriptHash is Transcript-Hash("") used when deriving the
// "derived" intermediate secrets (RFC 8446 §7.1).
func emptyTranscriptHash(h crypto.Hash) []byte {
	return h.New().Sum(nil)
}

// NewSchedule13 begins the tree: Early Secret = HKDF-Extract(0, PSK or 0).
// Pass psk=nil for a non-PSK handshake.
func NewSchedule13(h crypto.Hash, psk []byte) *Schedule13 {
	return &Schedule13{
		Hash:        h,
		EarlySecret: HKDFExtract(h, nil, psk),
	}
}

// BinderKey derives the (external or resumption) PSK binder key from the
// early secret, label chosen by the caller ("ext binder" or "res binder").
func (s *Schedule13) BinderKey(label string) []byte {
	derived := DeriveSecret(s.Hash, s.EarlySecret, label, emptyTranscriptHash(s.Hash))
	return derived
}

// FinishedKey derives the Finished-message MAC key from a traffic secret,
// used both for PSK binders (over the early secret's binder key) and for
// the handshake Finished messages (RFC 8446 §4.4.4).
func (s *Schedule13) FinishedKey(trafficSecret []byte) []byte {
	return HKDFExpandLabel(s.Hash, trafficSecret, "finished", nil, s.Hash.Size())
}

// AdvanceToHandshake derives the client/server handshake traffic secrets
// given the (EC)DHE shared secret and the transcript hash through
// ServerHello.
func (s *Schedule13) AdvanceToHandshake(sharedSecret, transcriptHash []byte) {
	derivedEarly := DeriveSecret(s.Hash, s.EarlySecret, "derived", emptyTranscriptHash(s.Hash))
	s.HandshakeSecret = HKDFExtract(s.Hash, derivedEarly, sharedSecret)
	s.ClientHandshakeTraffic = DeriveSecret(s.Hash, s.HandshakeSecret, "c hs traffic", transcriptHash)
	s.ServerHandshakeTraffic = DeriveSecret(s.Hash, s.HandshakeSecret, "s hs traffic", transcriptHash)
}

// AdvanceToMaster derives the application traffic secrets and the
// exporter secret given the transcript hash through server Finished.
func (s *Schedule13) AdvanceToMaster(transcriptHashThroughServerFinished []byte) {
	derivedHandshake := DeriveSecret(s.Hash, s.HandshakeSecret, "derived", emptyTranscriptHash(s.Hash))
	s.MasterSecret = HKDFExtract(s.Hash, derivedHandshake, nil)
	s.ClientApplicationTraffic = DeriveSecret(s.Hash, s.MasterSecret, "c ap traffic", transcriptHashThroughServerFinished)
	s.ServerApplicationTraffic = DeriveSecret(s.Hash, s.MasterSecret, "s ap traffic", transcriptHashThroughServerFinished)
	s.ExporterMaster = DeriveSecret(s.Hash, s.MasterSecret, "exp master", transcriptHashThroughServerFinished)
}

// ResumptionMasterSecret derives res master from the transcript hash
// through client Finished; called once the client Finished has been
// sent/verified.
func (s *Schedule13) ResumptionMasterSecret(transcriptHashThroughClientFinished []byte) []byte {
	s.ResumptionMaster = DeriveSecret(s.Hash, s.MasterSecret, "res master", transcriptHashThroughClientFinished)
	return s.ResumptionMaster
}

// TrafficKeyIV derives the per-direction key and IV from a traffic
// secret, RFC 8446 §7.3.
func TrafficKeyIV(h crypto.Hash, trafficSecret []byte, keyLen, ivLen int) (key, iv []byte) {
	key = HKDFExpandLabel(h, trafficSecret, "key", nil, keyLen)
	iv = HKDFExpandLabel(h, trafficSecret, "iv", nil, ivLen)
	return
}

// NextTrafficSecret implements the KeyUpdate secret ratchet:
// new_secret = HKDF-Expand-Label(old_secret, "traffic upd", "", Hash.len).
func NextTrafficSecret(h crypto.Hash, oldSecret []byte) []byte {
	return HKDFExpandLabel(h, oldSecret, "traffic upd", nil, h.Size())
}

// ResumptionPSK derives the PSK offered on a subsequent connection from a
// NewSessionTicket's nonce and the resumption master secret, RFC 8446
// §4.6.1: PSK = HKDF-Expand-Label(resumption_master_secret, "resumption",
// ticket_nonce, Hash.length).
func ResumptionPSK(h crypto.Hash, resumptionMasterSecret, ticketNonce []byte) []byte {
	return HKDFExpandLabel(h, resumptionMasterSecret, "resumption", ticketNonce, h.Size())
}
