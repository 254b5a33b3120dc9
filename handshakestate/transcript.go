package handshakestate

import "crypto"

// Transcript is the append-only handshake message log: every
// handshake message's exact wire bytes (header included), hashed under
// whichever of SHA-256/SHA-384 the negotiated cipher suite selects. It
// keeps messages as separate slices rather than one running hash.Hash so
// that a TLS 1.3 HelloRetryRequest can retroactively replace the first
// ClientHello with its message_hash placeholder without having to re-derive anything upstream.
type Transcript struct {
	hash crypto.Hash
	msgs [][]byte
}

// NewTranscript begins an empty transcript under the given hash.
func NewTranscript(h crypto.Hash) *Transcript {
	return &Transcript{hash: h}
}

// Add appends one handshake message's raw wire bytes (header + body).
func (t *Transcript) Add(raw []byte) {
	t.msgs = append(t.msgs, append([]byte(nil), raw...))
}

// Sum returns the current rolling digest over every message added so far.
func (t *Transcript) Sum() []byte {
	h := t.hash.New()
	for _, m := range t.msgs {
		h.Write(m)
	}
	return h.Sum(nil)
}

// Hash reports the hash algorithm this transcript digests under.
func (t *Transcript) Hash() crypto.Hash { return t.hash }

// SetHash retargets the transcript to a different digest. Because the
// raw messages are retained, this is exact at any point before or after
// messages were added — needed when the negotiated cipher suite's hash
// differs from the one the transcript was opened under (the suite isn't
// known until ServerHello).
func (t *Transcript) SetHash(h crypto.Hash) { t.hash = h }

// Bytes returns the concatenated raw wire bytes of every message added,
// the direct input a TLS 1.2 CertificateVerify signs over (RFC 5246
// §7.4.8 hashes all handshake messages under the signature scheme's own
// hash, which need not equal the PRF hash).
func (t *Transcript) Bytes() []byte {
	var out []byte
	for _, m := range t.msgs {
		out = append(out, m...)
	}
	return out
}

// SumUnder digests the transcript under an arbitrary hash without
// changing the transcript's own algorithm.
func (t *Transcript) SumUnder(h crypto.Hash) []byte {
	hh := h.New()
	for _, m := range t.msgs {
		hh.Write(m)
	}
	return hh.Sum(nil)
}

// ReplaceFirstWithMessageHash implements the HRR transcript rule:
// the original ClientHello1 is replaced by a synthetic message_hash
// message (type 254) carrying Hash(ClientHello1), so that a transcript
// that later drops CH1's raw bytes (a client resending after HRR keeps
// only the running hash) still agrees with a peer that saw CH1 directly.
func (t *Transcript) ReplaceFirstWithMessageHash() {
	if len(t.msgs) == 0 {
		return
	}
	h := t.hash.New()
	h.Write(t.msgs[0])
	sum := h.Sum(nil)
	l := len(sum)
	mh := make([]byte, 4+l)
	mh[0] = 254 // message_hash
	mh[1], mh[2], mh[3] = byte(l>>16), byte(l>>8), byte(l)
	copy(mh[4:], sum)
	t.msgs[0] = mh
}
