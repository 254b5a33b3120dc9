package handshakestate

import (
	"crypto"
	"io"
	"time"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/internal/keyschedule"
	"github.com/insinfo/tlslite-sub007/messages"
	"github.com/insinfo/tlslite-sub007/record"
	"github.com/insinfo/tlslite-sub007/wire"
)

// readAppSecret returns a pointer to the traffic secret protecting the
// peer→us direction, so rotation can update it in place.
func (s *TLS13State) readAppSecret() *[]byte {
	if s.Role == wire.RoleClient {
		return &s.ServerAppTrafficSecret
	}
	return &s.ClientAppTrafficSecret
}

func (s *TLS13State) writeAppSecret() *[]byte {
	if s.Role == wire.RoleClient {
		return &s.ClientAppTrafficSecret
	}
	return &s.ServerAppTrafficSecret
}

// rotate ratchets one traffic secret, installs the
// derived key+IV as a fresh direction state with its sequence counter at
// zero, and zeroizes the superseded state.
func (s *TLS13State) rotate(layer *record.Layer, secretSlot *[]byte, isRead bool) {
	next := keyschedule.NextTrafficSecret(s.Hash, *secretSlot)
	key, iv := keyschedule.TrafficKeyIV(s.Hash, next, s.Suite.KeyLen, 12)
	d := cipherstate.NullDirectionState()
	d.InstallAEAD13(s.Suite, key, iv, isRead)
	if isRead {
		layer.ReadState().Zeroize()
		layer.SetReadState(d, true)
	} else {
		layer.WriteState().Zeroize()
		layer.SetWriteState(d, true)
	}
	zeroBytes(*secretSlot)
	*secretSlot = next
}

// HandleKeyUpdate processes a received KeyUpdate body: the peer's
// sending keys ratchet immediately, and update_requested obliges this
// side to send its own KeyUpdate before any further application data
//.
func (s *TLS13State) HandleKeyUpdate(layer *record.Layer, body []byte) error {
	ku, err := messages.DecodeKeyUpdate(body)
	if err != nil {
		return errf(wire.AlertDecodeError, "KeyUpdate: %v", err)
	}
	s.rotate(layer, s.readAppSecret(), true)
	s.KeyUpdateInFlight = false
	if ku.RequestUpdate {
		return s.SendKeyUpdate(layer, false)
	}
	return nil
}

// SendKeyUpdate emits a KeyUpdate and ratchets this side's sending keys.
// With requestUpdate set, the peer must answer with its own KeyUpdate;
// KeyUpdateInFlight records that obligation until the peer's KeyUpdate
// arrives.
func (s *TLS13State) SendKeyUpdate(layer *record.Layer, requestUpdate bool) error {
	raw := messages.KeyUpdate{RequestUpdate: requestUpdate}.Marshal()
	if err := layer.WriteRecord(wire.ContentTypeHandshake, raw); err != nil {
		return err
	}
	s.rotate(layer, s.writeAppSecret(), false)
	if requestUpdate {
		s.KeyUpdateInFlight = true
	}
	return nil
}

// ExportKeyingMaterial implements RFC 8446 §7.5 against the exporter
// master secret captured at server Finished.
func (s *TLS13State) ExportKeyingMaterial(label string, context []byte, length int) []byte {
	secret := keyschedule.DeriveSecret(s.Hash, s.ExporterMasterSecret, label, emptyHash(s.Hash))
	h := s.Hash.New()
	h.Write(context)
	return keyschedule.HKDFExpandLabel(s.Hash, secret, "exporter", h.Sum(nil), length)
}

func emptyHash(h crypto.Hash) []byte { return h.New().Sum(nil) }

// IssueTicket mints one NewSessionTicket, sends it, and records the
// resumption state in store so a later ClientHello offering the ticket's
// identity can be accepted.
func (s *TLS13State) IssueTicket(layer *record.Layer, store TicketStore, lifetime uint32, rnd io.Reader, now time.Time) (*NewSessionTicket, error) {
	var ticket [32]byte
	var nonce [8]byte
	var ageAdd [4]byte
	for _, b := range [][]byte{ticket[:], nonce[:], ageAdd[:]} {
		if _, err := io.ReadFull(rnd, b); err != nil {
			return nil, errf(wire.AlertInternalError, "ticket generation: %v", err)
		}
	}
	age := uint32(ageAdd[0])<<24 | uint32(ageAdd[1])<<16 | uint32(ageAdd[2])<<8 | uint32(ageAdd[3])

	msg := messages.NewSessionTicket13{
		LifetimeSeconds: lifetime,
		AgeAdd:          age,
		Nonce:           nonce[:],
		Ticket:          ticket[:],
	}
	if err := layer.WriteRecord(wire.ContentTypeHandshake, msg.Marshal()); err != nil {
		return nil, err
	}

	nt := &NewSessionTicket{
		Lifetime:         lifetime,
		AgeAdd:           age,
		Nonce:            nonce[:],
		Ticket:           ticket[:],
		ResumptionSecret: s.ResumptionMasterSecret,
		CipherSuite:      s.Suite.ID,
		ReceivedAt:       now,
	}
	if store != nil {
		store.Insert(ticket[:], nt)
	}
	return nt, nil
}

// ProcessNewSessionTicket decodes a ticket received post-handshake on
// the client and pairs it with the local resumption master secret; the
// caller stores the result for a future connection's PSK offer.
func (s *TLS13State) ProcessNewSessionTicket(body []byte, now time.Time, serverName, alpn string) (*NewSessionTicket, error) {
	t, err := messages.DecodeNewSessionTicket13(body)
	if err != nil {
		return nil, errf(wire.AlertDecodeError, "NewSessionTicket: %v", err)
	}
	var maxEarlyData uint32
	if ed, ok := t.Extensions.Get(wire.ExtEarlyData); ok && len(ed.Data) == 4 {
		maxEarlyData = uint32(ed.Data[0])<<24 | uint32(ed.Data[1])<<16 | uint32(ed.Data[2])<<8 | uint32(ed.Data[3])
	}
	return &NewSessionTicket{
		Lifetime:         t.LifetimeSeconds,
		AgeAdd:           t.AgeAdd,
		Nonce:            t.Nonce,
		Ticket:           t.Ticket,
		MaxEarlyData:     maxEarlyData,
		ResumptionSecret: s.ResumptionMasterSecret,
		CipherSuite:      s.Suite.ID,
		ReceivedAt:       now,
		ServerName:       serverName,
		ALPN:             alpn,
	}, nil
}

// Zeroize overwrites every secret this continuation state holds; called
// from Conn.Close.
func (s *TLS13State) Zeroize() {
	zeroBytes(s.ExporterMasterSecret)
	zeroBytes(s.ResumptionMasterSecret)
	zeroBytes(s.ClientAppTrafficSecret)
	zeroBytes(s.ServerAppTrafficSecret)
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
