package messages

import "github.com/insinfo/tlslite-sub007/wire"

// NewSessionTicket13 is the TLS 1.3 post-handshake ticket message
// (RFC 8446 §4.6.1): lifetime/age-add/nonce/ticket opaque blob plus an
// extension list carrying early_data's max_early_data_size when offered.
type NewSessionTicket13 struct {
	LifetimeSeconds uint32
	AgeAdd          uint32
	Nonce           []byte
	Ticket          []byte
	Extensions      ExtensionList
}

func (t NewSessionTicket13) Marshal() []byte {
	var w writer
	var lt [4]byte
	lt[0], lt[1], lt[2], lt[3] = byte(t.LifetimeSeconds>>24), byte(t.LifetimeSeconds>>16), byte(t.LifetimeSeconds>>8), byte(t.LifetimeSeconds)
	w.raw(lt[:])
	var age [4]byte
	age[0], age[1], age[2], age[3] = byte(t.AgeAdd>>24), byte(t.AgeAdd>>16), byte(t.AgeAdd>>8), byte(t.AgeAdd)
	w.raw(age[:])
	w.vector8(t.Nonce)
	w.vector16(t.Ticket)
	w.raw(encodeExtensionList(t.Extensions))
	return header(wire.HandshakeTypeNewSessionTicket, w.bytes())
}

func DecodeNewSessionTicket13(body []byte) (NewSessionTicket13, error) {
	r := newReader(body)
	ltBytes, err := r.bytes(4)
	if err != nil {
		return NewSessionTicket13{}, err
	}
	ageBytes, err := r.bytes(4)
	if err != nil {
		return NewSessionTicket13{}, err
	}
	nonce, err := r.vector8()
	if err != nil {
		return NewSessionTicket13{}, err
	}
	ticket, err := r.vector16()
	if err != nil {
		return NewSessionTicket13{}, err
	}
	exts, err := decodeExtensionList(r)
	if err != nil {
		return NewSessionTicket13{}, err
	}
	return NewSessionTicket13{
		LifetimeSeconds: be32(ltBytes),
		AgeAdd:          be32(ageBytes),
		Nonce:           append([]byte(nil), nonce...),
		Ticket:          append([]byte(nil), ticket...),
		Extensions:      exts,
	}, nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// NewSessionTicket12 is the TLS 1.2 session-ticket message (RFC 5077
// §3.3): lifetime hint plus the opaque ticket blob itself (whatever the
// issuing server's TicketStore chooses to put in it).
type NewSessionTicket12 struct {
	LifetimeHintSeconds uint32
	Ticket              []byte
}

func (t NewSessionTicket12) Marshal() []byte {
	var w writer
	var lt [4]byte
	lt[0], lt[1], lt[2], lt[3] = byte(t.LifetimeHintSeconds>>24), byte(t.LifetimeHintSeconds>>16), byte(t.LifetimeHintSeconds>>8), byte(t.LifetimeHintSeconds)
	w.raw(lt[:])
	w.vector16(t.Ticket)
	return header(wire.HandshakeTypeNewSessionTicket, w.bytes())
}

func DecodeNewSessionTicket12(body []byte) (NewSessionTicket12, error) {
	r := newReader(body)
	ltBytes, err := r.bytes(4)
	if err != nil {
		return NewSessionTicket12{}, err
	}
	ticket, err := r.vector16()
	if err != nil {
		return NewSessionTicket12{}, err
	}
	return NewSessionTicket12{LifetimeHintSeconds: be32(ltBytes), Ticket: append([]byte(nil), ticket...)}, nil
}
