// Package record implements the TLS record layer: framing,
// fragmentation/reassembly of the wire byte stream into length-prefixed
// records, and dispatch of each record's plaintext to or from the
// installed cipher state. It knows nothing about handshake message
// structure — that is internal/defragment and the messages package's job.
package record

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/wire"
)

const headerLen = 5

// ErrRecordTooLarge is returned when a peer's record length field exceeds
// the limit allowed for its record type.
var ErrRecordTooLarge = errors.New("record: length exceeds maximum allowed")

// ErrUnknownContentType is returned for a record whose content type byte
// is not one this engine recognizes.
var ErrUnknownContentType = errors.New("record: unrecognized content type")

// Layer drives one Transport's byte stream as a sequence of TLS records.
// A Conn owns exactly one Layer and rekeys it in place as the handshake
// installs new traffic secrets; the cipher state lives inside the
// record layer, never alongside it.
type Layer struct {
	t Transport

	outVersion wire.ProtocolVersion

	write   *cipherstate.DirectionState
	read    *cipherstate.DirectionState
	wTLS13  bool
	rTLS13  bool
	maxSend int

	inbuf []byte
}

// NewLayer wraps t. The record layer starts with null (plaintext) cipher
// state in both directions and the legacy TLS 1.0 record version, which
// every first ClientHello uses regardless of negotiated version.
func NewLayer(t Transport) *Layer {
	return &Layer{
		t:          t,
		outVersion: wire.VersionTLS10,
		write:      cipherstate.NullDirectionState(),
		read:       cipherstate.NullDirectionState(),
		maxSend:    wire.MaxPlaintextLen,
	}
}

// SetOutgoingVersion sets the record_version field stamped on outgoing
// record headers. TLS 1.3 freezes this at TLS 1.2 for middlebox
// compatibility; callers should never set it to 0x0304.
func (l *Layer) SetOutgoingVersion(v wire.ProtocolVersion) { l.outVersion = v }

// SetMaxSendSize bounds outgoing plaintext fragment size, clamped to the
// protocol maximum. Used to honor a peer's negotiated record_size_limit
// (RFC 8449).
func (l *Layer) SetMaxSendSize(n int) {
	if n <= 0 || n > wire.MaxPlaintextLen {
		n = wire.MaxPlaintextLen
	}
	l.maxSend = n
}

// SetWriteState installs the cipher state used to protect subsequent
// outgoing records.
func (l *Layer) SetWriteState(d *cipherstate.DirectionState, isTLS13 bool) {
	l.write = d
	l.wTLS13 = isTLS13
}

// SetReadState installs the cipher state used to unprotect subsequent
// incoming records.
func (l *Layer) SetReadState(d *cipherstate.DirectionState, isTLS13 bool) {
	l.read = d
	l.rTLS13 = isTLS13
}

// WriteState/ReadState expose the installed direction states so a Conn
// can zeroize them on close or KeyUpdate without the record layer having
// to know about either event.
func (l *Layer) WriteState() *cipherstate.DirectionState { return l.write }
func (l *Layer) ReadState() *cipherstate.DirectionState  { return l.read }

// WriteRecord protects and sends payload as one or more records of type
// ct, fragmenting at SetMaxSendSize's boundary.
func (l *Layer) WriteRecord(ct wire.ContentType, payload []byte) error {
	if len(payload) == 0 {
		return l.writeFragment(ct, nil)
	}
	for len(payload) > 0 {
		n := len(payload)
		if n > l.maxSend {
			n = l.maxSend
		}
		if err := l.writeFragment(ct, payload[:n]); err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

func (l *Layer) writeFragment(ct wire.ContentType, chunk []byte) error {
	var out []byte
	if l.write.IsNull() {
		out = chunk
	} else if l.wTLS13 {
		inner := append(append([]byte{}, chunk...), byte(ct))
		ciphertextLen := len(inner) + l.write.Overhead()
		out = l.write.SealApplicationRecordTLS13(inner, ciphertextLen)
		ct = wire.ContentTypeApplicationData
	} else {
		out = l.write.SealRecordTLS12(byte(ct), uint16(l.outVersion), chunk)
	}
	if len(out) > wire.MaxCiphertextLen {
		return ErrRecordTooLarge
	}
	header := [headerLen]byte{
		byte(ct),
		byte(l.outVersion >> 8), byte(l.outVersion),
		byte(len(out) >> 8), byte(len(out)),
	}
	if _, err := l.t.Send(append(header[:], out...)); err != nil {
		return err
	}
	return nil
}

// ReadRecord reads, validates, and (if a read cipher is installed)
// unprotects exactly one record, returning its content type and
// plaintext payload. For TLS 1.3 protected records the returned content
// type is the inner type recovered from the unpadded plaintext, not the
// on-wire application_data outer type.
func (l *Layer) ReadRecord() (wire.ContentType, []byte, error) {
	if err := l.fill(headerLen); err != nil {
		return 0, nil, err
	}
	ctByte := l.inbuf[0]
	length := int(binary.BigEndian.Uint16(l.inbuf[3:5]))
	if length > wire.MaxCiphertextLen {
		return 0, nil, ErrRecordTooLarge
	}
	if err := l.fill(headerLen + length); err != nil {
		return 0, nil, err
	}
	body := append([]byte(nil), l.inbuf[headerLen:headerLen+length]...)
	l.inbuf = l.inbuf[headerLen+length:]

	ct := wire.ContentType(ctByte)
	switch ct {
	case wire.ContentTypeChangeCipherSpec, wire.ContentTypeAlert,
		wire.ContentTypeHandshake, wire.ContentTypeApplicationData, wire.ContentTypeHeartbeat:
	default:
		return 0, nil, ErrUnknownContentType
	}

	if l.read.IsNull() {
		if len(body) > wire.MaxPlaintextLen {
			return 0, nil, ErrRecordTooLarge
		}
		return ct, body, nil
	}

	if l.rTLS13 {
		inner, err := l.read.OpenApplicationRecordTLS13(body)
		if err != nil {
			return 0, nil, err
		}
		realCT, payload, err := splitInnerType(inner)
		if err != nil {
			return 0, nil, err
		}
		return realCT, payload, nil
	}

	payload, err := l.read.OpenRecordTLS12(ctByte, uint16(l.outVersion), body)
	if err != nil {
		return 0, nil, err
	}
	return ct, payload, nil
}

// splitInnerType strips the TLS 1.3 inner-plaintext zero padding and
// recovers the real content type from the last non-zero byte.
func splitInnerType(inner []byte) (wire.ContentType, []byte, error) {
	i := len(inner) - 1
	for i >= 0 && inner[i] == 0 {
		i--
	}
	if i < 0 {
		return 0, nil, errors.New("record: all-zero inner plaintext")
	}
	return wire.ContentType(inner[i]), inner[:i], nil
}

// ReadSSLv2Candidate inspects the first bytes a server reads off the
// wire for SSLv2 ClientHello framing: MSB of the
// first byte set and message type 0x01. When matched, it consumes the
// whole v2 record and returns its body (starting at the msg_type byte)
// for up-conversion; otherwise it consumes nothing and the caller
// proceeds with ReadRecord as normal.
func (l *Layer) ReadSSLv2Candidate() (bool, []byte, error) {
	if err := l.fill(3); err != nil {
		return false, nil, err
	}
	if l.inbuf[0]&0x80 == 0 || l.inbuf[2] != 0x01 {
		return false, nil, nil
	}
	length := int(l.inbuf[0]&0x7f)<<8 | int(l.inbuf[1])
	if length > wire.MaxCiphertextLen {
		return false, nil, ErrRecordTooLarge
	}
	if err := l.fill(2 + length); err != nil {
		return false, nil, err
	}
	body := append([]byte(nil), l.inbuf[2:2+length]...)
	l.inbuf = l.inbuf[2+length:]
	return true, body, nil
}

func (l *Layer) fill(n int) error {
	for len(l.inbuf) < n {
		chunk, err := l.t.Recv(4096)
		if err != nil {
			if err == io.EOF && len(l.inbuf) > 0 {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if len(chunk) == 0 {
			return ErrWouldBlock
		}
		l.inbuf = append(l.inbuf, chunk...)
	}
	return nil
}

// Close releases the underlying transport.
func (l *Layer) Close() error { return l.t.Close() }
