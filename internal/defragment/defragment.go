// Package defragment reassembles TLS handshake messages out of the
// record layer's byte stream. It is record-type-agnostic: it
// only ever sees the "handshake" content type's bytes and hands back
// complete `type(1) || length(3) || body` messages as they become
// available, in order.
package defragment

import (
	"encoding/binary"
	"errors"

	"github.com/insinfo/tlslite-sub007/wire"
)

const headerLen = 4

// ErrMessageTooLarge bounds a single handshake message's body length,
// guarding against a peer claiming an absurd length and stalling the
// buffer forever.
var ErrMessageTooLarge = errors.New("defragment: handshake message exceeds maximum size")

// MaxMessageLen is generous enough for the largest realistic Certificate
// message (a long chain with large RSA keys) while still bounding memory
// a malicious peer can force this buffer to hold.
const MaxMessageLen = 1 << 20

// Message is one fully reassembled handshake message.
type Message struct {
	Type wire.HandshakeType
	Body []byte // the message body only, not including the 4-byte header
	Raw  []byte // header + body, exactly as it contributes to the transcript hash
}

// Buffer accumulates handshake-content-type record fragments and yields
// complete messages. One Buffer per read direction.
type Buffer struct {
	data []byte
}

// Push appends a record's handshake-content-type payload to the buffer.
func (b *Buffer) Push(fragment []byte) {
	b.data = append(b.data, fragment...)
}

// Next pops the next complete message off the front of the buffer, if
// one is available. It returns ok=false (with a nil error) when more
// fragments are needed: callers call Next in a loop after every Push
// until it returns ok=false.
func (b *Buffer) Next() (msg Message, ok bool, err error) {
	if len(b.data) < headerLen {
		return Message{}, false, nil
	}
	length := int(b.data[1])<<16 | int(b.data[2])<<8 | int(b.data[3])
	if length > MaxMessageLen {
		return Message{}, false, ErrMessageTooLarge
	}
	total := headerLen + length
	if len(b.data) < total {
		return Message{}, false, nil
	}
	raw := append([]byte(nil), b.data[:total]...)
	b.data = b.data[total:]
	return Message{
		Type: wire.HandshakeType(raw[0]),
		Body: raw[headerLen:],
		Raw:  raw,
	}, true, nil
}

// Pending reports whether the buffer holds any unconsumed bytes at all
// (a partial message, or none).
func (b *Buffer) Pending() bool { return len(b.data) > 0 }

// sslv2MsgTypeClientHello is the SSLv2 msg-type byte of a ClientHello,
// which follows a 2-byte record length with the high bit set.
const sslv2MsgTypeClientHello = 0x01

// IsSSLv2ClientHello reports whether the first three bytes the server read
// off the wire look like an SSLv2 record header carrying a ClientHello:
// MSB of the first byte set and the
// following message-type byte equal to 0x01.
func IsSSLv2ClientHello(first2Bytes []byte) bool {
	if len(first2Bytes) < 3 {
		return false
	}
	return first2Bytes[0]&0x80 != 0 && first2Bytes[2] == sslv2MsgTypeClientHello
}

// UpconvertSSLv2ClientHello reframes an SSLv2-style ClientHello record
// into a standard TLS handshake message (type(1)=client_hello ||
// length(3) || body), synthesizing the TLS 1.2-shaped body from the v2
// fields. The SSLv2 record-layer framing itself does not
// contribute to the transcript; only the synthesized TLS body does.
//
// SSLv2ClientHello wire shape (RFC 5246 Appendix E / historical SSLv2):
//
//	uint16 length (MSB set, low 15 bits = remaining length)
//	uint8  msg_type (1)
//	uint16 version
//	uint16 cipher_spec_length
//	uint16 session_id_length
//	uint16 challenge_length
//	opaque cipher_specs[cipher_spec_length]   (3 bytes per v2/v3 suite)
//	opaque session_id[session_id_length]
//	opaque challenge[challenge_length]        (16..32 bytes; padded/truncated to 32 for random)
func UpconvertSSLv2ClientHello(record []byte) (Message, error) {
	if len(record) < 9 {
		return Message{}, errors.New("defragment: truncated sslv2 client hello")
	}
	version := binary.BigEndian.Uint16(record[1:3])
	cipherSpecLen := int(binary.BigEndian.Uint16(record[3:5]))
	sessionIDLen := int(binary.BigEndian.Uint16(record[5:7]))
	challengeLen := int(binary.BigEndian.Uint16(record[7:9]))

	off := 9
	if len(record) < off+cipherSpecLen+sessionIDLen+challengeLen {
		return Message{}, errors.New("defragment: truncated sslv2 client hello body")
	}
	cipherSpecs := record[off : off+cipherSpecLen]
	off += cipherSpecLen
	sessionID := record[off : off+sessionIDLen]
	off += sessionIDLen
	challenge := record[off : off+challengeLen]

	var random [32]byte
	if challengeLen >= 32 {
		copy(random[:], challenge[challengeLen-32:])
	} else {
		copy(random[32-challengeLen:], challenge)
	}

	// Re-encode each 3-byte SSLv2 cipher-spec as a 2-byte TLS suite ID
	// when its high byte is zero (the SSLv2-compatible "CK_" encoding);
	// entries that are genuinely SSLv2-only ciphers are dropped.
	var suites []byte
	for i := 0; i+3 <= len(cipherSpecs); i += 3 {
		if cipherSpecs[i] == 0 {
			suites = append(suites, cipherSpecs[i+1], cipherSpecs[i+2])
		}
	}

	body := make([]byte, 0, 2+32+1+len(sessionID)+2+len(suites)+2)
	body = append(body, byte(version>>8), byte(version))
	body = append(body, random[:]...)
	body = append(body, byte(len(sessionID)))
	body = append(body, sessionID...)
	body = append(body, byte(len(suites)>>8), byte(len(suites)))
	body = append(body, suites...)
	body = append(body, 1, 0) // legacy_compression_methods: length 1, [null]
	body = append(body, 0, 0) // extensions: length 0 (v2 client offers none)

	length := len(body)
	raw := make([]byte, headerLen+length)
	raw[0] = byte(wire.HandshakeTypeClientHello)
	raw[1], raw[2], raw[3] = byte(length>>16), byte(length>>8), byte(length)
	copy(raw[headerLen:], body)

	return Message{
		Type: wire.HandshakeTypeClientHello,
		Body: body,
		Raw:  raw,
	}, nil
}
