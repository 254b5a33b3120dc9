package messages

import "crypto/rand"

// Heartbeat message types, RFC 6520 §4.
const (
	HeartbeatRequest  byte = 1
	HeartbeatResponse byte = 2
)

const heartbeatPaddingLen = 16

// Heartbeat is one RFC 6520 heartbeat message: type, a 2-byte-length
// payload to echo, and at least 16 bytes of padding the receiver must
// ignore. It travels in its own record content type, never inside the
// handshake stream, and is never exposed to the application.
type Heartbeat struct {
	Type    byte
	Payload []byte
}

func (h Heartbeat) Marshal() []byte {
	out := make([]byte, 3+len(h.Payload)+heartbeatPaddingLen)
	out[0] = h.Type
	out[1] = byte(len(h.Payload) >> 8)
	out[2] = byte(len(h.Payload))
	copy(out[3:], h.Payload)
	rand.Read(out[3+len(h.Payload):])
	return out
}

// DecodeHeartbeat enforces RFC 6520 §4's discard rule: a message whose
// payload_length doesn't leave room for 16 bytes of padding is invalid
// and the caller must drop it silently rather than respond.
func DecodeHeartbeat(data []byte) (Heartbeat, error) {
	if len(data) < 3 {
		return Heartbeat{}, ErrDecode
	}
	t := data[0]
	if t != HeartbeatRequest && t != HeartbeatResponse {
		return Heartbeat{}, ErrDecode
	}
	payloadLen := int(data[1])<<8 | int(data[2])
	if 3+payloadLen+heartbeatPaddingLen > len(data) {
		return Heartbeat{}, ErrDecode
	}
	return Heartbeat{Type: t, Payload: append([]byte(nil), data[3:3+payloadLen]...)}, nil
}
