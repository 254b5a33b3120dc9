// Package messages implements the typed handshake message and extension
// variants: per-variant encode/decode over the 4-byte
// handshake header, with unknown extensions passed through verbatim so
// the transcript hash stays exact even for extensions this engine
// doesn't interpret.
package messages

import (
	"encoding/binary"
	"errors"

	"github.com/insinfo/tlslite-sub007/wire"
)

// ErrDecode is wrapped by every decode failure in this package; callers
// map it to AlertDecodeError uniformly.
var ErrDecode = errors.New("messages: decode error")

// reader is a small cursor over a byte slice with TLS-style
// length-prefixed vector reads. It never panics: every read past the end
// returns ErrDecode.
type reader struct {
	b   []byte
	pos int
}

func newReader(b []byte) *reader { return &reader{b: b} }

func (r *reader) remaining() int { return len(r.b) - r.pos }

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.remaining() < n {
		return nil, ErrDecode
	}
	out := r.b[r.pos : r.pos+n]
	r.pos += n
	return out, nil
}

func (r *reader) u8() (byte, error) {
	b, err := r.bytes(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) u16() (uint16, error) {
	b, err := r.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *reader) u24() (int, error) {
	b, err := r.bytes(3)
	if err != nil {
		return 0, err
	}
	return int(b[0])<<16 | int(b[1])<<8 | int(b[2]), nil
}

// vector8/16/24 read a length-prefixed (1/2/3-byte length) opaque vector
// and return its contents.
func (r *reader) vector8() ([]byte, error) {
	n, err := r.u8()
	if err != nil {
		return nil, err
	}
	return r.bytes(int(n))
}

func (r *reader) vector16() ([]byte, error) {
	n, err := r.u16()
	if err != nil {
		return nil, err
	}
	return r.bytes(int(n))
}

func (r *reader) vector24() ([]byte, error) {
	n, err := r.u24()
	if err != nil {
		return nil, err
	}
	return r.bytes(n)
}

func (r *reader) done() bool { return r.remaining() == 0 }

// writer accumulates an encoded message body.
type writer struct {
	b []byte
}

func (w *writer) u8(v byte)     { w.b = append(w.b, v) }
func (w *writer) u16(v uint16)  { w.b = append(w.b, byte(v>>8), byte(v)) }
func (w *writer) u24(v int)     { w.b = append(w.b, byte(v>>16), byte(v>>8), byte(v)) }
func (w *writer) raw(b []byte)  { w.b = append(w.b, b...) }

func (w *writer) vector8(b []byte) {
	w.u8(byte(len(b)))
	w.raw(b)
}

func (w *writer) vector16(b []byte) {
	w.u16(uint16(len(b)))
	w.raw(b)
}

func (w *writer) vector24(b []byte) {
	w.u24(len(b))
	w.raw(b)
}

func (w *writer) bytes() []byte { return w.b }

// header prepends a handshake message header to body, producing the
// exact bytes that contribute to the transcript hash.
func header(t wire.HandshakeType, body []byte) []byte {
	out := make([]byte, 4+len(body))
	out[0] = byte(t)
	l := len(body)
	out[1], out[2], out[3] = byte(l>>16), byte(l>>8), byte(l)
	copy(out[4:], body)
	return out
}
