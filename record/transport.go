package record

import "errors"

// ErrWouldBlock is returned by a non-blocking Transport when the requested
// direction has no data ready. Callers operating a connection in
// non-blocking mode must re-invoke the same high-level operation once the
// transport signals readiness through whatever mechanism it offers (e.g.
// an event loop).
var ErrWouldBlock = errors.New("record: transport would block")

// Direction names which half of a duplex Transport a WouldBlock applies to.
type Direction int

const (
	DirectionRead Direction = iota
	DirectionWrite
)

// Transport is the external collaborator the record layer is driven over.
// It is deliberately narrower than net.Conn: no address information, no
// deadlines — those are a concern of whatever concrete transport the
// caller plugs in.
//
// Implementations may be blocking (Recv/Send only return once they have
// made progress or hit a permanent error) or non-blocking (Recv/Send may
// return ErrWouldBlock, in which case the caller must retry the same
// high-level operation later). The record layer is written against this
// single interface and behaves identically either way.
type Transport interface {
	// Recv reads up to max bytes. It returns io.EOF when the peer has
	// closed its write side; ErrWouldBlock in non-blocking mode when no
	// data is currently available.
	Recv(max int) ([]byte, error)

	// Send writes all of b or returns an error. In non-blocking mode it
	// may return (0, ErrWouldBlock) if the transport cannot accept any
	// bytes right now; the caller must retry with the same b.
	Send(b []byte) (int, error)

	// Close releases the transport. It is always safe to call more than
	// once.
	Close() error
}
