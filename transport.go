package tls

import "github.com/insinfo/tlslite-sub007/record"

// Transport, ErrWouldBlock, and Direction are defined in the record
// package (which the Transport contract actually serves) and re-exported
// here as the names callers of this package see, the same way the wire
// enums are aliased in errors.go.
type Transport = record.Transport

var ErrWouldBlock = record.ErrWouldBlock

type Direction = record.Direction

const (
	DirectionRead  = record.DirectionRead
	DirectionWrite = record.DirectionWrite
)
