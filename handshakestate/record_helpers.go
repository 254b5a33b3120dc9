package handshakestate

import (
	"github.com/insinfo/tlslite-sub007/internal/defragment"
	"github.com/insinfo/tlslite-sub007/record"
	"github.com/insinfo/tlslite-sub007/wire"
)

// aloneInRecord lists the handshake messages required to occupy a
// record by themselves: a peer coalescing one of these with anything
// else is a protocol violation, not a framing convenience.
var aloneInRecord = map[wire.HandshakeType]bool{
	wire.HandshakeTypeClientHello: true,
	wire.HandshakeTypeServerHello: true, // HelloRetryRequest is wire-identical to ServerHello
	wire.HandshakeTypeFinished:    true,
	wire.HandshakeTypeKeyUpdate:   true,
}

// handshakeIO multiplexes the record layer's handshake-content-type
// stream into individual messages, feeding every message's exact wire
// bytes into a Transcript as it goes.
type handshakeIO struct {
	layer *record.Layer
	buf   defragment.Buffer
	t     *Transcript

	// dropCCS silently discards change_cipher_spec records, the TLS 1.3
	// middlebox-compatibility rule. TLS 1.2 flows leave it unset
	// and consume CCS explicitly via readChangeCipherSpec.
	dropCCS bool
}

func newHandshakeIO(layer *record.Layer, t *Transcript) *handshakeIO {
	return &handshakeIO{layer: layer, t: t}
}

// setTranscript attaches (or replaces) the transcript raw message bytes
// are folded into; used by the server dispatcher, which must read the
// first ClientHello before it knows which state machine — and therefore
// which transcript hash — will run.
func (h *handshakeIO) setTranscript(t *Transcript) { h.t = t }

// writeMessage sends one already-marshaled handshake message (as
// produced by a messages.XxxMarshal, header included) and folds its raw
// bytes into the transcript, unless addToTranscript is false. Every
// caller in this package passes true; TLS 1.3 post-handshake messages
// are written through the record layer directly, not through here.
func (h *handshakeIO) writeMessage(raw []byte, addToTranscript bool) error {
	if err := h.layer.WriteRecord(wire.ContentTypeHandshake, raw); err != nil {
		return err
	}
	if addToTranscript && h.t != nil {
		h.t.Add(raw)
	}
	return nil
}

// writeChangeCipherSpec emits the TLS 1.2 (or TLS 1.3 middlebox-compat)
// ChangeCipherSpec record; it never contributes to the transcript.
func (h *handshakeIO) writeChangeCipherSpec() error {
	return h.layer.WriteRecord(wire.ContentTypeChangeCipherSpec, []byte{1})
}

// readChangeCipherSpec consumes exactly one record and requires it to be
// a well-formed ChangeCipherSpec, the TLS 1.2 key-installation marker.
func (h *handshakeIO) readChangeCipherSpec() error {
	if h.buf.Pending() {
		return errf(wire.AlertUnexpectedMessage, "handshake data buffered where ChangeCipherSpec expected")
	}
	ct, payload, err := h.layer.ReadRecord()
	if err != nil {
		return err
	}
	if ct == wire.ContentTypeAlert {
		return alertFromRecord(payload)
	}
	if ct != wire.ContentTypeChangeCipherSpec || len(payload) != 1 || payload[0] != 1 {
		return errf(wire.AlertUnexpectedMessage, "expected ChangeCipherSpec, got content type %d", ct)
	}
	return nil
}

// alertFromRecord turns a received alert record into the error the
// handshake aborts with. Any alert mid-handshake is fatal to the
// handshake, including warning-level ones.
func alertFromRecord(payload []byte) error {
	if len(payload) != 2 {
		return errf(wire.AlertDecodeError, "malformed alert record")
	}
	return &RemoteAlertError{Kind: wire.AlertKind(payload[1])}
}

// readMessage blocks until one complete handshake message is available,
// decodes its header, and folds its raw bytes into the transcript. It
// enforces the "alone in its own record" rule for the message types that
// require it, surfaces peer alerts, and (in TLS 1.3 mode) silently drops
// compatibility ChangeCipherSpec records.
func (h *handshakeIO) readMessage() (defragment.Message, error) {
	for {
		if msg, ok, err := h.buf.Next(); err != nil {
			return defragment.Message{}, errf(wire.AlertDecodeError, "%v", err)
		} else if ok {
			if aloneInRecord[msg.Type] && h.buf.Pending() {
				return defragment.Message{}, errf(wire.AlertUnexpectedMessage,
					"%s must not share a record with another message", msg.Type)
			}
			if h.t != nil {
				h.t.Add(msg.Raw)
			}
			return msg, nil
		}

		ct, payload, err := h.layer.ReadRecord()
		if err != nil {
			return defragment.Message{}, err
		}
		switch ct {
		case wire.ContentTypeHandshake:
			if len(payload) == 0 {
				// Zero-length records are legal only for protected
				// application_data.
				return defragment.Message{}, errf(wire.AlertDecodeError, "zero-length handshake record")
			}
			h.buf.Push(payload)
		case wire.ContentTypeAlert:
			return defragment.Message{}, alertFromRecord(payload)
		case wire.ContentTypeChangeCipherSpec:
			if h.dropCCS {
				continue
			}
			return defragment.Message{}, errf(wire.AlertUnexpectedMessage, "unexpected ChangeCipherSpec")
		default:
			return defragment.Message{}, errf(wire.AlertUnexpectedMessage,
				"expected a handshake record, got content type %d", ct)
		}
	}
}

// readSpecificMessage reads the next handshake message and requires it
// to be of type want.
func (h *handshakeIO) readSpecificMessage(want wire.HandshakeType) (defragment.Message, error) {
	msg, err := h.readMessage()
	if err != nil {
		return defragment.Message{}, err
	}
	if msg.Type != want {
		return defragment.Message{}, errf(wire.AlertUnexpectedMessage, "expected %s, got %s", want, msg.Type)
	}
	return msg, nil
}
