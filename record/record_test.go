package record

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/wire"
)

// bufTransport is a single-threaded duplex stub: Send fills out, Recv
// drains in. Wire both directions by sharing buffers.
type bufTransport struct {
	in, out *bytes.Buffer
}

func (t *bufTransport) Recv(max int) ([]byte, error) {
	if t.in.Len() == 0 {
		return nil, io.EOF
	}
	if max > t.in.Len() {
		max = t.in.Len()
	}
	return t.in.Next(max), nil
}

func (t *bufTransport) Send(b []byte) (int, error) {
	return t.out.Write(b)
}

func (t *bufTransport) Close() error { return nil }

func layerPair() (a, b *Layer) {
	ab, ba := new(bytes.Buffer), new(bytes.Buffer)
	return NewLayer(&bufTransport{in: ba, out: ab}), NewLayer(&bufTransport{in: ab, out: ba})
}

func TestPlaintextRoundTrip(t *testing.T) {
	a, b := layerPair()
	payload := []byte{1, 0, 0, 1, 0xff}
	require.NoError(t, a.WriteRecord(wire.ContentTypeHandshake, payload))

	ct, got, err := b.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, wire.ContentTypeHandshake, ct)
	assert.Equal(t, payload, got)
}

func TestFragmentationAt16K(t *testing.T) {
	a, b := layerPair()
	payload := make([]byte, 2*wire.MaxPlaintextLen+100)
	for i := range payload {
		payload[i] = byte(i)
	}
	require.NoError(t, a.WriteRecord(wire.ContentTypeHandshake, payload))

	var got []byte
	for i := 0; i < 3; i++ {
		ct, chunk, err := b.ReadRecord()
		require.NoError(t, err)
		assert.Equal(t, wire.ContentTypeHandshake, ct)
		if i < 2 {
			assert.Len(t, chunk, wire.MaxPlaintextLen)
		} else {
			assert.Len(t, chunk, 100)
		}
		got = append(got, chunk...)
	}
	assert.Equal(t, payload, got)
}

func TestMaxSendSizeHonored(t *testing.T) {
	a, b := layerPair()
	a.SetMaxSendSize(1000)
	require.NoError(t, a.WriteRecord(wire.ContentTypeApplicationData, make([]byte, 2500)))

	sizes := []int{}
	for i := 0; i < 3; i++ {
		_, chunk, err := b.ReadRecord()
		require.NoError(t, err)
		sizes = append(sizes, len(chunk))
	}
	assert.Equal(t, []int{1000, 1000, 500}, sizes)
}

func TestRecordOverflowRejected(t *testing.T) {
	_, b := layerPair()
	tr := b.t.(*bufTransport)
	// Hand-craft a header claiming a body longer than the ciphertext cap.
	n := wire.MaxCiphertextLen + 1
	tr.in.Write([]byte{22, 3, 3, byte(n >> 8), byte(n)})
	_, _, err := b.ReadRecord()
	assert.ErrorIs(t, err, ErrRecordTooLarge)
}

func TestUnknownContentTypeRejected(t *testing.T) {
	_, b := layerPair()
	tr := b.t.(*bufTransport)
	tr.in.Write([]byte{99, 3, 3, 0, 1, 0})
	_, _, err := b.ReadRecord()
	assert.ErrorIs(t, err, ErrUnknownContentType)
}

func installTLS13(a, b *Layer) {
	suite := cipherstate.CipherSuiteTLS13ByID(0x1301)
	key := make([]byte, suite.KeyLen)
	iv := make([]byte, 12)
	key[0] = 7

	w := cipherstate.NullDirectionState()
	w.InstallAEAD13(suite, key, iv, false)
	r := cipherstate.NullDirectionState()
	r.InstallAEAD13(suite, key, iv, true)
	a.SetWriteState(w, true)
	b.SetReadState(r, true)
}

func TestTLS13ProtectedInnerType(t *testing.T) {
	a, b := layerPair()
	installTLS13(a, b)

	payload := []byte("finished-ish bytes")
	require.NoError(t, a.WriteRecord(wire.ContentTypeHandshake, payload))

	// On the wire the outer type must be application_data.
	tr := b.t.(*bufTransport)
	assert.Equal(t, byte(wire.ContentTypeApplicationData), tr.in.Bytes()[0])

	ct, got, err := b.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, wire.ContentTypeHandshake, ct, "inner type is authoritative")
	assert.Equal(t, payload, got)
}

func TestTLS13EmptyApplicationRecord(t *testing.T) {
	a, b := layerPair()
	installTLS13(a, b)

	require.NoError(t, a.WriteRecord(wire.ContentTypeApplicationData, nil))
	ct, got, err := b.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, wire.ContentTypeApplicationData, ct)
	assert.Empty(t, got)
}

func TestTLS13PaddingStripped(t *testing.T) {
	a, b := layerPair()
	installTLS13(a, b)

	// Seal a padded inner plaintext by hand: payload || type || zeros.
	ws := a.WriteState()
	inner := append(append([]byte("data"), byte(wire.ContentTypeApplicationData)), 0, 0, 0, 0)
	sealed := ws.SealApplicationRecordTLS13(inner, len(inner)+ws.Overhead())
	hdr := []byte{byte(wire.ContentTypeApplicationData), 3, 3, byte(len(sealed) >> 8), byte(len(sealed))}
	tr := b.t.(*bufTransport)
	tr.in.Write(hdr)
	tr.in.Write(sealed)

	ct, got, err := b.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, wire.ContentTypeApplicationData, ct)
	assert.Equal(t, []byte("data"), got)
}

func TestSSLv2CandidateDetection(t *testing.T) {
	_, b := layerPair()
	tr := b.t.(*bufTransport)

	body := []byte{0x01, 0x03, 0x03, 0x00, 0x03, 0x00, 0x00, 0x00, 0x10}
	body = append(body, []byte{0x00, 0x00, 0x2f}...)
	body = append(body, make([]byte, 16)...)
	tr.in.Write([]byte{0x80 | byte(len(body)>>8), byte(len(body))})
	tr.in.Write(body)

	v2, got, err := b.ReadSSLv2Candidate()
	require.NoError(t, err)
	require.True(t, v2)
	assert.Equal(t, body, got)
}

func TestSSLv2CandidateLeavesTLSAlone(t *testing.T) {
	a, b := layerPair()
	require.NoError(t, a.WriteRecord(wire.ContentTypeHandshake, []byte{1, 0, 0, 0}))

	v2, _, err := b.ReadSSLv2Candidate()
	require.NoError(t, err)
	require.False(t, v2)

	ct, got, err := b.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, wire.ContentTypeHandshake, ct)
	assert.Equal(t, []byte{1, 0, 0, 0}, got)
}

type wouldBlockTransport struct{}

func (wouldBlockTransport) Recv(int) ([]byte, error) { return nil, ErrWouldBlock }
func (wouldBlockTransport) Send(b []byte) (int, error) {
	return 0, ErrWouldBlock
}
func (wouldBlockTransport) Close() error { return nil }

func TestWouldBlockPassesThrough(t *testing.T) {
	l := NewLayer(wouldBlockTransport{})
	_, _, err := l.ReadRecord()
	assert.ErrorIs(t, err, ErrWouldBlock)

	err = l.WriteRecord(wire.ContentTypeApplicationData, []byte{1})
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestEOFMidRecordIsUnexpected(t *testing.T) {
	_, b := layerPair()
	tr := b.t.(*bufTransport)
	tr.in.Write([]byte{22, 3, 3, 0, 10, 1, 2}) // header promises 10, delivers 2
	_, _, err := b.ReadRecord()
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
