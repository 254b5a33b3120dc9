package tls

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlertEncoding(t *testing.T) {
	assert.Equal(t, []byte{1, 0}, encodeAlert(AlertCloseNotify))
	assert.Equal(t, []byte{1, 100}, encodeAlert(AlertNoRenegotiation))
	assert.Equal(t, []byte{2, 40}, encodeAlert(AlertHandshakeFailure))
	assert.Equal(t, []byte{2, 20}, encodeAlert(AlertBadRecordMAC))
}

func TestAlertKindClasses(t *testing.T) {
	assert.True(t, AlertCloseNotify.IsWarning())
	assert.True(t, AlertUserCanceled.IsWarning())
	assert.True(t, AlertNoRenegotiation.IsWarning())
	assert.False(t, AlertHandshakeFailure.IsWarning())
	assert.Equal(t, "unexpected_message", AlertUnexpectedMessage.String())
}

func TestErrorShapes(t *testing.T) {
	var err error = &LocalError{Kind: AlertDecodeError, Detail: "bad length"}
	var le *LocalError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, AlertDecodeError, le.Kind)
	assert.Contains(t, err.Error(), "decode_error")

	err = &RemoteAlert{Kind: AlertUnknownPSKIdentity}
	var ra *RemoteAlert
	require.True(t, errors.As(err, &ra))
	assert.Contains(t, err.Error(), "unknown_psk_identity")

	inner := errors.New("socket gone")
	err = &TransportError{Err: inner}
	assert.ErrorIs(t, err, inner, "TransportError unwraps to the transport's error")
}

// A negotiation dead-end must fail locally with handshake_failure on the
// server and surface to the client as the peer's fatal alert.
func TestNoMutualCipherSuiteSurfacesBothSides(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{
		ServerName:        "example.com",
		Credentials:       creds,
		CipherSuitesTLS13: []uint16{TLS_CHACHA20_POLY1305_SHA256},
	}
	serverCfg := &Config{
		Credentials:       creds,
		CipherSuitesTLS13: []uint16{TLS_AES_128_GCM_SHA256},
	}

	client, done := runPair(t, clientCfg, serverCfg, nil)
	clientErr := client.Handshake()
	res := <-done

	var le *LocalError
	require.Error(t, res.err)
	require.True(t, errors.As(res.err, &le))
	assert.Equal(t, AlertHandshakeFailure, le.Kind)
	assert.Equal(t, StateFailed, res.conn.State())

	var ra *RemoteAlert
	require.Error(t, clientErr)
	require.True(t, errors.As(clientErr, &ra))
	assert.Equal(t, AlertHandshakeFailure, ra.Kind)
	assert.Equal(t, StateFailed, client.State())
}

// A client capped at 1.2 talking to a server floored at 1.3 cannot agree.
func TestVersionMismatchRejected(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{
		ServerName:  "example.com",
		Credentials: creds,
		MaxVersion:  VersionTLS12,
	}
	serverCfg := &Config{
		Credentials: creds,
		MinVersion:  VersionTLS13,
	}

	client, done := runPair(t, clientCfg, serverCfg, nil)
	clientErr := client.Handshake()
	res := <-done

	var le *LocalError
	require.True(t, errors.As(res.err, &le))
	assert.Equal(t, AlertProtocolVersion, le.Kind)

	var ra *RemoteAlert
	require.True(t, errors.As(clientErr, &ra))
	assert.Equal(t, AlertProtocolVersion, ra.Kind)
}
