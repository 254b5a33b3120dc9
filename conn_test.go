package tls

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"io"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insinfo/tlslite-sub007/messages"
	"github.com/insinfo/tlslite-sub007/wire"
)

// --- test fixtures ---

func selfSigned(t *testing.T, key crypto.Signer, cn string) *Certificate {
	t.Helper()
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: cn},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		DNSNames:     []string{cn},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	return &Certificate{Chain: [][]byte{der}, PrivateKey: key}
}

func ed25519Cert(t *testing.T, cn string) *Certificate {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return selfSigned(t, priv, cn)
}

func ecdsaCert(t *testing.T, cn string) *Certificate {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return selfSigned(t, priv, cn)
}

func rsaCert(t *testing.T, cn string) *Certificate {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	return selfSigned(t, priv, cn)
}

// testCreds trusts every chain; chain building against real anchors is
// an external collaborator's job and not under test here.
type testCreds struct {
	server *Certificate
	client *Certificate
}

func (c *testCreds) GetServerCertificate(sni string, sigAlgs []SignatureScheme) (*Certificate, error) {
	return c.server, nil
}

func (c *testCreds) GetClientCertificate(req *CertificateRequestInfo) (*Certificate, error) {
	return c.client, nil
}

func (c *testCreds) VerifyPeerChain(chain [][]byte, sni string, ocsp []byte) (AlertKind, error) {
	return 0, nil
}

type handshakeResult struct {
	conn *Conn
	err  error
}

// runPair connects client and server configs over an in-memory pipe,
// running the server in its own goroutine.
func runPair(t *testing.T, clientCfg, serverCfg *Config, serve func(*Conn) error) (*Conn, chan handshakeResult) {
	t.Helper()
	ct, st := transportPair()
	client := NewClient(clientCfg, ct)
	server := NewServer(serverCfg, st)

	done := make(chan handshakeResult, 1)
	go func() {
		err := server.Handshake()
		if err == nil && serve != nil {
			err = serve(server)
		}
		done <- handshakeResult{conn: server, err: err}
	}()
	return client, done
}

func echoOnce(server *Conn) error {
	buf := make([]byte, 64)
	n, err := server.Read(buf)
	if err != nil {
		return err
	}
	if string(buf[:n]) == "ping" {
		_, err = server.Write([]byte("pong"))
		return err
	}
	_, err = server.Write(buf[:n])
	return err
}

func expectPong(t *testing.T, client *Conn) {
	t.Helper()
	_, err := client.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "pong", string(buf[:n]))
}

// --- end-to-end scenarios ---

func TestTLS13FullHandshakeX25519Ed25519(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{
		ServerName:        "example.com",
		Credentials:       creds,
		NamedGroups:       []NamedGroup{X25519},
		CipherSuitesTLS13: []uint16{TLS_AES_128_GCM_SHA256},
		NextProtos:        []string{"h2"},
	}
	serverCfg := &Config{
		Credentials: creds,
		NamedGroups: []NamedGroup{X25519},
		NextProtos:  []string{"h2"},
	}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)

	res := <-done
	require.NoError(t, res.err)

	cs := client.ConnectionState()
	assert.Equal(t, VersionTLS13, cs.Version)
	assert.Equal(t, TLS_AES_128_GCM_SHA256, cs.CipherSuite)
	assert.Equal(t, "h2", cs.NegotiatedProtocol)
	assert.False(t, cs.Resumed)
	assert.NotNil(t, client.PeerCertificate())

	scs := res.conn.ConnectionState()
	assert.Equal(t, VersionTLS13, scs.Version)
	assert.Equal(t, cs.CipherSuite, scs.CipherSuite)
}

func TestTLS13ExporterAgreement(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{ServerName: "example.com", Credentials: creds}
	serverCfg := &Config{Credentials: creds}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)

	ckm, err := client.ExportKeyingMaterial("EXPORTER-test", []byte("ctx"), 32)
	require.NoError(t, err)
	skm, err := res.conn.ExportKeyingMaterial("EXPORTER-test", []byte("ctx"), 32)
	require.NoError(t, err)
	assert.Equal(t, ckm, skm, "both sides derive identical exporter output")

	other, err := client.ExportKeyingMaterial("EXPORTER-test", []byte("other"), 32)
	require.NoError(t, err)
	assert.NotEqual(t, ckm, other)
}

func TestTLS13PSKResumption(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	serverTickets := NewLRUTicketStore(16)
	clientTickets := NewLRUTicketStore(16)

	serverCfg := &Config{Credentials: creds, TicketStore: serverTickets}
	clientCfg := &Config{ServerName: "example.com", Credentials: creds, TicketStore: clientTickets}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client) // the Read also ingests the NewSessionTicket
	res := <-done
	require.NoError(t, res.err)

	ticket := client.SessionForResumption()
	require.NotNil(t, ticket, "client must capture the post-handshake ticket")
	require.NotEmpty(t, ticket.ResumptionSecret)

	clientCfg2 := &Config{
		ServerName:        "example.com",
		Credentials:       creds,
		ResumptionTickets: []*NewSessionTicket{ticket},
	}
	serverCfg2 := &Config{Credentials: creds, TicketStore: serverTickets}

	client2, done2 := runPair(t, clientCfg2, serverCfg2, echoOnce)
	require.NoError(t, client2.Handshake())
	expectPong(t, client2)
	res2 := <-done2
	require.NoError(t, res2.err)

	assert.True(t, client2.ConnectionState().Resumed)
	assert.True(t, res2.conn.ConnectionState().Resumed)
	assert.Nil(t, client2.PeerCertificate(), "no Certificate flight on PSK resumption")
}

func TestTLS13HelloRetryRequest(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{
		ServerName:  "example.com",
		Credentials: creds,
		// Client's share goes out for x25519 only; the server insists on
		// secp256r1, forcing one HRR round trip.
		NamedGroups: []NamedGroup{X25519, Secp256r1},
	}
	serverCfg := &Config{Credentials: creds, NamedGroups: []NamedGroup{Secp256r1}}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, VersionTLS13, client.ConnectionState().Version)
}

func TestTLS12ECDHERSAFullHandshake(t *testing.T) {
	creds := &testCreds{server: rsaCert(t, "example.com")}
	clientCfg := &Config{
		ServerName:   "example.com",
		Credentials:  creds,
		MinVersion:   VersionTLS12,
		MaxVersion:   VersionTLS12,
		CipherSuites: []uint16{TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384},
	}
	serverCfg := &Config{Credentials: creds}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)

	cs := client.ConnectionState()
	assert.Equal(t, VersionTLS12, cs.Version)
	assert.Equal(t, TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384, cs.CipherSuite)
	assert.False(t, cs.Resumed)
}

func TestTLS12DHERSAFullHandshake(t *testing.T) {
	creds := &testCreds{server: rsaCert(t, "example.com")}
	clientCfg := &Config{
		ServerName:   "example.com",
		Credentials:  creds,
		MaxVersion:   VersionTLS12,
		CipherSuites: []uint16{cipherSuiteDHE},
	}
	serverCfg := &Config{Credentials: creds}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, cipherSuiteDHE, client.ConnectionState().CipherSuite)
}

func TestTLS12StaticRSAFullHandshake(t *testing.T) {
	creds := &testCreds{server: rsaCert(t, "example.com")}
	clientCfg := &Config{
		ServerName:   "example.com",
		Credentials:  creds,
		MaxVersion:   VersionTLS12,
		CipherSuites: []uint16{TLS_RSA_WITH_AES_128_GCM_SHA256},
	}
	serverCfg := &Config{Credentials: creds}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, TLS_RSA_WITH_AES_128_GCM_SHA256, client.ConnectionState().CipherSuite)
}

func TestTLS12CBCSuite(t *testing.T) {
	creds := &testCreds{server: rsaCert(t, "example.com")}
	clientCfg := &Config{
		ServerName:   "example.com",
		Credentials:  creds,
		MaxVersion:   VersionTLS12,
		CipherSuites: []uint16{TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA},
	}
	serverCfg := &Config{Credentials: creds}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)
}

func TestTLS12SessionResumption(t *testing.T) {
	creds := &testCreds{server: rsaCert(t, "example.com")}
	clientCache := NewLRUSessionCache(16)
	serverCache := NewLRUSessionCache(16)

	clientCfg := &Config{
		ServerName:   "example.com",
		Credentials:  creds,
		MaxVersion:   VersionTLS12,
		SessionCache: clientCache,
	}
	serverCfg := &Config{Credentials: creds, SessionCache: serverCache}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)
	require.False(t, client.ConnectionState().Resumed)

	cached, ok := clientCache.Lookup("example.com")
	require.True(t, ok, "client caches by server name after a full handshake")
	assert.NotEmpty(t, cached.Ticket, "ticketing peers resume by session ticket")

	client2, done2 := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client2.Handshake())
	expectPong(t, client2)
	res2 := <-done2
	require.NoError(t, res2.err)
	assert.True(t, client2.ConnectionState().Resumed, "abbreviated handshake on the second connection")
	assert.True(t, res2.conn.ConnectionState().Resumed)
}

// A server whose client never offers session_ticket still resumes by
// session_id, the pre-RFC 5077 path.
func TestTLS12SessionIDResumptionWithoutTickets(t *testing.T) {
	creds := &testCreds{server: rsaCert(t, "example.com")}
	serverCache := NewLRUSessionCache(16)
	serverCfg := &Config{Credentials: creds, SessionCache: serverCache}

	clientCfg := &Config{
		ServerName:  "example.com",
		Credentials: creds,
		MaxVersion:  VersionTLS12,
		// No client-side SessionCache: the session_ticket extension is
		// never offered, so the server assigns a session_id instead.
	}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)

	sid := res.conn.hs.TLS12SessionID
	require.NotEmpty(t, sid, "server falls back to session_id issuance")
	cached, ok := serverCache.Lookup(string(sid))
	require.True(t, ok)
	assert.Empty(t, cached.Ticket)
}

func TestTLS13ClientAuthEd25519(t *testing.T) {
	serverCreds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCreds := &testCreds{server: serverCreds.server, client: ed25519Cert(t, "client")}

	clientCfg := &Config{
		ServerName:       "example.com",
		Credentials:      clientCreds,
		SignatureSchemes: []SignatureScheme{Ed25519, ECDSAWithP256AndSHA256},
	}
	serverCfg := &Config{
		Credentials: serverCreds,
		ClientAuth:  RequireAndVerifyClientCert,
	}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)

	assert.NotNil(t, res.conn.PeerCertificate(), "server sees the client chain")
}

func TestTLS12ClientAuth(t *testing.T) {
	serverCreds := &testCreds{server: rsaCert(t, "example.com")}
	clientCreds := &testCreds{server: serverCreds.server, client: ecdsaCert(t, "client")}

	clientCfg := &Config{
		ServerName:  "example.com",
		Credentials: clientCreds,
		MaxVersion:  VersionTLS12,
	}
	serverCfg := &Config{
		Credentials: serverCreds,
		ClientAuth:  RequireAndVerifyClientCert,
	}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)
	assert.NotNil(t, res.conn.PeerCertificate())
}

func TestHybridX25519MLKEM768(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{
		ServerName:        "example.com",
		Credentials:       creds,
		NamedGroups:       []NamedGroup{X25519Mlkem768},
		CipherSuitesTLS13: []uint16{TLS_AES_256_GCM_SHA384},
	}
	serverCfg := &Config{Credentials: creds, NamedGroups: []NamedGroup{X25519Mlkem768}}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, TLS_AES_256_GCM_SHA384, client.ConnectionState().CipherSuite)
}

func TestKeyUpdateBothDirections(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{ServerName: "example.com", Credentials: creds}
	serverCfg := &Config{Credentials: creds}

	serve := func(server *Conn) error {
		// First read absorbs the client's KeyUpdate (update_requested),
		// answers it, then sees the ping.
		if err := echoOnce(server); err != nil {
			return err
		}
		return echoOnce(server)
	}
	client, done := runPair(t, clientCfg, serverCfg, serve)
	require.NoError(t, client.Handshake())

	require.NoError(t, client.SendKeyUpdate(true))
	expectPong(t, client) // under the ratcheted client→server keys
	expectPong(t, client) // server's answering KeyUpdate ratchets server→client too
	res := <-done
	require.NoError(t, res.err)
}

func TestCloseNotify(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{ServerName: "example.com", Credentials: creds}
	serverCfg := &Config{Credentials: creds}

	serve := func(server *Conn) error {
		buf := make([]byte, 16)
		_, err := server.Read(buf)
		return err
	}
	client, done := runPair(t, clientCfg, serverCfg, serve)
	require.NoError(t, client.Handshake())
	require.NoError(t, client.Close())

	res := <-done
	assert.ErrorIs(t, res.err, io.EOF, "close_notify surfaces as clean EOF")
	assert.Equal(t, StateClosed, client.State())
}

func TestLargeTransferFragments(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{ServerName: "example.com", Credentials: creds}
	serverCfg := &Config{Credentials: creds}

	payload := make([]byte, 3*wire.MaxPlaintextLen+17)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	serve := func(server *Conn) error {
		got := make([]byte, 0, len(payload))
		buf := make([]byte, 32*1024)
		for len(got) < len(payload) {
			n, err := server.Read(buf)
			if err != nil {
				return err
			}
			got = append(got, buf[:n]...)
		}
		_, err := server.Write(got)
		return err
	}
	client, done := runPair(t, clientCfg, serverCfg, serve)
	require.NoError(t, client.Handshake())

	_, err := client.Write(payload)
	require.NoError(t, err)

	got := make([]byte, 0, len(payload))
	buf := make([]byte, 32*1024)
	for len(got) < len(payload) {
		n, err := client.Read(buf)
		require.NoError(t, err)
		got = append(got, buf[:n]...)
	}
	assert.Equal(t, payload, got)
	res := <-done
	require.NoError(t, res.err)
}

func TestALPNMismatchYieldsEmpty(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{ServerName: "example.com", Credentials: creds, NextProtos: []string{"h2"}}
	serverCfg := &Config{Credentials: creds, NextProtos: []string{"h3"}}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())
	expectPong(t, client)
	res := <-done
	require.NoError(t, res.err)
	assert.Empty(t, client.NegotiatedALPN())
}

func TestHeartbeatRequestResponse(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{
		ServerName:                 "example.com",
		Credentials:                creds,
		HeartbeatPeerAllowedToSend: true,
	}
	serverCfg := &Config{Credentials: creds, HeartbeatPeerAllowedToSend: true}

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())

	// Inject a heartbeat_request ahead of the ping; the server's Read
	// loop must answer it without surfacing anything to the application.
	hb := messages.Heartbeat{Type: messages.HeartbeatRequest, Payload: []byte("hb-probe")}
	require.NoError(t, client.layer.WriteRecord(wire.ContentTypeHeartbeat, hb.Marshal()))
	_, err := client.Write([]byte("ping"))
	require.NoError(t, err)

	// Read raw records so the response itself is observable: first the
	// echoing heartbeat_response, then the ordinary pong.
	ct, payload, err := client.layer.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, wire.ContentTypeHeartbeat, ct)
	resp, err := messages.DecodeHeartbeat(payload)
	require.NoError(t, err)
	assert.Equal(t, messages.HeartbeatResponse, resp.Type)
	assert.Equal(t, []byte("hb-probe"), resp.Payload, "response echoes the request payload")

	ct, payload, err = client.layer.ReadRecord()
	require.NoError(t, err)
	assert.Equal(t, wire.ContentTypeApplicationData, ct)
	assert.Equal(t, "pong", string(payload))

	res := <-done
	require.NoError(t, res.err)
}

// A heartbeat record on a connection that never negotiated the
// extension is a protocol violation, not a silent no-op.
func TestHeartbeatWithoutNegotiationRejected(t *testing.T) {
	creds := &testCreds{server: ed25519Cert(t, "example.com")}
	clientCfg := &Config{
		ServerName:                 "example.com",
		Credentials:                creds,
		HeartbeatPeerAllowedToSend: true,
	}
	serverCfg := &Config{Credentials: creds} // server never agrees

	client, done := runPair(t, clientCfg, serverCfg, echoOnce)
	require.NoError(t, client.Handshake())

	hb := messages.Heartbeat{Type: messages.HeartbeatRequest, Payload: []byte("nope")}
	require.NoError(t, client.layer.WriteRecord(wire.ContentTypeHeartbeat, hb.Marshal()))

	res := <-done
	var le *LocalError
	require.Error(t, res.err)
	require.ErrorAs(t, res.err, &le)
	assert.Equal(t, AlertUnexpectedMessage, le.Kind)

	buf := make([]byte, 8)
	_, err := client.Read(buf)
	var ra *RemoteAlert
	require.Error(t, err)
	require.ErrorAs(t, err, &ra)
	assert.Equal(t, AlertUnexpectedMessage, ra.Kind)
}

// cipherSuiteDHE keeps the DHE scenario readable above.
const cipherSuiteDHE = uint16(0x009e) // TLS_DHE_RSA_WITH_AES_128_GCM_SHA256
