// Package wire holds the protocol-level constants and simple data types
// shared by every layer of the engine (record framing, handshake
// messages, key exchange, key schedule, and the state machine) so that
// none of those packages need to import each other just to agree on what
// a ContentType or NamedGroup is.
package wire

import "fmt"

// ProtocolVersion is the (major, minor) pair used on the wire.
type ProtocolVersion uint16

const (
	VersionSSL30 ProtocolVersion = 0x0300
	VersionTLS10 ProtocolVersion = 0x0301
	VersionTLS11 ProtocolVersion = 0x0302
	VersionTLS12 ProtocolVersion = 0x0303
	VersionTLS13 ProtocolVersion = 0x0304
)

func (v ProtocolVersion) String() string {
	switch v {
	case VersionSSL30:
		return "SSL3.0"
	case VersionTLS10:
		return "TLS1.0"
	case VersionTLS11:
		return "TLS1.1"
	case VersionTLS12:
		return "TLS1.2"
	case VersionTLS13:
		return "TLS1.3"
	default:
		return fmt.Sprintf("0x%04x", uint16(v))
	}
}

// ContentType identifies the payload carried by a record.
type ContentType uint8

const (
	ContentTypeChangeCipherSpec ContentType = 20
	ContentTypeAlert            ContentType = 21
	ContentTypeHandshake        ContentType = 22
	ContentTypeApplicationData  ContentType = 23
	ContentTypeHeartbeat        ContentType = 24
)

func (c ContentType) String() string {
	switch c {
	case ContentTypeChangeCipherSpec:
		return "change_cipher_spec"
	case ContentTypeAlert:
		return "alert"
	case ContentTypeHandshake:
		return "handshake"
	case ContentTypeApplicationData:
		return "application_data"
	case ContentTypeHeartbeat:
		return "heartbeat"
	default:
		return fmt.Sprintf("content_type(%d)", uint8(c))
	}
}

// HandshakeType identifies a handshake message per RFC 5246/8446.
type HandshakeType uint8

const (
	HandshakeTypeHelloRequest        HandshakeType = 0
	HandshakeTypeClientHello         HandshakeType = 1
	HandshakeTypeServerHello         HandshakeType = 2
	HandshakeTypeNewSessionTicket    HandshakeType = 4
	HandshakeTypeEndOfEarlyData      HandshakeType = 5
	HandshakeTypeEncryptedExtensions HandshakeType = 8
	HandshakeTypeCertificate         HandshakeType = 11
	HandshakeTypeServerKeyExchange   HandshakeType = 12
	HandshakeTypeCertificateRequest  HandshakeType = 13
	HandshakeTypeServerHelloDone     HandshakeType = 14
	HandshakeTypeCertificateVerify   HandshakeType = 15
	HandshakeTypeClientKeyExchange   HandshakeType = 16
	HandshakeTypeFinished            HandshakeType = 20
	HandshakeTypeCertificateStatus   HandshakeType = 22
	HandshakeTypeKeyUpdate           HandshakeType = 24
	HandshakeTypeMessageHash         HandshakeType = 254
)

func (h HandshakeType) String() string {
	switch h {
	case HandshakeTypeHelloRequest:
		return "hello_request"
	case HandshakeTypeClientHello:
		return "client_hello"
	case HandshakeTypeServerHello:
		return "server_hello"
	case HandshakeTypeNewSessionTicket:
		return "new_session_ticket"
	case HandshakeTypeEndOfEarlyData:
		return "end_of_early_data"
	case HandshakeTypeEncryptedExtensions:
		return "encrypted_extensions"
	case HandshakeTypeCertificate:
		return "certificate"
	case HandshakeTypeServerKeyExchange:
		return "server_key_exchange"
	case HandshakeTypeCertificateRequest:
		return "certificate_request"
	case HandshakeTypeServerHelloDone:
		return "server_hello_done"
	case HandshakeTypeCertificateVerify:
		return "certificate_verify"
	case HandshakeTypeClientKeyExchange:
		return "client_key_exchange"
	case HandshakeTypeFinished:
		return "finished"
	case HandshakeTypeCertificateStatus:
		return "certificate_status"
	case HandshakeTypeKeyUpdate:
		return "key_update"
	case HandshakeTypeMessageHash:
		return "message_hash"
	default:
		return fmt.Sprintf("handshake_type(%d)", uint8(h))
	}
}

// ExtensionType identifies a ClientHello/ServerHello/... extension.
type ExtensionType uint16

const (
	ExtServerName                  ExtensionType = 0
	ExtStatusRequest               ExtensionType = 5
	ExtSupportedGroups             ExtensionType = 10
	ExtECPointFormats              ExtensionType = 11
	ExtSignatureAlgorithms         ExtensionType = 13
	ExtHeartbeat                   ExtensionType = 15
	ExtALPN                        ExtensionType = 16
	ExtCompressCertificate         ExtensionType = 27
	ExtRecordSizeLimit             ExtensionType = 28
	ExtSessionTicket               ExtensionType = 35
	ExtPreSharedKey                ExtensionType = 41
	ExtEarlyData                   ExtensionType = 42
	ExtSupportedVersions           ExtensionType = 43
	ExtCookie                      ExtensionType = 44
	ExtPSKKeyExchangeModes         ExtensionType = 45
	ExtCertificateAuthorities      ExtensionType = 47
	ExtPostHandshakeAuth           ExtensionType = 49
	ExtSignatureAlgorithmsCert     ExtensionType = 50
	ExtKeyShare                    ExtensionType = 51
	ExtRenegotiationInfo           ExtensionType = 0xff01
	ExtExtendedMasterSecret        ExtensionType = 23
	ExtEncryptThenMAC              ExtensionType = 22
	ExtClientHelloPadding          ExtensionType = 21
)

// NamedGroup identifies a key-exchange group (RFC 8446 §4.2.7 plus the
// hybrid post-quantum groups this engine adds).
type NamedGroup uint16

const (
	Secp256r1 NamedGroup = 0x0017
	Secp384r1 NamedGroup = 0x0018
	Secp521r1 NamedGroup = 0x0019

	X25519 NamedGroup = 0x001d
	X448   NamedGroup = 0x001e

	Ffdhe2048 NamedGroup = 0x0100
	Ffdhe3072 NamedGroup = 0x0101
	Ffdhe4096 NamedGroup = 0x0102
	Ffdhe6144 NamedGroup = 0x0103
	Ffdhe8192 NamedGroup = 0x0104

	X25519Mlkem768     NamedGroup = 0x11ec
	Secp256r1Mlkem768  NamedGroup = 0x11eb
	Secp384r1Mlkem1024 NamedGroup = 0x11ed
)

func (g NamedGroup) String() string {
	switch g {
	case X25519:
		return "x25519"
	case X448:
		return "x448"
	case Secp256r1:
		return "secp256r1"
	case Secp384r1:
		return "secp384r1"
	case Secp521r1:
		return "secp521r1"
	case Ffdhe2048:
		return "ffdhe2048"
	case Ffdhe3072:
		return "ffdhe3072"
	case Ffdhe4096:
		return "ffdhe4096"
	case Ffdhe6144:
		return "ffdhe6144"
	case Ffdhe8192:
		return "ffdhe8192"
	case X25519Mlkem768:
		return "x25519_mlkem768"
	case Secp256r1Mlkem768:
		return "secp256r1_mlkem768"
	case Secp384r1Mlkem1024:
		return "secp384r1_mlkem1024"
	default:
		return fmt.Sprintf("named_group(0x%04x)", uint16(g))
	}
}

// IsHybrid reports whether the group composes a classical DH group with a
// post-quantum KEM.
func (g NamedGroup) IsHybrid() bool {
	switch g {
	case X25519Mlkem768, Secp256r1Mlkem768, Secp384r1Mlkem1024:
		return true
	default:
		return false
	}
}

// IsFFDHE reports whether the group is a finite-field DHE group.
func (g NamedGroup) IsFFDHE() bool {
	switch g {
	case Ffdhe2048, Ffdhe3072, Ffdhe4096, Ffdhe6144, Ffdhe8192:
		return true
	default:
		return false
	}
}

// SignatureScheme is the RFC 8446 §4.2.3 signature algorithm enum.
type SignatureScheme uint16

const (
	PKCS1WithSHA256 SignatureScheme = 0x0401
	PKCS1WithSHA384 SignatureScheme = 0x0501
	PKCS1WithSHA512 SignatureScheme = 0x0601

	ECDSAWithP256AndSHA256 SignatureScheme = 0x0403
	ECDSAWithP384AndSHA384 SignatureScheme = 0x0503
	ECDSAWithP521AndSHA512 SignatureScheme = 0x0603

	PSSWithSHA256 SignatureScheme = 0x0804
	PSSWithSHA384 SignatureScheme = 0x0805
	PSSWithSHA512 SignatureScheme = 0x0806

	Ed25519 SignatureScheme = 0x0807
	Ed448   SignatureScheme = 0x0808

	PKCS1WithSHA1 SignatureScheme = 0x0201
	ECDSAWithSHA1 SignatureScheme = 0x0203
)

// AlertKind enumerates every alert description this engine can send or
// receive. Closed set: unrecognized wire values are mapped to the
// nearest fatal kind at the point of decode, never invented elsewhere.
type AlertKind uint8

const (
	AlertCloseNotify                 AlertKind = 0
	AlertUnexpectedMessage           AlertKind = 10
	AlertBadRecordMAC                AlertKind = 20
	AlertRecordOverflow              AlertKind = 22
	AlertHandshakeFailure            AlertKind = 40
	AlertBadCertificate              AlertKind = 42
	AlertUnsupportedCertificate      AlertKind = 43
	AlertCertificateRevoked          AlertKind = 44
	AlertCertificateExpired          AlertKind = 45
	AlertCertificateUnknown          AlertKind = 46
	AlertIllegalParameter            AlertKind = 47
	AlertUnknownCA                   AlertKind = 48
	AlertAccessDenied                AlertKind = 49
	AlertDecodeError                 AlertKind = 50
	AlertDecryptError                AlertKind = 51
	AlertProtocolVersion             AlertKind = 70
	AlertInsufficientSecurity        AlertKind = 71
	AlertInternalError               AlertKind = 80
	AlertUserCanceled                AlertKind = 90
	AlertNoRenegotiation             AlertKind = 100
	AlertMissingExtension            AlertKind = 109
	AlertUnsupportedExtension        AlertKind = 110
	AlertUnrecognizedName            AlertKind = 112
	AlertBadCertificateStatusResponse AlertKind = 113
	AlertUnknownPSKIdentity          AlertKind = 115
	AlertCertificateRequired         AlertKind = 116
	AlertNoApplicationProtocol       AlertKind = 120
)

var alertNames = map[AlertKind]string{
	AlertCloseNotify:                  "close_notify",
	AlertUnexpectedMessage:            "unexpected_message",
	AlertBadRecordMAC:                 "bad_record_mac",
	AlertRecordOverflow:               "record_overflow",
	AlertHandshakeFailure:             "handshake_failure",
	AlertBadCertificate:               "bad_certificate",
	AlertUnsupportedCertificate:       "unsupported_certificate",
	AlertCertificateRevoked:           "certificate_revoked",
	AlertCertificateExpired:           "certificate_expired",
	AlertCertificateUnknown:           "certificate_unknown",
	AlertIllegalParameter:             "illegal_parameter",
	AlertUnknownCA:                    "unknown_ca",
	AlertAccessDenied:                 "access_denied",
	AlertDecodeError:                  "decode_error",
	AlertDecryptError:                 "decrypt_error",
	AlertProtocolVersion:              "protocol_version",
	AlertInsufficientSecurity:         "insufficient_security",
	AlertInternalError:                "internal_error",
	AlertUserCanceled:                 "user_canceled",
	AlertNoRenegotiation:              "no_renegotiation",
	AlertMissingExtension:             "missing_extension",
	AlertUnsupportedExtension:         "unsupported_extension",
	AlertUnrecognizedName:             "unrecognized_name",
	AlertBadCertificateStatusResponse: "bad_certificate_status_response",
	AlertUnknownPSKIdentity:           "unknown_psk_identity",
	AlertCertificateRequired:          "certificate_required",
	AlertNoApplicationProtocol:        "no_application_protocol",
}

func (a AlertKind) String() string {
	if name, ok := alertNames[a]; ok {
		return name
	}
	return fmt.Sprintf("alert(%d)", uint8(a))
}

// IsWarning reports whether this alert is warning-level and, on its own,
// does not terminate the connection.
func (a AlertKind) IsWarning() bool {
	switch a {
	case AlertCloseNotify, AlertUserCanceled, AlertNoRenegotiation:
		return true
	default:
		return false
	}
}

// MaxPlaintextLen is the largest legal plaintext record payload.
const MaxPlaintextLen = 1 << 14

// MaxCiphertextLen is the largest legal protected record payload.
const MaxCiphertextLen = MaxPlaintextLen + 2048

// Downgrade sentinels appended to ServerHello.random, RFC 8446 §4.1.3.
var (
	DowngradeCanaryTLS12 = [8]byte{0x44, 0x4f, 0x57, 0x4e, 0x47, 0x52, 0x44, 0x01}
	DowngradeCanaryTLS11 = [8]byte{0x44, 0x4f, 0x57, 0x4e, 0x47, 0x52, 0x44, 0x00}
)

// HelloRetryRequestRandom is the fixed ServerHello.random marking an HRR.
var HelloRetryRequestRandom = [32]byte{
	0xCF, 0x21, 0xAD, 0x74, 0xE5, 0x9A, 0x61, 0x11, 0xBE, 0x1D, 0x8C, 0x02, 0x1E, 0x65, 0xB8, 0x91,
	0xC2, 0xA2, 0x11, 0x16, 0x7A, 0xBB, 0x8C, 0x5E, 0x07, 0x9E, 0x09, 0xE2, 0xC8, 0xA8, 0x33, 0x9C,
}

// Role identifies which side of the handshake a Conn plays.
type Role int

const (
	RoleClient Role = iota
	RoleServer
)

// ConnState is the coarse connection lifecycle.
type ConnState int

const (
	StateIdle ConnState = iota
	StateHandshaking
	StateEstablished
	StateClosing
	StateClosed
	StateFailed
)

func (s ConnState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateEstablished:
		return "ESTABLISHED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
