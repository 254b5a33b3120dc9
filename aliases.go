package tls

import (
	"github.com/insinfo/tlslite-sub007/internal/cipherstate"
	"github.com/insinfo/tlslite-sub007/wire"
)

// Named groups, re-exported so callers configure a Config without
// importing wire.
const (
	Secp256r1 = wire.Secp256r1
	Secp384r1 = wire.Secp384r1
	Secp521r1 = wire.Secp521r1

	X25519 = wire.X25519
	X448   = wire.X448

	Ffdhe2048 = wire.Ffdhe2048
	Ffdhe3072 = wire.Ffdhe3072
	Ffdhe4096 = wire.Ffdhe4096
	Ffdhe6144 = wire.Ffdhe6144
	Ffdhe8192 = wire.Ffdhe8192

	X25519Mlkem768     = wire.X25519Mlkem768
	Secp256r1Mlkem768  = wire.Secp256r1Mlkem768
	Secp384r1Mlkem1024 = wire.Secp384r1Mlkem1024
)

// Signature schemes (RFC 8446 §4.2.3).
const (
	PKCS1WithSHA256 = wire.PKCS1WithSHA256
	PKCS1WithSHA384 = wire.PKCS1WithSHA384
	PKCS1WithSHA512 = wire.PKCS1WithSHA512

	ECDSAWithP256AndSHA256 = wire.ECDSAWithP256AndSHA256
	ECDSAWithP384AndSHA384 = wire.ECDSAWithP384AndSHA384
	ECDSAWithP521AndSHA512 = wire.ECDSAWithP521AndSHA512

	PSSWithSHA256 = wire.PSSWithSHA256
	PSSWithSHA384 = wire.PSSWithSHA384
	PSSWithSHA512 = wire.PSSWithSHA512

	Ed25519 = wire.Ed25519
	Ed448   = wire.Ed448
)

// Alert kinds.
const (
	AlertCloseNotify                  = wire.AlertCloseNotify
	AlertUnexpectedMessage            = wire.AlertUnexpectedMessage
	AlertBadRecordMAC                 = wire.AlertBadRecordMAC
	AlertRecordOverflow               = wire.AlertRecordOverflow
	AlertHandshakeFailure             = wire.AlertHandshakeFailure
	AlertBadCertificate               = wire.AlertBadCertificate
	AlertUnsupportedCertificate       = wire.AlertUnsupportedCertificate
	AlertCertificateRevoked           = wire.AlertCertificateRevoked
	AlertCertificateExpired           = wire.AlertCertificateExpired
	AlertCertificateUnknown           = wire.AlertCertificateUnknown
	AlertIllegalParameter             = wire.AlertIllegalParameter
	AlertUnknownCA                    = wire.AlertUnknownCA
	AlertAccessDenied                 = wire.AlertAccessDenied
	AlertDecodeError                  = wire.AlertDecodeError
	AlertDecryptError                 = wire.AlertDecryptError
	AlertProtocolVersion              = wire.AlertProtocolVersion
	AlertInsufficientSecurity         = wire.AlertInsufficientSecurity
	AlertInternalError                = wire.AlertInternalError
	AlertUserCanceled                 = wire.AlertUserCanceled
	AlertNoRenegotiation              = wire.AlertNoRenegotiation
	AlertMissingExtension             = wire.AlertMissingExtension
	AlertUnsupportedExtension         = wire.AlertUnsupportedExtension
	AlertUnrecognizedName             = wire.AlertUnrecognizedName
	AlertBadCertificateStatusResponse = wire.AlertBadCertificateStatusResponse
	AlertUnknownPSKIdentity           = wire.AlertUnknownPSKIdentity
	AlertCertificateRequired          = wire.AlertCertificateRequired
	AlertNoApplicationProtocol        = wire.AlertNoApplicationProtocol
)

// Cipher suite IDs, re-exported from cipherstate's IANA table.
const (
	TLS_RSA_WITH_AES_128_CBC_SHA            = cipherstate.TLS_RSA_WITH_AES_128_CBC_SHA
	TLS_RSA_WITH_AES_256_CBC_SHA            = cipherstate.TLS_RSA_WITH_AES_256_CBC_SHA
	TLS_RSA_WITH_AES_128_CBC_SHA256         = cipherstate.TLS_RSA_WITH_AES_128_CBC_SHA256
	TLS_RSA_WITH_AES_128_GCM_SHA256         = cipherstate.TLS_RSA_WITH_AES_128_GCM_SHA256
	TLS_RSA_WITH_AES_256_GCM_SHA384         = cipherstate.TLS_RSA_WITH_AES_256_GCM_SHA384
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA    = cipherstate.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA
	TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA    = cipherstate.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA      = cipherstate.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA
	TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA      = cipherstate.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA
	TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256 = cipherstate.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA256
	TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256   = cipherstate.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA256
	TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256   = cipherstate.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256
	TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256 = cipherstate.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256
	TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384   = cipherstate.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384
	TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384 = cipherstate.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384
	TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305    = cipherstate.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305
	TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305  = cipherstate.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305

	TLS_AES_128_GCM_SHA256       = cipherstate.TLS_AES_128_GCM_SHA256
	TLS_AES_256_GCM_SHA384       = cipherstate.TLS_AES_256_GCM_SHA384
	TLS_CHACHA20_POLY1305_SHA256 = cipherstate.TLS_CHACHA20_POLY1305_SHA256
)
