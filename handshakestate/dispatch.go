package handshakestate

import (
	"go.uber.org/zap"

	"github.com/insinfo/tlslite-sub007/internal/defragment"
	"github.com/insinfo/tlslite-sub007/messages"
	"github.com/insinfo/tlslite-sub007/record"
	"github.com/insinfo/tlslite-sub007/wire"
)

// RunClient drives a full client handshake over layer and returns the
// negotiated result. The version split happens up front: a client capped
// at TLS 1.2 never sends supported_versions, a TLS 1.3 client offers
// only 0x0304 there and relies on the downgrade sentinel for protection.
func RunClient(opts *Options, layer *record.Layer) (*Result, error) {
	log := opts.logger()
	var res *Result
	var err error
	if opts.maxV() >= wire.VersionTLS13 {
		res, err = runClient13(opts, layer)
	} else {
		res, err = runClient12(opts, layer)
	}
	if err != nil {
		log.Debug("client handshake failed", zap.Error(err))
		return nil, err
	}
	log.Debug("client handshake negotiated",
		zap.Stringer("version", res.Version), zap.Bool("resumed", res.Resumed))
	return res, nil
}

// RunServer reads the first flight off the wire — up-converting an
// SSLv2-framed ClientHello if one arrives — negotiates the
// version, and hands off to the matching state machine.
func RunServer(opts *Options, layer *record.Layer) (*Result, error) {
	io := newHandshakeIO(layer, nil)

	var msg defragment.Message
	wasSSLv2 := false
	if v2, body, err := layer.ReadSSLv2Candidate(); err != nil {
		return nil, err
	} else if v2 {
		m, err := defragment.UpconvertSSLv2ClientHello(body)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "sslv2 client hello: %v", err)
		}
		msg = m
		wasSSLv2 = true
	} else {
		m, err := io.readSpecificMessage(wire.HandshakeTypeClientHello)
		if err != nil {
			return nil, err
		}
		msg = m
	}

	ch, err := messages.DecodeClientHello(msg.Body)
	if err != nil {
		return nil, errf(wire.AlertDecodeError, "ClientHello: %v", err)
	}

	var clientVersions []wire.ProtocolVersion
	if sv, ok := ch.Extensions.Get(wire.ExtSupportedVersions); ok {
		v, err := messages.DecodeSupportedVersionsClient(sv.Data)
		if err != nil {
			return nil, errf(wire.AlertDecodeError, "supported_versions: %v", err)
		}
		clientVersions = v
	}

	// An SSLv2-framed hello cannot legitimately carry extensions at all;
	// one claiming TLS 1.3 support is a forgery or corruption.
	if wasSSLv2 {
		for _, v := range clientVersions {
			if v == wire.VersionTLS13 {
				return nil, errf(wire.AlertProtocolVersion, "sslv2 framing with a TLS 1.3 supported_versions offer")
			}
		}
	}

	version, ok := negotiateServerVersion(clientVersions, ch.LegacyVersion, opts.minV(), opts.maxV())
	if !ok {
		return nil, errf(wire.AlertProtocolVersion, "no mutually supported protocol version")
	}

	opts.logger().Debug("server negotiated version",
		zap.Stringer("version", version), zap.Bool("sslv2_upconverted", wasSSLv2))

	if version == wire.VersionTLS13 {
		return runServer13(opts, layer, io, ch, msg.Raw)
	}
	// Stamp the downgrade sentinel whenever this server was willing to
	// speak 1.3 but is answering at 1.2.
	downgraded := opts.maxV() >= wire.VersionTLS13
	return runServer12(opts, layer, io, ch, msg.Raw, downgraded)
}

func (o *Options) minV() wire.ProtocolVersion {
	if o.MinVersion == 0 {
		return wire.VersionTLS12
	}
	return o.MinVersion
}

func (o *Options) maxV() wire.ProtocolVersion {
	if o.MaxVersion == 0 {
		return wire.VersionTLS13
	}
	return o.MaxVersion
}
