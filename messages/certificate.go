package messages

import "github.com/insinfo/tlslite-sub007/wire"

// CertificateEntry is one chain entry. Extensions is always empty under
// TLS 1.2 framing (which has no per-certificate extensions) and may
// carry OCSP/SCT data under TLS 1.3 framing.
type CertificateEntry struct {
	Data       []byte
	Extensions ExtensionList
}

// Certificate carries a certificate chain. RequestContext is always
// empty for the server's main Certificate message; it echoes the
// CertificateRequest's context for client-auth and post-handshake
// Certificate messages (RFC 8446 §4.4.2).
type Certificate struct {
	RequestContext []byte
	Entries        []CertificateEntry
}

// MarshalTLS13 encodes the TLS 1.3 Certificate framing: context +
// per-entry (data, extensions).
func (c Certificate) MarshalTLS13() []byte {
	var entries writer
	for _, e := range c.Entries {
		entries.vector24(e.Data)
		entries.raw(encodeExtensionList(e.Extensions))
	}
	var w writer
	w.vector8(c.RequestContext)
	w.vector24(entries.bytes())
	return header(wire.HandshakeTypeCertificate, w.bytes())
}

// MarshalTLS12 encodes the TLS 1.2 Certificate framing: a plain list of
// DER certificates with no request context or per-certificate extensions.
func (c Certificate) MarshalTLS12() []byte {
	var entries writer
	for _, e := range c.Entries {
		entries.vector24(e.Data)
	}
	var w writer
	w.vector24(entries.bytes())
	return header(wire.HandshakeTypeCertificate, w.bytes())
}

func DecodeCertificateTLS13(body []byte) (Certificate, error) {
	r := newReader(body)
	ctx, err := r.vector8()
	if err != nil {
		return Certificate{}, err
	}
	listBytes, err := r.vector24()
	if err != nil {
		return Certificate{}, err
	}
	lr := newReader(listBytes)
	var c Certificate
	c.RequestContext = append([]byte(nil), ctx...)
	for !lr.done() {
		data, err := lr.vector24()
		if err != nil {
			return Certificate{}, err
		}
		exts, err := decodeExtensionList(lr)
		if err != nil {
			return Certificate{}, err
		}
		c.Entries = append(c.Entries, CertificateEntry{Data: append([]byte(nil), data...), Extensions: exts})
	}
	return c, nil
}

func DecodeCertificateTLS12(body []byte) (Certificate, error) {
	r := newReader(body)
	listBytes, err := r.vector24()
	if err != nil {
		return Certificate{}, err
	}
	lr := newReader(listBytes)
	var c Certificate
	for !lr.done() {
		data, err := lr.vector24()
		if err != nil {
			return Certificate{}, err
		}
		c.Entries = append(c.Entries, CertificateEntry{Data: append([]byte(nil), data...)})
	}
	return c, nil
}

// CertificateRequest solicits client authentication. RFC 8446 §4.3.2
// carries it as a context + extensions (signature_algorithms,
// certificate_authorities); TLS 1.2's RFC 5246 §7.4.4 framing is
// produced separately by MarshalTLS12 since it has no extension list.
type CertificateRequest struct {
	RequestContext []byte
	Extensions     ExtensionList

	// TLS 1.2 only:
	CertificateTypes     []byte
	SupportedSignatures  []wire.SignatureScheme
	CertificateAuthorities [][]byte
}

func (cr CertificateRequest) MarshalTLS13() []byte {
	var w writer
	w.vector8(cr.RequestContext)
	w.raw(encodeExtensionList(cr.Extensions))
	return header(wire.HandshakeTypeCertificateRequest, w.bytes())
}

func DecodeCertificateRequestTLS13(body []byte) (CertificateRequest, error) {
	r := newReader(body)
	ctx, err := r.vector8()
	if err != nil {
		return CertificateRequest{}, err
	}
	exts, err := decodeExtensionList(r)
	if err != nil {
		return CertificateRequest{}, err
	}
	return CertificateRequest{RequestContext: append([]byte(nil), ctx...), Extensions: exts}, nil
}

func (cr CertificateRequest) MarshalTLS12() []byte {
	var w writer
	w.vector8(cr.CertificateTypes)
	var sigs writer
	for _, s := range cr.SupportedSignatures {
		sigs.u16(uint16(s))
	}
	w.vector16(sigs.bytes())
	var cas writer
	for _, ca := range cr.CertificateAuthorities {
		cas.vector16(ca)
	}
	w.vector16(cas.bytes())
	return header(wire.HandshakeTypeCertificateRequest, w.bytes())
}

func DecodeCertificateRequestTLS12(body []byte) (CertificateRequest, error) {
	r := newReader(body)
	types, err := r.vector8()
	if err != nil {
		return CertificateRequest{}, err
	}
	sigBytes, err := r.vector16()
	if err != nil {
		return CertificateRequest{}, err
	}
	caBytes, err := r.vector16()
	if err != nil {
		return CertificateRequest{}, err
	}
	var cr CertificateRequest
	cr.CertificateTypes = append([]byte(nil), types...)
	sr := newReader(sigBytes)
	for !sr.done() {
		s, err := sr.u16()
		if err != nil {
			return CertificateRequest{}, err
		}
		cr.SupportedSignatures = append(cr.SupportedSignatures, wire.SignatureScheme(s))
	}
	car := newReader(caBytes)
	for !car.done() {
		ca, err := car.vector16()
		if err != nil {
			return CertificateRequest{}, err
		}
		cr.CertificateAuthorities = append(cr.CertificateAuthorities, append([]byte(nil), ca...))
	}
	return cr, nil
}

// CertificateVerify carries the signature over the transcript proving
// possession of the private key for the just-sent certificate.
type CertificateVerify struct {
	Algorithm wire.SignatureScheme
	Signature []byte
}

func (cv CertificateVerify) Marshal() []byte {
	var w writer
	w.u16(uint16(cv.Algorithm))
	w.vector16(cv.Signature)
	return header(wire.HandshakeTypeCertificateVerify, w.bytes())
}

func DecodeCertificateVerify(body []byte) (CertificateVerify, error) {
	r := newReader(body)
	alg, err := r.u16()
	if err != nil {
		return CertificateVerify{}, err
	}
	sig, err := r.vector16()
	if err != nil {
		return CertificateVerify{}, err
	}
	return CertificateVerify{Algorithm: wire.SignatureScheme(alg), Signature: append([]byte(nil), sig...)}, nil
}

// CertificateStatus carries an OCSP response (RFC 6066 §8), preserved on
// the wire for the caller's CredentialStore to act on; this engine does
// not itself validate OCSP responses.
type CertificateStatus struct {
	StatusType byte // 1 = ocsp
	Response   []byte
}

func (cs CertificateStatus) Marshal() []byte {
	var w writer
	w.u8(cs.StatusType)
	w.vector24(cs.Response)
	return header(wire.HandshakeTypeCertificateStatus, w.bytes())
}

func DecodeCertificateStatus(body []byte) (CertificateStatus, error) {
	r := newReader(body)
	typ, err := r.u8()
	if err != nil {
		return CertificateStatus{}, err
	}
	resp, err := r.vector24()
	if err != nil {
		return CertificateStatus{}, err
	}
	return CertificateStatus{StatusType: typ, Response: append([]byte(nil), resp...)}, nil
}
