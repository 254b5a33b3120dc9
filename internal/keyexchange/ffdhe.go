package keyexchange

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"

	"github.com/insinfo/tlslite-sub007/wire"
)

const (
	ffdheMinKeySize = 2048
	ffdheMaxKeySize = 8192
)

var bigTwo = big.NewInt(2)
var bigOne = big.NewInt(1)

// ffdhe2048Hex is the RFC 7919 ffdhe2048 registered group modulus; the
// generator for every RFC 7919 group is 2. This is the one FFDHE group
// this package pins a constant for. The larger registered groups
// (ffdhe3072 and up) have no parameters here: offered or answered as
// named groups they fail with errNoFFDHEParams. A classic TLS 1.2 DHE
// prime of those sizes is still accepted by DHEOfferWithPrime when it
// passes the safe-prime and size-range checks below.
const ffdhe2048Hex = "FFFFFFFFFFFFFFFFADF85458A2BB4A9AAFDC5620273D3CF1D8B9C583CE2D3695A9E13641146433FBCC939DCE249B3EF97D2FE363630C75D8F681B202AEC4617AD3DF1ED5D5FD65612433F51F5F066ED0856365553DED1AF3B557135E7F57C935984F0C70E0E68B77E2A689DAF3EFE8721DF158A136ADE73530ACCA4F483A797ABC0AB182B324FB61D108A94BB2C8E3FBB96ADAB760D7F4681D4F42A3DE394DF4AE56EDE76372BB190B07A7C8EE0A6D709E02FCE1CDF7E2ECC03404CD28342F619172FE9CE98583FF8E4F1232EEF28183C3FE3B1B4C6FAD733BB5FCBC2EC22005C58EF1837D1683B2C6F34A26C1B2EFFA886B423861285C97FFFFFFFFFFFFFFFF"

var ffdheGroups = map[wire.NamedGroup]*big.Int{
	wire.Ffdhe2048: mustHexPrime(ffdhe2048Hex),
}

func mustHexPrime(s string) *big.Int {
	p, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("keyexchange: invalid ffdhe constant")
	}
	return p
}

// SafePrime reports whether p is a safe prime: p is prime and (p-1)/2 is
// also prime. Used both to validate a server-sent classic (p,g,Y) in
// TLS 1.2 DHE and to admit registered FFDHE groups this package has no
// pinned constant for.
func SafePrime(p *big.Int) bool {
	if !p.ProbablyPrime(32) {
		return false
	}
	q := new(big.Int).Sub(p, bigOne)
	q.Div(q, bigTwo)
	return q.ProbablyPrime(32)
}

// FFDHEGroupParams exposes a registered group's (p, g) to the TLS 1.2
// server, which must put them explicitly on the wire in its
// ServerKeyExchange (unlike TLS 1.3, where only the group ID travels).
func FFDHEGroupParams(group wire.NamedGroup) (p, g *big.Int, ok bool) {
	return ffdheGroupParams(group)
}

// DHEComplete finishes a classic (p,g,Y) DHE exchange begun with
// DHEOfferWithPrime, bypassing the NamedGroup dispatch (classic DHE has
// no group ID).
func DHEComplete(state *ClientState, peerShare []byte) ([]byte, error) {
	return ffdheClientComplete(state, peerShare)
}

// ffdheGroupParams returns (p, g) for a TLS 1.3 named FFDHE group.
func ffdheGroupParams(group wire.NamedGroup) (*big.Int, *big.Int, bool) {
	if p, ok := ffdheGroups[group]; ok {
		return p, bigTwo, true
	}
	// Not pinned: named groups other than ffdhe2048 have no parameters
	// here, and the callers report errNoFFDHEParams. Classic DHE never
	// reaches this lookup; its p and g arrive on the wire.
	return nil, nil, false
}

var errNoFFDHEParams = errors.New("keyexchange: no parameters for ffdhe group")

func ffdheClientOffer(group wire.NamedGroup, rnd io.Reader) ([]byte, *ClientState, error) {
	p, g, ok := ffdheGroupParams(group)
	if !ok {
		return nil, nil, errNoFFDHEParams
	}
	return ffdheOfferWithParams(group, p, g, rnd)
}

// DHEOfferWithPrime is the TLS 1.2 classic-DHE entry point: the server
// chooses arbitrary (p, g) and the client must validate them before
// using them.
func DHEOfferWithPrime(p, g *big.Int, rnd io.Reader) ([]byte, *ClientState, error) {
	bits := p.BitLen()
	if bits < ffdheMinKeySize || bits > ffdheMaxKeySize {
		return nil, nil, errors.New("keyexchange: ffdhe prime outside allowed key-size range")
	}
	if !isRegisteredPrime(p) && !SafePrime(p) {
		return nil, nil, errors.New("keyexchange: ffdhe prime failed safe-prime check")
	}
	return ffdheOfferWithParams(0, p, g, rnd)
}

func isRegisteredPrime(p *big.Int) bool {
	for _, known := range ffdheGroups {
		if known.Cmp(p) == 0 {
			return true
		}
	}
	return false
}

type dheState struct {
	p, g, x *big.Int
}

func ffdheOfferWithParams(group wire.NamedGroup, p, g *big.Int, rnd io.Reader) ([]byte, *ClientState, error) {
	x, err := rand.Int(rnd, p)
	if err != nil {
		return nil, nil, err
	}
	d := &dheState{p: p, g: g, x: x}
	y := new(big.Int).Exp(g, x, p)
	share := leftPad(y.Bytes(), (p.BitLen()+7)/8)
	return share, &ClientState{Group: group, classicalPriv: d}, nil
}

func ffdheServerComplete(group wire.NamedGroup, clientShare []byte, rnd io.Reader) ([]byte, []byte, error) {
	p, g, ok := ffdheGroupParams(group)
	if !ok {
		return nil, nil, errNoFFDHEParams
	}
	clientY := new(big.Int).SetBytes(clientShare)
	y, state, err := ffdheOfferWithParams(group, p, g, rnd)
	if err != nil {
		return nil, nil, err
	}
	secret, err := ffdheShared(state, p, clientY)
	if err != nil {
		return nil, nil, err
	}
	return y, secret, nil
}

func ffdheClientComplete(state *ClientState, serverShare []byte) ([]byte, error) {
	d := state.classicalPriv.(*dheState)
	serverY := new(big.Int).SetBytes(serverShare)
	return ffdheShared(state, d.p, serverY)
}

func ffdheShared(state *ClientState, p *big.Int, peerY *big.Int) ([]byte, error) {
	d := state.classicalPriv.(*dheState)
	if peerY.Cmp(bigOne) <= 0 || peerY.Cmp(new(big.Int).Sub(p, bigOne)) >= 0 {
		return nil, ErrInvalidPeerShare
	}
	z := new(big.Int).Exp(peerY, d.x, p)
	if z.Sign() == 0 {
		return nil, ErrInvalidPeerShare
	}
	return leftPad(z.Bytes(), (p.BitLen()+7)/8), nil
}

func leftPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out[size-len(b):], b)
	return out
}
