package ot

import (
	"crypto/rand"
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

const pointLen = 33 // compressed secp256k1 point

const (
	roleZero byte = 0
	roleOne  byte = 1
)

func randomScalar() (*secp256k1.ModNScalar, error) {
	for {
		var buf [32]byte
		if _, err := rand.Read(buf[:]); err != nil {
			return nil, err
		}
		var s secp256k1.ModNScalar
		if overflow := s.SetBytes(&buf); overflow == 0 && !s.IsZero() {
			return &s, nil
		}
	}
}

func scalarBaseMul(s *secp256k1.ModNScalar) secp256k1.JacobianPoint {
	var p secp256k1.JacobianPoint
	secp256k1.ScalarBaseMultNonConst(s, &p)
	p.ToAffine()
	return p
}

func scalarMul(s *secp256k1.ModNScalar, point *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	var p secp256k1.JacobianPoint
	secp256k1.ScalarMultNonConst(s, point, &p)
	p.ToAffine()
	return p
}

func addPoints(a, b *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	var p secp256k1.JacobianPoint
	secp256k1.AddNonConst(a, b, &p)
	p.ToAffine()
	return p
}

func negatePoint(p *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	q := *p
	q.Y.Negate(1).Normalize()
	return q
}

func subPoints(a, b *secp256k1.JacobianPoint) secp256k1.JacobianPoint {
	nb := negatePoint(b)
	return addPoints(a, &nb)
}

func encodePoint(p *secp256k1.JacobianPoint) []byte {
	pub := secp256k1.NewPublicKey(&p.X, &p.Y)
	return pub.SerializeCompressed()
}

func decodePoint(buf []byte) (secp256k1.JacobianPoint, error) {
	pub, err := secp256k1.ParsePubKey(buf)
	if err != nil {
		return secp256k1.JacobianPoint{}, err
	}
	var jp secp256k1.JacobianPoint
	pub.AsJacobian(&jp)
	return jp, nil
}

// deriveBit hashes a role-tagged Diffie-Hellman point down to a single key
// bit. role distinguishes the "choice=0" and "choice=1" key derivations that
// share the same point algebra (see ot.go), so the two never collide.
func deriveBit(role byte, lane int, p *secp256k1.JacobianPoint) byte {
	h := sha256.New()
	h.Write([]byte{role})
	var idx [8]byte
	for i := 0; i < 8; i++ {
		idx[i] = byte(lane >> (8 * i))
	}
	h.Write(idx[:])
	h.Write(encodePoint(p))
	sum := h.Sum(nil)
	return sum[len(sum)-1] & 1
}
