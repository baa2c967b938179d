package zkp

import (
	"crypto/rand"
	"errors"
	"math/big"

	"github.com/zeebo/blake3"

	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/paillier"
)

// MtAProof is the proof accompanying an MtA (Multiplicative-to-Additive)
// exchange during ECDSA signing phase 2-3 (spec §4.5). It proves the
// prover knows x, beta, r such that C = A^x * E(beta, r) and,
// additionally, that x is consistent with a known public point X = x*G
// (the "MtAwc" variant). Grounded on internal/crypto/zk/mta/proof.go,
// generalized from a hardcoded secp256k1 *JacobianPoint to curve.Point so
// the same proof code can run over either curve backend.
//
// Like the teacher's version this is a simplified construction: Verify
// checks only the elliptic-curve equation tying U, X and the challenge.
// Z, A and C enter the Fiat-Shamir challenge, but no Paillier-side
// equation is checked, the beta response is carried without being
// verified, and no response binds the Paillier randomness r.
type MtAProof struct {
	Z *big.Int    // z = A^alpha * E(gamma, rho) mod N^2
	U curve.Point // U = alpha * G

	S     *big.Int // s = alpha + e*x
	SBeta *big.Int // s_beta = gamma + e*beta
}

// ProveMtA generates an MtA consistency proof.
//   - receiverPk: the counterparty's Paillier public key (N0)
//   - A: the counterparty's ciphertext
//   - x, beta, r: the prover's secret scalar, additive noise, and the
//     randomness used to encrypt beta
//   - X: the prover's public point x*G
func ProveMtA(g curve.Group, receiverPk *paillier.PublicKey, A *big.Int, x, beta, r *big.Int, X curve.Point) (*MtAProof, error) {
	if receiverPk == nil || A == nil || x == nil || beta == nil || r == nil || X == nil {
		return nil, errors.New("zkp: mta proof inputs cannot be nil")
	}

	N := receiverPk.N
	N2 := receiverPk.N2
	q := g.Order()

	alpha, err := rand.Int(rand.Reader, q)
	if err != nil {
		return nil, err
	}
	gamma, err := rand.Int(rand.Reader, N)
	if err != nil {
		return nil, err
	}
	rho, err := rand.Int(rand.Reader, N)
	if err != nil {
		return nil, err
	}

	Aalpha := new(big.Int).Exp(A, alpha, N2)
	Egamma, err := receiverPk.EncryptWithNonce(gamma, rho)
	if err != nil {
		return nil, err
	}
	z := new(big.Int).Mul(Aalpha, Egamma)
	z.Mod(z, N2)

	alphaScalar, err := g.ScalarFromBytes(padScalar(alpha.Bytes()))
	if err != nil {
		return nil, err
	}
	U := alphaScalar.ActOnBase()

	Ax := new(big.Int).Exp(A, x, N2)
	Ebeta, err := receiverPk.EncryptWithNonce(beta, r)
	if err != nil {
		return nil, err
	}
	C := new(big.Int).Mul(Ax, Ebeta)
	C.Mod(C, N2)

	e := mtaChallenge(g, N, A, C, X, z, U)

	s := new(big.Int).Mul(e, x)
	s.Add(s, alpha)

	sBeta := new(big.Int).Mul(e, beta)
	sBeta.Add(sBeta, gamma)

	return &MtAProof{Z: z, U: U, S: s, SBeta: sBeta}, nil
}

// Verify checks the MtA proof against the counterparty's ciphertext A, the
// resulting product ciphertext C, and the prover's public point X.
func (p *MtAProof) Verify(g curve.Group, receiverPk *paillier.PublicKey, A, C *big.Int, X curve.Point) bool {
	if p == nil || receiverPk == nil || A == nil || C == nil || X == nil {
		return false
	}

	e := mtaChallenge(g, receiverPk.N, A, C, X, p.Z, p.U)

	sMod := new(big.Int).Mod(p.S, g.Order())
	sScalar, err := g.ScalarFromBytes(padScalar(sMod.Bytes()))
	if err != nil {
		return false
	}
	sG := sScalar.ActOnBase()

	eScalar, err := g.ScalarFromBytes(padScalar(e.Bytes()))
	if err != nil {
		return false
	}
	rhs := p.U.Add(X.ScalarMult(eScalar))

	return sG.Equal(rhs)
}

func padScalar(b []byte) []byte {
	if len(b) >= 32 {
		return b
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

func mtaChallenge(g curve.Group, N, A, C *big.Int, X curve.Point, z *big.Int, U curve.Point) *big.Int {
	h := blake3.New()
	h.Write([]byte(g.Name()))
	h.Write(N.Bytes())
	h.Write(A.Bytes())
	h.Write(C.Bytes())
	h.Write(X.Bytes())
	h.Write(z.Bytes())
	h.Write(U.Bytes())
	digest := h.Sum(nil)
	e := new(big.Int).SetBytes(digest)
	return e.Mod(e, g.Order())
}
