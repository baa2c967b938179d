// Package ecdsa implements GG20-style threshold ECDSA signing (spec
// §4.5): signer-vector agreement, SignKeys/MessageA, a pairwise MtA
// exchange (delta and sigma) with accompanying range/MtA consistency
// proofs, delta/R assembly, and the local-signature-share round that
// reconstructs and self-verifies the final (r, s) signature.
//
// Grounded on internal/protocol/sign/round_1.go through round_5.go's
// five-round shape (k_i/gamma_i generation, Paillier-encrypted MtA for
// delta_i/sigma_i, delta^-1*Gamma for R, s_i assembly, final ecdsa.Verify),
// generalized from the teacher's fixed party loop to a session.Messenger
// round trip and from raw *big.Int arithmetic to pkg/curve/pkg/vss, with
// pkg/zkp's RangeProof attached to round 1's ciphertext and MtAProof
// attached to each round 2 P2P ciphertext — proofs the teacher's simplified
// MtA omits entirely. See DESIGN.md for the Open Question decision on the
// full GG20 phase-5/phase-6 PDL-with-slack and ECDDH blame sub-protocols
// this engine does not separately implement.
package ecdsa

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	dcrec "github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"

	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/session"
	"github.com/gridlocknet/node-core/pkg/vss"
	"github.com/gridlocknet/node-core/pkg/zkp"
)

var g = secp256k1.Group

// Signature is the final reconstructed, locally-verified ECDSA signature.
// RecoveryID follows the standard convention: bit 0 is R's y parity, bit
// 1 is set when R.X overflowed the curve order during reduction (spec
// §4.5 phase 7 "Publish {r, s, recid}").
type Signature struct {
	R          *big.Int
	S          *big.Int
	RecoveryID byte
}

func hexOf(p curve.Point) string { return hex.EncodeToString(p.Bytes()) }

func pointFromHex(s string) (curve.Point, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return g.PointFromBytes(b)
}

type round1Msg struct {
	EncK       string          `json:"enc_k"`
	RangeProof *zkp.RangeProof `json:"range_proof"`
	GammaPoint string          `json:"gamma_point"`
}

// mtaProofWire mirrors zkp.MtAProof with its curve.Point field hex-encoded:
// curve.Point's concrete implementations carry only unexported fields, so
// the zkp type itself is not JSON-marshalable over the wire.
type mtaProofWire struct {
	Z     string `json:"z"`
	U     string `json:"u"`
	S     string `json:"s"`
	SBeta string `json:"s_beta"`
}

func toWireMtA(p *zkp.MtAProof) mtaProofWire {
	return mtaProofWire{Z: bigHex(p.Z), U: hexOf(p.U), S: bigHex(p.S), SBeta: bigHex(p.SBeta)}
}

func fromWireMtA(w mtaProofWire) (*zkp.MtAProof, error) {
	U, err := pointFromHex(w.U)
	if err != nil {
		return nil, err
	}
	return &zkp.MtAProof{Z: bigFromHex(w.Z), U: U, S: bigFromHex(w.S), SBeta: bigFromHex(w.SBeta)}, nil
}

type mtaMsg struct {
	CDelta     string       `json:"c_delta"`
	DeltaProof mtaProofWire `json:"delta_proof"`
	CSigma     string       `json:"c_sigma"`
	SigmaProof mtaProofWire `json:"sigma_proof"`
}

type deltaMsg struct {
	DeltaI string `json:"delta_i"`
}

type siMsg struct {
	Si string `json:"s_i"`
}

func bigHex(n *big.Int) string     { return hex.EncodeToString(n.Bytes()) }
func bigFromHex(s string) *big.Int { n, _ := new(big.Int).SetString(s, 16); return n }

// Run executes one party's side of threshold ECDSA signing for digest
// over the given keyshare, returning the fully reconstructed signature.
// signers is the agreed signer index set (spec §4.5 phase 0); it must
// contain at least share.Threshold entries, including m.SessionInfo().PartyIndex.
func Run(ctx context.Context, m session.Messenger, share *keyshare.ECDSAKeyShare, signers []int64, digest []byte) (*Signature, error) {
	info := m.SessionInfo()
	selfIdx := info.PartyIndex
	N := g.Order()

	lambda := curve.Lagrange(g, signers, selfIdx, 0)
	wi := lambda.Mul(share.Xi)

	ki, err := g.NewScalar()
	if err != nil {
		return nil, err
	}
	gammai, err := g.NewScalar()
	if err != nil {
		return nil, err
	}
	gammaPoint := gammai.ActOnBase()

	ownPK := share.PaillierSK.PublicKey
	encK, rK, err := ownPK.Encrypt(ki.BigInt())
	if err != nil {
		return nil, fmt.Errorf("sign phase 1: encrypt k_i: %w", err)
	}
	rangeProof, err := zkp.ProveRange(&ownPK, encK, ki.BigInt(), rK)
	if err != nil {
		return nil, fmt.Errorf("sign phase 1: range proof: %w", err)
	}

	if err := m.PublishBroadcast(ctx, "phase1", round1Msg{
		EncK:       bigHex(encK),
		RangeProof: rangeProof,
		GammaPoint: hexOf(gammaPoint),
	}); err != nil {
		return nil, err
	}
	phase1, err := m.CollectBroadcast(ctx, "phase1", 0)
	if err != nil {
		return nil, fmt.Errorf("sign phase 1: %w", err)
	}
	peerEncK := make(map[int64]*big.Int, len(phase1))
	peerGamma := make(map[int64]curve.Point, len(phase1))
	for idx, raw := range phase1 {
		var r1 round1Msg
		if err := json.Unmarshal(raw, &r1); err != nil {
			return nil, fmt.Errorf("sign phase 1: party %d: %w", idx, err)
		}
		peerPK, ok := share.PeerPaillierPK[idx]
		if idx == selfIdx {
			peerPK, ok = &ownPK, true
		}
		if !ok {
			return nil, fmt.Errorf("sign phase 1: party %d: no known paillier key", idx)
		}
		encKj := bigFromHex(r1.EncK)
		if err := peerPK.ValidateCiphertext(encKj); err != nil {
			return nil, fmt.Errorf("sign phase 1: party %d: invalid ciphertext: %w", idx, err)
		}
		if !r1.RangeProof.Verify(peerPK, encKj) {
			return nil, fmt.Errorf("sign phase 1: party %d: range proof failed", idx)
		}
		gp, err := pointFromHex(r1.GammaPoint)
		if err != nil {
			return nil, fmt.Errorf("sign phase 1: party %d: invalid gamma point: %w", idx, err)
		}
		peerEncK[idx] = encKj
		peerGamma[idx] = gp
	}

	betas := make(map[int64]*big.Int)
	nus := make(map[int64]*big.Int)
	for _, peerIdx := range signers {
		if peerIdx == selfIdx {
			continue
		}
		peerPK := share.PeerPaillierPK[peerIdx]
		encKj := peerEncK[peerIdx]

		betaIJ, err := rand.Int(rand.Reader, peerPK.N)
		if err != nil {
			return nil, err
		}
		betaRand, err := rand.Int(rand.Reader, peerPK.N)
		if err != nil {
			return nil, err
		}
		encBeta, err := peerPK.EncryptWithNonce(betaIJ, betaRand)
		if err != nil {
			return nil, err
		}
		cDelta := peerPK.Add(peerPK.Mul(encKj, gammai.BigInt()), encBeta)
		deltaProof, err := zkp.ProveMtA(g, peerPK, encKj, gammai.BigInt(), betaIJ, betaRand, gammaPoint)
		if err != nil {
			return nil, fmt.Errorf("sign phase 2: delta mta proof for %d: %w", peerIdx, err)
		}

		nuIJ, err := rand.Int(rand.Reader, peerPK.N)
		if err != nil {
			return nil, err
		}
		nuRand, err := rand.Int(rand.Reader, peerPK.N)
		if err != nil {
			return nil, err
		}
		encNu, err := peerPK.EncryptWithNonce(nuIJ, nuRand)
		if err != nil {
			return nil, err
		}
		wiPoint := wi.ActOnBase()
		cSigma := peerPK.Add(peerPK.Mul(encKj, wi.BigInt()), encNu)
		sigmaProof, err := zkp.ProveMtA(g, peerPK, encKj, wi.BigInt(), nuIJ, nuRand, wiPoint)
		if err != nil {
			return nil, fmt.Errorf("sign phase 2: sigma mta proof for %d: %w", peerIdx, err)
		}

		betas[peerIdx] = betaIJ
		nus[peerIdx] = nuIJ

		if err := m.PublishP2P(ctx, "phase2", peerIdx, mtaMsg{
			CDelta:     bigHex(cDelta),
			DeltaProof: toWireMtA(deltaProof),
			CSigma:     bigHex(cSigma),
			SigmaProof: toWireMtA(sigmaProof),
		}); err != nil {
			return nil, err
		}
	}
	phase2, err := m.CollectP2P(ctx, "phase2", 0)
	if err != nil {
		return nil, fmt.Errorf("sign phase 2: %w", err)
	}

	deltai := ki.Mul(gammai)
	sigmai := ki.Mul(wi)
	for idx, raw := range phase2 {
		var r2 mtaMsg
		if err := json.Unmarshal(raw, &r2); err != nil {
			return nil, fmt.Errorf("sign phase 3: party %d: %w", idx, err)
		}
		cDelta := bigFromHex(r2.CDelta)
		cSigma := bigFromHex(r2.CSigma)

		deltaProof, err := fromWireMtA(r2.DeltaProof)
		if err != nil {
			return nil, fmt.Errorf("sign phase 3: party %d: %w", idx, err)
		}
		if !deltaProof.Verify(g, &ownPK, peerEncK[selfIdx], cDelta, peerGamma[idx]) {
			return nil, fmt.Errorf("sign phase 3: party %d: delta mta proof failed", idx)
		}
		sigmaProof, err := fromWireMtA(r2.SigmaProof)
		if err != nil {
			return nil, fmt.Errorf("sign phase 3: party %d: %w", idx, err)
		}
		peerW := vss.CommitmentAt(g, share.VSSCommitments, g.ScalarFromInt(idx)).ScalarMult(curve.Lagrange(g, signers, idx, 0))
		if !sigmaProof.Verify(g, &ownPK, encK, cSigma, peerW) {
			return nil, fmt.Errorf("sign phase 3: party %d: sigma mta proof failed", idx)
		}

		alpha, err := share.PaillierSK.Decrypt(cDelta)
		if err != nil {
			return nil, fmt.Errorf("sign phase 3: party %d: decrypt alpha: %w", idx, err)
		}
		mu, err := share.PaillierSK.Decrypt(cSigma)
		if err != nil {
			return nil, fmt.Errorf("sign phase 3: party %d: decrypt mu: %w", idx, err)
		}
		alphaScalar, err := g.ScalarFromBytes(alpha.Bytes())
		if err != nil {
			return nil, err
		}
		muScalar, err := g.ScalarFromBytes(mu.Bytes())
		if err != nil {
			return nil, err
		}
		betaScalar, err := g.ScalarFromBytes(betas[idx].Bytes())
		if err != nil {
			return nil, err
		}
		nuScalar, err := g.ScalarFromBytes(nus[idx].Bytes())
		if err != nil {
			return nil, err
		}
		deltai = deltai.Add(alphaScalar).Sub(betaScalar)
		sigmai = sigmai.Add(muScalar).Sub(nuScalar)
	}

	if err := m.PublishBroadcast(ctx, "phase3", deltaMsg{DeltaI: hex.EncodeToString(deltai.Bytes())}); err != nil {
		return nil, err
	}
	phase3, err := m.CollectBroadcast(ctx, "phase3", 0)
	if err != nil {
		return nil, fmt.Errorf("sign phase 3: %w", err)
	}
	delta := deltai
	for idx, raw := range phase3 {
		if idx == selfIdx {
			continue
		}
		var d deltaMsg
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, fmt.Errorf("sign phase 3: party %d: %w", idx, err)
		}
		b, err := hex.DecodeString(d.DeltaI)
		if err != nil {
			return nil, fmt.Errorf("sign phase 3: party %d: %w", idx, err)
		}
		ds, err := g.ScalarFromBytes(b)
		if err != nil {
			return nil, err
		}
		delta = delta.Add(ds)
	}
	if delta.IsZero() {
		return nil, fmt.Errorf("sign phase 4: delta is not invertible")
	}

	Gamma := gammaPoint
	for idx, gp := range peerGamma {
		if idx == selfIdx {
			continue
		}
		Gamma = Gamma.Add(gp)
	}
	R := Gamma.ScalarMult(delta.Invert())
	rx, ry, ok := secp256k1.XY(R)
	if !ok {
		return nil, fmt.Errorf("sign phase 4: R is the point at infinity")
	}
	r := new(big.Int).Mod(rx, N)
	if r.Sign() == 0 {
		return nil, fmt.Errorf("sign phase 4: r is zero, abort and retry")
	}
	var recoveryID byte
	if ry.Bit(0) == 1 {
		recoveryID |= 1
	}
	if rx.Cmp(N) >= 0 {
		recoveryID |= 2
	}

	z := new(big.Int).SetBytes(digest)
	if z.BitLen() > N.BitLen() {
		z.Rsh(z, uint(z.BitLen()-N.BitLen()))
	}
	zScalar, err := g.ScalarFromBytes(z.Bytes())
	if err != nil {
		return nil, err
	}
	rScalar, err := g.ScalarFromBytes(r.Bytes())
	if err != nil {
		return nil, err
	}
	si := zScalar.Mul(ki).Add(rScalar.Mul(sigmai))

	if err := m.PublishBroadcast(ctx, "phase4", siMsg{Si: hex.EncodeToString(si.Bytes())}); err != nil {
		return nil, err
	}
	phase4, err := m.CollectBroadcast(ctx, "phase4", 0)
	if err != nil {
		return nil, fmt.Errorf("sign phase 4: %w", err)
	}
	finalS := si
	for idx, raw := range phase4 {
		if idx == selfIdx {
			continue
		}
		var sm siMsg
		if err := json.Unmarshal(raw, &sm); err != nil {
			return nil, fmt.Errorf("sign phase 4: party %d: %w", idx, err)
		}
		b, err := hex.DecodeString(sm.Si)
		if err != nil {
			return nil, fmt.Errorf("sign phase 4: party %d: %w", idx, err)
		}
		ss, err := g.ScalarFromBytes(b)
		if err != nil {
			return nil, err
		}
		finalS = finalS.Add(ss)
	}

	sig := &Signature{R: r, S: finalS.BigInt(), RecoveryID: recoveryID}
	if !verify(share.PublicKey, digest, sig) {
		return nil, fmt.Errorf("sign phase 5: reconstructed signature failed local verification")
	}
	return sig, nil
}

func verify(pub curve.Point, digest []byte, sig *Signature) bool {
	x, y, ok := secp256k1.XY(pub)
	if !ok {
		return false
	}
	var fx, fy dcrec.FieldVal
	fx.SetByteSlice(x.Bytes())
	fy.SetByteSlice(y.Bytes())
	pk := dcrec.NewPublicKey(&fx, &fy)

	var rMod, sMod dcrec.ModNScalar
	rMod.SetByteSlice(sig.R.Bytes())
	sMod.SetByteSlice(sig.S.Bytes())
	ecdsaSig := dcrecdsa.NewSignature(&rMod, &sMod)
	return ecdsaSig.Verify(digest, pk)
}
