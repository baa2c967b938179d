// Package ecdsa implements the GG20-style threshold ECDSA key generation
// engine (spec §4.3): four broadcast rounds (commit, decommit, vss,
// dlog) plus one P2P round (share distribution) and a local
// verification step, run over a session.Messenger against the secp256k1
// curve.
//
// Grounded on internal/protocol/keygen/round_1.go through round_4.go's
// commit/decommit/share/VSS round shape (Paillier keypair generation,
// polynomial.New for the Feldman polynomial, the commitment.New/Verify
// pair framing round 1/2), generalized from the teacher's fixed
// in-process party loop driven by tss.StateMachine to a session.Messenger
// round trip, and from *big.Int curve arithmetic to pkg/curve/pkg/vss.
package ecdsa

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/gridlocknet/node-core/pkg/commitment"
	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/paillier"
	"github.com/gridlocknet/node-core/pkg/pairwise"
	"github.com/gridlocknet/node-core/pkg/session"
	"github.com/gridlocknet/node-core/pkg/vss"
	"github.com/gridlocknet/node-core/pkg/zkp"
)

// PaillierBits is the Paillier key size generated for each party,
// matching the teacher's round_1.go ("Using 2048 bits as a standard
// security parameter").
const PaillierBits = 2048

// Config carries the parameters a keygen session was started with.
type Config struct {
	KeyID     string
	Threshold int // T, the minimum number of signers (spec §4.3)
}

var g = secp256k1.Group

func hexOf(p curve.Point) string  { return hex.EncodeToString(p.Bytes()) }
func pointFromHex(s string) (curve.Point, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return g.PointFromBytes(b)
}

type round1Msg struct {
	Commitment []byte `json:"commitment"`
	PaillierN  string `json:"paillier_n"`
}

type round2Msg struct {
	Salt []byte `json:"salt"`
	GU   string `json:"g_u"`
}

type round3Msg struct {
	Ciphertext []byte `json:"ciphertext"`
}

type round4Msg struct {
	Commitments []string `json:"commitments"`
}

type round5Msg struct {
	XiPublic string `json:"xi_public"`
	R        string `json:"proof_r"`
	S        string `json:"proof_s"`
}

// pairwiseKey derives the round-internal GG20 share-encryption key: the
// x-coordinate of peerDecommit^{ownU}, padded to 32 bytes (spec §4.3
// round 2 "Derive pairwise AES keys as the x-coordinate of g^{u_j} · u_i
// padded to 32 bytes"). This is distinct from pkg/pairwise's X25519
// networking-identity derivation; only pairwise.Seal/Open (generic
// AES-256-GCM over any 32-byte key) are reused here.
func pairwiseKey(peerDecommit curve.Point, ownU curve.Scalar) []byte {
	shared := peerDecommit.ScalarMult(ownU)
	x, _, _ := secp256k1.XY(shared)
	out := make([]byte, pairwise.KeySize)
	xb := x.Bytes()
	copy(out[pairwise.KeySize-len(xb):], xb)
	return out
}

// Run executes one party's side of threshold ECDSA keygen to completion
// and returns the resulting keyshare.
func Run(ctx context.Context, m session.Messenger, cfg Config) (*keyshare.ECDSAKeyShare, error) {
	info := m.SessionInfo()
	selfIdx := info.PartyIndex

	// Round 1: commit.
	paillierSK, err := paillier.GenerateKey(rand.Reader, PaillierBits)
	if err != nil {
		return nil, fmt.Errorf("ecdsa keygen: generate paillier key: %w", err)
	}
	poly, err := vss.New(g, cfg.Threshold-1, nil)
	if err != nil {
		return nil, fmt.Errorf("ecdsa keygen: generate polynomial: %w", err)
	}
	ownU := poly.Secret()
	gu := ownU.ActOnBase()

	commitData := append(append([]byte(nil), paillierSK.PublicKey.N.Bytes()...), gu.Bytes()...)
	comm, err := commitment.New(commitData)
	if err != nil {
		return nil, fmt.Errorf("ecdsa keygen: commit: %w", err)
	}

	if err := m.PublishBroadcast(ctx, "commit", round1Msg{Commitment: comm.C, PaillierN: paillierSK.PublicKey.N.Text(16)}); err != nil {
		return nil, err
	}
	round1, err := m.CollectBroadcast(ctx, "commit", 0)
	if err != nil {
		return nil, fmt.Errorf("ecdsa keygen round 1: %w", err)
	}
	peerCommit := make(map[int64]round1Msg, len(round1))
	peerPaillierPK := make(map[int64]*paillier.PublicKey, len(round1))
	for idx, raw := range round1 {
		var r1 round1Msg
		if err := json.Unmarshal(raw, &r1); err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 1: party %d: %w", idx, err)
		}
		n, ok := new(big.Int).SetString(r1.PaillierN, 16)
		if !ok {
			return nil, fmt.Errorf("ecdsa keygen round 1: party %d: invalid paillier_n", idx)
		}
		if err := paillier.ValidateModulus(n); err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 1: party %d: %w", idx, err)
		}
		pk, err := paillier.NewPublicKey(n)
		if err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 1: party %d: %w", idx, err)
		}
		peerCommit[idx] = r1
		peerPaillierPK[idx] = pk
	}

	// Round 2: decommit.
	if err := m.PublishBroadcast(ctx, "decommit", round2Msg{Salt: comm.D, GU: hexOf(gu)}); err != nil {
		return nil, err
	}
	round2, err := m.CollectBroadcast(ctx, "decommit", 0)
	if err != nil {
		return nil, fmt.Errorf("ecdsa keygen round 2: %w", err)
	}
	peerGU := make(map[int64]curve.Point, len(round2))
	for idx, raw := range round2 {
		var r2 round2Msg
		if err := json.Unmarshal(raw, &r2); err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 2: party %d: %w", idx, err)
		}
		guPeer, err := pointFromHex(r2.GU)
		if err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 2: party %d: invalid g_u: %w", idx, err)
		}
		n, _ := new(big.Int).SetString(peerCommit[idx].PaillierN, 16)
		data := append(append([]byte(nil), n.Bytes()...), guPeer.Bytes()...)
		if !commitment.Verify(peerCommit[idx].Commitment, r2.Salt, data) {
			return nil, fmt.Errorf("ecdsa keygen round 2: party %d: commitment does not open", idx)
		}
		peerGU[idx] = guPeer
	}

	// Round 3 (P2P): encrypted Feldman share distribution.
	for _, peerIdx := range info.AllIndices {
		if peerIdx == selfIdx {
			continue
		}
		share := poly.Evaluate(g.ScalarFromInt(peerIdx))
		key := pairwiseKey(peerGU[peerIdx], ownU)
		ciphertext, err := pairwise.Seal(key, share.Bytes())
		if err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 3: seal share for %d: %w", peerIdx, err)
		}
		if err := m.PublishP2P(ctx, "share", peerIdx, round3Msg{Ciphertext: ciphertext}); err != nil {
			return nil, err
		}
	}
	round3, err := m.CollectP2P(ctx, "share", 0)
	if err != nil {
		return nil, fmt.Errorf("ecdsa keygen round 3: %w", err)
	}
	receivedShares := make(map[int64]curve.Scalar, len(round3)+1)
	for idx, raw := range round3 {
		var r3 round3Msg
		if err := json.Unmarshal(raw, &r3); err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 3: party %d: %w", idx, err)
		}
		key := pairwiseKey(peerGU[idx], ownU)
		plaintext, err := pairwise.Open(key, r3.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 3: party %d: decrypt share: %w", idx, err)
		}
		share, err := g.ScalarFromBytes(plaintext)
		if err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 3: party %d: invalid share: %w", idx, err)
		}
		receivedShares[idx] = share
	}
	receivedShares[selfIdx] = poly.Evaluate(g.ScalarFromInt(selfIdx))

	// Round 4: VSS exchange.
	ownCommitments := poly.Commitments()
	wireCommitments := make([]string, len(ownCommitments))
	for i, c := range ownCommitments {
		wireCommitments[i] = hexOf(c)
	}
	if err := m.PublishBroadcast(ctx, "vss", round4Msg{Commitments: wireCommitments}); err != nil {
		return nil, err
	}
	round4, err := m.CollectBroadcast(ctx, "vss", 0)
	if err != nil {
		return nil, fmt.Errorf("ecdsa keygen round 4: %w", err)
	}
	peerVSS := make(map[int64][]curve.Point, len(round4))
	for idx, raw := range round4 {
		var r4 round4Msg
		if err := json.Unmarshal(raw, &r4); err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 4: party %d: %w", idx, err)
		}
		points := make([]curve.Point, len(r4.Commitments))
		for i, hexStr := range r4.Commitments {
			p, err := pointFromHex(hexStr)
			if err != nil {
				return nil, fmt.Errorf("ecdsa keygen round 4: party %d: %w", idx, err)
			}
			points[i] = p
		}
		if len(points) != cfg.Threshold {
			return nil, fmt.Errorf("ecdsa keygen round 4: party %d: expected degree %d commitment vector", idx, cfg.Threshold-1)
		}
		peerVSS[idx] = points
	}
	peerVSS[selfIdx] = ownCommitments

	for idx, share := range receivedShares {
		if err := vss.VerifyShare(g, peerVSS[idx], g.ScalarFromInt(selfIdx), share); err != nil {
			return nil, fmt.Errorf("ecdsa keygen: party %d: %w", idx, err)
		}
	}

	combined := combineCommitments(g, peerVSS, info.AllIndices, cfg.Threshold)
	xi := g.ScalarFromInt(0)
	for _, share := range receivedShares {
		xi = xi.Add(share)
	}
	xiPublic := xi.ActOnBase()

	// Round 5: DLog proof of knowledge of x_i.
	ctxBytes := []byte(fmt.Sprintf("gridlock-keygen-ecdsa:%s", info.SessionID))
	proof, err := zkp.ProveSchnorr(g, xi, xiPublic, ctxBytes)
	if err != nil {
		return nil, fmt.Errorf("ecdsa keygen round 5: prove: %w", err)
	}
	rBig, sBig := proof.R.Bytes(), proof.S.BigInt().Text(16)
	if err := m.PublishBroadcast(ctx, "dlog", round5Msg{XiPublic: hexOf(xiPublic), R: hex.EncodeToString(rBig), S: sBig}); err != nil {
		return nil, err
	}
	round5, err := m.CollectBroadcast(ctx, "dlog", 0)
	if err != nil {
		return nil, fmt.Errorf("ecdsa keygen round 5: %w", err)
	}
	for idx, raw := range round5 {
		var r5 round5Msg
		if err := json.Unmarshal(raw, &r5); err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 5: party %d: %w", idx, err)
		}
		peerXiPublic, err := pointFromHex(r5.XiPublic)
		if err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 5: party %d: %w", idx, err)
		}
		expected := vss.CommitmentAt(g, combined, g.ScalarFromInt(idx))
		if !peerXiPublic.Equal(expected) {
			return nil, fmt.Errorf("ecdsa keygen round 5: party %d: xi_public does not match combined VSS vector", idx)
		}
		rPoint, err := g.PointFromBytes(mustHex(r5.R))
		if err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 5: party %d: invalid proof r: %w", idx, err)
		}
		sScalar, err := g.ScalarFromBytes(mustHexBig(r5.S))
		if err != nil {
			return nil, fmt.Errorf("ecdsa keygen round 5: party %d: invalid proof s: %w", idx, err)
		}
		peerProof := &zkp.SchnorrProof{R: rPoint, S: sScalar}
		if !peerProof.Verify(g, peerXiPublic, ctxBytes) {
			return nil, fmt.Errorf("ecdsa keygen round 5: party %d: dlog proof failed", idx)
		}
	}

	peerPKs := make(map[int64]*paillier.PublicKey, len(peerPaillierPK))
	for idx, pk := range peerPaillierPK {
		if idx == selfIdx {
			continue
		}
		peerPKs[idx] = pk
	}

	return &keyshare.ECDSAKeyShare{
		KeyID:          cfg.KeyID,
		ShareIndex:     selfIdx,
		Threshold:      cfg.Threshold,
		PartyCount:     info.PartyCount,
		Xi:             xi,
		PublicKey:      combined[0],
		VSSCommitments: combined,
		PaillierSK:     paillierSK,
		PeerPaillierPK: peerPKs,
	}, nil
}

// combineCommitments sums each coefficient-level VSS commitment across
// every party, producing the joint commitment vector the combined
// secret key's shares are checked against.
func combineCommitments(g curve.Group, peerVSS map[int64][]curve.Point, allIndices []int64, threshold int) []curve.Point {
	combined := make([]curve.Point, threshold)
	for k := 0; k < threshold; k++ {
		acc := g.Identity()
		for _, idx := range allIndices {
			acc = acc.Add(peerVSS[idx][k])
		}
		combined[k] = acc
	}
	return combined
}

func mustHex(s string) []byte {
	b, _ := hex.DecodeString(s)
	return b
}

func mustHexBig(s string) []byte {
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil
	}
	return v.Bytes()
}
