// Package eddsa implements the Feldman-VSS EdDSA/Schnorrkel key
// generation engine (spec §4.4): four broadcast rounds (commit,
// decommit, vss, result) plus one P2P round (share distribution), run
// over a session.Messenger against the Ed25519 curve. Shares this
// package produces also back the plain-Shamir Sr25519 path (spec §4.4
// "Parameters: ... explicit all_party_indices (not necessarily
// contiguous; supports 2FA-style share layouts including index 0)").
//
// Grounded on internal/protocol/keygen's commit/decommit/share/VSS round
// shape (shared with protocols/keygen/ecdsa) with the Paillier- and
// DLog-proof-specific rounds dropped, since Feldman-VSS-based EdDSA
// keygen has no MtA/Paillier concern (spec §4.4's cryptographic
// substance is "standard Feldman-VSS-based DKG for Ed25519").
package eddsa

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gridlocknet/node-core/pkg/commitment"
	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/pairwise"
	"github.com/gridlocknet/node-core/pkg/session"
	"github.com/gridlocknet/node-core/pkg/vss"
)

var g = ed25519.Group

// Config carries the parameters a keygen session was started with.
type Config struct {
	KeyID     string
	Threshold int // T (spec §4.4)
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
	Commitment []byte `json:"commitment"`
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

type resultMsg struct {
	YSum string `json:"y_sum"`
}

// pairwiseKey derives the round-internal share-encryption key the same
// way protocols/keygen/ecdsa does: the x-coordinate analogue for
// Ed25519 is the full compressed point of peerDecommit^{ownU}, hashed
// down to 32 bytes is unnecessary since Ed25519 points already encode
// to 32 bytes — used directly as the AES key.
func pairwiseKey(peerDecommit curve.Point, ownU curve.Scalar) []byte {
	shared := peerDecommit.ScalarMult(ownU)
	return shared.Bytes()
}

// Run executes one party's side of Feldman-VSS EdDSA keygen to
// completion and returns the resulting keyshare.
func Run(ctx context.Context, m session.Messenger, cfg Config) (*keyshare.EdDSAKeyShare, error) {
	info := m.SessionInfo()
	selfIdx := info.PartyIndex

	poly, err := vss.New(g, cfg.Threshold-1, nil)
	if err != nil {
		return nil, fmt.Errorf("eddsa keygen: generate polynomial: %w", err)
	}
	ownU := poly.Secret()
	gu := ownU.ActOnBase()

	comm, err := commitment.New(gu.Bytes())
	if err != nil {
		return nil, fmt.Errorf("eddsa keygen: commit: %w", err)
	}
	if err := m.PublishBroadcast(ctx, "commit", round1Msg{Commitment: comm.C}); err != nil {
		return nil, err
	}
	round1, err := m.CollectBroadcast(ctx, "commit", 0)
	if err != nil {
		return nil, fmt.Errorf("eddsa keygen round 1: %w", err)
	}
	peerCommit := make(map[int64]round1Msg, len(round1))
	for idx, raw := range round1 {
		var r1 round1Msg
		if err := json.Unmarshal(raw, &r1); err != nil {
			return nil, fmt.Errorf("eddsa keygen round 1: party %d: %w", idx, err)
		}
		peerCommit[idx] = r1
	}

	if err := m.PublishBroadcast(ctx, "decommit", round2Msg{Salt: comm.D, GU: hexOf(gu)}); err != nil {
		return nil, err
	}
	round2, err := m.CollectBroadcast(ctx, "decommit", 0)
	if err != nil {
		return nil, fmt.Errorf("eddsa keygen round 2: %w", err)
	}
	peerGU := make(map[int64]curve.Point, len(round2))
	for idx, raw := range round2 {
		var r2 round2Msg
		if err := json.Unmarshal(raw, &r2); err != nil {
			return nil, fmt.Errorf("eddsa keygen round 2: party %d: %w", idx, err)
		}
		guPeer, err := pointFromHex(r2.GU)
		if err != nil {
			return nil, fmt.Errorf("eddsa keygen round 2: party %d: invalid g_u: %w", idx, err)
		}
		if !commitment.Verify(peerCommit[idx].Commitment, r2.Salt, guPeer.Bytes()) {
			return nil, fmt.Errorf("eddsa keygen round 2: party %d: commitment does not open", idx)
		}
		peerGU[idx] = guPeer
	}

	for _, peerIdx := range info.AllIndices {
		if peerIdx == selfIdx {
			continue
		}
		share := poly.Evaluate(g.ScalarFromInt(peerIdx))
		key := pairwiseKey(peerGU[peerIdx], ownU)
		ciphertext, err := pairwise.Seal(key, share.Bytes())
		if err != nil {
			return nil, fmt.Errorf("eddsa keygen round 3: seal share for %d: %w", peerIdx, err)
		}
		if err := m.PublishP2P(ctx, "share", peerIdx, round3Msg{Ciphertext: ciphertext}); err != nil {
			return nil, err
		}
	}
	round3, err := m.CollectP2P(ctx, "share", 0)
	if err != nil {
		return nil, fmt.Errorf("eddsa keygen round 3: %w", err)
	}
	receivedShares := make(map[int64]curve.Scalar, len(round3)+1)
	for idx, raw := range round3 {
		var r3 round3Msg
		if err := json.Unmarshal(raw, &r3); err != nil {
			return nil, fmt.Errorf("eddsa keygen round 3: party %d: %w", idx, err)
		}
		key := pairwiseKey(peerGU[idx], ownU)
		plaintext, err := pairwise.Open(key, r3.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("eddsa keygen round 3: party %d: decrypt share: %w", idx, err)
		}
		share, err := g.ScalarFromBytes(plaintext)
		if err != nil {
			return nil, fmt.Errorf("eddsa keygen round 3: party %d: invalid share: %w", idx, err)
		}
		receivedShares[idx] = share
	}
	receivedShares[selfIdx] = poly.Evaluate(g.ScalarFromInt(selfIdx))

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
		return nil, fmt.Errorf("eddsa keygen round 4: %w", err)
	}
	peerVSS := make(map[int64][]curve.Point, len(round4))
	for idx, raw := range round4 {
		var r4 round4Msg
		if err := json.Unmarshal(raw, &r4); err != nil {
			return nil, fmt.Errorf("eddsa keygen round 4: party %d: %w", idx, err)
		}
		points := make([]curve.Point, len(r4.Commitments))
		for i, hexStr := range r4.Commitments {
			p, err := pointFromHex(hexStr)
			if err != nil {
				return nil, fmt.Errorf("eddsa keygen round 4: party %d: %w", idx, err)
			}
			points[i] = p
		}
		if len(points) != cfg.Threshold {
			return nil, fmt.Errorf("eddsa keygen round 4: party %d: expected degree %d commitment vector", idx, cfg.Threshold-1)
		}
		peerVSS[idx] = points
	}
	peerVSS[selfIdx] = ownCommitments

	for idx, share := range receivedShares {
		if err := vss.VerifyShare(g, peerVSS[idx], g.ScalarFromInt(selfIdx), share); err != nil {
			return nil, fmt.Errorf("eddsa keygen: party %d: %w", idx, err)
		}
	}

	combined := make([]curve.Point, cfg.Threshold)
	for k := 0; k < cfg.Threshold; k++ {
		acc := g.Identity()
		for _, idx := range info.AllIndices {
			acc = acc.Add(peerVSS[idx][k])
		}
		combined[k] = acc
	}
	xi := g.ScalarFromInt(0)
	for _, share := range receivedShares {
		xi = xi.Add(share)
	}
	ySum := combined[0]

	if err := m.PublishBroadcast(ctx, "result", resultMsg{YSum: hexOf(ySum)}); err != nil {
		return nil, err
	}
	resultRound, err := m.CollectBroadcast(ctx, "result", 0)
	if err != nil {
		return nil, fmt.Errorf("eddsa keygen result round: %w", err)
	}
	for idx, raw := range resultRound {
		var rm resultMsg
		if err := json.Unmarshal(raw, &rm); err != nil {
			return nil, fmt.Errorf("eddsa keygen result round: party %d: %w", idx, err)
		}
		peerYSum, err := pointFromHex(rm.YSum)
		if err != nil {
			return nil, fmt.Errorf("eddsa keygen result round: party %d: %w", idx, err)
		}
		if !peerYSum.Equal(ySum) {
			return nil, fmt.Errorf("eddsa keygen result round: party %d: disagrees on y_sum", idx)
		}
	}

	return &keyshare.EdDSAKeyShare{
		KeyID:          cfg.KeyID,
		ShareIndex:     selfIdx,
		Threshold:      cfg.Threshold,
		PartyCount:     info.PartyCount,
		Xi:             xi,
		PublicKey:      ySum,
		VSSCommitments: combined,
	}, nil
}
