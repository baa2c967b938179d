// Package eddsa implements threshold EdDSA/Schnorr signing (spec §4.6
// "EdDSA"): a one-shot ephemeral DKG run fresh for every signature to
// derive a random aggregate nonce R, followed by a single broadcast
// round exchanging Lagrange-weighted local signature shares, aggregated
// and verified against the group public key.
//
// Grounded on protocols/keygen/eddsa (reused directly for the ephemeral
// nonce DKG — spec §4.6 says the ephemeral DKG is "same shape as §4.4")
// and on protocols/sign/ecdsa's Lagrange-weighted local-share pattern,
// adapted from GG20's Paillier-MtA machinery (not needed here — Ed25519
// Shamir shares combine additively under Lagrange weights without any
// MtA) to plain Schnorr signature arithmetic: sigma_i = lambda_i * (r_i +
// c*x_i), aggregating to s = r + c*x by the Lagrange reconstruction
// identity, verified via s*G == R + c*Y.
package eddsa

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/session"
	eddsakeygen "github.com/gridlocknet/node-core/protocols/keygen/eddsa"
)

var g = ed25519.Group

// Signature is a Schnorr signature (R, S) over Ed25519.
type Signature struct {
	R curve.Point
	S curve.Scalar
}

// Bytes returns the canonical 64-byte R||S encoding.
func (s *Signature) Bytes() []byte {
	out := make([]byte, 0, 64)
	out = append(out, s.R.Bytes()...)
	return append(out, s.S.Bytes()...)
}

type sigMsg struct {
	Sigma string `json:"sigma"`
}

// challenge computes c = H(R || Y || message) reduced into the scalar
// field, the Fiat-Shamir binding of a Schnorr signature to its nonce,
// public key, and message.
func challenge(R, Y curve.Point, message []byte) curve.Scalar {
	h := blake3.New()
	h.Write(R.Bytes())
	h.Write(Y.Bytes())
	h.Write(message)
	digest := h.Sum(nil)
	c, err := g.ScalarFromBytes(digest[:32])
	if err != nil {
		// blake3's default digest is 32 bytes; ScalarFromBytes only
		// rejects on wrong length, which cannot happen here.
		panic(err)
	}
	return c
}

// Run executes one party's side of threshold EdDSA signing over message
// for the given keyshare, returning the aggregate, self-verified
// signature. signers is the agreed signer index set, which must match
// m.SessionInfo().AllIndices — the ephemeral nonce DKG runs over the same
// session.
func Run(ctx context.Context, m session.Messenger, share *keyshare.EdDSAKeyShare, signers []int64, message []byte) (*Signature, error) {
	info := m.SessionInfo()
	selfIdx := info.PartyIndex

	nonceShare, err := eddsakeygen.Run(ctx, m, eddsakeygen.Config{
		KeyID:     "ephemeral-nonce:" + share.KeyID,
		Threshold: share.Threshold,
	})
	if err != nil {
		return nil, fmt.Errorf("eddsa sign: ephemeral nonce dkg: %w", err)
	}
	R := nonceShare.PublicKey
	c := challenge(R, share.PublicKey, message)
	lambda := curve.Lagrange(g, signers, selfIdx, 0)
	sigmai := lambda.Mul(nonceShare.Xi.Add(c.Mul(share.Xi)))

	if err := m.PublishBroadcast(ctx, "sig", sigMsg{Sigma: hex.EncodeToString(sigmai.Bytes())}); err != nil {
		return nil, err
	}
	round, err := m.CollectBroadcast(ctx, "sig", 0)
	if err != nil {
		return nil, fmt.Errorf("eddsa sign: %w", err)
	}
	s := sigmai
	for idx, raw := range round {
		if idx == selfIdx {
			continue
		}
		var sm sigMsg
		if err := json.Unmarshal(raw, &sm); err != nil {
			return nil, fmt.Errorf("eddsa sign: party %d: %w", idx, err)
		}
		b, err := hex.DecodeString(sm.Sigma)
		if err != nil {
			return nil, fmt.Errorf("eddsa sign: party %d: %w", idx, err)
		}
		sc, err := g.ScalarFromBytes(b)
		if err != nil {
			return nil, fmt.Errorf("eddsa sign: party %d: %w", idx, err)
		}
		s = s.Add(sc)
	}

	sig := &Signature{R: R, S: s}
	if !verify(share.PublicKey, message, sig) {
		return nil, fmt.Errorf("eddsa sign: reconstructed signature failed local verification")
	}
	return sig, nil
}

// verify checks s*G == R + c*Y, the threshold-aggregated Schnorr
// verification equation.
func verify(Y curve.Point, message []byte, sig *Signature) bool {
	c := challenge(sig.R, Y, message)
	lhs := sig.S.ActOnBase()
	rhs := sig.R.Add(Y.ScalarMult(c))
	return lhs.Equal(rhs)
}
