// Package eject implements emergency private-key reconstruction (spec
// §4.9): given Threshold-or-more share scalars at known indices, all
// from the same curve, recover the underlying private key by Lagrange
// interpolation at zero. Unlike every other protocol package in this
// tree, eject runs no rounds and needs no session — it is pure local
// arithmetic over keyshares a user has exported and brought together
// out of band, used only for manual emergency recovery. A reconstructed
// key is returned to the caller and never persisted.
//
// Grounded on original_source/backend/node/src/eject.rs: the
// EjectShareInfo tagged union (ShareInfo here), THRESHOLD = 3, and
// combine_keyshares/collect_shares_by_key_id_from_supplied_keyshares'
// skip-on-error batch semantics (CombineAndReconstruct).
package eject

import (
	"encoding/hex"
	"fmt"

	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/vss"
)

// Threshold is the minimum number of same-curve shares required to
// reconstruct a private key.
const Threshold = 3

// CurveKind tags which curve a ShareInfo's scalar belongs to. There is
// no Sr25519 variant: the original never supports ejecting the Sr25519
// root, only the ECDSA and EdDSA families.
type CurveKind string

const (
	CurveSecp256k1 CurveKind = "secp256k1"
	CurveEd25519   CurveKind = "ed25519"
)

// ShareInfo is one node's contribution to an emergency reconstruction:
// its share scalar and the index it was evaluated at.
type ShareInfo struct {
	Curve CurveKind
	Share curve.Scalar
	Index int64
}

// FromECDSA builds the ShareInfo a node contributes for an owned ECDSA
// keyshare.
func FromECDSA(k *keyshare.ECDSAKeyShare) ShareInfo {
	return ShareInfo{Curve: CurveSecp256k1, Share: k.Xi, Index: k.ShareIndex}
}

// FromEdDSA builds the ShareInfo a node contributes for an owned EdDSA
// keyshare.
func FromEdDSA(k *keyshare.EdDSAKeyShare) ShareInfo {
	return ShareInfo{Curve: CurveEd25519, Share: k.Xi, Index: k.ShareIndex}
}

func groupFor(kind CurveKind) (curve.Group, error) {
	switch kind {
	case CurveSecp256k1:
		return secp256k1.Group, nil
	case CurveEd25519:
		return ed25519.Group, nil
	default:
		return nil, fmt.Errorf("eject: unknown curve kind %q", kind)
	}
}

// ReconstructPrivateKey recovers the private key scalar shared among
// shares via Lagrange interpolation at zero (spec §4.9 "reconstruct the
// private key"). Only shares matching the curve of the first entry are
// considered, mirroring the original's per-curve bucketing; at least
// Threshold of them, at distinct indices, must remain.
func ReconstructPrivateKey(shares []ShareInfo) (curve.Scalar, error) {
	if len(shares) == 0 {
		return nil, fmt.Errorf("eject: no shares supplied")
	}
	kind := shares[0].Curve
	g, err := groupFor(kind)
	if err != nil {
		return nil, err
	}
	byIndex := make(map[int64]curve.Scalar, len(shares))
	for _, s := range shares {
		if s.Curve != kind {
			continue
		}
		byIndex[s.Index] = s.Share
	}
	if len(byIndex) < Threshold {
		return nil, fmt.Errorf("eject: not enough same-curve keyshares found to reconstruct private key (have %d, need %d)", len(byIndex), Threshold)
	}
	return vss.Reconstruct(g, byIndex), nil
}

// Info pairs a key id with one device's ShareInfo for that key — the
// payload devices exchange out of band to cooperate on an emergency
// reconstruction (eject.rs's EjectInfo).
type Info struct {
	KeyID     string
	ShareInfo ShareInfo
}

// KeyReconstructionResult is one successfully reconstructed private
// key, hex-encoded in the curve's canonical scalar byte order.
type KeyReconstructionResult struct {
	KeyID string
	Key   string
}

// CombineAndReconstruct reconstructs every key id in keyIDs it can, given
// several devices' Info sets (eject.rs's EjectKeysCommand): for each key
// id, gather the entries naming it across every supplied set and
// reconstruct if Threshold-or-more of them agree on a curve. A key id
// that can't be reconstructed is silently dropped from the result
// rather than failing the whole batch, matching the original's
// log-and-skip behavior per key id.
func CombineAndReconstruct(keyIDs []string, infoSets [][]Info) []KeyReconstructionResult {
	results := make([]KeyReconstructionResult, 0, len(keyIDs))
	for _, keyID := range keyIDs {
		var shares []ShareInfo
		for _, set := range infoSets {
			for _, info := range set {
				if info.KeyID == keyID {
					shares = append(shares, info.ShareInfo)
					break
				}
			}
		}
		secret, err := ReconstructPrivateKey(shares)
		if err != nil {
			continue
		}
		results = append(results, KeyReconstructionResult{KeyID: keyID, Key: hex.EncodeToString(secret.Bytes())})
	}
	return results
}
