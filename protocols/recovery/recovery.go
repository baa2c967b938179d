// Package recovery implements keyshare regeneration (spec §4.8): T
// helper nodes, each holding a valid share at a surviving index, jointly
// re-derive the secret that would exist at a deleted share index and
// deliver it to the new node occupying that index, without ever
// assembling the underlying joint secret.
//
// Each helper maps its own share onto the Lagrange coefficient for the
// recovery index (the same "map_share_to_new_params_for_x" construction
// original_source/backend/node/src/recovery/calculator.rs uses), splits
// the weighted contribution into random additive pieces — one retained,
// the rest sent pairwise-encrypted to its co-helpers — and delivers the
// summed partial secret, alongside its copy of the joint VSS commitment
// vector (and, for ECDSA, its copy of the peer Paillier public key
// map), pairwise-encrypted to the target's networking key. The target
// collects every helper's package, requires the VSS vectors to match
// exactly and the Paillier key maps (each of which omits its own
// sender) to agree on every index they share, merges those maps
// without the recovery index's old entry, and checks the recovered
// secret against the VSS vector
// before persisting it. ECDSA recovery additionally has the target mint
// a fresh Paillier keypair for its new position; the caller is
// responsible for distributing the resulting public key to the
// remaining nodes (spec §5's command layer, not this engine).
//
// Recovery's rounds are not symmetric the way keygen's and signing's
// are: T helpers address one target, and the target alone replies. So
// unlike those engines, a helper here is given two Messengers: one
// scoped to the full helper set (for the helper-to-helper additive share
// exchange) and one scoped pairwise to {self, target} (for the
// encrypted package handoff and the target's validation verdict). The
// target's single Messenger is scoped to the helper set plus itself.
//
// Grounded on protocols/keygen/eddsa's round shape and pkg/pairwise
// (whose doc comment names this exact use: "a recovery helper's
// contribution, to a single peer").
package recovery

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/pairwise"
	"github.com/gridlocknet/node-core/pkg/paillier"
	"github.com/gridlocknet/node-core/pkg/session"
	"github.com/gridlocknet/node-core/pkg/vss"
)

// PaillierBits mirrors protocols/keygen/ecdsa's Paillier modulus size, so
// a recovered ECDSA position is indistinguishable from one produced at
// original keygen time.
const PaillierBits = 2048

// Identity is the pairwise-encryption material a party needs to address
// its recovery-round peers: its own networking seed and every other
// session participant's networking public key, keyed by party index.
type Identity struct {
	Seed           [32]byte
	PeerPublicKeys map[int64][32]byte
}

func sharedKeyWith(identity Identity, peerIdx int64) ([]byte, error) {
	peerPK, ok := identity.PeerPublicKeys[peerIdx]
	if !ok {
		return nil, fmt.Errorf("recovery: no networking public key known for party %d", peerIdx)
	}
	return pairwise.SharedKey(identity.Seed, peerPK)
}

type sharePieceMsg struct {
	Ciphertext []byte `json:"ciphertext"`
}

type paillierPKWire struct {
	N string `json:"n"`
}

func marshalPaillierPK(pk *paillier.PublicKey) paillierPKWire {
	return paillierPKWire{N: pk.N.Text(16)}
}

func unmarshalPaillierPK(w paillierPKWire) (*paillier.PublicKey, error) {
	n, ok := new(big.Int).SetString(w.N, 16)
	if !ok {
		return nil, fmt.Errorf("recovery: invalid paillier modulus hex %q", w.N)
	}
	return paillier.NewPublicKey(n)
}

type ecdsaPackageMsg struct {
	Ciphertext []byte `json:"ciphertext"`
}

type ecdsaPackage struct {
	PartialSecret  string                    `json:"partial_secret"`
	VSSCommitments []string                  `json:"vss_commitments"`
	PeerPaillierPK map[string]paillierPKWire `json:"peer_paillier_pk"`
}

type eddsaPackageMsg struct {
	Ciphertext []byte `json:"ciphertext"`
}

type eddsaPackage struct {
	PartialSecret  string   `json:"partial_secret"`
	VSSCommitments []string `json:"vss_commitments"`
}

type validationMsg struct {
	Validated     bool            `json:"validated"`
	NewPaillierPK *paillierPKWire `json:"new_paillier_pk,omitempty"`
	Error         string          `json:"error,omitempty"`
}

func hexOfPoint(p curve.Point) string { return hex.EncodeToString(p.Bytes()) }

func pointFromHex(g curve.Group, s string) (curve.Point, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return g.PointFromBytes(b)
}

func hexOfScalar(s curve.Scalar) string { return hex.EncodeToString(s.Bytes()) }

func scalarFromHex(g curve.Group, s string) (curve.Scalar, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return g.ScalarFromBytes(b)
}

// contribute runs one helper's side of the additive share-splitting
// exchange over groupMessenger (scoped to the full helper set) and
// returns this helper's partial secret toward the lost share at
// recoveryIndex.
func contribute(ctx context.Context, groupMessenger session.Messenger, g curve.Group, identity Identity, secretShare curve.Scalar, recoveryIndex int64) (curve.Scalar, error) {
	info := groupMessenger.SessionInfo()
	selfIdx := info.PartyIndex
	helpers := info.AllIndices
	for _, idx := range helpers {
		if idx == recoveryIndex {
			return nil, fmt.Errorf("recovery: helper group must not include the recovery target")
		}
	}

	lambda := curve.Lagrange(g, helpers, selfIdx, recoveryIndex)
	lc := secretShare.Mul(lambda)

	pieces := make(map[int64]curve.Scalar, len(helpers)-1)
	sum := g.ScalarFromInt(0)
	for _, peerIdx := range helpers {
		if peerIdx == selfIdx {
			continue
		}
		r, err := g.NewScalar()
		if err != nil {
			return nil, fmt.Errorf("recovery: generate contribution piece for %d: %w", peerIdx, err)
		}
		pieces[peerIdx] = r
		sum = sum.Add(r)
	}
	retained := lc.Sub(sum)

	for peerIdx, piece := range pieces {
		key, err := sharedKeyWith(identity, peerIdx)
		if err != nil {
			return nil, err
		}
		ct, err := pairwise.Seal(key, piece.Bytes())
		if err != nil {
			return nil, fmt.Errorf("recovery: seal piece for %d: %w", peerIdx, err)
		}
		if err := groupMessenger.PublishP2P(ctx, "sharepiece", peerIdx, sharePieceMsg{Ciphertext: ct}); err != nil {
			return nil, err
		}
	}
	round, err := groupMessenger.CollectP2P(ctx, "sharepiece", 0)
	if err != nil {
		return nil, fmt.Errorf("recovery: share piece round: %w", err)
	}
	partial := retained
	for idx, raw := range round {
		var sp sharePieceMsg
		if err := json.Unmarshal(raw, &sp); err != nil {
			return nil, fmt.Errorf("recovery: share piece round: party %d: %w", idx, err)
		}
		key, err := sharedKeyWith(identity, idx)
		if err != nil {
			return nil, err
		}
		pt, err := pairwise.Open(key, sp.Ciphertext)
		if err != nil {
			return nil, fmt.Errorf("recovery: share piece round: party %d: decrypt: %w", idx, err)
		}
		piece, err := g.ScalarFromBytes(pt)
		if err != nil {
			return nil, fmt.Errorf("recovery: share piece round: party %d: invalid piece: %w", idx, err)
		}
		partial = partial.Add(piece)
	}
	return partial, nil
}

func pointsEqual(a, b []curve.Point) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

// recoverSecret sums every helper's partial secret and validates the
// result against the (unanimously agreed) joint VSS commitment vector:
// g^{x_r} must equal the vector's point-commitment at the recovery
// index (spec §4.8's correctness invariant).
func recoverSecret(g curve.Group, recoveryIndex int64, partials map[int64]curve.Scalar, vssVecs map[int64][]curve.Point) (curve.Scalar, []curve.Point, error) {
	if len(partials) == 0 {
		return nil, nil, fmt.Errorf("recovery: no helper packages received")
	}
	var refVSS []curve.Point
	for idx, vec := range vssVecs {
		if refVSS == nil {
			refVSS = vec
			continue
		}
		if !pointsEqual(refVSS, vec) {
			return nil, nil, fmt.Errorf("recovery: party %d supplied a VSS vector that disagrees with the others", idx)
		}
	}

	xr := g.ScalarFromInt(0)
	for _, p := range partials {
		xr = xr.Add(p)
	}

	want := vss.CommitmentAt(g, refVSS, g.ScalarFromInt(recoveryIndex))
	if !xr.ActOnBase().Equal(want) {
		return nil, nil, fmt.Errorf("recovery: recovered share did not pass validation")
	}
	return xr, refVSS, nil
}

// notifyHelpers delivers the same validation verdict to every helper
// individually via a P2P send on m (scoped to the helpers plus target).
func notifyHelpers(ctx context.Context, m session.Messenger, recoveryIndex int64, msg validationMsg) error {
	for _, idx := range m.SessionInfo().AllIndices {
		if idx == recoveryIndex {
			continue
		}
		if err := m.PublishP2P(ctx, "validation", idx, msg); err != nil {
			return fmt.Errorf("recovery: notify party %d: %w", idx, err)
		}
	}
	return nil
}

// awaitValidation is a helper's side of receiving the target's verdict
// over targetMessenger (scoped pairwise to {self, target}).
func awaitValidation(ctx context.Context, targetMessenger session.Messenger) error {
	round, err := targetMessenger.CollectP2P(ctx, "validation", 0)
	if err != nil {
		return fmt.Errorf("recovery: validation round: %w", err)
	}
	for _, raw := range round {
		var v validationMsg
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("recovery: validation round: %w", err)
		}
		if !v.Validated {
			return fmt.Errorf("recovery: target rejected the recovery: %s", v.Error)
		}
	}
	return nil
}

// RunEdDSAHelper is one helper's side of recovering an EdDSA (or, when
// the target is rebuilding the Sr25519 root at index 0, Sr25519) share
// at recoveryIndex.
func RunEdDSAHelper(ctx context.Context, groupMessenger, targetMessenger session.Messenger, g curve.Group, identity Identity, share *keyshare.EdDSAKeyShare, recoveryIndex int64) error {
	partial, err := contribute(ctx, groupMessenger, g, identity, share.Xi, recoveryIndex)
	if err != nil {
		return err
	}

	vssHex := make([]string, len(share.VSSCommitments))
	for i, c := range share.VSSCommitments {
		vssHex[i] = hexOfPoint(c)
	}
	pkg := eddsaPackage{PartialSecret: hexOfScalar(partial), VSSCommitments: vssHex}
	body, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("recovery: marshal package: %w", err)
	}
	key, err := sharedKeyWith(identity, recoveryIndex)
	if err != nil {
		return err
	}
	ct, err := pairwise.Seal(key, body)
	if err != nil {
		return fmt.Errorf("recovery: seal package: %w", err)
	}
	if err := targetMessenger.PublishP2P(ctx, "package", recoveryIndex, eddsaPackageMsg{Ciphertext: ct}); err != nil {
		return err
	}

	return awaitValidation(ctx, targetMessenger)
}

func collectEdDSAPackages(ctx context.Context, m session.Messenger, g curve.Group, identity Identity, recoveryIndex int64) (curve.Scalar, []curve.Point, error) {
	round, err := m.CollectP2P(ctx, "package", 0)
	if err != nil {
		return nil, nil, fmt.Errorf("recovery: package round: %w", err)
	}
	partials := make(map[int64]curve.Scalar, len(round))
	vssVecs := make(map[int64][]curve.Point, len(round))
	for idx, raw := range round {
		var env eddsaPackageMsg
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, nil, fmt.Errorf("recovery: package round: party %d: %w", idx, err)
		}
		key, err := sharedKeyWith(identity, idx)
		if err != nil {
			return nil, nil, err
		}
		body, err := pairwise.Open(key, env.Ciphertext)
		if err != nil {
			return nil, nil, fmt.Errorf("recovery: package round: party %d: decrypt: %w", idx, err)
		}
		var p eddsaPackage
		if err := json.Unmarshal(body, &p); err != nil {
			return nil, nil, fmt.Errorf("recovery: package round: party %d: %w", idx, err)
		}
		secret, err := scalarFromHex(g, p.PartialSecret)
		if err != nil {
			return nil, nil, fmt.Errorf("recovery: package round: party %d: invalid partial secret: %w", idx, err)
		}
		vec := make([]curve.Point, len(p.VSSCommitments))
		for i, h := range p.VSSCommitments {
			pt, err := pointFromHex(g, h)
			if err != nil {
				return nil, nil, fmt.Errorf("recovery: package round: party %d: invalid vss commitment: %w", idx, err)
			}
			vec[i] = pt
		}
		partials[idx] = secret
		vssVecs[idx] = vec
	}
	return recoverSecret(g, recoveryIndex, partials, vssVecs)
}

// RunEdDSATarget is the new node's side of recovering an EdDSA share: m
// is scoped to the helper set plus the target (recoveryIndex, self).
// recoveryIndex must not be 0 — index 0 names the Sr25519 root and is
// only recoverable via RunSr25519Target (spec §4.8 "Recovery of index 0
// is restricted to Sr25519").
func RunEdDSATarget(ctx context.Context, m session.Messenger, g curve.Group, identity Identity, keyID string, recoveryIndex int64, threshold int) (*keyshare.EdDSAKeyShare, error) {
	if recoveryIndex == 0 {
		return nil, fmt.Errorf("recovery: index 0 may only be recovered as Sr25519")
	}
	secret, vssVec, err := collectEdDSAPackages(ctx, m, g, identity, recoveryIndex)
	if err != nil {
		notifyHelpers(ctx, m, recoveryIndex, validationMsg{Validated: false, Error: err.Error()})
		return nil, err
	}
	if err := notifyHelpers(ctx, m, recoveryIndex, validationMsg{Validated: true}); err != nil {
		return nil, err
	}
	info := m.SessionInfo()
	return &keyshare.EdDSAKeyShare{
		KeyID:          keyID,
		ShareIndex:     recoveryIndex,
		Threshold:      threshold,
		PartyCount:     info.PartyCount,
		Xi:             secret,
		PublicKey:      vssVec[0],
		VSSCommitments: vssVec,
	}, nil
}

// RunSr25519Target is the new node's side of recovering the Sr25519
// root secret at index 0, fed by the same EdDSA-shaped helper packages
// RunEdDSAHelper produces (spec §4.8: Sr25519 helpers are ordinary
// threshold-EdDSA shares of the same joint polynomial; only index 0
// legitimately names the root secret).
func RunSr25519Target(ctx context.Context, m session.Messenger, g curve.Group, identity Identity, keyID string, threshold int) (*keyshare.Sr25519KeyShare, error) {
	secret, vssVec, err := collectEdDSAPackages(ctx, m, g, identity, 0)
	if err != nil {
		notifyHelpers(ctx, m, 0, validationMsg{Validated: false, Error: err.Error()})
		return nil, err
	}
	if err := notifyHelpers(ctx, m, 0, validationMsg{Validated: true}); err != nil {
		return nil, err
	}
	info := m.SessionInfo()
	return &keyshare.Sr25519KeyShare{
		KeyID:      keyID,
		ShareIndex: 0,
		Threshold:  threshold,
		PartyCount: info.PartyCount,
		Xi:         secret,
		PublicKey:  vssVec[0],
	}, nil
}

// RunECDSAHelper is one helper's side of recovering an ECDSA share.
func RunECDSAHelper(ctx context.Context, groupMessenger, targetMessenger session.Messenger, g curve.Group, identity Identity, share *keyshare.ECDSAKeyShare, recoveryIndex int64) error {
	if recoveryIndex == 0 {
		return fmt.Errorf("recovery: index 0 is not a valid ECDSA recovery target")
	}
	partial, err := contribute(ctx, groupMessenger, g, identity, share.Xi, recoveryIndex)
	if err != nil {
		return err
	}

	vssHex := make([]string, len(share.VSSCommitments))
	for i, c := range share.VSSCommitments {
		vssHex[i] = hexOfPoint(c)
	}
	peerPK := make(map[string]paillierPKWire, len(share.PeerPaillierPK))
	for idx, pk := range share.PeerPaillierPK {
		peerPK[fmt.Sprintf("%d", idx)] = marshalPaillierPK(pk)
	}
	pkg := ecdsaPackage{PartialSecret: hexOfScalar(partial), VSSCommitments: vssHex, PeerPaillierPK: peerPK}
	body, err := json.Marshal(pkg)
	if err != nil {
		return fmt.Errorf("recovery: marshal package: %w", err)
	}
	key, err := sharedKeyWith(identity, recoveryIndex)
	if err != nil {
		return err
	}
	ct, err := pairwise.Seal(key, body)
	if err != nil {
		return fmt.Errorf("recovery: seal package: %w", err)
	}
	if err := targetMessenger.PublishP2P(ctx, "package", recoveryIndex, ecdsaPackageMsg{Ciphertext: ct}); err != nil {
		return err
	}

	return awaitValidation(ctx, targetMessenger)
}

func paillierPKMapsEqual(a, b map[string]paillierPKWire) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k].N != v.N {
			return false
		}
	}
	return true
}

// RunECDSATarget is the new node's side of recovering an ECDSA share. On
// success it mints a fresh Paillier keypair for its position and
// returns both the installed keyshare and the new public key; the
// caller is responsible for propagating that public key to the
// remaining live nodes.
func RunECDSATarget(ctx context.Context, m session.Messenger, g curve.Group, identity Identity, keyID string, recoveryIndex int64, threshold int) (*keyshare.ECDSAKeyShare, *paillier.PublicKey, error) {
	if recoveryIndex == 0 {
		return nil, nil, fmt.Errorf("recovery: index 0 is not a valid ECDSA recovery target")
	}
	round, err := m.CollectP2P(ctx, "package", 0)
	if err != nil {
		return nil, nil, fmt.Errorf("recovery: package round: %w", err)
	}
	fail := func(err error) (*keyshare.ECDSAKeyShare, *paillier.PublicKey, error) {
		notifyHelpers(ctx, m, recoveryIndex, validationMsg{Validated: false, Error: err.Error()})
		return nil, nil, err
	}

	partials := make(map[int64]curve.Scalar, len(round))
	vssVecs := make(map[int64][]curve.Point, len(round))
	peerPKs := make(map[int64]map[string]paillierPKWire, len(round))
	for idx, raw := range round {
		var env ecdsaPackageMsg
		if err := json.Unmarshal(raw, &env); err != nil {
			return fail(fmt.Errorf("recovery: package round: party %d: %w", idx, err))
		}
		key, err := sharedKeyWith(identity, idx)
		if err != nil {
			return fail(err)
		}
		body, err := pairwise.Open(key, env.Ciphertext)
		if err != nil {
			return fail(fmt.Errorf("recovery: package round: party %d: decrypt: %w", idx, err))
		}
		var p ecdsaPackage
		if err := json.Unmarshal(body, &p); err != nil {
			return fail(fmt.Errorf("recovery: package round: party %d: %w", idx, err))
		}
		secret, err := scalarFromHex(g, p.PartialSecret)
		if err != nil {
			return fail(fmt.Errorf("recovery: package round: party %d: invalid partial secret: %w", idx, err))
		}
		vec := make([]curve.Point, len(p.VSSCommitments))
		for i, h := range p.VSSCommitments {
			pt, err := pointFromHex(g, h)
			if err != nil {
				return fail(fmt.Errorf("recovery: package round: party %d: invalid vss commitment: %w", idx, err))
			}
			vec[i] = pt
		}
		partials[idx] = secret
		vssVecs[idx] = vec
		peerPKs[idx] = p.PeerPaillierPK
	}

	secret, vssVec, err := recoverSecret(g, recoveryIndex, partials, vssVecs)
	if err != nil {
		return fail(err)
	}
	refPK := make(map[string]paillierPKWire)
	for idx, pk := range peerPKs {
		for k, w := range pk {
			if prev, seen := refPK[k]; seen && prev.N != w.N {
				return fail(fmt.Errorf("recovery: party %d supplied a Paillier public key map that disagrees with the others", idx))
			}
			refPK[k] = w
		}
	}

	peerPaillierPK := make(map[int64]*paillier.PublicKey, len(refPK))
	for idxStr, w := range refPK {
		var idx int64
		if _, err := fmt.Sscanf(idxStr, "%d", &idx); err != nil {
			return nil, nil, fmt.Errorf("recovery: invalid peer index %q in paillier map", idxStr)
		}
		if idx == recoveryIndex {
			continue
		}
		pk, err := unmarshalPaillierPK(w)
		if err != nil {
			return nil, nil, err
		}
		peerPaillierPK[idx] = pk
	}

	newSK, err := paillier.GenerateKey(rand.Reader, PaillierBits)
	if err != nil {
		return nil, nil, fmt.Errorf("recovery: generate replacement paillier key: %w", err)
	}

	newPKWire := marshalPaillierPK(&newSK.PublicKey)
	if err := notifyHelpers(ctx, m, recoveryIndex, validationMsg{Validated: true, NewPaillierPK: &newPKWire}); err != nil {
		return nil, nil, err
	}

	info := m.SessionInfo()
	result := &keyshare.ECDSAKeyShare{
		KeyID:          keyID,
		ShareIndex:     recoveryIndex,
		Threshold:      threshold,
		PartyCount:     info.PartyCount,
		Xi:             secret,
		PublicKey:      vssVec[0],
		VSSCommitments: vssVec,
		PaillierSK:     newSK,
		PeerPaillierPK: peerPaillierPK,
	}
	return result, &newSK.PublicKey, nil
}
