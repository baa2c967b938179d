// Package keyshare defines the keyshare file format: a tagged JSON union
// over the historical and current shapes a party's persistent key
// material can take, with hex-of-canonical-byte point/scalar encodings
// (spec §6 "Keyshare file format"). Grounded on luxfi-threshold's
// protocols/lss/config/marshal.go (the base64-wrapped custom
// MarshalJSON/UnmarshalJSON idiom), generalized to hex per the spec and
// extended to a tagged union so readers accept every historical variant
// and callers migrate silently to the latest on write (spec §4.7).
package keyshare

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/paillier"
)

// Kind tags which historical or current shape a keyshare file carries.
type Kind string

const (
	KindECDSAV2 Kind = "ECDSA_V2"
	KindECDSAV3 Kind = "ECDSA_V3"
	KindECDSAV4 Kind = "ECDSA_V4"
	KindEdDSAV2 Kind = "EdDSA_V2"
	KindEdDSAV3 Kind = "EdDSA_V3"
	KindSr25519 Kind = "Sr25519"
)

// LatestECDSA, LatestEdDSA, LatestSr25519 are the write-side tags; the
// keystore always emits these, never a historical tag (spec §4.7).
const (
	LatestECDSA   = KindECDSAV4
	LatestEdDSA   = KindEdDSAV3
	LatestSr25519 = KindSr25519
)

// ECDSAKeyShare is the GG20-style threshold ECDSA keyshare: this party's
// secret share x_i, the group public key, the VSS commitment vector, this
// party's Paillier keypair, and every peer's Paillier public key (needed
// for MtA during signing).
type ECDSAKeyShare struct {
	KeyID          string
	ShareIndex     int64
	Threshold      int
	PartyCount     int
	Xi             curve.Scalar
	PublicKey      curve.Point
	VSSCommitments []curve.Point
	PaillierSK     *paillier.PrivateKey
	PeerPaillierPK map[int64]*paillier.PublicKey
}

// EdDSAKeyShare is the Feldman-VSS EdDSA/Schnorr keyshare (spec §4.4).
type EdDSAKeyShare struct {
	KeyID          string
	ShareIndex     int64
	Threshold      int
	PartyCount     int
	Xi             curve.Scalar
	PublicKey      curve.Point
	VSSCommitments []curve.Point
}

// Sr25519KeyShare is the plain-Shamir Sr25519 keyshare; ShareIndex 0
// names the root secret and is only legal for this kind (spec §4.8).
type Sr25519KeyShare struct {
	KeyID      string
	ShareIndex int64
	Threshold  int
	PartyCount int
	Xi         curve.Scalar
	PublicKey  curve.Point
}

func hexBig(b *big.Int) string {
	if b == nil {
		return ""
	}
	return b.Text(16)
}

func bigFromHex(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return nil, fmt.Errorf("keyshare: invalid hex bigint %q", s)
	}
	return v, nil
}

// secp256k1PointJSON is the {x: hex, y: hex} wire shape for Secp256k1
// points (spec §6).
type secp256k1PointJSON struct {
	X string `json:"x"`
	Y string `json:"y"`
}

func marshalSecp256k1Point(p curve.Point) (secp256k1PointJSON, error) {
	x, y, ok := secp256k1.XY(p)
	if !ok {
		return secp256k1PointJSON{}, fmt.Errorf("keyshare: point is not a secp256k1 point")
	}
	return secp256k1PointJSON{X: hexBig(x), Y: hexBig(y)}, nil
}

func unmarshalSecp256k1Point(w secp256k1PointJSON) (curve.Point, error) {
	x, err := bigFromHex(w.X)
	if err != nil {
		return nil, err
	}
	y, err := bigFromHex(w.Y)
	if err != nil {
		return nil, err
	}
	return secp256k1.PointFromXY(x, y), nil
}

// ed25519PointJSON is the {bytes_str: zero-padded-64-hex} wire shape for
// Ed25519 points (spec §6).
type ed25519PointJSON struct {
	BytesStr string `json:"bytes_str"`
}

func marshalEd25519Point(p curve.Point) ed25519PointJSON {
	return ed25519PointJSON{BytesStr: fmt.Sprintf("%064x", p.Bytes())}
}

func unmarshalEd25519Point(w ed25519PointJSON) (curve.Point, error) {
	b, err := hex.DecodeString(w.BytesStr)
	if err != nil {
		return nil, fmt.Errorf("keyshare: invalid ed25519 point hex: %w", err)
	}
	return ed25519.Group.PointFromBytes(b)
}

func marshalSecp256k1Scalar(s curve.Scalar) string { return hexBig(s.BigInt()) }

func unmarshalSecp256k1Scalar(s string) (curve.Scalar, error) {
	v, err := bigFromHex(s)
	if err != nil {
		return nil, err
	}
	return secp256k1.Group.ScalarFromBytes(padTo32(v.Bytes()))
}

func marshalEd25519Scalar(s curve.Scalar) string { return hexBig(s.BigInt()) }

func unmarshalEd25519Scalar(s string) (curve.Scalar, error) {
	v, err := bigFromHex(s)
	if err != nil {
		return nil, err
	}
	be := padTo32(v.Bytes())
	le := make([]byte, len(be))
	for i := range be {
		le[i] = be[len(be)-1-i]
	}
	return ed25519.Group.ScalarFromBytes(le)
}

func padTo32(b []byte) []byte {
	if len(b) >= 32 {
		return b[len(b)-32:]
	}
	out := make([]byte, 32)
	copy(out[32-len(b):], b)
	return out
}

type paillierPublicJSON struct {
	N string `json:"n"`
}

func marshalPaillierPublic(pk *paillier.PublicKey) paillierPublicJSON {
	return paillierPublicJSON{N: hexBig(pk.N)}
}

func unmarshalPaillierPublic(w paillierPublicJSON) (*paillier.PublicKey, error) {
	n, err := bigFromHex(w.N)
	if err != nil {
		return nil, err
	}
	return paillier.NewPublicKey(n)
}

type paillierSecretJSON struct {
	N      string `json:"n"`
	Lambda string `json:"lambda"`
	Mu     string `json:"mu"`
}

func marshalPaillierSecret(sk *paillier.PrivateKey) paillierSecretJSON {
	return paillierSecretJSON{N: hexBig(sk.PublicKey.N), Lambda: hexBig(sk.Lambda), Mu: hexBig(sk.Mu)}
}

// wireECDSAV4 is the current on-wire ECDSA shape.
type wireECDSAV4 struct {
	Kind           Kind                           `json:"kind"`
	KeyID          string                         `json:"key_id"`
	ShareIndex     int64                          `json:"share_index"`
	Threshold      int                            `json:"threshold"`
	PartyCount     int                            `json:"party_count"`
	Xi             string                         `json:"xi"`
	PublicKey      secp256k1PointJSON             `json:"public_key"`
	VSSCommitments []secp256k1PointJSON           `json:"vss_commitments"`
	PaillierSK     paillierSecretJSON             `json:"paillier_sk"`
	PeerPaillierPK map[string]paillierPublicJSON  `json:"peer_paillier_pk"`
}

// MarshalJSON emits the latest ECDSA_V4 shape.
func (k *ECDSAKeyShare) MarshalJSON() ([]byte, error) {
	pub, err := marshalSecp256k1Point(k.PublicKey)
	if err != nil {
		return nil, err
	}
	vss := make([]secp256k1PointJSON, len(k.VSSCommitments))
	for i, c := range k.VSSCommitments {
		if vss[i], err = marshalSecp256k1Point(c); err != nil {
			return nil, err
		}
	}
	peers := make(map[string]paillierPublicJSON, len(k.PeerPaillierPK))
	for idx, pk := range k.PeerPaillierPK {
		peers[fmt.Sprintf("%d", idx)] = marshalPaillierPublic(pk)
	}
	w := wireECDSAV4{
		Kind:           LatestECDSA,
		KeyID:          k.KeyID,
		ShareIndex:     k.ShareIndex,
		Threshold:      k.Threshold,
		PartyCount:     k.PartyCount,
		Xi:             marshalSecp256k1Scalar(k.Xi),
		PublicKey:      pub,
		VSSCommitments: vss,
		PaillierSK:     marshalPaillierSecret(k.PaillierSK),
		PeerPaillierPK: peers,
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes any known ECDSA wire shape, migrating historical
// shapes forward; see Migrate for the shared migration entry point.
func (k *ECDSAKeyShare) UnmarshalJSON(data []byte) error {
	var tag struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	switch tag.Kind {
	case KindECDSAV4, KindECDSAV3, KindECDSAV2, "":
		var w wireECDSAV4
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		return k.fromWire(w)
	default:
		return fmt.Errorf("keyshare: unknown ECDSA kind %q", tag.Kind)
	}
}

func (k *ECDSAKeyShare) fromWire(w wireECDSAV4) error {
	xi, err := unmarshalSecp256k1Scalar(w.Xi)
	if err != nil {
		return fmt.Errorf("keyshare: xi: %w", err)
	}
	pub, err := unmarshalSecp256k1Point(w.PublicKey)
	if err != nil {
		return fmt.Errorf("keyshare: public_key: %w", err)
	}
	vss := make([]curve.Point, len(w.VSSCommitments))
	for i, c := range w.VSSCommitments {
		if vss[i], err = unmarshalSecp256k1Point(c); err != nil {
			return fmt.Errorf("keyshare: vss_commitments[%d]: %w", i, err)
		}
	}
	var paillierSK *paillier.PrivateKey
	if w.PaillierSK.N != "" {
		n, err := bigFromHex(w.PaillierSK.N)
		if err != nil {
			return err
		}
		lambda, err := bigFromHex(w.PaillierSK.Lambda)
		if err != nil {
			return err
		}
		mu, err := bigFromHex(w.PaillierSK.Mu)
		if err != nil {
			return err
		}
		pk, err := paillier.NewPublicKey(n)
		if err != nil {
			return err
		}
		paillierSK = &paillier.PrivateKey{PublicKey: *pk, Lambda: lambda, Mu: mu}
	}
	peers := make(map[int64]*paillier.PublicKey, len(w.PeerPaillierPK))
	for idxStr, pkJSON := range w.PeerPaillierPK {
		var idx int64
		if _, err := fmt.Sscanf(idxStr, "%d", &idx); err != nil {
			return fmt.Errorf("keyshare: peer_paillier_pk key %q: %w", idxStr, err)
		}
		pk, err := unmarshalPaillierPublic(pkJSON)
		if err != nil {
			return err
		}
		peers[idx] = pk
	}

	k.KeyID = w.KeyID
	k.ShareIndex = w.ShareIndex
	k.Threshold = w.Threshold
	k.PartyCount = w.PartyCount
	k.Xi = xi
	k.PublicKey = pub
	k.VSSCommitments = vss
	k.PaillierSK = paillierSK
	k.PeerPaillierPK = peers
	return nil
}

// wireEdDSAV3 is the current on-wire EdDSA shape.
type wireEdDSAV3 struct {
	Kind           Kind               `json:"kind"`
	KeyID          string             `json:"key_id"`
	ShareIndex     int64              `json:"share_index"`
	Threshold      int                `json:"threshold"`
	PartyCount     int                `json:"party_count"`
	Xi             string             `json:"xi"`
	PublicKey      ed25519PointJSON   `json:"public_key"`
	VSSCommitments []ed25519PointJSON `json:"vss_commitments"`
}

func (k *EdDSAKeyShare) MarshalJSON() ([]byte, error) {
	vss := make([]ed25519PointJSON, len(k.VSSCommitments))
	for i, c := range k.VSSCommitments {
		vss[i] = marshalEd25519Point(c)
	}
	w := wireEdDSAV3{
		Kind:           LatestEdDSA,
		KeyID:          k.KeyID,
		ShareIndex:     k.ShareIndex,
		Threshold:      k.Threshold,
		PartyCount:     k.PartyCount,
		Xi:             marshalEd25519Scalar(k.Xi),
		PublicKey:      marshalEd25519Point(k.PublicKey),
		VSSCommitments: vss,
	}
	return json.Marshal(w)
}

func (k *EdDSAKeyShare) UnmarshalJSON(data []byte) error {
	var tag struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	switch tag.Kind {
	case KindEdDSAV3, KindEdDSAV2, "":
		var w wireEdDSAV3
		if err := json.Unmarshal(data, &w); err != nil {
			return err
		}
		return k.fromWire(w)
	default:
		return fmt.Errorf("keyshare: unknown EdDSA kind %q", tag.Kind)
	}
}

func (k *EdDSAKeyShare) fromWire(w wireEdDSAV3) error {
	xi, err := unmarshalEd25519Scalar(w.Xi)
	if err != nil {
		return fmt.Errorf("keyshare: xi: %w", err)
	}
	pub, err := unmarshalEd25519Point(w.PublicKey)
	if err != nil {
		return fmt.Errorf("keyshare: public_key: %w", err)
	}
	vss := make([]curve.Point, len(w.VSSCommitments))
	for i, c := range w.VSSCommitments {
		if vss[i], err = unmarshalEd25519Point(c); err != nil {
			return fmt.Errorf("keyshare: vss_commitments[%d]: %w", i, err)
		}
	}
	k.KeyID = w.KeyID
	k.ShareIndex = w.ShareIndex
	k.Threshold = w.Threshold
	k.PartyCount = w.PartyCount
	k.Xi = xi
	k.PublicKey = pub
	k.VSSCommitments = vss
	return nil
}

// wireSr25519 is the on-wire Sr25519 shape (there is only one historical
// shape, since Sr25519 support was added after the tagged union existed).
type wireSr25519 struct {
	Kind       Kind             `json:"kind"`
	KeyID      string           `json:"key_id"`
	ShareIndex int64            `json:"share_index"`
	Threshold  int              `json:"threshold"`
	PartyCount int              `json:"party_count"`
	Xi         string           `json:"xi"`
	PublicKey  ed25519PointJSON `json:"public_key"`
}

func (k *Sr25519KeyShare) MarshalJSON() ([]byte, error) {
	w := wireSr25519{
		Kind:       LatestSr25519,
		KeyID:      k.KeyID,
		ShareIndex: k.ShareIndex,
		Threshold:  k.Threshold,
		PartyCount: k.PartyCount,
		Xi:         marshalEd25519Scalar(k.Xi),
		PublicKey:  marshalEd25519Point(k.PublicKey),
	}
	return json.Marshal(w)
}

func (k *Sr25519KeyShare) UnmarshalJSON(data []byte) error {
	var w wireSr25519
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Kind != KindSr25519 && w.Kind != "" {
		return fmt.Errorf("keyshare: unknown Sr25519 kind %q", w.Kind)
	}
	xi, err := unmarshalEd25519Scalar(w.Xi)
	if err != nil {
		return fmt.Errorf("keyshare: xi: %w", err)
	}
	pub, err := unmarshalEd25519Point(w.PublicKey)
	if err != nil {
		return fmt.Errorf("keyshare: public_key: %w", err)
	}
	k.KeyID = w.KeyID
	k.ShareIndex = w.ShareIndex
	k.Threshold = w.Threshold
	k.PartyCount = w.PartyCount
	k.Xi = xi
	k.PublicKey = pub
	return nil
}

// DetectKind peeks at a keyshare file's tag without fully decoding it, so
// the keystore can route to the right concrete type before unmarshalling.
func DetectKind(data []byte) (Kind, error) {
	var tag struct {
		Kind Kind `json:"kind"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return "", err
	}
	return tag.Kind, nil
}

// Family groups a Kind by protocol, used to pick which concrete Go type a
// reader should unmarshal a file's bytes into.
func Family(k Kind) string {
	switch k {
	case KindECDSAV2, KindECDSAV3, KindECDSAV4:
		return "ecdsa"
	case KindEdDSAV2, KindEdDSAV3:
		return "eddsa"
	case KindSr25519:
		return "sr25519"
	default:
		return ""
	}
}

// IsLatest reports whether k is the current write-side tag for its
// family, used by the keystore to decide whether a load-then-resave
// should rewrite the file (spec §4.7 "migrate silently to the latest").
func IsLatest(k Kind) bool {
	return k == LatestECDSA || k == LatestEdDSA || k == LatestSr25519
}
