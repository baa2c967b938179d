package commands

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/gridlocknet/node-core/internal/dispatcher"
	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/curve"
	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/identity"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/keystore"
	"github.com/gridlocknet/node-core/pkg/paillier"
	"github.com/gridlocknet/node-core/protocols/eject"
)

// curveScalar is a local alias so scalarFromBytes's signature doesn't
// repeat the full curve.Scalar interface name at every call site.
type curveScalar = curve.Scalar

// Executor runs decoded commands against local node state, publishing
// new-session announcements for the ones that kick off a protocol
// session rather than complete synchronously (command.rs's
// JsonCommand::execute, split along the local-vs-session boundary that
// original's untagged CommandType variants straddle).
type Executor struct {
	Store    *keystore.Store
	Identity *identity.NodeIdentity
	Bus      bus.Bus
	// Directory records peer networking public keys as sessions this
	// node orchestrates admit them, for later recovery sessions to
	// resolve. May be nil, in which case peer keys are simply never
	// learned this way.
	Directory *identity.Directory
}

// cmdEnvelope peeks the envelope's discriminator without committing to a
// concrete payload shape. The tagged Orchestrate* variants use "cmd"
// (mirroring the original's serde(tag = "cmd")); the twelve untagged
// CommandType variants are disambiguated here by an explicit "command"
// field rather than the original's structural serde(untagged) matching,
// since Go's encoding/json has no equivalent trial-and-error union
// decoder — a deliberate, documented simplification (see DESIGN.md) that
// preserves the same dispatch surface and "unknown discriminator ->
// error" behavior.
type cmdEnvelope struct {
	Cmd     string `json:"cmd"`
	Command string `json:"command"`
}

// Execute decodes raw and runs it, returning the JSON response body a
// reply-subject publisher should send back (or an error for an
// unrecognised or malformed envelope, which per spec §7 is surfaced as a
// short "ERROR: <msg>" by the caller, never panicked on).
func (e *Executor) Execute(ctx context.Context, raw []byte) ([]byte, error) {
	var env cmdEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("commands: malformed envelope: %w", err)
	}

	if env.Cmd != "" {
		return e.executeTagged(ctx, env.Cmd, raw)
	}
	if env.Command != "" {
		return e.executeUntagged(ctx, env.Command, raw)
	}
	return nil, fmt.Errorf("commands: envelope names neither cmd nor command")
}

func (e *Executor) executeTagged(ctx context.Context, cmd string, raw []byte) ([]byte, error) {
	switch cmd {
	case "OrchestrateKeyGen":
		var c OrchestrateKeyGenCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode OrchestrateKeyGen: %w", err)
		}
		return nil, e.orchestrate(ctx, c.Kind.Topic(), c.SessionID, sequentialIndex(c.PartyNodes), c)
	case "OrchestrateSigning":
		var c OrchestrateSigningCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode OrchestrateSigning: %w", err)
		}
		message, err := hex.DecodeString(c.Message)
		if err != nil {
			return nil, fmt.Errorf("commands: bad message hex: %w", err)
		}
		if err := VerifySigningAuth(e.Store, e.Identity, c.KeyID, c.Auth, message); err != nil {
			// Step (d)/(e) failures are logged by the caller, never
			// surfaced to the requester (spec §6).
			return nil, err
		}
		return nil, e.orchestrate(ctx, c.Kind.SignTopic(), c.SessionID, sequentialIndex(c.PartyNodes), c)
	case "OrchestrateRecovery":
		var c OrchestrateRecoveryCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode OrchestrateRecovery: %w", err)
		}
		return nil, e.orchestrate(ctx, "KeyShareRecovery", c.SessionID, recoveryIndex(c.HelperIndices, c.NewNodeID, c.RecoveryIndex), c)
	default:
		return nil, fmt.Errorf("commands: unknown cmd discriminator %q", cmd)
	}
}

// sequentialIndex assigns fresh, arbitrary party indices 1..N by
// position in nodes, the index scheme a keygen or signing session uses
// since no prior share index exists yet to preserve.
func sequentialIndex(nodes []string) map[string]int64 {
	out := make(map[string]int64, len(nodes))
	for i, node := range nodes {
		out[node] = int64(i + 1)
	}
	return out
}

// recoveryIndex builds the node-to-party-index assignment a recovery
// session's join handshake must honor: every helper keeps the real
// share index its own keyshare was issued at (so its Lagrange
// coefficient and VSS-commitment lookups line up with the rest of the
// group), and the new node is assigned the recovered share's own index,
// reoccupying the slot the deleted share held.
func recoveryIndex(helperIndices map[string]int64, newNodeID string, recoveredIndex int64) map[string]int64 {
	out := make(map[string]int64, len(helperIndices)+1)
	for node, idx := range helperIndices {
		out[node] = idx
	}
	out[newNodeID] = recoveredIndex
	return out
}

// orchestrate announces sessionID to every node in nodeIndex's
// new-session subject on topic (lib.rs's role when the orchestrator
// publishes a Message.new.<node_id> command that itself names the
// session's participants), then runs the join handshake's orchestrator
// side in the background so the announced parties can be admitted.
func (e *Executor) orchestrate(ctx context.Context, topic, sessionID string, nodeIndex map[string]int64, params any) error {
	body, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("commands: marshal session params: %w", err)
	}
	announce, err := json.Marshal(dispatcher.NewSessionMessage{SessionID: sessionID, Params: body})
	if err != nil {
		return fmt.Errorf("commands: marshal new-session announcement: %w", err)
	}
	for node := range nodeIndex {
		if err := e.Bus.Publish(ctx, dispatcher.NewSessionSubject(topic, node), announce); err != nil {
			return fmt.Errorf("commands: announce session to %s: %w", node, err)
		}
	}

	go func() {
		if err := dispatcher.Orchestrate(context.Background(), e.Bus, topic, sessionID, nodeIndex, e.Directory, 0, nil); err != nil {
			slog.Default().Error("session join orchestration failed",
				slog.String("session_id", sessionID), slog.String("topic", topic), slog.Any("error", err))
		}
	}()
	return nil
}

func (e *Executor) executeUntagged(ctx context.Context, command string, raw []byte) ([]byte, error) {
	switch command {
	case "KeyImport":
		var c KeyImportCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode KeyImport: %w", err)
		}
		return nil, fmt.Errorf("commands: key import for type %q is not yet implemented", c.KeyType)

	case "KeyImportShare":
		var c KeyImportShareCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode KeyImportShare: %w", err)
		}
		return nil, e.keyImportShare(c)

	case "Sr25519KeyGen":
		var c Sr25519KeyGenCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode Sr25519KeyGen: %w", err)
		}
		return nil, e.orchestrate(ctx, "KeyGenSr25519", c.SessionID, sequentialIndex(c.PartyNodes), c)

	case "Sr25519KeySign":
		var c Sr25519KeySignCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode Sr25519KeySign: %w", err)
		}
		message, err := hex.DecodeString(c.Message)
		if err != nil {
			return nil, fmt.Errorf("commands: bad message hex: %w", err)
		}
		if err := VerifySigningAuth(e.Store, e.Identity, c.KeyID, c.Auth, message); err != nil {
			// Step (d)/(e) failures are logged by the caller, never
			// surfaced to the requester (spec §6).
			return nil, err
		}
		return nil, e.orchestrate(ctx, "KeySignSr25519", c.SessionID, sequentialIndex(c.PartyNodes), c)

	case "KeyshareRecovery":
		var c KeyshareRecoveryCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode KeyshareRecovery: %w", err)
		}
		return nil, e.orchestrate(ctx, "KeyShareRecovery", c.SessionID, recoveryIndex(c.HelperIndices, c.NewNodeID, c.RecoveryIndex), c)

	case "UpdatePaillierKeys":
		var c UpdatePaillierKeysCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode UpdatePaillierKeys: %w", err)
		}
		return nil, e.updatePaillierKeys(c)

	case "UpdateSinglePaillierKey":
		var c UpdateSinglePaillierKeyCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode UpdateSinglePaillierKey: %w", err)
		}
		return nil, e.updateSinglePaillierKey(c)

	case "Parameterless":
		var c ParameterlessCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode Parameterless: %w", err)
		}
		return e.parameterless(c)

	case "EjectShares":
		var c EjectSharesCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode EjectShares: %w", err)
		}
		return ejectShares(c)

	case "EjectKeys":
		var c EjectKeysCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode EjectKeys: %w", err)
		}
		return ejectKeys(c)

	case "UpdateKeyInfo":
		var c UpdateKeyInfoCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode UpdateKeyInfo: %w", err)
		}
		return nil, e.Store.SaveKeyInfo(c.KeyID, c.KeyInfo)

	case "GetPaillierKeys":
		var c GetPaillierKeysCommand
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, fmt.Errorf("commands: decode GetPaillierKeys: %w", err)
		}
		return e.getPaillierKeys(c)

	default:
		return nil, fmt.Errorf("commands: unknown command discriminator %q", command)
	}
}

// KeyKind names which curve family a key belongs to; it selects both the
// keygen and signing subject prefixes.
type KeyKind string

const (
	KeyKindECDSA KeyKind = "ecdsa"
	KeyKindEdDSA KeyKind = "eddsa"
)

// Topic returns the keygen subject prefix for kind.
func (k KeyKind) Topic() string {
	if k == KeyKindEdDSA {
		return "KeyGenEdDSA"
	}
	return "keyGen"
}

// SignTopic returns the signing subject prefix for kind.
func (k KeyKind) SignTopic() string {
	if k == KeyKindEdDSA {
		return "KeySignEdDSA"
	}
	return "keySign"
}

// OrchestrateKeyGenCommand starts a keygen session among party_nodes
// (spec S1's KeyGenCommand).
type OrchestrateKeyGenCommand struct {
	SessionID  string   `json:"session_id"`
	Email      string   `json:"email"`
	KeyID      string   `json:"key_id"`
	Kind       KeyKind  `json:"kind"`
	Threshold  int      `json:"threshold"`
	PartyNodes []string `json:"party_nodes"`
}

// OrchestrateSigningCommand starts a signing session for an existing key
// (spec S2).
type OrchestrateSigningCommand struct {
	SessionID  string      `json:"session_id"`
	Email      string      `json:"email"`
	KeyID      string      `json:"key_id"`
	Kind       KeyKind     `json:"kind"`
	Message    string      `json:"message"`
	PartyNodes []string    `json:"party_nodes"`
	Auth       SigningAuth `json:"auth"`
}

// OrchestrateRecoveryCommand starts a recovery session regenerating the
// share at RecoveryIndex (spec S3). HelperIndices names each helper
// node's own persisted share index (so its Lagrange coefficient lines
// up with the key it actually holds); the new node is assigned
// RecoveryIndex, the slot the deleted share held.
type OrchestrateRecoveryCommand struct {
	SessionID     string           `json:"session_id"`
	Email         string           `json:"email"`
	KeyID         string           `json:"key_id"`
	Kind          KeyKind          `json:"kind"`
	Threshold     int              `json:"threshold"`
	NewNodeID     string           `json:"new_node_id"`
	HelperIndices map[string]int64 `json:"helper_indices"`
	RecoveryIndex int64            `json:"recovery_index"`
}

// KeyImportCommand requests importing a full, externally-generated key
// (never implemented upstream for any key_type; see key_import.rs).
type KeyImportCommand struct {
	KeyID   string `json:"key_id"`
	KeyType string `json:"key_type"`
}

// KeyImportShareCommand supplies one externally-constructed share to
// save directly, bypassing keygen (key_import.rs's
// KeyImportShareCommand). Only key_type "sr25519" is implemented,
// matching the original.
type KeyImportShareCommand struct {
	Email      string `json:"email"`
	KeyID      string `json:"key_id"`
	KeyType    string `json:"key_type"`
	KeyShare   string `json:"key_share"` // hex scalar
	PublicKey  string `json:"public_key"`
	Threshold  int    `json:"threshold"`
	PartyCount int    `json:"party_count"`
	Index      int64  `json:"index"`
}

func (e *Executor) keyImportShare(c KeyImportShareCommand) error {
	if c.KeyType != "sr25519" {
		return fmt.Errorf("commands: key import share for type %q is not yet implemented", c.KeyType)
	}
	xiBytes, err := hex.DecodeString(c.KeyShare)
	if err != nil {
		return fmt.Errorf("commands: bad key_share hex: %w", err)
	}
	xi, err := ed25519.Group.ScalarFromBytes(xiBytes)
	if err != nil {
		return fmt.Errorf("commands: decode share scalar: %w", err)
	}
	pubBytes, err := hex.DecodeString(c.PublicKey)
	if err != nil {
		return fmt.Errorf("commands: bad public_key hex: %w", err)
	}
	pub, err := ed25519.Group.PointFromBytes(pubBytes)
	if err != nil {
		return fmt.Errorf("commands: decode public key: %w", err)
	}
	share := keyshare.Sr25519KeyShare{
		KeyID:      c.KeyID,
		ShareIndex: c.Index,
		Threshold:  c.Threshold,
		PartyCount: c.PartyCount,
		Xi:         xi,
		PublicKey:  pub,
	}
	return e.Store.ImportShare(c.Email, c.KeyID, int(c.Index), &share, keystore.CreateNewOnly)
}

// Sr25519KeyGenCommand starts a Sr25519 keygen session.
type Sr25519KeyGenCommand struct {
	SessionID  string   `json:"session_id"`
	Email      string   `json:"email"`
	KeyID      string   `json:"key_id"`
	Threshold  int      `json:"threshold"`
	PartyNodes []string `json:"party_nodes"`
}

// Sr25519KeySignCommand starts a Sr25519 signing session, gated on the
// signing-request authentication flow (spec §6).
type Sr25519KeySignCommand struct {
	SessionID  string      `json:"session_id"`
	Email      string      `json:"email"`
	KeyID      string      `json:"key_id"`
	Message    string      `json:"message"` // hex
	PartyNodes []string    `json:"party_nodes"`
	Auth       SigningAuth `json:"auth"`
}

// KeyshareRecoveryCommand starts a recovery session (generic-curve
// variant of OrchestrateRecoveryCommand used outside the tagged path).
// See OrchestrateRecoveryCommand for the field semantics.
type KeyshareRecoveryCommand struct {
	SessionID     string           `json:"session_id"`
	Email         string           `json:"email"`
	KeyID         string           `json:"key_id"`
	Kind          KeyKind          `json:"kind"`
	Threshold     int              `json:"threshold"`
	NewNodeID     string           `json:"new_node_id"`
	HelperIndices map[string]int64 `json:"helper_indices"`
	RecoveryIndex int64            `json:"recovery_index"`
}

// UpdatePaillierKeysCommand replaces the full peer Paillier public-key
// map of a stored ECDSA keyshare (e.g. after recovery's Paillier
// migration, spec §8 property 4). Every supplied key is checked against
// the small-prime guard (spec §7) before being written.
type UpdatePaillierKeysCommand struct {
	Email         string            `json:"email"`
	KeyID         string            `json:"key_id"`
	PeerPaillierN map[string]string `json:"peer_paillier_n"` // party index -> hex modulus
}

func (e *Executor) updatePaillierKeys(c UpdatePaillierKeysCommand) error {
	data, err := e.Store.LoadKeyShare(c.Email, c.KeyID, 0)
	if err != nil {
		return fmt.Errorf("commands: load keyshare: %w", err)
	}
	var k keyshare.ECDSAKeyShare
	if err := k.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("commands: decode ECDSA keyshare: %w", err)
	}
	peers := make(map[int64]*paillier.PublicKey, len(c.PeerPaillierN))
	for idxStr, nHex := range c.PeerPaillierN {
		var idx int64
		if _, err := fmt.Sscanf(idxStr, "%d", &idx); err != nil {
			return fmt.Errorf("commands: bad party index %q: %w", idxStr, err)
		}
		n, ok := new(big.Int).SetString(nHex, 16)
		if !ok {
			return fmt.Errorf("commands: bad modulus hex for party %s", idxStr)
		}
		pk, err := paillier.NewPublicKey(n)
		if err != nil {
			return fmt.Errorf("commands: party %s: %w", idxStr, err)
		}
		peers[idx] = pk
	}
	k.PeerPaillierPK = peers
	out, err := k.MarshalJSON()
	if err != nil {
		return fmt.Errorf("commands: encode ECDSA keyshare: %w", err)
	}
	return e.Store.SaveKeyShare(c.Email, c.KeyID, 0, out, keystore.Modify)
}

// UpdateSinglePaillierKeyCommand replaces one peer's Paillier public key
// within a stored ECDSA keyshare.
type UpdateSinglePaillierKeyCommand struct {
	Email      string `json:"email"`
	KeyID      string `json:"key_id"`
	PartyIndex int64  `json:"party_index"`
	PaillierN  string `json:"paillier_n"` // hex modulus
}

func (e *Executor) updateSinglePaillierKey(c UpdateSinglePaillierKeyCommand) error {
	data, err := e.Store.LoadKeyShare(c.Email, c.KeyID, 0)
	if err != nil {
		return fmt.Errorf("commands: load keyshare: %w", err)
	}
	var k keyshare.ECDSAKeyShare
	if err := k.UnmarshalJSON(data); err != nil {
		return fmt.Errorf("commands: decode ECDSA keyshare: %w", err)
	}
	n, ok := new(big.Int).SetString(c.PaillierN, 16)
	if !ok {
		return fmt.Errorf("commands: bad modulus hex")
	}
	pk, err := paillier.NewPublicKey(n)
	if err != nil {
		return fmt.Errorf("commands: %w", err)
	}
	if k.PeerPaillierPK == nil {
		k.PeerPaillierPK = make(map[int64]*paillier.PublicKey)
	}
	k.PeerPaillierPK[c.PartyIndex] = pk
	out, err := k.MarshalJSON()
	if err != nil {
		return fmt.Errorf("commands: encode ECDSA keyshare: %w", err)
	}
	return e.Store.SaveKeyShare(c.Email, c.KeyID, 0, out, keystore.Modify)
}

// ParameterlessCommand is a no-argument request selected by its Kind;
// KeyshareInfo is the only kind the original implements
// (get_all_keyshare_indices).
type ParameterlessCommand struct {
	Email string `json:"email"`
	Kind  string `json:"kind"`
}

func (e *Executor) parameterless(c ParameterlessCommand) ([]byte, error) {
	switch c.Kind {
	case "KeyshareInfo":
		ids, err := e.Store.ListKeyIDs(c.Email)
		if err != nil {
			return nil, fmt.Errorf("commands: list keyshare indices: %w", err)
		}
		return json.Marshal(struct {
			KeyIDs []string `json:"key_ids"`
		}{ids})
	default:
		return nil, fmt.Errorf("commands: unknown parameterless kind %q", c.Kind)
	}
}

// EjectSharesCommand reconstructs one private key from Threshold-or-more
// shares supplied directly in the request (spec S5).
type EjectSharesCommand struct {
	Shares []EjectShareWire `json:"shares"`
}

// EjectShareWire is one share's wire shape for the eject commands.
type EjectShareWire struct {
	Curve eject.CurveKind `json:"curve"`
	Share string          `json:"share"` // hex scalar
	Index int64           `json:"index"`
}

// scalarFromBytes decodes a share scalar for the curve named by kind,
// using each curve's own canonical byte encoding.
func scalarFromBytes(kind eject.CurveKind, b []byte) (curveScalar, error) {
	switch kind {
	case eject.CurveSecp256k1:
		return secp256k1.Group.ScalarFromBytes(b)
	case eject.CurveEd25519:
		return ed25519.Group.ScalarFromBytes(b)
	default:
		return nil, fmt.Errorf("commands: unknown curve kind %q", kind)
	}
}

func decodeEjectShares(wire []EjectShareWire) ([]eject.ShareInfo, error) {
	out := make([]eject.ShareInfo, 0, len(wire))
	for _, w := range wire {
		b, err := hex.DecodeString(w.Share)
		if err != nil {
			return nil, fmt.Errorf("commands: bad share hex: %w", err)
		}
		scalar, err := scalarFromBytes(w.Curve, b)
		if err != nil {
			return nil, err
		}
		out = append(out, eject.ShareInfo{Curve: w.Curve, Share: scalar, Index: w.Index})
	}
	return out, nil
}

func ejectShares(c EjectSharesCommand) ([]byte, error) {
	shares, err := decodeEjectShares(c.Shares)
	if err != nil {
		return nil, err
	}
	secret, err := eject.ReconstructPrivateKey(shares)
	if err != nil {
		return nil, fmt.Errorf("commands: %w", err)
	}
	return json.Marshal(struct {
		Key string `json:"key"`
	}{hex.EncodeToString(secret.Bytes())})
}

// EjectKeysCommand reconstructs every named key id from several devices'
// share sets (spec's eject.rs CombineAndReconstruct batch form).
type EjectKeysCommand struct {
	KeyIDs   []string `json:"key_ids"`
	InfoSets [][]struct {
		KeyID     string         `json:"key_id"`
		ShareInfo EjectShareWire `json:"share_info"`
	} `json:"info_sets"`
}

func ejectKeys(c EjectKeysCommand) ([]byte, error) {
	infoSets := make([][]eject.Info, len(c.InfoSets))
	for i, set := range c.InfoSets {
		for _, entry := range set {
			b, err := hex.DecodeString(entry.ShareInfo.Share)
			if err != nil {
				return nil, fmt.Errorf("commands: bad share hex: %w", err)
			}
			sc, err := scalarFromBytes(entry.ShareInfo.Curve, b)
			if err != nil {
				return nil, err
			}
			infoSets[i] = append(infoSets[i], eject.Info{
				KeyID: entry.KeyID,
				ShareInfo: eject.ShareInfo{
					Curve: entry.ShareInfo.Curve,
					Share: sc,
					Index: entry.ShareInfo.Index,
				},
			})
		}
	}
	results := eject.CombineAndReconstruct(c.KeyIDs, infoSets)
	return json.Marshal(results)
}

// UpdateKeyInfoCommand overwrites the cached public key-info blob a
// orchestrator broadcasts after a successful keygen (spec S1's "matching
// UpdateKeyInfoCommand").
type UpdateKeyInfoCommand struct {
	KeyID   string          `json:"key_id"`
	KeyInfo json.RawMessage `json:"key_info"`
}

// GetPaillierKeysCommand reads back the peer Paillier public keys stored
// alongside an ECDSA keyshare.
type GetPaillierKeysCommand struct {
	Email string `json:"email"`
	KeyID string `json:"key_id"`
}

func (e *Executor) getPaillierKeys(c GetPaillierKeysCommand) ([]byte, error) {
	data, err := e.Store.LoadKeyShare(c.Email, c.KeyID, 0)
	if err != nil {
		return nil, fmt.Errorf("commands: load keyshare: %w", err)
	}
	var k keyshare.ECDSAKeyShare
	if err := k.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("commands: decode ECDSA keyshare: %w", err)
	}
	out := make(map[string]string, len(k.PeerPaillierPK))
	for idx, pk := range k.PeerPaillierPK {
		out[fmt.Sprintf("%d", idx)] = pk.N.Text(16)
	}
	return json.Marshal(struct {
		PeerPaillierN map[string]string `json:"peer_paillier_n"`
	}{out})
}
