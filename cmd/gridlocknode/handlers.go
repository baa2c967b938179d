package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gridlocknet/node-core/internal/commands"
	"github.com/gridlocknet/node-core/internal/dispatcher"
	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/identity"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/keystore"
	"github.com/gridlocknet/node-core/pkg/session"
	eddsaKeygen "github.com/gridlocknet/node-core/protocols/keygen/eddsa"
	ecdsaKeygen "github.com/gridlocknet/node-core/protocols/keygen/ecdsa"
	"github.com/gridlocknet/node-core/protocols/recovery"
	ecdsaSign "github.com/gridlocknet/node-core/protocols/sign/ecdsa"
	eddsaSign "github.com/gridlocknet/node-core/protocols/sign/eddsa"
	"github.com/gridlocknet/node-core/protocols/sign/musig"
)

// node binds the dispatcher.Handlers to this process's local state
// (spec §5's "session handler" role: everything a protocol engine needs
// beyond the Messenger the join handshake already bound).
type node struct {
	store    *keystore.Store
	identity *identity.NodeIdentity
}

// keyGenParams is the subset of OrchestrateKeyGenCommand/
// Sr25519KeyGenCommand a keygen handler needs; the rest (session id,
// party nodes) is already captured in the join handshake's session.Info.
type keyGenParams struct {
	Email     string `json:"email"`
	KeyID     string `json:"key_id"`
	Threshold int    `json:"threshold"`
}

func (n *node) keyGenECDSA(ctx context.Context, info session.Info, m session.Messenger, params json.RawMessage) error {
	var p keyGenParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("gridlocknode: decode keygen params: %w", err)
	}
	share, err := ecdsaKeygen.Run(ctx, m, ecdsaKeygen.Config{KeyID: p.KeyID, Threshold: p.Threshold})
	if err != nil {
		return fmt.Errorf("gridlocknode: ecdsa keygen: %w", err)
	}
	data, err := share.MarshalJSON()
	if err != nil {
		return fmt.Errorf("gridlocknode: encode ecdsa keyshare: %w", err)
	}
	return n.store.SaveKeyShare(p.Email, p.KeyID, 0, data, keystore.CreateNewOnly)
}

func (n *node) keyGenEdDSA(ctx context.Context, info session.Info, m session.Messenger, params json.RawMessage) error {
	var p keyGenParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("gridlocknode: decode keygen params: %w", err)
	}
	share, err := eddsaKeygen.Run(ctx, m, eddsaKeygen.Config{KeyID: p.KeyID, Threshold: p.Threshold})
	if err != nil {
		return fmt.Errorf("gridlocknode: eddsa keygen: %w", err)
	}
	data, err := share.MarshalJSON()
	if err != nil {
		return fmt.Errorf("gridlocknode: encode eddsa keyshare: %w", err)
	}
	return n.store.SaveKeyShare(p.Email, p.KeyID, 0, data, keystore.CreateNewOnly)
}

// keyGenSr25519 runs the same Feldman-VSS DKG protocols/keygen/eddsa
// implements (spec §4.4, reused verbatim — §4.8 "Sr25519... standard
// threshold-EdDSA shares of the same joint polynomial") and persists
// the result two different ways depending on which party_index this
// node landed at: index 0 (the 2FA/client-style slot, spec §4.8
// "all_party_indices... supports 2FA-style share layouts including
// index 0") gets the plain-Shamir Sr25519KeyShare shape with no VSS
// vector, since it is never called on as a recovery helper; every other
// index persists the ordinary EdDSAKeyShare shape, VSS vector and all,
// because a recovery of index 0 needs it (recovery.RunEdDSAHelper's
// helper input).
func (n *node) keyGenSr25519(ctx context.Context, info session.Info, m session.Messenger, params json.RawMessage) error {
	var p keyGenParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("gridlocknode: decode keygen params: %w", err)
	}
	share, err := eddsaKeygen.Run(ctx, m, eddsaKeygen.Config{KeyID: p.KeyID, Threshold: p.Threshold})
	if err != nil {
		return fmt.Errorf("gridlocknode: sr25519 keygen: %w", err)
	}

	if info.PartyIndex == 0 {
		root := &keyshare.Sr25519KeyShare{
			KeyID:      share.KeyID,
			ShareIndex: share.ShareIndex,
			Threshold:  share.Threshold,
			PartyCount: share.PartyCount,
			Xi:         share.Xi,
			PublicKey:  share.PublicKey,
		}
		data, err := root.MarshalJSON()
		if err != nil {
			return fmt.Errorf("gridlocknode: encode sr25519 root keyshare: %w", err)
		}
		return n.store.SaveKeyShare(p.Email, p.KeyID, 0, data, keystore.CreateNewOnly)
	}

	data, err := share.MarshalJSON()
	if err != nil {
		return fmt.Errorf("gridlocknode: encode sr25519 node keyshare: %w", err)
	}
	return n.store.SaveKeyShare(p.Email, p.KeyID, 0, data, keystore.CreateNewOnly)
}

// signParams is the subset of OrchestrateSigningCommand/
// Sr25519KeySignCommand a signing handler needs.
type signParams struct {
	Email   string `json:"email"`
	KeyID   string `json:"key_id"`
	Message string `json:"message"` // hex
}

// ecdsaResult is the {r, s, recid} result-subject payload spec §4.5
// phase 7 calls for.
type ecdsaResult struct {
	R     string `json:"r"`
	S     string `json:"s"`
	Recid byte   `json:"recid"`
}

// signatureResult is the 64-byte R||S result-subject payload the
// Schnorr-family signers (EdDSA, Sr25519 MuSig) publish.
type signatureResult struct {
	Signature string `json:"signature"`
}

func (n *node) keySignECDSA(ctx context.Context, info session.Info, m session.Messenger, params json.RawMessage) error {
	var p signParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("gridlocknode: decode sign params: %w", err)
	}
	share, err := loadECDSAShare(n.store, p.Email, p.KeyID)
	if err != nil {
		return err
	}
	digest, err := hex.DecodeString(p.Message)
	if err != nil {
		return fmt.Errorf("gridlocknode: bad message hex: %w", err)
	}
	sig, err := ecdsaSign.Run(ctx, m, share, info.AllIndices, digest)
	if err != nil {
		return fmt.Errorf("gridlocknode: ecdsa sign: %w", err)
	}
	return m.PublishBroadcast(ctx, "result", ecdsaResult{
		R:     hex.EncodeToString(sig.R.Bytes()),
		S:     hex.EncodeToString(sig.S.Bytes()),
		Recid: sig.RecoveryID,
	})
}

func (n *node) keySignEdDSA(ctx context.Context, info session.Info, m session.Messenger, params json.RawMessage) error {
	var p signParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("gridlocknode: decode sign params: %w", err)
	}
	share, err := loadEdDSAShare(n.store, p.Email, p.KeyID)
	if err != nil {
		return err
	}
	message, err := hex.DecodeString(p.Message)
	if err != nil {
		return fmt.Errorf("gridlocknode: bad message hex: %w", err)
	}
	sig, err := eddsaSign.Run(ctx, m, share, info.AllIndices, message)
	if err != nil {
		return fmt.Errorf("gridlocknode: eddsa sign: %w", err)
	}
	return m.PublishBroadcast(ctx, "result", signatureResult{Signature: hex.EncodeToString(sig.Bytes())})
}

func (n *node) keySignSr25519(ctx context.Context, info session.Info, m session.Messenger, params json.RawMessage) error {
	var p signParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("gridlocknode: decode sign params: %w", err)
	}
	share, err := loadSr25519View(n.store, p.Email, p.KeyID)
	if err != nil {
		return err
	}
	message, err := hex.DecodeString(p.Message)
	if err != nil {
		return fmt.Errorf("gridlocknode: bad message hex: %w", err)
	}
	sig, err := musig.Run(ctx, m, share, info.AllIndices, message)
	if err != nil {
		return fmt.Errorf("gridlocknode: sr25519 musig sign: %w", err)
	}
	return m.PublishBroadcast(ctx, "result", signatureResult{Signature: hex.EncodeToString(sig.Bytes())})
}

// recoveryParams is the subset of OrchestrateRecoveryCommand/
// KeyshareRecoveryCommand a recovery handler needs.
type recoveryParams struct {
	Email         string            `json:"email"`
	KeyID         string            `json:"key_id"`
	Kind          commands.KeyKind  `json:"kind"`
	Threshold     int               `json:"threshold"`
	NewNodeID     string            `json:"new_node_id"`
	HelperIndices map[string]int64  `json:"helper_indices"`
	RecoveryIndex int64             `json:"recovery_index"`
}

// recoveryResult is the {validated, public_key} result-subject payload
// a recovery target publishes once it persists its new share, mirroring
// the validation verdict recovery.go already sends the helpers pairwise
// (spec §4.8's Result-subject "broadcasts a validation result").
type recoveryResult struct {
	Validated bool   `json:"validated"`
	PublicKey string `json:"public_key,omitempty"`
	PaillierN string `json:"paillier_n,omitempty"`
}

// keyShareRecovery dispatches to the helper or target side of spec
// §4.8 by comparing this node's assigned party index (the join
// handshake's session.Info, not a field the command carries directly)
// against the command's recovery_index: the one party assigned that
// index is, by construction, the node being recovered into.
func (n *node) keyShareRecovery(ctx context.Context, info session.Info, m session.Messenger, params json.RawMessage) error {
	var p recoveryParams
	if err := json.Unmarshal(params, &p); err != nil {
		return fmt.Errorf("gridlocknode: decode recovery params: %w", err)
	}

	peerKeys, err := dispatcher.CollectPeerDirectory(ctx, m)
	if err != nil {
		return fmt.Errorf("gridlocknode: recovery peer directory: %w", err)
	}
	recIdentity := recovery.Identity{Seed: n.identity.NetworkingSeed, PeerPublicKeys: peerKeys}

	if info.PartyIndex == p.RecoveryIndex {
		return n.recoveryTarget(ctx, m, p, recIdentity)
	}
	return n.recoveryHelper(ctx, info, m, p, recIdentity)
}

// helperGroupIndices is every assigned party index other than the
// recovery target's, the scope recovery's helper-to-helper additive
// exchange runs over (recovery.go's groupMessenger).
func helperGroupIndices(allIndices []int64, recoveryIndex int64) []int64 {
	out := make([]int64, 0, len(allIndices))
	for _, idx := range allIndices {
		if idx != recoveryIndex {
			out = append(out, idx)
		}
	}
	return out
}

func (n *node) recoveryHelper(ctx context.Context, info session.Info, m session.Messenger, p recoveryParams, id recovery.Identity) error {
	groupMessenger := m.WithAllIndices(helperGroupIndices(info.AllIndices, p.RecoveryIndex))

	// A sr25519-root recovery (recovery_index 0) is always served by
	// helpers holding ordinary EdDSA-shaped shares (spec §4.8); any
	// other recovery_index dispatches on the command's own curve kind.
	if p.RecoveryIndex == 0 || p.Kind == commands.KeyKindEdDSA {
		share, err := loadEdDSAShare(n.store, p.Email, p.KeyID)
		if err != nil {
			return err
		}
		return recovery.RunEdDSAHelper(ctx, groupMessenger, m, ed25519.Group, id, share, p.RecoveryIndex)
	}

	share, err := loadECDSAShare(n.store, p.Email, p.KeyID)
	if err != nil {
		return err
	}
	return recovery.RunECDSAHelper(ctx, groupMessenger, m, secp256k1.Group, id, share, p.RecoveryIndex)
}

func (n *node) recoveryTarget(ctx context.Context, m session.Messenger, p recoveryParams, id recovery.Identity) error {
	if p.RecoveryIndex == 0 {
		share, err := recovery.RunSr25519Target(ctx, m, ed25519.Group, id, p.KeyID, p.Threshold)
		if err != nil {
			_ = m.PublishBroadcast(ctx, "result", recoveryResult{Validated: false})
			return fmt.Errorf("gridlocknode: sr25519 recovery target: %w", err)
		}
		data, err := share.MarshalJSON()
		if err != nil {
			return fmt.Errorf("gridlocknode: encode recovered sr25519 keyshare: %w", err)
		}
		if err := n.store.SaveKeyShare(p.Email, p.KeyID, 0, data, keystore.CreateNewOnly); err != nil {
			return fmt.Errorf("gridlocknode: save recovered sr25519 keyshare: %w", err)
		}
		return m.PublishBroadcast(ctx, "result", recoveryResult{Validated: true, PublicKey: hex.EncodeToString(share.PublicKey.Bytes())})
	}

	if p.Kind == commands.KeyKindEdDSA {
		share, err := recovery.RunEdDSATarget(ctx, m, ed25519.Group, id, p.KeyID, p.RecoveryIndex, p.Threshold)
		if err != nil {
			_ = m.PublishBroadcast(ctx, "result", recoveryResult{Validated: false})
			return fmt.Errorf("gridlocknode: eddsa recovery target: %w", err)
		}
		data, err := share.MarshalJSON()
		if err != nil {
			return fmt.Errorf("gridlocknode: encode recovered eddsa keyshare: %w", err)
		}
		if err := n.store.SaveKeyShare(p.Email, p.KeyID, 0, data, keystore.CreateNewOnly); err != nil {
			return fmt.Errorf("gridlocknode: save recovered eddsa keyshare: %w", err)
		}
		return m.PublishBroadcast(ctx, "result", recoveryResult{Validated: true, PublicKey: hex.EncodeToString(share.PublicKey.Bytes())})
	}

	share, newPK, err := recovery.RunECDSATarget(ctx, m, secp256k1.Group, id, p.KeyID, p.RecoveryIndex, p.Threshold)
	if err != nil {
		_ = m.PublishBroadcast(ctx, "result", recoveryResult{Validated: false})
		return fmt.Errorf("gridlocknode: ecdsa recovery target: %w", err)
	}
	data, err := share.MarshalJSON()
	if err != nil {
		return fmt.Errorf("gridlocknode: encode recovered ecdsa keyshare: %w", err)
	}
	if err := n.store.SaveKeyShare(p.Email, p.KeyID, 0, data, keystore.CreateNewOnly); err != nil {
		return fmt.Errorf("gridlocknode: save recovered ecdsa keyshare: %w", err)
	}
	// The fresh Paillier public key this position now signs with is
	// broadcast on the result subject; propagating it into the
	// remaining live nodes' stored peer_paillier_n maps (an
	// UpdateSinglePaillierKeyCommand per node) is the orchestrator's
	// concern, not this engine's (spec §4.8 "the caller is responsible
	// for distributing the resulting public key").
	return m.PublishBroadcast(ctx, "result", recoveryResult{
		Validated: true,
		PublicKey: hex.EncodeToString(share.PublicKey.Bytes()),
		PaillierN: newPK.N.Text(16),
	})
}

func loadECDSAShare(store *keystore.Store, email, keyID string) (*keyshare.ECDSAKeyShare, error) {
	data, err := store.LoadKeyShare(email, keyID, 0)
	if err != nil {
		return nil, fmt.Errorf("gridlocknode: load ecdsa keyshare: %w", err)
	}
	var share keyshare.ECDSAKeyShare
	if err := share.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("gridlocknode: decode ecdsa keyshare: %w", err)
	}
	return &share, nil
}

func loadEdDSAShare(store *keystore.Store, email, keyID string) (*keyshare.EdDSAKeyShare, error) {
	data, err := store.LoadKeyShare(email, keyID, 0)
	if err != nil {
		return nil, fmt.Errorf("gridlocknode: load eddsa keyshare: %w", err)
	}
	var share keyshare.EdDSAKeyShare
	if err := share.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("gridlocknode: decode eddsa keyshare: %w", err)
	}
	return &share, nil
}

// loadSr25519View loads a stored keyshare for Sr25519 signing,
// accepting either the plain-Shamir Sr25519KeyShare shape (index 0) or
// an ordinary Feldman-VSS EdDSAKeyShare (every other index, spec §4.8)
// and returning only the fields musig.Run needs either way.
func loadSr25519View(store *keystore.Store, email, keyID string) (*keyshare.Sr25519KeyShare, error) {
	data, err := store.LoadKeyShare(email, keyID, 0)
	if err != nil {
		return nil, fmt.Errorf("gridlocknode: load sr25519 keyshare: %w", err)
	}
	kind, err := keyshare.DetectKind(data)
	if err != nil {
		return nil, fmt.Errorf("gridlocknode: detect sr25519 keyshare kind: %w", err)
	}
	if kind == keyshare.KindSr25519 {
		var share keyshare.Sr25519KeyShare
		if err := share.UnmarshalJSON(data); err != nil {
			return nil, fmt.Errorf("gridlocknode: decode sr25519 keyshare: %w", err)
		}
		return &share, nil
	}
	var share keyshare.EdDSAKeyShare
	if err := share.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("gridlocknode: decode eddsa-shaped sr25519 keyshare: %w", err)
	}
	return &keyshare.Sr25519KeyShare{
		KeyID:      share.KeyID,
		ShareIndex: share.ShareIndex,
		Threshold:  share.Threshold,
		PartyCount: share.PartyCount,
		Xi:         share.Xi,
		PublicKey:  share.PublicKey,
	}, nil
}
