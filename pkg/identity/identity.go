// Package identity implements a node's long-lived identity (spec §2, §6
// "Join handshake"): the networking keypair used to derive pairwise
// session keys (pkg/pairwise) and a directory mapping peer node ids to
// their networking public keys, so a protocol engine can resolve the
// Identity a pairwise-encrypted round needs without touching the bus or
// session layers.
//
// Grounded on original_source/backend/node/src/node.rs's NodeIdentity
// (node_id, networking_public_key/private_key, e2e_public_key/private_key,
// name) and its load/save-to-a-single-file pattern, adapted from nkeys +
// sodiumoxide box keypairs to pkg/pairwise's X25519-over-Edwards scheme.
package identity

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	mathrand "math/rand"

	"github.com/gridlocknet/node-core/pkg/pairwise"
)

// nodeNames mirrors node.rs's NODE_NAMES: a node introduces itself by a
// friendly name rather than its raw id, picked once at identity creation.
var nodeNames = []string{
	"Cletus", "Vern", "Bertha", "Earl", "Myrtle", "Otis", "Doris", "Clovis",
	"Gus", "Mabel", "Clyde", "Darla", "Buford", "Norma", "Wilbur", "Blanche",
	"Homer", "Gladys", "Chester", "Agnes", "Elmer", "Hazel", "Lloyd", "Velma",
	"Rufus", "Edna", "Virgil", "Gertrude", "Lem", "Nellie", "Alvin", "Thelma",
}

// NodeIdentity is a node's persistent self-description: its networking
// seed (used to derive pairwise session keys per round) and its end-to-end
// keypair (used to decrypt client-originated payloads such as signing
// requests, spec §6 "Signing request authentication").
type NodeIdentity struct {
	NodeID              string   `json:"node_id"`
	Name                string   `json:"name"`
	NetworkingSeed      [32]byte `json:"networking_seed"`
	NetworkingPublicKey [32]byte `json:"networking_public_key"`
	E2ESeed             [32]byte `json:"e2e_seed"`
	E2EPublicKey        [32]byte `json:"e2e_public_key"`
}

// New generates a fresh node identity with random networking and e2e
// seeds.
func New(nodeID string) (*NodeIdentity, error) {
	var netSeed, e2eSeed [32]byte
	if _, err := rand.Read(netSeed[:]); err != nil {
		return nil, fmt.Errorf("identity: generate networking seed: %w", err)
	}
	if _, err := rand.Read(e2eSeed[:]); err != nil {
		return nil, fmt.Errorf("identity: generate e2e seed: %w", err)
	}
	netPub, err := pairwise.PublicKey(netSeed)
	if err != nil {
		return nil, fmt.Errorf("identity: derive networking public key: %w", err)
	}
	e2ePub, err := pairwise.PublicKey(e2eSeed)
	if err != nil {
		return nil, fmt.Errorf("identity: derive e2e public key: %w", err)
	}
	name := nodeNames[mathrand.Intn(len(nodeNames))]
	return &NodeIdentity{
		NodeID:              nodeID,
		Name:                name,
		NetworkingSeed:      netSeed,
		NetworkingPublicKey: netPub,
		E2ESeed:             e2eSeed,
		E2EPublicKey:        e2ePub,
	}, nil
}

// Load reads a node identity from a JSON file (spec §4.7's node.json).
func Load(path string) (*NodeIdentity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var id NodeIdentity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, fmt.Errorf("identity: invalid node identity file %s: %w", path, err)
	}
	return &id, nil
}

// LoadOrCreate loads the identity at path, creating and persisting a new
// one if none exists yet (node.rs's App::new match-or-create pattern).
func LoadOrCreate(path, nodeID string) (*NodeIdentity, error) {
	id, err := Load(path)
	if err == nil {
		return id, nil
	}
	if !os.IsNotExist(err) {
		return nil, err
	}
	id, err = New(nodeID)
	if err != nil {
		return nil, err
	}
	if err := id.Save(path); err != nil {
		return nil, err
	}
	return id, nil
}

// Save persists the identity as JSON.
func (id *NodeIdentity) Save(path string) error {
	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal node identity: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Directory maps peer node ids to their networking public keys, letting
// a protocol engine build the pkg/pairwise.Identity / recovery.Identity a
// round needs. Entries are learned as peers are encountered (e.g. during
// a session's join handshake) and persisted so recovery's later rounds
// can resolve a peer that the current session never announced directly.
type Directory struct {
	path string
	keys map[string][32]byte
}

// OpenDirectory loads a peer directory from path, starting empty if the
// file does not exist yet.
func OpenDirectory(path string) (*Directory, error) {
	d := &Directory{path: path, keys: make(map[string][32]byte)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, err
	}
	var wire map[string][32]byte
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("identity: invalid peer directory %s: %w", path, err)
	}
	d.keys = wire
	return d, nil
}

// Put records a peer's networking public key and persists the directory.
func (d *Directory) Put(nodeID string, publicKey [32]byte) error {
	d.keys[nodeID] = publicKey
	data, err := json.MarshalIndent(d.keys, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: marshal peer directory: %w", err)
	}
	return os.WriteFile(d.path, data, 0o600)
}

// Lookup returns a peer's networking public key, if known.
func (d *Directory) Lookup(nodeID string) ([32]byte, bool) {
	k, ok := d.keys[nodeID]
	return k, ok
}
