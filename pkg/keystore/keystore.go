// Package keystore implements the on-disk keyshare store (spec §4.7):
// the directory layout rooted at a configured storage dir, CreateNewOnly
// vs Modify write semantics, ghost shares (a second, at-rest-encrypted
// copy of a keyshare for migration), and an accessor type through which a
// loaded keyshare is owned — writing through a read-only accessor is
// impossible by construction (spec §8 "Ownership of keyshares").
//
// Grounded on original_source/backend/node/src/storage/fs.go's WriteOpts
// (CreateNewOnly/Modify) and path layout, and
// storage/keyshare_access.rs's KeyshareAccessor (read_only vs modifiable,
// an optional saver attached only to the latter).
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gridlocknet/node-core/pkg/keyshare"
)

// WriteMode controls whether Save may overwrite an existing file.
type WriteMode int

const (
	// CreateNewOnly fails if the target file already exists.
	CreateNewOnly WriteMode = iota
	// Modify creates or overwrites the target file.
	Modify
)

// ghostKey is the fixed, compile-time symmetric key used to encrypt
// ghost shares at rest. This is acknowledged placeholder cryptography
// (spec §4.7, §9 open questions) carried over unchanged from the
// original's TEMP_ENCRYPTION_KEY.
var ghostKey = []byte("gridlock-ghost-share-placeholder")

func init() {
	if len(ghostKey) != 32 {
		panic("keystore: ghost key must be 32 bytes")
	}
}

// Store roots the keyshare file layout at a directory.
type Store struct {
	Root string
}

// New returns a Store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	return &Store{Root: root}, nil
}

// NodeIdentityPath is <root>/node.json.
func (s *Store) NodeIdentityPath() string {
	return filepath.Join(s.Root, "node.json")
}

// KeyDir is <root>/accounts/<email>/keys/<key_id>.
func (s *Store) KeyDir(email, keyID string) string {
	return filepath.Join(s.Root, "accounts", email, "keys", keyID)
}

// KeySharePath is the primary keyshare file (idx 0) or a ghost share
// (idx != 0), per spec §4.7's directory layout.
func (s *Store) KeySharePath(email, keyID string, idx int) string {
	if idx == 0 {
		return filepath.Join(s.KeyDir(email, keyID), fmt.Sprintf("keyshare-%s.json", keyID))
	}
	return filepath.Join(s.KeyDir(email, keyID), fmt.Sprintf("keyshare-%s-%d.json", keyID, idx))
}

// MetadataPath is <root>/accounts/<email>/keys/<key_id>/<metadataType>-<key_id>.
func (s *Store) MetadataPath(email, keyID, metadataType string) string {
	return filepath.Join(s.KeyDir(email, keyID), fmt.Sprintf("%s-%s", metadataType, keyID))
}

// AccessKeyPath is <root>/accounts/<email>/access_key.
func (s *Store) AccessKeyPath(email string) string {
	return filepath.Join(s.Root, "accounts", email, "access_key")
}

// UserMetadataPath is <root>/accounts/<email>/<metadataType>.
func (s *Store) UserMetadataPath(email, metadataType string) string {
	return filepath.Join(s.Root, "accounts", email, metadataType)
}

// KeyInfoPath is <root>/info--<key_id>.json.
func (s *Store) KeyInfoPath(keyID string) string {
	return filepath.Join(s.Root, fmt.Sprintf("info--%s.json", keyID))
}

// writeFile applies mode's overwrite semantics before writing.
func writeFile(path string, data []byte, mode WriteMode) error {
	if mode == CreateNewOnly {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("keystore: refusing to overwrite existing file %s", path)
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// SaveKeyShare writes a keyshare file (plaintext JSON) under mode's
// overwrite semantics.
func (s *Store) SaveKeyShare(email, keyID string, idx int, data []byte, mode WriteMode) error {
	return writeFile(s.KeySharePath(email, keyID, idx), data, mode)
}

// LoadKeyShare reads a keyshare file's raw bytes without decoding it;
// callers route to the right keyshare.Kind via keyshare.DetectKind.
func (s *Store) LoadKeyShare(email, keyID string, idx int) ([]byte, error) {
	return os.ReadFile(s.KeySharePath(email, keyID, idx))
}

// ImportShare writes an externally-constructed keyshare directly into
// the store, bypassing keygen entirely (spec's supplemented key-import
// feature). Grounded on
// original_source/backend/node/src/keygen/key_import.rs's
// KeyImportShareCommand: the operator supplies a complete share (secret,
// VSS commitments, threshold, index) produced outside this node, and it
// is saved exactly as a keygen-produced share would be.
func (s *Store) ImportShare(email, keyID string, idx int, share json.Marshaler, mode WriteMode) error {
	data, err := share.MarshalJSON()
	if err != nil {
		return fmt.Errorf("keystore: marshal imported share: %w", err)
	}
	return s.SaveKeyShare(email, keyID, idx, data, mode)
}

// SaveGhostShare writes a ghost share: the same keyshare bytes, sealed
// under the fixed ghost key (spec §4.7). Ghost shares always use a
// nonzero idx.
func (s *Store) SaveGhostShare(email, keyID string, idx int, plaintext []byte, mode WriteMode) error {
	if idx == 0 {
		return errors.New("keystore: ghost shares must use a nonzero index")
	}
	sealed, err := ghostSeal(plaintext)
	if err != nil {
		return err
	}
	return writeFile(s.KeySharePath(email, keyID, idx), sealed, mode)
}

// LoadGhostShare reads and decrypts a ghost share, returning the
// plaintext keyshare bytes.
func (s *Store) LoadGhostShare(email, keyID string, idx int) ([]byte, error) {
	sealed, err := os.ReadFile(s.KeySharePath(email, keyID, idx))
	if err != nil {
		return nil, err
	}
	return ghostOpen(sealed)
}

func ghostGCM() (cipher.AEAD, error) {
	block, err := aes.NewCipher(ghostKey)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func ghostSeal(plaintext []byte) ([]byte, error) {
	gcm, err := ghostGCM()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func ghostOpen(sealed []byte) ([]byte, error) {
	gcm, err := ghostGCM()
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, errors.New("keystore: ghost share shorter than nonce")
	}
	nonce, ct := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	return gcm.Open(nil, nonce, ct, nil)
}

// SaveUserMetadata writes a small per-user file such as the signing-auth
// access key or a pending new-identity transfer key (spec §6 "Signing
// request authentication").
func (s *Store) SaveUserMetadata(email, metadataType string, data []byte) error {
	return writeFile(s.UserMetadataPath(email, metadataType), data, Modify)
}

// LoadUserMetadata reads a per-user metadata file saved by
// SaveUserMetadata.
func (s *Store) LoadUserMetadata(email, metadataType string) ([]byte, error) {
	return os.ReadFile(s.UserMetadataPath(email, metadataType))
}

// DeleteUserMetadata removes a per-user metadata file, used once the
// transfer guard's new_identity_key has been consumed (spec §6 step d).
// A missing file is not an error.
func (s *Store) DeleteUserMetadata(email, metadataType string) error {
	if err := os.Remove(s.UserMetadataPath(email, metadataType)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// SaveAccessKey writes the user's access key (the public key the
// signing-auth transfer guard compares an ownership-transfer claim
// against).
func (s *Store) SaveAccessKey(email string, key []byte) error {
	return writeFile(s.AccessKeyPath(email), key, Modify)
}

// LoadAccessKey reads the user's access key.
func (s *Store) LoadAccessKey(email string) ([]byte, error) {
	return os.ReadFile(s.AccessKeyPath(email))
}

// SaveKeyInfo writes the cached public key-info blob an orchestrator
// broadcasts after a successful keygen (spec S1's UpdateKeyInfoCommand).
func (s *Store) SaveKeyInfo(keyID string, data []byte) error {
	return writeFile(s.KeyInfoPath(keyID), data, Modify)
}

// LoadKeyInfo reads a key-info blob saved by SaveKeyInfo.
func (s *Store) LoadKeyInfo(keyID string) ([]byte, error) {
	return os.ReadFile(s.KeyInfoPath(keyID))
}

// ListKeyIDs returns every key id an account holds a primary keyshare
// for (command.rs's ParameterlessCommand::KeyshareInfo /
// get_all_keyshare_indices).
func (s *Store) ListKeyIDs(email string) ([]string, error) {
	root := filepath.Join(s.Root, "accounts", email, "keys")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// Accessor owns a loaded keyshare of kind family (see keyshare.Family).
// A read-only Accessor has no saver: Save returns an error, matching the
// original's "writing through a read-only accessor is impossible by
// construction" (spec §8).
type Accessor struct {
	store      *Store
	email      string
	keyID      string
	idx        int
	modifiable bool
	ghost      bool
}

// OpenAccessor loads keyshare raw bytes and wraps them in an Accessor.
// writable grants Save; ghost reads/writes through the ghost-share AEAD
// envelope instead of plaintext.
func (s *Store) OpenAccessor(email, keyID string, idx int, writable, ghost bool) (*Accessor, []byte, error) {
	var data []byte
	var err error
	if ghost {
		data, err = s.LoadGhostShare(email, keyID, idx)
	} else {
		data, err = s.LoadKeyShare(email, keyID, idx)
	}
	if err != nil {
		return nil, nil, err
	}
	return &Accessor{store: s, email: email, keyID: keyID, idx: idx, modifiable: writable, ghost: ghost}, data, nil
}

// Save writes data back through the accessor. Ghost accessors always
// re-save as plaintext at idx 0 once decrypted — "decrypt_ghost_shares"
// promotes a ghost share to the primary keyshare (spec §4.7).
func (a *Accessor) Save(data []byte, mode WriteMode) error {
	if !a.modifiable {
		return errors.New("keystore: accessor is read-only")
	}
	if a.ghost {
		return a.store.SaveKeyShare(a.email, a.keyID, 0, data, mode)
	}
	return a.store.SaveKeyShare(a.email, a.keyID, a.idx, data, mode)
}

// EnsureLatest decodes the family named by kind and, if the file wasn't
// already tagged with the latest kind for its family, rewrites it so the
// on-disk copy migrates silently to the latest format (spec §4.7).
func EnsureLatest(store *Store, email, keyID string, idx int, data []byte) ([]byte, error) {
	kind, err := keyshare.DetectKind(data)
	if err != nil {
		return nil, err
	}
	if keyshare.IsLatest(kind) {
		return data, nil
	}
	var migrated []byte
	switch keyshare.Family(kind) {
	case "ecdsa":
		var k keyshare.ECDSAKeyShare
		if err := k.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		if migrated, err = k.MarshalJSON(); err != nil {
			return nil, err
		}
	case "eddsa":
		var k keyshare.EdDSAKeyShare
		if err := k.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		if migrated, err = k.MarshalJSON(); err != nil {
			return nil, err
		}
	case "sr25519":
		var k keyshare.Sr25519KeyShare
		if err := k.UnmarshalJSON(data); err != nil {
			return nil, err
		}
		if migrated, err = k.MarshalJSON(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("keystore: unknown keyshare kind %q", kind)
	}
	if err := store.SaveKeyShare(email, keyID, idx, migrated, Modify); err != nil {
		return nil, err
	}
	return migrated, nil
}
