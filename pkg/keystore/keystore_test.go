package keystore_test

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/keystore"
)

func newStore(t *testing.T) *keystore.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := keystore.New(dir)
	require.NoError(t, err)
	return s
}

func TestSaveKeyShareCreateNewOnlyRejectsOverwrite(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.SaveKeyShare("alice@example.com", "k1", 0, []byte(`{"kind":"ECDSA_V4"}`), keystore.CreateNewOnly))

	err := s.SaveKeyShare("alice@example.com", "k1", 0, []byte(`{"kind":"ECDSA_V4"}`), keystore.CreateNewOnly)
	require.Error(t, err)

	require.NoError(t, s.SaveKeyShare("alice@example.com", "k1", 0, []byte(`{"kind":"ECDSA_V4","x":1}`), keystore.Modify))

	data, err := s.LoadKeyShare("alice@example.com", "k1", 0)
	require.NoError(t, err)
	require.Contains(t, string(data), `"x":1`)
}

func TestKeySharePathDistinguishesGhostIndex(t *testing.T) {
	s := newStore(t)

	primary := s.KeySharePath("alice@example.com", "k1", 0)
	ghost := s.KeySharePath("alice@example.com", "k1", 2)
	require.NotEqual(t, primary, ghost)
	require.Contains(t, primary, "keyshare-k1.json")
	require.Contains(t, ghost, "keyshare-k1-2.json")
}

func TestGhostShareRoundTripIsEncryptedAtRest(t *testing.T) {
	s := newStore(t)
	plaintext := []byte(`{"kind":"ECDSA_V4","share_index":2}`)

	require.NoError(t, s.SaveGhostShare("alice@example.com", "k1", 2, plaintext, keystore.CreateNewOnly))

	raw, err := os.ReadFile(s.KeySharePath("alice@example.com", "k1", 2))
	require.NoError(t, err)
	require.NotContains(t, string(raw), "ECDSA_V4")

	loaded, err := s.LoadGhostShare("alice@example.com", "k1", 2)
	require.NoError(t, err)
	require.Equal(t, plaintext, loaded)
}

func TestSaveGhostShareRejectsIndexZero(t *testing.T) {
	s := newStore(t)
	err := s.SaveGhostShare("alice@example.com", "k1", 0, []byte("{}"), keystore.CreateNewOnly)
	require.Error(t, err)
}

func TestAccessorReadOnlyCannotSave(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SaveKeyShare("alice@example.com", "k1", 0, []byte(`{"kind":"ECDSA_V4"}`), keystore.CreateNewOnly))

	accessor, data, err := s.OpenAccessor("alice@example.com", "k1", 0, false, false)
	require.NoError(t, err)
	require.Contains(t, string(data), "ECDSA_V4")

	err = accessor.Save([]byte(`{"kind":"ECDSA_V4","x":2}`), keystore.Modify)
	require.Error(t, err)
}

func TestAccessorModifiableCanSave(t *testing.T) {
	s := newStore(t)
	require.NoError(t, s.SaveKeyShare("alice@example.com", "k1", 0, []byte(`{"kind":"ECDSA_V4"}`), keystore.CreateNewOnly))

	accessor, _, err := s.OpenAccessor("alice@example.com", "k1", 0, true, false)
	require.NoError(t, err)

	require.NoError(t, accessor.Save([]byte(`{"kind":"ECDSA_V4","x":2}`), keystore.Modify))

	data, err := s.LoadKeyShare("alice@example.com", "k1", 0)
	require.NoError(t, err)
	require.Contains(t, string(data), `"x":2`)
}

func TestEnsureLatestMigratesHistoricalTag(t *testing.T) {
	s := newStore(t)

	g := ed25519.Group
	xi, err := g.NewScalar()
	require.NoError(t, err)
	share := &keyshare.EdDSAKeyShare{
		KeyID:      "k2",
		ShareIndex: 1,
		Threshold:  2,
		PartyCount: 3,
		Xi:         xi,
		PublicKey:  xi.ActOnBase(),
	}
	latest, err := share.MarshalJSON()
	require.NoError(t, err)

	// Downgrade the tag in place to simulate a file written by an older
	// version, without touching the rest of the (still-compatible) shape.
	old := bytes.Replace(latest, []byte(`"EdDSA_V3"`), []byte(`"EdDSA_V2"`), 1)
	require.NoError(t, s.SaveKeyShare("alice@example.com", "k2", 0, old, keystore.CreateNewOnly))

	migrated, err := keystore.EnsureLatest(s, "alice@example.com", "k2", 0, old)
	require.NoError(t, err)
	require.Contains(t, string(migrated), `"kind":"EdDSA_V3"`)

	onDisk, err := s.LoadKeyShare("alice@example.com", "k2", 0)
	require.NoError(t, err)
	require.Contains(t, string(onDisk), `"kind":"EdDSA_V3"`)
}
