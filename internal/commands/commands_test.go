package commands_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/internal/commands"
	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/identity"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/keystore"
	"github.com/gridlocknet/node-core/pkg/pairwise"
	"github.com/gridlocknet/node-core/pkg/paillier"
)

func newExecutor(t *testing.T) (*commands.Executor, *keystore.Store, *identity.NodeIdentity, bus.Bus) {
	t.Helper()
	store, err := keystore.New(t.TempDir())
	require.NoError(t, err)
	id, err := identity.New("node-1")
	require.NoError(t, err)
	b := bus.NewInProcess()
	return &commands.Executor{Store: store, Identity: id, Bus: b}, store, id, b
}

func TestExecuteRejectsUnknownDiscriminators(t *testing.T) {
	ex, _, _, _ := newExecutor(t)
	_, err := ex.Execute(context.Background(), []byte(`{"cmd":"NotARealCommand"}`))
	require.Error(t, err)

	_, err = ex.Execute(context.Background(), []byte(`{"command":"NotARealCommand"}`))
	require.Error(t, err)

	_, err = ex.Execute(context.Background(), []byte(`{}`))
	require.Error(t, err)
}

func TestParameterlessKeyshareInfoListsImportedKeys(t *testing.T) {
	ex, _, _, _ := newExecutor(t)

	scalar, err := ed25519.Group.NewScalar()
	require.NoError(t, err)
	pub := scalar.ActOnBase()
	env := map[string]any{
		"command":     "KeyImportShare",
		"email":       "alice@example.com",
		"key_id":      "k1",
		"key_type":    "sr25519",
		"key_share":   hex.EncodeToString(scalar.Bytes()),
		"public_key":  hex.EncodeToString(pub.Bytes()),
		"threshold":   2,
		"party_count": 3,
		"index":       int64(1),
	}
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	_, err = ex.Execute(context.Background(), raw)
	require.NoError(t, err)

	out, err := ex.Execute(context.Background(), []byte(`{"command":"Parameterless","email":"alice@example.com","kind":"KeyshareInfo"}`))
	require.NoError(t, err)
	var resp struct {
		KeyIDs []string `json:"key_ids"`
	}
	require.NoError(t, json.Unmarshal(out, &resp))
	require.Equal(t, []string{"k1"}, resp.KeyIDs)
}

func TestKeyImportRejectsUnsupportedTypes(t *testing.T) {
	ex, _, _, _ := newExecutor(t)
	_, err := ex.Execute(context.Background(), []byte(`{"command":"KeyImport","key_id":"k1","key_type":"ecdsa"}`))
	require.Error(t, err)
}

func TestSr25519KeyGenPublishesAnnouncementToEveryPartyNode(t *testing.T) {
	ex, _, _, b := newExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, unsub, err := b.Subscribe(ctx, "network.gridlock.nodes.KeyGenSr25519.new.node-2")
	require.NoError(t, err)
	defer unsub()

	raw, _ := json.Marshal(map[string]any{
		"command":     "Sr25519KeyGen",
		"session_id":  "sess-1",
		"key_id":      "k1",
		"threshold":   2,
		"party_nodes": []string{"node-1", "node-2"},
	})
	_, err = ex.Execute(ctx, raw)
	require.NoError(t, err)

	select {
	case msg := <-msgs:
		require.Contains(t, string(msg.Data), "sess-1")
	case <-time.After(time.Second):
		t.Fatal("no announcement published")
	}
}

func TestUpdatePaillierKeysRejectsSmallPrimeModulus(t *testing.T) {
	ex, store, _, _ := newExecutor(t)

	scalar, err := secp256k1.Group.NewScalar()
	require.NoError(t, err)
	share := keyshare.ECDSAKeyShare{
		KeyID:      "k1",
		ShareIndex: 1,
		Threshold:  2,
		PartyCount: 3,
		Xi:         scalar,
		PublicKey:  scalar.ActOnBase(),
		PaillierSK: &paillier.PrivateKey{
			PublicKey: paillier.PublicKey{N: big.NewInt(1000003 * 1000033)},
			Lambda:    big.NewInt(1),
			Mu:        big.NewInt(1),
		},
		PeerPaillierPK: map[int64]*paillier.PublicKey{},
	}
	data, err := share.MarshalJSON()
	require.NoError(t, err)
	require.NoError(t, store.SaveKeyShare("alice@example.com", "k1", 0, data, keystore.CreateNewOnly))

	// A modulus with an obvious small factor (3) must be rejected before
	// any value derived from it is used (spec §7 small-prime guard).
	raw, _ := json.Marshal(map[string]any{
		"command": "UpdatePaillierKeys",
		"email":   "alice@example.com",
		"key_id":  "k1",
		"peer_paillier_n": map[string]string{
			"2": big.NewInt(3 * 1000000007).Text(16),
		},
	})
	_, err = ex.Execute(context.Background(), raw)
	require.ErrorContains(t, err, "CVE-2023-33241")
}

func TestSigningAuthTransferGuardDropsMismatchedTransfer(t *testing.T) {
	ex, store, id, _ := newExecutor(t)

	email := "alice@example.com"
	signingKey := make([]byte, 32)
	for i := range signingKey {
		signingKey[i] = byte(i + 1)
	}
	require.NoError(t, store.SaveAccessKey(email, signingKey))
	require.NoError(t, store.SaveUserMetadata(email, "new_identity_key", []byte("PUBKEY_Y")))

	clientSeed, err := randomSeed()
	require.NoError(t, err)
	clientPub, err := pairwise.PublicKey(clientSeed)
	require.NoError(t, err)
	shared, err := pairwise.SharedKey(clientSeed, id.E2EPublicKey)
	require.NoError(t, err)
	sealed, err := pairwise.Seal(shared, signingKey)
	require.NoError(t, err)

	message := []byte("Authorizing ownership transfer to PUBKEY_X")
	timestamp := time.Now().UTC().Format(time.RFC3339)
	mac := hmac.New(sha256.New, signingKey)
	mac.Write([]byte(timestamp + email))

	raw, _ := json.Marshal(map[string]any{
		"command":     "Sr25519KeySign",
		"session_id":  "sess-1",
		"key_id":      "k1",
		"message":     hex.EncodeToString(message),
		"party_nodes": []string{"node-1"},
		"auth": map[string]any{
			"client_e2e_public_key": base64.StdEncoding.EncodeToString(clientPub[:]),
			"encrypted_signing_key": base64.StdEncoding.EncodeToString(sealed),
			"timestamp":             timestamp,
			"message_hmac":          base64.StdEncoding.EncodeToString(mac.Sum(nil)),
			"email":                 email,
			"is_transfer_tx":        true,
		},
	})
	_, err = ex.Execute(context.Background(), raw)
	require.ErrorIs(t, err, commands.ErrAuthFailed)
}

func randomSeed() ([32]byte, error) {
	var seed [32]byte
	scalar, err := ed25519.Group.NewScalar()
	if err != nil {
		return seed, err
	}
	copy(seed[:], scalar.Bytes())
	return seed, nil
}
