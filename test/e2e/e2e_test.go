// Package e2e_test drives the spec's end-to-end scenarios (spec §8,
// S1-S3, S5 and S6; S4's small-modulus rejection is tested in
// internal/commands) across real package boundaries rather than within a single
// protocol's own unit tests: a keygen session's output feeds a signing
// session, a deleted share is regenerated and immediately re-exercised,
// and the command-layer authentication gate is driven the same way
// cmd/gridlocknode's command listener would drive it.
//
// Grounded on _examples/luxfi-threshold's protocols/integration_test.go
// (a ginkgo/gomega suite composing multiple protocol runs across one
// Describe tree) and this repo's own per-package *_test.go files for the
// in-process bus + session.Messenger harness pattern each scenario reuses.
package e2e_test

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	dcrec "github.com/decred/dcrd/dcrec/secp256k1/v4"
	dcrecdsa "github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gridlocknet/node-core/internal/commands"
	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/curve/secp256k1"
	"github.com/gridlocknet/node-core/pkg/identity"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/keystore"
	"github.com/gridlocknet/node-core/pkg/pairwise"
	"github.com/gridlocknet/node-core/pkg/session"
	"github.com/gridlocknet/node-core/pkg/vss"
	"github.com/gridlocknet/node-core/protocols/eject"
	ecdsaKeygen "github.com/gridlocknet/node-core/protocols/keygen/ecdsa"
	eddsaKeygen "github.com/gridlocknet/node-core/protocols/keygen/eddsa"
	"github.com/gridlocknet/node-core/protocols/recovery"
	ecdsaSign "github.com/gridlocknet/node-core/protocols/sign/ecdsa"
	eddsaSign "github.com/gridlocknet/node-core/protocols/sign/eddsa"
)

func TestEndToEndScenarios(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Node End-to-End Scenarios")
}

// runEdDSAKeygen runs protocols/keygen/eddsa.Run for every index in
// allIndices over a shared in-process bus and returns each party's
// resulting share, keyed by index.
func runEdDSAKeygen(b bus.Bus, topic, sessionID string, allIndices []int64, cfg eddsaKeygen.Config) map[int64]*keyshare.EdDSAKeyShare {
	type result struct {
		idx   int64
		share *keyshare.EdDSAKeyShare
		err   error
	}
	out := make(chan result, len(allIndices))
	for _, idx := range allIndices {
		go func(idx int64) {
			info := session.Info{SessionID: sessionID, PartyIndex: idx, PartyCount: len(allIndices), AllIndices: allIndices}
			m := session.NewMessenger(b, topic, info)
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			share, err := eddsaKeygen.Run(ctx, m, cfg)
			out <- result{idx: idx, share: share, err: err}
		}(idx)
	}

	shares := make(map[int64]*keyshare.EdDSAKeyShare, len(allIndices))
	for range allIndices {
		r := <-out
		Expect(r.err).NotTo(HaveOccurred())
		shares[r.idx] = r.share
	}
	return shares
}

func runEdDSASign(b bus.Bus, topic, sessionID string, shares map[int64]*keyshare.EdDSAKeyShare, signers []int64, message []byte) map[int64]*eddsaSign.Signature {
	type result struct {
		idx int64
		sig *eddsaSign.Signature
		err error
	}
	out := make(chan result, len(signers))
	for _, idx := range signers {
		go func(idx int64) {
			info := session.Info{SessionID: sessionID, PartyIndex: idx, PartyCount: len(signers), AllIndices: signers}
			m := session.NewMessenger(b, topic, info)
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			sig, err := eddsaSign.Run(ctx, m, shares[idx], signers, message)
			out <- result{idx: idx, sig: sig, err: err}
		}(idx)
	}

	sigs := make(map[int64]*eddsaSign.Signature, len(signers))
	for range signers {
		r := <-out
		Expect(r.err).NotTo(HaveOccurred())
		sigs[r.idx] = r.sig
	}
	return sigs
}

var _ = Describe("End-to-end scenarios", func() {
	SetDefaultEventuallyTimeout(20 * time.Second)

	// S1: EdDSA keygen 3-of-5.
	It("S1: EdDSA keygen 3-of-5 agrees on the joint key and round-trips through the keystore", func() {
		allIndices := []int64{1, 2, 3, 4, 5}
		b := bus.NewInProcess()
		shares := runEdDSAKeygen(b, "e2e-keygen-eddsa", "sess-s1", allIndices, eddsaKeygen.Config{KeyID: "k1", Threshold: 3})

		store, err := keystore.New(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())

		var pubKeys [][]byte
		for idx, share := range shares {
			Expect(share.VSSCommitments).To(HaveLen(1))
			pubKeys = append(pubKeys, share.PublicKey.Bytes())

			data, err := share.MarshalJSON()
			Expect(err).NotTo(HaveOccurred())
			Expect(store.SaveKeyShare("alice@example.com", "k1", int(idx), data, keystore.CreateNewOnly)).To(Succeed())

			loaded, err := store.LoadKeyShare("alice@example.com", "k1", int(idx))
			Expect(err).NotTo(HaveOccurred())
			var roundTripped keyshare.EdDSAKeyShare
			Expect(roundTripped.UnmarshalJSON(loaded)).To(Succeed())
			Expect(roundTripped.PublicKey.Equal(share.PublicKey)).To(BeTrue())
		}
		for i := 1; i < len(pubKeys); i++ {
			Expect(pubKeys[i]).To(Equal(pubKeys[0]), "every party must agree on y_sum")
		}
	})

	// S2: ECDSA sign on m = "hello".
	It("S2: ECDSA signing on \"hello\" produces a verifiable {r, s, recid}", func() {
		signers := []int64{1, 2, 3}
		b := bus.NewInProcess()

		type keygenResult struct {
			idx   int64
			share *keyshare.ECDSAKeyShare
			err   error
		}
		out := make(chan keygenResult, len(signers))
		for _, idx := range signers {
			go func(idx int64) {
				info := session.Info{SessionID: "sess-s2-keygen", PartyIndex: idx, PartyCount: len(signers), AllIndices: signers}
				m := session.NewMessenger(b, "e2e-keygen-ecdsa", info)
				ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
				defer cancel()
				share, err := ecdsaKeygen.Run(ctx, m, ecdsaKeygen.Config{KeyID: "k2", Threshold: 3})
				out <- keygenResult{idx: idx, share: share, err: err}
			}(idx)
		}
		shares := make(map[int64]*keyshare.ECDSAKeyShare, len(signers))
		for range signers {
			r := <-out
			Expect(r.err).NotTo(HaveOccurred())
			shares[r.idx] = r.share
		}

		digest := sha256.Sum256([]byte("hello"))
		type signResult struct {
			idx int64
			sig *ecdsaSign.Signature
			err error
		}
		sigOut := make(chan signResult, len(signers))
		for _, idx := range signers {
			go func(idx int64) {
				info := session.Info{SessionID: "sess-s2-sign", PartyIndex: idx, PartyCount: len(signers), AllIndices: signers}
				m := session.NewMessenger(b, "e2e-sign-ecdsa", info)
				ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
				defer cancel()
				sig, err := ecdsaSign.Run(ctx, m, shares[idx], signers, digest[:])
				sigOut <- signResult{idx: idx, sig: sig, err: err}
			}(idx)
		}

		var sig *ecdsaSign.Signature
		for range signers {
			r := <-sigOut
			Expect(r.err).NotTo(HaveOccurred())
			sig = r.sig
		}

		Expect(sig.RecoveryID).To(BeNumerically("<", 4), "recid must fit the 2-bit convention")
		Expect(sig.RecoveryID & 1).To(Or(Equal(byte(0)), Equal(byte(1))))

		x, y, ok := secp256k1.XY(shares[signers[0]].PublicKey)
		Expect(ok).To(BeTrue())
		var fx, fy dcrec.FieldVal
		fx.SetByteSlice(x.Bytes())
		fy.SetByteSlice(y.Bytes())
		pub := dcrec.NewPublicKey(&fx, &fy)

		var rMod, sMod dcrec.ModNScalar
		rMod.SetByteSlice(sig.R.Bytes())
		sMod.SetByteSlice(sig.S.Bytes())
		verifySig := dcrecdsa.NewSignature(&rMod, &sMod)
		Expect(verifySig.Verify(digest[:], pub)).To(BeTrue())
	})

	// S3: Recovery of a deleted share, verified by a subsequent sign
	// that includes the regenerated node.
	It("S3: recovering a deleted share lets a subsequent T-of-N sign succeed", func() {
		allIndices := []int64{1, 2, 3, 4, 5}
		keygenBus := bus.NewInProcess()
		shares := runEdDSAKeygen(keygenBus, "e2e-keygen-eddsa-s3", "sess-s3-keygen", allIndices, eddsaKeygen.Config{KeyID: "k3", Threshold: 3})

		const recoveryIndex = int64(3)
		helperIndices := []int64{1, 2, 4, 5}
		deletedShare := shares[recoveryIndex]

		seeds := make(map[int64][32]byte, len(allIndices))
		pubs := make(map[int64][32]byte, len(allIndices))
		for _, idx := range allIndices {
			id, err := identity.New("node")
			Expect(err).NotTo(HaveOccurred())
			seeds[idx] = id.NetworkingSeed
			pub, err := pairwise.PublicKey(id.NetworkingSeed)
			Expect(err).NotTo(HaveOccurred())
			pubs[idx] = pub
		}
		identities := make(map[int64]recovery.Identity, len(allIndices))
		for _, idx := range allIndices {
			peers := make(map[int64][32]byte, len(allIndices)-1)
			for _, other := range allIndices {
				if other != idx {
					peers[other] = pubs[other]
				}
			}
			identities[idx] = recovery.Identity{Seed: seeds[idx], PeerPublicKeys: peers}
		}

		recoveryBus := bus.NewInProcess()
		const topic, sessionID = "e2e-recovery-eddsa", "sess-s3-recover"

		helperErrs := make(chan error, len(helperIndices))
		for _, idx := range helperIndices {
			go func(idx int64) {
				groupInfo := session.Info{SessionID: sessionID, PartyIndex: idx, PartyCount: len(helperIndices), AllIndices: helperIndices}
				groupMessenger := session.NewMessenger(recoveryBus, topic, groupInfo)
				targetInfo := session.Info{SessionID: sessionID, PartyIndex: idx, PartyCount: 2, AllIndices: []int64{idx, recoveryIndex}}
				targetMessenger := session.NewMessenger(recoveryBus, topic, targetInfo)
				ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				helperErrs <- recovery.RunEdDSAHelper(ctx, groupMessenger, targetMessenger, ed25519.Group, identities[idx], shares[idx], recoveryIndex)
			}(idx)
		}

		targetAllIndices := append(append([]int64(nil), helperIndices...), recoveryIndex)
		targetInfo := session.Info{SessionID: sessionID, PartyIndex: recoveryIndex, PartyCount: len(targetAllIndices), AllIndices: targetAllIndices}
		targetMessenger := session.NewMessenger(recoveryBus, topic, targetInfo)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		recovered, err := recovery.RunEdDSATarget(ctx, targetMessenger, ed25519.Group, identities[recoveryIndex], "k3", recoveryIndex, 3)
		cancel()
		Expect(err).NotTo(HaveOccurred())

		for range helperIndices {
			Expect(<-helperErrs).NotTo(HaveOccurred())
		}

		Expect(recovered.Xi.Equal(deletedShare.Xi)).To(BeTrue())
		shares[recoveryIndex] = recovered

		signers := []int64{1, 2, recoveryIndex}
		signBus := bus.NewInProcess()
		sigs := runEdDSASign(signBus, "e2e-sign-eddsa-s3", "sess-s3-sign", shares, signers, []byte("post-recovery message"))
		Expect(sigs).To(HaveLen(len(signers)))
		var prior *eddsaSign.Signature
		for _, sig := range sigs {
			if prior != nil {
				Expect(sig.Bytes()).To(Equal(prior.Bytes()))
			}
			prior = sig
		}
	})

	// S5: Eject with T = 3 shares.
	It("S5: ejecting three shares reconstructs the original root secret", func() {
		g := ed25519.Group
		poly, err := vss.New(g, 2, nil)
		Expect(err).NotTo(HaveOccurred())

		shares := []eject.ShareInfo{
			{Curve: eject.CurveEd25519, Share: poly.Evaluate(g.ScalarFromInt(1)), Index: 1},
			{Curve: eject.CurveEd25519, Share: poly.Evaluate(g.ScalarFromInt(2)), Index: 2},
			{Curve: eject.CurveEd25519, Share: poly.Evaluate(g.ScalarFromInt(3)), Index: 3},
		}

		recovered, err := eject.ReconstructPrivateKey(shares)
		Expect(err).NotTo(HaveOccurred())
		Expect(recovered.Equal(poly.Secret())).To(BeTrue())
	})

	// S6: Transfer guard.
	It("S6: a transfer request naming the wrong public key is dropped before signing", func() {
		store, err := keystore.New(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		id, err := identity.New("node-s6")
		Expect(err).NotTo(HaveOccurred())

		email := "alice@example.com"
		signingKey := make([]byte, 32)
		for i := range signingKey {
			signingKey[i] = byte(i + 1)
		}
		Expect(store.SaveAccessKey(email, signingKey)).To(Succeed())
		Expect(store.SaveUserMetadata(email, "new_identity_key", []byte("PUBKEY_Y"))).To(Succeed())

		clientScalar, err := ed25519.Group.NewScalar()
		Expect(err).NotTo(HaveOccurred())
		var clientSeed [32]byte
		copy(clientSeed[:], clientScalar.Bytes())
		clientPub, err := pairwise.PublicKey(clientSeed)
		Expect(err).NotTo(HaveOccurred())
		shared, err := pairwise.SharedKey(clientSeed, id.E2EPublicKey)
		Expect(err).NotTo(HaveOccurred())
		sealed, err := pairwise.Seal(shared, signingKey)
		Expect(err).NotTo(HaveOccurred())

		message := []byte("Authorizing ownership transfer to PUBKEY_X")
		timestamp := time.Now().UTC().Format(time.RFC3339)
		mac := hmac.New(sha256.New, signingKey)
		mac.Write([]byte(timestamp + email))

		auth := commands.SigningAuth{
			ClientE2EPublicKey:  base64.StdEncoding.EncodeToString(clientPub[:]),
			EncryptedSigningKey: base64.StdEncoding.EncodeToString(sealed),
			Timestamp:           timestamp,
			MessageHMAC:         base64.StdEncoding.EncodeToString(mac.Sum(nil)),
			Email:               email,
			IsTransferTx:        true,
		}
		err = commands.VerifySigningAuth(store, id, "k-s6", auth, message)
		Expect(err).To(MatchError(commands.ErrAuthFailed))

		// Driven through the full command envelope, the same way
		// cmd/gridlocknode's command listener would see it arrive.
		ex := &commands.Executor{Store: store, Identity: id, Bus: bus.NewInProcess()}
		raw, marshalErr := json.Marshal(map[string]any{
			"command":     "Sr25519KeySign",
			"session_id":  "sess-s6",
			"key_id":      "k-s6",
			"message":     hex.EncodeToString(message),
			"party_nodes": []string{"node-s6"},
			"auth": map[string]any{
				"client_e2e_public_key": auth.ClientE2EPublicKey,
				"encrypted_signing_key": auth.EncryptedSigningKey,
				"timestamp":             auth.Timestamp,
				"message_hmac":          auth.MessageHMAC,
				"email":                 auth.Email,
				"is_transfer_tx":        auth.IsTransferTx,
			},
		})
		Expect(marshalErr).NotTo(HaveOccurred())
		_, err = ex.Execute(context.Background(), raw)
		Expect(err).To(MatchError(commands.ErrAuthFailed))
	})
})
