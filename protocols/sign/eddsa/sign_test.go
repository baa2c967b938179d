package eddsa_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/session"
	eddsakeygen "github.com/gridlocknet/node-core/protocols/keygen/eddsa"
	eddsasign "github.com/gridlocknet/node-core/protocols/sign/eddsa"
)

func keygenThreeParty(t *testing.T) map[int64]*keyshare.EdDSAKeyShare {
	t.Helper()
	allIndices := []int64{1, 2, 3}
	b := bus.NewInProcess()

	type result struct {
		idx   int64
		share *keyshare.EdDSAKeyShare
		err   error
	}
	out := make(chan result, len(allIndices))
	for _, idx := range allIndices {
		go func(idx int64) {
			info := session.Info{SessionID: "sess-keygen", PartyIndex: idx, PartyCount: len(allIndices), AllIndices: allIndices}
			m := session.NewMessenger(b, "keygen-eddsa", info)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			share, err := eddsakeygen.Run(ctx, m, eddsakeygen.Config{KeyID: "key-1", Threshold: 3})
			out <- result{idx: idx, share: share, err: err}
		}(idx)
	}

	shares := make(map[int64]*keyshare.EdDSAKeyShare)
	for range allIndices {
		select {
		case r := <-out:
			require.NoError(t, r.err)
			shares[r.idx] = r.share
		case <-time.After(15 * time.Second):
			t.Fatal("timed out waiting for keygen parties")
		}
	}
	return shares
}

func TestThreeOfThreeEdDSASignProducesVerifiableSignature(t *testing.T) {
	shares := keygenThreeParty(t)
	signers := []int64{1, 2, 3}
	message := []byte("threshold eddsa signing test message")

	b := bus.NewInProcess()
	type result struct {
		sig *eddsasign.Signature
		err error
	}
	out := make(chan result, len(signers))
	for _, idx := range signers {
		go func(idx int64) {
			info := session.Info{SessionID: "sess-sign", PartyIndex: idx, PartyCount: len(signers), AllIndices: signers}
			m := session.NewMessenger(b, "sign-eddsa", info)
			ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
			defer cancel()
			sig, err := eddsasign.Run(ctx, m, shares[idx], signers, message)
			out <- result{sig: sig, err: err}
		}(idx)
	}

	var sigs []*eddsasign.Signature
	for range signers {
		select {
		case r := <-out:
			require.NoError(t, r.err)
			sigs = append(sigs, r.sig)
		case <-time.After(25 * time.Second):
			t.Fatal("timed out waiting for signing parties")
		}
	}
	for i := 1; i < len(sigs); i++ {
		require.Equal(t, sigs[0].Bytes(), sigs[i].Bytes())
	}
}
