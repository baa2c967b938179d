package musig_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/curve/ed25519"
	"github.com/gridlocknet/node-core/pkg/keyshare"
	"github.com/gridlocknet/node-core/pkg/session"
	"github.com/gridlocknet/node-core/pkg/vss"
	"github.com/gridlocknet/node-core/protocols/sign/musig"
)

// buildSr25519Shares hand-constructs a plain-Shamir 2-of-3 Sr25519 key
// share set (no on-wire DKG exists for this path yet) so the MuSig
// cosigning round can be exercised directly against known shares.
func buildSr25519Shares(t *testing.T) map[int64]*keyshare.Sr25519KeyShare {
	t.Helper()
	g := ed25519.Group
	poly, err := vss.New(g, 1, nil)
	require.NoError(t, err)

	indices := []int64{1, 2, 3}
	shares := make(map[int64]*keyshare.Sr25519KeyShare, len(indices))
	for _, idx := range indices {
		shares[idx] = &keyshare.Sr25519KeyShare{
			KeyID:      "key-musig",
			ShareIndex: idx,
			Threshold:  2,
			PartyCount: 3,
			Xi:         poly.Evaluate(g.ScalarFromInt(idx)),
			PublicKey:  poly.Secret().ActOnBase(),
		}
	}
	return shares
}

func TestMuSigCosignProducesVerifiableSignature(t *testing.T) {
	shares := buildSr25519Shares(t)
	signers := []int64{1, 3}
	message := []byte("schnorrkel musig cosigning test message")

	b := bus.NewInProcess()
	type result struct {
		sig *musig.Signature
		err error
	}
	out := make(chan result, len(signers))
	for _, idx := range signers {
		go func(idx int64) {
			info := session.Info{SessionID: "sess-musig", PartyIndex: idx, PartyCount: len(signers), AllIndices: signers}
			m := session.NewMessenger(b, "musig-cosign", info)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			sig, err := musig.Run(ctx, m, shares[idx], signers, message)
			out <- result{sig: sig, err: err}
		}(idx)
	}

	var sigs []*musig.Signature
	for range signers {
		select {
		case r := <-out:
			require.NoError(t, r.err)
			sigs = append(sigs, r.sig)
		case <-time.After(15 * time.Second):
			t.Fatal("timed out waiting for cosigning parties")
		}
	}
	for i := 1; i < len(sigs); i++ {
		require.Equal(t, sigs[0].Bytes(), sigs[i].Bytes())
	}
	require.False(t, sigs[0].S.IsZero())
}
