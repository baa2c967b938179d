package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/identity"
	"github.com/gridlocknet/node-core/pkg/mailbox"
	"github.com/gridlocknet/node-core/pkg/session"
)

// directoryRound is the broadcast round the orchestrator uses to hand
// every joined party's networking public key to every other party,
// keyed by party index (spec §4.8's recovery.Identity.PeerPublicKeys
// shape). Participants who don't need pairwise addressing (keygen,
// signing) simply never collect it.
const directoryRound = "directory"

type peerKeyMsg struct {
	NetworkingPublicKey [32]byte `json:"networking_public_key"`
}

// Orchestrate runs the join handshake's other half for a session this
// node is kicking off (session.Join's doc comment: "awaits the
// orchestrator's party-index assignment" — this is that orchestrator).
// It waits for a session.JoinRequest from every node named in
// nodeIndex, replying to each with its assigned party index and the
// complete index set.
//
// nodeIndex maps each participant's node id to its party index for this
// session: sequential 1..N for a fresh keygen or signing session, or the
// real persisted share indices (plus the recovery target's reoccupied
// index) for a recovery session, so a node's messenger is always scoped
// to the index it already holds. dir, when non-nil, records each
// joining node's announced networking public key (spec §6's join
// handshake networking_public_key field), so a later recovery session
// can resolve a helper or target it never otherwise hears from.
func Orchestrate(ctx context.Context, b bus.Bus, topic, sessionID string, nodeIndex map[string]int64, dir *identity.Directory, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = session.DefaultJoinTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	allIndices := make([]int64, 0, len(nodeIndex))
	for _, idx := range nodeIndex {
		allIndices = append(allIndices, idx)
	}
	sort.Slice(allIndices, func(i, j int) bool { return allIndices[i] < allIndices[j] })

	subject := session.JoinSubject(topic, sessionID)
	msgs, unsubscribe, err := b.Subscribe(ctx, subject)
	if err != nil {
		return fmt.Errorf("dispatcher: orchestrate subscribe %s: %w", subject, err)
	}
	defer unsubscribe()

	pending := make(map[string]struct{}, len(nodeIndex))
	for node := range nodeIndex {
		pending[node] = struct{}{}
	}
	keyByIndex := make(map[int64][32]byte, len(nodeIndex))

	for len(pending) > 0 {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("dispatcher: orchestrate %s: bus closed before every party joined", sessionID)
			}
			var req session.JoinRequest
			if err := json.Unmarshal(msg.Data, &req); err != nil {
				logger.Warn("malformed join request", slog.String("session_id", sessionID), slog.Any("error", err))
				continue
			}
			idx, known := nodeIndex[req.NodeID]
			if !known {
				logger.Warn("join request from unexpected node", slog.String("session_id", sessionID), slog.String("node_id", req.NodeID))
				continue
			}
			if dir != nil {
				if err := dir.Put(req.NodeID, req.NetworkingPublicKey); err != nil {
					logger.Warn("record peer networking key", slog.String("node_id", req.NodeID), slog.Any("error", err))
				}
			}
			keyByIndex[idx] = req.NetworkingPublicKey
			resp, err := json.Marshal(session.JoinResponse{SessionID: sessionID, PartyIndex: idx, AllIndices: allIndices})
			if err != nil {
				return fmt.Errorf("dispatcher: marshal join response: %w", err)
			}
			if err := b.Publish(ctx, session.JoinResponseSubject(topic, sessionID, req.NodeID), resp); err != nil {
				return fmt.Errorf("dispatcher: publish join response to %s: %w", req.NodeID, err)
			}
			delete(pending, req.NodeID)
		case <-ctx.Done():
			return fmt.Errorf("dispatcher: orchestrate %s: timed out waiting for %d parties to join: %w", sessionID, len(pending), ctx.Err())
		}
	}

	for _, idx := range allIndices {
		if err := mailbox.PublishBroadcast(ctx, b, topic, sessionID, directoryRound, idx, peerKeyMsg{NetworkingPublicKey: keyByIndex[idx]}); err != nil {
			return fmt.Errorf("dispatcher: publish peer directory: %w", err)
		}
	}
	return nil
}

// CollectPeerDirectory receives the networking public key Orchestrate
// published for every party in the session m is bound to, keyed by
// party index. A pairwise-encrypted protocol (recovery) calls this once
// at the start of its handler to build the Identity its engine needs.
func CollectPeerDirectory(ctx context.Context, m session.Messenger) (map[int64][32]byte, error) {
	round, err := m.CollectBroadcast(ctx, directoryRound, 0)
	if err != nil {
		return nil, fmt.Errorf("dispatcher: collect peer directory: %w", err)
	}
	out := make(map[int64][32]byte, len(round))
	for idx, raw := range round {
		var msg peerKeyMsg
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, fmt.Errorf("dispatcher: collect peer directory: party %d: %w", idx, err)
		}
		out[idx] = msg.NetworkingPublicKey
	}
	return out, nil
}
