// Package session implements the session joiner and the per-session
// Messenger engines run their rounds through (spec §2 "Session joiner",
// §4.1's subscription/collection contracts bound to one party). A node
// emits a join request, awaits the orchestrator's party-index
// assignment, and gets back a Messenger scoped to that session and
// party — callers never see the bus or subject strings directly.
//
// Grounded on spec §3 "Session state (ephemeral)" (session id, assigned
// party index, party count, the sorted all-indices list, one
// subscription handle per named round) and pkg/tss.Parameters (the
// teacher's session-scoped PartyID/Parties/Threshold bundle), adapted
// from a locally-constructed struct to one populated by a bus
// round-trip with the orchestrator.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/mailbox"
)

// DefaultJoinTimeout bounds the join handshake (spec §4.1's
// "Suspension points": "the join handshake has a 10-second timeout").
const DefaultJoinTimeout = 10 * time.Second

// Info is a session's ephemeral state, assigned by the join handshake.
type Info struct {
	SessionID  string
	PartyIndex int64
	PartyCount int
	AllIndices []int64
}

// JoinRequest is published by a node asking to be admitted to a session
// (spec §6 "Join handshake": "{session_id, node_id,
// networking_public_key, party_index?, thread_index?}"). The
// orchestrator records NetworkingPublicKey against NodeID so later
// pairwise-encrypted rounds (recovery's helper/target exchange) can
// resolve a peer they never otherwise hear from directly.
type JoinRequest struct {
	SessionID           string   `json:"session_id"`
	NodeID              string   `json:"node_id"`
	NetworkingPublicKey [32]byte `json:"networking_public_key"`
}

// JoinResponse is the orchestrator's reply: the complete party index
// set and this node's assigned index (spec §2 "await a response
// declaring the complete party index set").
type JoinResponse struct {
	SessionID  string  `json:"session_id"`
	PartyIndex int64   `json:"party_index"`
	AllIndices []int64 `json:"all_indices"`
}

// JoinSubject is where join requests for a session are published.
func JoinSubject(topic, sessionID string) string {
	return mailbox.Subject(topic, sessionID, "join")
}

// JoinResponseSubject is where the orchestrator addresses its reply to
// a specific node, avoiding a race between subscribing and the
// orchestrator's response.
func JoinResponseSubject(topic, sessionID, nodeID string) string {
	return fmt.Sprintf("%s.response.%s", JoinSubject(topic, sessionID), nodeID)
}

// Join performs the handshake: subscribe to this node's response
// subject, publish the join request, and wait for the orchestrator's
// assignment. On success it returns the session Info and a Messenger
// bound to it.
func Join(ctx context.Context, b bus.Bus, topic, sessionID, nodeID string, networkingPublicKey [32]byte, timeout time.Duration) (Info, Messenger, error) {
	if timeout <= 0 {
		timeout = DefaultJoinTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	respSubject := JoinResponseSubject(topic, sessionID, nodeID)
	resp, unsubscribe, err := b.Subscribe(ctx, respSubject)
	if err != nil {
		return Info{}, nil, fmt.Errorf("session: subscribe join response: %w", err)
	}
	defer unsubscribe()

	reqData, err := json.Marshal(JoinRequest{SessionID: sessionID, NodeID: nodeID, NetworkingPublicKey: networkingPublicKey})
	if err != nil {
		return Info{}, nil, fmt.Errorf("session: marshal join request: %w", err)
	}
	if err := b.Publish(ctx, JoinSubject(topic, sessionID), reqData); err != nil {
		return Info{}, nil, fmt.Errorf("session: publish join request: %w", err)
	}

	select {
	case msg, ok := <-resp:
		if !ok {
			return Info{}, nil, fmt.Errorf("session: bus closed before join response")
		}
		var jr JoinResponse
		if err := json.Unmarshal(msg.Data, &jr); err != nil {
			return Info{}, nil, fmt.Errorf("session: invalid join response: %w", err)
		}
		info := Info{SessionID: sessionID, PartyIndex: jr.PartyIndex, PartyCount: len(jr.AllIndices), AllIndices: jr.AllIndices}
		return info, NewMessenger(b, topic, info), nil
	case <-ctx.Done():
		return Info{}, nil, fmt.Errorf("session: join handshake timed out: %w", ctx.Err())
	}
}

// Messenger is the trait-like seam engines run rounds through (spec §9
// "Trait-like seams": "PeerMessenger... a contract, not a concrete
// type"). A bus-backed implementation and an in-process one share this
// interface, so engines never depend on a concrete transport.
type Messenger interface {
	SessionInfo() Info
	PublishBroadcast(ctx context.Context, round string, payload any) error
	PublishP2P(ctx context.Context, round string, targetIndex int64, payload any) error
	CollectBroadcast(ctx context.Context, round string, timeout time.Duration) (map[int64]json.RawMessage, error)
	CollectP2P(ctx context.Context, round string, timeout time.Duration) (map[int64]json.RawMessage, error)
	// WithAllIndices returns a Messenger bound to the same session and
	// party index but scoped to a different expected-sender set,
	// letting one joined session split into sub-scoped rounds (recovery's
	// helper-group exchange vs. its pairwise handoff to the target).
	WithAllIndices(indices []int64) Messenger
}

// busMessenger is the production Messenger, bound to one bus, topic and
// session Info.
type busMessenger struct {
	b     bus.Bus
	topic string
	info  Info
}

// NewMessenger builds a Messenger bound to an already-assigned session.
func NewMessenger(b bus.Bus, topic string, info Info) Messenger {
	return &busMessenger{b: b, topic: topic, info: info}
}

func (m *busMessenger) SessionInfo() Info { return m.info }

func (m *busMessenger) PublishBroadcast(ctx context.Context, round string, payload any) error {
	return mailbox.PublishBroadcast(ctx, m.b, m.topic, m.info.SessionID, round, m.info.PartyIndex, payload)
}

func (m *busMessenger) PublishP2P(ctx context.Context, round string, targetIndex int64, payload any) error {
	return mailbox.PublishP2P(ctx, m.b, m.topic, m.info.SessionID, round, m.info.PartyIndex, targetIndex, payload)
}

func (m *busMessenger) CollectBroadcast(ctx context.Context, round string, timeout time.Duration) (map[int64]json.RawMessage, error) {
	c := mailbox.NewBroadcastCollector(m.b, m.topic, m.info.SessionID, round, m.info.PartyIndex, m.info.AllIndices, timeout)
	return c.Collect(ctx)
}

func (m *busMessenger) CollectP2P(ctx context.Context, round string, timeout time.Duration) (map[int64]json.RawMessage, error) {
	c := mailbox.NewP2PCollector(m.b, m.topic, m.info.SessionID, round, m.info.PartyIndex, m.info.AllIndices, timeout)
	return c.Collect(ctx)
}

func (m *busMessenger) WithAllIndices(indices []int64) Messenger {
	info := m.info
	info.AllIndices = append([]int64(nil), indices...)
	info.PartyCount = len(indices)
	return NewMessenger(m.b, m.topic, info)
}
