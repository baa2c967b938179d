// Package mailbox implements the round mailbox (spec §4.1): subject
// naming for broadcast and P2P rounds, the sender-indexed envelope
// wrapper, and collectors that accumulate a round's expected message
// set with sender-duplicate and self-addressed-message rejection, bounded
// by a per-message timeout.
//
// Grounded on pkg/tss/interfaces.go's Message/StateMachine contracts and
// internal/protocol/keygen/round_2.go's receivedMsgs-keyed-by-party-id
// collection idiom, generalized from the teacher's fixed in-process
// party loop to the spec's subject-addressed bus and explicit sender-id
// envelope.
package mailbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/gridlocknet/node-core/pkg/bus"
)

// DefaultTimeout is the bounded per-message wait a collector applies
// before declaring its round a failure (spec §4.1).
const DefaultTimeout = 30 * time.Second

// Envelope is the wire shape every round payload travels in: the
// sender's party index plus the round-specific message (spec §4.1
// "Every payload is wrapped as {sender_id: integer, message: T}").
type Envelope struct {
	SenderID int64           `json:"sender_id"`
	Message  json.RawMessage `json:"message"`
}

// Subject builds the broadcast subject for a round (spec §4.1).
func Subject(topic, sessionID, round string) string {
	return fmt.Sprintf("network.gridlock.nodes.%s.%s.%s", topic, sessionID, round)
}

// P2PSubject builds the subject a P2P round message addressed to
// targetIndex is published on.
func P2PSubject(topic, sessionID, round string, targetIndex int64) string {
	return fmt.Sprintf("%s.%d", Subject(topic, sessionID, round), targetIndex)
}

// PublishBroadcast wraps payload in an Envelope and publishes it on the
// round's broadcast subject.
func PublishBroadcast(ctx context.Context, b bus.Publisher, topic, sessionID, round string, senderID int64, payload any) error {
	return publish(ctx, b, Subject(topic, sessionID, round), senderID, payload)
}

// PublishP2P wraps payload in an Envelope and publishes it to one peer's
// P2P subject for this round.
func PublishP2P(ctx context.Context, b bus.Publisher, topic, sessionID, round string, senderID, targetIndex int64, payload any) error {
	return publish(ctx, b, P2PSubject(topic, sessionID, round, targetIndex), senderID, payload)
}

func publish(ctx context.Context, b bus.Publisher, subject string, senderID int64, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("mailbox: marshal payload: %w", err)
	}
	data, err := json.Marshal(Envelope{SenderID: senderID, Message: raw})
	if err != nil {
		return fmt.Errorf("mailbox: marshal envelope: %w", err)
	}
	return b.Publish(ctx, subject, data)
}

// BroadcastCollector accumulates one message per expected sender on a
// broadcast round's subject.
type BroadcastCollector struct {
	b         bus.Subscriber
	subject   string
	selfIndex int64
	expected  []int64
	timeout   time.Duration
}

// NewBroadcastCollector builds a collector that waits for one message
// from every index in allIndices (including self, per spec §4.1 "every
// party publishes one message; every party collects N messages").
func NewBroadcastCollector(b bus.Subscriber, topic, sessionID, round string, selfIndex int64, allIndices []int64, timeout time.Duration) *BroadcastCollector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &BroadcastCollector{
		b:         b,
		subject:   Subject(topic, sessionID, round),
		selfIndex: selfIndex,
		expected:  append([]int64(nil), allIndices...),
		timeout:   timeout,
	}
}

// Collect blocks until a message has arrived from every expected sender,
// or ctx is cancelled, or the per-message timeout elapses. It returns a
// map keyed by sender id holding the raw (still-wrapped-in-T) payloads.
func (c *BroadcastCollector) Collect(ctx context.Context) (map[int64]json.RawMessage, error) {
	return collect(ctx, c.b, c.subject, c.expected, nil, c.timeout)
}

// P2PCollector accumulates one message per peer on a P2P round's
// subject addressed to selfIndex.
type P2PCollector struct {
	b         bus.Subscriber
	subject   string
	selfIndex int64
	expected  []int64
	timeout   time.Duration
}

// NewP2PCollector builds a collector for the subset of allIndices other
// than selfIndex (spec §4.1 "collects party_count - 1 messages addressed
// to itself").
func NewP2PCollector(b bus.Subscriber, topic, sessionID, round string, selfIndex int64, allIndices []int64, timeout time.Duration) *P2PCollector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	peers := make([]int64, 0, len(allIndices))
	for _, idx := range allIndices {
		if idx != selfIndex {
			peers = append(peers, idx)
		}
	}
	return &P2PCollector{
		b:         b,
		subject:   P2PSubject(topic, sessionID, round, selfIndex),
		selfIndex: selfIndex,
		expected:  peers,
		timeout:   timeout,
	}
}

func (c *P2PCollector) Collect(ctx context.Context) (map[int64]json.RawMessage, error) {
	return collect(ctx, c.b, c.subject, c.expected, &c.selfIndex, c.timeout)
}

// collect is shared by both collector kinds: it subscribes once, then
// accumulates envelopes until every expected sender id has been seen,
// rejecting duplicate senders and (when selfIndex is non-nil, i.e. a P2P
// round) a self-addressed message, per spec §4.1's three collector
// contracts.
func collect(ctx context.Context, b bus.Subscriber, subject string, expected []int64, selfIndex *int64, timeout time.Duration) (map[int64]json.RawMessage, error) {
	msgs, unsubscribe, err := b.Subscribe(ctx, subject)
	if err != nil {
		return nil, fmt.Errorf("mailbox: subscribe %s: %w", subject, err)
	}
	defer unsubscribe()

	need := make(map[int64]struct{}, len(expected))
	for _, idx := range expected {
		need[idx] = struct{}{}
	}
	got := make(map[int64]json.RawMessage, len(expected))

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for len(got) < len(need) {
		select {
		case raw, ok := <-msgs:
			if !ok {
				return nil, fmt.Errorf("mailbox: %s: bus closed before collection complete", subject)
			}
			var env Envelope
			if err := json.Unmarshal(raw.Data, &env); err != nil {
				return nil, fmt.Errorf("mailbox: %s: invalid envelope: %w", subject, err)
			}
			if selfIndex != nil && env.SenderID == *selfIndex {
				return nil, fmt.Errorf("mailbox: %s: received self-addressed message from sender %d", subject, env.SenderID)
			}
			if _, expectedSender := need[env.SenderID]; !expectedSender {
				return nil, fmt.Errorf("mailbox: %s: message from unexpected sender %d", subject, env.SenderID)
			}
			if _, dup := got[env.SenderID]; dup {
				return nil, fmt.Errorf("mailbox: %s: duplicate message from sender %d", subject, env.SenderID)
			}
			got[env.SenderID] = env.Message
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(timeout)
		case <-timer.C:
			return nil, fmt.Errorf("mailbox: %s: timed out after %s waiting for %d/%d messages", subject, timeout, len(got), len(need))
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return got, nil
}

// SortedSenders returns the sender ids of a collected map in ascending
// order, the "party-sorted vectors so that every party sees the same
// order" spec §4.3 calls for.
func SortedSenders(msgs map[int64]json.RawMessage) []int64 {
	out := make([]int64, 0, len(msgs))
	for id := range msgs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
