// Package bus abstracts the untrusted publish/subscribe message bus
// nodes use to run the round-based protocols (spec §4.1, §9 "Trait-like
// seams"): a thin Publisher/Subscriber contract with a NATS backend for
// production and an in-process backend for tests, so the mailbox and
// session layers above never depend on a concrete transport.
//
// Grounded on pkg/tss/interfaces.go's contract-not-concrete-type shape
// (Message/StateMachine as interfaces the engine is coded against) and
// luxfi-threshold's pkg/protocol/handler.go (an outbound channel the
// protocol writes to, decoupled from how messages actually leave the
// process).
package bus

import (
	"context"
	"errors"
	"sync"
)

// Message is an opaque payload received on a subject. Reply carries the
// transport's reply-to subject when the publisher used a request/reply
// pattern (NATS's native Msg.Reply); it is empty for plain broadcast
// publishes and for every InProcess message, since tests invoke command
// handling directly rather than over a simulated request/reply round
// trip.
type Message struct {
	Subject string
	Data    []byte
	Reply   string
}

// Publisher sends an opaque payload to a subject.
type Publisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// Subscriber opens a subscription on a subject, returning a channel of
// messages and an unsubscribe function. The channel is closed after
// Unsubscribe is called.
type Subscriber interface {
	Subscribe(ctx context.Context, subject string) (msgs <-chan Message, unsubscribe func(), err error)
}

// Bus is the full contract the mailbox and session layers depend on.
type Bus interface {
	Publisher
	Subscriber
	Close() error
}

// ErrClosed is returned by a Bus once Close has been called.
var ErrClosed = errors.New("bus: closed")

// InProcess is an in-memory Bus for unit and end-to-end tests: publish
// fans out synchronously to every live subscriber channel on the same
// subject (spec §9 "an in-process channel... backend").
type InProcess struct {
	mu     sync.Mutex
	subs   map[string][]chan Message
	closed bool
}

// NewInProcess returns an empty in-process bus.
func NewInProcess() *InProcess {
	return &InProcess{subs: make(map[string][]chan Message)}
}

func (b *InProcess) Publish(ctx context.Context, subject string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}
	msg := Message{Subject: subject, Data: append([]byte(nil), data...)}
	for _, ch := range b.subs[subject] {
		select {
		case ch <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b *InProcess) Subscribe(ctx context.Context, subject string) (<-chan Message, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, nil, ErrClosed
	}
	ch := make(chan Message, 64)
	b.subs[subject] = append(b.subs[subject], ch)
	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		peers := b.subs[subject]
		for i, c := range peers {
			if c == ch {
				b.subs[subject] = append(peers[:i], peers[i+1:]...)
				break
			}
		}
		close(ch)
	}
	return ch, unsubscribe, nil
}

// Close marks the bus closed; further Publish/Subscribe calls fail.
func (b *InProcess) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}
