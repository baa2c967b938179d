// Package dispatcher implements the node's top-level message routing:
// one goroutine per session (spec §5 "thread-per-session scheduling"),
// the join handshake that turns a new-session announcement into a bound
// session.Messenger, panic containment so one session's failure never
// takes down another, and the bus reconnect backoff loop used at
// startup.
//
// Grounded on original_source/backend/node/src/lib.rs's handle_message
// (a subject-prefix switch dispatching to each protocol's
// handle_new_session_message, itself spawning a named thread per
// command.rs's handle_nats_command) and node.rs's App::try_reconnect.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gridlocknet/node-core/internal/observability"
	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/identity"
	"github.com/gridlocknet/node-core/pkg/session"
)

// NewSessionMessage is published on a protocol's "new session" subject
// to invite this node into a session; Params carries whatever
// protocol-specific arguments the handler needs (threshold, key id,
// message to sign, recovery index, ...).
type NewSessionMessage struct {
	SessionID string          `json:"session_id"`
	Params    json.RawMessage `json:"params"`
}

// Handler runs one session to completion, given the Messenger the join
// handshake produced and the new-session announcement's raw params.
type Handler func(ctx context.Context, info session.Info, m session.Messenger, params json.RawMessage) error

// NewSessionSubject is where a protocol's new-session announcements for
// this node arrive (spec §6's "*.new.<node_id>" pattern).
func NewSessionSubject(topic, nodeID string) string {
	return fmt.Sprintf("network.gridlock.nodes.%s.new.%s", topic, nodeID)
}

// Dispatcher owns the bus connection and routes incoming new-session
// announcements to registered protocol handlers, one goroutine each.
type Dispatcher struct {
	Bus         bus.Bus
	NodeID      string
	JoinTimeout time.Duration
	Logger      *slog.Logger
	// Identity, when set, is announced in every join request this node
	// makes (spec §6's join handshake networking_public_key field) so
	// peers can resolve it for later pairwise-encrypted rounds.
	Identity *identity.NodeIdentity

	handlers map[string]Handler
}

// New returns a Dispatcher with no handlers registered yet. id may be
// nil for tests that don't exercise pairwise-encrypted protocols.
func New(b bus.Bus, nodeID string, id *identity.NodeIdentity, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		Bus:         b,
		NodeID:      nodeID,
		JoinTimeout: session.DefaultJoinTimeout,
		Logger:      logger,
		Identity:    id,
		handlers:    make(map[string]Handler),
	}
}

// Register binds a protocol topic (e.g. "keyGen", "KeyGenEdDSA",
// "KeySignSr25519", "KeyShareRecovery") to the Handler that runs its
// sessions.
func (d *Dispatcher) Register(topic string, handler Handler) {
	d.handlers[topic] = handler
}

// Run subscribes to every registered topic's new-session subject and
// services messages until ctx is cancelled. Each announcement spawns its
// own goroutine (spec §5 "thread-per-session"); a panicking session
// worker is recovered and logged, never propagated to its siblings or to
// Run's caller.
func (d *Dispatcher) Run(ctx context.Context) error {
	type sub struct {
		topic string
		msgs  <-chan bus.Message
		stop  func()
	}
	var subs []sub
	defer func() {
		for _, s := range subs {
			s.stop()
		}
	}()

	for topic := range d.handlers {
		subject := NewSessionSubject(topic, d.NodeID)
		msgs, stop, err := d.Bus.Subscribe(ctx, subject)
		if err != nil {
			return fmt.Errorf("dispatcher: subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub{topic: topic, msgs: msgs, stop: stop})
	}

	cases := make(chan struct {
		topic string
		msg   bus.Message
	})
	for _, s := range subs {
		s := s
		go func() {
			for msg := range s.msgs {
				select {
				case cases <- struct {
					topic string
					msg   bus.Message
				}{s.topic, msg}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case item := <-cases:
			d.spawnSession(ctx, item.topic, item.msg)
		}
	}
}

func (d *Dispatcher) spawnSession(ctx context.Context, topic string, msg bus.Message) {
	handler := d.handlers[topic]
	var announce NewSessionMessage
	if err := json.Unmarshal(msg.Data, &announce); err != nil {
		d.Logger.Error("malformed new-session announcement", slog.String("topic", topic), slog.Any("error", err))
		return
	}

	logger := observability.ForSession(d.Logger, announce.SessionID, topic)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("session worker panicked", slog.Any("panic", r))
			}
		}()

		var networkingPublicKey [32]byte
		if d.Identity != nil {
			networkingPublicKey = d.Identity.NetworkingPublicKey
		}
		info, m, err := session.Join(ctx, d.Bus, topic, announce.SessionID, d.NodeID, networkingPublicKey, d.JoinTimeout)
		if err != nil {
			logger.Error("join handshake failed", slog.Any("error", err))
			return
		}
		sessionCtx := observability.IntoContext(ctx, logger)
		if err := handler(sessionCtx, info, m, announce.Params); err != nil {
			logger.Error("session failed", slog.Any("error", err))
			return
		}
		logger.Info("session completed")
	}()
}

// ConnectWithBackoff dials the bus, retrying with exponential backoff
// (1s, 2s, 4s, 8s between the default five attempts) for up to
// maxAttempts attempts when the initial
// connection fails (spec §5 "exponential backoff... capped at 5
// attempts", mirroring node.rs's retry_on_failed_connect at a coarser,
// whole-redial grain since bus.NATS has no partial-connect state to
// resume).
func ConnectWithBackoff(opts bus.DialOpts, maxAttempts int) (*bus.NATS, error) {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	delay := time.Second
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		conn, err := bus.Dial(opts)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		if attempt == maxAttempts {
			break
		}
		time.Sleep(delay)
		delay *= 2
	}
	return nil, fmt.Errorf("dispatcher: failed to connect to bus after %d attempts: %w", maxAttempts, lastErr)
}
