package bus

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
)

// NATS is the production Bus backend: a single long-lived nats.Conn
// shared across session worker goroutines (spec §4.1 "A single
// long-lived bus connection is shared across worker threads; the bus
// client is expected to be internally thread-safe for publish/subscribe"
// — nats.Conn satisfies that directly).
type NATS struct {
	conn *nats.Conn
}

// DialOpts configures a NATS connection (spec §6 "Configuration":
// NATS_ADDRESS, NATS_USER, NATS_PASSWORD).
type DialOpts struct {
	Address  string
	User     string
	Password string
}

// Dial connects to the bus. Reconnection past the initial dial is the
// dispatcher's concern (spec §4.1's exponential-backoff reconnect loop);
// this constructor only establishes the first connection.
func Dial(opts DialOpts) (*NATS, error) {
	natsOpts := []nats.Option{nats.Name("gridlocknode")}
	if opts.User != "" {
		natsOpts = append(natsOpts, nats.UserInfo(opts.User, opts.Password))
	}
	conn, err := nats.Connect(opts.Address, natsOpts...)
	if err != nil {
		return nil, fmt.Errorf("bus: connect to %s: %w", opts.Address, err)
	}
	return &NATS{conn: conn}, nil
}

func (n *NATS) Publish(ctx context.Context, subject string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return n.conn.Publish(subject, data)
}

func (n *NATS) Subscribe(ctx context.Context, subject string) (<-chan Message, func(), error) {
	raw := make(chan *nats.Msg, 64)
	sub, err := n.conn.ChanSubscribe(subject, raw)
	if err != nil {
		return nil, nil, fmt.Errorf("bus: subscribe %s: %w", subject, err)
	}

	out := make(chan Message, 64)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case m, ok := <-raw:
				if !ok {
					return
				}
				select {
				case out <- Message{Subject: m.Subject, Data: m.Data, Reply: m.Reply}:
				case <-done:
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	unsubscribe := func() {
		_ = sub.Unsubscribe()
		close(done)
	}
	return out, unsubscribe, nil
}

// Connected reports whether the underlying connection is currently up,
// read by the dispatcher's reconnect loop (spec §9 "Global state").
func (n *NATS) Connected() bool {
	return n.conn.IsConnected()
}

func (n *NATS) Close() error {
	n.conn.Close()
	return nil
}
