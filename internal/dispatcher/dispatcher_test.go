package dispatcher_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/internal/dispatcher"
	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/session"
)

func TestDispatcherRunsSessionHandlerOnAnnouncement(t *testing.T) {
	b := bus.NewInProcess()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	d := dispatcher.New(b, "node-1", nil, nil)
	d.Register("keyGen", func(ctx context.Context, info session.Info, m session.Messenger, params json.RawMessage) error {
		require.Equal(t, "sess-1", info.SessionID)
		close(done)
		return nil
	})

	go d.Run(ctx)

	// Respond to the join handshake as the orchestrator would.
	joinSub := session.JoinSubject("keyGen", "sess-1")
	joinMsgs, unsub, err := b.Subscribe(ctx, joinSub)
	require.NoError(t, err)
	defer unsub()

	go func() {
		msg := <-joinMsgs
		var req session.JoinRequest
		require.NoError(t, json.Unmarshal(msg.Data, &req))
		resp, _ := json.Marshal(session.JoinResponse{SessionID: "sess-1", PartyIndex: 1, AllIndices: []int64{1, 2, 3}})
		_ = b.Publish(ctx, session.JoinResponseSubject("keyGen", "sess-1", req.NodeID), resp)
	}()

	announce, _ := json.Marshal(dispatcher.NewSessionMessage{SessionID: "sess-1"})
	require.NoError(t, b.Publish(ctx, dispatcher.NewSessionSubject("keyGen", "node-1"), announce))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("session handler never ran")
	}
}

func TestDispatcherRecoversFromHandlerPanic(t *testing.T) {
	b := bus.NewInProcess()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := dispatcher.New(b, "node-1", nil, nil)
	d.JoinTimeout = 200 * time.Millisecond
	d.Register("keyGen", func(ctx context.Context, info session.Info, m session.Messenger, params json.RawMessage) error {
		panic("boom")
	})

	go d.Run(ctx)

	joinSub := session.JoinSubject("keyGen", "sess-2")
	joinMsgs, unsub, err := b.Subscribe(ctx, joinSub)
	require.NoError(t, err)
	defer unsub()
	go func() {
		msg := <-joinMsgs
		var req session.JoinRequest
		require.NoError(t, json.Unmarshal(msg.Data, &req))
		resp, _ := json.Marshal(session.JoinResponse{SessionID: "sess-2", PartyIndex: 1, AllIndices: []int64{1}})
		_ = b.Publish(ctx, session.JoinResponseSubject("keyGen", "sess-2", req.NodeID), resp)
	}()

	announce, _ := json.Marshal(dispatcher.NewSessionMessage{SessionID: "sess-2"})
	require.NoError(t, b.Publish(ctx, dispatcher.NewSessionSubject("keyGen", "node-1"), announce))

	// The dispatcher goroutine itself must survive the panic; proven by
	// still being able to publish a second announcement afterward.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, b.Publish(ctx, dispatcher.NewSessionSubject("keyGen", "node-1"), announce))
}

func TestHeartbeatPublishesOnInterval(t *testing.T) {
	b := bus.NewInProcess()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, unsub, err := b.Subscribe(ctx, dispatcher.ReadySubject("node-1"))
	require.NoError(t, err)
	defer unsub()

	dispatcher.StartHeartbeat(ctx, b, "node-1", 10*time.Millisecond)

	select {
	case msg := <-msgs:
		require.Equal(t, "node-1", string(msg.Data))
	case <-time.After(time.Second):
		t.Fatal("no heartbeat received")
	}
}
