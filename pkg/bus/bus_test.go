package bus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gridlocknet/node-core/pkg/bus"
)

func TestInProcessFanOutToAllSubscribers(t *testing.T) {
	b := bus.NewInProcess()
	ctx := context.Background()

	ch1, unsub1, err := b.Subscribe(ctx, "round.commit")
	require.NoError(t, err)
	defer unsub1()

	ch2, unsub2, err := b.Subscribe(ctx, "round.commit")
	require.NoError(t, err)
	defer unsub2()

	require.NoError(t, b.Publish(ctx, "round.commit", []byte("hello")))

	for _, ch := range []<-chan bus.Message{ch1, ch2} {
		select {
		case msg := <-ch:
			require.Equal(t, "round.commit", msg.Subject)
			require.Equal(t, []byte("hello"), msg.Data)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestInProcessDoesNotCrossSubjects(t *testing.T) {
	b := bus.NewInProcess()
	ctx := context.Background()

	ch, unsub, err := b.Subscribe(ctx, "round.commit")
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, b.Publish(ctx, "round.decommit", []byte("unrelated")))

	select {
	case msg := <-ch:
		t.Fatalf("unexpected message on unrelated subject: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInProcessUnsubscribeClosesChannel(t *testing.T) {
	b := bus.NewInProcess()
	ctx := context.Background()

	ch, unsub, err := b.Subscribe(ctx, "round.commit")
	require.NoError(t, err)

	unsub()

	_, open := <-ch
	require.False(t, open)
}

func TestInProcessClosedRejectsOperations(t *testing.T) {
	b := bus.NewInProcess()
	ctx := context.Background()
	require.NoError(t, b.Close())

	err := b.Publish(ctx, "round.commit", []byte("x"))
	require.ErrorIs(t, err, bus.ErrClosed)

	_, _, err = b.Subscribe(ctx, "round.commit")
	require.ErrorIs(t, err, bus.ErrClosed)
}
