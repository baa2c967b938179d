package dispatcher

import (
	"context"
	"time"

	"github.com/gridlocknet/node-core/pkg/bus"
)

// DefaultHeartbeatInterval is how often a node announces it is alive
// (spec's supplemented liveness heartbeat feature).
const DefaultHeartbeatInterval = 24 * time.Hour

// ReadySubject is where a node publishes its liveness heartbeat
// (node.rs's start_sending_ready_as_cancellable_task_on_thread subject).
func ReadySubject(nodeID string) string {
	return "network.gridlock.nodes.ready." + nodeID
}

// StartHeartbeat publishes nodeID on its ready subject every interval
// until ctx is cancelled, as a cancellable background goroutine (the Go
// analogue of node.rs's mpsc-cancellable heartbeat thread).
func StartHeartbeat(ctx context.Context, b bus.Publisher, nodeID string, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	subject := ReadySubject(nodeID)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = b.Publish(ctx, subject, []byte(nodeID))
			}
		}
	}()
}
