// Command gridlocknode is the node process: it loads local identity and
// keystore state, connects to the bus, registers every protocol topic's
// session handler, starts the liveness heartbeat, and services the
// generic tagged-command subjects (spec §6's "Message.new.<node_id> and
// async.Message.new.<node_id>") until interrupted.
//
// Grounded on original_source/backend/node/src/main.rs's startup
// sequence (load config, load or create identity, connect to the bus
// with retry, register session handlers, spawn the heartbeat, then block
// on the command subjects) and cmd/threshold-cli's cobra root command
// shape, simplified from its multi-subcommand CLI down to the one
// command a long-running daemon needs.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gridlocknet/node-core/internal/commands"
	"github.com/gridlocknet/node-core/internal/config"
	"github.com/gridlocknet/node-core/internal/dispatcher"
	"github.com/gridlocknet/node-core/internal/observability"
	"github.com/gridlocknet/node-core/pkg/bus"
	"github.com/gridlocknet/node-core/pkg/identity"
	"github.com/gridlocknet/node-core/pkg/keystore"
)

func main() {
	root := &cobra.Command{
		Use:           "gridlocknode",
		Short:         "Run a gridlock threshold-signing node",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context())
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root.SetContext(ctx)

	if err := root.Execute(); err != nil {
		slog.Default().Error("gridlocknode exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("gridlocknode: load config: %w", err)
	}

	logger := observability.NewBase(slog.LevelInfo)
	slog.SetDefault(logger)

	store, err := keystore.New(cfg.StorageDir)
	if err != nil {
		return fmt.Errorf("gridlocknode: open keystore: %w", err)
	}

	id, err := identity.LoadOrCreate(store.NodeIdentityPath(), cfg.NodeID)
	if err != nil {
		return fmt.Errorf("gridlocknode: load node identity: %w", err)
	}

	dir, err := identity.OpenDirectory(filepath.Join(cfg.StorageDir, "peers.json"))
	if err != nil {
		return fmt.Errorf("gridlocknode: open peer directory: %w", err)
	}

	logger.Info("node identity ready", slog.String("node_id", id.NodeID))

	conn, err := dispatcher.ConnectWithBackoff(bus.DialOpts{
		Address:  cfg.NATSAddress,
		User:     cfg.NATSUser,
		Password: cfg.NATSPassword,
	}, 5)
	if err != nil {
		return fmt.Errorf("gridlocknode: connect to bus: %w", err)
	}
	defer conn.Close()

	d := dispatcher.New(conn, id.NodeID, id, logger)
	n := &node{store: store, identity: id}
	d.Register("keyGen", n.keyGenECDSA)
	d.Register("KeyGenEdDSA", n.keyGenEdDSA)
	d.Register("KeyGenSr25519", n.keyGenSr25519)
	d.Register("keySign", n.keySignECDSA)
	d.Register("KeySignEdDSA", n.keySignEdDSA)
	d.Register("KeySignSr25519", n.keySignSr25519)
	d.Register("KeyShareRecovery", n.keyShareRecovery)

	dispatcher.StartHeartbeat(ctx, conn, id.NodeID, dispatcher.DefaultHeartbeatInterval)

	exec := &commands.Executor{Store: store, Identity: id, Bus: conn, Directory: dir}
	stopCommands, err := serveCommands(ctx, conn, id.NodeID, exec, logger)
	if err != nil {
		return fmt.Errorf("gridlocknode: serve commands: %w", err)
	}
	defer stopCommands()

	logger.Info("gridlocknode ready", slog.String("nats_address", cfg.NATSAddress))
	return d.Run(ctx)
}

// serveCommands subscribes to this node's generic tagged-command
// subjects (spec §6: "Message.new.<node_id> and
// async.Message.new.<node_id> — generic tagged commands") and runs each
// through the Executor, replying on the transport's native reply
// subject when the publisher used request/reply (the original's
// message.reply.is_some() / message.respond, mirrored here through
// bus.Message.Reply since our Bus abstraction carries it explicitly
// rather than exposing the NATS client type itself).
func serveCommands(ctx context.Context, b bus.Bus, nodeID string, exec *commands.Executor, logger *slog.Logger) (func(), error) {
	subjects := []string{
		"network.gridlock.nodes.Message.new." + nodeID,
		"network.gridlock.nodes.async.Message.new." + nodeID,
	}

	var stops []func()
	for _, subject := range subjects {
		msgs, stop, err := b.Subscribe(ctx, subject)
		if err != nil {
			for _, s := range stops {
				s()
			}
			return nil, fmt.Errorf("subscribe %s: %w", subject, err)
		}
		stops = append(stops, stop)

		go func(subject string, msgs <-chan bus.Message) {
			for msg := range msgs {
				go handleCommand(ctx, b, exec, logger, msg)
			}
		}(subject, msgs)
	}

	return func() {
		for _, s := range stops {
			s()
		}
	}, nil
}

func handleCommand(ctx context.Context, b bus.Bus, exec *commands.Executor, logger *slog.Logger, msg bus.Message) {
	resp, err := exec.Execute(ctx, msg.Data)
	if err != nil {
		logger.Error("command execution failed", slog.String("subject", msg.Subject), slog.Any("error", err))
		if msg.Reply != "" && !errors.Is(err, commands.ErrAuthFailed) {
			_ = b.Publish(ctx, msg.Reply, []byte("ERROR: "+err.Error()))
		}
		return
	}
	if msg.Reply == "" || resp == nil {
		return
	}
	if err := b.Publish(ctx, msg.Reply, resp); err != nil {
		logger.Error("command reply failed", slog.String("subject", msg.Reply), slog.Any("error", err))
	}
}
