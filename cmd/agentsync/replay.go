package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/msageha/agentsync/internal/events"
	"github.com/msageha/agentsync/internal/lock"
	"github.com/msageha/agentsync/internal/logging"
	"github.com/msageha/agentsync/internal/model"
	"github.com/msageha/agentsync/internal/transport"
)

type replayOptions struct {
	Network  string
	Address  string
	Interval time.Duration
}

func newReplayCmd(global *globalOptions) *cobra.Command {
	var options replayOptions

	cmd := &cobra.Command{
		Use:   "replay <file> [flags]",
		Short: "Serve a recorded envelope stream to connecting clients",
		Long: `Serve the inbound envelopes of a trace journal, or of a plain JSONL file with one
envelope per line, to every client that connects. User messages sent by the client are
acknowledged so the client's pending state can be exercised.`,
		Example: `  # Replay a trace recorded with connect --trace
  agentsync replay .agentsync/logs/trace.jsonl

  # Replay over tcp, one envelope every half second
  agentsync replay session.jsonl --network tcp --address 127.0.0.1:7400 --interval 500ms`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(global.ConfigPath, global)
			if err != nil {
				return err
			}
			if options.Network != "" {
				cfg.Transport.Network = options.Network
			}
			if options.Address != "" {
				cfg.Transport.Address = options.Address
			}
			logger, closer, err := logging.Open(cfg.Logging)
			if err != nil {
				return err
			}
			defer func() { _ = closer.Close() }()

			envs, err := loadReplay(args[0], logger)
			if err != nil {
				return err
			}

			if cfg.Transport.Network == "unix" {
				if err := os.MkdirAll(filepath.Dir(cfg.Transport.Address), 0755); err != nil {
					return fmt.Errorf("create socket dir: %w", err)
				}
				// Start unlinks a stale socket, which must not be another server's live one
				fl := lock.NewFileLock(cfg.Transport.Address + ".lock")
				if err := fl.TryLock(); err != nil {
					return err
				}
				defer func() { _ = fl.Unlock() }()
			}

			srv := transport.NewServer(cfg.Transport.Network, cfg.Transport.Address,
				transport.OptionsFromConfig(cfg.Transport), replayPeer(envs, options.Interval), logger)
			if err := srv.Start(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replaying %d envelopes on %s://%s\n", len(envs), cfg.Transport.Network, cfg.Transport.Address)
			<-cmd.Context().Done()
			return srv.Stop()
		},
	}

	cmd.Flags().StringVar(&options.Network, "network", "", "override transport.network (unix or tcp)")
	cmd.Flags().StringVar(&options.Address, "address", "", "override transport.address")
	cmd.Flags().DurationVar(&options.Interval, "interval", 100*time.Millisecond, "delay between envelopes")
	return cmd
}

// loadReplay returns the inbound envelopes of path in order. Plain envelope lines have no
// direction and count as inbound.
func loadReplay(path string, logger *logging.Logger) ([]model.Envelope, error) {
	entries, invalid, err := events.ReadJournal(path)
	if err != nil {
		return nil, err
	}
	if invalid > 0 {
		logger.Warnf("replay skipped %d invalid lines in %s", invalid, path)
	}
	envs := make([]model.Envelope, 0, len(entries))
	for _, e := range entries {
		if e.Direction == events.DirectionOutbound || e.Type == "" {
			continue
		}
		envs = append(envs, e.Envelope())
	}
	return envs, nil
}

func replayPeer(envs []model.Envelope, interval time.Duration) transport.PeerFunc {
	return func(ctx context.Context, conn *transport.Conn) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		go func() {
			for _, env := range envs {
				select {
				case <-ctx.Done():
					return
				case <-time.After(interval):
				}
				if err := conn.Send(env); err != nil {
					return
				}
			}
		}()

		_ = conn.Run(ctx, func(env model.Envelope) {
			if env.Type == model.TypeUserSendMessage || env.Type == model.TypeResume {
				_ = conn.Send(model.MustEnvelope(model.TypeAck, model.AckData{TaskID: env.TaskID(), TargetMessage: env}))
			}
		})
	}
}
