package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/msageha/agentsync/internal/config"
	"github.com/msageha/agentsync/internal/model"
)

var (
	// Version is set at build time.
	Version = "dev"
	// GitCommit is set at build time.
	GitCommit = "unknown"
)

type globalOptions struct {
	ConfigPath string
	LogLevel   string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	options := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "agentsync",
		Short:         "Terminal client for multi-agent chat sessions",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&options.ConfigPath, "config", "c", config.DefaultPath, "path to the config file")
	cmd.PersistentFlags().StringVar(&options.LogLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	cmd.AddCommand(
		newInitCmd(options),
		newConnectCmd(options),
		newReplayCmd(options),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "agentsync %s (%s)\n", Version, GitCommit)
		},
	}
}

func newInitCmd(global *globalOptions) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := global.ConfigPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(path, model.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file, keeping a .bak copy")
	return cmd
}

// loadConfig reads the config file over the defaults and applies flag overrides.
func loadConfig(path string, options *globalOptions) (model.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return model.Config{}, err
	}
	if options != nil && options.LogLevel != "" {
		cfg.Logging.Level = options.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return model.Config{}, fmt.Errorf("invalid %s: %w", path, err)
	}
	return cfg, nil
}
