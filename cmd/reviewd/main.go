// Command reviewd runs the review server: a local HTTP/SSE/JSON-RPC
// surface over git diffs, review comments, and (optionally) hosted
// pull requests.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/reviewdeck/reviewd/internal/config"
	"github.com/reviewdeck/reviewd/internal/engine"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reviewd",
		Short: "reviewd runs the self-hosted code review server",
	}
	root.AddCommand(newServeCmd())
	return root
}

func newServeCmd() *cobra.Command {
	var configPath string
	var listenAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "start the reviewd HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if listenAddr != "" {
				cfg.ListenAddr = listenAddr
			}

			srv, err := engine.New(cfg)
			if err != nil {
				return fmt.Errorf("assembling server: %w", err)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "path to a reviewd config file (YAML)")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "override the configured listen address (e.g. :8576)")
	return cmd
}
