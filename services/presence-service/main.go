package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	serve := buildServeCmd()

	root := &cobra.Command{
		Use:          "presence-service",
		Short:        "Presence, call signaling and message relay for Chorus",
		SilenceUsage: true,
		// serve is the default when no subcommand is given
		RunE: serve.RunE,
	}
	root.AddCommand(serve, buildCleanupCmd())
	return root
}

// buildServeCmd creates the "serve" command running the HTTP and websocket
// server plus the presence reconciler.
func buildServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the presence service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

// buildCleanupCmd creates the "cleanup" command that marks stale online
// records offline once and exits.
func buildCleanupCmd() *cobra.Command {
	var threshold time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Mark users inactive for longer than the threshold offline",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCleanup(cmd, threshold)
		},
	}

	cmd.Flags().DurationVar(&threshold, "threshold", 0,
		"Inactivity threshold (defaults to INACTIVITY_THRESHOLD)")

	return cmd
}
