// Package main is the entrypoint for the errtrack API server and its
// administrative commands.
package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Set at build time with -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	slog.SetDefault(newLogger("info"))

	if err := newRootCmd().Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "errtrack",
		Short: "errtrack - error ingestion and grouping server",
		Long: `errtrack receives error reports from client SDKs, groups them by
fingerprint and serves the triage dashboard API.

Without a subcommand the API server is started.

Examples:
  # Start the server against Postgres
  DATABASE_URL=postgres://localhost/errtrack ERRTRACK_JWT_SECRET=... errtrack

  # Create a dashboard user and a project
  errtrack user create --email ops@example.com --name Ops --role admin
  errtrack project create --name storefront --owner <user-id>`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context())
		},
	}

	root.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newUserCmd(),
		newProjectCmd(),
		newTokenCmd(),
		newVersionCmd(),
	)
	return root
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
