// corpusd is the ingestion and retrieval daemon. It serves the HTTP
// API, runs the artifact gate checks, and promotes releases from the
// command line.
package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	// Local overrides; missing .env is fine.
	godotenv.Load()

	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	root := &cobra.Command{
		Use:           "corpusd",
		Short:         "Domain content ingestion and retrieval service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newGatesCmd(), newPromoteCmd())

	if err := root.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}
