package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	corpus "github.com/avollmer/corpus"
	"github.com/avollmer/corpus/gates"
)

func newGatesCmd() *cobra.Command {
	var (
		releasesRoot   string
		canonicalRoot  string
		chunksRoot     string
		embeddingsRoot string
		vectorRoot     string
	)
	cmd := &cobra.Command{
		Use:   "gates",
		Short: "Run integrity checks over stored artifacts",
		Long: `Validates release records, canonical objects, chunk files, and the
vector index for consistent domain and release scoping. Exits 2 when
any check fails; an empty artifact tree passes.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := corpus.ConfigFromEnv()
			runner := &gates.Runner{
				ReleasesRoot:   cfg.ReleasesRootDir(),
				CanonicalRoot:  cfg.CanonicalRoot(),
				ChunksRoot:     cfg.ChunksRoot(),
				EmbeddingsRoot: cfg.EmbeddingsRoot(),
				VectorRoot:     cfg.VectorRoot(),
			}
			if releasesRoot != "" {
				runner.ReleasesRoot = releasesRoot
			}
			if canonicalRoot != "" {
				runner.CanonicalRoot = canonicalRoot
			}
			if chunksRoot != "" {
				runner.ChunksRoot = chunksRoot
			}
			if embeddingsRoot != "" {
				runner.EmbeddingsRoot = embeddingsRoot
			}
			if vectorRoot != "" {
				runner.VectorRoot = vectorRoot
			}

			issues := runner.RunAll()
			if len(issues) == 0 {
				fmt.Println("All gates passed.")
				return nil
			}
			fmt.Println("Ingestion gates failed with issues:")
			for _, issue := range issues {
				loc := ""
				if issue.Path != "" {
					loc = fmt.Sprintf(" (%s)", issue.Path)
				}
				fmt.Printf("- %s: %s%s\n", issue.Code, issue.Message, loc)
			}
			os.Exit(2)
			return nil
		},
	}
	cmd.Flags().StringVar(&releasesRoot, "releases-root", "", "releases root override")
	cmd.Flags().StringVar(&canonicalRoot, "canonical-root", "", "canonical store root override")
	cmd.Flags().StringVar(&chunksRoot, "chunks-root", "", "chunk store root override")
	cmd.Flags().StringVar(&embeddingsRoot, "embeddings-root", "", "embeddings root override")
	cmd.Flags().StringVar(&vectorRoot, "vector-root", "", "vector index root override")
	return cmd
}

func newPromoteCmd() *cobra.Command {
	var (
		promotedBy string
		reason     string
	)
	cmd := &cobra.Command{
		Use:   "promote <domain> <release_id>",
		Short: "Promote a release to active for a domain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := corpus.ConfigFromEnv()
			service, err := corpus.New(cfg, slog.Default())
			if err != nil {
				return err
			}
			defer service.Close()

			event, err := service.Promote(args[0], args[1], promotedBy, reason)
			if err != nil {
				return err
			}
			fmt.Printf("Promoted %s to active for %s", event.ReleaseID, event.Domain)
			if event.PreviousReleaseID != "" {
				fmt.Printf(" (was %s)", event.PreviousReleaseID)
			}
			fmt.Println()
			return nil
		},
	}
	cmd.Flags().StringVar(&promotedBy, "by", "", "who is promoting the release")
	cmd.Flags().StringVar(&reason, "reason", "", "why the release is being promoted")
	return cmd
}
