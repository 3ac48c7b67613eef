package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	errIncomplete = errors.New("ingestion finished with errors")
	errUnhealthy  = errors.New("collection is unhealthy")
	errNeedsDir   = errors.New("--collection-from-dir needs a single directory argument")
)

// rootOptions holds the persistent flags.
type rootOptions struct {
	configPath      string
	collection      string
	logLevel        string
	logFormat       string
	metricsTextfile string
	collectionDir   bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "docingest",
		Short: "Ingest documents into a vector collection",
		Long: `docingest loads text, Markdown and PDF files, splits them into chunks
(with sentence-aware splitting for Chinese text), embeds each chunk and
uploads the vectors to Qdrant or an embedded chromem-go store.

Configuration is read from docingest.yaml, docingest.yml or docingest.toml
in the working directory, or the file given with --config, and can be
overridden with DOCINGEST_* environment variables.`,
		Version:       fmt.Sprintf("%s (commit %s, built %s)", version, gitCommit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "config file (YAML or TOML)")
	flags.StringVar(&opts.collection, "collection", "", "target collection (overrides index.collection)")
	flags.BoolVar(&opts.collectionDir, "collection-from-dir", false, "name the collection after the ingested directory")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level: trace, debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format: console or json")
	flags.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write Prometheus metrics to this file after the run")

	cmd.AddCommand(
		newIngestCmd(opts),
		newReindexCmd(opts),
		newUpdateCmd(opts),
		newClearCmd(opts),
		newVerifyCmd(opts),
		newSplitCmd(opts),
		newVersionCmd(),
	)
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "docingest by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}
