package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/indexer"
	"github.com/fyrsmithlabs/docingest/internal/loader"
	"github.com/fyrsmithlabs/docingest/internal/pipeline"
	"github.com/fyrsmithlabs/docingest/internal/splitter"
)

// withApp runs fn with a started app and closes it afterwards.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(ctx context.Context, a *app) error) (err error) {
	ctx, a, err := newApp(cmd.Context(), opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(ctx, a)
}

func absPaths(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for _, arg := range args {
		p, err := filepath.Abs(arg)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func resultErr(res *pipeline.IngestionResult) error {
	if res.Failed() || !res.Complete() {
		return fmt.Errorf("%w: %d of %d files failed", errIncomplete, len(res.FailedFiles), res.DocumentsLoaded+len(res.FailedFiles))
	}
	return nil
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Ingest files or a directory into the collection",
		Long: `Ingest one directory (recursively), one file, or a list of files.
The collection is created when missing. Existing points are kept; use
reindex to rebuild the collection or update for incremental changes.

Examples:
  docingest ingest ./docs
  docingest ingest notes.md report.pdf
  docingest --collection manuals ingest ./manuals`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				paths, err := absPaths(args)
				if err != nil {
					return err
				}
				if a.opts.collectionDir {
					if len(paths) != 1 || !isDir(paths[0]) {
						return errNeedsDir
					}
					ctx = a.useDirCollection(ctx, paths[0])
				}
				store, err := a.openStore()
				if err != nil {
					return err
				}
				p, err := a.newPipeline(store)
				if err != nil {
					return err
				}
				if err := store.EnsureCollection(ctx, a.cfg.Index.Collection, a.cfg.Index.VectorSize); err != nil {
					return fmt.Errorf("ensuring collection: %w", err)
				}

				var res *pipeline.IngestionResult
				switch {
				case len(paths) > 1:
					res, err = p.IngestFiles(ctx, paths)
				case isDir(paths[0]):
					res, err = p.IngestDirectory(ctx, paths[0])
				default:
					res, err = p.IngestFile(ctx, paths[0])
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderIngestion("Ingestion", a.cfg.Index.Collection, res))
				return resultErr(res)
			})
		},
	}
}

func newReindexCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <dir>",
		Short: "Clear the collection and ingest a directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				dir, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				ctx = a.useDirCollection(ctx, dir)
				store, err := a.openStore()
				if err != nil {
					return err
				}
				p, err := a.newPipeline(store)
				if err != nil {
					return err
				}
				m, err := a.newManager(store, p)
				if err != nil {
					return err
				}
				res, err := m.Reindex(ctx, dir)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderIngestion("Reindex", a.cfg.Index.Collection, res))
				return resultErr(res)
			})
		},
	}
}

func newUpdateCmd(opts *rootOptions) *cobra.Command {
	var stateFile string
	cmd := &cobra.Command{
		Use:   "update <dir>",
		Short: "Apply added, modified and deleted files to the collection",
		Long: `Compare the directory with the saved state (modification time and
size per file), delete the points of modified and deleted files and ingest
added and modified files. The state is saved after every run; files that
failed are retried by the next update.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				dir, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				ctx = a.useDirCollection(ctx, dir)
				path, err := a.statePath(stateFile)
				if err != nil {
					return err
				}
				state, err := indexer.LoadState(path)
				if err != nil {
					return err
				}

				store, err := a.openStore()
				if err != nil {
					return err
				}
				p, err := a.newPipeline(store)
				if err != nil {
					return err
				}
				m, err := a.newManager(store, p)
				if err != nil {
					return err
				}

				res, updateErr := m.Update(ctx, dir, state)
				if res != nil {
					if err := state.Save(path); err != nil {
						return err
					}
					a.logger.Info(ctx, "state saved", zap.String("path", path), zap.Int("files", len(state.Files)))
					fmt.Fprintln(cmd.OutOrStdout(), renderUpdate(a.cfg.Index.Collection, res))
				}
				if updateErr != nil {
					return updateErr
				}
				if len(res.Errors) > 0 {
					return fmt.Errorf("%w: %d store errors", errIncomplete, len(res.Errors))
				}
				if res.Ingestion != nil {
					return resultErr(res.Ingestion)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&stateFile, "state", "", "state file (overrides index.state_file)")
	return cmd
}

func newClearCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete every point by recreating the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				m, err := a.newManager(store, nopIngestor{})
				if err != nil {
					return err
				}
				if err := m.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared collection %s\n", a.cfg.Index.Collection)
				return nil
			})
		},
	}
}

func newVerifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Check that the collection exists, holds points and has the expected vector size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				m, err := a.newManager(store, nopIngestor{})
				if err != nil {
					return err
				}
				report, err := m.Verify(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderReport(report))
				if !report.Healthy() {
					return errUnhealthy
				}
				return nil
			})
		},
	}
}

func newSplitCmd(opts *rootOptions) *cobra.Command {
	var (
		chunkSize int
		overlap   int
	)
	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Load a file and print its chunks without embedding them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, opts, func(ctx context.Context, a *app) error {
				cfg := a.cfg.Splitter.Config
				if chunkSize > 0 {
					cfg.ChunkSize = chunkSize
				}
				if cmd.Flags().Changed("overlap") {
					cfg.ChunkOverlap = overlap
				}
				table, err := splitter.BuildTable(cfg)
				if err != nil {
					return err
				}

				path, err := filepath.Abs(args[0])
				if err != nil {
					return err
				}
				l, ok := loader.Select(a.loaders(), path)
				if !ok {
					return fmt.Errorf("%w: %s", pipeline.ErrNoLoader, path)
				}
				docs, err := l.Load(ctx, path)
				if err != nil {
					return err
				}

				profile := splitter.ProfileDefault
				if a.cfg.Splitter.AutoDetect {
					profile = splitter.DetectProfile(docs, a.cfg.Splitter.ChineseThreshold)
				}
				s := table.Lookup(profile)
				batch, err := splitter.SplitDocuments(ctx, s, docs, a.logger.Underlying())
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderChunks(s.Name(), batch.Chunks))
				if len(batch.Failures) > 0 {
					return fmt.Errorf("%d of %d documents could not be split", len(batch.Failures), len(docs))
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "chunk size in characters (overrides splitter.chunk_size)")
	cmd.Flags().IntVar(&overlap, "overlap", 0, "chunk overlap in characters (overrides splitter.chunk_overlap)")
	return cmd
}

// nopIngestor backs commands that never ingest.
type nopIngestor struct{}

func (nopIngestor) IngestDirectory(context.Context, string) (*pipeline.IngestionResult, error) {
	return &pipeline.IngestionResult{}, nil
}

func (nopIngestor) IngestFiles(context.Context, []string) (*pipeline.IngestionResult, error) {
	return &pipeline.IngestionResult{}, nil
}

func (nopIngestor) CollectFiles(context.Context, string) ([]string, error) {
	return nil, nil
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
