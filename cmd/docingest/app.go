package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/config"
	"github.com/fyrsmithlabs/docingest/internal/embeddings"
	"github.com/fyrsmithlabs/docingest/internal/indexer"
	"github.com/fyrsmithlabs/docingest/internal/loader"
	"github.com/fyrsmithlabs/docingest/internal/logging"
	"github.com/fyrsmithlabs/docingest/internal/pipeline"
	"github.com/fyrsmithlabs/docingest/internal/sanitize"
	"github.com/fyrsmithlabs/docingest/internal/secrets"
	"github.com/fyrsmithlabs/docingest/internal/splitter"
	"github.com/fyrsmithlabs/docingest/internal/telemetry"
	"github.com/fyrsmithlabs/docingest/internal/uploader"
	"github.com/fyrsmithlabs/docingest/internal/vectorizer"
	"github.com/fyrsmithlabs/docingest/internal/vectorstore"
)

// app holds what every command needs: configuration, logging and telemetry.
// Stores and pipelines are opened per command.
type app struct {
	cfg     *config.Config
	opts    *rootOptions
	logger  *logging.Logger
	tel     *telemetry.Telemetry
	closers []func() error
}

// newApp loads configuration, applies flag overrides and starts logging and
// telemetry. It returns the run context carrying a fresh run ID.
func newApp(ctx context.Context, opts *rootOptions) (context.Context, *app, error) {
	if opts.collectionDir && opts.collection != "" {
		return ctx, nil, fmt.Errorf("%w: --collection and --collection-from-dir are exclusive", config.ErrInvalidConfig)
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return ctx, nil, err
	}
	if opts.collection != "" {
		cfg.Index.Collection = opts.collection
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		cfg.Logging.Format = opts.logFormat
	}
	if opts.metricsTextfile != "" {
		cfg.Metrics.Textfile = opts.metricsTextfile
	}
	if err := cfg.Validate(); err != nil {
		return ctx, nil, err
	}

	logCfg, err := loggingConfig(cfg)
	if err != nil {
		return ctx, nil, err
	}
	bootstrap, err := logging.NewLogger(logCfg, nil)
	if err != nil {
		return ctx, nil, fmt.Errorf("initializing logger: %w", err)
	}

	tel, err := telemetry.New(ctx, telemetryConfig(cfg), telemetry.WithLogger(bootstrap.Underlying()))
	if err != nil {
		return ctx, nil, err
	}

	logger := bootstrap
	if cfg.Telemetry.Enabled {
		provider := tel.LoggerProvider()
		if provider == nil {
			provider = global.GetLoggerProvider()
		}
		if logger, err = logging.NewLogger(logCfg, provider); err != nil {
			return ctx, nil, fmt.Errorf("initializing logger: %w", err)
		}
	}

	ctx = logging.WithRunID(ctx, uuid.NewString())
	ctx = logging.WithCollection(ctx, cfg.Index.Collection)
	ctx = logging.WithLogger(ctx, logger)

	return ctx, &app{cfg: cfg, opts: opts, logger: logger, tel: tel}, nil
}

// useDirCollection switches the target collection to one named after dir
// when --collection-from-dir is set. It must run before stores, pipelines
// and managers are built.
func (a *app) useDirCollection(ctx context.Context, dir string) context.Context {
	if !a.opts.collectionDir {
		return ctx
	}
	a.cfg.Index.Collection = sanitize.Identifier(filepath.Base(dir))
	a.logger.Info(ctx, "collection derived from directory",
		zap.String("dir", dir),
		zap.String("collection", a.cfg.Index.Collection))
	return logging.WithCollection(ctx, a.cfg.Index.Collection)
}

// loggingConfig maps the logging section onto the logger's configuration.
func loggingConfig(cfg *config.Config) (*logging.Config, error) {
	lc := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("%w: logging.level: %v", config.ErrInvalidConfig, err)
	}
	lc.Level = level
	lc.Format = cfg.Logging.Format
	lc.Output.OTEL = cfg.Telemetry.Enabled
	return lc, lc.Validate()
}

// telemetryConfig maps the telemetry section onto the telemetry package.
func telemetryConfig(cfg *config.Config) *telemetry.Config {
	tc := telemetry.NewDefaultConfig()
	tc.Enabled = cfg.Telemetry.Enabled
	tc.Endpoint = cfg.Telemetry.Endpoint
	tc.Protocol = cfg.Telemetry.Protocol
	tc.Insecure = cfg.Telemetry.Insecure
	tc.ServiceName = cfg.Telemetry.ServiceName
	tc.ServiceVersion = version
	tc.SampleRate = cfg.Telemetry.SampleRate
	return tc
}

func (a *app) loaders() []loader.Loader {
	return loader.Defaults(loader.WithMaxFileSize(a.cfg.Loader.MaxFileSize))
}

func (a *app) openStore() (vectorstore.Store, error) {
	store, err := vectorstore.NewStore(a.cfg, a.logger.Named("vectorstore").Underlying())
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	a.closers = append(a.closers, store.Close)
	return store, nil
}

func (a *app) newEmbedder() (embeddings.Provider, error) {
	e := a.cfg.Embeddings
	p, err := embeddings.NewProvider(embeddings.ProviderConfig{
		Provider:  e.Provider,
		Model:     e.Model,
		BaseURL:   e.BaseURL,
		APIKey:    e.APIKey.Value(),
		CacheDir:  e.CacheDir,
		MaxLength: e.MaxLength,
		Dimension: e.Dimension,
		Timeout:   e.Timeout.Duration(),
		CacheSize: e.CacheSize,
		CacheTTL:  e.CacheTTL.Duration(),
		RateLimit: e.RateLimit,
		Burst:     e.Burst,
	}, a.logger.Named("embeddings").Underlying())
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	a.closers = append(a.closers, p.Close)
	return p, nil
}

// newPipeline wires loaders, splitters, vectorizer and uploader against store.
func (a *app) newPipeline(store vectorstore.Store) (*pipeline.Pipeline, error) {
	table, err := splitter.BuildTable(a.cfg.Splitter.Config)
	if err != nil {
		return nil, err
	}

	embedder, err := a.newEmbedder()
	if err != nil {
		return nil, err
	}
	if dim := embedder.Dimension(); dim > 0 && dim != a.cfg.Index.VectorSize {
		a.logger.Warn(context.Background(), "embedding dimension differs from index.vector_size",
			zap.Int("embedding_dimension", dim),
			zap.Int("vector_size", a.cfg.Index.VectorSize))
	}

	vec, err := vectorizer.New(embedder, vectorizer.Config{
		MaxRetries: a.cfg.Vectorizer.MaxRetries,
		RetryDelay: a.cfg.Vectorizer.RetryDelay.Duration(),
	}, vectorizer.WithLogger(a.logger.Named("vectorizer").Underlying()))
	if err != nil {
		return nil, err
	}

	up, err := uploader.New(store, a.cfg.Index.Collection, uploader.Config{
		BatchSize:      a.cfg.Uploader.BatchSize,
		MaxRetries:     a.cfg.Uploader.MaxRetries,
		InitialBackoff: a.cfg.Uploader.InitialBackoff.Duration(),
		MaxBackoff:     a.cfg.Uploader.MaxBackoff.Duration(),
	}, uploader.WithLogger(a.logger.Named("uploader").Underlying()))
	if err != nil {
		return nil, err
	}

	redactor, err := secrets.New(a.cfg.Redaction)
	if err != nil {
		return nil, fmt.Errorf("building redactor: %w", err)
	}

	return pipeline.New(a.loaders(), table, vec, up,
		pipeline.WithChineseThreshold(a.cfg.Splitter.ChineseThreshold),
		pipeline.WithAutoDetectChinese(a.cfg.Splitter.AutoDetect),
		pipeline.WithRedactor(redactor),
		pipeline.WithExclusions(a.cfg.Loader.IgnoreFiles, a.cfg.Loader.Exclude),
		pipeline.WithLogger(a.logger),
	)
}

func (a *app) newManager(store vectorstore.Store, ing indexer.Ingestor) (*indexer.Manager, error) {
	return indexer.New(ing, store, indexer.Config{
		Collection: a.cfg.Index.Collection,
		VectorSize: a.cfg.Index.VectorSize,
	}, a.logger)
}

// statePath resolves the state file. A relative path is taken from the
// working directory.
func (a *app) statePath(flag string) (string, error) {
	path := a.cfg.Index.StateFile
	if flag != "" {
		path = flag
	}
	return filepath.Abs(path)
}

// close releases stores and providers, writes the metrics textfile and
// shuts telemetry down.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	if path := a.cfg.Metrics.Textfile; path != "" {
		if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics textfile: %w", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	errs = append(errs, a.tel.Shutdown(shutdownCtx))
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
