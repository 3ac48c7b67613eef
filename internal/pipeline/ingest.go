package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/docingest/internal/document"
	"github.com/fyrsmithlabs/docingest/internal/loader"
	"github.com/fyrsmithlabs/docingest/internal/logging"
	"github.com/fyrsmithlabs/docingest/internal/splitter"
)

// IngestFile ingests one file. It returns ErrPathNotFound or ErrNoLoader
// before doing any work. After that every failure is reported in the
// result: the file is listed in FailedFiles, all counts are zero and the
// error is nil.
func (p *Pipeline) IngestFile(ctx context.Context, path string) (*IngestionResult, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, path)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	l, ok := loader.Select(p.loaders, path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoLoader, path)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.IngestFile",
		trace.WithAttributes(attribute.String("path", path)))
	defer span.End()
	ctx = logging.WithSource(ctx, path)

	start := time.Now()
	res := &IngestionResult{}

	err := func() error {
		docs, err := l.Load(ctx, path)
		if err != nil {
			return &PhaseError{Phase: PhaseLoad, Err: err}
		}
		res.DocumentsLoaded = 1
		return p.process(ctx, docs, res)
	}()
	if err != nil {
		p.logger.Error(ctx, "file ingestion failed", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res = &IngestionResult{FailedFiles: []string{path}}
		res.addError("%s: %v", path, err)
		var pe *PhaseError
		if errors.As(err, &pe) {
			res.StoppedAt = pe.Phase
		}
	}

	res.Duration = time.Since(start)
	p.finish(ctx, span, res)
	return res, nil
}

// IngestDirectory ingests every supported file under dir, recursively. It
// returns ErrPathNotFound or ErrNotDirectory when dir is unusable. A
// directory with no supported files yields a result with one error entry.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) (*IngestionResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPathNotFound, dir)
		}
		return nil, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.IngestDirectory",
		trace.WithAttributes(attribute.String("dir", dir)))
	defer span.End()

	start := time.Now()
	files, err := p.CollectFiles(ctx, dir)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("files", len(files)))

	if len(files) == 0 {
		res := &IngestionResult{}
		res.addError("no supported files found in %s", dir)
		p.logger.Warn(ctx, "no supported files found", zap.String("dir", dir),
			zap.Strings("extensions", p.Extensions()))
		res.Duration = time.Since(start)
		p.finish(ctx, span, res)
		return res, nil
	}

	p.logger.Info(ctx, "ingesting directory", zap.String("dir", dir), zap.Int("files", len(files)))
	res := p.ingestPaths(ctx, span, files)
	res.Duration = time.Since(start)
	p.finish(ctx, span, res)
	return res, nil
}

// IngestFiles runs the same phases as IngestDirectory over paths. Missing
// or unreadable files are load failures. An empty list yields an empty
// result.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string) (*IngestionResult, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.IngestFiles",
		trace.WithAttributes(attribute.Int("files", len(paths))))
	defer span.End()

	start := time.Now()
	res := &IngestionResult{}
	if len(paths) > 0 {
		res = p.ingestPaths(ctx, span, paths)
	}
	res.Duration = time.Since(start)
	p.finish(ctx, span, res)
	return res, nil
}

// ingestPaths loads each path in isolation, then processes the aggregate.
func (p *Pipeline) ingestPaths(ctx context.Context, span trace.Span, paths []string) *IngestionResult {
	res := &IngestionResult{}
	docs, err := p.load(ctx, paths, res)
	if err == nil && len(docs) > 0 {
		err = p.process(ctx, docs, res)
	}
	if err != nil {
		p.logger.Error(ctx, "ingestion run stopped", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		res.stop(err)
	}
	return res
}

// load is the load phase. Only context cancellation stops it early.
func (p *Pipeline) load(ctx context.Context, paths []string, res *IngestionResult) ([]document.Document, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.load")
	defer span.End()
	defer observePhase(PhaseLoad, time.Now())

	var docs []document.Document
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return docs, &PhaseError{Phase: PhaseLoad, Err: err}
		}
		fctx := logging.WithSource(ctx, path)

		l, ok := loader.Select(p.loaders, path)
		if !ok {
			res.FilesSkipped++
			p.logger.Info(fctx, "skipping file with no loader")
			continue
		}

		loaded, err := l.Load(fctx, path)
		if err != nil {
			res.FailedFiles = append(res.FailedFiles, path)
			res.addError("%s: %v", path, err)
			p.logger.Warn(fctx, "failed to load file", zap.String("loader", l.Name()), zap.Error(err))
			continue
		}

		res.DocumentsLoaded++
		docs = append(docs, loaded...)
		p.logger.Debug(fctx, "loaded file", zap.String("loader", l.Name()), zap.Int("documents", len(loaded)))
	}

	span.SetAttributes(
		attribute.Int("files.loaded", res.DocumentsLoaded),
		attribute.Int("files.failed", len(res.FailedFiles)),
		attribute.Int("files.skipped", res.FilesSkipped),
	)
	return docs, nil
}

// process runs split, vectorize and upload over docs. A returned error is
// a *PhaseError; res then holds the counts of the phases that completed.
func (p *Pipeline) process(ctx context.Context, docs []document.Document, res *IngestionResult) error {
	s := p.splitters.Lookup(p.selectProfile(ctx, docs))
	res.Splitter = s.Name()

	chunks, err := p.split(ctx, s, docs, res)
	if err != nil {
		return &PhaseError{Phase: PhaseSplit, Err: err}
	}
	res.ChunksCreated = len(chunks)

	points, err := p.vectorize(ctx, chunks, res)
	if err != nil {
		return &PhaseError{Phase: PhaseVectorize, Err: err}
	}

	uploaded, err := p.upload(ctx, points, res)
	if err != nil {
		return &PhaseError{Phase: PhaseUpload, Err: err}
	}
	res.VectorsUploaded = uploaded
	return nil
}

// selectProfile picks the splitter profile for docs. Detection problems,
// including a panic, fall back to the default profile.
func (p *Pipeline) selectProfile(ctx context.Context, docs []document.Document) (profile splitter.Profile) {
	if !p.autoDetect {
		return splitter.ProfileDefault
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn(ctx, "language detection failed, using default splitter", zap.Any("panic", r))
			profile = splitter.ProfileDefault
		}
	}()

	ratio := splitter.ChineseRatio(splitter.SampleText(docs))
	profile = splitter.ProfileDefault
	if ratio >= p.threshold {
		profile = splitter.ProfileChinese
	}
	p.logger.Debug(ctx, "detected language profile",
		zap.Float64("chinese_ratio", ratio),
		zap.Stringer("profile", profile))
	return profile
}

func (p *Pipeline) split(ctx context.Context, s splitter.Splitter, docs []document.Document, res *IngestionResult) ([]document.Chunk, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.split",
		trace.WithAttributes(attribute.String("splitter", s.Name()), attribute.Int("documents", len(docs))))
	defer span.End()
	defer observePhase(PhaseSplit, time.Now())

	batch, err := splitter.SplitDocuments(ctx, s, docs, p.logger.Underlying())
	if err != nil {
		return nil, endWithError(span, err)
	}
	for _, f := range batch.Failures {
		res.addError("split %s: %v", f.Source, f.Err)
	}
	if len(batch.Chunks) == 0 {
		return nil, endWithError(span, ErrNoChunks)
	}

	chunks := batch.Chunks
	if p.redactor != nil {
		chunks = p.redact(ctx, chunks)
	}
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	chunksCreated.Add(float64(len(chunks)))
	return chunks, nil
}

// redact masks credentials in chunk text. Chunks are replaced, not mutated.
func (p *Pipeline) redact(ctx context.Context, chunks []document.Chunk) []document.Chunk {
	out := make([]document.Chunk, len(chunks))
	total := 0
	for i, c := range chunks {
		text, findings := p.redactor.Redact(c.Text)
		out[i] = document.Chunk{Text: text, Metadata: c.Metadata}
		if len(findings) > 0 {
			total += len(findings)
			rules := make([]string, len(findings))
			for j, f := range findings {
				rules[j] = f.RuleID
			}
			p.logger.Warn(logging.WithSource(ctx, c.Source()), "redacted credentials in chunk",
				zap.Int("chunk_index", c.Index()),
				zap.Strings("rules", rules))
		}
	}
	if total > 0 {
		redactions.Add(float64(total))
	}
	return out
}

func (p *Pipeline) vectorize(ctx context.Context, chunks []document.Chunk, res *IngestionResult) ([]document.VectorPoint, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.vectorize", trace.WithAttributes(attribute.Int("chunks", len(chunks))))
	defer span.End()
	defer observePhase(PhaseVectorize, time.Now())

	out, err := p.vectorizer.Vectorize(ctx, chunks)
	if out != nil {
		res.ChunksFailed = len(out.Failures)
		for _, f := range out.Failures {
			res.addError("%v", f)
		}
	}
	if err != nil {
		return nil, endWithError(span, err)
	}
	if len(out.Points) == 0 {
		return nil, endWithError(span, ErrNoVectors)
	}
	span.SetAttributes(attribute.Int("points", len(out.Points)), attribute.Int("failed", len(out.Failures)))
	return out.Points, nil
}

func (p *Pipeline) upload(ctx context.Context, points []document.VectorPoint, res *IngestionResult) (int, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.upload", trace.WithAttributes(attribute.Int("points", len(points))))
	defer span.End()
	defer observePhase(PhaseUpload, time.Now())

	up := p.uploader.UploadAll(ctx, points)
	res.FailedBatches = up.FailedBatches
	for _, b := range up.Batches {
		if b.Err != nil {
			res.addError("upload batch %d (%d points): %v", b.Index, b.Size, b.Err)
		}
	}
	if err := ctx.Err(); err != nil {
		return 0, endWithError(span, err)
	}
	if up.UploadedPoints == 0 {
		return 0, endWithError(span, ErrNothingUploaded)
	}
	span.SetAttributes(attribute.Int("uploaded", up.UploadedPoints), attribute.Int("failed_batches", up.FailedBatches))
	vectorsUploaded.Add(float64(up.UploadedPoints))
	return up.UploadedPoints, nil
}

// finish records metrics, span attributes and a summary log for res.
func (p *Pipeline) finish(ctx context.Context, span trace.Span, res *IngestionResult) {
	recordResult(res)
	span.SetAttributes(
		attribute.Int("documents_loaded", res.DocumentsLoaded),
		attribute.Int("chunks_created", res.ChunksCreated),
		attribute.Int("vectors_uploaded", res.VectorsUploaded),
		attribute.Int("failed_files", len(res.FailedFiles)),
	)
	p.logger.Info(ctx, "ingestion finished",
		zap.Int("documents_loaded", res.DocumentsLoaded),
		zap.Int("chunks_created", res.ChunksCreated),
		zap.Int("vectors_uploaded", res.VectorsUploaded),
		zap.Int("failed_files", len(res.FailedFiles)),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("duration", res.Duration))
}

func endWithError(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
