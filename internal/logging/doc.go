// Package logging provides structured logging for docingest on top of zap.
//
// Logger adds context-aware methods that inject trace correlation and the
// ingestion run fields (run ID, source file, collection) stored in the
// context:
//
//	ctx = logging.WithRunID(ctx, runID)
//	ctx = logging.WithSource(ctx, path)
//	logger.Info(ctx, "file loaded", zap.Int("documents", n))
//
// Console output goes to stderr so command output on stdout stays clean. An
// OpenTelemetry log provider can be attached as a second output.
//
// Field names listed in the redaction config, and string values matching its
// patterns, are replaced by the encoder before they are written.
//
// Use NewTestLogger in tests to observe entries.
package logging
