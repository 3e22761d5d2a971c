// Package fingerprint implements the fingerprint stage.
package fingerprint

import (
	"context"
	"fmt"

	"github.com/franz/music-pipeline/internal/logger"
	"github.com/franz/music-pipeline/internal/meta"
	"github.com/franz/music-pipeline/internal/pipeline"
	"github.com/franz/music-pipeline/internal/store"
)

// Analyzer computes an acoustic fingerprint for one file.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (*meta.Fingerprint, error)
}

// Publisher emits downstream jobs.
type Publisher interface {
	Publish(ctx context.Context, env pipeline.JobEnvelope) error
}

type Handler struct {
	store    *store.Store
	analyzer Analyzer
	pub      Publisher
	log      *logger.Logger
}

func New(st *store.Store, analyzer Analyzer, pub Publisher, log *logger.Logger) *Handler {
	return &Handler{
		store:    st,
		analyzer: analyzer,
		pub:      pub,
		log:      log.With("component", "Fingerprint"),
	}
}

func (h *Handler) Stage() pipeline.Stage {
	return pipeline.Fingerprint
}

// Process fingerprints one file and queues its track match. Re-running it
// overwrites the stored result. Files already in ERROR are skipped.
func (h *Handler) Process(ctx context.Context, env pipeline.JobEnvelope) error {
	fileID := env.File()

	f, err := h.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f == nil {
		return pipeline.Permanent(fmt.Errorf("file %s does not exist", fileID))
	}
	if f.Status == store.StatusError {
		h.log.Info("Skipping file in ERROR", "file_id", fileID.String(), "error", f.Error)
		return nil
	}

	fp, err := h.analyzer.Analyze(ctx, f.Path)
	if err != nil {
		// Analyzer failures are treated as transient; the retry budget
		// turns a persistently broken file into ERROR.
		return fmt.Errorf("fingerprint %s: %w", f.Path, err)
	}

	if err := h.store.MarkFingerprinted(ctx, fileID, fp.DurationSec, fp.Value); err != nil {
		return err
	}

	next := pipeline.NewFileJob(pipeline.MatchTrack, env.Album(), fileID)
	if err := h.pub.Publish(ctx, next); err != nil {
		return fmt.Errorf("publish match job for file %s: %w", fileID, err)
	}

	h.log.Debug("File fingerprinted", "file_id", fileID.String(), "duration_sec", fp.DurationSec)
	return nil
}

// RecordFailure marks the file as ERROR. A file that no longer exists is
// left alone.
func (h *Handler) RecordFailure(ctx context.Context, env pipeline.JobEnvelope, cause error) error {
	fileID := env.File()
	f, err := h.store.GetFile(ctx, fileID)
	if err != nil {
		return err
	}
	if f == nil {
		return nil
	}
	return h.store.MarkFileError(ctx, fileID, cause.Error())
}
