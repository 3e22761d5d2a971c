// Package importer implements the import stage: it turns an album's source
// directory into track and file rows and fans out fingerprint jobs.
package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/franz/music-pipeline/internal/logger"
	"github.com/franz/music-pipeline/internal/pipeline"
	"github.com/franz/music-pipeline/internal/scan"
	"github.com/franz/music-pipeline/internal/store"
	"github.com/franz/music-pipeline/internal/util"
)

// Publisher emits downstream jobs.
type Publisher interface {
	Publish(ctx context.Context, env pipeline.JobEnvelope) error
}

// Handler processes import jobs.
type Handler struct {
	store   *store.Store
	scanner *scan.Scanner
	pub     Publisher
	log     *logger.Logger
}

// New creates an import handler.
func New(st *store.Store, scanner *scan.Scanner, pub Publisher, log *logger.Logger) *Handler {
	return &Handler{
		store:   st,
		scanner: scanner,
		pub:     pub,
		log:     log.With("component", "Import"),
	}
}

func (h *Handler) Stage() pipeline.Stage {
	return pipeline.Import
}

// Process imports one album. Tracks and files are committed in a single
// transaction before any fingerprint job is published, so a downstream
// worker never sees a file id that is not yet visible. The whole operation
// is idempotent and may be re-run after a transient failure.
func (h *Handler) Process(ctx context.Context, env pipeline.JobEnvelope) error {
	albumID := env.Album()
	started := time.Now()

	root, err := h.store.AlbumSourcePath(ctx, albumID)
	if err != nil {
		if errors.Is(err, util.ErrNotFound) || errors.Is(err, util.ErrNoSourcePath) {
			return pipeline.Permanent(err)
		}
		return err
	}

	album, err := h.scanner.ScanAlbum(ctx, root)
	if err != nil {
		if errors.Is(err, util.ErrNotDirectory) || errors.Is(err, util.ErrEmptyAlbum) {
			return pipeline.Permanent(err)
		}
		return err
	}

	entries := album.Entries()
	inputs := make([]store.TrackInput, len(entries))
	for i, e := range entries {
		inputs[i] = store.TrackInput{
			Disc:  e.Disc,
			Index: e.Index,
			Title: e.Title,
			Path:  e.Path,
			Codec: e.Codec,
		}
	}

	fileIDs, err := h.store.ImportTracks(ctx, albumID, inputs)
	if errors.Is(err, util.ErrFileOwned) {
		return pipeline.Permanent(fmt.Errorf("import album %s: %w", albumID, err))
	}
	if err != nil {
		return fmt.Errorf("import album %s: %w", albumID, err)
	}

	for _, fileID := range fileIDs {
		if err := h.pub.Publish(ctx, pipeline.NewFileJob(pipeline.Fingerprint, albumID, fileID)); err != nil {
			return fmt.Errorf("publish fingerprint job for file %s: %w", fileID, err)
		}
	}

	h.log.Info("Album imported",
		"album_id", albumID.String(),
		"root", root,
		"tracks", len(fileIDs),
		"discs", album.Discs(),
		"size", humanize.Bytes(uint64(album.TotalBytes)),
		"collisions", album.Collisions,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	return nil
}

// Submit registers a new album and queues its import. It is the entry point
// for anything that brings albums into the system.
func Submit(ctx context.Context, st *store.Store, pub Publisher, src store.Source) (*store.Album, error) {
	album := &store.Album{ID: uuid.New(), Source: src}
	if err := st.InsertAlbum(ctx, album); err != nil {
		return nil, err
	}
	if err := pub.Publish(ctx, pipeline.NewAlbumJob(pipeline.Import, album.ID)); err != nil {
		return album, fmt.Errorf("album %s stored but import job not queued: %w", album.ID, err)
	}
	return album, nil
}
