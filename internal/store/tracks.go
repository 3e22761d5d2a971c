package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/franz/music-pipeline/internal/util"
)

// ImportTracks materializes one track and one file per entry for albumID in a
// single transaction and returns the file IDs in entry order. Either every
// row is written or none is. Re-importing the same album converges on the
// same rows: tracks are keyed by (album, disc, index) and files by path.
// A path already owned by another album's track is never reassigned; the
// import fails with util.ErrFileOwned and nothing is written.
func (s *Store) ImportTracks(ctx context.Context, albumID uuid.UUID, entries []TrackInput) ([]uuid.UUID, error) {
	fileIDs := make([]uuid.UUID, 0, len(entries))

	upsertTrack := s.rebind(`
		INSERT INTO tracks (id, album_id, disc, "index", title)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (album_id, disc, "index") DO UPDATE SET
			title = excluded.title
		RETURNING id
	`)
	upsertFile := s.rebind(`
		INSERT INTO files (id, track_id, path, codec, status)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			track_id = excluded.track_id,
			codec = excluded.codec,
			updated_at = CURRENT_TIMESTAMP
		WHERE files.track_id IN (SELECT id FROM tracks WHERE album_id = ?)
		RETURNING id
	`)

	err := s.Transaction(ctx, func(tx *sql.Tx) error {
		for _, e := range entries {
			var trackID uuid.UUID
			if err := tx.QueryRowContext(ctx, upsertTrack,
				uuid.New(), albumID, e.Disc, e.Index, e.Title,
			).Scan(&trackID); err != nil {
				return fmt.Errorf("failed to upsert track %d-%d: %w", e.Disc, e.Index, err)
			}

			var fileID uuid.UUID
			err := tx.QueryRowContext(ctx, upsertFile,
				uuid.New(), trackID, e.Path, e.Codec, StatusNew, albumID,
			).Scan(&fileID)
			if errors.Is(err, sql.ErrNoRows) {
				return fmt.Errorf("%s: %w", e.Path, util.ErrFileOwned)
			}
			if err != nil {
				return fmt.Errorf("failed to upsert file %q: %w", e.Path, err)
			}
			fileIDs = append(fileIDs, fileID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fileIDs, nil
}

// ListTrackFiles returns every track of an album with its file, ordered by
// disc then index.
func (s *Store) ListTrackFiles(ctx context.Context, albumID uuid.UUID) ([]*TrackFile, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT t.id, t.album_id, t.disc, t."index", t.title, COALESCE(t.duration_sec, 0),
		       f.id, f.track_id, f.path, f.codec, f.status,
		       COALESCE(f.duration_sec, 0), COALESCE(f.fingerprint, ''), COALESCE(f.error, ''),
		       f.updated_at
		FROM tracks t
		JOIN files f ON f.track_id = t.id
		WHERE t.album_id = ?
		ORDER BY t.disc, t."index", f.path
	`), albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracks: %w", err)
	}
	defer rows.Close()

	var out []*TrackFile
	for rows.Next() {
		tf := &TrackFile{}
		if err := rows.Scan(
			&tf.Track.ID, &tf.Track.AlbumID, &tf.Track.Disc, &tf.Track.Index, &tf.Track.Title, &tf.Track.DurationSec,
			&tf.File.ID, &tf.File.TrackID, &tf.File.Path, &tf.File.Codec, &tf.File.Status,
			&tf.File.DurationSec, &tf.File.Fingerprint, &tf.File.Error,
			&tf.File.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		out = append(out, tf)
	}
	return out, rows.Err()
}

// CountTracks returns the number of tracks an album has.
func (s *Store) CountTracks(ctx context.Context, albumID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*) FROM tracks WHERE album_id = ?`), albumID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count tracks: %w", err)
	}
	return n, nil
}
