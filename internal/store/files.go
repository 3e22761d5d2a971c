package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/franz/music-pipeline/internal/util"
)

// GetFile retrieves a file by ID. It returns nil, nil when absent.
func (s *Store) GetFile(ctx context.Context, id uuid.UUID) (*File, error) {
	f := &File{}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, track_id, path, codec, status,
		       COALESCE(duration_sec, 0), COALESCE(fingerprint, ''), COALESCE(error, ''),
		       updated_at
		FROM files WHERE id = ?
	`), id).Scan(
		&f.ID, &f.TrackID, &f.Path, &f.Codec, &f.Status,
		&f.DurationSec, &f.Fingerprint, &f.Error,
		&f.UpdatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return f, nil
}

// MarkFingerprinted stores a fingerprint result and moves the file to
// FP_DONE. Running it again overwrites the previous result. Files in ERROR
// are left alone and reported as util.ErrNotFound.
func (s *Store) MarkFingerprinted(ctx context.Context, id uuid.UUID, durationSec int, fingerprint string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE files
		SET status = ?, duration_sec = ?, fingerprint = ?, error = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status <> ?
	`), StatusFPDone, durationSec, fingerprint, id, StatusError)
	if err != nil {
		return fmt.Errorf("failed to update fingerprint: %w", err)
	}
	return requireOneRow(res, id)
}

// MarkFileError moves a file to ERROR with a reason.
func (s *Store) MarkFileError(ctx context.Context, id uuid.UUID, reason string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE files SET status = ?, error = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`), StatusError, reason, id)
	if err != nil {
		return fmt.Errorf("failed to update file status: %w", err)
	}
	return requireOneRow(res, id)
}

// CountFilesByStatus returns file counts per status for one album.
func (s *Store) CountFilesByStatus(ctx context.Context, albumID uuid.UUID) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT f.status, COUNT(*)
		FROM files f
		JOIN tracks t ON t.id = f.track_id
		WHERE t.album_id = ?
		GROUP BY f.status
	`), albumID)
	if err != nil {
		return nil, fmt.Errorf("failed to count files: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}

	return counts, rows.Err()
}

func requireOneRow(res sql.Result, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("file %s: %w", id, util.ErrNotFound)
	}
	return nil
}
