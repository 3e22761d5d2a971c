package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/franz/music-pipeline/internal/util"
)

// InsertAlbum creates an album row. A zero ID is filled in.
func (s *Store) InsertAlbum(ctx context.Context, a *Album) error {
	if err := a.Source.Validate(); err != nil {
		return err
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	src, err := a.sourceJSON()
	if err != nil {
		return fmt.Errorf("failed to encode album source: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO albums (id, source) VALUES (?, ?)
	`), a.ID, src)
	if err != nil {
		return fmt.Errorf("failed to insert album: %w", err)
	}
	return nil
}

// GetAlbum retrieves an album by ID. It returns nil, nil when absent.
func (s *Store) GetAlbum(ctx context.Context, id uuid.UUID) (*Album, error) {
	var raw string
	a := &Album{}
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, CAST(source AS TEXT), created_at FROM albums WHERE id = ?
	`), id).Scan(&a.ID, &raw, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get album: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &a.Source); err != nil {
		return nil, fmt.Errorf("album %s has unreadable source: %w", id, err)
	}
	return a, nil
}

// AlbumSourcePath returns source.path for an album. It fails with
// util.ErrNotFound when the album does not exist and util.ErrNoSourcePath
// when the source has no path.
func (s *Store) AlbumSourcePath(ctx context.Context, id uuid.UUID) (string, error) {
	var path sql.NullString
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT source->>'path' FROM albums WHERE id = ?
	`), id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("album %s: %w", id, util.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up album source: %w", err)
	}
	if !path.Valid || path.String == "" {
		return "", fmt.Errorf("album %s: %w", id, util.ErrNoSourcePath)
	}
	return path.String, nil
}

// AlbumExistsForPath reports whether any album already points at path.
func (s *Store) AlbumExistsForPath(ctx context.Context, path string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT COUNT(*) FROM albums WHERE source->>'path' = ?
	`), path).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to look up album by path: %w", err)
	}
	return count > 0, nil
}
