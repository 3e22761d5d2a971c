package util

import "errors"

// Sentinel errors for common failure modes
var (
	// ErrNotFound indicates a required resource was not found
	ErrNotFound = errors.New("not found")

	// ErrNotDirectory indicates an album source path is not a directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrEmptyAlbum indicates an album directory holds no audio files
	ErrEmptyAlbum = errors.New("no audio files found")

	// ErrNoSourcePath indicates an album has no filesystem source to import from
	ErrNoSourcePath = errors.New("album has no source path")

	// ErrFileOwned indicates a media file is already imported under another album
	ErrFileOwned = errors.New("file belongs to another album")

	// ErrToolMissing indicates an external analyzer is not installed
	ErrToolMissing = errors.New("external tool not found")

	// ErrInvalidConfig indicates invalid configuration
	ErrInvalidConfig = errors.New("invalid configuration")
)
