package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// File status values. Each stage moves a file forward; ERROR is terminal.
const (
	StatusNew    = "NEW"
	StatusFPDone = "FP_DONE"
	StatusError  = "ERROR"
)

// SourceType discriminates the album source union.
type SourceType string

const (
	SourceUpload      SourceType = "upload"
	SourceRemote      SourceType = "remote"
	SourceLibraryScan SourceType = "library_scan"
)

// Source says where an album's media comes from. Path is set for upload and
// library_scan sources, URL for remote ones.
type Source struct {
	Type SourceType `json:"type"`
	Path string     `json:"path,omitempty"`
	URL  string     `json:"url,omitempty"`
}

// Validate checks the union is well formed.
func (s Source) Validate() error {
	switch s.Type {
	case SourceUpload, SourceLibraryScan:
		if s.URL != "" {
			return fmt.Errorf("%s source must not carry a url", s.Type)
		}
	case SourceRemote:
		if s.URL == "" {
			return fmt.Errorf("remote source requires a url")
		}
		if s.Path != "" {
			return fmt.Errorf("remote source must not carry a path")
		}
	default:
		return fmt.Errorf("unknown source type %q", s.Type)
	}
	return nil
}

// Album is read-only to pipeline workers.
type Album struct {
	ID        uuid.UUID
	Source    Source
	CreatedAt time.Time
}

func (a *Album) sourceJSON() (string, error) {
	b, err := json.Marshal(a.Source)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// TrackInput is one discovered audio file to materialize as a track and file.
type TrackInput struct {
	Disc  int
	Index int
	Title string
	Path  string
	Codec string
}

// Track is a logical song on an album, unique by (album, disc, index).
type Track struct {
	ID          uuid.UUID
	AlbumID     uuid.UUID
	Disc        int
	Index       int
	Title       string
	DurationSec int
}

// File is a physical media object. Each stage owns a subset of its columns:
// import writes path/codec, fingerprint writes status/duration/fingerprint.
type File struct {
	ID          uuid.UUID
	TrackID     uuid.UUID
	Path        string
	Codec       string
	Status      string
	DurationSec int
	Fingerprint string
	Error       string
	UpdatedAt   time.Time
}

// TrackFile joins a track with its file for reporting.
type TrackFile struct {
	Track Track
	File  File
}
