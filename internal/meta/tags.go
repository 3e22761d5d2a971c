package meta

import (
	"fmt"
	"os"
	"strings"

	"github.com/dhowden/tag"
)

// TrackTag is the subset of embedded tags the import stage cares about.
type TrackTag struct {
	Track int
	Title string
}

// ReadTrackTag reads embedded tags from an audio file. It fails when the
// file cannot be opened or carries no readable tag block.
func ReadTrackTag(path string) (*TrackTag, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read tags: %w", err)
	}

	track, _ := m.Track()
	return &TrackTag{
		Track: track,
		Title: strings.TrimSpace(m.Title()),
	}, nil
}

// TrackIndex picks the track index and title for a file: the tag track
// number and title when present, otherwise the leading digits of the file
// name with an empty title, otherwise 0.
func TrackIndex(path string) (int, string) {
	if t, err := ReadTrackTag(path); err == nil && t.Track > 0 {
		return t.Track, t.Title
	}
	return LeadingNumber(StemOf(path)), ""
}
