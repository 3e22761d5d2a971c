package main

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/franz/music-pipeline/internal/store"
)

func TestRenderAlbumStatus(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	album := &store.Album{
		ID:        uuid.New(),
		Source:    store.Source{Type: store.SourceUpload, Path: "/media/albums/a1"},
		CreatedAt: now.Add(-2 * time.Hour),
	}
	rows := []*store.TrackFile{
		{
			Track: store.Track{Disc: 1, Index: 1, Title: "Opening"},
			File:  store.File{Path: "/media/albums/a1/01.flac", Codec: "flac", Status: store.StatusFPDone, DurationSec: 241, UpdatedAt: now.Add(-time.Minute)},
		},
		{
			Track: store.Track{Disc: 1, Index: 2},
			File:  store.File{Path: "/media/albums/a1/02.flac", Codec: "flac", Status: store.StatusError, Error: "decode failed", UpdatedAt: now},
		},
	}
	counts := map[string]int{store.StatusFPDone: 1, store.StatusError: 1}

	out := renderAlbumStatus(album, rows, counts, now, false)

	for _, want := range []string{
		album.ID.String(),
		"/media/albums/a1 (upload)",
		"2 hours ago",
		"Opening",
		"01.flac",
		"4:01",
		"ERROR: decode failed",
		"2 tracks  ERROR=1 FP_DONE=1",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRenderAlbumStatusColorsStatus(t *testing.T) {
	now := time.Now()
	album := &store.Album{ID: uuid.New(), Source: store.Source{Type: store.SourceUpload, Path: "/a"}, CreatedAt: now}
	rows := []*store.TrackFile{
		{Track: store.Track{Disc: 1, Index: 1}, File: store.File{Path: "/a/01.flac", Status: store.StatusError, UpdatedAt: now}},
	}

	plain := renderAlbumStatus(album, rows, nil, now, false)
	if strings.Contains(plain, "\x1b[") {
		t.Errorf("plain output contains escape codes:\n%s", plain)
	}

	colored := renderAlbumStatus(album, rows, nil, now, true)
	if !strings.Contains(colored, "\x1b[") || !strings.Contains(colored, "ERROR") {
		t.Errorf("expected coloured ERROR status:\n%s", colored)
	}
}

func TestRenderAlbumStatusEmpty(t *testing.T) {
	album := &store.Album{ID: uuid.New(), Source: store.Source{Type: store.SourceRemote, URL: "https://example.org/a.zip"}}

	out := renderAlbumStatus(album, nil, nil, time.Now(), false)
	if !strings.Contains(out, "No tracks imported yet.") || !strings.Contains(out, "https://example.org/a.zip") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestLocalSource(t *testing.T) {
	src, err := localSource(store.SourceLibraryScan, "relative/dir")
	if err != nil {
		t.Fatalf("localSource() error = %v", err)
	}
	if src.Type != store.SourceLibraryScan || !strings.HasSuffix(src.Path, "relative/dir") || !strings.HasPrefix(src.Path, "/") {
		t.Errorf("localSource() = %+v", src)
	}

	if _, err := localSource(store.SourceRemote, "x"); err == nil {
		t.Error("remote source should be rejected for a local path")
	}
}
