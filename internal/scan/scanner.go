package scan

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/franz/music-pipeline/internal/logger"
	"github.com/franz/music-pipeline/internal/meta"
	"github.com/franz/music-pipeline/internal/util"
)

// AudioExtensions are the extensions the import stage recognizes.
var AudioExtensions = []string{
	".flac",
	".mp3",
	".ogg",
	".opus",
	".m4a",
}

// Scanner discovers audio files below an album directory.
type Scanner struct {
	extensions map[string]bool
	timeout    time.Duration
	log        *logger.Logger
}

// Config holds scanner configuration
type Config struct {
	AdditionalExts []string
	Timeout        time.Duration // Upper bound for one album walk; 0 means none
	Logger         *logger.Logger
}

// New creates a new Scanner
func New(cfg *Config) *Scanner {
	// Build extension map (case-insensitive)
	extMap := make(map[string]bool)
	for _, ext := range AudioExtensions {
		extMap[strings.ToLower(ext)] = true
	}
	for _, ext := range cfg.AdditionalExts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extMap[ext] = true
	}

	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Scanner{
		extensions: extMap,
		timeout:    cfg.Timeout,
		log:        log,
	}
}

// Entry is one discovered audio file and the slot it occupies on the album.
type Entry struct {
	Disc  int
	Index int
	Title string
	Path  string
	Codec string
	Size  int64
}

type slot struct {
	disc, index int
}

// Album is the result of scanning one album directory. Entries are unique
// by (disc, index).
type Album struct {
	Root       string
	TotalBytes int64
	Collisions int

	entries map[slot]Entry
}

// Entries returns the discovered files ordered by disc, then index.
func (a *Album) Entries() []Entry {
	out := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Disc != out[j].Disc {
			return out[i].Disc < out[j].Disc
		}
		return out[i].Index < out[j].Index
	})
	return out
}

// Len returns the number of tracks found.
func (a *Album) Len() int {
	return len(a.entries)
}

// Discs returns the number of distinct discs.
func (a *Album) Discs() int {
	seen := make(map[int]bool)
	for k := range a.entries {
		seen[k.disc] = true
	}
	return len(seen)
}

type scanResult struct {
	album *Album
	err   error
}

// ScanAlbum walks root and assigns every audio file a (disc, index) slot.
// Paths are visited in lexical order and a later path replaces an earlier
// one in the same slot, so the result is a pure function of the tree.
//
// It fails with util.ErrNotDirectory when root is not a directory and with
// util.ErrEmptyAlbum when nothing was found. When the walk outlives the
// scanner timeout, the context error is returned.
func (s *Scanner) ScanAlbum(ctx context.Context, root string) (*Album, error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", root, util.ErrNotDirectory)
		}
		return nil, fmt.Errorf("failed to stat album root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", root, util.ErrNotDirectory)
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	// The walk reads the filesystem and tags; keep it off the caller's
	// goroutine so a hung mount cannot outlive the deadline.
	done := make(chan scanResult, 1)
	go func() {
		album, err := s.scan(ctx, root)
		done <- scanResult{album: album, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("scan of %s aborted: %w", root, ctx.Err())
	case res := <-done:
		return res.album, res.err
	}
}

func (s *Scanner) scan(ctx context.Context, root string) (*Album, error) {
	type found struct {
		path string
		size int64
	}
	var files []found

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err != nil {
			if path == root {
				return err
			}
			s.log.Warn("Error accessing path", "path", path, "error", err)
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !s.isAudioFile(path) {
			return nil
		}

		var size int64
		if fi, err := d.Info(); err == nil {
			size = fi.Size()
		}
		files = append(files, found{path: path, size: size})
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk error: %w", walkErr)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].path < files[j].path })

	album := &Album{Root: root, entries: make(map[slot]Entry)}
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		index, title := meta.TrackIndex(f.path)
		e := Entry{
			Disc:  discOf(root, f.path),
			Index: index,
			Title: title,
			Path:  f.path,
			Codec: meta.Codec(f.path),
			Size:  f.size,
		}

		k := slot{disc: e.Disc, index: e.Index}
		if prev, ok := album.entries[k]; ok {
			s.log.Warn("Two files map to the same track, keeping the later one",
				"disc", e.Disc, "index", e.Index, "dropped", prev.Path, "kept", e.Path)
			album.TotalBytes -= prev.Size
			album.Collisions++
		}
		album.entries[k] = e
		album.TotalBytes += e.Size
	}

	if len(album.entries) == 0 {
		return nil, fmt.Errorf("%s: %w", root, util.ErrEmptyAlbum)
	}
	return album, nil
}

// discOf derives the disc from the file's immediate parent directory. Files
// directly in the album root, or under a directory without digits, are on
// disc 1.
func discOf(root, path string) int {
	parent := filepath.Dir(path)
	if filepath.Clean(parent) == filepath.Clean(root) {
		return 1
	}
	if n, ok := meta.DiscNumber(filepath.Base(parent)); ok {
		return n
	}
	return 1
}

// isAudioFile checks if a file has a supported audio extension
func (s *Scanner) isAudioFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return s.extensions[ext]
}

// GetSupportedExtensions returns the list of supported extensions
func (s *Scanner) GetSupportedExtensions() []string {
	exts := make([]string, 0, len(s.extensions))
	for ext := range s.extensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
