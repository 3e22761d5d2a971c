package scan

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/franz/music-pipeline/internal/meta"
)

// FindAlbumDirs walks a media library and returns every directory that
// directly holds audio files. Disc folders ("CD1", "Disc 2") are folded into
// their parent so a multi-disc album is reported once. progress, if set, is
// called for every audio file seen.
func (s *Scanner) FindAlbumDirs(ctx context.Context, mediaRoot string, progress func(path string)) ([]string, error) {
	albums := make(map[string]bool)

	walkErr := filepath.WalkDir(mediaRoot, func(path string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if path == mediaRoot {
				return err
			}
			s.log.Warn("Error accessing path", "path", path, "error", err)
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") && path != mediaRoot {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !s.isAudioFile(path) {
			return nil
		}

		if progress != nil {
			progress(path)
		}

		dir := filepath.Dir(path)
		if dir != filepath.Clean(mediaRoot) && meta.IsDiscDir(filepath.Base(dir)) {
			dir = filepath.Dir(dir)
		}
		albums[dir] = true
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("walk error: %w", walkErr)
	}

	out := make([]string, 0, len(albums))
	for dir := range albums {
		out = append(out, dir)
	}
	sort.Strings(out)
	return out, nil
}
