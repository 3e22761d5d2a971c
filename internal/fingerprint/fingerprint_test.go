package fingerprint

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/franz/music-pipeline/internal/logger"
	"github.com/franz/music-pipeline/internal/meta"
	"github.com/franz/music-pipeline/internal/pipeline"
	"github.com/franz/music-pipeline/internal/store"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	fp    *meta.Fingerprint
	err   error
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, path string) (*meta.Fingerprint, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.fp, nil
}

type fakePublisher struct {
	jobs []pipeline.JobEnvelope
	err  error
}

func (p *fakePublisher) Publish(ctx context.Context, env pipeline.JobEnvelope) error {
	if p.err != nil {
		return p.err
	}
	p.jobs = append(p.jobs, env)
	return nil
}

func setup(t *testing.T) (*store.Store, uuid.UUID, uuid.UUID) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(filepath.Join(t.TempDir(), "pipeline.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	album := &store.Album{Source: store.Source{Type: store.SourceUpload, Path: "/media/albums/x"}}
	if err := st.InsertAlbum(ctx, album); err != nil {
		t.Fatal(err)
	}
	ids, err := st.ImportTracks(ctx, album.ID, []store.TrackInput{
		{Disc: 1, Index: 1, Path: "/media/albums/x/01.flac", Codec: "flac"},
	})
	if err != nil {
		t.Fatal(err)
	}
	return st, album.ID, ids[0]
}

func TestProcessIsIdempotent(t *testing.T) {
	st, albumID, fileID := setup(t)
	ctx := context.Background()

	analyzer := &fakeAnalyzer{fp: &meta.Fingerprint{DurationSec: 241, Value: "AQADtEmS"}}
	pub := &fakePublisher{}
	h := New(st, analyzer, pub, logger.Nop())
	job := pipeline.NewFileJob(pipeline.Fingerprint, albumID, fileID)

	for i := 0; i < 2; i++ {
		if err := h.Process(ctx, job); err != nil {
			t.Fatalf("Process() run %d error = %v", i+1, err)
		}
	}

	f, err := st.GetFile(ctx, fileID)
	if err != nil || f == nil {
		t.Fatalf("GetFile() = %v, %v", f, err)
	}
	if f.Status != store.StatusFPDone || f.DurationSec != 241 || f.Fingerprint != "AQADtEmS" {
		t.Errorf("unexpected file: %+v", f)
	}

	if len(pub.jobs) != 2 {
		t.Fatalf("expected one match job per run, got %d", len(pub.jobs))
	}
	for _, job := range pub.jobs {
		if job.Stage != pipeline.MatchTrack || job.File() != fileID || job.Album() != albumID {
			t.Errorf("unexpected downstream job: %+v", job)
		}
	}
}

func TestProcessMissingFile(t *testing.T) {
	st, _, fileID := setup(t)
	ctx := context.Background()

	analyzer := &fakeAnalyzer{fp: &meta.Fingerprint{DurationSec: 1, Value: "x"}}
	pub := &fakePublisher{}
	h := New(st, analyzer, pub, logger.Nop())

	missing := pipeline.NewFileJob(pipeline.Fingerprint, uuid.Nil, uuid.New())
	err := h.Process(ctx, missing)
	if !pipeline.IsPermanent(err) {
		t.Fatalf("expected a permanent error, got %v", err)
	}
	if err := h.RecordFailure(ctx, missing, err); err != nil {
		t.Errorf("RecordFailure() error = %v", err)
	}

	if analyzer.calls != 0 {
		t.Error("analyzer should not run for a missing file")
	}
	if len(pub.jobs) != 0 {
		t.Error("no downstream job expected")
	}

	// The existing file is untouched.
	f, err := st.GetFile(ctx, fileID)
	if err != nil || f == nil {
		t.Fatalf("GetFile() = %v, %v", f, err)
	}
	if f.Status != store.StatusNew {
		t.Errorf("status = %s, want %s", f.Status, store.StatusNew)
	}
}

func TestProcessAnalyzerFailureIsTransient(t *testing.T) {
	st, albumID, fileID := setup(t)
	ctx := context.Background()

	analyzer := &fakeAnalyzer{err: errors.New("fpcalc failed on /media/albums/x/01.flac: decode error")}
	h := New(st, analyzer, &fakePublisher{}, logger.Nop())
	job := pipeline.NewFileJob(pipeline.Fingerprint, albumID, fileID)

	err := h.Process(ctx, job)
	if err == nil || pipeline.IsPermanent(err) {
		t.Fatalf("expected a transient error, got %v", err)
	}

	f, _ := st.GetFile(ctx, fileID)
	if f.Status != store.StatusNew {
		t.Errorf("transient failure must not change status, got %s", f.Status)
	}

	// After the retry budget is exhausted the runtime records the failure.
	if err := h.RecordFailure(ctx, job, err); err != nil {
		t.Fatalf("RecordFailure() error = %v", err)
	}
	f, _ = st.GetFile(ctx, fileID)
	if f.Status != store.StatusError || f.Error == "" {
		t.Errorf("expected ERROR with a reason, got %+v", f)
	}
}

func TestProcessPublishFailureIsTransient(t *testing.T) {
	st, albumID, fileID := setup(t)

	analyzer := &fakeAnalyzer{fp: &meta.Fingerprint{DurationSec: 10, Value: "AQAA"}}
	h := New(st, analyzer, &fakePublisher{err: errors.New("channel closed")}, logger.Nop())

	err := h.Process(context.Background(), pipeline.NewFileJob(pipeline.Fingerprint, albumID, fileID))
	if err == nil || pipeline.IsPermanent(err) {
		t.Fatalf("expected a transient error, got %v", err)
	}
}

func TestProcessSkipsFilesInError(t *testing.T) {
	st, albumID, fileID := setup(t)
	ctx := context.Background()

	if err := st.MarkFileError(ctx, fileID, "fpcalc: decode failed"); err != nil {
		t.Fatal(err)
	}

	analyzer := &fakeAnalyzer{fp: &meta.Fingerprint{DurationSec: 10, Value: "AQAA"}}
	pub := &fakePublisher{}
	h := New(st, analyzer, pub, logger.Nop())

	if err := h.Process(ctx, pipeline.NewFileJob(pipeline.Fingerprint, albumID, fileID)); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if analyzer.calls != 0 {
		t.Error("analyzer should not run for a file in ERROR")
	}
	if len(pub.jobs) != 0 {
		t.Errorf("expected no downstream job, got %d", len(pub.jobs))
	}

	f, _ := st.GetFile(ctx, fileID)
	if f.Status != store.StatusError || f.Error != "fpcalc: decode failed" {
		t.Errorf("file left ERROR: %+v", f)
	}
}
