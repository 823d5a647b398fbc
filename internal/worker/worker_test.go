package worker

import (
	"archive/zip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catalinfl/ocrbatch/internal/cache"
	"github.com/catalinfl/ocrbatch/internal/job"
	"github.com/catalinfl/ocrbatch/internal/ocrengine"
	"github.com/catalinfl/ocrbatch/internal/optimizer"
)

func fakeOCRMyPDF(t *testing.T, exitCode int, outputContent string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ocrmypdf script requires a POSIX shell")
	}

	dir := t.TempDir()
	script := filepath.Join(dir, "fake-ocrmypdf.sh")
	body := fmt.Sprintf(`#!/bin/sh
out="$(echo "$@" | awk '{print $NF}')"
if [ %d -eq 0 ]; then
  printf '%%s' "%s" > "$out"
fi
exit %d
`, exitCode, outputContent, exitCode)
	require.NoError(t, os.WriteFile(script, []byte(body), 0o755))
	return script
}

func newTestDeps(t *testing.T, engineCmd string) Deps {
	t.Helper()
	uploadsDir := t.TempDir()
	cacheDir := t.TempDir()

	store, err := cache.New(cacheDir)
	require.NoError(t, err)

	opt := optimizer.New("gs", 1<<40, 10, nil) // threshold never reached in tests

	return Deps{
		Cache:      store,
		Optimizer:  opt,
		Engine:     ocrengine.New(engineCmd),
		UploadsDir: uploadsDir,
		WorkerCap:  2,
	}
}

func TestRunSuccessfulOCRProducesArchive(t *testing.T) {
	engineScript := fakeOCRMyPDF(t, 0, "ocr'd content")
	deps := newTestDeps(t, engineScript)

	stagingRoot := t.TempDir()
	entryPath := filepath.Join(stagingRoot, "report.pdf")
	require.NoError(t, os.WriteFile(entryPath, []byte("original"), 0o644))

	entry := &job.FileEntry{
		SubmittedPath: "report.pdf",
		StagedPath:    entryPath,
		Outcome:       job.NotStarted,
	}
	j := job.NewJob("job-ocr", "owner-1", stagingRoot, []*job.FileEntry{entry})

	co := New(deps)
	co.Run(context.Background(), j)

	assert.Equal(t, job.Complete, j.State())
	require.NotEmpty(t, j.ArchivePath())

	zr, err := zip.OpenReader(j.ArchivePath())
	require.NoError(t, err)
	defer zr.Close()
	require.Len(t, zr.File, 2)
	assert.Equal(t, "report.pdf", zr.File[0].Name)
	assert.Equal(t, "manifest.pdf", zr.File[1].Name)

	result := j.Result()
	require.NotNil(t, result)
	assert.Equal(t, 1, result.Stats.TotalFiles)
	assert.True(t, result.ManifestIncluded)
	// A single-file job never needs more than one worker, regardless of
	// how many cores the host actually has (§3 cpu_parallelism, §6
	// stats.cpu_cores = W actually used).
	assert.Equal(t, 1, result.Stats.CPUCores)
}

func TestRunCPUCoresReflectsWorkerCapNotHostCores(t *testing.T) {
	engineScript := fakeOCRMyPDF(t, 0, "ocr'd content")
	deps := newTestDeps(t, engineScript)
	deps.WorkerCap = 1

	stagingRoot := t.TempDir()
	var entries []*job.FileEntry
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("report-%d.pdf", i)
		path := filepath.Join(stagingRoot, name)
		require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))
		entries = append(entries, &job.FileEntry{
			SubmittedPath: name,
			StagedPath:    path,
			Outcome:       job.NotStarted,
		})
	}
	j := job.NewJob("job-workercap", "owner-1", stagingRoot, entries)

	co := New(deps)
	co.Run(context.Background(), j)

	require.Equal(t, job.Complete, j.State())
	result := j.Result()
	require.NotNil(t, result)
	// WorkerCap=1 bounds W to 1 even though there are 3 files and the
	// host may have many more cores.
	assert.Equal(t, 1, result.Stats.CPUCores)
}

func TestRunOCRFailureFallsBackToOriginal(t *testing.T) {
	engineScript := fakeOCRMyPDF(t, 1, "")
	deps := newTestDeps(t, engineScript)

	stagingRoot := t.TempDir()
	entryPath := filepath.Join(stagingRoot, "report.pdf")
	require.NoError(t, os.WriteFile(entryPath, []byte("original"), 0o644))

	entry := &job.FileEntry{
		SubmittedPath: "report.pdf",
		StagedPath:    entryPath,
		Outcome:       job.NotStarted,
	}
	j := job.NewJob("job-fallback", "owner-1", stagingRoot, []*job.FileEntry{entry})

	co := New(deps)
	co.Run(context.Background(), j)

	// The forgiving policy (§4.4 step 4) treats a non-"prior OCR" engine
	// failure as Ocred with a non-fatal annotation, not as Failed, so the
	// job still completes with an archive.
	assert.Equal(t, job.Complete, j.State())
	assert.Equal(t, job.Ocred, entry.CurrentOutcome())
	assert.NotEmpty(t, entry.OCRAnnotation)
}

func TestRunUnreadableInputMarksFileFailed(t *testing.T) {
	engineScript := fakeOCRMyPDF(t, 0, "ocr'd content")
	deps := newTestDeps(t, engineScript)

	stagingRoot := t.TempDir()
	missingPath := filepath.Join(stagingRoot, "missing.pdf")

	entry := &job.FileEntry{
		SubmittedPath: "missing.pdf",
		StagedPath:    missingPath,
		Outcome:       job.NotStarted,
	}
	j := job.NewJob("job-missing", "owner-1", stagingRoot, []*job.FileEntry{entry})

	co := New(deps)
	co.Run(context.Background(), j)

	assert.Equal(t, job.Failed, j.State())
	assert.Equal(t, job.FileFailed, entry.CurrentOutcome())
}

func TestRunCanceledBeforeDispatchSkipsFiles(t *testing.T) {
	engineScript := fakeOCRMyPDF(t, 0, "ocr'd content")
	deps := newTestDeps(t, engineScript)

	stagingRoot := t.TempDir()
	entryPath := filepath.Join(stagingRoot, "report.pdf")
	require.NoError(t, os.WriteFile(entryPath, []byte("original"), 0o644))

	entry := &job.FileEntry{
		SubmittedPath: "report.pdf",
		StagedPath:    entryPath,
		Outcome:       job.NotStarted,
	}
	j := job.NewJob("job-canceled", "owner-1", stagingRoot, []*job.FileEntry{entry})

	j.RequestCancelForTest()

	co := New(deps)
	co.Run(context.Background(), j)

	assert.Equal(t, job.Canceled, j.State())
	assert.Equal(t, job.FileSkipped, entry.CurrentOutcome())
}
