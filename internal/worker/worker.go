// Package worker implements the OCR Worker (§4.4) and the coordinator that
// drives a Job through a bounded pool of workers (§5, §4.6 coordinator
// algorithm).
//
// # Architecture Overview
//
// Run is a job's coordinator. It fans a job's FileEntry list out across a
// bounded pool of worker goroutines and fans the results back in to update
// progress and, once every file is resolved, assemble the archive.
//
// # Concurrency Model
//
//  1. DISPATCHER (fan-out)
//     - Feeds each FileEntry into an unbuffered work channel, so a send
//       waits until a worker is free to take it.
//     - Stops feeding once the job's cancel_signal fires; files not yet
//       dispatched are marked Skipped(canceled) without ever reaching a
//       worker.
//
//  2. WORKER GOROUTINES (W = min(host_parallelism, #files, WorkerCap);
//     WorkerCap falls back to 4 when unset)
//     - Each pulls a FileEntry from the work channel and runs the OCR
//       Worker decision tree (§4.4) against it.
//     - Workers share no mutable state except the Cache Store (file-rename
//       atomicity) and the Log Ring, matching §4.4's concurrency note.
//
//  3. COORDINATOR (fan-in, same goroutine as Run's caller)
//     - Waits for all workers via a sync.WaitGroup.
//     - Records MarkProgress after each worker finishes a file.
//     - Builds the archive once every file has a terminal Outcome.
//
// # Data Flow
//
//	Run(ctx, job)
//	    │
//	    ├──► spawn W worker goroutines (drain workCh)
//	    │
//	    ├──► for each FileEntry: send to workCh (dispatcher)
//	    │        └──► stop early if cancel_signal fires
//	    │
//	    ├──► close(workCh), wg.Wait() [all files resolved or skipped]
//	    │
//	    ├──► archive.Build (per-file outputs + manifest.pdf entry, best-effort)
//	    │
//	    └──► job.Finish(Complete|Failed|Canceled, result, archivePath)
package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/catalinfl/ocrbatch/internal/archive"
	"github.com/catalinfl/ocrbatch/internal/cache"
	"github.com/catalinfl/ocrbatch/internal/fingerprint"
	"github.com/catalinfl/ocrbatch/internal/job"
	"github.com/catalinfl/ocrbatch/internal/logging"
	"github.com/catalinfl/ocrbatch/internal/ocrengine"
	"github.com/catalinfl/ocrbatch/internal/optimizer"
)

// Deps collects everything the coordinator and its workers need. It is
// built once in cmd/ocrserver/main.go and shared by every job.
type Deps struct {
	Cache      *cache.Store
	Optimizer  *optimizer.Optimizer
	Engine     *ocrengine.Engine
	Logger     *logging.Logger
	UploadsDir string
	WorkerCap  int
	// PerFileTimeout bounds a single file's OCR attempt; zero means no
	// timeout beyond the parent context.
	PerFileTimeout time.Duration
}

// Coordinator runs jobs to completion using a shared Deps.
type Coordinator struct {
	deps Deps
}

// New builds a Coordinator. Its Run method has the signature the Job
// Manager's runner hook expects (internal/job.NewManager).
func New(deps Deps) *Coordinator {
	return &Coordinator{deps: deps}
}

// Run drives j from Running to a terminal state, dispatching its files
// across a bounded worker pool (§4.6 coordinator algorithm).
func (c *Coordinator) Run(ctx context.Context, j *job.Job) {
	files := j.Files
	w := workerCount(c.deps.WorkerCap, len(files))

	type work struct {
		idx   int
		entry *job.FileEntry
	}
	workCh := make(chan work)
	var wg sync.WaitGroup

	for i := 0; i < w; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for wk := range workCh {
				c.processFile(ctx, j, wk.entry)
				j.MarkProgress(wk.idx)
			}
		}()
	}

	dispatched := 0
	for idx, entry := range files {
		select {
		case <-j.CancelSignal():
			entry.SetOutcome(job.FileSkipped, "canceled")
			j.MarkProgress(idx)
		default:
			workCh <- work{idx: idx, entry: entry}
			dispatched++
		}
	}
	close(workCh)
	wg.Wait()

	c.finish(j, w)
}

func workerCount(workerCap, nFiles int) int {
	if workerCap <= 0 {
		workerCap = 4
	}
	w := runtime.NumCPU()
	if nFiles < w {
		w = nFiles
	}
	if workerCap < w {
		w = workerCap
	}
	if w < 1 {
		w = 1
	}
	return w
}

// processFile implements the OCR Worker decision tree (§4.4).
func (c *Coordinator) processFile(ctx context.Context, j *job.Job, entry *job.FileEntry) {
	if j.IsCancelRequested() {
		entry.SetOutcome(job.FileSkipped, "canceled")
		return
	}

	if c.deps.PerFileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.deps.PerFileTimeout)
		defer cancel()
	}

	scratchDir, err := os.MkdirTemp(c.deps.UploadsDir, "scratch-*")
	if err != nil {
		entry.SetOutcome(job.FileFailed, fmt.Sprintf("scratch dir: %v", err))
		return
	}
	defer os.RemoveAll(scratchDir)

	name := filepath.Base(entry.SubmittedPath)
	outputPath := filepath.Join(scratchDir, name)

	fp, err := fingerprint.Fingerprint(entry.StagedPath)
	if err != nil {
		entry.SetOutcome(job.FileFailed, fmt.Sprintf("fingerprint: %v", err))
		return
	}
	entry.Fingerprint = fp

	if cachedPath, ok := c.deps.Cache.Lookup(fp, name); ok {
		if err := copyFile(cachedPath, outputPath); err == nil {
			entry.OutputPath = outputPath
			entry.SetOutcome(job.CacheHit, "")
			return
		}
		if c.deps.Logger != nil {
			c.deps.Logger.Warn("cache hit but copy failed, falling through to OCR", "file", name)
		}
	}

	inputPath := entry.StagedPath
	optimised := false
	if c.deps.Optimizer != nil {
		res, err := c.deps.Optimizer.Optimize(ctx, inputPath, scratchDir)
		if err == nil && res.Applied {
			inputPath = res.Path
			optimised = true
		}
	}

	// Second cancellation checkpoint (§5): re-check between fingerprinting
	// and the OCR call itself, so a cancel that lands mid-pipeline still
	// stops this file short of invoking the external OCR engine.
	if j.IsCancelRequested() {
		entry.SetOutcome(job.FileSkipped, "canceled")
		return
	}

	outcome, runErr := c.deps.Engine.Run(ctx, inputPath, outputPath)
	switch outcome {
	case ocrengine.Success:
		entry.OutputPath = outputPath
		if optimised {
			entry.SetOutcome(job.Optimised, "")
		} else {
			entry.SetOutcome(job.Ocred, "")
		}
		if err := c.deps.Cache.Admit(fp, name, outputPath); err != nil && c.deps.Logger != nil {
			c.deps.Logger.Warn("cache admit failed", "file", name, "error", err)
		}

	case ocrengine.AlreadyHasText:
		if err := copyFile(inputPath, outputPath); err != nil {
			entry.SetOutcome(job.FileFailed, fmt.Sprintf("copy after prior-ocr: %v", err))
			return
		}
		entry.OutputPath = outputPath
		entry.SetOutcome(job.AlreadyOcred, "")
		if err := c.deps.Cache.Admit(fp, name, outputPath); err != nil && c.deps.Logger != nil {
			c.deps.Logger.Warn("cache admit failed", "file", name, "error", err)
		}

	default: // ocrengine.Failed
		if err := copyFile(inputPath, outputPath); err == nil {
			entry.OutputPath = outputPath
			entry.OCRAnnotation = fmt.Sprintf("ocr failed, used original: %v", runErr)
			entry.SetOutcome(job.Ocred, "")
			if c.deps.Logger != nil {
				c.deps.Logger.Warn("ocr failed, forgiving fallback used original", "file", name, "error", runErr)
			}
			return
		}
		entry.SetOutcome(job.FileFailed, fmt.Sprintf("ocr failed: %v", runErr))
	}
}

// finish assembles the archive (if any file produced output) and
// transitions j to its terminal state. usedWorkers is the W actually used
// to run this job (§3 JobResult.cpu_parallelism, §6 stats.cpu_cores),
// computed once by Run rather than re-derived from the host here.
func (c *Coordinator) finish(j *job.Job, usedWorkers int) {
	if j.IsCancelRequested() && !anySucceeded(j.Files) {
		cleanupStaging(j)
		j.Finish(job.Canceled, &job.JobResult{
			Message:   "Processing canceled",
			ProcessID: j.ID,
			Success:   false,
		}, "")
		return
	}

	var outputs []archive.FileOutput
	var manifestEntries []archive.ManifestEntry
	var fileInfos []job.FileInfo
	var errs []string
	totalPages := 0
	optimisedCount := 0
	fromCacheCount := 0

	for _, entry := range j.Files {
		totalPages += entry.PageCount
		switch entry.Outcome {
		case job.CacheHit, job.Optimised, job.Ocred, job.AlreadyOcred:
			outputs = append(outputs, archive.FileOutput{
				SubmittedPath: entry.SubmittedPath,
				OutputPath:    entry.OutputPath,
			})
			fromCache := entry.Outcome == job.CacheHit
			if fromCache {
				fromCacheCount++
			}
			if entry.Outcome == job.Optimised {
				optimisedCount++
			}
			fileInfos = append(fileInfos, job.FileInfo{
				Name:      filepath.Base(entry.SubmittedPath),
				Path:      entry.SubmittedPath,
				PageCount: entry.PageCount,
				SizeMB:    float64(entry.SizeBytes) / (1024 * 1024),
				Optimized: entry.Outcome == job.Optimised,
				FromCache: fromCache,
			})
			manifestEntries = append(manifestEntries, archive.ManifestEntry{
				Name:      filepath.Base(entry.SubmittedPath),
				PageCount: entry.PageCount,
				Outcome:   string(entry.Outcome),
				FromCache: fromCache,
			})
		case job.FileFailed:
			errs = append(errs, fmt.Sprintf("%s: %s", entry.SubmittedPath, entry.Reason))
		case job.FileSkipped:
			errs = append(errs, fmt.Sprintf("%s: %s", entry.SubmittedPath, entry.Reason))
		}
	}

	cleanupStaging(j)

	if len(outputs) == 0 {
		j.Finish(job.Failed, &job.JobResult{
			Message:   "Processing failed",
			Errors:    errs,
			ProcessID: j.ID,
			Success:   false,
		}, "")
		return
	}

	archivePath := filepath.Join(c.deps.UploadsDir, fmt.Sprintf("processed_files_%s.zip", j.ID))
	buildResult, err := archive.Build(archivePath, outputs, archive.ManifestData{
		JobID:      j.ID,
		TotalPages: totalPages,
		Entries:    manifestEntries,
	})
	if err != nil {
		j.Finish(job.Failed, &job.JobResult{
			Message:   fmt.Sprintf("archive assembly failed: %v", err),
			Errors:    errs,
			ProcessID: j.ID,
			Success:   false,
		}, "")
		return
	}
	if buildResult.ManifestError != nil && c.deps.Logger != nil {
		c.deps.Logger.Warn("manifest generation failed, archive still produced", "job_id", j.ID, "error", buildResult.ManifestError)
	}

	var errsOrNil []string
	if len(errs) > 0 {
		errsOrNil = errs
	}

	result := job.Canceled
	if !j.IsCancelRequested() {
		result = job.Complete
	}

	j.Finish(result, &job.JobResult{
		Message:     "Processing complete",
		DownloadURL: fmt.Sprintf("/download/%s", j.ID),
		Errors:      errsOrNil,
		FileInfo:    fileInfos,
		TotalPages:  totalPages,
		Stats: job.Stats{
			OptimizedFiles: optimisedCount,
			FromCache:      fromCacheCount,
			TotalFiles:     len(j.Files),
			CPUCores:       usedWorkers,
		},
		ProcessID:        j.ID,
		Success:          true,
		ManifestIncluded: buildResult.ManifestIncluded,
	}, archivePath)
}

func anySucceeded(files []*job.FileEntry) bool {
	for _, f := range files {
		switch f.CurrentOutcome() {
		case job.CacheHit, job.Optimised, job.Ocred, job.AlreadyOcred:
			return true
		}
	}
	return false
}

func cleanupStaging(j *job.Job) {
	if root := j.StagingRoot(); root != "" {
		os.RemoveAll(root)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
