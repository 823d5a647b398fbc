package httpapi

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/catalinfl/ocrbatch/internal/job"
	"github.com/catalinfl/ocrbatch/internal/ocrerrors"
)

// handleProcess implements POST /process: stages every uploaded file under
// field "files[]" (or "files", accepted for convenience) into a fresh Job
// and starts it, returning the job id immediately without waiting on
// completion (§5: "submit returns a job id as soon as staging and counting
// are done").
func (s *Server) handleProcess(c *fiber.Ctx) error {
	form, err := c.MultipartForm()
	if err != nil {
		return writeError(c, ocrerrors.New(ocrerrors.BadInput, "multipart form required"))
	}

	headers := form.File["files[]"]
	if len(headers) == 0 {
		headers = form.File["files"]
	}
	if len(headers) == 0 {
		return writeError(c, ocrerrors.New(ocrerrors.BadInput, "no files provided under field files[]"))
	}

	inputs := make([]job.InputFile, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		inputs = append(inputs, job.InputFile{
			RelPath: fh.Filename,
			Size:    fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}

	j, err := s.manager.Submit(defaultOwner, inputs)
	if err != nil {
		return writeError(c, err)
	}

	// The job runs past this request's lifetime, so it is started with an
	// independent background context rather than the request's context.
	if err := s.manager.Start(context.Background(), j.ID); err != nil {
		return writeError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"process_id": j.ID})
}

// handleProcessStatus implements GET /process-status/<id>.
func (s *Server) handleProcessStatus(c *fiber.Ctx) error {
	id := c.Params("id")
	view, result, err := s.manager.Status(id)
	if err != nil {
		return writeError(c, err)
	}
	if result != nil {
		return c.JSON(result)
	}
	return c.JSON(view)
}

// handleCancelProcess implements POST /cancel-process/<id>.
func (s *Server) handleCancelProcess(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := s.manager.Cancel(id); err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"success": true, "message": "Cancellation requested"})
}

// handleDownload implements GET /download/<id>.
func (s *Server) handleDownload(c *fiber.Ctx) error {
	id := c.Params("id")
	return s.sendArchive(c, id)
}

// handleDownloadLegacy implements the legacy GET /download (no id),
// resolved through the owner's last-process-id map, matching
// download_legacy in the original Flask app (§6 [FULL]).
func (s *Server) handleDownloadLegacy(c *fiber.Ctx) error {
	id, ok := s.manager.LastJobID(defaultOwner)
	if !ok {
		return writeError(c, ocrerrors.New(ocrerrors.NotFound, "no prior job for this session"))
	}
	return s.sendArchive(c, id)
}

func (s *Server) sendArchive(c *fiber.Ctx, id string) error {
	path, err := s.manager.Archive(id)
	if err != nil {
		return writeError(c, err)
	}
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="%s"`, downloadFilename(id)))
	return c.SendFile(path, false)
}

// handleLogs implements GET /logs.
func (s *Server) handleLogs(c *fiber.Ctx) error {
	return c.JSON(s.ring.Snapshot())
}

// statusResponse is the GET /status shape (§6).
type statusResponse struct {
	CurrentFile      string  `json:"current_file,omitempty"`
	CurrentFileIndex int     `json:"current_file_index,omitempty"`
	TotalFiles       int     `json:"total_files,omitempty"`
	IsProcessing     bool    `json:"is_processing"`
	ElapsedSeconds   float64 `json:"elapsed_seconds,omitempty"`
	PossibleHang     bool    `json:"possible_hang,omitempty"`
}

// handleStatus implements GET /status: a global progress snapshot over
// whatever job is currently running, matching the source's single shared
// progress view.
func (s *Server) handleStatus(c *fiber.Ctx) error {
	var running *job.Job
	for _, j := range s.manager.Snapshot() {
		if st := j.State(); st == job.Running || st == job.Canceling {
			running = j
			break
		}
	}

	if running == nil {
		return c.JSON(statusResponse{IsProcessing: false})
	}

	idx := running.CurrentFileIndex()
	var currentFile string
	if idx < len(running.Files) {
		currentFile = running.Files[idx].SubmittedPath
	}

	hang := time.Since(running.LastProgressAt()) > s.hangWarning

	return c.JSON(statusResponse{
		CurrentFile:      currentFile,
		CurrentFileIndex: idx,
		TotalFiles:       len(running.Files),
		IsProcessing:     true,
		ElapsedSeconds:   running.ElapsedSeconds(),
		PossibleHang:     hang,
	})
}

// handleClearCache implements GET /clear-cache.
func (s *Server) handleClearCache(c *fiber.Ctx) error {
	removed, err := s.cache.Clear()
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": fmt.Sprintf("Removed %d cache entries", removed),
	})
}
