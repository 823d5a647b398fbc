// Package archive implements the Archive Builder (§4.7): it assembles one
// ZIP per completed job containing each successful file's output plus a
// manifest.pdf summary rendered with gofpdf, the teacher's own
// PDF-generation library (used in pdf.go for the chapter/summary reports
// this service drops).
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// FileOutput is one successful file's contribution to the archive.
type FileOutput struct {
	// SubmittedPath is the submitter-relative name the entry is stored
	// under inside the ZIP (§4.7).
	SubmittedPath string
	OutputPath    string
}

// ManifestEntry is one row of the manifest PDF's file table.
type ManifestEntry struct {
	Name      string
	PageCount int
	Outcome   string
	Optimised bool
	FromCache bool
}

// ManifestData is the summary Build renders into manifest.pdf and bundles
// into the archive alongside the per-file outputs, per §4.7 [FULL]: "the
// archive builder writes one additional entry, manifest.pdf... alongside
// the per-file outputs".
type ManifestData struct {
	JobID      string
	TotalPages int
	Entries    []ManifestEntry
}

// BuildResult reports whether Build managed to attach the manifest entry.
type BuildResult struct {
	ManifestIncluded bool
	ManifestError    error
}

// Build writes a ZIP at destPath containing every FileOutput under its
// SubmittedPath, in the given order (deterministic, matching submission
// order per §4.7), plus a manifest.pdf entry summarising the job. Manifest
// rendering is best-effort (§4.7 [FULL]: "the archive is still produced
// without it"): a failure there is reported through the returned
// BuildResult rather than the error return, since the per-file outputs
// are already valid and the archive must still be written.
func Build(destPath string, outputs []FileOutput, manifest ManifestData) (BuildResult, error) {
	out, err := os.Create(destPath)
	if err != nil {
		return BuildResult{}, err
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	for _, o := range outputs {
		if err := addFile(zw, o); err != nil {
			zw.Close()
			return BuildResult{}, err
		}
	}

	result := BuildResult{}
	if buf, rErr := renderManifest(manifest); rErr != nil {
		result.ManifestError = rErr
	} else if wErr := addManifest(zw, buf); wErr != nil {
		result.ManifestError = wErr
	} else {
		result.ManifestIncluded = true
	}

	if err := zw.Close(); err != nil {
		return result, err
	}
	return result, nil
}

func addFile(zw *zip.Writer, o FileOutput) error {
	src, err := os.Open(o.OutputPath)
	if err != nil {
		return err
	}
	defer src.Close()

	w, err := zw.Create(o.SubmittedPath)
	if err != nil {
		return err
	}

	_, err = io.Copy(w, src)
	return err
}

func addManifest(zw *zip.Writer, rendered *bytes.Buffer) error {
	w, err := zw.Create("manifest.pdf")
	if err != nil {
		return err
	}
	_, err = w.Write(rendered.Bytes())
	return err
}

// renderManifest renders manifest.pdf into memory: one row per file with
// its page count, outcome, and cache flag.
func renderManifest(m ManifestData) (*bytes.Buffer, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()
	pdf.SetFont("Arial", "B", 16)

	pdf.Cell(0, 10, "OCR Batch Manifest")
	pdf.Ln(15)

	pdf.SetFont("Arial", "", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Job: %s", m.JobID))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Files: %d", len(m.Entries)))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Total pages: %d", m.TotalPages))
	pdf.Ln(6)
	pdf.Cell(0, 8, fmt.Sprintf("Generated at: %s", time.Now().Format("2006-01-02 15:04:05")))
	pdf.Ln(12)

	pdf.SetFont("Arial", "B", 11)
	pdf.Cell(90, 8, "File")
	pdf.Cell(25, 8, "Pages")
	pdf.Cell(35, 8, "Outcome")
	pdf.Cell(20, 8, "Cache")
	pdf.Ln(8)

	pdf.SetFont("Arial", "", 10)
	for _, e := range m.Entries {
		pdf.Cell(90, 7, e.Name)
		pdf.Cell(25, 7, fmt.Sprintf("%d", e.PageCount))
		pdf.Cell(35, 7, e.Outcome)
		cache := ""
		if e.FromCache {
			cache = "yes"
		}
		pdf.Cell(20, 7, cache)
		pdf.Ln(7)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}
