// Package optimizer implements the PDF Optimiser (§4.3): a Ghostscript
// subprocess adapter that downsamples large PDFs before OCR, adopting the
// result only when it shrinks the file by a worthwhile margin.
package optimizer

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/catalinfl/ocrbatch/internal/logging"
)

// Result reports which variant of the input the optimiser selected.
type Result struct {
	// Applied is true if the optimised copy was adopted.
	Applied bool
	// Path is the file the caller should proceed with: either the
	// optimised output (Applied) or the original input path.
	Path string
}

// Optimizer shells out to Ghostscript, following the teacher's env-override
// pattern for external commands (getPdftoppmCmd/getTesseractCmd in
// ocr.go): GSCmd defaults to "gs" but can be overridden, e.g. in
// environments where Ghostscript is installed under a different name.
type Optimizer struct {
	GSCmd           string
	ThresholdBytes  int64
	MinReductionPct float64
	Logger          *logging.Logger
}

// New builds an Optimizer. gsCmd empty defaults to "gs".
func New(gsCmd string, thresholdBytes int64, minReductionPct float64, logger *logging.Logger) *Optimizer {
	if strings.TrimSpace(gsCmd) == "" {
		gsCmd = "gs"
	}
	return &Optimizer{
		GSCmd:           gsCmd,
		ThresholdBytes:  thresholdBytes,
		MinReductionPct: minReductionPct,
		Logger:          logger,
	}
}

// Optimize runs Ghostscript against inputPath if it is at or above the
// configured threshold, writing a downsampled copy to optimised.pdf inside
// scratchDir.
// It adopts the optimised copy only if it is at least MinReductionPct
// smaller than the input; otherwise the temp file is discarded and the
// original path is returned. A Ghostscript failure is non-fatal: the
// original is used and a warning logged (§4.3).
func (o *Optimizer) Optimize(ctx context.Context, inputPath string, scratchDir string) (Result, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return Result{}, err
	}

	if info.Size() < o.ThresholdBytes {
		return Result{Applied: false, Path: inputPath}, nil
	}

	outPath := fmt.Sprintf("%s/optimised.pdf", scratchDir)

	cmd := exec.CommandContext(ctx, o.GSCmd,
		"-sDEVICE=pdfwrite",
		"-dPDFSETTINGS=/ebook",
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		fmt.Sprintf("-sOutputFile=%s", outPath),
		inputPath,
	)

	if err := cmd.Run(); err != nil {
		if o.Logger != nil {
			o.Logger.Warn("ghostscript optimisation failed, using original", "input", inputPath, "error", err)
		}
		os.Remove(outPath)
		return Result{Applied: false, Path: inputPath}, nil
	}

	optInfo, err := os.Stat(outPath)
	if err != nil {
		if o.Logger != nil {
			o.Logger.Warn("ghostscript produced no output, using original", "input", inputPath, "error", err)
		}
		return Result{Applied: false, Path: inputPath}, nil
	}

	reduction := (1 - float64(optInfo.Size())/float64(info.Size())) * 100
	if reduction < o.MinReductionPct {
		os.Remove(outPath)
		return Result{Applied: false, Path: inputPath}, nil
	}

	return Result{Applied: true, Path: outPath}, nil
}
