// Package ocrengine adapts the external `ocrmypdf` command-line tool to
// the OCR Worker's decision tree (§4.4, step 4).
//
// The original Flask app calls ocrmypdf as a Python library
// (ocrmypdf.ocr(..., deskew=True, skip_text=True, force_ocr=False,
// optimize=0, jobs=1, skip_big=100, pdfa_image_compression="jpeg",
// jpeg_quality=70, png_quality=70)) and distinguishes a PriorOcrFoundError
// from every other failure. No Go binding for ocrmypdf exists in the
// retrieved pack, so this package shells out to the CLI, translating those
// kwargs to flags (force_ocr=False is the CLI default and is not passed;
// pdfa_image_compression has no flag here) and following the teacher's own subprocess
// pattern (os/exec, an env-overridable command name) from ocr.go's
// getPdftoppmCmd/getTesseractCmd.
package ocrengine

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
)

// Outcome is the discriminated result of an OCR attempt (§4.4 step 4).
type Outcome int

const (
	// Success: the output PDF was produced and is new OCR text.
	Success Outcome = iota
	// AlreadyHasText: ocrmypdf detected a prior OCR layer and refused to
	// re-OCR (ocrmypdf.exceptions.PriorOcrFoundError in the source).
	AlreadyHasText
	// Failed: any other nonzero exit.
	Failed
)

// priorOcrExitCode is the exit status ocrmypdf documents for
// ExitCode.already_done_ocr (raised from PriorOcrFoundError).
const priorOcrExitCode = 6

// Engine shells out to the ocrmypdf binary.
type Engine struct {
	Cmd string
}

// New builds an Engine. cmd empty defaults to "ocrmypdf".
func New(cmd string) *Engine {
	if strings.TrimSpace(cmd) == "" {
		cmd = "ocrmypdf"
	}
	return &Engine{Cmd: cmd}
}

// Run invokes ocrmypdf on inputPath, writing to outputPath, with the fixed
// policy flags the original Flask app passes to ocrmypdf.ocr(). It returns
// the discriminated Outcome; for Failed, the error is a *RunError carrying
// the raw stderr for diagnostics/logging.
func (e *Engine) Run(ctx context.Context, inputPath, outputPath string) (Outcome, error) {
	cmd := exec.CommandContext(ctx, e.Cmd,
		"--deskew",
		"--skip-text",
		"--optimize", "0",
		"--jobs", "1",
		"--skip-big", "100",
		"--jpeg-quality", "70",
		"--png-quality", "70",
		inputPath,
		outputPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return Success, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		if exitErr.ExitCode() == priorOcrExitCode {
			return AlreadyHasText, nil
		}
	}

	return Failed, &RunError{Cause: err, Stderr: stderr.String()}
}

// RunError wraps an ocrmypdf invocation failure that was not a recognised
// "prior OCR exists" condition.
type RunError struct {
	Cause  error
	Stderr string
}

func (e *RunError) Error() string {
	if e.Stderr == "" {
		return e.Cause.Error()
	}
	return e.Cause.Error() + ": " + e.Stderr
}

func (e *RunError) Unwrap() error {
	return e.Cause
}
