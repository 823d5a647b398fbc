// Package pagecount implements the Page Counter (§4.5): best-effort PDF
// page counting that never blocks processing.
//
// Grounded on the teacher's own extractPDFText (extract.go), which already
// opens a PDF with fitz.NewFromMemory and calls doc.NumPage(); this reuses
// exactly that open/NumPage/Close sequence without extracting any text.
package pagecount

import (
	"os"

	"github.com/gen2brain/go-fitz"

	"github.com/catalinfl/ocrbatch/internal/logging"
)

// Count opens the PDF at path and returns its page count. On any failure it
// returns 0 and logs a warning via logger (which may be nil); it never
// returns an error, since page count is metadata only (§4.5).
func Count(path string, logger *logging.Logger) int {
	data, err := os.ReadFile(path)
	if err != nil {
		warn(logger, path, err)
		return 0
	}

	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		warn(logger, path, err)
		return 0
	}
	defer doc.Close()

	return doc.NumPage()
}

func warn(logger *logging.Logger, path string, err error) {
	if logger != nil {
		logger.Warn("page count failed", "path", path, "error", err)
	}
}
