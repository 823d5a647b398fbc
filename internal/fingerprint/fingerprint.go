// Package fingerprint implements the Fingerprinter (§4.1): a stable
// hexadecimal identity for a file used as its cache key.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// smallFileLimit is the size below which file content is folded into the
// fingerprint, matching the original Flask app's get_file_hash threshold.
const smallFileLimit = 100 * 1024 * 1024 // 100 MiB

// Fingerprint computes a stable hex digest for the file at path, built from
// "<size>_<mtime_nanos>" and, for files under 100 MiB, the MD5 digest of
// the file's content appended to that preamble. The choice of MD5 mirrors
// the original app's hashlib.md5 usage; collision risk is accepted exactly
// as in the source (see DESIGN.md's notes on this open question).
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &FingerprintError{Path: path, Cause: err}
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", &FingerprintError{Path: path, Cause: err}
	}

	preamble := fmt.Sprintf("%d_%d", info.Size(), info.ModTime().UnixNano())

	h := md5.New()
	io.WriteString(h, preamble)

	if info.Size() < smallFileLimit {
		if _, err := io.Copy(h, f); err != nil {
			return "", &FingerprintError{Path: path, Cause: err}
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// FingerprintError reports that path could not be read while computing its
// fingerprint.
type FingerprintError struct {
	Path  string
	Cause error
}

func (e *FingerprintError) Error() string {
	return fmt.Sprintf("fingerprint %s: %v", e.Path, e.Cause)
}

func (e *FingerprintError) Unwrap() error {
	return e.Cause
}
