// Package cache implements the Cache Store (§4.2): a directory of
// previously OCR'd artifacts keyed by fingerprint, so identical files are
// never re-OCR'd.
//
// Unlike ivoronin-dupedog's internal/cache package, which backs its hash
// cache with BoltDB, entries here are whole files that must be streamed
// back to a client, not digests looked up for comparison — a plain
// directory with atomic rename-based admission fits that shape better than
// forcing every read through a key/value transaction.
package cache

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/catalinfl/ocrbatch/internal/logging"
	"github.com/catalinfl/ocrbatch/internal/ocrerrors"
)

// Store is the on-disk Cache Store rooted at Dir.
type Store struct {
	Dir string

	// mu serialises admit/evict against each other's directory listing;
	// file-level atomicity still comes from os.Rename, matching the
	// concurrency note in §4.2 ("concurrent admits of the same key are
	// allowed — last rename wins").
	mu sync.Mutex

	// maxAge and maxTotalBytes are the budget Admit enforces after every
	// admission (§3 invariant 4: "checked after each admission and on
	// startup"). Both default to 0, meaning "no budget configured" (the
	// zero Store behaves exactly as before SetBudget is called), since a
	// literal zero-age/zero-size budget would evict everything.
	maxAge        time.Duration
	maxTotalBytes int64
	logger        *logging.Logger
}

// New returns a Store rooted at dir, creating it if necessary.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, ocrerrors.NewCacheIOError("mkdir", err)
	}
	return &Store{Dir: dir}, nil
}

// SetBudget configures the age/size budget Admit enforces after every
// admission, and the logger eviction failures are reported through.
// Callers that want invariant 4 enforced (cmd/ocrserver's real wiring)
// call this once after New; tests that never call it keep Admit's
// pre-existing behavior of not auto-evicting.
func (s *Store) SetBudget(maxAge time.Duration, maxTotalBytes int64, logger *logging.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAge = maxAge
	s.maxTotalBytes = maxTotalBytes
	s.logger = logger
}

// key renders the cache key form "<fingerprint>_<original_basename>".
func key(fingerprint, name string) string {
	return fmt.Sprintf("%s_%s", fingerprint, filepath.Base(name))
}

// Lookup returns the path to a previously admitted artifact for
// (fingerprint, name), or ok=false if no such entry exists.
func (s *Store) Lookup(fingerprint, name string) (path string, ok bool) {
	p := filepath.Join(s.Dir, key(fingerprint, name))
	if info, err := os.Stat(p); err == nil && !info.IsDir() {
		return p, true
	}
	return "", false
}

// Admit copies sourcePath into the cache under the key derived from
// (fingerprint, name). It stages the copy as "<key>.tmp" and renames it
// into place, so a reader never observes a partially written file. If a
// budget has been configured via SetBudget, Admit enforces it immediately
// afterward (§3 invariant 4: "checked after each admission"); a budget
// enforcement failure is logged, not returned, since the admission itself
// already succeeded.
func (s *Store) Admit(fingerprint, name, sourcePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dest := filepath.Join(s.Dir, key(fingerprint, name))
	tmp := dest + ".tmp"

	if err := copyFile(sourcePath, tmp); err != nil {
		os.Remove(tmp)
		return ocrerrors.NewCacheIOError("admit", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return ocrerrors.NewCacheIOError("admit", err)
	}

	if s.maxAge > 0 || s.maxTotalBytes > 0 {
		maxAge := s.maxAge
		if maxAge <= 0 {
			maxAge = math.MaxInt64
		}
		maxTotalBytes := s.maxTotalBytes
		if maxTotalBytes <= 0 {
			maxTotalBytes = math.MaxInt64
		}
		if err := s.evictLocked(time.Now(), maxAge, maxTotalBytes); err != nil && s.logger != nil {
			s.logger.Warn("post-admit cache eviction failed", "error", err)
		}
	}
	return nil
}

// Evict enforces the two budgets from §4.2, in order: entries older than
// maxAge are removed first, then (if the remaining aggregate size still
// exceeds maxTotalBytes) entries are removed largest-first until at or
// below budget. now is passed in rather than read from time.Now so tests
// can exercise the age cutoff deterministically.
func (s *Store) Evict(now time.Time, maxAge time.Duration, maxTotalBytes int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked(now, maxAge, maxTotalBytes)
}

// evictLocked is Evict's body, callable with s.mu already held (Admit
// calls it directly to avoid re-locking a non-reentrant mutex).
func (s *Store) evictLocked(now time.Time, maxAge time.Duration, maxTotalBytes int64) error {
	entries, err := s.listEntries()
	if err != nil {
		return ocrerrors.NewCacheIOError("evict", err)
	}

	var kept []cacheFile
	for _, e := range entries {
		if now.Sub(e.modTime) > maxAge {
			os.Remove(e.path)
			continue
		}
		kept = append(kept, e)
	}

	var total int64
	for _, e := range kept {
		total += e.size
	}

	if total <= maxTotalBytes {
		return nil
	}

	sort.Slice(kept, func(i, j int) bool { return kept[i].size > kept[j].size })
	for _, e := range kept {
		if total <= maxTotalBytes {
			break
		}
		os.Remove(e.path)
		total -= e.size
	}

	return nil
}

// Clear best-effort deletes every entry, returning the count removed and
// never aborting on an individual failure.
func (s *Store) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := s.listEntries()
	if err != nil {
		return 0, ocrerrors.NewCacheIOError("clear", err)
	}

	removed := 0
	for _, e := range entries {
		if os.Remove(e.path) == nil {
			removed++
		}
	}
	return removed, nil
}

type cacheFile struct {
	path    string
	size    int64
	modTime time.Time
}

func (s *Store) listEntries() ([]cacheFile, error) {
	dirEntries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}

	var out []cacheFile
	for _, de := range dirEntries {
		if de.IsDir() || strings.HasSuffix(de.Name(), ".tmp") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, cacheFile{
			path:    filepath.Join(s.Dir, de.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return out, nil
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
