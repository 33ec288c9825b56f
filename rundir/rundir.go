// Package rundir manages the on-disk directory layout for LSM run
// files: per-level directory creation on demand, the
// "{timestamp}-{length}-{max_key}-{min_key}.sst" naming scheme, and
// run deletion. It is adapted from the teacher's segmentmanager
// package — the same directory-validate/mkdir-on-demand and
// regexp-based filename bookkeeping, repurposed from rotating WAL
// segments to immutable, content-addressed run files.
package rundir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"sync"
)

var filenamePattern = regexp.MustCompile(`^(\d+)-(\d+)-(\d+)-(\d+)\.sst$`)

// Header identifies a run by the four-tuple spec.md calls its identity:
// (timestamp, length, max_key, min_key). This tuple also forms the
// run's filename.
type Header struct {
	Timestamp uint64
	Length    uint64
	MaxKey    uint64
	MinKey    uint64
}

// Filename returns the canonical on-disk name for h.
func (h Header) Filename() string {
	return fmt.Sprintf("%d-%d-%d-%d.sst", h.Timestamp, h.Length, h.MaxKey, h.MinKey)
}

// ParseFilename recovers a Header from a run filename, reporting
// whether name matched the expected shape.
func ParseFilename(name string) (Header, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return Header{}, false
	}
	ts, err1 := strconv.ParseUint(m[1], 10, 64)
	length, err2 := strconv.ParseUint(m[2], 10, 64)
	maxKey, err3 := strconv.ParseUint(m[3], 10, 64)
	minKey, err4 := strconv.ParseUint(m[4], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return Header{}, false
	}
	return Header{Timestamp: ts, Length: length, MaxKey: maxKey, MinKey: minKey}, true
}

// Dir manages level subdirectories under a single root and guards
// directory creation with a mutex, the same shape the teacher's
// diskSegmentManager used to guard its active-file rotation.
type Dir struct {
	mu   sync.Mutex
	root string
}

// New returns a Dir rooted at root. root is created on demand the
// first time a level directory under it is requested.
func New(root string) *Dir {
	return &Dir{root: root}
}

// LevelPath returns the directory holding level L's run files, creating
// it (and root, if necessary) if it does not already exist.
func (d *Dir) LevelPath(level int) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	path := filepath.Join(d.root, fmt.Sprintf("level%d", level))
	if err := ensureDir(path); err != nil {
		return "", fmt.Errorf("rundir: failed to create level directory %s: %w", path, err)
	}
	return path, nil
}

func ensureDir(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return nil
		}
		return fmt.Errorf("path exists but is not a directory: %s", path)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return os.MkdirAll(path, 0o755)
}

// FilePath returns the run file's full path without touching the
// filesystem.
func (d *Dir) FilePath(level int, h Header) string {
	return filepath.Join(d.root, fmt.Sprintf("level%d", level), h.Filename())
}

// UniqueFilePath returns a path for h under level that does not yet
// exist on disk, disambiguating filename collisions within a single
// compaction by appending "-1", "-2", ... before the extension. The
// header bytes written inside the file are unaffected — only the
// on-disk name changes.
func (d *Dir) UniqueFilePath(level int, h Header) (string, error) {
	levelPath, err := d.LevelPath(level)
	if err != nil {
		return "", err
	}

	base := h.Filename()
	path := filepath.Join(levelPath, base)
	for suffix := 1; ; suffix++ {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return path, nil
		} else if err != nil {
			return "", fmt.Errorf("rundir: failed to stat %s: %w", path, err)
		}
		ext := filepath.Ext(base)
		name := fmt.Sprintf("%s-%d%s", base[:len(base)-len(ext)], suffix, ext)
		path = filepath.Join(levelPath, name)
	}
}

// Remove deletes a run file. Failures are reported but non-fatal per
// spec.md §7 (IO-unlink): callers remove the resident summary from
// their buffer regardless of the outcome here.
func (d *Dir) Remove(level int, h Header) error {
	path := d.FilePath(level, h)
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("rundir: failed to delete %s: %w", path, err)
	}
	return nil
}
